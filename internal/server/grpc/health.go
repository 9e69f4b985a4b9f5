package grpcserver

import (
	"context"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	ledgerv1 "github.com/remiverdiesen/agents-at-scale/api/ledger/v1"
)

// refreshHealth mirrors the runtime health check into the health service,
// both for the server as a whole and for the Ledger service.
func (s *Server) refreshHealth(ctx context.Context) {
	st := healthpb.HealthCheckResponse_SERVING
	if err := s.rt.CheckHealth(ctx); err != nil {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ledgerv1.ServiceName, st)
}
