package serverrun

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	cfgpkg "github.com/remiverdiesen/agents-at-scale/internal/config"
	"github.com/remiverdiesen/agents-at-scale/internal/runtime"
	grpcserver "github.com/remiverdiesen/agents-at-scale/internal/server/grpc"
	httpserver "github.com/remiverdiesen/agents-at-scale/internal/server/http"
	logpkg "github.com/remiverdiesen/agents-at-scale/pkg/log"
)

// shutdownTimeout bounds the final snapshot on exit.
const shutdownTimeout = 10 * time.Second

type Options struct {
	Config cfgpkg.Config
	// Logger defaults to one built from Config.Log.
	Logger logpkg.Logger
	// Ready, if set, runs once both listeners are bound. grpcAddr is empty
	// when gRPC is disabled.
	Ready func(httpAddr, grpcAddr string)
}

// Run starts the HTTP and gRPC servers and blocks until ctx is cancelled or
// a server fails. The store is saved and closed before Run returns.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := opts.Logger
	if logger == nil {
		l, err := logpkg.ApplyConfig(cfg.Log)
		if err != nil {
			return err
		}
		logger = l
	}
	// Redirect stdlib logs (e.g., Pebble) to our logger
	restore := logpkg.RedirectStdLog(logger)
	defer restore()

	rt, err := runtime.Open(sctx, runtime.Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := rt.Close(cctx); err != nil {
			logger.Error("runtime close failed", logpkg.Err(err))
		}
	}()

	hl, err := net.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return err
	}
	var gl net.Listener
	if cfg.GRPC.Addr != "" {
		if gl, err = net.Listen("tcp", cfg.GRPC.Addr); err != nil {
			_ = hl.Close()
			return err
		}
	}

	stats := rt.Store().Stats()
	logger.Info("starting ledger server",
		logpkg.Str("http", hl.Addr().String()),
		logpkg.Str("grpc", addrOf(gl)),
		logpkg.Str("snapshot", cfg.SnapshotPath()),
		logpkg.Str("backend", cfg.Snapshot.Backend),
		logpkg.Str("max_message", humanize.IBytes(uint64(cfg.MaxMessageBytes))),
		logpkg.Int("max_records", cfg.MaxRecords),
		logpkg.Dur("max_age", cfg.MaxAge()),
		logpkg.Int("sessions", stats.StreamCount),
		logpkg.Int("records", stats.TotalRecords),
		logpkg.Str("level", cfg.Log.Level),
		logpkg.Str("format", cfg.Log.Format),
	)

	runCtx, cancel := context.WithCancel(sctx)
	defer cancel()
	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	hsrv := httpserver.New(rt, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hsrv.Serve(runCtx, hl); err != nil && runCtx.Err() == nil {
			logger.Error("http server failed", logpkg.Err(err))
			errCh <- err
			cancel()
		}
	}()

	var gsrv *grpcserver.Server
	if gl != nil {
		gsrv = grpcserver.New(rt, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := gsrv.Serve(runCtx, gl); err != nil && runCtx.Err() == nil {
				logger.Error("grpc server failed", logpkg.Err(err))
				errCh <- err
				cancel()
			}
		}()
	}

	if opts.Ready != nil {
		opts.Ready(hl.Addr().String(), addrOf(gl))
	}

	<-runCtx.Done()
	// Stop the servers before the runtime closes the store.
	if gsrv != nil {
		gsrv.Close()
	}
	hsrv.Close()
	wg.Wait()
	close(errCh)
	logger.Info("ledger server stopped")

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func addrOf(l net.Listener) string {
	if l == nil {
		return ""
	}
	return l.Addr().String()
}
