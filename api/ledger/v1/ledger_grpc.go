package ledgerv1

import (
	"context"

	"google.golang.org/grpc"
)

const (
	ServiceName = "ledger.v1.Ledger"

	Ledger_Append_FullMethodName    = "/ledger.v1.Ledger/Append"
	Ledger_ListSince_FullMethodName = "/ledger.v1.Ledger/ListSince"
	Ledger_Clear_FullMethodName     = "/ledger.v1.Ledger/Clear"
	Ledger_Tail_FullMethodName      = "/ledger.v1.Ledger/Tail"
)

// LedgerClient is the client API for the Ledger service.
type LedgerClient interface {
	Append(ctx context.Context, in *AppendRequest, opts ...grpc.CallOption) (*AppendResponse, error)
	ListSince(ctx context.Context, in *ListSinceRequest, opts ...grpc.CallOption) (*ListSinceResponse, error)
	Clear(ctx context.Context, in *ClearRequest, opts ...grpc.CallOption) (*ClearResponse, error)
	Tail(ctx context.Context, in *TailRequest, opts ...grpc.CallOption) (Ledger_TailClient, error)
}

type ledgerClient struct {
	cc grpc.ClientConnInterface
}

// NewLedgerClient returns a client that always calls with the JSON codec.
func NewLedgerClient(cc grpc.ClientConnInterface) LedgerClient {
	return &ledgerClient{cc}
}

func callOpts(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

func (c *ledgerClient) Append(ctx context.Context, in *AppendRequest, opts ...grpc.CallOption) (*AppendResponse, error) {
	out := new(AppendResponse)
	if err := c.cc.Invoke(ctx, Ledger_Append_FullMethodName, in, out, callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerClient) ListSince(ctx context.Context, in *ListSinceRequest, opts ...grpc.CallOption) (*ListSinceResponse, error) {
	out := new(ListSinceResponse)
	if err := c.cc.Invoke(ctx, Ledger_ListSince_FullMethodName, in, out, callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerClient) Clear(ctx context.Context, in *ClearRequest, opts ...grpc.CallOption) (*ClearResponse, error) {
	out := new(ClearResponse)
	if err := c.cc.Invoke(ctx, Ledger_Clear_FullMethodName, in, out, callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ledgerClient) Tail(ctx context.Context, in *TailRequest, opts ...grpc.CallOption) (Ledger_TailClient, error) {
	stream, err := c.cc.NewStream(ctx, &Ledger_ServiceDesc.Streams[0], Ledger_Tail_FullMethodName, callOpts(opts)...)
	if err != nil {
		return nil, err
	}
	x := &ledgerTailClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// Ledger_TailClient receives tailed records.
type Ledger_TailClient interface {
	Recv() (*Record, error)
	grpc.ClientStream
}

type ledgerTailClient struct {
	grpc.ClientStream
}

func (x *ledgerTailClient) Recv() (*Record, error) {
	m := new(Record)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// LedgerServer is the server API for the Ledger service.
type LedgerServer interface {
	Append(context.Context, *AppendRequest) (*AppendResponse, error)
	ListSince(context.Context, *ListSinceRequest) (*ListSinceResponse, error)
	Clear(context.Context, *ClearRequest) (*ClearResponse, error)
	Tail(*TailRequest, Ledger_TailServer) error
}

// RegisterLedgerServer registers srv on s.
func RegisterLedgerServer(s grpc.ServiceRegistrar, srv LedgerServer) {
	s.RegisterService(&Ledger_ServiceDesc, srv)
}

func _Ledger_Append_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(AppendRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServer).Append(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Ledger_Append_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServer).Append(ctx, req.(*AppendRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Ledger_ListSince_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ListSinceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServer).ListSince(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Ledger_ListSince_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServer).ListSince(ctx, req.(*ListSinceRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Ledger_Clear_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ClearRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LedgerServer).Clear(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Ledger_Clear_FullMethodName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(LedgerServer).Clear(ctx, req.(*ClearRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Ledger_Tail_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(TailRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(LedgerServer).Tail(m, &ledgerTailServer{stream})
}

// Ledger_TailServer sends tailed records.
type Ledger_TailServer interface {
	Send(*Record) error
	grpc.ServerStream
}

type ledgerTailServer struct {
	grpc.ServerStream
}

func (x *ledgerTailServer) Send(m *Record) error {
	return x.ServerStream.SendMsg(m)
}

// Ledger_ServiceDesc is the grpc.ServiceDesc for the Ledger service.
var Ledger_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Append", Handler: _Ledger_Append_Handler},
		{MethodName: "ListSince", Handler: _Ledger_ListSince_Handler},
		{MethodName: "Clear", Handler: _Ledger_Clear_Handler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Tail", Handler: _Ledger_Tail_Handler, ServerStreams: true},
	},
	Metadata: "ledger/v1/ledger.go",
}
