package v1

import (
	"context"

	"google.golang.org/grpc"
)

// ControllerServiceServer is implemented by the controller's client-facing
// RPC handler (pkg/controller.Server; cmd/controller registers it).
type ControllerServiceServer interface {
	Infer(context.Context, *InferenceRequest) (*InferenceResponse, error)
}

func _ControllerService_Infer_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(InferenceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	impl, ok := srv.(ControllerServiceServer)
	if !ok {
		return nil, errInvalidMessage(srv)
	}
	if interceptor == nil {
		return impl.Infer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/v1.ControllerService/Infer"}
	handler := func(ctx context.Context, req any) (any, error) {
		r, ok := req.(*InferenceRequest)
		if !ok {
			return nil, errInvalidMessage(req)
		}
		return impl.Infer(ctx, r)
	}
	return interceptor(ctx, in, info, handler)
}

// ControllerServiceServiceDesc is the hand-rolled equivalent of what
// protoc-gen-go-grpc would emit for a "ControllerService" with one unary
// Infer RPC. Registered via grpc.Server.RegisterService.
var ControllerServiceServiceDesc = grpc.ServiceDesc{
	ServiceName: "v1.ControllerService",
	HandlerType: (*ControllerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Infer", Handler: _ControllerService_Infer_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "clockwork/v1/controller.proto",
}

// ControllerServiceClient is the client stub used by cmd/loadtest and any
// other direct caller of the controller's client-facing RPC.
type ControllerServiceClient interface {
	Infer(ctx context.Context, in *InferenceRequest, opts ...grpc.CallOption) (*InferenceResponse, error)
}

type controllerServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewControllerServiceClient(cc grpc.ClientConnInterface) ControllerServiceClient {
	return &controllerServiceClient{cc: cc}
}

func (c *controllerServiceClient) Infer(ctx context.Context, in *InferenceRequest, opts ...grpc.CallOption) (*InferenceResponse, error) {
	out := new(InferenceResponse)
	if err := c.cc.Invoke(ctx, "/v1.ControllerService/Infer", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// WorkerServiceServer is implemented by the (out-of-scope) worker process;
// only the client stub below is exercised by this repo.
type WorkerServiceServer interface {
	Infer(context.Context, *InferRequest) (*InferReply, error)
	LoadWeights(context.Context, *LoadWeightsRequest) (*LoadWeightsReply, error)
	EvictWeights(context.Context, *EvictWeightsRequest) (*EvictWeightsReply, error)
}

func _WorkerService_Infer_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(InferRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	impl, ok := srv.(WorkerServiceServer)
	if !ok {
		return nil, errInvalidMessage(srv)
	}
	if interceptor == nil {
		return impl.Infer(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/v1.WorkerService/Infer"}
	handler := func(ctx context.Context, req any) (any, error) {
		r, ok := req.(*InferRequest)
		if !ok {
			return nil, errInvalidMessage(req)
		}
		return impl.Infer(ctx, r)
	}
	return interceptor(ctx, in, info, handler)
}

func _WorkerService_LoadWeights_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(LoadWeightsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	impl, ok := srv.(WorkerServiceServer)
	if !ok {
		return nil, errInvalidMessage(srv)
	}
	if interceptor == nil {
		return impl.LoadWeights(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/v1.WorkerService/LoadWeights"}
	handler := func(ctx context.Context, req any) (any, error) {
		r, ok := req.(*LoadWeightsRequest)
		if !ok {
			return nil, errInvalidMessage(req)
		}
		return impl.LoadWeights(ctx, r)
	}
	return interceptor(ctx, in, info, handler)
}

func _WorkerService_EvictWeights_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(EvictWeightsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	impl, ok := srv.(WorkerServiceServer)
	if !ok {
		return nil, errInvalidMessage(srv)
	}
	if interceptor == nil {
		return impl.EvictWeights(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/v1.WorkerService/EvictWeights"}
	handler := func(ctx context.Context, req any) (any, error) {
		r, ok := req.(*EvictWeightsRequest)
		if !ok {
			return nil, errInvalidMessage(req)
		}
		return impl.EvictWeights(ctx, r)
	}
	return interceptor(ctx, in, info, handler)
}

// WorkerServiceServiceDesc mirrors what protoc-gen-go-grpc would emit for
// the worker-facing service. Nothing in this repository serves it; the
// real worker process is out of scope.
var WorkerServiceServiceDesc = grpc.ServiceDesc{
	ServiceName: "v1.WorkerService",
	HandlerType: (*WorkerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Infer", Handler: _WorkerService_Infer_Handler},
		{MethodName: "LoadWeights", Handler: _WorkerService_LoadWeights_Handler},
		{MethodName: "EvictWeights", Handler: _WorkerService_EvictWeights_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "clockwork/v1/worker.proto",
}

// WorkerServiceClient is the controller's stub for dispatching actions to a
// worker connection. pkg/workerlink wraps this with async send-queue
// semantics so the scheduler goroutine never blocks on it.
type WorkerServiceClient interface {
	Infer(ctx context.Context, in *InferRequest, opts ...grpc.CallOption) (*InferReply, error)
	LoadWeights(ctx context.Context, in *LoadWeightsRequest, opts ...grpc.CallOption) (*LoadWeightsReply, error)
	EvictWeights(ctx context.Context, in *EvictWeightsRequest, opts ...grpc.CallOption) (*EvictWeightsReply, error)
}

type workerServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewWorkerServiceClient(cc grpc.ClientConnInterface) WorkerServiceClient {
	return &workerServiceClient{cc: cc}
}

func (c *workerServiceClient) Infer(ctx context.Context, in *InferRequest, opts ...grpc.CallOption) (*InferReply, error) {
	out := new(InferReply)
	if err := c.cc.Invoke(ctx, "/v1.WorkerService/Infer", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *workerServiceClient) LoadWeights(ctx context.Context, in *LoadWeightsRequest, opts ...grpc.CallOption) (*LoadWeightsReply, error) {
	out := new(LoadWeightsReply)
	if err := c.cc.Invoke(ctx, "/v1.WorkerService/LoadWeights", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *workerServiceClient) EvictWeights(ctx context.Context, in *EvictWeightsRequest, opts ...grpc.CallOption) (*EvictWeightsReply, error) {
	out := new(EvictWeightsReply)
	if err := c.cc.Invoke(ctx, "/v1.WorkerService/EvictWeights", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterControllerServiceServer is the hand-rolled equivalent of the
// protoc-gen-go-grpc-emitted registration helper.
func RegisterControllerServiceServer(s *grpc.Server, srv ControllerServiceServer) {
	s.RegisterService(&ControllerServiceServiceDesc, srv)
}

// RegisterWorkerServiceServer registers a WorkerServiceServer on s. Nothing
// in this repository calls it.
func RegisterWorkerServiceServer(s *grpc.Server, srv WorkerServiceServer) {
	s.RegisterService(&WorkerServiceServiceDesc, srv)
}
