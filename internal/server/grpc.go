package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/GoSim-25-26J-441/spotrain/pkg/logger"
)

// RunsServiceName is the fully qualified gRPC service name.
const RunsServiceName = "spotrain.v1.Runs"

// RunsServer is the gRPC runs API. Requests and responses are well-known
// protobuf types: runs travel as structpb.Struct with the same fields as
// the HTTP JSON representation.
type RunsServer interface {
	// CreateRun takes {run_id, config_yaml, callback_url} and starts the run.
	CreateRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRun(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	// ListRuns takes {limit, offset, status} and returns {runs: [...]}.
	ListRuns(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StopRun(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

// RunsServiceDesc describes RunsServer for grpc.Server.RegisterService.
var RunsServiceDesc = grpc.ServiceDesc{
	ServiceName: RunsServiceName,
	HandlerType: (*RunsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateRun", Handler: unaryHandler("CreateRun", RunsServer.CreateRun)},
		{MethodName: "GetRun", Handler: unaryHandler("GetRun", RunsServer.GetRun)},
		{MethodName: "ListRuns", Handler: unaryHandler("ListRuns", RunsServer.ListRuns)},
		{MethodName: "StopRun", Handler: unaryHandler("StopRun", RunsServer.StopRun)},
	},
	Metadata: "spotrain/v1/runs",
}

type message interface {
	*structpb.Struct | *wrapperspb.StringValue
}

func unaryHandler[Req message](method string, call func(RunsServer, context.Context, Req) (*structpb.Struct, error)) grpc.MethodHandler {
	fullMethod := "/" + RunsServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := newMessage[Req]()
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RunsServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(RunsServer), ctx, req.(Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func newMessage[Req message]() Req {
	var zero Req
	switch any(zero).(type) {
	case *structpb.Struct:
		return any(&structpb.Struct{}).(Req)
	default:
		return any(&wrapperspb.StringValue{}).(Req)
	}
}

// RegisterRunsServer registers srv and marks it serving on the health service.
func RegisterRunsServer(s *grpc.Server, srv RunsServer) *health.Server {
	s.RegisterService(&RunsServiceDesc, srv)
	hs := health.NewServer()
	hs.SetServingStatus(RunsServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return hs
}

// GRPCServer implements RunsServer on top of a RunExecutor.
type GRPCServer struct {
	store    *RunStore
	Executor *RunExecutor
}

func NewGRPCServer(executor *RunExecutor) *GRPCServer {
	return &GRPCServer{store: executor.Store(), Executor: executor}
}

func (s *GRPCServer) CreateRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	configYAML := fields["config_yaml"].GetStringValue()
	if configYAML == "" {
		return nil, status.Error(codes.InvalidArgument, "config_yaml is required")
	}
	run, err := s.Executor.Submit(fields["run_id"].GetStringValue(), configYAML, fields["callback_url"].GetStringValue())
	if err != nil {
		return nil, grpcError(err)
	}
	logger.Info("Run created", "run_id", run.ID, "transport", "grpc")
	return runStruct(run)
}

func (s *GRPCServer) GetRun(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	if req.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, ErrRunIDMissing.Error())
	}
	run, ok := s.store.Get(req.GetValue())
	if !ok {
		return nil, status.Error(codes.NotFound, "run not found")
	}
	return runStruct(run)
}

func (s *GRPCServer) ListRuns(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	var st RunStatus
	if raw := fields["status"].GetStringValue(); raw != "" {
		if st = ParseRunStatus(raw); st == "" {
			return nil, status.Errorf(codes.InvalidArgument, "invalid status: %s", raw)
		}
	}
	runs := s.store.List(int(fields["limit"].GetNumberValue()), int(fields["offset"].GetNumberValue()), st)

	out := make([]any, 0, len(runs))
	for _, run := range runs {
		m, err := runMap(run)
		if err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}
		out = append(out, m)
	}
	res, err := structpb.NewStruct(map[string]any{"runs": out})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return res, nil
}

func (s *GRPCServer) StopRun(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	run, err := s.Executor.Stop(req.GetValue())
	if err != nil {
		return nil, grpcError(err)
	}
	return runStruct(run)
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, ErrRunIDMissing), errors.Is(err, ErrInvalidRun):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrRunNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrRunExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, ErrRunTerminal):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// runMap converts a run to the generic map form of its JSON encoding.
func runMap(run *Run) (map[string]any, error) {
	raw, err := json.Marshal(run)
	if err != nil {
		return nil, fmt.Errorf("encode run: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode run: %w", err)
	}
	return m, nil
}

func runStruct(run *Run) (*structpb.Struct, error) {
	m, err := runMap(run)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// RunsClient calls a remote RunsServer.
type RunsClient struct {
	cc grpc.ClientConnInterface
}

func NewRunsClient(cc grpc.ClientConnInterface) *RunsClient {
	return &RunsClient{cc: cc}
}

func (c *RunsClient) CreateRun(ctx context.Context, runID, configYAML, callbackURL string) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{
		"run_id":       runID,
		"config_yaml":  configYAML,
		"callback_url": callbackURL,
	})
	if err != nil {
		return nil, err
	}
	return c.invoke(ctx, "CreateRun", in)
}

func (c *RunsClient) GetRun(ctx context.Context, runID string) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetRun", wrapperspb.String(runID))
}

func (c *RunsClient) ListRuns(ctx context.Context, limit, offset int, st RunStatus) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(map[string]any{
		"limit":  limit,
		"offset": offset,
		"status": string(st),
	})
	if err != nil {
		return nil, err
	}
	return c.invoke(ctx, "ListRuns", in)
}

func (c *RunsClient) StopRun(ctx context.Context, runID string) (*structpb.Struct, error) {
	return c.invoke(ctx, "StopRun", wrapperspb.String(runID))
}

func (c *RunsClient) invoke(ctx context.Context, method string, in any) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+RunsServiceName+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}
