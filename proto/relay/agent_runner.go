// ABOUTME: gRPC client and server surface for the AgentRunner service
// ABOUTME: Maintained by hand against agent_runner.proto; messages are well-known Struct values

package relay

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// AgentRunner_Run_FullMethodName is the wire method for one agent turn.
const AgentRunner_Run_FullMethodName = "/relay.AgentRunner/Run"

// AgentRunnerClient is the client API for the AgentRunner service.
type AgentRunnerClient interface {
	// Run executes one agent turn, streaming a chunk per emitted reply text.
	Run(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (AgentRunner_RunClient, error)
}

type agentRunnerClient struct {
	cc grpc.ClientConnInterface
}

// NewAgentRunnerClient creates a client on an established connection.
func NewAgentRunnerClient(cc grpc.ClientConnInterface) AgentRunnerClient {
	return &agentRunnerClient{cc}
}

func (c *agentRunnerClient) Run(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (AgentRunner_RunClient, error) {
	stream, err := c.cc.NewStream(ctx, &AgentRunner_ServiceDesc.Streams[0], AgentRunner_Run_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	x := &agentRunnerRunClient{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// AgentRunner_RunClient is the client side of the Run response stream.
type AgentRunner_RunClient interface {
	Recv() (*structpb.Struct, error)
	grpc.ClientStream
}

type agentRunnerRunClient struct {
	grpc.ClientStream
}

func (x *agentRunnerRunClient) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// AgentRunnerServer is the server API for the AgentRunner service.
type AgentRunnerServer interface {
	Run(*structpb.Struct, AgentRunner_RunServer) error
}

// RegisterAgentRunnerServer registers the service implementation with a
// gRPC server.
func RegisterAgentRunnerServer(s grpc.ServiceRegistrar, srv AgentRunnerServer) {
	s.RegisterService(&AgentRunner_ServiceDesc, srv)
}

// AgentRunner_RunServer is the server side of the Run response stream.
type AgentRunner_RunServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type agentRunnerRunServer struct {
	grpc.ServerStream
}

func (x *agentRunnerRunServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

func _AgentRunner_Run_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(structpb.Struct)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(AgentRunnerServer).Run(m, &agentRunnerRunServer{ServerStream: stream})
}

// AgentRunner_ServiceDesc is the grpc.ServiceDesc for the AgentRunner
// service. It should only be used with grpc.RegisterService or NewStream.
var AgentRunner_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "relay.AgentRunner",
	HandlerType: (*AgentRunnerServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Run",
			Handler:       _AgentRunner_Run_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "proto/relay/agent_runner.proto",
}
