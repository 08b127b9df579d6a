// Package acspb defines acsd's control-plane RPC surface: two unary
// calls, Trigger and Status, plus the client/server wiring grpc-go needs
// to dispatch them. The wire format is JSON rather than protobuf binary —
// see the jsoncodec subpackage's codec registration — so every message here is
// a plain Go struct instead of a protoc-generated, descriptor-backed type.
package acspb

import (
	"context"

	"google.golang.org/grpc"
)

// TriggerRequest asks acsd to start a new ACS run. An empty Trigger field
// defaults to "manual" on the server.
type TriggerRequest struct {
	Trigger string `json:"trigger,omitempty"`
}

// TriggerResponse reports whether the run was accepted. Accepted is false
// if a run was already in progress; RunID is empty in that case.
type TriggerResponse struct {
	Accepted bool   `json:"accepted"`
	RunID    string `json:"run_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// StatusRequest is empty; Status always reports the single controller's
// current state.
type StatusRequest struct{}

// StatusResponse carries the state and channel that pkg/health's /status
// JSON reports, plus HasChannel and the current RunID.
type StatusResponse struct {
	State      string `json:"state"`
	Channel    int32  `json:"channel,omitempty"`
	HasChannel bool   `json:"has_channel"`
	RunID      string `json:"run_id,omitempty"`
}

// serviceName is the gRPC full method path prefix, "<package>.<service>".
const serviceName = "acspb.Acs"

// AcsServer is implemented by acsd's control-plane handler.
type AcsServer interface {
	Trigger(context.Context, *TriggerRequest) (*TriggerResponse, error)
	Status(context.Context, *StatusRequest) (*StatusResponse, error)
}

// RegisterAcsServer registers srv's handlers on s. Mirrors the shape of
// protoc-gen-go-grpc output, but hand-written: the Handler closures call
// dec(in) to let the configured codec (ours is JSON; see the jsoncodec
// subpackage) unmarshal the request, independent of wire format.
func RegisterAcsServer(s grpc.ServiceRegistrar, srv AcsServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*AcsServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Trigger",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(TriggerRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(AcsServer).Trigger(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/Trigger"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(AcsServer).Trigger(ctx, req.(*TriggerRequest))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
		{
			MethodName: "Status",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(StatusRequest)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(AcsServer).Status(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/Status"}
				handler := func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(AcsServer).Status(ctx, req.(*StatusRequest))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "acspb/acspb.go",
}

// AcsClient is the typed client cmd/acsctl drives acsd through.
type AcsClient interface {
	Trigger(ctx context.Context, in *TriggerRequest, opts ...grpc.CallOption) (*TriggerResponse, error)
	Status(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusResponse, error)
}

type acsClient struct {
	cc grpc.ClientConnInterface
}

// NewAcsClient wraps cc. Callers should pass grpc.CallContentSubtype("json")
// (see the jsoncodec subpackage's Name constant) on every call so the
// JSON codec, not grpc-go's default protobuf codec, is selected.
func NewAcsClient(cc grpc.ClientConnInterface) AcsClient {
	return &acsClient{cc: cc}
}

func (c *acsClient) Trigger(ctx context.Context, in *TriggerRequest, opts ...grpc.CallOption) (*TriggerResponse, error) {
	out := new(TriggerResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Trigger", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *acsClient) Status(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusResponse, error) {
	out := new(StatusResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Status", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
