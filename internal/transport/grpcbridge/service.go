// Package grpcbridge carries the hub byte stream over one bidirectional
// gRPC stream, so a hub program can run on another machine.
package grpcbridge

import (
	"context"
	"io"

	"google.golang.org/grpc"

	"github.com/rbright/hubdrive/internal/interpreter"
)

const (
	ServiceName  = "hubdrive.bridge.v1.Bridge"
	AttachMethod = "/" + ServiceName + "/Attach"
	// HubNameKey carries the client's selector and the server's hub name.
	HubNameKey = "x-hub-name"
)

// Program is the hub program run for each attached client.
type Program func(ctx context.Context, in interpreter.Input, out io.Writer) error

type bridgeServer interface {
	attach(grpc.ServerStream) error
}

// serviceDesc is hand-written: Attach streams google.protobuf.BytesValue in
// both directions, so no generated stubs are needed.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*bridgeServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Attach",
			Handler:       attachHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "hubdrive/bridge/v1/bridge.proto",
}

func attachHandler(srv any, stream grpc.ServerStream) error {
	return srv.(bridgeServer).attach(stream)
}
