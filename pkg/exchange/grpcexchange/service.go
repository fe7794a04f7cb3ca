package grpcexchange

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// credentialHeader is the gRPC metadata key carrying the session
// credential token attached by AddPeer, if any.
const credentialHeader = "coordcore-session-credential"

// server is the gRPC-facing half of a Transport: it accepts the incoming
// bidi stream from a peer and hands every message it reads to onMessage.
// validate, if set, rejects a stream whose credential token doesn't parse
// or verify, so a peer can't spoof another node's session identity on an
// inbound connection.
type server struct {
	onMessage func(wireNotification)
	validate  func(token string) error
}

func (s *server) streamHandler(_ any, stream grpc.ServerStream) error {
	if s.validate != nil {
		if err := s.validate(credentialFromContext(stream.Context())); err != nil {
			return fmt.Errorf("exchange stream credential rejected: %w", err)
		}
	}

	for {
		var msg wireNotification
		if err := stream.RecvMsg(&msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if s.onMessage != nil {
			s.onMessage(msg)
		}
	}
}

func credentialFromContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(credentialHeader)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// serviceDesc is a hand-rolled grpc.ServiceDesc: a single bidirectional
// streaming method, with no protoc-generated stub. Messages are plain Go
// structs marshaled by the registered "json" codec (see codec.go).
func newServiceDesc(srv *server) *grpc.ServiceDesc {
	return &grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*any)(nil),
		Streams: []grpc.StreamDesc{
			{
				StreamName:    methodName,
				Handler:       srv.streamHandler,
				ServerStreams: true,
				ClientStreams: true,
			},
		},
		Metadata: "coordcore/exchange.proto",
	}
}
