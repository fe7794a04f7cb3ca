package grpcexchange

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc/metadata"
)

var errBadToken = errors.New("bad token")

// fakeServerStream is a minimal grpc.ServerStream stand-in for exercising
// server.streamHandler without an actual network connection.
type fakeServerStream struct {
	ctx      context.Context
	messages []wireNotification
	pos      int
}

func (f *fakeServerStream) SetHeader(metadata.MD) error  { return nil }
func (f *fakeServerStream) SendHeader(metadata.MD) error { return nil }
func (f *fakeServerStream) SetTrailer(metadata.MD)       {}
func (f *fakeServerStream) Context() context.Context     { return f.ctx }
func (f *fakeServerStream) SendMsg(m any) error          { return nil }

func (f *fakeServerStream) RecvMsg(m any) error {
	if f.pos >= len(f.messages) {
		return io.EOF
	}
	out, ok := m.(*wireNotification)
	if !ok {
		return errors.New("unexpected message type")
	}
	*out = f.messages[f.pos]
	f.pos++
	return nil
}
