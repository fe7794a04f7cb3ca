// Package grpcexchange implements exchange.Transport over a gRPC
// bidirectional stream per configured peer address; every notification is
// sent to every peer, not routed by session id. It deliberately avoids a protoc-generated
// service stub: the single streaming method is registered by hand against a
// JSON content-subtype codec via grpc.CallContentSubtype, so no protobuf
// schema needs to be compiled for the notification payload.
package grpcexchange

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/marmos91/coordcore/pkg/exchange"
)

// Transport is a gRPC-backed exchange.Transport. It serves the exchange
// stream for inbound peers and maintains one outbound stream per address in
// its peer set.
type Transport struct {
	logger   *slog.Logger
	server   *grpc.Server
	listener net.Listener

	mu         sync.Mutex
	receiver   exchange.Receiver
	peerConns  map[string]*grpc.ClientConn
	peerStrms  map[string]grpc.ClientStream
	credential string
}

var _ exchange.Transport = (*Transport)(nil)

// Listen starts the exchange gRPC server on listenAddr. Call AddPeer for
// every other node this one should broadcast releases to. validate, if
// non-nil, is called with the credential token attached to each inbound
// stream (empty string if none was attached); a returned error refuses the
// stream before any messages are read.
func Listen(listenAddr string, logger *slog.Logger, validate func(token string) error) (*Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}

	lis, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", listenAddr, err)
	}

	t := &Transport{
		logger:    logger,
		listener:  lis,
		peerConns: make(map[string]*grpc.ClientConn),
		peerStrms: make(map[string]grpc.ClientStream),
	}

	srv := &server{onMessage: t.handleIncoming, validate: validate}
	grpcServer := grpc.NewServer()
	grpcServer.RegisterService(newServiceDesc(srv), srv)
	t.server = grpcServer

	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			t.logger.Warn("exchange grpc server stopped", "error", err)
		}
	}()

	return t, nil
}

// SetCredential attaches token to every outbound stream opened by AddPeer
// from this point on, as proof that this node's connection speaks for a
// session id a peer's validate callback can check. Existing outbound
// streams are unaffected; call before AddPeer.
func (t *Transport) SetCredential(token string) {
	t.mu.Lock()
	t.credential = token
	t.mu.Unlock()
}

// AddPeer opens (or replaces) the outbound stream to a peer's exchange
// address. Notifications sent after this call are broadcast to that peer
// too.
func (t *Transport) AddPeer(ctx context.Context, address string) error {
	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dial exchange peer %s: %w", address, err)
	}

	t.mu.Lock()
	token := t.credential
	t.mu.Unlock()
	if token != "" {
		ctx = metadata.NewOutgoingContext(ctx, metadata.Pairs(credentialHeader, token))
	}

	stream, err := conn.NewStream(ctx, &grpc.StreamDesc{
		StreamName:    methodName,
		ServerStreams: true,
		ClientStreams: true,
	}, fullMethod, grpc.CallContentSubtype(codecName))
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open exchange stream to %s: %w", address, err)
	}

	t.mu.Lock()
	if old, ok := t.peerConns[address]; ok {
		_ = old.Close()
	}
	t.peerConns[address] = conn
	t.peerStrms[address] = stream
	t.mu.Unlock()

	return nil
}

// RemovePeer closes and forgets the outbound stream to address.
func (t *Transport) RemovePeer(address string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if conn, ok := t.peerConns[address]; ok {
		_ = conn.Close()
		delete(t.peerConns, address)
		delete(t.peerStrms, address)
	}
}

// NotifyWriteLockReleased broadcasts to every peer in the peer set.
func (t *Transport) NotifyWriteLockReleased(ctx context.Context, path string) error {
	return t.broadcast(ctx, wireNotification{Kind: kindWriteLockReleased, Path: path})
}

// NotifyReadLockReleased broadcasts to every peer in the peer set.
func (t *Transport) NotifyReadLockReleased(ctx context.Context, path string) error {
	return t.broadcast(ctx, wireNotification{Kind: kindReadLockReleased, Path: path})
}

func (t *Transport) broadcast(_ context.Context, msg wireNotification) error {
	t.mu.Lock()
	streams := make(map[string]grpc.ClientStream, len(t.peerStrms))
	for addr, s := range t.peerStrms {
		streams[addr] = s
	}
	t.mu.Unlock()

	// Best-effort: log and continue past a dead peer rather than
	// failing the whole broadcast.
	for addr, stream := range streams {
		if err := stream.SendMsg(&msg); err != nil {
			t.logger.Warn("exchange notification delivery failed", "peer", addr, "error", err)
		}
	}
	return nil
}

// Subscribe registers receiver for notifications arriving over any inbound
// stream.
func (t *Transport) Subscribe(receiver exchange.Receiver) {
	t.mu.Lock()
	t.receiver = receiver
	t.mu.Unlock()
}

func (t *Transport) handleIncoming(msg wireNotification) {
	t.mu.Lock()
	receiver := t.receiver
	t.mu.Unlock()

	if receiver == nil {
		return
	}

	kind := exchange.WriteLockReleased
	if msg.Kind == kindReadLockReleased {
		kind = exchange.ReadLockReleased
	}
	receiver(exchange.Notification{Kind: kind, Path: msg.Path})
}

// Close stops the server and every outbound connection.
func (t *Transport) Close() error {
	t.server.GracefulStop()

	t.mu.Lock()
	defer t.mu.Unlock()
	for addr, conn := range t.peerConns {
		_ = conn.Close()
		delete(t.peerConns, addr)
		delete(t.peerStrms, addr)
	}
	return nil
}
