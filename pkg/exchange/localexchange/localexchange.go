// Package localexchange is an in-process exchange.Transport: every
// subscriber attached to the same Bus receives every notification
// synchronously. It exists for single-process embeddings of the
// coordination core and for tests that need the exchange contract without
// a network.
package localexchange

import (
	"context"
	"sync"

	"github.com/marmos91/coordcore/pkg/exchange"
)

// Bus fans a notification out to every Transport created from it. A single
// process typically has one Bus; each logical "peer" (e.g. a simulated
// remote session in a test) gets its own Transport attached to it.
type Bus struct {
	mu         sync.Mutex
	transports []*Transport
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) attach(t *Transport) {
	b.mu.Lock()
	b.transports = append(b.transports, t)
	b.mu.Unlock()
}

func (b *Bus) detach(t *Transport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, cur := range b.transports {
		if cur == t {
			b.transports[i] = b.transports[len(b.transports)-1]
			b.transports = b.transports[:len(b.transports)-1]
			return
		}
	}
}

func (b *Bus) broadcast(from *Transport, n exchange.Notification) {
	b.mu.Lock()
	peers := make([]*Transport, len(b.transports))
	copy(peers, b.transports)
	b.mu.Unlock()

	for _, t := range peers {
		if t == from {
			continue
		}
		t.deliver(n)
	}
}

// Transport is a Bus-attached exchange.Transport.
type Transport struct {
	bus *Bus

	mu       sync.Mutex
	receiver exchange.Receiver
}

var _ exchange.Transport = (*Transport)(nil)

// New attaches a new Transport to bus.
func New(bus *Bus) *Transport {
	t := &Transport{bus: bus}
	bus.attach(t)
	return t
}

// NotifyWriteLockReleased broadcasts the release to every other transport
// on the bus.
func (t *Transport) NotifyWriteLockReleased(_ context.Context, path string) error {
	t.bus.broadcast(t, exchange.Notification{Kind: exchange.WriteLockReleased, Path: path})
	return nil
}

// NotifyReadLockReleased broadcasts the release to every other transport on
// the bus.
func (t *Transport) NotifyReadLockReleased(_ context.Context, path string) error {
	t.bus.broadcast(t, exchange.Notification{Kind: exchange.ReadLockReleased, Path: path})
	return nil
}

// Subscribe registers receiver for notifications delivered to this
// transport.
func (t *Transport) Subscribe(receiver exchange.Receiver) {
	t.mu.Lock()
	t.receiver = receiver
	t.mu.Unlock()
}

// Close detaches the transport from its bus.
func (t *Transport) Close() error {
	t.bus.detach(t)
	return nil
}

func (t *Transport) deliver(n exchange.Notification) {
	t.mu.Lock()
	receiver := t.receiver
	t.mu.Unlock()

	if receiver != nil {
		receiver(n)
	}
}
