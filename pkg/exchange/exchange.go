// Package exchange defines the cross-process lock-release broadcast
// contract. A Transport lets the lock and wait managers tell
// peers "a lock on this path was released" without caring whether the peer
// is in the same process (localexchange) or across the network
// (grpcexchange).
package exchange

import "context"

// Kind distinguishes the two notification shapes the protocol defines.
type Kind int

const (
	// WriteLockReleased indicates a path's write lock was released.
	WriteLockReleased Kind = iota
	// ReadLockReleased indicates one of a path's read locks was released.
	ReadLockReleased
)

func (k Kind) String() string {
	switch k {
	case WriteLockReleased:
		return "write_lock_released"
	case ReadLockReleased:
		return "read_lock_released"
	default:
		return "unknown"
	}
}

// Notification is a single lock-release event, addressed to a path. The
// transport determines which peers actually receive it.
type Notification struct {
	Kind Kind
	Path string
}

// Receiver handles a Notification arriving from a peer. Implementations
// must not block: invalidate a cache entry and drive the local wait
// directory, then return.
type Receiver func(Notification)

// Transport is the capability set exchange managers and transports must
// provide: broadcast outgoing releases, and accept a callback for incoming
// ones. No response or acknowledgement is part of the contract — delivery
// is best-effort.
type Transport interface {
	// NotifyWriteLockReleased informs peers that path's write lock was
	// released.
	NotifyWriteLockReleased(ctx context.Context, path string) error

	// NotifyReadLockReleased informs peers that one of path's read locks
	// was released.
	NotifyReadLockReleased(ctx context.Context, path string) error

	// Subscribe registers the local receiver for incoming notifications.
	// A Transport supports exactly one receiver at a time; re-subscribing
	// replaces the previous one.
	Subscribe(receiver Receiver)

	// Close releases any transport resources (connections, goroutines).
	Close() error
}
