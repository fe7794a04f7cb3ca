package logger

import (
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so that log
// aggregation and querying stay uniform across the coordination core.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Entries & Paths
	// ========================================================================
	KeyPath         = "path"          // Escaped entry path
	KeyParentPath   = "parent_path"   // Parent entry path
	KeyOldPath      = "old_path"      // Source path for move operations
	KeyNewPath      = "new_path"      // Destination path for move operations
	KeyEntryType    = "entry_type"    // persistent, ephemeral, sequential
	KeySize         = "size"          // Value size in bytes
	KeyVersion      = "version"       // Entry storage version (CAS token)
	KeyChildren     = "children"      // Number of child entries

	// ========================================================================
	// Sessions
	// ========================================================================
	KeySessionID    = "session_id"     // Session lease identifier
	KeyOwnerID      = "owner_id"       // Ephemeral owner / lock owner identifier
	KeyLeaseEnd     = "lease_end"      // Lease expiry timestamp
	KeyGraceDeadline = "grace_deadline" // Reclaim-window deadline

	// ========================================================================
	// Client Identification
	// ========================================================================
	KeyClientIP   = "client_ip"   // Client IP address
	KeyClientAddr = "client_addr" // Full client address (host:port)

	// ========================================================================
	// Locking
	// ========================================================================
	KeyLockKind     = "lock_kind"     // read, write
	KeyLockOwner    = "lock_owner"    // Session holding or requesting the lock
	KeyWaitDuration = "wait_duration_ms"
	KeyQueueDepth   = "queue_depth" // Number of waiters queued behind a lock

	// ========================================================================
	// Storage Backend
	// ========================================================================
	KeyStoreType  = "store_type"  // memory, badger, postgres
	KeyAttempt    = "attempt"     // CAS retry attempt number
	KeyMaxRetries = "max_retries" // Maximum CAS retry attempts

	// ========================================================================
	// Cache Layer
	// ========================================================================
	KeyCacheHit      = "cache_hit"      // Cache hit indicator
	KeyCacheState    = "cache_state"    // valid, stale, invalidated
	KeyCacheSize     = "cache_size"     // Current cache entry count
	KeyCacheCapacity = "cache_capacity" // Maximum cache capacity
	KeyEvicted       = "evicted"        // Number of entries evicted/invalidated

	// ========================================================================
	// Exchange (cross-process notification)
	// ========================================================================
	KeyExchangeTransport = "exchange_transport" // local, grpc
	KeyPeerAddress       = "peer_address"       // Remote peer address
	KeyNotifyKind        = "notify_kind"        // write_released, read_released

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // Stable error code
	KeyOperation  = "operation"   // Operation name
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Path returns a slog.Attr for an entry path
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// ParentPath returns a slog.Attr for a parent entry path
func ParentPath(p string) slog.Attr {
	return slog.String(KeyParentPath, p)
}

// OldPath returns a slog.Attr for the source path of a move
func OldPath(p string) slog.Attr {
	return slog.String(KeyOldPath, p)
}

// NewPath returns a slog.Attr for the destination path of a move
func NewPath(p string) slog.Attr {
	return slog.String(KeyNewPath, p)
}

// EntryType returns a slog.Attr for an entry's type
func EntryType(t string) slog.Attr {
	return slog.String(KeyEntryType, t)
}

// Size returns a slog.Attr for a value size
func Size(s int) slog.Attr {
	return slog.Int(KeySize, s)
}

// Version returns a slog.Attr for an entry's storage version
func Version(v uint64) slog.Attr {
	return slog.Uint64(KeyVersion, v)
}

// Children returns a slog.Attr for a child entry count
func Children(n int) slog.Attr {
	return slog.Int(KeyChildren, n)
}

// SessionID returns a slog.Attr for a session identifier
func SessionID(id string) slog.Attr {
	return slog.String(KeySessionID, id)
}

// OwnerID returns a slog.Attr for an owner identifier
func OwnerID(id string) slog.Attr {
	return slog.String(KeyOwnerID, id)
}

// ClientIP returns a slog.Attr for client IP address
func ClientIP(addr string) slog.Attr {
	return slog.String(KeyClientIP, addr)
}

// ClientAddr returns a slog.Attr for a full client address
func ClientAddr(addr string) slog.Attr {
	return slog.String(KeyClientAddr, addr)
}

// LockKind returns a slog.Attr for a lock kind (read, write)
func LockKind(kind string) slog.Attr {
	return slog.String(KeyLockKind, kind)
}

// LockOwner returns a slog.Attr for a lock owner identifier
func LockOwner(owner string) slog.Attr {
	return slog.String(KeyLockOwner, owner)
}

// WaitDurationMs returns a slog.Attr for time spent waiting on a lock
func WaitDurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyWaitDuration, ms)
}

// QueueDepth returns a slog.Attr for the number of queued waiters
func QueueDepth(n int) slog.Attr {
	return slog.Int(KeyQueueDepth, n)
}

// StoreType returns a slog.Attr for the storage backend type
func StoreType(t string) slog.Attr {
	return slog.String(KeyStoreType, t)
}

// Attempt returns a slog.Attr for a CAS retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxRetries returns a slog.Attr for the maximum CAS retry attempts
func MaxRetries(n int) slog.Attr {
	return slog.Int(KeyMaxRetries, n)
}

// CacheHit returns a slog.Attr for cache hit indicator
func CacheHit(hit bool) slog.Attr {
	return slog.Bool(KeyCacheHit, hit)
}

// CacheState returns a slog.Attr for cache state
func CacheState(state string) slog.Attr {
	return slog.String(KeyCacheState, state)
}

// CacheSize returns a slog.Attr for current cache entry count
func CacheSize(size int) slog.Attr {
	return slog.Int(KeyCacheSize, size)
}

// Evicted returns a slog.Attr for number of entries evicted
func Evicted(n int) slog.Attr {
	return slog.Int(KeyEvicted, n)
}

// ExchangeTransport returns a slog.Attr for the exchange transport kind
func ExchangeTransport(transport string) slog.Attr {
	return slog.String(KeyExchangeTransport, transport)
}

// PeerAddress returns a slog.Attr for a remote exchange peer address
func PeerAddress(addr string) slog.Attr {
	return slog.String(KeyPeerAddress, addr)
}

// NotifyKind returns a slog.Attr for a notification kind
func NotifyKind(kind string) slog.Attr {
	return slog.String(KeyNotifyKind, kind)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for a stable error code
func ErrorCode(code string) slog.Attr {
	return slog.String(KeyErrorCode, code)
}

// Operation returns a slog.Attr for an operation name
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}
