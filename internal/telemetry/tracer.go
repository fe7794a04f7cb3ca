package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for coordination operations.
// These follow OpenTelemetry semantic conventions where applicable.
const (
	// ========================================================================
	// Client attributes
	// ========================================================================
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"
	AttrClientPort = "client.port"

	// ========================================================================
	// Request / entry attributes
	// ========================================================================
	AttrOperation = "coord.operation" // Generic operation name
	AttrPath      = "coord.path"      // Escaped entry path
	AttrEntryType = "coord.entry_type"
	AttrVersion   = "coord.version" // Storage CAS version
	AttrSize      = "coord.size"    // Value size in bytes
	AttrChildren  = "coord.children"
	AttrStatus    = "coord.status"
	AttrStatusMsg = "coord.status_msg"

	// ========================================================================
	// Session attributes
	// ========================================================================
	AttrSessionID = "session.id"
	AttrOwnerID   = "session.owner_id"
	AttrLeaseEnd  = "session.lease_end"
	AttrInGrace   = "session.in_grace_period"

	// ========================================================================
	// Lock manager attributes
	// ========================================================================
	AttrLockKind     = "lock.kind" // read, write
	AttrLockOwner    = "lock.owner"
	AttrWaitDuration = "lock.wait_duration_ms"
	AttrQueueDepth   = "lock.queue_depth"

	// ========================================================================
	// Storage backend attributes
	// ========================================================================
	AttrStoreType  = "store.type" // memory, badger, postgres
	AttrAttempt    = "store.cas_attempt"
	AttrMaxRetries = "store.cas_max_retries"

	// ========================================================================
	// Cache attributes
	// ========================================================================
	AttrCacheHit   = "cache.hit"
	AttrCacheState = "cache.state"
	AttrCacheSize  = "cache.size"

	// ========================================================================
	// Exchange (cross-process notification) attributes
	// ========================================================================
	AttrExchangeTransport = "exchange.transport" // local, grpc
	AttrPeerAddress       = "exchange.peer_address"
	AttrNotifyKind        = "exchange.notify_kind"
)

// Span names for operations.
// Format: <component>.<operation>
const (
	// ========================================================================
	// Session spans
	// ========================================================================
	SpanSessionCreate      = "session.create"
	SpanSessionRenew       = "session.renew"
	SpanSessionEnd         = "session.end"
	SpanSessionGracePeriod = "session.grace_period"
	SpanSessionReclaim     = "session.reclaim"

	// ========================================================================
	// Entry spans
	// ========================================================================
	SpanEntryCreate = "entry.create"
	SpanEntryGet    = "entry.get"
	SpanEntrySet    = "entry.set"
	SpanEntryDelete = "entry.delete"
	SpanEntryList   = "entry.list"
	SpanEntryExists = "entry.exists"

	// ========================================================================
	// Lock manager spans
	// ========================================================================
	SpanLockAcquireWrite = "lock.acquire_write"
	SpanLockAcquireRead  = "lock.acquire_read"
	SpanLockRelease      = "lock.release"
	SpanLockWait         = "lock.wait"
	SpanLockCASRetry     = "lock.cas_retry"

	// ========================================================================
	// Cache spans
	// ========================================================================
	SpanCacheLookup     = "cache.lookup"
	SpanCacheInvalidate = "cache.invalidate"
	SpanCacheRefresh    = "cache.refresh"

	// ========================================================================
	// Storage backend spans
	// ========================================================================
	SpanStoreRead  = "store.read"
	SpanStoreWrite = "store.write"
	SpanStoreCAS   = "store.cas"

	// ========================================================================
	// Exchange spans
	// ========================================================================
	SpanExchangeNotify    = "exchange.notify"
	SpanExchangeSubscribe = "exchange.subscribe"
	SpanExchangeDeliver   = "exchange.deliver"
)

// ClientIP returns an attribute for client IP address
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ClientAddr returns an attribute for full client address
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// Operation returns an attribute for a generic operation name
func Operation(op string) attribute.KeyValue {
	return attribute.String(AttrOperation, op)
}

// Path returns an attribute for an entry path
func Path(path string) attribute.KeyValue {
	return attribute.String(AttrPath, path)
}

// EntryType returns an attribute for an entry's type
func EntryType(t string) attribute.KeyValue {
	return attribute.String(AttrEntryType, t)
}

// Version returns an attribute for an entry's storage CAS version
func Version(v uint64) attribute.KeyValue {
	return attribute.Int64(AttrVersion, int64(v))
}

// Size returns an attribute for a value size
func Size(size int) attribute.KeyValue {
	return attribute.Int(AttrSize, size)
}

// Children returns an attribute for a child entry count
func Children(n int) attribute.KeyValue {
	return attribute.Int(AttrChildren, n)
}

// Status returns an attribute for an operation status code
func Status(status int) attribute.KeyValue {
	return attribute.Int(AttrStatus, status)
}

// StatusMsg returns an attribute for a human-readable status message
func StatusMsg(msg string) attribute.KeyValue {
	return attribute.String(AttrStatusMsg, msg)
}

// SessionID returns an attribute for a session identifier
func SessionID(id string) attribute.KeyValue {
	return attribute.String(AttrSessionID, id)
}

// OwnerID returns an attribute for an owner identifier
func OwnerID(id string) attribute.KeyValue {
	return attribute.String(AttrOwnerID, id)
}

// InGracePeriod returns an attribute for whether a session is in its grace period
func InGracePeriod(inGrace bool) attribute.KeyValue {
	return attribute.Bool(AttrInGrace, inGrace)
}

// LockKind returns an attribute for a lock kind (read, write)
func LockKind(kind string) attribute.KeyValue {
	return attribute.String(AttrLockKind, kind)
}

// LockOwner returns an attribute for a lock owner
func LockOwner(owner string) attribute.KeyValue {
	return attribute.String(AttrLockOwner, owner)
}

// WaitDurationMs returns an attribute for time spent waiting on a lock
func WaitDurationMs(ms float64) attribute.KeyValue {
	return attribute.Float64(AttrWaitDuration, ms)
}

// QueueDepth returns an attribute for the number of queued waiters
func QueueDepth(n int) attribute.KeyValue {
	return attribute.Int(AttrQueueDepth, n)
}

// StoreType returns an attribute for the storage backend type
func StoreType(t string) attribute.KeyValue {
	return attribute.String(AttrStoreType, t)
}

// Attempt returns an attribute for a CAS retry attempt number
func Attempt(n int) attribute.KeyValue {
	return attribute.Int(AttrAttempt, n)
}

// MaxRetries returns an attribute for the maximum CAS retry attempts
func MaxRetries(n int) attribute.KeyValue {
	return attribute.Int(AttrMaxRetries, n)
}

// CacheHit returns an attribute for cache hit indicator
func CacheHit(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheHit, hit)
}

// CacheState returns an attribute for cache state
func CacheState(state string) attribute.KeyValue {
	return attribute.String(AttrCacheState, state)
}

// CacheSize returns an attribute for current cache size
func CacheSize(size int) attribute.KeyValue {
	return attribute.Int(AttrCacheSize, size)
}

// ExchangeTransport returns an attribute for the exchange transport kind
func ExchangeTransport(transport string) attribute.KeyValue {
	return attribute.String(AttrExchangeTransport, transport)
}

// PeerAddress returns an attribute for a remote exchange peer address
func PeerAddress(addr string) attribute.KeyValue {
	return attribute.String(AttrPeerAddress, addr)
}

// NotifyKind returns an attribute for a notification kind
func NotifyKind(kind string) attribute.KeyValue {
	return attribute.String(AttrNotifyKind, kind)
}

// StartSessionSpan starts a span for a session lifecycle operation.
func StartSessionSpan(ctx context.Context, spanName, sessionID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{SessionID(sessionID)}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, spanName, trace.WithAttributes(allAttrs...))
}

// StartEntrySpan starts a span for an entry operation.
func StartEntrySpan(ctx context.Context, spanName, path string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{Path(path)}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, spanName, trace.WithAttributes(allAttrs...))
}

// StartLockSpan starts a span for a lock manager operation.
func StartLockSpan(ctx context.Context, spanName, path, kind, owner string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{Path(path), LockKind(kind), LockOwner(owner)}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, spanName, trace.WithAttributes(allAttrs...))
}

// StartCacheSpan starts a span for a cache operation.
func StartCacheSpan(ctx context.Context, spanName, path string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{Path(path)}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, spanName, trace.WithAttributes(allAttrs...))
}

// StartStoreSpan starts a span for a storage backend operation.
func StartStoreSpan(ctx context.Context, spanName, storeType string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{StoreType(storeType)}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, spanName, trace.WithAttributes(allAttrs...))
}

// StartExchangeSpan starts a span for an exchange notification operation.
func StartExchangeSpan(ctx context.Context, spanName, transport string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{ExchangeTransport(transport)}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, spanName, trace.WithAttributes(allAttrs...))
}
