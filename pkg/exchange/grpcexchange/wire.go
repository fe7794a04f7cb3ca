package grpcexchange

// wireNotification is the JSON message exchanged over the bidi stream.
// Kept to plain-old-data so the json codec needs no custom marshaling.
type wireNotification struct {
	Kind string `json:"kind"`
	Path string `json:"path"`
}

const (
	kindWriteLockReleased = "write_lock_released"
	kindReadLockReleased  = "read_lock_released"
)

const (
	serviceName = "coordcore.exchange.v1.Exchange"
	methodName  = "Stream"
	fullMethod  = "/" + serviceName + "/" + methodName
)
