package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/marmos91/coordcore/pkg/coorderr"
)

// Owner is a per-process holder of the current session: it lazily creates
// one on first access, renews its lease on a background timer, and ends it
// on Dispose.
type Owner struct {
	provider      *Provider
	manager       *Manager
	leaseInterval time.Duration
	logger        *slog.Logger

	once    sync.Once
	id      ID
	initErr error

	mu       sync.Mutex
	disposed bool
	stop     chan struct{}
	stopped  chan struct{}
}

// NewOwner creates an Owner. leaseInterval is the duration a session stays
// alive without renewal; the background renewer fires at half that
// interval.
func NewOwner(provider *Provider, manager *Manager, leaseInterval time.Duration, logger *slog.Logger) *Owner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Owner{
		provider:      provider,
		manager:       manager,
		leaseInterval: leaseInterval,
		logger:        logger,
	}
}

// GetSession returns the owned session id, creating it on first call.
// Subsequent calls return the same id until Dispose.
func (o *Owner) GetSession(ctx context.Context) (ID, error) {
	o.once.Do(func() {
		o.id = o.provider.New()
		leaseEnd := time.Now().Add(o.leaseInterval)
		ok, err := o.manager.TryBegin(ctx, o.id, leaseEnd)
		if err != nil {
			o.initErr = err
			return
		}
		if !ok {
			o.initErr = coorderr.NewInvariant(o.id.String(), "session id collision")
			return
		}
		o.startRenewer()
	})
	if o.initErr != nil {
		return None, o.initErr
	}
	return o.id, nil
}

func (o *Owner) startRenewer() {
	o.mu.Lock()
	o.stop = make(chan struct{})
	o.stopped = make(chan struct{})
	stop, stopped := o.stop, o.stopped
	o.mu.Unlock()

	go o.renewLoop(stop, stopped)
}

func (o *Owner) renewLoop(stop, stopped chan struct{}) {
	defer close(stopped)

	interval := o.leaseInterval / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			leaseEnd := time.Now().Add(o.leaseInterval)
			if err := o.manager.Update(context.Background(), o.id, leaseEnd); err != nil {
				o.logger.Error("session lease renewal failed", "session", o.id.String(), "error", err)
			}
		}
	}
}

// Dispose ends the owned session and stops the renewer. Safe to call more
// than once.
func (o *Owner) Dispose(ctx context.Context) error {
	o.mu.Lock()
	if o.disposed {
		o.mu.Unlock()
		return nil
	}
	o.disposed = true
	stop, stopped := o.stop, o.stopped
	o.mu.Unlock()

	if stop != nil {
		close(stop)
		<-stopped
	}

	if o.id.IsNone() {
		return nil
	}
	return o.manager.End(ctx, o.id)
}
