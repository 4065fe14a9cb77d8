package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"groceryapp/internal/metrics"
	"groceryapp/internal/util"
	"groceryapp/pkg/domain"
	"groceryapp/pkg/store"
)

const defaultWriteTimeout = 5 * time.Second

// Entry describes one auditable action. OldValue, NewValue and Metadata are
// snapshotted and redacted when recorded.
type Entry struct {
	Action     domain.AuditAction
	EntityType string
	EntityID   string
	UserID     string
	OldValue   any
	NewValue   any
	Metadata   map[string]any
}

// Recorder persists audit entries off the request path. Write failures are
// logged and never reach the caller.
type Recorder struct {
	store   store.AuditStore
	alerter *DenialAlerter
	metrics *metrics.Metrics
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// Option customizes a Recorder.
type Option func(*Recorder)

// WithAlerter counts ACCESS_DENIED entries against a threshold.
func WithAlerter(a *DenialAlerter) Option {
	return func(r *Recorder) { r.alerter = a }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithWriteTimeout bounds each background write.
func WithWriteTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRecorder constructs a Recorder.
func NewRecorder(s store.AuditStore, opts ...Option) *Recorder {
	r := &Recorder{
		store:   s,
		logger:  slog.Default(),
		timeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Record captures request metadata from ctx and persists the entry on a
// background goroutine. It never blocks on the store and never fails.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if r == nil || r.store == nil {
		return
	}
	entry := buildLog(ctx, e)

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		r.metrics.AuditWrite("dropped")
		r.logger.Warn("audit entry dropped after shutdown", "action", entry.Action, "entity_type", entry.EntityType)
		return
	}
	r.wg.Add(1)
	r.mu.RUnlock()

	// The write outlives the request; keep values such as the logger but
	// drop its cancellation.
	bg := context.WithoutCancel(ctx)
	go func() {
		defer r.wg.Done()
		r.persist(bg, entry)
	}()
}

func (r *Recorder) persist(ctx context.Context, entry domain.AuditLog) {
	writeCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	logger := util.LoggerFromContext(ctx)

	if err := r.store.AppendAuditLog(writeCtx, entry); err != nil {
		r.metrics.AuditWrite("error")
		logger.Error("failed to save audit log", "action", entry.Action, "entity_type", entry.EntityType, "err", err)
	} else {
		r.metrics.AuditWrite("ok")
	}

	if entry.Action != domain.AuditAccessDenied || r.alerter == nil {
		return
	}
	ip := ""
	if entry.IPAddress != nil {
		ip = *entry.IPAddress
	}
	res, err := r.alerter.Observe(writeCtx, entry.UserID, ip)
	if err != nil {
		logger.Warn("denial alerter unavailable", "err", err)
		return
	}
	if res.Triggered {
		r.metrics.DenialAlert()
		logger.Warn("access denial threshold reached",
			"user_id", entry.UserID,
			"ip", ip,
			"count", res.Count,
			"window", res.Window.String(),
		)
	}
}

// Close stops accepting entries and waits for in-flight writes until ctx is
// done.
func (r *Recorder) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func buildLog(ctx context.Context, e Entry) domain.AuditLog {
	entry := domain.AuditLog{
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   optional(e.EntityID),
		UserID:     e.UserID,
		OldValue:   Snapshot(e.OldValue),
		NewValue:   Snapshot(e.NewValue),
		Metadata:   Snapshot(e.Metadata),
		Timestamp:  time.Now().UTC(),
	}
	entry.RequestID = optional(util.RequestIDFromContext(ctx))
	if info, ok := util.ClientInfoFromContext(ctx); ok {
		entry.IPAddress = optional(info.IP)
		entry.UserAgent = optional(info.UserAgent)
	}
	return entry
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
