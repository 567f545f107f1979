// Package audit provides the append-only security event journal. A journal
// write never fails the originating request: the security decision has
// already been made by the time an event is recorded.
package audit

import (
	"context"
	"time"

	"github.com/fx2y/treksistem-platform-sub001/internal/ids"
	"github.com/fx2y/treksistem-platform-sub001/internal/obs"
)

// Store persists events.
type Store interface {
	Append(ctx context.Context, event Event) error
	Recent(ctx context.Context, filter Filter, limit int) ([]Event, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Journal records security events.
type Journal struct {
	store Store
	now   func() time.Time
}

// Option configures a Journal.
type Option func(*Journal)

// WithClock overrides the time source (tests).
func WithClock(fn func() time.Time) Option {
	return func(j *Journal) {
		if fn != nil {
			j.now = fn
		}
	}
}

// NewJournal constructs a Journal.
func NewJournal(store Store, opts ...Option) *Journal {
	j := &Journal{store: store, now: time.Now}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Record appends an event. It has no error return on purpose: a failed write
// is logged and counted, and the response already determined by the security
// checks is not changed.
func (j *Journal) Record(ctx context.Context, event Event) {
	if !event.Type.Valid() {
		event.Detail = map[string]any{"original_type": string(event.Type)}
		event.Type = EventSuspicious
	}
	if !event.Severity.Valid() {
		event.Severity = SeverityInfo
	}
	if event.ID == "" {
		event.ID = ids.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = j.now().UTC()
	}

	if err := j.store.Append(ctx, event); err != nil {
		obs.IncAuditWriteFailure()
		obs.LogEvent("error", "security event dropped", map[string]any{
			"event_type": string(event.Type),
			"severity":   string(event.Severity),
			"error":      err.Error(),
		})
	}
}

// RecentEvents is a read-only projection over recent events for operational
// dashboards.
func (j *Journal) RecentEvents(ctx context.Context, filter Filter, limit int) ([]Event, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return j.store.Recent(ctx, filter, limit)
}

// Cleanup removes events older than the retention period and returns the
// number removed. Operator-triggered; there is no internal scheduler.
func (j *Journal) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := j.now().UTC().Add(-retention)
	return j.store.DeleteBefore(ctx, cutoff)
}
