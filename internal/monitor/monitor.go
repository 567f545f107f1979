// Package monitor aggregates health probes and operator-triggered retention
// sweeps for the auth core. Nothing here runs on a timer: the execution model
// has no persistent scheduler, so cleanup is an explicit admin call.
package monitor

import (
	"context"
	"database/sql"
	"time"

	"github.com/fx2y/treksistem-platform-sub001/internal/audit"
)

// Status is the aggregate health of the subsystem.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check is one probe result.
type Check struct {
	Name      string `json:"name"`
	Status    Status `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Detail    string `json:"detail,omitempty"`
}

// Report aggregates probe results; the overall status is the worst check.
type Report struct {
	Status    Status    `json:"status"`
	Checks    []Check   `json:"checks"`
	CheckedAt time.Time `json:"checked_at"`
}

// Sweeper is one retention sweep run during cleanup.
type Sweeper struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

// Service aggregates the DB latency probe, the event journal projection and
// the cleanup sweeps.
type Service struct {
	db       *sql.DB
	journal  *audit.Journal
	sweepers []Sweeper

	now           func() time.Time
	degradedAfter time.Duration
	probeTimeout  time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source (tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithDegradedThreshold sets the DB latency above which the subsystem
// reports degraded instead of healthy.
func WithDegradedThreshold(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.degradedAfter = d
		}
	}
}

// New constructs a Service.
func New(db *sql.DB, journal *audit.Journal, sweepers []Sweeper, opts ...Option) *Service {
	s := &Service{
		db:            db,
		journal:       journal,
		sweepers:      sweepers,
		now:           time.Now,
		degradedAfter: 250 * time.Millisecond,
		probeTimeout:  2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Health probes the backing store and reports the aggregate status.
func (s *Service) Health(ctx context.Context) Report {
	report := Report{Status: StatusHealthy, CheckedAt: s.now().UTC()}

	dbCheck := Check{Name: "database", Status: StatusHealthy}
	if s.db == nil {
		dbCheck.Status = StatusUnhealthy
		dbCheck.Detail = "no database configured"
	} else {
		probeCtx, cancel := context.WithTimeout(ctx, s.probeTimeout)
		defer cancel()
		start := time.Now()
		err := s.db.PingContext(probeCtx)
		latency := time.Since(start)
		dbCheck.LatencyMS = latency.Milliseconds()
		switch {
		case err != nil:
			dbCheck.Status = StatusUnhealthy
			dbCheck.Detail = "ping failed"
		case latency > s.degradedAfter:
			dbCheck.Status = StatusDegraded
			dbCheck.Detail = "slow ping"
		}
	}
	report.Checks = append(report.Checks, dbCheck)

	journalCheck := Check{Name: "journal", Status: StatusHealthy}
	if s.journal == nil {
		journalCheck.Status = StatusUnhealthy
		journalCheck.Detail = "journal not wired"
	}
	report.Checks = append(report.Checks, journalCheck)

	for _, c := range report.Checks {
		report.Status = worse(report.Status, c.Status)
	}
	return report
}

// RecentMetrics is a read-only projection over recent security events.
func (s *Service) RecentMetrics(ctx context.Context, filter audit.Filter, limit int) ([]audit.Event, error) {
	return s.journal.RecentEvents(ctx, filter, limit)
}

// Cleanup runs every registered retention sweep and returns the per-sweep
// removal counts. A failing sweep does not stop the others.
func (s *Service) Cleanup(ctx context.Context) (map[string]int64, error) {
	results := make(map[string]int64, len(s.sweepers))
	var firstErr error
	for _, sw := range s.sweepers {
		n, err := sw.Run(ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results[sw.Name] = n
	}
	return results, firstErr
}

func worse(a, b Status) Status {
	rank := func(s Status) int {
		switch s {
		case StatusHealthy:
			return 0
		case StatusDegraded:
			return 1
		default:
			return 2
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
