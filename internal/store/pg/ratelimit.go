package pg

import (
	"context"
	"time"

	"github.com/fx2y/treksistem-platform-sub001/internal/ratelimit"
)

var _ ratelimit.Store = (*Store)(nil)

// Increment bumps the counter for (key, window) and returns the new count.
// The upsert keeps concurrent requests on separate connections from losing
// increments.
func (s *Store) Increment(ctx context.Context, key string, windowStart time.Time) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		insert into rate_windows (key, window_start, count)
		values ($1, $2, 1)
		on conflict (key, window_start) do update
		set count = rate_windows.count + 1
		returning count
	`, key, windowStart).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// CleanupWindows removes counters for windows that ended before the cutoff.
func (s *Store) CleanupWindows(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		delete from rate_windows where window_start < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
