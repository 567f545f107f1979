package pg

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fx2y/treksistem-platform-sub001/internal/audit"
)

var _ audit.Store = (*Store)(nil)

// Append persists a security event. Detail is stored as jsonb.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	detail, err := json.Marshal(event.Detail)
	if err != nil {
		return fmt.Errorf("encode event detail: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into security_events (id, event_type, severity, subject_id, email, client_ip, user_agent, endpoint, detail, created_at)
		values ($1, $2, $3, nullif($4, ''), nullif($5, ''), nullif($6, ''), nullif($7, ''), nullif($8, ''), $9, $10)
	`, event.ID, string(event.Type), string(event.Severity), event.SubjectID,
		event.Email, event.ClientIP, event.UserAgent, event.Endpoint, detail, event.CreatedAt)
	return err
}

// Recent returns the newest events matching the filter, newest first.
func (s *Store) Recent(ctx context.Context, filter audit.Filter, limit int) ([]audit.Event, error) {
	query := strings.Builder{}
	query.WriteString(`
		select id, event_type, severity, coalesce(subject_id, ''), coalesce(email, ''),
		       coalesce(client_ip, ''), coalesce(user_agent, ''), coalesce(endpoint, ''), detail, created_at
		from security_events
	`)

	var (
		conds []string
		args  []any
	)
	if filter.Type != "" {
		args = append(args, string(filter.Type))
		conds = append(conds, fmt.Sprintf("event_type = $%d", len(args)))
	}
	if filter.Severity != "" {
		args = append(args, string(filter.Severity))
		conds = append(conds, fmt.Sprintf("severity = $%d", len(args)))
	}
	if filter.SubjectID != "" {
		args = append(args, filter.SubjectID)
		conds = append(conds, fmt.Sprintf("subject_id = $%d", len(args)))
	}
	if len(conds) > 0 {
		query.WriteString(" where " + strings.Join(conds, " and "))
	}
	args = append(args, limit)
	query.WriteString(fmt.Sprintf(" order by created_at desc limit $%d", len(args)))

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			ev    audit.Event
			raw   []byte
			etype string
			sev   string
		)
		if err := rows.Scan(&ev.ID, &etype, &sev, &ev.SubjectID, &ev.Email,
			&ev.ClientIP, &ev.UserAgent, &ev.Endpoint, &raw, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Type = audit.EventType(etype)
		ev.Severity = audit.Severity(sev)
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &ev.Detail); err != nil {
				return nil, fmt.Errorf("decode event detail: %w", err)
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// DeleteBefore removes events older than the cutoff.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		delete from security_events where created_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
