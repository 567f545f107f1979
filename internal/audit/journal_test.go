package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memStore struct {
	mu      sync.Mutex
	events  []Event
	failing bool
}

func (m *memStore) Append(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errors.New("event store down")
	}
	m.events = append(m.events, event)
	return nil
}

func (m *memStore) Recent(_ context.Context, filter Filter, limit int) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		e := m.events[i]
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if filter.Severity != "" && e.Severity != filter.Severity {
			continue
		}
		if filter.SubjectID != "" && e.SubjectID != filter.SubjectID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *memStore) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.events[:0]
	var removed int64
	for _, e := range m.events {
		if e.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	m.events = kept
	return removed, nil
}

func TestRecordFillsDefaults(t *testing.T) {
	store := &memStore{}
	now := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	journal := NewJournal(store, WithClock(func() time.Time { return now }))

	journal.Record(context.Background(), Event{
		Type:     EventAuthFailure,
		Severity: SeverityWarning,
		ClientIP: "203.0.113.9",
	})

	if len(store.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(store.events))
	}
	e := store.events[0]
	if e.ID == "" {
		t.Fatal("expected generated id")
	}
	if !e.CreatedAt.Equal(now) {
		t.Fatalf("unexpected timestamp: %v", e.CreatedAt)
	}
}

func TestRecordNeverFailsTheRequest(t *testing.T) {
	store := &memStore{failing: true}
	journal := NewJournal(store)

	// Must not panic or propagate the store failure.
	journal.Record(context.Background(), Event{Type: EventRateLimitHit, Severity: SeverityWarning})
}

func TestRecordCoercesUnknownType(t *testing.T) {
	store := &memStore{}
	journal := NewJournal(store)

	journal.Record(context.Background(), Event{Type: EventType("made.up"), Severity: Severity("loud")})

	e := store.events[0]
	if e.Type != EventSuspicious {
		t.Fatalf("unknown type should be coerced to suspicious, got %s", e.Type)
	}
	if e.Severity != SeverityInfo {
		t.Fatalf("unknown severity should be coerced to info, got %s", e.Severity)
	}
	if e.Detail["original_type"] != "made.up" {
		t.Fatalf("original type should be preserved in detail: %v", e.Detail)
	}
}

func TestRecentEventsFilterAndLimit(t *testing.T) {
	store := &memStore{}
	journal := NewJournal(store)

	for i := 0; i < 5; i++ {
		journal.Record(context.Background(), Event{Type: EventAuthFailure, Severity: SeverityWarning, SubjectID: "u1"})
	}
	journal.Record(context.Background(), Event{Type: EventAuthSuccess, Severity: SeverityInfo, SubjectID: "u1"})

	events, err := journal.RecentEvents(context.Background(), Filter{Type: EventAuthFailure}, 3)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for _, e := range events {
		if e.Type != EventAuthFailure {
			t.Fatalf("filter leaked type %s", e.Type)
		}
	}
}

func TestCleanupRespectsRetention(t *testing.T) {
	store := &memStore{}
	now := time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)
	journal := NewJournal(store, WithClock(func() time.Time { return now }))

	store.events = []Event{
		{ID: "old", Type: EventAuthFailure, Severity: SeverityWarning, CreatedAt: now.Add(-48 * time.Hour)},
		{ID: "new", Type: EventAuthFailure, Severity: SeverityWarning, CreatedAt: now.Add(-time.Hour)},
	}

	removed, err := journal.Cleanup(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if len(store.events) != 1 || store.events[0].ID != "new" {
		t.Fatalf("wrong events survived: %+v", store.events)
	}
}
