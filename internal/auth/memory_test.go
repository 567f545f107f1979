package auth

import (
	"context"
	"errors"
	"sync"
	"time"
)

// In-memory fakes for the store interfaces. Production uses the Postgres
// implementations in internal/store/pg; these exist only to exercise the
// service logic without a database.

type memLedger struct {
	mu      sync.Mutex
	entries map[string]RevocationEntry
	failing bool
}

func newMemLedger() *memLedger {
	return &memLedger{entries: map[string]RevocationEntry{}}
}

func (m *memLedger) Add(_ context.Context, entry RevocationEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errors.New("ledger store down")
	}
	if _, ok := m.entries[entry.TokenID]; ok {
		return nil
	}
	m.entries[entry.TokenID] = entry
	return nil
}

func (m *memLedger) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return false, errors.New("ledger store down")
	}
	_, ok := m.entries[tokenID]
	return ok, nil
}

func (m *memLedger) CleanupExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return 0, errors.New("ledger store down")
	}
	var n int64
	for id, e := range m.entries {
		if !e.ExpiresAt.After(now) {
			delete(m.entries, id)
			n++
		}
	}
	return n, nil
}

type memIdentities struct {
	mu    sync.Mutex
	byID  map[string]Identity
	clock func() time.Time
}

func newMemIdentities() *memIdentities {
	return &memIdentities{byID: map[string]Identity{}, clock: time.Now}
}

func (m *memIdentities) Upsert(_ context.Context, identity Identity) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock().UTC()
	existing, ok := m.byID[identity.SubjectID]
	if ok {
		identity.CreatedAt = existing.CreatedAt
	} else {
		identity.CreatedAt = now
	}
	identity.UpdatedAt = now
	m.byID[identity.SubjectID] = identity
	return identity, nil
}

func (m *memIdentities) Find(_ context.Context, subjectID string) (Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.byID[subjectID]
	if !ok {
		return Identity{}, ErrNotFound
	}
	return identity, nil
}

type memGrants struct {
	mu        sync.Mutex
	bySubject map[string][]RoleGrant
}

func newMemGrants() *memGrants {
	return &memGrants{bySubject: map[string][]RoleGrant{}}
}

func (m *memGrants) GrantsFor(_ context.Context, subjectID string) ([]RoleGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	grants := m.bySubject[subjectID]
	out := make([]RoleGrant, len(grants))
	copy(out, grants)
	return out, nil
}

func (m *memGrants) Grant(_ context.Context, subjectID string, grant RoleGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.bySubject[subjectID] {
		if g.Role == grant.Role && g.ContextID == grant.ContextID {
			return nil
		}
	}
	m.bySubject[subjectID] = append(m.bySubject[subjectID], grant)
	return nil
}

func (m *memGrants) RevokeGrant(_ context.Context, subjectID string, role Role, contextID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	grants := m.bySubject[subjectID]
	out := grants[:0]
	for _, g := range grants {
		if g.Role == role && g.ContextID == contextID {
			continue
		}
		out = append(out, g)
	}
	m.bySubject[subjectID] = out
	return nil
}
