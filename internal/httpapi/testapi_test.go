package httpapi

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fx2y/treksistem-platform-sub001/internal/audit"
	"github.com/fx2y/treksistem-platform-sub001/internal/auth"
	"github.com/fx2y/treksistem-platform-sub001/internal/csrf"
	"github.com/fx2y/treksistem-platform-sub001/internal/monitor"
	"github.com/fx2y/treksistem-platform-sub001/internal/ratelimit"
)

const testSecret = "ssssssssssssssssssssssssssssssss"

type memLedger struct {
	mu      sync.Mutex
	entries map[string]auth.RevocationEntry
	failing bool
}

func newMemLedger() *memLedger {
	return &memLedger{entries: make(map[string]auth.RevocationEntry)}
}

func (m *memLedger) Add(_ context.Context, entry auth.RevocationEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errors.New("ledger down")
	}
	if _, ok := m.entries[entry.TokenID]; !ok {
		m.entries[entry.TokenID] = entry
	}
	return nil
}

func (m *memLedger) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return false, errors.New("ledger down")
	}
	_, ok := m.entries[tokenID]
	return ok, nil
}

func (m *memLedger) CleanupExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
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
	byID  map[string]auth.Identity
	clock func() time.Time
}

func newMemIdentities() *memIdentities {
	return &memIdentities{byID: make(map[string]auth.Identity), clock: time.Now}
}

func (m *memIdentities) Upsert(_ context.Context, identity auth.Identity) (auth.Identity, error) {
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

func (m *memIdentities) Find(_ context.Context, subjectID string) (auth.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.byID[subjectID]
	if !ok {
		return auth.Identity{}, auth.ErrNotFound
	}
	return identity, nil
}

type memGrants struct {
	mu     sync.Mutex
	grants map[string][]auth.RoleGrant
}

func newMemGrants() *memGrants {
	return &memGrants{grants: make(map[string][]auth.RoleGrant)}
}

func (m *memGrants) GrantsFor(_ context.Context, subjectID string) ([]auth.RoleGrant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]auth.RoleGrant, len(m.grants[subjectID]))
	copy(out, m.grants[subjectID])
	return out, nil
}

func (m *memGrants) Grant(_ context.Context, subjectID string, grant auth.RoleGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.grants[subjectID] {
		if g.Role == grant.Role && g.ContextID == grant.ContextID {
			return nil
		}
	}
	if grant.GrantedAt.IsZero() {
		grant.GrantedAt = time.Now().UTC()
	}
	m.grants[subjectID] = append(m.grants[subjectID], grant)
	return nil
}

func (m *memGrants) RevokeGrant(_ context.Context, subjectID string, role auth.Role, contextID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.grants[subjectID][:0]
	for _, g := range m.grants[subjectID] {
		if g.Role == role && g.ContextID == contextID {
			continue
		}
		kept = append(kept, g)
	}
	m.grants[subjectID] = kept
	return nil
}

type memEvents struct {
	mu     sync.Mutex
	events []audit.Event
}

func (m *memEvents) Append(_ context.Context, event audit.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *memEvents) Recent(_ context.Context, filter audit.Filter, limit int) ([]audit.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []audit.Event
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

func (m *memEvents) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.events[:0]
	var n int64
	for _, e := range m.events {
		if e.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	m.events = kept
	return n, nil
}

func (m *memEvents) byType(t audit.EventType) []audit.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []audit.Event
	for _, e := range m.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type memCounters struct {
	mu      sync.Mutex
	counts  map[string]int64
	failing bool
}

func newMemCounters() *memCounters {
	return &memCounters{counts: make(map[string]int64)}
}

func (m *memCounters) Increment(_ context.Context, key string, windowStart time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return 0, errors.New("store down")
	}
	k := key + "@" + windowStart.Format(time.RFC3339Nano)
	m.counts[k]++
	return m.counts[k], nil
}

type fakeVerifier struct {
	identity auth.ExternalIdentity
	err      error
}

func (f *fakeVerifier) Verify(context.Context, string) (auth.ExternalIdentity, error) {
	if f.err != nil {
		return auth.ExternalIdentity{}, f.err
	}
	return f.identity, nil
}

// testEnv bundles the API with the fakes behind it so tests can arrange
// state directly.
type testEnv struct {
	api        *API
	ledger     *memLedger
	identities *memIdentities
	grants     *memGrants
	events     *memEvents
	counters   *memCounters
	verifier   *fakeVerifier
	sessions   *auth.Service
	csrf       *csrf.Guard
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvLimits(t, 100, 10)
}

func newTestEnvLimits(t *testing.T, maxRequests, maxAuthRequests int64) *testEnv {
	t.Helper()

	codec, err := auth.NewCodec([]byte(testSecret))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	env := &testEnv{
		ledger:     newMemLedger(),
		identities: newMemIdentities(),
		grants:     newMemGrants(),
		events:     &memEvents{},
		counters:   newMemCounters(),
		verifier:   &fakeVerifier{},
	}

	guard, err := auth.NewGuard(codec, env.ledger)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	env.sessions, err = auth.NewService(codec, env.ledger, env.identities, env.grants)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	env.csrf, err = csrf.New([]byte(testSecret))
	if err != nil {
		t.Fatalf("csrf.New: %v", err)
	}
	limiter, err := ratelimit.New(env.counters, ratelimit.Config{
		Window:  time.Minute,
		Max:     maxRequests,
		AuthMax: maxAuthRequests,
	})
	if err != nil {
		t.Fatalf("ratelimit.New: %v", err)
	}
	journal := audit.NewJournal(env.events)

	env.api = New(Deps{
		Guard:    guard,
		Codec:    codec,
		Sessions: env.sessions,
		Grants:   env.grants,
		Verifier: env.verifier,
		CSRF:     env.csrf,
		Limiter:  limiter,
		Journal:  journal,
		Monitor:  monitor.New(nil, journal, nil),
		Version:  "test",
	})
	return env
}

// login seeds an identity with the given grants and returns a valid session
// token for it.
func (env *testEnv) login(t *testing.T, subjectID, email string, grants ...auth.RoleGrant) string {
	t.Helper()
	for _, g := range grants {
		if err := env.grants.Grant(context.Background(), subjectID, g); err != nil {
			t.Fatalf("seed grant: %v", err)
		}
	}
	session, err := env.sessions.Authenticate(context.Background(), auth.ExternalIdentity{
		SubjectID:     subjectID,
		Email:         email,
		EmailVerified: true,
	}, auth.DeviceContext{})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return session.Token
}
