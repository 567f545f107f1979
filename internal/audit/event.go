package audit

import (
	"time"
)

// EventType is the closed set of security event types. Adding a variant is a
// compile-time visible change everywhere events are consulted.
type EventType string

const (
	EventAuthSuccess  EventType = "auth.success"
	EventAuthFailure  EventType = "auth.failure"
	EventTokenRevoked EventType = "token.revoked"
	EventRateLimitHit EventType = "rate_limit.hit"
	EventCSRFRejected EventType = "csrf.rejected"
	EventAccessDenied EventType = "access.denied"
	EventSuspicious   EventType = "suspicious.activity"
	EventCleanupRun   EventType = "cleanup.run"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventAuthSuccess, EventAuthFailure, EventTokenRevoked, EventRateLimitHit,
		EventCSRFRejected, EventAccessDenied, EventSuspicious, EventCleanupRun:
		return true
	}
	return false
}

// Severity grades an event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// Event is one append-only security event. Events are never updated or
// deleted except by retention cleanup.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Severity  Severity       `json:"severity"`
	SubjectID string         `json:"subject_id,omitempty"`
	Email     string         `json:"email,omitempty"`
	ClientIP  string         `json:"client_ip,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	Endpoint  string         `json:"endpoint,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Filter narrows RecentEvents projections.
type Filter struct {
	Type      EventType
	Severity  Severity
	SubjectID string
}
