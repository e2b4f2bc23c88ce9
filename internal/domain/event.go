package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates all domain event types.
type EventType string

const (
	EventBehavioralAnomaly     EventType = "security.behavior.anomaly"
	EventBaselineUpdated       EventType = "security.behavior.baseline_updated"
	EventSessionStarted        EventType = "security.session.started"
	EventSessionEnded          EventType = "security.session.ended"
	EventVerificationRequested EventType = "security.verification.requested"
)

// AggregateType enumerates the aggregate root types for outbox events.
type AggregateType string

const (
	AggregateUser    AggregateType = "user"
	AggregateSession AggregateType = "session"
)

// OutboxDraft is the payload written to the event_outbox table.
type OutboxDraft struct {
	EventID       uuid.UUID       `json:"eventId"`
	AggregateType AggregateType   `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     EventType       `json:"eventType"`
	PartitionKey  string          `json:"partitionKey"`
	Headers       json.RawMessage `json:"headers"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// SecurityEvent is a persisted row in security_events. Details holds the
// structured payload (score, deviation factors, snapshot) for anomaly events.
type SecurityEvent struct {
	ID        uuid.UUID       `json:"id"`
	UserID    string          `json:"user_id"`
	SessionID string          `json:"session_id"`
	Kind      EventType       `json:"kind"`
	Severity  Severity        `json:"severity"`
	Details   json.RawMessage `json:"details"`
	CreatedAt time.Time       `json:"created_at"`
}
