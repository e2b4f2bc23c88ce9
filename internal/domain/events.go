package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// anomalyEventPayload is the structured detail attached to anomaly events:
// the result plus the full snapshot that produced it.
type anomalyEventPayload struct {
	UserID    string                  `json:"user_id"`
	SessionID string                  `json:"session_id"`
	Result    AnomalyResult           `json:"result"`
	Snapshot  SessionBehaviorSnapshot `json:"snapshot"`
}

// NewBehavioralAnomalyEvent creates the outbox draft for an anomalous scoring result.
func NewBehavioralAnomalyEvent(userID, sessionID string, result AnomalyResult, snapshot SessionBehaviorSnapshot) OutboxDraft {
	payload, _ := json.Marshal(anomalyEventPayload{
		UserID:    userID,
		SessionID: sessionID,
		Result:    result,
		Snapshot:  snapshot,
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateSession,
		AggregateID:   sessionID,
		EventType:     EventBehavioralAnomaly,
		PartitionKey:  userID,
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewBaselineUpdatedEvent creates the outbox draft for a supervised baseline update.
func NewBaselineUpdatedEvent(userID string, baseline BehaviorBaseline) OutboxDraft {
	payload, _ := json.Marshal(baseline)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateUser,
		AggregateID:   userID,
		EventType:     EventBaselineUpdated,
		PartitionKey:  userID,
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewSessionLifecycleEvent creates a session start/end event.
func NewSessionLifecycleEvent(userID, sessionID string, started bool) OutboxDraft {
	evtType := EventSessionStarted
	if !started {
		evtType = EventSessionEnded
	}
	payload, _ := json.Marshal(map[string]string{
		"user_id":    userID,
		"session_id": sessionID,
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateSession,
		AggregateID:   sessionID,
		EventType:     evtType,
		PartitionKey:  userID,
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}

// NewVerificationRequestedEvent creates the event emitted when a scoring result
// crosses the additional-verification threshold.
func NewVerificationRequestedEvent(userID, sessionID string, score int) OutboxDraft {
	payload, _ := json.Marshal(map[string]interface{}{
		"user_id":       userID,
		"session_id":    sessionID,
		"anomaly_score": score,
	})
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: AggregateUser,
		AggregateID:   userID,
		EventType:     EventVerificationRequested,
		PartitionKey:  userID,
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    time.Now(),
	}
}
