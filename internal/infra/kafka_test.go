package infra

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loanpilot/sentinel/internal/domain"
	"github.com/loanpilot/sentinel/internal/repository"
)

func TestEventTopic(t *testing.T) {
	assert.Equal(t, "sentinel.user.security.verification.requested",
		EventTopic(string(domain.AggregateUser), string(domain.EventVerificationRequested)))
	assert.Equal(t, "sentinel.session.security.behavior.anomaly",
		EventTopic(string(domain.AggregateSession), string(domain.EventBehavioralAnomaly)))
}

func TestKafkaProducer_DisabledIsNoop(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	p := NewKafkaProducer("", true, logger)
	require.NoError(t, p.Publish(context.Background(), "any", nil, []byte("x")))
	require.NoError(t, p.Close())

	p = NewKafkaProducer("localhost:9092", false, logger)
	require.NoError(t, p.Publish(context.Background(), "any", nil, []byte("x")))
	require.NoError(t, p.Close())
}

func TestEventEnvelope(t *testing.T) {
	draft := domain.NewVerificationRequestedEvent("user-1", "sess-1", 95)
	row := repository.OutboxRow{SeqID: 7, OutboxDraft: draft}

	var envelope struct {
		EventID   uuid.UUID `json:"event_id"`
		EventType string    `json:"event_type"`
		Payload   struct {
			UserID       string `json:"user_id"`
			SessionID    string `json:"session_id"`
			AnomalyScore int    `json:"anomaly_score"`
		} `json:"payload"`
		OccurredAt time.Time `json:"occurred_at"`
	}
	require.NoError(t, json.Unmarshal(EventEnvelope(row), &envelope))

	assert.Equal(t, draft.EventID, envelope.EventID)
	assert.Equal(t, string(domain.EventVerificationRequested), envelope.EventType)
	assert.Equal(t, "user-1", envelope.Payload.UserID)
	assert.Equal(t, "sess-1", envelope.Payload.SessionID)
	assert.Equal(t, 95, envelope.Payload.AnomalyScore)
}
