package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/loanpilot/sentinel/internal/domain"
	"github.com/loanpilot/sentinel/internal/guard"
	"github.com/loanpilot/sentinel/internal/policy"
	"github.com/loanpilot/sentinel/internal/repository"
	"github.com/loanpilot/sentinel/internal/telemetry"
)

// Notifier delivers user-facing warnings. Satisfied by infra.WSHub.
type Notifier interface {
	PublishToUser(userID string, event string, data interface{})
}

// BaselineCache is the read-through cache port. Satisfied by
// infra.BaselineCache; a nil implementation means no caching.
type BaselineCache interface {
	Get(ctx context.Context, userID string) *domain.BehaviorBaseline
	Set(ctx context.Context, baseline *domain.BehaviorBaseline)
	Invalidate(ctx context.Context, userID string)
}

// circuit breaker key for the best-effort event sink
const eventSinkKey = "security_events"

// BehaviorService owns session monitoring, anomaly scoring, escalation and
// baseline updates. Scoring never fails hard: a broken baseline fetch yields
// an analysis_error result, and event-log or notify failures are swallowed.
type BehaviorService struct {
	db        repository.DBTX
	baselines repository.BaselineRepository
	events    repository.SecurityEventRepository
	outbox    repository.OutboxRepository
	cache     BaselineCache
	breaker   *guard.CircuitBreaker
	notifier  Notifier
	registry  *telemetry.Registry
	logger    *slog.Logger
	interval  time.Duration
}

// NewBehaviorService wires the behavior analysis service.
func NewBehaviorService(
	db repository.DBTX,
	baselines repository.BaselineRepository,
	events repository.SecurityEventRepository,
	outbox repository.OutboxRepository,
	cache BaselineCache,
	breaker *guard.CircuitBreaker,
	notifier Notifier,
	registry *telemetry.Registry,
	logger *slog.Logger,
	interval time.Duration,
) *BehaviorService {
	return &BehaviorService{
		db:        db,
		baselines: baselines,
		events:    events,
		outbox:    outbox,
		cache:     cache,
		breaker:   breaker,
		notifier:  notifier,
		registry:  registry,
		logger:    logger,
		interval:  interval,
	}
}

// StartSession begins monitoring a session: computes the device fingerprint,
// starts the collector and its periodic scoring timer. Returns the fingerprint.
func (s *BehaviorService) StartSession(ctx context.Context, userID, sessionID string, device telemetry.DeviceInfo) (string, error) {
	if userID == "" || sessionID == "" {
		return "", domain.ErrValidation("userID and sessionID are required")
	}

	fingerprint := telemetry.Fingerprint(device)
	collector := telemetry.NewCollector(fingerprint, nil)

	monitor := telemetry.NewMonitor(userID, sessionID, collector, s.interval, func(tickCtx context.Context) {
		if _, err := s.scoreAndEscalate(tickCtx, userID, sessionID, collector); err != nil {
			s.logger.Error("periodic scoring failed", "session_id", sessionID, "error", err)
		}
	})

	// The monitor must outlive the request that starts it; periodic scoring
	// stops only at EndSession or registry shutdown.
	if !s.registry.Start(context.WithoutCancel(ctx), monitor) {
		return "", domain.ErrConflict("session is already being monitored")
	}

	s.emitOutbox(ctx, domain.NewSessionLifecycleEvent(userID, sessionID, true))
	s.logger.Info("session monitoring started", "user_id", userID, "session_id", sessionID)
	return fingerprint, nil
}

// Ingest feeds a batch of raw interaction events into the session's collector.
func (s *BehaviorService) Ingest(ctx context.Context, sessionID string, events []telemetry.InteractionEvent) error {
	monitor, ok := s.registry.Get(sessionID)
	if !ok {
		return domain.ErrSessionEnded(sessionID)
	}
	for _, ev := range events {
		monitor.Collector().Observe(ev)
	}
	return nil
}

// Snapshot returns the session's current derived behavior snapshot.
func (s *BehaviorService) Snapshot(ctx context.Context, sessionID string) (domain.SessionBehaviorSnapshot, error) {
	monitor, ok := s.registry.Get(sessionID)
	if !ok {
		return domain.SessionBehaviorSnapshot{}, domain.ErrSessionEnded(sessionID)
	}
	return monitor.Collector().Snapshot(), nil
}

// ScoreSession scores the session on demand and runs the escalation policy.
func (s *BehaviorService) ScoreSession(ctx context.Context, sessionID string) (domain.AnomalyResult, error) {
	monitor, ok := s.registry.Get(sessionID)
	if !ok {
		return domain.AnomalyResult{}, domain.ErrSessionEnded(sessionID)
	}
	return s.scoreAndEscalate(ctx, monitor.UserID, sessionID, monitor.Collector())
}

// EndSession stops monitoring and releases the session's state.
func (s *BehaviorService) EndSession(ctx context.Context, sessionID string) error {
	monitor, ok := s.registry.Get(sessionID)
	if !ok {
		return domain.ErrSessionEnded(sessionID)
	}
	s.registry.End(sessionID)
	s.emitOutbox(ctx, domain.NewSessionLifecycleEvent(monitor.UserID, sessionID, false))
	s.logger.Info("session monitoring ended", "user_id", monitor.UserID, "session_id", sessionID)
	return nil
}

// UpdateBaseline records the session's current behavior as the user's new
// normal, fully replacing any stored baseline. Idempotent for an unchanged
// session.
func (s *BehaviorService) UpdateBaseline(ctx context.Context, userID, sessionID string) (*domain.BehaviorBaseline, error) {
	monitor, ok := s.registry.Get(sessionID)
	if !ok {
		return nil, domain.ErrSessionEnded(sessionID)
	}
	if monitor.UserID != userID {
		return nil, domain.ErrForbidden("session belongs to another user")
	}

	snapshot := monitor.Collector().Snapshot()
	baseline := policy.BaselineFromSnapshot(userID, snapshot, telemetry.DevicePattern(snapshot.DeviceFingerprint))

	if err := s.baselines.Upsert(ctx, s.db, baseline); err != nil {
		return nil, domain.ErrInternal("store baseline", err)
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, userID)
	}

	s.logSecurityEvent(ctx, &domain.SecurityEvent{
		ID:        uuid.New(),
		UserID:    userID,
		SessionID: sessionID,
		Kind:      domain.EventBaselineUpdated,
		Severity:  domain.SeverityLow,
		Details:   mustJSON(baseline),
		CreatedAt: time.Now(),
	})
	s.emitOutbox(ctx, domain.NewBaselineUpdatedEvent(userID, *baseline))

	s.logger.Info("baseline updated", "user_id", userID, "session_id", sessionID)
	return baseline, nil
}

// GetBaseline returns the user's stored baseline.
func (s *BehaviorService) GetBaseline(ctx context.Context, userID string) (*domain.BehaviorBaseline, error) {
	baseline, err := s.fetchBaseline(ctx, userID)
	if err != nil {
		return nil, domain.ErrInternal("fetch baseline", err)
	}
	if baseline == nil {
		return nil, domain.ErrNotFound("baseline", userID)
	}
	return baseline, nil
}

// ListSecurityEvents returns the most recent security events for review.
func (s *BehaviorService) ListSecurityEvents(ctx context.Context, limit int) ([]domain.SecurityEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	events, err := s.events.ListRecent(ctx, s.db, limit)
	if err != nil {
		return nil, domain.ErrInternal("list security events", err)
	}
	return events, nil
}

// scoreAndEscalate is the core scoring pass: snapshot, fetch baseline, score,
// then run the escalation policy. It returns an analysis_error result instead
// of an error when the baseline cannot be fetched.
func (s *BehaviorService) scoreAndEscalate(ctx context.Context, userID, sessionID string, collector *telemetry.Collector) (domain.AnomalyResult, error) {
	snapshot := collector.Snapshot()

	baseline, err := s.fetchBaseline(ctx, userID)
	if err != nil {
		s.logger.Warn("baseline fetch failed, scoring fails open", "user_id", userID, "error", err)
		return policy.ErrorResult(), nil
	}

	result := policy.ScoreSnapshot(snapshot, baseline)

	escalation := policy.Escalate(result)
	if escalation.LogEvent {
		s.logSecurityEvent(ctx, &domain.SecurityEvent{
			ID:        uuid.New(),
			UserID:    userID,
			SessionID: sessionID,
			Kind:      domain.EventBehavioralAnomaly,
			Severity:  escalation.Severity,
			Details:   mustJSON(map[string]interface{}{"result": result, "snapshot": snapshot}),
			CreatedAt: time.Now(),
		})
		s.emitOutbox(ctx, domain.NewBehavioralAnomalyEvent(userID, sessionID, result, snapshot))

		if s.notifier != nil {
			s.notifier.PublishToUser(userID, "behavior.warning", map[string]interface{}{
				"title":                 escalation.NotifyTitle,
				"description":           escalation.NotifyDescription,
				"risk_level":            result.RiskLevel,
				"requires_verification": result.RequiresAdditionalVerification,
			})
		}
	}
	if result.RequiresAdditionalVerification {
		s.emitOutbox(ctx, domain.NewVerificationRequestedEvent(userID, sessionID, result.AnomalyScore))
	}

	return result, nil
}

// fetchBaseline reads through the cache to the repository. Only repository
// errors propagate; cache failures are already absorbed by the cache itself.
func (s *BehaviorService) fetchBaseline(ctx context.Context, userID string) (*domain.BehaviorBaseline, error) {
	if s.cache != nil {
		if cached := s.cache.Get(ctx, userID); cached != nil {
			return cached, nil
		}
	}

	baseline, err := s.baselines.FindByUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if baseline != nil && s.cache != nil {
		s.cache.Set(ctx, baseline)
	}
	return baseline, nil
}

// logSecurityEvent writes to the event log behind the circuit breaker.
// Failures are logged and swallowed; scoring must not depend on the sink.
func (s *BehaviorService) logSecurityEvent(ctx context.Context, event *domain.SecurityEvent) {
	if res := s.breaker.Check(ctx, eventSinkKey); !res.Allowed {
		s.logger.Warn("security event skipped", "reason", res.Reason, "kind", event.Kind)
		return
	}
	if err := s.events.Insert(ctx, s.db, event); err != nil {
		s.breaker.RecordFailure(eventSinkKey)
		s.logger.Error("security event insert failed", "kind", event.Kind, "error", err)
		return
	}
	s.breaker.RecordSuccess(eventSinkKey)
}

// emitOutbox writes an outbox draft best-effort.
func (s *BehaviorService) emitOutbox(ctx context.Context, draft domain.OutboxDraft) {
	if err := s.outbox.Insert(ctx, s.db, draft); err != nil {
		s.logger.Error("outbox insert failed", "event_type", draft.EventType, "error", err)
	}
}

func mustJSON(v interface{}) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}
