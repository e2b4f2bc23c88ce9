package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loanpilot/sentinel/internal/domain"
	"github.com/loanpilot/sentinel/internal/guard"
	"github.com/loanpilot/sentinel/internal/repository"
	"github.com/loanpilot/sentinel/internal/telemetry"
)

type fakeBaselineRepo struct {
	mu      sync.Mutex
	byUser  map[string]*domain.BehaviorBaseline
	findErr error
	upserts int
}

func newFakeBaselineRepo() *fakeBaselineRepo {
	return &fakeBaselineRepo{byUser: make(map[string]*domain.BehaviorBaseline)}
}

func (f *fakeBaselineRepo) FindByUser(_ context.Context, _ repository.DBTX, userID string) (*domain.BehaviorBaseline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.byUser[userID], nil
}

func (f *fakeBaselineRepo) Upsert(_ context.Context, _ repository.DBTX, b *domain.BehaviorBaseline) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	f.byUser[b.UserID] = b
	return nil
}

type fakeEventRepo struct {
	mu        sync.Mutex
	events    []domain.SecurityEvent
	insertErr error
}

func (f *fakeEventRepo) Insert(_ context.Context, _ repository.DBTX, e *domain.SecurityEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.events = append(f.events, *e)
	return nil
}

func (f *fakeEventRepo) ListRecent(_ context.Context, _ repository.DBTX, limit int) ([]domain.SecurityEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > len(f.events) {
		limit = len(f.events)
	}
	return f.events[:limit], nil
}

func (f *fakeEventRepo) kinds() []domain.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.EventType
	for _, e := range f.events {
		out = append(out, e.Kind)
	}
	return out
}

type fakeOutboxRepo struct {
	mu     sync.Mutex
	drafts []domain.OutboxDraft
}

func (f *fakeOutboxRepo) Insert(_ context.Context, _ repository.DBTX, d domain.OutboxDraft) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts = append(f.drafts, d)
	return nil
}

func (f *fakeOutboxRepo) FetchUnpublished(_ context.Context, _ repository.DBTX, _ int) ([]repository.OutboxRow, error) {
	return nil, nil
}

func (f *fakeOutboxRepo) MarkPublished(_ context.Context, _ repository.DBTX, _ []int64) error {
	return nil
}

func (f *fakeOutboxRepo) types() []domain.EventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.EventType
	for _, d := range f.drafts {
		out = append(out, d.EventType)
	}
	return out
}

type notification struct {
	userID string
	event  string
	data   interface{}
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notification
}

func (f *fakeNotifier) PublishToUser(userID string, event string, data interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, notification{userID: userID, event: event, data: data})
}

type fakeCache struct {
	mu          sync.Mutex
	byUser      map[string]*domain.BehaviorBaseline
	invalidated []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{byUser: make(map[string]*domain.BehaviorBaseline)}
}

func (f *fakeCache) Get(_ context.Context, userID string) *domain.BehaviorBaseline {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byUser[userID]
}

func (f *fakeCache) Set(_ context.Context, b *domain.BehaviorBaseline) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byUser[b.UserID] = b
}

func (f *fakeCache) Invalidate(_ context.Context, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byUser, userID)
	f.invalidated = append(f.invalidated, userID)
}

type testHarness struct {
	svc       *BehaviorService
	baselines *fakeBaselineRepo
	events    *fakeEventRepo
	outbox    *fakeOutboxRepo
	notifier  *fakeNotifier
	cache     *fakeCache
	registry  *telemetry.Registry
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	return newHarnessWithInterval(t, time.Minute)
}

func newHarnessWithInterval(t *testing.T, interval time.Duration) *testHarness {
	t.Helper()
	h := &testHarness{
		baselines: newFakeBaselineRepo(),
		events:    &fakeEventRepo{},
		outbox:    &fakeOutboxRepo{},
		notifier:  &fakeNotifier{},
		cache:     newFakeCache(),
		registry:  telemetry.NewRegistry(),
	}
	h.svc = NewBehaviorService(
		nil, h.baselines, h.events, h.outbox, h.cache,
		guard.NewCircuitBreaker(3, time.Minute),
		h.notifier, h.registry,
		slog.New(slog.DiscardHandler),
		interval,
	)
	t.Cleanup(h.registry.Shutdown)
	return h
}

// offHoursBaseline deviates from a freshly started quiet session on login
// hour, click pattern, typing pattern and mouse behavior (score 65).
func offHoursBaseline(userID string) *domain.BehaviorBaseline {
	return &domain.BehaviorBaseline{
		UserID:             userID,
		TypicalLoginHours:  []int{(time.Now().Hour() + 1) % 24},
		AvgSessionDuration: 60,
		AvgClickInterval:   5000,
		AvgTypingInterval:  400,
		AvgMouseVariance:   50,
		DevicePattern:      "abc123def456",
	}
}

func TestStartSession_DuplicateRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	fp, err := h.svc.StartSession(ctx, "user-1", "sess-1", telemetry.DeviceInfo{Language: "en"})
	require.NoError(t, err)
	assert.Len(t, fp, 64)

	_, err = h.svc.StartSession(ctx, "user-1", "sess-1", telemetry.DeviceInfo{})
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 409, appErr.Status)

	assert.Contains(t, h.outbox.types(), domain.EventSessionStarted)
}

func TestStartSession_RequiresIDs(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.StartSession(context.Background(), "", "sess-1", telemetry.DeviceInfo{})
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 400, appErr.Status)
}

func TestScoreSession_NoBaseline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.StartSession(ctx, "user-1", "sess-1", telemetry.DeviceInfo{})
	require.NoError(t, err)

	result, err := h.svc.ScoreSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.False(t, result.IsAnomalous)
	assert.Equal(t, 0, result.AnomalyScore)
	assert.Empty(t, result.DeviationFactors)
	assert.Empty(t, h.events.kinds(), "no security event without anomaly")
	assert.Empty(t, h.notifier.calls)
}

func TestScoreSession_BaselineFetchFailsOpen(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.StartSession(ctx, "user-1", "sess-1", telemetry.DeviceInfo{})
	require.NoError(t, err)
	h.baselines.findErr = errors.New("db down")

	result, err := h.svc.ScoreSession(ctx, "sess-1")
	require.NoError(t, err, "scoring never propagates fetch errors")
	assert.False(t, result.IsAnomalous)
	assert.Equal(t, 0, result.AnomalyScore)
	assert.Equal(t, []string{domain.FactorAnalysisError}, result.DeviationFactors)
	assert.Empty(t, h.notifier.calls)
}

func TestScoreSession_AnomalousLogsAndNotifies(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.baselines.byUser["user-1"] = offHoursBaseline("user-1")
	_, err := h.svc.StartSession(ctx, "user-1", "sess-1", telemetry.DeviceInfo{})
	require.NoError(t, err)

	result, err := h.svc.ScoreSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, result.IsAnomalous)
	assert.Equal(t, 65, result.AnomalyScore)
	assert.Equal(t, domain.RiskHigh, result.RiskLevel)
	assert.False(t, result.RequiresAdditionalVerification)

	require.Len(t, h.events.kinds(), 1)
	assert.Equal(t, domain.EventBehavioralAnomaly, h.events.kinds()[0])
	assert.Equal(t, domain.SeverityHigh, h.events.events[0].Severity)
	assert.Contains(t, h.outbox.types(), domain.EventBehavioralAnomaly)

	require.Len(t, h.notifier.calls, 1)
	assert.Equal(t, "user-1", h.notifier.calls[0].userID)
	assert.Equal(t, "behavior.warning", h.notifier.calls[0].event)
}

func TestScoreSession_VerificationEscalation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.baselines.byUser["user-1"] = offHoursBaseline("user-1")
	_, err := h.svc.StartSession(ctx, "user-1", "sess-1", telemetry.DeviceInfo{})
	require.NoError(t, err)

	// Metronome clicks: identical 10ms intervals trigger bot_like_consistency
	// (+30) and the click-pattern rule, pushing the score past verification.
	base := time.Now()
	var events []telemetry.InteractionEvent
	for i := 0; i < 6; i++ {
		events = append(events, telemetry.InteractionEvent{
			Kind: telemetry.EventClick,
			At:   base.Add(time.Duration(i) * 10 * time.Millisecond),
		})
	}
	require.NoError(t, h.svc.Ingest(ctx, "sess-1", events))

	result, err := h.svc.ScoreSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 95, result.AnomalyScore)
	assert.True(t, result.RequiresAdditionalVerification)
	assert.Equal(t, domain.RiskCritical, result.RiskLevel)
	assert.Contains(t, h.outbox.types(), domain.EventVerificationRequested)
}

func TestStartSession_PeriodicScoringOutlivesStartContext(t *testing.T) {
	h := newHarnessWithInterval(t, 10*time.Millisecond)
	h.baselines.byUser["user-1"] = offHoursBaseline("user-1")

	ctx, cancel := context.WithCancel(context.Background())
	_, err := h.svc.StartSession(ctx, "user-1", "sess-1", telemetry.DeviceInfo{})
	require.NoError(t, err)
	cancel()

	// The start context is gone; ticks must keep firing and logging anomalies
	// against the off-hours baseline until the session ends.
	require.Eventually(t, func() bool {
		return len(h.events.kinds()) > 0
	}, 2*time.Second, 5*time.Millisecond, "periodic scoring stopped with the request")

	require.NoError(t, h.svc.EndSession(context.Background(), "sess-1"))
	logged := len(h.events.kinds())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, logged, len(h.events.kinds()), "ticks continued after EndSession")
}

func TestScoreSession_EventSinkFailureSwallowed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.baselines.byUser["user-1"] = offHoursBaseline("user-1")
	h.events.insertErr = errors.New("sink down")
	_, err := h.svc.StartSession(ctx, "user-1", "sess-1", telemetry.DeviceInfo{})
	require.NoError(t, err)

	result, err := h.svc.ScoreSession(ctx, "sess-1")
	require.NoError(t, err, "a broken event sink never fails the scoring call")
	assert.True(t, result.IsAnomalous)
	assert.Len(t, h.notifier.calls, 1, "user is still warned")
}

func TestScoreSession_UnknownSession(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.ScoreSession(context.Background(), "nope")
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 410, appErr.Status)
}

func TestUpdateBaseline_ReplacesAndInvalidatesCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.StartSession(ctx, "user-1", "sess-1", telemetry.DeviceInfo{Language: "en"})
	require.NoError(t, err)

	b, err := h.svc.UpdateBaseline(ctx, "user-1", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", b.UserID)
	assert.Equal(t, []int{time.Now().Hour()}, b.TypicalLoginHours)
	// Empty buffers record the neutral means.
	assert.InDelta(t, 2000.0, b.AvgClickInterval, 0.001)
	assert.InDelta(t, 150.0, b.AvgTypingInterval, 0.001)
	assert.Len(t, b.DevicePattern, 12)

	assert.Contains(t, h.cache.invalidated, "user-1")
	assert.Contains(t, h.outbox.types(), domain.EventBaselineUpdated)
	assert.Contains(t, h.events.kinds(), domain.EventBaselineUpdated)

	// Idempotent: updating again from the same quiet session stores the same values.
	b2, err := h.svc.UpdateBaseline(ctx, "user-1", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, b.TypicalLoginHours, b2.TypicalLoginHours)
	assert.Equal(t, b.AvgClickInterval, b2.AvgClickInterval)
	assert.Equal(t, 2, h.baselines.upserts)
}

func TestUpdateBaseline_WrongUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.StartSession(ctx, "user-1", "sess-1", telemetry.DeviceInfo{})
	require.NoError(t, err)

	_, err = h.svc.UpdateBaseline(ctx, "user-2", "sess-1")
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 403, appErr.Status)
}

func TestGetBaseline_CacheReadThrough(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cached := offHoursBaseline("user-1")
	h.cache.Set(ctx, cached)
	h.baselines.findErr = errors.New("must not reach repo")

	b, err := h.svc.GetBaseline(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, cached, b)
}

func TestGetBaseline_NotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.GetBaseline(context.Background(), "user-1")
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 404, appErr.Status)
}

func TestEndSession_ReleasesMonitor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.StartSession(ctx, "user-1", "sess-1", telemetry.DeviceInfo{})
	require.NoError(t, err)

	require.NoError(t, h.svc.EndSession(ctx, "sess-1"))
	assert.Equal(t, 0, h.registry.ActiveCount())
	assert.Contains(t, h.outbox.types(), domain.EventSessionEnded)

	err = h.svc.EndSession(ctx, "sess-1")
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 410, appErr.Status)
}

func TestListSecurityEvents_ClampsLimit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.baselines.byUser["user-1"] = offHoursBaseline("user-1")
	_, err := h.svc.StartSession(ctx, "user-1", "sess-1", telemetry.DeviceInfo{})
	require.NoError(t, err)
	_, err = h.svc.ScoreSession(ctx, "sess-1")
	require.NoError(t, err)

	events, err := h.svc.ListSecurityEvents(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
