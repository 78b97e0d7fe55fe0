package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"wisefido-wellness/internal/baseline"
	"wisefido-wellness/internal/config"
	"wisefido-wellness/internal/detector"
	"wisefido-wellness/internal/escalation"
	"wisefido-wellness/internal/models"
	"wisefido-wellness/internal/notify"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

type stubContacts struct{}

func (stubContacts) GetContacts(_ context.Context, _ string) ([]models.Contact, error) {
	return []models.Contact{{ContactID: "c1", Name: "Alice", Phone: "+15550001", Position: 1}}, nil
}

type stubDispatcher struct{}

func (stubDispatcher) Dispatch(_ context.Context, _ string, _ *models.DetectionEvent, contacts []models.Contact) []models.ContactDelivery {
	deliveries := make([]models.ContactDelivery, 0, len(contacts))
	for _, contact := range contacts {
		deliveries = append(deliveries, models.ContactDelivery{Contact: contact, Status: models.DeliverySent})
	}
	return deliveries
}

type recordingArchiver struct {
	mu       sync.Mutex
	archived []*models.EscalationCase
}

func (a *recordingArchiver) ArchiveCase(_ context.Context, escalationCase *models.EscalationCase) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archived = append(a.archived, escalationCase.Clone())
	return nil
}

func (a *recordingArchiver) cases() []*models.EscalationCase {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*models.EscalationCase, len(a.archived))
	copy(out, a.archived)
	return out
}

type engineFixture struct {
	engine   *Engine
	notifier *notify.Notifier
	archiver *recordingArchiver
	start    time.Time
}

func newEngineFixture(t *testing.T) *engineFixture {
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Wellness.SampleBufferSize = 4

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	notifier := notify.NewNotifier(cfg, client, notify.NewRedisKVStore(client), zap.NewNop())

	start := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	logger := zap.NewNop()

	learner := baseline.NewLearner(cfg, "user-1", nil, logger)
	fall := detector.NewFallDetector(cfg, logger)
	inactivity := detector.NewInactivityMonitor(cfg, "user-1", start, logger)
	deviation := detector.NewDeviationMonitor(cfg, learner, logger)

	archiver := &recordingArchiver{}
	coordinator := escalation.NewCoordinator(cfg, "tenant-1", "user-1", "Margaret",
		stubContacts{}, stubDispatcher{}, archiver, notifier,
		&stubClock{now: start}, logger)

	mc := models.DefaultMonitoringConfig("user-1", cfg.Wellness.Inactivity.DefaultThresholdMinutes)

	engine := NewEngine(cfg, "tenant-1", "user-1",
		learner, fall, inactivity, deviation,
		coordinator, notifier, archiver, nil, nil, mc, logger)

	return &engineFixture{engine: engine, notifier: notifier, archiver: archiver, start: start}
}

func TestEngine_SampleChannelDropsWhenFull(t *testing.T) {
	f := newEngineFixture(t)

	// 缓冲 4，事件循环未启动 → 第 5 个样本被丢弃并计数
	for i := 0; i < 5; i++ {
		f.engine.EnqueueSample(models.ActivitySample{
			Timestamp: f.start,
			Kind:      models.SignalMotion,
			Magnitude: 1.0,
		})
	}

	snapshot := f.engine.MetricsSnapshot()
	assert.Equal(t, int64(1), snapshot.SamplesDropped)
}

func TestEngine_FallSampleOpensCase(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.engine.handleSample(ctx, models.ActivitySample{
		Timestamp: f.start, Kind: models.SignalMotion, Magnitude: 3.0,
	})
	f.engine.handleSample(ctx, models.ActivitySample{
		Timestamp: f.start.Add(3 * time.Second), Kind: models.SignalMotion, Magnitude: 0.1,
	})

	snapshot := f.engine.coordinator.Snapshot()
	require.NotNil(t, snapshot)
	assert.Equal(t, models.EventFallCandidate, snapshot.Event.Kind)
	assert.Equal(t, models.CaseAwaitingUser, snapshot.State)
	assert.Equal(t, int64(1), f.engine.MetricsSnapshot().EventsRaised)
}

func TestEngine_CheckInClearsActiveCase(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.engine.handleSample(ctx, models.ActivitySample{
		Timestamp: f.start, Kind: models.SignalMotion, Magnitude: 3.0,
	})
	f.engine.handleSample(ctx, models.ActivitySample{
		Timestamp: f.start.Add(3 * time.Second), Kind: models.SignalMotion, Magnitude: 0.1,
	})
	require.NotNil(t, f.engine.coordinator.Snapshot())

	f.engine.handleCheckIn(ctx, f.start.Add(10*time.Second))

	assert.Nil(t, f.engine.coordinator.Snapshot())
	cases := f.archiver.cases()
	require.Len(t, cases, 1)
	assert.Equal(t, models.ResolutionUserCleared, cases[0].Resolution)

	// 用户确认同时重置静默计时
	assert.Equal(t, time.Duration(0), f.engine.inactivity.CountedIdle())
}

func TestEngine_RecoverLostCaseOnStartup(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	// 模拟上次进程崩溃前留下的活动案例标记
	lost := &models.EscalationCase{
		CaseID:   "case-lost",
		TenantID: "tenant-1",
		UserID:   "user-1",
		Event: models.DetectionEvent{
			EventID: "ev-lost",
			Kind:    models.EventInactivityExceeded,
			Urgency: models.UrgencyMedium,
		},
		State:    models.CaseAwaitingUser,
		OpenedAt: f.start.Add(-time.Hour),
		Deadline: f.start.Add(-55 * time.Minute),
	}
	require.NoError(t, f.notifier.SetActiveCase(ctx, lost))

	require.NoError(t, f.engine.recoverLostCase(ctx))

	cases := f.archiver.cases()
	require.Len(t, cases, 1)
	assert.Equal(t, "case-lost", cases[0].CaseID)
	assert.Equal(t, models.ResolutionLostOnRestart, cases[0].Resolution)
	assert.Equal(t, models.CaseResolved, cases[0].State)

	marker, err := f.notifier.GetActiveCase(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, marker)
}

func TestEngine_StatusSnapshot(t *testing.T) {
	f := newEngineFixture(t)

	status := f.engine.Status()

	assert.Equal(t, "user-1", status.UserID)
	assert.Equal(t, string(detector.FallIdle), status.FallDetectorState)
	assert.False(t, status.LearningComplete)
	require.NotNil(t, status.DaysIntoLearning)
	assert.Equal(t, 1, *status.DaysIntoLearning)
	assert.Nil(t, status.ActiveCaseID)
}
