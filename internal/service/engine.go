package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"wisefido-wellness/internal/baseline"
	"wisefido-wellness/internal/config"
	"wisefido-wellness/internal/detector"
	"wisefido-wellness/internal/escalation"
	"wisefido-wellness/internal/models"
	"wisefido-wellness/internal/notify"
	"wisefido-wellness/internal/repository"

	"go.uber.org/zap"
)

// Metrics 引擎运行计数器
type Metrics struct {
	SamplesProcessed atomic.Int64
	SamplesDropped   atomic.Int64
	EventsRaised     atomic.Int64
	PromptsSent      atomic.Int64
	CheckInsReceived atomic.Int64
}

// MetricsSnapshot 计数器快照
type MetricsSnapshot struct {
	SamplesProcessed int64 `json:"samples_processed"`
	SamplesDropped   int64 `json:"samples_dropped"`
	EventsRaised     int64 `json:"events_raised"`
	PromptsSent      int64 `json:"prompts_sent"`
	CheckInsReceived int64 `json:"check_ins_received"`
}

// Engine 检测引擎
// 单 goroutine 事件循环：传感器样本、用户确认、秒级/分钟级/小时级节拍
// 全部在同一循环内处理，检测器之间无跨 goroutine 竞争
// 样本通道满时丢弃新样本并计数（运动强度流可容忍丢样，活动信号
// 通道容量按峰值预留）
type Engine struct {
	config   *config.Config
	logger   *zap.Logger
	tenantID string
	userID   string

	learner     *baseline.Learner
	fall        *detector.FallDetector
	inactivity  *detector.InactivityMonitor
	deviation   *detector.DeviationMonitor
	coordinator *escalation.Coordinator
	notifier    *notify.Notifier
	archiver    escalation.Archiver
	baselines   *repository.BaselinesRepository
	configs     *repository.MonitoringConfigsRepository

	samples  chan models.ActivitySample
	checkins chan time.Time
	presence chan bool
	unavail  chan struct{}

	mcMu sync.RWMutex
	mc   *models.MonitoringConfig

	isHome atomic.Bool

	metrics Metrics
	wg      sync.WaitGroup
}

// NewEngine 创建检测引擎
func NewEngine(
	cfg *config.Config,
	tenantID, userID string,
	learner *baseline.Learner,
	fall *detector.FallDetector,
	inactivity *detector.InactivityMonitor,
	deviation *detector.DeviationMonitor,
	coordinator *escalation.Coordinator,
	notifier *notify.Notifier,
	archiver escalation.Archiver,
	baselines *repository.BaselinesRepository,
	configs *repository.MonitoringConfigsRepository,
	mc *models.MonitoringConfig,
	logger *zap.Logger,
) *Engine {
	e := &Engine{
		config:      cfg,
		logger:      logger,
		tenantID:    tenantID,
		userID:      userID,
		learner:     learner,
		fall:        fall,
		inactivity:  inactivity,
		deviation:   deviation,
		coordinator: coordinator,
		notifier:    notifier,
		archiver:    archiver,
		baselines:   baselines,
		configs:     configs,
		samples:     make(chan models.ActivitySample, cfg.Wellness.SampleBufferSize),
		checkins:    make(chan time.Time, 16),
		presence:    make(chan bool, 16),
		unavail:     make(chan struct{}, 1),
		mc:          mc,
	}
	e.isHome.Store(true)
	return e
}

// EnqueueSample 投入传感器样本（非阻塞，通道满则丢弃并计数）
func (e *Engine) EnqueueSample(sample models.ActivitySample) {
	select {
	case e.samples <- sample:
	default:
		e.metrics.SamplesDropped.Add(1)
	}
}

// EnqueueCheckIn 投入用户确认
func (e *Engine) EnqueueCheckIn(at time.Time) {
	select {
	case e.checkins <- at:
	default:
		e.logger.Warn("Check-in channel full, confirmation dropped")
	}
}

// SetHome 更新在家/离家状态
func (e *Engine) SetHome(isHome bool) {
	select {
	case e.presence <- isHome:
	default:
	}
}

// MarkMotionUnavailable 标记运动传感器不可用
func (e *Engine) MarkMotionUnavailable() {
	select {
	case e.unavail <- struct{}{}:
	default:
	}
}

// Start 启动引擎事件循环
// 启动前检查上次进程是否留下未决案例（重启即丢失，须记录并清理）
func (e *Engine) Start(ctx context.Context) error {
	if err := e.recoverLostCase(ctx); err != nil {
		// 丢失案例处理失败不阻塞启动，但必须可见
		e.logger.Error("Failed to handle lost case from previous run", zap.Error(err))
	}

	e.wg.Add(1)
	go e.run(ctx)
	return nil
}

// Wait 等待事件循环退出（ctx 取消后调用）
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) run(ctx context.Context) {
	defer e.wg.Done()

	secTicker := time.NewTicker(1 * time.Second)
	defer secTicker.Stop()
	minuteTicker := time.NewTicker(1 * time.Minute)
	defer minuteTicker.Stop()

	lastHour := time.Now().Truncate(time.Hour)

	e.logger.Info("Detection engine started",
		zap.String("tenant_id", e.tenantID),
		zap.String("user_id", e.userID),
	)

	for {
		select {
		case <-ctx.Done():
			e.persistBaseline(context.Background())
			e.logger.Info("Detection engine stopped")
			return

		case sample := <-e.samples:
			e.handleSample(ctx, sample)

		case at := <-e.checkins:
			e.handleCheckIn(ctx, at)

		case isHome := <-e.presence:
			e.isHome.Store(isHome)
			e.inactivity.SetHome(isHome)

		case <-e.unavail:
			e.fall.MarkUnavailable()

		case now := <-secTicker.C:
			e.handleSecondTick(ctx, now)
			if hour := now.Truncate(time.Hour); hour.After(lastHour) {
				lastHour = hour
				e.handleHourTick(ctx, now)
			}

		case <-minuteTicker.C:
			e.reloadConfig(ctx)
			e.publishStatus(ctx)
		}
	}
}

// handleSample 处理单个传感器样本
func (e *Engine) handleSample(ctx context.Context, sample models.ActivitySample) {
	e.metrics.SamplesProcessed.Add(1)
	mc := e.currentConfig()

	e.learner.RecordSample(sample)

	if sample.Kind == models.SignalMotion {
		if event := e.fall.Process(sample, mc); event != nil {
			e.raise(ctx, event)
		}
		return
	}

	if sample.IsQualifyingActivity() {
		e.inactivity.RecordActivity(sample.Timestamp)
	}
}

// handleCheckIn 处理用户确认："我没事"同时是活动信号
func (e *Engine) handleCheckIn(ctx context.Context, at time.Time) {
	e.metrics.CheckInsReceived.Add(1)
	e.inactivity.RecordActivity(at)

	if e.coordinator.UserOK(ctx) {
		e.logger.Info("Active case cleared by user check-in", zap.String("user_id", e.userID))
	}
}

func (e *Engine) handleSecondTick(ctx context.Context, now time.Time) {
	mc := e.currentConfig()

	if event := e.fall.Tick(now); event != nil {
		e.raise(ctx, event)
	}

	prompt, event := e.inactivity.Tick(now, mc)
	if prompt != nil {
		e.metrics.PromptsSent.Add(1)
		if err := e.notifier.PublishCheckInPrompt(ctx, prompt); err != nil {
			e.logger.Error("Failed to publish check-in prompt", zap.Error(err))
		}
	}
	if event != nil {
		e.raise(ctx, event)
	}

	e.coordinator.Tick(ctx)
}

func (e *Engine) handleHourTick(ctx context.Context, now time.Time) {
	if event := e.deviation.TickHour(now, e.currentConfig()); event != nil {
		e.raise(ctx, event)
	}
	e.persistBaseline(ctx)
}

// raise 提交检测事件给升级协调器
func (e *Engine) raise(ctx context.Context, event *models.DetectionEvent) {
	event.IsHome = e.isHome.Load()
	e.metrics.EventsRaised.Add(1)
	e.coordinator.Accept(ctx, event)
}

// recoverLostCase 检查上次进程残留的活动案例标记
// 内存中的倒计时随进程一起消失，只能按"丢失"归档，不能恢复
func (e *Engine) recoverLostCase(ctx context.Context) error {
	lost, err := e.notifier.GetActiveCase(ctx, e.userID)
	if err != nil {
		return err
	}
	if lost == nil {
		return nil
	}

	e.logger.Error("Unresolved case from previous run lost on restart",
		zap.String("case_id", lost.CaseID),
		zap.String("event_kind", string(lost.Event.Kind)),
		zap.String("state", string(lost.State)),
	)

	now := time.Now()
	lost.State = models.CaseResolved
	lost.Resolution = models.ResolutionLostOnRestart
	lost.ResolvedAt = &now

	if err := e.archiver.ArchiveCase(ctx, lost); err != nil {
		return err
	}
	return e.notifier.ClearActiveCase(ctx, e.userID)
}

// reloadConfig 重新加载用户监测配置（UI 修改分钟级生效）
func (e *Engine) reloadConfig(ctx context.Context) {
	mc, err := e.configs.GetConfig(ctx, e.tenantID, e.userID)
	if err != nil {
		e.logger.Error("Failed to reload monitoring config, keeping previous", zap.Error(err))
		return
	}
	if mc == nil {
		mc = models.DefaultMonitoringConfig(e.userID, e.config.Wellness.Inactivity.DefaultThresholdMinutes)
	}

	e.mcMu.Lock()
	e.mc = mc
	e.mcMu.Unlock()
}

func (e *Engine) currentConfig() *models.MonitoringConfig {
	e.mcMu.RLock()
	defer e.mcMu.RUnlock()
	return e.mc
}

// persistBaseline 持久化基线（每小时 + 退出前）
func (e *Engine) persistBaseline(ctx context.Context) {
	profile := e.learner.Profile()
	if profile.StartedAt.IsZero() {
		return
	}
	if err := e.baselines.SaveBaseline(ctx, e.tenantID, profile); err != nil {
		e.logger.Error("Failed to persist baseline", zap.Error(err))
	}
}

// publishStatus 刷新 UI 状态快照缓存
func (e *Engine) publishStatus(ctx context.Context) {
	if err := e.notifier.UpdateStatus(ctx, e.Status()); err != nil {
		e.logger.Error("Failed to update status cache", zap.Error(err))
	}
}

// Status 当前引擎状态快照
func (e *Engine) Status() *models.EngineStatus {
	now := time.Now()
	status := &models.EngineStatus{
		UserID:            e.userID,
		FallDetectorState: string(e.fall.State()),
		CountedIdleSec:    int64(e.inactivity.CountedIdle() / time.Second),
		UpdatedAt:         now,
	}

	day, complete := e.learner.DaysIntoLearning(now)
	status.LearningComplete = complete
	if !complete {
		status.DaysIntoLearning = &day
	}

	if snapshot := e.coordinator.Snapshot(); snapshot != nil {
		caseID := snapshot.CaseID
		state := string(snapshot.State)
		status.ActiveCaseID = &caseID
		status.ActiveCaseState = &state
		if remaining, ok := e.coordinator.CountdownRemaining(); ok {
			sec := int64(remaining / time.Second)
			status.CountdownRemainingSec = &sec
		}
	}

	return status
}

// MetricsSnapshot 计数器快照
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return MetricsSnapshot{
		SamplesProcessed: e.metrics.SamplesProcessed.Load(),
		SamplesDropped:   e.metrics.SamplesDropped.Load(),
		EventsRaised:     e.metrics.EventsRaised.Load(),
		PromptsSent:      e.metrics.PromptsSent.Load(),
		CheckInsReceived: e.metrics.CheckInsReceived.Load(),
	}
}
