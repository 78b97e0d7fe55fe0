package detector

import (
	"sync"
	"time"

	"wisefido-wellness/internal/config"
	"wisefido-wellness/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FallState 跌倒检测器状态
type FallState string

const (
	FallIdle           FallState = "idle"
	FallImpactObserved FallState = "impact_observed"
	FallDisabled       FallState = "disabled" // 传感器不可用，自我禁用
)

// FallDetector 跌倒检测器
// 两段式状态机：冲击（≥阈值）后进入静止确认窗口，窗口内始终低于
// 低活动阈值则产生跌倒候选事件；窗口内恢复运动视为误触发（如手机跌落
// 后被立刻捡起），重置回 Idle
type FallDetector struct {
	mu     sync.Mutex
	config *config.Config
	logger *zap.Logger

	state    FallState
	impactAt time.Time
}

// NewFallDetector 创建跌倒检测器
func NewFallDetector(cfg *config.Config, logger *zap.Logger) *FallDetector {
	return &FallDetector{
		config: cfg,
		logger: logger,
		state:  FallIdle,
	}
}

// MarkUnavailable 传感器不可用 → 永久停留在禁用状态，不影响其他检测器
func (d *FallDetector) MarkUnavailable() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = FallDisabled
	d.logger.Warn("Motion sensor unavailable, fall detection disabled")
}

// State 当前状态（UI 只读信号）
func (d *FallDetector) State() FallState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Process 处理一个运动强度样本，可能产生跌倒候选事件
func (d *FallDetector) Process(sample models.ActivitySample, mc *models.MonitoringConfig) *models.DetectionEvent {
	if sample.Kind != models.SignalMotion {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == FallDisabled || (mc != nil && !mc.FallDetectionEnabled) {
		return nil
	}

	fall := d.config.Wellness.Fall

	switch d.state {
	case FallIdle:
		if sample.Magnitude >= fall.ImpactThresholdG {
			d.state = FallImpactObserved
			d.impactAt = sample.Timestamp
			d.logger.Debug("Impact observed, starting stillness confirmation",
				zap.Float64("magnitude_g", sample.Magnitude),
				zap.Time("impact_at", sample.Timestamp),
			)
		}
		return nil

	case FallImpactObserved:
		if sample.Magnitude >= fall.LowActivityThresholdG {
			// 冲击后恢复运动 → 误触发，重置
			d.state = FallIdle
			d.logger.Debug("Motion resumed after impact, false trigger",
				zap.Float64("magnitude_g", sample.Magnitude),
			)
			return nil
		}
		return d.maybeRaiseLocked(sample.Timestamp)
	}

	return nil
}

// Tick 定时检查静止窗口（运动流停止上报时由调度器驱动补判）
func (d *FallDetector) Tick(now time.Time) *models.DetectionEvent {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state != FallImpactObserved {
		return nil
	}
	return d.maybeRaiseLocked(now)
}

// maybeRaiseLocked 静止窗口完整走完则产生跌倒候选（调用方持锁）
func (d *FallDetector) maybeRaiseLocked(now time.Time) *models.DetectionEvent {
	window := time.Duration(d.config.Wellness.Fall.StillnessWindowSec) * time.Second
	if now.Sub(d.impactAt) < window {
		return nil
	}

	d.state = FallIdle
	event := &models.DetectionEvent{
		EventID:     uuid.New().String(),
		Kind:        models.EventFallCandidate,
		Urgency:     models.EventFallCandidate.DefaultUrgency(),
		Timestamp:   now,
		Description: "impact followed by stillness",
		IsHome:      true,
	}

	d.logger.Info("Fall candidate raised",
		zap.String("event_id", event.EventID),
		zap.Time("impact_at", d.impactAt),
	)

	return event
}
