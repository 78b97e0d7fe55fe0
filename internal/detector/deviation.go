package detector

import (
	"fmt"
	"sync"
	"time"

	"wisefido-wellness/internal/baseline"
	"wisefido-wellness/internal/config"
	"wisefido-wellness/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DeviationMonitor 模式偏离监测器
// 每小时用上个周期的观测聚合查询基线学习器，连续 N 个非典型周期
// （默认 2，避免单周期噪声）且学习窗口已完成时产生偏离事件
// 夜猫子标志只抑制"该安静的时段出现活动"类检查，不抑制"该活动的
// 时段没有活动"
type DeviationMonitor struct {
	mu      sync.Mutex
	config  *config.Config
	logger  *zap.Logger
	learner *baseline.Learner

	consecutive int
}

// NewDeviationMonitor 创建模式偏离监测器
func NewDeviationMonitor(cfg *config.Config, learner *baseline.Learner, logger *zap.Logger) *DeviationMonitor {
	return &DeviationMonitor{
		config:  cfg,
		logger:  logger,
		learner: learner,
	}
}

// TickHour 整点节拍：关闭上个小时的聚合并判断典型性
func (m *DeviationMonitor) TickHour(now time.Time, mc *models.MonitoringConfig) *models.DetectionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	obs, closed := m.learner.CloseHour(now)
	if !closed {
		return nil
	}

	if !obs.Trusted {
		// 学习中或桶内数据稀疏 → fail open
		m.consecutive = 0
		return nil
	}

	if obs.Typical {
		m.consecutive = 0
		return nil
	}

	// 夜猫子豁免：深夜时段"活动多于期望"不算偏离
	if mc != nil && mc.NightOwl && m.isLateNight(obs.HourStart.Hour()) && obs.Observed > obs.Mean {
		m.logger.Debug("Late-night activity suppressed by night-owl flag",
			zap.Time("hour", obs.HourStart),
			zap.Float64("observed", obs.Observed),
			zap.Float64("expected", obs.Mean),
		)
		return nil
	}

	m.consecutive++
	m.logger.Debug("Atypical period observed",
		zap.Time("hour", obs.HourStart),
		zap.Float64("observed", obs.Observed),
		zap.Float64("expected", obs.Mean),
		zap.Int("consecutive", m.consecutive),
	)

	if m.consecutive < m.config.Wellness.Deviation.ConsecutivePeriods {
		return nil
	}

	m.consecutive = 0
	event := &models.DetectionEvent{
		EventID:     uuid.New().String(),
		Kind:        models.EventPatternDeviation,
		Urgency:     models.EventPatternDeviation.DefaultUrgency(),
		Timestamp:   now,
		Description: describeDeviation(obs.HourStart, obs.Observed, obs.Mean),
		IsHome:      true,
	}

	m.logger.Info("Pattern deviation detected",
		zap.String("event_id", event.EventID),
		zap.String("description", event.Description),
	)

	return event
}

func (m *DeviationMonitor) isLateNight(hour int) bool {
	start := m.config.Wellness.Deviation.LateNightStartHour
	end := m.config.Wellness.Deviation.LateNightEndHour
	if start <= end {
		return hour >= start && hour <= end
	}
	return hour >= start || hour <= end
}

// describeDeviation 生成人类可读的偏离描述（用于联系人短信文案）
func describeDeviation(hourStart time.Time, observed, expected float64) string {
	period := dayPeriod(hourStart.Hour())
	if observed < expected {
		return fmt.Sprintf("usual %s activity is missing", period)
	}
	return fmt.Sprintf("unusual %s activity detected", period)
}

func dayPeriod(hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 17:
		return "afternoon"
	case hour >= 17 && hour < 22:
		return "evening"
	default:
		return "night"
	}
}
