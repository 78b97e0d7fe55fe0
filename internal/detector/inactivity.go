package detector

import (
	"fmt"
	"sync"
	"time"

	"wisefido-wellness/internal/config"
	"wisefido-wellness/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InactivityMonitor 静默（负空间）监测器
// 跟踪最近一次确认活动的时刻，按分钟节拍累计"计数时间"并与用户阈值
// 比较。静音时段暂停计数（只改变何时计数，不改变最终必然触发），但
// 绝对上限兜底，保证用户不会无限期无人问询
// 活动重置与提醒/超限标志在同一把锁内完成，"用户刚活动"与"即将触发"
// 竞争时永远偏向用户
type InactivityMonitor struct {
	mu     sync.Mutex
	config *config.Config
	logger *zap.Logger
	userID string

	lastActivityAt time.Time
	lastTickAt     time.Time
	countedIdle    time.Duration // 自最近活动起累计的非静音时长
	checkInSent    bool
	exceededSent   bool
	isHome         bool
}

// NewInactivityMonitor 创建静默监测器
// start 作为初始活动时刻（进程启动视为一次活动，检测器从零开始）
func NewInactivityMonitor(cfg *config.Config, userID string, start time.Time, logger *zap.Logger) *InactivityMonitor {
	return &InactivityMonitor{
		config:         cfg,
		logger:         logger,
		userID:         userID,
		lastActivityAt: start,
		lastTickAt:     start,
		isHome:         true,
	}
}

// RecordActivity 记录一次确认活动，原子重置计时与本轮标志
func (m *InactivityMonitor) RecordActivity(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if at.Before(m.lastActivityAt) {
		return
	}
	m.lastActivityAt = at
	if at.After(m.lastTickAt) {
		m.lastTickAt = at
	}
	m.countedIdle = 0
	m.checkInSent = false
	m.exceededSent = false
}

// SetHome 更新在家/离家上下文（只影响事件标记，不影响阈值）
func (m *InactivityMonitor) SetHome(isHome bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.isHome = isHome
}

// CountedIdle 当前已计数的静默时长（UI 只读信号）
func (m *InactivityMonitor) CountedIdle() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countedIdle
}

// Tick 周期节拍（秒级调用，累计按静音边界分段，与节拍步长无关）
// 计数时间达到阈值的 CheckInFraction（默认 0.75）→ 返回一次轻提醒；
// 达到阈值 → 返回静默超限事件；每个静默周期各至多一次
func (m *InactivityMonitor) Tick(now time.Time, mc *models.MonitoringConfig) (*models.CheckInPrompt, *models.DetectionEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if now.Before(m.lastTickAt) {
		return nil, nil
	}

	if mc == nil || !mc.InactivityAlertsEnabled {
		m.lastTickAt = now
		return nil, nil
	}

	// 精确累计上个节拍以来的非静音时长
	m.countedIdle += awakeBetween(m.lastTickAt, now, mc)
	m.lastTickAt = now

	if m.exceededSent {
		return nil, nil
	}

	threshold := mc.SilenceThreshold()

	// 绝对上限：即使全程处于静音时段也必须触发
	ceiling := time.Duration(m.config.Wellness.Inactivity.AbsoluteCeilingHours) * time.Hour
	rawElapsed := now.Sub(m.lastActivityAt)

	if m.countedIdle >= threshold || rawElapsed >= ceiling {
		m.exceededSent = true
		m.checkInSent = true
		return nil, m.buildEventLocked(now, threshold)
	}

	checkInAt := time.Duration(float64(threshold) * m.config.Wellness.Inactivity.CheckInFraction)
	if !m.checkInSent && m.countedIdle >= checkInAt {
		m.checkInSent = true
		return &models.CheckInPrompt{
			UserID:      m.userID,
			At:          now,
			CountedIdle: m.countedIdle,
			Threshold:   threshold,
		}, nil
	}

	return nil, nil
}

func (m *InactivityMonitor) buildEventLocked(now time.Time, threshold time.Duration) *models.DetectionEvent {
	event := &models.DetectionEvent{
		EventID:   uuid.New().String(),
		Kind:      models.EventInactivityExceeded,
		Urgency:   models.EventInactivityExceeded.DefaultUrgency(),
		Timestamp: now,
		Description: fmt.Sprintf("no confirmed activity for %s (threshold %s)",
			m.countedIdle.Round(time.Minute), threshold),
		IsHome: m.isHome,
	}

	m.logger.Info("Inactivity threshold exceeded",
		zap.String("event_id", event.EventID),
		zap.Duration("counted_idle", m.countedIdle),
		zap.Duration("threshold", threshold),
		zap.Bool("is_home", m.isHome),
	)

	return event
}

// awakeBetween 计算 [from, to) 区间内落在静音时段之外的时长
// 沿静音边界分段累加，与节拍步长无关，保证精确的暂停计数
func awakeBetween(from, to time.Time, mc *models.MonitoringConfig) time.Duration {
	if !to.After(from) {
		return 0
	}
	if !mc.QuietHoursEnabled {
		return to.Sub(from)
	}

	var total time.Duration
	cur := from
	for cur.Before(to) {
		boundary := nextQuietBoundary(cur, mc)
		if boundary.After(to) {
			boundary = to
		}
		if !mc.InQuietHours(cur) {
			total += boundary.Sub(cur)
		}
		cur = boundary
	}
	return total
}

// nextQuietBoundary 返回 cur 之后最近的静音状态翻转时刻（整点边界）
func nextQuietBoundary(cur time.Time, mc *models.MonitoringConfig) time.Time {
	startToday := hourOnDay(cur, mc.QuietStartHour)
	endToday := hourOnDay(cur, mc.QuietEndHour)

	next := time.Time{}
	for _, candidate := range []time.Time{
		startToday, endToday,
		startToday.Add(24 * time.Hour), endToday.Add(24 * time.Hour),
	} {
		if candidate.After(cur) && (next.IsZero() || candidate.Before(next)) {
			next = candidate
		}
	}
	return next
}

func hourOnDay(t time.Time, hour int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, t.Location())
}
