package models

import "time"

// 静默阈值允许范围：[2h, 12h]，30 分钟粒度
const (
	MinSilenceThresholdMinutes  = 120
	MaxSilenceThresholdMinutes  = 720
	SilenceThresholdStepMinutes = 30
)

// MonitoringConfig 监测配置（由设置界面写入，所有检测器读取）
// 非法值一律钳制到合法范围，不拒绝（宁可降级运行也不停止监测）
type MonitoringConfig struct {
	UserID string `json:"user_id" db:"user_id"`

	// 静默阈值（分钟），合法范围 [120, 720]，30 分钟粒度
	SilenceThresholdMinutes int `json:"silence_threshold_minutes" db:"silence_threshold_minutes"`

	// 静音时段（本地小时，[start, end)，可跨午夜；可选）
	QuietHoursEnabled bool `json:"quiet_hours_enabled" db:"quiet_hours_enabled"`
	QuietStartHour    int  `json:"quiet_start_hour" db:"quiet_start_hour"`
	QuietEndHour      int  `json:"quiet_end_hour" db:"quiet_end_hour"`

	// 夜猫子标志（抑制"深夜活动异常"类偏离检查）
	NightOwl bool `json:"night_owl" db:"night_owl"`

	FallDetectionEnabled    bool `json:"fall_detection_enabled" db:"fall_detection_enabled"`
	InactivityAlertsEnabled bool `json:"inactivity_alerts_enabled" db:"inactivity_alerts_enabled"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DefaultMonitoringConfig 默认监测配置
func DefaultMonitoringConfig(userID string, defaultThresholdMinutes int) *MonitoringConfig {
	cfg := &MonitoringConfig{
		UserID:                  userID,
		SilenceThresholdMinutes: defaultThresholdMinutes,
		QuietHoursEnabled:       false,
		FallDetectionEnabled:    true,
		InactivityAlertsEnabled: true,
	}
	cfg.Normalize()
	return cfg
}

// Normalize 钳制所有字段到合法范围
func (c *MonitoringConfig) Normalize() {
	if c.SilenceThresholdMinutes < MinSilenceThresholdMinutes {
		c.SilenceThresholdMinutes = MinSilenceThresholdMinutes
	}
	if c.SilenceThresholdMinutes > MaxSilenceThresholdMinutes {
		c.SilenceThresholdMinutes = MaxSilenceThresholdMinutes
	}
	// 对齐到 30 分钟粒度（向下取整）
	c.SilenceThresholdMinutes -= c.SilenceThresholdMinutes % SilenceThresholdStepMinutes

	c.QuietStartHour = clampHour(c.QuietStartHour)
	c.QuietEndHour = clampHour(c.QuietEndHour)
}

// SilenceThreshold 钳制后的静默阈值
func (c *MonitoringConfig) SilenceThreshold() time.Duration {
	minutes := c.SilenceThresholdMinutes
	if minutes < MinSilenceThresholdMinutes {
		minutes = MinSilenceThresholdMinutes
	}
	if minutes > MaxSilenceThresholdMinutes {
		minutes = MaxSilenceThresholdMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// InQuietHours 判断时刻 t 是否落在静音时段内
// 区间为 [start, end)，支持跨午夜（如 22:00–07:00）
func (c *MonitoringConfig) InQuietHours(t time.Time) bool {
	if !c.QuietHoursEnabled {
		return false
	}
	start := c.QuietStartHour
	end := c.QuietEndHour
	if start == end {
		return false
	}
	h := t.Hour()
	if start < end {
		return h >= start && h < end
	}
	// 跨午夜
	return h >= start || h < end
}

func clampHour(h int) int {
	if h < 0 {
		return 0
	}
	if h > 23 {
		return 23
	}
	return h
}
