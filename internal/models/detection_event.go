package models

import "time"

// EventKind 检测事件类型
type EventKind string

const (
	EventFallCandidate      EventKind = "fall_candidate"       // 冲击后静止，疑似跌倒
	EventInactivityExceeded EventKind = "inactivity_exceeded"  // 静默时长超过阈值
	EventPatternDeviation   EventKind = "pattern_deviation"    // 活动模式持续偏离基线
)

// Urgency 事件紧急程度（数值越大越紧急，用于案例抢占比较）
type Urgency int

const (
	UrgencyLow    Urgency = 1 // 模式偏离
	UrgencyMedium Urgency = 2 // 静默超限
	UrgencyHigh   Urgency = 3 // 跌倒候选
)

// String 紧急程度显示名称
func (u Urgency) String() string {
	switch u {
	case UrgencyLow:
		return "low"
	case UrgencyMedium:
		return "medium"
	case UrgencyHigh:
		return "high"
	default:
		return "unknown"
	}
}

// DetectionEvent 检测事件（由检测器产生，升级协调器消费一次后丢弃）
type DetectionEvent struct {
	EventID     string    `json:"event_id"`
	Kind        EventKind `json:"kind"`
	Urgency     Urgency   `json:"urgency"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
	IsHome      bool      `json:"is_home"`
}

// DefaultUrgency 事件类型的默认紧急程度
func (k EventKind) DefaultUrgency() Urgency {
	switch k {
	case EventFallCandidate:
		return UrgencyHigh
	case EventInactivityExceeded:
		return UrgencyMedium
	case EventPatternDeviation:
		return UrgencyLow
	default:
		return UrgencyLow
	}
}

// Display 事件类型显示名称（用于通知文案）
func (k EventKind) Display() string {
	switch k {
	case EventFallCandidate:
		return "possible fall"
	case EventInactivityExceeded:
		return "prolonged inactivity"
	case EventPatternDeviation:
		return "unusual activity pattern"
	default:
		return string(k)
	}
}
