package models

import "time"

// SignalKind 活动信号类型
type SignalKind string

const (
	SignalStepDelta  SignalKind = "step_delta"  // 步数增量
	SignalFloorDelta SignalKind = "floor_delta" // 楼层增量
	SignalMotion     SignalKind = "motion"      // 加速度计强度（约 50Hz）
	SignalUnlock     SignalKind = "unlock"      // 手机解锁/前台事件
)

// ActivitySample 活动样本（不可变，由信号源持续产生）
type ActivitySample struct {
	Timestamp time.Time  `json:"timestamp"`
	Kind      SignalKind `json:"kind"`
	Magnitude float64    `json:"magnitude"`
}

// IsQualifyingActivity 是否为"确认用户有活动"的信号
// 步数增量 > 0、解锁事件、楼层增量 > 0 都会重置静默计时
func (s ActivitySample) IsQualifyingActivity() bool {
	switch s.Kind {
	case SignalStepDelta, SignalFloorDelta:
		return s.Magnitude > 0
	case SignalUnlock:
		return true
	default:
		return false
	}
}
