package models

import "time"

// CheckInPrompt 轻提醒（静默时长达到阈值的 75% 时发给用户，非检测事件）
type CheckInPrompt struct {
	UserID      string        `json:"user_id"`
	At          time.Time     `json:"at"`
	CountedIdle time.Duration `json:"counted_idle"`
	Threshold   time.Duration `json:"threshold"`
}

// EngineStatus UI 拉取的只读状态快照（写入 Redis 状态键）
type EngineStatus struct {
	UserID string `json:"user_id"`

	// 基线学习进度（学习完成后 DaysIntoLearning 为 nil）
	DaysIntoLearning *int `json:"days_into_learning,omitempty"`
	LearningComplete bool `json:"learning_complete"`

	// 检测器状态
	FallDetectorState string `json:"fall_detector_state"`
	CountedIdleSec    int64  `json:"counted_idle_sec"`

	// 活动案例（无活动案例时为 nil）
	ActiveCaseID          *string `json:"active_case_id,omitempty"`
	ActiveCaseState       *string `json:"active_case_state,omitempty"`
	CountdownRemainingSec *int64  `json:"countdown_remaining_sec,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}
