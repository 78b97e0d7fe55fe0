package models

import "time"

// CaseState 升级案例状态
type CaseState string

const (
	CaseOpened            CaseState = "opened"
	CaseAwaitingUser      CaseState = "awaiting_user_response"
	CaseEscalating        CaseState = "escalating"
	CaseNotifyingContacts CaseState = "notifying_contacts"
	CaseResolved          CaseState = "resolved"
)

// Resolution 案例终态
type Resolution string

const (
	ResolutionUserCleared      Resolution = "user_cleared"      // 用户确认无事
	ResolutionContactsNotified Resolution = "contacts_notified" // 已通知关怀圈（含部分失败）
	ResolutionCancelled        Resolution = "cancelled"
	ResolutionLostOnRestart    Resolution = "lost_on_restart"   // 进程重启丢失的未决案例
)

// DeliveryStatus 单个联系人的送达状态
type DeliveryStatus string

const (
	DeliveryNotSent DeliveryStatus = "not_sent"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// ContactDelivery 联系人送达记录
type ContactDelivery struct {
	Contact Contact        `json:"contact"`
	Status  DeliveryStatus `json:"status"`
	Reason  string         `json:"reason,omitempty"` // 失败原因
}

// EscalationCase 一次在途升级的完整状态
// 同一用户同一时刻最多存在一个活动案例
type EscalationCase struct {
	CaseID   string `json:"case_id"`
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`

	Event DetectionEvent `json:"event"`
	State CaseState      `json:"state"`

	OpenedAt time.Time `json:"opened_at"`
	Deadline time.Time `json:"deadline"` // 倒计时到期时刻，未决期间恒在未来

	Deliveries     []ContactDelivery `json:"deliveries,omitempty"`
	PartialFailure bool              `json:"partial_failure"`

	Resolution Resolution `json:"resolution,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// CountdownRemaining 倒计时剩余时长（已过期或非倒计时状态返回 0）
func (c *EscalationCase) CountdownRemaining(now time.Time) time.Duration {
	if c.State != CaseAwaitingUser {
		return 0
	}
	remaining := c.Deadline.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Clone 深拷贝（用于对外快照，避免外部修改协调器内部状态）
func (c *EscalationCase) Clone() *EscalationCase {
	if c == nil {
		return nil
	}
	cp := *c
	if c.Deliveries != nil {
		cp.Deliveries = make([]ContactDelivery, len(c.Deliveries))
		copy(cp.Deliveries, c.Deliveries)
	}
	if c.ResolvedAt != nil {
		t := *c.ResolvedAt
		cp.ResolvedAt = &t
	}
	return &cp
}
