package escalation

import (
	"context"
	"sync"
	"time"

	"wisefido-wellness/internal/config"
	"wisefido-wellness/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ContactSource 关怀圈联系人来源（按通知顺序排列）
type ContactSource interface {
	GetContacts(ctx context.Context, userID string) ([]models.Contact, error)
}

// AlertDispatcher 告警投递器，对每个联系人返回送达记录
type AlertDispatcher interface {
	Dispatch(ctx context.Context, userName string, event *models.DetectionEvent, contacts []models.Contact) []models.ContactDelivery
}

// Archiver 已终结案例的归档存储
type Archiver interface {
	ArchiveCase(ctx context.Context, escalationCase *models.EscalationCase) error
}

// CaseNotifier 案例生命周期的对外通知（事件流 + 活动案例标记）
type CaseNotifier interface {
	PublishCaseUpdate(ctx context.Context, escalationCase *models.EscalationCase) error
	SetActiveCase(ctx context.Context, escalationCase *models.EscalationCase) error
	ClearActiveCase(ctx context.Context, userID string) error
}

// Coordinator 升级协调器
// 同一时刻最多持有一个活动案例：更高紧急度事件抢占（重置倒计时），
// 同级或更低紧急度并入现有案例
// 倒计时到期前用户确认（"我没事"）立即终结案例且保证投递器不会被调用；
// 投递一旦发出（dispatchIssued）即不可撤回，此后到达的更高紧急度事件
// 挂起，待当前案例终结后作为新案例开启
type Coordinator struct {
	mu     sync.Mutex
	config *config.Config
	logger *zap.Logger
	clock  Clock

	tenantID string
	userID   string
	userName string

	contacts   ContactSource
	dispatcher AlertDispatcher
	archiver   Archiver
	notifier   CaseNotifier

	active         *models.EscalationCase
	dispatchIssued bool
	pending        *models.DetectionEvent

	wg sync.WaitGroup
}

// NewCoordinator 创建升级协调器
func NewCoordinator(
	cfg *config.Config,
	tenantID, userID, userName string,
	contacts ContactSource,
	dispatcher AlertDispatcher,
	archiver Archiver,
	notifier CaseNotifier,
	clock Clock,
	logger *zap.Logger,
) *Coordinator {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Coordinator{
		config:     cfg,
		logger:     logger,
		clock:      clock,
		tenantID:   tenantID,
		userID:     userID,
		userName:   userName,
		contacts:   contacts,
		dispatcher: dispatcher,
		archiver:   archiver,
		notifier:   notifier,
	}
}

// Accept 接收检测事件：无活动案例则开启，有则按紧急度抢占或并入
func (c *Coordinator) Accept(ctx context.Context, event *models.DetectionEvent) {
	c.mu.Lock()

	if c.active == nil {
		snapshot := c.openLocked(event)
		c.mu.Unlock()
		c.notifyUpdate(ctx, snapshot, true)
		return
	}

	if event.Urgency <= c.active.Event.Urgency {
		c.logger.Info("Event coalesced into active case",
			zap.String("case_id", c.active.CaseID),
			zap.String("event_kind", string(event.Kind)),
			zap.String("active_kind", string(c.active.Event.Kind)),
		)
		c.mu.Unlock()
		return
	}

	if c.dispatchIssued {
		// 投递已不可撤回，新事件挂起，当前案例终结后再开启
		c.pending = event
		c.logger.Warn("Higher-urgency event pended behind issued dispatch",
			zap.String("case_id", c.active.CaseID),
			zap.String("event_kind", string(event.Kind)),
		)
		c.mu.Unlock()
		return
	}

	// 抢占：替换事件并按新事件类型重置倒计时
	now := c.clock.Now()
	c.active.Event = *event
	c.active.State = models.CaseAwaitingUser
	c.active.Deadline = now.Add(c.countdownFor(event.Kind))
	snapshot := c.active.Clone()
	c.logger.Warn("Active case preempted by higher-urgency event",
		zap.String("case_id", c.active.CaseID),
		zap.String("event_kind", string(event.Kind)),
		zap.Time("deadline", c.active.Deadline),
	)
	c.mu.Unlock()
	c.notifyUpdate(ctx, snapshot, true)
}

// UserOK 用户确认无事
// 投递发出前调用保证投递器不会被触发；发出后为时已晚，返回 false
func (c *Coordinator) UserOK(ctx context.Context) bool {
	c.mu.Lock()

	if c.active == nil {
		c.mu.Unlock()
		return false
	}
	if c.dispatchIssued {
		c.logger.Warn("User confirmation arrived after dispatch was issued",
			zap.String("case_id", c.active.CaseID),
		)
		c.mu.Unlock()
		return false
	}

	snapshot := c.resolveLocked(models.ResolutionUserCleared)
	c.mu.Unlock()

	c.logger.Info("Case cleared by user confirmation", zap.String("case_id", snapshot.CaseID))
	c.finalize(ctx, snapshot)
	return true
}

// Tick 倒计时节拍（每秒调用一次）
// 到期后进入升级态并取联系人快照；快照成功即发出投递（不可撤回）
func (c *Coordinator) Tick(ctx context.Context) {
	c.mu.Lock()

	if c.active == nil || c.dispatchIssued {
		c.mu.Unlock()
		return
	}

	now := c.clock.Now()
	if c.active.State == models.CaseAwaitingUser {
		if now.Before(c.active.Deadline) {
			c.mu.Unlock()
			return
		}
		c.active.State = models.CaseEscalating
		snapshot := c.active.Clone()
		c.logger.Warn("Countdown expired, escalating",
			zap.String("case_id", c.active.CaseID),
			zap.String("event_kind", string(c.active.Event.Kind)),
		)
		c.mu.Unlock()
		c.notifyUpdate(ctx, snapshot, false)
		c.mu.Lock()
	}

	if c.active == nil || c.active.State != models.CaseEscalating {
		c.mu.Unlock()
		return
	}

	caseID := c.active.CaseID
	c.mu.Unlock()

	// 取联系人时不持锁；期间用户仍可能确认无事
	contacts, err := c.contacts.GetContacts(ctx, c.userID)
	if err != nil {
		c.logger.Error("Failed to load contacts, will retry on next tick",
			zap.String("case_id", caseID),
			zap.Error(err),
		)
		return
	}

	c.mu.Lock()
	if c.active == nil || c.active.CaseID != caseID || c.active.State != models.CaseEscalating {
		c.mu.Unlock()
		return
	}

	// 此刻起投递不可撤回
	c.dispatchIssued = true
	c.active.State = models.CaseNotifyingContacts
	event := c.active.Event
	snapshot := c.active.Clone()
	c.mu.Unlock()

	c.notifyUpdate(ctx, snapshot, false)
	c.logger.Warn("Dispatching alerts to contacts",
		zap.String("case_id", caseID),
		zap.Int("contact_count", len(contacts)),
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		deliveries := c.dispatcher.Dispatch(ctx, c.userName, &event, contacts)
		c.completeDispatch(ctx, caseID, deliveries)
	}()
}

// completeDispatch 投递结束后终结案例并归档
func (c *Coordinator) completeDispatch(ctx context.Context, caseID string, deliveries []models.ContactDelivery) {
	c.mu.Lock()
	if c.active == nil || c.active.CaseID != caseID {
		c.mu.Unlock()
		return
	}

	c.active.Deliveries = deliveries
	for _, d := range deliveries {
		if d.Status != models.DeliverySent {
			c.active.PartialFailure = true
			break
		}
	}
	snapshot := c.resolveLocked(models.ResolutionContactsNotified)
	next := c.pending
	c.pending = nil
	c.mu.Unlock()

	c.logger.Info("Case resolved after contact notification",
		zap.String("case_id", snapshot.CaseID),
		zap.Bool("partial_failure", snapshot.PartialFailure),
	)
	c.finalize(ctx, snapshot)

	if next != nil {
		c.Accept(ctx, next)
	}
}

// openLocked 开启新案例（调用方持锁），返回对外快照
func (c *Coordinator) openLocked(event *models.DetectionEvent) *models.EscalationCase {
	now := c.clock.Now()
	c.active = &models.EscalationCase{
		CaseID:   uuid.New().String(),
		TenantID: c.tenantID,
		UserID:   c.userID,
		Event:    *event,
		State:    models.CaseAwaitingUser,
		OpenedAt: now,
		Deadline: now.Add(c.countdownFor(event.Kind)),
	}
	c.dispatchIssued = false
	c.logger.Warn("Escalation case opened",
		zap.String("case_id", c.active.CaseID),
		zap.String("event_kind", string(event.Kind)),
		zap.String("urgency", event.Urgency.String()),
		zap.Time("deadline", c.active.Deadline),
	)
	return c.active.Clone()
}

// resolveLocked 终结活动案例（调用方持锁），返回终态快照
func (c *Coordinator) resolveLocked(resolution models.Resolution) *models.EscalationCase {
	now := c.clock.Now()
	c.active.State = models.CaseResolved
	c.active.Resolution = resolution
	c.active.ResolvedAt = &now
	snapshot := c.active
	c.active = nil
	c.dispatchIssued = false
	return snapshot
}

// finalize 归档终态案例并对外通知
func (c *Coordinator) finalize(ctx context.Context, snapshot *models.EscalationCase) {
	if c.archiver != nil {
		if err := c.archiver.ArchiveCase(ctx, snapshot); err != nil {
			c.logger.Error("Failed to archive resolved case",
				zap.String("case_id", snapshot.CaseID),
				zap.Error(err),
			)
		}
	}
	if c.notifier != nil {
		if err := c.notifier.PublishCaseUpdate(ctx, snapshot); err != nil {
			c.logger.Error("Failed to publish case update",
				zap.String("case_id", snapshot.CaseID),
				zap.Error(err),
			)
		}
		if err := c.notifier.ClearActiveCase(ctx, snapshot.UserID); err != nil {
			c.logger.Error("Failed to clear active case marker",
				zap.String("case_id", snapshot.CaseID),
				zap.Error(err),
			)
		}
	}
}

// notifyUpdate 对外发布案例更新；markActive 时同步刷新活动案例标记
func (c *Coordinator) notifyUpdate(ctx context.Context, snapshot *models.EscalationCase, markActive bool) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.PublishCaseUpdate(ctx, snapshot); err != nil {
		c.logger.Error("Failed to publish case update",
			zap.String("case_id", snapshot.CaseID),
			zap.Error(err),
		)
	}
	if markActive {
		if err := c.notifier.SetActiveCase(ctx, snapshot); err != nil {
			c.logger.Error("Failed to set active case marker",
				zap.String("case_id", snapshot.CaseID),
				zap.Error(err),
			)
		}
	}
}

// Snapshot 活动案例快照（无活动案例返回 nil）
func (c *Coordinator) Snapshot() *models.EscalationCase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active.Clone()
}

// CountdownRemaining 当前倒计时剩余时长（无活动倒计时返回 0 和 false）
func (c *Coordinator) CountdownRemaining() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || c.active.State != models.CaseAwaitingUser {
		return 0, false
	}
	return c.active.CountdownRemaining(c.clock.Now()), true
}

// Close 等待在途投递完成
func (c *Coordinator) Close() {
	c.wg.Wait()
}

func (c *Coordinator) countdownFor(kind models.EventKind) time.Duration {
	if kind == models.EventFallCandidate {
		return time.Duration(c.config.Wellness.Escalation.FallCountdownSec) * time.Second
	}
	return time.Duration(c.config.Wellness.Escalation.DefaultCountdownSec) * time.Second
}
