package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wisefido-wellness/internal/common/redis"
	"wisefido-wellness/internal/config"
	"wisefido-wellness/internal/models"

	goredis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// StreamMessage 事件流消息（UI 订阅 wellness:events 获取实时更新）
type StreamMessage struct {
	Type      string      `json:"type"` // "check_in_prompt" | "case_update"
	UserID    string      `json:"user_id"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// Notifier 对外通知器
// 事件流推送（Redis Streams）+ 状态快照缓存（UI 轮询）+
// 活动案例标记（跨重启检测未决案例丢失）
type Notifier struct {
	config *config.Config
	client *goredis.Client
	kv     KVStore
	logger *zap.Logger
}

// NewNotifier 创建通知器
func NewNotifier(cfg *config.Config, client *goredis.Client, kv KVStore, logger *zap.Logger) *Notifier {
	return &Notifier{
		config: cfg,
		client: client,
		kv:     kv,
		logger: logger,
	}
}

// PublishCheckInPrompt 发布轻提醒（"您还好吗"），不开案例
func (n *Notifier) PublishCheckInPrompt(ctx context.Context, prompt *models.CheckInPrompt) error {
	msg := StreamMessage{
		Type:      "check_in_prompt",
		UserID:    prompt.UserID,
		Payload:   prompt,
		Timestamp: prompt.At,
	}

	id, err := redis.PublishJSONToStream(ctx, n.client, n.config.Wellness.Streams.Events, msg)
	if err != nil {
		return fmt.Errorf("failed to publish check-in prompt: %w", err)
	}

	n.logger.Info("Check-in prompt published",
		zap.String("user_id", prompt.UserID),
		zap.String("stream_id", id),
	)
	return nil
}

// PublishCaseUpdate 发布案例生命周期更新
func (n *Notifier) PublishCaseUpdate(ctx context.Context, escalationCase *models.EscalationCase) error {
	msg := StreamMessage{
		Type:      "case_update",
		UserID:    escalationCase.UserID,
		Payload:   escalationCase,
		Timestamp: time.Now(),
	}

	id, err := redis.PublishJSONToStream(ctx, n.client, n.config.Wellness.Streams.Events, msg)
	if err != nil {
		return fmt.Errorf("failed to publish case update: %w", err)
	}

	n.logger.Info("Case update published",
		zap.String("case_id", escalationCase.CaseID),
		zap.String("state", string(escalationCase.State)),
		zap.String("stream_id", id),
	)
	return nil
}

// UpdateStatus 刷新用户状态快照缓存（UI 拉取）
func (n *Notifier) UpdateStatus(ctx context.Context, status *models.EngineStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal engine status: %w", err)
	}

	key := n.statusKey(status.UserID)
	ttl := time.Duration(n.config.Wellness.Cache.StatusTTL) * time.Second
	if err := n.kv.Set(ctx, key, string(data), ttl); err != nil {
		return fmt.Errorf("failed to cache engine status: %w", err)
	}
	return nil
}

// SetActiveCase 写入活动案例标记
// 进程重启后发现标记残留即说明有未决案例丢失（需要记录并告警）
func (n *Notifier) SetActiveCase(ctx context.Context, escalationCase *models.EscalationCase) error {
	data, err := json.Marshal(escalationCase)
	if err != nil {
		return fmt.Errorf("failed to marshal case: %w", err)
	}

	key := n.caseKey(escalationCase.UserID)
	ttl := time.Duration(n.config.Wellness.Cache.CaseTTL) * time.Second
	if err := n.kv.Set(ctx, key, string(data), ttl); err != nil {
		return fmt.Errorf("failed to set active case marker: %w", err)
	}
	return nil
}

// GetActiveCase 读取活动案例标记（不存在返回 nil, nil）
func (n *Notifier) GetActiveCase(ctx context.Context, userID string) (*models.EscalationCase, error) {
	val, err := n.kv.Get(ctx, n.caseKey(userID))
	if err != nil {
		if err == ErrCacheMiss {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active case marker: %w", err)
	}

	var escalationCase models.EscalationCase
	if err := json.Unmarshal([]byte(val), &escalationCase); err != nil {
		return nil, fmt.Errorf("failed to unmarshal active case marker: %w", err)
	}
	return &escalationCase, nil
}

// ClearActiveCase 清除活动案例标记
func (n *Notifier) ClearActiveCase(ctx context.Context, userID string) error {
	if err := n.kv.Del(ctx, n.caseKey(userID)); err != nil {
		return fmt.Errorf("failed to clear active case marker: %w", err)
	}
	return nil
}

func (n *Notifier) statusKey(userID string) string {
	return n.config.Wellness.Cache.StatusKeyPrefix + userID + n.config.Wellness.Cache.StatusSuffix
}

func (n *Notifier) caseKey(userID string) string {
	return n.config.Wellness.Cache.CaseKeyPrefix + userID + n.config.Wellness.Cache.CaseSuffix
}
