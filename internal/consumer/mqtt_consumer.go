package consumer

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"wisefido-wellness/internal/common/mqtt"
	"wisefido-wellness/internal/config"
	"wisefido-wellness/internal/models"

	"go.uber.org/zap"
)

// SampleSink 样本接收端（由检测引擎实现）
// Enqueue 类方法必须快速返回，阻塞会反压到 MQTT 回调线程
type SampleSink interface {
	EnqueueSample(sample models.ActivitySample)
	EnqueueCheckIn(at time.Time)
	SetHome(isHome bool)
	MarkMotionUnavailable()
}

// MotionPayload 运动强度消息（加速度计合成加速度，约 50Hz 抽稀后上报）
type MotionPayload struct {
	Timestamp time.Time `json:"timestamp"`
	Magnitude float64   `json:"magnitude"` // 合成加速度（g）
	Available *bool     `json:"available,omitempty"`
}

// ActivityPayload 活动信号消息（步数增量/楼层增量/解锁）
type ActivityPayload struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Magnitude float64   `json:"magnitude"`
	IsHome    *bool     `json:"is_home,omitempty"`
}

// CheckInPayload 用户确认消息（"I'm OK"）
type CheckInPayload struct {
	Timestamp time.Time `json:"timestamp"`
}

// Consumer MQTT 传感器数据消费者
// 订阅 motion / activity / checkin 三类主题，解析后投入检测引擎
type Consumer struct {
	config     *config.Config
	logger     *zap.Logger
	mqttClient *mqtt.Client
	sink       SampleSink
	userID     string
}

// NewConsumer 创建 MQTT 消费者
func NewConsumer(cfg *config.Config, mqttClient *mqtt.Client, sink SampleSink, userID string, logger *zap.Logger) *Consumer {
	return &Consumer{
		config:     cfg,
		logger:     logger,
		mqttClient: mqttClient,
		sink:       sink,
		userID:     userID,
	}
}

// Start 订阅传感器主题
func (c *Consumer) Start() error {
	qos := c.config.MQTT.QoS

	if err := c.mqttClient.Subscribe(c.config.Wellness.Topics.Motion, qos, c.HandleMotion); err != nil {
		return fmt.Errorf("failed to subscribe motion topic: %w", err)
	}
	if err := c.mqttClient.Subscribe(c.config.Wellness.Topics.Activity, qos, c.HandleActivity); err != nil {
		return fmt.Errorf("failed to subscribe activity topic: %w", err)
	}
	if err := c.mqttClient.Subscribe(c.config.Wellness.Topics.CheckIn, qos, c.HandleCheckIn); err != nil {
		return fmt.Errorf("failed to subscribe checkin topic: %w", err)
	}

	c.logger.Info("MQTT consumer started",
		zap.String("user_id", c.userID),
		zap.String("motion_topic", c.config.Wellness.Topics.Motion),
		zap.String("activity_topic", c.config.Wellness.Topics.Activity),
		zap.String("checkin_topic", c.config.Wellness.Topics.CheckIn),
	)
	return nil
}

// Stop 取消订阅
func (c *Consumer) Stop() error {
	return c.mqttClient.Unsubscribe(
		c.config.Wellness.Topics.Motion,
		c.config.Wellness.Topics.Activity,
		c.config.Wellness.Topics.CheckIn,
	)
}

// HandleMotion 处理运动强度消息
func (c *Consumer) HandleMotion(topic string, payload []byte) error {
	if !c.topicMatchesUser(topic) {
		return nil
	}

	var msg MotionPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal motion payload: %w", err)
	}

	if msg.Available != nil && !*msg.Available {
		c.logger.Warn("Motion sensor reported unavailable", zap.String("user_id", c.userID))
		c.sink.MarkMotionUnavailable()
		return nil
	}
	if msg.Magnitude < 0 {
		return fmt.Errorf("invalid motion magnitude: %f", msg.Magnitude)
	}

	c.sink.EnqueueSample(models.ActivitySample{
		Timestamp: c.timestampOrNow(msg.Timestamp),
		Kind:      models.SignalMotion,
		Magnitude: msg.Magnitude,
	})
	return nil
}

// HandleActivity 处理活动信号消息
func (c *Consumer) HandleActivity(topic string, payload []byte) error {
	if !c.topicMatchesUser(topic) {
		return nil
	}

	var msg ActivityPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal activity payload: %w", err)
	}

	kind := models.SignalKind(msg.Kind)
	switch kind {
	case models.SignalStepDelta, models.SignalFloorDelta, models.SignalUnlock:
	default:
		return fmt.Errorf("unknown activity kind: %s", msg.Kind)
	}
	if msg.Magnitude < 0 {
		return fmt.Errorf("invalid activity magnitude: %f", msg.Magnitude)
	}

	if msg.IsHome != nil {
		c.sink.SetHome(*msg.IsHome)
	}

	c.sink.EnqueueSample(models.ActivitySample{
		Timestamp: c.timestampOrNow(msg.Timestamp),
		Kind:      kind,
		Magnitude: msg.Magnitude,
	})
	return nil
}

// HandleCheckIn 处理用户确认消息
func (c *Consumer) HandleCheckIn(topic string, payload []byte) error {
	if !c.topicMatchesUser(topic) {
		return nil
	}

	var msg CheckInPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal checkin payload: %w", err)
	}

	c.sink.EnqueueCheckIn(c.timestampOrNow(msg.Timestamp))
	return nil
}

// topicMatchesUser 校验主题中的用户段（wellness/{user}/motion）
func (c *Consumer) topicMatchesUser(topic string) bool {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return false
	}
	return parts[1] == c.userID
}

func (c *Consumer) timestampOrNow(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now()
	}
	return ts
}
