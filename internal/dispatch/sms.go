package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"wisefido-wellness/internal/config"
	"wisefido-wellness/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// SMSRequest 短信网关请求
type SMSRequest struct {
	To   string `json:"to"`
	From string `json:"from"`
	Body string `json:"body"`
}

// SMSResponse 短信网关响应
type SMSResponse struct {
	Status    int    `json:"status"`
	Msg       string `json:"msg"`
	MessageID string `json:"message_id,omitempty"`
}

// SMSDispatcher 短信告警投递器
// 按联系人顺序逐个投递，单个失败不中断后续联系人，
// 每个联系人返回独立的送达记录
type SMSDispatcher struct {
	httpClient *resty.Client
	sender     string
	logger     *zap.Logger
}

// NewSMSDispatcher 创建短信投递器
func NewSMSDispatcher(cfg *config.Config, logger *zap.Logger) *SMSDispatcher {
	client := resty.New().
		SetBaseURL(cfg.SMS.GatewayURL).
		SetTimeout(time.Duration(cfg.SMS.TimeoutSec) * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("Authorization", "Bearer "+cfg.SMS.APIKey)

	return &SMSDispatcher{
		httpClient: client,
		sender:     cfg.SMS.Sender,
		logger:     logger,
	}
}

// Dispatch 向所有联系人投递告警短信
func (d *SMSDispatcher) Dispatch(ctx context.Context, userName string, event *models.DetectionEvent, contacts []models.Contact) []models.ContactDelivery {
	body := BuildAlertMessage(userName, event)

	deliveries := make([]models.ContactDelivery, 0, len(contacts))
	for _, contact := range contacts {
		delivery := models.ContactDelivery{Contact: contact, Status: models.DeliverySent}
		if err := d.send(ctx, contact.Phone, body); err != nil {
			delivery.Status = models.DeliveryFailed
			delivery.Reason = err.Error()
			d.logger.Error("SMS delivery failed",
				zap.String("contact_id", contact.ContactID),
				zap.String("event_id", event.EventID),
				zap.Error(err),
			)
		} else {
			d.logger.Info("SMS delivered",
				zap.String("contact_id", contact.ContactID),
				zap.String("event_id", event.EventID),
			)
		}
		deliveries = append(deliveries, delivery)
	}
	return deliveries
}

func (d *SMSDispatcher) send(ctx context.Context, phone, body string) error {
	request := SMSRequest{
		To:   phone,
		From: d.sender,
		Body: body,
	}

	var response SMSResponse
	resp, err := d.httpClient.R().
		SetContext(ctx).
		SetBody(request).
		SetResult(&response).
		Post("/messages")

	if err != nil {
		return fmt.Errorf("failed to call SMS gateway: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("SMS gateway returned HTTP %d", resp.StatusCode())
	}
	if response.Status != 0 {
		return fmt.Errorf("SMS gateway error: %s (status: %d)", response.Msg, response.Status)
	}
	return nil
}

// BuildAlertMessage 生成联系人短信文案
// 用户不在家时附加位置提示，帮助联系人决定先打电话还是直接上门
func BuildAlertMessage(userName string, event *models.DetectionEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Wellness alert for %s: %s.", userName, event.Kind.Display())
	if event.Description != "" {
		fmt.Fprintf(&b, " %s.", capitalize(event.Description))
	}
	if !event.IsHome {
		fmt.Fprintf(&b, " %s may not be at home.", userName)
	}
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
