package service

import (
	"context"
	"encoding/json"
	"strconv"

	"gorm.io/gorm"

	"marketpay/internal/config"
	"marketpay/internal/model"
	"marketpay/internal/repository"
)

// OutboxNotifier 把通知写入 outbox 表，由 OutboxSender 异步投递到 Kafka
type OutboxNotifier struct {
	outboxRepo *repository.OutboxRepository
	topics     map[string]string
}

func NewOutboxNotifier(db *gorm.DB, cfg *config.Config) *OutboxNotifier {
	return &OutboxNotifier{
		outboxRepo: repository.NewOutboxRepository(db),
		topics: map[string]string{
			model.EventItemSold:     cfg.Kafka.Topic.ItemSold,
			model.EventPayoutResult: cfg.Kafka.Topic.PayoutResult,
		},
	}
}

func (n *OutboxNotifier) Notify(ctx context.Context, userID int64, eventType string, payload map[string]interface{}) error {
	topic, ok := n.topics[eventType]
	if !ok || topic == "" {
		return validationError("未知的通知类型: %s", eventType)
	}

	body := make(map[string]interface{}, len(payload)+2)
	for k, v := range payload {
		body[k] = v
	}
	body["event_type"] = eventType
	body["user_id"] = userID

	payloadBytes, err := json.Marshal(body)
	if err != nil {
		return err
	}

	return n.outboxRepo.Create(ctx, nil, &model.OutboxMessage{
		MessageKey: strconv.FormatInt(userID, 10),
		Topic:      topic,
		EventType:  eventType,
		UserID:     userID,
		Payload:    string(payloadBytes),
		Status:     model.OutboxStatusPending,
	})
}
