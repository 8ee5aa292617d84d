package model

import (
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// 事件类型
const (
	EventItemSold     = "item_sold"
	EventPayoutResult = "payout_result"
)

// OutboxMessage 待投递到 Kafka 的通知消息，由 OutboxSender 轮询发送
type OutboxMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string    `gorm:"type:varchar(64);not null" json:"message_key"`
	Topic      string    `gorm:"type:varchar(64);not null" json:"topic"`
	EventType  string    `gorm:"type:varchar(32);not null" json:"event_type"`
	UserID     int64     `gorm:"index;not null" json:"user_id"` // 通知接收人
	Payload    string    `gorm:"type:text;not null" json:"payload"`
	Status     string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int       `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}

// AllModels 自动迁移使用的全部表
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&MarketplaceItem{},
		&Order{},
		&Payment{},
		&SalesTransaction{},
		&PayoutIntent{},
		&OutboxMessage{},
	}
}
