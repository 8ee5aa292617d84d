package model

import (
	"time"
)

const (
	PayoutKindPayout   = "payout"
	PayoutKindTransfer = "transfer"
)

const (
	PayoutStatusPending   = "pending"
	PayoutStatusSucceeded = "succeeded"
	PayoutStatusFailed    = "failed"
)

// PayoutIntent 提现意图。先扣本地余额并落库，再调用外部渠道；
// IntentNo 同时作为外部渠道的幂等键，对账任务据此重放调用
type PayoutIntent struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	IntentNo      string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"intent_no"`
	UserID        int64     `gorm:"index;not null" json:"user_id"`
	Kind          string    `gorm:"type:varchar(16);not null" json:"kind"`
	Amount        int64     `gorm:"not null" json:"amount"`
	Currency      string    `gorm:"type:varchar(8);not null" json:"currency"`
	Destination   string    `gorm:"type:varchar(128);not null" json:"destination"`
	Status        string    `gorm:"type:varchar(20);index;not null" json:"status"`
	ExternalRef   string    `gorm:"type:varchar(128)" json:"external_ref,omitempty"`
	FailureReason string    `gorm:"type:varchar(512)" json:"failure_reason,omitempty"`
	Attempts      int       `gorm:"not null;default:0" json:"attempts"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime;index" json:"updated_at"`
}

func (PayoutIntent) TableName() string {
	return "payout_intents"
}
