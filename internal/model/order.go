package model

import (
	"time"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
	OrderStatusRefunded  = "refunded"
)

// ValidStatusTransitions 结算只会走 pending -> completed，
// cancelled / refunded 为后续退款流程预留
var ValidStatusTransitions = map[string][]string{
	OrderStatusPending:   {OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusCompleted: {OrderStatusRefunded},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// Order 买家的一次批量购买
// TotalAmount 必须等于各 Payment 金额之和（服务端校验）
// IdempotencyKey 与 UserID 组成唯一键，为空时不参与去重
type Order struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo        string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"`
	UserID         int64     `gorm:"uniqueIndex:uk_order_buyer_idem;index;not null" json:"user_id"`
	IdempotencyKey *string   `gorm:"type:varchar(64);uniqueIndex:uk_order_buyer_idem" json:"idempotency_key,omitempty"`
	RequestHash    string    `gorm:"type:char(64)" json:"-"` // 带幂等键时记录请求指纹，重放时比对
	TotalAmount    int64     `gorm:"not null" json:"total_amount"`
	Currency       string    `gorm:"type:varchar(8);not null" json:"currency"`
	Status         string    `gorm:"type:varchar(20);index;not null" json:"status"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Payments []Payment `gorm:"foreignKey:OrderID" json:"payments,omitempty"`
}

func (Order) TableName() string {
	return "orders"
}
