package model

import (
	"time"
)

const PaymentStatusSuccess = "success"

// Payment 订单中的一行，每个商品一条
type Payment struct {
	ID                int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MarketplaceItemID string    `gorm:"type:varchar(64);index;not null" json:"marketplace_item_id"`
	OrderID           int64     `gorm:"index;not null" json:"order_id"`
	Amount            int64     `gorm:"not null" json:"amount"`
	Status            string    `gorm:"type:varchar(20);not null" json:"status"`
	TransactionDate   time.Time `gorm:"not null" json:"transaction_date"`
}

func (Payment) TableName() string {
	return "payments"
}

// SalesTransaction 分账审计记录，与 Payment 一一对应，只追加不修改
// 不变量：YourShare + SellerShare == Payment.Amount
type SalesTransaction struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ItemID          string    `gorm:"type:varchar(64);index;not null" json:"item_id"`
	UserID          int64     `gorm:"index;not null" json:"user_id"` // 卖家
	OrderID         int64     `gorm:"index;not null" json:"order_id"`
	PaymentID       int64     `gorm:"uniqueIndex;not null" json:"payment_id"`
	YourShare       int64     `gorm:"not null" json:"your_share"`   // 平台抽成
	SellerShare     int64     `gorm:"not null" json:"seller_share"` // 卖家所得
	TransactionDate time.Time `gorm:"not null;index" json:"transaction_date"`
}

func (SalesTransaction) TableName() string {
	return "sales_transactions"
}
