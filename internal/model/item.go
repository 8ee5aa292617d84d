package model

import (
	"time"
)

// MarketplaceItem 商品。ID 由调用方提供，全局唯一
// UserName / UserEmail 是创建时的卖家快照，之后不再同步
type MarketplaceItem struct {
	ID          string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(255);not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Price       int64     `gorm:"not null" json:"price"`
	Currency    string    `gorm:"type:varchar(8);not null" json:"currency"`
	UserID      int64     `gorm:"index;not null" json:"user_id"`
	UserName    string    `gorm:"type:varchar(80);not null" json:"user_name"`
	UserEmail   string    `gorm:"type:varchar(120);not null" json:"user_email"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (MarketplaceItem) TableName() string {
	return "marketplace_items"
}
