package model

import (
	"time"
)

// User 用户表，同时承载卖家的可提现余额
// AccountBalance 以最小货币单位（分）存储，只能经由余额账本修改
type User struct {
	ID                  int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AuthRef             string    `gorm:"type:varchar(128);uniqueIndex;not null" json:"-"` // 身份提供方的 subject
	Username            string    `gorm:"type:varchar(80)" json:"username"`
	Email               string    `gorm:"type:varchar(120)" json:"email"`
	AccountBalance      int64     `gorm:"not null;default:0" json:"account_balance"`
	Version             int       `gorm:"not null;default:0" json:"-"` // 每次余额变动 +1
	ProcessorAccountID  string    `gorm:"type:varchar(128)" json:"processor_account_id,omitempty"`
	ProcessorCustomerID string    `gorm:"type:varchar(128)" json:"processor_customer_id,omitempty"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
