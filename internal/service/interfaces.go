package service

import (
	"context"
	"fmt"
)

// Notifier 通知投递，尽力而为，失败不影响已提交的业务结果
type Notifier interface {
	Notify(ctx context.Context, userID int64, eventType string, payload map[string]interface{}) error
}

// PaymentProcessor 外部支付渠道，金额单位为分
type PaymentProcessor interface {
	CreateAccount(ctx context.Context, req *CreateAccountRequest) (string, error)
	DeleteAccount(ctx context.Context, accountID string) error
	CreateCustomer(ctx context.Context, email string) (string, error)
	CreatePayout(ctx context.Context, req *MoneyMovementRequest) (string, error)
	CreateTransfer(ctx context.Context, req *MoneyMovementRequest) (string, error)
	CreatePaymentIntent(ctx context.Context, req *PaymentIntentRequest) (*PaymentIntent, error)
}

type CreateAccountRequest struct {
	Email   string
	Country string
}

// MoneyMovementRequest IdempotencyKey 重放时渠道返回同一结果
type MoneyMovementRequest struct {
	AccountID      string
	Amount         int64
	Currency       string
	IdempotencyKey string
}

type PaymentIntentRequest struct {
	Amount             int64
	Currency           string
	CustomerID         string
	DestinationAccount string
	ApplicationFee     int64
}

type PaymentIntent struct {
	ID           string
	ClientSecret string
}

// ProcessorError 渠道返回的结构化失败。Temporary 表示结果未知（网络错误、5xx），
// 不能据此判断资金是否已经移动
type ProcessorError struct {
	StatusCode int
	Code       string
	Message    string
	Temporary  bool
}

func (e *ProcessorError) Error() string {
	return fmt.Sprintf("processor error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
}
