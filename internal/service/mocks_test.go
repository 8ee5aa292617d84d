package service

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, userID int64, eventType string, payload map[string]interface{}) error {
	args := m.Called(ctx, userID, eventType, payload)
	return args.Error(0)
}

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) CreateAccount(ctx context.Context, req *CreateAccountRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockProcessor) DeleteAccount(ctx context.Context, accountID string) error {
	args := m.Called(ctx, accountID)
	return args.Error(0)
}

func (m *mockProcessor) CreateCustomer(ctx context.Context, email string) (string, error) {
	args := m.Called(ctx, email)
	return args.String(0), args.Error(1)
}

func (m *mockProcessor) CreatePayout(ctx context.Context, req *MoneyMovementRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockProcessor) CreateTransfer(ctx context.Context, req *MoneyMovementRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockProcessor) CreatePaymentIntent(ctx context.Context, req *PaymentIntentRequest) (*PaymentIntent, error) {
	args := m.Called(ctx, req)
	intent, _ := args.Get(0).(*PaymentIntent)
	return intent, args.Error(1)
}
