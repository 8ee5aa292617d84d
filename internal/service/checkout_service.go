package service

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"
)

// PaymentSheet 前端拉起渠道收银台所需参数
type PaymentSheet struct {
	PaymentIntentID string `json:"payment_intent_id"`
	ClientSecret    string `json:"client_secret"`
	CustomerID      string `json:"customer_id"`
	PublishableKey  string `json:"publishable_key"`
	Amount          int64  `json:"amount"`
	ApplicationFee  int64  `json:"application_fee"`
	Currency        string `json:"currency"`
}

// CheckoutService 单商品直付：资金进入卖家的渠道账户，平台按分账规则收取 application fee
type CheckoutService struct {
	accounts       *AccountService
	orders         *OrderService
	processor      PaymentProcessor
	publishableKey string
	log            *logrus.Entry
}

func NewCheckoutService(accounts *AccountService, orders *OrderService, processor PaymentProcessor, publishableKey string, log logrus.FieldLogger) *CheckoutService {
	return &CheckoutService{
		accounts:       accounts,
		orders:         orders,
		processor:      processor,
		publishableKey: publishableKey,
		log:            log.WithField("component", "checkout"),
	}
}

func (s *CheckoutService) CreatePaymentSheet(ctx context.Context, buyerID int64, itemID string) (*PaymentSheet, error) {
	if strings.TrimSpace(itemID) == "" {
		return nil, validationError("商品ID不能为空")
	}

	item, err := s.orders.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	seller, err := s.accounts.GetUser(ctx, item.UserID)
	if err != nil {
		return nil, err
	}
	if seller.ProcessorAccountID == "" {
		return nil, newError(KindConflict, "卖家尚未开通收款账户", nil)
	}

	buyer, err := s.accounts.GetUser(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	customerID, err := s.accounts.EnsureCustomer(ctx, buyer)
	if err != nil {
		return nil, err
	}

	platformShare, _, err := Split(item.Price)
	if err != nil {
		return nil, validationError("商品价格不合法")
	}

	intent, err := s.processor.CreatePaymentIntent(ctx, &PaymentIntentRequest{
		Amount:             item.Price,
		Currency:           item.Currency,
		CustomerID:         customerID,
		DestinationAccount: seller.ProcessorAccountID,
		ApplicationFee:     platformShare,
	})
	if err != nil {
		return nil, newError(KindExternal, "创建支付意图失败", err)
	}

	s.log.WithContext(ctx).WithFields(logrus.Fields{
		"buyer_id":          buyerID,
		"item_id":           itemID,
		"payment_intent_id": intent.ID,
	}).Info("支付意图已创建")

	return &PaymentSheet{
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		CustomerID:      customerID,
		PublishableKey:  s.publishableKey,
		Amount:          item.Price,
		ApplicationFee:  platformShare,
		Currency:        item.Currency,
	}, nil
}
