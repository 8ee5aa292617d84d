package processor

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"marketpay/internal/config"
	"marketpay/internal/service"
)

// StripeClient Stripe 兼容的 REST 渠道，请求体为 form 编码，金额单位为分
type StripeClient struct {
	client *resty.Client
	log    *logrus.Entry
}

var _ service.PaymentProcessor = (*StripeClient)(nil)

type objectResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Deleted      bool   `json:"deleted"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func NewStripeClient(cfg config.ProcessorConfig, log logrus.FieldLogger) *StripeClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetAuthToken(cfg.APIKey).
		SetTimeout(timeout).
		SetRetryCount(cfg.RetryCount).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return r != nil && (r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError)
		}).
		SetHeader("Accept", "application/json")

	return &StripeClient{
		client: client,
		log:    log.WithField("component", "processor"),
	}
}

func (c *StripeClient) CreateAccount(ctx context.Context, req *service.CreateAccountRequest) (string, error) {
	obj, err := c.post(ctx, "/v1/accounts", "", "", map[string]string{
		"type":                                   "express",
		"country":                                req.Country,
		"email":                                  req.Email,
		"capabilities[card_payments][requested]": "true",
		"capabilities[transfers][requested]":     "true",
	})
	if err != nil {
		return "", err
	}
	return obj.ID, nil
}

func (c *StripeClient) DeleteAccount(ctx context.Context, accountID string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&objectResponse{}).
		SetError(&errorResponse{}).
		Delete("/v1/accounts/" + accountID)
	if err != nil {
		return transportError(err)
	}
	if resp.IsError() {
		return responseError(resp)
	}
	return nil
}

func (c *StripeClient) CreateCustomer(ctx context.Context, email string) (string, error) {
	form := map[string]string{}
	if email != "" {
		form["email"] = email
	}
	obj, err := c.post(ctx, "/v1/customers", "", "", form)
	if err != nil {
		return "", err
	}
	return obj.ID, nil
}

// CreatePayout 从卖家的渠道账户提现到其银行卡，需要以卖家账户身份调用
func (c *StripeClient) CreatePayout(ctx context.Context, req *service.MoneyMovementRequest) (string, error) {
	obj, err := c.post(ctx, "/v1/payouts", req.IdempotencyKey, req.AccountID, map[string]string{
		"amount":   strconv.FormatInt(req.Amount, 10),
		"currency": req.Currency,
	})
	if err != nil {
		return "", err
	}
	return obj.ID, nil
}

// CreateTransfer 平台余额转入卖家的渠道账户
func (c *StripeClient) CreateTransfer(ctx context.Context, req *service.MoneyMovementRequest) (string, error) {
	obj, err := c.post(ctx, "/v1/transfers", req.IdempotencyKey, "", map[string]string{
		"amount":         strconv.FormatInt(req.Amount, 10),
		"currency":       req.Currency,
		"destination":    req.AccountID,
		"transfer_group": req.IdempotencyKey,
	})
	if err != nil {
		return "", err
	}
	return obj.ID, nil
}

func (c *StripeClient) CreatePaymentIntent(ctx context.Context, req *service.PaymentIntentRequest) (*service.PaymentIntent, error) {
	obj, err := c.post(ctx, "/v1/payment_intents", "", "", map[string]string{
		"amount":                             strconv.FormatInt(req.Amount, 10),
		"currency":                           req.Currency,
		"customer":                           req.CustomerID,
		"automatic_payment_methods[enabled]": "true",
		"transfer_data[destination]":         req.DestinationAccount,
		"application_fee_amount":             strconv.FormatInt(req.ApplicationFee, 10),
		"on_behalf_of":                       req.DestinationAccount,
	})
	if err != nil {
		return nil, err
	}
	return &service.PaymentIntent{ID: obj.ID, ClientSecret: obj.ClientSecret}, nil
}

// post 每个 POST 都带 Idempotency-Key，调用方未指定时按本次调用生成，resty 重试沿用同一个键
func (c *StripeClient) post(ctx context.Context, path, idempotencyKey, connectedAccount string, form map[string]string) (*objectResponse, error) {
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}
	r := c.client.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&objectResponse{}).
		SetError(&errorResponse{}).
		SetHeader("Idempotency-Key", idempotencyKey)
	if connectedAccount != "" {
		r.SetHeader("Stripe-Account", connectedAccount)
	}

	resp, err := r.Post(path)
	if err != nil {
		c.log.WithContext(ctx).WithError(err).WithField("path", path).Warn("渠道请求失败")
		return nil, transportError(err)
	}
	if resp.IsError() {
		procErr := responseError(resp)
		c.log.WithContext(ctx).WithFields(logrus.Fields{
			"path":   path,
			"status": resp.StatusCode(),
		}).WithError(procErr).Warn("渠道返回错误")
		return nil, procErr
	}
	return resp.Result().(*objectResponse), nil
}

// transportError 请求可能已经到达渠道，结果未知
func transportError(err error) *service.ProcessorError {
	return &service.ProcessorError{
		Code:      "transport",
		Message:   err.Error(),
		Temporary: true,
	}
}

// responseError 409（同一幂等键的请求仍在处理）、429 和 5xx 视为结果未知，其余 4xx 为明确拒绝
func responseError(resp *resty.Response) *service.ProcessorError {
	status := resp.StatusCode()
	procErr := &service.ProcessorError{
		StatusCode: status,
		Temporary: status == http.StatusConflict ||
			status == http.StatusTooManyRequests ||
			status >= http.StatusInternalServerError,
	}
	if body, ok := resp.Error().(*errorResponse); ok && body != nil {
		procErr.Code = body.Error.Code
		if procErr.Code == "" {
			procErr.Code = body.Error.Type
		}
		procErr.Message = body.Error.Message
	}
	if procErr.Message == "" {
		procErr.Message = http.StatusText(resp.StatusCode())
	}
	return procErr
}
