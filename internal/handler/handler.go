package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"marketpay/internal/model"
	"marketpay/internal/service"
	"marketpay/pkg/money"
	"marketpay/pkg/response"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	settlement *service.SettlementService
	payout     *service.PayoutService
	account    *service.AccountService
	order      *service.OrderService
	checkout   *service.CheckoutService
	log        logrus.FieldLogger
}

type Services struct {
	Settlement *service.SettlementService
	Payout     *service.PayoutService
	Account    *service.AccountService
	Order      *service.OrderService
	Checkout   *service.CheckoutService
}

func NewHandler(s Services, log logrus.FieldLogger) *Handler {
	return &Handler{
		settlement: s.Settlement,
		payout:     s.Payout,
		account:    s.Account,
		order:      s.Order,
		checkout:   s.Checkout,
		log:        log,
	}
}

// ============================================================
// 结算
// ============================================================

type SettlementItemRequest struct {
	ID     string          `json:"id"`
	Amount decimal.Decimal `json:"amount"`
}

// SettlementRequest 金额为十进制主单位，如 10.00
type SettlementRequest struct {
	TotalAmount    decimal.Decimal         `json:"total_amount"`
	Currency       string                  `json:"currency"`
	Items          []SettlementItemRequest `json:"items"`
	IdempotencyKey string                  `json:"idempotency_key"`
}

type SettlementLineResponse struct {
	PaymentID     int64  `json:"payment_id"`
	ItemID        string `json:"item_id"`
	SellerID      int64  `json:"seller_id"`
	Amount        string `json:"amount"`
	PlatformShare string `json:"your_share"`
	SellerShare   string `json:"seller_share"`
}

type SettlementResponse struct {
	OrderID     int64                    `json:"order_id"`
	OrderNo     string                   `json:"order_no"`
	Status      string                   `json:"status"`
	TotalAmount string                   `json:"total_amount"`
	Currency    string                   `json:"currency"`
	Lines       []SettlementLineResponse `json:"payments"`
	Replayed    bool                     `json:"replayed"`
}

// Settle 批量购买结算
// POST /api/v1/settlements
//
// 同一个 Idempotency-Key（请求头或 body）重复提交只会结算一次
func (h *Handler) Settle(c *gin.Context) {
	var req SettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	total, err := money.ToMinor(req.TotalAmount)
	if err != nil {
		response.ParamError(c, "total_amount: "+err.Error())
		return
	}
	items := make([]service.SettleItem, 0, len(req.Items))
	for i, it := range req.Items {
		amount, err := money.ToMinor(it.Amount)
		if err != nil {
			response.ParamError(c, "items["+strconv.Itoa(i)+"].amount: "+err.Error())
			return
		}
		items = append(items, service.SettleItem{ItemID: it.ID, Amount: amount})
	}

	key := req.IdempotencyKey
	if header := c.GetHeader(IdempotencyKeyHeader); header != "" {
		key = header
	}

	conf, err := h.settlement.Settle(c.Request.Context(), &service.SettleRequest{
		BuyerID:        currentUser(c).ID,
		TotalAmount:    total,
		Currency:       req.Currency,
		Items:          items,
		IdempotencyKey: strings.TrimSpace(key),
	})
	if err != nil {
		h.fail(c, err, nil)
		return
	}

	if conf.Replayed {
		response.Success(c, toSettlementResponse(conf))
		return
	}
	response.Created(c, toSettlementResponse(conf))
}

func toSettlementResponse(conf *service.OrderConfirmation) SettlementResponse {
	resp := SettlementResponse{
		OrderID:     conf.OrderID,
		OrderNo:     conf.OrderNo,
		Status:      conf.Status,
		TotalAmount: money.Format(conf.TotalAmount),
		Currency:    conf.Currency,
		Lines:       make([]SettlementLineResponse, 0, len(conf.Lines)),
		Replayed:    conf.Replayed,
	}
	for _, l := range conf.Lines {
		resp.Lines = append(resp.Lines, SettlementLineResponse{
			PaymentID:     l.PaymentID,
			ItemID:        l.ItemID,
			SellerID:      l.SellerID,
			Amount:        money.Format(l.Amount),
			PlatformShare: money.Format(l.PlatformShare),
			SellerShare:   money.Format(l.SellerShare),
		})
	}
	return resp
}

// ============================================================
// 提现 / 转账
// ============================================================

// PayoutRequest account_id 为空时使用已开通的收款账户
type PayoutRequest struct {
	AccountID string          `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
}

type TransferRequest struct {
	AccountID string `json:"account_id"`
	Currency  string `json:"currency"`
}

type PayoutResponse struct {
	IntentNo     string `json:"intent_no"`
	Kind         string `json:"kind"`
	Status       string `json:"status"`
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	ExternalRef  string `json:"external_ref,omitempty"`
	BalanceAfter string `json:"balance_after"`
}

// Payout 部分提现
// POST /api/v1/payouts
func (h *Handler) Payout(c *gin.Context) {
	var req PayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	amount, err := money.ToMinor(req.Amount)
	if err != nil {
		response.ParamError(c, "amount: "+err.Error())
		return
	}

	user := currentUser(c)
	result, err := h.payout.Payout(c.Request.Context(), &service.PayoutRequest{
		UserID:      user.ID,
		Amount:      amount,
		Destination: destination(req.AccountID, user),
		Currency:    req.Currency,
	})
	h.writePayout(c, result, err)
}

// Transfer 全部余额转入渠道账户
// POST /api/v1/transfers
func (h *Handler) Transfer(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	user := currentUser(c)
	result, err := h.payout.Transfer(c.Request.Context(), &service.TransferRequest{
		UserID:      user.ID,
		Destination: destination(req.AccountID, user),
		Currency:    req.Currency,
	})
	h.writePayout(c, result, err)
}

// GetPayout 查询提现意图
// GET /api/v1/payouts/:intent_no
func (h *Handler) GetPayout(c *gin.Context) {
	intent, err := h.payout.GetIntent(c.Request.Context(), currentUser(c).ID, c.Param("intent_no"))
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	response.Success(c, intent)
}

// ListPayouts 提现与转账记录
// GET /api/v1/payouts?page=1&page_size=10
func (h *Handler) ListPayouts(c *gin.Context) {
	page, pageSize := pagination(c)
	intents, total, err := h.payout.ListIntents(c.Request.Context(), currentUser(c).ID, page, pageSize)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	response.Page(c, intents, total, page, pageSize)
}

func (h *Handler) writePayout(c *gin.Context, result *service.PayoutResult, err error) {
	var data *PayoutResponse
	if result != nil {
		data = &PayoutResponse{
			IntentNo:     result.IntentNo,
			Kind:         result.Kind,
			Status:       result.Status,
			Amount:       money.Format(result.Amount),
			Currency:     result.Currency,
			ExternalRef:  result.ExternalRef,
			BalanceAfter: money.Format(result.BalanceAfter),
		}
	}
	if err != nil {
		h.fail(c, err, data)
		return
	}
	response.Success(c, data)
}

func destination(accountID string, user *model.User) string {
	if accountID != "" {
		return accountID
	}
	return user.ProcessorAccountID
}

// ============================================================
// 账户
// ============================================================

// GetBalance 查询当前用户余额
// GET /api/v1/account/balance
func (h *Handler) GetBalance(c *gin.Context) {
	user := currentUser(c)
	balance, err := h.account.GetBalance(c.Request.Context(), user.ID)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	response.Success(c, gin.H{
		"user_id": user.ID,
		"balance": money.Format(balance),
	})
}

// CreateProcessorAccount 开通收款账户
// POST /api/v1/processor/account
func (h *Handler) CreateProcessorAccount(c *gin.Context) {
	var req struct {
		Country string `json:"country"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	accountID, err := h.account.CreateProcessorAccount(c.Request.Context(), currentUser(c).ID, req.Country)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	response.Success(c, gin.H{"account_id": accountID})
}

// DeleteProcessorAccount 注销收款账户
// DELETE /api/v1/processor/account
func (h *Handler) DeleteProcessorAccount(c *gin.Context) {
	if err := h.account.DeleteProcessorAccount(c.Request.Context(), currentUser(c).ID); err != nil {
		h.fail(c, err, nil)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}

// ============================================================
// 商品 / 订单
// ============================================================

type CreateItemRequest struct {
	ID          string          `json:"id" binding:"required"`
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
}

// CreateItem 上架商品，卖家为当前用户
// POST /api/v1/items
func (h *Handler) CreateItem(c *gin.Context) {
	var req CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	price, err := money.ToMinor(req.Price)
	if err != nil {
		response.ParamError(c, "price: "+err.Error())
		return
	}

	item, err := h.order.CreateItem(c.Request.Context(), &service.CreateItemRequest{
		ID:          req.ID,
		SellerID:    currentUser(c).ID,
		Name:        req.Name,
		Description: req.Description,
		Price:       price,
		Currency:    req.Currency,
	})
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	response.Created(c, item)
}

// ListOrders 当前用户的订单
// GET /api/v1/orders?page=1&page_size=10
func (h *Handler) ListOrders(c *gin.Context) {
	page, pageSize := pagination(c)
	orders, total, err := h.order.ListUserOrders(c.Request.Context(), currentUser(c).ID, page, pageSize)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	response.Page(c, orders, total, page, pageSize)
}

// GetOrder 订单详情
// GET /api/v1/orders/:id
func (h *Handler) GetOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "订单ID参数错误")
		return
	}
	order, err := h.order.GetOrder(c.Request.Context(), currentUser(c).ID, orderID)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	response.Success(c, order)
}

// ListSales 当前用户作为卖家的分账记录
// GET /api/v1/sales-transactions?page=1&page_size=10
func (h *Handler) ListSales(c *gin.Context) {
	page, pageSize := pagination(c)
	sales, total, err := h.order.ListSales(c.Request.Context(), currentUser(c).ID, page, pageSize)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	response.Page(c, sales, total, page, pageSize)
}

// CreatePaymentSheet 单商品直付
// POST /api/v1/payment-sheet
func (h *Handler) CreatePaymentSheet(c *gin.Context) {
	var req struct {
		ItemID string `json:"item_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	sheet, err := h.checkout.CreatePaymentSheet(c.Request.Context(), currentUser(c).ID, req.ItemID)
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	response.Success(c, sheet)
}

func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}
	return page, pageSize
}
