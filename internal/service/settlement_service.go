package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"marketpay/internal/config"
	"marketpay/internal/model"
	"marketpay/internal/repository"
	"marketpay/pkg/idgen"
)

const maxIdempotencyKeyLen = 64

type SettleItem struct {
	ItemID string
	Amount int64
}

// SettleRequest 一次批量购买。TotalAmount 由客户端声明，服务端用明细重算校验
type SettleRequest struct {
	BuyerID        int64
	TotalAmount    int64
	Currency       string
	Items          []SettleItem
	IdempotencyKey string
}

type SettlementLine struct {
	PaymentID     int64  `json:"payment_id"`
	ItemID        string `json:"item_id"`
	SellerID      int64  `json:"seller_id"`
	Amount        int64  `json:"amount"`
	PlatformShare int64  `json:"platform_share"`
	SellerShare   int64  `json:"seller_share"`
}

// OrderConfirmation Replayed 为 true 表示命中幂等键，返回的是首次结算的结果
type OrderConfirmation struct {
	OrderID     int64            `json:"order_id"`
	OrderNo     string           `json:"order_no"`
	Status      string           `json:"status"`
	TotalAmount int64            `json:"total_amount"`
	Currency    string           `json:"currency"`
	Lines       []SettlementLine `json:"lines"`
	Replayed    bool             `json:"replayed"`
}

// soldItem 提交后发通知用
type soldItem struct {
	itemID      string
	name        string
	sellerShare int64
}

type SettlementService struct {
	db          *gorm.DB
	cfg         *config.Config
	log         *logrus.Entry
	orderRepo   *repository.OrderRepository
	itemRepo    *repository.ItemRepository
	paymentRepo *repository.PaymentRepository
	ledger      *BalanceLedger
	notifier    Notifier
	tracer      trace.Tracer

	settledCounter  metric.Int64Counter
	replayedCounter metric.Int64Counter
}

func NewSettlementService(db *gorm.DB, cfg *config.Config, ledger *BalanceLedger, notifier Notifier, log logrus.FieldLogger) *SettlementService {
	meter := otel.Meter("marketpay/settlement")
	settled, _ := meter.Int64Counter("settlement.orders", metric.WithDescription("已提交的结算订单数"))
	replayed, _ := meter.Int64Counter("settlement.replays", metric.WithDescription("命中幂等键的结算请求数"))

	return &SettlementService{
		db:              db,
		cfg:             cfg,
		log:             log.WithField("component", "settlement"),
		orderRepo:       repository.NewOrderRepository(db),
		itemRepo:        repository.NewItemRepository(db),
		paymentRepo:     repository.NewPaymentRepository(db),
		ledger:          ledger,
		notifier:        notifier,
		tracer:          otel.Tracer("marketpay/settlement"),
		settledCounter:  settled,
		replayedCounter: replayed,
	}
}

// Settle 在一个事务内完成：创建订单、逐个商品分账、写 Payment 与 SalesTransaction、给卖家入账。
// 任一步失败整体回滚；提交成功后按卖家发送 item_sold 通知，通知失败只记日志。
func (s *SettlementService) Settle(ctx context.Context, req *SettleRequest) (*OrderConfirmation, error) {
	ctx, span := s.tracer.Start(ctx, "settlement.settle", trace.WithAttributes(
		attribute.Int64("buyer.id", req.BuyerID),
		attribute.Int("items.count", len(req.Items)),
	))
	defer span.End()

	if err := s.validate(req); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if req.IdempotencyKey != "" {
		prior, err := s.replay(ctx, req)
		if err != nil || prior != nil {
			return prior, err
		}
	}

	conf, sold, err := s.settleInTx(ctx, req)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateRequest) && req.IdempotencyKey != "" {
			// 并发的同键请求已先提交
			prior, replayErr := s.replay(ctx, req)
			switch {
			case replayErr != nil:
				return nil, replayErr
			case prior != nil:
				return prior, nil
			}
			return nil, newError(KindConflict, "幂等键冲突，请稍后重试", err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log.WithContext(ctx).WithError(err).WithField("buyer_id", req.BuyerID).Warn("结算失败，事务已回滚")
		return nil, asPersistence("结算失败", err)
	}

	s.settledCounter.Add(ctx, 1)
	span.SetAttributes(attribute.String("order.no", conf.OrderNo))
	s.log.WithContext(ctx).WithFields(logrus.Fields{
		"order_no":     conf.OrderNo,
		"buyer_id":     req.BuyerID,
		"total_amount": conf.TotalAmount,
		"lines":        len(conf.Lines),
	}).Info("结算成功")

	s.notifySellers(ctx, conf, sold)

	return conf, nil
}

func (s *SettlementService) validate(req *SettleRequest) error {
	if req.BuyerID <= 0 {
		return validationError("买家ID不合法")
	}
	if len(req.Items) == 0 {
		return validationError("items 不能为空")
	}
	if len(req.IdempotencyKey) > maxIdempotencyKeyLen {
		return validationError("idempotency_key 长度不能超过 %d", maxIdempotencyKeyLen)
	}

	var sum int64
	for i, item := range req.Items {
		if strings.TrimSpace(item.ItemID) == "" {
			return validationError("第 %d 个商品缺少 id", i+1)
		}
		if item.Amount <= 0 {
			return validationError("第 %d 个商品金额必须大于0", i+1)
		}
		if item.Amount > math.MaxInt64-sum {
			return validationError("明细金额之和超出范围")
		}
		sum += item.Amount
	}

	if req.TotalAmount <= 0 {
		return validationError("total_amount 必须大于0")
	}
	if sum != req.TotalAmount {
		return validationError("total_amount 与明细金额之和不一致: total=%d, sum=%d", req.TotalAmount, sum)
	}
	return nil
}

func (s *SettlementService) settleInTx(ctx context.Context, req *SettleRequest) (*OrderConfirmation, map[int64][]soldItem, error) {
	currency := req.Currency
	if currency == "" {
		currency = s.cfg.Business.Currency
	}

	order := &model.Order{
		OrderNo:     idgen.GenerateOrderNo(),
		UserID:      req.BuyerID,
		TotalAmount: req.TotalAmount,
		Currency:    strings.ToLower(currency),
		Status:      model.OrderStatusPending,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		order.IdempotencyKey = &key
		order.RequestHash = s.fingerprint(req)
	}

	conf := &OrderConfirmation{
		OrderNo:     order.OrderNo,
		TotalAmount: order.TotalAmount,
		Currency:    order.Currency,
		Lines:       make([]SettlementLine, 0, len(req.Items)),
	}
	sold := make(map[int64][]soldItem)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.Create(ctx, tx, order); err != nil {
			return err
		}

		for _, item := range req.Items {
			line, sale, err := s.settleItem(ctx, tx, order, item)
			if err != nil {
				return err
			}
			conf.Lines = append(conf.Lines, *line)
			sold[line.SellerID] = append(sold[line.SellerID], *sale)
		}

		return s.orderRepo.UpdateStatus(ctx, tx, order.ID, model.OrderStatusPending, model.OrderStatusCompleted)
	})
	if err != nil {
		return nil, nil, err
	}

	conf.OrderID = order.ID
	conf.Status = model.OrderStatusCompleted
	return conf, sold, nil
}

func (s *SettlementService) settleItem(ctx context.Context, tx *gorm.DB, order *model.Order, item SettleItem) (*SettlementLine, *soldItem, error) {
	mi, err := s.itemRepo.GetByID(ctx, tx, item.ItemID)
	if err != nil {
		if errors.Is(err, repository.ErrItemNotFound) {
			return nil, nil, newError(KindInvalidItem, "商品不存在: "+item.ItemID, err)
		}
		return nil, nil, err
	}

	platformShare, sellerShare, err := Split(item.Amount)
	if err != nil {
		return nil, nil, newError(KindValidation, "分账金额不合法", err)
	}

	now := s.db.NowFunc()
	payment := &model.Payment{
		MarketplaceItemID: mi.ID,
		OrderID:           order.ID,
		Amount:            item.Amount,
		Status:            model.PaymentStatusSuccess,
		TransactionDate:   now,
	}
	if err := s.paymentRepo.CreatePayment(ctx, tx, payment); err != nil {
		return nil, nil, err
	}

	if err := s.paymentRepo.CreateSalesTransaction(ctx, tx, &model.SalesTransaction{
		ItemID:          mi.ID,
		UserID:          mi.UserID,
		OrderID:         order.ID,
		PaymentID:       payment.ID,
		YourShare:       platformShare,
		SellerShare:     sellerShare,
		TransactionDate: now,
	}); err != nil {
		return nil, nil, err
	}

	// 卖家不存在时整单失败，不允许出现有流水却没入账的"悬空"收入
	if _, err := s.ledger.Credit(ctx, tx, mi.UserID, sellerShare); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, newError(KindNotFound, "卖家不存在，商品: "+mi.ID, err)
		}
		return nil, nil, err
	}

	s.log.WithContext(ctx).WithFields(logrus.Fields{
		"order_no":       order.OrderNo,
		"item_id":        mi.ID,
		"seller_id":      mi.UserID,
		"amount":         item.Amount,
		"platform_share": platformShare,
		"seller_share":   sellerShare,
	}).Debug("商品分账")

	return &SettlementLine{
			PaymentID:     payment.ID,
			ItemID:        mi.ID,
			SellerID:      mi.UserID,
			Amount:        item.Amount,
			PlatformShare: platformShare,
			SellerShare:   sellerShare,
		}, &soldItem{
			itemID:      mi.ID,
			name:        mi.Name,
			sellerShare: sellerShare,
		}, nil
}

// replay 命中幂等键时按已落库的数据重建确认信息，未命中返回 nil, nil
func (s *SettlementService) replay(ctx context.Context, req *SettleRequest) (*OrderConfirmation, error) {
	prior, err := s.orderRepo.GetByIdempotencyKey(ctx, nil, req.BuyerID, req.IdempotencyKey)
	if err != nil {
		return nil, asPersistence("查询幂等订单失败", err)
	}
	if prior == nil {
		return nil, nil
	}
	if prior.RequestHash != "" && prior.RequestHash != s.fingerprint(req) {
		return nil, newError(KindConflict, "幂等键已用于内容不同的请求", nil)
	}

	conf, err := s.Confirmation(ctx, prior.ID)
	if err != nil {
		return nil, err
	}
	conf.Replayed = true
	s.replayedCounter.Add(ctx, 1)
	s.log.WithContext(ctx).WithFields(logrus.Fields{
		"order_no": prior.OrderNo,
		"buyer_id": req.BuyerID,
	}).Info("幂等键命中，返回已有订单")
	return conf, nil
}

// fingerprint 币种、总额和按顺序排列的明细，同一个幂等键下必须一致
func (s *SettlementService) fingerprint(req *SettleRequest) string {
	currency := req.Currency
	if currency == "" {
		currency = s.cfg.Business.Currency
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s|%d", strings.ToLower(currency), req.TotalAmount)
	for _, item := range req.Items {
		fmt.Fprintf(h, "|%q:%d", item.ItemID, item.Amount)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Confirmation 根据订单ID重建结算确认信息
func (s *SettlementService) Confirmation(ctx context.Context, orderID int64) (*OrderConfirmation, error) {
	order, err := s.orderRepo.GetByID(ctx, nil, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, newError(KindNotFound, "订单不存在", err)
		}
		return nil, asPersistence("查询订单失败", err)
	}

	sales, err := s.paymentRepo.ListSalesByOrderID(ctx, order.ID)
	if err != nil {
		return nil, asPersistence("查询分账记录失败", err)
	}
	salesByPayment := make(map[int64]*model.SalesTransaction, len(sales))
	for _, st := range sales {
		salesByPayment[st.PaymentID] = st
	}

	conf := &OrderConfirmation{
		OrderID:     order.ID,
		OrderNo:     order.OrderNo,
		Status:      order.Status,
		TotalAmount: order.TotalAmount,
		Currency:    order.Currency,
		Lines:       make([]SettlementLine, 0, len(order.Payments)),
	}
	for _, p := range order.Payments {
		line := SettlementLine{
			PaymentID: p.ID,
			ItemID:    p.MarketplaceItemID,
			Amount:    p.Amount,
		}
		if st, ok := salesByPayment[p.ID]; ok {
			line.SellerID = st.UserID
			line.PlatformShare = st.YourShare
			line.SellerShare = st.SellerShare
		}
		conf.Lines = append(conf.Lines, line)
	}
	return conf, nil
}

// notifySellers 每个入账的卖家一条通知，按首次出现的顺序
func (s *SettlementService) notifySellers(ctx context.Context, conf *OrderConfirmation, sold map[int64][]soldItem) {
	if s.notifier == nil {
		return
	}

	notified := make(map[int64]struct{}, len(sold))
	for _, line := range conf.Lines {
		if _, done := notified[line.SellerID]; done {
			continue
		}
		notified[line.SellerID] = struct{}{}

		items := sold[line.SellerID]
		itemPayload := make([]map[string]interface{}, 0, len(items))
		var total int64
		for _, it := range items {
			itemPayload = append(itemPayload, map[string]interface{}{
				"item_id":      it.itemID,
				"name":         it.name,
				"seller_share": it.sellerShare,
			})
			total += it.sellerShare
		}

		err := s.notifier.Notify(ctx, line.SellerID, model.EventItemSold, map[string]interface{}{
			"order_no":     conf.OrderNo,
			"items":        itemPayload,
			"seller_share": total,
			"currency":     conf.Currency,
		})
		if err != nil {
			s.log.WithContext(ctx).WithError(err).WithFields(logrus.Fields{
				"order_no":  conf.OrderNo,
				"seller_id": line.SellerID,
			}).Warn("卖家通知发送失败")
		}
	}
}
