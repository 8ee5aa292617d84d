package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"marketpay/internal/config"
	"marketpay/internal/infrastructure/lock"
	"marketpay/internal/model"
	"marketpay/internal/repository"
	"marketpay/pkg/idgen"
)

type PayoutRequest struct {
	UserID      int64
	Amount      int64
	Destination string
	Currency    string
}

type TransferRequest struct {
	UserID      int64
	Destination string
	Currency    string
}

type PayoutResult struct {
	IntentNo     string `json:"intent_no"`
	Kind         string `json:"kind"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	ExternalRef  string `json:"external_ref,omitempty"`
	BalanceAfter int64  `json:"balance_after"`
}

// PayoutService 提现 / 全额转账。
//
// 流程：
//  1. 按卖家加 Redis 锁
//  2. 事务 A：行锁扣减余额 + 写入 pending 提现意图，提交
//  3. 以意图号为幂等键调用外部渠道
//  4. 成功 -> 意图置 succeeded；明确拒绝 -> 事务 B 退回余额并置 failed；
//     结果未知 -> 保持 pending，由 PayoutReconcileJob 重放同一幂等调用收尾
//
// 资金先在本地冻结再外呼，外部成功而本地未落账的情况不会出现。
type PayoutService struct {
	db         *gorm.DB
	rdb        *redis.Client
	cfg        *config.Config
	log        *logrus.Entry
	payoutRepo *repository.PayoutRepository
	ledger     *BalanceLedger
	processor  PaymentProcessor
	notifier   Notifier
	tracer     trace.Tracer

	payoutCounter       metric.Int64Counter
	compensationCounter metric.Int64Counter
}

func NewPayoutService(
	db *gorm.DB,
	rdb *redis.Client,
	cfg *config.Config,
	ledger *BalanceLedger,
	processor PaymentProcessor,
	notifier Notifier,
	log logrus.FieldLogger,
) *PayoutService {
	meter := otel.Meter("marketpay/payout")
	payouts, _ := meter.Int64Counter("payout.intents", metric.WithDescription("提现意图终态计数"))
	compensations, _ := meter.Int64Counter("payout.compensations", metric.WithDescription("渠道拒绝后退回余额的次数"))

	return &PayoutService{
		db:                  db,
		rdb:                 rdb,
		cfg:                 cfg,
		log:                 log.WithField("component", "payout"),
		payoutRepo:          repository.NewPayoutRepository(db),
		ledger:              ledger,
		processor:           processor,
		notifier:            notifier,
		tracer:              otel.Tracer("marketpay/payout"),
		payoutCounter:       payouts,
		compensationCounter: compensations,
	}
}

// Payout 部分提现，amount 不能超过当前余额
func (s *PayoutService) Payout(ctx context.Context, req *PayoutRequest) (*PayoutResult, error) {
	if req.Amount <= 0 {
		return nil, validationError("提现金额必须大于0")
	}
	return s.withdraw(ctx, model.PayoutKindPayout, req.UserID, req.Destination, req.Currency,
		func(tx *gorm.DB) (*BalanceChange, error) {
			return s.ledger.Debit(ctx, tx, req.UserID, req.Amount)
		})
}

// Transfer 全额转出，余额为 0 时返回 ErrInsufficientFunds
func (s *PayoutService) Transfer(ctx context.Context, req *TransferRequest) (*PayoutResult, error) {
	return s.withdraw(ctx, model.PayoutKindTransfer, req.UserID, req.Destination, req.Currency,
		func(tx *gorm.DB) (*BalanceChange, error) {
			return s.ledger.DebitAll(ctx, tx, req.UserID)
		})
}

func (s *PayoutService) withdraw(
	ctx context.Context,
	kind string,
	userID int64,
	destination string,
	currency string,
	debit func(tx *gorm.DB) (*BalanceChange, error),
) (*PayoutResult, error) {
	ctx, span := s.tracer.Start(ctx, "payout."+kind, trace.WithAttributes(attribute.Int64("user.id", userID)))
	defer span.End()

	if userID <= 0 {
		return nil, validationError("用户ID不合法")
	}
	if strings.TrimSpace(destination) == "" {
		return nil, validationError("目标账户不能为空")
	}
	if currency == "" {
		currency = s.cfg.Business.Currency
	}

	payoutLock := lock.NewPayoutLock(s.rdb, userID, uuid.NewString(), s.cfg.Business.PayoutLockTimeout())
	if err := payoutLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, newError(KindConflict, "系统繁忙，请稍后重试", err)
	}
	defer func() {
		if err := payoutLock.Unlock(context.Background()); err != nil {
			s.log.WithContext(ctx).WithError(err).WithField("lock", payoutLock.Key()).Warn("释放提现锁失败")
		}
	}()

	intentNo := idgen.GeneratePayoutNo()
	if kind == model.PayoutKindTransfer {
		intentNo = idgen.GenerateTransferNo()
	}

	var (
		intent *model.PayoutIntent
		change *BalanceChange
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		change, err = debit(tx)
		if err != nil {
			return err
		}
		intent = &model.PayoutIntent{
			IntentNo:    intentNo,
			UserID:      userID,
			Kind:        kind,
			Amount:      -change.Amount,
			Currency:    strings.ToLower(currency),
			Destination: destination,
			Status:      model.PayoutStatusPending,
		}
		return s.payoutRepo.Create(ctx, tx, intent)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, asPersistence("冻结提现金额失败", err)
	}

	s.log.WithContext(ctx).WithFields(logrus.Fields{
		"intent_no": intent.IntentNo,
		"user_id":   userID,
		"kind":      kind,
		"amount":    intent.Amount,
	}).Info("提现意图已落库，余额已扣减")

	result, err := s.execute(ctx, intent)
	if result != nil {
		result.BalanceAfter = change.After
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	return result, nil
}

// Reconcile 重放 pending 意图的外部调用，渠道按幂等键返回首次结果
func (s *PayoutService) Reconcile(ctx context.Context, intent *model.PayoutIntent) (*PayoutResult, error) {
	if intent.Status != model.PayoutStatusPending {
		return s.result(intent), nil
	}
	return s.execute(ctx, intent)
}

func (s *PayoutService) execute(ctx context.Context, intent *model.PayoutIntent) (*PayoutResult, error) {
	if err := s.payoutRepo.IncrementAttempts(ctx, intent.IntentNo); err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("intent_no", intent.IntentNo).Warn("记录重试次数失败")
	}

	ref, callErr := s.callProcessor(ctx, intent)
	if callErr == nil {
		return s.succeed(ctx, intent, ref), nil
	}

	var procErr *ProcessorError
	if errors.As(callErr, &procErr) && !procErr.Temporary {
		return s.compensate(ctx, intent, callErr)
	}

	s.log.WithContext(ctx).WithError(callErr).WithField("intent_no", intent.IntentNo).Warn("渠道结果未知，等待对账")
	return s.result(intent), &AppError{
		Kind:      KindExternal,
		Message:   "支付渠道暂不可用，提现处理中: " + intent.IntentNo,
		Retryable: true,
		Err:       callErr,
	}
}

func (s *PayoutService) callProcessor(ctx context.Context, intent *model.PayoutIntent) (string, error) {
	req := &MoneyMovementRequest{
		AccountID:      intent.Destination,
		Amount:         intent.Amount,
		Currency:       intent.Currency,
		IdempotencyKey: intent.IntentNo,
	}
	if intent.Kind == model.PayoutKindTransfer {
		return s.processor.CreateTransfer(ctx, req)
	}
	return s.processor.CreatePayout(ctx, req)
}

// succeed 外部资金已经移动；本地状态写失败时意图保持 pending，对账任务会再次收尾
func (s *PayoutService) succeed(ctx context.Context, intent *model.PayoutIntent, ref string) *PayoutResult {
	if err := s.payoutRepo.MarkSucceeded(ctx, nil, intent.IntentNo, ref); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return s.current(ctx, intent)
		}
		s.log.WithContext(ctx).WithError(err).WithField("intent_no", intent.IntentNo).Error("更新提现意图为成功失败")
		return s.result(intent)
	}
	s.payoutCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", model.PayoutStatusSucceeded)))
	s.publish(ctx, intent, model.PayoutStatusSucceeded, ref)

	intent.Status = model.PayoutStatusSucceeded
	intent.ExternalRef = ref
	s.log.WithContext(ctx).WithFields(logrus.Fields{
		"intent_no":    intent.IntentNo,
		"external_ref": ref,
		"amount":       intent.Amount,
	}).Info("提现成功")
	return s.result(intent)
}

// compensate 渠道明确拒绝：意图 pending -> failed 与余额退回在同一事务，只会执行一次
func (s *PayoutService) compensate(ctx context.Context, intent *model.PayoutIntent, cause error) (*PayoutResult, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.payoutRepo.MarkFailed(ctx, tx, intent.IntentNo, cause.Error()); err != nil {
			return err
		}
		_, err := s.ledger.Credit(ctx, tx, intent.UserID, intent.Amount)
		return err
	})
	if errors.Is(err, repository.ErrStatusConflict) {
		// 已被其他流程收尾
		return s.current(ctx, intent), newError(KindExternal, "支付渠道拒绝提现", cause)
	}
	if err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("intent_no", intent.IntentNo).Error("提现失败后退回余额失败")
		return s.result(intent), asPersistence("退回余额失败", err)
	}
	s.compensationCounter.Add(ctx, 1)
	s.payoutCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", model.PayoutStatusFailed)))
	s.publish(ctx, intent, model.PayoutStatusFailed, "")

	intent.Status = model.PayoutStatusFailed
	s.log.WithContext(ctx).WithError(cause).WithField("intent_no", intent.IntentNo).Warn("渠道拒绝提现，余额已退回")
	return s.result(intent), newError(KindExternal, "支付渠道拒绝提现", cause)
}

func (s *PayoutService) publish(ctx context.Context, intent *model.PayoutIntent, status, ref string) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.Notify(ctx, intent.UserID, model.EventPayoutResult, map[string]interface{}{
		"intent_no":    intent.IntentNo,
		"kind":         intent.Kind,
		"status":       status,
		"amount":       intent.Amount,
		"currency":     intent.Currency,
		"external_ref": ref,
	})
	if err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("intent_no", intent.IntentNo).Warn("提现结果通知失败")
	}
}

// current 重新读取意图的持久化状态
func (s *PayoutService) current(ctx context.Context, intent *model.PayoutIntent) *PayoutResult {
	latest, err := s.payoutRepo.GetByIntentNo(ctx, nil, intent.IntentNo)
	if err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("intent_no", intent.IntentNo).Warn("重新读取提现意图失败")
		return s.result(intent)
	}
	*intent = *latest
	return s.result(intent)
}

func (s *PayoutService) result(intent *model.PayoutIntent) *PayoutResult {
	return &PayoutResult{
		IntentNo:    intent.IntentNo,
		Kind:        intent.Kind,
		Status:      intent.Status,
		Amount:      intent.Amount,
		Currency:    intent.Currency,
		ExternalRef: intent.ExternalRef,
	}
}

func (s *PayoutService) GetIntent(ctx context.Context, userID int64, intentNo string) (*model.PayoutIntent, error) {
	intent, err := s.payoutRepo.GetByIntentNo(ctx, nil, intentNo)
	if err != nil {
		if errors.Is(err, repository.ErrIntentNotFound) {
			return nil, newError(KindNotFound, "提现记录不存在", err)
		}
		return nil, asPersistence("查询提现记录失败", err)
	}
	if intent.UserID != userID {
		return nil, newError(KindNotFound, "提现记录不存在", nil)
	}
	return intent, nil
}

// ListIntents 当前用户的提现与转账记录，最新的在前
func (s *PayoutService) ListIntents(ctx context.Context, userID int64, page, pageSize int) ([]*model.PayoutIntent, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	intents, total, err := s.payoutRepo.ListByUserID(ctx, userID, page, pageSize)
	if err != nil {
		return nil, 0, asPersistence("查询提现记录失败", err)
	}
	return intents, total, nil
}
