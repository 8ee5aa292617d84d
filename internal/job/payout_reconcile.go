package job

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"marketpay/internal/config"
	"marketpay/internal/model"
	"marketpay/internal/repository"
	"marketpay/internal/service"
)

// IntentReconciler service.PayoutService 实现
type IntentReconciler interface {
	Reconcile(ctx context.Context, intent *model.PayoutIntent) (*service.PayoutResult, error)
}

// PayoutReconcileJob 收尾渠道结果未知的提现意图。
// 以原意图号作为幂等键重放调用，渠道返回首次结果后按成功或失败落账
type PayoutReconcileJob struct {
	payoutRepo  *repository.PayoutRepository
	reconciler  IntentReconciler
	cfg         *config.Config
	log         logrus.FieldLogger
	interval    time.Duration
	staleAfter  time.Duration
	maxAttempts int
	batchSize   int
}

func NewPayoutReconcileJob(db *gorm.DB, reconciler IntentReconciler, cfg *config.Config, log logrus.FieldLogger) *PayoutReconcileJob {
	interval := cfg.Business.PayoutReconcileInterval()
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &PayoutReconcileJob{
		payoutRepo:  repository.NewPayoutRepository(db),
		reconciler:  reconciler,
		cfg:         cfg,
		log:         log.WithField("job", "payout_reconcile"),
		interval:    interval,
		staleAfter:  cfg.Business.PayoutStaleAfter(),
		maxAttempts: cfg.Business.PayoutMaxAttempts,
		batchSize:   50,
	}
}

func (j *PayoutReconcileJob) Start(ctx context.Context) {
	j.log.Info("提现对账任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info("收到停止信号，任务退出")
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce 处理一批超时未决的意图，返回本轮进入终态的数量
func (j *PayoutReconcileJob) RunOnce(ctx context.Context) int {
	j.reportExhausted(ctx)

	intents, err := j.payoutRepo.GetStalePending(ctx, time.Now().Add(-j.staleAfter), j.maxAttempts, j.batchSize)
	if err != nil {
		j.log.WithError(err).Error("查询待对账意图失败")
		return 0
	}
	if len(intents) == 0 {
		return 0
	}

	j.log.WithField("count", len(intents)).Info("发现待对账的提现意图")

	finalized := 0
	for _, intent := range intents {
		if j.reconcileIntent(ctx, intent) {
			finalized++
		}
	}
	return finalized
}

func (j *PayoutReconcileJob) reconcileIntent(ctx context.Context, intent *model.PayoutIntent) bool {
	entry := j.log.WithFields(logrus.Fields{
		"intent_no": intent.IntentNo,
		"user_id":   intent.UserID,
		"attempts":  intent.Attempts,
	})

	result, err := j.reconciler.Reconcile(ctx, intent)
	if result != nil && result.Status != model.PayoutStatusPending {
		entry.WithField("status", result.Status).Info("提现意图已收尾")
		return true
	}
	if err != nil {
		entry.WithError(err).Warn("对账重放失败，等待下一轮")
	}
	return false
}

// reportExhausted 超过重试上限的意图不再自动处理，资金保持冻结等待人工核对
func (j *PayoutReconcileJob) reportExhausted(ctx context.Context) {
	if j.maxAttempts <= 0 {
		return
	}
	n, err := j.payoutRepo.CountExhausted(ctx, j.maxAttempts)
	if err != nil {
		j.log.WithError(err).Error("统计超限提现意图失败")
		return
	}
	if n > 0 {
		j.log.WithField("count", n).Error("存在超过最大重试次数的提现意图，需要人工处理")
	}
}
