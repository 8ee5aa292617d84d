package repository

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"marketpay/internal/model"
)

type PayoutRepository struct {
	db *gorm.DB
}

func NewPayoutRepository(db *gorm.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

func (r *PayoutRepository) Create(ctx context.Context, tx *gorm.DB, intent *model.PayoutIntent) error {
	return pkgerrors.Wrap(pick(r.db, tx).WithContext(ctx).Create(intent).Error, "create payout intent")
}

func (r *PayoutRepository) GetByIntentNo(ctx context.Context, tx *gorm.DB, intentNo string) (*model.PayoutIntent, error) {
	var intent model.PayoutIntent
	err := pick(r.db, tx).WithContext(ctx).Where("intent_no = ?", intentNo).First(&intent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIntentNotFound
		}
		return nil, pkgerrors.Wrap(err, "get payout intent")
	}
	return &intent, nil
}

// MarkSucceeded 仅 pending 状态可更新，重复调用返回 ErrStatusConflict
func (r *PayoutRepository) MarkSucceeded(ctx context.Context, tx *gorm.DB, intentNo, externalRef string) error {
	return r.finish(ctx, tx, intentNo, map[string]interface{}{
		"status":       model.PayoutStatusSucceeded,
		"external_ref": externalRef,
	})
}

func (r *PayoutRepository) MarkFailed(ctx context.Context, tx *gorm.DB, intentNo, reason string) error {
	if len(reason) > 512 {
		reason = reason[:512]
	}
	return r.finish(ctx, tx, intentNo, map[string]interface{}{
		"status":         model.PayoutStatusFailed,
		"failure_reason": reason,
	})
}

func (r *PayoutRepository) finish(ctx context.Context, tx *gorm.DB, intentNo string, updates map[string]interface{}) error {
	result := pick(r.db, tx).WithContext(ctx).
		Model(&model.PayoutIntent{}).
		Where("intent_no = ? AND status = ?", intentNo, model.PayoutStatusPending).
		Updates(updates)
	if result.Error != nil {
		return pkgerrors.Wrap(result.Error, "finish payout intent")
	}
	if result.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

// IncrementAttempts 同时刷新 updated_at，对账任务据此退避
func (r *PayoutRepository) IncrementAttempts(ctx context.Context, intentNo string) error {
	return pkgerrors.Wrap(r.db.WithContext(ctx).
		Model(&model.PayoutIntent{}).
		Where("intent_no = ?", intentNo).
		Update("attempts", gorm.Expr("attempts + 1")).Error, "increment attempts")
}

// GetStalePending 查询在 beforeTime 之前最后更新、仍处于 pending 的意图。
// maxAttempts > 0 时排除已达到重试上限的意图，避免它们占满每一批
func (r *PayoutRepository) GetStalePending(ctx context.Context, beforeTime time.Time, maxAttempts, limit int) ([]*model.PayoutIntent, error) {
	var intents []*model.PayoutIntent
	query := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", model.PayoutStatusPending, beforeTime)
	if maxAttempts > 0 {
		query = query.Where("attempts < ?", maxAttempts)
	}
	err := query.
		Order("id ASC").
		Limit(limit).
		Find(&intents).Error
	return intents, pkgerrors.Wrap(err, "get stale payout intents")
}

// CountExhausted 已达到重试上限、仍为 pending 的意图数量，需要人工处理
func (r *PayoutRepository) CountExhausted(ctx context.Context, maxAttempts int) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&model.PayoutIntent{}).
		Where("status = ? AND attempts >= ?", model.PayoutStatusPending, maxAttempts).
		Count(&total).Error
	return total, pkgerrors.Wrap(err, "count exhausted payout intents")
}

func (r *PayoutRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.PayoutIntent, int64, error) {
	var intents []*model.PayoutIntent
	var total int64

	query := r.db.WithContext(ctx).Model(&model.PayoutIntent{}).Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, pkgerrors.Wrap(err, "count payout intents")
	}

	err := query.
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&intents).Error

	return intents, total, pkgerrors.Wrap(err, "list payout intents")
}
