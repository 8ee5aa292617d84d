package repository

import (
	"context"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"marketpay/internal/model"
)

type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) Create(ctx context.Context, tx *gorm.DB, msg *model.OutboxMessage) error {
	return pkgerrors.Wrap(pick(r.db, tx).WithContext(ctx).Create(msg).Error, "create outbox message")
}

func (r *OutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	var messages []*model.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ?", model.OutboxStatusPending).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&messages).Error
	return messages, pkgerrors.Wrap(err, "get pending messages")
}

func (r *OutboxRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	return pkgerrors.Wrap(r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ?", id).
		Update("status", status).Error, "update outbox status")
}

func (r *OutboxRepository) IncrementRetryCount(ctx context.Context, id int64) error {
	return pkgerrors.Wrap(r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ?", id).
		UpdateColumn("retry_count", gorm.Expr("retry_count + 1")).Error, "increment retry count")
}

func (r *OutboxRepository) MarkAsFailed(ctx context.Context, id int64) error {
	return pkgerrors.Wrap(r.db.WithContext(ctx).
		Model(&model.OutboxMessage{}).
		Where("id = ?", id).
		Update("status", model.OutboxStatusFailed).Error, "mark outbox failed")
}

func (r *OutboxRepository) ListByUserID(ctx context.Context, userID int64, eventType string) ([]*model.OutboxMessage, error) {
	var messages []*model.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND event_type = ?", userID, eventType).
		Order("id ASC").
		Find(&messages).Error
	return messages, pkgerrors.Wrap(err, "list outbox messages")
}
