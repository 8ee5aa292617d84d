package repository

import (
	"context"
	"errors"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"marketpay/internal/model"
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create 幂等键冲突时返回 ErrDuplicateRequest
func (r *OrderRepository) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	err := pick(r.db, tx).WithContext(ctx).Create(order).Error
	if isDuplicateKey(err) {
		return ErrDuplicateRequest
	}
	return pkgerrors.Wrap(err, "create order")
}

func (r *OrderRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Order, error) {
	var order model.Order
	err := pick(r.db, tx).WithContext(ctx).
		Preload("Payments", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, pkgerrors.Wrap(err, "get order")
	}
	return &order, nil
}

// GetByIdempotencyKey 未找到时返回 nil, nil
func (r *OrderRepository) GetByIdempotencyKey(ctx context.Context, tx *gorm.DB, userID int64, key string) (*model.Order, error) {
	var order model.Order
	err := pick(r.db, tx).WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(err, "get order by idempotency key")
	}
	return &order, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id int64, fromStatus, toStatus string) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return ErrStatusConflict
	}

	result := pick(r.db, tx).WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Update("status", toStatus)
	if result.Error != nil {
		return pkgerrors.Wrap(result.Error, "update order status")
	}
	if result.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (r *OrderRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.Order, int64, error) {
	var orders []*model.Order
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Order{}).Where("user_id = ?", userID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, pkgerrors.Wrap(err, "count orders")
	}

	err := query.
		Preload("Payments", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Order("created_at DESC").
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&orders).Error

	return orders, total, pkgerrors.Wrap(err, "list orders")
}
