package repository

import (
	"context"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"marketpay/internal/model"
)

// PaymentRepository 负责 Payment 与 SalesTransaction 两张只追加的表
type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) CreatePayment(ctx context.Context, tx *gorm.DB, payment *model.Payment) error {
	return pkgerrors.Wrap(pick(r.db, tx).WithContext(ctx).Create(payment).Error, "create payment")
}

func (r *PaymentRepository) CreateSalesTransaction(ctx context.Context, tx *gorm.DB, st *model.SalesTransaction) error {
	return pkgerrors.Wrap(pick(r.db, tx).WithContext(ctx).Create(st).Error, "create sales transaction")
}

func (r *PaymentRepository) ListSalesByOrderID(ctx context.Context, orderID int64) ([]*model.SalesTransaction, error) {
	var sales []*model.SalesTransaction
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id ASC").Find(&sales).Error
	return sales, pkgerrors.Wrap(err, "list sales by order")
}

func (r *PaymentRepository) ListSalesBySellerID(ctx context.Context, sellerID int64, page, pageSize int) ([]*model.SalesTransaction, int64, error) {
	var sales []*model.SalesTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.SalesTransaction{}).Where("user_id = ?", sellerID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, pkgerrors.Wrap(err, "count sales")
	}

	err := query.
		Order("transaction_date DESC").
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&sales).Error

	return sales, total, pkgerrors.Wrap(err, "list sales by seller")
}
