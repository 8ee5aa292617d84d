package repository

import (
	"context"
	"errors"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"

	"marketpay/internal/model"
)

type ItemRepository struct {
	db *gorm.DB
}

func NewItemRepository(db *gorm.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

func (r *ItemRepository) Create(ctx context.Context, item *model.MarketplaceItem) error {
	err := r.db.WithContext(ctx).Create(item).Error
	if isDuplicateKey(err) {
		return ErrDuplicateRequest
	}
	return pkgerrors.Wrap(err, "create item")
}

func (r *ItemRepository) GetByID(ctx context.Context, tx *gorm.DB, id string) (*model.MarketplaceItem, error) {
	var item model.MarketplaceItem
	err := pick(r.db, tx).WithContext(ctx).Where("id = ?", id).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, pkgerrors.Wrap(err, "get item")
	}
	return &item, nil
}
