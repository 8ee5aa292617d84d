package repository

import (
	"context"
	"errors"

	pkgerrors "github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"marketpay/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, tx *gorm.DB, user *model.User) error {
	return pkgerrors.Wrap(pick(r.db, tx).WithContext(ctx).Create(user).Error, "create user")
}

func (r *UserRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.User, error) {
	var user model.User
	err := pick(r.db, tx).WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, pkgerrors.Wrap(err, "get user")
	}
	return &user, nil
}

// GetByIDForUpdate 行锁读取，必须在事务中调用
func (r *UserRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.User, error) {
	var user model.User
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, pkgerrors.Wrap(err, "lock user")
	}
	return &user, nil
}

// UpdateBalance 写入新余额，version 不匹配时返回 ErrOptimisticLock
func (r *UserRepository) UpdateBalance(ctx context.Context, tx *gorm.DB, id int64, balance int64, version int) error {
	result := tx.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ? AND version = ?", id, version).
		Updates(map[string]interface{}{
			"account_balance": balance,
			"version":         gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return pkgerrors.Wrap(result.Error, "update balance")
	}
	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}
	return nil
}

// GetOrCreateByAuthRef 按身份提供方的 subject 查找用户，不存在则创建
func (r *UserRepository) GetOrCreateByAuthRef(ctx context.Context, authRef, username, email string) (*model.User, error) {
	user, err := r.getByAuthRef(ctx, authRef)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	newUser := &model.User{
		AuthRef:  authRef,
		Username: username,
		Email:    email,
	}
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "auth_ref"}},
			DoNothing: true,
		}).
		Create(newUser).Error
	if err != nil {
		return nil, pkgerrors.Wrap(err, "create user")
	}

	return r.getByAuthRef(ctx, authRef)
}

func (r *UserRepository) getByAuthRef(ctx context.Context, authRef string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("auth_ref = ?", authRef).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, pkgerrors.Wrap(err, "get user by auth ref")
	}
	return &user, nil
}

func (r *UserRepository) SetProcessorAccount(ctx context.Context, id int64, accountID string) error {
	return r.updateColumn(ctx, id, "processor_account_id", accountID)
}

func (r *UserRepository) SetProcessorCustomer(ctx context.Context, id int64, customerID string) error {
	return r.updateColumn(ctx, id, "processor_customer_id", customerID)
}

func (r *UserRepository) updateColumn(ctx context.Context, id int64, column string, value interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", id).
		Update(column, value)
	if result.Error != nil {
		return pkgerrors.Wrapf(result.Error, "update user %s", column)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
