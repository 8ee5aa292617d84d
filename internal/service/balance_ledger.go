package service

import (
	"context"
	"errors"
	"math"

	"gorm.io/gorm"

	"marketpay/internal/repository"
)

// BalanceChange 一次余额变动的前后快照
type BalanceChange struct {
	UserID int64 `json:"user_id"`
	Amount int64 `json:"amount"` // 正数入账，负数出账
	Before int64 `json:"balance_before"`
	After  int64 `json:"balance_after"`
}

// BalanceLedger 卖家可提现余额的唯一写入口。
// 所有变动都在调用方事务里先 SELECT ... FOR UPDATE 锁住用户行，
// 再按 version 条件写回，check-then-write 不会丢失更新或超额提现。
type BalanceLedger struct {
	db       *gorm.DB
	userRepo *repository.UserRepository
}

func NewBalanceLedger(db *gorm.DB) *BalanceLedger {
	return &BalanceLedger{
		db:       db,
		userRepo: repository.NewUserRepository(db),
	}
}

// Credit 入账，入账后余额不能超过 int64 上限。tx 为 nil 时自开事务
func (l *BalanceLedger) Credit(ctx context.Context, tx *gorm.DB, userID int64, amount int64) (*BalanceChange, error) {
	if amount <= 0 {
		return nil, validationError("入账金额必须大于0")
	}
	return l.apply(ctx, tx, userID, func(balance int64) (int64, error) {
		if amount > math.MaxInt64-balance {
			return 0, ErrBalanceOverflow
		}
		return amount, nil
	})
}

// Debit 出账，余额不足返回 ErrInsufficientFunds
func (l *BalanceLedger) Debit(ctx context.Context, tx *gorm.DB, userID int64, amount int64) (*BalanceChange, error) {
	if amount <= 0 {
		return nil, validationError("出账金额必须大于0")
	}
	return l.apply(ctx, tx, userID, func(balance int64) (int64, error) {
		if amount > balance {
			return 0, ErrInsufficientFunds
		}
		return -amount, nil
	})
}

// DebitAll 清空余额，余额为 0 时返回 ErrInsufficientFunds
func (l *BalanceLedger) DebitAll(ctx context.Context, tx *gorm.DB, userID int64) (*BalanceChange, error) {
	return l.apply(ctx, tx, userID, func(balance int64) (int64, error) {
		if balance <= 0 {
			return 0, ErrInsufficientFunds
		}
		return -balance, nil
	})
}

func (l *BalanceLedger) Balance(ctx context.Context, userID int64) (int64, error) {
	user, err := l.userRepo.GetByID(ctx, nil, userID)
	if err != nil {
		return 0, l.translate(err)
	}
	return user.AccountBalance, nil
}

func (l *BalanceLedger) apply(ctx context.Context, tx *gorm.DB, userID int64, delta func(balance int64) (int64, error)) (*BalanceChange, error) {
	if tx == nil {
		var change *BalanceChange
		err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			change, err = l.apply(ctx, tx, userID, delta)
			return err
		})
		return change, err
	}

	user, err := l.userRepo.GetByIDForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, l.translate(err)
	}

	amount, err := delta(user.AccountBalance)
	if err != nil {
		return nil, err
	}

	after := user.AccountBalance + amount
	if err := l.userRepo.UpdateBalance(ctx, tx, userID, after, user.Version); err != nil {
		return nil, l.translate(err)
	}

	return &BalanceChange{
		UserID: userID,
		Amount: amount,
		Before: user.AccountBalance,
		After:  after,
	}, nil
}

func (l *BalanceLedger) translate(err error) error {
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		return newError(KindNotFound, "用户不存在", err)
	case errors.Is(err, repository.ErrOptimisticLock):
		return newError(KindConflict, "余额并发更新冲突，请重试", err)
	default:
		return asPersistence("余额更新失败", err)
	}
}
