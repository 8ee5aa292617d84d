package service

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"marketpay/internal/model"
	"marketpay/internal/testutil"
)

func TestBalanceLedger_CreditAndDebit(t *testing.T) {
	db := testutil.NewDB(t)
	ledger := NewBalanceLedger(db)
	ctx := context.Background()
	seller := testutil.SeedUser(t, db, "seller", 0)

	change, err := ledger.Credit(ctx, nil, seller.ID, 900)
	require.NoError(t, err)
	assert.Equal(t, int64(0), change.Before)
	assert.Equal(t, int64(900), change.After)

	change, err = ledger.Debit(ctx, nil, seller.ID, 400)
	require.NoError(t, err)
	assert.Equal(t, int64(-400), change.Amount)
	assert.Equal(t, int64(500), change.After)

	balance, err := ledger.Balance(ctx, seller.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), balance)
}

func TestBalanceLedger_DebitExactBalance(t *testing.T) {
	db := testutil.NewDB(t)
	ledger := NewBalanceLedger(db)
	seller := testutil.SeedUser(t, db, "seller", 100)

	_, err := ledger.Debit(context.Background(), nil, seller.ID, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(0), testutil.Balance(t, db, seller.ID))
}

func TestBalanceLedger_InsufficientFundsLeavesBalance(t *testing.T) {
	db := testutil.NewDB(t)
	ledger := NewBalanceLedger(db)
	ctx := context.Background()

	empty := testutil.SeedUser(t, db, "empty", 0)
	_, err := ledger.Debit(ctx, nil, empty.ID, 1)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, int64(0), testutil.Balance(t, db, empty.ID))

	some := testutil.SeedUser(t, db, "some", 50)
	_, err = ledger.Debit(ctx, nil, some.ID, 51)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, int64(50), testutil.Balance(t, db, some.ID))

	_, err = ledger.DebitAll(ctx, nil, empty.ID)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestBalanceLedger_DebitAll(t *testing.T) {
	db := testutil.NewDB(t)
	ledger := NewBalanceLedger(db)
	seller := testutil.SeedUser(t, db, "seller", 1234)

	change, err := ledger.DebitAll(context.Background(), nil, seller.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(-1234), change.Amount)
	assert.Equal(t, int64(0), testutil.Balance(t, db, seller.ID))
}

func TestBalanceLedger_RejectsNonPositiveAmounts(t *testing.T) {
	db := testutil.NewDB(t)
	ledger := NewBalanceLedger(db)
	seller := testutil.SeedUser(t, db, "seller", 10)

	_, err := ledger.Credit(context.Background(), nil, seller.ID, 0)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = ledger.Debit(context.Background(), nil, seller.ID, -5)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, int64(10), testutil.Balance(t, db, seller.ID))
}

func TestBalanceLedger_UnknownUser(t *testing.T) {
	db := testutil.NewDB(t)
	ledger := NewBalanceLedger(db)

	_, err := ledger.Credit(context.Background(), nil, 999, 10)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = ledger.Balance(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBalanceLedger_ConcurrentCreditsAreNotLost(t *testing.T) {
	db := testutil.NewDB(t)
	ledger := NewBalanceLedger(db)
	seller := testutil.SeedUser(t, db, "seller", 0)

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Credit(context.Background(), nil, seller.ID, 45)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(workers*45), testutil.Balance(t, db, seller.ID))
}

func TestBalanceLedger_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	db := testutil.NewDB(t)
	ledger := NewBalanceLedger(db)
	seller := testutil.SeedUser(t, db, "seller", 100)

	var succeeded, rejected int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Debit(context.Background(), nil, seller.ID, 30)
			if err == nil {
				atomic.AddInt32(&succeeded, 1)
				return
			}
			assert.ErrorIs(t, err, ErrInsufficientFunds)
			atomic.AddInt32(&rejected, 1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(3), succeeded)
	assert.Equal(t, int32(7), rejected)
	assert.Equal(t, int64(10), testutil.Balance(t, db, seller.ID))
}

func TestBalanceLedger_CreditOverflowRejected(t *testing.T) {
	db := testutil.NewDB(t)
	ledger := NewBalanceLedger(db)
	ctx := context.Background()
	seller := testutil.SeedUser(t, db, "rich", math.MaxInt64-10)

	_, err := ledger.Credit(ctx, nil, seller.ID, 11)
	assert.ErrorIs(t, err, ErrBalanceOverflow)
	assert.Equal(t, int64(math.MaxInt64-10), testutil.Balance(t, db, seller.ID))

	change, err := ledger.Credit(ctx, nil, seller.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), change.After)
}

// 单连接 SQLite 上并发测试天然串行，这里直接构造 version 不一致来覆盖乐观锁分支
func TestBalanceLedger_StaleVersionIsConflict(t *testing.T) {
	db := testutil.NewDB(t)
	ledger := NewBalanceLedger(db)
	ctx := context.Background()
	seller := testutil.SeedUser(t, db, "seller", 100)

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := ledger.apply(ctx, tx, seller.ID, func(int64) (int64, error) {
			bump := tx.Model(&model.User{}).Where("id = ?", seller.ID).
				UpdateColumn("version", gorm.Expr("version + 1"))
			require.NoError(t, bump.Error)
			return 50, nil
		})
		return err
	})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, int64(100), testutil.Balance(t, db, seller.ID))
}
