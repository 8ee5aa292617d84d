package job

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"marketpay/internal/model"
	"marketpay/internal/service"
	"marketpay/internal/testutil"
)

type mockReconciler struct {
	mock.Mock
}

func (m *mockReconciler) Reconcile(ctx context.Context, intent *model.PayoutIntent) (*service.PayoutResult, error) {
	args := m.Called(ctx, intent)
	result, _ := args.Get(0).(*service.PayoutResult)
	return result, args.Error(1)
}

func seedIntent(t *testing.T, db *gorm.DB, no, status string, attempts int) *model.PayoutIntent {
	t.Helper()
	intent := &model.PayoutIntent{
		IntentNo:    no,
		UserID:      1,
		Kind:        model.PayoutKindPayout,
		Amount:      100,
		Currency:    "usd",
		Destination: "acct_1",
		Status:      status,
		Attempts:    attempts,
	}
	require.NoError(t, db.Create(intent).Error)
	require.NoError(t, db.Model(intent).UpdateColumn("updated_at", time.Now().Add(-time.Hour)).Error)
	return intent
}

func byNo(no string) interface{} {
	return mock.MatchedBy(func(intent *model.PayoutIntent) bool { return intent.IntentNo == no })
}

func TestPayoutReconcileJob_RunOnce(t *testing.T) {
	db := testutil.NewDB(t)
	reconciler := new(mockReconciler)
	cfg := testutil.Config()
	cfg.Business.PayoutMaxAttempts = 3
	j := NewPayoutReconcileJob(db, reconciler, cfg, testutil.Logger())

	seedIntent(t, db, "PO1", model.PayoutStatusPending, 1)
	seedIntent(t, db, "PO2", model.PayoutStatusPending, 1)
	seedIntent(t, db, "PO3", model.PayoutStatusPending, 3)
	seedIntent(t, db, "PO4", model.PayoutStatusSucceeded, 1)

	reconciler.On("Reconcile", mock.Anything, byNo("PO1")).
		Return(&service.PayoutResult{IntentNo: "PO1", Status: model.PayoutStatusSucceeded}, nil).Once()
	reconciler.On("Reconcile", mock.Anything, byNo("PO2")).
		Return(&service.PayoutResult{IntentNo: "PO2", Status: model.PayoutStatusPending}, errors.New("still down")).Once()

	assert.Equal(t, 1, j.RunOnce(context.Background()))
	reconciler.AssertExpectations(t)
	reconciler.AssertNotCalled(t, "Reconcile", mock.Anything, byNo("PO3"))
	reconciler.AssertNotCalled(t, "Reconcile", mock.Anything, byNo("PO4"))
}

func TestPayoutReconcileJob_ExhaustedIntentsDoNotStarveBatch(t *testing.T) {
	db := testutil.NewDB(t)
	reconciler := new(mockReconciler)
	cfg := testutil.Config()
	cfg.Business.PayoutMaxAttempts = 3
	j := NewPayoutReconcileJob(db, reconciler, cfg, testutil.Logger())

	for i := 0; i < j.batchSize; i++ {
		seedIntent(t, db, fmt.Sprintf("PO-X%02d", i), model.PayoutStatusPending, 3)
	}
	seedIntent(t, db, "PO-LAST", model.PayoutStatusPending, 1)

	reconciler.On("Reconcile", mock.Anything, byNo("PO-LAST")).
		Return(&service.PayoutResult{IntentNo: "PO-LAST", Status: model.PayoutStatusSucceeded}, nil).Once()

	assert.Equal(t, 1, j.RunOnce(context.Background()))
	reconciler.AssertExpectations(t)
	reconciler.AssertNumberOfCalls(t, "Reconcile", 1)
}

func TestPayoutReconcileJob_SkipsFreshIntents(t *testing.T) {
	db := testutil.NewDB(t)
	reconciler := new(mockReconciler)
	cfg := testutil.Config()
	cfg.Business.PayoutStaleAfterSeconds = 3600
	j := NewPayoutReconcileJob(db, reconciler, cfg, testutil.Logger())

	intent := seedIntent(t, db, "PO1", model.PayoutStatusPending, 0)
	require.NoError(t, db.Model(intent).UpdateColumn("updated_at", time.Now()).Error)

	assert.Equal(t, 0, j.RunOnce(context.Background()))
	reconciler.AssertNotCalled(t, "Reconcile", mock.Anything, mock.Anything)
}

func TestPayoutReconcileJob_StopsOnContextCancel(t *testing.T) {
	db := testutil.NewDB(t)
	j := NewPayoutReconcileJob(db, new(mockReconciler), testutil.Config(), testutil.Logger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not stop")
	}
}
