package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"marketpay/internal/testutil"
)

func TestResolveUser_CreatesOnceBySubject(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewAccountService(db, NewBalanceLedger(db), new(mockProcessor), testutil.Logger())
	ctx := context.Background()

	first, err := svc.ResolveUser(ctx, &Identity{Subject: "auth0|1", Username: "alice", Email: "a@example.com"})
	require.NoError(t, err)
	second, err := svc.ResolveUser(ctx, &Identity{Subject: "auth0|1", Username: "renamed"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "alice", second.Username)

	_, err = svc.ResolveUser(ctx, &Identity{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateProcessorAccount(t *testing.T) {
	db := testutil.NewDB(t)
	processor := new(mockProcessor)
	svc := NewAccountService(db, NewBalanceLedger(db), processor, testutil.Logger())
	user := testutil.SeedUser(t, db, "seller", 0)

	processor.On("CreateAccount", mock.Anything, &CreateAccountRequest{Email: user.Email, Country: "US"}).Return("acct_9", nil).Once()

	accountID, err := svc.CreateProcessorAccount(context.Background(), user.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "acct_9", accountID)

	// 已开通时不再调用渠道
	accountID, err = svc.CreateProcessorAccount(context.Background(), user.ID, "US")
	require.NoError(t, err)
	assert.Equal(t, "acct_9", accountID)
	processor.AssertExpectations(t)
}

func TestDeleteProcessorAccount(t *testing.T) {
	db := testutil.NewDB(t)
	processor := new(mockProcessor)
	svc := NewAccountService(db, NewBalanceLedger(db), processor, testutil.Logger())
	user := testutil.SeedUser(t, db, "seller", 0)

	err := svc.DeleteProcessorAccount(context.Background(), user.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Model(user).Update("processor_account_id", "acct_1").Error)
	processor.On("DeleteAccount", mock.Anything, "acct_1").Return(errors.New("boom")).Once()
	err = svc.DeleteProcessorAccount(context.Background(), user.ID)
	assert.ErrorIs(t, err, ErrExternalProcessor)

	processor.On("DeleteAccount", mock.Anything, "acct_1").Return(nil).Once()
	require.NoError(t, svc.DeleteProcessorAccount(context.Background(), user.ID))

	reloaded, err := svc.GetUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Empty(t, reloaded.ProcessorAccountID)
}
