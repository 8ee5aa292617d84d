package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"marketpay/internal/testutil"
)

func TestCreatePaymentSheet(t *testing.T) {
	db := testutil.NewDB(t)
	processor := new(mockProcessor)
	accounts := NewAccountService(db, NewBalanceLedger(db), processor, testutil.Logger())
	orders := NewOrderService(db, testutil.Config())
	svc := NewCheckoutService(accounts, orders, processor, "pk_test", testutil.Logger())

	buyer := testutil.SeedUser(t, db, "buyer", 0)
	seller := testutil.SeedUser(t, db, "seller", 0)
	testutil.SeedItem(t, db, "X", seller, 1005)

	_, err := svc.CreatePaymentSheet(context.Background(), buyer.ID, "X")
	assert.ErrorIs(t, err, ErrConflict, "seller without processor account")

	require.NoError(t, db.Model(seller).Update("processor_account_id", "acct_s").Error)
	processor.On("CreateCustomer", mock.Anything, buyer.Email).Return("cus_b", nil).Once()
	processor.On("CreatePaymentIntent", mock.Anything, &PaymentIntentRequest{
		Amount:             1005,
		Currency:           "usd",
		CustomerID:         "cus_b",
		DestinationAccount: "acct_s",
		ApplicationFee:     101,
	}).Return(&PaymentIntent{ID: "pi_1", ClientSecret: "sec"}, nil).Twice()

	sheet, err := svc.CreatePaymentSheet(context.Background(), buyer.ID, "X")
	require.NoError(t, err)
	assert.Equal(t, "sec", sheet.ClientSecret)
	assert.Equal(t, "cus_b", sheet.CustomerID)
	assert.Equal(t, "pk_test", sheet.PublishableKey)
	assert.Equal(t, int64(101), sheet.ApplicationFee)

	// 客户号已保存，第二次不再创建
	_, err = svc.CreatePaymentSheet(context.Background(), buyer.ID, "X")
	require.NoError(t, err)
	processor.AssertExpectations(t)

	_, err = svc.CreatePaymentSheet(context.Background(), buyer.ID, "missing")
	assert.ErrorIs(t, err, ErrInvalidItemReference)
}
