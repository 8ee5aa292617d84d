package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"marketpay/internal/model"
	"marketpay/internal/repository"
	"marketpay/internal/testutil"
)

type PayoutSuite struct {
	suite.Suite
	db        *gorm.DB
	processor *mockProcessor
	service   *PayoutService
	seller    *model.User
}

func TestPayoutSuite(t *testing.T) {
	suite.Run(t, new(PayoutSuite))
}

func (s *PayoutSuite) SetupTest() {
	s.db = testutil.NewDB(s.T())
	mr := miniredis.RunT(s.T())
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s.T().Cleanup(func() { _ = rdb.Close() })

	cfg := testutil.Config()
	s.processor = new(mockProcessor)
	s.service = NewPayoutService(s.db, rdb, cfg, NewBalanceLedger(s.db), s.processor, NewOutboxNotifier(s.db, cfg), testutil.Logger())
	s.seller = testutil.SeedUser(s.T(), s.db, "seller", 1000)
}

func (s *PayoutSuite) intent(no string) *model.PayoutIntent {
	intent, err := repository.NewPayoutRepository(s.db).GetByIntentNo(context.Background(), nil, no)
	s.Require().NoError(err)
	return intent
}

func (s *PayoutSuite) payout(amount int64) (*PayoutResult, error) {
	return s.service.Payout(context.Background(), &PayoutRequest{
		UserID:      s.seller.ID,
		Amount:      amount,
		Destination: "acct_1",
	})
}

func (s *PayoutSuite) TestPartialPayoutSucceeds() {
	s.processor.On("CreatePayout", mock.Anything, mock.MatchedBy(func(req *MoneyMovementRequest) bool {
		return req.AccountID == "acct_1" && req.Amount == 400 && req.Currency == "usd" && req.IdempotencyKey != ""
	})).Return("po_1", nil).Once()

	result, err := s.payout(400)
	s.Require().NoError(err)
	s.Equal(model.PayoutStatusSucceeded, result.Status)
	s.Equal("po_1", result.ExternalRef)
	s.Equal(int64(600), result.BalanceAfter)
	s.Equal(int64(600), testutil.Balance(s.T(), s.db, s.seller.ID))

	intent := s.intent(result.IntentNo)
	s.Equal(model.PayoutStatusSucceeded, intent.Status)
	s.Equal("po_1", intent.ExternalRef)
	s.Equal(1, intent.Attempts)

	call := s.processor.Calls[0].Arguments.Get(1).(*MoneyMovementRequest)
	s.Equal(result.IntentNo, call.IdempotencyKey)

	msgs, err := repository.NewOutboxRepository(s.db).ListByUserID(context.Background(), s.seller.ID, model.EventPayoutResult)
	s.Require().NoError(err)
	s.Len(msgs, 1)
	s.processor.AssertExpectations(s.T())
}

func (s *PayoutSuite) TestPayoutOfExactBalanceLeavesZero() {
	s.processor.On("CreatePayout", mock.Anything, mock.Anything).Return("po_2", nil).Once()

	_, err := s.payout(1000)
	s.Require().NoError(err)
	s.Equal(int64(0), testutil.Balance(s.T(), s.db, s.seller.ID))
}

func (s *PayoutSuite) TestInsufficientFundsNeverCallsProcessor() {
	empty := testutil.SeedUser(s.T(), s.db, "empty", 0)

	_, err := s.service.Payout(context.Background(), &PayoutRequest{UserID: empty.ID, Amount: 1, Destination: "acct_1"})
	s.ErrorIs(err, ErrInsufficientFunds)
	s.Equal(int64(0), testutil.Balance(s.T(), s.db, empty.ID))

	_, err = s.payout(1001)
	s.ErrorIs(err, ErrInsufficientFunds)
	s.Equal(int64(1000), testutil.Balance(s.T(), s.db, s.seller.ID))

	s.Equal(int64(0), testutil.Count(s.T(), s.db, &model.PayoutIntent{}))
	s.processor.AssertNotCalled(s.T(), "CreatePayout", mock.Anything, mock.Anything)
}

func (s *PayoutSuite) TestValidation() {
	_, err := s.payout(0)
	s.ErrorIs(err, ErrValidation)

	_, err = s.service.Payout(context.Background(), &PayoutRequest{UserID: s.seller.ID, Amount: 10})
	s.ErrorIs(err, ErrValidation)

	_, err = s.service.Transfer(context.Background(), &TransferRequest{UserID: s.seller.ID, Destination: " "})
	s.ErrorIs(err, ErrValidation)
	s.Equal(int64(1000), testutil.Balance(s.T(), s.db, s.seller.ID))
}

func (s *PayoutSuite) TestRejectedPayoutRestoresBalance() {
	s.processor.On("CreatePayout", mock.Anything, mock.Anything).
		Return("", &ProcessorError{StatusCode: 400, Code: "balance_insufficient", Message: "no funds"}).Once()

	result, err := s.payout(700)
	s.Require().ErrorIs(err, ErrExternalProcessor)
	var appErr *AppError
	s.Require().True(errors.As(err, &appErr))
	s.False(appErr.Retryable)

	s.Equal(model.PayoutStatusFailed, result.Status)
	s.Equal(int64(1000), testutil.Balance(s.T(), s.db, s.seller.ID))

	intent := s.intent(result.IntentNo)
	s.Equal(model.PayoutStatusFailed, intent.Status)
	s.Contains(intent.FailureReason, "no funds")

	// 重复收尾不会再次退回余额
	_, err = s.service.compensate(context.Background(), intent, errors.New("again"))
	s.ErrorIs(err, ErrExternalProcessor)
	s.Equal(int64(1000), testutil.Balance(s.T(), s.db, s.seller.ID))
}

func (s *PayoutSuite) TestUnknownOutcomeStaysPendingUntilReconciled() {
	s.processor.On("CreatePayout", mock.Anything, mock.Anything).
		Return("", &ProcessorError{StatusCode: 503, Message: "unavailable", Temporary: true}).Once()

	result, err := s.payout(300)
	s.Require().ErrorIs(err, ErrExternalProcessor)
	var appErr *AppError
	s.Require().True(errors.As(err, &appErr))
	s.True(appErr.Retryable)
	s.Equal(model.PayoutStatusPending, result.Status)

	// 金额保持冻结
	s.Equal(int64(700), testutil.Balance(s.T(), s.db, s.seller.ID))

	s.processor.On("CreatePayout", mock.Anything, mock.MatchedBy(func(req *MoneyMovementRequest) bool {
		return req.IdempotencyKey == result.IntentNo
	})).Return("po_late", nil).Once()

	reconciled, err := s.service.Reconcile(context.Background(), s.intent(result.IntentNo))
	s.Require().NoError(err)
	s.Equal(model.PayoutStatusSucceeded, reconciled.Status)
	s.Equal("po_late", reconciled.ExternalRef)
	s.Equal(int64(700), testutil.Balance(s.T(), s.db, s.seller.ID))

	intent := s.intent(result.IntentNo)
	s.Equal(2, intent.Attempts)

	// 已终态的意图不会再调用渠道
	again, err := s.service.Reconcile(context.Background(), intent)
	s.Require().NoError(err)
	s.Equal(model.PayoutStatusSucceeded, again.Status)
	s.processor.AssertExpectations(s.T())
}

func (s *PayoutSuite) TestTransferMovesEntireBalance() {
	s.processor.On("CreateTransfer", mock.Anything, mock.MatchedBy(func(req *MoneyMovementRequest) bool {
		return req.Amount == 1000 && req.AccountID == "acct_2"
	})).Return("tr_1", nil).Once()

	result, err := s.service.Transfer(context.Background(), &TransferRequest{UserID: s.seller.ID, Destination: "acct_2"})
	s.Require().NoError(err)
	s.Equal(model.PayoutKindTransfer, result.Kind)
	s.Equal(int64(1000), result.Amount)
	s.Equal(int64(0), testutil.Balance(s.T(), s.db, s.seller.ID))

	_, err = s.service.Transfer(context.Background(), &TransferRequest{UserID: s.seller.ID, Destination: "acct_2"})
	s.ErrorIs(err, ErrInsufficientFunds)
	s.processor.AssertExpectations(s.T())
}

func (s *PayoutSuite) TestConcurrentPayoutsNeverOverdraw() {
	s.processor.On("CreatePayout", mock.Anything, mock.Anything).Return("po", nil)

	var succeeded int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.payout(300); err == nil {
				atomic.AddInt32(&succeeded, 1)
			} else {
				s.ErrorIs(err, ErrInsufficientFunds)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(3), succeeded)
	s.Equal(int64(100), testutil.Balance(s.T(), s.db, s.seller.ID))
}

func (s *PayoutSuite) TestListIntentsNewestFirst() {
	s.processor.On("CreatePayout", mock.Anything, mock.Anything).Return("po_a", nil).Once()
	first, err := s.payout(100)
	s.Require().NoError(err)
	s.processor.On("CreatePayout", mock.Anything, mock.Anything).Return("po_b", nil).Once()
	second, err := s.payout(200)
	s.Require().NoError(err)

	intents, total, err := s.service.ListIntents(context.Background(), s.seller.ID, 1, 10)
	s.Require().NoError(err)
	s.EqualValues(2, total)
	s.Require().Len(intents, 2)
	s.Equal(second.IntentNo, intents[0].IntentNo)
	s.Equal(first.IntentNo, intents[1].IntentNo)

	intents, total, err = s.service.ListIntents(context.Background(), s.seller.ID+1, 1, 10)
	s.Require().NoError(err)
	s.EqualValues(0, total)
	s.Empty(intents)
}

func (s *PayoutSuite) TestGetIntentIsScopedToOwner() {
	s.processor.On("CreatePayout", mock.Anything, mock.Anything).Return("po_3", nil).Once()
	result, err := s.payout(100)
	s.Require().NoError(err)

	intent, err := s.service.GetIntent(context.Background(), s.seller.ID, result.IntentNo)
	s.Require().NoError(err)
	s.Equal(int64(100), intent.Amount)

	_, err = s.service.GetIntent(context.Background(), s.seller.ID+1, result.IntentNo)
	s.ErrorIs(err, ErrNotFound)
}
