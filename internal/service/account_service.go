package service

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"marketpay/internal/model"
	"marketpay/internal/repository"
)

// Identity 已通过身份校验的调用方
type Identity struct {
	Subject  string
	Username string
	Email    string
}

// AccountService 用户与渠道账户
type AccountService struct {
	userRepo  *repository.UserRepository
	ledger    *BalanceLedger
	processor PaymentProcessor
	log       *logrus.Entry
}

func NewAccountService(db *gorm.DB, ledger *BalanceLedger, processor PaymentProcessor, log logrus.FieldLogger) *AccountService {
	return &AccountService{
		userRepo:  repository.NewUserRepository(db),
		ledger:    ledger,
		processor: processor,
		log:       log.WithField("component", "account"),
	}
}

// ResolveUser 首次访问时按 subject 建档
func (s *AccountService) ResolveUser(ctx context.Context, id *Identity) (*model.User, error) {
	if id == nil || strings.TrimSpace(id.Subject) == "" {
		return nil, validationError("身份信息缺失")
	}
	user, err := s.userRepo.GetOrCreateByAuthRef(ctx, id.Subject, id.Username, id.Email)
	if err != nil {
		return nil, asPersistence("加载用户失败", err)
	}
	return user, nil
}

func (s *AccountService) GetUser(ctx context.Context, userID int64) (*model.User, error) {
	user, err := s.userRepo.GetByID(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, newError(KindNotFound, "用户不存在", err)
		}
		return nil, asPersistence("查询用户失败", err)
	}
	return user, nil
}

func (s *AccountService) GetBalance(ctx context.Context, userID int64) (int64, error) {
	return s.ledger.Balance(ctx, userID)
}

// CreateProcessorAccount 为卖家开通收款账户，已开通时直接返回
func (s *AccountService) CreateProcessorAccount(ctx context.Context, userID int64, country string) (string, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.ProcessorAccountID != "" {
		return user.ProcessorAccountID, nil
	}
	if country == "" {
		country = "US"
	}

	accountID, err := s.processor.CreateAccount(ctx, &CreateAccountRequest{Email: user.Email, Country: country})
	if err != nil {
		return "", newError(KindExternal, "开通收款账户失败", err)
	}
	if err := s.userRepo.SetProcessorAccount(ctx, userID, accountID); err != nil {
		s.log.WithContext(ctx).WithError(err).WithFields(logrus.Fields{
			"user_id":    userID,
			"account_id": accountID,
		}).Error("收款账户已创建但保存失败")
		return "", asPersistence("保存收款账户失败", err)
	}

	s.log.WithContext(ctx).WithFields(logrus.Fields{"user_id": userID, "account_id": accountID}).Info("收款账户已开通")
	return accountID, nil
}

func (s *AccountService) DeleteProcessorAccount(ctx context.Context, userID int64) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.ProcessorAccountID == "" {
		return newError(KindNotFound, "未开通收款账户", nil)
	}

	if err := s.processor.DeleteAccount(ctx, user.ProcessorAccountID); err != nil {
		return newError(KindExternal, "注销收款账户失败", err)
	}
	if err := s.userRepo.SetProcessorAccount(ctx, userID, ""); err != nil {
		return asPersistence("清除收款账户失败", err)
	}

	s.log.WithContext(ctx).WithFields(logrus.Fields{"user_id": userID, "account_id": user.ProcessorAccountID}).Info("收款账户已注销")
	return nil
}

// EnsureCustomer 买家在渠道侧的客户号，不存在时创建
func (s *AccountService) EnsureCustomer(ctx context.Context, user *model.User) (string, error) {
	if user.ProcessorCustomerID != "" {
		return user.ProcessorCustomerID, nil
	}
	customerID, err := s.processor.CreateCustomer(ctx, user.Email)
	if err != nil {
		return "", newError(KindExternal, "创建渠道客户失败", err)
	}
	if err := s.userRepo.SetProcessorCustomer(ctx, user.ID, customerID); err != nil {
		return "", asPersistence("保存渠道客户失败", err)
	}
	user.ProcessorCustomerID = customerID
	return customerID, nil
}
