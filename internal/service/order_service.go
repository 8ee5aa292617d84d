package service

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"marketpay/internal/config"
	"marketpay/internal/model"
	"marketpay/internal/repository"
)

// OrderService 商品上架与订单、销售记录查询
type OrderService struct {
	orderRepo   *repository.OrderRepository
	itemRepo    *repository.ItemRepository
	userRepo    *repository.UserRepository
	paymentRepo *repository.PaymentRepository
	cfg         *config.Config
}

func NewOrderService(db *gorm.DB, cfg *config.Config) *OrderService {
	return &OrderService{
		orderRepo:   repository.NewOrderRepository(db),
		itemRepo:    repository.NewItemRepository(db),
		userRepo:    repository.NewUserRepository(db),
		paymentRepo: repository.NewPaymentRepository(db),
		cfg:         cfg,
	}
}

type CreateItemRequest struct {
	ID          string
	SellerID    int64
	Name        string
	Description string
	Price       int64
	Currency    string
}

// CreateItem 上架商品，卖家名称和邮箱在此刻快照
func (s *OrderService) CreateItem(ctx context.Context, req *CreateItemRequest) (*model.MarketplaceItem, error) {
	if strings.TrimSpace(req.ID) == "" {
		return nil, validationError("商品ID不能为空")
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, validationError("商品名称不能为空")
	}
	if req.Price <= 0 {
		return nil, validationError("商品价格必须大于0")
	}
	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = s.cfg.Business.Currency
	}

	seller, err := s.userRepo.GetByID(ctx, nil, req.SellerID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, newError(KindNotFound, "卖家不存在", err)
		}
		return nil, asPersistence("查询卖家失败", err)
	}

	item := &model.MarketplaceItem{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Currency:    currency,
		UserID:      seller.ID,
		UserName:    seller.Username,
		UserEmail:   seller.Email,
	}
	if err := s.itemRepo.Create(ctx, item); err != nil {
		if errors.Is(err, repository.ErrDuplicateRequest) {
			return nil, newError(KindConflict, "商品ID已存在: "+req.ID, err)
		}
		return nil, asPersistence("创建商品失败", err)
	}
	return item, nil
}

func (s *OrderService) GetItem(ctx context.Context, id string) (*model.MarketplaceItem, error) {
	item, err := s.itemRepo.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, repository.ErrItemNotFound) {
			return nil, newError(KindInvalidItem, "商品不存在: "+id, err)
		}
		return nil, asPersistence("查询商品失败", err)
	}
	return item, nil
}

// GetOrder 只能查看自己的订单
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID int64) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, nil, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, newError(KindNotFound, "订单不存在", err)
		}
		return nil, asPersistence("查询订单失败", err)
	}
	if order.UserID != userID {
		return nil, newError(KindNotFound, "订单不存在", nil)
	}
	return order, nil
}

func (s *OrderService) ListUserOrders(ctx context.Context, userID int64, page, pageSize int) ([]*model.Order, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	orders, total, err := s.orderRepo.ListByUserID(ctx, userID, page, pageSize)
	if err != nil {
		return nil, 0, asPersistence("查询订单失败", err)
	}
	return orders, total, nil
}

// ListSales 卖家视角的分账记录
func (s *OrderService) ListSales(ctx context.Context, sellerID int64, page, pageSize int) ([]*model.SalesTransaction, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	sales, total, err := s.paymentRepo.ListSalesBySellerID(ctx, sellerID, page, pageSize)
	if err != nil {
		return nil, 0, asPersistence("查询销售记录失败", err)
	}
	return sales, total, nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
