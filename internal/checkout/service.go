package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bloomcart/bloomcart-backend/internal/cart"
	"github.com/bloomcart/bloomcart-backend/internal/catalog"
	"github.com/bloomcart/bloomcart-backend/internal/inventory"
	"github.com/bloomcart/bloomcart-backend/internal/mailer"
	"github.com/bloomcart/bloomcart-backend/internal/notifications"
	"github.com/bloomcart/bloomcart-backend/internal/orders"
	"github.com/bloomcart/bloomcart-backend/internal/payments"
	"github.com/bloomcart/bloomcart-backend/pkg/config"
	"github.com/bloomcart/bloomcart-backend/pkg/db/models"
	"github.com/bloomcart/bloomcart-backend/pkg/enums"
	pkgerrors "github.com/bloomcart/bloomcart-backend/pkg/errors"
	"github.com/bloomcart/bloomcart-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// PlaceOrderInput carries everything checkout needs beyond the cart.
type PlaceOrderInput struct {
	RecipientName   string
	RecipientPhone  string
	ShippingAddress string
	Note            *string
	PaymentMethod   enums.PaymentMethod
	ShippingFee     *int64
	ClientIP        string
}

// PlaceOrderResult is the saga outcome. PayURL is empty for methods that
// settle offline.
type PlaceOrderResult struct {
	Order  *models.Order
	PayURL string
}

// Service turns a cart into an order atomically: stem allocation, product
// stock deduction and the order graph land in one transaction.
type Service interface {
	PlaceOrder(ctx context.Context, userID uuid.UUID, input PlaceOrderInput) (*PlaceOrderResult, error)
	RetryPayment(ctx context.Context, userID, orderID uuid.UUID, clientIP string) (string, error)
}

// ServiceParams collects the checkout dependencies.
type ServiceParams struct {
	Cart              cart.Service
	CatalogRepo       catalog.Repository
	Inventory         inventory.Service
	OrdersRepo        orders.Repository
	Orders            orders.Service
	Notifications     notifications.Service
	Dispatcher        *payments.Dispatcher
	Mailer            mailer.Sender
	TransactionRunner txRunner
	Logger            *logger.Logger
	Config            config.CheckoutConfig
}

type serviceImpl struct {
	cart       cart.Service
	catalog    catalog.Repository
	inventory  inventory.Service
	ordersRepo orders.Repository
	orders     orders.Service
	notifier   notifications.Service
	dispatcher *payments.Dispatcher
	mail       mailer.Sender
	txRunner   txRunner
	logg       *logger.Logger
	cfg        config.CheckoutConfig
}

// NewService wires the checkout service. The mailer may be nil.
func NewService(params ServiceParams) (Service, error) {
	if params.Cart == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart service required")
	}
	if params.CatalogRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "catalog repo required")
	}
	if params.Inventory == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory service required")
	}
	if params.OrdersRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repo required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service required")
	}
	if params.Notifications == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifications service required")
	}
	if params.Dispatcher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment dispatcher required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &serviceImpl{
		cart:       params.Cart,
		catalog:    params.CatalogRepo,
		inventory:  params.Inventory,
		ordersRepo: params.OrdersRepo,
		orders:     params.Orders,
		notifier:   params.Notifications,
		dispatcher: params.Dispatcher,
		mail:       params.Mailer,
		txRunner:   params.TransactionRunner,
		logg:       params.Logger,
		cfg:        params.Config,
	}, nil
}

func (s *serviceImpl) PlaceOrder(ctx context.Context, userID uuid.UUID, input PlaceOrderInput) (*PlaceOrderResult, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	cartDoc, err := s.cart.Raw(ctx, userID.String())
	if err != nil {
		return nil, err
	}
	if len(cartDoc.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	shippingFee := s.cfg.DefaultShippingFee
	if input.ShippingFee != nil {
		if *input.ShippingFee < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping fee cannot be negative")
		}
		shippingFee = *input.ShippingFee
	}

	// Row locks must not outlive a stuck client.
	txCtx, cancel := context.WithTimeout(ctx, s.txTimeout())
	defer cancel()

	var order *models.Order
	err = s.txRunner.WithTx(txCtx, func(tx *gorm.DB) error {
		var txErr error
		order, txErr = s.placeInTx(txCtx, tx, userID, input, cartDoc, shippingFee)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	s.logg.Info(ctx, "order placed")
	s.notifyNewOrder(ctx, order)
	if err := s.cart.Clear(ctx, userID.String()); err != nil {
		// The order exists; a stale cart is an annoyance, not a failure.
		s.logg.Error(ctx, "clearing cart after checkout failed", err)
	}

	result := &PlaceOrderResult{Order: order}
	if input.PaymentMethod.RequiresRedirect() {
		payURL, err := s.startGatewayPayment(ctx, order, input.ClientIP)
		if err != nil {
			return nil, err
		}
		result.PayURL = payURL
	} else {
		s.sendConfirmationEmail(ctx, order)
	}
	return result, nil
}

// RetryPayment builds a fresh gateway redirect for an order whose first
// payment attempt never went through.
func (s *serviceImpl) RetryPayment(ctx context.Context, userID, orderID uuid.UUID, clientIP string) (string, error) {
	order, err := s.orders.GetForUser(ctx, userID, orderID)
	if err != nil {
		return "", err
	}
	if !order.PaymentMethod.RequiresRedirect() {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "order does not use an online gateway")
	}
	if order.Status != enums.OrderStatusPending || order.Payment == nil ||
		order.Payment.Status != enums.PaymentStatusPending {
		return "", pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer awaiting payment")
	}
	return s.startGatewayPayment(s.logg.WithOrderID(ctx, order.ID.String()), order, clientIP)
}

func (s *serviceImpl) placeInTx(ctx context.Context, tx *gorm.DB, userID uuid.UUID, input PlaceOrderInput, cartDoc *cart.Cart, shippingFee int64) (*models.Order, error) {
	catalogRepo := s.catalog.WithTx(tx)
	inventorySvc := s.inventory.WithTx(tx)
	ordersRepo := s.ordersRepo.WithTx(tx)
	now := time.Now().UTC()

	ids := make([]uuid.UUID, 0, len(cartDoc.Items))
	for _, item := range cartDoc.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := catalogRepo.GetProductsForUpdate(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading products")
	}
	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, product := range products {
		byID[product.ID] = product
	}

	order := &models.Order{
		ID:              uuid.New(),
		UserID:          userID,
		Status:          enums.OrderStatusPending,
		RecipientName:   input.RecipientName,
		RecipientPhone:  input.RecipientPhone,
		ShippingAddress: input.ShippingAddress,
		Note:            input.Note,
		ShippingFee:     shippingFee,
		PaymentMethod:   input.PaymentMethod,
	}

	demandByType := map[uuid.UUID]inventory.Demand{}
	for _, item := range cartDoc.Items {
		product, ok := byID[item.ProductID]
		if !ok || !product.IsActive {
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("product %s is no longer available", item.ProductID))
		}
		if err := cart.ValidateDelivery(item.DeliveryDate, item.DeliverySlot, now); err != nil {
			// The date may have slipped into the past while the cart sat in
			// redis, so the line is re-checked here.
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("%s: %s", product.Name, pkgerrors.As(err).Message()))
		}

		recipe, err := catalogRepo.GetRecipe(ctx, product.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading recipe")
		}
		for _, line := range recipe {
			demand := demandByType[line.FlowerTypeID]
			demand.FlowerTypeID = line.FlowerTypeID
			if line.FlowerType != nil {
				demand.FlowerType = line.FlowerType.Name
			}
			demand.Quantity += line.QuantityPerUnit * item.Quantity
			demandByType[line.FlowerTypeID] = demand
		}

		lineTotal := product.Price * int64(item.Quantity)
		order.Details = append(order.Details, models.OrderDetail{
			ID:           uuid.New(),
			OrderID:      order.ID,
			ProductID:    product.ID,
			ProductName:  product.Name,
			UnitPrice:    product.Price,
			Quantity:     item.Quantity,
			LineTotal:    lineTotal,
			DeliveryDate: item.DeliveryDate,
			DeliverySlot: item.DeliverySlot,
		})
		order.SubtotalAmount += lineTotal
	}
	order.TotalAmount = order.SubtotalAmount + shippingFee
	if order.TotalAmount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order total must be positive")
	}

	// Stems first: the allocator produces the clearest shortage errors.
	if len(demandByType) > 0 {
		demands := make([]inventory.Demand, 0, len(demandByType))
		for _, demand := range demandByType {
			demands = append(demands, demand)
		}
		if _, err := inventorySvc.Allocate(ctx, now, demands); err != nil {
			return nil, err
		}
	}

	for _, detail := range order.Details {
		product := byID[detail.ProductID]
		ok, err := catalogRepo.DecrementStock(ctx, detail.ProductID, detail.Quantity)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deducting product stock")
		}
		if !ok {
			return nil, pkgerrors.NewInsufficientStock(pkgerrors.StockShortage{
				FlowerTypeID: detail.ProductID.String(),
				FlowerType:   product.Name,
				Requested:    detail.Quantity,
				Available:    product.StockQuantity,
			})
		}
	}

	order.Payment = &models.Payment{
		ID:      uuid.New(),
		OrderID: order.ID,
		Method:  input.PaymentMethod,
		Status:  enums.PaymentStatusPending,
		Amount:  order.TotalAmount,
	}
	order.History = []models.OrderStatusHistory{{
		ID:        uuid.New(),
		OrderID:   order.ID,
		ToStatus:  enums.OrderStatusPending,
		ChangedBy: &userID,
	}}

	if err := ordersRepo.Create(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating order")
	}
	return order, nil
}

func (s *serviceImpl) startGatewayPayment(ctx context.Context, order *models.Order, clientIP string) (string, error) {
	gateway, err := s.dispatcher.For(order.PaymentMethod)
	if err != nil {
		return "", err
	}
	resp, err := gateway.CreatePayment(ctx, payments.CreateRequest{
		OrderID:   order.ID,
		Amount:    order.TotalAmount,
		OrderInfo: fmt.Sprintf("Bloomcart order %s", order.ID),
		ClientIP:  clientIP,
	})
	if err != nil {
		// The order stays pending; the buyer retries payment or cancels.
		s.logg.Error(ctx, "starting gateway payment failed", err)
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "starting gateway payment")
	}
	return resp.PayURL, nil
}

func (s *serviceImpl) notifyNewOrder(ctx context.Context, order *models.Order) {
	orderID := order.ID
	if _, err := s.notifier.NotifyStaff(ctx, notifications.NotifyInput{
		OrderID: &orderID,
		Title:   "New order",
		Message: fmt.Sprintf("Order %s placed for %d VND", order.ID, order.TotalAmount),
	}); err != nil {
		s.logg.Error(ctx, "notifying staff about new order failed", err)
	}
}

func (s *serviceImpl) sendConfirmationEmail(ctx context.Context, order *models.Order) {
	email, err := s.ordersRepo.UserEmail(ctx, order.UserID)
	if err != nil || email == "" {
		return
	}
	lines := make([]mailer.OrderConfirmationLine, 0, len(order.Details))
	for _, detail := range order.Details {
		lines = append(lines, mailer.OrderConfirmationLine{
			Name:         detail.ProductName,
			Quantity:     detail.Quantity,
			LineTotal:    detail.LineTotal,
			DeliveryDate: detail.DeliveryDate.Format("02/01/2006"),
			DeliverySlot: detail.DeliverySlot,
		})
	}
	html, err := mailer.RenderOrderConfirmation(mailer.OrderConfirmationData{
		OrderID:         order.ID.String(),
		RecipientName:   order.RecipientName,
		ShippingAddress: order.ShippingAddress,
		ShippingFee:     order.ShippingFee,
		Total:           order.TotalAmount,
		Lines:           lines,
	})
	if err != nil {
		s.logg.Error(ctx, "rendering confirmation email failed", err)
		return
	}
	mailer.SendAsync(ctx, s.mail, s.logg, mailer.Message{
		To:      email,
		Subject: "Order received",
		HTML:    html,
	})
}

func (s *serviceImpl) txTimeout() time.Duration {
	if s.cfg.TxTimeout > 0 {
		return s.cfg.TxTimeout
	}
	return 5 * time.Second
}

func validateInput(input PlaceOrderInput) error {
	if input.RecipientName == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient name is required")
	}
	if input.RecipientPhone == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient phone is required")
	}
	if input.ShippingAddress == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "shipping address is required")
	}
	if !input.PaymentMethod.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown payment method")
	}
	return nil
}
