package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bloomcart/bloomcart-backend/internal/catalog"
	"github.com/bloomcart/bloomcart-backend/internal/inventory"
	"github.com/bloomcart/bloomcart-backend/internal/mailer"
	"github.com/bloomcart/bloomcart-backend/internal/notifications"
	"github.com/bloomcart/bloomcart-backend/pkg/db/models"
	"github.com/bloomcart/bloomcart-backend/pkg/enums"
	pkgerrors "github.com/bloomcart/bloomcart-backend/pkg/errors"
	"github.com/bloomcart/bloomcart-backend/pkg/logger"
	"github.com/bloomcart/bloomcart-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Actor identifies who is driving an order mutation.
type Actor struct {
	UserID  uuid.UUID
	IsStaff bool
}

// Service owns the order lifecycle after checkout: reads, staff transitions,
// cancellation with restock, and payment outcome application.
type Service interface {
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetForUser(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, *pagination.Cursor, error)
	List(ctx context.Context, status *enums.OrderStatus, params pagination.Params) ([]models.Order, *pagination.Cursor, error)
	UpdateStatus(ctx context.Context, orderID uuid.UUID, next enums.OrderStatus, actor Actor, note *string) (*models.Order, error)
	Cancel(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*models.Order, error)
	MarkPaid(ctx context.Context, orderID uuid.UUID, gatewayTxnRef string, amount int64, paidAt time.Time) error
	MarkPaymentFailed(ctx context.Context, orderID uuid.UUID, gatewayTxnRef, reason string) error
}

// ServiceParams collects the order service dependencies.
type ServiceParams struct {
	Repo              Repository
	CatalogRepo       catalog.Repository
	Inventory         inventory.Service
	Notifications     notifications.Service
	Mailer            mailer.Sender
	TransactionRunner txRunner
	Logger            *logger.Logger
}

type serviceImpl struct {
	repo        Repository
	catalogRepo catalog.Repository
	inventory   inventory.Service
	notifier    notifications.Service
	mail        mailer.Sender
	txRunner    txRunner
	logg        *logger.Logger
}

// NewService wires the orders service. The mailer may be nil in environments
// without SMTP; everything else is required.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repo required")
	}
	if params.CatalogRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "catalog repo required")
	}
	if params.Inventory == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "inventory service required")
	}
	if params.Notifications == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifications service required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &serviceImpl{
		repo:        params.Repo,
		catalogRepo: params.CatalogRepo,
		inventory:   params.Inventory,
		notifier:    params.Notifications,
		mail:        params.Mailer,
		txRunner:    params.TransactionRunner,
		logg:        params.Logger,
	}, nil
}

func (s *serviceImpl) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *serviceImpl) GetForUser(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		// Hide the order's existence from other users.
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *serviceImpl) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, *pagination.Cursor, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return s.repo.List(ctx, ListParams{UserID: &userID, Limit: params.Limit, Cursor: cursor})
}

func (s *serviceImpl) List(ctx context.Context, status *enums.OrderStatus, params pagination.Params) ([]models.Order, *pagination.Cursor, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return s.repo.List(ctx, ListParams{Status: status, Limit: params.Limit, Cursor: cursor})
}

// UpdateStatus applies a staff-driven transition. Cancellation goes through
// the full restock path.
func (s *serviceImpl) UpdateStatus(ctx context.Context, orderID uuid.UUID, next enums.OrderStatus, actor Actor, note *string) (*models.Order, error) {
	if !next.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown order status")
	}
	if next == enums.OrderStatusCancelled {
		reason := "cancelled by staff"
		if note != nil {
			reason = *note
		}
		return s.Cancel(ctx, orderID, actor, reason)
	}

	var updated *models.Order
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.Get(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
		}
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if !order.Status.CanTransitionTo(next) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot move order from %s to %s", order.Status, next))
		}
		ok, err := repo.UpdateStatus(ctx, orderID, order.Status, next)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently")
		}
		from := order.Status
		if err := repo.AppendHistory(ctx, &models.OrderStatusHistory{
			ID:         uuid.New(),
			OrderID:    orderID,
			FromStatus: &from,
			ToStatus:   next,
			ChangedBy:  &actor.UserID,
			Note:       note,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording status history")
		}

		// Delivery settles an outstanding cash payment.
		if next == enums.OrderStatusDelivered && order.Payment != nil &&
			order.Payment.Method == enums.PaymentMethodCashOnDelivery &&
			order.Payment.Status == enums.PaymentStatusPending {
			now := time.Now().UTC()
			if _, err := repo.UpdatePaymentStatus(ctx, PaymentStatusUpdate{
				OrderID: orderID,
				From:    enums.PaymentStatusPending,
				To:      enums.PaymentStatusPaid,
				PaidAt:  &now,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "settling cash payment")
			}
		}

		updated, err = repo.Get(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reloading order")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Cancel moves the order to cancelled and puts its stock back: finished
// products return to product stock and their recipe stems return to lots.
func (s *serviceImpl) Cancel(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*models.Order, error) {
	var cancelled *models.Order
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.Get(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
		}
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if !actor.IsStaff && order.UserID != actor.UserID {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		cancelled, err = s.cancelInTx(ctx, tx, order, actor, reason)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifyCancellation(ctx, cancelled, reason)
	return cancelled, nil
}

// cancelInTx flips the order to cancelled, settles its payment record and
// restocks. The caller holds the transaction and has already authorized the
// actor.
func (s *serviceImpl) cancelInTx(ctx context.Context, tx *gorm.DB, order *models.Order, actor Actor, reason string) (*models.Order, error) {
	repo := s.repo.WithTx(tx)
	if !order.Status.CanTransitionTo(enums.OrderStatusCancelled) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order in status %s cannot be cancelled", order.Status))
	}

	ok, err := repo.UpdateStatus(ctx, order.ID, order.Status, enums.OrderStatusCancelled)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancelling order")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently")
	}
	now := time.Now().UTC()
	if err := repo.SetCancelledAt(ctx, order.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stamping cancellation")
	}
	from := order.Status
	note := reason
	if err := repo.AppendHistory(ctx, &models.OrderStatusHistory{
		ID:         uuid.New(),
		OrderID:    order.ID,
		FromStatus: &from,
		ToStatus:   enums.OrderStatusCancelled,
		ChangedBy:  &actor.UserID,
		Note:       &note,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording cancellation history")
	}

	if order.Payment != nil {
		switch order.Payment.Status {
		case enums.PaymentStatusPending:
			if _, err := repo.UpdatePaymentStatus(ctx, PaymentStatusUpdate{
				OrderID: order.ID,
				From:    enums.PaymentStatusPending,
				To:      enums.PaymentStatusCancelled,
			}); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancelling payment")
			}
		case enums.PaymentStatusPaid:
			if _, err := repo.UpdatePaymentStatus(ctx, PaymentStatusUpdate{
				OrderID: order.ID,
				From:    enums.PaymentStatusPaid,
				To:      enums.PaymentStatusRefunded,
			}); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marking payment refunded")
			}
		}
	}

	if err := s.restock(ctx, tx, order); err != nil {
		return nil, err
	}

	cancelled, err := repo.Get(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reloading order")
	}
	return cancelled, nil
}

// restock returns finished goods to product stock and their stems to lots.
func (s *serviceImpl) restock(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	catalogRepo := s.catalogRepo.WithTx(tx)
	inventorySvc := s.inventory.WithTx(tx)
	now := time.Now().UTC()

	demandByType := map[uuid.UUID]int{}
	for _, detail := range order.Details {
		if err := catalogRepo.IncrementStock(ctx, detail.ProductID, detail.Quantity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "restoring product stock")
		}
		recipe, err := catalogRepo.GetRecipe(ctx, detail.ProductID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading recipe")
		}
		for _, line := range recipe {
			demandByType[line.FlowerTypeID] += line.QuantityPerUnit * detail.Quantity
		}
	}

	if len(demandByType) == 0 {
		return nil
	}
	returns := make([]inventory.Demand, 0, len(demandByType))
	for flowerTypeID, qty := range demandByType {
		returns = append(returns, inventory.Demand{FlowerTypeID: flowerTypeID, Quantity: qty})
	}
	return inventorySvc.Return(ctx, now, returns)
}

func (s *serviceImpl) notifyCancellation(ctx context.Context, order *models.Order, reason string) {
	if order == nil {
		return
	}
	orderID := order.ID
	if _, err := s.notifier.NotifyStaff(ctx, notifications.NotifyInput{
		OrderID: &orderID,
		Title:   "Order cancelled",
		Message: fmt.Sprintf("Order %s was cancelled: %s", order.ID, reason),
	}); err != nil {
		s.logg.Error(ctx, "notifying staff about cancellation failed", err)
	}

	email, err := s.repo.UserEmail(ctx, order.UserID)
	if err != nil || email == "" {
		return
	}
	html, err := mailer.RenderOrderCancelled(mailer.OrderCancelledData{
		OrderID: order.ID.String(),
		Reason:  reason,
	})
	if err != nil {
		s.logg.Error(ctx, "rendering cancellation email failed", err)
		return
	}
	mailer.SendAsync(ctx, s.mail, s.logg, mailer.Message{
		To:      email,
		Subject: "Your order was cancelled",
		HTML:    html,
	})
}

// MarkPaid applies a successful gateway outcome: payment goes paid and the
// order advances to processing.
func (s *serviceImpl) MarkPaid(ctx context.Context, orderID uuid.UUID, gatewayTxnRef string, amount int64, paidAt time.Time) error {
	var paid *models.Order
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.Get(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
		}
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if order.Payment == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order has no payment record")
		}
		if order.Payment.Amount != amount {
			return pkgerrors.New(pkgerrors.CodeCallbackIntegrity,
				fmt.Sprintf("callback amount %d does not match payment amount %d", amount, order.Payment.Amount))
		}

		ok, err := repo.UpdatePaymentStatus(ctx, PaymentStatusUpdate{
			OrderID:       orderID,
			From:          enums.PaymentStatusPending,
			To:            enums.PaymentStatusPaid,
			GatewayTxnRef: &gatewayTxnRef,
			PaidAt:        &paidAt,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marking payment paid")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment is not pending")
		}

		if order.Status == enums.OrderStatusPending {
			ok, err := repo.UpdateStatus(ctx, orderID, enums.OrderStatusPending, enums.OrderStatusProcessing)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "advancing order")
			}
			if ok {
				from := enums.OrderStatusPending
				if err := repo.AppendHistory(ctx, &models.OrderStatusHistory{
					ID:         uuid.New(),
					OrderID:    orderID,
					FromStatus: &from,
					ToStatus:   enums.OrderStatusProcessing,
				}); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "recording payment history")
				}
			}
		}

		paid, err = repo.Get(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reloading order")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notifyPaid(ctx, paid)
	return nil
}

func (s *serviceImpl) notifyPaid(ctx context.Context, order *models.Order) {
	if order == nil {
		return
	}
	orderID := order.ID
	if _, err := s.notifier.NotifyStaff(ctx, notifications.NotifyInput{
		OrderID: &orderID,
		Title:   "Payment received",
		Message: fmt.Sprintf("Order %s was paid (%d VND)", order.ID, order.TotalAmount),
	}); err != nil {
		s.logg.Error(ctx, "notifying staff about payment failed", err)
	}

	email, err := s.repo.UserEmail(ctx, order.UserID)
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
		Subject: "Payment confirmed",
		HTML:    html,
	})
}

// MarkPaymentFailed records a failed gateway outcome and cancels the order so
// its stock goes back on sale. Both land in one transaction: a crash must not
// leave a failed payment on a live order.
func (s *serviceImpl) MarkPaymentFailed(ctx context.Context, orderID uuid.UUID, gatewayTxnRef, reason string) error {
	cancelReason := "payment failed: " + reason
	var cancelled *models.Order
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.Get(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
		}
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}

		ok, err := repo.UpdatePaymentStatus(ctx, PaymentStatusUpdate{
			OrderID:       orderID,
			From:          enums.PaymentStatusPending,
			To:            enums.PaymentStatusFailed,
			GatewayTxnRef: &gatewayTxnRef,
			FailureReason: &reason,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marking payment failed")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment is not pending")
		}
		if order.Payment != nil {
			order.Payment.Status = enums.PaymentStatusFailed
		}

		if !order.Status.CanTransitionTo(enums.OrderStatusCancelled) {
			// Already cancelled elsewhere; the failed payment still lands.
			return nil
		}
		// System-driven, so it acts as staff.
		cancelled, err = s.cancelInTx(ctx, tx, order, Actor{IsStaff: true}, cancelReason)
		return err
	})
	if err != nil {
		return err
	}

	if cancelled != nil {
		s.notifyCancellation(ctx, cancelled, cancelReason)
	}
	return nil
}
