package payments

import (
	"context"
	"net/url"
	"time"

	"github.com/bloomcart/bloomcart-backend/internal/orders"
	"github.com/bloomcart/bloomcart-backend/pkg/enums"
	pkgerrors "github.com/bloomcart/bloomcart-backend/pkg/errors"
	"github.com/bloomcart/bloomcart-backend/pkg/logger"
)

// CallbackOutcome reports what a verified callback did.
type CallbackOutcome struct {
	OrderID   string `json:"order_id"`
	Applied   bool   `json:"applied"`
	Duplicate bool   `json:"duplicate"`
	Success   bool   `json:"success"`
}

// CallbackService verifies gateway callbacks, deduplicates replays and
// applies the outcome to the order.
type CallbackService struct {
	dispatcher *Dispatcher
	guard      *IdempotencyGuard
	orders     orders.Service
	logg       *logger.Logger
}

// NewCallbackService wires the callback handler.
func NewCallbackService(dispatcher *Dispatcher, guard *IdempotencyGuard, ordersSvc orders.Service, logg *logger.Logger) (*CallbackService, error) {
	if dispatcher == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "dispatcher required")
	}
	if guard == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard required")
	}
	if ordersSvc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &CallbackService{
		dispatcher: dispatcher,
		guard:      guard,
		orders:     ordersSvc,
		logg:       logg,
	}, nil
}

// Handle verifies the callback signature before anything else; a replayed
// transaction reference is acknowledged without touching the order again.
func (s *CallbackService) Handle(ctx context.Context, method enums.PaymentMethod, params url.Values) (*CallbackOutcome, error) {
	gateway, err := s.dispatcher.For(method)
	if err != nil {
		return nil, err
	}

	result, err := gateway.VerifyCallback(params)
	if err != nil {
		s.logg.Warn(ctx, "rejected payment callback: "+err.Error())
		return nil, err
	}

	ctx = s.logg.WithOrderID(ctx, result.OrderID.String())

	// The dedupe key spans method and gateway reference so distinct gateways
	// can never collide.
	dedupeRef := string(method) + ":" + result.GatewayTxnRef
	seen, err := s.guard.CheckAndMark(ctx, dedupeRef)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checking callback idempotency")
	}
	if seen {
		s.logg.Info(ctx, "duplicate payment callback ignored")
		return &CallbackOutcome{
			OrderID:   result.OrderID.String(),
			Duplicate: true,
			Success:   result.Success,
		}, nil
	}

	if result.Success {
		err = s.orders.MarkPaid(ctx, result.OrderID, result.GatewayTxnRef, result.Amount, time.Now().UTC())
	} else {
		err = s.orders.MarkPaymentFailed(ctx, result.OrderID, result.GatewayTxnRef, result.Message)
	}
	if err != nil {
		// Clear the mark so the gateway's retry can land once we recover.
		if delErr := s.guard.Delete(ctx, dedupeRef); delErr != nil {
			s.logg.Error(ctx, "clearing idempotency mark failed", delErr)
		}
		return nil, err
	}

	s.logg.Info(ctx, "payment callback applied")
	return &CallbackOutcome{
		OrderID: result.OrderID.String(),
		Applied: true,
		Success: result.Success,
	}, nil
}
