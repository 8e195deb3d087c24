package payments

import (
	"context"
	"net/url"

	"github.com/google/uuid"

	"github.com/bloomcart/bloomcart-backend/pkg/enums"
)

// CreateRequest asks a gateway to start a payment for an order.
type CreateRequest struct {
	OrderID   uuid.UUID
	Amount    int64
	OrderInfo string
	ClientIP  string
}

// CreateResponse carries the gateway redirect. An empty PayURL means the
// method settles offline.
type CreateResponse struct {
	PayURL string
}

// CallbackResult is the verified outcome of a gateway callback.
type CallbackResult struct {
	OrderID       uuid.UUID
	Success       bool
	GatewayTxnRef string
	Amount        int64
	ResponseCode  string
	Message       string
}

// Gateway is one payment provider integration.
type Gateway interface {
	Method() enums.PaymentMethod
	CreatePayment(ctx context.Context, req CreateRequest) (*CreateResponse, error)
	VerifyCallback(params url.Values) (*CallbackResult, error)
}
