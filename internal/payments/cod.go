package payments

import (
	"context"
	"net/url"

	"github.com/bloomcart/bloomcart-backend/pkg/enums"
	pkgerrors "github.com/bloomcart/bloomcart-backend/pkg/errors"
)

// codGateway settles on delivery; no redirect and no callbacks.
type codGateway struct{}

// NewCODGateway builds the cash-on-delivery pseudo gateway.
func NewCODGateway() Gateway {
	return codGateway{}
}

func (codGateway) Method() enums.PaymentMethod {
	return enums.PaymentMethodCashOnDelivery
}

func (codGateway) CreatePayment(context.Context, CreateRequest) (*CreateResponse, error) {
	return &CreateResponse{}, nil
}

func (codGateway) VerifyCallback(url.Values) (*CallbackResult, error) {
	return nil, pkgerrors.New(pkgerrors.CodeValidation, "cash on delivery has no gateway callback")
}
