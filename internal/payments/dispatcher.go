package payments

import (
	"fmt"

	"github.com/bloomcart/bloomcart-backend/pkg/enums"
	pkgerrors "github.com/bloomcart/bloomcart-backend/pkg/errors"
)

// Dispatcher routes payment operations to the gateway owning each method.
type Dispatcher struct {
	gateways map[enums.PaymentMethod]Gateway
}

// NewDispatcher registers the provided gateways. Duplicate methods are a
// wiring bug and fail fast.
func NewDispatcher(gateways ...Gateway) (*Dispatcher, error) {
	registry := make(map[enums.PaymentMethod]Gateway, len(gateways))
	for _, gateway := range gateways {
		if gateway == nil {
			return nil, fmt.Errorf("nil gateway")
		}
		method := gateway.Method()
		if _, exists := registry[method]; exists {
			return nil, fmt.Errorf("duplicate gateway for method %s", method)
		}
		registry[method] = gateway
	}
	return &Dispatcher{gateways: registry}, nil
}

// For returns the gateway handling the method.
func (d *Dispatcher) For(method enums.PaymentMethod) (Gateway, error) {
	gateway, ok := d.gateways[method]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("unsupported payment method %s", method))
	}
	return gateway, nil
}
