package controllers

import (
	"net/http"

	"github.com/bloomcart/bloomcart-backend/api/responses"
	"github.com/bloomcart/bloomcart-backend/api/validators"
	"github.com/bloomcart/bloomcart-backend/internal/checkout"
	"github.com/bloomcart/bloomcart-backend/pkg/enums"
	"github.com/bloomcart/bloomcart-backend/pkg/logger"
)

type placeOrderRequest struct {
	RecipientName   string  `json:"recipient_name" validate:"required"`
	RecipientPhone  string  `json:"recipient_phone" validate:"required"`
	ShippingAddress string  `json:"shipping_address" validate:"required"`
	Note            *string `json:"note,omitempty"`
	PaymentMethod   string  `json:"payment_method" validate:"required,oneof=momo vnpay cash_on_delivery"`
	ShippingFee     *int64  `json:"shipping_fee,omitempty" validate:"omitempty,min=0"`
}

type placeOrderResponse struct {
	Order  orderView `json:"order"`
	PayURL string    `json:"pay_url,omitempty"`
}

// PlaceOrder converts the caller's cart into an order. For gateway methods
// the response carries a redirect URL.
func PlaceOrder(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authedUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload placeOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.PlaceOrder(r.Context(), userID, checkout.PlaceOrderInput{
			RecipientName:   payload.RecipientName,
			RecipientPhone:  payload.RecipientPhone,
			ShippingAddress: payload.ShippingAddress,
			Note:            payload.Note,
			PaymentMethod:   enums.PaymentMethod(payload.PaymentMethod),
			ShippingFee:     payload.ShippingFee,
			ClientIP:        clientIP(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, placeOrderResponse{
			Order:  toOrderView(result.Order),
			PayURL: result.PayURL,
		})
	}
}

type retryPaymentResponse struct {
	PayURL string `json:"pay_url"`
}

// RetryPayment issues a fresh gateway redirect for a pending unpaid order.
func RetryPayment(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authedUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payURL, err := svc.RetryPayment(r.Context(), userID, orderID, clientIP(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, retryPaymentResponse{PayURL: payURL})
	}
}
