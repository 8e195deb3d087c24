package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bloomcart/bloomcart-backend/api/responses"
	"github.com/bloomcart/bloomcart-backend/api/validators"
	"github.com/bloomcart/bloomcart-backend/internal/orders"
	"github.com/bloomcart/bloomcart-backend/pkg/db/models"
	"github.com/bloomcart/bloomcart-backend/pkg/enums"
	pkgerrors "github.com/bloomcart/bloomcart-backend/pkg/errors"
	"github.com/bloomcart/bloomcart-backend/pkg/logger"
)

type orderView struct {
	ID              uuid.UUID           `json:"id"`
	Status          enums.OrderStatus   `json:"status"`
	RecipientName   string              `json:"recipient_name"`
	RecipientPhone  string              `json:"recipient_phone"`
	ShippingAddress string              `json:"shipping_address"`
	Note            *string             `json:"note,omitempty"`
	SubtotalAmount  int64               `json:"subtotal_amount"`
	ShippingFee     int64               `json:"shipping_fee"`
	TotalAmount     int64               `json:"total_amount"`
	PaymentMethod   enums.PaymentMethod `json:"payment_method"`
	Details         []orderDetailView   `json:"details,omitempty"`
	Payment         *paymentView        `json:"payment,omitempty"`
	History         []statusChangeView  `json:"history,omitempty"`
	CancelledAt     *time.Time          `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

type orderDetailView struct {
	ProductID    uuid.UUID `json:"product_id"`
	ProductName  string    `json:"product_name"`
	UnitPrice    int64     `json:"unit_price"`
	Quantity     int       `json:"quantity"`
	LineTotal    int64     `json:"line_total"`
	DeliveryDate time.Time `json:"delivery_date"`
	DeliverySlot string    `json:"delivery_slot"`
}

type paymentView struct {
	Method        enums.PaymentMethod `json:"method"`
	Status        enums.PaymentStatus `json:"status"`
	Amount        int64               `json:"amount"`
	GatewayTxnRef *string             `json:"gateway_txn_ref,omitempty"`
	PaidAt        *time.Time          `json:"paid_at,omitempty"`
	FailureReason *string             `json:"failure_reason,omitempty"`
}

type statusChangeView struct {
	FromStatus *enums.OrderStatus `json:"from_status,omitempty"`
	ToStatus   enums.OrderStatus  `json:"to_status"`
	ChangedBy  *uuid.UUID         `json:"changed_by,omitempty"`
	Note       *string            `json:"note,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
}

func toOrderView(order *models.Order) orderView {
	view := orderView{
		ID:              order.ID,
		Status:          order.Status,
		RecipientName:   order.RecipientName,
		RecipientPhone:  order.RecipientPhone,
		ShippingAddress: order.ShippingAddress,
		Note:            order.Note,
		SubtotalAmount:  order.SubtotalAmount,
		ShippingFee:     order.ShippingFee,
		TotalAmount:     order.TotalAmount,
		PaymentMethod:   order.PaymentMethod,
		CancelledAt:     order.CancelledAt,
		CreatedAt:       order.CreatedAt,
	}
	for _, detail := range order.Details {
		view.Details = append(view.Details, orderDetailView{
			ProductID:    detail.ProductID,
			ProductName:  detail.ProductName,
			UnitPrice:    detail.UnitPrice,
			Quantity:     detail.Quantity,
			LineTotal:    detail.LineTotal,
			DeliveryDate: detail.DeliveryDate,
			DeliverySlot: detail.DeliverySlot,
		})
	}
	if order.Payment != nil {
		view.Payment = &paymentView{
			Method:        order.Payment.Method,
			Status:        order.Payment.Status,
			Amount:        order.Payment.Amount,
			GatewayTxnRef: order.Payment.GatewayTxnRef,
			PaidAt:        order.Payment.PaidAt,
			FailureReason: order.Payment.FailureReason,
		}
	}
	for _, entry := range order.History {
		view.History = append(view.History, statusChangeView{
			FromStatus: entry.FromStatus,
			ToStatus:   entry.ToStatus,
			ChangedBy:  entry.ChangedBy,
			Note:       entry.Note,
			CreatedAt:  entry.CreatedAt,
		})
	}
	return view
}

func orderIDParam(r *http.Request) (uuid.UUID, error) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return orderID, nil
}

// ListMyOrders returns the authenticated customer's order history.
func ListMyOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authedUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, next, err := svc.ListForUser(r.Context(), userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		views := make([]orderView, 0, len(list))
		for i := range list {
			views = append(views, toOrderView(&list[i]))
		}
		responses.WriteSuccess(w, listEnvelope[orderView]{
			Items:      views,
			NextCursor: encodeNextCursor(next),
		})
	}
}

func GetMyOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
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
		order, err := svc.GetForUser(r.Context(), userID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderView(order))
	}
}

type cancelOrderRequest struct {
	Reason string `json:"reason,omitempty"`
}

// CancelMyOrder lets a customer cancel their own order while it still can be.
func CancelMyOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
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
		var payload cancelOrderRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		reason := payload.Reason
		if reason == "" {
			reason = "cancelled by customer"
		}
		order, err := svc.Cancel(r.Context(), orderID, orders.Actor{UserID: userID}, reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderView(order))
	}
}

// StaffListOrders returns all orders, optionally filtered by status.
func StaffListOrders(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var status *enums.OrderStatus
		if raw := r.URL.Query().Get("status"); raw != "" {
			parsed := enums.OrderStatus(raw)
			if !parsed.IsValid() {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.New(pkgerrors.CodeValidation, "unknown order status"))
				return
			}
			status = &parsed
		}
		list, next, err := svc.List(r.Context(), status, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		views := make([]orderView, 0, len(list))
		for i := range list {
			views = append(views, toOrderView(&list[i]))
		}
		responses.WriteSuccess(w, listEnvelope[orderView]{
			Items:      views,
			NextCursor: encodeNextCursor(next),
		})
	}
}

func StaffGetOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderView(order))
	}
}

type updateOrderStatusRequest struct {
	Status enums.OrderStatus `json:"status" validate:"required"`
	Note   *string           `json:"note,omitempty"`
}

// StaffUpdateOrderStatus drives the fulfilment lifecycle.
func StaffUpdateOrderStatus(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		staffID, err := authedUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := orderIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload updateOrderStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.UpdateStatus(r.Context(), orderID, payload.Status,
			orders.Actor{UserID: staffID, IsStaff: true}, payload.Note)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toOrderView(order))
	}
}
