package controllers

import (
	"net/http"
	"net/url"

	"github.com/bloomcart/bloomcart-backend/api/responses"
	"github.com/bloomcart/bloomcart-backend/internal/payments"
	"github.com/bloomcart/bloomcart-backend/pkg/enums"
	pkgerrors "github.com/bloomcart/bloomcart-backend/pkg/errors"
	"github.com/bloomcart/bloomcart-backend/pkg/logger"
)

// PaymentCallback terminates gateway redirects and IPN posts. Both carry the
// signed parameters in the query string or the form body.
func PaymentCallback(svc *payments.CallbackService, method enums.PaymentMethod, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := callbackParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		outcome, err := svc.Handle(r.Context(), method, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, outcome)
	}
}

func callbackParams(r *http.Request) (url.Values, error) {
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid callback body")
		}
		// r.Form merges body and query; gateways send one or the other.
		return r.Form, nil
	}
	return r.URL.Query(), nil
}
