package controllers

import (
	"net/http"

	"github.com/bloomcart/bloomcart-backend/api/responses"
	"github.com/bloomcart/bloomcart-backend/api/validators"
	"github.com/bloomcart/bloomcart-backend/internal/shipping"
	"github.com/bloomcart/bloomcart-backend/pkg/logger"
)

const maxCarrierID = 1 << 30

func ListProvinces(svc shipping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provinces, err := svc.Provinces(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, provinces)
	}
}

func ListDistricts(svc shipping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		provinceID, err := validators.ParseQueryInt(r, "province_id", 0, 1, maxCarrierID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		districts, err := svc.Districts(r.Context(), provinceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, districts)
	}
}

func ListWards(svc shipping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		districtID, err := validators.ParseQueryInt(r, "district_id", 0, 1, maxCarrierID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		wards, err := svc.Wards(r.Context(), districtID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, wards)
	}
}

type shippingQuoteRequest struct {
	ToDistrictID int    `json:"to_district_id" validate:"required,min=1"`
	ToWardCode   string `json:"to_ward_code" validate:"required"`
}

type shippingQuoteResponse struct {
	Fee int64 `json:"fee"`
}

// QuoteShipping returns the carrier fee for a destination, cached per ward.
func QuoteShipping(svc shipping.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload shippingQuoteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		fee, err := svc.Quote(r.Context(), shipping.QuoteInput{
			ToDistrictID: payload.ToDistrictID,
			ToWardCode:   payload.ToWardCode,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, shippingQuoteResponse{Fee: fee})
	}
}
