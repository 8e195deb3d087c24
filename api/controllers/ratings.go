package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bloomcart/bloomcart-backend/api/responses"
	"github.com/bloomcart/bloomcart-backend/api/validators"
	"github.com/bloomcart/bloomcart-backend/internal/ratings"
	"github.com/bloomcart/bloomcart-backend/pkg/db/models"
	pkgerrors "github.com/bloomcart/bloomcart-backend/pkg/errors"
	"github.com/bloomcart/bloomcart-backend/pkg/logger"
	"github.com/bloomcart/bloomcart-backend/pkg/pagination"
)

type ratingView struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"product_id"`
	UserName  string    `json:"user_name,omitempty"`
	Stars     int       `json:"stars"`
	Comment   *string   `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func toRatingView(rating *models.Rating) ratingView {
	view := ratingView{
		ID:        rating.ID,
		ProductID: rating.ProductID,
		Stars:     rating.Stars,
		Comment:   rating.Comment,
		CreatedAt: rating.CreatedAt,
	}
	if rating.User != nil {
		view.UserName = rating.User.FullName
	}
	return view
}

// ListProductRatings serves a product's reviews, newest first.
func ListProductRatings(svc ratings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := uuid.Parse(chi.URLParam(r, "productId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor"))
			return
		}

		list, next, err := svc.ListForProduct(r.Context(), productID, params.Limit, cursor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		views := make([]ratingView, 0, len(list))
		for i := range list {
			views = append(views, toRatingView(&list[i]))
		}
		responses.WriteSuccess(w, listEnvelope[ratingView]{
			Items:      views,
			NextCursor: encodeNextCursor(next),
		})
	}
}

type rateProductRequest struct {
	Stars   int     `json:"stars" validate:"required,min=1,max=5"`
	Comment *string `json:"comment,omitempty"`
}

// RateProduct stores the caller's review of a product, replacing any
// earlier one.
func RateProduct(svc ratings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authedUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := uuid.Parse(chi.URLParam(r, "productId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
			return
		}
		var payload rateProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rating, err := svc.Rate(r.Context(), userID, ratings.RateInput{
			ProductID: productID,
			Stars:     payload.Stars,
			Comment:   payload.Comment,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toRatingView(rating))
	}
}
