package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bloomcart/bloomcart-backend/api/responses"
	"github.com/bloomcart/bloomcart-backend/api/validators"
	"github.com/bloomcart/bloomcart-backend/internal/catalog"
	"github.com/bloomcart/bloomcart-backend/pkg/db/models"
	pkgerrors "github.com/bloomcart/bloomcart-backend/pkg/errors"
	"github.com/bloomcart/bloomcart-backend/pkg/logger"
	"github.com/bloomcart/bloomcart-backend/pkg/pagination"
)

type productView struct {
	ID            uuid.UUID        `json:"id"`
	CategoryID    *uuid.UUID       `json:"category_id,omitempty"`
	CategoryName  string           `json:"category_name,omitempty"`
	Name          string           `json:"name"`
	Description   *string          `json:"description,omitempty"`
	Price         int64            `json:"price"`
	StockQuantity int              `json:"stock_quantity"`
	QuantitySold  int              `json:"quantity_sold"`
	ImageURL      *string          `json:"image_url,omitempty"`
	IsActive      bool             `json:"is_active"`
	RatingAverage float64          `json:"rating_average"`
	RatingCount   int64            `json:"rating_count"`
	Recipe        []recipeLineView `json:"recipe,omitempty"`
}

type recipeLineView struct {
	FlowerTypeID    uuid.UUID `json:"flower_type_id"`
	FlowerType      string    `json:"flower_type,omitempty"`
	QuantityPerUnit int       `json:"quantity_per_unit"`
}

type listEnvelope[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
}

func encodeNextCursor(next *pagination.Cursor) string {
	if next == nil {
		return ""
	}
	return pagination.EncodeCursor(*next)
}

func toProductView(product *models.Product) productView {
	view := productView{
		ID:            product.ID,
		CategoryID:    product.CategoryID,
		Name:          product.Name,
		Description:   product.Description,
		Price:         product.Price,
		StockQuantity: product.StockQuantity,
		QuantitySold:  product.QuantitySold,
		ImageURL:      product.ImageURL,
		IsActive:      product.IsActive,
		RatingAverage: product.RatingAverage,
		RatingCount:   product.RatingCount,
	}
	if product.Category != nil {
		view.CategoryName = product.Category.Name
	}
	for _, line := range product.Recipe {
		lineView := recipeLineView{
			FlowerTypeID:    line.FlowerTypeID,
			QuantityPerUnit: line.QuantityPerUnit,
		}
		if line.FlowerType != nil {
			lineView.FlowerType = line.FlowerType.Name
		}
		view.Recipe = append(view.Recipe, lineView)
	}
	return view
}

// ListProducts serves the public storefront listing. Only active products
// are visible.
func ListProducts(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
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

		listParams := catalog.ListProductsParams{
			ActiveOnly: true,
			Search:     strings.TrimSpace(r.URL.Query().Get("search")),
			Limit:      params.Limit,
			Cursor:     cursor,
		}
		if raw := r.URL.Query().Get("category_id"); raw != "" {
			categoryID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid category id"))
				return
			}
			listParams.CategoryID = &categoryID
		}

		products, next, err := svc.ListProducts(r.Context(), listParams)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		views := make([]productView, 0, len(products))
		for i := range products {
			views = append(views, toProductView(&products[i]))
		}
		responses.WriteSuccess(w, listEnvelope[productView]{
			Items:      views,
			NextCursor: encodeNextCursor(next),
		})
	}
}

func GetProduct(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := uuid.Parse(chi.URLParam(r, "productId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
			return
		}
		product, err := svc.GetProduct(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toProductView(product))
	}
}

type recipeLineRequest struct {
	FlowerTypeID    uuid.UUID `json:"flower_type_id" validate:"required"`
	QuantityPerUnit int       `json:"quantity_per_unit" validate:"required,min=1"`
}

type createProductRequest struct {
	CategoryID  *uuid.UUID          `json:"category_id,omitempty"`
	Name        string              `json:"name" validate:"required"`
	Description *string             `json:"description,omitempty"`
	Price       int64               `json:"price" validate:"required,min=1"`
	ImageURL    *string             `json:"image_url,omitempty"`
	Recipe      []recipeLineRequest `json:"recipe,omitempty" validate:"omitempty,dive"`
}

func toRecipeInput(lines []recipeLineRequest) []catalog.RecipeLineInput {
	if len(lines) == 0 {
		return nil
	}
	input := make([]catalog.RecipeLineInput, 0, len(lines))
	for _, line := range lines {
		input = append(input, catalog.RecipeLineInput{
			FlowerTypeID:    line.FlowerTypeID,
			QuantityPerUnit: line.QuantityPerUnit,
		})
	}
	return input
}

// AdminCreateProduct handles back-office product creation.
func AdminCreateProduct(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		product, err := svc.CreateProduct(r.Context(), catalog.CreateProductInput{
			CategoryID:  payload.CategoryID,
			Name:        payload.Name,
			Description: payload.Description,
			Price:       payload.Price,
			ImageURL:    payload.ImageURL,
			Recipe:      toRecipeInput(payload.Recipe),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toProductView(product))
	}
}

type updateProductRequest struct {
	CategoryID  *uuid.UUID          `json:"category_id,omitempty"`
	Name        *string             `json:"name,omitempty"`
	Description *string             `json:"description,omitempty"`
	Price       *int64              `json:"price,omitempty" validate:"omitempty,min=1"`
	ImageURL    *string             `json:"image_url,omitempty"`
	IsActive    *bool               `json:"is_active,omitempty"`
	Recipe      []recipeLineRequest `json:"recipe,omitempty" validate:"omitempty,dive"`
}

// AdminUpdateProduct applies a partial product update; omitted fields stay.
func AdminUpdateProduct(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := uuid.Parse(chi.URLParam(r, "productId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
			return
		}
		var payload updateProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		product, err := svc.UpdateProduct(r.Context(), productID, catalog.UpdateProductInput{
			CategoryID:  payload.CategoryID,
			Name:        payload.Name,
			Description: payload.Description,
			Price:       payload.Price,
			ImageURL:    payload.ImageURL,
			IsActive:    payload.IsActive,
			Recipe:      toRecipeInput(payload.Recipe),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toProductView(product))
	}
}

type categoryView struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
}

func ListCategories(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		categories, err := svc.ListCategories(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		views := make([]categoryView, 0, len(categories))
		for _, category := range categories {
			views = append(views, categoryView{
				ID:          category.ID,
				Name:        category.Name,
				Description: category.Description,
			})
		}
		responses.WriteSuccess(w, views)
	}
}

type createCategoryRequest struct {
	Name        string  `json:"name" validate:"required"`
	Description *string `json:"description,omitempty"`
}

func AdminCreateCategory(svc catalog.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createCategoryRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		category, err := svc.CreateCategory(r.Context(), payload.Name, payload.Description)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, categoryView{
			ID:          category.ID,
			Name:        category.Name,
			Description: category.Description,
		})
	}
}
