package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bloomcart/bloomcart-backend/api/responses"
	"github.com/bloomcart/bloomcart-backend/api/validators"
	"github.com/bloomcart/bloomcart-backend/internal/inventory"
	"github.com/bloomcart/bloomcart-backend/pkg/db/models"
	pkgerrors "github.com/bloomcart/bloomcart-backend/pkg/errors"
	"github.com/bloomcart/bloomcart-backend/pkg/logger"
)

type flowerTypeView struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
}

type createFlowerTypeRequest struct {
	Name        string  `json:"name" validate:"required"`
	Description *string `json:"description,omitempty"`
}

func StaffCreateFlowerType(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createFlowerTypeRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		flowerType, err := svc.CreateFlowerType(r.Context(), payload.Name, payload.Description)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, flowerTypeView{
			ID:          flowerType.ID,
			Name:        flowerType.Name,
			Description: flowerType.Description,
		})
	}
}

func StaffListFlowerTypes(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flowerTypes, err := svc.ListFlowerTypes(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		views := make([]flowerTypeView, 0, len(flowerTypes))
		for _, flowerType := range flowerTypes {
			views = append(views, flowerTypeView{
				ID:          flowerType.ID,
				Name:        flowerType.Name,
				Description: flowerType.Description,
			})
		}
		responses.WriteSuccess(w, views)
	}
}

type stockAvailabilityView struct {
	FlowerTypeID uuid.UUID `json:"flower_type_id"`
	Available    int       `json:"available"`
}

// StaffFlowerTypeAvailability sums the usable (non-expired) stems of one type.
func StaffFlowerTypeAvailability(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flowerTypeID, err := uuid.Parse(chi.URLParam(r, "flowerTypeId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid flower type id"))
			return
		}
		available, err := svc.AvailableQuantity(r.Context(), flowerTypeID, time.Now().UTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stockAvailabilityView{
			FlowerTypeID: flowerTypeID,
			Available:    available,
		})
	}
}

type importBatchRequest struct {
	SupplierName *string             `json:"supplier_name,omitempty"`
	ImportDate   time.Time           `json:"import_date" validate:"required"`
	ExpiryDate   time.Time           `json:"expiry_date" validate:"required"`
	Lines        []importLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type importLineRequest struct {
	FlowerTypeID uuid.UUID `json:"flower_type_id" validate:"required"`
	Quantity     int       `json:"quantity" validate:"required,min=1"`
	UnitCost     int64     `json:"unit_cost" validate:"min=0"`
}

type batchView struct {
	ID           uuid.UUID `json:"id"`
	SupplierName *string   `json:"supplier_name,omitempty"`
	ImportDate   time.Time `json:"import_date"`
	ExpiryDate   time.Time `json:"expiry_date"`
	Lots         []lotView `json:"lots,omitempty"`
}

type lotView struct {
	ID               uuid.UUID `json:"id"`
	FlowerTypeID     uuid.UUID `json:"flower_type_id"`
	ImportedQuantity int       `json:"imported_quantity"`
	CurrentQuantity  int       `json:"current_quantity"`
	UnitCost         int64     `json:"unit_cost"`
}

func toBatchView(batch *models.Batch) batchView {
	view := batchView{
		ID:           batch.ID,
		SupplierName: batch.SupplierName,
		ImportDate:   batch.ImportDate,
		ExpiryDate:   batch.ExpiryDate,
	}
	for _, lot := range batch.Lots {
		view.Lots = append(view.Lots, lotView{
			ID:               lot.ID,
			FlowerTypeID:     lot.FlowerTypeID,
			ImportedQuantity: lot.ImportedQuantity,
			CurrentQuantity:  lot.CurrentQuantity,
			UnitCost:         lot.UnitCost,
		})
	}
	return view
}

// StaffImportBatch records one supplier delivery with its per-type lots.
func StaffImportBatch(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload importBatchRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lines := make([]inventory.ImportLineInput, 0, len(payload.Lines))
		for _, line := range payload.Lines {
			lines = append(lines, inventory.ImportLineInput{
				FlowerTypeID: line.FlowerTypeID,
				Quantity:     line.Quantity,
				UnitCost:     line.UnitCost,
			})
		}
		batch, err := svc.ImportBatch(r.Context(), inventory.ImportBatchInput{
			SupplierName: payload.SupplierName,
			ImportDate:   payload.ImportDate,
			ExpiryDate:   payload.ExpiryDate,
			Lines:        lines,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toBatchView(batch))
	}
}

func StaffGetBatch(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		batchID, err := uuid.Parse(chi.URLParam(r, "batchId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid batch id"))
			return
		}
		batch, err := svc.GetBatch(r.Context(), batchID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toBatchView(batch))
	}
}
