package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bloomcart/bloomcart-backend/pkg/db/models"
	pkgerrors "github.com/bloomcart/bloomcart-backend/pkg/errors"
	"github.com/bloomcart/bloomcart-backend/pkg/logger"
)

// Demand asks for a quantity of one flower type.
type Demand struct {
	FlowerTypeID uuid.UUID
	FlowerType   string
	Quantity     int
}

// LotDeduction records where an allocation took stems from.
type LotDeduction struct {
	LotID        uuid.UUID
	BatchID      uuid.UUID
	FlowerTypeID uuid.UUID
	Quantity     int
}

// Service owns stem-level stock: batch intake, allocation and returns.
type Service interface {
	WithTx(tx *gorm.DB) Service
	Allocate(ctx context.Context, now time.Time, demands []Demand) ([]LotDeduction, error)
	Return(ctx context.Context, now time.Time, returns []Demand) error
	ImportBatch(ctx context.Context, input ImportBatchInput) (*models.Batch, error)
	GetBatch(ctx context.Context, id uuid.UUID) (*models.Batch, error)
	CreateFlowerType(ctx context.Context, name string, description *string) (*models.FlowerType, error)
	ListFlowerTypes(ctx context.Context) ([]models.FlowerType, error)
	AvailableQuantity(ctx context.Context, flowerTypeID uuid.UUID, now time.Time) (int, error)
}

type serviceImpl struct {
	repo Repository
	logg *logger.Logger
}

// NewService wires the inventory service with its dependencies.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, errors.New("inventory repository is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &serviceImpl{repo: repo, logg: logg}, nil
}

// WithTx rebinds the service to a transaction so allocation joins the caller's
// unit of work.
func (s *serviceImpl) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &serviceImpl{repo: s.repo.WithTx(tx), logg: s.logg}
}

// Allocate deducts each demand from the soonest-expiring lots first. Expired
// and empty lots are never touched. The whole call fails without partial
// deductions being valid when any flower type falls short; callers run it
// inside a transaction so the failure rolls everything back.
func (s *serviceImpl) Allocate(ctx context.Context, now time.Time, demands []Demand) ([]LotDeduction, error) {
	var deductions []LotDeduction
	for _, demand := range demands {
		if demand.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "demand quantity must be positive")
		}

		lots, err := s.repo.LotsByExpiry(ctx, demand.FlowerTypeID, now)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading lots")
		}

		available := 0
		for _, lot := range lots {
			available += lot.CurrentQuantity
		}
		if available < demand.Quantity {
			return nil, pkgerrors.NewInsufficientStock(pkgerrors.StockShortage{
				FlowerTypeID: demand.FlowerTypeID.String(),
				FlowerType:   demand.FlowerType,
				Requested:    demand.Quantity,
				Available:    available,
			})
		}

		remaining := demand.Quantity
		for _, lot := range lots {
			if remaining == 0 {
				break
			}
			take := lot.CurrentQuantity
			if take > remaining {
				take = remaining
			}
			ok, err := s.repo.DeductLot(ctx, lot.ID, take)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deducting lot")
			}
			if !ok {
				// Another transaction drained this lot between the read
				// and the guarded write.
				return nil, pkgerrors.New(pkgerrors.CodeConflict, "lot changed concurrently, retry checkout")
			}
			deductions = append(deductions, LotDeduction{
				LotID:        lot.ID,
				BatchID:      lot.BatchID,
				FlowerTypeID: demand.FlowerTypeID,
				Quantity:     take,
			})
			remaining -= take
		}
	}
	return deductions, nil
}

// Return puts cancelled quantities back into lots: drained non-expired lots
// refill soonest-expiring first up to their imported quantity, and whatever
// is left lands on the freshest lot.
func (s *serviceImpl) Return(ctx context.Context, now time.Time, returns []Demand) error {
	for _, ret := range returns {
		if ret.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "return quantity must be positive")
		}

		remaining := ret.Quantity
		lots, err := s.repo.LotsWithHeadroom(ctx, ret.FlowerTypeID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading lots for return")
		}
		for _, lot := range lots {
			if remaining == 0 {
				break
			}
			headroom := lot.ImportedQuantity - lot.CurrentQuantity
			if headroom <= 0 {
				continue
			}
			give := headroom
			if give > remaining {
				give = remaining
			}
			ok, err := s.repo.AddToLot(ctx, lot.ID, give, true)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "restoring lot")
			}
			if ok {
				remaining -= give
			}
		}

		if remaining > 0 {
			all, err := s.repo.LotsByExpiryDesc(ctx, ret.FlowerTypeID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading lots for overflow return")
			}
			if len(all) == 0 {
				s.logg.Warn(s.logg.WithField(ctx, "flower_type_id", ret.FlowerTypeID.String()),
					"no lots left to absorb returned quantity")
				continue
			}
			if _, err := s.repo.AddToLot(ctx, all[0].ID, remaining, false); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "restoring overflow to lot")
			}
		}
	}
	return nil
}

// ImportBatchInput describes one supplier delivery.
type ImportBatchInput struct {
	SupplierName *string
	ImportDate   time.Time
	ExpiryDate   time.Time
	Lines        []ImportLineInput
}

// ImportLineInput is one flower type inside a delivery.
type ImportLineInput struct {
	FlowerTypeID uuid.UUID
	Quantity     int
	UnitCost     int64
}

func (s *serviceImpl) ImportBatch(ctx context.Context, input ImportBatchInput) (*models.Batch, error) {
	if len(input.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "batch must contain at least one line")
	}
	if !input.ExpiryDate.After(input.ImportDate) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "expiry date must be after import date")
	}

	batch := &models.Batch{
		ID:           uuid.New(),
		SupplierName: input.SupplierName,
		ImportDate:   input.ImportDate,
		ExpiryDate:   input.ExpiryDate,
	}
	seen := map[uuid.UUID]bool{}
	for _, line := range input.Lines {
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "line quantity must be positive")
		}
		if seen[line.FlowerTypeID] {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate flower type in batch")
		}
		seen[line.FlowerTypeID] = true
		batch.Lots = append(batch.Lots, models.BatchFlowerType{
			ID:               uuid.New(),
			BatchID:          batch.ID,
			FlowerTypeID:     line.FlowerTypeID,
			ImportedQuantity: line.Quantity,
			CurrentQuantity:  line.Quantity,
			UnitCost:         line.UnitCost,
		})
	}

	if err := s.repo.CreateBatch(ctx, batch); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating batch")
	}
	s.logg.Info(s.logg.WithField(ctx, "batch_id", batch.ID.String()), "batch imported")
	return batch, nil
}

func (s *serviceImpl) GetBatch(ctx context.Context, id uuid.UUID) (*models.Batch, error) {
	batch, err := s.repo.GetBatch(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading batch")
	}
	if batch == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "batch not found")
	}
	return batch, nil
}

func (s *serviceImpl) CreateFlowerType(ctx context.Context, name string, description *string) (*models.FlowerType, error) {
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "flower type name is required")
	}
	flowerType := &models.FlowerType{ID: uuid.New(), Name: name, Description: description}
	if err := s.repo.CreateFlowerType(ctx, flowerType); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating flower type")
	}
	return flowerType, nil
}

func (s *serviceImpl) ListFlowerTypes(ctx context.Context) ([]models.FlowerType, error) {
	return s.repo.ListFlowerTypes(ctx)
}

func (s *serviceImpl) AvailableQuantity(ctx context.Context, flowerTypeID uuid.UUID, now time.Time) (int, error) {
	return s.repo.AvailableQuantity(ctx, flowerTypeID, now)
}
