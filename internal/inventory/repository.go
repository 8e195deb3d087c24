package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bloomcart/bloomcart-backend/pkg/db/models"
)

// Repository exposes persistence helpers for flower types, batches and lots.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateFlowerType(ctx context.Context, flowerType *models.FlowerType) error
	ListFlowerTypes(ctx context.Context) ([]models.FlowerType, error)
	GetFlowerType(ctx context.Context, id uuid.UUID) (*models.FlowerType, error)
	CreateBatch(ctx context.Context, batch *models.Batch) error
	GetBatch(ctx context.Context, id uuid.UUID) (*models.Batch, error)
	LotsByExpiry(ctx context.Context, flowerTypeID uuid.UUID, now time.Time) ([]models.BatchFlowerType, error)
	LotsByExpiryDesc(ctx context.Context, flowerTypeID uuid.UUID) ([]models.BatchFlowerType, error)
	LotsWithHeadroom(ctx context.Context, flowerTypeID uuid.UUID, now time.Time) ([]models.BatchFlowerType, error)
	AvailableQuantity(ctx context.Context, flowerTypeID uuid.UUID, now time.Time) (int, error)
	DeductLot(ctx context.Context, lotID uuid.UUID, qty int) (bool, error)
	AddToLot(ctx context.Context, lotID uuid.UUID, qty int, cap bool) (bool, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an inventory repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) CreateFlowerType(ctx context.Context, flowerType *models.FlowerType) error {
	return r.db.WithContext(ctx).Create(flowerType).Error
}

func (r *repositoryImpl) ListFlowerTypes(ctx context.Context) ([]models.FlowerType, error) {
	var flowerTypes []models.FlowerType
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&flowerTypes).Error; err != nil {
		return nil, err
	}
	return flowerTypes, nil
}

func (r *repositoryImpl) GetFlowerType(ctx context.Context, id uuid.UUID) (*models.FlowerType, error) {
	var flowerType models.FlowerType
	err := r.db.WithContext(ctx).First(&flowerType, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &flowerType, nil
}

func (r *repositoryImpl) CreateBatch(ctx context.Context, batch *models.Batch) error {
	return r.db.WithContext(ctx).Create(batch).Error
}

func (r *repositoryImpl) GetBatch(ctx context.Context, id uuid.UUID) (*models.Batch, error) {
	var batch models.Batch
	err := r.db.WithContext(ctx).
		Preload("Lots").
		Preload("Lots.FlowerType").
		First(&batch, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &batch, nil
}

// LotsByExpiry returns non-empty, non-expired lots for a flower type ordered
// soonest-expiring first. Ties break on lot id for a stable order.
func (r *repositoryImpl) LotsByExpiry(ctx context.Context, flowerTypeID uuid.UUID, now time.Time) ([]models.BatchFlowerType, error) {
	var lots []models.BatchFlowerType
	err := r.db.WithContext(ctx).
		Joins("JOIN batches ON batches.id = batch_flower_types.batch_id").
		Where("batch_flower_types.flower_type_id = ?", flowerTypeID).
		Where("batch_flower_types.current_quantity > 0").
		Where("batches.expiry_date > ?", now).
		Order("batches.expiry_date ASC, batch_flower_types.id ASC").
		Preload("Batch").
		Find(&lots).Error
	if err != nil {
		return nil, err
	}
	return lots, nil
}

// LotsByExpiryDesc returns every lot for a flower type, freshest batch first.
// Used when quantities come back on cancellation.
func (r *repositoryImpl) LotsByExpiryDesc(ctx context.Context, flowerTypeID uuid.UUID) ([]models.BatchFlowerType, error) {
	var lots []models.BatchFlowerType
	err := r.db.WithContext(ctx).
		Joins("JOIN batches ON batches.id = batch_flower_types.batch_id").
		Where("batch_flower_types.flower_type_id = ?", flowerTypeID).
		Order("batches.expiry_date DESC, batch_flower_types.id DESC").
		Preload("Batch").
		Find(&lots).Error
	if err != nil {
		return nil, err
	}
	return lots, nil
}

// LotsWithHeadroom returns non-expired lots that have been partially drained,
// soonest-expiring first. Used to put cancelled quantities back where they
// came from.
func (r *repositoryImpl) LotsWithHeadroom(ctx context.Context, flowerTypeID uuid.UUID, now time.Time) ([]models.BatchFlowerType, error) {
	var lots []models.BatchFlowerType
	err := r.db.WithContext(ctx).
		Joins("JOIN batches ON batches.id = batch_flower_types.batch_id").
		Where("batch_flower_types.flower_type_id = ?", flowerTypeID).
		Where("batch_flower_types.current_quantity < batch_flower_types.imported_quantity").
		Where("batches.expiry_date > ?", now).
		Order("batches.expiry_date ASC, batch_flower_types.id ASC").
		Preload("Batch").
		Find(&lots).Error
	if err != nil {
		return nil, err
	}
	return lots, nil
}

func (r *repositoryImpl) AvailableQuantity(ctx context.Context, flowerTypeID uuid.UUID, now time.Time) (int, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.BatchFlowerType{}).
		Joins("JOIN batches ON batches.id = batch_flower_types.batch_id").
		Where("batch_flower_types.flower_type_id = ?", flowerTypeID).
		Where("batches.expiry_date > ?", now).
		Select("COALESCE(SUM(batch_flower_types.current_quantity), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return int(total), nil
}

// DeductLot applies a guarded decrement. The false return means the lot held
// less than qty and nothing was changed.
func (r *repositoryImpl) DeductLot(ctx context.Context, lotID uuid.UUID, qty int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.BatchFlowerType{}).
		Where("id = ? AND current_quantity >= ?", lotID, qty).
		UpdateColumn("current_quantity", gorm.Expr("current_quantity - ?", qty))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// AddToLot restores quantity to a lot. With cap set, the write is refused when
// it would push current_quantity past imported_quantity.
func (r *repositoryImpl) AddToLot(ctx context.Context, lotID uuid.UUID, qty int, cap bool) (bool, error) {
	query := r.db.WithContext(ctx).
		Model(&models.BatchFlowerType{}).
		Where("id = ?", lotID)
	if cap {
		query = query.Where("current_quantity + ? <= imported_quantity", qty)
	}
	result := query.UpdateColumn("current_quantity", gorm.Expr("current_quantity + ?", qty))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
