package ratings

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bloomcart/bloomcart-backend/pkg/db/models"
	"github.com/bloomcart/bloomcart-backend/pkg/pagination"
)

// Repository exposes persistence helpers for product ratings.
type Repository interface {
	Upsert(ctx context.Context, rating *models.Rating) error
	GetByProductAndUser(ctx context.Context, productID, userID uuid.UUID) (*models.Rating, error)
	ListForProduct(ctx context.Context, productID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Rating, *pagination.Cursor, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a ratings repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

// Upsert inserts the rating, or replaces the stars and comment when the
// customer has rated the product before.
func (r *repositoryImpl) Upsert(ctx context.Context, rating *models.Rating) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "product_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"stars", "comment", "updated_at"}),
		}).
		Create(rating).Error
}

func (r *repositoryImpl) GetByProductAndUser(ctx context.Context, productID, userID uuid.UUID) (*models.Rating, error) {
	var rating models.Rating
	err := r.db.WithContext(ctx).
		Where("product_id = ? AND user_id = ?", productID, userID).
		First(&rating).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rating, nil
}

func (r *repositoryImpl) ListForProduct(ctx context.Context, productID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Rating, *pagination.Cursor, error) {
	buffered := pagination.LimitWithBuffer(limit)
	normalized := pagination.NormalizeLimit(limit)

	query := r.db.WithContext(ctx).
		Preload("User").
		Where("product_id = ?", productID)
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var ratings []models.Rating
	if err := query.Order("created_at DESC, id DESC").Limit(buffered).Find(&ratings).Error; err != nil {
		return nil, nil, err
	}

	if len(ratings) > normalized {
		next := ratings[normalized]
		ratings = ratings[:normalized]
		return ratings, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return ratings, nil, nil
}
