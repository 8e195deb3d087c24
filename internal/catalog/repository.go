package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bloomcart/bloomcart-backend/pkg/db/models"
	"github.com/bloomcart/bloomcart-backend/pkg/pagination"
)

// Repository exposes persistence helpers for products and categories.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListProducts(ctx context.Context, params ListProductsParams) ([]models.Product, *pagination.Cursor, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	GetProductsForUpdate(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
	CreateProduct(ctx context.Context, product *models.Product) error
	UpdateProduct(ctx context.Context, product *models.Product) error
	DecrementStock(ctx context.Context, productID uuid.UUID, qty int) (bool, error)
	IncrementStock(ctx context.Context, productID uuid.UUID, qty int) error
	GetRecipe(ctx context.Context, productID uuid.UUID) ([]models.FlowerTypeProduct, error)
	ReplaceRecipe(ctx context.Context, productID uuid.UUID, lines []models.FlowerTypeProduct) error
	ListCategories(ctx context.Context) ([]models.Category, error)
	CreateCategory(ctx context.Context, category *models.Category) error
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a catalog repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

// ListProductsParams filters the storefront product listing.
type ListProductsParams struct {
	CategoryID *uuid.UUID
	ActiveOnly bool
	Search     string
	Limit      int
	Cursor     *pagination.Cursor
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

// ratingSelect decorates a product query with the per-product rating
// aggregates scanned into the read-only model fields.
const ratingSelect = "products.*, " +
	"COALESCE((SELECT AVG(stars) FROM ratings WHERE ratings.product_id = products.id), 0) AS rating_average, " +
	"(SELECT COUNT(*) FROM ratings WHERE ratings.product_id = products.id) AS rating_count"

func (r *repositoryImpl) ListProducts(ctx context.Context, params ListProductsParams) ([]models.Product, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).Model(&models.Product{}).Select(ratingSelect)
	if params.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}
	if params.CategoryID != nil {
		query = query.Where("category_id = ?", *params.CategoryID)
	}
	if params.Search != "" {
		query = query.Where("name LIKE ?", "%"+params.Search+"%")
	}
	if params.Cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", params.Cursor.CreatedAt, params.Cursor.ID)
	}

	var products []models.Product
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&products).Error; err != nil {
		return nil, nil, err
	}

	if len(products) > normalized {
		next := products[normalized]
		products = products[:normalized]
		return products, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return products, nil, nil
}

func (r *repositoryImpl) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Select(ratingSelect).
		Preload("Category").
		Preload("Recipe").
		Preload("Recipe.FlowerType").
		First(&product, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}

// GetProductsForUpdate loads products in a stable order so concurrent
// transactions acquire row locks consistently.
func (r *repositoryImpl) GetProductsForUpdate(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	var products []models.Product
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&products).Error
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (r *repositoryImpl) CreateProduct(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *repositoryImpl) UpdateProduct(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Save(product).Error
}

// DecrementStock applies a guarded decrement. The false return means the
// product had less stock than requested and no row was touched.
func (r *repositoryImpl) DecrementStock(ctx context.Context, productID uuid.UUID, qty int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock_quantity >= ?", productID, qty).
		Updates(map[string]any{
			"stock_quantity": gorm.Expr("stock_quantity - ?", qty),
			"quantity_sold":  gorm.Expr("quantity_sold + ?", qty),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// IncrementStock returns previously sold units to stock, used on cancellation.
func (r *repositoryImpl) IncrementStock(ctx context.Context, productID uuid.UUID, qty int) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		Updates(map[string]any{
			"stock_quantity": gorm.Expr("stock_quantity + ?", qty),
			"quantity_sold":  gorm.Expr("quantity_sold - ?", qty),
		}).Error
}

func (r *repositoryImpl) GetRecipe(ctx context.Context, productID uuid.UUID) ([]models.FlowerTypeProduct, error) {
	var lines []models.FlowerTypeProduct
	err := r.db.WithContext(ctx).
		Preload("FlowerType").
		Where("product_id = ?", productID).
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *repositoryImpl) ReplaceRecipe(ctx context.Context, productID uuid.UUID, lines []models.FlowerTypeProduct) error {
	if err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Delete(&models.FlowerTypeProduct{}).Error; err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&lines).Error
}

func (r *repositoryImpl) ListCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}

func (r *repositoryImpl) CreateCategory(ctx context.Context, category *models.Category) error {
	return r.db.WithContext(ctx).Create(category).Error
}
