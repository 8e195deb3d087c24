package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/bloomcart/bloomcart-backend/pkg/db/models"
	pkgerrors "github.com/bloomcart/bloomcart-backend/pkg/errors"
	"github.com/bloomcart/bloomcart-backend/pkg/logger"
	"github.com/bloomcart/bloomcart-backend/pkg/pagination"
)

// Service exposes catalog reads for the storefront and writes for the back office.
type Service interface {
	ListProducts(ctx context.Context, params ListProductsParams) ([]models.Product, *pagination.Cursor, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	CreateProduct(ctx context.Context, input CreateProductInput) (*models.Product, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, input UpdateProductInput) (*models.Product, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	CreateCategory(ctx context.Context, name string, description *string) (*models.Category, error)
}

type serviceImpl struct {
	repo Repository
	logg *logger.Logger
}

// NewService wires the catalog service with its dependencies.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, errors.New("catalog repository is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &serviceImpl{repo: repo, logg: logg}, nil
}

// CreateProductInput carries back-office product creation fields.
type CreateProductInput struct {
	CategoryID  *uuid.UUID
	Name        string
	Description *string
	Price       int64
	ImageURL    *string
	Recipe      []RecipeLineInput
}

// UpdateProductInput carries partial product updates. Nil fields are untouched.
type UpdateProductInput struct {
	CategoryID  *uuid.UUID
	Name        *string
	Description *string
	Price       *int64
	ImageURL    *string
	IsActive    *bool
	Recipe      []RecipeLineInput
}

// RecipeLineInput is one flower-type requirement for a product unit.
type RecipeLineInput struct {
	FlowerTypeID    uuid.UUID
	QuantityPerUnit int
}

func (s *serviceImpl) ListProducts(ctx context.Context, params ListProductsParams) ([]models.Product, *pagination.Cursor, error) {
	return s.repo.ListProducts(ctx, params)
}

func (s *serviceImpl) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading product")
	}
	if product == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return product, nil
}

func (s *serviceImpl) CreateProduct(ctx context.Context, input CreateProductInput) (*models.Product, error) {
	if input.Name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product name is required")
	}
	if input.Price <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product price must be positive")
	}
	if err := validateRecipe(input.Recipe); err != nil {
		return nil, err
	}

	product := &models.Product{
		ID:          uuid.New(),
		CategoryID:  input.CategoryID,
		Name:        input.Name,
		Description: input.Description,
		Price:       input.Price,
		ImageURL:    input.ImageURL,
		IsActive:    true,
	}
	for _, line := range input.Recipe {
		product.Recipe = append(product.Recipe, models.FlowerTypeProduct{
			ID:              uuid.New(),
			ProductID:       product.ID,
			FlowerTypeID:    line.FlowerTypeID,
			QuantityPerUnit: line.QuantityPerUnit,
		})
	}

	if err := s.repo.CreateProduct(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating product")
	}
	s.logg.Info(s.logg.WithField(ctx, "product_id", product.ID.String()), "product created")
	return product, nil
}

func (s *serviceImpl) UpdateProduct(ctx context.Context, id uuid.UUID, input UpdateProductInput) (*models.Product, error) {
	product, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		if *input.Name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product name cannot be empty")
		}
		product.Name = *input.Name
	}
	if input.Price != nil {
		if *input.Price <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product price must be positive")
		}
		product.Price = *input.Price
	}
	if input.CategoryID != nil {
		product.CategoryID = input.CategoryID
	}
	if input.Description != nil {
		product.Description = input.Description
	}
	if input.ImageURL != nil {
		product.ImageURL = input.ImageURL
	}
	if input.IsActive != nil {
		product.IsActive = *input.IsActive
	}

	// Save only touches the product row; recipe lines are replaced separately.
	product.Recipe = nil
	if err := s.repo.UpdateProduct(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating product")
	}

	if input.Recipe != nil {
		if err := validateRecipe(input.Recipe); err != nil {
			return nil, err
		}
		lines := make([]models.FlowerTypeProduct, 0, len(input.Recipe))
		for _, line := range input.Recipe {
			lines = append(lines, models.FlowerTypeProduct{
				ID:              uuid.New(),
				ProductID:       product.ID,
				FlowerTypeID:    line.FlowerTypeID,
				QuantityPerUnit: line.QuantityPerUnit,
			})
		}
		if err := s.repo.ReplaceRecipe(ctx, product.ID, lines); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "replacing recipe")
		}
	}

	return s.GetProduct(ctx, id)
}

func (s *serviceImpl) ListCategories(ctx context.Context) ([]models.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *serviceImpl) CreateCategory(ctx context.Context, name string, description *string) (*models.Category, error) {
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "category name is required")
	}
	category := &models.Category{ID: uuid.New(), Name: name, Description: description}
	if err := s.repo.CreateCategory(ctx, category); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating category")
	}
	return category, nil
}

func validateRecipe(lines []RecipeLineInput) error {
	seen := map[uuid.UUID]bool{}
	for _, line := range lines {
		if line.QuantityPerUnit <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "recipe quantity per unit must be positive")
		}
		if seen[line.FlowerTypeID] {
			return pkgerrors.New(pkgerrors.CodeValidation, "duplicate flower type in recipe")
		}
		seen[line.FlowerTypeID] = true
	}
	return nil
}
