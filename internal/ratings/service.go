package ratings

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/bloomcart/bloomcart-backend/internal/catalog"
	"github.com/bloomcart/bloomcart-backend/pkg/db/models"
	pkgerrors "github.com/bloomcart/bloomcart-backend/pkg/errors"
	"github.com/bloomcart/bloomcart-backend/pkg/logger"
	"github.com/bloomcart/bloomcart-backend/pkg/pagination"
)

// Service lets customers review products they bought. A customer holds at
// most one rating per product; rating again replaces it.
type Service interface {
	Rate(ctx context.Context, userID uuid.UUID, input RateInput) (*models.Rating, error)
	ListForProduct(ctx context.Context, productID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Rating, *pagination.Cursor, error)
}

// RateInput carries one review submission.
type RateInput struct {
	ProductID uuid.UUID
	Stars     int
	Comment   *string
}

type serviceImpl struct {
	repo    Repository
	catalog catalog.Service
	logg    *logger.Logger
}

// NewService wires the ratings service with its dependencies.
func NewService(repo Repository, catalogSvc catalog.Service, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, errors.New("ratings repository is required")
	}
	if catalogSvc == nil {
		return nil, errors.New("catalog service is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &serviceImpl{repo: repo, catalog: catalogSvc, logg: logg}, nil
}

func (s *serviceImpl) Rate(ctx context.Context, userID uuid.UUID, input RateInput) (*models.Rating, error) {
	if input.Stars < 1 || input.Stars > 5 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stars must be between 1 and 5")
	}
	if _, err := s.catalog.GetProduct(ctx, input.ProductID); err != nil {
		return nil, err
	}

	comment := input.Comment
	if comment != nil {
		trimmed := strings.TrimSpace(*comment)
		if trimmed == "" {
			comment = nil
		} else {
			comment = &trimmed
		}
	}

	rating := &models.Rating{
		ID:        uuid.New(),
		ProductID: input.ProductID,
		UserID:    userID,
		Stars:     input.Stars,
		Comment:   comment,
	}
	if err := s.repo.Upsert(ctx, rating); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "saving rating")
	}

	// The upsert may have kept the original row's id; reload so the caller
	// sees what was stored.
	stored, err := s.repo.GetByProductAndUser(ctx, input.ProductID, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading rating")
	}
	if stored == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "rating not found after save")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"product_id": input.ProductID.String(),
		"stars":      input.Stars,
	}), "product rated")
	return stored, nil
}

func (s *serviceImpl) ListForProduct(ctx context.Context, productID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Rating, *pagination.Cursor, error) {
	if _, err := s.catalog.GetProduct(ctx, productID); err != nil {
		return nil, nil, err
	}
	ratings, next, err := s.repo.ListForProduct(ctx, productID, limit, cursor)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing ratings")
	}
	return ratings, next, nil
}
