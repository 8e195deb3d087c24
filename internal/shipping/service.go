package shipping

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/bloomcart/bloomcart-backend/pkg/config"
	pkgerrors "github.com/bloomcart/bloomcart-backend/pkg/errors"
	"github.com/bloomcart/bloomcart-backend/pkg/logger"
)

// Bouquets ship in one standard parcel.
const (
	defaultWeightGrams = 500
	defaultDimensionCm = 30
)

type quoteCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	ShippingQuoteKey(quoteID string) string
}

// QuoteInput names the delivery destination.
type QuoteInput struct {
	ToDistrictID int
	ToWardCode   string
}

// Service exposes master data passthrough and cached fee quotes.
type Service interface {
	Provinces(ctx context.Context) ([]Province, error)
	Districts(ctx context.Context, provinceID int) ([]District, error)
	Wards(ctx context.Context, districtID int) ([]Ward, error)
	Quote(ctx context.Context, input QuoteInput) (int64, error)
}

type serviceImpl struct {
	client Client
	cache  quoteCache
	logg   *logger.Logger
	cfg    config.ShippingConfig
}

// NewService wires the shipping service. The cache may be nil; quotes are
// then fetched on every call.
func NewService(client Client, cache quoteCache, logg *logger.Logger, cfg config.ShippingConfig) (Service, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "shipping client required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &serviceImpl{client: client, cache: cache, logg: logg, cfg: cfg}, nil
}

func (s *serviceImpl) Provinces(ctx context.Context) ([]Province, error) {
	return s.client.Provinces(ctx)
}

func (s *serviceImpl) Districts(ctx context.Context, provinceID int) ([]District, error) {
	if provinceID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "province id required")
	}
	return s.client.Districts(ctx, provinceID)
}

func (s *serviceImpl) Wards(ctx context.Context, districtID int) ([]Ward, error) {
	if districtID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "district id required")
	}
	return s.client.Wards(ctx, districtID)
}

// Quote returns the delivery fee for a destination. Quotes are cached per
// destination so repeated checkout-page loads do not hammer the provider.
func (s *serviceImpl) Quote(ctx context.Context, input QuoteInput) (int64, error) {
	if input.ToDistrictID <= 0 || input.ToWardCode == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "destination district and ward required")
	}

	cacheKey := ""
	if s.cache != nil {
		cacheKey = s.cache.ShippingQuoteKey(fmt.Sprintf("d%d:w%s", input.ToDistrictID, input.ToWardCode))
		if cached, err := s.cache.Get(ctx, cacheKey); err == nil {
			if fee, parseErr := strconv.ParseInt(cached, 10, 64); parseErr == nil {
				return fee, nil
			}
		} else if !errors.Is(err, goredis.Nil) {
			s.logg.Warn(ctx, "shipping quote cache read failed: "+err.Error())
		}
	}

	fee, err := s.client.Fee(ctx, FeeRequest{
		ToDistrictID: input.ToDistrictID,
		ToWardCode:   input.ToWardCode,
		Weight:       defaultWeightGrams,
		Length:       defaultDimensionCm,
		Width:        defaultDimensionCm,
		Height:       defaultDimensionCm,
	})
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, fee, s.quoteTTL()); err != nil {
			s.logg.Warn(ctx, "shipping quote cache write failed: "+err.Error())
		}
	}
	return fee, nil
}

func (s *serviceImpl) quoteTTL() time.Duration {
	if s.cfg.QuoteTTL > 0 {
		return s.cfg.QuoteTTL
	}
	return 30 * time.Minute
}
