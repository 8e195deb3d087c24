package cart

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bloomcart/bloomcart-backend/internal/catalog"
	pkgerrors "github.com/bloomcart/bloomcart-backend/pkg/errors"
	"github.com/bloomcart/bloomcart-backend/pkg/logger"
)

// MaxItemQuantity caps a single cart line.
const MaxItemQuantity = 100

// View is the cart enriched with live product data for display.
type View struct {
	Items    []ViewItem `json:"items"`
	Subtotal int64      `json:"subtotal"`
}

// ViewItem joins a cart line with its product snapshot.
type ViewItem struct {
	ProductID    uuid.UUID `json:"product_id"`
	Name         string    `json:"name"`
	UnitPrice    int64     `json:"unit_price"`
	Quantity     int       `json:"quantity"`
	LineTotal    int64     `json:"line_total"`
	DeliveryDate time.Time `json:"delivery_date"`
	DeliverySlot string    `json:"delivery_slot"`
	InStock      bool      `json:"in_stock"`
	IsAvailable  bool      `json:"is_available"`
}

// ItemInput carries everything needed to put a product line in the cart.
type ItemInput struct {
	ProductID    uuid.UUID
	Quantity     int
	DeliveryDate time.Time
	DeliverySlot string
}

// Service manages per-user carts.
type Service interface {
	Get(ctx context.Context, ownerKey string) (*View, error)
	AddItem(ctx context.Context, ownerKey string, input ItemInput) (*View, error)
	UpdateItem(ctx context.Context, ownerKey string, productID uuid.UUID, quantity int) (*View, error)
	RemoveItem(ctx context.Context, ownerKey string, productID uuid.UUID) (*View, error)
	Clear(ctx context.Context, ownerKey string) error
	Raw(ctx context.Context, ownerKey string) (*Cart, error)
}

type serviceImpl struct {
	store   Store
	catalog catalog.Service
	logg    *logger.Logger
}

// NewService wires the cart service with its dependencies.
func NewService(store Store, catalogSvc catalog.Service, logg *logger.Logger) (Service, error) {
	if store == nil {
		return nil, errors.New("cart store is required")
	}
	if catalogSvc == nil {
		return nil, errors.New("catalog service is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &serviceImpl{store: store, catalog: catalogSvc, logg: logg}, nil
}

func (s *serviceImpl) Get(ctx context.Context, ownerKey string) (*View, error) {
	cart, err := s.store.Get(ctx, ownerKey)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading cart")
	}
	return s.buildView(ctx, cart)
}

func (s *serviceImpl) AddItem(ctx context.Context, ownerKey string, input ItemInput) (*View, error) {
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if err := ValidateDelivery(input.DeliveryDate, input.DeliverySlot, time.Now()); err != nil {
		return nil, err
	}

	product, err := s.catalog.GetProduct(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is not available")
	}

	cart, err := s.store.Get(ctx, ownerKey)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading cart")
	}

	quantity := input.Quantity
	idx := cart.Find(input.ProductID)
	if idx >= 0 {
		quantity += cart.Items[idx].Quantity
	}
	if quantity > MaxItemQuantity {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity exceeds the per-item limit")
	}
	line := Item{
		ProductID:    input.ProductID,
		Quantity:     quantity,
		DeliveryDate: input.DeliveryDate.UTC(),
		DeliverySlot: strings.TrimSpace(input.DeliverySlot),
	}
	if idx >= 0 {
		cart.Items[idx] = line
	} else {
		cart.Items = append(cart.Items, line)
	}

	if err := s.store.Save(ctx, ownerKey, cart); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "saving cart")
	}
	return s.buildView(ctx, cart)
}

func (s *serviceImpl) UpdateItem(ctx context.Context, ownerKey string, productID uuid.UUID, quantity int) (*View, error) {
	if quantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity cannot be negative")
	}
	if quantity > MaxItemQuantity {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity exceeds the per-item limit")
	}

	cart, err := s.store.Get(ctx, ownerKey)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading cart")
	}

	idx := cart.Find(productID)
	if idx < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product is not in the cart")
	}
	if quantity == 0 {
		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
	} else {
		cart.Items[idx].Quantity = quantity
	}

	if err := s.store.Save(ctx, ownerKey, cart); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "saving cart")
	}
	return s.buildView(ctx, cart)
}

func (s *serviceImpl) RemoveItem(ctx context.Context, ownerKey string, productID uuid.UUID) (*View, error) {
	return s.UpdateItem(ctx, ownerKey, productID, 0)
}

func (s *serviceImpl) Clear(ctx context.Context, ownerKey string) error {
	if err := s.store.Clear(ctx, ownerKey); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clearing cart")
	}
	return nil
}

// Raw returns the stored cart without product enrichment. Checkout reads it
// to build order lines.
func (s *serviceImpl) Raw(ctx context.Context, ownerKey string) (*Cart, error) {
	cart, err := s.store.Get(ctx, ownerKey)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading cart")
	}
	return cart, nil
}

func (s *serviceImpl) buildView(ctx context.Context, cart *Cart) (*View, error) {
	view := &View{Items: []ViewItem{}}
	for _, item := range cart.Items {
		product, err := s.catalog.GetProduct(ctx, item.ProductID)
		if err != nil {
			if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
				// Product deleted since it was carted; show nothing rather
				// than failing the whole cart.
				continue
			}
			return nil, err
		}
		lineTotal := product.Price * int64(item.Quantity)
		view.Items = append(view.Items, ViewItem{
			ProductID:    product.ID,
			Name:         product.Name,
			UnitPrice:    product.Price,
			Quantity:     item.Quantity,
			LineTotal:    lineTotal,
			DeliveryDate: item.DeliveryDate,
			DeliverySlot: item.DeliverySlot,
			InStock:      product.StockQuantity >= item.Quantity,
			IsAvailable:  product.IsActive,
		})
		view.Subtotal += lineTotal
	}
	return view, nil
}

// ValidateDelivery rejects a missing or past delivery date and an empty time
// slot. Same-day delivery is allowed; the comparison is on calendar days.
func ValidateDelivery(date time.Time, slot string, now time.Time) error {
	if date.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "delivery date is required")
	}
	today := now.UTC().Truncate(24 * time.Hour)
	if date.UTC().Truncate(24 * time.Hour).Before(today) {
		return pkgerrors.New(pkgerrors.CodeValidation, "delivery date cannot be in the past")
	}
	if strings.TrimSpace(slot) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "delivery time slot is required")
	}
	return nil
}
