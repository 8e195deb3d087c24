package cart

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/bloomcart/bloomcart-backend/internal/catalog"
	"github.com/bloomcart/bloomcart-backend/pkg/db/models"
	pkgerrors "github.com/bloomcart/bloomcart-backend/pkg/errors"
	"github.com/bloomcart/bloomcart-backend/pkg/logger"
)

type memoryStore struct {
	carts map[string]*Cart
}

func newMemoryStore() *memoryStore {
	return &memoryStore{carts: map[string]*Cart{}}
}

func (m *memoryStore) Get(_ context.Context, ownerKey string) (*Cart, error) {
	if cart, ok := m.carts[ownerKey]; ok {
		copied := *cart
		copied.Items = append([]Item(nil), cart.Items...)
		return &copied, nil
	}
	return &Cart{}, nil
}

func (m *memoryStore) Save(_ context.Context, ownerKey string, cart *Cart) error {
	copied := *cart
	copied.Items = append([]Item(nil), cart.Items...)
	m.carts[ownerKey] = &copied
	return nil
}

func (m *memoryStore) Clear(_ context.Context, ownerKey string) error {
	delete(m.carts, ownerKey)
	return nil
}

func newTestCatalog(t *testing.T) (catalog.Service, *gorm.DB) {
	t.Helper()
	dsn := "file:cart_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Category{}, &models.Product{}, &models.FlowerType{}, &models.FlowerTypeProduct{}, &models.Rating{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := catalog.NewService(catalog.NewRepository(db), logg)
	if err != nil {
		t.Fatalf("new catalog service: %v", err)
	}
	return svc, db
}

func seedProduct(t *testing.T, db *gorm.DB, price int64, stock int, active bool) uuid.UUID {
	t.Helper()
	product := models.Product{
		ID:            uuid.New(),
		Name:          "Bouquet",
		Price:         price,
		StockQuantity: stock,
		IsActive:      active,
	}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product.ID
}

func newCartService(t *testing.T, store Store, catalogSvc catalog.Service) Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(store, catalogSvc, logg)
	if err != nil {
		t.Fatalf("new cart service: %v", err)
	}
	return svc
}

func itemInput(productID uuid.UUID, quantity int) ItemInput {
	return ItemInput{
		ProductID:    productID,
		Quantity:     quantity,
		DeliveryDate: time.Now().UTC().Add(48 * time.Hour),
		DeliverySlot: "morning",
	}
}

func TestAddItemAccumulatesQuantity(t *testing.T) {
	t.Parallel()

	catalogSvc, db := newTestCatalog(t)
	svc := newCartService(t, newMemoryStore(), catalogSvc)
	ctx := context.Background()
	productID := seedProduct(t, db, 150000, 10, true)

	if _, err := svc.AddItem(ctx, "user-1", itemInput(productID, 2)); err != nil {
		t.Fatalf("add item: %v", err)
	}
	view, err := svc.AddItem(ctx, "user-1", itemInput(productID, 3))
	if err != nil {
		t.Fatalf("add item again: %v", err)
	}
	if len(view.Items) != 1 || view.Items[0].Quantity != 5 {
		t.Fatalf("unexpected cart: %+v", view)
	}
	if view.Subtotal != 750000 {
		t.Fatalf("unexpected subtotal: %d", view.Subtotal)
	}
}

func TestAddItemRejectsInactiveProduct(t *testing.T) {
	t.Parallel()

	catalogSvc, db := newTestCatalog(t)
	svc := newCartService(t, newMemoryStore(), catalogSvc)
	productID := seedProduct(t, db, 150000, 10, false)

	_, err := svc.AddItem(context.Background(), "user-1", itemInput(productID, 1))
	if err == nil {
		t.Fatal("expected validation error")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAddItemRequiresDeliverySchedule(t *testing.T) {
	t.Parallel()

	catalogSvc, db := newTestCatalog(t)
	svc := newCartService(t, newMemoryStore(), catalogSvc)
	ctx := context.Background()
	productID := seedProduct(t, db, 150000, 10, true)

	cases := []struct {
		name  string
		input ItemInput
	}{
		{
			name:  "missing date",
			input: ItemInput{ProductID: productID, Quantity: 1, DeliverySlot: "morning"},
		},
		{
			name: "past date",
			input: ItemInput{
				ProductID:    productID,
				Quantity:     1,
				DeliveryDate: time.Now().UTC().Add(-48 * time.Hour),
				DeliverySlot: "morning",
			},
		},
		{
			name: "blank slot",
			input: ItemInput{
				ProductID:    productID,
				Quantity:     1,
				DeliveryDate: time.Now().UTC().Add(48 * time.Hour),
				DeliverySlot: "   ",
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.AddItem(ctx, "user-1", tc.input)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestAddItemAllowsSameDayDelivery(t *testing.T) {
	t.Parallel()

	catalogSvc, db := newTestCatalog(t)
	svc := newCartService(t, newMemoryStore(), catalogSvc)
	productID := seedProduct(t, db, 150000, 10, true)

	input := ItemInput{
		ProductID:    productID,
		Quantity:     1,
		DeliveryDate: time.Now().UTC(),
		DeliverySlot: "evening",
	}
	view, err := svc.AddItem(context.Background(), "user-1", input)
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	if len(view.Items) != 1 || view.Items[0].DeliverySlot != "evening" {
		t.Fatalf("unexpected cart: %+v", view.Items)
	}
}

func TestUpdateItemZeroRemovesLine(t *testing.T) {
	t.Parallel()

	catalogSvc, db := newTestCatalog(t)
	svc := newCartService(t, newMemoryStore(), catalogSvc)
	ctx := context.Background()
	productID := seedProduct(t, db, 90000, 10, true)

	if _, err := svc.AddItem(ctx, "user-1", itemInput(productID, 2)); err != nil {
		t.Fatalf("add item: %v", err)
	}
	view, err := svc.UpdateItem(ctx, "user-1", productID, 0)
	if err != nil {
		t.Fatalf("update item: %v", err)
	}
	if len(view.Items) != 0 {
		t.Fatalf("expected empty cart, got %+v", view.Items)
	}
}

func TestUpdateItemMissingLine(t *testing.T) {
	t.Parallel()

	catalogSvc, _ := newTestCatalog(t)
	svc := newCartService(t, newMemoryStore(), catalogSvc)

	_, err := svc.UpdateItem(context.Background(), "user-1", uuid.New(), 2)
	if err == nil {
		t.Fatal("expected not found error")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestViewSkipsDeletedProducts(t *testing.T) {
	t.Parallel()

	catalogSvc, db := newTestCatalog(t)
	store := newMemoryStore()
	svc := newCartService(t, store, catalogSvc)
	ctx := context.Background()
	productID := seedProduct(t, db, 120000, 5, true)

	if _, err := svc.AddItem(ctx, "user-1", itemInput(productID, 1)); err != nil {
		t.Fatalf("add item: %v", err)
	}
	if err := db.Delete(&models.Product{}, "id = ?", productID).Error; err != nil {
		t.Fatalf("delete product: %v", err)
	}

	view, err := svc.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(view.Items) != 0 {
		t.Fatalf("expected deleted product to be hidden, got %+v", view.Items)
	}
}
