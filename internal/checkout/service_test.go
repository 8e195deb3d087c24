package checkout

import (
	"context"
	"io"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/bloomcart/bloomcart-backend/internal/cart"
	"github.com/bloomcart/bloomcart-backend/internal/catalog"
	"github.com/bloomcart/bloomcart-backend/internal/inventory"
	"github.com/bloomcart/bloomcart-backend/internal/notifications"
	"github.com/bloomcart/bloomcart-backend/internal/orders"
	"github.com/bloomcart/bloomcart-backend/internal/payments"
	"github.com/bloomcart/bloomcart-backend/pkg/config"
	"github.com/bloomcart/bloomcart-backend/pkg/db/models"
	"github.com/bloomcart/bloomcart-backend/pkg/enums"
	pkgerrors "github.com/bloomcart/bloomcart-backend/pkg/errors"
	"github.com/bloomcart/bloomcart-backend/pkg/logger"
)

type memoryCartStore struct {
	carts map[string]cart.Cart
}

func newMemoryCartStore() *memoryCartStore {
	return &memoryCartStore{carts: map[string]cart.Cart{}}
}

func (m *memoryCartStore) Get(_ context.Context, ownerKey string) (*cart.Cart, error) {
	stored, ok := m.carts[ownerKey]
	if !ok {
		return &cart.Cart{}, nil
	}
	copied := stored
	copied.Items = append([]cart.Item(nil), stored.Items...)
	return &copied, nil
}

func (m *memoryCartStore) Save(_ context.Context, ownerKey string, c *cart.Cart) error {
	copied := *c
	copied.Items = append([]cart.Item(nil), c.Items...)
	m.carts[ownerKey] = copied
	return nil
}

func (m *memoryCartStore) Clear(_ context.Context, ownerKey string) error {
	delete(m.carts, ownerKey)
	return nil
}

type fakeGateway struct {
	method  enums.PaymentMethod
	payURL  string
	err     error
	creates int
}

func (f *fakeGateway) Method() enums.PaymentMethod { return f.method }

func (f *fakeGateway) CreatePayment(context.Context, payments.CreateRequest) (*payments.CreateResponse, error) {
	f.creates++
	if f.err != nil {
		return nil, f.err
	}
	return &payments.CreateResponse{PayURL: f.payURL}, nil
}

func (f *fakeGateway) VerifyCallback(url.Values) (*payments.CallbackResult, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not used in tests")
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r *gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type checkoutEnv struct {
	db    *gorm.DB
	svc   Service
	cart  cart.Service
	store *memoryCartStore
}

func newCheckoutEnv(t *testing.T, extraGateways ...payments.Gateway) *checkoutEnv {
	t.Helper()

	dsn := "file:checkout_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = db.AutoMigrate(
		&models.User{}, &models.Category{}, &models.Product{},
		&models.FlowerType{}, &models.FlowerTypeProduct{},
		&models.Batch{}, &models.BatchFlowerType{},
		&models.Order{}, &models.OrderDetail{}, &models.Payment{},
		&models.OrderStatusHistory{}, &models.Notification{}, &models.Rating{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	catalogRepo := catalog.NewRepository(db)
	catalogSvc, err := catalog.NewService(catalogRepo, logg)
	if err != nil {
		t.Fatalf("catalog service: %v", err)
	}
	store := newMemoryCartStore()
	cartSvc, err := cart.NewService(store, catalogSvc, logg)
	if err != nil {
		t.Fatalf("cart service: %v", err)
	}
	inventorySvc, err := inventory.NewService(inventory.NewRepository(db), logg)
	if err != nil {
		t.Fatalf("inventory service: %v", err)
	}
	hub := notifications.NewHub(logg)
	t.Cleanup(hub.Close)
	notifierSvc, err := notifications.NewService(notifications.NewRepository(db), hub, logg)
	if err != nil {
		t.Fatalf("notifications service: %v", err)
	}
	txRunner := &gormTxRunner{db: db}
	ordersRepo := orders.NewRepository(db)
	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:              ordersRepo,
		CatalogRepo:       catalogRepo,
		Inventory:         inventorySvc,
		Notifications:     notifierSvc,
		TransactionRunner: txRunner,
		Logger:            logg,
	})
	if err != nil {
		t.Fatalf("orders service: %v", err)
	}
	dispatcher, err := payments.NewDispatcher(append([]payments.Gateway{payments.NewCODGateway()}, extraGateways...)...)
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	svc, err := NewService(ServiceParams{
		Cart:              cartSvc,
		CatalogRepo:       catalogRepo,
		Inventory:         inventorySvc,
		OrdersRepo:        ordersRepo,
		Orders:            ordersSvc,
		Notifications:     notifierSvc,
		Dispatcher:        dispatcher,
		TransactionRunner: txRunner,
		Logger:            logg,
		Config: config.CheckoutConfig{
			TxTimeout:          2 * time.Second,
			DefaultShippingFee: 50000,
		},
	})
	if err != nil {
		t.Fatalf("checkout service: %v", err)
	}
	return &checkoutEnv{db: db, svc: svc, cart: cartSvc, store: store}
}

type seeded struct {
	userID       uuid.UUID
	productID    uuid.UUID
	flowerTypeID uuid.UUID
	lotID        uuid.UUID
}

func (e *checkoutEnv) seed(t *testing.T, price int64, stock, stemsPerUnit, lotQty int) seeded {
	t.Helper()

	user := models.User{
		ID:           uuid.New(),
		Email:        "linh.tran@example.com",
		PasswordHash: "x",
		FullName:     "Linh Tran",
		Roles:        pq.StringArray{"customer"},
		IsActive:     true,
	}
	if err := e.db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	flowerType := models.FlowerType{ID: uuid.New(), Name: "Tulip"}
	if err := e.db.Create(&flowerType).Error; err != nil {
		t.Fatalf("seed flower type: %v", err)
	}
	category := models.Category{ID: uuid.New(), Name: "Bouquets"}
	if err := e.db.Create(&category).Error; err != nil {
		t.Fatalf("seed category: %v", err)
	}
	product := models.Product{
		ID:            uuid.New(),
		CategoryID:    &category.ID,
		Name:          "Tulip Bouquet",
		Price:         price,
		StockQuantity: stock,
		IsActive:      true,
	}
	if err := e.db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	recipe := models.FlowerTypeProduct{
		ID:              uuid.New(),
		ProductID:       product.ID,
		FlowerTypeID:    flowerType.ID,
		QuantityPerUnit: stemsPerUnit,
	}
	if err := e.db.Create(&recipe).Error; err != nil {
		t.Fatalf("seed recipe: %v", err)
	}
	batch := models.Batch{
		ID:         uuid.New(),
		ImportDate: time.Now().Add(-24 * time.Hour),
		ExpiryDate: time.Now().Add(5 * 24 * time.Hour),
	}
	if err := e.db.Create(&batch).Error; err != nil {
		t.Fatalf("seed batch: %v", err)
	}
	lot := models.BatchFlowerType{
		ID:               uuid.New(),
		BatchID:          batch.ID,
		FlowerTypeID:     flowerType.ID,
		ImportedQuantity: lotQty,
		CurrentQuantity:  lotQty,
	}
	if err := e.db.Create(&lot).Error; err != nil {
		t.Fatalf("seed lot: %v", err)
	}
	return seeded{
		userID:       user.ID,
		productID:    product.ID,
		flowerTypeID: flowerType.ID,
		lotID:        lot.ID,
	}
}

func cartLine(productID uuid.UUID, quantity int) cart.ItemInput {
	return cart.ItemInput{
		ProductID:    productID,
		Quantity:     quantity,
		DeliveryDate: time.Now().UTC().Add(48 * time.Hour),
		DeliverySlot: "morning",
	}
}

func placeOrderInput(method enums.PaymentMethod) PlaceOrderInput {
	return PlaceOrderInput{
		RecipientName:   "Linh Tran",
		RecipientPhone:  "0907654321",
		ShippingAddress: "45 Le Loi, District 3",
		PaymentMethod:   method,
	}
}

func TestPlaceOrderCashOnDelivery(t *testing.T) {
	t.Parallel()

	env := newCheckoutEnv(t)
	fx := env.seed(t, 100000, 10, 3, 20)
	ctx := context.Background()

	if _, err := env.cart.AddItem(ctx, fx.userID.String(), cartLine(fx.productID, 2)); err != nil {
		t.Fatalf("add to cart: %v", err)
	}

	result, err := env.svc.PlaceOrder(ctx, fx.userID, placeOrderInput(enums.PaymentMethodCashOnDelivery))
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if result.PayURL != "" {
		t.Fatalf("cash orders need no pay url, got %s", result.PayURL)
	}
	order := result.Order
	if order.SubtotalAmount != 200000 || order.ShippingFee != 50000 || order.TotalAmount != 250000 {
		t.Fatalf("unexpected totals: %d/%d/%d", order.SubtotalAmount, order.ShippingFee, order.TotalAmount)
	}
	if order.Status != enums.OrderStatusPending {
		t.Fatalf("new orders start pending, got %s", order.Status)
	}

	var stored models.Order
	err = env.db.Preload("Details").Preload("Payment").Preload("History").
		First(&stored, "id = ?", order.ID).Error
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if len(stored.Details) != 1 || stored.Details[0].Quantity != 2 || stored.Details[0].LineTotal != 200000 {
		t.Fatalf("unexpected details: %+v", stored.Details)
	}
	if stored.Details[0].ProductName != "Tulip Bouquet" {
		t.Fatal("detail must snapshot the product name")
	}
	if stored.Payment == nil || stored.Payment.Status != enums.PaymentStatusPending || stored.Payment.Amount != 250000 {
		t.Fatalf("unexpected payment: %+v", stored.Payment)
	}
	if len(stored.History) != 1 || stored.History[0].ToStatus != enums.OrderStatusPending {
		t.Fatalf("unexpected history: %+v", stored.History)
	}

	var product models.Product
	if err := env.db.First(&product, "id = ?", fx.productID).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if product.StockQuantity != 8 || product.QuantitySold != 2 {
		t.Fatalf("stock must move to sold: %d/%d", product.StockQuantity, product.QuantitySold)
	}
	var lot models.BatchFlowerType
	if err := env.db.First(&lot, "id = ?", fx.lotID).Error; err != nil {
		t.Fatalf("reload lot: %v", err)
	}
	if lot.CurrentQuantity != 14 {
		t.Fatalf("six stems must be allocated, lot has %d", lot.CurrentQuantity)
	}

	view, err := env.cart.Get(ctx, fx.userID.String())
	if err != nil {
		t.Fatalf("reload cart: %v", err)
	}
	if len(view.Items) != 0 {
		t.Fatal("cart must be cleared after checkout")
	}
}

func TestPlaceOrderInsufficientStemsRollsBack(t *testing.T) {
	t.Parallel()

	env := newCheckoutEnv(t)
	// Two bouquets at six stems each need 12, the lot holds 10.
	fx := env.seed(t, 100000, 10, 6, 10)
	ctx := context.Background()

	if _, err := env.cart.AddItem(ctx, fx.userID.String(), cartLine(fx.productID, 2)); err != nil {
		t.Fatalf("add to cart: %v", err)
	}

	_, err := env.svc.PlaceOrder(ctx, fx.userID, placeOrderInput(enums.PaymentMethodCashOnDelivery))
	if err == nil {
		t.Fatal("expected insufficient stock error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("unexpected error: %v", err)
	}

	var orderCount int64
	if err := env.db.Model(&models.Order{}).Count(&orderCount).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if orderCount != 0 {
		t.Fatalf("no order may exist after rollback, found %d", orderCount)
	}
	var product models.Product
	if err := env.db.First(&product, "id = ?", fx.productID).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if product.StockQuantity != 10 {
		t.Fatalf("product stock must be untouched, got %d", product.StockQuantity)
	}
	var lot models.BatchFlowerType
	if err := env.db.First(&lot, "id = ?", fx.lotID).Error; err != nil {
		t.Fatalf("reload lot: %v", err)
	}
	if lot.CurrentQuantity != 10 {
		t.Fatalf("lot must be untouched, got %d", lot.CurrentQuantity)
	}

	cartDoc, err := env.cart.Raw(ctx, fx.userID.String())
	if err != nil {
		t.Fatalf("reload cart: %v", err)
	}
	if len(cartDoc.Items) != 1 {
		t.Fatal("cart must survive a failed checkout")
	}
}

func TestPlaceOrderProductStockShortageRollsBack(t *testing.T) {
	t.Parallel()

	env := newCheckoutEnv(t)
	// Plenty of stems but only one finished bouquet on the shelf.
	fx := env.seed(t, 100000, 1, 3, 50)
	ctx := context.Background()

	if _, err := env.cart.AddItem(ctx, fx.userID.String(), cartLine(fx.productID, 2)); err != nil {
		t.Fatalf("add to cart: %v", err)
	}

	_, err := env.svc.PlaceOrder(ctx, fx.userID, placeOrderInput(enums.PaymentMethodCashOnDelivery))
	if err == nil {
		t.Fatal("expected insufficient stock error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInsufficientStock {
		t.Fatalf("unexpected error: %v", err)
	}

	// The stem deduction ran before the guarded product decrement failed and
	// must be rolled back with it.
	var lot models.BatchFlowerType
	if err := env.db.First(&lot, "id = ?", fx.lotID).Error; err != nil {
		t.Fatalf("reload lot: %v", err)
	}
	if lot.CurrentQuantity != 50 {
		t.Fatalf("lot must be untouched, got %d", lot.CurrentQuantity)
	}
}

func TestPlaceOrderRedirectMethodReturnsPayURL(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{
		method: enums.PaymentMethodVNPay,
		payURL: "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html?vnp_TxnRef=abc",
	}
	env := newCheckoutEnv(t, gateway)
	fx := env.seed(t, 100000, 10, 3, 20)
	ctx := context.Background()

	if _, err := env.cart.AddItem(ctx, fx.userID.String(), cartLine(fx.productID, 1)); err != nil {
		t.Fatalf("add to cart: %v", err)
	}

	result, err := env.svc.PlaceOrder(ctx, fx.userID, placeOrderInput(enums.PaymentMethodVNPay))
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if result.PayURL != gateway.payURL {
		t.Fatalf("unexpected pay url: %s", result.PayURL)
	}
	if gateway.creates != 1 {
		t.Fatalf("gateway must be called once, got %d", gateway.creates)
	}
}

func TestPlaceOrderGatewayFailureKeepsOrderPending(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{
		method: enums.PaymentMethodVNPay,
		err:    pkgerrors.New(pkgerrors.CodeDependency, "gateway unreachable"),
	}
	env := newCheckoutEnv(t, gateway)
	fx := env.seed(t, 100000, 10, 3, 20)
	ctx := context.Background()

	if _, err := env.cart.AddItem(ctx, fx.userID.String(), cartLine(fx.productID, 2)); err != nil {
		t.Fatalf("add to cart: %v", err)
	}

	_, err := env.svc.PlaceOrder(ctx, fx.userID, placeOrderInput(enums.PaymentMethodVNPay))
	if err == nil {
		t.Fatal("expected gateway error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("unexpected error: %v", err)
	}

	// The committed order survives the gateway outage so the buyer can retry.
	var order models.Order
	if err := env.db.First(&order).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if order.Status != enums.OrderStatusPending {
		t.Fatalf("order must stay pending, got %s", order.Status)
	}
	var product models.Product
	if err := env.db.First(&product, "id = ?", fx.productID).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if product.StockQuantity != 8 {
		t.Fatalf("stock stays reserved by the pending order, got %d", product.StockQuantity)
	}

	// The retry succeeds once the gateway is reachable again.
	gateway.err = nil
	gateway.payURL = "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html?vnp_TxnRef=retry"
	payURL, err := env.svc.RetryPayment(ctx, fx.userID, order.ID, "203.0.113.7")
	if err != nil {
		t.Fatalf("retry payment: %v", err)
	}
	if payURL != gateway.payURL {
		t.Fatalf("unexpected pay url: %s", payURL)
	}
}

func TestRetryPaymentRejectsSettledOrders(t *testing.T) {
	t.Parallel()

	gateway := &fakeGateway{method: enums.PaymentMethodVNPay, payURL: "https://pay.example.com/x"}
	env := newCheckoutEnv(t, gateway)
	fx := env.seed(t, 100000, 10, 3, 20)
	ctx := context.Background()

	if _, err := env.cart.AddItem(ctx, fx.userID.String(), cartLine(fx.productID, 1)); err != nil {
		t.Fatalf("add to cart: %v", err)
	}
	result, err := env.svc.PlaceOrder(ctx, fx.userID, placeOrderInput(enums.PaymentMethodVNPay))
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	if err := env.db.Model(&models.Payment{}).
		Where("order_id = ?", result.Order.ID).
		Update("status", enums.PaymentStatusPaid).Error; err != nil {
		t.Fatalf("settle payment: %v", err)
	}

	_, err = env.svc.RetryPayment(ctx, fx.userID, result.Order.ID, "")
	if err == nil {
		t.Fatal("settled orders must not be re-payable")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPlaceOrderRejectsUnscheduledDelivery(t *testing.T) {
	t.Parallel()

	env := newCheckoutEnv(t)
	fx := env.seed(t, 100000, 10, 3, 20)
	ctx := context.Background()

	// A line written before delivery scheduling existed carries neither a
	// date nor a slot. Checkout must refuse it, not silently place the order.
	err := env.store.Save(ctx, fx.userID.String(), &cart.Cart{
		Items: []cart.Item{{ProductID: fx.productID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("save cart: %v", err)
	}

	_, err = env.svc.PlaceOrder(ctx, fx.userID, placeOrderInput(enums.PaymentMethodCashOnDelivery))
	if err == nil {
		t.Fatal("expected validation error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("unexpected error: %v", err)
	}

	var orderCount int64
	if err := env.db.Model(&models.Order{}).Count(&orderCount).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if orderCount != 0 {
		t.Fatalf("no order may exist, found %d", orderCount)
	}
}

func TestPlaceOrderRejectsPastDeliveryDate(t *testing.T) {
	t.Parallel()

	env := newCheckoutEnv(t)
	fx := env.seed(t, 100000, 10, 3, 20)
	ctx := context.Background()

	// The date was fine when carted but slipped into the past while the cart
	// sat in the store.
	err := env.store.Save(ctx, fx.userID.String(), &cart.Cart{
		Items: []cart.Item{{
			ProductID:    fx.productID,
			Quantity:     1,
			DeliveryDate: time.Now().UTC().Add(-48 * time.Hour),
			DeliverySlot: "morning",
		}},
	})
	if err != nil {
		t.Fatalf("save cart: %v", err)
	}

	_, err = env.svc.PlaceOrder(ctx, fx.userID, placeOrderInput(enums.PaymentMethodCashOnDelivery))
	if err == nil {
		t.Fatal("expected validation error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPlaceOrderPersistsDeliverySchedule(t *testing.T) {
	t.Parallel()

	env := newCheckoutEnv(t)
	fx := env.seed(t, 100000, 10, 3, 20)
	ctx := context.Background()

	line := cartLine(fx.productID, 1)
	line.DeliverySlot = "14:00-16:00"
	if _, err := env.cart.AddItem(ctx, fx.userID.String(), line); err != nil {
		t.Fatalf("add to cart: %v", err)
	}
	result, err := env.svc.PlaceOrder(ctx, fx.userID, placeOrderInput(enums.PaymentMethodCashOnDelivery))
	if err != nil {
		t.Fatalf("place order: %v", err)
	}

	var detail models.OrderDetail
	if err := env.db.First(&detail, "order_id = ?", result.Order.ID).Error; err != nil {
		t.Fatalf("reload detail: %v", err)
	}
	if detail.DeliverySlot != "14:00-16:00" {
		t.Fatalf("unexpected slot: %q", detail.DeliverySlot)
	}
	want := line.DeliveryDate.UTC().Format("2006-01-02")
	if got := detail.DeliveryDate.UTC().Format("2006-01-02"); got != want {
		t.Fatalf("unexpected date: got %s, want %s", got, want)
	}
}

func TestPlaceOrderRejectsZeroTotal(t *testing.T) {
	t.Parallel()

	env := newCheckoutEnv(t)
	// Free product, and the client sends a zero shipping fee.
	fx := env.seed(t, 0, 10, 3, 20)
	ctx := context.Background()

	if _, err := env.cart.AddItem(ctx, fx.userID.String(), cartLine(fx.productID, 1)); err != nil {
		t.Fatalf("add to cart: %v", err)
	}
	input := placeOrderInput(enums.PaymentMethodCashOnDelivery)
	zero := int64(0)
	input.ShippingFee = &zero

	_, err := env.svc.PlaceOrder(ctx, fx.userID, input)
	if err == nil {
		t.Fatal("expected validation error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("unexpected error: %v", err)
	}

	var orderCount int64
	if err := env.db.Model(&models.Order{}).Count(&orderCount).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if orderCount != 0 {
		t.Fatalf("no order may exist, found %d", orderCount)
	}
}

func TestPlaceOrderEmptyCart(t *testing.T) {
	t.Parallel()

	env := newCheckoutEnv(t)
	fx := env.seed(t, 100000, 10, 3, 20)

	_, err := env.svc.PlaceOrder(context.Background(), fx.userID, placeOrderInput(enums.PaymentMethodCashOnDelivery))
	if err == nil {
		t.Fatal("expected validation error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("unexpected error: %v", err)
	}
}
