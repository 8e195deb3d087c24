package routes

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/bloomcart/bloomcart-backend/internal/cart"
	"github.com/bloomcart/bloomcart-backend/internal/catalog"
	"github.com/bloomcart/bloomcart-backend/internal/checkout"
	"github.com/bloomcart/bloomcart-backend/internal/inventory"
	"github.com/bloomcart/bloomcart-backend/internal/notifications"
	"github.com/bloomcart/bloomcart-backend/internal/orders"
	"github.com/bloomcart/bloomcart-backend/internal/payments"
	"github.com/bloomcart/bloomcart-backend/internal/ratings"
	"github.com/bloomcart/bloomcart-backend/internal/shipping"
	"github.com/bloomcart/bloomcart-backend/internal/users"
	"github.com/bloomcart/bloomcart-backend/pkg/config"
	"github.com/bloomcart/bloomcart-backend/pkg/db/models"
	"github.com/bloomcart/bloomcart-backend/pkg/enums"
	"github.com/bloomcart/bloomcart-backend/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

// memoryCartStore keeps cart documents in a map so the router test needs no
// redis server.
type memoryCartStore struct {
	mu    sync.Mutex
	carts map[string]cart.Cart
}

func newMemoryCartStore() *memoryCartStore {
	return &memoryCartStore{carts: map[string]cart.Cart{}}
}

func (s *memoryCartStore) Get(_ context.Context, ownerKey string) (*cart.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.carts[ownerKey]
	if !ok {
		return &cart.Cart{}, nil
	}
	copied := cart.Cart{UpdatedAt: doc.UpdatedAt, Items: append([]cart.Item(nil), doc.Items...)}
	return &copied, nil
}

func (s *memoryCartStore) Save(_ context.Context, ownerKey string, doc *cart.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[ownerKey] = cart.Cart{UpdatedAt: doc.UpdatedAt, Items: append([]cart.Item(nil), doc.Items...)}
	return nil
}

func (s *memoryCartStore) Clear(_ context.Context, ownerKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, ownerKey)
	return nil
}

// memoryIdempotencyStore backs the callback dedupe guard in tests.
type memoryIdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemoryIdempotencyStore() *memoryIdempotencyStore {
	return &memoryIdempotencyStore{keys: map[string]string{}}
}

func (s *memoryIdempotencyStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys[key], nil
}

func (s *memoryIdempotencyStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false, nil
	}
	s.keys[key] = fmt.Sprintf("%v", value)
	return true, nil
}

func (s *memoryIdempotencyStore) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

func (s *memoryIdempotencyStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.keys, key)
	}
	return nil
}

type stubShippingClient struct{}

func (stubShippingClient) Provinces(context.Context) ([]shipping.Province, error) {
	return []shipping.Province{{ProvinceID: 201, ProvinceName: "Hà Nội"}}, nil
}

func (stubShippingClient) Districts(_ context.Context, provinceID int) ([]shipping.District, error) {
	return []shipping.District{{DistrictID: 1482, DistrictName: "Ba Đình", ProvinceID: provinceID}}, nil
}

func (stubShippingClient) Wards(_ context.Context, districtID int) ([]shipping.Ward, error) {
	return []shipping.Ward{{WardCode: "11007", WardName: "Cống Vị", DistrictID: districtID}}, nil
}

func (stubShippingClient) Fee(context.Context, shipping.FeeRequest) (int64, error) {
	return 36300, nil
}

const vnpaySecret = "router-test-secret"

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Env:         "test",
			Port:        "0",
			LogLevel:    "debug",
			CORSOrigins: []string{"http://localhost:3000"},
		},
		JWT: config.JWTConfig{
			Secret:            "router-test-jwt-secret",
			Issuer:            "bloomcart-test",
			ExpirationMinutes: 60,
		},
		Password: config.PasswordConfig{
			ArgonMemoryKB:    8192,
			ArgonTime:        1,
			ArgonParallelism: 1,
			ArgonSaltLen:     16,
			ArgonKeyLen:      32,
		},
		Checkout: config.CheckoutConfig{
			TxTimeout:          2 * time.Second,
			DefaultShippingFee: 50000,
		},
		VNPay: config.VNPayConfig{
			Endpoint:   "https://sandbox.vnpayment.vn/paymentv2/vpcpay.html",
			TmnCode:    "BLOOMTST",
			HashSecret: vnpaySecret,
			ReturnURL:  "http://localhost:3000/payment/return",
			Version:    "2.1.0",
			Locale:     "vn",
		},
	}
}

type routerEnv struct {
	handler http.Handler
	db      *gorm.DB
}

func newRouterEnv(t *testing.T) *routerEnv {
	t.Helper()

	dsn := "file:routes_" + uuid.NewString() + "?mode=memory&cache=shared"
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

	cfg := testConfig()
	logg := logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: io.Discard})
	runner := gormTxRunner{db: db}

	catalogRepo := catalog.NewRepository(db)
	catalogSvc, err := catalog.NewService(catalogRepo, logg)
	if err != nil {
		t.Fatalf("catalog service: %v", err)
	}
	inventorySvc, err := inventory.NewService(inventory.NewRepository(db), logg)
	if err != nil {
		t.Fatalf("inventory service: %v", err)
	}
	cartSvc, err := cart.NewService(newMemoryCartStore(), catalogSvc, logg)
	if err != nil {
		t.Fatalf("cart service: %v", err)
	}
	hub := notifications.NewHub(logg)
	t.Cleanup(hub.Close)
	notificationsSvc, err := notifications.NewService(notifications.NewRepository(db), hub, logg)
	if err != nil {
		t.Fatalf("notifications service: %v", err)
	}
	ordersRepo := orders.NewRepository(db)
	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:              ordersRepo,
		CatalogRepo:       catalogRepo,
		Inventory:         inventorySvc,
		Notifications:     notificationsSvc,
		TransactionRunner: runner,
		Logger:            logg,
	})
	if err != nil {
		t.Fatalf("orders service: %v", err)
	}

	vnpayGateway, err := payments.NewVNPayGateway(cfg.VNPay)
	if err != nil {
		t.Fatalf("vnpay gateway: %v", err)
	}
	dispatcher, err := payments.NewDispatcher(payments.NewCODGateway(), vnpayGateway)
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	guard, err := payments.NewIdempotencyGuard(newMemoryIdempotencyStore(), time.Hour, "payment-callback")
	if err != nil {
		t.Fatalf("idempotency guard: %v", err)
	}
	callbackSvc, err := payments.NewCallbackService(dispatcher, guard, ordersSvc, logg)
	if err != nil {
		t.Fatalf("callback service: %v", err)
	}

	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		Cart:              cartSvc,
		CatalogRepo:       catalogRepo,
		Inventory:         inventorySvc,
		OrdersRepo:        ordersRepo,
		Orders:            ordersSvc,
		Notifications:     notificationsSvc,
		Dispatcher:        dispatcher,
		TransactionRunner: runner,
		Logger:            logg,
		Config:            cfg.Checkout,
	})
	if err != nil {
		t.Fatalf("checkout service: %v", err)
	}

	usersSvc, err := users.NewService(users.ServiceParams{
		Repo:       users.NewRepository(db),
		Logger:     logg,
		JWT:        cfg.JWT,
		Password:   cfg.Password,
		RateLimits: cfg.AuthRateLimit,
	})
	if err != nil {
		t.Fatalf("users service: %v", err)
	}

	shippingSvc, err := shipping.NewService(stubShippingClient{}, nil, logg, cfg.Shipping)
	if err != nil {
		t.Fatalf("shipping service: %v", err)
	}

	ratingsSvc, err := ratings.NewService(ratings.NewRepository(db), catalogSvc, logg)
	if err != nil {
		t.Fatalf("ratings service: %v", err)
	}

	handler := New(Dependencies{
		Config:        cfg,
		Logger:        logg,
		Database:      stubPinger{},
		Cache:         stubPinger{},
		Users:         usersSvc,
		Catalog:       catalogSvc,
		Cart:          cartSvc,
		Checkout:      checkoutSvc,
		Orders:        ordersSvc,
		Inventory:     inventorySvc,
		Ratings:       ratingsSvc,
		Shipping:      shippingSvc,
		Notifications: notificationsSvc,
		Callbacks:     callbackSvc,
	})

	return &routerEnv{handler: handler, db: db}
}

func (env *routerEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, rec.Body.String())
	}
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		t.Fatalf("decode data: %v (body %s)", err, rec.Body.String())
	}
}

type authPayload struct {
	AccessToken string `json:"access_token"`
	User        struct {
		ID    uuid.UUID `json:"id"`
		Roles []string  `json:"roles"`
	} `json:"user"`
}

func (env *routerEnv) registerCustomer(t *testing.T, email string) authPayload {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"email":     email,
		"password":  "sunflower9",
		"full_name": "Linh Trần",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register returned %d: %s", rec.Code, rec.Body.String())
	}
	var auth authPayload
	decodeData(t, rec, &auth)
	return auth
}

func (env *routerEnv) loginStaff(t *testing.T, email string) authPayload {
	t.Helper()
	env.registerCustomer(t, email)
	err := env.db.Model(&models.User{}).Where("email = ?", email).
		Update("roles", pq.StringArray{enums.RoleStaff.String()}).Error
	if err != nil {
		t.Fatalf("elevate staff: %v", err)
	}
	rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email":    email,
		"password": "sunflower9",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("staff login returned %d: %s", rec.Code, rec.Body.String())
	}
	var auth authPayload
	decodeData(t, rec, &auth)
	return auth
}

type seededCatalog struct {
	productID uuid.UUID
}

// seedCatalog creates one bouquet at 100000 VND with stock, a 3-stem recipe
// and a lot of 50 tulips.
func (env *routerEnv) seedCatalog(t *testing.T) seededCatalog {
	t.Helper()
	flowerType := models.FlowerType{ID: uuid.New(), Name: "Tulip"}
	if err := env.db.Create(&flowerType).Error; err != nil {
		t.Fatalf("seed flower type: %v", err)
	}
	product := models.Product{
		ID:            uuid.New(),
		Name:          "Spring Bouquet",
		Price:         100000,
		StockQuantity: 10,
		IsActive:      true,
	}
	if err := env.db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	recipe := models.FlowerTypeProduct{
		ID:              uuid.New(),
		ProductID:       product.ID,
		FlowerTypeID:    flowerType.ID,
		QuantityPerUnit: 3,
	}
	if err := env.db.Create(&recipe).Error; err != nil {
		t.Fatalf("seed recipe: %v", err)
	}
	batch := models.Batch{
		ID:         uuid.New(),
		ImportDate: time.Now().UTC().Add(-24 * time.Hour),
		ExpiryDate: time.Now().UTC().Add(7 * 24 * time.Hour),
	}
	if err := env.db.Create(&batch).Error; err != nil {
		t.Fatalf("seed batch: %v", err)
	}
	lot := models.BatchFlowerType{
		ID:               uuid.New(),
		BatchID:          batch.ID,
		FlowerTypeID:     flowerType.ID,
		ImportedQuantity: 50,
		CurrentQuantity:  50,
	}
	if err := env.db.Create(&lot).Error; err != nil {
		t.Fatalf("seed lot: %v", err)
	}
	return seededCatalog{productID: product.ID}
}

func TestHealthAndPublicRoutes(t *testing.T) {
	env := newRouterEnv(t)

	if rec := env.do(t, http.MethodGet, "/health/live", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("live returned %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/health/ready", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("ready returned %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/products", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("products returned %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/shipping/provinces", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("provinces returned %d", rec.Code)
	}
}

func TestAuthGuards(t *testing.T) {
	env := newRouterEnv(t)

	if rec := env.do(t, http.MethodGet, "/api/v1/cart", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	customer := env.registerCustomer(t, "an.nguyen@example.com")
	if rec := env.do(t, http.MethodGet, "/api/v1/cart", customer.AccessToken, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/staff/orders", customer.AccessToken, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer on staff route, got %d", rec.Code)
	}

	staff := env.loginStaff(t, "mai.pham@example.com")
	if rec := env.do(t, http.MethodGet, "/api/v1/staff/orders", staff.AccessToken, nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for staff, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCheckoutCashOnDeliveryFlow(t *testing.T) {
	env := newRouterEnv(t)
	seeded := env.seedCatalog(t)
	customer := env.registerCustomer(t, "linh.tran@example.com")

	rec := env.do(t, http.MethodPost, "/api/v1/cart/items", customer.AccessToken, map[string]any{
		"product_id":    seeded.productID,
		"quantity":      2,
		"delivery_date": time.Now().UTC().Add(72 * time.Hour).Format("2006-01-02"),
		"delivery_slot": "morning",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("add to cart returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/api/v1/checkout", customer.AccessToken, map[string]any{
		"recipient_name":   "Linh Trần",
		"recipient_phone":  "0901234567",
		"shipping_address": "12 Hàng Gai, Hoàn Kiếm, Hà Nội",
		"payment_method":   "cash_on_delivery",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkout returned %d: %s", rec.Code, rec.Body.String())
	}
	var placed struct {
		Order struct {
			ID          uuid.UUID `json:"id"`
			Status      string    `json:"status"`
			TotalAmount int64     `json:"total_amount"`
		} `json:"order"`
		PayURL string `json:"pay_url"`
	}
	decodeData(t, rec, &placed)
	if placed.Order.TotalAmount != 250000 {
		t.Fatalf("expected total 250000, got %d", placed.Order.TotalAmount)
	}
	if placed.PayURL != "" {
		t.Fatalf("cash orders must not carry a pay url, got %q", placed.PayURL)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/orders", customer.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list orders returned %d", rec.Code)
	}
	var list struct {
		Items []struct {
			ID uuid.UUID `json:"id"`
		} `json:"items"`
	}
	decodeData(t, rec, &list)
	if len(list.Items) != 1 || list.Items[0].ID != placed.Order.ID {
		t.Fatalf("expected the placed order in the list, got %+v", list.Items)
	}

	// The cart was consumed by checkout.
	rec = env.do(t, http.MethodGet, "/api/v1/cart", customer.AccessToken, nil)
	var cartView struct {
		Items []struct{} `json:"items"`
	}
	decodeData(t, rec, &cartView)
	if len(cartView.Items) != 0 {
		t.Fatalf("expected empty cart after checkout, got %d items", len(cartView.Items))
	}
}

func signVNPayParams(params url.Values) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var builder strings.Builder
	for i, key := range keys {
		if i > 0 {
			builder.WriteByte('&')
		}
		builder.WriteString(url.QueryEscape(key))
		builder.WriteByte('=')
		builder.WriteString(url.QueryEscape(params.Get(key)))
	}
	mac := hmac.New(sha512.New, []byte(vnpaySecret))
	mac.Write([]byte(builder.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVNPayCallbackSettlesOrder(t *testing.T) {
	env := newRouterEnv(t)
	seeded := env.seedCatalog(t)
	customer := env.registerCustomer(t, "linh.tran@example.com")
	staff := env.loginStaff(t, "mai.pham@example.com")

	rec := env.do(t, http.MethodPost, "/api/v1/cart/items", customer.AccessToken, map[string]any{
		"product_id":    seeded.productID,
		"quantity":      1,
		"delivery_date": time.Now().UTC().Add(72 * time.Hour).Format("2006-01-02"),
		"delivery_slot": "morning",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("add to cart returned %d: %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodPost, "/api/v1/checkout", customer.AccessToken, map[string]any{
		"recipient_name":   "Linh Trần",
		"recipient_phone":  "0901234567",
		"shipping_address": "12 Hàng Gai, Hoàn Kiếm, Hà Nội",
		"payment_method":   "vnpay",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkout returned %d: %s", rec.Code, rec.Body.String())
	}
	var placed struct {
		Order struct {
			ID          uuid.UUID `json:"id"`
			TotalAmount int64     `json:"total_amount"`
		} `json:"order"`
		PayURL string `json:"pay_url"`
	}
	decodeData(t, rec, &placed)
	if placed.PayURL == "" {
		t.Fatal("expected a vnpay redirect url")
	}

	params := url.Values{}
	params.Set("vnp_TxnRef", placed.Order.ID.String())
	params.Set("vnp_Amount", fmt.Sprintf("%d", placed.Order.TotalAmount*100))
	params.Set("vnp_ResponseCode", "00")
	params.Set("vnp_TransactionNo", "14225587")
	params.Set("vnp_OrderInfo", "Bloomcart order")
	params.Set("vnp_SecureHash", signVNPayParams(params))

	rec = env.do(t, http.MethodGet, "/api/v1/payments/vnpay/callback?"+params.Encode(), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("callback returned %d: %s", rec.Code, rec.Body.String())
	}
	var outcome struct {
		Applied   bool `json:"applied"`
		Duplicate bool `json:"duplicate"`
		Success   bool `json:"success"`
	}
	decodeData(t, rec, &outcome)
	if !outcome.Applied || !outcome.Success {
		t.Fatalf("expected an applied successful callback, got %+v", outcome)
	}

	// Replay is acknowledged without touching the order.
	rec = env.do(t, http.MethodGet, "/api/v1/payments/vnpay/callback?"+params.Encode(), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("replayed callback returned %d", rec.Code)
	}
	decodeData(t, rec, &outcome)
	if !outcome.Duplicate {
		t.Fatalf("expected duplicate outcome on replay, got %+v", outcome)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/staff/orders/"+placed.Order.ID.String(), staff.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("staff get order returned %d: %s", rec.Code, rec.Body.String())
	}
	var order struct {
		Status  string `json:"status"`
		Payment struct {
			Status        string  `json:"status"`
			GatewayTxnRef *string `json:"gateway_txn_ref"`
		} `json:"payment"`
	}
	decodeData(t, rec, &order)
	if order.Status != "processing" {
		t.Fatalf("expected processing after payment, got %s", order.Status)
	}
	if order.Payment.Status != "paid" {
		t.Fatalf("expected paid payment, got %s", order.Payment.Status)
	}
	if order.Payment.GatewayTxnRef == nil || *order.Payment.GatewayTxnRef != "14225587" {
		t.Fatalf("expected gateway ref recorded, got %v", order.Payment.GatewayTxnRef)
	}
}

func TestStaffOrderLifecycleOverHTTP(t *testing.T) {
	env := newRouterEnv(t)
	seeded := env.seedCatalog(t)
	customer := env.registerCustomer(t, "linh.tran@example.com")
	staff := env.loginStaff(t, "mai.pham@example.com")

	rec := env.do(t, http.MethodPost, "/api/v1/cart/items", customer.AccessToken, map[string]any{
		"product_id":    seeded.productID,
		"quantity":      1,
		"delivery_date": time.Now().UTC().Add(72 * time.Hour).Format("2006-01-02"),
		"delivery_slot": "morning",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("add to cart returned %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/api/v1/checkout", customer.AccessToken, map[string]any{
		"recipient_name":   "Linh Trần",
		"recipient_phone":  "0901234567",
		"shipping_address": "12 Hàng Gai, Hoàn Kiếm, Hà Nội",
		"payment_method":   "cash_on_delivery",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkout returned %d: %s", rec.Code, rec.Body.String())
	}
	var placed struct {
		Order struct {
			ID uuid.UUID `json:"id"`
		} `json:"order"`
	}
	decodeData(t, rec, &placed)
	orderPath := "/api/v1/staff/orders/" + placed.Order.ID.String() + "/status"

	// Skipping straight to shipped is rejected.
	rec = env.do(t, http.MethodPut, orderPath, staff.AccessToken, map[string]any{"status": "shipped"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for illegal transition, got %d: %s", rec.Code, rec.Body.String())
	}

	for _, next := range []string{"processing", "shipped", "delivered"} {
		rec = env.do(t, http.MethodPut, orderPath, staff.AccessToken, map[string]any{"status": next})
		if rec.Code != http.StatusOK {
			t.Fatalf("transition to %s returned %d: %s", next, rec.Code, rec.Body.String())
		}
	}

	var order struct {
		Status  string `json:"status"`
		Payment struct {
			Status string `json:"status"`
		} `json:"payment"`
	}
	rec = env.do(t, http.MethodGet, "/api/v1/staff/orders/"+placed.Order.ID.String(), staff.AccessToken, nil)
	decodeData(t, rec, &order)
	if order.Status != "delivered" {
		t.Fatalf("expected delivered, got %s", order.Status)
	}
	// Delivery settles the outstanding cash payment.
	if order.Payment.Status != "paid" {
		t.Fatalf("expected cash payment settled on delivery, got %s", order.Payment.Status)
	}
}

func TestProductRatingsOverHTTP(t *testing.T) {
	env := newRouterEnv(t)
	seeded := env.seedCatalog(t)
	customer := env.registerCustomer(t, "linh.tran@example.com")

	ratingsPath := "/api/v1/products/" + seeded.productID.String() + "/ratings"

	if rec := env.do(t, http.MethodPost, ratingsPath, "", map[string]any{"stars": 5}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec := env.do(t, http.MethodPost, ratingsPath, customer.AccessToken, map[string]any{
		"stars":   5,
		"comment": "gorgeous arrangement",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("rate returned %d: %s", rec.Code, rec.Body.String())
	}

	// Rating again replaces the earlier review instead of adding a second one.
	rec = env.do(t, http.MethodPost, ratingsPath, customer.AccessToken, map[string]any{"stars": 3})
	if rec.Code != http.StatusCreated {
		t.Fatalf("re-rate returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, ratingsPath, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list ratings returned %d: %s", rec.Code, rec.Body.String())
	}
	var reviews struct {
		Items []struct {
			Stars    int    `json:"stars"`
			UserName string `json:"user_name"`
		} `json:"items"`
	}
	decodeData(t, rec, &reviews)
	if len(reviews.Items) != 1 || reviews.Items[0].Stars != 3 {
		t.Fatalf("expected one 3-star review, got %+v", reviews.Items)
	}

	var product struct {
		RatingAverage float64 `json:"rating_average"`
		RatingCount   int64   `json:"rating_count"`
	}
	rec = env.do(t, http.MethodGet, "/api/v1/products/"+seeded.productID.String(), "", nil)
	decodeData(t, rec, &product)
	if product.RatingAverage != 3 || product.RatingCount != 1 {
		t.Fatalf("unexpected aggregates: avg=%v count=%d", product.RatingAverage, product.RatingCount)
	}

	if rec := env.do(t, http.MethodPost, ratingsPath, customer.AccessToken, map[string]any{"stars": 9}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-range stars, got %d", rec.Code)
	}
}
