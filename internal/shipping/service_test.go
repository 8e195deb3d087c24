package shipping

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/bloomcart/bloomcart-backend/pkg/config"
	pkgerrors "github.com/bloomcart/bloomcart-backend/pkg/errors"
	"github.com/bloomcart/bloomcart-backend/pkg/logger"
)

type fakeQuoteCache struct {
	values map[string]string
	sets   int
}

func newFakeQuoteCache() *fakeQuoteCache {
	return &fakeQuoteCache{values: map[string]string{}}
}

func (f *fakeQuoteCache) Get(_ context.Context, key string) (string, error) {
	value, ok := f.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return value, nil
}

func (f *fakeQuoteCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	f.sets++
	// Store values the way redis would: as their string form.
	f.values[key] = fmt.Sprintf("%v", value)
	return nil
}

func (f *fakeQuoteCache) ShippingQuoteKey(quoteID string) string {
	return "bc:quote:" + quoteID
}

func testShippingConfig(baseURL string) config.ShippingConfig {
	return config.ShippingConfig{
		BaseURL:        baseURL,
		Token:          "test-token",
		ShopID:         123456,
		FromDistrictID: 1450,
		ServiceID:      53321,
		RequestTimeout: 2 * time.Second,
		QuoteTTL:       time.Minute,
	}
}

func ghnRespond(w http.ResponseWriter, data any) {
	json.NewEncoder(w).Encode(map[string]any{"code": 200, "message": "Success", "data": data})
}

func newTestService(t *testing.T, handler http.Handler, cache *fakeQuoteCache) Service {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewGHNClient(testShippingConfig(server.URL), server.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	// Avoid handing NewService a typed-nil interface when no cache is wanted.
	var qc quoteCache
	if cache != nil {
		qc = cache
	}
	svc, err := NewService(client, qc, logg, testShippingConfig(server.URL))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestProvincesPassthrough(t *testing.T) {
	t.Parallel()

	var gotToken string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/master-data/province" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		gotToken = r.Header.Get("Token")
		ghnRespond(w, []Province{{ProvinceID: 202, ProvinceName: "Ho Chi Minh"}})
	})

	svc := newTestService(t, handler, nil)
	provinces, err := svc.Provinces(context.Background())
	if err != nil {
		t.Fatalf("provinces: %v", err)
	}
	if len(provinces) != 1 || provinces[0].ProvinceName != "Ho Chi Minh" {
		t.Fatalf("unexpected provinces: %+v", provinces)
	}
	if gotToken != "test-token" {
		t.Fatalf("token header missing, got %q", gotToken)
	}
}

func TestDistrictsSendProvinceID(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]int
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["province_id"] != 202 {
			t.Errorf("unexpected province id: %d", body["province_id"])
		}
		ghnRespond(w, []District{{DistrictID: 1442, DistrictName: "District 1", ProvinceID: 202}})
	})

	svc := newTestService(t, handler, nil)
	districts, err := svc.Districts(context.Background(), 202)
	if err != nil {
		t.Fatalf("districts: %v", err)
	}
	if len(districts) != 1 || districts[0].DistrictID != 1442 {
		t.Fatalf("unexpected districts: %+v", districts)
	}

	if _, err := svc.Districts(context.Background(), 0); err == nil {
		t.Fatal("missing province id must be rejected")
	}
}

func TestQuoteCachesFee(t *testing.T) {
	t.Parallel()

	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req FeeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode fee request: %v", err)
		}
		if req.ServiceID != 53321 || req.FromDistrictID != 1450 {
			t.Errorf("config defaults must fill the request: %+v", req)
		}
		if req.Weight == 0 {
			t.Error("parcel defaults must be set")
		}
		ghnRespond(w, map[string]int64{"total": 36300})
	})

	cache := newFakeQuoteCache()
	svc := newTestService(t, handler, cache)
	input := QuoteInput{ToDistrictID: 1442, ToWardCode: "21211"}

	fee, err := svc.Quote(context.Background(), input)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if fee != 36300 {
		t.Fatalf("unexpected fee: %d", fee)
	}

	fee, err = svc.Quote(context.Background(), input)
	if err != nil {
		t.Fatalf("second quote: %v", err)
	}
	if fee != 36300 {
		t.Fatalf("unexpected cached fee: %d", fee)
	}
	if calls != 1 {
		t.Fatalf("second quote must come from the cache, provider saw %d calls", calls)
	}

	// A different destination is a different quote.
	if _, err := svc.Quote(context.Background(), QuoteInput{ToDistrictID: 1443, ToWardCode: "21308"}); err != nil {
		t.Fatalf("third quote: %v", err)
	}
	if calls != 2 {
		t.Fatalf("new destination must hit the provider, saw %d calls", calls)
	}
}

func TestQuoteProviderRejection(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"code": 400, "message": "ward not found"})
	})

	svc := newTestService(t, handler, nil)
	_, err := svc.Quote(context.Background(), QuoteInput{ToDistrictID: 1442, ToWardCode: "bad"})
	if err == nil {
		t.Fatal("expected provider rejection")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestQuoteValidatesDestination(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("provider must not be called")
	}), nil)

	_, err := svc.Quote(context.Background(), QuoteInput{})
	if err == nil {
		t.Fatal("expected validation error")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("unexpected error: %v", err)
	}
}
