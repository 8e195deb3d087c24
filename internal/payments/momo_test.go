package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/uuid"

	"github.com/bloomcart/bloomcart-backend/pkg/config"
	pkgerrors "github.com/bloomcart/bloomcart-backend/pkg/errors"
)

func testMomoConfig(endpoint string) config.MomoConfig {
	return config.MomoConfig{
		Endpoint:    endpoint,
		PartnerCode: "MOMOTEST",
		AccessKey:   "access-key",
		SecretKey:   "secret-key",
		ReturnURL:   "https://shop.example.com/payments/momo/return",
		NotifyURL:   "https://shop.example.com/payments/momo/callback",
		RequestType: "captureWallet",
	}
}

func signedMomoParams(secret string, overrides map[string]string) url.Values {
	values := map[string]string{
		"partnerCode":  "MOMOTEST",
		"orderId":      uuid.NewString(),
		"requestId":    uuid.NewString(),
		"amount":       "250000",
		"orderInfo":    "flowers",
		"orderType":    "momo_wallet",
		"transId":      "2147483999",
		"resultCode":   "0",
		"message":      "Successful.",
		"payType":      "qr",
		"responseTime": "1742102030000",
		"extraData":    "",
	}
	for key, value := range overrides {
		values[key] = value
	}

	raw := fmt.Sprintf(
		"accessKey=%s&amount=%s&extraData=%s&message=%s&orderId=%s&orderInfo=%s&orderType=%s&partnerCode=%s&payType=%s&requestId=%s&responseTime=%s&resultCode=%s&transId=%s",
		"access-key", values["amount"], values["extraData"], values["message"],
		values["orderId"], values["orderInfo"], values["orderType"],
		values["partnerCode"], values["payType"], values["requestId"],
		values["responseTime"], values["resultCode"], values["transId"],
	)

	params := url.Values{}
	for key, value := range values {
		params.Set(key, value)
	}
	params.Set("signature", signHMACSHA256(raw, secret))
	return params
}

func TestMomoCreatePayment(t *testing.T) {
	t.Parallel()

	var received momoCreateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(momoCreateResponse{
			ResultCode: 0,
			PayURL:     "https://test-payment.momo.vn/pay/abc123",
		})
	}))
	defer server.Close()

	gateway, err := NewMomoGateway(testMomoConfig(server.URL), server.Client())
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}

	orderID := uuid.New()
	resp, err := gateway.CreatePayment(context.Background(), CreateRequest{
		OrderID:   orderID,
		Amount:    250000,
		OrderInfo: "flowers",
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if resp.PayURL != "https://test-payment.momo.vn/pay/abc123" {
		t.Fatalf("unexpected pay url: %s", resp.PayURL)
	}
	if received.OrderID != orderID.String() || received.Amount != "250000" {
		t.Fatalf("unexpected outbound request: %+v", received)
	}
	if received.Signature == "" {
		t.Fatal("request must be signed")
	}
}

func TestMomoCreatePaymentRejected(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(momoCreateResponse{ResultCode: 41, Message: "duplicate order"})
	}))
	defer server.Close()

	gateway, err := NewMomoGateway(testMomoConfig(server.URL), server.Client())
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}

	_, err = gateway.CreatePayment(context.Background(), CreateRequest{OrderID: uuid.New(), Amount: 1000})
	if err == nil {
		t.Fatal("expected error for non-zero result code")
	}
}

func TestMomoVerifyCallback(t *testing.T) {
	t.Parallel()

	gateway, err := NewMomoGateway(testMomoConfig("https://unused"), http.DefaultClient)
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}

	orderID := uuid.New()
	params := signedMomoParams("secret-key", map[string]string{"orderId": orderID.String()})

	result, err := gateway.VerifyCallback(params)
	if err != nil {
		t.Fatalf("verify callback: %v", err)
	}
	if !result.Success || result.OrderID != orderID {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.GatewayTxnRef != "2147483999" || result.Amount != 250000 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestMomoVerifyCallbackFailureCode(t *testing.T) {
	t.Parallel()

	gateway, err := NewMomoGateway(testMomoConfig("https://unused"), http.DefaultClient)
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}

	params := signedMomoParams("secret-key", map[string]string{
		"orderId":    uuid.NewString(),
		"resultCode": "1006",
		"message":    "user cancelled",
	})
	result, err := gateway.VerifyCallback(params)
	if err != nil {
		t.Fatalf("verify callback: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure for non-zero result code")
	}
}

func TestMomoVerifyCallbackRejectsBadSignature(t *testing.T) {
	t.Parallel()

	gateway, err := NewMomoGateway(testMomoConfig("https://unused"), http.DefaultClient)
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}

	params := signedMomoParams("wrong-secret", nil)
	_, err = gateway.VerifyCallback(params)
	if err == nil {
		t.Fatal("expected signature mismatch")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeCallbackIntegrity {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDispatcherRoutesByMethod(t *testing.T) {
	t.Parallel()

	cod := NewCODGateway()
	dispatcher, err := NewDispatcher(cod)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	gateway, err := dispatcher.For(cod.Method())
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if gateway.Method() != cod.Method() {
		t.Fatal("wrong gateway returned")
	}

	if _, err := dispatcher.For("momo"); err == nil {
		t.Fatal("expected error for unregistered method")
	}
	if _, err := NewDispatcher(cod, NewCODGateway()); err == nil {
		t.Fatal("expected error for duplicate method")
	}
}
