package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bloomcart/bloomcart-backend/pkg/config"
	"github.com/bloomcart/bloomcart-backend/pkg/enums"
	pkgerrors "github.com/bloomcart/bloomcart-backend/pkg/errors"
)

// vnpayGateway builds VNPay hosted-page redirects and verifies return
// callbacks. The gateway is redirect-only so no HTTP client is needed.
type vnpayGateway struct {
	cfg config.VNPayConfig
	now func() time.Time
}

// NewVNPayGateway builds the VNPay integration.
func NewVNPayGateway(cfg config.VNPayConfig) (Gateway, error) {
	if cfg.TmnCode == "" || cfg.HashSecret == "" {
		return nil, fmt.Errorf("vnpay credentials are required")
	}
	return &vnpayGateway{cfg: cfg, now: time.Now}, nil
}

func (g *vnpayGateway) Method() enums.PaymentMethod {
	return enums.PaymentMethodVNPay
}

// CreatePayment assembles the signed redirect URL. VNPay amounts are the VND
// value multiplied by 100.
func (g *vnpayGateway) CreatePayment(_ context.Context, req CreateRequest) (*CreateResponse, error) {
	params := url.Values{}
	params.Set("vnp_Version", g.cfg.Version)
	params.Set("vnp_Command", "pay")
	params.Set("vnp_TmnCode", g.cfg.TmnCode)
	params.Set("vnp_Amount", strconv.FormatInt(req.Amount*100, 10))
	params.Set("vnp_CurrCode", "VND")
	params.Set("vnp_TxnRef", req.OrderID.String())
	params.Set("vnp_OrderInfo", req.OrderInfo)
	params.Set("vnp_OrderType", "other")
	params.Set("vnp_Locale", g.cfg.Locale)
	params.Set("vnp_ReturnUrl", g.cfg.ReturnURL)
	params.Set("vnp_IpAddr", req.ClientIP)
	params.Set("vnp_CreateDate", g.now().Format("20060102150405"))

	query := encodeSorted(params)
	secure := signHMACSHA512(query, g.cfg.HashSecret)
	return &CreateResponse{
		PayURL: g.cfg.Endpoint + "?" + query + "&vnp_SecureHash=" + secure,
	}, nil
}

// VerifyCallback recomputes the signature over every vnp_ parameter except
// the hash fields themselves.
func (g *vnpayGateway) VerifyCallback(params url.Values) (*CallbackResult, error) {
	received := params.Get("vnp_SecureHash")
	if received == "" {
		return nil, pkgerrors.New(pkgerrors.CodeCallbackIntegrity, "missing vnpay secure hash")
	}

	signable := url.Values{}
	for key, values := range params {
		if key == "vnp_SecureHash" || key == "vnp_SecureHashType" {
			continue
		}
		if len(values) > 0 {
			signable.Set(key, values[0])
		}
	}
	expected := signHMACSHA512(encodeSorted(signable), g.cfg.HashSecret)
	if !hmac.Equal([]byte(strings.ToLower(expected)), []byte(strings.ToLower(received))) {
		return nil, pkgerrors.New(pkgerrors.CodeCallbackIntegrity, "vnpay signature mismatch")
	}

	orderID, err := uuid.Parse(params.Get("vnp_TxnRef"))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeCallbackIntegrity, "invalid vnpay txn ref")
	}
	rawAmount, err := strconv.ParseInt(params.Get("vnp_Amount"), 10, 64)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeCallbackIntegrity, "invalid vnpay amount")
	}

	responseCode := params.Get("vnp_ResponseCode")
	return &CallbackResult{
		OrderID:       orderID,
		Success:       responseCode == "00",
		GatewayTxnRef: params.Get("vnp_TransactionNo"),
		Amount:        rawAmount / 100,
		ResponseCode:  responseCode,
		Message:       params.Get("vnp_OrderInfo"),
	}, nil
}

// encodeSorted renders params as key=value pairs in ascending key order with
// query escaping, the exact form VNPay signs.
func encodeSorted(params url.Values) string {
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
	return builder.String()
}

func signHMACSHA512(raw, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}
