package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/bloomcart/bloomcart-backend/pkg/config"
	"github.com/bloomcart/bloomcart-backend/pkg/enums"
	pkgerrors "github.com/bloomcart/bloomcart-backend/pkg/errors"
)

// momoGateway speaks the MoMo v2 create-payment and IPN contracts.
type momoGateway struct {
	cfg    config.MomoConfig
	client *http.Client
}

// NewMomoGateway builds the MoMo integration on a shared pooled HTTP client.
func NewMomoGateway(cfg config.MomoConfig, client *http.Client) (Gateway, error) {
	if cfg.PartnerCode == "" || cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("momo credentials are required")
	}
	if client == nil {
		return nil, fmt.Errorf("http client is required")
	}
	return &momoGateway{cfg: cfg, client: client}, nil
}

func (g *momoGateway) Method() enums.PaymentMethod {
	return enums.PaymentMethodMomo
}

type momoCreateRequest struct {
	PartnerCode string `json:"partnerCode"`
	AccessKey   string `json:"accessKey"`
	RequestID   string `json:"requestId"`
	Amount      string `json:"amount"`
	OrderID     string `json:"orderId"`
	OrderInfo   string `json:"orderInfo"`
	RedirectURL string `json:"redirectUrl"`
	IPNURL      string `json:"ipnUrl"`
	ExtraData   string `json:"extraData"`
	RequestType string `json:"requestType"`
	Signature   string `json:"signature"`
	Lang        string `json:"lang"`
}

type momoCreateResponse struct {
	ResultCode int    `json:"resultCode"`
	Message    string `json:"message"`
	PayURL     string `json:"payUrl"`
}

func (g *momoGateway) CreatePayment(ctx context.Context, req CreateRequest) (*CreateResponse, error) {
	requestID := uuid.NewString()
	amount := strconv.FormatInt(req.Amount, 10)

	raw := fmt.Sprintf(
		"accessKey=%s&amount=%s&extraData=%s&ipnUrl=%s&orderId=%s&orderInfo=%s&partnerCode=%s&redirectUrl=%s&requestId=%s&requestType=%s",
		g.cfg.AccessKey, amount, "", g.cfg.NotifyURL, req.OrderID.String(), req.OrderInfo,
		g.cfg.PartnerCode, g.cfg.ReturnURL, requestID, g.cfg.RequestType,
	)

	body := momoCreateRequest{
		PartnerCode: g.cfg.PartnerCode,
		AccessKey:   g.cfg.AccessKey,
		RequestID:   requestID,
		Amount:      amount,
		OrderID:     req.OrderID.String(),
		OrderInfo:   req.OrderInfo,
		RedirectURL: g.cfg.ReturnURL,
		IPNURL:      g.cfg.NotifyURL,
		ExtraData:   "",
		RequestType: g.cfg.RequestType,
		Signature:   signHMACSHA256(raw, g.cfg.SecretKey),
		Lang:        "vi",
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding momo request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building momo request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "calling momo")
	}
	defer resp.Body.Close()

	var decoded momoCreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding momo response")
	}
	if decoded.ResultCode != 0 || decoded.PayURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("momo rejected payment: %s", decoded.Message))
	}
	return &CreateResponse{PayURL: decoded.PayURL}, nil
}

// VerifyCallback checks the IPN signature and maps the result. resultCode 0
// is the only success value.
func (g *momoGateway) VerifyCallback(params url.Values) (*CallbackResult, error) {
	signature := params.Get("signature")
	if signature == "" {
		return nil, pkgerrors.New(pkgerrors.CodeCallbackIntegrity, "missing momo signature")
	}

	raw := fmt.Sprintf(
		"accessKey=%s&amount=%s&extraData=%s&message=%s&orderId=%s&orderInfo=%s&orderType=%s&partnerCode=%s&payType=%s&requestId=%s&responseTime=%s&resultCode=%s&transId=%s",
		g.cfg.AccessKey, params.Get("amount"), params.Get("extraData"), params.Get("message"),
		params.Get("orderId"), params.Get("orderInfo"), params.Get("orderType"),
		params.Get("partnerCode"), params.Get("payType"), params.Get("requestId"),
		params.Get("responseTime"), params.Get("resultCode"), params.Get("transId"),
	)
	expected := signHMACSHA256(raw, g.cfg.SecretKey)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, pkgerrors.New(pkgerrors.CodeCallbackIntegrity, "momo signature mismatch")
	}

	orderID, err := uuid.Parse(params.Get("orderId"))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeCallbackIntegrity, "invalid momo order id")
	}
	amount, err := strconv.ParseInt(params.Get("amount"), 10, 64)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeCallbackIntegrity, "invalid momo amount")
	}

	resultCode := params.Get("resultCode")
	return &CallbackResult{
		OrderID:       orderID,
		Success:       resultCode == "0",
		GatewayTxnRef: params.Get("transId"),
		Amount:        amount,
		ResponseCode:  resultCode,
		Message:       params.Get("message"),
	}, nil
}

func signHMACSHA256(raw, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}
