package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bloomcart/bloomcart-backend/pkg/config"
	pkgerrors "github.com/bloomcart/bloomcart-backend/pkg/errors"
)

// Province is one GHN master-data province.
type Province struct {
	ProvinceID   int    `json:"ProvinceID"`
	ProvinceName string `json:"ProvinceName"`
}

// District is one GHN master-data district.
type District struct {
	DistrictID   int    `json:"DistrictID"`
	DistrictName string `json:"DistrictName"`
	ProvinceID   int    `json:"ProvinceID"`
}

// Ward is one GHN master-data ward.
type Ward struct {
	WardCode   string `json:"WardCode"`
	WardName   string `json:"WardName"`
	DistrictID int    `json:"DistrictID"`
}

// FeeRequest describes the parcel and destination for a fee calculation.
type FeeRequest struct {
	ServiceID      int    `json:"service_id"`
	FromDistrictID int    `json:"from_district_id"`
	ToDistrictID   int    `json:"to_district_id"`
	ToWardCode     string `json:"to_ward_code"`
	Weight         int    `json:"weight"`
	Length         int    `json:"length"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
}

type feeData struct {
	Total int64 `json:"total"`
}

// Client talks to a GHN-compatible logistics API.
type Client interface {
	Provinces(ctx context.Context) ([]Province, error)
	Districts(ctx context.Context, provinceID int) ([]District, error)
	Wards(ctx context.Context, districtID int) ([]Ward, error)
	Fee(ctx context.Context, req FeeRequest) (int64, error)
}

type ghnClient struct {
	cfg    config.ShippingConfig
	client *http.Client
}

// NewGHNClient wires the GHN API client. The HTTP client is injected so its
// pool and timeouts are owned by the caller.
func NewGHNClient(cfg config.ShippingConfig, client *http.Client) (Client, error) {
	if cfg.BaseURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "shipping base url required")
	}
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "http client required")
	}
	return &ghnClient{cfg: cfg, client: client}, nil
}

// envelope is GHN's uniform response wrapper.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *ghnClient) Provinces(ctx context.Context) ([]Province, error) {
	var provinces []Province
	if err := c.call(ctx, http.MethodGet, "/master-data/province", nil, &provinces); err != nil {
		return nil, err
	}
	return provinces, nil
}

func (c *ghnClient) Districts(ctx context.Context, provinceID int) ([]District, error) {
	body := map[string]int{"province_id": provinceID}
	var districts []District
	if err := c.call(ctx, http.MethodPost, "/master-data/district", body, &districts); err != nil {
		return nil, err
	}
	return districts, nil
}

func (c *ghnClient) Wards(ctx context.Context, districtID int) ([]Ward, error) {
	body := map[string]int{"district_id": districtID}
	var wards []Ward
	if err := c.call(ctx, http.MethodPost, "/master-data/ward", body, &wards); err != nil {
		return nil, err
	}
	return wards, nil
}

func (c *ghnClient) Fee(ctx context.Context, req FeeRequest) (int64, error) {
	if req.ServiceID == 0 {
		req.ServiceID = c.cfg.ServiceID
	}
	if req.FromDistrictID == 0 {
		req.FromDistrictID = c.cfg.FromDistrictID
	}
	var data feeData
	if err := c.call(ctx, http.MethodPost, "/v2/shipping-order/fee", req, &data); err != nil {
		return 0, err
	}
	return data.Total, nil
}

func (c *ghnClient) call(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding shipping request")
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building shipping request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Token", c.cfg.Token)
	if c.cfg.ShopID != 0 {
		req.Header.Set("ShopId", fmt.Sprintf("%d", c.cfg.ShopID))
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "calling shipping provider")
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding shipping response")
	}
	if env.Code != http.StatusOK {
		return pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("shipping provider rejected request: %s", env.Message))
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding shipping payload")
		}
	}
	return nil
}
