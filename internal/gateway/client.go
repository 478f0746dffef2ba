package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// Client talks to a Flutterwave-style payment API over HTTPS.
type Client struct {
	baseURL   string
	secretKey string
	http      *http.Client
}

func NewClient(baseURL, secretKey string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		http:      &http.Client{},
	}
}

type apiEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	if c.secretKey == "" {
		return nil, fmt.Errorf("GATEWAY_SECRET_KEY missing")
	}
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gateway error (%d): %s", resp.StatusCode, string(b))
	}

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, err
	}
	if env.Status != "success" {
		return nil, fmt.Errorf("gateway rejected request: %s", env.Message)
	}
	return env.Data, nil
}

func (c *Client) InitializeCharge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	data, err := c.do(ctx, http.MethodPost, "/payments", req)
	if err != nil {
		return nil, err
	}
	var out struct {
		Link string `json:"link"`
		ID   any    `json:"id"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &Charge{PaymentLink: out.Link, GatewayTransactionID: asString(out.ID)}, nil
}

func (c *Client) VerifyByID(ctx context.Context, gatewayTransactionID string) (*Verification, error) {
	data, err := c.do(ctx, http.MethodGet, "/transactions/"+url.PathEscape(gatewayTransactionID)+"/verify", nil)
	if err != nil {
		return nil, err
	}
	return decodeVerification(data)
}

func (c *Client) VerifyByReference(ctx context.Context, reference string) (*Verification, error) {
	data, err := c.do(ctx, http.MethodGet, "/transactions/verify_by_reference?tx_ref="+url.QueryEscape(reference), nil)
	if err != nil {
		return nil, err
	}
	return decodeVerification(data)
}

func (c *Client) CancelPlan(ctx context.Context, gatewayPlanID string) error {
	_, err := c.do(ctx, http.MethodPut, "/payment-plans/"+url.PathEscape(gatewayPlanID)+"/cancel", nil)
	return err
}

func decodeVerification(data json.RawMessage) (*Verification, error) {
	var raw struct {
		Status   string          `json:"status"`
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
		TxRef    string          `json:"tx_ref"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	v := &Verification{
		Amount:           raw.Amount,
		Currency:         raw.Currency,
		GatewayReference: raw.TxRef,
	}
	switch strings.ToLower(raw.Status) {
	case "successful", "success":
		v.Status = ChargeStatusSuccessful
	case "failed":
		v.Status = ChargeStatusFailed
	default:
		v.Status = ChargeStatusPending
	}
	return v, nil
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%.0f", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
