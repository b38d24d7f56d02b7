package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"mjolobid-backend/internal/config"

	"github.com/shopspring/decimal"
)

// tokenSkew is how long before expiry a cached token is refreshed,
// capped at a tenth of the token lifetime
const tokenSkew = 30 * time.Second

var (
	ecocashCompleted = []string{"SUCCESS", "COMPLETED"}
	ecocashFailed    = []string{"FAILED", "CANCELLED"}
)

// EcoCashClient talks to the EcoCash merchant API. EcoCash pushes a USSD prompt
// to the customer's phone, so there is no redirect.
type EcoCashClient struct {
	cfg    config.EcoCashConfig
	client *http.Client
	now    func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewEcoCash creates an EcoCash client
func NewEcoCash(cfg config.EcoCashConfig, client *http.Client) *EcoCashClient {
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.ecocash.co.zw"
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return &EcoCashClient{cfg: cfg, client: client, now: time.Now}
}

func (c *EcoCashClient) Name() string { return EcoCash }

// accessToken returns a cached OAuth token, fetching a new one shortly before expiry
func (c *EcoCashClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
	}
	body, err := send(ctx, c.client, EcoCash, false, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL+"/oauth/token", strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to authenticate with EcoCash: %w", err)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tok); err != nil || tok.AccessToken == "" {
		return "", fmt.Errorf("failed to authenticate with EcoCash: bad token response")
	}
	ttl := time.Duration(tok.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	skew := min(tokenSkew, ttl/10)
	c.token = tok.AccessToken
	c.expiresAt = c.now().Add(ttl - skew)
	return c.token, nil
}

func (c *EcoCashClient) Initiate(ctx context.Context, p PaymentRequest) (*PaymentResult, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	description := p.Description
	if description == "" {
		description = "Payment for " + p.Reference
	}
	payload, err := json.Marshal(map[string]string{
		"merchant_id":    c.cfg.MerchantCode,
		"amount":         p.Amount.StringFixed(2),
		"currency":       p.Currency,
		"reference":      p.Reference,
		"customer_phone": FormatPhone(p.Phone),
		"description":    description,
		"callback_url":   p.CallbackURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode EcoCash payment: %w", err)
	}

	body, err := send(ctx, c.client, EcoCash, false, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL+"/api/v1/payments", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initiate EcoCash payment: %w", err)
	}

	var resp struct {
		PaymentReference string `json:"payment_reference"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode EcoCash response: %w", err)
	}
	ref := resp.PaymentReference
	if ref == "" {
		ref = p.Reference
	}
	return &PaymentResult{
		GatewayReference: ref,
		Instructions:     "Payment request sent. Please check your phone and approve the EcoCash prompt.",
		Raw:              body,
	}, nil
}

type ecocashPayment struct {
	PaymentReference string          `json:"payment_reference"`
	Reference        string          `json:"reference"`
	Status           string          `json:"status"`
	Amount           decimal.Decimal `json:"amount"`
}

func (c *EcoCashClient) Verify(ctx context.Context, gatewayReference string) (*PaymentStatus, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	body, err := send(ctx, c.client, EcoCash, true, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.cfg.APIURL+"/api/v1/payments/"+url.PathEscape(gatewayReference), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to verify EcoCash payment: %w", err)
	}

	var p ecocashPayment
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("failed to decode EcoCash status: %w", err)
	}
	return &PaymentStatus{
		Reference: gatewayReference,
		Status:    mapStatus(p.Status, ecocashCompleted, ecocashFailed),
		Amount:    p.Amount,
		Verified:  true,
		Raw:       body,
	}, nil
}

// ParseWebhook reads an EcoCash callback. EcoCash callbacks are unsigned, so the
// result is not Verified and must be confirmed with Verify.
func (c *EcoCashClient) ParseWebhook(body []byte) (*PaymentStatus, error) {
	var p ecocashPayment
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("failed to decode EcoCash callback: %w", err)
	}
	ref := p.Reference
	if ref == "" {
		ref = p.PaymentReference
	}
	if ref == "" {
		return nil, fmt.Errorf("EcoCash callback has no reference")
	}
	return &PaymentStatus{
		Reference: ref,
		Status:    mapStatus(p.Status, ecocashCompleted, ecocashFailed),
		Amount:    p.Amount,
		Raw:       body,
	}, nil
}
