package gateway

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"mjolobid-backend/internal/config"
)

var (
	pesepayCompleted = []string{"SUCCESS", "COMPLETED"}
	pesepayFailed    = []string{"FAILED", "CANCELLED", "DECLINED"}
)

// PesepayClient integrates Pesepay's JSON API. Requests and callbacks carry a
// SHA256 signature over the sorted payload.
type PesepayClient struct {
	cfg    config.PesepayConfig
	client *http.Client
}

func NewPesepay(cfg config.PesepayConfig, client *http.Client) *PesepayClient {
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.pesepay.com"
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return &PesepayClient{cfg: cfg, client: client}
}

func (c *PesepayClient) Name() string { return Pesepay }

// signature hashes key+value pairs in key order followed by the secret key
func (c *PesepayClient) signature(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == "signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString(fields[k])
	}
	sb.WriteString(c.cfg.SecretKey)
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

func (c *PesepayClient) Initiate(ctx context.Context, p PaymentRequest) (*PaymentResult, error) {
	description := p.Description
	if description == "" {
		description = "Payment for " + p.Reference
	}
	fields := map[string]string{
		"amount":         p.Amount.StringFixed(2),
		"currency":       p.Currency,
		"reference":      p.Reference,
		"customer_phone": FormatPhone(p.Phone),
		"customer_email": p.Email,
		"description":    description,
		"return_url":     p.ReturnURL,
		"result_url":     p.CallbackURL,
	}
	fields["signature"] = c.signature(fields)

	payload := make(map[string]any, len(fields))
	for k, v := range fields {
		payload[k] = v
	}
	payload["amount"] = json.Number(fields["amount"])
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode Pesepay payment: %w", err)
	}

	body, err := send(ctx, c.client, Pesepay, false, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL+"/api/v1/payments", bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initiate Pesepay payment: %w", err)
	}

	var resp struct {
		PaymentURL       string `json:"payment_url"`
		PaymentReference string `json:"payment_reference"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode Pesepay response: %w", err)
	}
	ref := resp.PaymentReference
	if ref == "" {
		ref = p.Reference
	}
	return &PaymentResult{
		GatewayReference: ref,
		RedirectURL:      resp.PaymentURL,
		Raw:              body,
	}, nil
}

func (c *PesepayClient) Verify(ctx context.Context, gatewayReference string) (*PaymentStatus, error) {
	body, err := send(ctx, c.client, Pesepay, true, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			c.cfg.APIURL+"/api/v1/payments/"+url.PathEscape(gatewayReference), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to verify Pesepay payment: %w", err)
	}

	fields, err := flatten(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode Pesepay status: %w", err)
	}
	return &PaymentStatus{
		Reference: gatewayReference,
		Status:    mapStatus(fields["status"], pesepayCompleted, pesepayFailed),
		Amount:    parseAmount(fields["amount"]),
		Verified:  true,
		Raw:       body,
	}, nil
}

func (c *PesepayClient) ParseWebhook(body []byte) (*PaymentStatus, error) {
	fields, err := flatten(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode Pesepay callback: %w", err)
	}
	got := fields["signature"]
	if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(c.signature(fields))) != 1 {
		return nil, ErrBadSignature
	}
	ref := fields["reference"]
	if ref == "" {
		return nil, fmt.Errorf("Pesepay callback has no reference")
	}
	return &PaymentStatus{
		Reference: ref,
		Status:    mapStatus(fields["status"], pesepayCompleted, pesepayFailed),
		Amount:    parseAmount(fields["amount"]),
		Verified:  true,
		Raw:       body,
	}, nil
}

// flatten decodes a flat JSON object into strings, keeping numbers as written
func flatten(body []byte) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	fields := make(map[string]string, len(obj))
	for k, v := range obj {
		switch t := v.(type) {
		case nil:
			fields[k] = ""
		case string:
			fields[k] = t
		case json.Number:
			fields[k] = t.String()
		case bool:
			fields[k] = fmt.Sprint(t)
		default:
			b, _ := json.Marshal(t)
			fields[k] = string(b)
		}
	}
	return fields, nil
}
