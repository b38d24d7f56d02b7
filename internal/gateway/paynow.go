package gateway

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"

	"mjolobid-backend/internal/config"
	"mjolobid-backend/internal/models"

	"github.com/shopspring/decimal"
)

var (
	paynowCompleted = []string{"PAID", "AWAITING DELIVERY", "DELIVERED"}
	paynowFailed    = []string{"CANCELLED", "FAILED", "DISPUTED"}
)

// PaynowClient integrates the Paynow aggregator, which speaks urlencoded
// key=value bodies protected by a SHA512 hash.
type PaynowClient struct {
	cfg    config.PaynowConfig
	client *http.Client
}

func NewPaynow(cfg config.PaynowConfig, client *http.Client) *PaynowClient {
	if cfg.APIURL == "" {
		cfg.APIURL = "https://www.paynow.co.zw/Interface/API"
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	return &PaynowClient{cfg: cfg, client: client}
}

func (c *PaynowClient) Name() string { return Paynow }

// hash concatenates the values in key order, appends the integration key and
// returns the upper case SHA512 hex digest. The hash field itself is skipped.
func (c *PaynowClient) hash(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if strings.EqualFold(k, "hash") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(values.Get(k))
	}
	sb.WriteString(c.cfg.IntegrationKey)
	sum := sha512.Sum512([]byte(sb.String()))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func (c *PaynowClient) checkHash(values url.Values) error {
	got := values.Get("hash")
	want := c.hash(values)
	if got == "" || subtle.ConstantTimeCompare([]byte(strings.ToUpper(got)), []byte(want)) != 1 {
		return ErrBadSignature
	}
	return nil
}

func (c *PaynowClient) Initiate(ctx context.Context, p PaymentRequest) (*PaymentResult, error) {
	description := p.Description
	if description == "" {
		description = "Payment for " + p.Reference
	}
	resultURL := p.CallbackURL
	if resultURL == "" {
		resultURL = p.ReturnURL
	}
	form := url.Values{
		"id":             {c.cfg.IntegrationID},
		"reference":      {p.Reference},
		"amount":         {p.Amount.StringFixed(2)},
		"additionalinfo": {description},
		"returnurl":      {p.ReturnURL},
		"resulturl":      {resultURL},
		"authemail":      {p.Email},
		"status":         {"Message"},
	}
	form.Set("hash", c.hash(form))

	body, err := send(ctx, c.client, Paynow, false, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL+"/InitiateTransaction", strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initiate Paynow payment: %w", err)
	}

	resp, err := url.ParseQuery(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode Paynow response: %w", err)
	}
	if !strings.EqualFold(resp.Get("status"), "Ok") {
		msg := resp.Get("error")
		if msg == "" {
			msg = "payment initiation failed"
		}
		return nil, fmt.Errorf("%w: paynow: %s", models.ErrGatewayUnavailable, msg)
	}
	if err := c.checkHash(resp); err != nil {
		return nil, fmt.Errorf("failed to verify Paynow response: %w", err)
	}

	ref := p.Reference
	if poll := resp.Get("pollurl"); poll != "" {
		ref = path.Base(poll)
	}
	return &PaymentResult{
		GatewayReference: ref,
		RedirectURL:      resp.Get("browserurl"),
		Raw:              formJSON(resp),
	}, nil
}

func (c *PaynowClient) Verify(ctx context.Context, gatewayReference string) (*PaymentStatus, error) {
	body, err := send(ctx, c.client, Paynow, true, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet,
			c.cfg.APIURL+"/GetTransactionStatus/"+url.PathEscape(gatewayReference), nil)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to verify Paynow payment: %w", err)
	}

	resp, err := url.ParseQuery(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode Paynow status: %w", err)
	}
	return &PaymentStatus{
		Reference: gatewayReference,
		Status:    mapStatus(resp.Get("status"), paynowCompleted, paynowFailed),
		Amount:    parseAmount(resp.Get("amount")),
		Verified:  true,
		Raw:       formJSON(resp),
	}, nil
}

// ParseWebhook validates a Paynow result callback. The reference is the
// merchant reference sent at initiation.
func (c *PaynowClient) ParseWebhook(body []byte) (*PaymentStatus, error) {
	values, err := url.ParseQuery(strings.TrimSpace(string(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode Paynow callback: %w", err)
	}
	if err := c.checkHash(values); err != nil {
		return nil, err
	}
	ref := values.Get("reference")
	if ref == "" {
		return nil, fmt.Errorf("Paynow callback has no reference")
	}
	return &PaymentStatus{
		Reference: ref,
		Status:    mapStatus(values.Get("status"), paynowCompleted, paynowFailed),
		Amount:    parseAmount(values.Get("amount")),
		Verified:  true,
		Raw:       formJSON(values),
	}, nil
}

func parseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}
