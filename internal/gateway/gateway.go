// Package gateway holds the clients of the Zimbabwean payment gateways.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"mjolobid-backend/internal/config"
	"mjolobid-backend/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
)

const (
	EcoCash = "ecocash"
	Paynow  = "paynow"
	Pesepay = "pesepay"
)

// ErrBadSignature is returned when a gateway response or callback fails its hash check
var ErrBadSignature = errors.New("gateway signature mismatch")

// PaymentRequest asks a gateway to collect money from a customer
type PaymentRequest struct {
	Amount      decimal.Decimal
	Currency    string
	Reference   string
	Phone       string
	Email       string
	Description string
	CallbackURL string
	ReturnURL   string
}

// PaymentResult is what the gateway answered to an initiation
type PaymentResult struct {
	GatewayReference string          `json:"gateway_reference"`
	RedirectURL      string          `json:"redirect_url,omitempty"`
	Instructions     string          `json:"instructions,omitempty"`
	Raw              json.RawMessage `json:"-"`
}

// PaymentStatus is a gateway's view of a payment. Status is one of the ledger
// statuses PENDING, COMPLETED or FAILED.
type PaymentStatus struct {
	Reference string
	Status    string
	Amount    decimal.Decimal
	// Verified is set when the payload was authenticated by a signature
	Verified bool
	Raw      json.RawMessage
}

// Gateway is implemented by every payment provider client
type Gateway interface {
	Name() string
	Initiate(ctx context.Context, req PaymentRequest) (*PaymentResult, error)
	Verify(ctx context.Context, gatewayReference string) (*PaymentStatus, error)
	ParseWebhook(body []byte) (*PaymentStatus, error)
}

// Registry maps gateway names to the enabled clients
type Registry struct {
	gateways map[string]Gateway
}

// NewRegistry builds clients for the gateways enabled in cfg
func NewRegistry(cfg config.GatewaysConfig, client *http.Client) *Registry {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	r := &Registry{gateways: make(map[string]Gateway)}
	if cfg.EcoCash.Enabled {
		r.Register(NewEcoCash(cfg.EcoCash, client))
	}
	if cfg.Paynow.Enabled {
		r.Register(NewPaynow(cfg.Paynow, client))
	}
	if cfg.Pesepay.Enabled {
		r.Register(NewPesepay(cfg.Pesepay, client))
	}
	return r
}

// Register adds or replaces a gateway
func (r *Registry) Register(g Gateway) {
	r.gateways[g.Name()] = g
}

// Get returns the gateway called name
func (r *Registry) Get(name string) (Gateway, error) {
	g, ok := r.gateways[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not enabled", models.ErrGatewayUnavailable, name)
	}
	return g, nil
}

// Names lists the enabled gateways in alphabetical order
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FormatPhone normalises a Zimbabwean number to +263 form
func FormatPhone(phone string) string {
	phone = strings.NewReplacer(" ", "", "-", "").Replace(phone)
	switch {
	case strings.HasPrefix(phone, "+263"):
		return phone
	case strings.HasPrefix(phone, "263"):
		return "+" + phone
	case strings.HasPrefix(phone, "0"):
		return "+263" + phone[1:]
	}
	return "+263" + phone
}

// mapStatus converts a provider status word into a ledger status
func mapStatus(status string, completed, failed []string) string {
	s := strings.ToUpper(strings.TrimSpace(status))
	for _, c := range completed {
		if s == c {
			return models.TxCompleted
		}
	}
	for _, f := range failed {
		if s == f {
			return models.TxFailed
		}
	}
	return models.TxPending
}

// retryBackoff bounds status polling to three attempts
var retryBackoff = func() retry.Backoff {
	return retry.WithMaxRetries(2, retry.NewConstant(500*time.Millisecond))
}

// httpError is a non-2xx gateway answer
type httpError struct {
	gateway string
	code    int
	body    string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d: %s", e.gateway, e.code, e.body)
}

func (e *httpError) Unwrap() error { return models.ErrGatewayUnavailable }

// send performs the request built by build and returns the body of a 2xx answer.
// With retryable set, transport failures and server errors are retried.
func send(ctx context.Context, client *http.Client, gateway string, retryable bool, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	if !retryable {
		body, _, err := sendOnce(ctx, client, gateway, build)
		return body, err
	}

	var body []byte
	err := retry.Do(ctx, retryBackoff(), func(ctx context.Context) error {
		b, transient, err := sendOnce(ctx, client, gateway, build)
		if err != nil {
			if transient {
				return retry.RetryableError(err)
			}
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func sendOnce(ctx context.Context, client *http.Client, gateway string, build func(ctx context.Context) (*http.Request, error)) (body []byte, transient bool, err error) {
	req, err := build(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to build %s request: %w", gateway, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("gateway", gateway).Msg("Gateway request failed")
		return nil, true, fmt.Errorf("%w: %s: %v", models.ErrGatewayUnavailable, gateway, err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read %s response: %w", gateway, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		herr := &httpError{gateway: gateway, code: resp.StatusCode, body: truncate(string(body), 200)}
		return nil, resp.StatusCode >= 500, herr
	}
	return body, false, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// formJSON renders key=value pairs as a JSON object for storage in the ledger
func formJSON(values url.Values) json.RawMessage {
	flat := make(map[string]string, len(values))
	for k := range values {
		flat[k] = values.Get(k)
	}
	b, _ := json.Marshal(flat)
	return b
}
