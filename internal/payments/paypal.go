package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dealmates/backend/config"
)

const (
	paypalSandboxBase = "https://api-m.sandbox.paypal.com"
	paypalLiveBase    = "https://api-m.paypal.com"
)

// ProviderError wraps a failed or timed-out payment provider call.
type ProviderError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("payment provider %s failed: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("payment provider %s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// PayPalClient talks to the PayPal Orders v2 REST API. Tokens from the
// client-credentials grant are cached until shortly before expiry.
type PayPalClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	http         *http.Client
	logger       *zap.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewPayPalClient creates a provider client from config. Calls are bounded
// by the configured timeout so a hung provider cannot hold a request open.
func NewPayPalClient(cfg config.PayPalConfig, logger *zap.Logger) *PayPalClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := paypalSandboxBase
	if cfg.Mode == "live" {
		base = paypalLiveBase
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &PayPalClient{
		baseURL:      base,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		http:         &http.Client{Timeout: timeout},
		logger:       logger,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (p *PayPalClient) token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.accessToken != "" && time.Now().Before(p.tokenExpiry) {
		return p.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", &ProviderError{Op: "token", Err: err}
	}
	req.SetBasicAuth(p.clientID, p.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.http.Do(req)
	if err != nil {
		return "", &ProviderError{Op: "token", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", &ProviderError{Op: "token", StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", body)}
	}
	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", &ProviderError{Op: "token", Err: err}
	}
	p.accessToken = tok.AccessToken
	p.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return p.accessToken, nil
}

type orderAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type purchaseUnit struct {
	Amount orderAmount `json:"amount"`
}

type createOrderRequest struct {
	Intent        string         `json:"intent"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
}

type orderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateOrder requests an AUTHORIZE-intent order for the given amount and
// returns the provider order id. The funds are only held; capture happens at
// settlement.
func (p *PayPalClient) CreateOrder(ctx context.Context, amountCents int, currency string) (string, error) {
	token, err := p.token(ctx)
	if err != nil {
		return "", err
	}

	body := createOrderRequest{
		Intent: "AUTHORIZE",
		PurchaseUnits: []purchaseUnit{{Amount: orderAmount{
			CurrencyCode: currency,
			Value:        fmt.Sprintf("%.2f", float64(amountCents)/100),
		}}},
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return "", &ProviderError{Op: "create order", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v2/checkout/orders", bytes.NewReader(raw))
	if err != nil {
		return "", &ProviderError{Op: "create order", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	resp, err := p.http.Do(req)
	if err != nil {
		return "", &ProviderError{Op: "create order", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", &ProviderError{Op: "create order", StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", respBody)}
	}
	var order orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return "", &ProviderError{Op: "create order", Err: err}
	}
	if order.ID == "" {
		return "", &ProviderError{Op: "create order", Err: fmt.Errorf("empty order id")}
	}
	p.logger.Debug("provider order created", zap.String("order_id", order.ID), zap.Int("amount_cents", amountCents))
	return order.ID, nil
}

// CaptureOrder captures the full authorized amount for an order.
func (p *PayPalClient) CaptureOrder(ctx context.Context, orderID string) error {
	token, err := p.token(ctx)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v2/checkout/orders/"+orderID+"/capture", bytes.NewReader([]byte("{}")))
	if err != nil {
		return &ProviderError{Op: "capture", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return &ProviderError{Op: "capture", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &ProviderError{Op: "capture", StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", respBody)}
	}
	p.logger.Debug("provider capture completed", zap.String("order_id", orderID))
	return nil
}
