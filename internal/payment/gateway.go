package payment

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/devrup/organics-api/internal/models"
)

var (
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
)

type InitiateResult struct {
	RedirectURL     string
	MerchantOrderID string
	GatewayTxnID    string
}

type StatusResult struct {
	State       string
	AmountMinor int64
	ErrorCode   string
	Raw         json.RawMessage
}

type WebhookPayload struct {
	Event           string          `json:"event"`
	State           string          `json:"state"`
	MerchantOrderID string          `json:"merchantOrderId"`
	TransactionID   string          `json:"transactionId"`
	AmountMinor     int64           `json:"amount"`
	Raw             json.RawMessage `json:"-"`
}

// Gateway is the boundary to the external payment processor. It is injected
// into handlers and the reconciler so tests can substitute a fake.
type Gateway interface {
	InitiatePayment(ctx context.Context, amountMinor int64, merchantOrderID, redirectURL string) (*InitiateResult, error)
	CheckStatus(ctx context.Context, merchantOrderID string) (*StatusResult, error)
	VerifyWebhook(authHeader string, body []byte) (*WebhookPayload, error)
}

// MapState translates a gateway-reported state into the internal three-valued
// transaction status. Anything unrecognized stays PENDING.
func MapState(gatewayState string) string {
	switch strings.ToUpper(gatewayState) {
	case "COMPLETED", "SUCCESS":
		return models.TxnStatusSuccess
	case "FAILED":
		return models.TxnStatusFailed
	default:
		return models.TxnStatusPending
	}
}

type ClientConfig struct {
	BaseURL         string
	ClientID        string
	ClientSecret    string
	WebhookUser     string
	WebhookPassword string
}

// Client talks to the gateway's REST API. Token fetch and request shapes
// follow the gateway's standard checkout contract.
type Client struct {
	cfg  ClientConfig
	http *resty.Client
}

func NewClient(cfg ClientConfig) *Client {
	return &Client{
		cfg:  cfg,
		http: resty.New().SetBaseURL(cfg.BaseURL).SetTimeout(30 * time.Second),
	}
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	if c.cfg.ClientID == "" || c.cfg.ClientSecret == "" {
		return "", fmt.Errorf("gateway client credentials are not set")
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetBody(map[string]string{
			"client_id":     c.cfg.ClientID,
			"client_secret": c.cfg.ClientSecret,
		}).
		Post("/v1/oauth/token")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if resp.StatusCode() != 200 {
		return "", fmt.Errorf("%w: token request failed with status %d: %s", ErrGatewayUnavailable, resp.StatusCode(), resp.Body())
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("token not found in response")
	}
	return body.AccessToken, nil
}

func (c *Client) InitiatePayment(ctx context.Context, amountMinor int64, merchantOrderID, redirectURL string) (*InitiateResult, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]any{
		"merchantOrderId": merchantOrderID,
		"amount":          amountMinor,
		"paymentFlow": map[string]any{
			"type":        "PG_CHECKOUT",
			"redirectUrl": redirectURL,
		},
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "O-Bearer "+token).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetBody(payload).
		Post("/checkout/v2/pay")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("%w: pay request failed with status %d: %s", ErrGatewayUnavailable, resp.StatusCode(), resp.Body())
	}

	var body struct {
		RedirectURL string `json:"redirectUrl"`
		OrderID     string `json:"orderId"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("invalid response from payment gateway: %w", err)
	}
	if body.RedirectURL == "" {
		return nil, fmt.Errorf("incomplete response from payment gateway")
	}

	return &InitiateResult{
		RedirectURL:     body.RedirectURL,
		MerchantOrderID: merchantOrderID,
		GatewayTxnID:    body.OrderID,
	}, nil
}

func (c *Client) CheckStatus(ctx context.Context, merchantOrderID string) (*StatusResult, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "O-Bearer "+token).
		SetHeader("Accept", "application/json").
		Get("/checkout/v2/order/" + merchantOrderID + "/status")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("%w: status request failed with status %d: %s", ErrGatewayUnavailable, resp.StatusCode(), resp.Body())
	}

	var body struct {
		State     string `json:"state"`
		Amount    int64  `json:"amount"`
		ErrorCode string `json:"errorCode"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("invalid response from payment gateway: %w", err)
	}
	if body.State == "" {
		return nil, fmt.Errorf("state missing in gateway response")
	}

	return &StatusResult{
		State:       body.State,
		AmountMinor: body.Amount,
		ErrorCode:   body.ErrorCode,
		Raw:         json.RawMessage(resp.Body()),
	}, nil
}

// VerifyWebhook authenticates an inbound callback. The gateway signs
// callbacks with SHA256(username:password) in the Authorization header; an
// invalid or missing signature fails closed.
func (c *Client) VerifyWebhook(authHeader string, body []byte) (*WebhookPayload, error) {
	if authHeader == "" {
		return nil, ErrInvalidSignature
	}

	sum := sha256.Sum256([]byte(c.cfg.WebhookUser + ":" + c.cfg.WebhookPassword))
	expected := hex.EncodeToString(sum[:])
	got := strings.TrimPrefix(strings.ToLower(authHeader), "sha256 ")
	if subtle.ConstantTimeCompare([]byte(expected), []byte(got)) != 1 {
		return nil, ErrInvalidSignature
	}

	var envelope struct {
		Event   string          `json:"event"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("invalid webhook body: %w", err)
	}

	var p WebhookPayload
	if err := json.Unmarshal(envelope.Payload, &p); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}
	p.Event = envelope.Event
	p.Raw = envelope.Payload
	if p.MerchantOrderID == "" || p.State == "" {
		return nil, fmt.Errorf("missing required fields in webhook payload")
	}
	return &p, nil
}
