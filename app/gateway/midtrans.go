package gateway

import (
	"bytes"
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/odin-workspace/ms-go-billing/app/entity"
	"github.com/odin-workspace/ms-go-billing/config"
)

var (
	// ErrNotConfigured means the Midtrans server key is missing; callers
	// surface this as a service misconfiguration, not a gateway failure.
	ErrNotConfigured = errors.New("midtrans server key is not configured")

	// ErrUnreachable wraps network-level failures and timeouts. Callers must
	// treat it as "outcome unknown", never as a definitive status.
	ErrUnreachable = errors.New("payment gateway unreachable")

	// ErrOrderNotFound is returned by FetchStatus when the gateway has no
	// record of the order.
	ErrOrderNotFound = errors.New("order not found at gateway")
)

// RejectedError is a definitive non-2xx answer from the gateway.
type RejectedError struct {
	StatusCode int
	Message    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("gateway rejected request: status=%d message=%s", e.StatusCode, e.Message)
}

// SnapSession is the checkout handle issued by the Snap API.
type SnapSession struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

// StatusPayload is the authoritative order status reported by the gateway.
// Raw keeps the untouched response body for the event log.
type StatusPayload struct {
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`

	Raw json.RawMessage `json:"-"`
}

type Client struct {
	cfg    config.MidtransConfig
	client *http.Client

	snapBaseURL string
	apiBaseURL  string
}

func NewClient(cfg config.MidtransConfig) *Client {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	snapBase := "https://app.sandbox.midtrans.com"
	apiBase := "https://api.sandbox.midtrans.com"
	if cfg.IsProduction {
		snapBase = "https://app.midtrans.com"
		apiBase = "https://api.midtrans.com"
	}

	return &Client{
		cfg:         cfg,
		client:      &http.Client{Timeout: timeout},
		snapBaseURL: snapBase,
		apiBaseURL:  apiBase,
	}
}

func (c *Client) Configured() bool {
	return strings.TrimSpace(c.cfg.ServerKey) != ""
}

// CreateSnapToken opens a Snap checkout session for the order. It never
// retries: the caller owns the decision of what a failure means for the
// order row.
func (c *Client) CreateSnapToken(ctx context.Context, order *entity.PaymentOrder) (*SnapSession, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	payload := map[string]interface{}{
		"transaction_details": map[string]interface{}{
			"order_id":     order.OrderID,
			"gross_amount": order.GrossAmount,
		},
		"item_details": []map[string]interface{}{
			{
				"id":       order.PlanID,
				"price":    order.GrossAmount,
				"quantity": 1,
				"name":     order.PlanID + " plan",
			},
		},
		"customer_details": map[string]interface{}{
			"first_name": order.CustomerName,
			"email":      order.CustomerEmail,
			"phone":      order.CustomerPhone,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.snapBaseURL+"/snap/v1/transactions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.cfg.ServerKey, "")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if resp.StatusCode >= 400 {
		return nil, &RejectedError{StatusCode: resp.StatusCode, Message: parseErrorMessages(respBody)}
	}

	var session SnapSession
	if err := json.Unmarshal(respBody, &session); err != nil {
		return nil, &RejectedError{StatusCode: resp.StatusCode, Message: "unparseable snap response"}
	}
	if strings.TrimSpace(session.Token) == "" {
		return nil, &RejectedError{StatusCode: resp.StatusCode, Message: "snap response missing token"}
	}

	return &session, nil
}

// FetchStatus asks the gateway for the authoritative transaction status.
// Idempotent; used only for reconciliation.
func (c *Client) FetchStatus(ctx context.Context, orderID string) (*StatusPayload, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBaseURL+"/v2/"+url.PathEscape(orderID)+"/status", nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.cfg.ServerKey, "")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrOrderNotFound
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("gateway status check failed: status=%d body=%s", resp.StatusCode, string(respBody))
	}

	var payload StatusPayload
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return nil, fmt.Errorf("gateway status check returned unparseable body: %v", err)
	}
	// The gateway answers HTTP 200 with an embedded 404 code for unknown
	// orders.
	if payload.StatusCode == "404" {
		return nil, ErrOrderNotFound
	}

	payload.TransactionStatus = strings.ToLower(strings.TrimSpace(payload.TransactionStatus))
	payload.FraudStatus = strings.ToLower(strings.TrimSpace(payload.FraudStatus))
	payload.Raw = json.RawMessage(respBody)

	return &payload, nil
}

// VerifySignature checks the SHA-512 digest of
// order_id||status_code||gross_amount||server_key against the provided
// signature. Inputs are compared verbatim, exactly as signed by the gateway.
func (c *Client) VerifySignature(orderID, statusCode, grossAmount, signature string) bool {
	if !c.Configured() {
		return false
	}
	return VerifySignature(orderID, statusCode, grossAmount, c.cfg.ServerKey, signature)
}

func VerifySignature(orderID, statusCode, grossAmount, serverKey, signature string) bool {
	signature = strings.ToLower(strings.TrimSpace(signature))
	if signature == "" {
		return false
	}

	digest := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	expected := hex.EncodeToString(digest[:])

	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

func parseErrorMessages(body []byte) string {
	var payload struct {
		ErrorMessages []string `json:"error_messages"`
	}
	if json.Unmarshal(body, &payload) == nil && len(payload.ErrorMessages) > 0 {
		return strings.Join(payload.ErrorMessages, "; ")
	}
	return strings.TrimSpace(string(body))
}
