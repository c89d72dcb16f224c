package types

import (
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// GatewayNotification carries the fields the service reads out of a Midtrans
// HTTP notification plus the untouched payload. Raw is what gets written to
// the event log; the typed fields are never re-parsed from it.
type GatewayNotification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	TransactionID     string `json:"transaction_id"`
	PaymentType       string `json:"payment_type"`

	Raw json.RawMessage `json:"-"`
}

func NewGatewayNotificationFromContext(ctx echo.Context) (*GatewayNotification, error) {
	rawBody, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return nil, err
	}

	var body GatewayNotification
	if err := json.Unmarshal(rawBody, &body); err != nil {
		return nil, err
	}

	body.OrderID = strings.TrimSpace(body.OrderID)
	body.StatusCode = strings.TrimSpace(body.StatusCode)
	body.GrossAmount = strings.TrimSpace(body.GrossAmount)
	body.SignatureKey = strings.TrimSpace(body.SignatureKey)
	body.TransactionStatus = strings.ToLower(strings.TrimSpace(body.TransactionStatus))
	body.FraudStatus = strings.ToLower(strings.TrimSpace(body.FraudStatus))
	body.Raw = json.RawMessage(rawBody)

	return &body, nil
}

func (n *GatewayNotification) Validate() error {
	if n.OrderID == "" {
		return errors.New("order_id is required")
	}
	if n.StatusCode == "" {
		return errors.New("status_code is required")
	}
	if n.GrossAmount == "" {
		return errors.New("gross_amount is required")
	}
	if n.SignatureKey == "" {
		return errors.New("signature_key is required")
	}
	return nil
}

// GrossAmountValue parses the gateway's decimal string ("199000.00") into
// minor units. The fractional part must be all zeros; IDR has no subunit.
func (n *GatewayNotification) GrossAmountValue() (int64, bool) {
	return ParseGrossAmount(n.GrossAmount)
}

func ParseGrossAmount(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}

	whole := raw
	if idx := strings.IndexByte(raw, '.'); idx >= 0 {
		whole = raw[:idx]
		fraction := raw[idx+1:]
		if fraction == "" {
			return 0, false
		}
		for _, c := range fraction {
			if c != '0' {
				return 0, false
			}
		}
	}

	value, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || value < 0 {
		return 0, false
	}
	return value, true
}
