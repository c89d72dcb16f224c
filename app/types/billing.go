package types

import (
	"errors"
	"net/mail"
	"strings"

	"github.com/labstack/echo/v4"
)

type CreateTokenRequest struct {
	PlanID         string `json:"plan_id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Phone          string `json:"phone"`
	IdempotencyKey string `json:"idempotency_key"`
}

func NewCreateTokenRequestFromContext(ctx echo.Context) (*CreateTokenRequest, error) {
	var body CreateTokenRequest
	if err := ctx.Bind(&body); err != nil {
		return nil, err
	}

	body.PlanID = strings.ToLower(strings.TrimSpace(body.PlanID))
	body.Name = strings.TrimSpace(body.Name)
	body.Email = strings.TrimSpace(body.Email)
	body.Phone = strings.TrimSpace(body.Phone)
	body.IdempotencyKey = strings.TrimSpace(body.IdempotencyKey)

	return &body, nil
}

func (r *CreateTokenRequest) Validate() error {
	if r.PlanID == "" {
		return errors.New("plan_id is required")
	}
	if r.Name == "" {
		return errors.New("name is required")
	}
	if r.Email == "" {
		return errors.New("email is required")
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return errors.New("email is invalid")
	}
	if len(r.IdempotencyKey) > 64 {
		return errors.New("idempotency_key must be at most 64 characters")
	}
	return nil
}

type OrderStatusRequest struct {
	OrderID string
}

func NewOrderStatusRequestFromContext(ctx echo.Context) *OrderStatusRequest {
	return &OrderStatusRequest{OrderID: strings.TrimSpace(ctx.QueryParam("order_id"))}
}

func (r *OrderStatusRequest) Validate() error {
	if r.OrderID == "" {
		return errors.New("order_id is required")
	}
	return nil
}

type TokenResponse struct {
	OrderID     string `json:"order_id"`
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

type NotifyAckResponse struct {
	Received bool `json:"received"`
}

type OrderStatusResponse struct {
	OrderID           string `json:"order_id"`
	PlanID            string `json:"plan_id"`
	Status            string `json:"status"`
	TransactionStatus string `json:"transaction_status,omitempty"`
	FraudStatus       string `json:"fraud_status,omitempty"`
	GrossAmount       int64  `json:"gross_amount"`
	Currency          string `json:"currency"`
	PaidAt            string `json:"paid_at,omitempty"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

type SubscriptionResponse struct {
	PlanID           string `json:"plan_id"`
	Status           string `json:"status"`
	OrderID          string `json:"order_id"`
	StartedAt        string `json:"started_at,omitempty"`
	CurrentPeriodEnd string `json:"current_period_end,omitempty"`
}

type PlanResponse struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	PriceIDR int64    `json:"price_idr"`
	Currency string   `json:"currency"`
	Summary  string   `json:"summary"`
	Features []string `json:"features"`
}

type ListPlansResponse struct {
	Plans []*PlanResponse `json:"plans"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
