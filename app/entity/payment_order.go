package entity

import (
	"time"

	"github.com/odin-workspace/ms-go-billing/app/types"
)

// PaymentOrder is one checkout attempt against the payment gateway. Rows are
// never deleted; the idempotency key keeps retried client requests pinned to
// the same order.
type PaymentOrder struct {
	OrderID        string
	UserID         string
	IdempotencyKey *string

	PlanID      string
	GrossAmount int64
	Currency    string

	CustomerName  string
	CustomerEmail string
	CustomerPhone string

	Status    types.OrderStatus
	SnapToken *string

	TransactionStatus *string
	FraudStatus       *string
	StatusCode        *string

	LastNotificationJSON *string

	PaidAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
