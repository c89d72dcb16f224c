package entity

import (
	"time"

	"github.com/odin-workspace/ms-go-billing/app/types"
)

// SubscriptionPeriod is one paid billing cycle, exactly one per paid order.
type SubscriptionPeriod struct {
	ID uint64

	OrderID string
	UserID  string
	PlanID  string

	Status types.PeriodStatus

	PeriodStart time.Time
	PeriodEnd   time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Subscription is the materialized per-user snapshot of the current period.
// It is recomputed from the period history, never hand-edited. StartedAt is
// sticky: the first non-null value wins and is never overwritten.
type Subscription struct {
	UserID  string
	PlanID  string
	Status  types.SubscriptionStatus
	OrderID string

	StartedAt        *time.Time
	CurrentPeriodEnd *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
