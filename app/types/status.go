package types

// OrderStatus is the internal lifecycle status of a payment order. Values
// are stored verbatim in the payment_orders table.
type OrderStatus string

const (
	OrderStatusCreating OrderStatus = "CREATING"
	OrderStatusCreated  OrderStatus = "CREATED"
	OrderStatusPending  OrderStatus = "PENDING"
	OrderStatusPaid     OrderStatus = "PAID"
	OrderStatusFailed   OrderStatus = "FAILED"
	OrderStatusRefunded OrderStatus = "REFUNDED"
	OrderStatusUnknown  OrderStatus = "UNKNOWN"
)

// PeriodStatus is the status of a single billing period row.
type PeriodStatus string

const (
	PeriodStatusActive   PeriodStatus = "active"
	PeriodStatusCanceled PeriodStatus = "canceled"
)

// SubscriptionStatus is the status of the materialized subscription snapshot.
type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusPending  SubscriptionStatus = "pending"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
)

func IsValidOrderStatus(status OrderStatus) bool {
	switch status {
	case OrderStatusCreating,
		OrderStatusCreated,
		OrderStatusPending,
		OrderStatusPaid,
		OrderStatusFailed,
		OrderStatusRefunded,
		OrderStatusUnknown:
		return true
	default:
		return false
	}
}
