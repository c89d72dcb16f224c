package entity

import "time"

// Event types recorded in the payment_events log. Notification events are
// tagged "notification:<mapped status>".
const (
	EventTokenSuccess   = "token_success"
	EventTokenFailed    = "token_failed"
	EventStatusCheck    = "status_check"
	EventAmountMismatch = "amount_mismatch"
	EventUnknownOrder   = "unknown_order"

	EventNotificationPrefix = "notification:"
)

// PaymentEvent is an append-only record of one external interaction. OrderID
// is a plain column, not a foreign key: notifications for orders this
// service has never seen are logged too.
type PaymentEvent struct {
	ID uint64

	OrderID   string
	EventType string

	PayloadJSON *string

	CreatedAt time.Time
}

// TokenEventPayload is the JSON shape stored with token_success events. The
// coordinator replays it when the order row lost the token.
type TokenEventPayload struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url,omitempty"`
}
