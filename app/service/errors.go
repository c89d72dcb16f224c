package service

import "errors"

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnknownPlan    = errors.New("unknown plan")
	ErrOrderNotFound  = errors.New("order not found")

	// Idempotency conflicts. All map to HTTP 409; the message tells the
	// client whether to poll status or give up.
	ErrKeyPlanMismatch  = errors.New("idempotency key reused for a different plan")
	ErrAlreadyCompleted = errors.New("order already completed")
	ErrProcessing       = errors.New("order is being processed, retry later")
	ErrAlreadyCreated   = errors.New("order already created, check status")
	ErrRetryLater       = errors.New("order status is ambiguous, retry later")

	ErrInvalidSignature = errors.New("notification signature mismatch")
	ErrMisconfigured    = errors.New("payment gateway is not configured")

	// ErrGatewayUnavailable wraps definitive gateway call failures
	// (unreachable or rejected) surfaced to the caller as retryable.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	ErrSubscriptionNotFound = errors.New("subscription not found")
)
