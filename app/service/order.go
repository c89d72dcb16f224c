package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odin-workspace/ms-go-billing/app/entity"
	"github.com/odin-workspace/ms-go-billing/app/gateway"
	"github.com/odin-workspace/ms-go-billing/app/mapper"
	"github.com/odin-workspace/ms-go-billing/app/plan"
	"github.com/odin-workspace/ms-go-billing/app/repository"
	"github.com/odin-workspace/ms-go-billing/app/types"
	"github.com/odin-workspace/ms-go-billing/config"
)

const (
	defaultBatchSize        = int32(100)
	orderIDAllocateAttempts = 3
)

type orderRepository interface {
	Create(ctx context.Context, order *entity.PaymentOrder) error
	FindByOrderID(ctx context.Context, orderID string) (*entity.PaymentOrder, error)
	FindByUserAndOrderID(ctx context.Context, userID, orderID string) (*entity.PaymentOrder, error)
	FindByUserAndKey(ctx context.Context, userID, idempotencyKey string) (*entity.PaymentOrder, error)
	TryTransition(ctx context.Context, orderID string, expected []types.OrderStatus, next types.OrderStatus, now time.Time) (bool, error)
	TryClaimRetry(ctx context.Context, orderID string, now time.Time) (bool, error)
	TrySetSnapToken(ctx context.Context, orderID, token string, now time.Time) (bool, error)
	ApplyNotification(ctx context.Context, update repository.NotificationUpdate) error
	ListStale(ctx context.Context, statuses []types.OrderStatus, before time.Time, limit int32) ([]*entity.PaymentOrder, error)
}

type eventRepository interface {
	Create(ctx context.Context, event *entity.PaymentEvent) error
	FindLatestByType(ctx context.Context, orderID, eventType string) (*entity.PaymentEvent, error)
}

type paymentGateway interface {
	Configured() bool
	CreateSnapToken(ctx context.Context, order *entity.PaymentOrder) (*gateway.SnapSession, error)
	FetchStatus(ctx context.Context, orderID string) (*gateway.StatusPayload, error)
	VerifySignature(orderID, statusCode, grossAmount, signature string) bool
}

type subscriptionReconciler interface {
	ApplyOrderStatus(ctx context.Context, order *entity.PaymentOrder, now time.Time) error
}

// Statuses an order can leave for FAILED when the gateway has no record of
// it. PAID and REFUNDED stay put.
var reconcilableStatuses = []types.OrderStatus{
	types.OrderStatusCreating,
	types.OrderStatusCreated,
	types.OrderStatusPending,
	types.OrderStatusUnknown,
}

// OrderService is the order lifecycle coordinator. All status changes run
// through conditional claims on the order repository; on a lost claim the
// coordinator re-reads instead of overwriting.
type OrderService struct {
	orderRepo  orderRepository
	eventRepo  eventRepository
	gateway    paymentGateway
	reconciler subscriptionReconciler
	billingCfg config.BillingConfig
}

func NewOrderService(
	orderRepo orderRepository,
	eventRepo eventRepository,
	paymentGW paymentGateway,
	reconciler subscriptionReconciler,
	billingCfg config.BillingConfig,
) *OrderService {
	return &OrderService{
		orderRepo:  orderRepo,
		eventRepo:  eventRepo,
		gateway:    paymentGW,
		reconciler: reconciler,
		billingCfg: billingCfg,
	}
}

// RequestToken is the idempotent entry point for POST /payments/token. For a
// given (user, idempotency key) at most one gateway checkout session is ever
// created; retries replay the stored token or recover it from the event log.
func (s *OrderService) RequestToken(ctx context.Context, userID string, req *types.CreateTokenRequest) (*types.TokenResponse, error) {
	if userID == "" || req == nil {
		return nil, ErrInvalidRequest
	}

	planItem, ok := plan.ByID(req.PlanID)
	if !ok {
		return nil, ErrUnknownPlan
	}

	var existing *entity.PaymentOrder
	var err error
	if req.IdempotencyKey != "" {
		existing, err = s.orderRepo.FindByUserAndKey(ctx, userID, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
	}

	if existing == nil {
		order, err := s.insertFreshOrder(ctx, userID, planItem, req)
		if err != nil {
			return nil, err
		}
		if order != nil {
			return s.issueToken(ctx, order)
		}
		// The insert lost to a concurrent call with the same key.
		existing, err = s.orderRepo.FindByUserAndKey(ctx, userID, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, ErrProcessing
		}
	}

	return s.replayExistingOrder(ctx, existing, planItem)
}

// insertFreshOrder allocates an order id and inserts the row in CREATING.
// Returns (nil, nil) when a concurrent insert for the same idempotency key
// won; the caller re-reads and replays.
func (s *OrderService) insertFreshOrder(ctx context.Context, userID string, planItem plan.Plan, req *types.CreateTokenRequest) (*entity.PaymentOrder, error) {
	now := time.Now().UTC()

	var idempotencyKey *string
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		idempotencyKey = &key
	}

	order := &entity.PaymentOrder{
		UserID:         userID,
		IdempotencyKey: idempotencyKey,
		PlanID:         planItem.ID,
		GrossAmount:    planItem.PriceIDR,
		Currency:       plan.Currency,
		CustomerName:   req.Name,
		CustomerEmail:  req.Email,
		CustomerPhone:  req.Phone,
		Status:         types.OrderStatusCreating,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	for attempt := 0; attempt < orderIDAllocateAttempts; attempt++ {
		order.OrderID = uuid.NewString()

		err := s.orderRepo.Create(ctx, order)
		if err == nil {
			return order, nil
		}
		if !errors.Is(err, repository.ErrOrderAlreadyExists) {
			return nil, err
		}

		// Duplicate entry: either the idempotency key raced with another
		// request, or the fresh order id collided. Re-reading by key tells
		// the two apart; a collision just gets a new id.
		if idempotencyKey != nil {
			existing, findErr := s.orderRepo.FindByUserAndKey(ctx, userID, *idempotencyKey)
			if findErr != nil {
				return nil, findErr
			}
			if existing != nil {
				return nil, nil
			}
		}
	}

	return nil, fmt.Errorf("could not allocate a unique order id after %d attempts", orderIDAllocateAttempts)
}

func (s *OrderService) replayExistingOrder(ctx context.Context, order *entity.PaymentOrder, planItem plan.Plan) (*types.TokenResponse, error) {
	if order.PlanID != planItem.ID {
		return nil, ErrKeyPlanMismatch
	}
	if order.Status == types.OrderStatusPaid || order.Status == types.OrderStatusRefunded {
		return nil, ErrAlreadyCompleted
	}

	if order.SnapToken != nil {
		return s.tokenResponseForOrder(ctx, order)
	}

	// The token may have been issued but never confirmed onto the order row
	// (the process died between the event append and the conditional
	// update). Recover it from the event log instead of paying for a second
	// session.
	recovered, err := s.recoverTokenFromEvents(ctx, order)
	if err != nil {
		return nil, err
	}
	if recovered != nil {
		return recovered, nil
	}

	now := time.Now().UTC()

	if order.Status == types.OrderStatusFailed {
		claimed, err := s.orderRepo.TryClaimRetry(ctx, order.OrderID, now)
		if err != nil {
			return nil, err
		}
		if !claimed {
			return nil, ErrProcessing
		}
		order.Status = types.OrderStatusCreating
		return s.issueToken(ctx, order)
	}

	// Still CREATING/CREATED/PENDING/UNKNOWN. A fresh order is presumably
	// mid-flight somewhere else; a stale one warrants asking the gateway
	// what actually happened.
	if now.Sub(order.UpdatedAt) > s.processingTimeout() {
		return nil, s.reconcileStuckOrder(ctx, order, now)
	}
	return nil, ErrProcessing
}

// issueToken performs the single gateway checkout call for an order the
// caller has exclusively claimed (fresh insert or FAILED reclaim).
func (s *OrderService) issueToken(ctx context.Context, order *entity.PaymentOrder) (*types.TokenResponse, error) {
	session, err := s.gateway.CreateSnapToken(ctx, order)
	if err != nil {
		now := time.Now().UTC()
		if _, trErr := s.orderRepo.TryTransition(ctx, order.OrderID, []types.OrderStatus{types.OrderStatusCreating}, types.OrderStatusFailed, now); trErr != nil {
			return nil, trErr
		}
		s.appendEvent(ctx, order.OrderID, entity.EventTokenFailed, errorPayload(err))

		if errors.Is(err, gateway.ErrNotConfigured) {
			return nil, ErrMisconfigured
		}
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	// The token_success event must be durable before the order row is
	// touched: it is the recovery source if the next write never lands.
	payload, err := json.Marshal(&entity.TokenEventPayload{Token: session.Token, RedirectURL: session.RedirectURL})
	if err != nil {
		return nil, err
	}
	payloadJSON := string(payload)
	now := time.Now().UTC()
	if err := s.eventRepo.Create(ctx, &entity.PaymentEvent{
		OrderID:     order.OrderID,
		EventType:   entity.EventTokenSuccess,
		PayloadJSON: &payloadJSON,
		CreatedAt:   now,
	}); err != nil {
		return nil, err
	}

	stored, err := s.orderRepo.TrySetSnapToken(ctx, order.OrderID, session.Token, now)
	if err != nil {
		return nil, err
	}
	if !stored {
		// Another path confirmed a token first; theirs is the one the
		// client already saw, so discard ours.
		current, err := s.orderRepo.FindByOrderID(ctx, order.OrderID)
		if err != nil {
			return nil, err
		}
		if current != nil && current.SnapToken != nil {
			return s.tokenResponseForOrder(ctx, current)
		}
	}

	return &types.TokenResponse{
		OrderID:     order.OrderID,
		Token:       session.Token,
		RedirectURL: session.RedirectURL,
	}, nil
}

// recoverTokenFromEvents replays a token_success event onto an order row
// that lost the confirmation write.
func (s *OrderService) recoverTokenFromEvents(ctx context.Context, order *entity.PaymentOrder) (*types.TokenResponse, error) {
	event, err := s.eventRepo.FindLatestByType(ctx, order.OrderID, entity.EventTokenSuccess)
	if err != nil {
		return nil, err
	}
	if event == nil || event.PayloadJSON == nil {
		return nil, nil
	}

	var payload entity.TokenEventPayload
	if err := json.Unmarshal([]byte(*event.PayloadJSON), &payload); err != nil || payload.Token == "" {
		return nil, nil
	}

	now := time.Now().UTC()
	stored, err := s.orderRepo.TrySetSnapToken(ctx, order.OrderID, payload.Token, now)
	if err != nil {
		return nil, err
	}
	if !stored {
		current, err := s.orderRepo.FindByOrderID(ctx, order.OrderID)
		if err != nil {
			return nil, err
		}
		if current != nil && current.SnapToken != nil {
			return s.tokenResponseForOrder(ctx, current)
		}
	}

	return &types.TokenResponse{
		OrderID:     order.OrderID,
		Token:       payload.Token,
		RedirectURL: payload.RedirectURL,
	}, nil
}

// reconcileStuckOrder resolves an order that has been in-flight past the
// processing timeout by asking the gateway. It never guesses: an ambiguous
// answer leaves the order untouched.
func (s *OrderService) reconcileStuckOrder(ctx context.Context, order *entity.PaymentOrder, now time.Time) error {
	payload, err := s.gateway.FetchStatus(ctx, order.OrderID)
	if err != nil {
		if errors.Is(err, gateway.ErrOrderNotFound) {
			if _, trErr := s.orderRepo.TryTransition(ctx, order.OrderID, reconcilableStatuses, types.OrderStatusFailed, now); trErr != nil {
				return trErr
			}
			return ErrAlreadyCreated
		}
		return ErrRetryLater
	}

	mapped := mapper.MapGatewayStatus(payload.TransactionStatus, payload.FraudStatus)
	s.appendEvent(ctx, order.OrderID, entity.EventStatusCheck, string(payload.Raw))

	if err := s.applyGatewayStatus(ctx, order, mapped, statusFields{
		TransactionStatus: payload.TransactionStatus,
		FraudStatus:       payload.FraudStatus,
		StatusCode:        payload.StatusCode,
		RawJSON:           string(payload.Raw),
	}, now); err != nil {
		return err
	}

	return ErrAlreadyCreated
}

// GetOrderStatus returns the order scoped to its owner.
func (s *OrderService) GetOrderStatus(ctx context.Context, userID, orderID string) (*entity.PaymentOrder, error) {
	order, err := s.orderRepo.FindByUserAndOrderID(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

type statusFields struct {
	TransactionStatus string
	FraudStatus       string
	StatusCode        string
	RawJSON           string
}

// applyGatewayStatus is the shared last-write-wins status application for
// webhooks and status checks. paid_at is monotonic: computed once, kept by
// COALESCE in storage.
func (s *OrderService) applyGatewayStatus(ctx context.Context, order *entity.PaymentOrder, mapped types.OrderStatus, fields statusFields, now time.Time) error {
	paidAt := order.PaidAt
	if paidAt == nil && mapped == types.OrderStatusPaid {
		at := now
		paidAt = &at
	}

	update := repository.NotificationUpdate{
		OrderID:           order.OrderID,
		Status:            mapped,
		TransactionStatus: optionalString(fields.TransactionStatus),
		FraudStatus:       optionalString(fields.FraudStatus),
		StatusCode:        optionalString(fields.StatusCode),
		RawJSON:           fields.RawJSON,
		PaidAt:            paidAt,
		Now:               now,
	}
	if err := s.orderRepo.ApplyNotification(ctx, update); err != nil {
		return err
	}

	order.Status = mapped
	order.PaidAt = paidAt

	return s.reconciler.ApplyOrderStatus(ctx, order, now)
}

func (s *OrderService) tokenResponseForOrder(ctx context.Context, order *entity.PaymentOrder) (*types.TokenResponse, error) {
	response := &types.TokenResponse{
		OrderID: order.OrderID,
		Token:   *order.SnapToken,
	}

	event, err := s.eventRepo.FindLatestByType(ctx, order.OrderID, entity.EventTokenSuccess)
	if err != nil {
		return nil, err
	}
	if event != nil && event.PayloadJSON != nil {
		var payload entity.TokenEventPayload
		if json.Unmarshal([]byte(*event.PayloadJSON), &payload) == nil && payload.Token == response.Token {
			response.RedirectURL = payload.RedirectURL
		}
	}

	return response, nil
}

// appendEvent is the best-effort audit append for records the caller's own
// outcome does not depend on.
func (s *OrderService) appendEvent(ctx context.Context, orderID, eventType, payload string) {
	var payloadJSON *string
	if payload != "" {
		payloadJSON = &payload
	}
	_ = s.eventRepo.Create(ctx, &entity.PaymentEvent{
		OrderID:     orderID,
		EventType:   eventType,
		PayloadJSON: payloadJSON,
		CreatedAt:   time.Now().UTC(),
	})
}

func (s *OrderService) processingTimeout() time.Duration {
	if s.billingCfg.ProcessingTimeout > 0 {
		return s.billingCfg.ProcessingTimeout
	}
	return 90 * time.Second
}

func (s *OrderService) batchSize() int32 {
	if s.billingCfg.JobBatchSize > 0 {
		return s.billingCfg.JobBatchSize
	}
	return defaultBatchSize
}

func errorPayload(err error) string {
	payload, marshalErr := json.Marshal(map[string]string{"error": err.Error()})
	if marshalErr != nil {
		return ""
	}
	return string(payload)
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
