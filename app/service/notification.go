package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/odin-workspace/ms-go-billing/app/entity"
	"github.com/odin-workspace/ms-go-billing/app/mapper"
	"github.com/odin-workspace/ms-go-billing/app/types"
)

// HandleNotification ingests one asynchronous gateway notification. The
// signature gates everything; past it, an audit event is always written,
// even for orders this service has never issued. Status application is
// last-write-wins on purpose: the gateway is authoritative and redeliveries
// arrive in any order, so each notification simply overwrites the gateway
// fields (paid_at alone is monotonic).
func (s *OrderService) HandleNotification(ctx context.Context, notification *types.GatewayNotification) error {
	if notification == nil {
		return ErrInvalidRequest
	}
	if !s.gateway.Configured() {
		return ErrMisconfigured
	}
	if !s.gateway.VerifySignature(
		notification.OrderID,
		notification.StatusCode,
		notification.GrossAmount,
		notification.SignatureKey,
	) {
		return ErrInvalidSignature
	}

	mapped := mapper.MapGatewayStatus(notification.TransactionStatus, notification.FraudStatus)
	raw := string(notification.Raw)
	now := time.Now().UTC()

	eventPayload := raw
	if err := s.eventRepo.Create(ctx, &entity.PaymentEvent{
		OrderID:     notification.OrderID,
		EventType:   entity.EventNotificationPrefix + string(mapped),
		PayloadJSON: &eventPayload,
		CreatedAt:   now,
	}); err != nil {
		return err
	}

	order, err := s.orderRepo.FindByOrderID(ctx, notification.OrderID)
	if err != nil {
		return err
	}
	if order == nil {
		// Gateways notify for orders we never issued (stale or test
		// traffic). Log and acknowledge so they stop redelivering.
		s.appendEvent(ctx, notification.OrderID, entity.EventUnknownOrder, raw)
		return nil
	}

	if value, ok := notification.GrossAmountValue(); !ok || value != order.GrossAmount {
		s.appendEvent(ctx, order.OrderID, entity.EventAmountMismatch, amountMismatchPayload(order.GrossAmount, notification.GrossAmount))
	}

	return s.applyGatewayStatus(ctx, order, mapped, statusFields{
		TransactionStatus: notification.TransactionStatus,
		FraudStatus:       notification.FraudStatus,
		StatusCode:        notification.StatusCode,
		RawJSON:           raw,
	}, now)
}

func amountMismatchPayload(expected int64, received string) string {
	payload, err := json.Marshal(map[string]interface{}{
		"expected_gross_amount": expected,
		"received_gross_amount": received,
	})
	if err != nil {
		return ""
	}
	return string(payload)
}
