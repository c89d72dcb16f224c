package service

import (
	"context"
	"errors"
	"time"

	"github.com/odin-workspace/ms-go-billing/app/entity"
	"github.com/odin-workspace/ms-go-billing/app/gateway"
	"github.com/odin-workspace/ms-go-billing/app/mapper"
	"github.com/odin-workspace/ms-go-billing/app/types"
)

// RunReconcileBatch sweeps orders stuck past the processing timeout and
// resolves them against the gateway's authoritative status. Ambiguous
// answers are skipped, never guessed.
func (s *OrderService) RunReconcileBatch(ctx context.Context) error {
	now := time.Now().UTC()
	before := now.Add(-s.processingTimeout())

	items, err := s.orderRepo.ListStale(ctx, reconcilableStatuses, before, s.batchSize())
	if err != nil {
		return err
	}

	var firstErr error
	for _, order := range items {
		if order == nil {
			continue
		}

		payload, err := s.gateway.FetchStatus(ctx, order.OrderID)
		if err != nil {
			if errors.Is(err, gateway.ErrOrderNotFound) {
				if _, trErr := s.orderRepo.TryTransition(ctx, order.OrderID, reconcilableStatuses, types.OrderStatusFailed, now); trErr != nil {
					firstErr = keepFirstErr(firstErr, trErr)
				}
				continue
			}
			firstErr = keepFirstErr(firstErr, err)
			continue
		}

		mapped := mapper.MapGatewayStatus(payload.TransactionStatus, payload.FraudStatus)
		s.appendEvent(ctx, order.OrderID, entity.EventStatusCheck, string(payload.Raw))

		if err := s.applyGatewayStatus(ctx, order, mapped, statusFields{
			TransactionStatus: payload.TransactionStatus,
			FraudStatus:       payload.FraudStatus,
			StatusCode:        payload.StatusCode,
			RawJSON:           string(payload.Raw),
		}, now); err != nil {
			firstErr = keepFirstErr(firstErr, err)
		}
	}

	return firstErr
}

func keepFirstErr(current error, candidate error) error {
	if current != nil {
		return current
	}
	return candidate
}
