package service

import (
	"context"
	"errors"
	"time"

	"github.com/odin-workspace/ms-go-billing/app/entity"
	"github.com/odin-workspace/ms-go-billing/app/repository"
	"github.com/odin-workspace/ms-go-billing/app/types"
	"github.com/odin-workspace/ms-go-billing/config"
)

type subscriptionRepository interface {
	InsertPeriod(ctx context.Context, period *entity.SubscriptionPeriod) error
	FindPeriodByOrderID(ctx context.Context, orderID string) (*entity.SubscriptionPeriod, error)
	FindLatestActivePeriod(ctx context.Context, userID string) (*entity.SubscriptionPeriod, error)
	ListPeriodsByUser(ctx context.Context, userID string) ([]*entity.SubscriptionPeriod, error)
	UpdatePeriodStatus(ctx context.Context, id uint64, status types.PeriodStatus, now time.Time) error
	FindSnapshot(ctx context.Context, userID string) (*entity.Subscription, error)
	UpsertSnapshot(ctx context.Context, snapshot *entity.Subscription) error
	CancelSnapshotForOrder(ctx context.Context, userID, orderID string, now time.Time) (bool, error)
}

// SubscriptionService derives billing periods and the per-user snapshot from
// order status changes. Invariants (at most one active future period per
// user, sticky started_at) are re-derived from the full period history on
// every transition rather than cached.
type SubscriptionService struct {
	subscriptionRepo subscriptionRepository
	periodLength     time.Duration
}

func NewSubscriptionService(subscriptionRepo subscriptionRepository, billingCfg config.BillingConfig) *SubscriptionService {
	periodLength := billingCfg.PeriodLength
	if periodLength <= 0 {
		periodLength = 30 * 24 * time.Hour
	}

	return &SubscriptionService{
		subscriptionRepo: subscriptionRepo,
		periodLength:     periodLength,
	}
}

// ApplyOrderStatus reacts to an order's new status. Statuses other than
// PAID/FAILED/REFUNDED don't touch subscription state.
func (s *SubscriptionService) ApplyOrderStatus(ctx context.Context, order *entity.PaymentOrder, now time.Time) error {
	switch order.Status {
	case types.OrderStatusPaid:
		return s.activateForOrder(ctx, order, now)
	case types.OrderStatusFailed, types.OrderStatusRefunded:
		return s.cancelForOrder(ctx, order, now)
	default:
		return nil
	}
}

func (s *SubscriptionService) activateForOrder(ctx context.Context, order *entity.PaymentOrder, now time.Time) error {
	period, err := s.subscriptionRepo.FindPeriodByOrderID(ctx, order.OrderID)
	if err != nil {
		return err
	}

	switch {
	case period != nil && period.Status != types.PeriodStatusActive:
		if err := s.subscriptionRepo.UpdatePeriodStatus(ctx, period.ID, types.PeriodStatusActive, now); err != nil {
			return err
		}
	case period == nil:
		// Extend back-to-back from the latest active period still in the
		// future, so paying early never loses already-purchased days.
		start := now
		latest, err := s.subscriptionRepo.FindLatestActivePeriod(ctx, order.UserID)
		if err != nil {
			return err
		}
		if latest != nil && latest.PeriodEnd.After(now) {
			start = latest.PeriodEnd
		}

		period = &entity.SubscriptionPeriod{
			OrderID:     order.OrderID,
			UserID:      order.UserID,
			PlanID:      order.PlanID,
			Status:      types.PeriodStatusActive,
			PeriodStart: start,
			PeriodEnd:   start.Add(s.periodLength),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.subscriptionRepo.InsertPeriod(ctx, period); err != nil {
			// A concurrent redelivery inserted it first; the snapshot
			// recompute below picks it up either way.
			if !errors.Is(err, repository.ErrPeriodAlreadyExists) {
				return err
			}
		}
	}

	return s.recomputeSnapshot(ctx, order.UserID, now)
}

func (s *SubscriptionService) cancelForOrder(ctx context.Context, order *entity.PaymentOrder, now time.Time) error {
	period, err := s.subscriptionRepo.FindPeriodByOrderID(ctx, order.OrderID)
	if err != nil {
		return err
	}

	if period != nil {
		if period.Status != types.PeriodStatusCanceled {
			if err := s.subscriptionRepo.UpdatePeriodStatus(ctx, period.ID, types.PeriodStatusCanceled, now); err != nil {
				return err
			}
		}
		return s.recomputeSnapshot(ctx, order.UserID, now)
	}

	// No period was ever materialized for this order. If the snapshot still
	// points at it, cancel it directly.
	_, err = s.subscriptionRepo.CancelSnapshotForOrder(ctx, order.UserID, order.OrderID, now)
	return err
}

// recomputeSnapshot rebuilds the materialized snapshot from the user's full
// period history. A user with no periods at all is left untouched.
func (s *SubscriptionService) recomputeSnapshot(ctx context.Context, userID string, now time.Time) error {
	periods, err := s.subscriptionRepo.ListPeriodsByUser(ctx, userID)
	if err != nil {
		return err
	}
	if len(periods) == 0 {
		return nil
	}

	var chosen *entity.SubscriptionPeriod
	status := types.SubscriptionStatusActive
	for _, period := range periods {
		if period.Status == types.PeriodStatusActive && period.PeriodEnd.After(now) {
			if chosen == nil || period.PeriodEnd.After(chosen.PeriodEnd) {
				chosen = period
			}
		}
	}

	periodEnd := time.Time{}
	if chosen != nil {
		periodEnd = chosen.PeriodEnd
	} else {
		status = types.SubscriptionStatusCanceled
		for _, period := range periods {
			if chosen == nil || period.PeriodEnd.After(chosen.PeriodEnd) {
				chosen = period
			}
		}
		// A canceled snapshot never advertises a future end.
		periodEnd = chosen.PeriodEnd
		if periodEnd.After(now) {
			periodEnd = now
		}
	}

	startedAt := chosen.PeriodStart
	return s.subscriptionRepo.UpsertSnapshot(ctx, &entity.Subscription{
		UserID:           userID,
		PlanID:           chosen.PlanID,
		Status:           status,
		OrderID:          chosen.OrderID,
		StartedAt:        &startedAt,
		CurrentPeriodEnd: &periodEnd,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
}

// GetSubscription returns the user's snapshot.
func (s *SubscriptionService) GetSubscription(ctx context.Context, userID string) (*entity.Subscription, error) {
	if userID == "" {
		return nil, ErrInvalidRequest
	}

	snapshot, err := s.subscriptionRepo.FindSnapshot(ctx, userID)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, ErrSubscriptionNotFound
	}
	return snapshot, nil
}
