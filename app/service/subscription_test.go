package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/odin-workspace/ms-go-billing/app/entity"
	"github.com/odin-workspace/ms-go-billing/app/repository"
	"github.com/odin-workspace/ms-go-billing/app/types"
	"github.com/odin-workspace/ms-go-billing/config"
)

type serviceSubscriptionRepo struct {
	periods   []*entity.SubscriptionPeriod
	snapshots map[string]*entity.Subscription
	nextID    uint64
}

func newServiceSubscriptionRepo() *serviceSubscriptionRepo {
	return &serviceSubscriptionRepo{snapshots: map[string]*entity.Subscription{}}
}

func (r *serviceSubscriptionRepo) InsertPeriod(_ context.Context, period *entity.SubscriptionPeriod) error {
	for _, item := range r.periods {
		if item.OrderID == period.OrderID {
			return repository.ErrPeriodAlreadyExists
		}
	}
	r.nextID++
	copyItem := *period
	copyItem.ID = r.nextID
	r.periods = append(r.periods, &copyItem)
	period.ID = r.nextID
	return nil
}

func (r *serviceSubscriptionRepo) FindPeriodByOrderID(_ context.Context, orderID string) (*entity.SubscriptionPeriod, error) {
	for _, item := range r.periods {
		if item.OrderID == orderID {
			copyItem := *item
			return &copyItem, nil
		}
	}
	return nil, nil
}

func (r *serviceSubscriptionRepo) FindLatestActivePeriod(_ context.Context, userID string) (*entity.SubscriptionPeriod, error) {
	var latest *entity.SubscriptionPeriod
	for _, item := range r.periods {
		if item.UserID != userID || item.Status != types.PeriodStatusActive {
			continue
		}
		if latest == nil || item.PeriodEnd.After(latest.PeriodEnd) {
			latest = item
		}
	}
	if latest == nil {
		return nil, nil
	}
	copyItem := *latest
	return &copyItem, nil
}

func (r *serviceSubscriptionRepo) ListPeriodsByUser(_ context.Context, userID string) ([]*entity.SubscriptionPeriod, error) {
	items := make([]*entity.SubscriptionPeriod, 0)
	for _, item := range r.periods {
		if item.UserID == userID {
			copyItem := *item
			items = append(items, &copyItem)
		}
	}
	return items, nil
}

func (r *serviceSubscriptionRepo) UpdatePeriodStatus(_ context.Context, id uint64, status types.PeriodStatus, now time.Time) error {
	for _, item := range r.periods {
		if item.ID == id {
			item.Status = status
			item.UpdatedAt = now
			return nil
		}
	}
	return nil
}

func (r *serviceSubscriptionRepo) FindSnapshot(_ context.Context, userID string) (*entity.Subscription, error) {
	item, ok := r.snapshots[userID]
	if !ok {
		return nil, nil
	}
	copyItem := *item
	return &copyItem, nil
}

func (r *serviceSubscriptionRepo) UpsertSnapshot(_ context.Context, snapshot *entity.Subscription) error {
	existing, ok := r.snapshots[snapshot.UserID]
	if !ok {
		copyItem := *snapshot
		r.snapshots[snapshot.UserID] = &copyItem
		return nil
	}
	existing.PlanID = snapshot.PlanID
	existing.Status = snapshot.Status
	existing.OrderID = snapshot.OrderID
	if existing.StartedAt == nil {
		existing.StartedAt = snapshot.StartedAt
	}
	if snapshot.CurrentPeriodEnd != nil {
		existing.CurrentPeriodEnd = snapshot.CurrentPeriodEnd
	}
	existing.UpdatedAt = snapshot.UpdatedAt
	return nil
}

func (r *serviceSubscriptionRepo) CancelSnapshotForOrder(_ context.Context, userID, orderID string, now time.Time) (bool, error) {
	item, ok := r.snapshots[userID]
	if !ok || item.OrderID != orderID {
		return false, nil
	}
	item.Status = types.SubscriptionStatusCanceled
	nowCopy := now
	item.CurrentPeriodEnd = &nowCopy
	item.UpdatedAt = now
	return true, nil
}

func newSubscriptionServiceForTest(repo *serviceSubscriptionRepo) *SubscriptionService {
	return NewSubscriptionService(repo, config.BillingConfig{PeriodLength: 30 * 24 * time.Hour})
}

func paidOrder(orderID, userID, planID string) *entity.PaymentOrder {
	return &entity.PaymentOrder{
		OrderID: orderID,
		UserID:  userID,
		PlanID:  planID,
		Status:  types.OrderStatusPaid,
	}
}

func TestPaidOrderCreatesPeriodAndSnapshot(t *testing.T) {
	repo := newServiceSubscriptionRepo()
	svc := newSubscriptionServiceForTest(repo)
	now := time.Now().UTC()

	if err := svc.ApplyOrderStatus(context.Background(), paidOrder("order-1", "user-1", "starter"), now); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	if len(repo.periods) != 1 {
		t.Fatalf("expected one period, got %d", len(repo.periods))
	}
	period := repo.periods[0]
	if !period.PeriodStart.Equal(now) || !period.PeriodEnd.Equal(now.Add(30*24*time.Hour)) {
		t.Fatalf("unexpected period bounds %v..%v", period.PeriodStart, period.PeriodEnd)
	}

	snapshot := repo.snapshots["user-1"]
	if snapshot == nil {
		t.Fatal("snapshot missing")
	}
	if snapshot.Status != types.SubscriptionStatusActive || snapshot.PlanID != "starter" || snapshot.OrderID != "order-1" {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}
	if snapshot.CurrentPeriodEnd == nil || !snapshot.CurrentPeriodEnd.Equal(period.PeriodEnd) {
		t.Fatalf("snapshot end should match the period end, got %v", snapshot.CurrentPeriodEnd)
	}
}

func TestEarlyRenewalExtendsBackToBack(t *testing.T) {
	repo := newServiceSubscriptionRepo()
	svc := newSubscriptionServiceForTest(repo)
	start := time.Now().UTC()

	if err := svc.ApplyOrderStatus(context.Background(), paidOrder("order-1", "user-1", "starter"), start); err != nil {
		t.Fatalf("first payment failed: %v", err)
	}

	// Renewal three days in: the new period chains off the first period's
	// end, so the user keeps the remaining 27 days.
	renewal := start.Add(3 * 24 * time.Hour)
	if err := svc.ApplyOrderStatus(context.Background(), paidOrder("order-2", "user-1", "starter"), renewal); err != nil {
		t.Fatalf("renewal failed: %v", err)
	}

	if len(repo.periods) != 2 {
		t.Fatalf("expected two periods, got %d", len(repo.periods))
	}
	second := repo.periods[1]
	firstEnd := start.Add(30 * 24 * time.Hour)
	if !second.PeriodStart.Equal(firstEnd) {
		t.Fatalf("renewal should start at the first period's end, got %v", second.PeriodStart)
	}
	if !second.PeriodEnd.Equal(firstEnd.Add(30 * 24 * time.Hour)) {
		t.Fatalf("renewal should end 60 days after the original start, got %v", second.PeriodEnd)
	}

	snapshot := repo.snapshots["user-1"]
	if snapshot.CurrentPeriodEnd == nil || !snapshot.CurrentPeriodEnd.Equal(second.PeriodEnd) {
		t.Fatalf("snapshot should advertise the extended end, got %v", snapshot.CurrentPeriodEnd)
	}
	if snapshot.StartedAt == nil || !snapshot.StartedAt.Equal(start) {
		t.Fatalf("started_at must stay at the original start, got %v", snapshot.StartedAt)
	}
}

func TestRefundFallsBackToRemainingActivePeriod(t *testing.T) {
	repo := newServiceSubscriptionRepo()
	svc := newSubscriptionServiceForTest(repo)
	start := time.Now().UTC()

	if err := svc.ApplyOrderStatus(context.Background(), paidOrder("order-1", "user-1", "starter"), start); err != nil {
		t.Fatalf("first payment failed: %v", err)
	}
	if err := svc.ApplyOrderStatus(context.Background(), paidOrder("order-2", "user-1", "starter"), start.Add(24*time.Hour)); err != nil {
		t.Fatalf("renewal failed: %v", err)
	}

	refunded := paidOrder("order-2", "user-1", "starter")
	refunded.Status = types.OrderStatusRefunded
	if err := svc.ApplyOrderStatus(context.Background(), refunded, start.Add(48*time.Hour)); err != nil {
		t.Fatalf("refund failed: %v", err)
	}

	snapshot := repo.snapshots["user-1"]
	if snapshot.Status != types.SubscriptionStatusActive {
		t.Fatalf("first period is still running, snapshot should stay active, got %s", snapshot.Status)
	}
	if snapshot.OrderID != "order-1" {
		t.Fatalf("snapshot should fall back to the surviving order, got %s", snapshot.OrderID)
	}
	if !snapshot.CurrentPeriodEnd.Equal(start.Add(30 * 24 * time.Hour)) {
		t.Fatalf("snapshot end should regress to the surviving period, got %v", snapshot.CurrentPeriodEnd)
	}
}

func TestRefundOfOnlyPeriodCancelsSnapshot(t *testing.T) {
	repo := newServiceSubscriptionRepo()
	svc := newSubscriptionServiceForTest(repo)
	start := time.Now().UTC()

	if err := svc.ApplyOrderStatus(context.Background(), paidOrder("order-1", "user-1", "starter"), start); err != nil {
		t.Fatalf("payment failed: %v", err)
	}

	refunded := paidOrder("order-1", "user-1", "starter")
	refunded.Status = types.OrderStatusRefunded
	refundAt := start.Add(24 * time.Hour)
	if err := svc.ApplyOrderStatus(context.Background(), refunded, refundAt); err != nil {
		t.Fatalf("refund failed: %v", err)
	}

	snapshot := repo.snapshots["user-1"]
	if snapshot.Status != types.SubscriptionStatusCanceled {
		t.Fatalf("expected canceled snapshot, got %s", snapshot.Status)
	}
	if snapshot.CurrentPeriodEnd.After(refundAt) {
		t.Fatalf("canceled snapshot must not advertise a future end, got %v", snapshot.CurrentPeriodEnd)
	}
}

func TestFailedOrderWithoutPeriodCancelsSnapshotDirectly(t *testing.T) {
	repo := newServiceSubscriptionRepo()
	now := time.Now().UTC()
	end := now.Add(30 * 24 * time.Hour)
	repo.snapshots["user-1"] = &entity.Subscription{
		UserID:           "user-1",
		PlanID:           "starter",
		Status:           types.SubscriptionStatusPending,
		OrderID:          "order-1",
		CurrentPeriodEnd: &end,
	}
	svc := newSubscriptionServiceForTest(repo)

	failed := paidOrder("order-1", "user-1", "starter")
	failed.Status = types.OrderStatusFailed
	if err := svc.ApplyOrderStatus(context.Background(), failed, now); err != nil {
		t.Fatalf("apply failed: %v", err)
	}

	if repo.snapshots["user-1"].Status != types.SubscriptionStatusCanceled {
		t.Fatalf("expected canceled snapshot, got %s", repo.snapshots["user-1"].Status)
	}
}

func TestDuplicatePaidDeliveryKeepsOnePeriod(t *testing.T) {
	repo := newServiceSubscriptionRepo()
	svc := newSubscriptionServiceForTest(repo)
	now := time.Now().UTC()

	if err := svc.ApplyOrderStatus(context.Background(), paidOrder("order-1", "user-1", "starter"), now); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	if err := svc.ApplyOrderStatus(context.Background(), paidOrder("order-1", "user-1", "starter"), now.Add(time.Minute)); err != nil {
		t.Fatalf("redelivery failed: %v", err)
	}

	if len(repo.periods) != 1 {
		t.Fatalf("redelivery must not create a second period, got %d", len(repo.periods))
	}
}

func TestPaidAfterCancelReactivatesPeriod(t *testing.T) {
	repo := newServiceSubscriptionRepo()
	svc := newSubscriptionServiceForTest(repo)
	start := time.Now().UTC()

	if err := svc.ApplyOrderStatus(context.Background(), paidOrder("order-1", "user-1", "starter"), start); err != nil {
		t.Fatalf("payment failed: %v", err)
	}
	refunded := paidOrder("order-1", "user-1", "starter")
	refunded.Status = types.OrderStatusRefunded
	if err := svc.ApplyOrderStatus(context.Background(), refunded, start.Add(time.Hour)); err != nil {
		t.Fatalf("refund failed: %v", err)
	}

	// A late PAID redelivery for the same order flips the period back.
	if err := svc.ApplyOrderStatus(context.Background(), paidOrder("order-1", "user-1", "starter"), start.Add(2*time.Hour)); err != nil {
		t.Fatalf("late paid delivery failed: %v", err)
	}

	if repo.periods[0].Status != types.PeriodStatusActive {
		t.Fatalf("expected reactivated period, got %s", repo.periods[0].Status)
	}
	if repo.snapshots["user-1"].Status != types.SubscriptionStatusActive {
		t.Fatalf("expected active snapshot, got %s", repo.snapshots["user-1"].Status)
	}
}

func TestUnrelatedStatusesDoNotTouchSubscriptions(t *testing.T) {
	repo := newServiceSubscriptionRepo()
	svc := newSubscriptionServiceForTest(repo)

	order := paidOrder("order-1", "user-1", "starter")
	order.Status = types.OrderStatusPending
	if err := svc.ApplyOrderStatus(context.Background(), order, time.Now().UTC()); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if len(repo.periods) != 0 || len(repo.snapshots) != 0 {
		t.Fatal("PENDING must not touch subscription state")
	}
}

func TestGetSubscriptionNotFound(t *testing.T) {
	svc := newSubscriptionServiceForTest(newServiceSubscriptionRepo())

	_, err := svc.GetSubscription(context.Background(), "user-1")
	if !errors.Is(err, ErrSubscriptionNotFound) {
		t.Fatalf("expected ErrSubscriptionNotFound, got %v", err)
	}
}
