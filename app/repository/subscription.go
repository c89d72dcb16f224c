package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/odin-workspace/ms-go-billing/app/entity"
	"github.com/odin-workspace/ms-go-billing/app/types"
)

var ErrPeriodAlreadyExists = errors.New("subscription period already exists")

const periodColumns = `id, order_id, user_id, plan_id, status, period_start, period_end, created_at, updated_at`

// SubscriptionRepository owns subscription_periods and the subscriptions
// snapshot table. Only the reconciler writes through it.
type SubscriptionRepository struct {
	db DBTX
}

func NewSubscriptionRepository(db DBTX) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) InsertPeriod(ctx context.Context, period *entity.SubscriptionPeriod) error {
	query := `
		INSERT INTO subscription_periods (
			order_id, user_id, plan_id, status, period_start, period_end, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		period.OrderID,
		period.UserID,
		period.PlanID,
		string(period.Status),
		period.PeriodStart,
		period.PeriodEnd,
		period.CreatedAt,
		period.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrPeriodAlreadyExists
		}
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	period.ID = uint64(id)

	return nil
}

func (r *SubscriptionRepository) FindPeriodByOrderID(ctx context.Context, orderID string) (*entity.SubscriptionPeriod, error) {
	query := `SELECT ` + periodColumns + ` FROM subscription_periods WHERE order_id = ?`

	period := &entity.SubscriptionPeriod{}
	if err := scanPeriod(r.db.QueryRowContext(ctx, query, orderID), period); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return period, nil
}

// FindLatestActivePeriod returns the user's active period with the latest
// end, or nil.
func (r *SubscriptionRepository) FindLatestActivePeriod(ctx context.Context, userID string) (*entity.SubscriptionPeriod, error) {
	query := `SELECT ` + periodColumns + ` FROM subscription_periods
		WHERE user_id = ? AND status = ?
		ORDER BY period_end DESC
		LIMIT 1`

	period := &entity.SubscriptionPeriod{}
	if err := scanPeriod(r.db.QueryRowContext(ctx, query, userID, string(types.PeriodStatusActive)), period); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return period, nil
}

func (r *SubscriptionRepository) ListPeriodsByUser(ctx context.Context, userID string) ([]*entity.SubscriptionPeriod, error) {
	query := `SELECT ` + periodColumns + ` FROM subscription_periods WHERE user_id = ? ORDER BY period_end DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	periods := make([]*entity.SubscriptionPeriod, 0)
	for rows.Next() {
		item := &entity.SubscriptionPeriod{}
		if err := scanPeriod(rows, item); err != nil {
			return nil, err
		}
		periods = append(periods, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return periods, nil
}

func (r *SubscriptionRepository) UpdatePeriodStatus(ctx context.Context, id uint64, status types.PeriodStatus, now time.Time) error {
	query := `UPDATE subscription_periods SET status = ?, updated_at = ? WHERE id = ?`

	_, err := r.db.ExecContext(ctx, query, string(status), now, id)
	return err
}

func (r *SubscriptionRepository) FindSnapshot(ctx context.Context, userID string) (*entity.Subscription, error) {
	query := `
		SELECT user_id, plan_id, status, order_id, started_at, current_period_end, created_at, updated_at
		FROM subscriptions
		WHERE user_id = ?
	`

	snapshot := &entity.Subscription{}
	var status string
	var startedAt, periodEnd sql.NullTime
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&snapshot.UserID,
		&snapshot.PlanID,
		&status,
		&snapshot.OrderID,
		&startedAt,
		&periodEnd,
		&snapshot.CreatedAt,
		&snapshot.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	snapshot.Status = types.SubscriptionStatus(status)
	snapshot.StartedAt = timePtrFromNull(startedAt)
	snapshot.CurrentPeriodEnd = timePtrFromNull(periodEnd)

	return snapshot, nil
}

// UpsertSnapshot writes the recomputed snapshot. started_at is sticky: the
// stored value wins once set, and current_period_end never regresses to
// null.
func (r *SubscriptionRepository) UpsertSnapshot(ctx context.Context, snapshot *entity.Subscription) error {
	query := `
		INSERT INTO subscriptions (
			user_id, plan_id, status, order_id, started_at, current_period_end, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			plan_id = VALUES(plan_id),
			status = VALUES(status),
			order_id = VALUES(order_id),
			started_at = COALESCE(started_at, VALUES(started_at)),
			current_period_end = COALESCE(VALUES(current_period_end), current_period_end),
			updated_at = VALUES(updated_at)
	`

	_, err := r.db.ExecContext(ctx, query,
		snapshot.UserID,
		snapshot.PlanID,
		string(snapshot.Status),
		snapshot.OrderID,
		nullableTimeValue(snapshot.StartedAt),
		nullableTimeValue(snapshot.CurrentPeriodEnd),
		snapshot.CreatedAt,
		snapshot.UpdatedAt,
	)
	return err
}

// CancelSnapshotForOrder flags the snapshot canceled when the canceled order
// is the one it currently points at and no period was ever materialized.
func (r *SubscriptionRepository) CancelSnapshotForOrder(ctx context.Context, userID, orderID string, now time.Time) (bool, error) {
	query := `
		UPDATE subscriptions SET status = ?, current_period_end = ?, updated_at = ?
		WHERE user_id = ? AND order_id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		string(types.SubscriptionStatusCanceled), now, now, userID, orderID)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func scanPeriod(scan rowScanner, period *entity.SubscriptionPeriod) error {
	var status string
	err := scan.Scan(
		&period.ID,
		&period.OrderID,
		&period.UserID,
		&period.PlanID,
		&status,
		&period.PeriodStart,
		&period.PeriodEnd,
		&period.CreatedAt,
		&period.UpdatedAt,
	)
	if err != nil {
		return err
	}

	period.Status = types.PeriodStatus(status)
	return nil
}
