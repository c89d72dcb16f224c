package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/odin-workspace/ms-go-billing/app/entity"
	"github.com/odin-workspace/ms-go-billing/app/types"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderAlreadyExists = errors.New("order already exists")
)

const orderColumns = `order_id, user_id, idempotency_key, plan_id, gross_amount, currency,
		customer_name, customer_email, customer_phone,
		status, snap_token, transaction_status, fraud_status, status_code,
		last_notification_json, paid_at, created_at, updated_at`

// PaymentOrderRepository owns all payment_orders writes. Status changes go
// through conditional updates ("claims") that match on the current status;
// a false return means another writer got there first and the caller must
// re-read.
type PaymentOrderRepository struct {
	db DBTX
}

func NewPaymentOrderRepository(db DBTX) *PaymentOrderRepository {
	return &PaymentOrderRepository{db: db}
}

func (r *PaymentOrderRepository) Create(ctx context.Context, order *entity.PaymentOrder) error {
	query := `
		INSERT INTO payment_orders (
			order_id, user_id, idempotency_key, plan_id, gross_amount, currency,
			customer_name, customer_email, customer_phone,
			status, snap_token, transaction_status, fraud_status, status_code,
			last_notification_json, paid_at, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		order.OrderID,
		order.UserID,
		nullableStringValue(order.IdempotencyKey),
		order.PlanID,
		order.GrossAmount,
		order.Currency,
		order.CustomerName,
		order.CustomerEmail,
		order.CustomerPhone,
		string(order.Status),
		nullableStringValue(order.SnapToken),
		nullableStringValue(order.TransactionStatus),
		nullableStringValue(order.FraudStatus),
		nullableStringValue(order.StatusCode),
		nullableStringValue(order.LastNotificationJSON),
		nullableTimeValue(order.PaidAt),
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return ErrOrderAlreadyExists
		}
		return err
	}

	return nil
}

func (r *PaymentOrderRepository) FindByOrderID(ctx context.Context, orderID string) (*entity.PaymentOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM payment_orders WHERE order_id = ?`

	order := &entity.PaymentOrder{}
	if err := scanOrder(r.db.QueryRowContext(ctx, query, orderID), order); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return order, nil
}

func (r *PaymentOrderRepository) FindByUserAndOrderID(ctx context.Context, userID, orderID string) (*entity.PaymentOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM payment_orders WHERE user_id = ? AND order_id = ?`

	order := &entity.PaymentOrder{}
	if err := scanOrder(r.db.QueryRowContext(ctx, query, userID, orderID), order); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return order, nil
}

func (r *PaymentOrderRepository) FindByUserAndKey(ctx context.Context, userID, idempotencyKey string) (*entity.PaymentOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM payment_orders WHERE user_id = ? AND idempotency_key = ? LIMIT 1`

	order := &entity.PaymentOrder{}
	if err := scanOrder(r.db.QueryRowContext(ctx, query, userID, idempotencyKey), order); err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return order, nil
}

// TryTransition moves the order to next only if its current status is in
// expected. Returns whether exactly one row matched.
func (r *PaymentOrderRepository) TryTransition(ctx context.Context, orderID string, expected []types.OrderStatus, next types.OrderStatus, now time.Time) (bool, error) {
	if len(expected) == 0 {
		return false, errors.New("expected statuses must not be empty")
	}

	placeholders := strings.Repeat(", ?", len(expected))[2:]
	query := `UPDATE payment_orders SET status = ?, updated_at = ? WHERE order_id = ? AND status IN (` + placeholders + `)`

	args := make([]interface{}, 0, len(expected)+3)
	args = append(args, string(next), now, orderID)
	for _, status := range expected {
		args = append(args, string(status))
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// TryClaimRetry reclaims a failed, token-less order for a new checkout
// attempt.
func (r *PaymentOrderRepository) TryClaimRetry(ctx context.Context, orderID string, now time.Time) (bool, error) {
	query := `
		UPDATE payment_orders SET status = ?, updated_at = ?
		WHERE order_id = ? AND status = ? AND snap_token IS NULL
	`

	result, err := r.db.ExecContext(ctx, query,
		string(types.OrderStatusCreating), now, orderID, string(types.OrderStatusFailed))
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// TrySetSnapToken stores the checkout token and marks the order CREATED,
// unless another attempt already stored one.
func (r *PaymentOrderRepository) TrySetSnapToken(ctx context.Context, orderID, token string, now time.Time) (bool, error) {
	query := `
		UPDATE payment_orders SET snap_token = ?, status = ?, updated_at = ?
		WHERE order_id = ? AND snap_token IS NULL
	`

	result, err := r.db.ExecContext(ctx, query,
		token, string(types.OrderStatusCreated), now, orderID)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// NotificationUpdate is the last-write-wins status application for gateway
// notifications. PaidAt is a candidate value: COALESCE keeps the stored
// timestamp once set.
type NotificationUpdate struct {
	OrderID           string
	Status            types.OrderStatus
	TransactionStatus *string
	FraudStatus       *string
	StatusCode        *string
	RawJSON           string
	PaidAt            *time.Time
	Now               time.Time
}

func (r *PaymentOrderRepository) ApplyNotification(ctx context.Context, update NotificationUpdate) error {
	query := `
		UPDATE payment_orders SET
			status = ?,
			transaction_status = ?,
			fraud_status = ?,
			status_code = ?,
			last_notification_json = ?,
			paid_at = COALESCE(paid_at, ?),
			updated_at = ?
		WHERE order_id = ?
	`

	result, err := r.db.ExecContext(ctx, query,
		string(update.Status),
		nullableStringValue(update.TransactionStatus),
		nullableStringValue(update.FraudStatus),
		nullableStringValue(update.StatusCode),
		update.RawJSON,
		nullableTimeValue(update.PaidAt),
		update.Now,
		update.OrderID,
	)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrOrderNotFound
	}

	return nil
}

// ListStale returns orders stuck in the given statuses since before the
// cutoff, oldest first. Used by the background reconcile sweep.
func (r *PaymentOrderRepository) ListStale(ctx context.Context, statuses []types.OrderStatus, before time.Time, limit int32) ([]*entity.PaymentOrder, error) {
	if len(statuses) == 0 {
		return []*entity.PaymentOrder{}, nil
	}

	placeholders := strings.Repeat(", ?", len(statuses))[2:]
	query := `SELECT ` + orderColumns + ` FROM payment_orders
		WHERE status IN (` + placeholders + `) AND updated_at <= ?
		ORDER BY updated_at ASC
		LIMIT ?`

	args := make([]interface{}, 0, len(statuses)+2)
	for _, status := range statuses {
		args = append(args, string(status))
	}
	args = append(args, before, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]*entity.PaymentOrder, 0)
	for rows.Next() {
		item := &entity.PaymentOrder{}
		if err := scanOrder(rows, item); err != nil {
			return nil, err
		}
		orders = append(orders, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}

func scanOrder(scan rowScanner, order *entity.PaymentOrder) error {
	var idempotencyKey sql.NullString
	var snapToken sql.NullString
	var transactionStatus sql.NullString
	var fraudStatus sql.NullString
	var statusCode sql.NullString
	var lastNotification sql.NullString
	var paidAt sql.NullTime
	var status string

	err := scan.Scan(
		&order.OrderID,
		&order.UserID,
		&idempotencyKey,
		&order.PlanID,
		&order.GrossAmount,
		&order.Currency,
		&order.CustomerName,
		&order.CustomerEmail,
		&order.CustomerPhone,
		&status,
		&snapToken,
		&transactionStatus,
		&fraudStatus,
		&statusCode,
		&lastNotification,
		&paidAt,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return err
	}

	order.Status = types.OrderStatus(status)
	order.IdempotencyKey = stringPtrFromNull(idempotencyKey)
	order.SnapToken = stringPtrFromNull(snapToken)
	order.TransactionStatus = stringPtrFromNull(transactionStatus)
	order.FraudStatus = stringPtrFromNull(fraudStatus)
	order.StatusCode = stringPtrFromNull(statusCode)
	order.LastNotificationJSON = stringPtrFromNull(lastNotification)
	order.PaidAt = timePtrFromNull(paidAt)

	return nil
}
