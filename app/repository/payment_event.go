package repository

import (
	"context"
	"database/sql"

	"github.com/odin-workspace/ms-go-billing/app/entity"
)

// PaymentEventRepository appends to the payment_events audit log. Rows are
// immutable once written.
type PaymentEventRepository struct {
	db DBTX
}

func NewPaymentEventRepository(db DBTX) *PaymentEventRepository {
	return &PaymentEventRepository{db: db}
}

func (r *PaymentEventRepository) Create(ctx context.Context, event *entity.PaymentEvent) error {
	query := `
		INSERT INTO payment_events (order_id, event_type, payload_json, created_at)
		VALUES (?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		event.OrderID,
		event.EventType,
		nullableStringValue(event.PayloadJSON),
		event.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	event.ID = uint64(id)

	return nil
}

// FindLatestByType returns the most recent event of the given type for the
// order, or nil. The coordinator uses it to recover a token whose
// confirmation write was lost.
func (r *PaymentEventRepository) FindLatestByType(ctx context.Context, orderID, eventType string) (*entity.PaymentEvent, error) {
	query := `
		SELECT id, order_id, event_type, payload_json, created_at
		FROM payment_events
		WHERE order_id = ? AND event_type = ?
		ORDER BY id DESC
		LIMIT 1
	`

	event := &entity.PaymentEvent{}
	var payload sql.NullString
	err := r.db.QueryRowContext(ctx, query, orderID, eventType).Scan(
		&event.ID,
		&event.OrderID,
		&event.EventType,
		&payload,
		&event.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	event.PayloadJSON = stringPtrFromNull(payload)
	return event, nil
}
