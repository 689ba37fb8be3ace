package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"voiceconfirm/pkg/utils"
)

// PostgresStore reads and mutates the orders table owned by the order CRUD
// service. Assumed schema:
//
//	orders (
//	  id, user_id, external_order_id,
//	  customer_name, customer_phone, customer_email,
//	  items JSONB, total_minor, currency,
//	  confirmation_status, call_attempts, max_call_attempts,
//	  last_call_date, confirmed_at, created_at, updated_at
//	)
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetForConfirmation(ctx context.Context, orderID, requesterID string, admin bool) (Order, error) {
	q := `
SELECT id, user_id, external_order_id,
       customer_name, customer_phone, COALESCE(customer_email, ''),
       items, total_minor, currency,
       confirmation_status, call_attempts, max_call_attempts,
       last_call_date, confirmed_at, created_at, updated_at
FROM orders
WHERE id = $1
`
	args := []any{orderID}
	if !admin {
		q += "  AND user_id = $2\n"
		args = append(args, requesterID)
	}

	var (
		o         Order
		itemsJSON []byte
		lastCall  sql.NullTime
		confirmed sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, q, args...).Scan(
		&o.ID,
		&o.UserID,
		&o.ExternalOrderID,
		&o.Customer.Name,
		&o.Customer.Phone,
		&o.Customer.Email,
		&itemsJSON,
		&o.Details.TotalMinor,
		&o.Details.Currency,
		&o.ConfirmationStatus,
		&o.CallAttempts,
		&o.MaxCallAttempts,
		&lastCall,
		&confirmed,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}

	if len(itemsJSON) > 0 {
		if err := json.Unmarshal(itemsJSON, &o.Details.Items); err != nil {
			return Order{}, fmt.Errorf("orders: decode items for %s: %w", o.ID, err)
		}
	}
	if lastCall.Valid {
		t := lastCall.Time
		o.LastCallDate = &t
	}
	if confirmed.Valid {
		t := confirmed.Time
		o.ConfirmedAt = &t
	}
	return o, nil
}

func (s *PostgresStore) IncrementAttempts(ctx context.Context, orderID string, at time.Time) error {
	// The WHERE clause is the atomic gate: the increment lands only while
	// budget remains, no matter how many initiations race. The follow-up
	// existence check shares the transaction so both statements see the same
	// snapshot.
	const q = `
UPDATE orders
SET call_attempts = call_attempts + 1,
    last_call_date = $2,
    updated_at = $2
WHERE id = $1
  AND call_attempts < max_call_attempts
`
	return utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, q, orderID, at)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}

		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrAttemptsExhausted
	})
}

func (s *PostgresStore) SetConfirmed(ctx context.Context, orderID string, at time.Time) error {
	// COALESCE keeps the first confirmation timestamp on webhook replays.
	const q = `
UPDATE orders
SET confirmation_status = 'confirmed',
    confirmed_at = COALESCE(confirmed_at, $2),
    updated_at = $2
WHERE id = $1
`
	res, err := s.db.ExecContext(ctx, q, orderID, at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
