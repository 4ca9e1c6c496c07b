package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when an order does not exist.
var ErrNotFound = errors.New("order: not found")

// Order carries the fields the payment bridge needs to open a checkout
// session. Amount is kept as the decimal string the gateway expects.
type Order struct {
	ID        string
	Amount    string
	Currency  string
	Items     string
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Address   string
	City      string
	Country   string
}

// Store is the order collaborator: it supplies order identifiers, amounts
// and customer fields, and records attempt outcomes for diagnostics. The
// authoritative payment status is written out-of-band by the gateway's
// notify webhook consumer, not by this service.
type Store interface {
	Get(ctx context.Context, id string) (Order, error)
	RecordAttempt(ctx context.Context, id, outcome, message string) error
}

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	Pool *pgxpool.Pool
}

const getOrderSQL = `
SELECT id, amount::text, currency, items_description,
       first_name, last_name, email, phone, address, city, country
FROM orders
WHERE id = $1`

// Get loads one order by id.
func (s PGStore) Get(ctx context.Context, id string) (Order, error) {
	if s.Pool == nil {
		return Order{}, errors.New("order: pool not configured")
	}
	var o Order
	err := s.Pool.QueryRow(ctx, getOrderSQL, id).Scan(
		&o.ID, &o.Amount, &o.Currency, &o.Items,
		&o.FirstName, &o.LastName, &o.Email, &o.Phone,
		&o.Address, &o.City, &o.Country,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("order: get %s: %w", id, err)
	}
	return o, nil
}

const insertAttemptSQL = `
INSERT INTO payment_attempts (order_id, outcome, message, created_at)
VALUES ($1, $2, $3, now())`

// RecordAttempt appends a diagnostic attempt record. Outcomes are the
// bridge's terminal outcomes; TIMEOUT rows stay unresolved until the
// upstream webhook consumer reconciles them.
func (s PGStore) RecordAttempt(ctx context.Context, id, outcome, message string) error {
	if s.Pool == nil {
		return errors.New("order: pool not configured")
	}
	if _, err := s.Pool.Exec(ctx, insertAttemptSQL, id, outcome, message); err != nil {
		return fmt.Errorf("order: record attempt for %s: %w", id, err)
	}
	return nil
}
