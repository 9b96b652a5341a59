// Package sqlite is the SQLite-backed journal.Repository.
//
// WAL mode lets the reconciliation endpoint read while checkouts append.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jcmexdev/storefront/internal/checkout/journal"

	// Pure-Go driver, registered as "sqlite"; no CGO needed in the image.
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by GetLatest for an unknown checkout.
var ErrNotFound = errors.New("sqlite: checkout not found")

// schema is append-only: each row is one transition. The latest row per
// checkout_id is its current state.
const schema = `
CREATE TABLE IF NOT EXISTS checkout_journal (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    checkout_id     TEXT    NOT NULL,
    status          TEXT    NOT NULL,
    step            TEXT    NOT NULL DEFAULT '',
    buyer_id        TEXT    NOT NULL DEFAULT '',
    order_id        TEXT    NOT NULL DEFAULT '',
    transaction_id  TEXT    NOT NULL DEFAULT '',
    amount          TEXT    NOT NULL DEFAULT '',
    -- JSON cart, written once on STARTED.
    payload         TEXT,
    error_messages  TEXT    NOT NULL DEFAULT '[]',
    trace_id        TEXT    NOT NULL DEFAULT '',
    span_id         TEXT    NOT NULL DEFAULT '',
    updated_at      TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_checkout_journal_checkout ON checkout_journal(checkout_id, updated_at);
CREATE INDEX IF NOT EXISTS idx_checkout_journal_status   ON checkout_journal(status, updated_at);
CREATE INDEX IF NOT EXISTS idx_checkout_journal_trace    ON checkout_journal(trace_id);
`

const timeLayout = "2006-01-02T15:04:05.000000000Z"

var _ journal.Repository = (*Repository)(nil)

type Repository struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
//
//	repo, err := sqlite.Open("./data/checkout.db")
func Open(path string) (*Repository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	// One writer connection; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) Save(ctx context.Context, e *journal.Entry) error {
	const q = `
		INSERT INTO checkout_journal
			(checkout_id, status, step, buyer_id, order_id, transaction_id, amount,
			 payload, error_messages, trace_id, span_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, q,
		e.CheckoutID,
		string(e.Status),
		e.Step,
		e.BuyerID,
		e.OrderID,
		e.TransactionID,
		e.Amount,
		nullableString(e.Payload),
		e.ErrorMessages,
		e.TraceID,
		e.SpanID,
		e.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save journal entry for %q: %w", e.CheckoutID, err)
	}
	return nil
}

const selectColumns = `
	SELECT checkout_id, status, step, buyer_id, order_id, transaction_id, amount,
	       COALESCE(payload, ''), error_messages, trace_id, span_id, updated_at
	FROM   checkout_journal`

func (r *Repository) GetLatest(ctx context.Context, checkoutID string) (*journal.Entry, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+`
		WHERE  checkout_id = ?
		ORDER  BY updated_at DESC, id DESC
		LIMIT  1`, checkoutID)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, checkoutID)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get latest for %q: %w", checkoutID, err)
	}
	return e, nil
}

func (r *Repository) ListByStatus(ctx context.Context, status journal.Status, limit int) ([]journal.Entry, error) {
	q := selectColumns + `
		WHERE  status = ?
		ORDER  BY updated_at DESC, id DESC`
	args := []any{string(status)}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list %s: %w", status, err)
	}
	defer rows.Close()

	var out []journal.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan %s: %w", status, err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*journal.Entry, error) {
	var e journal.Entry
	var updatedAt string
	err := s.Scan(
		&e.CheckoutID,
		&e.Status,
		&e.Step,
		&e.BuyerID,
		&e.OrderID,
		&e.TransactionID,
		&e.Amount,
		&e.Payload,
		&e.ErrorMessages,
		&e.TraceID,
		&e.SpanID,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("sqlite: parse time %q: %w", updatedAt, err)
	}
	return &e, nil
}

// nullableString stores NULL instead of '' for rows without a payload.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
