package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/railway-berth-reservation/internal/database"
	"github.com/iliyamo/railway-berth-reservation/internal/model"
)

// InventoryRepo reads and adjusts the seat_inventory counters.  Every
// mutating method runs inside the caller's transaction.
type InventoryRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewInventoryRepo returns a new InventoryRepo bound to the given database.
func NewInventoryRepo(db *sql.DB, d database.Dialect) *InventoryRepo {
	return &InventoryRepo{db: db, dialect: d}
}

const selectInventory = `SELECT class, available, capacity FROM seat_inventory ORDER BY class`

// ReadAll returns a snapshot of every row.  A single statement is enough
// for a consistent view, so no transaction is opened.
func (r *InventoryRepo) ReadAll(ctx context.Context) (model.Inventory, error) {
	rows, err := r.db.QueryContext(ctx, selectInventory)
	if err != nil {
		return nil, fmt.Errorf("read inventory: %w", err)
	}
	return scanInventory(rows)
}

// LockAllTx reads every row and holds a write-intent lock on all of them
// until tx ends.  Rows are locked in primary key order so concurrent
// callers cannot deadlock against each other.
func (r *InventoryRepo) LockAllTx(ctx context.Context, tx *sql.Tx) (model.Inventory, error) {
	rows, err := tx.QueryContext(ctx, selectInventory+r.dialect.ForUpdate())
	if err != nil {
		return nil, fmt.Errorf("lock inventory: %w", err)
	}
	return scanInventory(rows)
}

func scanInventory(rows *sql.Rows) (model.Inventory, error) {
	defer rows.Close()
	inv := make(model.Inventory, len(model.InventoryClasses))
	for rows.Next() {
		var row model.SeatInventory
		var class string
		if err := rows.Scan(&class, &row.Available, &row.Capacity); err != nil {
			return nil, err
		}
		row.Class = model.InventoryClass(class)
		inv[row.Class] = row
	}
	return inv, rows.Err()
}

// AdjustTx adds delta (which may be negative) to the available count of
// class.  The UPDATE is guarded so it only matches while the result stays
// within [0, capacity]; a miss yields ErrInvalidAdjustment.  A zero delta
// issues no statement.
func (r *InventoryRepo) AdjustTx(ctx context.Context, tx *sql.Tx, class model.InventoryClass, delta int) error {
	if !class.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}
	if delta == 0 {
		return nil
	}
	const q = `UPDATE seat_inventory SET available = available + ?
		WHERE class = ? AND available + ? >= 0 AND available + ? <= capacity`
	res, err := tx.ExecContext(ctx, q, delta, string(class), delta, delta)
	if err != nil {
		return fmt.Errorf("adjust %s: %w", class, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("adjust %s: %w", class, err)
	}
	if n != 1 {
		return fmt.Errorf("%w: %s by %+d", ErrInvalidAdjustment, class, delta)
	}
	return nil
}

// IssueBerthNumbersTx reserves n consecutive berth sequence numbers for
// class and returns the first one.  Numbers start at 1 and are never
// reused, including across promotions.
func (r *InventoryRepo) IssueBerthNumbersTx(ctx context.Context, tx *sql.Tx, class model.InventoryClass, n int) (int, error) {
	if !class.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}
	if n <= 0 {
		return 0, fmt.Errorf("issue berth numbers for %s: count must be positive, got %d", class, n)
	}
	res, err := tx.ExecContext(ctx, `UPDATE seat_inventory SET issued = issued + ? WHERE class = ?`, n, string(class))
	if err != nil {
		return 0, fmt.Errorf("issue berth numbers for %s: %w", class, err)
	}
	if affected, err := res.RowsAffected(); err != nil {
		return 0, fmt.Errorf("issue berth numbers for %s: %w", class, err)
	} else if affected != 1 {
		return 0, fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}
	var issued int
	if err := tx.QueryRowContext(ctx, `SELECT issued FROM seat_inventory WHERE class = ?`, string(class)).Scan(&issued); err != nil {
		return 0, fmt.Errorf("issue berth numbers for %s: %w", class, err)
	}
	return issued - n + 1, nil
}
