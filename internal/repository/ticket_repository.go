package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/railway-berth-reservation/internal/database"
	"github.com/iliyamo/railway-berth-reservation/internal/model"
)

// TicketRepo persists tickets together with their passengers and berth
// allocations.  Passengers keep their request order through the position
// column.  Timestamps are stored as UTC milliseconds.
type TicketRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

// NewTicketRepo returns a new TicketRepo bound to the given database.
func NewTicketRepo(db *sql.DB, d database.Dialect) *TicketRepo {
	return &TicketRepo{db: db, dialect: d}
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// CreateTx inserts t, its passengers and any berth allocations they carry.
// The generated IDs are written back into t.
func (r *TicketRepo) CreateTx(ctx context.Context, tx *sql.Tx, t *model.Ticket) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO tickets (status, created_at, updated_at) VALUES (?, ?, ?)`,
		string(t.Status), toMillis(t.CreatedAt), toMillis(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	t.ID = uint64(id)

	for i := range t.Passengers {
		p := &t.Passengers[i]
		p.TicketID = t.ID
		p.Position = i
		res, err := tx.ExecContext(ctx,
			`INSERT INTO passengers (ticket_id, position, name, age, gender) VALUES (?, ?, ?, ?, ?)`,
			t.ID, p.Position, p.Name, p.Age, string(p.Gender))
		if err != nil {
			return fmt.Errorf("insert passenger %d: %w", i, err)
		}
		pid, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert passenger %d: %w", i, err)
		}
		p.ID = uint64(pid)
		if p.BerthAllocation != nil {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO berth_allocations (passenger_id, berth_type, berth_number) VALUES (?, ?, ?)`,
				p.ID, string(p.BerthAllocation.BerthType), p.BerthAllocation.BerthNumber); err != nil {
				return fmt.Errorf("insert berth allocation for passenger %d: %w", p.ID, err)
			}
		}
	}
	return nil
}

// GetForUpdateTx loads one ticket and locks its row for the rest of tx.
func (r *TicketRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Ticket, error) {
	return r.getOne(ctx, tx, id, r.dialect.ForUpdate())
}

// Get loads one ticket without locking.
func (r *TicketRepo) Get(ctx context.Context, id uint64) (*model.Ticket, error) {
	return r.getOne(ctx, r.db, id, "")
}

func (r *TicketRepo) getOne(ctx context.Context, q querier, id uint64, lock string) (*model.Ticket, error) {
	tickets, err := r.list(ctx, q, `WHERE id = ?`+lock, id)
	if err != nil {
		return nil, err
	}
	if len(tickets) == 0 {
		return nil, fmt.Errorf("%w: %d", ErrTicketNotFound, id)
	}
	return &tickets[0], nil
}

// ListByStatusTx returns every ticket with the given status, oldest first,
// and locks those rows for the rest of tx.
func (r *TicketRepo) ListByStatusTx(ctx context.Context, tx *sql.Tx, status model.TicketStatus) ([]model.Ticket, error) {
	return r.list(ctx, tx, `WHERE status = ? ORDER BY created_at ASC, id ASC`+r.dialect.ForUpdate(), string(status))
}

// ListActiveTx returns CONFIRMED, RAC and WAITING tickets oldest first.  It
// runs inside tx so tickets and passengers come from the same snapshot.
func (r *TicketRepo) ListActiveTx(ctx context.Context, tx *sql.Tx) ([]model.Ticket, error) {
	return r.list(ctx, tx, `WHERE status IN (?, ?, ?) ORDER BY created_at ASC, id ASC`,
		string(model.StatusConfirmed), string(model.StatusRAC), string(model.StatusWaiting))
}

// UpdateStatusTx moves a ticket to status.
func (r *TicketRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status model.TicketStatus, at time.Time) error {
	res, err := tx.ExecContext(ctx, `UPDATE tickets SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), toMillis(at), id)
	if err != nil {
		return fmt.Errorf("update ticket %d status: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update ticket %d status: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrTicketNotFound, id)
	}
	return nil
}

// UpsertBerthTx creates the passenger's allocation or overwrites it in place.
func (r *TicketRepo) UpsertBerthTx(ctx context.Context, tx *sql.Tx, passengerID uint64, alloc model.BerthAllocation) error {
	q := `INSERT INTO berth_allocations (passenger_id, berth_type, berth_number) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE berth_type = VALUES(berth_type), berth_number = VALUES(berth_number)`
	if r.dialect == database.SQLite {
		q = `INSERT INTO berth_allocations (passenger_id, berth_type, berth_number) VALUES (?, ?, ?)
		ON CONFLICT(passenger_id) DO UPDATE SET berth_type = excluded.berth_type, berth_number = excluded.berth_number`
	}
	if _, err := tx.ExecContext(ctx, q, passengerID, string(alloc.BerthType), alloc.BerthNumber); err != nil {
		return fmt.Errorf("upsert berth for passenger %d: %w", passengerID, err)
	}
	return nil
}

// list selects tickets matching clause and attaches their passengers.
func (r *TicketRepo) list(ctx context.Context, q querier, clause string, args ...any) ([]model.Ticket, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, status, created_at, updated_at FROM tickets `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("query tickets: %w", err)
	}
	var tickets []model.Ticket
	for rows.Next() {
		var t model.Ticket
		var status string
		var created, updated int64
		if err := rows.Scan(&t.ID, &status, &created, &updated); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		t.Status = model.TicketStatus(status)
		t.CreatedAt = fromMillis(created)
		t.UpdatedAt = fromMillis(updated)
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// The result set must be closed before the next query on a
	// single-connection pool.
	rows.Close()

	if len(tickets) == 0 {
		return tickets, nil
	}
	if err := r.attachPassengers(ctx, q, tickets); err != nil {
		return nil, err
	}
	return tickets, nil
}

func (r *TicketRepo) attachPassengers(ctx context.Context, q querier, tickets []model.Ticket) error {
	index := make(map[uint64]int, len(tickets))
	ids := make([]any, 0, len(tickets))
	for i, t := range tickets {
		index[t.ID] = i
		ids = append(ids, t.ID)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := `SELECT p.id, p.ticket_id, p.position, p.name, p.age, p.gender, b.berth_type, b.berth_number
		FROM passengers p
		LEFT JOIN berth_allocations b ON b.passenger_id = p.id
		WHERE p.ticket_id IN (` + placeholders + `)
		ORDER BY p.ticket_id, p.position`
	rows, err := q.QueryContext(ctx, query, ids...)
	if err != nil {
		return fmt.Errorf("query passengers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p model.Passenger
		var gender string
		var berthType, berthNumber sql.NullString
		if err := rows.Scan(&p.ID, &p.TicketID, &p.Position, &p.Name, &p.Age, &gender, &berthType, &berthNumber); err != nil {
			return fmt.Errorf("scan passenger: %w", err)
		}
		p.Gender = model.Gender(gender)
		if berthType.Valid {
			p.BerthAllocation = &model.BerthAllocation{
				BerthType:   model.BerthType(berthType.String),
				BerthNumber: berthNumber.String,
			}
		}
		i, ok := index[p.TicketID]
		if !ok {
			return errors.New("passenger row for unexpected ticket")
		}
		tickets[i].Passengers = append(tickets[i].Passengers, p)
	}
	return rows.Err()
}
