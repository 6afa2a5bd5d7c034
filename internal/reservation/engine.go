// Package reservation allocates berths at booking time and runs the
// RAC/waiting promotion cascade when a confirmed ticket is cancelled.
// Every mutating operation is a single store transaction that first locks
// the whole seat inventory, so concurrent requests observe each other's
// counters strictly one after another.
package reservation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/iliyamo/railway-berth-reservation/internal/database"
	"github.com/iliyamo/railway-berth-reservation/internal/model"
)

const tracerName = "github.com/iliyamo/railway-berth-reservation/internal/reservation"

// InventoryStore holds the per-class counters.  Tx methods run inside the
// caller's transaction.
type InventoryStore interface {
	ReadAll(ctx context.Context) (model.Inventory, error)
	LockAllTx(ctx context.Context, tx *sql.Tx) (model.Inventory, error)
	AdjustTx(ctx context.Context, tx *sql.Tx, class model.InventoryClass, delta int) error
	IssueBerthNumbersTx(ctx context.Context, tx *sql.Tx, class model.InventoryClass, n int) (int, error)
}

// TicketRepository persists ticket aggregates.
type TicketRepository interface {
	CreateTx(ctx context.Context, tx *sql.Tx, t *model.Ticket) error
	Get(ctx context.Context, id uint64) (*model.Ticket, error)
	GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Ticket, error)
	ListByStatusTx(ctx context.Context, tx *sql.Tx, status model.TicketStatus) ([]model.Ticket, error)
	ListActiveTx(ctx context.Context, tx *sql.Tx) ([]model.Ticket, error)
	UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status model.TicketStatus, at time.Time) error
	UpsertBerthTx(ctx context.Context, tx *sql.Tx, passengerID uint64, alloc model.BerthAllocation) error
}

// Engine books and cancels tickets against a shared inventory.
type Engine struct {
	db        *sql.DB
	inventory InventoryStore
	tickets   TicketRepository
	log       *zap.Logger
	tracer    trace.Tracer
	txTimeout time.Duration
	now       func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger; the default discards everything.
func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.log = l } }

// WithTxTimeout bounds each booking or cancellation transaction.  Zero
// leaves the caller's context untouched.
func WithTxTimeout(d time.Duration) Option { return func(e *Engine) { e.txTimeout = d } }

// WithClock overrides the source of ticket timestamps.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithTracerProvider takes spans from tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracer = tp.Tracer(tracerName) }
}

// NewEngine returns an Engine that runs its transactions on db.
func NewEngine(db *sql.DB, inventory InventoryStore, tickets TicketRepository, opts ...Option) *Engine {
	e := &Engine{
		db:        db,
		inventory: inventory,
		tickets:   tickets,
		log:       zap.NewNop(),
		tracer:    otel.Tracer(tracerName),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Book allocates a tier for the passengers and persists the new ticket.
// Adults get a confirmed berth when enough LOWER, MIDDLE and UPPER berths
// remain, otherwise a side lower RAC berth, otherwise a waiting slot.
// Children ride with the adults and never hold a berth.
func (e *Engine) Book(ctx context.Context, passengers []PassengerInput) (*model.Ticket, error) {
	ctx, span := e.tracer.Start(ctx, "reservation.Book",
		trace.WithAttributes(attribute.Int("passengers", len(passengers))))
	defer span.End()

	ticket := newTicket(passengers)
	adults, children := partition(ticket)
	if len(adults) == 0 {
		return nil, e.fail(span, "book", ErrNoAdults)
	}
	hasChild := children > 0

	ctx, cancel := e.txContext(ctx)
	defer cancel()

	err := database.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		inv, err := e.inventory.LockAllTx(ctx, tx)
		if err != nil {
			return err
		}
		t, err := selectTier(inv, len(adults))
		if err != nil {
			return err
		}

		switch t {
		case tierConfirmed:
			plan := planConfirmed(adults, hasChild, countsFrom(inv))
			if len(plan) != len(adults) {
				return fmt.Errorf("%w: placed %d of %d adults", ErrAllocationExhausted, len(plan), len(adults))
			}
			if err := e.assignBerths(ctx, tx, adults, plan); err != nil {
				return err
			}
			if err := e.consume(ctx, tx, tally(plan)); err != nil {
				return err
			}
		case tierRAC:
			plan := make([]model.BerthType, len(adults))
			for i := range plan {
				plan[i] = model.BerthSideLower
			}
			if err := e.assignBerths(ctx, tx, adults, plan); err != nil {
				return err
			}
			if err := e.inventory.AdjustTx(ctx, tx, model.ClassRAC, -len(adults)); err != nil {
				return err
			}
		case tierWaiting:
			if err := e.inventory.AdjustTx(ctx, tx, model.ClassWaiting, -len(adults)); err != nil {
				return err
			}
		}

		now := e.now()
		ticket.Status = t.status()
		ticket.CreatedAt = now
		ticket.UpdatedAt = now
		return e.tickets.CreateTx(ctx, tx, ticket)
	})
	if err != nil {
		return nil, e.fail(span, "book", err, zap.Int("adults", len(adults)))
	}

	span.SetAttributes(attribute.Int64("ticket.id", int64(ticket.ID)), attribute.String("ticket.status", string(ticket.Status)))
	e.log.Info("ticket booked",
		zap.Uint64("ticket_id", ticket.ID),
		zap.String("status", string(ticket.Status)),
		zap.Int("adults", len(adults)),
		zap.Int("passengers", len(ticket.Passengers)))
	return ticket, nil
}

// assignBerths issues berth numbers for plan and attaches the resulting
// allocation to each adult.  plan[i] belongs to adults[i].
func (e *Engine) assignBerths(ctx context.Context, tx *sql.Tx, adults []*model.Passenger, plan []model.BerthType) error {
	need := make(map[model.BerthType]int, len(model.BerthTypes))
	for _, b := range plan {
		need[b]++
	}
	next := make(map[model.BerthType]int, len(need))
	for _, b := range model.BerthTypes {
		if need[b] == 0 {
			continue
		}
		first, err := e.inventory.IssueBerthNumbersTx(ctx, tx, b.InventoryClass(), need[b])
		if err != nil {
			return err
		}
		next[b] = first
	}
	for i, p := range adults {
		b := plan[i]
		p.BerthAllocation = &model.BerthAllocation{BerthType: b, BerthNumber: berthNumber(b, next[b])}
		next[b]++
	}
	return nil
}

// consume decrements each confirmed class once by its count.
func (e *Engine) consume(ctx context.Context, tx *sql.Tx, counts map[model.InventoryClass]int) error {
	for _, class := range []model.InventoryClass{model.ClassLower, model.ClassMiddle, model.ClassUpper} {
		if err := e.inventory.AdjustTx(ctx, tx, class, -counts[class]); err != nil {
			return err
		}
	}
	return nil
}

// Ticket returns a single ticket by ID.
func (e *Engine) Ticket(ctx context.Context, id uint64) (*model.Ticket, error) {
	ctx, span := e.tracer.Start(ctx, "reservation.Ticket",
		trace.WithAttributes(attribute.Int64("ticket.id", int64(id))))
	defer span.End()

	t, err := e.tickets.Get(ctx, id)
	if err != nil {
		return nil, e.fail(span, "ticket", err, zap.Uint64("ticket_id", id))
	}
	return t, nil
}

func (e *Engine) txContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.txTimeout > 0 {
		return context.WithTimeout(ctx, e.txTimeout)
	}
	return ctx, func() {}
}

// fail records err on the span and logs it at a level matching its kind.
// Invariant violations are tagged so they can be alerted on separately.
func (e *Engine) fail(span trace.Span, op string, err error, fields ...zap.Field) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	fields = append(fields, zap.String("op", op), zap.Error(err))
	switch {
	case IsInvariantViolation(err):
		e.log.Error("inventory invariant violated", append(fields, zap.Bool("invariant", true))...)
	case IsRejection(err):
		e.log.Info("request rejected", fields...)
	case errors.Is(err, context.DeadlineExceeded):
		e.log.Warn("transaction timed out", fields...)
	default:
		e.log.Error("transaction failed", fields...)
	}
	return err
}
