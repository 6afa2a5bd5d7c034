package reservation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/iliyamo/railway-berth-reservation/internal/database"
	"github.com/iliyamo/railway-berth-reservation/internal/model"
	"github.com/iliyamo/railway-berth-reservation/internal/repository"
)

// Promotion records one ticket moved up a tier by a cancellation.
type Promotion struct {
	TicketID uint64             `json:"ticketId"`
	From     model.TicketStatus `json:"from"`
	To       model.TicketStatus `json:"to"`
	Ticket   *model.Ticket      `json:"-"` // state after promotion
}

// CancelResult acknowledges a cancellation and lists the cascade it caused.
type CancelResult struct {
	Success    bool                         `json:"success"`
	TicketID   uint64                       `json:"ticketId"`
	Released   map[model.InventoryClass]int `json:"released"`
	Promotions []Promotion                  `json:"promotions"`
	Ticket     *model.Ticket                `json:"-"` // the cancelled ticket
}

// Cancel cancels a CONFIRMED ticket, releases its berths and promotes
// waiting demand in arrival order: RAC tickets into the freed confirmed
// berths first, then waiting tickets into free RAC slots.  Release and
// cascade commit or roll back together.
func (e *Engine) Cancel(ctx context.Context, ticketID uint64) (*CancelResult, error) {
	ctx, span := e.tracer.Start(ctx, "reservation.Cancel",
		trace.WithAttributes(attribute.Int64("ticket.id", int64(ticketID))))
	defer span.End()

	ctx, cancel := e.txContext(ctx)
	defer cancel()

	result := &CancelResult{TicketID: ticketID, Promotions: []Promotion{}}
	err := database.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		// Inventory is always locked first so every writer takes locks in
		// the same order.
		if _, err := e.inventory.LockAllTx(ctx, tx); err != nil {
			return err
		}
		ticket, err := e.tickets.GetForUpdateTx(ctx, tx, ticketID)
		if errors.Is(err, repository.ErrTicketNotFound) {
			return fmt.Errorf("%w: ticket %d does not exist", ErrInvalidTicketState, ticketID)
		}
		if err != nil {
			return err
		}
		if ticket.Status != model.StatusConfirmed {
			return fmt.Errorf("%w: ticket %d is %s", ErrInvalidTicketState, ticketID, ticket.Status)
		}

		released := make(map[model.InventoryClass]int)
		freed := 0
		for _, p := range ticket.Passengers {
			if p.BerthAllocation != nil {
				released[p.BerthAllocation.BerthType.InventoryClass()]++
				freed++
			}
		}
		for _, class := range model.InventoryClasses {
			if err := e.inventory.AdjustTx(ctx, tx, class, released[class]); err != nil {
				return err
			}
		}
		now := e.now()
		if err := e.tickets.UpdateStatusTx(ctx, tx, ticketID, model.StatusCancelled, now); err != nil {
			return err
		}
		ticket.Status = model.StatusCancelled
		ticket.UpdatedAt = now
		result.Ticket = ticket
		result.Released = released

		promoted, err := e.promoteRAC(ctx, tx, freed)
		if err != nil {
			return err
		}
		result.Promotions = append(result.Promotions, promoted...)

		promoted, err = e.promoteWaiting(ctx, tx)
		if err != nil {
			return err
		}
		result.Promotions = append(result.Promotions, promoted...)
		return nil
	})
	if err != nil {
		return nil, e.fail(span, "cancel", err, zap.Uint64("ticket_id", ticketID))
	}

	result.Success = true
	span.SetAttributes(attribute.Int("promotions", len(result.Promotions)))
	e.log.Info("ticket cancelled",
		zap.Uint64("ticket_id", ticketID),
		zap.Int("released", sum(result.Released)),
		zap.Int("promotions", len(result.Promotions)))
	return result, nil
}

// promoteRAC moves RAC tickets, oldest first, into confirmed berths while
// freed berths remain.  A ticket with more adults than freed berths is
// skipped, not a stopping point; a later smaller ticket may still fit.
func (e *Engine) promoteRAC(ctx context.Context, tx *sql.Tx, freed int) ([]Promotion, error) {
	if freed <= 0 {
		return nil, nil
	}
	candidates, err := e.tickets.ListByStatusTx(ctx, tx, model.StatusRAC)
	if err != nil {
		return nil, err
	}
	var out []Promotion
	for i := range candidates {
		if freed <= 0 {
			break
		}
		t := &candidates[i]
		adults := t.Adults()
		if len(adults) > freed {
			continue
		}
		inv, err := e.inventory.LockAllTx(ctx, tx)
		if err != nil {
			return nil, err
		}
		plan := planConfirmed(adults, t.HasChild(), countsFrom(inv))
		if len(plan) != len(adults) {
			e.log.Debug("rac ticket deferred",
				zap.Uint64("ticket_id", t.ID), zap.Int("adults", len(adults)), zap.Int("placeable", len(plan)))
			continue
		}

		if err := e.assignBerths(ctx, tx, adults, plan); err != nil {
			return nil, err
		}
		for _, p := range adults {
			if err := e.tickets.UpsertBerthTx(ctx, tx, p.ID, *p.BerthAllocation); err != nil {
				return nil, err
			}
		}
		now := e.now()
		if err := e.tickets.UpdateStatusTx(ctx, tx, t.ID, model.StatusConfirmed, now); err != nil {
			return nil, err
		}
		if err := e.inventory.AdjustTx(ctx, tx, model.ClassRAC, len(adults)); err != nil {
			return nil, err
		}
		if err := e.consume(ctx, tx, tally(plan)); err != nil {
			return nil, err
		}
		freed -= len(adults)

		t.Status = model.StatusConfirmed
		t.UpdatedAt = now
		out = append(out, Promotion{TicketID: t.ID, From: model.StatusRAC, To: model.StatusConfirmed, Ticket: t})
	}
	return out, nil
}

// promoteWaiting moves waiting tickets, oldest first, onto side lower
// berths while RAC slots remain.  The RAC count is read once and tracked
// locally from then on.
func (e *Engine) promoteWaiting(ctx context.Context, tx *sql.Tx) ([]Promotion, error) {
	inv, err := e.inventory.LockAllTx(ctx, tx)
	if err != nil {
		return nil, err
	}
	racFree := inv.Available(model.ClassRAC)
	if racFree <= 0 {
		return nil, nil
	}
	candidates, err := e.tickets.ListByStatusTx(ctx, tx, model.StatusWaiting)
	if err != nil {
		return nil, err
	}
	var out []Promotion
	for i := range candidates {
		if racFree <= 0 {
			break
		}
		t := &candidates[i]
		adults := t.Adults()
		if len(adults) > racFree {
			continue
		}

		plan := make([]model.BerthType, len(adults))
		for j := range plan {
			plan[j] = model.BerthSideLower
		}
		if err := e.assignBerths(ctx, tx, adults, plan); err != nil {
			return nil, err
		}
		for _, p := range adults {
			if err := e.tickets.UpsertBerthTx(ctx, tx, p.ID, *p.BerthAllocation); err != nil {
				return nil, err
			}
		}
		now := e.now()
		if err := e.tickets.UpdateStatusTx(ctx, tx, t.ID, model.StatusRAC, now); err != nil {
			return nil, err
		}
		if err := e.inventory.AdjustTx(ctx, tx, model.ClassRAC, -len(adults)); err != nil {
			return nil, err
		}
		if err := e.inventory.AdjustTx(ctx, tx, model.ClassWaiting, len(adults)); err != nil {
			return nil, err
		}
		racFree -= len(adults)

		t.Status = model.StatusRAC
		t.UpdatedAt = now
		out = append(out, Promotion{TicketID: t.ID, From: model.StatusWaiting, To: model.StatusRAC, Ticket: t})
	}
	return out, nil
}

func sum(m map[model.InventoryClass]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}
