// Package queue defines ticket lifecycle events and moves them over RabbitMQ.
package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/railway-berth-reservation/internal/model"
)

// EventType names a ticket lifecycle transition.
type EventType string

const (
	TicketBooked    EventType = "ticket.booked"
	TicketCancelled EventType = "ticket.cancelled"
	TicketPromoted  EventType = "ticket.promoted"
)

// TicketEvent is published after a booking or cancellation commits.  It
// carries enough for downstream consumers to log or notify without
// querying the primary store.
type TicketEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	TicketID   uint64    `json:"ticket_id"`
	Status     string    `json:"status"`
	FromStatus string    `json:"from_status,omitempty"`
	Passengers int       `json:"passengers"`
	Berths     []string  `json:"berths"`
	OccurredAt string    `json:"occurred_at"`
}

func newEvent(typ EventType, t *model.Ticket, at time.Time) TicketEvent {
	berths := make([]string, 0, len(t.Passengers))
	for _, p := range t.Passengers {
		if p.BerthAllocation != nil {
			berths = append(berths, p.BerthAllocation.BerthNumber)
		}
	}
	return TicketEvent{
		ID:         uuid.NewString(),
		Type:       typ,
		TicketID:   t.ID,
		Status:     string(t.Status),
		Passengers: len(t.Passengers),
		Berths:     berths,
		OccurredAt: at.UTC().Format(time.RFC3339),
	}
}

// BookedEvent describes a newly created ticket.
func BookedEvent(t *model.Ticket) TicketEvent {
	return newEvent(TicketBooked, t, t.CreatedAt)
}

// CancelledEvent describes a ticket that moved to CANCELLED.
func CancelledEvent(t *model.Ticket) TicketEvent {
	ev := newEvent(TicketCancelled, t, t.UpdatedAt)
	ev.FromStatus = string(model.StatusConfirmed)
	return ev
}

// PromotedEvent describes a ticket moved up one tier by a cancellation.
func PromotedEvent(t *model.Ticket, from model.TicketStatus) TicketEvent {
	ev := newEvent(TicketPromoted, t, t.UpdatedAt)
	ev.FromStatus = string(from)
	return ev
}
