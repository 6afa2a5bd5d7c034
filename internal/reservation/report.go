package reservation

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/railway-berth-reservation/internal/database"
	"github.com/iliyamo/railway-berth-reservation/internal/model"
)

// ClassAvailability is the free and total slots of one inventory row.
type ClassAvailability struct {
	Available int `json:"available"`
	Capacity  int `json:"capacity"`
}

// AvailabilityDetails breaks availability down per inventory row.
type AvailabilityDetails struct {
	Lower   ClassAvailability `json:"lower"`
	Middle  ClassAvailability `json:"middle"`
	Upper   ClassAvailability `json:"upper"`
	RAC     ClassAvailability `json:"rac"`
	Waiting ClassAvailability `json:"waiting"`
}

// AvailabilitySummary totals free slots per tier.
type AvailabilitySummary struct {
	Confirmed      int `json:"confirmed"`
	RAC            int `json:"rac"`
	Waiting        int `json:"waiting"`
	TotalAvailable int `json:"totalAvailable"`
}

// Availability is a read-only snapshot of the inventory.
type Availability struct {
	Details AvailabilityDetails `json:"availabilityDetails"`
	Summary AvailabilitySummary `json:"summary"`
}

// Availability reports the free and total slots of every inventory row.
// It takes no locks and never writes.
func (e *Engine) Availability(ctx context.Context) (*Availability, error) {
	ctx, span := e.tracer.Start(ctx, "reservation.Availability")
	defer span.End()

	inv, err := e.inventory.ReadAll(ctx)
	if err != nil {
		return nil, e.fail(span, "availability", err)
	}
	row := func(c model.InventoryClass) ClassAvailability {
		return ClassAvailability{Available: inv[c].Available, Capacity: inv[c].Capacity}
	}
	return &Availability{
		Details: AvailabilityDetails{
			Lower:   row(model.ClassLower),
			Middle:  row(model.ClassMiddle),
			Upper:   row(model.ClassUpper),
			RAC:     row(model.ClassRAC),
			Waiting: row(model.ClassWaiting),
		},
		Summary: AvailabilitySummary{
			Confirmed:      inv.ConfirmedAvailable(),
			RAC:            inv.Available(model.ClassRAC),
			Waiting:        inv.Available(model.ClassWaiting),
			TotalAvailable: inv.TotalAvailable(),
		},
	}, nil
}

// BookedBerth is the berth shown next to a passenger in the booked listing.
type BookedBerth struct {
	Type   model.BerthType `json:"type"`
	Number string          `json:"number"`
}

// BookedPassenger is one passenger line of the booked listing.
type BookedPassenger struct {
	Name   string       `json:"name"`
	Age    int          `json:"age"`
	Gender model.Gender `json:"gender"`
	Berth  *BookedBerth `json:"berth"`
}

// BookedPassengers groups a ticket's passengers with their count.
type BookedPassengers struct {
	Count   int               `json:"count"`
	Details []BookedPassenger `json:"details"`
}

// BookedTicket is one active ticket of the booked listing.
type BookedTicket struct {
	TicketID   uint64             `json:"ticketId"`
	Status     model.TicketStatus `json:"status"`
	CreatedAt  time.Time          `json:"createdAt"`
	Passengers BookedPassengers   `json:"passengers"`
}

// BookedSummary aggregates the booked listing.
type BookedSummary struct {
	TotalTickets               int     `json:"totalTickets"`
	Confirmed                  int     `json:"confirmed"`
	RAC                        int     `json:"rac"`
	Waiting                    int     `json:"waiting"`
	TotalPassengers            int     `json:"totalPassengers"`
	Adults                     int     `json:"adults"`
	Children                   int     `json:"children"`
	Seniors                    int     `json:"seniors"`
	LadiesWithChildrenTickets  int     `json:"ladiesWithChildrenTickets"`
	AveragePassengersPerTicket float64 `json:"averagePassengersPerTicket"`
}

// BookedReport lists every active ticket, oldest first.
type BookedReport struct {
	Tickets []BookedTicket `json:"tickets"`
	Summary BookedSummary  `json:"summary"`
}

// ListBooked returns all CONFIRMED, RAC and WAITING tickets with their
// passengers and allocations.  The listing is read in one transaction so
// tickets and allocations come from the same committed state.
func (e *Engine) ListBooked(ctx context.Context) (*BookedReport, error) {
	ctx, span := e.tracer.Start(ctx, "reservation.ListBooked")
	defer span.End()

	var tickets []model.Ticket
	err := database.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		var err error
		tickets, err = e.tickets.ListActiveTx(ctx, tx)
		return err
	})
	if err != nil {
		return nil, e.fail(span, "list_booked", err)
	}
	return buildReport(tickets), nil
}

func buildReport(tickets []model.Ticket) *BookedReport {
	report := &BookedReport{Tickets: make([]BookedTicket, 0, len(tickets))}
	s := &report.Summary
	for i := range tickets {
		t := &tickets[i]
		bt := BookedTicket{
			TicketID:  t.ID,
			Status:    t.Status,
			CreatedAt: t.CreatedAt,
			Passengers: BookedPassengers{
				Count:   len(t.Passengers),
				Details: make([]BookedPassenger, 0, len(t.Passengers)),
			},
		}
		hasLady := false
		for _, p := range t.Passengers {
			line := BookedPassenger{Name: p.Name, Age: p.Age, Gender: p.Gender}
			if p.BerthAllocation != nil {
				line.Berth = &BookedBerth{Type: p.BerthAllocation.BerthType, Number: p.BerthAllocation.BerthNumber}
			}
			bt.Passengers.Details = append(bt.Passengers.Details, line)

			if p.IsAdult() {
				s.Adults++
				if p.Gender == model.GenderFemale {
					hasLady = true
				}
			} else {
				s.Children++
			}
			if p.IsSenior() {
				s.Seniors++
			}
		}

		s.TotalTickets++
		s.TotalPassengers += len(t.Passengers)
		switch t.Status {
		case model.StatusConfirmed:
			s.Confirmed++
		case model.StatusRAC:
			s.RAC++
		case model.StatusWaiting:
			s.Waiting++
		}
		if hasLady && t.HasChild() {
			s.LadiesWithChildrenTickets++
		}
		report.Tickets = append(report.Tickets, bt)
	}
	s.AveragePassengersPerTicket = float64(s.TotalPassengers) / float64(max(s.TotalTickets, 1))
	return report
}
