package model

import "time"

const (
	// AdultAge is the age from which a passenger consumes a berth.
	AdultAge = 5
	// SeniorAge is the age from which a passenger is entitled to a lower berth.
	SeniorAge = 60
)

// Ticket is one booking covering one or more passengers.  Tickets are
// never deleted; cancellation only moves them to CANCELLED.
//
// Fields:
//
//	ID         – tickets.id.
//	Status     – current tier (CONFIRMED, RAC, WAITING, CANCELLED).
//	CreatedAt  – creation time; the only ordering key for promotions.
//	UpdatedAt  – time of the last status change.
//	Passengers – passengers in the order they were submitted.
type Ticket struct {
	ID         uint64       `json:"id"`
	Status     TicketStatus `json:"status"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
	Passengers []Passenger  `json:"passengers"`
}

// Passenger belongs to exactly one ticket.
type Passenger struct {
	ID              uint64           `json:"id"`       // passengers.id
	TicketID        uint64           `json:"ticketId"` // passengers.ticket_id
	Position        int              `json:"-"`        // passengers.position (request order)
	Name            string           `json:"name"`
	Age             int              `json:"age"`
	Gender          Gender           `json:"gender"`
	BerthAllocation *BerthAllocation `json:"berthAllocation"` // nil for children and waiting passengers
}

// BerthAllocation is the berth held by one adult passenger.
type BerthAllocation struct {
	BerthType   BerthType `json:"berthType"`
	BerthNumber string    `json:"berthNumber"`
}

// IsAdult reports whether the passenger consumes a berth.
func (p Passenger) IsAdult() bool { return p.Age >= AdultAge }

// IsSenior reports whether the passenger is a senior citizen.
func (p Passenger) IsSenior() bool { return p.Age >= SeniorAge }

// Adults returns pointers to the adult passengers in request order so
// callers can attach allocations in place.
func (t *Ticket) Adults() []*Passenger {
	out := make([]*Passenger, 0, len(t.Passengers))
	for i := range t.Passengers {
		if t.Passengers[i].IsAdult() {
			out = append(out, &t.Passengers[i])
		}
	}
	return out
}

// HasChild reports whether any passenger on the ticket is under AdultAge.
func (t *Ticket) HasChild() bool {
	for _, p := range t.Passengers {
		if !p.IsAdult() {
			return true
		}
	}
	return false
}
