package reservation

import (
	"fmt"

	"github.com/iliyamo/railway-berth-reservation/internal/model"
)

// PassengerInput is one passenger on a booking request.  Order matters: it
// decides who gets a lower berth first and how berth numbers are handed out.
type PassengerInput struct {
	Name   string
	Age    int
	Gender model.Gender
}

type tier int

const (
	tierConfirmed tier = iota
	tierRAC
	tierWaiting
)

func (t tier) status() model.TicketStatus {
	switch t {
	case tierRAC:
		return model.StatusRAC
	case tierWaiting:
		return model.StatusWaiting
	}
	return model.StatusConfirmed
}

// selectTier picks the first tier that can seat every adult.
func selectTier(inv model.Inventory, numAdults int) (tier, error) {
	switch {
	case inv.ConfirmedAvailable() >= numAdults:
		return tierConfirmed, nil
	case inv.Available(model.ClassRAC) >= numAdults:
		return tierRAC, nil
	case inv.Available(model.ClassWaiting) >= numAdults:
		return tierWaiting, nil
	}
	return 0, ErrNoAvailability
}

// eligibleForLower: seniors, and women travelling with a child on the same ticket.
func eligibleForLower(p *model.Passenger, hasChild bool) bool {
	return p.IsSenior() || (p.Gender == model.GenderFemale && hasChild)
}

// berthCounts are the free confirmed berths a plan may still hand out.
type berthCounts struct {
	lower, middle, upper int
}

func countsFrom(inv model.Inventory) berthCounts {
	return berthCounts{
		lower:  inv.Available(model.ClassLower),
		middle: inv.Available(model.ClassMiddle),
		upper:  inv.Available(model.ClassUpper),
	}
}

// planConfirmed assigns a berth class to each adult in order.  Preference
// per adult is LOWER when eligible, then MIDDLE, then UPPER, then LOWER as
// a fallback.  It stops at the first adult that cannot be placed, so a
// result shorter than adults means the counts were insufficient.
func planConfirmed(adults []*model.Passenger, hasChild bool, c berthCounts) []model.BerthType {
	plan := make([]model.BerthType, 0, len(adults))
	for _, p := range adults {
		switch {
		case eligibleForLower(p, hasChild) && c.lower > 0:
			c.lower--
			plan = append(plan, model.BerthLower)
		case c.middle > 0:
			c.middle--
			plan = append(plan, model.BerthMiddle)
		case c.upper > 0:
			c.upper--
			plan = append(plan, model.BerthUpper)
		case c.lower > 0:
			c.lower--
			plan = append(plan, model.BerthLower)
		default:
			return plan
		}
	}
	return plan
}

// tally counts berths per inventory class.
func tally(plan []model.BerthType) map[model.InventoryClass]int {
	out := make(map[model.InventoryClass]int, len(plan))
	for _, b := range plan {
		out[b.InventoryClass()]++
	}
	return out
}

// berthNumber formats a berth number such as L001 or SL012.
func berthNumber(b model.BerthType, seq int) string {
	return fmt.Sprintf("%s%03d", b.Prefix(), seq)
}

// partition splits a ticket's passengers into adults, who need a berth,
// and the number of children riding with them.
func partition(t *model.Ticket) (adults []*model.Passenger, children int) {
	adults = t.Adults()
	return adults, len(t.Passengers) - len(adults)
}

// newTicket builds an unsaved ticket with passengers in request order.
func newTicket(inputs []PassengerInput) *model.Ticket {
	t := &model.Ticket{Passengers: make([]model.Passenger, 0, len(inputs))}
	for _, in := range inputs {
		t.Passengers = append(t.Passengers, model.Passenger{
			Name:   in.Name,
			Age:    in.Age,
			Gender: in.Gender,
		})
	}
	return t
}
