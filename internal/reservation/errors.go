package reservation

import (
	"errors"

	"github.com/iliyamo/railway-berth-reservation/internal/repository"
)

var (
	// ErrNoAvailability means no tier can hold all adults on the request.
	ErrNoAvailability = errors.New("no tickets available")
	// ErrInvalidTicketState means the ticket does not exist or is not CONFIRMED.
	ErrInvalidTicketState = errors.New("invalid or non-confirmed ticket")
	// ErrNoAdults means the request has no passenger aged AdultAge or above.
	ErrNoAdults = errors.New("at least one adult passenger (age 5+) is required for berth allocation")
	// ErrAllocationExhausted means confirmed-tier assignment ran out of berths
	// after tier selection said there were enough.  It is unreachable unless
	// the inventory changed under the transaction.
	ErrAllocationExhausted = errors.New("failed to allocate confirmed berths")
	// ErrTicketNotFound is returned by lookups of an unknown ticket ID.
	ErrTicketNotFound = repository.ErrTicketNotFound
)

// IsInvariantViolation reports whether err indicates a logic or isolation
// defect rather than a business rejection.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrAllocationExhausted) || errors.Is(err, repository.ErrInvalidAdjustment)
}

// IsRejection reports whether err is an expected business outcome.
func IsRejection(err error) bool {
	return errors.Is(err, ErrNoAvailability) ||
		errors.Is(err, ErrInvalidTicketState) ||
		errors.Is(err, ErrNoAdults) ||
		errors.Is(err, ErrTicketNotFound)
}
