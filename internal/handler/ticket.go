package handler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/railway-berth-reservation/internal/model"
	"github.com/iliyamo/railway-berth-reservation/internal/queue"
	"github.com/iliyamo/railway-berth-reservation/internal/reservation"
)

// TicketService is the booking engine as seen by the HTTP layer.
type TicketService interface {
	Book(ctx context.Context, passengers []reservation.PassengerInput) (*model.Ticket, error)
	Cancel(ctx context.Context, ticketID uint64) (*reservation.CancelResult, error)
	Availability(ctx context.Context) (*reservation.Availability, error)
	ListBooked(ctx context.Context) (*reservation.BookedReport, error)
	Ticket(ctx context.Context, ticketID uint64) (*model.Ticket, error)
}

// EventPublisher receives ticket events after a write commits.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.TicketEvent) error
}

// CacheInvalidator drops cached read responses after a write commits.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// publishTimeout bounds the background publish of one request's events.
const publishTimeout = 5 * time.Second

// TicketHandler serves /api/v1/tickets.  Events and cache are optional;
// leave them nil to run without a broker or Redis.
type TicketHandler struct {
	Service TicketService
	Events  EventPublisher
	Cache   CacheInvalidator
	Log     *zap.Logger
}

// NewTicketHandler constructs a TicketHandler.  svc must be non-nil.
func NewTicketHandler(svc TicketService, events EventPublisher, cache CacheInvalidator, log *zap.Logger) *TicketHandler {
	if svc == nil {
		panic("nil service passed to NewTicketHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TicketHandler{Service: svc, Events: events, Cache: cache, Log: log}
}

type passengerRequest struct {
	Name   string   `json:"name"`
	Age    *float64 `json:"age"`
	Gender string   `json:"gender"`
}

type bookRequest struct {
	Passengers []passengerRequest `json:"passengers"`
}

// Book handles POST /api/v1/tickets/book.  The body is
// {"passengers": [{"name", "age", "gender"}, ...]}; on success the new
// ticket is returned with 201 whatever tier it landed in.
func (h *TicketHandler) Book(c echo.Context) error {
	var body bookRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	passengers, err := validatePassengers(body.Passengers)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	ticket, err := h.Service.Book(c.Request().Context(), passengers)
	if err != nil {
		return h.writeError(c, err)
	}
	h.afterWrite(c.Request().Context(), queue.BookedEvent(ticket))
	return c.JSON(http.StatusCreated, ticket)
}

// Cancel handles POST /api/v1/tickets/cancel/:ticketId.  Only CONFIRMED
// tickets can be cancelled; the response lists the promotions the
// cancellation triggered.
func (h *TicketHandler) Cancel(c echo.Context) error {
	id, ok := parseTicketID(c.Param("ticketId"))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ticketId must be a positive integer"})
	}
	res, err := h.Service.Cancel(c.Request().Context(), id)
	if err != nil {
		return h.writeError(c, err)
	}

	events := make([]queue.TicketEvent, 0, len(res.Promotions)+1)
	if res.Ticket != nil {
		events = append(events, queue.CancelledEvent(res.Ticket))
	}
	for _, p := range res.Promotions {
		if p.Ticket != nil {
			events = append(events, queue.PromotedEvent(p.Ticket, p.From))
		}
	}
	h.afterWrite(c.Request().Context(), events...)
	return c.JSON(http.StatusOK, res)
}

// Booked handles GET /api/v1/tickets/booked.
func (h *TicketHandler) Booked(c echo.Context) error {
	report, err := h.Service.ListBooked(c.Request().Context())
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

// Available handles GET /api/v1/tickets/available.
func (h *TicketHandler) Available(c echo.Context) error {
	a, err := h.Service.Availability(c.Request().Context())
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, a)
}

// Get handles GET /api/v1/tickets/:ticketId.
func (h *TicketHandler) Get(c echo.Context) error {
	id, ok := parseTicketID(c.Param("ticketId"))
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ticketId must be a positive integer"})
	}
	t, err := h.Service.Ticket(c.Request().Context(), id)
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// afterWrite drops cached reads synchronously so the next GET sees the
// commit, then publishes events in the background.  Neither failure
// affects the response.
func (h *TicketHandler) afterWrite(ctx context.Context, events ...queue.TicketEvent) {
	if h.Cache != nil {
		if err := h.Cache.Invalidate(ctx); err != nil {
			h.Log.Warn("cache invalidation failed", zap.Error(err))
		}
	}
	if h.Events == nil || len(events) == 0 {
		return
	}
	go func() {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		for _, ev := range events {
			if err := h.Events.Publish(pctx, ev); err != nil {
				h.Log.Warn("event publish failed",
					zap.String("event", string(ev.Type)), zap.Uint64("ticket_id", ev.TicketID), zap.Error(err))
			}
		}
	}()
}

// writeError maps engine errors onto status codes.  Invariant violations
// and store failures are hidden behind a generic message.
func (h *TicketHandler) writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, reservation.ErrNoAvailability):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "No tickets available"})
	case errors.Is(err, reservation.ErrInvalidTicketState):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid or non-confirmed ticket"})
	case errors.Is(err, reservation.ErrNoAdults):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "at least one adult passenger (age 5+) is required"})
	case errors.Is(err, reservation.ErrTicketNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "ticket not found"})
	case errors.Is(err, context.DeadlineExceeded):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "request timed out"})
	}
	h.Log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
}

// validatePassengers checks the request shape and converts it to engine
// input.  Errors name the offending passenger by its index.
func validatePassengers(in []passengerRequest) ([]reservation.PassengerInput, error) {
	if len(in) == 0 {
		return nil, errors.New("at least one passenger is required")
	}
	out := make([]reservation.PassengerInput, 0, len(in))
	hasAdult := false
	for i, p := range in {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, fmt.Errorf("passengers[%d]: name is required", i)
		}
		if p.Age == nil {
			return nil, fmt.Errorf("passengers[%d]: age is required", i)
		}
		age := *p.Age
		if age < 0 || age != math.Trunc(age) || age > math.MaxInt32 {
			return nil, fmt.Errorf("passengers[%d]: age must be a non-negative integer", i)
		}
		gender := model.Gender(strings.ToUpper(strings.TrimSpace(p.Gender)))
		if !gender.Valid() {
			return nil, fmt.Errorf("passengers[%d]: gender must be one of MALE, FEMALE, OTHER", i)
		}
		if int(age) >= model.AdultAge {
			hasAdult = true
		}
		out = append(out, reservation.PassengerInput{Name: name, Age: int(age), Gender: gender})
	}
	if !hasAdult {
		return nil, errors.New("at least one adult passenger (age 5+) is required")
	}
	return out, nil
}

func parseTicketID(raw string) (uint64, bool) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
