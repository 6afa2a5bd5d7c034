package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/railway-berth-reservation/internal/model"
	"github.com/iliyamo/railway-berth-reservation/internal/queue"
	"github.com/iliyamo/railway-berth-reservation/internal/repository"
	"github.com/iliyamo/railway-berth-reservation/internal/reservation"
)

// MockTicketService is a mock implementation of TicketService
type MockTicketService struct {
	mock.Mock
}

func (m *MockTicketService) Book(ctx context.Context, passengers []reservation.PassengerInput) (*model.Ticket, error) {
	args := m.Called(ctx, passengers)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Ticket), args.Error(1)
}

func (m *MockTicketService) Cancel(ctx context.Context, ticketID uint64) (*reservation.CancelResult, error) {
	args := m.Called(ctx, ticketID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.CancelResult), args.Error(1)
}

func (m *MockTicketService) Availability(ctx context.Context) (*reservation.Availability, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.Availability), args.Error(1)
}

func (m *MockTicketService) ListBooked(ctx context.Context) (*reservation.BookedReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reservation.BookedReport), args.Error(1)
}

func (m *MockTicketService) Ticket(ctx context.Context, ticketID uint64) (*model.Ticket, error) {
	args := m.Called(ctx, ticketID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Ticket), args.Error(1)
}

// recordingPublisher forwards every event onto a channel.
type recordingPublisher struct {
	events chan queue.TicketEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.TicketEvent) error {
	p.events <- ev
	return nil
}

type countingCache struct{ calls int }

func (c *countingCache) Invalidate(context.Context) error {
	c.calls++
	return nil
}

func setupTicketRouter(h *TicketHandler) *echo.Echo {
	e := echo.New()
	g := e.Group("/api/v1/tickets")
	g.POST("/book", h.Book)
	g.POST("/cancel/:ticketId", h.Cancel)
	g.GET("/booked", h.Booked)
	g.GET("/available", h.Available)
	g.GET("/:ticketId", h.Get)
	return e
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	msg, _ := body["error"].(string)
	return msg
}

func TestBookSuccess(t *testing.T) {
	svc := new(MockTicketService)
	pub := &recordingPublisher{events: make(chan queue.TicketEvent, 4)}
	cache := &countingCache{}
	e := setupTicketRouter(NewTicketHandler(svc, pub, cache, nil))

	want := []reservation.PassengerInput{
		{Name: "Arjun", Age: 34, Gender: model.GenderMale},
		{Name: "Diya", Age: 3, Gender: model.GenderFemale},
	}
	ticket := &model.Ticket{ID: 5, Status: model.StatusConfirmed, CreatedAt: time.Now().UTC(), Passengers: []model.Passenger{
		{Name: "Arjun", Age: 34, Gender: model.GenderMale, BerthAllocation: &model.BerthAllocation{BerthType: model.BerthMiddle, BerthNumber: "M001"}},
		{Name: "Diya", Age: 3, Gender: model.GenderFemale},
	}}
	svc.On("Book", mock.Anything, want).Return(ticket, nil)

	rec := do(e, http.MethodPost, "/api/v1/tickets/book",
		`{"passengers":[{"name":" Arjun ","age":34,"gender":"male"},{"name":"Diya","age":3,"gender":"FEMALE"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var got model.Ticket
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, uint64(5), got.ID)
	assert.Equal(t, "M001", got.Passengers[0].BerthAllocation.BerthNumber)
	assert.Nil(t, got.Passengers[1].BerthAllocation)
	assert.Equal(t, 1, cache.calls)

	select {
	case ev := <-pub.events:
		assert.Equal(t, queue.TicketBooked, ev.Type)
		assert.Equal(t, uint64(5), ev.TicketID)
	case <-time.After(2 * time.Second):
		t.Fatal("booked event not published")
	}
	svc.AssertExpectations(t)
}

func TestBookValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed json", `{"passengers":`, "invalid request body"},
		{"no passengers", `{"passengers":[]}`, "at least one passenger is required"},
		{"blank name", `{"passengers":[{"name":"  ","age":30,"gender":"MALE"}]}`, "passengers[0]: name is required"},
		{"missing age", `{"passengers":[{"name":"A","gender":"MALE"}]}`, "passengers[0]: age is required"},
		{"fractional age", `{"passengers":[{"name":"A","age":30.5,"gender":"MALE"}]}`, "passengers[0]: age must be a non-negative integer"},
		{"negative age", `{"passengers":[{"name":"A","age":-1,"gender":"MALE"}]}`, "passengers[0]: age must be a non-negative integer"},
		{"bad gender", `{"passengers":[{"name":"A","age":30,"gender":"X"}]}`, "passengers[0]: gender must be one of MALE, FEMALE, OTHER"},
		{"children only", `{"passengers":[{"name":"A","age":4,"gender":"MALE"}]}`, "at least one adult passenger (age 5+) is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockTicketService)
			e := setupTicketRouter(NewTicketHandler(svc, nil, nil, nil))

			rec := do(e, http.MethodPost, "/api/v1/tickets/book", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.want, errorOf(t, rec))
			svc.AssertNotCalled(t, "Book", mock.Anything, mock.Anything)
		})
	}
}

func TestBookErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"no availability", reservation.ErrNoAvailability, http.StatusBadRequest, "No tickets available"},
		{"invariant", reservation.ErrAllocationExhausted, http.StatusInternalServerError, "internal server error"},
		{"store adjust guard", repository.ErrInvalidAdjustment, http.StatusInternalServerError, "internal server error"},
		{"timeout", context.DeadlineExceeded, http.StatusServiceUnavailable, "request timed out"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockTicketService)
			cache := &countingCache{}
			e := setupTicketRouter(NewTicketHandler(svc, nil, cache, nil))
			svc.On("Book", mock.Anything, mock.Anything).Return(nil, tt.err)

			rec := do(e, http.MethodPost, "/api/v1/tickets/book", `{"passengers":[{"name":"A","age":30,"gender":"MALE"}]}`)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.msg, errorOf(t, rec))
			assert.Zero(t, cache.calls, "failed writes leave the cache alone")
		})
	}
}

func TestCancel(t *testing.T) {
	svc := new(MockTicketService)
	pub := &recordingPublisher{events: make(chan queue.TicketEvent, 4)}
	e := setupTicketRouter(NewTicketHandler(svc, pub, nil, nil))

	cancelled := &model.Ticket{ID: 1, Status: model.StatusCancelled}
	promoted := &model.Ticket{ID: 2, Status: model.StatusConfirmed}
	svc.On("Cancel", mock.Anything, uint64(1)).Return(&reservation.CancelResult{
		Success:    true,
		TicketID:   1,
		Released:   map[model.InventoryClass]int{model.ClassLower: 1},
		Promotions: []reservation.Promotion{{TicketID: 2, From: model.StatusRAC, To: model.StatusConfirmed, Ticket: promoted}},
		Ticket:     cancelled,
	}, nil)

	rec := do(e, http.MethodPost, "/api/v1/tickets/cancel/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Success    bool `json:"success"`
		Promotions []struct {
			TicketID uint64 `json:"ticketId"`
			From     string `json:"from"`
			To       string `json:"to"`
		} `json:"promotions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	require.Len(t, body.Promotions, 1)
	assert.Equal(t, "RAC", body.Promotions[0].From)

	var types []queue.EventType
	for range 2 {
		select {
		case ev := <-pub.events:
			types = append(types, ev.Type)
		case <-time.After(2 * time.Second):
			t.Fatal("events not published")
		}
	}
	assert.Equal(t, []queue.EventType{queue.TicketCancelled, queue.TicketPromoted}, types)
}

func TestCancelRejections(t *testing.T) {
	svc := new(MockTicketService)
	e := setupTicketRouter(NewTicketHandler(svc, nil, nil, nil))
	svc.On("Cancel", mock.Anything, uint64(9999)).Return(nil, reservation.ErrInvalidTicketState)

	rec := do(e, http.MethodPost, "/api/v1/tickets/cancel/9999", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid or non-confirmed ticket", errorOf(t, rec))

	for _, raw := range []string{"0", "-3", "abc"} {
		rec := do(e, http.MethodPost, "/api/v1/tickets/cancel/"+raw, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, raw)
	}
	svc.AssertNumberOfCalls(t, "Cancel", 1)
}

func TestReadEndpoints(t *testing.T) {
	svc := new(MockTicketService)
	e := setupTicketRouter(NewTicketHandler(svc, nil, nil, nil))

	svc.On("Availability", mock.Anything).Return(&reservation.Availability{
		Summary: reservation.AvailabilitySummary{Confirmed: 63, RAC: 18, Waiting: 10, TotalAvailable: 91},
	}, nil)
	svc.On("ListBooked", mock.Anything).Return(&reservation.BookedReport{Tickets: []reservation.BookedTicket{}}, nil)
	svc.On("Ticket", mock.Anything, uint64(3)).Return(&model.Ticket{ID: 3, Status: model.StatusWaiting}, nil)
	svc.On("Ticket", mock.Anything, uint64(4)).Return(nil, repository.ErrTicketNotFound)

	rec := do(e, http.MethodGet, "/api/v1/tickets/available", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"totalAvailable":91`)
	assert.Contains(t, rec.Body.String(), `"availabilityDetails"`)

	rec = do(e, http.MethodGet, "/api/v1/tickets/booked", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"tickets":[]`)

	rec = do(e, http.MethodGet, "/api/v1/tickets/3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"WAITING"`)

	rec = do(e, http.MethodGet, "/api/v1/tickets/4", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	svc.On("ListBooked", mock.Anything).Unset()
	svc.On("ListBooked", mock.Anything).Return(nil, errors.New("db down"))
	rec = do(e, http.MethodGet, "/api/v1/tickets/booked", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type stubPinger struct{ err error }

func (p stubPinger) PingContext(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	e := echo.New()
	e.GET("/ok", Health(stubPinger{}))
	e.GET("/down", Health(stubPinger{err: errors.New("gone")}))
	e.GET("/nil", Health(nil))

	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/ok", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(e, http.MethodGet, "/down", "").Code)
	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/nil", "").Code)
}
