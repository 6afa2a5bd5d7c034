// Package router wires handlers and middleware onto an Echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/railway-berth-reservation/internal/handler"
)

// RegisterRoutes registers the health check.  It is served outside the
// API group so load balancers are never rate limited or cached.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterTickets registers the ticket API under /api/v1/tickets.  Writes
// pass through the rate limiter; the cache sits on the read endpoints only.
func RegisterTickets(e *echo.Echo, h *handler.TicketHandler, limiter, cache echo.MiddlewareFunc) {
	g := e.Group("/api/v1/tickets")

	g.POST("/book", h.Book, limiter)
	g.POST("/cancel/:ticketId", h.Cancel, limiter)

	g.GET("/booked", h.Booked, cache)
	g.GET("/available", h.Available, cache)
	g.GET("/:ticketId", h.Get)
}
