// Package repository defines error types that are reused across multiple
// repositories.  Higher layers match them with errors.Is.
package repository

import "errors"

// ErrInvalidAdjustment is returned when an inventory adjustment would push
// available outside [0, capacity].  It signals a logic or isolation
// defect, never a user error.
var ErrInvalidAdjustment = errors.New("invalid inventory adjustment")

// ErrUnknownClass is returned for an inventory class with no row.
var ErrUnknownClass = errors.New("unknown inventory class")

// ErrTicketNotFound is returned when no ticket has the requested ID.
var ErrTicketNotFound = errors.New("ticket not found")
