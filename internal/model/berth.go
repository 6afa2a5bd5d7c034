package model

// InventoryClass identifies one row of the seat_inventory table.  The three
// berth classes make up the confirmed tier; RAC and WAITING are queues with
// their own capacity.
type InventoryClass string

const (
	ClassLower   InventoryClass = "LOWER"
	ClassMiddle  InventoryClass = "MIDDLE"
	ClassUpper   InventoryClass = "UPPER"
	ClassRAC     InventoryClass = "RAC"
	ClassWaiting InventoryClass = "WAITING"
)

// InventoryClasses lists every inventory row in lock order.
var InventoryClasses = []InventoryClass{ClassLower, ClassMiddle, ClassUpper, ClassRAC, ClassWaiting}

// Valid reports whether c names a known inventory row.
func (c InventoryClass) Valid() bool {
	switch c {
	case ClassLower, ClassMiddle, ClassUpper, ClassRAC, ClassWaiting:
		return true
	}
	return false
}

// BerthType is the physical berth a passenger is allocated.
type BerthType string

const (
	BerthLower     BerthType = "LOWER"
	BerthMiddle    BerthType = "MIDDLE"
	BerthUpper     BerthType = "UPPER"
	BerthSideLower BerthType = "SIDE_LOWER"
)

// BerthTypes lists berth types in the order berth numbers are issued.
var BerthTypes = []BerthType{BerthLower, BerthMiddle, BerthUpper, BerthSideLower}

// Prefix is the leading part of a berth number for this type.
func (b BerthType) Prefix() string {
	switch b {
	case BerthLower:
		return "L"
	case BerthMiddle:
		return "M"
	case BerthUpper:
		return "U"
	case BerthSideLower:
		return "SL"
	}
	return ""
}

// InventoryClass maps a berth type to the inventory row it consumes.  Side
// lower berths are the seats handed out to RAC passengers.
func (b BerthType) InventoryClass() InventoryClass {
	switch b {
	case BerthLower:
		return ClassLower
	case BerthMiddle:
		return ClassMiddle
	case BerthUpper:
		return ClassUpper
	case BerthSideLower:
		return ClassRAC
	}
	return ""
}

// Gender of a passenger.
type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
	GenderOther  Gender = "OTHER"
)

// Valid reports whether g is one of the accepted genders.
func (g Gender) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

// TicketStatus is the tier a ticket currently sits in.
//
//	CONFIRMED -> CANCELLED  (cancellation)
//	RAC       -> CONFIRMED  (promotion after another ticket's cancellation)
//	WAITING   -> RAC        (promotion after another ticket's cancellation)
type TicketStatus string

const (
	StatusConfirmed TicketStatus = "CONFIRMED"
	StatusRAC       TicketStatus = "RAC"
	StatusWaiting   TicketStatus = "WAITING"
	StatusCancelled TicketStatus = "CANCELLED"
)

// ActiveStatuses are the statuses listed as booked.
var ActiveStatuses = []TicketStatus{StatusConfirmed, StatusRAC, StatusWaiting}
