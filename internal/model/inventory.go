package model

// SeatInventory mirrors one seat_inventory row.  Available never leaves
// the range [0, Capacity] at a commit point and Capacity is fixed once
// seeded.
type SeatInventory struct {
	Class     InventoryClass `json:"-"`
	Available int            `json:"available"`
	Capacity  int            `json:"capacity"`
}

// Inventory is a snapshot of all inventory rows keyed by class.
type Inventory map[InventoryClass]SeatInventory

// Available returns the free slots for class c, zero if the row is missing.
func (inv Inventory) Available(c InventoryClass) int {
	return inv[c].Available
}

// ConfirmedAvailable is the number of free LOWER, MIDDLE and UPPER berths.
func (inv Inventory) ConfirmedAvailable() int {
	return inv.Available(ClassLower) + inv.Available(ClassMiddle) + inv.Available(ClassUpper)
}

// TotalAvailable sums free slots across every row.
func (inv Inventory) TotalAvailable() int {
	total := 0
	for _, row := range inv {
		total += row.Available
	}
	return total
}
