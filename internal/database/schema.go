package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/railway-berth-reservation/internal/model"
)

// seat_inventory.issued counts berth numbers handed out for the class so
// numbers stay unique across bookings and promotions.  SIDE_LOWER numbers
// are issued from the RAC row.
var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS seat_inventory (
		class     VARCHAR(16) NOT NULL PRIMARY KEY,
		available INT NOT NULL,
		capacity  INT NOT NULL,
		issued    INT NOT NULL DEFAULT 0,
		CONSTRAINT chk_inventory_bounds CHECK (available >= 0 AND available <= capacity)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id         BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		status     VARCHAR(16) NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		INDEX idx_tickets_status_created (status, created_at, id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS passengers (
		id        BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		ticket_id BIGINT UNSIGNED NOT NULL,
		position  INT NOT NULL,
		name      VARCHAR(255) NOT NULL,
		age       INT NOT NULL,
		gender    VARCHAR(8) NOT NULL,
		INDEX idx_passengers_ticket (ticket_id, position),
		CONSTRAINT fk_passengers_ticket FOREIGN KEY (ticket_id) REFERENCES tickets(id)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS berth_allocations (
		id           BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		passenger_id BIGINT UNSIGNED NOT NULL,
		berth_type   VARCHAR(16) NOT NULL,
		berth_number VARCHAR(16) NOT NULL,
		UNIQUE KEY uq_berth_passenger (passenger_id),
		CONSTRAINT fk_berth_passenger FOREIGN KEY (passenger_id) REFERENCES passengers(id)
	) ENGINE=InnoDB`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS seat_inventory (
		class     TEXT NOT NULL PRIMARY KEY,
		available INTEGER NOT NULL,
		capacity  INTEGER NOT NULL,
		issued    INTEGER NOT NULL DEFAULT 0,
		CHECK (available >= 0 AND available <= capacity)
	)`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		status     TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_status_created ON tickets (status, created_at, id)`,
	`CREATE TABLE IF NOT EXISTS passengers (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		ticket_id INTEGER NOT NULL REFERENCES tickets(id),
		position  INTEGER NOT NULL,
		name      TEXT NOT NULL,
		age       INTEGER NOT NULL,
		gender    TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_passengers_ticket ON passengers (ticket_id, position)`,
	`CREATE TABLE IF NOT EXISTS berth_allocations (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		passenger_id INTEGER NOT NULL UNIQUE REFERENCES passengers(id),
		berth_type   TEXT NOT NULL,
		berth_number TEXT NOT NULL
	)`,
}

// Migrate creates the tables if they do not exist yet.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	stmts := mysqlSchema
	if d == SQLite {
		stmts = sqliteSchema
	}
	for i, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i+1, err)
		}
	}
	return nil
}

// SeedInventory inserts one seat_inventory row per class with available
// equal to capacity.  Rows that already exist are left untouched.
func SeedInventory(ctx context.Context, db *sql.DB, d Dialect, capacities map[model.InventoryClass]int) error {
	insert := `INSERT IGNORE INTO seat_inventory (class, available, capacity) VALUES (?, ?, ?)`
	if d == SQLite {
		insert = `INSERT OR IGNORE INTO seat_inventory (class, available, capacity) VALUES (?, ?, ?)`
	}
	return WithTx(ctx, db, func(tx *sql.Tx) error {
		for _, class := range model.InventoryClasses {
			n := capacities[class]
			if n < 0 {
				return fmt.Errorf("seed %s: negative capacity %d", class, n)
			}
			if _, err := tx.ExecContext(ctx, insert, string(class), n, n); err != nil {
				return fmt.Errorf("seed %s: %w", class, err)
			}
		}
		return nil
	})
}
