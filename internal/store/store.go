// Package store persists device and viewer registrations so they survive a
// hub process restart. Pending requests are deliberately not persisted.
package store

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// DeviceRegistration is one live device connection row.
type DeviceRegistration struct {
	ConnID     string
	DeviceName string
	UserKey    string
	CreatedAt  time.Time
}

// ViewerRegistration is one live viewer connection row.
type ViewerRegistration struct {
	ConnID    string
	UserKey   string
	CreatedAt time.Time
}

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the registration database and runs
// migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite does not handle concurrent writers well; serialize through a
	// single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	fmt.Printf("[Store] Registration database ready at %s\n", path)
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertDevice inserts or refreshes a device registration.
func (s *Store) UpsertDevice(userKey, connID, deviceName string) error {
	_, err := s.db.Exec(`
		INSERT INTO device_registrations (conn_id, device_name, user_key, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(conn_id) DO UPDATE SET device_name = excluded.device_name, user_key = excluded.user_key`,
		connID, deviceName, userKey, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert device registration: %w", err)
	}
	return nil
}

// UpsertViewer inserts or refreshes a viewer registration.
func (s *Store) UpsertViewer(userKey, connID string) error {
	_, err := s.db.Exec(`
		INSERT INTO viewer_registrations (conn_id, user_key, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(conn_id) DO UPDATE SET user_key = excluded.user_key`,
		connID, userKey, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert viewer registration: %w", err)
	}
	return nil
}

// DeleteConn removes any device or viewer registration for the connection.
func (s *Store) DeleteConn(connID string) error {
	if _, err := s.db.Exec(`DELETE FROM device_registrations WHERE conn_id = ?`, connID); err != nil {
		return fmt.Errorf("failed to delete device registration: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM viewer_registrations WHERE conn_id = ?`, connID); err != nil {
		return fmt.Errorf("failed to delete viewer registration: %w", err)
	}
	return nil
}

// DevicesForUser returns the persisted device registrations for a user.
func (s *Store) DevicesForUser(userKey string) ([]DeviceRegistration, error) {
	rows, err := s.db.Query(`
		SELECT conn_id, device_name, user_key, created_at
		FROM device_registrations WHERE user_key = ? ORDER BY created_at`, userKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query device registrations: %w", err)
	}
	defer rows.Close()

	var regs []DeviceRegistration
	for rows.Next() {
		var r DeviceRegistration
		if err := rows.Scan(&r.ConnID, &r.DeviceName, &r.UserKey, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan device registration: %w", err)
		}
		regs = append(regs, r)
	}
	return regs, rows.Err()
}

// ViewersForUser returns the persisted viewer registrations for a user.
func (s *Store) ViewersForUser(userKey string) ([]ViewerRegistration, error) {
	rows, err := s.db.Query(`
		SELECT conn_id, user_key, created_at
		FROM viewer_registrations WHERE user_key = ? ORDER BY created_at`, userKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query viewer registrations: %w", err)
	}
	defer rows.Close()

	var regs []ViewerRegistration
	for rows.Next() {
		var r ViewerRegistration
		if err := rows.Scan(&r.ConnID, &r.UserKey, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan viewer registration: %w", err)
		}
		regs = append(regs, r)
	}
	return regs, rows.Err()
}

// DeleteStale removes registrations for the user whose connection ids are
// not in the live set. Used by the reconciling list operations.
func (s *Store) DeleteStale(userKey string, live map[string]bool) (int, error) {
	devices, err := s.DevicesForUser(userKey)
	if err != nil {
		return 0, err
	}
	viewers, err := s.ViewersForUser(userKey)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, d := range devices {
		if !live[d.ConnID] {
			if err := s.DeleteConn(d.ConnID); err != nil {
				return deleted, err
			}
			deleted++
		}
	}
	for _, v := range viewers {
		if !live[v.ConnID] {
			if err := s.DeleteConn(v.ConnID); err != nil {
				return deleted, err
			}
			deleted++
		}
	}
	return deleted, nil
}
