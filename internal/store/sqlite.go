package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/advisor-gateway/internal/domain"
	"github.com/ashureev/advisor-gateway/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	writeRetries   = 3
	writeBaseDelay = 50 * time.Millisecond
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS devices (
		device_id TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		last_seen_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_devices_last_seen ON devices(last_seen_at);

	CREATE TABLE IF NOT EXISTS kv (
		owner TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (owner, key)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetDevice retrieves a device by its ID.
func (s *SQLiteStore) GetDevice(ctx context.Context, deviceID string) (*domain.Device, error) {
	query := `
		SELECT device_id, label, last_seen_at, created_at, updated_at
		FROM devices WHERE device_id = ?`

	var d domain.Device
	var lastSeen, createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, deviceID).Scan(
		&d.DeviceID, &d.Label, &lastSeen, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan device row: %w", err)
	}

	d.LastSeenAt = time.Unix(lastSeen, 0)
	d.CreatedAt = time.Unix(createdAt, 0)
	d.UpdatedAt = time.Unix(updatedAt, 0)
	return &d, nil
}

// UpsertDevice creates or updates a device record.
func (s *SQLiteStore) UpsertDevice(ctx context.Context, device *domain.Device) error {
	query := `
	INSERT INTO devices (device_id, label, last_seen_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(device_id) DO UPDATE SET
		label = excluded.label,
		last_seen_at = excluded.last_seen_at,
		updated_at = excluded.updated_at`

	return s.withWriteRetry(ctx, "upsert device", func() error {
		_, err := s.db.ExecContext(ctx, query,
			device.DeviceID, device.Label, device.LastSeenAt.Unix(),
			device.CreatedAt.Unix(), device.UpdatedAt.Unix(),
		)
		return err
	})
}

// UpdateLastSeen updates the last_seen_at timestamp for a device.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, deviceID string, lastSeen time.Time) error {
	query := `UPDATE devices SET last_seen_at = ?, updated_at = ? WHERE device_id = ?`

	var rows int64
	err := s.withWriteRetry(ctx, "update last_seen", func() error {
		result, err := s.db.ExecContext(ctx, query, lastSeen.Unix(), time.Now().Unix(), deviceID)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "device_id", deviceID)
	}
	return nil
}

// GetStaleDevices retrieves devices that have been inactive for longer than ttl.
func (s *SQLiteStore) GetStaleDevices(ctx context.Context, ttl time.Duration) ([]*domain.Device, error) {
	threshold := time.Now().Add(-ttl).Unix()
	query := `
		SELECT device_id, label, last_seen_at, created_at, updated_at
		FROM devices WHERE last_seen_at < ?`

	rows, err := s.db.QueryContext(ctx, query, threshold)
	if err != nil {
		return nil, fmt.Errorf("query stale devices: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close stale devices rows", "error", closeErr)
		}
	}()

	var devices []*domain.Device
	for rows.Next() {
		var d domain.Device
		var lastSeen, createdAt, updatedAt int64
		if err := rows.Scan(&d.DeviceID, &d.Label, &lastSeen, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan stale device row: %w", err)
		}
		d.LastSeenAt = time.Unix(lastSeen, 0)
		d.CreatedAt = time.Unix(createdAt, 0)
		d.UpdatedAt = time.Unix(updatedAt, 0)
		devices = append(devices, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale devices: %w", err)
	}

	return devices, nil
}

// DeleteDevice removes a device together with its key-value records.
func (s *SQLiteStore) DeleteDevice(ctx context.Context, deviceID string) error {
	return s.withWriteRetry(ctx, "delete device", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE owner = ?`, deviceID); err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM devices WHERE device_id = ?`, deviceID); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

// Get reads a key-value record.
func (s *SQLiteStore) Get(ctx context.Context, owner, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE owner = ? AND key = ?`, owner, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// Set writes a key-value record.
func (s *SQLiteStore) Set(ctx context.Context, owner, key, value string) error {
	query := `
	INSERT INTO kv (owner, key, value, updated_at) VALUES (?, ?, ?, ?)
	ON CONFLICT(owner, key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at`

	return s.withWriteRetry(ctx, "set "+key, func() error {
		_, err := s.db.ExecContext(ctx, query, owner, key, value, time.Now().Unix())
		return err
	})
}

// Delete removes a key-value record.
func (s *SQLiteStore) Delete(ctx context.Context, owner, key string) error {
	return s.withWriteRetry(ctx, "delete "+key, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE owner = ? AND key = ?`, owner, key)
		return err
	})
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// withWriteRetry retries op while SQLite reports the database as busy or locked.
func (s *SQLiteStore) withWriteRetry(ctx context.Context, what string, op func() error) error {
	return shared.RetryOnConflict(ctx, what, writeRetries, writeBaseDelay, op)
}
