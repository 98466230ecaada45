// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/advisor-gateway/internal/domain"
)

// Repository persists devices and their key-value records.
type Repository interface {
	// GetDevice retrieves a device by ID. It returns nil, nil when absent.
	GetDevice(ctx context.Context, deviceID string) (*domain.Device, error)

	// UpsertDevice creates or updates a device record.
	UpsertDevice(ctx context.Context, device *domain.Device) error

	// UpdateLastSeen updates the last_seen_at timestamp for a device.
	UpdateLastSeen(ctx context.Context, deviceID string, lastSeen time.Time) error

	// GetStaleDevices returns devices inactive for longer than ttl.
	GetStaleDevices(ctx context.Context, ttl time.Duration) ([]*domain.Device, error)

	// DeleteDevice removes a device and all of its records.
	DeleteDevice(ctx context.Context, deviceID string) error

	// Get reads the value stored under key for owner.
	Get(ctx context.Context, owner, key string) (value string, ok bool, err error)

	// Set stores value under key for owner, replacing any previous value.
	Set(ctx context.Context, owner, key, value string) error

	// Delete removes key for owner. Deleting a missing key is not an error.
	Delete(ctx context.Context, owner, key string) error

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// Namespace is a view of a Repository restricted to one owner's records.
type Namespace struct {
	repo  Repository
	owner string
}

// NewNamespace scopes repo to owner.
func NewNamespace(repo Repository, owner string) *Namespace {
	return &Namespace{repo: repo, owner: owner}
}

// Get reads key.
func (n *Namespace) Get(ctx context.Context, key string) (string, bool, error) {
	return n.repo.Get(ctx, n.owner, key)
}

// Set writes key.
func (n *Namespace) Set(ctx context.Context, key, value string) error {
	return n.repo.Set(ctx, n.owner, key, value)
}

// Delete removes key.
func (n *Namespace) Delete(ctx context.Context, key string) error {
	return n.repo.Delete(ctx, n.owner, key)
}
