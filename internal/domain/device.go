package domain

import (
	"time"
)

// Device is an anonymous browser profile identified by a cookie.
// It owns the persisted key-value records (session id, history, context).
type Device struct {
	DeviceID   string    `json:"device_id"`
	Label      string    `json:"label"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Expired reports whether the device has been inactive for longer than ttl.
func (d *Device) Expired(ttl time.Duration, now time.Time) bool {
	return now.Sub(d.LastSeenAt) > ttl
}
