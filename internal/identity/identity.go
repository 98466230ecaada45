// Package identity provides anonymous per-device identity primitives.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/ashureev/advisor-gateway/internal/domain"
	"github.com/ashureev/advisor-gateway/internal/store"
)

const (
	DeviceCookieName   = "advisor_device_id"
	deviceCookieMaxAge = 30 * 24 * time.Hour
	// lastSeenResolution limits last_seen_at writes to one per device per window.
	lastSeenResolution = time.Minute
)

type contextKey int

const deviceIDKey contextKey = iota

var deviceIDPattern = regexp.MustCompile(`^dev_[a-f0-9]{32}$`)

// DeviceIDFromContext extracts the device ID from the request context.
func DeviceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(deviceIDKey).(string); ok {
		return v
	}
	return ""
}

// WithDeviceID returns a context carrying deviceID.
func WithDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, deviceIDKey, deviceID)
}

func generateDeviceID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate device id: %w", err)
	}
	return "dev_" + hex.EncodeToString(buf), nil
}

// IsValidDeviceID reports whether id has the shape of an issued device id.
func IsValidDeviceID(id string) bool {
	return deviceIDPattern.MatchString(id)
}

func deriveLabel(deviceID string) string {
	if len(deviceID) > 12 {
		return "device-" + deviceID[len(deviceID)-8:]
	}
	return "device"
}

func ensureDevice(ctx context.Context, repo store.Repository, deviceID string) error {
	device, err := repo.GetDevice(ctx, deviceID)
	if err != nil {
		return err
	}

	now := time.Now()
	if device != nil {
		if now.Sub(device.LastSeenAt) < lastSeenResolution {
			return nil
		}
		return repo.UpdateLastSeen(ctx, deviceID, now)
	}

	return repo.UpsertDevice(ctx, &domain.Device{
		DeviceID:   deviceID,
		Label:      deriveLabel(deviceID),
		LastSeenAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
}

func setDeviceCookie(w http.ResponseWriter, id string, isDev bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     DeviceCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(deviceCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(deviceCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
}

func getOrCreateDeviceID(w http.ResponseWriter, r *http.Request, isDev bool) (string, error) {
	if c, err := r.Cookie(DeviceCookieName); err == nil && IsValidDeviceID(c.Value) {
		setDeviceCookie(w, c.Value, isDev)
		return c.Value, nil
	}

	id, err := generateDeviceID()
	if err != nil {
		return "", err
	}
	setDeviceCookie(w, id, isDev)
	return id, nil
}

// Middleware assigns every browser an anonymous device id cookie and records
// the device in repo.
func Middleware(repo store.Repository, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			deviceID, err := getOrCreateDeviceID(w, r, isDev)
			if err != nil {
				http.Error(w, `{"error":"failed to establish device identity"}`, http.StatusInternalServerError)
				return
			}

			if err := ensureDevice(r.Context(), repo, deviceID); err != nil {
				slog.Error("failed to record device", "device_id", deviceID, "error", err)
				http.Error(w, `{"error":"failed to initialize device"}`, http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithDeviceID(r.Context(), deviceID)))
		})
	}
}
