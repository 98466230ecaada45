package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/advisor-gateway/internal/store"
)

const cleanupInterval = time.Hour

// StartDeviceCleanupWorker periodically deletes devices, and their stored
// sessions, that have not been seen for longer than ttl.
func StartDeviceCleanupWorker(ctx context.Context, repo store.Repository, ttl time.Duration) {
	ticker := time.NewTicker(cleanupInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("Device cleanup worker started", "interval", cleanupInterval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				cleanupStaleDevices(ctx, repo, ttl)
			case <-ctx.Done():
				slog.Info("Device cleanup worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func cleanupStaleDevices(ctx context.Context, repo store.Repository, ttl time.Duration) int {
	stale, err := repo.GetStaleDevices(ctx, ttl)
	if err != nil {
		slog.Error("Device cleanup failed to list stale devices", "error", err)
		return 0
	}
	if len(stale) == 0 {
		return 0
	}

	deleted := 0
	now := time.Now()
	for _, d := range stale {
		if !d.Expired(ttl, now) {
			continue
		}
		if err := repo.DeleteDevice(ctx, d.DeviceID); err != nil {
			if ctx.Err() != nil {
				return deleted
			}
			slog.Warn("Device cleanup failed to delete device", "device_id", d.DeviceID, "error", err)
			continue
		}
		deleted++
	}

	slog.Info("Device cleanup completed", "stale", len(stale), "deleted", deleted)
	return deleted
}
