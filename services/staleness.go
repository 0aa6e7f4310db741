package services

import (
	"time"

	"wastewatch/models"
)

// DefaultOfflineWindow is how long a device may stay silent before it is shown offline
const DefaultOfflineWindow = 10 * time.Minute

// IsStale returns true when more than window has passed since lastSeen.
// A device that was never seen is stale.
func IsStale(lastSeen, now time.Time, window time.Duration) bool {
	return now.Sub(lastSeen) > window
}

// DeriveStatus computes the display status from the current inputs only.
// Replaced overrides everything, then offline (stale or reported), then
// maintenance, otherwise online.
func DeriveStatus(device models.Device, now time.Time, window time.Duration) models.DeviceStatus {
	switch {
	case device.ReportedStatus == models.StatusReplaced:
		return models.StatusReplaced
	case device.ReportedStatus == models.StatusOffline || IsStale(device.LastSeen, now, window):
		return models.StatusOffline
	case device.ReportedStatus == models.StatusMaintenance:
		return models.StatusMaintenance
	default:
		return models.StatusOnline
	}
}
