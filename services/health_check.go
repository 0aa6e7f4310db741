package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"wastewatch/models"

	"go.uber.org/zap"
)

// StatusAlerter is told when a device goes stale and when it comes back
type StatusAlerter interface {
	SendDeviceOfflineAlert(device models.Device, timeSinceLastSeen time.Duration, lastSnapshot *models.SensorSnapshot) error
	SendDeviceRecoveredAlert(device models.Device, downDuration time.Duration) error
}

// PlantPublisher receives the rolled-up plant list after every sweep
type PlantPublisher interface {
	PublishPlants(ctx context.Context, plants []models.Plant) error
}

// DeviceTracker keeps the latest known state of every device and derives
// display status and plant roll-ups from it
type DeviceTracker struct {
	window    time.Duration
	alerter   StatusAlerter
	publisher PlantPublisher
	logger    *zap.Logger
	devices   map[string]*models.DeviceHealth
	mu        sync.RWMutex
	now       func() time.Time
}

// NewDeviceTracker creates a tracker. alerter and publisher may be nil.
func NewDeviceTracker(window time.Duration, alerter StatusAlerter, publisher PlantPublisher, logger *zap.Logger) *DeviceTracker {
	if window <= 0 {
		window = DefaultOfflineWindow
	}
	return &DeviceTracker{
		window:    window,
		alerter:   alerter,
		publisher: publisher,
		logger:    logger,
		devices:   make(map[string]*models.DeviceHealth),
		now:       time.Now,
	}
}

// Start runs the periodic staleness sweep until ctx is done
func (t *DeviceTracker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	t.logger.Info("Device status sweep started",
		zap.Duration("interval", interval),
		zap.Duration("offline_window", t.window))

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Device status sweep stopped")
			return
		case <-ticker.C:
			t.Sweep(ctx)
		}
	}
}

// Observe records a snapshot and its evaluation for a device
func (t *DeviceTracker) Observe(snapshot *models.SensorSnapshot, eval *models.Evaluation) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	health := t.getOrCreate(snapshot.DeviceID)

	wasOffline := health.Status == models.StatusOffline && !health.TimeoutAt.IsZero()

	seen := snapshot.Timestamp
	if seen.IsZero() || seen.After(now) {
		seen = now
	}
	if seen.After(health.Device.LastSeen) {
		health.Device.LastSeen = seen
	}
	health.LastSnapshot = snapshot
	health.LastEvaluation = eval
	health.Status = DeriveStatus(health.Device, now, t.window)

	if wasOffline && health.Status != models.StatusOffline {
		downDuration := now.Sub(health.TimeoutAt)
		health.TimeoutAt = time.Time{}

		t.logger.Info("Device recovered from timeout",
			zap.String("device_id", snapshot.DeviceID),
			zap.Duration("down_duration", downDuration))

		if t.alerter != nil {
			if err := t.alerter.SendDeviceRecoveredAlert(health.Device, downDuration); err != nil {
				t.logger.Error("Failed to send recovery alert",
					zap.String("device_id", snapshot.DeviceID),
					zap.Error(err))
			}
		}
	}
}

// SyncDevices merges device metadata from the document store. Locally
// observed last-seen times win when they are newer.
func (t *DeviceTracker) SyncDevices(devices []models.Device) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for _, device := range devices {
		if device.ID == "" {
			continue
		}
		health := t.getOrCreate(device.ID)
		lastSeen := health.Device.LastSeen
		health.Device = device
		if lastSeen.After(device.LastSeen) {
			health.Device.LastSeen = lastSeen
		}
		health.Status = DeriveStatus(health.Device, now, t.window)
	}

	t.logger.Debug("Device metadata synced", zap.Int("device_count", len(devices)))
}

// Sweep marks stale devices offline, alerts once per outage and publishes plants
func (t *DeviceTracker) Sweep(ctx context.Context) {
	t.checkTimeouts()

	if t.publisher == nil {
		return
	}
	if err := t.publisher.PublishPlants(ctx, t.Plants()); err != nil {
		t.logger.Error("Failed to publish plant summary", zap.Error(err))
	}
}

func (t *DeviceTracker) checkTimeouts() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()

	for deviceID, health := range t.devices {
		previous := health.Status
		health.Status = DeriveStatus(health.Device, now, t.window)

		// Only silence counts as a timeout; operator flags are not alerted
		if health.Status != models.StatusOffline || !health.TimeoutAt.IsZero() {
			continue
		}
		if !IsStale(health.Device.LastSeen, now, t.window) || health.Device.LastSeen.IsZero() {
			continue
		}

		timeSinceLastSeen := now.Sub(health.Device.LastSeen)
		health.TimeoutAt = now

		t.logger.Warn("Device timeout detected",
			zap.String("device_id", deviceID),
			zap.String("previous_status", string(previous)),
			zap.Time("last_seen", health.Device.LastSeen),
			zap.Duration("time_since_last_seen", timeSinceLastSeen))

		if t.alerter != nil {
			if err := t.alerter.SendDeviceOfflineAlert(health.Device, timeSinceLastSeen, health.LastSnapshot); err != nil {
				t.logger.Error("Failed to send timeout alert",
					zap.String("device_id", deviceID),
					zap.Error(err))
			}
		}
	}
}

func (t *DeviceTracker) getOrCreate(deviceID string) *models.DeviceHealth {
	health, exists := t.devices[deviceID]
	if !exists {
		health = &models.DeviceHealth{
			Device: models.Device{ID: deviceID},
			Status: models.StatusOffline,
		}
		t.devices[deviceID] = health
		t.logger.Info("New device registered for monitoring",
			zap.String("device_id", deviceID))
	}
	return health
}

// Devices returns every known device with its status derived at call time,
// sorted by id
func (t *DeviceTracker) Devices() []models.Device {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	devices := make([]models.Device, 0, len(t.devices))
	for _, health := range t.devices {
		device := health.Device
		device.Status = DeriveStatus(device, now, t.window)
		devices = append(devices, device)
	}
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].ID < devices[j].ID
	})
	return devices
}

// Plants aggregates the current devices into plants
func (t *DeviceTracker) Plants() []models.Plant {
	return AggregatePlants(t.Devices())
}

// StatusCounts returns how many devices are in each status
func (t *DeviceTracker) StatusCounts() map[models.DeviceStatus]int {
	counts := map[models.DeviceStatus]int{
		models.StatusOnline:      0,
		models.StatusOffline:     0,
		models.StatusMaintenance: 0,
		models.StatusReplaced:    0,
	}
	for _, device := range t.Devices() {
		counts[device.Status]++
	}
	return counts
}

// GetDeviceHealth returns a copy of the tracked state of a device
func (t *DeviceTracker) GetDeviceHealth(deviceID string) (models.DeviceHealth, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	health, exists := t.devices[deviceID]
	if !exists {
		return models.DeviceHealth{}, false
	}
	return *health, true
}

// Device returns a tracked device with its derived status
func (t *DeviceTracker) Device(deviceID string) (models.Device, bool) {
	health, ok := t.GetDeviceHealth(deviceID)
	if !ok {
		return models.Device{}, false
	}
	device := health.Device
	device.Status = DeriveStatus(device, t.now(), t.window)
	return device, true
}
