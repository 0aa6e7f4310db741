package services

import (
	"context"
	"testing"
	"time"

	"wastewatch/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockStatusAlerter struct {
	mock.Mock
}

func (m *MockStatusAlerter) SendDeviceOfflineAlert(device models.Device, since time.Duration, last *models.SensorSnapshot) error {
	args := m.Called(device.ID, since)
	return args.Error(0)
}

func (m *MockStatusAlerter) SendDeviceRecoveredAlert(device models.Device, down time.Duration) error {
	args := m.Called(device.ID, down)
	return args.Error(0)
}

type recordingPublisher struct {
	published [][]models.Plant
}

func (r *recordingPublisher) PublishPlants(_ context.Context, plants []models.Plant) error {
	r.published = append(r.published, plants)
	return nil
}

type fakeClock struct {
	current time.Time
}

func (c *fakeClock) Now() time.Time { return c.current }

func (c *fakeClock) Advance(d time.Duration) { c.current = c.current.Add(d) }

func newTestTracker(alerter StatusAlerter, publisher PlantPublisher) (*DeviceTracker, *fakeClock) {
	clock := &fakeClock{current: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	tracker := NewDeviceTracker(10*time.Minute, alerter, publisher, zap.NewNop())
	tracker.now = clock.Now
	return tracker, clock
}

func TestTrackerObserveMarksOnline(t *testing.T) {
	tracker, clock := newTestTracker(nil, nil)

	snap := &models.SensorSnapshot{DeviceID: "d1", Timestamp: clock.Now().Add(-time.Minute)}
	eval := Evaluate(snap, DefaultRanges(), 0)
	tracker.Observe(snap, &eval)

	device, ok := tracker.Device("d1")
	require.True(t, ok)
	assert.Equal(t, models.StatusOnline, device.Status)
	assert.Equal(t, snap.Timestamp, device.LastSeen)

	health, ok := tracker.GetDeviceHealth("d1")
	require.True(t, ok)
	assert.Same(t, snap, health.LastSnapshot)
	assert.Equal(t, models.SeverityLow, health.LastEvaluation.Severity)
}

func TestTrackerFutureTimestampClampedToNow(t *testing.T) {
	tracker, clock := newTestTracker(nil, nil)

	tracker.Observe(&models.SensorSnapshot{DeviceID: "d1", Timestamp: clock.Now().Add(time.Hour)}, nil)

	device, _ := tracker.Device("d1")
	assert.Equal(t, clock.Now(), device.LastSeen)
}

func TestTrackerTimeoutAndRecoveryAlerts(t *testing.T) {
	alerter := new(MockStatusAlerter)
	tracker, clock := newTestTracker(alerter, nil)

	tracker.Observe(&models.SensorSnapshot{DeviceID: "d1", Timestamp: clock.Now()}, nil)

	clock.Advance(15 * time.Minute)
	alerter.On("SendDeviceOfflineAlert", "d1", 15*time.Minute).Return(nil).Once()
	tracker.Sweep(context.Background())

	device, _ := tracker.Device("d1")
	assert.Equal(t, models.StatusOffline, device.Status)

	// A second sweep must not alert again for the same outage.
	clock.Advance(time.Minute)
	tracker.Sweep(context.Background())

	clock.Advance(4 * time.Minute)
	alerter.On("SendDeviceRecoveredAlert", "d1", 5*time.Minute).Return(nil).Once()
	tracker.Observe(&models.SensorSnapshot{DeviceID: "d1", Timestamp: clock.Now()}, nil)

	device, _ = tracker.Device("d1")
	assert.Equal(t, models.StatusOnline, device.Status)
	alerter.AssertExpectations(t)
}

func TestTrackerSyncDevicesKeepsNewerLastSeen(t *testing.T) {
	tracker, clock := newTestTracker(nil, nil)

	observed := clock.Now().Add(-time.Minute)
	tracker.Observe(&models.SensorSnapshot{DeviceID: "d1", Timestamp: observed}, nil)

	tracker.SyncDevices([]models.Device{
		{ID: "d1", Name: "Inlet pump", Location: "Plant A", LastSeen: clock.Now().Add(-time.Hour)},
		{ID: "d2", Name: "Blower", Location: "Plant A", ReportedStatus: models.StatusMaintenance, LastSeen: clock.Now()},
		{ID: ""},
	})

	d1, ok := tracker.Device("d1")
	require.True(t, ok)
	assert.Equal(t, "Inlet pump", d1.Name)
	assert.Equal(t, observed, d1.LastSeen)
	assert.Equal(t, models.StatusOnline, d1.Status)

	d2, ok := tracker.Device("d2")
	require.True(t, ok)
	assert.Equal(t, models.StatusMaintenance, d2.Status)

	assert.Len(t, tracker.Devices(), 2)
}

func TestTrackerSweepPublishesPlants(t *testing.T) {
	publisher := &recordingPublisher{}
	tracker, clock := newTestTracker(nil, publisher)

	tracker.SyncDevices([]models.Device{
		{ID: "d1", Location: "Plant A", LastSeen: clock.Now()},
		{ID: "d2", Location: "Plant B", LastSeen: clock.Now().Add(-time.Hour)},
	})
	tracker.Sweep(context.Background())

	require.Len(t, publisher.published, 1)
	plants := publisher.published[0]
	require.Len(t, plants, 2)
	assert.Equal(t, "Plant A", plants[0].Location)
	assert.Equal(t, models.StatusOnline, plants[0].Status)
	assert.Equal(t, models.StatusOffline, plants[1].Status)
}

func TestTrackerStatusCounts(t *testing.T) {
	tracker, clock := newTestTracker(nil, nil)
	tracker.SyncDevices([]models.Device{
		{ID: "d1", LastSeen: clock.Now()},
		{ID: "d2", LastSeen: clock.Now(), ReportedStatus: models.StatusReplaced},
		{ID: "d3"},
	})

	counts := tracker.StatusCounts()
	assert.Equal(t, 1, counts[models.StatusOnline])
	assert.Equal(t, 1, counts[models.StatusReplaced])
	assert.Equal(t, 1, counts[models.StatusOffline])
	assert.Equal(t, 0, counts[models.StatusMaintenance])
}
