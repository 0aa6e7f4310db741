package services

import (
	"context"

	"wastewatch/metrics"
	"wastewatch/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Broadcaster pushes typed messages to live subscribers
type Broadcaster interface {
	Broadcast(msgType string, payload interface{})
}

// Monitor evaluates incoming snapshots and fans the results out to the
// tracker, cache, live clients, fault event log and notifiers
type Monitor struct {
	evaluator   *Evaluator
	capacities  *CapacityStore
	tracker     *DeviceTracker
	cache       *SnapshotCache
	broadcaster Broadcaster
	notifiers   []Notifier
	events      chan<- *models.FaultEvent
	logger      *zap.Logger
	newID       func() string
}

// MonitorOption configures the optional outputs of a Monitor
type MonitorOption func(*Monitor)

func WithCache(cache *SnapshotCache) MonitorOption {
	return func(m *Monitor) { m.cache = cache }
}

func WithBroadcaster(b Broadcaster) MonitorOption {
	return func(m *Monitor) { m.broadcaster = b }
}

func WithNotifiers(notifiers ...Notifier) MonitorOption {
	return func(m *Monitor) { m.notifiers = append(m.notifiers, notifiers...) }
}

// WithFaultEvents sends a FaultEvent for every evaluation with faults
func WithFaultEvents(events chan<- *models.FaultEvent) MonitorOption {
	return func(m *Monitor) { m.events = events }
}

func NewMonitor(evaluator *Evaluator, capacities *CapacityStore, tracker *DeviceTracker, logger *zap.Logger, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		evaluator:  evaluator,
		capacities: capacities,
		tracker:    tracker,
		logger:     logger,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run handles snapshots until the stream closes or ctx is done
func (m *Monitor) Run(ctx context.Context, stream <-chan *models.SensorSnapshot) {
	m.logger.Info("Monitor started", zap.Int("notifier_count", len(m.notifiers)))
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Monitor stopped")
			return
		case snapshot, ok := <-stream:
			if !ok {
				m.logger.Warn("Snapshot stream closed")
				return
			}
			m.Handle(ctx, snapshot)
		}
	}
}

// Handle evaluates one snapshot and dispatches the result
func (m *Monitor) Handle(ctx context.Context, snapshot *models.SensorSnapshot) models.Evaluation {
	device, ok := m.tracker.Device(snapshot.DeviceID)
	if !ok {
		device = models.Device{ID: snapshot.DeviceID}
	}
	capacity := m.capacities.For(device)

	eval := m.evaluator.Evaluate(snapshot, capacity)
	m.tracker.Observe(snapshot, &eval)

	metrics.ObserveEvaluation(eval)
	metrics.SetDeviceStatusCounts(m.tracker.StatusCounts())

	if m.cache != nil {
		if err := m.cache.Put(ctx, snapshot, eval); err != nil {
			m.logger.Warn("Failed to cache evaluation",
				zap.String("device_id", snapshot.DeviceID),
				zap.Error(err))
		}
	}

	if m.broadcaster != nil {
		m.broadcaster.Broadcast("evaluation", eval)
	}

	if !eval.HasFaults() {
		return eval
	}

	m.logger.Info("Faults detected",
		zap.String("device_id", snapshot.DeviceID),
		zap.String("severity", string(eval.Severity)),
		zap.Int("fault_count", len(eval.Faults)))

	m.recordEvent(ctx, device, eval)

	if eval.Severity == models.SeverityHigh {
		m.notify(ctx, FaultAlert{
			Device:     device,
			Snapshot:   snapshot,
			Evaluation: eval,
			Dosage:     SuggestDosage(snapshot, capacity),
		})
	}

	return eval
}

func (m *Monitor) recordEvent(ctx context.Context, device models.Device, eval models.Evaluation) {
	if m.events == nil {
		return
	}

	event := &models.FaultEvent{
		ID:         m.newID(),
		DeviceID:   eval.DeviceID,
		Location:   PlantLocation(device),
		Severity:   eval.Severity,
		Faults:     eval.Faults,
		Timestamp:  eval.Timestamp,
		DetectedAt: m.tracker.now(),
	}

	select {
	case m.events <- event:
	case <-ctx.Done():
	}
}

func (m *Monitor) notify(ctx context.Context, alert FaultAlert) {
	for _, notifier := range m.notifiers {
		err := notifier.Notify(ctx, alert)
		metrics.ObserveNotification(notifier.Name(), err)
		if err != nil {
			m.logger.Error("Failed to send notification",
				zap.String("channel", notifier.Name()),
				zap.String("device_id", alert.Evaluation.DeviceID),
				zap.Error(err))
		}
	}
}
