package services

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"wastewatch/models"

	"go.uber.org/zap"
)

// nominal is a typical healthy value and its spread for each parameter
type nominal struct {
	base   float64
	spread float64
}

var simulatorNominals = map[models.Parameter]nominal{
	models.ParamCurrent:      {base: 50, spread: 5},
	models.ParamPressure:     {base: 3, spread: 0.5},
	models.ParamFlowRate:     {base: 58, spread: 4},
	models.ParamVibration:    {base: 2.5, spread: 0.4},
	models.ParamTemperature:  {base: 40, spread: 5},
	models.ParamPH:           {base: 7.4, spread: 0.3},
	models.ParamBOD:          {base: 15, spread: 5},
	models.ParamCOD:          {base: 120, spread: 30},
	models.ParamTSS:          {base: 45, spread: 15},
	models.ParamDO:           {base: 4, spread: 1},
	models.ParamConductivity: {base: 1200, spread: 200},
	models.ParamTurbidity:    {base: 4, spread: 2},
}

// SnapshotSimulator produces randomized snapshots for a set of devices
type SnapshotSimulator struct {
	devices          []string
	interval         time.Duration
	faultProbability float64
	ranges           RangeTable
	logger           *zap.Logger
	rng              *rand.Rand
	mu               sync.Mutex
}

func NewSnapshotSimulator(devices []string, interval time.Duration, faultProbability float64, logger *zap.Logger) *SnapshotSimulator {
	return &SnapshotSimulator{
		devices:          devices,
		interval:         interval,
		faultProbability: faultProbability,
		ranges:           DefaultRanges(),
		logger:           logger,
		rng:              rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *SnapshotSimulator) Name() string {
	return "simulator"
}

// Generate returns one snapshot for deviceID. With probability
// faultProbability between one and three parameters are pushed out of band.
func (s *SnapshotSimulator) Generate(deviceID string, now time.Time) *models.SensorSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := &models.SensorSnapshot{
		DeviceID:  deviceID,
		Timestamp: now,
	}

	for _, p := range models.AllParameters {
		n := simulatorNominals[p]
		value := n.base + (s.rng.Float64()*2-1)*n.spread
		snapshot.Set(p, round2(s.clamp(p, value)))
	}

	if s.rng.Float64() < s.faultProbability {
		count := 1 + s.rng.Intn(3)
		for _, i := range s.rng.Perm(len(models.AllParameters))[:count] {
			p := models.AllParameters[i]
			r := s.ranges[p]
			value := r.Max * 1.25
			// Low flow is never a fault, so flow is always pushed high
			if p != models.ParamFlowRate && r.Min > 0 && s.rng.Float64() < 0.5 {
				value = r.Min * 0.75
			}
			snapshot.Set(p, round2(value))
		}
	}

	return snapshot
}

// clamp keeps healthy values strictly inside the range table
func (s *SnapshotSimulator) clamp(p models.Parameter, value float64) float64 {
	r, ok := s.ranges[p]
	if !ok {
		return value
	}
	return math.Min(math.Max(value, r.Min+0.01), r.Max-0.01)
}

// Subscribe emits a snapshot per device every interval
func (s *SnapshotSimulator) Subscribe(ctx context.Context) (<-chan *models.SensorSnapshot, error) {
	out := make(chan *models.SensorSnapshot, len(s.devices))

	go func() {
		defer close(out)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("Snapshot simulator started",
			zap.Strings("devices", s.devices),
			zap.Duration("interval", s.interval),
			zap.Float64("fault_probability", s.faultProbability))

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Snapshot simulator stopped")
				return
			case now := <-ticker.C:
				for _, deviceID := range s.devices {
					select {
					case out <- s.Generate(deviceID, now):
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return out, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
