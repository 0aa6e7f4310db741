package services

import (
	"testing"
	"time"

	"wastewatch/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotWith(values map[models.Parameter]float64) *models.SensorSnapshot {
	snap := &models.SensorSnapshot{
		DeviceID:  "STP-001",
		Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	for p, v := range values {
		snap.Set(p, v)
	}
	return snap
}

func TestEvaluateStaticBounds(t *testing.T) {
	tests := []struct {
		name  string
		param models.Parameter
		value float64
		kind  models.FaultKind
		fault bool
	}{
		{"current below min", models.ParamCurrent, 25.03, models.FaultTooLow, true},
		{"current at min", models.ParamCurrent, 25.04, "", false},
		{"current at max", models.ParamCurrent, 75.05, "", false},
		{"current above max", models.ParamCurrent, 75.06, models.FaultTooHigh, true},
		{"pressure below min", models.ParamPressure, 1.5, models.FaultTooLow, true},
		{"pressure above max", models.ParamPressure, 4.6, models.FaultTooHigh, true},
		{"vibration in band", models.ParamVibration, 2.0, "", false},
		{"vibration above max", models.ParamVibration, 3.9, models.FaultTooHigh, true},
		{"vibration below min", models.ParamVibration, 1.37, models.FaultTooLow, true},
		{"temperature at max", models.ParamTemperature, 60.06, "", false},
		{"temperature above max", models.ParamTemperature, 60.07, models.FaultTooHigh, true},
		{"temperature below min", models.ParamTemperature, 20.05, models.FaultTooLow, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eval := Evaluate(snapshotWith(map[models.Parameter]float64{tt.param: tt.value}), DefaultRanges(), 0)
			if !tt.fault {
				assert.Empty(t, eval.Faults)
				assert.Equal(t, models.SeverityLow, eval.Severity)
				return
			}
			require.Len(t, eval.Faults, 1)
			assert.Equal(t, tt.param, eval.Faults[0].Parameter)
			assert.Equal(t, tt.kind, eval.Faults[0].Kind)
			assert.Equal(t, tt.value, eval.Faults[0].Value)
			assert.NotEmpty(t, eval.Faults[0].Message)
		})
	}
}

func TestEvaluateFlowRateAgainstCapacity(t *testing.T) {
	ranges := DefaultRanges()

	high := Evaluate(snapshotWith(map[models.Parameter]float64{models.ParamFlowRate: 70}), ranges, 1200)
	require.Len(t, high.Faults, 1)
	assert.Equal(t, models.FaultTooHigh, high.Faults[0].Kind)
	assert.InDelta(t, 66.0, high.Faults[0].Threshold, 1e-9)

	// Low flow is treated as normal even below the 0.9 band edge (54).
	low := Evaluate(snapshotWith(map[models.Parameter]float64{models.ParamFlowRate: 50}), ranges, 1200)
	assert.Empty(t, low.Faults)
	assert.Equal(t, models.SeverityLow, low.Severity)

	edge := Evaluate(snapshotWith(map[models.Parameter]float64{models.ParamFlowRate: 66}), ranges, 1200)
	assert.Empty(t, edge.Faults)
}

func TestEvaluateFlowRateWithoutCapacity(t *testing.T) {
	ranges := DefaultRanges()

	high := Evaluate(snapshotWith(map[models.Parameter]float64{models.ParamFlowRate: 101}), ranges, 0)
	require.Len(t, high.Faults, 1)
	assert.Equal(t, 100.0, high.Faults[0].Threshold)

	low := Evaluate(snapshotWith(map[models.Parameter]float64{models.ParamFlowRate: 1}), ranges, 0)
	assert.Empty(t, low.Faults)
}

func TestFlowBand(t *testing.T) {
	assert.Equal(t, 60.0, ExpectedFlow(1200))
	lo, hi := FlowBand(1200)
	assert.InDelta(t, 54.0, lo, 1e-9)
	assert.InDelta(t, 66.0, hi, 1e-9)
}

func TestEvaluateSeverityBuckets(t *testing.T) {
	ranges := DefaultRanges()

	none := Evaluate(snapshotWith(map[models.Parameter]float64{models.ParamCurrent: 50}), ranges, 0)
	assert.Equal(t, models.SeverityLow, none.Severity)

	one := Evaluate(snapshotWith(map[models.Parameter]float64{models.ParamCurrent: 80}), ranges, 0)
	assert.Equal(t, models.SeverityMedium, one.Severity)

	two := Evaluate(snapshotWith(map[models.Parameter]float64{
		models.ParamCurrent:  80,
		models.ParamPressure: 5,
	}), ranges, 0)
	assert.Len(t, two.Faults, 2)
	assert.Equal(t, models.SeverityMedium, two.Severity)

	three := Evaluate(snapshotWith(map[models.Parameter]float64{
		models.ParamCurrent:     80,
		models.ParamPressure:    5,
		models.ParamTemperature: 70,
	}), ranges, 0)
	assert.Len(t, three.Faults, 3)
	assert.Equal(t, models.SeverityHigh, three.Severity)
}

func TestSeverityForFaultCount(t *testing.T) {
	assert.Equal(t, models.SeverityLow, models.SeverityForFaultCount(0))
	assert.Equal(t, models.SeverityMedium, models.SeverityForFaultCount(1))
	assert.Equal(t, models.SeverityMedium, models.SeverityForFaultCount(2))
	assert.Equal(t, models.SeverityHigh, models.SeverityForFaultCount(3))
	assert.Equal(t, models.SeverityHigh, models.SeverityForFaultCount(12))
}

func TestEvaluateSkipsMissingAndUnknownParameters(t *testing.T) {
	ranges := RangeTable{
		models.ParamCurrent: {Min: 25.04, Max: 75.05},
	}
	snap := snapshotWith(map[models.Parameter]float64{
		models.ParamPressure: 100, // not in table
	})

	eval := Evaluate(snap, ranges, 0)
	assert.Empty(t, eval.Faults)
	assert.NotNil(t, eval.Faults)
	assert.Equal(t, models.SeverityLow, eval.Severity)
}

func TestEvaluateIsIdempotent(t *testing.T) {
	evaluator := NewEvaluator(DefaultRanges())
	snap := snapshotWith(map[models.Parameter]float64{
		models.ParamCurrent:   10,
		models.ParamPH:        5.2,
		models.ParamTSS:       180,
		models.ParamFlowRate:  90,
		models.ParamTurbidity: 4,
	})

	first := evaluator.Evaluate(snap, 1200)
	second := evaluator.Evaluate(snap, 1200)
	assert.Equal(t, first, second)
	require.Len(t, first.Faults, 4)

	// Faults follow the fixed parameter order.
	assert.Equal(t, models.ParamCurrent, first.Faults[0].Parameter)
	assert.Equal(t, models.ParamFlowRate, first.Faults[1].Parameter)
	assert.Equal(t, models.ParamPH, first.Faults[2].Parameter)
	assert.Equal(t, models.ParamTSS, first.Faults[3].Parameter)
	assert.Equal(t, models.SeverityHigh, first.Severity)
}
