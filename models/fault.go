package models

import (
	"time"
)

// ParameterRange is the acceptable band for one parameter. Min must be below Max.
type ParameterRange struct {
	Min         float64 `json:"min" yaml:"min"`
	Max         float64 `json:"max" yaml:"max"`
	Unit        string  `json:"unit" yaml:"unit"`
	Description string  `json:"description" yaml:"description"`
}

// FaultKind tells which side of the band a reading fell on
type FaultKind string

const (
	FaultTooHigh FaultKind = "too_high"
	FaultTooLow  FaultKind = "too_low"
)

// FaultRecord is a single parameter found outside its acceptable band
type FaultRecord struct {
	Parameter Parameter `json:"parameter"`
	Value     float64   `json:"value"`
	Kind      FaultKind `json:"kind"`
	Threshold float64   `json:"threshold"`
	Unit      string    `json:"unit,omitempty"`
	Message   string    `json:"message"`
}

// Severity is the coarse bucket derived from the fault count
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// SeverityForFaultCount buckets a fault count: 0 low, 1-2 medium, 3+ high
func SeverityForFaultCount(n int) Severity {
	switch {
	case n > 2:
		return SeverityHigh
	case n > 0:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Evaluation is the result of checking one snapshot against the range table
type Evaluation struct {
	DeviceID  string        `json:"device_id"`
	Timestamp time.Time     `json:"timestamp"`
	Faults    []FaultRecord `json:"faults"`
	Severity  Severity      `json:"severity"`
}

// HasFaults returns true if any parameter was out of band
func (e *Evaluation) HasFaults() bool {
	return len(e.Faults) > 0
}

// FaultEvent is the persisted form of an evaluation that produced faults
type FaultEvent struct {
	ID         string        `json:"id"`
	DeviceID   string        `json:"device_id"`
	Location   string        `json:"location"`
	Severity   Severity      `json:"severity"`
	Faults     []FaultRecord `json:"faults"`
	Timestamp  time.Time     `json:"timestamp"`
	DetectedAt time.Time     `json:"detected_at"`
}

// GetFaultEmoji returns appropriate emoji for the fault parameter
func (f *FaultRecord) GetFaultEmoji() string {
	switch f.Parameter {
	case ParamTemperature:
		if f.Kind == FaultTooHigh {
			return "🔥"
		}
		return "🧊"
	case ParamFlowRate:
		return "🌊"
	case ParamPressure:
		return "🧭"
	case ParamCurrent:
		return "⚡"
	case ParamVibration:
		return "📳"
	case ParamPH, ParamBOD, ParamCOD, ParamTSS, ParamDO, ParamConductivity, ParamTurbidity:
		return "🧪"
	default:
		return "⚠️"
	}
}

// GetSeverityColor returns the indicator used in chat messages
func (s Severity) GetSeverityColor() string {
	switch s {
	case SeverityHigh:
		return "🔴"
	case SeverityMedium:
		return "🟡"
	case SeverityLow:
		return "🟢"
	default:
		return "⚪"
	}
}
