package models

import (
	"time"
)

// Parameter names a measured quantity reported by a treatment plant device
type Parameter string

const (
	ParamCurrent      Parameter = "Current"
	ParamPressure     Parameter = "Pressure"
	ParamFlowRate     Parameter = "FlowRate"
	ParamVibration    Parameter = "Vibration"
	ParamTemperature  Parameter = "Temperature"
	ParamPH           Parameter = "pH"
	ParamBOD          Parameter = "BOD"
	ParamCOD          Parameter = "COD"
	ParamTSS          Parameter = "TSS"
	ParamDO           Parameter = "DO"
	ParamConductivity Parameter = "Conductivity"
	ParamTurbidity    Parameter = "Turbidity"
)

// AllParameters is the fixed evaluation and display order
var AllParameters = []Parameter{
	ParamCurrent,
	ParamPressure,
	ParamFlowRate,
	ParamVibration,
	ParamTemperature,
	ParamPH,
	ParamBOD,
	ParamCOD,
	ParamTSS,
	ParamDO,
	ParamConductivity,
	ParamTurbidity,
}

// Readings holds the optional parameter values of one snapshot. A nil field
// means the device did not report that parameter.
type Readings struct {
	Current      *float64 `json:"Current,omitempty" firestore:"Current,omitempty"`
	Pressure     *float64 `json:"Pressure,omitempty" firestore:"Pressure,omitempty"`
	FlowRate     *float64 `json:"FlowRate,omitempty" firestore:"FlowRate,omitempty"`
	Vibration    *float64 `json:"Vibration,omitempty" firestore:"Vibration,omitempty"`
	Temperature  *float64 `json:"Temperature,omitempty" firestore:"Temperature,omitempty"`
	PH           *float64 `json:"pH,omitempty" firestore:"pH,omitempty"`
	BOD          *float64 `json:"BOD,omitempty" firestore:"BOD,omitempty"`
	COD          *float64 `json:"COD,omitempty" firestore:"COD,omitempty"`
	TSS          *float64 `json:"TSS,omitempty" firestore:"TSS,omitempty"`
	DO           *float64 `json:"DO,omitempty" firestore:"DO,omitempty"`
	Conductivity *float64 `json:"Conductivity,omitempty" firestore:"Conductivity,omitempty"`
	Turbidity    *float64 `json:"Turbidity,omitempty" firestore:"Turbidity,omitempty"`
}

func (r *Readings) slot(p Parameter) **float64 {
	switch p {
	case ParamCurrent:
		return &r.Current
	case ParamPressure:
		return &r.Pressure
	case ParamFlowRate:
		return &r.FlowRate
	case ParamVibration:
		return &r.Vibration
	case ParamTemperature:
		return &r.Temperature
	case ParamPH:
		return &r.PH
	case ParamBOD:
		return &r.BOD
	case ParamCOD:
		return &r.COD
	case ParamTSS:
		return &r.TSS
	case ParamDO:
		return &r.DO
	case ParamConductivity:
		return &r.Conductivity
	case ParamTurbidity:
		return &r.Turbidity
	}
	return nil
}

// Get returns the reported value for p
func (r Readings) Get(p Parameter) (float64, bool) {
	s := r.slot(p)
	if s == nil || *s == nil {
		return 0, false
	}
	return **s, true
}

// Set stores v for p. Unknown parameters are ignored.
func (r *Readings) Set(p Parameter, v float64) {
	if s := r.slot(p); s != nil {
		*s = Float(v)
	}
}

// ValueOr returns the reported value for p or fallback when absent
func (r Readings) ValueOr(p Parameter, fallback float64) float64 {
	if v, ok := r.Get(p); ok {
		return v
	}
	return fallback
}

// Count returns how many parameters are reported
func (r Readings) Count() int {
	n := 0
	for _, p := range AllParameters {
		if _, ok := r.Get(p); ok {
			n++
		}
	}
	return n
}

// SensorSnapshot is one time-stamped set of readings for a device.
// Readings are embedded so the wire format stays flat.
type SensorSnapshot struct {
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
	Readings
}

// Float returns a pointer to v
func Float(v float64) *float64 {
	return &v
}

// IsKnownParameter reports whether name is one of AllParameters
func IsKnownParameter(name string) bool {
	for _, p := range AllParameters {
		if string(p) == name {
			return true
		}
	}
	return false
}
