package services

import (
	"fmt"

	"wastewatch/models"
)

const (
	// Plant capacity is spread over a 20 hour operating day
	capacityOperatingHours = 20.0
	flowBandLow            = 0.9
	flowBandHigh           = 1.1
)

type advisoryPair struct {
	high string
	low  string
}

var advisories = map[models.Parameter]advisoryPair{
	models.ParamCurrent: {
		high: "Motor overload suspected. Inspect the pump for clogging and check supply voltage.",
		low:  "Motor running light. Check for dry running, air lock or a broken coupling.",
	},
	models.ParamPressure: {
		high: "Possible downstream blockage. Check valves and clean the line strainer.",
		low:  "Possible leak or suction problem. Inspect the pipeline and pump priming.",
	},
	models.ParamFlowRate: {
		high: "Inflow exceeds plant capacity. Risk of overflow, divert to the equalisation tank.",
		low:  "Inflow below expected level.",
	},
	models.ParamVibration: {
		high: "Excessive vibration. Check bearings, alignment and impeller balance.",
		low:  "Vibration below normal band. Verify the sensor mounting.",
	},
	models.ParamTemperature: {
		high: "Motor overheating. Check cooling, lubrication and load.",
		low:  "Temperature below operating band. Verify the sensor and heating.",
	},
	models.ParamPH: {
		high: "Effluent too alkaline. Dose acid and check upstream discharge.",
		low:  "Effluent too acidic. Dose lime or caustic and check upstream discharge.",
	},
	models.ParamBOD: {
		high: "Organic load too high. Increase aeration time and check sludge age.",
		low:  "BOD reading below zero. Recalibrate the analyser.",
	},
	models.ParamCOD: {
		high: "Chemical load too high. Check for industrial discharge and review treatment.",
		low:  "COD reading below zero. Recalibrate the analyser.",
	},
	models.ParamTSS: {
		high: "Suspended solids too high. Check clarifier performance and coagulant dosing.",
		low:  "TSS reading below zero. Recalibrate the analyser.",
	},
	models.ParamDO: {
		high: "Dissolved oxygen above band. Reduce blower output to save energy.",
		low:  "Dissolved oxygen too low. Increase aeration and inspect diffusers.",
	},
	models.ParamConductivity: {
		high: "Conductivity too high. Check for saline or industrial inflow.",
		low:  "Conductivity reading below zero. Recalibrate the probe.",
	},
	models.ParamTurbidity: {
		high: "Turbidity too high. Check filtration and coagulant dosing.",
		low:  "Turbidity reading below zero. Recalibrate the probe.",
	},
}

func advisory(p models.Parameter, kind models.FaultKind) string {
	a, ok := advisories[p]
	if !ok {
		return "Check the sensor and process conditions."
	}
	if kind == models.FaultTooHigh {
		return a.high
	}
	return a.low
}

// ExpectedFlow returns the nominal hourly flow for a plant capacity
func ExpectedFlow(plantCapacity float64) float64 {
	return plantCapacity / capacityOperatingHours
}

// FlowBand returns the acceptable flow band for a plant capacity
func FlowBand(plantCapacity float64) (low, high float64) {
	expected := ExpectedFlow(plantCapacity)
	return expected * flowBandLow, expected * flowBandHigh
}

// Evaluate checks every parameter present in both the snapshot and the table.
// A plantCapacity of zero or less means no capacity is known, in which case
// FlowRate falls back to the table maximum. Low flow is never a fault.
func Evaluate(snapshot *models.SensorSnapshot, ranges RangeTable, plantCapacity float64) models.Evaluation {
	eval := models.Evaluation{
		DeviceID:  snapshot.DeviceID,
		Timestamp: snapshot.Timestamp,
		Faults:    []models.FaultRecord{},
	}

	for _, p := range models.AllParameters {
		r, ok := ranges[p]
		if !ok {
			continue
		}
		value, ok := snapshot.Get(p)
		if !ok {
			continue
		}

		if p == models.ParamFlowRate {
			limit := r.Max
			if plantCapacity > 0 {
				_, limit = FlowBand(plantCapacity)
			}
			if value > limit {
				eval.Faults = append(eval.Faults, newFault(p, r, value, models.FaultTooHigh, limit))
			}
			continue
		}

		switch {
		case value < r.Min:
			eval.Faults = append(eval.Faults, newFault(p, r, value, models.FaultTooLow, r.Min))
		case value > r.Max:
			eval.Faults = append(eval.Faults, newFault(p, r, value, models.FaultTooHigh, r.Max))
		}
	}

	eval.Severity = models.SeverityForFaultCount(len(eval.Faults))
	return eval
}

func newFault(p models.Parameter, r models.ParameterRange, value float64, kind models.FaultKind, threshold float64) models.FaultRecord {
	var description string
	if kind == models.FaultTooHigh {
		description = fmt.Sprintf("%s %.2f %s exceeds maximum of %.2f %s", p, value, r.Unit, threshold, r.Unit)
	} else {
		description = fmt.Sprintf("%s %.2f %s is below minimum of %.2f %s", p, value, r.Unit, threshold, r.Unit)
	}

	return models.FaultRecord{
		Parameter: p,
		Value:     value,
		Kind:      kind,
		Threshold: threshold,
		Unit:      r.Unit,
		Message:   description + ". " + advisory(p, kind),
	}
}

// Evaluator binds a range table for repeated use
type Evaluator struct {
	ranges RangeTable
}

func NewEvaluator(ranges RangeTable) *Evaluator {
	return &Evaluator{
		ranges: ranges,
	}
}

// Evaluate analyzes a snapshot and returns its faults and severity
func (e *Evaluator) Evaluate(snapshot *models.SensorSnapshot, plantCapacity float64) models.Evaluation {
	return Evaluate(snapshot, e.ranges, plantCapacity)
}

// Ranges returns the bound range table
func (e *Evaluator) Ranges() RangeTable {
	return e.ranges
}
