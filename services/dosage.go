package services

import (
	"fmt"
	"math"

	"wastewatch/models"
)

const (
	phLowTrigger      = 6.5
	phHighTrigger     = 8.5
	phNeutral         = 7.0
	limePerPHUnit     = 50.0
	acidPerPHUnit     = 30.0
	tssTrigger        = 100.0
	turbidityTrigger  = 10.0
	pacBaseDose       = 10.0
	bodTrigger        = 30.0
	hypochloriteDose  = 5.0
	dissolvedOxygenLo = 2.0
)

// SuggestDosage returns chemical dose suggestions for the readings in a snapshot.
// Flow comes from the FlowRate reading, else the capacity's expected flow.
func SuggestDosage(snapshot *models.SensorSnapshot, plantCapacity float64) []models.DosageSuggestion {
	suggestions := []models.DosageSuggestion{}
	flow := snapshot.ValueOr(models.ParamFlowRate, ExpectedFlow(math.Max(plantCapacity, 0)))

	add := func(chemical string, p models.Parameter, reason string, dose float64) {
		dose = round2(dose)
		suggestions = append(suggestions, models.DosageSuggestion{
			Chemical:  chemical,
			Parameter: p,
			Reason:    reason,
			DoseMgL:   dose,
			KgPerDay:  round2(KgPerDay(dose, flow)),
		})
	}

	if ph, ok := snapshot.Get(models.ParamPH); ok {
		switch {
		case ph < phLowTrigger:
			add("Hydrated lime", models.ParamPH,
				fmt.Sprintf("pH %.2f is acidic", ph),
				(phNeutral-ph)*limePerPHUnit)
		case ph > phHighTrigger:
			add("Sulphuric acid", models.ParamPH,
				fmt.Sprintf("pH %.2f is alkaline", ph),
				(ph-phNeutral)*acidPerPHUnit)
		}
	}

	tss, hasTSS := snapshot.Get(models.ParamTSS)
	turbidity, hasTurbidity := snapshot.Get(models.ParamTurbidity)
	if (hasTSS && tss > tssTrigger) || (hasTurbidity && turbidity > turbidityTrigger) {
		dose := 0.0
		param := models.ParamTSS
		reason := ""
		if hasTSS && tss > tssTrigger {
			dose = pacBaseDose + 0.2*(tss-tssTrigger)
			reason = fmt.Sprintf("TSS %.2f mg/L above %.0f", tss, tssTrigger)
		}
		if hasTurbidity && turbidity > turbidityTrigger {
			if d := 2*(turbidity-turbidityTrigger) + pacBaseDose; d > dose {
				dose = d
				param = models.ParamTurbidity
				reason = fmt.Sprintf("Turbidity %.2f NTU above %.0f", turbidity, turbidityTrigger)
			}
		}
		add("PAC coagulant", param, reason, dose)
	}

	if bod, ok := snapshot.Get(models.ParamBOD); ok && bod > bodTrigger {
		add("Sodium hypochlorite", models.ParamBOD,
			fmt.Sprintf("BOD %.2f mg/L above %.0f", bod, bodTrigger),
			hypochloriteDose)
	}

	if do, ok := snapshot.Get(models.ParamDO); ok && do < dissolvedOxygenLo {
		add("Increase aeration", models.ParamDO,
			fmt.Sprintf("DO %.2f mg/L below %.0f", do, dissolvedOxygenLo),
			0)
	}

	return suggestions
}

// KgPerDay converts a dose in mg/L at a flow in m³/h to kilograms per day
func KgPerDay(doseMgL, flowM3PerHour float64) float64 {
	return doseMgL * flowM3PerHour * 24 / 1000
}
