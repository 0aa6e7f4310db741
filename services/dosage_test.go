package services

import (
	"testing"

	"wastewatch/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deviceSnapshot(values map[models.Parameter]float64) *models.SensorSnapshot {
	snap := &models.SensorSnapshot{DeviceID: "d1"}
	for p, v := range values {
		snap.Set(p, v)
	}
	return snap
}

func TestSuggestDosageHealthyReadings(t *testing.T) {
	snap := deviceSnapshot(map[models.Parameter]float64{
		models.ParamPH:        7.2,
		models.ParamTSS:       40,
		models.ParamTurbidity: 3,
		models.ParamBOD:       12,
		models.ParamDO:        4,
	})

	assert.Empty(t, SuggestDosage(snap, 1200))
}

func TestSuggestDosageAcidicEffluent(t *testing.T) {
	snap := deviceSnapshot(map[models.Parameter]float64{
		models.ParamPH:       6.0,
		models.ParamFlowRate: 50,
	})

	got := SuggestDosage(snap, 0)
	require.Len(t, got, 1)
	assert.Equal(t, "Hydrated lime", got[0].Chemical)
	assert.InDelta(t, 50, got[0].DoseMgL, 1e-9)
	// 50 mg/L at 50 m³/h over a day
	assert.InDelta(t, 60, got[0].KgPerDay, 1e-9)
}

func TestSuggestDosageAlkalineUsesCapacityFlow(t *testing.T) {
	snap := deviceSnapshot(map[models.Parameter]float64{models.ParamPH: 9.0})

	got := SuggestDosage(snap, 1200)
	require.Len(t, got, 1)
	assert.Equal(t, "Sulphuric acid", got[0].Chemical)
	assert.InDelta(t, 60, got[0].DoseMgL, 1e-9)
	assert.InDelta(t, KgPerDay(60, 60), got[0].KgPerDay, 1e-9)
}

func TestSuggestDosageCoagulantTakesLargerDose(t *testing.T) {
	snap := deviceSnapshot(map[models.Parameter]float64{
		models.ParamTSS:       150,
		models.ParamTurbidity: 20,
	})

	got := SuggestDosage(snap, 0)
	require.Len(t, got, 1)
	assert.Equal(t, "PAC coagulant", got[0].Chemical)
	assert.Equal(t, models.ParamTurbidity, got[0].Parameter)
	assert.InDelta(t, 30, got[0].DoseMgL, 1e-9)
}

func TestSuggestDosageOrganicLoadAndAeration(t *testing.T) {
	snap := deviceSnapshot(map[models.Parameter]float64{
		models.ParamBOD: 45,
		models.ParamDO:  1.2,
	})

	got := SuggestDosage(snap, 0)
	require.Len(t, got, 2)
	assert.Equal(t, "Sodium hypochlorite", got[0].Chemical)
	assert.InDelta(t, 5, got[0].DoseMgL, 1e-9)
	assert.Equal(t, "Increase aeration", got[1].Chemical)
	assert.Zero(t, got[1].DoseMgL)
	assert.Zero(t, got[1].KgPerDay)
}
