package services

import (
	"testing"

	"wastewatch/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregatePlantsOnlineWins(t *testing.T) {
	plants := AggregatePlants([]models.Device{
		{ID: "d1", Location: "A", Status: models.StatusOffline},
		{ID: "d2", Location: "A", Status: models.StatusOnline},
	})

	require.Len(t, plants, 1)
	assert.Equal(t, "A", plants[0].Location)
	assert.Equal(t, models.StatusOnline, plants[0].Status)
	assert.Equal(t, 2, plants[0].DeviceCount)
	assert.Equal(t, []string{"d1", "d2"}, plants[0].DeviceIDs)
}

func TestAggregatePlantsMaintenanceOverOffline(t *testing.T) {
	plants := AggregatePlants([]models.Device{
		{ID: "d1", Location: "B", Status: models.StatusOffline},
		{ID: "d2", Location: "B", Status: models.StatusMaintenance},
	})

	require.Len(t, plants, 1)
	assert.Equal(t, models.StatusMaintenance, plants[0].Status)
}

func TestAggregatePlantsOnlineBeatsMaintenanceInAnyOrder(t *testing.T) {
	plants := AggregatePlants([]models.Device{
		{ID: "d1", Location: "C", Status: models.StatusOnline},
		{ID: "d2", Location: "C", Status: models.StatusMaintenance},
		{ID: "d3", Location: "C", Status: models.StatusOffline},
	})

	require.Len(t, plants, 1)
	assert.Equal(t, models.StatusOnline, plants[0].Status)
}

func TestAggregatePlantsGroupingAndOrder(t *testing.T) {
	plants := AggregatePlants([]models.Device{
		{ID: "d1", Location: "Nagpur STP", Status: models.StatusOffline},
		{ID: "d2", Location: "", Status: models.StatusOnline},
		{ID: "d3", Location: "Pune WTP", Status: models.StatusReplaced},
		{ID: "d4", Location: "Nagpur STP", Status: models.StatusOffline},
		{ID: "d5", Location: "  ", Status: models.StatusMaintenance},
	})

	require.Len(t, plants, 3)
	assert.Equal(t, "Nagpur STP", plants[0].Location)
	assert.Equal(t, 2, plants[0].DeviceCount)
	assert.Equal(t, models.StatusOffline, plants[0].Status)

	assert.Equal(t, UnknownLocation, plants[1].Location)
	assert.Equal(t, 2, plants[1].DeviceCount)
	assert.Equal(t, models.StatusOnline, plants[1].Status)

	assert.Equal(t, "Pune WTP", plants[2].Location)
	assert.Equal(t, models.StatusOffline, plants[2].Status)
}

func TestAggregatePlantsEmpty(t *testing.T) {
	assert.Empty(t, AggregatePlants(nil))
}

func TestClassifyPlantType(t *testing.T) {
	tests := []struct {
		name   string
		device models.Device
		want   models.PlantType
	}{
		{"device type exact", models.Device{DeviceType: "wtp", Name: "Sewage pump"}, models.PlantWTP},
		{"device type cems", models.Device{DeviceType: "CEMS"}, models.PlantCEMS},
		{"name keyword stp", models.Device{Name: "Inlet STP-04"}, models.PlantSTP},
		{"wastewater is stp", models.Device{Name: "Wastewater treatment unit"}, models.PlantSTP},
		{"water treatment", models.Device{Name: "Water Treatment Filter"}, models.PlantWTP},
		{"stack", models.Device{Name: "Boiler stack analyser"}, models.PlantCEMS},
		{"device type keyword", models.Device{DeviceType: "sewage-flowmeter"}, models.PlantSTP},
		{"unknown", models.Device{Name: "Generator", DeviceType: "genset"}, models.PlantOther},
		{"empty", models.Device{}, models.PlantOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyPlantType(tt.device))
		})
	}
}

func TestClassifyPlantTypeIsStable(t *testing.T) {
	device := models.Device{Name: "CEMS stack STP hybrid", DeviceType: "analyser"}
	first := ClassifyPlantType(device)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ClassifyPlantType(device))
	}
	assert.Equal(t, models.PlantSTP, first)
}

func TestAggregatePlantsTypeFromFirstClassifiedDevice(t *testing.T) {
	plants := AggregatePlants([]models.Device{
		{ID: "d1", Location: "X", Name: "Generator"},
		{ID: "d2", Location: "X", Name: "CEMS analyser"},
		{ID: "d3", Location: "X", Name: "STP blower"},
	})

	require.Len(t, plants, 1)
	assert.Equal(t, models.PlantCEMS, plants[0].Type)
}
