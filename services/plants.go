package services

import (
	"strings"

	"wastewatch/models"
)

// UnknownLocation labels devices that carry no location
const UnknownLocation = "Unknown Location"

type plantTypeRule struct {
	plantType models.PlantType
	keywords  []string
}

// Checked in order, first match wins. "wastewater" sits under STP so it is
// not captured by the WTP "water treatment" keyword.
var plantTypeRules = []plantTypeRule{
	{plantType: models.PlantSTP, keywords: []string{"stp", "sewage", "wastewater"}},
	{plantType: models.PlantWTP, keywords: []string{"wtp", "water treatment", "drinking"}},
	{plantType: models.PlantCEMS, keywords: []string{"cems", "emission", "stack"}},
}

// ClassifyPlantType infers the plant type from the device type, falling back
// to keyword matches over the device type and name
func ClassifyPlantType(device models.Device) models.PlantType {
	deviceType := strings.ToLower(strings.TrimSpace(device.DeviceType))
	for _, rule := range plantTypeRules {
		if deviceType == strings.ToLower(string(rule.plantType)) {
			return rule.plantType
		}
	}

	haystack := deviceType + " " + strings.ToLower(device.Name)
	for _, rule := range plantTypeRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(haystack, keyword) {
				return rule.plantType
			}
		}
	}
	return models.PlantOther
}

// PlantLocation returns the grouping key for a device
func PlantLocation(device models.Device) string {
	if location := strings.TrimSpace(device.Location); location != "" {
		return location
	}
	return UnknownLocation
}

// AggregatePlants groups devices by location. Plants keep the order in which
// their first device appears. Status is an OR reduction: online if any device
// is online, else maintenance if any is in maintenance, else offline.
func AggregatePlants(devices []models.Device) []models.Plant {
	plants := []models.Plant{}
	index := make(map[string]int)

	for _, device := range devices {
		location := PlantLocation(device)

		i, exists := index[location]
		if !exists {
			plants = append(plants, models.Plant{
				Location: location,
				Type:     models.PlantOther,
				Status:   models.StatusOffline,
			})
			i = len(plants) - 1
			index[location] = i
		}

		plant := &plants[i]
		plant.DeviceCount++
		plant.DeviceIDs = append(plant.DeviceIDs, device.ID)

		if plant.Type == models.PlantOther {
			plant.Type = ClassifyPlantType(device)
		}

		switch device.Status {
		case models.StatusOnline:
			plant.Status = models.StatusOnline
		case models.StatusMaintenance:
			if plant.Status != models.StatusOnline {
				plant.Status = models.StatusMaintenance
			}
		}
	}

	return plants
}
