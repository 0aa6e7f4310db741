package services

import (
	"errors"
	"fmt"
	"os"

	"wastewatch/models"

	"gopkg.in/yaml.v3"
)

// ErrInvalidRange is returned when a range table entry has min >= max
var ErrInvalidRange = errors.New("invalid parameter range")

// RangeTable maps each parameter to its acceptable band
type RangeTable map[models.Parameter]models.ParameterRange

// DefaultRanges returns the built-in range table
func DefaultRanges() RangeTable {
	return RangeTable{
		models.ParamCurrent:      {Min: 25.04, Max: 75.05, Unit: "A", Description: "Pump motor current"},
		models.ParamPressure:     {Min: 1.58, Max: 4.59, Unit: "bar", Description: "Line pressure"},
		models.ParamFlowRate:     {Min: 10, Max: 100, Unit: "m³/h", Description: "Inlet flow rate"},
		models.ParamVibration:    {Min: 1.38, Max: 3.89, Unit: "mm/s", Description: "Pump vibration velocity"},
		models.ParamTemperature:  {Min: 20.06, Max: 60.06, Unit: "°C", Description: "Motor temperature"},
		models.ParamPH:           {Min: 6.5, Max: 9.0, Unit: "pH", Description: "Outlet pH"},
		models.ParamBOD:          {Min: 0, Max: 30, Unit: "mg/L", Description: "Biochemical oxygen demand"},
		models.ParamCOD:          {Min: 0, Max: 250, Unit: "mg/L", Description: "Chemical oxygen demand"},
		models.ParamTSS:          {Min: 0, Max: 100, Unit: "mg/L", Description: "Total suspended solids"},
		models.ParamDO:           {Min: 2, Max: 8, Unit: "mg/L", Description: "Dissolved oxygen"},
		models.ParamConductivity: {Min: 0, Max: 2250, Unit: "µS/cm", Description: "Electrical conductivity"},
		models.ParamTurbidity:    {Min: 0, Max: 10, Unit: "NTU", Description: "Turbidity"},
	}
}

// Validate checks that min is below max for every entry
func (t RangeTable) Validate() error {
	for _, p := range models.AllParameters {
		r, ok := t[p]
		if !ok {
			continue
		}
		if r.Min >= r.Max {
			return fmt.Errorf("%w: %s min %.2f is not below max %.2f", ErrInvalidRange, p, r.Min, r.Max)
		}
	}
	return nil
}

// rangeOverride leaves unset fields at their default
type rangeOverride struct {
	Min         *float64 `yaml:"min"`
	Max         *float64 `yaml:"max"`
	Unit        string   `yaml:"unit"`
	Description string   `yaml:"description"`
}

type rangeFile struct {
	Ranges map[string]rangeOverride `yaml:"ranges"`
}

// LoadRanges reads a YAML file of range overrides and applies them on top of
// the defaults. Fields an entry leaves out keep their default value. An empty
// path returns the defaults.
//
//	ranges:
//	  pH: {min: 6.5, max: 8.5, unit: pH}
func LoadRanges(path string) (RangeTable, error) {
	table := DefaultRanges()
	if path == "" {
		return table, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ranges file: %w", err)
	}

	var file rangeFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse ranges file: %w", err)
	}

	for name, override := range file.Ranges {
		if !models.IsKnownParameter(name) {
			return nil, fmt.Errorf("unknown parameter %q in ranges file", name)
		}
		p := models.Parameter(name)
		merged := table[p]
		if override.Min != nil {
			merged.Min = *override.Min
		}
		if override.Max != nil {
			merged.Max = *override.Max
		}
		if override.Unit != "" {
			merged.Unit = override.Unit
		}
		if override.Description != "" {
			merged.Description = override.Description
		}
		table[p] = merged
	}

	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}
