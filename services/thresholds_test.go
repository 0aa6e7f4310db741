package services

import (
	"os"
	"path/filepath"
	"testing"

	"wastewatch/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRangesAreValid(t *testing.T) {
	ranges := DefaultRanges()
	require.NoError(t, ranges.Validate())

	for _, p := range models.AllParameters {
		_, ok := ranges[p]
		assert.True(t, ok, "missing default range for %s", p)
	}

	assert.Equal(t, models.ParameterRange{Min: 25.04, Max: 75.05, Unit: "A", Description: "Pump motor current"}, ranges[models.ParamCurrent])
	assert.Equal(t, 1.58, ranges[models.ParamPressure].Min)
	assert.Equal(t, 4.59, ranges[models.ParamPressure].Max)
	assert.Equal(t, 1.38, ranges[models.ParamVibration].Min)
	assert.Equal(t, 3.89, ranges[models.ParamVibration].Max)
	assert.Equal(t, 20.06, ranges[models.ParamTemperature].Min)
	assert.Equal(t, 60.06, ranges[models.ParamTemperature].Max)
}

func TestLoadRangesEmptyPathReturnsDefaults(t *testing.T) {
	ranges, err := LoadRanges("")
	require.NoError(t, err)
	assert.Equal(t, DefaultRanges(), ranges)
}

func writeRangesFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ranges.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadRangesAppliesOverrides(t *testing.T) {
	path := writeRangesFile(t, `
ranges:
  pH:
    min: 6.5
    max: 8.5
  Turbidity:
    min: 0
    max: 5
    unit: FNU
`)

	ranges, err := LoadRanges(path)
	require.NoError(t, err)

	assert.Equal(t, 8.5, ranges[models.ParamPH].Max)
	assert.Equal(t, "pH", ranges[models.ParamPH].Unit)
	assert.Equal(t, "Outlet pH", ranges[models.ParamPH].Description)
	assert.Equal(t, "FNU", ranges[models.ParamTurbidity].Unit)
	assert.Equal(t, DefaultRanges()[models.ParamCurrent], ranges[models.ParamCurrent])
}

func TestLoadRangesPartialOverrideKeepsDefaults(t *testing.T) {
	path := writeRangesFile(t, `
ranges:
  pH: {max: 8.5}
  DO: {min: 3}
`)

	ranges, err := LoadRanges(path)
	require.NoError(t, err)

	defaults := DefaultRanges()
	assert.Equal(t, defaults[models.ParamPH].Min, ranges[models.ParamPH].Min)
	assert.Equal(t, 8.5, ranges[models.ParamPH].Max)
	assert.Equal(t, 3.0, ranges[models.ParamDO].Min)
	assert.Equal(t, defaults[models.ParamDO].Max, ranges[models.ParamDO].Max)
}

func TestLoadRangesPartialOverrideStillValidated(t *testing.T) {
	path := writeRangesFile(t, `
ranges:
  pH: {max: 5}
`)

	_, err := LoadRanges(path)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestLoadRangesRejectsInvertedRange(t *testing.T) {
	path := writeRangesFile(t, `
ranges:
  Current:
    min: 80
    max: 20
`)

	_, err := LoadRanges(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestLoadRangesRejectsUnknownParameter(t *testing.T) {
	path := writeRangesFile(t, `
ranges:
  Salinity:
    min: 0
    max: 1
`)

	_, err := LoadRanges(path)
	assert.ErrorContains(t, err, "Salinity")
}

func TestLoadRangesMissingFile(t *testing.T) {
	_, err := LoadRanges(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
