package services

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"wastewatch/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSnapshotJSON(t *testing.T) {
	received := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{
		"device_id": "STP-001",
		"timestamp": "2026-03-01T11:59:30Z",
		"Current": 42.5,
		"pH": "7.1",
		"TSS": "n/a",
		"DO": null,
		"Salinity": 3
	}`)

	snap, err := DecodeSnapshotJSON(body, received)
	require.NoError(t, err)

	assert.Equal(t, "STP-001", snap.DeviceID)
	assert.Equal(t, time.Date(2026, 3, 1, 11, 59, 30, 0, time.UTC), snap.Timestamp)

	current, ok := snap.Get(models.ParamCurrent)
	require.True(t, ok)
	assert.Equal(t, 42.5, current)

	ph, ok := snap.Get(models.ParamPH)
	require.True(t, ok)
	assert.Equal(t, 7.1, ph)

	tss, ok := snap.Get(models.ParamTSS)
	require.True(t, ok)
	assert.Equal(t, MalformedReadingFallback, tss)

	_, ok = snap.Get(models.ParamDO)
	assert.False(t, ok)
	_, ok = snap.Get(models.ParamPressure)
	assert.False(t, ok)
	assert.Equal(t, 3, snap.Count())
}

func TestDecodeSnapshotTimestampFallbacks(t *testing.T) {
	received := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	missing, err := decodeSnapshot(map[string]interface{}{"device_id": "d1"}, received)
	require.NoError(t, err)
	assert.Equal(t, received, missing.Timestamp)

	garbage, err := decodeSnapshot(map[string]interface{}{"device_id": "d1", "timestamp": "yesterday"}, received)
	require.NoError(t, err)
	assert.Equal(t, received, garbage.Timestamp)

	millis := float64(received.Add(-time.Minute).UnixMilli())
	server, err := decodeSnapshot(map[string]interface{}{"deviceId": "d1", "timestamp": millis}, received)
	require.NoError(t, err)
	assert.True(t, server.Timestamp.Equal(received.Add(-time.Minute)))
}

func TestDecodeSnapshotNestedReadings(t *testing.T) {
	snap, err := decodeSnapshot(map[string]interface{}{
		"device_id": "d1",
		"readings": map[string]interface{}{
			"FlowRate": 61.0,
		},
	}, time.Now())
	require.NoError(t, err)

	flow, ok := snap.Get(models.ParamFlowRate)
	require.True(t, ok)
	assert.Equal(t, 61.0, flow)
}

func TestDecodeSnapshotRequiresDeviceID(t *testing.T) {
	_, err := decodeSnapshot(map[string]interface{}{"Current": 30.0}, time.Now())
	assert.ErrorIs(t, err, ErrMissingDeviceID)

	_, err = DecodeSnapshotJSON([]byte(`{"device_id": "  "}`), time.Now())
	assert.ErrorIs(t, err, ErrMissingDeviceID)

	_, err = DecodeSnapshotJSON([]byte(`not json`), time.Now())
	assert.Error(t, err)
}

func TestDecodeSnapshotRejectsNonFiniteReadings(t *testing.T) {
	received := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	body := []byte(`{"device_id": "d1", "pH": "NaN", "TSS": "Inf", "COD": "-infinity"}`)

	snap, err := DecodeSnapshotJSON(body, received)
	require.NoError(t, err)

	for _, p := range []models.Parameter{models.ParamPH, models.ParamTSS, models.ParamCOD} {
		v, ok := snap.Get(p)
		require.True(t, ok, p)
		assert.Equal(t, MalformedReadingFallback, v, p)
	}

	_, err = json.Marshal(snap)
	assert.NoError(t, err)
}

func TestToFloatNonFiniteNumbers(t *testing.T) {
	assert.Equal(t, MalformedReadingFallback, toFloat(math.NaN()))
	assert.Equal(t, MalformedReadingFallback, toFloat(math.Inf(1)))
	assert.Equal(t, MalformedReadingFallback, toFloat(float32(math.Inf(-1))))
	assert.Equal(t, 2.5, toFloat(json.Number("2.5")))
}
