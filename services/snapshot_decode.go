package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"wastewatch/models"
)

// ErrMissingDeviceID is returned for records that cannot be attributed to a device
var ErrMissingDeviceID = errors.New("missing device_id")

// MalformedReadingFallback replaces values that are present but not numeric
const MalformedReadingFallback = 0.0

// DecodeSnapshotJSON parses a flat JSON snapshot message
func DecodeSnapshotJSON(body []byte, receivedAt time.Time) (*models.SensorSnapshot, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return decodeSnapshot(raw, receivedAt)
}

// decodeSnapshot converts a loosely typed record into a snapshot. Absent
// parameters stay absent, malformed ones fall back to MalformedReadingFallback
// and a missing or unreadable timestamp becomes receivedAt.
func decodeSnapshot(data map[string]interface{}, receivedAt time.Time) (*models.SensorSnapshot, error) {
	deviceID := firstString(data, "device_id", "deviceId")
	if deviceID == "" {
		return nil, ErrMissingDeviceID
	}

	snapshot := &models.SensorSnapshot{
		DeviceID:  deviceID,
		Timestamp: parseTimestamp(data["timestamp"], receivedAt),
	}

	// Some firmware nests the values under "readings"
	values := data
	if nested, ok := data["readings"].(map[string]interface{}); ok {
		values = nested
	}

	for _, p := range models.AllParameters {
		raw, ok := values[string(p)]
		if !ok || raw == nil {
			continue
		}
		snapshot.Set(p, toFloat(raw))
	}

	return snapshot, nil
}

func firstString(data map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if s, ok := data[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func toFloat(raw interface{}) float64 {
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return MalformedReadingFallback
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return MalformedReadingFallback
		}
		f = parsed
	default:
		return MalformedReadingFallback
	}
	// NaN and infinities are not readings and cannot be encoded as JSON
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return MalformedReadingFallback
	}
	return f
}

func parseTimestamp(raw interface{}, fallback time.Time) time.Time {
	switch v := raw.(type) {
	case string:
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			return ts
		}
	case float64:
		// Realtime Database server timestamps are epoch milliseconds
		if v > 0 {
			return time.UnixMilli(int64(v))
		}
	}
	return fallback
}
