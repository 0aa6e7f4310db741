package models

import (
	"time"
)

// DeviceHealth tracks the live state of a device inside the monitor
type DeviceHealth struct {
	Device         Device
	LastSnapshot   *SensorSnapshot
	LastEvaluation *Evaluation
	Status         DeviceStatus
	TimeoutAt      time.Time // When the device went stale (if applicable)
}
