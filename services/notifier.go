package services

import (
	"context"

	"wastewatch/models"
)

// FaultAlert carries everything a notifier needs to describe a faulty snapshot
type FaultAlert struct {
	Device     models.Device
	Snapshot   *models.SensorSnapshot
	Evaluation models.Evaluation
	Dosage     []models.DosageSuggestion
}

// Notifier delivers fault alerts to an outside channel
type Notifier interface {
	Name() string
	Notify(ctx context.Context, alert FaultAlert) error
}
