package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"wastewatch/models"

	"go.uber.org/zap"
)

// WebhookAlertService posts fault alerts to an external HTTP endpoint
type WebhookAlertService struct {
	logger     *zap.Logger
	url        string
	httpClient *http.Client
}

// WebhookAlertPayload represents the payload sent to the webhook
type WebhookAlertPayload struct {
	Snapshot   *models.SensorSnapshot    `json:"snapshot"`
	Evaluation models.Evaluation         `json:"evaluation"`
	Location   string                    `json:"location"`
	Severity   models.Severity           `json:"severity"`
	AlertType  string                    `json:"alert_type"`
	Dosage     []models.DosageSuggestion `json:"dosage,omitempty"`
}

// NewWebhookAlertService creates a new webhook alert service
func NewWebhookAlertService(logger *zap.Logger, url string) *WebhookAlertService {
	return &WebhookAlertService{
		logger: logger,
		url:    strings.TrimRight(url, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (h *WebhookAlertService) Name() string {
	return "webhook"
}

// Notify sends the alert via HTTP POST
func (h *WebhookAlertService) Notify(ctx context.Context, alert FaultAlert) error {
	if !alert.Evaluation.HasFaults() {
		return nil
	}

	deviceID := alert.Evaluation.DeviceID
	payload := WebhookAlertPayload{
		Snapshot:   alert.Snapshot,
		Evaluation: alert.Evaluation,
		Location:   PlantLocation(alert.Device),
		Severity:   alert.Evaluation.Severity,
		AlertType:  "threshold_fault",
		Dosage:     alert.Dosage,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to marshal webhook payload",
			zap.Error(err),
			zap.String("device_id", deviceID),
		)
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewBuffer(jsonData))
	if err != nil {
		h.logger.Error("Failed to create HTTP request",
			zap.Error(err),
			zap.String("url", h.url),
		)
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "WasteWatch/1.0")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		h.logger.Error("Failed to send webhook alert",
			zap.Error(err),
			zap.String("device_id", deviceID),
			zap.String("url", h.url),
		)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		h.logger.Info("Webhook alert sent successfully",
			zap.String("device_id", deviceID),
			zap.Int("fault_count", len(alert.Evaluation.Faults)),
			zap.String("severity", string(payload.Severity)),
			zap.Int("status_code", resp.StatusCode),
		)
		return nil
	}

	h.logger.Error("Webhook returned error",
		zap.String("device_id", deviceID),
		zap.Int("status_code", resp.StatusCode),
		zap.String("status", resp.Status),
	)
	return fmt.Errorf("webhook error: %s", resp.Status)
}
