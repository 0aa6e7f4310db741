package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"wastewatch/export"
	"wastewatch/live"
	"wastewatch/models"
	"wastewatch/services"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type APIHandler struct {
	tracker    *services.DeviceTracker
	evaluator  *services.Evaluator
	capacities *services.CapacityStore
	cache      *services.SnapshotCache // optional
	hub        *live.Hub
	logger     *zap.Logger
	now        func() time.Time
}

func NewAPIHandler(tracker *services.DeviceTracker, evaluator *services.Evaluator, capacities *services.CapacityStore, cache *services.SnapshotCache, hub *live.Hub, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		tracker:    tracker,
		evaluator:  evaluator,
		capacities: capacities,
		cache:      cache,
		hub:        hub,
		logger:     logger,
		now:        time.Now,
	}
}

// EvaluationResponse pairs an evaluation with its dosage suggestions
type EvaluationResponse struct {
	Snapshot   *models.SensorSnapshot    `json:"snapshot,omitempty"`
	Evaluation models.Evaluation         `json:"evaluation"`
	Capacity   float64                   `json:"plant_capacity"`
	Dosage     []models.DosageSuggestion `json:"dosage"`
}

type capacityRequest struct {
	Capacity float64 `json:"capacity"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		// Headers are still unsent, so the failure can be reported
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (h *APIHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"devices":   h.tracker.StatusCounts(),
		"ws_client": h.hub.ClientCount(),
	})
}

func (h *APIHandler) HandleListPlants(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tracker.Plants())
}

func (h *APIHandler) HandleListDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tracker.Devices())
}

// latest returns the newest snapshot and evaluation known for a device,
// falling back to the cache when the tracker has none
func (h *APIHandler) latest(r *http.Request, deviceID string) (*models.SensorSnapshot, *models.Evaluation, bool) {
	if health, ok := h.tracker.GetDeviceHealth(deviceID); ok && health.LastEvaluation != nil {
		return health.LastSnapshot, health.LastEvaluation, true
	}
	if h.cache == nil {
		return nil, nil, false
	}
	cached, err := h.cache.Get(r.Context(), deviceID)
	if err != nil {
		if !errors.Is(err, services.ErrCacheMiss) {
			h.logger.Warn("Failed to read cached evaluation", zap.String("device_id", deviceID), zap.Error(err))
		}
		return nil, nil, false
	}
	return cached.Snapshot, &cached.Evaluation, true
}

func (h *APIHandler) deviceCapacity(deviceID string) float64 {
	device, ok := h.tracker.Device(deviceID)
	if !ok {
		device = models.Device{ID: deviceID}
	}
	return h.capacities.For(device)
}

func (h *APIHandler) HandleDeviceEvaluation(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")
	snapshot, eval, ok := h.latest(r, deviceID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no evaluation for device %s", deviceID))
		return
	}

	capacity := h.deviceCapacity(deviceID)
	dosage := []models.DosageSuggestion{}
	if snapshot != nil {
		dosage = services.SuggestDosage(snapshot, capacity)
	}

	writeJSON(w, http.StatusOK, EvaluationResponse{
		Snapshot:   snapshot,
		Evaluation: *eval,
		Capacity:   capacity,
		Dosage:     dosage,
	})
}

func (h *APIHandler) HandleDeviceDosage(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")
	snapshot, _, ok := h.latest(r, deviceID)
	if !ok || snapshot == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no readings for device %s", deviceID))
		return
	}

	writeJSON(w, http.StatusOK, services.SuggestDosage(snapshot, h.deviceCapacity(deviceID)))
}

func (h *APIHandler) HandleSetCapacity(w http.ResponseWriter, r *http.Request) {
	location, err := url.PathUnescape(chi.URLParam(r, "location"))
	if err != nil || location == "" {
		writeError(w, http.StatusBadRequest, "invalid location")
		return
	}

	var req capacityRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.capacities.Set(location, req.Capacity); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Info("Plant capacity updated",
		zap.String("location", location),
		zap.Float64("capacity", req.Capacity))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"location":      location,
		"capacity":      req.Capacity,
		"expected_flow": services.ExpectedFlow(req.Capacity),
	})
}

// HandleEvaluate evaluates a posted snapshot without recording it
func (h *APIHandler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	snapshot, err := services.DecodeSnapshotJSON(body, h.now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	capacity := 0.0
	if raw := r.URL.Query().Get("capacity"); raw != "" {
		capacity, err = strconv.ParseFloat(raw, 64)
		if err != nil || capacity < 0 || math.IsNaN(capacity) || math.IsInf(capacity, 0) {
			writeError(w, http.StatusBadRequest, "capacity must be a non-negative number")
			return
		}
	}

	writeJSON(w, http.StatusOK, EvaluationResponse{
		Snapshot:   snapshot,
		Evaluation: h.evaluator.Evaluate(snapshot, capacity),
		Capacity:   capacity,
		Dosage:     services.SuggestDosage(snapshot, capacity),
	})
}

func (h *APIHandler) buildReport(r *http.Request) *export.Report {
	devices := h.tracker.Devices()
	report := &export.Report{
		GeneratedAt: h.now(),
		Plants:      services.AggregatePlants(devices),
		Devices:     make([]export.DeviceRow, 0, len(devices)),
	}
	for _, device := range devices {
		_, eval, _ := h.latest(r, device.ID)
		report.Devices = append(report.Devices, export.DeviceRow{Device: device, Evaluation: eval})
	}
	return report
}

func (h *APIHandler) HandleReport(w http.ResponseWriter, r *http.Request) {
	data, format, err := export.Render(h.buildReport(r), chi.URLParam(r, "format"))
	if err != nil {
		if errors.Is(err, export.ErrUnsupportedFormat) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("Failed to render report", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to render report")
		return
	}

	filename := fmt.Sprintf("plant-report-%s.%s", h.now().Format("20060102-1504"), format.Extension)
	w.Header().Set("Content-Type", format.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *APIHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeWS(w, r)
}
