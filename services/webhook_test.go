package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"wastewatch/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func faultyAlert() FaultAlert {
	snap := deviceSnapshot(map[models.Parameter]float64{
		models.ParamPH:  5.0,
		models.ParamTSS: 180,
		models.ParamDO:  0.5,
	})
	return FaultAlert{
		Device:     models.Device{ID: "d1", Location: "North STP"},
		Snapshot:   snap,
		Evaluation: Evaluate(snap, DefaultRanges(), 0),
	}
}

func TestWebhookPostsAlert(t *testing.T) {
	var received WebhookAlertPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	svc := NewWebhookAlertService(zap.NewNop(), server.URL+"/")
	require.NoError(t, svc.Notify(context.Background(), faultyAlert()))

	assert.Equal(t, "North STP", received.Location)
	assert.Equal(t, models.SeverityHigh, received.Severity)
	assert.Equal(t, "threshold_fault", received.AlertType)
	assert.Len(t, received.Evaluation.Faults, 3)
}

func TestWebhookReportsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	svc := NewWebhookAlertService(zap.NewNop(), server.URL)
	err := svc.Notify(context.Background(), faultyAlert())
	assert.Error(t, err)
}

func TestWebhookSkipsHealthyEvaluation(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	svc := NewWebhookAlertService(zap.NewNop(), server.URL)
	require.NoError(t, svc.Notify(context.Background(), FaultAlert{Evaluation: models.Evaluation{DeviceID: "d1"}}))
	assert.False(t, called)
}
