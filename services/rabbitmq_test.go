package services

import (
	"context"
	"testing"
	"time"

	"wastewatch/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRabbitMQProcessMessage(t *testing.T) {
	r := &RabbitMQService{logger: zap.NewNop()}
	out := make(chan *models.SensorSnapshot, 1)
	sent := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	msg := amqp.Delivery{
		Body:      []byte(`{"device_id":"d1","BOD":"41.5","DO":3}`),
		Timestamp: sent,
	}
	require.NoError(t, r.processMessage(context.Background(), msg, out))

	snap := <-out
	assert.Equal(t, "d1", snap.DeviceID)
	assert.Equal(t, sent, snap.Timestamp)
	bod, ok := snap.Get(models.ParamBOD)
	require.True(t, ok)
	assert.Equal(t, 41.5, bod)
}

func TestRabbitMQProcessMessageRejectsInvalid(t *testing.T) {
	r := &RabbitMQService{logger: zap.NewNop()}
	out := make(chan *models.SensorSnapshot, 1)

	err := r.processMessage(context.Background(), amqp.Delivery{Body: []byte(`{"pH":7}`)}, out)
	assert.ErrorIs(t, err, errInvalidMessage)

	err = r.processMessage(context.Background(), amqp.Delivery{Body: []byte(`not json`)}, out)
	assert.ErrorIs(t, err, errInvalidMessage)
	assert.Empty(t, out)
}

func TestRabbitMQProcessMessageStopsOnCancel(t *testing.T) {
	r := &RabbitMQService{logger: zap.NewNop()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.processMessage(ctx, amqp.Delivery{Body: []byte(`{"device_id":"d1"}`)}, make(chan *models.SensorSnapshot))
	assert.ErrorIs(t, err, context.Canceled)
}
