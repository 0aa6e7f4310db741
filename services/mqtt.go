package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wastewatch/config"
	"wastewatch/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTSource subscribes directly to a broker topic carrying snapshot JSON
type MQTTSource struct {
	client mqtt.Client
	topic  string
	logger *zap.Logger
}

func NewMQTTSource(cfg *config.Config, logger *zap.Logger) (*MQTTSource, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.MQTTBroker))
	opts.SetClientID(fmt.Sprintf("wastewatch-%d", time.Now().UnixNano()))
	if cfg.MQTTUser != "" {
		opts.SetUsername(cfg.MQTTUser)
		opts.SetPassword(cfg.MQTTPass)
	}
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)

	opts.OnConnect = func(client mqtt.Client) {
		logger.Info("Connected to MQTT broker", zap.String("broker", cfg.MQTTBroker))
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Error("MQTT connection lost", zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &MQTTSource{
		client: client,
		topic:  cfg.MQTTTopic,
		logger: logger,
	}, nil
}

func (m *MQTTSource) Name() string {
	return "mqtt"
}

// Subscribe forwards every decodable message on the topic
func (m *MQTTSource) Subscribe(ctx context.Context) (<-chan *models.SensorSnapshot, error) {
	out := make(chan *models.SensorSnapshot, 32)
	var mu sync.Mutex
	closed := false

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		snapshot, err := DecodeSnapshotJSON(msg.Payload(), time.Now())
		if err != nil {
			m.logger.Warn("Dropping invalid MQTT snapshot",
				zap.String("topic", msg.Topic()),
				zap.Error(err))
			return
		}

		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case out <- snapshot:
		case <-ctx.Done():
		}
	}

	token := m.client.Subscribe(m.topic, 1, handler)
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", m.topic, token.Error())
	}

	m.logger.Info("Subscribed to MQTT topic", zap.String("topic", m.topic))

	go func() {
		<-ctx.Done()
		if token := m.client.Unsubscribe(m.topic); token.WaitTimeout(2*time.Second) && token.Error() != nil {
			m.logger.Warn("Failed to unsubscribe from MQTT topic", zap.Error(token.Error()))
		}

		mu.Lock()
		closed = true
		close(out)
		mu.Unlock()
	}()

	return out, nil
}

func (m *MQTTSource) Close() {
	m.logger.Info("Disconnecting from MQTT broker")
	m.client.Disconnect(250)
}
