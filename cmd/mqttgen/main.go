package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"wastewatch/config"
	"wastewatch/models"
	"wastewatch/services"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

var (
	rps        = flag.Int("rps", 1, "Snapshots per second per device")
	devices    = flag.String("devices", "STP-MOCK-001", "Comma separated device IDs")
	faultProb  = flag.Float64("fault", 0.1, "Probability of an out of band snapshot (0.0-1.0)")
	transport  = flag.String("transport", "mqtt", "Publish transport: mqtt or amqp")
	mqttBroker = flag.String("broker", "localhost:1883", "MQTT broker address (host:port)")
	mqttUser   = flag.String("user", "", "MQTT username")
	mqttPass   = flag.String("pass", "", "MQTT password")
	mqttTopic  = flag.String("topic", "wastewatch/snapshots", "MQTT topic to publish to")
)

type publishFunc func(snapshot *models.SensorSnapshot) error

func newMQTTPublisher(logger *zap.Logger) (publishFunc, func(), error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", *mqttBroker))
	opts.SetClientID(fmt.Sprintf("wastewatch-generator-%d", time.Now().UnixNano()))
	if *mqttUser != "" {
		opts.SetUsername(*mqttUser)
		opts.SetPassword(*mqttPass)
	}
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)

	opts.OnConnect = func(client mqtt.Client) {
		logger.Info("Connected to MQTT broker", zap.String("broker", *mqttBroker))
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Error("MQTT connection lost", zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	publish := func(snapshot *models.SensorSnapshot) error {
		jsonData, err := json.Marshal(snapshot)
		if err != nil {
			return fmt.Errorf("failed to marshal snapshot: %w", err)
		}
		token := client.Publish(*mqttTopic, 0, false, jsonData)
		token.Wait()
		return token.Error()
	}
	return publish, func() { client.Disconnect(250) }, nil
}

func newAMQPPublisher(logger *zap.Logger) (publishFunc, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	rabbit, err := services.NewRabbitMQService(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return rabbit.Publish, func() { rabbit.Close() }, nil
}

func main() {
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	deviceIDs := strings.Split(*devices, ",")
	if *rps <= 0 {
		logger.Fatal("rps must be positive", zap.Int("rps", *rps))
	}

	var (
		publish publishFunc
		closeFn func()
		err     error
	)
	switch *transport {
	case "mqtt":
		publish, closeFn, err = newMQTTPublisher(logger)
	case "amqp":
		publish, closeFn, err = newAMQPPublisher(logger)
	default:
		err = fmt.Errorf("unknown transport %q", *transport)
	}
	if err != nil {
		logger.Fatal("Failed to initialize publisher", zap.Error(err))
	}
	defer closeFn()

	logger.Info("Snapshot generator started",
		zap.Strings("devices", deviceIDs),
		zap.Int("rps", *rps),
		zap.Float64("fault_probability", *faultProb),
		zap.String("transport", *transport),
	)
	logger.Info("Press Ctrl+C to stop gracefully")

	simulator := services.NewSnapshotSimulator(deviceIDs, time.Second, *faultProb, logger)
	evaluator := services.NewEvaluator(services.DefaultRanges())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, stopping generator")
		cancel()
	}()

	interval := time.Second / time.Duration(*rps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(60 * time.Second)
	defer statsTicker.Stop()

	messageCount := 0
	faultCount := 0
	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Generator stopped",
				zap.Int("total_messages", messageCount),
				zap.Int("faulty_snapshots", faultCount),
				zap.Duration("total_uptime", time.Since(startTime)),
			)
			return

		case now := <-ticker.C:
			for _, deviceID := range deviceIDs {
				snapshot := simulator.Generate(deviceID, now)
				eval := evaluator.Evaluate(snapshot, 0)

				if err := publish(snapshot); err != nil {
					logger.Error("Failed to publish snapshot",
						zap.String("device_id", deviceID),
						zap.Error(err))
					continue
				}

				messageCount++
				if eval.HasFaults() {
					faultCount++
				}

				logger.Debug("Published snapshot",
					zap.String("device_id", deviceID),
					zap.String("severity", string(eval.Severity)),
					zap.Int("fault_count", len(eval.Faults)))
			}

		case <-statsTicker.C:
			faultRate := 0.0
			if messageCount > 0 {
				faultRate = float64(faultCount) / float64(messageCount) * 100
			}
			logger.Info("Statistics",
				zap.Int("total_messages", messageCount),
				zap.Int("faulty_snapshots", faultCount),
				zap.Float64("fault_rate_percent", faultRate),
				zap.Float64("avg_rate_msg_per_sec", float64(messageCount)/time.Since(startTime).Seconds()),
			)
		}
	}
}
