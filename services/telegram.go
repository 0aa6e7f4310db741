package services

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"time"

	"wastewatch/config"
	"wastewatch/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const timeLayout = "2006-01-02 15:04:05"

type TelegramService struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	throttle       time.Duration
	lastAlertTimes map[string]time.Time // Track last alert time per device
	mu             sync.Mutex
	logger         *zap.Logger
}

func NewTelegramService(cfg *config.Config, logger *zap.Logger) (*TelegramService, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("error creating telegram bot: %w", err)
	}

	chatID, err := strconv.ParseInt(cfg.TelegramChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("error parsing chat ID: %w", err)
	}

	logger.Info("Telegram bot authorized", zap.String("username", bot.Self.UserName))

	ts := &TelegramService{
		bot:            bot,
		chatID:         chatID,
		throttle:       cfg.AlertThrottle,
		lastAlertTimes: make(map[string]time.Time),
		logger:         logger,
	}

	// Test Telegram connection with retry
	if err := ts.testConnection(); err != nil {
		logger.Error("Telegram connection test failed", zap.Error(err))
		return nil, fmt.Errorf("telegram connection test failed: %w", err)
	}

	return ts, nil
}

// testConnection tests Telegram connection with retry logic
func (ts *TelegramService) testConnection() error {
	maxRetries := 3

	for attempt := 1; attempt <= maxRetries; attempt++ {
		ts.logger.Info("Testing Telegram connection", zap.Int("attempt", attempt), zap.Int("max_retries", maxRetries))

		_, err := ts.bot.GetMe()
		if err == nil {
			ts.logger.Info("Telegram connection successful")
			return nil
		}

		ts.logger.Warn("Telegram connection failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}

	return fmt.Errorf("failed to connect to Telegram after %d attempts", maxRetries)
}

func (ts *TelegramService) Name() string {
	return "telegram"
}

// Notify sends a formatted fault alert, throttled per device
func (ts *TelegramService) Notify(_ context.Context, alert FaultAlert) error {
	if !alert.Evaluation.HasFaults() {
		return nil
	}

	deviceID := alert.Evaluation.DeviceID
	if !ts.allow(deviceID, time.Now()) {
		ts.logger.Debug("Throttling alert", zap.String("device_id", deviceID))
		return nil
	}

	if err := ts.send(formatFaultMessage(alert)); err != nil {
		return fmt.Errorf("error sending telegram message: %w", err)
	}

	ts.logger.Info("Sent fault alert",
		zap.String("device_id", deviceID),
		zap.Int("fault_count", len(alert.Evaluation.Faults)))
	return nil
}

// allow reports whether a device may be alerted at now and records the attempt
func (ts *TelegramService) allow(deviceID string, now time.Time) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if last, exists := ts.lastAlertTimes[deviceID]; exists && now.Sub(last) < ts.throttle {
		return false
	}
	ts.lastAlertTimes[deviceID] = now
	return true
}

func (ts *TelegramService) send(text string) error {
	msg := tgbotapi.NewMessage(ts.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	_, err := ts.bot.Send(msg)
	return err
}

// formatFaultMessage creates a mobile-friendly HTML message
func formatFaultMessage(alert FaultAlert) string {
	var sb strings.Builder
	eval := alert.Evaluation

	sb.WriteString("🚨 <b>WASTEWATER FAULT ALERT</b> 🚨\n\n")

	name := alert.Device.Name
	if name == "" {
		name = eval.DeviceID
	}
	sb.WriteString(fmt.Sprintf("📱 <b>Device:</b> %s\n", html.EscapeString(name)))
	sb.WriteString(fmt.Sprintf("📍 <b>Location:</b> %s\n", html.EscapeString(PlantLocation(alert.Device))))
	sb.WriteString(fmt.Sprintf("🕐 <b>Time:</b> %s\n", eval.Timestamp.Format(timeLayout)))
	sb.WriteString(fmt.Sprintf("%s <b>Severity:</b> %s\n\n", eval.Severity.GetSeverityColor(), strings.ToUpper(string(eval.Severity))))

	if alert.Snapshot != nil && alert.Snapshot.Count() > 0 {
		sb.WriteString("📊 <b>Current Readings:</b>\n")
		for _, p := range models.AllParameters {
			if v, ok := alert.Snapshot.Get(p); ok {
				sb.WriteString(fmt.Sprintf("• %s: %.2f\n", p, v))
			}
		}
		sb.WriteString("\n")
	}

	sb.WriteString("⚠️ <b>Detected Faults:</b>\n")
	for i, fault := range eval.Faults {
		sb.WriteString(fmt.Sprintf("%s <b>%s</b>\n", fault.GetFaultEmoji(), faultTitle(fault)))
		sb.WriteString(fmt.Sprintf("   └ %s\n", html.EscapeString(fault.Message)))
		if i < len(eval.Faults)-1 {
			sb.WriteString("\n")
		}
	}

	if len(alert.Dosage) > 0 {
		sb.WriteString("\n🧪 <b>Suggested Dosage:</b>\n")
		for _, d := range alert.Dosage {
			if d.DoseMgL == 0 {
				sb.WriteString(fmt.Sprintf("• %s (%s)\n", d.Chemical, html.EscapeString(d.Reason)))
				continue
			}
			sb.WriteString(fmt.Sprintf("• %s: %.2f mg/L, %.2f kg/day (%s)\n",
				d.Chemical, d.DoseMgL, d.KgPerDay, html.EscapeString(d.Reason)))
		}
	}

	sb.WriteString("\n🔴 <b>Status:</b> ATTENTION REQUIRED")

	return sb.String()
}

func faultTitle(fault models.FaultRecord) string {
	if fault.Kind == models.FaultTooHigh {
		return fmt.Sprintf("High %s", fault.Parameter)
	}
	return fmt.Sprintf("Low %s", fault.Parameter)
}

// SendStartupMessage sends a message when the service starts
func (ts *TelegramService) SendStartupMessage(sources []string) error {
	message := "🟢 <b>Wastewater Monitoring Started</b>\n\n" +
		fmt.Sprintf("📡 Snapshot sources: %s\n", strings.Join(sources, ", ")) +
		"🤖 Telegram notifications active\n" +
		"👀 Evaluating plant readings against thresholds...\n\n" +
		"✅ System is ready and operational!"

	return ts.send(message)
}

// SendDeviceOfflineAlert sends an alert when a device stops reporting
func (ts *TelegramService) SendDeviceOfflineAlert(device models.Device, timeSinceLastSeen time.Duration, lastSnapshot *models.SensorSnapshot) error {
	var sb strings.Builder

	sb.WriteString("⚠️ <b>DEVICE OFFLINE</b> ⚠️\n\n")
	sb.WriteString(fmt.Sprintf("📱 <b>Device:</b> %s\n", html.EscapeString(device.ID)))
	sb.WriteString(fmt.Sprintf("📍 <b>Location:</b> %s\n", html.EscapeString(PlantLocation(device))))
	sb.WriteString(fmt.Sprintf("🕐 <b>Last Seen:</b> %s\n", device.LastSeen.Format(timeLayout)))
	sb.WriteString(fmt.Sprintf("⏱️ <b>Silent For:</b> %s\n\n", formatDuration(timeSinceLastSeen)))

	if lastSnapshot != nil {
		sb.WriteString(fmt.Sprintf("📊 <b>Last Snapshot:</b> %d readings at %s\n\n",
			lastSnapshot.Count(), lastSnapshot.Timestamp.Format(timeLayout)))
	}

	sb.WriteString("💡 <b>Action Required:</b>\n")
	sb.WriteString("Check power and connectivity of the field unit.\n\n")
	sb.WriteString("🔴 <b>Status:</b> OFFLINE")

	if err := ts.send(sb.String()); err != nil {
		return fmt.Errorf("error sending offline alert: %w", err)
	}

	ts.logger.Info("Sent device offline alert",
		zap.String("device_id", device.ID),
		zap.Duration("time_since_last_seen", timeSinceLastSeen))
	return nil
}

// SendDeviceRecoveredAlert sends an alert when a device reports again
func (ts *TelegramService) SendDeviceRecoveredAlert(device models.Device, downDuration time.Duration) error {
	var sb strings.Builder

	sb.WriteString("✅ <b>DEVICE RECOVERED</b> ✅\n\n")
	sb.WriteString(fmt.Sprintf("📱 <b>Device:</b> %s\n", html.EscapeString(device.ID)))
	sb.WriteString(fmt.Sprintf("🕐 <b>Recovery Time:</b> %s\n", time.Now().Format(timeLayout)))
	sb.WriteString(fmt.Sprintf("⏱️ <b>Downtime:</b> %s\n\n", formatDuration(downDuration)))
	sb.WriteString("🟢 <b>Status:</b> ONLINE")

	if err := ts.send(sb.String()); err != nil {
		return fmt.Errorf("error sending recovery alert: %w", err)
	}

	ts.logger.Info("Sent device recovery alert",
		zap.String("device_id", device.ID),
		zap.Duration("down_duration", downDuration))
	return nil
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0f seconds", d.Seconds())
	} else if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		return fmt.Sprintf("%d min %d sec", minutes, seconds)
	} else if d < 24*time.Hour {
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % 60
		return fmt.Sprintf("%d hr %d min", hours, minutes)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%d days %d hr", days, hours)
}
