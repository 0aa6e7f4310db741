package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"wastewatch/config"
	"wastewatch/models"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// ErrNoDataRoot is returned when neither the per-user nor the legacy client
// structure exists in the realtime database
var ErrNoDataRoot = errors.New("no client data root found")

const (
	sensorDataPath  = "sensor-data"
	faultEventsPath = "fault-events"
	plantsPath      = "plants"
)

type FirebaseService struct {
	client    *db.Client
	firestore *firestore.Client
	config    *config.Config
	logger    *zap.Logger
	root      string
}

func NewFirebaseService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*FirebaseService, error) {
	// Parse the service account JSON from environment variable
	serviceAccountJSON := []byte(cfg.FirebaseServiceAccountJSON)

	conf := &firebase.Config{
		DatabaseURL: cfg.FirebaseDbUrl,
		ProjectID:   cfg.FirebaseProjectID,
	}

	opt := option.WithCredentialsJSON(serviceAccountJSON)
	app, err := firebase.NewApp(ctx, conf, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting database client: %w", err)
	}

	store, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting firestore client: %w", err)
	}

	fs := &FirebaseService{
		client:    client,
		firestore: store,
		config:    cfg,
		logger:    logger,
	}

	// Test Firebase connection with retry
	if err := fs.testConnection(ctx); err != nil {
		logger.Error("Firebase connection test failed", zap.Error(err))
		return nil, fmt.Errorf("firebase connection test failed: %w", err)
	}

	root, err := fs.ResolveDataRoot(ctx)
	if err != nil {
		return nil, err
	}
	fs.root = root
	logger.Info("Resolved realtime data root", zap.String("root", root))

	return fs, nil
}

// testConnection tests Firebase connection with retry logic
func (fs *FirebaseService) testConnection(ctx context.Context) error {
	maxRetries := 3

	for attempt := 1; attempt <= maxRetries; attempt++ {
		fs.logger.Info("Testing Firebase connection", zap.Int("attempt", attempt), zap.Int("max_retries", maxRetries))

		// Shallow read of the root is enough to prove access
		var data interface{}
		err := fs.client.NewRef("/.info/connected").Get(ctx, &data)

		if err == nil {
			fs.logger.Info("Firebase connection successful")
			return nil
		}

		fs.logger.Warn("Firebase connection failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * time.Second) // Linear backoff
		}
	}

	return fmt.Errorf("failed to connect to Firebase after %d attempts", maxRetries)
}

// dataRootCandidates lists realtime database roots in resolution order:
// the per-user structure, then the legacy shared structure
func dataRootCandidates(clientID, legacyClientID string) []string {
	var candidates []string
	if clientID != "" {
		candidates = append(candidates, "clients/"+clientID)
	}
	if legacyClientID != "" && legacyClientID != clientID {
		candidates = append(candidates, "clients/"+legacyClientID)
	}
	return candidates
}

// ResolveDataRoot picks the first candidate root that holds data
func (fs *FirebaseService) ResolveDataRoot(ctx context.Context) (string, error) {
	candidates := dataRootCandidates(fs.config.ClientID, fs.config.LegacyClientID)
	return resolveFirstExisting(candidates, func(path string) (bool, error) {
		var data interface{}
		if err := fs.client.NewRef(path).Get(ctx, &data); err != nil {
			return false, fmt.Errorf("error reading %s: %w", path, err)
		}
		return data != nil, nil
	})
}

func resolveFirstExisting(candidates []string, exists func(path string) (bool, error)) (string, error) {
	for _, path := range candidates {
		ok, err := exists(path)
		if err != nil {
			return "", err
		}
		if ok {
			return path, nil
		}
	}
	return "", ErrNoDataRoot
}

// Root returns the resolved data root
func (fs *FirebaseService) Root() string {
	return fs.root
}

func (fs *FirebaseService) ref(path string) *db.Ref {
	return fs.client.NewRef(fs.root + "/" + path)
}

func (fs *FirebaseService) Name() string {
	return "firebase"
}

// Subscribe polls the sensor-data node for records newer than the last checkpoint
func (fs *FirebaseService) Subscribe(ctx context.Context) (<-chan *models.SensorSnapshot, error) {
	out := make(chan *models.SensorSnapshot, 64)
	ref := fs.ref(sensorDataPath)

	// Track last read timestamp and processed records
	lastReadTime := time.Now().Add(-1 * time.Minute)
	processedRecords := make(map[string]bool)

	go func() {
		defer close(out)
		defer fs.logger.Info("Firebase polling stopped")

		ticker := time.NewTicker(3 * time.Second)
		defer ticker.Stop()

		fs.logger.Info("Starting Firebase polling", zap.String("path", ref.Path))

		for {
			select {
			case <-ctx.Done():
				fs.logger.Info("Firebase polling received shutdown signal")
				return
			case <-ticker.C:
				data, err := fs.pollSince(ctx, ref, lastReadTime)
				if err != nil {
					fs.logger.Error("Error getting sensor data", zap.Error(err))
					continue
				}

				if len(data) == 0 {
					continue
				}

				newRecordsCount := 0
				latestTimestamp := lastReadTime
				now := time.Now()

				for recordID, recordData := range data {
					record, ok := recordData.(map[string]interface{})
					if !ok || processedRecords[recordID] {
						continue
					}

					snapshot, err := decodeSnapshot(record, now)
					if err != nil {
						fs.logger.Warn("Invalid sensor data format",
							zap.String("record_id", recordID),
							zap.Error(err))
						processedRecords[recordID] = true
						continue
					}
					if !snapshot.Timestamp.After(lastReadTime) {
						continue
					}

					processedRecords[recordID] = true
					select {
					case out <- snapshot:
					case <-ctx.Done():
						return
					}
					newRecordsCount++

					if snapshot.Timestamp.After(latestTimestamp) {
						latestTimestamp = snapshot.Timestamp
					}
				}

				if newRecordsCount > 0 {
					lastReadTime = latestTimestamp
					fs.logger.Info("Processed new records",
						zap.Int("count", newRecordsCount),
						zap.Time("checkpoint", lastReadTime),
					)
				}

				// Cleanup processed records cache
				if len(processedRecords) > 500 {
					newCache := make(map[string]bool)
					count := 0
					for id := range processedRecords {
						if count < 250 {
							newCache[id] = true
							count++
						}
					}
					processedRecords = newCache
					fs.logger.Debug("Cleaned processed records cache")
				}
			}
		}
	}()

	return out, nil
}

// maxSafeMillis bounds the numeric timestamp query so it stops before string keys
const maxSafeMillis = float64(1<<53 - 1)

// timestampRange is one OrderByChild("timestamp") window
type timestampRange struct {
	start interface{}
	end   interface{} // nil leaves the window open
}

// pollRanges returns the windows that cover records newer than since. The
// realtime database orders numbers before strings, so epoch millisecond and
// RFC3339 timestamps need separate windows. Records without a timestamp sort
// first and are never matched.
func pollRanges(since time.Time) []timestampRange {
	return []timestampRange{
		{start: since.Format(time.RFC3339)},
		{start: float64(since.UnixMilli()), end: maxSafeMillis},
	}
}

// pollSince merges the records of every poll window keyed by record ID
func (fs *FirebaseService) pollSince(ctx context.Context, ref *db.Ref, since time.Time) (map[string]interface{}, error) {
	merged := make(map[string]interface{})
	for _, r := range pollRanges(since) {
		query := ref.OrderByChild("timestamp").StartAt(r.start)
		if r.end != nil {
			query = query.EndAt(r.end)
		}

		var data map[string]interface{}
		if err := query.Get(ctx, &data); err != nil {
			return nil, err
		}
		for id, record := range data {
			merged[id] = record
		}
	}
	return merged, nil
}

// GetLatestSnapshot retrieves the latest snapshot for a device
func (fs *FirebaseService) GetLatestSnapshot(ctx context.Context, deviceID string) (*models.SensorSnapshot, error) {
	var data map[string]interface{}
	if err := fs.ref(sensorDataPath).OrderByChild("device_id").EqualTo(deviceID).Get(ctx, &data); err != nil {
		return nil, fmt.Errorf("error getting sensor data: %w", err)
	}

	var latest *models.SensorSnapshot
	now := time.Now()
	for _, recordData := range data {
		record, ok := recordData.(map[string]interface{})
		if !ok {
			continue
		}
		snapshot, err := decodeSnapshot(record, now)
		if err != nil || snapshot.DeviceID != deviceID {
			continue
		}
		if latest == nil || snapshot.Timestamp.After(latest.Timestamp) {
			latest = snapshot
		}
	}

	if latest == nil {
		return nil, fmt.Errorf("no data found for device %s", deviceID)
	}
	return latest, nil
}

func (fs *FirebaseService) devicesQuery() firestore.Query {
	query := fs.firestore.Collection(fs.config.DevicesCollection).Query
	if fs.config.ClientID != "" {
		query = query.Where("clientId", "==", fs.config.ClientID)
	}
	return query
}

// ListDevices reads the device documents once
func (fs *FirebaseService) ListDevices(ctx context.Context) ([]models.Device, error) {
	docs, err := fs.devicesQuery().Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("error listing devices: %w", err)
	}
	return fs.decodeDevices(docs), nil
}

// WatchDevices calls fn with the full device list on every change until ctx is done
func (fs *FirebaseService) WatchDevices(ctx context.Context, fn func([]models.Device)) error {
	it := fs.devicesQuery().Snapshots(ctx)

	go func() {
		defer it.Stop()
		for {
			snap, err := it.Next()
			if ctx.Err() != nil {
				fs.logger.Info("Device watch stopped")
				return
			}
			if err == iterator.Done {
				return
			}
			if err != nil {
				fs.logger.Error("Device watch failed", zap.Error(err))
				return
			}

			docs, err := snap.Documents.GetAll()
			if err != nil {
				fs.logger.Error("Error reading device snapshot", zap.Error(err))
				continue
			}
			devices := fs.decodeDevices(docs)
			fs.logger.Debug("Device list changed", zap.Int("device_count", len(devices)))
			fn(devices)
		}
	}()

	return nil
}

func (fs *FirebaseService) decodeDevices(docs []*firestore.DocumentSnapshot) []models.Device {
	devices := make([]models.Device, 0, len(docs))
	for _, doc := range docs {
		var device models.Device
		if err := doc.DataTo(&device); err != nil {
			fs.logger.Warn("Invalid device document",
				zap.String("document_id", doc.Ref.ID),
				zap.Error(err))
			continue
		}
		device.ID = doc.Ref.ID
		devices = append(devices, device)
	}
	return devices
}

// WriteBatch writes fault events with one multi-path update
func (fs *FirebaseService) WriteBatch(ctx context.Context, events []*models.FaultEvent) error {
	if len(events) == 0 {
		return nil
	}

	updates := make(map[string]interface{}, len(events))
	for _, event := range events {
		updates[event.ID] = event
	}

	if err := fs.ref(faultEventsPath).Update(ctx, updates); err != nil {
		return fmt.Errorf("error writing fault events: %w", err)
	}
	return nil
}

// PublishPlants replaces the plant summary node
func (fs *FirebaseService) PublishPlants(ctx context.Context, plants []models.Plant) error {
	summary := make(map[string]models.Plant, len(plants))
	for _, plant := range plants {
		summary[plantKey(plant.Location)] = plant
	}
	if err := fs.ref(plantsPath).Set(ctx, summary); err != nil {
		return fmt.Errorf("error publishing plants: %w", err)
	}
	return nil
}

// plantKey makes a location usable as a realtime database key. Forbidden
// characters and '%' are percent-encoded so distinct locations keep distinct keys.
func plantKey(location string) string {
	var b strings.Builder
	for _, r := range location {
		switch r {
		case '.', '#', '$', '[', ']', '/', '%':
			fmt.Fprintf(&b, "%%%02X", r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Close releases the Firestore client
func (fs *FirebaseService) Close() error {
	fs.logger.Info("Closing Firebase service")
	// The realtime database client holds no connection of its own
	return fs.firestore.Close()
}
