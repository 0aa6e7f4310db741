package services

import (
	"context"
	"fmt"
	"sync"

	"wastewatch/metrics"
	"wastewatch/models"

	"go.uber.org/zap"
)

// SnapshotSource delivers sensor snapshots until ctx is done, then closes the channel
type SnapshotSource interface {
	Name() string
	Subscribe(ctx context.Context) (<-chan *models.SensorSnapshot, error)
}

// MergeSources subscribes to every source and fans the streams into one
// channel that is closed once all sources have finished. If any subscription
// fails the sources already subscribed are stopped.
func MergeSources(ctx context.Context, logger *zap.Logger, sources ...SnapshotSource) (<-chan *models.SensorSnapshot, error) {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan *models.SensorSnapshot, 64)
	var wg sync.WaitGroup

	for _, source := range sources {
		stream, err := source.Subscribe(ctx)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to subscribe to %s: %w", source.Name(), err)
		}

		logger.Info("Subscribed to snapshot source", zap.String("source", source.Name()))

		wg.Add(1)
		go func(name string, stream <-chan *models.SensorSnapshot) {
			defer wg.Done()
			for snapshot := range stream {
				metrics.ObserveSnapshot(name)
				select {
				case out <- snapshot:
				case <-ctx.Done():
					return
				}
			}
			logger.Info("Snapshot source finished", zap.String("source", name))
		}(source.Name(), stream)
	}

	go func() {
		wg.Wait()
		cancel()
		close(out)
	}()

	return out, nil
}
