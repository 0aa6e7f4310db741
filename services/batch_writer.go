package services

import (
	"context"
	"sync"
	"time"

	"wastewatch/config"
	"wastewatch/metrics"
	"wastewatch/models"

	"go.uber.org/zap"
)

// EventWriter persists a batch of fault events
type EventWriter interface {
	WriteBatch(ctx context.Context, events []*models.FaultEvent) error
}

// BatchWriterService buffers fault events and writes them in batches
type BatchWriterService struct {
	writer       EventWriter
	logger       *zap.Logger
	buffer       []*models.FaultEvent
	bufferMutex  sync.Mutex
	flushTimer   *time.Timer
	maxBatchSize int
	batchTimeout time.Duration
	maxRetries   int
	retryBackoff time.Duration
	shutdownChan chan bool
}

// NewBatchWriterService creates a new batch writer service
func NewBatchWriterService(cfg *config.Config, writer EventWriter, logger *zap.Logger) *BatchWriterService {
	batchSize := cfg.FaultBatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	timeout := time.Duration(cfg.FaultBatchTimeout) * time.Second
	if timeout <= 0 {
		timeout = time.Second
	}

	return &BatchWriterService{
		writer:       writer,
		logger:       logger,
		buffer:       make([]*models.FaultEvent, 0, batchSize),
		maxBatchSize: batchSize,
		batchTimeout: timeout,
		maxRetries:   3,
		retryBackoff: time.Second,
		shutdownChan: make(chan bool, 1),
	}
}

// Start consumes events until ctx is done or the channel closes, flushing what is left
func (bw *BatchWriterService) Start(ctx context.Context, events <-chan *models.FaultEvent) {
	bw.logger.Info("Starting batch writer service",
		zap.Int("max_batch_size", bw.maxBatchSize),
		zap.Duration("batch_timeout", bw.batchTimeout))

	bw.flushTimer = time.NewTimer(bw.batchTimeout)
	defer bw.flushTimer.Stop()
	defer func() { bw.shutdownChan <- true }()

	for {
		select {
		case <-ctx.Done():
			bw.logger.Info("Batch writer received shutdown signal")
			// The run context is gone; give the final flush its own deadline
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			bw.flushBuffer(flushCtx)
			cancel()
			return

		case event, ok := <-events:
			if !ok {
				bw.logger.Warn("Fault event channel closed")
				bw.flushBuffer(ctx)
				return
			}

			bw.bufferMutex.Lock()
			bw.buffer = append(bw.buffer, event)
			currentSize := len(bw.buffer)
			bw.bufferMutex.Unlock()

			bw.logger.Debug("Added fault event to buffer",
				zap.String("device_id", event.DeviceID),
				zap.Int("buffer_size", currentSize),
				zap.Int("max_batch_size", bw.maxBatchSize))

			if currentSize >= bw.maxBatchSize {
				bw.logger.Info("Buffer full, flushing fault events",
					zap.Int("buffer_size", currentSize))

				if !bw.flushTimer.Stop() {
					select {
					case <-bw.flushTimer.C:
					default:
					}
				}

				bw.flushBuffer(ctx)
				bw.flushTimer.Reset(bw.batchTimeout)
			}

		case <-bw.flushTimer.C:
			if bw.GetBufferSize() > 0 {
				bw.logger.Info("Batch timeout reached, flushing fault events",
					zap.Int("buffer_size", bw.GetBufferSize()))
				bw.flushBuffer(ctx)
			}
			bw.flushTimer.Reset(bw.batchTimeout)
		}
	}
}

// flushBuffer writes the current buffer and clears it
func (bw *BatchWriterService) flushBuffer(ctx context.Context) {
	bw.bufferMutex.Lock()
	if len(bw.buffer) == 0 {
		bw.bufferMutex.Unlock()
		return
	}

	batch := make([]*models.FaultEvent, len(bw.buffer))
	copy(batch, bw.buffer)
	bw.buffer = bw.buffer[:0]
	bw.bufferMutex.Unlock()

	var err error
	for attempt := 1; attempt <= bw.maxRetries; attempt++ {
		err = bw.writer.WriteBatch(ctx, batch)
		metrics.ObserveFlush(len(batch), err)
		if err == nil {
			bw.logger.Info("Successfully flushed fault events",
				zap.Int("batch_size", len(batch)))
			return
		}

		bw.logger.Error("Failed to flush fault events",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", bw.maxRetries),
			zap.Int("batch_size", len(batch)),
			zap.Error(err))

		if attempt < bw.maxRetries {
			select {
			case <-time.After(time.Duration(attempt) * bw.retryBackoff):
			case <-ctx.Done():
				attempt = bw.maxRetries
			}
		}
	}

	bw.logger.Error("Failed to flush fault events after all retries, events dropped",
		zap.Int("batch_size", len(batch)),
		zap.Error(err))
}

// WaitForShutdown waits for the batch writer to complete shutdown
func (bw *BatchWriterService) WaitForShutdown(timeout time.Duration) bool {
	select {
	case <-bw.shutdownChan:
		return true
	case <-time.After(timeout):
		return false
	}
}

// GetBufferSize returns the current buffer size
func (bw *BatchWriterService) GetBufferSize() int {
	bw.bufferMutex.Lock()
	defer bw.bufferMutex.Unlock()
	return len(bw.buffer)
}
