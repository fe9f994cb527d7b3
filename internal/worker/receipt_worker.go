package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ReceiptStore is where drained receipts end up.
type ReceiptStore interface {
	InsertBatch(ctx context.Context, batch []model.AttemptReceipt) error
	Insert(ctx context.Context, receipt model.AttemptReceipt) error
}

// ReceiptQueue pushes attempt receipts onto the Redis persist queue.
type ReceiptQueue struct {
	rdb *redis.Client
}

// NewReceiptQueue creates a ReceiptQueue.
func NewReceiptQueue(rdb *redis.Client) *ReceiptQueue {
	return &ReceiptQueue{rdb: rdb}
}

// Publish enqueues a receipt for persistence.
func (q *ReceiptQueue) Publish(ctx context.Context, receipt model.AttemptReceipt) error {
	raw, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("encode receipt: %w", err)
	}
	return q.rdb.RPush(ctx, config.WorkerKey.PersistAttemptsQueue, raw).Err()
}

// ReceiptWorker drains the persist queue into the receipt store in batches.
type ReceiptWorker struct {
	store ReceiptStore
	rdb   *redis.Client
	log   zerolog.Logger
}

func NewReceiptWorker(store ReceiptStore, rdb *redis.Client, log zerolog.Logger) *ReceiptWorker {
	return &ReceiptWorker{
		store: store,
		rdb:   rdb,
		log:   log.With().Str("component", "receipt_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *ReceiptWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ReceiptWorker started")

	batch := make([]model.AttemptReceipt, 0, BatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= BatchSize || time.Since(lastFlush) >= BatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(batch)
			return
		default:
		}

		item, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistAttemptsQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			select {
			case <-time.After(3 * time.Second):
			case <-ctx.Done():
			}
			continue
		}

		if len(item) < 2 {
			continue
		}

		var rc model.AttemptReceipt
		if err := json.Unmarshal([]byte(item[1]), &rc); err != nil {
			w.log.Error().Err(err).Msg("Invalid JSON payload")
			continue
		}
		batch = append(batch, rc)
	}
}

// shutdown flushes what is buffered, then drains the rest of the queue.
func (w *ReceiptWorker) shutdown(batch []model.AttemptReceipt) {
	w.log.Info().Int("buffered", len(batch)).Msg("Shutdown requested. Flushing remaining batch...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	w.flushSafe(ctx, batch)

	for {
		raws, err := w.rdb.LPopCount(ctx, config.WorkerKey.PersistAttemptsQueue, BatchSize).Result()
		if err != nil || len(raws) == 0 {
			break
		}
		rest := make([]model.AttemptReceipt, 0, len(raws))
		for _, raw := range raws {
			var rc model.AttemptReceipt
			if err := json.Unmarshal([]byte(raw), &rc); err == nil {
				rest = append(rest, rc)
			}
		}
		if !w.flushSafe(ctx, rest) {
			break
		}
	}

	w.log.Info().Msg("ReceiptWorker stopped")
}

// ----------------------------------------------------------------
// Batch insert with single-row fallback
// ----------------------------------------------------------------

// flushSafe persists a batch. It reports false when anything had to be requeued.
func (w *ReceiptWorker) flushSafe(ctx context.Context, batch []model.AttemptReceipt) bool {
	if len(batch) == 0 {
		return true
	}

	err := w.store.InsertBatch(ctx, batch)
	if err == nil {
		w.log.Debug().Int("count", len(batch)).Msg("Receipts persisted")
		return true
	}
	w.log.Warn().Err(err).Msg("bulk receipt insert failed, using fallback")

	ok := true
	for _, rc := range batch {
		if err := w.store.Insert(ctx, rc); err != nil {
			ok = false
			w.log.Error().Err(err).Str("attempt_id", rc.AttemptID).Msg("Single insert failed, requeueing")
			raw, _ := json.Marshal(rc)
			w.rdb.RPush(ctx, config.WorkerKey.PersistAttemptsQueue, raw)
		}
	}
	return ok
}
