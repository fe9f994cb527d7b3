package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/model"
)

type memoryReceipts struct {
	mu        sync.Mutex
	stored    map[string]model.AttemptReceipt
	batchErr  error
	singleErr map[string]error
	batches   int
}

func newMemoryReceipts() *memoryReceipts {
	return &memoryReceipts{stored: map[string]model.AttemptReceipt{}, singleErr: map[string]error{}}
}

func (m *memoryReceipts) InsertBatch(_ context.Context, batch []model.AttemptReceipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches++
	if m.batchErr != nil {
		return m.batchErr
	}
	for _, rc := range batch {
		m.stored[rc.AttemptID] = rc
	}
	return nil
}

func (m *memoryReceipts) Insert(_ context.Context, rc model.AttemptReceipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.singleErr[rc.AttemptID]; err != nil {
		return err
	}
	m.stored[rc.AttemptID] = rc
	return nil
}

func (m *memoryReceipts) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stored)
}

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

func receipt(id string) model.AttemptReceipt {
	return model.AttemptReceipt{
		AttemptID:  id,
		StudentID:  3,
		ExamCode:   "UTBK-1",
		TotalMarks: 10,
		StartedAt:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		EndedAt:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestReceiptWorker_DrainsQueue(t *testing.T) {
	rdb, _ := newRedis(t)
	store := newMemoryReceipts()
	queue := NewReceiptQueue(rdb)
	ctx := context.Background()

	for _, id := range []string{"a-1", "a-2", "a-3"} {
		require.NoError(t, queue.Publish(ctx, receipt(id)))
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		NewReceiptWorker(store, rdb, zerolog.Nop()).Start(runCtx)
		close(done)
	}()

	require.Eventually(t, func() bool { return store.count() == 3 }, 5*time.Second, 50*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, "UTBK-1", store.stored["a-2"].ExamCode)
}

func TestReceiptWorker_FallbackRequeuesFailures(t *testing.T) {
	rdb, mr := newRedis(t)
	store := newMemoryReceipts()
	store.batchErr = errors.New("deadlock detected")
	store.singleErr["a-2"] = errors.New("connection reset")

	w := NewReceiptWorker(store, rdb, zerolog.Nop())
	ok := w.flushSafe(context.Background(), []model.AttemptReceipt{receipt("a-1"), receipt("a-2")})

	assert.False(t, ok)
	assert.Equal(t, 1, store.count())
	items, err := mr.List(config.WorkerKey.PersistAttemptsQueue)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Contains(t, items[0], `"attempt_id":"a-2"`)
}

func TestReceiptWorker_ShutdownDrainsBacklog(t *testing.T) {
	rdb, mr := newRedis(t)
	store := newMemoryReceipts()
	queue := NewReceiptQueue(rdb)
	for _, id := range []string{"a-1", "a-2"} {
		require.NoError(t, queue.Publish(context.Background(), receipt(id)))
	}

	NewReceiptWorker(store, rdb, zerolog.Nop()).shutdown([]model.AttemptReceipt{receipt("a-0")})

	assert.Equal(t, 3, store.count())
	assert.False(t, mr.Exists(config.WorkerKey.PersistAttemptsQueue))
}
