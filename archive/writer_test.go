package archive

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInserter struct {
	mu       sync.Mutex
	batches  [][]MessageRecord
	failNext bool
}

func (f *fakeInserter) insertBatch(_ context.Context, batch []MessageRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return errors.New("injected failure")
	}
	cp := make([]MessageRecord, len(batch))
	copy(cp, batch)
	f.batches = append(f.batches, cp)
	return nil
}

func (f *fakeInserter) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func (f *fakeInserter) totalRecords() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func testConfig() Config {
	return Config{
		QueueSize:            100,
		BatchSize:            5,
		BatchTimeout:         50 * time.Millisecond,
		MaxConcurrentBatches: 2,
	}
}

func TestWriter_FlushesOnBatchSize(t *testing.T) {
	fi := &fakeInserter{}
	w := newWriter(fi, testConfig())
	w.Start()
	defer w.Stop()

	for i := 0; i < 5; i++ {
		require.NoError(t, w.Enqueue(MessageRecord{Target: "t"}))
	}

	require.Eventually(t, func() bool { return fi.batchCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 5, fi.totalRecords())
}

func TestWriter_NeverExceedsBatchSize(t *testing.T) {
	fi := &fakeInserter{}
	cfg := testConfig()
	w := newWriter(fi, cfg)
	w.Start()
	defer w.Stop()

	for i := 0; i < 23; i++ {
		require.NoError(t, w.Enqueue(MessageRecord{Target: "t"}))
	}

	require.Eventually(t, func() bool { return fi.totalRecords() >= 20 }, time.Second, 5*time.Millisecond)

	fi.mu.Lock()
	for _, b := range fi.batches {
		assert.LessOrEqual(t, len(b), cfg.BatchSize)
	}
	fi.mu.Unlock()
}

func TestWriter_FlushesOnTimeoutWithPartialBatch(t *testing.T) {
	fi := &fakeInserter{}
	cfg := testConfig()
	w := newWriter(fi, cfg)
	w.Start()
	defer w.Stop()

	require.NoError(t, w.Enqueue(MessageRecord{Target: "only-one"}))

	require.Eventually(t, func() bool { return fi.batchCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, fi.totalRecords())
}

func TestWriter_StopDrainsAndFlushesRemainder(t *testing.T) {
	fi := &fakeInserter{}
	w := newWriter(fi, testConfig())
	w.Start()

	require.NoError(t, w.Enqueue(MessageRecord{Target: "a"}))
	require.NoError(t, w.Enqueue(MessageRecord{Target: "b"}))
	w.Stop()

	assert.Equal(t, 2, fi.totalRecords())
}

func TestWriter_EnqueueFailsAfterShutdown(t *testing.T) {
	fi := &fakeInserter{}
	w := newWriter(fi, testConfig())
	w.Start()
	w.Stop()

	err := w.Enqueue(MessageRecord{Target: "late"})
	assert.ErrorIs(t, err, ErrShutDown)
}

func TestWriter_FailedBatchIsDiscardedNotRetried(t *testing.T) {
	fi := &fakeInserter{failNext: true}
	cfg := testConfig()
	w := newWriter(fi, cfg)
	w.Start()
	defer w.Stop()

	for i := 0; i < cfg.BatchSize; i++ {
		require.NoError(t, w.Enqueue(MessageRecord{Target: "t"}))
	}

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, fi.totalRecords(), "failed batch must be discarded, not retried")
}
