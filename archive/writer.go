// Package archive implements the bounded, batching, transactional writer
// that durably archives every inbound and outbound message (spec §4.1).
package archive

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrShutDown is returned by Enqueue once Stop has been called.
var ErrShutDown = errors.New("archive: writer is shut down")

// Config controls the writer's batching and concurrency behavior.
type Config struct {
	QueueSize            int
	BatchSize            int
	BatchTimeout         time.Duration
	MaxConcurrentBatches int
}

// DefaultConfig matches spec §4.1's stated defaults.
func DefaultConfig() Config {
	return Config{
		QueueSize:            10000,
		BatchSize:            100,
		BatchTimeout:         5 * time.Second,
		MaxConcurrentBatches: 5,
	}
}

// batchInserter commits one batch inside its own transaction. The
// production implementation is poolInserter (pgx); tests substitute a
// fake to exercise batching/timing without a live database.
type batchInserter interface {
	insertBatch(ctx context.Context, batch []MessageRecord) error
}

// poolInserter implements batchInserter against a pgx connection pool.
type poolInserter struct {
	pool *pgxpool.Pool
}

// Writer decouples ingestion latency from database commit latency: a
// single consumer goroutine drains a bounded queue, batching records by
// size or time, and dispatches each batch's commit onto its own
// goroutine gated by a bounded permit channel — so up to
// MaxConcurrentBatches commits run concurrently while the consumer keeps
// accumulating the next batch instead of blocking on the slowest one.
type Writer struct {
	inserter batchInserter
	cfg      Config
	queue    chan MessageRecord
	permit   chan struct{}
	commits  sync.WaitGroup
	done     chan struct{}
	closed   chan struct{}
}

// New builds a Writer against pool. Call Start to begin draining the
// queue and Stop to flush and shut down.
func New(pool *pgxpool.Pool, cfg Config) *Writer {
	return newWriter(poolInserter{pool: pool}, cfg)
}

func newWriter(inserter batchInserter, cfg Config) *Writer {
	return &Writer{
		inserter: inserter,
		cfg:      cfg,
		queue:    make(chan MessageRecord, cfg.QueueSize),
		permit:   make(chan struct{}, cfg.MaxConcurrentBatches),
		done:     make(chan struct{}),
		closed:   make(chan struct{}),
	}
}

// Enqueue places record on the queue, blocking while the queue is full
// (spec §4.1's backpressure policy) and returning only once the record
// has been accepted. It fails only if the writer has already been shut
// down.
func (w *Writer) Enqueue(record MessageRecord) error {
	select {
	case <-w.closed:
		return ErrShutDown
	default:
	}

	select {
	case w.queue <- record:
		return nil
	case <-w.closed:
		return ErrShutDown
	}
}

// Start launches the consumer goroutine. It returns immediately; call
// Stop to drain and shut down.
func (w *Writer) Start() {
	go w.consume()
}

// Stop closes the queue to new writes, drains whatever remains, flushes
// a final partial batch, and returns once the consumer has exited and
// every in-flight commit goroutine it dispatched has finished.
func (w *Writer) Stop() {
	close(w.closed)
	<-w.done
	w.commits.Wait()
}

func (w *Writer) consume() {
	defer close(w.done)

	batch := make([]MessageRecord, 0, w.cfg.BatchSize)
	timer := time.NewTimer(w.cfg.BatchTimeout)
	defer timer.Stop()
	timerActive := true

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.commitBatch(batch)
		batch = make([]MessageRecord, 0, w.cfg.BatchSize)
	}

	for {
		select {
		case record, ok := <-w.queue:
			if !ok {
				flush()
				return
			}
			if len(batch) == 0 {
				timer.Reset(w.cfg.BatchTimeout)
				timerActive = true
			}
			batch = append(batch, record)
			if len(batch) >= w.cfg.BatchSize {
				flush()
				if timerActive {
					timer.Stop()
					timerActive = false
				}
			}

		case <-timer.C:
			timerActive = false
			flush()

		case <-w.closed:
			w.drainAndFlush(&batch)
			return
		}
	}
}

// drainAndFlush empties whatever is already queued without blocking,
// flushes the result, and signals completion via done (handled by the
// caller's defer).
func (w *Writer) drainAndFlush(batch *[]MessageRecord) {
	for {
		select {
		case record, ok := <-w.queue:
			if !ok {
				w.commitBatch(*batch)
				return
			}
			*batch = append(*batch, record)
			if len(*batch) >= w.cfg.BatchSize {
				w.commitBatch(*batch)
				*batch = make([]MessageRecord, 0, w.cfg.BatchSize)
			}
		default:
			w.commitBatch(*batch)
			return
		}
	}
}

// commitBatch acquires a connection permit on the calling (consumer)
// goroutine — blocking the consumer only when MaxConcurrentBatches
// commits are already in flight — then hands the actual insert and
// commit off to its own goroutine so the consumer can return and start
// accumulating the next batch immediately. Any SQL error rolls back and
// discards the whole batch — spec §4.1/§7's "archive loss is tolerated"
// policy; there is no retry queue.
func (w *Writer) commitBatch(batch []MessageRecord) {
	if len(batch) == 0 {
		return
	}

	w.permit <- struct{}{}
	w.commits.Add(1)

	go func() {
		defer w.commits.Done()
		defer func() { <-w.permit }()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := w.inserter.insertBatch(ctx, batch); err != nil {
			log.Printf("archive: batch of %d records discarded: %v", len(batch), err)
			return
		}
		log.Printf("archive: committed batch of %d records", len(batch))
	}()
}

func (p poolInserter) insertBatch(ctx context.Context, batch []MessageRecord) (err error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // no-op once committed

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during batch insert: %v", r)
		}
	}()

	const insertSQL = `
		INSERT INTO signal_messages (
			timestamp, signal_received_timestamp, signal_delivered_timestamp,
			target, source, group_chat, mentions, content, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	for _, record := range batch {
		_, err := tx.Exec(ctx, insertSQL,
			record.Timestamp,
			record.SignalReceivedTimestamp,
			record.SignalDeliveredTimestamp,
			record.Target,
			record.Source,
			record.GroupChat,
			record.Mentions,
			record.Content,
			record.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
