package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"coinpulse/internal/application/port"
)

const (
	persistWriteTimeout = 5 * time.Second
	persistRetryDelay   = 250 * time.Millisecond
)

// PersistQueue decouples durable writes from the feed path. Writes are
// at-most-once: a saturated queue drops the observation and a failed
// write gets one retry before being dropped. Losing a single historical
// sample is acceptable; stalling ingestion is not.
type PersistQueue struct {
	sink    port.PriceSink
	jobs    chan port.TradeEvent
	workers int

	wg      sync.WaitGroup
	dropped atomic.Int64
	failed  atomic.Int64
}

func NewPersistQueue(sink port.PriceSink, depth, workers int) *PersistQueue {
	if depth <= 0 {
		depth = 1024
	}
	if workers <= 0 {
		workers = 4
	}
	return &PersistQueue{
		sink:    sink,
		jobs:    make(chan port.TradeEvent, depth),
		workers: workers,
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled
// or the queue is stopped.
func (q *PersistQueue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

// Enqueue never blocks. On saturation the observation is dropped and
// counted; backpressure must not reach the feed reader.
func (q *PersistQueue) Enqueue(ev port.TradeEvent) {
	select {
	case q.jobs <- ev:
	default:
		q.dropped.Add(1)
		log.Warn().Str("symbol", ev.Symbol).Msg("persist queue full, observation dropped")
	}
}

// Stop waits for the workers to exit. Cancel the context passed to
// Start first; events still queued at that point are dropped.
func (q *PersistQueue) Stop() {
	q.wg.Wait()
}

// Dropped counts observations rejected by a full queue.
func (q *PersistQueue) Dropped() int64 { return q.dropped.Load() }

// Failed counts writes dropped after the retry.
func (q *PersistQueue) Failed() int64 { return q.failed.Load() }

func (q *PersistQueue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-q.jobs:
			if !ok {
				return
			}
			q.write(ctx, ev)
		}
	}
}

func (q *PersistQueue) write(ctx context.Context, ev port.TradeEvent) {
	if err := q.insert(ctx, ev); err == nil {
		return
	}

	select {
	case <-ctx.Done():
		return
	case <-time.After(persistRetryDelay):
	}

	if err := q.insert(ctx, ev); err != nil {
		q.failed.Add(1)
		log.Error().Err(err).Str("symbol", ev.Symbol).Msg("price write dropped after retry")
	}
}

func (q *PersistQueue) insert(ctx context.Context, ev port.TradeEvent) error {
	wctx, cancel := context.WithTimeout(ctx, persistWriteTimeout)
	defer cancel()
	return q.sink.InsertPrice(wctx, ev.Symbol, ev.Price, ev.Volume, ev.EventTime)
}
