package db

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/onnwee/chronicle-bot/history"
	"github.com/onnwee/chronicle-bot/telemetry"
)

const (
	insertMessageSQL = `INSERT INTO messages (channel, username, message, type, timestamp) VALUES ($1, $2, $3, $4, $5)`
	deleteChannelSQL = `DELETE FROM messages WHERE channel = $1`
)

var (
	// ErrBatcherClosed is reported for deletes queued after Close.
	ErrBatcherClosed = errors.New("message batcher closed")
	// ErrQueueFull is reported for deletes that found the queue full.
	ErrQueueFull = errors.New("message batcher queue full")
)

// BatchConfig controls batching of message inserts.
type BatchConfig struct {
	MaxBatch     int
	FlushEvery   time.Duration
	QueueSize    int
	FlushTimeout time.Duration
}

func (c BatchConfig) withDefaults() BatchConfig {
	if c.MaxBatch <= 0 {
		c.MaxBatch = 50
	}
	if c.FlushEvery <= 0 {
		c.FlushEvery = 2 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = 10 * time.Second
	}
	return c
}

// batchSender is the subset of pgxpool.Pool the batcher needs.
type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type batchOp struct {
	line    history.Line
	deleteC string
	done    chan error
}

// Batcher writes chat lines to the messages table asynchronously. Inserts and
// channel deletes are applied in submission order by a single goroutine, so
// a reset never races with inserts queued before it.
type Batcher struct {
	input  chan batchOp
	config BatchConfig
	sender batchSender

	stop     context.CancelFunc
	finished chan struct{}
	closeMu  sync.RWMutex
	closed   bool
}

// NewBatcher creates a batcher writing through sender (typically a *pgxpool.Pool)
// and starts its background loop.
func NewBatcher(ctx context.Context, sender batchSender, cfg BatchConfig) *Batcher {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(ctx)
	b := &Batcher{
		input:    make(chan batchOp, cfg.QueueSize),
		config:   cfg,
		sender:   sender,
		stop:     cancel,
		finished: make(chan struct{}),
	}
	go b.run(ctx)
	return b
}

// Enqueue queues line for insertion without blocking; a full queue drops the
// line and returns false.
func (b *Batcher) Enqueue(line history.Line) bool {
	b.closeMu.RLock()
	defer b.closeMu.RUnlock()
	if b.closed {
		return false
	}
	select {
	case b.input <- batchOp{line: line}:
		telemetry.SetPersistQueueDepth(len(b.input))
		return true
	default:
		telemetry.ObservePersistDrop()
		slog.Warn("message batcher queue full; dropping message",
			slog.String("component", "db_batcher"),
			slog.String("channel", line.Channel))
		return false
	}
}

// QueueDelete schedules deletion of the channel's stored messages behind
// every insert already queued and returns without waiting. The returned
// channel receives the delete's result exactly once.
func (b *Batcher) QueueDelete(channel string) <-chan error {
	done := make(chan error, 1)
	b.closeMu.RLock()
	defer b.closeMu.RUnlock()
	if b.closed {
		done <- ErrBatcherClosed
		return done
	}
	select {
	case b.input <- batchOp{deleteC: history.NormalizeChannel(channel), done: done}:
	default:
		done <- ErrQueueFull
	}
	return done
}

// DeleteChannel queues a channel delete and waits for its result.
func (b *Batcher) DeleteChannel(ctx context.Context, channel string) error {
	select {
	case err := <-b.QueueDelete(channel):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes pending writes and stops the background loop.
func (b *Batcher) Close() {
	b.closeMu.Lock()
	if !b.closed {
		b.closed = true
		b.stop()
	}
	b.closeMu.Unlock()
	<-b.finished
}

func (b *Batcher) run(ctx context.Context) {
	defer close(b.finished)
	ticker := time.NewTicker(b.config.FlushEvery)
	defer ticker.Stop()

	batch := &pgx.Batch{}

	flush := func() {
		if batch.Len() == 0 {
			return
		}
		n := batch.Len()
		dbCtx, cancel := context.WithTimeout(context.Background(), b.config.FlushTimeout)
		defer cancel()
		if err := b.sender.SendBatch(dbCtx, batch).Close(); err != nil {
			telemetry.ObservePersistFailure(n)
			slog.Error("message batch flush failed",
				slog.String("component", "db_batcher"),
				slog.Int("rows", n),
				slog.Any("err", err))
		}
		batch = &pgx.Batch{}
		telemetry.SetPersistQueueDepth(len(b.input))
	}

	handle := func(op batchOp) {
		if op.done == nil {
			l := op.line
			batch.Queue(insertMessageSQL,
				history.NormalizeChannel(l.Channel), l.User, l.Text, l.Kind, l.Timestamp.UTC())
			if batch.Len() >= b.config.MaxBatch {
				flush()
			}
			return
		}
		flush()
		dbCtx, cancel := context.WithTimeout(context.Background(), b.config.FlushTimeout)
		_, err := b.sender.Exec(dbCtx, deleteChannelSQL, op.deleteC)
		cancel()
		op.done <- err
	}

	for {
		select {
		case <-ctx.Done():
			// drain what was accepted before shutdown
			for {
				select {
				case op := <-b.input:
					handle(op)
				default:
					flush()
					return
				}
			}
		case <-ticker.C:
			flush()
		case op := <-b.input:
			handle(op)
		}
	}
}
