package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ledger/internal/amqp"
)

// ErrOutboxFull is returned by Publish when the pending queue is at capacity.
var ErrOutboxFull = errors.New("outbox is full")

// OutboxConfig holds configuration for the in-process outbox.
type OutboxConfig struct {
	// PollInterval is how often pending events are retried (default: 10s)
	PollInterval time.Duration

	// BatchSize is the max number of events handled per cycle (default: 10)
	BatchSize int

	// MaxRetries is the number of attempts before an event is parked as failed (default: 3)
	MaxRetries int

	// Capacity bounds the pending queue (default: 1024)
	Capacity int
}

// DefaultOutboxConfig returns sensible defaults
func DefaultOutboxConfig() OutboxConfig {
	return OutboxConfig{
		PollInterval: 10 * time.Second,
		BatchSize:    10,
		MaxRetries:   3,
		Capacity:     1024,
	}
}

func (c OutboxConfig) withDefaults() OutboxConfig {
	d := DefaultOutboxConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.Capacity <= 0 {
		c.Capacity = d.Capacity
	}
	return c
}

type pendingEvent struct {
	ev       *amqp.LedgerEvent
	attempts int
	lastErr  string
}

// OutboxStats is a snapshot of the outbox queues.
type OutboxStats struct {
	Pending   int
	Failed    int
	Completed int64
}

// Outbox is an EventPublisher that hands events to a handler in-process.
// It stands in for the broker when none is configured: Publish only queues,
// and a background loop delivers with bounded retries.
type Outbox struct {
	handler amqp.EventHandler
	config  OutboxConfig

	mu        sync.Mutex
	queue     []pendingEvent
	failed    []pendingEvent
	completed int64
	wake      chan struct{}

	// Lifecycle management
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewOutbox(handler amqp.EventHandler, config OutboxConfig) *Outbox {
	return &Outbox{
		handler: handler,
		config:  config.withDefaults(),
		wake:    make(chan struct{}, 1),
	}
}

// Publish queues ev for delivery.
func (o *Outbox) Publish(ctx context.Context, ev *amqp.LedgerEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ev == nil {
		return errors.New("nil event")
	}
	o.mu.Lock()
	if len(o.queue) >= o.config.Capacity {
		o.mu.Unlock()
		return ErrOutboxFull
	}
	o.queue = append(o.queue, pendingEvent{ev: ev})
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
	return nil
}

// Start begins the delivery loop. Returns an error if already running.
func (o *Outbox) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("outbox is already running")
	}
	o.running = true
	o.stopCh = make(chan struct{})
	o.doneCh = make(chan struct{})
	o.mu.Unlock()

	go o.runLoop(ctx)

	slog.InfoContext(ctx, "Outbox started",
		"poll_interval", o.config.PollInterval,
		"batch_size", o.config.BatchSize)
	return nil
}

// Stop signals the loop, waits for it to deliver what is queued, and returns.
func (o *Outbox) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	close(o.stopCh)

	select {
	case <-o.doneCh:
		slog.InfoContext(ctx, "Outbox stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Outbox stop timed out")
		return ctx.Err()
	}

	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
	return nil
}

// IsRunning returns whether the delivery loop is active
func (o *Outbox) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

func (o *Outbox) runLoop(ctx context.Context) {
	defer close(o.doneCh)

	ticker := time.NewTicker(o.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stopCh:
			o.drain(context.WithoutCancel(ctx))
			return
		case <-ctx.Done():
			return
		case <-o.wake:
			o.Flush(ctx)
		case <-ticker.C:
			o.Flush(ctx)
		}
	}
}

// drain flushes until the queue is empty. A pass that shrinks nothing still
// spends one attempt on each event it touched, so after MaxRetries stalled
// passes those events are parked and the queue shrinks again.
func (o *Outbox) drain(ctx context.Context) {
	stalled := 0
	for {
		before := o.Stats().Pending
		if before == 0 {
			return
		}
		o.Flush(ctx)
		if o.Stats().Pending < before {
			stalled = 0
			continue
		}
		stalled++
		if stalled > o.config.MaxRetries {
			slog.WarnContext(ctx, "Outbox stopped with undelivered events", "pending", o.Stats().Pending)
			return
		}
	}
}

// Flush delivers up to BatchSize pending events and reports how many
// succeeded.
func (o *Outbox) Flush(ctx context.Context) int {
	o.mu.Lock()
	n := min(len(o.queue), o.config.BatchSize)
	batch := append([]pendingEvent(nil), o.queue[:n]...)
	o.queue = o.queue[n:]
	o.mu.Unlock()

	if len(batch) == 0 {
		return 0
	}
	slog.DebugContext(ctx, "Delivering outbox batch", "count", len(batch))

	delivered := 0
	var retry []pendingEvent
	for i, item := range batch {
		if ctx.Err() != nil {
			retry = append(retry, batch[i:]...)
			break
		}
		if err := o.handler(ctx, item.ev); err != nil {
			item.attempts++
			item.lastErr = err.Error()
			if item.attempts >= o.config.MaxRetries {
				slog.ErrorContext(ctx, "Outbox event failed permanently after max retries",
					"type", item.ev.Type,
					"record_id", item.ev.RecordID,
					"attempts", item.attempts,
					"error", err)
				o.mu.Lock()
				o.failed = append(o.failed, item)
				o.mu.Unlock()
				continue
			}
			slog.WarnContext(ctx, "Outbox delivery failed",
				"type", item.ev.Type,
				"record_id", item.ev.RecordID,
				"attempt", item.attempts,
				"error", err)
			retry = append(retry, item)
			continue
		}
		delivered++
	}

	o.mu.Lock()
	o.completed += int64(delivered)
	// retries go back to the front to keep delivery order
	o.queue = append(retry, o.queue...)
	o.mu.Unlock()
	return delivered
}

// Stats returns current queue statistics
func (o *Outbox) Stats() OutboxStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return OutboxStats{Pending: len(o.queue), Failed: len(o.failed), Completed: o.completed}
}

// RetryFailed moves parked events back to the pending queue and returns how
// many were moved.
func (o *Outbox) RetryFailed() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := len(o.failed)
	for _, item := range o.failed {
		item.attempts = 0
		o.queue = append(o.queue, item)
	}
	o.failed = nil
	return n
}
