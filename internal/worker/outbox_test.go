package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"ledger/internal/amqp"
)

type recordingHandler struct {
	mu       sync.Mutex
	seen     []string
	failures map[string]int
}

func (h *recordingHandler) handle(_ context.Context, ev *amqp.LedgerEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failures[ev.RecordID] > 0 {
		h.failures[ev.RecordID]--
		return errors.New("transient")
	}
	h.seen = append(h.seen, ev.RecordID)
	return nil
}

func (h *recordingHandler) ids() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.seen...)
}

func TestDefaultOutboxConfig(t *testing.T) {
	config := DefaultOutboxConfig()

	if config.PollInterval != 10*time.Second {
		t.Errorf("expected PollInterval 10s, got %v", config.PollInterval)
	}
	if config.BatchSize != 10 {
		t.Errorf("expected BatchSize 10, got %d", config.BatchSize)
	}
	if config.MaxRetries != 3 {
		t.Errorf("expected MaxRetries 3, got %d", config.MaxRetries)
	}
	if config.Capacity != 1024 {
		t.Errorf("expected Capacity 1024, got %d", config.Capacity)
	}

	if got := (OutboxConfig{BatchSize: 2}).withDefaults(); got.BatchSize != 2 || got.MaxRetries != 3 {
		t.Errorf("withDefaults should keep set values, got %+v", got)
	}
}

func TestOutbox_FlushInOrder(t *testing.T) {
	h := &recordingHandler{}
	o := NewOutbox(h.handle, OutboxConfig{BatchSize: 2})
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := o.Publish(ctx, amqp.NewLedgerEvent(amqp.IncomeCreated, id)); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	if n := o.Flush(ctx); n != 2 {
		t.Fatalf("first flush delivered %d, want 2", n)
	}
	if n := o.Flush(ctx); n != 1 {
		t.Fatalf("second flush delivered %d, want 1", n)
	}
	if got := h.ids(); len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("unexpected delivery order %v", got)
	}
	if s := o.Stats(); s.Pending != 0 || s.Completed != 3 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestOutbox_RetriesThenParks(t *testing.T) {
	h := &recordingHandler{failures: map[string]int{"flaky": 1, "broken": 100}}
	o := NewOutbox(h.handle, OutboxConfig{MaxRetries: 2})
	ctx := context.Background()

	_ = o.Publish(ctx, amqp.NewLedgerEvent(amqp.ExpenseCreated, "flaky"))
	_ = o.Publish(ctx, amqp.NewLedgerEvent(amqp.ExpenseCreated, "broken"))

	o.Flush(ctx)
	if s := o.Stats(); s.Pending != 2 || s.Failed != 0 {
		t.Fatalf("after first attempt: %+v", s)
	}
	o.Flush(ctx)
	if s := o.Stats(); s.Pending != 0 || s.Failed != 1 || s.Completed != 1 {
		t.Fatalf("after second attempt: %+v", s)
	}

	h.mu.Lock()
	h.failures["broken"] = 0
	h.mu.Unlock()
	if n := o.RetryFailed(); n != 1 {
		t.Fatalf("RetryFailed moved %d, want 1", n)
	}
	o.Flush(ctx)
	if s := o.Stats(); s.Pending != 0 || s.Failed != 0 || s.Completed != 2 {
		t.Fatalf("after retry: %+v", s)
	}
}

func TestOutbox_PublishErrors(t *testing.T) {
	o := NewOutbox((&recordingHandler{}).handle, OutboxConfig{Capacity: 1})
	ctx := context.Background()

	if err := o.Publish(ctx, amqp.NewLedgerEvent(amqp.UserCreated, "1")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := o.Publish(ctx, amqp.NewLedgerEvent(amqp.UserCreated, "2")); !errors.Is(err, ErrOutboxFull) {
		t.Fatalf("expected ErrOutboxFull, got %v", err)
	}
	if err := o.Publish(ctx, nil); err == nil {
		t.Fatal("expected error for nil event")
	}
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := o.Publish(cancelled, amqp.NewLedgerEvent(amqp.UserCreated, "3")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestOutbox_StartStop(t *testing.T) {
	h := &recordingHandler{}
	o := NewOutbox(h.handle, OutboxConfig{PollInterval: time.Hour})
	ctx := context.Background()

	if o.IsRunning() {
		t.Fatal("outbox should not be running initially")
	}
	if err := o.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := o.Start(ctx); err == nil {
		t.Fatal("second Start should fail")
	}

	_ = o.Publish(ctx, amqp.NewLedgerEvent(amqp.UserCreated, "u-1"))
	deadline := time.Now().Add(2 * time.Second)
	for len(h.ids()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(h.ids()) != 1 {
		t.Fatal("published event was not delivered by the loop")
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := o.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if o.IsRunning() {
		t.Fatal("outbox should not be running after Stop")
	}
	if err := o.Stop(stopCtx); err != nil {
		t.Fatalf("Stop when not running should be a no-op, got %v", err)
	}
}

func TestOutbox_StopDrainsEveryBatch(t *testing.T) {
	h := &recordingHandler{failures: map[string]int{"r-3": 1, "r-17": 100}}
	o := NewOutbox(h.handle, OutboxConfig{PollInterval: time.Hour, BatchSize: 10, MaxRetries: 3})
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		if err := o.Publish(ctx, amqp.NewLedgerEvent(amqp.ExpenseCreated, fmt.Sprintf("r-%d", i))); err != nil {
			t.Fatalf("Publish %d: %v", i, err)
		}
	}
	if err := o.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	stopCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := o.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if got := len(h.ids()); got != 24 {
		t.Fatalf("delivered %d events on shutdown, want 24", got)
	}
	st := o.Stats()
	if st.Pending != 0 || st.Failed != 1 || st.Completed != 24 {
		t.Fatalf("unexpected stats after Stop: %+v", st)
	}
}
