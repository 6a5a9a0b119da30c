package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ledger/internal/amqp"
	"ledger/internal/sheets"
)

// EventSource delivers ledger events to a handler until ctx is done.
type EventSource interface {
	Consume(ctx context.Context, handler amqp.EventHandler) error
}

// JournalWorker mirrors ledger events into an append-only journal.
type JournalWorker struct {
	journal sheets.JournalWriter
}

func NewJournalWorker(journal sheets.JournalWriter) *JournalWorker {
	return &JournalWorker{journal: journal}
}

// HandleEvent appends one journal row for ev.
func (w *JournalWorker) HandleEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	if ev == nil {
		return errors.New("nil event")
	}
	slog.InfoContext(ctx, "Processing ledger event",
		"type", ev.Type,
		"record_id", ev.RecordID)

	ref, err := w.journal.AppendEntry(ctx, EntryFromEvent(ev))
	if err != nil {
		slog.ErrorContext(ctx, "Failed to append journal row",
			"type", ev.Type,
			"record_id", ev.RecordID,
			"error", err)
		return fmt.Errorf("append journal row: %w", err)
	}

	slog.InfoContext(ctx, "Journal row appended",
		"type", ev.Type,
		"record_id", ev.RecordID,
		"ref", ref)
	return nil
}

// Run consumes from src until ctx is cancelled.
func (w *JournalWorker) Run(ctx context.Context, src EventSource) error {
	slog.InfoContext(ctx, "Journal worker started")
	err := src.Consume(ctx, w.HandleEvent)
	if errors.Is(err, context.Canceled) {
		slog.InfoContext(ctx, "Journal worker stopped")
		return nil
	}
	return err
}

// EntryFromEvent maps an event onto the journal's columns.
func EntryFromEvent(ev *amqp.LedgerEvent) sheets.Entry {
	return sheets.Entry{
		Timestamp: ev.Timestamp,
		Event:     string(ev.Type),
		RecordID:  ev.RecordID,
		UserID:    ev.UserID,
		Amount:    ev.Amount,
		Label:     ev.Label,
		Date:      ev.Date,
		Period:    ev.Period,
	}
}
