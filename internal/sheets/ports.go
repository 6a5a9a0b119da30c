package sheets

import (
	"context"
	"time"
)

// Entry is one journal row describing a change to the ledger.
type Entry struct {
	Timestamp time.Time
	Event     string
	RecordID  string
	UserID    string
	Amount    string
	Label     string
	Date      string
	Period    string
}

// Row renders the entry in journal column order.
func (e Entry) Row() []any {
	return []any{
		e.Timestamp.UTC().Format(time.RFC3339),
		e.Event,
		e.RecordID,
		e.UserID,
		e.Amount,
		e.Label,
		e.Date,
		e.Period,
	}
}

// Header is the journal's first row.
var Header = []any{"timestamp", "event", "record_id", "user_id", "amount", "label", "date", "period"}

// Ports for outbound adapters.
type (
	// JournalWriter appends entries to an external append-only journal.
	JournalWriter interface {
		AppendEntry(ctx context.Context, e Entry) (rowRef string, err error)
	}
)
