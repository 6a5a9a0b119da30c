package memory

import (
	"context"
	"errors"
	"testing"

	"ledger/internal/sheets"
)

func TestJournalAppend(t *testing.T) {
	j := New()
	ref, err := j.AppendEntry(context.Background(), sheets.Entry{Event: "income.created", RecordID: "i-1", Amount: "10.00"})
	if err != nil || ref != "mem:1" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}
	ref, err = j.AppendEntry(context.Background(), sheets.Entry{Event: "income.deleted", RecordID: "i-1"})
	if err != nil || ref != "mem:2" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}

	got := j.Entries()
	if len(got) != 2 || got[0].Amount != "10.00" || got[1].Event != "income.deleted" {
		t.Fatalf("unexpected entries: %+v", got)
	}

	got[0].Amount = "changed"
	if j.Entries()[0].Amount != "10.00" {
		t.Fatal("Entries must return a copy")
	}
}

func TestJournalRejectsEmptyEvent(t *testing.T) {
	if _, err := New().AppendEntry(context.Background(), sheets.Entry{}); err == nil {
		t.Fatal("expected error for entry without event")
	}
}

func TestJournalFailWith(t *testing.T) {
	j := New()
	boom := errors.New("quota exceeded")
	j.FailWith(boom)
	if _, err := j.AppendEntry(context.Background(), sheets.Entry{Event: "user.created"}); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	j.FailWith(nil)
	if _, err := j.AppendEntry(context.Background(), sheets.Entry{Event: "user.created"}); err != nil {
		t.Fatalf("append after recovery: %v", err)
	}
	if n := len(j.Entries()); n != 1 {
		t.Fatalf("failed appends must not be recorded, got %d entries", n)
	}
}
