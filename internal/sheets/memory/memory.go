package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ledger/internal/sheets"
)

// Journal is an in-process JournalWriter used when no spreadsheet is
// configured and in tests.
type Journal struct {
	mu      sync.Mutex
	entries []sheets.Entry
	failing error
}

var _ sheets.JournalWriter = (*Journal)(nil)

func New() *Journal {
	return &Journal{}
}

// AppendEntry stores the entry and returns a synthetic row reference.
func (j *Journal) AppendEntry(_ context.Context, e sheets.Entry) (string, error) {
	if e.Event == "" {
		return "", errors.New("journal entry without event")
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.failing != nil {
		return "", j.failing
	}
	j.entries = append(j.entries, e)
	return fmt.Sprintf("mem:%d", len(j.entries)), nil
}

// Entries returns a copy of everything appended so far.
func (j *Journal) Entries() []sheets.Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]sheets.Entry(nil), j.entries...)
}

// FailWith makes subsequent appends return err; nil restores normal behavior.
func (j *Journal) FailWith(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.failing = err
}
