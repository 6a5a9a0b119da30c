package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"ledger/internal/storage"
	"ledger/internal/storage/storagetest"
)

func TestMemoryStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store { return New() })
}

func TestNewFromFilesSeedsAndDedupe(t *testing.T) {
	dir := t.TempDir()
	// No file -> empty store
	s := NewFromFiles(dir)
	users, _ := s.ListUsers(context.Background())
	if len(users) != 0 {
		t.Fatalf("expected no users when seed file is missing, got %d", len(users))
	}

	content := "# header\nalice\nbob\nalice\n\n"
	if err := os.WriteFile(filepath.Join(dir, "seed_users.txt"), []byte(content), 0o644); err != nil {
		t.Fatalf("write seed file: %v", err)
	}

	s = NewFromFiles(dir)
	users, _ = s.ListUsers(context.Background())
	if len(users) != 2 || users[0].Username != "alice" || users[1].Username != "bob" {
		t.Fatalf("unexpected users: %+v", users)
	}
}
