// Package testutil provides test setup helpers for the run journal and the
// client workbook.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Veraticus/policybook/internal/ledger"
	"github.com/Veraticus/policybook/internal/model"
	"github.com/Veraticus/policybook/internal/storage"
)

// TestJournal is a migrated run journal seeded for a test.
type TestJournal struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// JournalOptions configures SetupTestJournalWithOptions.
type JournalOptions struct {
	// Path of the database file. Empty means in memory.
	Path string
	Runs []model.Run
}

// SetupTestJournal creates an in-memory journal holding runs.
func SetupTestJournal(t *testing.T, runs ...model.Run) *TestJournal {
	t.Helper()
	return SetupTestJournalWithOptions(t, JournalOptions{Runs: runs})
}

// SetupTestJournalWithOptions creates a journal with custom options. The
// journal is closed when the test ends.
func SetupTestJournalWithOptions(t *testing.T, opts JournalOptions) *TestJournal {
	t.Helper()

	path := opts.Path
	if path == "" {
		path = ":memory:"
	}

	store, err := storage.NewSQLiteStorage(path)
	if err != nil {
		t.Fatalf("failed to create test journal: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Logf("failed to close test journal: %v", err)
		}
	})

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	for i := range opts.Runs {
		if err := store.RecordRun(ctx, &opts.Runs[i]); err != nil {
			t.Fatalf("failed to seed run %d: %v", i, err)
		}
	}

	return &TestJournal{Storage: store, t: t}
}

// MustListRuns returns up to limit runs or fails the test.
func (j *TestJournal) MustListRuns(limit int) []model.Run {
	j.t.Helper()
	runs, err := j.Storage.ListRuns(context.Background(), limit)
	if err != nil {
		j.t.Fatalf("failed to list runs: %v", err)
	}
	return runs
}

// SetupTestBook writes clients to a fresh workbook in a temp directory and
// returns its path. The workbook is persisted and closed before returning.
func SetupTestBook(t *testing.T, clients []model.Client) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "clients.xlsx")
	table, err := ledger.Open(ledger.Options{
		Path:   path,
		Layout: ledger.DefaultLayout(),
		Styles: ledger.DefaultStyles(),
	})
	if err != nil {
		t.Fatalf("failed to open test workbook: %v", err)
	}
	defer func() { _ = table.Close() }()

	if err := table.OverwriteAll(clients); err != nil {
		t.Fatalf("failed to seed workbook: %v", err)
	}
	return path
}
