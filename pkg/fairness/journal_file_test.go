package fairness

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileJournalRoundTripsCommitsAndDraws(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 7, 29, 10, 0, 0, 0, time.UTC)

	j1, err := NewFileJournal(dir)
	if err != nil {
		t.Fatalf("NewFileJournal: %v", err)
	}
	commit, err := j1.EnsureCommit("2026-07-29", "hash-a", now)
	if err != nil {
		t.Fatalf("ensure commit: %v", err)
	}
	if _, err := j1.Reveal("2026-07-29", []byte("seed"), now.Add(24*time.Hour)); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	record := DrawRecord{CaseID: "c1", UserID: 7, Nonce: "n1", ServerSeedHash: commit.ServerSeedHash, RollHex: "ab12", Ppm: 123_456, CreatedAt: now}
	if _, created, err := j1.InsertDrawIfAbsent(record); err != nil || !created {
		t.Fatalf("insert draw: created=%v err=%v", created, err)
	}

	// Reopen against the same data dir; state must survive a restart.
	j2, err := NewFileJournal(dir)
	if err != nil {
		t.Fatalf("reopen NewFileJournal: %v", err)
	}

	reloadedCommit, ok, err := j2.GetCommit("2026-07-29")
	if err != nil || !ok {
		t.Fatalf("reloaded commit missing: ok=%v err=%v", ok, err)
	}
	if !reloadedCommit.Revealed || string(reloadedCommit.ServerSeed) != "seed" {
		t.Fatalf("reloaded commit did not retain reveal state: %+v", reloadedCommit)
	}

	reloadedDraw, ok, err := j2.GetDraw(DrawKey{CaseID: "c1", UserID: 7, Nonce: "n1"})
	if err != nil || !ok {
		t.Fatalf("reloaded draw missing: ok=%v err=%v", ok, err)
	}
	if reloadedDraw.RollHex != "ab12" || reloadedDraw.Ppm != 123_456 {
		t.Fatalf("reloaded draw mismatch: %+v", reloadedDraw)
	}
}

func TestFileJournalInsertDrawIsIdempotentAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 7, 29, 10, 0, 0, 0, time.UTC)

	j1, err := NewFileJournal(dir)
	if err != nil {
		t.Fatalf("NewFileJournal: %v", err)
	}
	record := DrawRecord{CaseID: "c1", UserID: 1, Nonce: "n", RollHex: "aa", Ppm: 1, CreatedAt: now}
	if _, created, err := j1.InsertDrawIfAbsent(record); err != nil || !created {
		t.Fatalf("first insert: created=%v err=%v", created, err)
	}

	j2, err := NewFileJournal(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	dup := record
	dup.RollHex = "bb"
	stored, created, err := j2.InsertDrawIfAbsent(dup)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if created {
		t.Fatalf("expected the reloaded journal to recognize the existing draw")
	}
	if stored.RollHex != "aa" {
		t.Fatalf("expected original draw to survive, got %+v", stored)
	}
}

func TestFileJournalSnapshotFileExists(t *testing.T) {
	dir := t.TempDir()
	j, err := NewFileJournal(dir)
	if err != nil {
		t.Fatalf("NewFileJournal: %v", err)
	}
	if _, err := j.EnsureCommit("2026-07-29", "hash", time.Now()); err != nil {
		t.Fatalf("ensure commit: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "rng_commits.json")); err != nil {
		t.Fatalf("expected commits snapshot file to exist: %v", err)
	}
}
