package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
)

func TestAppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	service := New(filepath.Join(dir, "journal"))

	entries := []Entry{
		{Action: ActionCast, AnnotationID: "ann_1", UserID: "bob", Direction: "like", At: time.Unix(1700000000, 0)},
		{Action: ActionRetract, AnnotationID: "ann_1", UserID: "bob", Direction: "like", At: time.Unix(1700000010, 0)},
		{Action: ActionCast, AnnotationID: "ann_1", UserID: "bob", Direction: "dislike", At: time.Unix(1700000020, 0)},
	}
	for _, entry := range entries {
		if err := service.Append(entry); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	replayed, err := service.Replay("ann_1")
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(replayed) != 3 {
		t.Fatalf("replayed %d entries, want 3", len(replayed))
	}
	for i, entry := range replayed {
		if entry.Action != entries[i].Action || entry.Direction != entries[i].Direction {
			t.Fatalf("entry %d = %+v, want %+v", i, entry, entries[i])
		}
		if entry.Version != entryVersion {
			t.Fatalf("entry %d version = %q", i, entry.Version)
		}
	}
}

func TestReplayMissingJournal(t *testing.T) {
	service := New(filepath.Join(t.TempDir(), "journal"))
	entries, err := service.Replay("never-written")
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty history, got %d entries", len(entries))
	}
}

func TestReplaySkipsCorruptLines(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "journal")
	service := New(dir)

	if err := service.Append(Entry{Action: ActionFlag, AnnotationID: "ann_2", UserID: "carol"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	path := filepath.Join(dir, "ann_2.journal")
	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	if _, err := file.WriteString("{not json\n"); err != nil {
		t.Fatalf("write corrupt line: %v", err)
	}
	file.Close()

	if err := service.Append(Entry{Action: ActionDelete, AnnotationID: "ann_2", UserID: "alice"}); err != nil {
		t.Fatalf("second Append: %v", err)
	}

	entries, err := service.Replay("ann_2")
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("replayed %d entries, want 2", len(entries))
	}
	if entries[0].Action != ActionFlag || entries[1].Action != ActionDelete {
		t.Fatalf("unexpected order: %+v", entries)
	}
}

func TestAppendCommitsEachEntry(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "journal")
	service := New(dir)

	if err := service.Append(Entry{Action: ActionCast, AnnotationID: "ann_3", UserID: "bob", Direction: "like"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := service.Append(Entry{Action: ActionRetract, AnnotationID: "ann_3", UserID: "bob", Direction: "like"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	repo, err := git.PlainOpen(dir)
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	iter, err := repo.Log(&git.LogOptions{})
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	count := 0
	for {
		if _, err := iter.Next(); err != nil {
			break
		}
		count++
	}
	// Init commit plus one commit per append.
	if count != 3 {
		t.Fatalf("commit count = %d, want 3", count)
	}
}

func TestJournalFilenameSanitized(t *testing.T) {
	if got := journalFilename("ann/../../etc"); got != "ann_______etc.journal" {
		t.Fatalf("journalFilename = %q", got)
	}
}
