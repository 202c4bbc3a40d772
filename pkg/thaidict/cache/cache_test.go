package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/thailang/thaidict/pkg/thaidict/entry"
)

func testEntry(id entry.EntryID, word string) *entry.DictionaryEntry {
	return &entry.DictionaryEntry{
		ID:   id,
		Word: word,
		Pronunciations: entry.Pronunciations{
			{Scheme: "Paiboon", Value: "kít"},
		},
		Definitions: entry.Definitions{
			{ID: entry.DefaultDefinition, Definition: "a test word"},
		},
	}
}

func TestCacheEntryRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, err := OpenMemory(ctx)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer c.Close()

	e := testEntry(42, "คิด")
	if err := c.PutEntry(ctx, e); err != nil {
		t.Fatalf("PutEntry: %v", err)
	}

	got, ok, err := c.GetEntry(ctx, 42)
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if !ok {
		t.Fatal("entry should be found")
	}
	if got.Word != e.Word || got.ID != e.ID {
		t.Errorf("got %v, want %v", got, e)
	}

	if _, ok, _ := c.GetEntry(ctx, 43); ok {
		t.Error("missing entry should be a miss")
	}
}

func TestCacheCorruptRowEviction(t *testing.T) {
	ctx := context.Background()
	c, err := OpenMemory(ctx)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer c.Close()

	if _, err := c.db.ExecContext(ctx, "INSERT INTO entries (id, data) VALUES (7, 'not json')"); err != nil {
		t.Fatalf("seed corrupt row: %v", err)
	}

	_, ok, err := c.GetEntry(ctx, 7)
	if err != nil {
		t.Fatalf("GetEntry on corrupt row: %v", err)
	}
	if ok {
		t.Fatal("corrupt row should be a miss")
	}

	// The row is purged, not retried.
	has, err := c.HasEntry(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if has {
		t.Error("corrupt row should have been deleted")
	}
}

func TestCacheRedirects(t *testing.T) {
	ctx := context.Background()
	c, err := OpenMemory(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.PutEntry(ctx, testEntry(10, "คำ")); err != nil {
		t.Fatal(err)
	}
	if err := c.PutRedirect(ctx, 99, 10); err != nil {
		t.Fatalf("PutRedirect: %v", err)
	}

	target, ok, err := c.GetRedirect(ctx, 99)
	if err != nil || !ok || target != 10 {
		t.Errorf("GetRedirect = %d, %v, %v", target, ok, err)
	}
	if _, ok, _ := c.GetRedirect(ctx, 10); ok {
		t.Error("canonical id should have no redirect")
	}
}

func TestCacheCascadeDelete(t *testing.T) {
	ctx := context.Background()
	c, err := OpenMemory(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.PutEntry(ctx, testEntry(10, "คำ")); err != nil {
		t.Fatal(err)
	}
	if err := c.PutRedirect(ctx, 99, 10); err != nil {
		t.Fatal(err)
	}
	if err := c.PutWordIndex(ctx, "คำ", entry.NewRef(10)); err != nil {
		t.Fatal(err)
	}
	if err := c.PutPronunciationIndex(ctx, "Paiboon", "kam", entry.NewRef(10)); err != nil {
		t.Fatal(err)
	}

	if err := c.DeleteEntry(ctx, 10); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}

	if _, ok, _ := c.GetRedirect(ctx, 99); ok {
		t.Error("redirect row should cascade away with its entry")
	}
	refs, err := c.LookupWord(ctx, "คำ")
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 0 {
		t.Errorf("word index rows should cascade away, got %v", refs)
	}
	ids, err := c.LookupPronunciation(ctx, "kam")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Errorf("pronunciation index rows should cascade away, got %v", ids)
	}
}

func TestCacheIndexUnique(t *testing.T) {
	ctx := context.Background()
	c, err := OpenMemory(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.PutEntry(ctx, testEntry(10, "คำ")); err != nil {
		t.Fatal(err)
	}
	ref := entry.EntryRef{ID: 10, Definition: "1"}
	if err := c.PutWordIndex(ctx, "คำ", ref); err != nil {
		t.Fatal(err)
	}
	if err := c.PutWordIndex(ctx, "อื่น", ref); err == nil {
		t.Error("second word row for the same (entry, definition) should violate uniqueness")
	}
}

func TestCacheLookup(t *testing.T) {
	ctx := context.Background()
	c, err := OpenMemory(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.PutEntry(ctx, testEntry(10, "คำ")); err != nil {
		t.Fatal(err)
	}
	if err := c.PutWordIndex(ctx, "คำ", entry.NewRef(10)); err != nil {
		t.Fatal(err)
	}
	if err := c.PutWordIndex(ctx, "คำ", entry.EntryRef{ID: 10, Definition: "2"}); err != nil {
		t.Fatal(err)
	}

	refs, err := c.LookupWord(ctx, "คำ")
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 2 {
		t.Fatalf("got %v", refs)
	}
	seen := map[entry.EntryRef]bool{}
	for _, r := range refs {
		seen[r] = true
	}
	if !seen[entry.NewRef(10)] || !seen[entry.EntryRef{ID: 10, Definition: "2"}] {
		t.Errorf("got %v", refs)
	}
}

func TestCacheMedia(t *testing.T) {
	ctx := context.Background()
	c, err := OpenMemory(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if _, _, ok, _ := c.GetMedia(ctx, "/audio/a.mp3"); ok {
		t.Error("missing media should be a miss")
	}

	if err := c.PutMedia(ctx, "/audio/a.mp3", "hash1", []byte("bytes1")); err != nil {
		t.Fatal(err)
	}
	data, sha, ok, err := c.GetMedia(ctx, "/audio/a.mp3")
	if err != nil || !ok || sha != "hash1" || string(data) != "bytes1" {
		t.Errorf("got %q, %q, %v, %v", data, sha, ok, err)
	}

	// Same key, drifted content: the row is replaced.
	if err := c.PutMedia(ctx, "/audio/a.mp3", "hash2", []byte("bytes2")); err != nil {
		t.Fatal(err)
	}
	data, sha, _, _ = c.GetMedia(ctx, "/audio/a.mp3")
	if sha != "hash2" || string(data) != "bytes2" {
		t.Errorf("got %q, %q", data, sha)
	}
}

func TestCacheVersionSweep(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	stale := filepath.Join(dir, "entries-v1.db")
	staleWAL := filepath.Join(dir, "entries-v1.db-wal")
	for _, p := range []string{stale, staleWAL} {
		if err := os.WriteFile(p, []byte("old layout"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	c, err := Open(ctx, dir, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	for _, p := range []string{stale, staleWAL} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("stale cache file %s should have been removed", p)
		}
	}
	current := filepath.Join(dir, fmt.Sprintf("entries-v%d.db", Version))
	if _, err := os.Stat(current); err != nil {
		t.Errorf("current cache file missing: %v", err)
	}

	// Reopening keeps the current file.
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	c2, err := Open(ctx, dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()
	if _, err := os.Stat(current); err != nil {
		t.Errorf("current cache file removed on reopen: %v", err)
	}
}
