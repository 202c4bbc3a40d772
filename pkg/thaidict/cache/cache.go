// Package cache is the persistent local store for resolved dictionary
// entries: serialized entry rows, id redirects, word and pronunciation
// index rows, and content-addressed media blobs.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/thailang/thaidict/pkg/thaidict/entry"
)

// Version is part of the storage file name. Files of other versions are
// deleted at open so a schema change never reads an incompatible layout.
const Version = 4

// Cache wraps a SQLite database holding resolved entries.
type Cache struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens (creating if needed) the versioned cache file inside dir
// and removes cache files of any other version.
func Open(ctx context.Context, dir string, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	base := fmt.Sprintf("entries-v%d.db", Version)
	sweepStale(dir, base, logger)
	return open(ctx, filepath.Join(dir, base), logger)
}

// OpenMemory opens a throwaway in-memory cache.
func OpenMemory(ctx context.Context) (*Cache, error) {
	return open(ctx, ":memory:", slog.Default())
}

// sweepStale deletes cache files (and their WAL/SHM siblings) whose
// embedded version differs from the current one.
func sweepStale(dir, keep string, logger *slog.Logger) {
	matches, err := filepath.Glob(filepath.Join(dir, "entries-v*.db*"))
	if err != nil {
		return
	}
	for _, m := range matches {
		if strings.HasPrefix(filepath.Base(m), keep) {
			continue
		}
		if err := os.Remove(m); err != nil {
			logger.Warn("failed to remove stale cache file", "path", m, "error", err)
		} else {
			logger.Info("removed stale cache file", "path", m)
		}
	}
}

func open(ctx context.Context, path string, logger *slog.Logger) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	// Foreign keys drive the cascade from entries to dependent rows.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Cache{db: db, log: logger}, nil
}

// Close closes the database connection
func (c *Cache) Close() error {
	return c.db.Close()
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS entries (
	id INTEGER PRIMARY KEY,
	data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS redirects (
	id INTEGER PRIMARY KEY,
	entry_id INTEGER NOT NULL,
	FOREIGN KEY(entry_id) REFERENCES entries(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS words (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	word TEXT NOT NULL,
	entry_id INTEGER NOT NULL,
	definition_id TEXT,
	UNIQUE(entry_id, definition_id),
	FOREIGN KEY(entry_id) REFERENCES entries(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS words_idx ON words (word);

CREATE TABLE IF NOT EXISTS pronunciations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	pronunciation TEXT NOT NULL,
	scheme TEXT NOT NULL,
	entry_id INTEGER NOT NULL,
	definition_id TEXT,
	UNIQUE(entry_id, definition_id, scheme),
	FOREIGN KEY(entry_id) REFERENCES entries(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS pronunciations_idx ON pronunciations (pronunciation);

CREATE TABLE IF NOT EXISTS media (
	path TEXT PRIMARY KEY,
	data BLOB NOT NULL,
	sha256 TEXT NOT NULL
);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// GetEntry looks up a serialized entry row. A row that fails to
// deserialize is purged and reported as a miss.
func (c *Cache) GetEntry(ctx context.Context, id entry.EntryID) (*entry.DictionaryEntry, bool, error) {
	var raw string
	err := c.db.QueryRowContext(ctx, "SELECT data FROM entries WHERE id = ?", int(id)).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	e, uerr := entry.Unmarshal([]byte(raw))
	if uerr != nil {
		c.log.Warn("purging corrupt cache row", "id", int(id), "error", uerr)
		if err := c.DeleteEntry(ctx, id); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	return e, true, nil
}

// HasEntry reports whether an entry row exists without deserializing it.
func (c *Cache) HasEntry(ctx context.Context, id entry.EntryID) (bool, error) {
	var one int
	err := c.db.QueryRowContext(ctx, "SELECT 1 FROM entries WHERE id = ?", int(id)).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PutEntry stores a serialized entry under its canonical id.
func (c *Cache) PutEntry(ctx context.Context, e *entry.DictionaryEntry) error {
	raw, err := entry.Marshal(e)
	if err != nil {
		return fmt.Errorf("serialize entry %d: %w", e.ID, err)
	}
	_, err = c.db.ExecContext(ctx, "INSERT INTO entries (id, data) VALUES (?, ?)", int(e.ID), string(raw))
	return err
}

// DeleteEntry removes an entry row; redirect and index rows referencing
// it cascade away with it.
func (c *Cache) DeleteEntry(ctx context.Context, id entry.EntryID) error {
	_, err := c.db.ExecContext(ctx, "DELETE FROM entries WHERE id = ?", int(id))
	return err
}

// GetRedirect returns the canonical id an alias points at.
func (c *Cache) GetRedirect(ctx context.Context, id entry.EntryID) (entry.EntryID, bool, error) {
	var target int
	err := c.db.QueryRowContext(ctx, "SELECT entry_id FROM redirects WHERE id = ?", int(id)).Scan(&target)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return entry.EntryID(target), true, nil
}

// PutRedirect records an alias id for a canonical entry.
func (c *Cache) PutRedirect(ctx context.Context, id, target entry.EntryID) error {
	_, err := c.db.ExecContext(ctx, "INSERT INTO redirects (id, entry_id) VALUES (?, ?)", int(id), int(target))
	return err
}

func defnValue(d entry.DefinitionID) any {
	if d == "" {
		return nil
	}
	return string(d)
}

// PutWordIndex records one normalized word for a (entry, definition) pair.
func (c *Cache) PutWordIndex(ctx context.Context, word string, ref entry.EntryRef) error {
	_, err := c.db.ExecContext(ctx,
		"INSERT INTO words (word, entry_id, definition_id) VALUES (?, ?, ?)",
		word, int(ref.ID), defnValue(ref.Definition))
	return err
}

// PutPronunciationIndex records one normalized romanization for a
// (entry, definition) pair under its scheme.
func (c *Cache) PutPronunciationIndex(ctx context.Context, scheme, pronunciation string, ref entry.EntryRef) error {
	_, err := c.db.ExecContext(ctx,
		"INSERT INTO pronunciations (pronunciation, scheme, entry_id, definition_id) VALUES (?, ?, ?, ?)",
		pronunciation, scheme, int(ref.ID), defnValue(ref.Definition))
	return err
}

// LookupWord returns every indexed (entry, definition) for a word.
func (c *Cache) LookupWord(ctx context.Context, word string) ([]entry.EntryRef, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT entry_id, definition_id FROM words WHERE word = ?", word)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []entry.EntryRef
	for rows.Next() {
		var id int
		var defn sql.NullString
		if err := rows.Scan(&id, &defn); err != nil {
			return nil, err
		}
		refs = append(refs, entry.EntryRef{ID: entry.EntryID(id), Definition: entry.DefinitionID(defn.String)})
	}
	return refs, rows.Err()
}

// LookupPronunciation returns entry ids indexed under a romanization.
func (c *Cache) LookupPronunciation(ctx context.Context, pronunciation string) ([]entry.EntryID, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT entry_id FROM pronunciations WHERE pronunciation = ?", pronunciation)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []entry.EntryID
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, entry.EntryID(id))
	}
	return ids, rows.Err()
}

// GetMedia returns the cached bytes and content hash for an origin path.
func (c *Cache) GetMedia(ctx context.Context, path string) (data []byte, sha256 string, ok bool, err error) {
	err = c.db.QueryRowContext(ctx, "SELECT data, sha256 FROM media WHERE path = ?", path).Scan(&data, &sha256)
	if err == sql.ErrNoRows {
		return nil, "", false, nil
	}
	if err != nil {
		return nil, "", false, err
	}
	return data, sha256, true, nil
}

// PutMedia stores (replacing) the bytes for an origin path. The key is
// the path; the hash only verifies content drift.
func (c *Cache) PutMedia(ctx context.Context, path, sha256 string, data []byte) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM media WHERE path = ?", path); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO media (path, sha256, data) VALUES (?, ?, ?)", path, sha256, data); err != nil {
		return err
	}
	return tx.Commit()
}
