// Package thaidict is a retrieval and caching client for the
// thai-language.com dictionary: it fetches entry pages, parses them into
// typed entries, resolves composite ("super") entries, persists results
// in a local SQLite cache, and formats entries into flashcard fields.
package thaidict

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/thailang/thaidict/pkg/thaidict/cache"
	"github.com/thailang/thaidict/pkg/thaidict/config"
	"github.com/thailang/thaidict/pkg/thaidict/entry"
	"github.com/thailang/thaidict/pkg/thaidict/fetch"
	"github.com/thailang/thaidict/pkg/thaidict/note"
	"github.com/thailang/thaidict/pkg/thaidict/parse"
)

// Options configures a Client.
type Options struct {
	// Config holds the fetcher and formatter settings; the zero value
	// means config.Default().
	Config config.Config

	// InMemoryCache replaces the on-disk cache with a throwaway one.
	InMemoryCache bool

	// Logger receives warnings and fetch progress. Nil means
	// slog.Default().
	Logger *slog.Logger
}

// Client bundles the cache, fetcher and formatter behind one lock. The
// cache connection and the formatter's per-note state are not safe for
// concurrent use, so at most one fetch or format operation proceeds at
// a time.
type Client struct {
	mu        sync.Mutex
	cache     *cache.Cache
	fetcher   *fetch.Fetcher
	formatter *note.Formatter
}

// Open creates a Client, opening (and version-sweeping) the cache.
func Open(ctx context.Context, opts Options) (*Client, error) {
	cfg := opts.Config
	if cfg.BaseURL == "" {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		c   *cache.Cache
		err error
	)
	if opts.InMemoryCache {
		c, err = cache.OpenMemory(ctx)
	} else {
		c, err = cache.Open(ctx, cfg.CacheDir, opts.Logger)
	}
	if err != nil {
		return nil, err
	}

	fetcher, err := fetch.New(c, cfg, opts.Logger)
	if err != nil {
		c.Close()
		return nil, err
	}

	return &Client{
		cache:     c,
		fetcher:   fetcher,
		formatter: note.NewFormatter(fetcher, cfg.PronunciationScheme),
	}, nil
}

// Close releases the cache connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Close()
}

// GetEntry resolves an id to its canonical entry, from cache when warm.
func (c *Client) GetEntry(ctx context.Context, id entry.EntryID) (*entry.DictionaryEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetcher.GetEntry(ctx, id)
}

// EntryToNote resolves a reference into flashcard fields.
func (c *Client) EntryToNote(ctx context.Context, ref entry.EntryRef) (*note.WordNote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.formatter.EntryToNote(ctx, ref)
}

// LookupWord finds entries for a headword, falling back to one
// server-side search when the local index is empty or forced.
func (c *Client) LookupWord(ctx context.Context, word string, forceServerside bool) ([]entry.EntryRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetcher.LookupWord(ctx, word, forceServerside)
}

// LookupPronunciation finds entry ids for a romanized pronunciation in
// the local index.
func (c *Client) LookupPronunciation(ctx context.Context, pronunciation string) ([]entry.EntryID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetcher.LookupPronunciation(ctx, pronunciation)
}

// MediaData returns media bytes for an origin path, optionally
// re-verifying the cached copy against the site.
func (c *Client) MediaData(ctx context.Context, path string, verify bool) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetcher.MediaData(ctx, path, verify)
}

// ResolveRef interprets free-form user input as entry references: a
// bare "id" or "id#definition", an entry URL, a headword, or a
// romanized pronunciation. Unresolvable input yields an empty result,
// not an error.
func (c *Client) ResolveRef(ctx context.Context, raw string) ([]entry.EntryRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw = strings.TrimSpace(parse.StripTags(raw))
	if raw == "" {
		return nil, nil
	}

	if ref, ok := entry.ParseRef(raw); ok {
		return []entry.EntryRef{ref}, nil
	}
	if ref, ok := entry.ParseEntryURL(raw, 0); ok {
		return []entry.EntryRef{ref}, nil
	}

	// The formatter renders spaces as hyphens; undo that before lookup.
	word := strings.ReplaceAll(raw, "-", " ")
	refs, err := c.fetcher.LookupWord(ctx, word, false)
	if err != nil {
		return nil, err
	}
	if len(refs) > 0 {
		return refs, nil
	}

	ids, err := c.fetcher.LookupPronunciation(ctx, word)
	if err != nil {
		return nil, err
	}
	refs = make([]entry.EntryRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, entry.NewRef(id))
	}
	return refs, nil
}
