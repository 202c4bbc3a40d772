// Package fetch retrieves dictionary entries over HTTP, resolving
// redirects and composite entries and keeping the local cache warm.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/thailang/thaidict/pkg/thaidict/cache"
	"github.com/thailang/thaidict/pkg/thaidict/config"
	"github.com/thailang/thaidict/pkg/thaidict/entry"
	"github.com/thailang/thaidict/pkg/thaidict/internalerr"
	"github.com/thailang/thaidict/pkg/thaidict/parse"
)

// sessionSettings is the one-time preference form that makes the site
// render pages the parser understands: no inline transliteration, the
// t-i Enhanced and Paiboon schemes enabled, the Royal Institute
// dictionary content off.
var sessionSettings = map[string]string{
	"audio":        "0",
	"audio_enc":    "mp3",
	"streaming":    "off",
	"xlitshowmode": "0",
	"xlitsystem":   "15",
	"xs0":          "on",
	"xs1":          "off",
	"xs2":          "off",
	"xs8":          "on",
	"xs3":          "off",
	"submitted":    "save+changes",
	"licensetype":  "on",
	"xmp_ena":      "on",
	"smp_ena":      "on",
	"racycontent":  "on",
	"gaycontent":   "on",
	"ridcontent":   "off",
}

type superKey struct {
	id   entry.EntryID
	defn entry.DefinitionID
}

// Fetcher resolves entry references against the cache and the site.
// It is not safe for concurrent use; callers serialize access.
type Fetcher struct {
	cache  *cache.Cache
	parser *parse.Parser
	log    *slog.Logger

	baseURL  *url.URL
	client   *http.Client // follows redirects (entry pages, media)
	posting  *http.Client // does not follow redirects (handshake, search)
	settings map[string]string

	sessionReady bool
	inFlight     map[superKey]struct{}
}

// New builds a Fetcher over an open cache. A nil logger falls back to
// slog.Default.
func New(c *cache.Cache, cfg config.Config, logger *slog.Logger) (*Fetcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base URL %q", internalerr.ErrInvalidConfig, cfg.BaseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	settings := make(map[string]string, len(sessionSettings))
	for k, v := range sessionSettings {
		settings[k] = v
	}
	for k, v := range cfg.Settings {
		settings[k] = v
	}

	return &Fetcher{
		cache:  c,
		parser: parse.New(logger),
		log:    logger,

		baseURL: base,
		client:  &http.Client{Jar: jar, Timeout: timeout},
		posting: &http.Client{
			Jar:     jar,
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		settings: settings,
		inFlight: make(map[superKey]struct{}),
	}, nil
}

func (f *Fetcher) siteURL(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return f.baseURL.String() + path
	}
	return f.baseURL.ResolveReference(ref).String()
}

// ensureSession performs the one-time settings handshake. The site keys
// display preferences to the session cookie, and parsing depends on
// those preferences, so this must precede any page fetch.
func (f *Fetcher) ensureSession(ctx context.Context) error {
	if f.sessionReady {
		return nil
	}
	form := url.Values{}
	for k, v := range f.settings {
		form.Set(k, v)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		f.siteURL("/default.aspx?nav=control"), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.posting.Do(req)
	if err != nil {
		return fmt.Errorf("session handshake: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("session handshake: HTTP %d", resp.StatusCode)
	}
	f.sessionReady = true
	return nil
}

// fetchEntry retrieves and parses one entry page from the network.
func (f *Fetcher) fetchEntry(ctx context.Context, id entry.EntryID) (*entry.DictionaryEntry, error) {
	if err := f.ensureSession(ctx); err != nil {
		return nil, err
	}
	f.log.Info("fetching dictionary entry", "id", int(id))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.siteURL(fmt.Sprintf("/id/%d", id)), nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get entry %d: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("entry %d: %w", id, internalerr.ErrEntryNotFound)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("get entry %d: HTTP %d", id, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("get entry %d: %w", id, err)
	}
	e, err := f.parser.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("entry %d: %w", id, err)
	}
	return e, nil
}

// GetEntry resolves an id through the redirect table and the entry
// cache, falling back to a network fetch. A freshly fetched entry is
// stored under its canonical id together with its word/pronunciation
// index rows and the index rows of every derived super entry; when the
// canonical id differs from the requested one, a redirect row is
// recorded.
func (f *Fetcher) GetEntry(ctx context.Context, id entry.EntryID) (*entry.DictionaryEntry, error) {
	if target, ok, err := f.cache.GetRedirect(ctx, id); err != nil {
		return nil, err
	} else if ok {
		return f.GetEntry(ctx, target)
	}

	if e, ok, err := f.cache.GetEntry(ctx, id); err != nil {
		return nil, err
	} else if ok {
		return e, nil
	}

	e, err := f.fetchEntry(ctx, id)
	if err != nil {
		return nil, err
	}

	skipAdding := false
	if e.ID != id {
		// Alias detected. Only store the canonical row once.
		has, err := f.cache.HasEntry(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		skipAdding = has
	}

	if !skipAdding {
		if err := f.cache.PutEntry(ctx, e); err != nil {
			f.log.Warn("failed to add entry to cache", "id", int(e.ID), "error", err)
		}
		f.indexEntry(ctx, entry.NewRef(e.ID), e)
		for _, defn := range e.Definitions {
			if defn.SuperEntry == "" {
				continue
			}
			super, err := f.SuperEntry(ctx, e, defn.ID)
			if err != nil {
				return nil, err
			}
			f.indexEntry(ctx, entry.EntryRef{ID: e.ID, Definition: defn.ID}, super)
		}
	}

	if e.ID != id {
		if err := f.cache.PutRedirect(ctx, id, e.ID); err != nil {
			f.log.Warn("failed to add redirect to cache", "from", int(id), "to", int(e.ID), "error", err)
		}
	}
	return e, nil
}

// indexEntry records word and pronunciation index rows. Index failures
// (typically duplicates) degrade lookup, not correctness, so they are
// logged and skipped.
func (f *Fetcher) indexEntry(ctx context.Context, ref entry.EntryRef, e *entry.DictionaryEntry) {
	for _, p := range e.Pronunciations {
		value := norm.NFC.String(p.Value)
		if err := f.cache.PutPronunciationIndex(ctx, p.Scheme, value, ref); err != nil {
			f.log.Warn("failed to index pronunciation", "ref", ref.String(), "scheme", p.Scheme, "error", err)
		}
	}
	word := norm.NFC.String(e.Word)
	if err := f.cache.PutWordIndex(ctx, word, ref); err != nil {
		f.log.Warn("failed to index word", "ref", ref.String(), "word", word, "error", err)
	}
}

// SuperEntry builds the derived entry for a composite definition: a
// synthetic single-definition entry spelled as the composite phrase,
// with self and repetition markers rewritten to an explicit reference
// to the owning entry. Resolution is protected by an in-flight guard so
// a component list that cycles back into itself fails instead of
// looping.
func (f *Fetcher) SuperEntry(ctx context.Context, e *entry.DictionaryEntry, defnID entry.DefinitionID) (*entry.DictionaryEntry, error) {
	key := superKey{id: e.ID, defn: defnID}
	if _, busy := f.inFlight[key]; busy {
		return nil, fmt.Errorf("super entry %d#%s: %w", e.ID, defnID, internalerr.ErrRecursionDetected)
	}
	f.inFlight[key] = struct{}{}
	defer delete(f.inFlight, key)

	return f.superEntry(ctx, e, defnID)
}

func (f *Fetcher) superEntry(ctx context.Context, e *entry.DictionaryEntry, defnID entry.DefinitionID) (*entry.DictionaryEntry, error) {
	defn, ok := e.Definition(defnID)
	if !ok {
		return nil, fmt.Errorf("definition %d#%s: %w", e.ID, defnID, internalerr.ErrEntryNotFound)
	}
	if defn.SuperEntry == "" || len(defn.Components) == 0 {
		return nil, fmt.Errorf("definition %d#%s is not a super entry", e.ID, defnID)
	}

	newDefn := defn
	newDefn.SuperEntry = ""
	newDefn.Components = make(entry.Components, len(defn.Components))
	for i, comp := range defn.Components {
		switch comp.(type) {
		case entry.SelfMarker, entry.RepetitionMarker:
			newDefn.Components[i] = entry.ComponentRef{Ref: entry.NewRef(e.ID)}
		default:
			newDefn.Components[i] = comp
		}
	}

	prons := make(entry.Pronunciations, 0, len(e.Pronunciations))
	for _, p := range e.Pronunciations {
		joined, err := f.superPronunciation(ctx, p.Scheme, p.Value, defn.Components)
		if err != nil {
			return nil, fmt.Errorf("super entry %d#%s: %w", e.ID, defnID, err)
		}
		prons.Set(p.Scheme, joined)
	}

	return &entry.DictionaryEntry{
		ID:             e.ID,
		Word:           defn.SuperEntry,
		Pronunciations: prons,
		Definitions:    entry.Definitions{newDefn},
	}, nil
}

// superPronunciation joins component pronunciations with spaces,
// substituting the owning entry's own pronunciation for self and
// repetition markers.
func (f *Fetcher) superPronunciation(ctx context.Context, scheme, selfValue string, components entry.Components) (string, error) {
	parts := make([]string, 0, len(components))
	for _, comp := range components {
		switch comp := comp.(type) {
		case entry.SelfMarker, entry.RepetitionMarker:
			parts = append(parts, selfValue)
		case entry.ComponentRef:
			compEntry, err := f.GetEntry(ctx, comp.Ref.ID)
			if err != nil {
				return "", err
			}
			value, ok := compEntry.Pronunciations.Get(scheme)
			if !ok {
				return "", fmt.Errorf("component %d has no %s pronunciation", comp.Ref.ID, scheme)
			}
			parts = append(parts, value)
		default:
			return "", fmt.Errorf("unknown component type %T", comp)
		}
	}
	return strings.Join(parts, " "), nil
}

// fetchMedia downloads media bytes and their content hash.
func (f *Fetcher) fetchMedia(ctx context.Context, path string) (sha string, data []byte, err error) {
	if err := f.ensureSession(ctx); err != nil {
		return "", nil, err
	}
	f.log.Info("fetching media file", "path", path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.siteURL(path), nil)
	if err != nil {
		return "", nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("get media %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", nil, fmt.Errorf("get media %s: HTTP %d", path, resp.StatusCode)
	}
	data, err = io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("get media %s: %w", path, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), data, nil
}

// MediaData returns media bytes for an origin path, from cache when
// possible. With verify set the path is re-fetched until two reads
// agree; the stored row is replaced only when the content hash actually
// drifted (or nothing was stored yet).
func (f *Fetcher) MediaData(ctx context.Context, path string, verify bool) ([]byte, error) {
	data, sha, hasExisting, err := f.cache.GetMedia(ctx, path)
	if err != nil {
		return nil, err
	}
	insertNew := !hasExisting

	if !hasExisting {
		sha, data, err = f.fetchMedia(ctx, path)
		if err != nil {
			return nil, err
		}
	}

	verified := !verify
	for !verified {
		newSha, newData, err := f.fetchMedia(ctx, path)
		if err != nil {
			return nil, err
		}
		verified = sha == newSha
		insertNew = insertNew || !verified
		sha, data = newSha, newData
	}

	if insertNew {
		if err := f.cache.PutMedia(ctx, path, sha, data); err != nil {
			f.log.Warn("failed to add media to cache", "path", path, "error", err)
		}
	}
	return data, nil
}

func normalizeLookup(s string) string {
	return norm.NFC.String(strings.ToLower(s))
}

// LookupWord finds entries for a headword: the local index first, then
// one server-side search round trip whose 302 Location encodes the
// match. Previously seen words never re-query the server unless forced.
func (f *Fetcher) LookupWord(ctx context.Context, word string, forceServerside bool) ([]entry.EntryRef, error) {
	word = normalizeLookup(word)

	if !forceServerside {
		refs, err := f.cache.LookupWord(ctx, word)
		if err != nil {
			return nil, err
		}
		if len(refs) > 0 {
			return refs, nil
		}
	}

	if err := f.ensureSession(ctx); err != nil {
		return nil, err
	}
	form := url.Values{}
	form.Set("tmode", "0")
	form.Set("emode", "0")
	form.Set("search", word)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.siteURL("/default.aspx"), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.posting.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", word, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("search %q: HTTP %d", word, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusFound {
		// No redirect means no match.
		return nil, nil
	}

	ref, ok := entry.ParseEntryURL(resp.Header.Get("Location"), 0)
	if !ok {
		return nil, fmt.Errorf("search %q: unparseable redirect location %q", word, resp.Header.Get("Location"))
	}
	e, err := f.GetEntry(ctx, ref.ID)
	if err != nil {
		return nil, err
	}
	return []entry.EntryRef{{ID: e.ID, Definition: ref.Definition}}, nil
}

// LookupPronunciation finds entry ids for a romanization. The lookup is
// local-only; the site has no pronunciation search to fall back to.
func (f *Fetcher) LookupPronunciation(ctx context.Context, pronunciation string) ([]entry.EntryID, error) {
	return f.cache.LookupPronunciation(ctx, normalizeLookup(pronunciation))
}
