// Package note turns resolved dictionary entries into flashcard fields:
// a word field, a definition field, and an extra field carrying the
// classifier and the component breakdown of composite words.
package note

import (
	"context"
	"crypto/rand"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/thailang/thaidict/pkg/thaidict/entry"
	"github.com/thailang/thaidict/pkg/thaidict/fetch"
	"github.com/thailang/thaidict/pkg/thaidict/internalerr"
)

// WordNote is the formatted study-card material for one reference.
type WordNote struct {
	// ID is a fresh ULID stamped at generation time so downstream card
	// software can track notes across re-generations.
	ID  string
	Ref entry.EntryRef

	Word       string
	Definition string
	Extra      string

	// Media maps generated media file names to their origin paths.
	Media map[string]string
}

// wordComponent is one row of the component breakdown.
type wordComponent struct {
	id    entry.EntryID
	defn  entry.DefinitionID
	entry *entry.DictionaryEntry
	level int
}

// Formatter renders entries into notes. It keeps per-note media state,
// so it is not safe for concurrent use; callers serialize access.
type Formatter struct {
	fetcher *fetch.Fetcher
	scheme  string
	entropy *ulid.MonotonicEntropy
	media   map[string]string
}

// NewFormatter builds a formatter rendering the given pronunciation
// scheme. An empty scheme defaults to Paiboon.
func NewFormatter(fetcher *fetch.Fetcher, scheme string) *Formatter {
	if scheme == "" {
		scheme = "Paiboon"
	}
	return &Formatter{
		fetcher: fetcher,
		scheme:  scheme,
		entropy: ulid.Monotonic(rand.Reader, 0),
		media:   make(map[string]string),
	}
}

// Scheme returns the pronunciation scheme notes are rendered with.
func (f *Formatter) Scheme() string {
	return f.scheme
}

// useMedia registers an origin path and returns the media file name the
// note refers to it by. Two distinct paths flattening to the same name
// within one note is an error, not a silent overwrite.
func (f *Formatter) useMedia(path string) (string, error) {
	name := strings.ReplaceAll(path, "/", "_")
	if existing, ok := f.media[name]; ok && existing != path {
		return "", fmt.Errorf("media name %s already refers to %s", name, existing)
	}
	f.media[name] = path
	return name, nil
}

// isSuitableDefinition filters out senses that carry no study value:
// composite spellings (they become their own notes) and single-letter
// entries categorized under the English alphabet.
func (f *Formatter) isSuitableDefinition(defn entry.EntryDefinition) bool {
	if defn.SuperEntry != "" {
		return false
	}
	for _, cat := range defn.Categories {
		for _, c := range cat {
			if c == "The English Alphabet" {
				return false
			}
		}
	}
	return true
}

func (f *Formatter) suitableDefinitions(e *entry.DictionaryEntry) ([]entry.DefinitionID, error) {
	var ids []entry.DefinitionID
	for _, defn := range e.Definitions {
		if f.isSuitableDefinition(defn) {
			ids = append(ids, defn.ID)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("entry %d: %w", e.ID, internalerr.ErrNoSuitableDefinition)
	}
	return ids, nil
}

// formatWord renders the entry's romanization with spaces as hyphens so
// the word survives round-tripping through reference strings.
func (f *Formatter) formatWord(e *entry.DictionaryEntry) (string, error) {
	value, ok := e.Pronunciations.Get(f.scheme)
	if !ok {
		return "", fmt.Errorf("entry %d has no %s pronunciation", e.ID, f.scheme)
	}
	return html.EscapeString(strings.ReplaceAll(value, " ", "-")), nil
}

func (f *Formatter) formatWordField(e *entry.DictionaryEntry) (string, error) {
	word, err := f.formatWord(e)
	if err != nil {
		return "", err
	}
	if e.SoundURL != "" {
		name, err := f.useMedia(e.SoundURL)
		if err != nil {
			return "", err
		}
		word += fmt.Sprintf(" [sound:%s]", name)
	}
	return word, nil
}

func (f *Formatter) formatDefinition(e *entry.DictionaryEntry, defnID entry.DefinitionID) (string, error) {
	if defnID == "" {
		defnID = e.FirstDefinition()
	}
	defn, ok := e.Definition(defnID)
	if !ok {
		return "", fmt.Errorf("definition %d#%s: %w", e.ID, defnID, internalerr.ErrEntryNotFound)
	}
	return html.EscapeString(defn.Definition), nil
}

func (f *Formatter) formatDefinitionField(e *entry.DictionaryEntry) (string, error) {
	ids, err := f.suitableDefinitions(e)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		s, err := f.formatDefinition(e, id)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "<br>"), nil
}

func (f *Formatter) formatComponent(c wordComponent) (string, error) {
	word, err := f.formatWord(c.entry)
	if err != nil {
		return "", err
	}
	defn, err := f.formatDefinition(c.entry, c.defn)
	if err != nil {
		return "", err
	}
	return strings.Repeat("&nbsp;", 2*c.level) + word + ": " + defn, nil
}

// buildComponents walks an entry's composite structure depth-first: the
// first non-composite definition carrying a component list is expanded,
// each component resolved to its own entry (composite components one
// level further, to reveal their parts). The visited set keyed by
// (id, definition) suppresses duplicates and keeps shared sub-words
// from looping.
func (f *Formatter) buildComponents(ctx context.Context, e *entry.DictionaryEntry, visited map[entry.EntryRef]bool, level int) ([]wordComponent, error) {
	var compDefn *entry.EntryDefinition
	for i, defn := range e.Definitions {
		if len(defn.Components) > 0 && defn.SuperEntry == "" {
			compDefn = &e.Definitions[i]
			break
		}
	}
	if compDefn == nil {
		return nil, nil
	}

	var out []wordComponent
	for _, comp := range compDefn.Components {
		var ref entry.EntryRef
		switch comp := comp.(type) {
		case entry.SelfMarker:
			continue
		case entry.RepetitionMarker:
			ref = entry.NewRef(entry.RepetitionEntryID)
		case entry.ComponentRef:
			ref = comp.Ref
		}
		if ref.ID == e.ID {
			continue
		}

		component, err := f.fetcher.GetEntry(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		defnID := ref.Definition
		if defnID == "" {
			defnID = component.FirstDefinition()
		}
		compRef := entry.EntryRef{ID: component.ID, Definition: defnID}
		if visited[compRef] {
			continue
		}

		compEntry := component
		if defn, ok := component.Definition(defnID); ok && defn.SuperEntry != "" {
			compEntry, err = f.fetcher.SuperEntry(ctx, component, defnID)
			if err != nil {
				return nil, err
			}
		}

		out = append(out, wordComponent{
			id:    component.ID,
			defn:  defnID,
			entry: compEntry,
			level: level,
		})
		visited[compRef] = true

		nested, err := f.buildComponents(ctx, compEntry, visited, level+1)
		if err != nil {
			return nil, err
		}
		out = append(out, nested...)
	}
	return out, nil
}

// formatExtraField renders the optional classifier line followed by the
// indented component breakdown.
func (f *Formatter) formatExtraField(ctx context.Context, e *entry.DictionaryEntry) (string, error) {
	components, err := f.buildComponents(ctx, e, make(map[entry.EntryRef]bool), 0)
	if err != nil {
		return "", err
	}

	classifierStr := ""
	for _, defn := range e.Definitions {
		if len(defn.Classifiers) == 0 {
			continue
		}
		ref := defn.Classifiers[0]
		classifierEntry, err := f.fetcher.GetEntry(ctx, ref.ID)
		if err != nil {
			return "", err
		}
		word, err := f.formatWord(classifierEntry)
		if err != nil {
			return "", err
		}
		text, err := f.formatDefinition(classifierEntry, ref.Definition)
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(text, "[") {
			classifierStr = fmt.Sprintf("Classifier: %s %s", word, text)
		} else {
			classifierStr = fmt.Sprintf("Classifier: %s - %s", word, text)
		}
		break
	}

	parts := make([]string, 0, len(components))
	for _, c := range components {
		s, err := f.formatComponent(c)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return joinNonEmpty([]string{classifierStr, strings.Join(parts, "<br>")}, "<br><br>"), nil
}

func joinNonEmpty(parts []string, sep string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

// EntryToNote resolves a reference into note fields. A definition-less
// reference formats the entry as the page presents it; a reference to a
// plain definition formats a virtual single-definition view; a
// reference to a composite definition formats the derived super entry.
func (f *Formatter) EntryToNote(ctx context.Context, ref entry.EntryRef) (*WordNote, error) {
	e, err := f.fetcher.GetEntry(ctx, ref.ID)
	if err != nil {
		return nil, err
	}
	newRef := entry.EntryRef{ID: e.ID, Definition: ref.Definition}

	if ref.Definition == "" {
		return f.entryToNote(ctx, newRef, e)
	}

	defn, ok := e.Definition(ref.Definition)
	if !ok {
		return nil, fmt.Errorf("definition %d#%s: %w", e.ID, ref.Definition, internalerr.ErrEntryNotFound)
	}
	if defn.SuperEntry == "" {
		virtual := e.Clone()
		virtual.Definitions = entry.Definitions{defn}
		return f.entryToNote(ctx, newRef, virtual)
	}

	super, err := f.fetcher.SuperEntry(ctx, e, ref.Definition)
	if err != nil {
		return nil, err
	}
	return f.entryToNote(ctx, newRef, super)
}

func (f *Formatter) entryToNote(ctx context.Context, ref entry.EntryRef, e *entry.DictionaryEntry) (*WordNote, error) {
	clear(f.media)
	defer clear(f.media)

	word, err := f.formatWordField(e)
	if err != nil {
		return nil, err
	}
	definition, err := f.formatDefinitionField(e)
	if err != nil {
		return nil, err
	}
	extra, err := f.formatExtraField(ctx, e)
	if err != nil {
		return nil, err
	}

	media := make(map[string]string, len(f.media))
	for name, path := range f.media {
		media[name] = path
	}

	return &WordNote{
		ID:         ulid.MustNew(ulid.Timestamp(time.Now()), f.entropy).String(),
		Ref:        ref,
		Word:       word,
		Definition: definition,
		Extra:      extra,
		Media:      media,
	}, nil
}
