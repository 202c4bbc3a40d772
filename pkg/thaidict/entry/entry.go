package entry

import (
	"encoding/json"
	"fmt"
)

// EntryID is the site's numeric identifier for a dictionary entry.
// It is only guaranteed canonical after redirect resolution.
type EntryID int

// DefinitionID identifies one sense of an entry. The zero value means
// "unspecified"; DefaultDefinition is the id used when a page exposes no
// explicit multi-definition structure.
type DefinitionID string

// DefaultDefinition is the definition id for an entry's sole/primary sense.
const DefaultDefinition DefinitionID = "#"

// RepetitionEntryID is the entry for the Thai repetition character. A
// component link to it is treated as a repetition marker instead of a
// plain reference.
const RepetitionEntryID EntryID = 132853

// EntryRef points at an entry, optionally at one specific definition
// within it. It is a comparable value type and is used as a cache key.
type EntryRef struct {
	ID         EntryID      `json:"id"`
	Definition DefinitionID `json:"definition,omitempty"`
}

// NewRef returns a reference to a whole entry.
func NewRef(id EntryID) EntryRef {
	return EntryRef{ID: id}
}

// String renders the reference in the "id" or "id#definition" form
// accepted back by ParseRef.
func (r EntryRef) String() string {
	if r.Definition == "" {
		return fmt.Sprintf("%d", r.ID)
	}
	return fmt.Sprintf("%d#%s", r.ID, r.Definition)
}

// Component is one element of a composite spelling: a reference to
// another entry, the owning entry's own word, or the repetition
// character. The three cases are matched exhaustively during resolution.
type Component interface {
	isComponent()
}

// ComponentRef is a component referring to another entry.
type ComponentRef struct {
	Ref EntryRef
}

// SelfMarker stands for the owning entry's own word.
type SelfMarker struct{}

// RepetitionMarker stands for the repetition character, which repeats
// the preceding word's pronunciation.
type RepetitionMarker struct{}

func (ComponentRef) isComponent()     {}
func (SelfMarker) isComponent()       {}
func (RepetitionMarker) isComponent() {}

// Components is an ordered component list with a tagged JSON encoding.
type Components []Component

type componentJSON struct {
	Kind       string       `json:"kind"`
	ID         EntryID      `json:"id,omitempty"`
	Definition DefinitionID `json:"definition,omitempty"`
}

// MarshalJSON encodes each component with a "kind" discriminator.
func (cs Components) MarshalJSON() ([]byte, error) {
	out := make([]componentJSON, len(cs))
	for i, c := range cs {
		switch c := c.(type) {
		case ComponentRef:
			out[i] = componentJSON{Kind: "ref", ID: c.Ref.ID, Definition: c.Ref.Definition}
		case SelfMarker:
			out[i] = componentJSON{Kind: "self"}
		case RepetitionMarker:
			out[i] = componentJSON{Kind: "repeat"}
		default:
			return nil, fmt.Errorf("unknown component type %T", c)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the tagged component encoding.
func (cs *Components) UnmarshalJSON(data []byte) error {
	var raw []componentJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Components, len(raw))
	for i, r := range raw {
		switch r.Kind {
		case "ref":
			out[i] = ComponentRef{Ref: EntryRef{ID: r.ID, Definition: r.Definition}}
		case "self":
			out[i] = SelfMarker{}
		case "repeat":
			out[i] = RepetitionMarker{}
		default:
			return fmt.Errorf("unknown component kind %q", r.Kind)
		}
	}
	*cs = out
	return nil
}

// EntryDefinition is one sense of an entry.
type EntryDefinition struct {
	ID         DefinitionID `json:"id"`
	Definition string       `json:"definition"`
	Classes    []string     `json:"classes,omitempty"`
	IsCommon   bool         `json:"is_common,omitempty"`
	Categories [][]string   `json:"categories,omitempty"`

	// SuperEntry, when non-empty, is a composite spelling whose surface
	// form differs from the entry's canonical headword. A definition with
	// SuperEntry set always carries a non-empty Components list.
	SuperEntry string     `json:"super_entry,omitempty"`
	Components Components `json:"components,omitempty"`

	Classifiers []EntryRef `json:"classifiers,omitempty"`
	Synonyms    []EntryRef `json:"synonyms,omitempty"`
	Related     []EntryRef `json:"related,omitempty"`
	ImageURL    string     `json:"image_url,omitempty"`
}

// Pronunciation is one romanization scheme's rendering of the headword.
type Pronunciation struct {
	Scheme string `json:"scheme"`
	Value  string `json:"value"`
}

// Pronunciations preserves the page order of romanization schemes.
type Pronunciations []Pronunciation

// Get returns the value for a scheme.
func (ps Pronunciations) Get(scheme string) (string, bool) {
	for _, p := range ps {
		if p.Scheme == scheme {
			return p.Value, true
		}
	}
	return "", false
}

// Set replaces an existing scheme's value or appends a new one.
// Duplicated schemes on a page resolve last-wins.
func (ps *Pronunciations) Set(scheme, value string) {
	for i, p := range *ps {
		if p.Scheme == scheme {
			(*ps)[i].Value = value
			return
		}
	}
	*ps = append(*ps, Pronunciation{Scheme: scheme, Value: value})
}

// Definitions preserves the page order of an entry's senses.
type Definitions []EntryDefinition

// Get returns the definition with the given id.
func (ds Definitions) Get(id DefinitionID) (EntryDefinition, bool) {
	for _, d := range ds {
		if d.ID == id {
			return d, true
		}
	}
	return EntryDefinition{}, false
}

// First returns the id of the first definition, or DefaultDefinition for
// an entry with no definitions.
func (ds Definitions) First() DefinitionID {
	if len(ds) == 0 {
		return DefaultDefinition
	}
	return ds[0].ID
}

// DictionaryEntry is one fetched headword page.
type DictionaryEntry struct {
	ID             EntryID        `json:"id"`
	Word           string         `json:"word"`
	Pronunciations Pronunciations `json:"pronunciations"`
	SoundURL       string         `json:"sound_url,omitempty"`
	Definitions    Definitions    `json:"definitions"`
}

// Definition returns the sense with the given id.
func (e *DictionaryEntry) Definition(id DefinitionID) (EntryDefinition, bool) {
	return e.Definitions.Get(id)
}

// FirstDefinition returns the id of the page's first sense.
func (e *DictionaryEntry) FirstDefinition() DefinitionID {
	return e.Definitions.First()
}

// Clone returns a deep copy, for copy-then-modify derivation of super
// entries. Entries are otherwise treated as immutable values.
func (e *DictionaryEntry) Clone() *DictionaryEntry {
	out := *e
	out.Pronunciations = append(Pronunciations(nil), e.Pronunciations...)
	out.Definitions = make(Definitions, len(e.Definitions))
	for i, d := range e.Definitions {
		nd := d
		nd.Classes = append([]string(nil), d.Classes...)
		nd.Categories = make([][]string, len(d.Categories))
		for j, c := range d.Categories {
			nd.Categories[j] = append([]string(nil), c...)
		}
		nd.Components = append(Components(nil), d.Components...)
		nd.Classifiers = append([]EntryRef(nil), d.Classifiers...)
		nd.Synonyms = append([]EntryRef(nil), d.Synonyms...)
		nd.Related = append([]EntryRef(nil), d.Related...)
		out.Definitions[i] = nd
	}
	return &out
}

// Marshal serializes an entry for cache storage.
func Marshal(e *DictionaryEntry) ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal deserializes a cached entry row.
func Unmarshal(data []byte) (*DictionaryEntry, error) {
	var e DictionaryEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
