package parse

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/thailang/thaidict/pkg/thaidict/entry"
)

func parseFixture(t *testing.T, name string) *entry.DictionaryEntry {
	t.Helper()
	body, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	e, err := New(nil).Parse(body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return e
}

func TestParseEntryPage(t *testing.T) {
	e := parseFixture(t, "entry199573.html")

	if e.ID != 199573 {
		t.Errorf("id: got %d, want 199573", e.ID)
	}
	if e.Word != "คิดถึง" {
		t.Errorf("word: got %q", e.Word)
	}
	if e.SoundURL != "/audio/S0033333.mp3" {
		t.Errorf("sound url: got %q", e.SoundURL)
	}
}

func TestParsePronunciationTable(t *testing.T) {
	e := parseFixture(t, "entry199573.html")

	want := entry.Pronunciations{
		{Scheme: "Phonemic Thai", Value: "คิด-ถึง"},
		{Scheme: "IPA", Value: "kʰít tʰɯ̌ŋ"},
		{Scheme: "Paiboon", Value: "kít tʉ̌ng"},
	}
	if len(e.Pronunciations) != len(want) {
		t.Fatalf("got %d schemes, want %d: %v", len(e.Pronunciations), len(want), e.Pronunciations)
	}
	for i, p := range want {
		if e.Pronunciations[i] != p {
			t.Errorf("pronunciation %d: got %v, want %v", i, e.Pronunciations[i], p)
		}
	}
}

func TestParseDefinitions(t *testing.T) {
	e := parseFixture(t, "entry199573.html")

	if len(e.Definitions) != 2 {
		t.Fatalf("got %d definitions, want 2", len(e.Definitions))
	}

	d1 := e.Definitions[0]
	if d1.ID != "1" {
		t.Errorf("first definition id: got %q", d1.ID)
	}
	if d1.Definition != "to miss; think of" {
		t.Errorf("definition text: got %q", d1.Definition)
	}
	if len(d1.Classes) != 1 || d1.Classes[0] != "verb" {
		t.Errorf("classes: got %v", d1.Classes)
	}
	if !d1.IsCommon {
		t.Error("common-word marker not detected")
	}
	wantCats := [][]string{{"Language", "Communication"}, {"Emotions"}}
	if len(d1.Categories) != 2 {
		t.Fatalf("categories: got %v", d1.Categories)
	}
	for i, cat := range wantCats {
		if strings.Join(d1.Categories[i], "|") != strings.Join(cat, "|") {
			t.Errorf("category %d: got %v, want %v", i, d1.Categories[i], cat)
		}
	}
	if len(d1.Components) != 2 {
		t.Fatalf("components: got %v", d1.Components)
	}
	if ref, ok := d1.Components[0].(entry.ComponentRef); !ok || ref.Ref.ID != 13408 {
		t.Errorf("component 0: got %v", d1.Components[0])
	}
	if ref, ok := d1.Components[1].(entry.ComponentRef); !ok || ref.Ref.ID != 10160 {
		t.Errorf("component 1: got %v", d1.Components[1])
	}
	if len(d1.Classifiers) != 1 || d1.Classifiers[0].ID != 27700 {
		t.Errorf("classifiers: got %v", d1.Classifiers)
	}
}

func TestParseSuperEntryDefinition(t *testing.T) {
	e := parseFixture(t, "entry199573.html")

	d2 := e.Definitions[1]
	if d2.ID != "2" {
		t.Fatalf("second definition id: got %q", d2.ID)
	}
	if d2.SuperEntry != "คิดคิดถึงๆ" {
		t.Errorf("super entry spelling: got %q", d2.SuperEntry)
	}
	if len(d2.Components) != 3 {
		t.Fatalf("super components: got %v", d2.Components)
	}
	if ref, ok := d2.Components[0].(entry.ComponentRef); !ok || ref.Ref.ID != 13408 {
		t.Errorf("component 0: got %v", d2.Components[0])
	}
	if _, ok := d2.Components[1].(entry.SelfMarker); !ok {
		t.Errorf("component 1 should be a self marker, got %v", d2.Components[1])
	}
	if _, ok := d2.Components[2].(entry.RepetitionMarker); !ok {
		t.Errorf("component 2 should be a repetition marker, got %v", d2.Components[2])
	}
	if d2.Definition != "[is] missing someone badly" {
		t.Errorf("definition text: got %q", d2.Definition)
	}
}

// Unknown field names ("usage notes" in the fixture) and aside blocks
// without a definition header must be skipped, not fail the parse.
func TestParsePermissive(t *testing.T) {
	e := parseFixture(t, "entry199573.html")
	if len(e.Definitions) != 2 {
		t.Errorf("aside block leaked into definitions: %v", e.Definitions)
	}
}

// A components field row is the authoritative component list: it
// replaces whatever the spelling span produced, and repetition links in
// it become markers just like in the span.
func TestParseComponentsFieldRowReplacesSpan(t *testing.T) {
	body := `<html><head><link rel="canonical" href="http://www.thai-language.com/id/800"></head>
<body><div id="old-content">
<table width="100%"><tr><td><span class="th3">กก</span></td></tr></table>
<table><tr><td>pronunciation guide</td></tr>
<tr><td>Paiboon</td><td>gòk</td></tr></table>
<table><tr style="background-color: black"><td></td></tr>
<tr><td><a class="ord" name="def1"></a><span class="th2"><a href="/id/801">ขข</a>กก</span></td></tr>
<tr><td>definition</td><td>a composite</td></tr>
<tr><td rowspan="2">components</td><td><a href="/id/801">ขข</a></td></tr>
<tr><td><a href="/id/132853">ๆ</a></td></tr>
</table>
</div></body></html>`

	e, err := New(nil).Parse([]byte(body))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	d := e.Definitions[0]
	if d.SuperEntry != "ขขกก" {
		t.Errorf("super entry spelling: got %q", d.SuperEntry)
	}
	if len(d.Components) != 2 {
		t.Fatalf("components not replaced by the field row: %v", d.Components)
	}
	if ref, ok := d.Components[0].(entry.ComponentRef); !ok || ref.Ref.ID != 801 {
		t.Errorf("component 0: got %v", d.Components[0])
	}
	if _, ok := d.Components[1].(entry.RepetitionMarker); !ok {
		t.Errorf("component 1 should be a repetition marker, got %v", d.Components[1])
	}
}

// Page regions are direct children of the content division; a table
// wrapped in an intermediate element is not one.
func TestParseIgnoresWrappedTables(t *testing.T) {
	body := `<html><head><link rel="canonical" href="http://www.thai-language.com/id/5"></head>
<body><div id="old-content">
<div><table width="100%"><tr><td><span class="th3">ก</span></td></tr></table></div>
</div></body></html>`
	_, err := New(nil).Parse([]byte(body))
	if err == nil || !strings.Contains(err.Error(), "header") {
		t.Errorf("expected a header error for a wrapped table, got %v", err)
	}
}

func TestParseMissingContent(t *testing.T) {
	if _, err := New(nil).Parse([]byte("<html><body><p>404</p></body></html>")); err == nil {
		t.Error("page without content division should fail")
	}
}

func TestParseMissingPronunciations(t *testing.T) {
	body := `<html><head><link rel="canonical" href="http://www.thai-language.com/id/5"></head>
<body><div id="old-content">
<table width="100%"><tr><td><span class="th3">ก</span></td></tr></table>
</div></body></html>`
	_, err := New(nil).Parse([]byte(body))
	if err == nil || !strings.Contains(err.Error(), "pronunciations") {
		t.Errorf("expected pronunciations error, got %v", err)
	}
}

func TestStripTags(t *testing.T) {
	if got := StripTags(`<b>199573</b>#2`); got != "199573#2" {
		t.Errorf("got %q", got)
	}
	if got := StripTags("plain"); got != "plain" {
		t.Errorf("got %q", got)
	}
}
