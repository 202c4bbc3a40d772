// Package parse turns a thai-language.com entry page into a typed
// DictionaryEntry. The layout is undocumented and versioned, so every
// extraction step attributes its failure to a named page region.
package parse

import (
	"bytes"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/thailang/thaidict/pkg/thaidict/entry"
)

var (
	classesRegexp      = regexp.MustCompile(`^\[([a-zA-Z0-9-, ]*)\]$`)
	definitionIDRegexp = regexp.MustCompile(`^def([0-9]+.*)$`)
	separatorStyle     = regexp.MustCompile(`background-color: *black`)
)

// Parser extracts dictionary entries from fetched page bodies.
type Parser struct {
	log *slog.Logger
}

// New returns a Parser. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{log: logger}
}

// Parse extracts the entry described by an entry page. The entry id is
// taken from the page's canonical self-link, not from the URL that was
// requested; a mismatch with the requested id signals a redirect.
func (p *Parser) Parse(body []byte) (*entry.DictionaryEntry, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}

	root, notUnique := findSingle(doc, func(n *html.Node) bool {
		return isElement(n, "div") && attrIs(n, "id", "old-content")
	})
	if root == nil || notUnique {
		return nil, fmt.Errorf("parse page: content division not found")
	}

	canonical, notUnique := findSingle(doc, func(n *html.Node) bool {
		return isElement(n, "link") && attrIs(n, "rel", "canonical") && hasAttr(n, "href")
	})
	if canonical == nil || notUnique {
		return nil, fmt.Errorf("parse page: canonical link not found")
	}
	href, _ := attrVal(canonical, "href")
	ref, ok := entry.ParseEntryURL(href, 0)
	if !ok {
		return nil, fmt.Errorf("parse page: bad canonical link %q", href)
	}

	word, soundURL, err := parseHeader(root)
	if err != nil {
		return nil, err
	}
	prons, err := parsePronunciations(root)
	if err != nil {
		return nil, err
	}
	defs, err := p.parseDefinitions(root, ref.ID, word)
	if err != nil {
		return nil, err
	}

	return &entry.DictionaryEntry{
		ID:             ref.ID,
		Word:           word,
		Pronunciations: prons,
		SoundURL:       soundURL,
		Definitions:    defs,
	}, nil
}

// parseHeader reads the headword and the optional sound link out of the
// first full-width table. Entries with several spellings list them all;
// the first one is authoritative.
func parseHeader(root *html.Node) (word, soundURL string, err error) {
	var header *html.Node
	for _, t := range directChildTables(root) {
		if attrIs(t, "width", "100%") {
			header = t
			break
		}
	}
	if header == nil {
		return "", "", fmt.Errorf("entry header: table not found")
	}

	wordTag := findFirst(header, func(n *html.Node) bool {
		return isElement(n, "span") && hasClass(n, "th3")
	})
	if wordTag == nil {
		return "", "", fmt.Errorf("entry header: headword not found")
	}

	speaker, notUnique := findSingle(header, func(n *html.Node) bool {
		return isElement(n, "img") && attrIs(n, "src", "/img/speaker.gif")
	})
	if notUnique {
		return "", "", fmt.Errorf("entry header: several sound links")
	}
	if speaker != nil {
		if speaker.Parent == nil || !isElement(speaker.Parent, "a") {
			return "", "", fmt.Errorf("entry header: sound icon outside a link")
		}
		soundURL, _ = attrVal(speaker.Parent, "href")
	}
	return nodeText(wordTag), soundURL, nil
}

// parsePronunciations reads the table whose first cell says
// "pronunciation guide". Each later row pairs a scheme name with its
// romanized value; a duplicated scheme resolves last-wins.
func parsePronunciations(root *html.Node) (entry.Pronunciations, error) {
	var table *html.Node
	for _, t := range directChildTables(root) {
		first := findFirst(t, func(n *html.Node) bool { return isElement(n, "td") })
		if first != nil && nodeText(first) == "pronunciation guide" {
			if table != nil {
				return nil, fmt.Errorf("pronunciations: several tables")
			}
			table = t
		}
	}
	if table == nil {
		return nil, fmt.Errorf("pronunciations: table not found")
	}

	rows := tableRows(table)
	if len(rows) == 0 {
		return nil, fmt.Errorf("pronunciations: empty table")
	}
	var prons entry.Pronunciations
	for _, row := range rows[1:] {
		cells := findAll(row, func(n *html.Node) bool { return isElement(n, "td") })
		if len(cells) < 2 {
			return nil, fmt.Errorf("pronunciations: row with %d cells", len(cells))
		}
		prons.Set(nodeText(cells[0]), nodeText(cells[1]))
	}
	return prons, nil
}

// isSeparatorRow reports the per-definition delimiter: a row with no
// text content at all.
func isSeparatorRow(row *html.Node) bool {
	return nodeText(row) == ""
}

// parseDefinitions locates the definitions table by its black horizontal
// rule row and walks it as a state machine: header row, field rows,
// separator, repeat.
func (p *Parser) parseDefinitions(root *html.Node, id entry.EntryID, word string) (entry.Definitions, error) {
	var table *html.Node
	for _, t := range directChildTables(root) {
		rules := findAll(t, func(n *html.Node) bool {
			if !isElement(n, "tr") {
				return false
			}
			style, ok := attrVal(n, "style")
			return ok && separatorStyle.MatchString(style)
		})
		if len(rules) > 1 {
			return nil, fmt.Errorf("definitions: several horizontal rule rows")
		}
		if len(rules) == 1 {
			if table != nil {
				return nil, fmt.Errorf("definitions: several tables")
			}
			table = t
		}
	}
	if table == nil {
		return nil, fmt.Errorf("definitions: table not found")
	}

	var defs entry.Definitions
	rows := tableRows(table)
	i := 0
	for i < len(rows) {
		if isSeparatorRow(rows[i]) {
			i++
			continue
		}

		defn, isHeader, err := p.parseDefinitionHeader(rows[i], id, word)
		if err != nil {
			return nil, fmt.Errorf("definition header: %w", err)
		}
		if !isHeader {
			// A special-notes aside; skip to the next separator.
			for i < len(rows) && !isSeparatorRow(rows[i]) {
				i++
			}
			continue
		}
		i++

		for i < len(rows) && !isSeparatorRow(rows[i]) {
			cells := childElements(rows[i])
			if len(cells) == 0 {
				return nil, fmt.Errorf("definition %s: empty field row", defn.ID)
			}
			fieldHeader := cells[0]
			name := nodeText(fieldHeader)
			span := 1
			if v, ok := attrVal(fieldHeader, "rowspan"); ok {
				if n, err := strconv.Atoi(v); err == nil {
					span = n
				}
			}
			fieldRows := [][]*html.Node{cells}
			i++
			for k := 1; k < span && i < len(rows); k++ {
				fieldRows = append(fieldRows, childElements(rows[i]))
				i++
			}

			if err := p.decodeField(&defn, name, fieldRows, id); err != nil {
				return nil, fmt.Errorf("field %q: %w", name, err)
			}
		}

		defs = append(defs, defn)
	}
	return defs, nil
}

// parseDefinitionHeader decodes the one-cell row opening a definition
// block. A row with a different cell count is not a header; the caller
// treats the block as a special-notes aside.
func (p *Parser) parseDefinitionHeader(row *html.Node, id entry.EntryID, word string) (entry.EntryDefinition, bool, error) {
	cells := findAll(row, func(n *html.Node) bool { return isElement(n, "td") })
	if len(cells) != 1 {
		return entry.EntryDefinition{}, false, nil
	}
	cell := cells[0]

	defn := entry.EntryDefinition{ID: entry.DefaultDefinition}

	idTag, notUnique := findSingle(cell, func(n *html.Node) bool {
		if !isElement(n, "a") || !hasClass(n, "ord") {
			return false
		}
		name, ok := attrVal(n, "name")
		return ok && definitionIDRegexp.MatchString(name)
	})
	if notUnique {
		return entry.EntryDefinition{}, false, fmt.Errorf("several definition anchors")
	}
	if idTag != nil {
		name, _ := attrVal(idTag, "name")
		defn.ID = entry.DefinitionID(definitionIDRegexp.FindStringSubmatch(name)[1])
	}

	classesTag, notUnique := findSingle(cell, func(n *html.Node) bool {
		return isElement(n, "span") && attrIs(n, "style", "font-size:x-small")
	})
	if notUnique {
		return entry.EntryDefinition{}, false, fmt.Errorf("several class lists")
	}
	if classesTag != nil {
		text := nodeText(classesTag)
		m := classesRegexp.FindStringSubmatch(text)
		if m == nil {
			return entry.EntryDefinition{}, false, fmt.Errorf("invalid class list text %q", text)
		}
		defn.Classes = strings.Split(m[1], ", ")
	}

	commonTag, notUnique := findSingle(cell, func(n *html.Node) bool {
		return isElement(n, "img") && attrIs(n, "alt", "common Thai word")
	})
	if notUnique {
		return entry.EntryDefinition{}, false, fmt.Errorf("several common-word markers")
	}
	defn.IsCommon = commonTag != nil

	// A th2 span carries a composite spelling. When its text differs
	// from the canonical headword this definition is a super entry; its
	// children spell out the component sequence either way.
	superTag := findFirst(cell, func(n *html.Node) bool {
		return isElement(n, "span") && hasClass(n, "th2")
	})
	if superTag != nil {
		if text := nodeText(superTag); text != word {
			defn.SuperEntry = text
		}
		components, err := parseComponentSpans(superTag, id, word)
		if err != nil {
			return entry.EntryDefinition{}, false, err
		}
		defn.Components = components
	}

	return defn, true, nil
}

// parseComponentSpans decodes a composite spelling span: literal text
// equal to the headword is a self marker, entry links become references
// (the repetition character's own entry becomes a repetition marker),
// anything else is a parse error.
func parseComponentSpans(span *html.Node, id entry.EntryID, word string) (entry.Components, error) {
	var components entry.Components
	for c := span.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case c.Type == html.TextNode && strings.TrimSpace(c.Data) == "":
			continue
		case c.Type == html.TextNode && c.Data == word:
			components = append(components, entry.SelfMarker{})
		case isElement(c, "a"):
			href, _ := attrVal(c, "href")
			ref, ok := entry.ParseEntryURL(href, id)
			if !ok {
				return nil, fmt.Errorf("bad component link %q", href)
			}
			if ref.ID == entry.RepetitionEntryID && ref.Definition == "" {
				components = append(components, entry.RepetitionMarker{})
			} else {
				components = append(components, entry.ComponentRef{Ref: ref})
			}
		default:
			return nil, fmt.Errorf("unknown component node %q", nodeText(c))
		}
	}
	return components, nil
}

// decodeField dispatches one named field block. Unknown names are
// logged and skipped so that new site fields do not break parsing.
func (p *Parser) decodeField(defn *entry.EntryDefinition, name string, rows [][]*html.Node, id entry.EntryID) error {
	switch name {
	case "definition":
		text, err := singleCellText(rows)
		if err != nil {
			return err
		}
		defn.Definition = text
	case "categories":
		cats, err := parseCategories(rows)
		if err != nil {
			return err
		}
		defn.Categories = cats
	case "components":
		refs, err := parseEntryList(rows, id)
		if err != nil {
			return err
		}
		// A components field row is authoritative: it replaces any
		// span-derived list. Repetition links get the same marker
		// treatment as in the spelling span so pronunciation
		// substitution still recognizes them.
		components := make(entry.Components, 0, len(refs))
		for _, ref := range refs {
			if ref.ID == entry.RepetitionEntryID && ref.Definition == "" {
				components = append(components, entry.RepetitionMarker{})
			} else {
				components = append(components, entry.ComponentRef{Ref: ref})
			}
		}
		defn.Components = components
	case "classifier":
		refs, err := parseEntryList(rows, id)
		if err != nil {
			return err
		}
		defn.Classifiers = refs
	case "synonyms":
		refs, err := parseEntryList(rows, id)
		if err != nil {
			return err
		}
		defn.Synonyms = refs
	case "related words":
		refs, err := parseEntryList(rows, id)
		if err != nil {
			return err
		}
		defn.Related = refs
	case "image":
		if err := expectSingleRow(rows); err != nil {
			return err
		}
		img, notUnique := findSingle(rows[0][1], func(n *html.Node) bool { return isElement(n, "img") })
		if img == nil || notUnique {
			return fmt.Errorf("image tag not found")
		}
		src, _ := attrVal(img, "src")
		defn.ImageURL = src
	default:
		p.log.Debug("unknown definition field", "field", name)
	}
	return nil
}

func expectSingleRow(rows [][]*html.Node) error {
	if len(rows) != 1 {
		return fmt.Errorf("invalid row count %d", len(rows))
	}
	if len(rows[0]) != 2 {
		return fmt.Errorf("invalid cell count %d", len(rows[0]))
	}
	return nil
}

func singleCellText(rows [][]*html.Node) (string, error) {
	if err := expectSingleRow(rows); err != nil {
		return "", err
	}
	return nodeText(rows[0][1]), nil
}

// parseCategories splits each row's breadcrumb link on the site's
// " » " separator.
func parseCategories(rows [][]*html.Node) ([][]string, error) {
	var cats [][]string
	for _, row := range rows {
		if len(row) == 0 {
			return nil, fmt.Errorf("empty category row")
		}
		link, notUnique := findSingle(row[len(row)-1], func(n *html.Node) bool {
			return isElement(n, "a") && hasClass(n, "hy")
		})
		if link == nil || notUnique {
			return nil, fmt.Errorf("category link not found")
		}
		cats = append(cats, strings.Split(nodeText(link), " » "))
	}
	return cats, nil
}

// isEntryLink recognizes an anchor that points at another entry. Links
// carrying a ttid attribute hint at a subcomponent popup and are not
// entry references.
func isEntryLink(n *html.Node) bool {
	if !isElement(n, "a") || !hasAttr(n, "href") || hasAttr(n, "ttid") {
		return false
	}
	href, _ := attrVal(n, "href")
	return entry.IsEntryURL(href)
}

// parseEntryList extracts one entry reference per row, taking the first
// recognizable entry link in the row.
func parseEntryList(rows [][]*html.Node, id entry.EntryID) ([]entry.EntryRef, error) {
	var refs []entry.EntryRef
	for _, row := range rows {
		var link *html.Node
		for _, cell := range row {
			found, notUnique := findSingle(cell, isEntryLink)
			if notUnique {
				return nil, fmt.Errorf("several entry links in one cell")
			}
			if found != nil {
				link = found
				break
			}
		}
		if link == nil {
			return nil, fmt.Errorf("no entry link in row")
		}
		href, _ := attrVal(link, "href")
		ref, ok := entry.ParseEntryURL(href, id)
		if !ok {
			return nil, fmt.Errorf("bad entry link %q", href)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}
