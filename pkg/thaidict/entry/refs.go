package entry

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// BaseURL is the dictionary site root.
const BaseURL = "http://www.thai-language.com"

// entryURLRegexp accepts full and partial entry URLs: an optional
// scheme/host prefix, an optional /id/<n> path, and an optional
// #def<id> fragment. Every part is optional, so the empty string
// matches with no captures; callers must check what was captured.
var entryURLRegexp = regexp.MustCompile(
	`^(?:(?:(?:https?://)?(?:www\.)?thai-language\.com)?/id/([0-9]+))?(?:#def([0-9]+[^?]*))?$`)

// ParseEntryURL extracts an entry reference from a site URL. Fragment-only
// URLs ("#def3") resolve against selfID when it is non-zero. Inputs that
// do not look like an entry URL at all return ok=false.
func ParseEntryURL(rawURL string, selfID EntryID) (EntryRef, bool) {
	m := entryURLRegexp.FindStringSubmatch(rawURL)
	if m == nil || (m[1] == "" && m[2] == "") {
		return EntryRef{}, false
	}
	id := selfID
	if m[1] != "" {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return EntryRef{}, false
		}
		id = EntryID(n)
	}
	if id == 0 {
		return EntryRef{}, false
	}
	return EntryRef{ID: id, Definition: DefinitionID(m[2])}, true
}

// IsEntryURL reports whether href is a recognizable entry link.
func IsEntryURL(href string) bool {
	_, ok := ParseEntryURL(href, 1)
	return ok
}

// ParseRef parses the "id" or "id#definition" reference form.
func ParseRef(raw string) (EntryRef, bool) {
	idPart, defPart, _ := strings.Cut(raw, "#")
	n, err := strconv.Atoi(idPart)
	if err != nil || n <= 0 {
		return EntryRef{}, false
	}
	return EntryRef{ID: EntryID(n), Definition: DefinitionID(defPart)}, true
}

// EntryURL builds the canonical outbound URL for a reference. The
// definition fragment is omitted for the default or unspecified sense.
func EntryURL(ref EntryRef) string {
	url := fmt.Sprintf("http://thai-language.com/id/%d", ref.ID)
	if ref.Definition == "" || ref.Definition == DefaultDefinition {
		return url
	}
	return fmt.Sprintf("%s#def%s", url, ref.Definition)
}
