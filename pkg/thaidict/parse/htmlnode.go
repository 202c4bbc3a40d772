package parse

import (
	"strings"

	"golang.org/x/net/html"
)

// Node predicates and traversal helpers over the x/net/html tree. The
// page layout is semi-trusted, so callers distinguish "find the first
// match" from "find exactly one match".

func isElement(n *html.Node, tag string) bool {
	return n != nil && n.Type == html.ElementNode && n.Data == tag
}

func attrVal(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func hasAttr(n *html.Node, key string) bool {
	_, ok := attrVal(n, key)
	return ok
}

func attrIs(n *html.Node, key, val string) bool {
	v, ok := attrVal(n, key)
	return ok && v == val
}

// hasClass matches a single token of the class attribute.
func hasClass(n *html.Node, class string) bool {
	v, ok := attrVal(n, "class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}
	return false
}

// nodeText concatenates all descendant text.
func nodeText(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return buf.String()
}

// childElements returns the direct element children.
func childElements(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

// findFirst returns the first descendant (depth-first, document order)
// satisfying pred, or nil.
func findFirst(n *html.Node, pred func(*html.Node) bool) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && pred(c) {
			return c
		}
		if found := findFirst(c, pred); found != nil {
			return found
		}
	}
	return nil
}

// findAll collects every descendant satisfying pred in document order.
// Matching nodes are not descended into.
func findAll(n *html.Node, pred func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && pred(c) {
				out = append(out, c)
				continue
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

// findSingle returns the sole descendant satisfying pred: (nil, false)
// when there is none, notUnique when there are several.
func findSingle(n *html.Node, pred func(*html.Node) bool) (match *html.Node, notUnique bool) {
	all := findAll(n, pred)
	switch len(all) {
	case 0:
		return nil, false
	case 1:
		return all[0], false
	default:
		return nil, true
	}
}

// tableRows returns the tr elements of a table in document order,
// looking through an implied tbody but not into nested tables.
func tableRows(table *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if isElement(c, "tr") {
				out = append(out, c)
				continue
			}
			if isElement(c, "table") {
				continue
			}
			walk(c)
		}
	}
	walk(table)
	return out
}

// directChildTables returns the table elements among n's direct
// children. Tables wrapped in intermediate elements are not page
// regions and are deliberately not picked up.
func directChildTables(n *html.Node) []*html.Node {
	var out []*html.Node
	for _, c := range childElements(n) {
		if isElement(c, "table") {
			out = append(out, c)
		}
	}
	return out
}

// StripTags returns the text content of an HTML fragment. Unparseable
// input is returned as-is.
func StripTags(s string) string {
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return s
	}
	return strings.TrimSpace(nodeText(doc))
}
