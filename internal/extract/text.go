// Package extract holds the HTML field-extraction rules shared by the source
// adapters: text flattening, tag derivation and image selection.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Text returns the trimmed, non-empty text nodes under sel joined by sep.
// Script and style contents are ignored.
func Text(sel *goquery.Selection, sep string) string {
	var parts []string
	for _, n := range sel.Nodes {
		collectText(n, &parts)
	}
	return strings.Join(parts, sep)
}

// TextWithout is Text on a copy of sel from which every element matching
// removeSelector has been dropped. sel itself is left untouched.
func TextWithout(sel *goquery.Selection, removeSelector, sep string) string {
	clone := sel.Clone()
	clone.Find(removeSelector).Remove()
	return Text(clone, sep)
}

// FirstMatch returns the first selector that matches anything in doc, in
// order of preference. The returned selection is empty when none match.
func FirstMatch(doc *goquery.Document, selectors ...string) *goquery.Selection {
	for _, s := range selectors {
		if sel := doc.Find(s).First(); sel.Length() > 0 {
			return sel
		}
	}
	return doc.Find("__none__")
}

func collectText(n *html.Node, parts *[]string) {
	switch n.Type {
	case html.TextNode:
		if t := strings.TrimSpace(n.Data); t != "" {
			*parts = append(*parts, t)
		}
		return
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Template, atom.Noscript:
			return
		}
	case html.CommentNode:
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}
