package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/heartmarshall/eventsync/internal/domain"
)

// TagInput is what a TagRule may look at.
type TagInput struct {
	Title string
	Doc   *goquery.Document
}

// TagRule derives zero or more tags from an event page.
type TagRule interface {
	Tags(in TagInput) []string
}

// TitlePrefixRule maps the title part before Separator to a known tag,
// compared case-insensitively against Table. The table spelling wins.
type TitlePrefixRule struct {
	Table     []string
	Separator string
}

func (r TitlePrefixRule) Tags(in TagInput) []string {
	if r.Separator == "" || !strings.Contains(in.Title, r.Separator) {
		return nil
	}
	prefix := strings.TrimSpace(strings.SplitN(in.Title, r.Separator, 2)[0])
	for _, t := range r.Table {
		if strings.EqualFold(t, prefix) {
			return []string{t}
		}
	}
	return nil
}

// SubtitleRule reads a comma-separated category line, drops boilerplate
// phrases and returns the remaining tokens.
type SubtitleRule struct {
	Selector    string
	Boilerplate []string
}

func (r SubtitleRule) Tags(in TagInput) []string {
	if in.Doc == nil {
		return nil
	}
	sel := in.Doc.Find(r.Selector).First()
	if sel.Length() == 0 {
		return nil
	}
	text := Text(sel, "")
	for _, phrase := range r.Boilerplate {
		text = strings.ReplaceAll(text, phrase, "")
	}
	var out []string
	for _, part := range strings.Split(text, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// FixedRule always yields the same tags.
type FixedRule []string

func (r FixedRule) Tags(TagInput) []string { return r }

// DeriveTags applies every rule and returns the union, without tokens shorter
// than minLen runes, sorted.
func DeriveTags(in TagInput, minLen int, rules ...TagRule) []string {
	var all []string
	for _, r := range rules {
		for _, t := range r.Tags(in) {
			t = strings.TrimSpace(t)
			if utf8.RuneCountInString(t) < minLen {
				continue
			}
			all = append(all, t)
		}
	}
	return domain.NormalizeTags(all)
}
