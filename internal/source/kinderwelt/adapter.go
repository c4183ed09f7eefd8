// Package kinderwelt reads a community-club blog. Its front page carries
// free-text articles; a text model turns each article into zero or more
// complete events.
package kinderwelt

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/heartmarshall/eventsync/internal/config"
	"github.com/heartmarshall/eventsync/internal/domain"
	"github.com/heartmarshall/eventsync/internal/extract"
)

const (
	blogContainer = ".blog-featured"
	articleItems  = `div[class*="leading-"]`
	articleTitle  = "h1.item-title"

	maxTextRunes = 2500
	maxImages    = 2
)

// DefaultInstruction asks for every upcoming event of one article as JSON.
const DefaultInstruction = `Analysiere diesen Webseiten-Text. Er kann MEHRERE verschiedene Veranstaltungen enthalten.
Extrahiere alle zukünftigen Events als JSON-Objekt in diesem Format:
{"events": [{"title": "Titel des Events", "date_iso": "YYYY-MM-DD", "time": "HH:MM oder null", "location": "Ort (kurz)", "description": "Zusammenfassung (max. 2 Sätze)"}]}
Regeln:
1. Ignoriere Rückblicke.
2. Wenn kein Event gefunden wird: {"events": []}
3. Nutze das aktuelle Jahr (oder das nächste), falls im Text nur Tag und Monat stehen.
Antworte NUR mit dem JSON.`

// ignoredImages are lower-case markers of inline data, spacers and icons.
var ignoredImages = []string{"data:image", "spacer.gif", "printbutton", "logo"}

// ErrNoModel is returned by ExtractRows when no text model is configured.
var ErrNoModel = errors.New("kinderwelt: no text model configured")

// TextModel reads events out of page text and images.
type TextModel interface {
	Extract(ctx context.Context, instruction, content string, imageURLs []string) (string, error)
}

// Adapter derives rows from blog articles through a TextModel.
type Adapter struct {
	name        string
	startURL    string
	location    string
	tags        []string
	instruction string
	model       TextModel
}

// New creates an Adapter. A nil model makes ExtractRows fail with ErrNoModel.
func New(cfg config.SourceConfig, model TextModel) (*Adapter, error) {
	if cfg.StartURL == "" {
		return nil, fmt.Errorf("kinderwelt: start url is required")
	}
	instruction := cfg.ExtractInstruction
	if instruction == "" {
		instruction = DefaultInstruction
	}
	return &Adapter{
		name:        cfg.Name,
		startURL:    cfg.StartURL,
		location:    cfg.FixedLocation,
		tags:        slices.Clone(cfg.FixedTags),
		instruction: instruction,
		model:       model,
	}, nil
}

func (a *Adapter) Name() string     { return a.name }
func (a *Adapter) StartURL() string { return a.startURL }

// ParseListing only checks that the blog is present. Rows come from
// ExtractRows; the blog has no further listing pages.
func (a *Adapter) ParseListing(doc *goquery.Document, pageURL *url.URL) (domain.Listing, error) {
	if _, err := a.articles(doc, pageURL); err != nil {
		return domain.Listing{}, err
	}
	return domain.Listing{}, nil
}

// PageHash hashes the article titles of the front page.
func (a *Adapter) PageHash(doc *goquery.Document) string {
	var b strings.Builder
	doc.Find(blogContainer).First().Find(articleItems).Each(func(_ int, s *goquery.Selection) {
		b.WriteString(extract.Text(s.Find(articleTitle).First(), ""))
		b.WriteByte('\n')
	})
	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// ExtractRows asks the model for the events of every article. Articles whose
// extraction fails are reported in the joined error; rows of the others are
// still returned.
func (a *Adapter) ExtractRows(ctx context.Context, doc *goquery.Document, pageURL *url.URL) (domain.Listing, error) {
	if a.model == nil {
		return domain.Listing{}, ErrNoModel
	}
	arts, err := a.articles(doc, pageURL)
	if err != nil {
		return domain.Listing{}, err
	}

	var (
		listing domain.Listing
		errs    []error
	)
	for _, art := range arts {
		events, err := a.extract(ctx, art)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return listing, ctxErr
			}
			errs = append(errs, fmt.Errorf("article %q: %w", art.title, err))
			continue
		}
		for _, ev := range events {
			if row, ok := a.row(art, ev); ok {
				listing.Rows = append(listing.Rows, row)
			}
		}
	}
	return listing, errors.Join(errs...)
}

// article is one blog post of the front page.
type article struct {
	title  string
	link   string
	text   string
	images []string
}

func (a *Adapter) articles(doc *goquery.Document, pageURL *url.URL) ([]article, error) {
	box := doc.Find(blogContainer).First()
	if box.Length() == 0 {
		return nil, fmt.Errorf("kinderwelt: blog container: %w", domain.ErrNotFound)
	}

	var out []article
	box.Find(articleItems).Each(func(i int, s *goquery.Selection) {
		h1 := s.Find(articleTitle).First()
		art := article{
			title: extract.Text(h1, ""),
			link:  pageURL.String(),
			text:  extract.Text(s, "\n"),
		}
		if art.title == "" {
			art.title = fmt.Sprintf("Beitrag %d", i)
		}
		if href, ok := h1.Find("a").First().Attr("href"); ok {
			if abs := extract.Resolve(pageURL, href); abs != "" {
				art.link = abs
			}
		}
		s.Find("img").Each(func(_ int, img *goquery.Selection) {
			src := strings.TrimSpace(img.AttrOr("src", ""))
			if src == "" || ignored(src) {
				return
			}
			abs := extract.Resolve(pageURL, src)
			if abs == "" || ignored(abs) || slices.Contains(art.images, abs) {
				return
			}
			art.images = append(art.images, abs)
		})
		out = append(out, art)
	})
	return out, nil
}

// extracted is one event as the model reports it.
type extracted struct {
	Title       string `json:"title"`
	DateISO     string `json:"date_iso"`
	Time        string `json:"time"`
	Location    string `json:"location"`
	Description string `json:"description"`
}

func (a *Adapter) extract(ctx context.Context, art article) ([]extracted, error) {
	images := art.images
	if len(images) > maxImages {
		images = images[:maxImages]
	}
	answer, err := a.model.Extract(ctx, a.instruction, truncate(art.text, maxTextRunes), images)
	if err != nil {
		return nil, err
	}

	raw, err := extractJSON(answer)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Events []extracted `json:"events"`
	}
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return resp.Events, nil
}

// row turns an extracted event into a complete row keyed by the article link
// plus a hash of date and title. Events without a valid date are dropped.
func (a *Adapter) row(art article, ev extracted) (domain.Row, bool) {
	dateISO := strings.TrimSpace(ev.DateISO)
	day, err := time.Parse(time.DateOnly, dateISO)
	if err != nil {
		return domain.Row{}, false
	}

	title := strings.TrimSpace(ev.Title)
	if title == "" {
		title = "Unbekannt"
	}
	location := strings.TrimSpace(ev.Location)
	if location == "" {
		location = a.location
	}
	clock := strings.TrimSpace(ev.Time)
	if strings.EqualFold(clock, "null") {
		clock = ""
	}

	sum := md5.Sum([]byte(dateISO + title))
	detail := &domain.Detail{
		Tags:        slices.Clone(a.tags),
		TimeOfDay:   clock,
		Description: strings.TrimSpace(ev.Description),
		ImageURLs:   slices.Clone(art.images),
	}
	if len(art.images) > 0 {
		detail.PrimaryImage = art.images[0]
	}

	return domain.Row{
		Key:      art.link + "#" + hex.EncodeToString(sum[:]),
		Title:    title,
		RawDate:  day.Format("02.01.2006"),
		Location: location,
		Inline:   detail,
	}, true
}

func ignored(src string) bool {
	l := strings.ToLower(src)
	for _, m := range ignoredImages {
		if strings.Contains(l, m) {
			return true
		}
	}
	return false
}

// extractJSON returns the text between the first '{' and the last '}'.
func extractJSON(s string) (string, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return "", fmt.Errorf("no JSON object in model answer")
	}
	return s[start : end+1], nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
