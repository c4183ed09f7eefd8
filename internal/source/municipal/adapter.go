// Package municipal parses the town's event calendar: a paginated listing
// table whose rows link to detail pages.
package municipal

import (
	"fmt"
	"net/url"

	"github.com/PuerkitoBio/goquery"

	"github.com/heartmarshall/eventsync/internal/config"
	"github.com/heartmarshall/eventsync/internal/domain"
	"github.com/heartmarshall/eventsync/internal/extract"
)

const (
	listingTable     = "table.vazusatzinfo_tabelle"
	nextLink         = `a[rel="Next"]`
	subtitleSelector = "small.d-block.text-muted"
	timeSelector     = ".bemContainer--appointmentInfo .bemContainer--time"
	srOnlySelector   = ".sr-only"
)

var contentSelectors = []string{"#content", ".main-content", "body"}

// Adapter implements the listing and detail parsing of the calendar.
type Adapter struct {
	name      string
	startURL  string
	minTagLen int
	rules     []extract.TagRule
}

// New creates an Adapter from its source configuration.
func New(cfg config.SourceConfig) (*Adapter, error) {
	if _, err := url.Parse(cfg.StartURL); err != nil {
		return nil, fmt.Errorf("municipal: start url: %w", err)
	}
	rules := []extract.TagRule{
		extract.TitlePrefixRule{Table: cfg.TitleTags, Separator: cfg.TitleSeparator},
		extract.SubtitleRule{Selector: subtitleSelector, Boilerplate: cfg.SubtitleBoilerplate},
	}
	if len(cfg.FixedTags) > 0 {
		rules = append(rules, extract.FixedRule(cfg.FixedTags))
	}
	return &Adapter{
		name:      cfg.Name,
		startURL:  cfg.StartURL,
		minTagLen: cfg.MinTagLength,
		rules:     rules,
	}, nil
}

func (a *Adapter) Name() string     { return a.name }
func (a *Adapter) StartURL() string { return a.startURL }

// ParseListing reads the date, linked title and location of every table row
// and the single "next page" link.
func (a *Adapter) ParseListing(doc *goquery.Document, pageURL *url.URL) (domain.Listing, error) {
	tbl := doc.Find(listingTable).First()
	if tbl.Length() == 0 {
		return domain.Listing{}, fmt.Errorf("municipal: listing table: %w", domain.ErrNotFound)
	}

	var listing domain.Listing
	tbl.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() < 3 {
			return
		}
		link := cells.Eq(1).Find("a").First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		key := extract.Resolve(pageURL, href)
		if key == "" {
			return
		}
		listing.Rows = append(listing.Rows, domain.Row{
			Key:      key,
			Title:    extract.Text(link, ""),
			RawDate:  extract.Text(cells.Eq(0), ""),
			Location: extract.Text(cells.Eq(2), ""),
		})
	})

	if href, ok := doc.Find(nextLink).First().Attr("href"); ok {
		if next := extract.Resolve(pageURL, href); next != "" {
			listing.Links = append(listing.Links, next)
		}
	}

	return listing, nil
}

// ParseDetail extracts tags, images, time of day and description.
// Absent page elements leave their field empty and are listed in Missing.
func (a *Adapter) ParseDetail(doc *goquery.Document, pageURL *url.URL, row domain.Row) domain.Detail {
	content := extract.FirstMatch(doc, contentSelectors...)

	var d domain.Detail
	d.Tags = extract.DeriveTags(extract.TagInput{Title: row.Title, Doc: doc}, a.minTagLen, a.rules...)

	if ts := content.Find(timeSelector).First(); ts.Length() > 0 {
		d.TimeOfDay = extract.TextWithout(ts, srOnlySelector, " ")
	}

	images := extract.SelectImages(doc, content, pageURL)
	d.PrimaryImage = images.Primary
	d.ImageURLs = images.URLs

	d.Description = extract.Text(content, "\n")

	if d.TimeOfDay == "" {
		d.Missing = append(d.Missing, domain.FieldTimeOfDay)
	}
	if len(d.Tags) == 0 {
		d.Missing = append(d.Missing, domain.FieldTags)
	}
	if len(d.ImageURLs) == 0 {
		d.Missing = append(d.Missing, domain.FieldImages)
	}
	if d.Description == "" {
		d.Missing = append(d.Missing, domain.FieldDescription)
	}
	return d
}
