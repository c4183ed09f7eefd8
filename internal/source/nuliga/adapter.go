// Package nuliga parses a handball court schedule: month pages whose rows are
// complete fixtures, linked by a month sub-navigation.
package nuliga

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/heartmarshall/eventsync/internal/config"
	"github.com/heartmarshall/eventsync/internal/domain"
	"github.com/heartmarshall/eventsync/internal/extract"
)

const (
	scheduleTable = "table.result-set"
	monthLinks    = "#sub-navigation li a"
	minCells      = 8
)

// Column positions in the schedule table.
const (
	colDate     = 1
	colTime     = 2
	colGameID   = 3
	colAgeClass = 4
	colHome     = 6
	colGuest    = 7
)

// Adapter implements listing parsing for the schedule.
type Adapter struct {
	name     string
	startURL string
	location string
	tags     []string
	ageClass []string
}

// New creates an Adapter from its source configuration.
func New(cfg config.SourceConfig) (*Adapter, error) {
	if cfg.StartURL == "" {
		return nil, fmt.Errorf("nuliga: start url is required")
	}
	return &Adapter{
		name:     cfg.Name,
		startURL: cfg.StartURL,
		location: cfg.FixedLocation,
		tags:     slices.Clone(cfg.FixedTags),
		ageClass: cfg.AgeClassWhitelist,
	}, nil
}

func (a *Adapter) Name() string     { return a.name }
func (a *Adapter) StartURL() string { return a.startURL }

// ParseListing reads fixtures of whitelisted age classes. The date cell is
// only filled on the first fixture of a day and carries over to later rows.
func (a *Adapter) ParseListing(doc *goquery.Document, pageURL *url.URL) (domain.Listing, error) {
	tbl := doc.Find(scheduleTable).First()
	if tbl.Length() == 0 {
		return domain.Listing{}, fmt.Errorf("nuliga: schedule table: %w", domain.ErrNotFound)
	}

	var (
		listing domain.Listing
		curDate string
	)
	tbl.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() < minCells {
			return
		}
		cell := func(i int) string { return extract.Text(cells.Eq(i), "") }

		if d := cell(colDate); d != "" {
			curDate = d
		}
		if curDate == "" {
			return
		}
		ak := cell(colAgeClass)
		if !a.allowed(ak) {
			return
		}
		gid := cell(colGameID)
		if gid == "" {
			return
		}
		home, guest := cell(colHome), cell(colGuest)

		listing.Rows = append(listing.Rows, domain.Row{
			Key:      a.startURL + "#match-" + gid,
			Title:    home + " - " + guest,
			RawDate:  curDate,
			Location: a.location,
			Inline: &domain.Detail{
				Tags:        slices.Clone(a.tags),
				TimeOfDay:   strings.TrimSpace(strings.ReplaceAll(cell(colTime), "v", "")),
				Description: fmt.Sprintf("Liga: %s\nHeim: %s\nGast: %s", ak, home, guest),
			},
		})
	})

	doc.Find(monthLinks).Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			if u := extract.Resolve(pageURL, href); u != "" {
				listing.Links = append(listing.Links, u)
			}
		}
	})

	return listing, nil
}

func (a *Adapter) allowed(ageClass string) bool {
	for _, w := range a.ageClass {
		if strings.Contains(ageClass, w) {
			return true
		}
	}
	return false
}
