// Package ligaportal parses a football club's fixture list. It is a single
// page; only home games are kept.
package ligaportal

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/heartmarshall/eventsync/internal/config"
	"github.com/heartmarshall/eventsync/internal/domain"
	"github.com/heartmarshall/eventsync/internal/extract"
)

const (
	scheduleTable   = "table.teamSchedule"
	fallbackKeyBase = "https://ligaportal.at/match/"
)

var kickoffPattern = regexp.MustCompile(`^\d{1,2}:\d{2}$`)

// Adapter implements listing parsing for the fixture list.
type Adapter struct {
	name         string
	startURL     string
	location     string
	tags         []string
	homeFilter   []string
	league       string
	defaultImage string
}

// New creates an Adapter from its source configuration.
func New(cfg config.SourceConfig) (*Adapter, error) {
	if cfg.StartURL == "" {
		return nil, fmt.Errorf("ligaportal: start url is required")
	}
	return &Adapter{
		name:         cfg.Name,
		startURL:     cfg.StartURL,
		location:     cfg.FixedLocation,
		tags:         slices.Clone(cfg.FixedTags),
		homeFilter:   cfg.HomeTeamFilter,
		league:       cfg.League,
		defaultImage: cfg.DefaultImage,
	}, nil
}

func (a *Adapter) Name() string     { return a.name }
func (a *Adapter) StartURL() string { return a.startURL }

// ParseListing walks the schedule: header rows (a <strong> in a colspan cell)
// set the current date, game rows below it become fixtures. The score cell
// holds the kickoff time until the game is played.
func (a *Adapter) ParseListing(doc *goquery.Document, pageURL *url.URL) (domain.Listing, error) {
	tbl := doc.Find(scheduleTable).First()
	if tbl.Length() == 0 {
		return domain.Listing{}, fmt.Errorf("ligaportal: schedule table: %w", domain.ErrNotFound)
	}

	var (
		listing domain.Listing
		curDate string
	)
	tbl.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if tr.Find("strong").Length() > 0 && tr.Find("td[colspan]").Length() > 0 {
			if d := domain.FindRawDate(extract.Text(tr, "")); d != "" {
				curDate = d
				return
			}
		}
		if !tr.HasClass("game-row") || curDate == "" {
			return
		}

		homeTD := tr.Find("td.team.text-right").First()
		guestTD := tr.Find("td.team.text-left").First()
		if homeTD.Length() == 0 || guestTD.Length() == 0 {
			return
		}
		home, guest := extract.Text(homeTD, ""), extract.Text(guestTD, "")
		if !a.isHome(home) {
			return
		}

		var kickoff string
		if score := extract.Text(tr.Find("td.score").First(), ""); kickoffPattern.MatchString(score) {
			kickoff = score
		}

		key := ""
		if href, ok := tr.Find("td.button-holder a").First().Attr("href"); ok {
			key = extract.Resolve(pageURL, href)
		}
		if key == "" {
			key = fallbackKey(curDate, home)
		}

		var images []string
		if a.defaultImage != "" {
			images = []string{a.defaultImage}
		}

		listing.Rows = append(listing.Rows, domain.Row{
			Key:      key,
			Title:    fmt.Sprintf("Fussball: %s vs. %s", home, guest),
			RawDate:  curDate,
			Location: a.location,
			Inline: &domain.Detail{
				Tags:         slices.Clone(a.tags),
				ImageURLs:    images,
				PrimaryImage: a.defaultImage,
				TimeOfDay:    kickoff,
				Description:  fmt.Sprintf("Heim: %s\nGast: %s\nLiga: %s", home, guest, a.league),
			},
		})
	})

	return listing, nil
}

func (a *Adapter) isHome(team string) bool {
	for _, f := range a.homeFilter {
		if strings.Contains(team, f) {
			return true
		}
	}
	return false
}

func fallbackKey(date, home string) string {
	sum := md5.Sum([]byte(date + home))
	return fallbackKeyBase + hex.EncodeToString(sum[:])
}
