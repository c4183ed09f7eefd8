//go:build e2e

package e2e_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// siteServer serves a municipal event calendar whose pages can be swapped
// between runs and counts every request per path.
// ---------------------------------------------------------------------------

type siteServer struct {
	*httptest.Server

	mu    sync.Mutex
	pages map[string]string
	hits  map[string]int
}

func newSiteServer(t *testing.T) *siteServer {
	t.Helper()
	s := &siteServer{pages: make(map[string]string), hits: make(map[string]int)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.hits[r.URL.RequestURI()]++
		body, ok := s.pages[r.URL.RequestURI()]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *siteServer) set(path, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[path] = body
}

func (s *siteServer) count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *siteServer) resetHits() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits = make(map[string]int)
}

func (s *siteServer) serveCalendar(exhibitionLocation, exhibitionText string) {
	s.set("/Veranstaltungen", listingPage(
		listingRow("15.03.2025", "/Veranstaltungen/Flohmarkt", "Flohmarkt: Frühjahr", "Hauptplatz"),
		"/Veranstaltungen?page=2",
	))
	s.set("/Veranstaltungen?page=2", listingPage(
		listingRow("22.03.2025", "/Veranstaltungen/Ausstellung", "Ausstellung: Malerei", exhibitionLocation),
		"",
	))
	s.set("/Veranstaltungen/Flohmarkt", detailPage("Flohmarkt: Frühjahr", "/media/flohmarkt.html", "Stöbern am Hauptplatz."))
	s.set("/Veranstaltungen/Ausstellung", detailPage("Ausstellung: Malerei", "/system/web/GetImage.ashx?fileid=7", exhibitionText))
}

func listingPage(rows, next string) string {
	nav := ""
	if next != "" {
		nav = fmt.Sprintf(`<a rel="Next" href="%s">Weiter</a>`, next)
	}
	return `<html><body><table class="vazusatzinfo_tabelle">
<tr><th>Datum</th><th>Veranstaltung</th><th>Ort</th></tr>` + rows + `</table>` + nav + `</body></html>`
}

func listingRow(date, href, title, location string) string {
	return fmt.Sprintf(`<tr><td>%s</td><td><a href="%s">%s</a></td><td>%s</td></tr>`, date, href, title, location)
}

func detailPage(title, image, text string) string {
	og := ""
	if image != "" {
		og = fmt.Sprintf(`<meta property="og:image" content="%s">`, image)
	}
	return `<html><head>` + og + `</head><body><div id="content">
<small class="d-block text-muted">Veranstaltungen - Stadt, Kultur, ab</small>
<h1>` + title + `</h1>
<div class="bemContainer--appointmentInfo"><div class="bemContainer--time"><span class="sr-only">Uhrzeit:</span> 10:00 Uhr</div></div>
<p>` + text + `</p></div></body></html>`
}

// ---------------------------------------------------------------------------
// modelServer answers Messages API calls with a fixed text block.
// ---------------------------------------------------------------------------

type modelServer struct {
	*httptest.Server
	calls atomic.Int32
}

func newModelServer(t *testing.T, answer string) *modelServer {
	t.Helper()
	m := &modelServer{}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			http.NotFound(w, r)
			return
		}
		m.calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{
			"id": "msg_e2e",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-5",
			"content": [{"type": "text", "text": %q}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 10, "output_tokens": 5}
		}`, answer)
	}))
	t.Cleanup(m.Close)
	return m
}

// ---------------------------------------------------------------------------
// pushServer records pushes to the Pushgateway API.
// ---------------------------------------------------------------------------

type pushServer struct {
	*httptest.Server

	mu    sync.Mutex
	paths []string
}

func newPushServer(t *testing.T) *pushServer {
	t.Helper()
	p := &pushServer{}
	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.paths = append(p.paths, r.URL.Path)
		p.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(p.Close)
	return p
}

func (p *pushServer) pushed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.paths...)
}

// ---------------------------------------------------------------------------
// writeConfig renders a configuration file pointing every collaborator at the
// given test servers.
// ---------------------------------------------------------------------------

type configParams struct {
	DSN        string
	SourceName string
	SiteURL    string
	ModelURL   string
	PushURL    string
}

func writeConfig(t *testing.T, p configParams) string {
	t.Helper()

	var b strings.Builder
	fmt.Fprintf(&b, "database:\n  dsn: %q\n", p.DSN)
	b.WriteString("log:\n  level: debug\n  format: text\n")
	b.WriteString("http:\n  timeout: 5s\n")
	b.WriteString("pacing:\n  min_delay: 1ms\n  max_delay: 2ms\n")
	fmt.Fprintf(&b, "enrichment:\n  api_key: test-key\n  base_url: %q\n  requests_per_second: 100\n  burst: 10\n", p.ModelURL)
	fmt.Fprintf(&b, "metrics:\n  pushgateway_url: %q\n  job: eventsync-e2e\n", p.PushURL)
	fmt.Fprintf(&b, "sources:\n  - name: %s\n    kind: municipal\n    start_url: %q\n    base_url: %q\n",
		p.SourceName, p.SiteURL+"/Veranstaltungen", p.SiteURL)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}
