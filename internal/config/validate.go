package config

import (
	"fmt"
	"net/url"
	"slices"

	"github.com/heartmarshall/eventsync/internal/domain"
)

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

var defaultReferers = []string{
	"https://www.google.com/",
	"https://www.bing.com/",
	"https://www.wix.com/",
	"https://duckduckgo.com/",
}

// DefaultInstruction is the prompt sent with every poster image.
const DefaultInstruction = "Extrahiere Fakten vom Plakat (Datum, Zeit, Preis, Ort). " +
	"Wenn das Bild KEIN Plakat ist oder KEINEN Text enthält, antworte NUR mit dem Wort 'SKIP'. " +
	"Sei sonst präzise und kurz."

var defaultRefusalPhrases = []string{
	"tut mir leid",
	"kann das bild nicht",
	"keine informationen",
	"entschuldigung",
}

// Validate performs business-rule validation on the loaded configuration and
// fills list defaults that struct tags cannot express.
// It must be called after loading; Load calls it automatically.
func (c *Config) Validate() error {
	c.applyDefaults()

	if c.Pacing.MinDelay < 0 || c.Pacing.MaxDelay < c.Pacing.MinDelay {
		return fmt.Errorf("pacing: max_delay (%s) must be >= min_delay (%s) >= 0", c.Pacing.MaxDelay, c.Pacing.MinDelay)
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0 (got %s)", c.HTTP.Timeout)
	}
	if c.Sync.MaxPages < 0 {
		return fmt.Errorf("sync.max_pages must be >= 0 (got %d)", c.Sync.MaxPages)
	}
	if c.Sync.MaxParallelSources <= 0 {
		return fmt.Errorf("sync.max_parallel_sources must be > 0 (got %d)", c.Sync.MaxParallelSources)
	}
	if c.Gate.RefreshAfter < 0 {
		return fmt.Errorf("gate.refresh_after must be >= 0 (got %s)", c.Gate.RefreshAfter)
	}
	if err := validateFields(c.Gate.RequiredFields); err != nil {
		return fmt.Errorf("gate.required_fields: %w", err)
	}
	if err := c.Enrichment.validate(); err != nil {
		return fmt.Errorf("enrichment: %w", err)
	}

	seen := make(map[string]bool, len(c.Sources))
	for i := range c.Sources {
		s := &c.Sources[i]
		if err := s.validate(); err != nil {
			return fmt.Errorf("sources[%d]: %w", i, err)
		}
		if seen[s.Name] {
			return fmt.Errorf("sources[%d]: duplicate name %q", i, s.Name)
		}
		seen[s.Name] = true
	}

	return nil
}

func (c *Config) applyDefaults() {
	if len(c.HTTP.UserAgents) == 0 {
		c.HTTP.UserAgents = defaultUserAgents
	}
	if len(c.HTTP.Referers) == 0 {
		c.HTTP.Referers = defaultReferers
	}
	if c.Enrichment.Instruction == "" {
		c.Enrichment.Instruction = DefaultInstruction
	}
	if len(c.Enrichment.RefusalPhrases) == 0 {
		c.Enrichment.RefusalPhrases = defaultRefusalPhrases
	}
	if c.Enrichment.Marker == "" {
		c.Enrichment.Marker = domain.DefaultEnrichmentMarker
	}
	if len(c.Sources) == 0 {
		c.Sources = DefaultSources()
	}
	for i := range c.Sources {
		c.Sources[i].applyDefaults()
	}
}

func (e *EnrichmentConfig) validate() error {
	if e.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests_per_second must be > 0 (got %v)", e.RequestsPerSecond)
	}
	if e.Burst <= 0 {
		return fmt.Errorf("burst must be > 0 (got %d)", e.Burst)
	}
	if e.MaxConcurrent <= 0 {
		return fmt.Errorf("max_concurrent must be > 0 (got %d)", e.MaxConcurrent)
	}
	if e.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0 (got %s)", e.Timeout)
	}
	if e.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be > 0 (got %d)", e.MaxTokens)
	}
	return nil
}

func (s *SourceConfig) validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	switch s.Kind {
	case KindMunicipal, KindNuliga, KindLigaportal, KindKinderwelt:
	default:
		return fmt.Errorf("source %q: unknown kind %q", s.Name, s.Kind)
	}
	u, err := url.Parse(s.StartURL)
	if err != nil || !u.IsAbs() {
		return fmt.Errorf("source %q: start_url must be an absolute URL (got %q)", s.Name, s.StartURL)
	}
	if s.MaxPages < 0 {
		return fmt.Errorf("source %q: max_pages must be >= 0 (got %d)", s.Name, s.MaxPages)
	}
	if err := validateFields(s.RequiredFields); err != nil {
		return fmt.Errorf("source %q: required_fields: %w", s.Name, err)
	}
	return nil
}

func validateFields(fields []string) error {
	for _, f := range fields {
		if !slices.Contains(domain.KnownFields, f) {
			return fmt.Errorf("unknown field %q (known: %v)", f, domain.KnownFields)
		}
	}
	return nil
}
