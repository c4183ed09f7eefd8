package config

import (
	"slices"
	"time"
)

// Config is the root application configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Log        LogConfig        `yaml:"log"`
	HTTP       HTTPConfig       `yaml:"http"`
	Pacing     PacingConfig     `yaml:"pacing"`
	Gate       GateConfig       `yaml:"gate"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Sync       SyncConfig       `yaml:"sync"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Sources    []SourceConfig   `yaml:"sources"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"                env:"DATABASE_DSN"                env-required:"true"`
	MaxConns        int32         `yaml:"max_conns"          env:"DATABASE_MAX_CONNS"          env-default:"10"`
	MinConns        int32         `yaml:"min_conns"          env:"DATABASE_MIN_CONNS"          env-default:"1"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"  env:"DATABASE_MAX_CONN_LIFETIME"  env-default:"1h"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time" env:"DATABASE_MAX_CONN_IDLE_TIME" env-default:"30m"`
	ApplicationName string        `yaml:"application_name"   env:"DATABASE_APPLICATION_NAME"   env-default:"eventsync"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// HTTPConfig holds settings of the page fetcher.
type HTTPConfig struct {
	Timeout        time.Duration `yaml:"timeout"         env:"HTTP_TIMEOUT"         env-default:"15s"`
	UserAgents     []string      `yaml:"user_agents"     env:"HTTP_USER_AGENTS"     env-separator:"|"`
	Referers       []string      `yaml:"referers"        env:"HTTP_REFERERS"        env-separator:"|"`
	AcceptLanguage string        `yaml:"accept_language" env:"HTTP_ACCEPT_LANGUAGE" env-default:"de-DE,de;q=0.9"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"  env:"HTTP_MAX_BODY_BYTES"  env-default:"10485760"`
}

// PacingConfig bounds the jittered pause before every page and detail fetch.
type PacingConfig struct {
	MinDelay time.Duration `yaml:"min_delay" env:"PACING_MIN_DELAY" env-default:"2s"`
	MaxDelay time.Duration `yaml:"max_delay" env:"PACING_MAX_DELAY" env-default:"5s"`
}

// GateConfig is the skip policy of the fingerprint gate.
type GateConfig struct {
	// ForceRefresh disables skipping of unchanged rows.
	ForceRefresh   bool          `yaml:"force_refresh"   env:"GATE_FORCE_REFRESH"`
	RefreshAfter   time.Duration `yaml:"refresh_after"   env:"GATE_REFRESH_AFTER"   env-default:"0s"`
	RequiredFields []string      `yaml:"required_fields" env:"GATE_REQUIRED_FIELDS"`
}

// EnrichmentConfig holds vision-model settings.
type EnrichmentConfig struct {
	Disabled          bool          `yaml:"disabled"            env:"ENRICH_DISABLED"`
	APIKey            string        `yaml:"api_key"             env:"ANTHROPIC_API_KEY"`
	Model             string        `yaml:"model"               env:"ENRICH_MODEL"               env-default:"claude-sonnet-4-5"`
	BaseURL           string        `yaml:"base_url"            env:"ENRICH_BASE_URL"`
	Instruction       string        `yaml:"instruction"         env:"ENRICH_INSTRUCTION"`
	Sentinel          string        `yaml:"sentinel"            env:"ENRICH_SENTINEL"            env-default:"SKIP"`
	RefusalPhrases    []string      `yaml:"refusal_phrases"     env:"ENRICH_REFUSAL_PHRASES"     env-separator:"|"`
	Marker            string        `yaml:"marker"              env:"ENRICH_MARKER"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"ENRICH_REQUESTS_PER_SECOND" env-default:"0.5"`
	Burst             int           `yaml:"burst"               env:"ENRICH_BURST"               env-default:"1"`
	MaxConcurrent     int64         `yaml:"max_concurrent"      env:"ENRICH_MAX_CONCURRENT"      env-default:"2"`
	Timeout           time.Duration `yaml:"timeout"             env:"ENRICH_TIMEOUT"             env-default:"30s"`
	MaxTokens         int64         `yaml:"max_tokens"          env:"ENRICH_MAX_TOKENS"          env-default:"300"`
}

// SyncConfig holds traversal limits.
type SyncConfig struct {
	MaxPages           int  `yaml:"max_pages"            env:"SYNC_MAX_PAGES"            env-default:"20"`
	FirstPageOnly      bool `yaml:"first_page_only"      env:"SYNC_FIRST_PAGE_ONLY"      env-default:"false"`
	MaxParallelSources int  `yaml:"max_parallel_sources" env:"SYNC_MAX_PARALLEL_SOURCES" env-default:"3"`
}

// MetricsConfig holds Prometheus Pushgateway settings. An empty URL disables pushing.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url" env:"METRICS_PUSHGATEWAY_URL"`
	Job            string `yaml:"job"             env:"METRICS_JOB"             env-default:"eventsync"`
}

// PageBudget returns the number of listing pages a source may fetch.
// Zero means unlimited.
func (c *Config) PageBudget(src SourceConfig) int {
	if c.Sync.FirstPageOnly {
		return 1
	}
	if src.MaxPages > 0 {
		return src.MaxPages
	}
	return c.Sync.MaxPages
}

// EnabledSources returns the sources that are not disabled, optionally
// restricted to the given names.
func (c *Config) EnabledSources(only ...string) []SourceConfig {
	var out []SourceConfig
	for _, s := range c.Sources {
		if s.Disabled {
			continue
		}
		if len(only) > 0 && !slices.Contains(only, s.Name) {
			continue
		}
		out = append(out, s)
	}
	return out
}
