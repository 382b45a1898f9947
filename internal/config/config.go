package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig     `yaml:"store" mapstructure:"store"`
	Grobid     GrobidConfig    `yaml:"grobid" mapstructure:"grobid"`
	Anthropic  AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Enrich     EnrichConfig    `yaml:"enrich" mapstructure:"enrich"`
	Extractors ExtractorConfig `yaml:"extractors" mapstructure:"extractors"`
	Pipeline   PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Output     OutputConfig    `yaml:"output" mapstructure:"output"`
	Log        LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// GrobidConfig holds the GROBID service endpoint.
type GrobidConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// AnthropicConfig holds Anthropic API settings for the LLM extractor.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	// FirstPageChars bounds how much first-page text is sent per document.
	FirstPageChars int `yaml:"first_page_chars" mapstructure:"first_page_chars"`
}

// RegistryConfig configures one bibliographic registry.
type RegistryConfig struct {
	Name        string  `yaml:"name" mapstructure:"name"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst       int     `yaml:"burst" mapstructure:"burst"`
	MailTo      string  `yaml:"mailto" mapstructure:"mailto"`
	MaxAttempts int     `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// EnrichConfig configures external registry enrichment.
type EnrichConfig struct {
	Registries []RegistryConfig `yaml:"registries" mapstructure:"registries"`
	// MinMatchConfidence treats weaker registry matches as not-found so a
	// loosely similar title cannot override local extraction.
	MinMatchConfidence float64       `yaml:"min_match_confidence" mapstructure:"min_match_confidence"`
	InitialBackoff     time.Duration `yaml:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff         time.Duration `yaml:"max_backoff" mapstructure:"max_backoff"`
}

// ExtractorConfig fixes extractor priority order and timeouts.
type ExtractorConfig struct {
	// Priority is both the execution order and the reconciliation tie-break
	// order. Earlier-listed extractors win ties.
	Priority    []string `yaml:"priority" mapstructure:"priority"`
	TimeoutSecs int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// PipelineConfig configures corpus processing.
type PipelineConfig struct {
	Concurrency int  `yaml:"concurrency" mapstructure:"concurrency"`
	Resume      bool `yaml:"resume" mapstructure:"resume"`
}

// OutputConfig configures where run artifacts land.
type OutputConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// KnownExtractors are the extractor identifiers the pipeline can wire.
var KnownExtractors = map[string]bool{
	"grobid":   true,
	"docinfo":  true,
	"filename": true,
	"llm":      true,
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PAPERMETA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "papermeta.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("grobid.base_url", "http://localhost:8070")
	v.SetDefault("grobid.timeout_secs", 30)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.first_page_chars", 4000)
	v.SetDefault("extractors.priority", []string{"grobid", "docinfo", "filename", "llm"})
	v.SetDefault("extractors.timeout_secs", 60)
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("pipeline.resume", true)
	v.SetDefault("output.dir", "output")
	v.SetDefault("enrich.min_match_confidence", 0.6)
	v.SetDefault("enrich.initial_backoff", 500*time.Millisecond)
	v.SetDefault("enrich.max_backoff", 30*time.Second)
	v.SetDefault("enrich.registries", []map[string]any{
		{"name": "crossref", "base_url": "https://api.crossref.org", "rate_per_sec": 2, "burst": 2, "max_attempts": 3},
		{"name": "openalex", "base_url": "https://api.openalex.org", "rate_per_sec": 5, "burst": 5, "max_attempts": 3},
	})

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate fails fast on configuration that would invalidate every record.
// It runs before any document processing begins.
func (c *Config) Validate() error {
	if len(c.Extractors.Priority) == 0 {
		return eris.New("config: extractors.priority must not be empty")
	}
	seen := make(map[string]bool)
	for _, name := range c.Extractors.Priority {
		if !KnownExtractors[name] {
			return eris.Errorf("config: unknown extractor %q", name)
		}
		if seen[name] {
			return eris.Errorf("config: extractor %q listed twice", name)
		}
		seen[name] = true
	}
	if len(c.Enrich.Registries) == 0 {
		return eris.New("config: enrich.registries must not be empty")
	}
	for _, r := range c.Enrich.Registries {
		if r.Name == "" || r.BaseURL == "" {
			return eris.Errorf("config: registry %q needs name and base_url", r.Name)
		}
	}
	if c.Enrich.MinMatchConfidence < 0 || c.Enrich.MinMatchConfidence > 1 {
		return eris.Errorf("config: enrich.min_match_confidence %v outside [0,1]", c.Enrich.MinMatchConfidence)
	}
	if c.Pipeline.Concurrency < 1 {
		return eris.Errorf("config: pipeline.concurrency %d must be >= 1", c.Pipeline.Concurrency)
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	return nil
}

// Redacted returns a copy safe to write into run artifacts, with credentials
// blanked.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Anthropic.Key != "" {
		out.Anthropic.Key = "[redacted]"
	}
	out.Store.DatabaseURL = redactDSN(out.Store.DatabaseURL)
	return &out
}

// redactDSN strips the password from a URL-style DSN. Non-URL DSNs (sqlite
// file paths) pass through unchanged.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, has := u.User.Password(); has {
		u.User = url.UserPassword(u.User.Username(), "redacted")
	}
	return u.String()
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
