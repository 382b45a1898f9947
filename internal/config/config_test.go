package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Store: StoreConfig{Driver: "sqlite", DatabaseURL: "papermeta.db"},
		Extractors: ExtractorConfig{
			Priority: []string{"grobid", "docinfo", "filename", "llm"},
		},
		Enrich: EnrichConfig{
			Registries: []RegistryConfig{
				{Name: "crossref", BaseURL: "https://api.crossref.org"},
			},
			MinMatchConfidence: 0.6,
			InitialBackoff:     time.Second,
		},
		Pipeline: PipelineConfig{Concurrency: 4},
	}
}

func TestValidateOK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty priority", func(c *Config) { c.Extractors.Priority = nil }},
		{"unknown extractor", func(c *Config) { c.Extractors.Priority = []string{"psychic"} }},
		{"duplicate extractor", func(c *Config) { c.Extractors.Priority = []string{"grobid", "grobid"} }},
		{"no registries", func(c *Config) { c.Enrich.Registries = nil }},
		{"registry without url", func(c *Config) { c.Enrich.Registries[0].BaseURL = "" }},
		{"confidence out of range", func(c *Config) { c.Enrich.MinMatchConfidence = 1.5 }},
		{"zero concurrency", func(c *Config) { c.Pipeline.Concurrency = 0 }},
		{"unknown driver", func(c *Config) { c.Store.Driver = "oracle" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validConfig()
			tc.mutate(c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if len(cfg.Enrich.Registries) != 2 {
		t.Errorf("default registries = %v", cfg.Enrich.Registries)
	}
	if cfg.Extractors.Priority[0] != "grobid" {
		t.Errorf("default priority = %v", cfg.Extractors.Priority)
	}
}

func TestRedacted(t *testing.T) {
	c := validConfig()
	c.Anthropic.Key = "sk-secret"
	c.Store.DatabaseURL = "postgres://app:hunter2@db:5432/papermeta"

	r := c.Redacted()
	if r.Anthropic.Key != "[redacted]" {
		t.Errorf("key = %q", r.Anthropic.Key)
	}
	if r.Store.DatabaseURL != "postgres://app:redacted@db:5432/papermeta" {
		t.Errorf("dsn = %q", r.Store.DatabaseURL)
	}
	if c.Anthropic.Key != "sk-secret" {
		t.Error("redaction must not mutate the original")
	}
}

func TestRedactedLeavesFileDSN(t *testing.T) {
	c := validConfig()
	if got := c.Redacted().Store.DatabaseURL; got != "papermeta.db" {
		t.Errorf("sqlite path changed: %q", got)
	}
}
