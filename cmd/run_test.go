package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/scrkit/papermeta/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", DatabaseURL: "test.db"},
		Anthropic: config.AnthropicConfig{
			Key:   "sk-secret",
			Model: "claude-haiku-4-5-20251001",
		},
		Enrich: config.EnrichConfig{
			MinMatchConfidence: 0.6,
			Registries: []config.RegistryConfig{
				{Name: "crossref", BaseURL: "https://api.crossref.org", RatePerSec: 2, Burst: 2},
				{Name: "openalex", BaseURL: "https://api.openalex.org", RatePerSec: 5, Burst: 5},
				{Name: "mystery", BaseURL: "https://example.org"},
			},
		},
		Extractors: config.ExtractorConfig{
			Priority: []string{"docinfo", "filename"},
		},
		Pipeline: config.PipelineConfig{Concurrency: 2},
		Output:   config.OutputConfig{Dir: "out"},
	}
}

func TestBuildRegistriesSkipsUnknown(t *testing.T) {
	cfg = testConfig()
	regs := buildRegistries()
	require.Len(t, regs, 2)
	assert.Equal(t, "crossref", regs[0].Name())
	assert.Equal(t, "openalex", regs[1].Name())
}

func TestWriteRunInfoRedactsSecrets(t *testing.T) {
	cfg = testConfig()
	runInput = "/corpus"
	dir := t.TempDir()

	require.NoError(t, writeRunInfo(dir, "run-123"))

	data, err := os.ReadFile(filepath.Join(dir, "run_info.yaml"))
	require.NoError(t, err)

	var info runInfo
	require.NoError(t, yaml.Unmarshal(data, &info))
	assert.Equal(t, "run-123", info.RunID)
	assert.Equal(t, "/corpus", info.InputDir)
	assert.Equal(t, "[redacted]", info.Config.Anthropic.Key)
	assert.NotContains(t, string(data), "sk-secret")
}
