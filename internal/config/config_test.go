package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carepoint/council-controller/internal/guardrail"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "carepoint.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault_Valid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_NoFile(t *testing.T) {
	t.Setenv("GUARDRAIL_MODE", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, guardrail.ModeBlocking, cfg.Guardrails.Mode)
	assert.Equal(t, 50, cfg.Guardrails.MaxWords)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
database: /tmp/cp.db
guardrails:
  mode: advisory
  max_words: 40
routing:
  visual_lane: true
experts:
  timeout: 5s
synthesis:
  order: [medgemma, gemini-flash]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/cp.db", cfg.Database)
	assert.Equal(t, guardrail.ModeAdvisory, cfg.Guardrails.Mode)
	assert.Equal(t, 40, cfg.Guardrails.MaxWords)
	assert.True(t, cfg.Routing.VisualLane)
	assert.Equal(t, 5*time.Second, cfg.Experts.Timeout)
	assert.Equal(t, []string{"medgemma", "gemini-flash"}, cfg.Synthesis.Order)
	// untouched sections keep their defaults
	assert.Equal(t, "gemini-flash", cfg.Experts.Fast)
	assert.Len(t, cfg.Experiments, 2)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "guardrails:\n  mode: advisory\n")
	t.Setenv("GUARDRAIL_MODE", "blocking")
	t.Setenv("CAREPOINT_DB", "env.db")
	t.Setenv("GOOGLE_API_KEY", "k")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, guardrail.ModeBlocking, cfg.Guardrails.Mode)
	assert.Equal(t, "env.db", cfg.Database)
	assert.Equal(t, "k", cfg.GenAIAPIKey)
}

func TestLoad_Empty(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default().Database, cfg.Database)
}

func TestLoad_UnknownField(t *testing.T) {
	_, err := Load(writeConfig(t, "guardrail:\n  mode: advisory\n"))
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown mode", func(c *Config) { c.Guardrails.Mode = "lenient" }},
		{"unknown provider", func(c *Config) { c.Backends[0].Provider = "openai" }},
		{"missing model", func(c *Config) { c.Backends[0].Model = "" }},
		{"duplicate backend", func(c *Config) { c.Backends = append(c.Backends, c.Backends[0]) }},
		{"undeclared expert", func(c *Config) { c.Experts.Fast = "gpt" }},
		{"council too large", func(c *Config) { c.Experts.Council = []string{"gemini-flash", "gemini-pro", "medgemma", "gemini-flash"} }},
		{"undeclared composer", func(c *Config) { c.Synthesis.Order = []string{"claude"} }},
		{"unknown variant", func(c *Config) { c.Experiments[0].Variants[0].Variant = "shouty" }},
		{"bad threshold", func(c *Config) { c.Thresholds[0].WarningLevel = 2 }},
		{"unknown embedder", func(c *Config) { c.Knowledge.Embedder = "bert" }},
		{"unknown scorer", func(c *Config) { c.Scorer = "judge" }},
		{"sensitive percent", func(c *Config) { c.Routing.SensitivePercent = 120 }},
		{"repeated council member", func(c *Config) { c.Experts.Council = []string{"gemini-flash", "gemini-flash", "gemini-flash"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestBackendLookup(t *testing.T) {
	cfg := Default()
	b, ok := cfg.Backend("medgemma")
	require.True(t, ok)
	assert.Equal(t, ProviderCodec, b.Provider)

	_, ok = cfg.Backend("nope")
	assert.False(t, ok)
	assert.True(t, cfg.UsesProvider(ProviderCodec))
}
