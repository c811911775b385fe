package config

// #region imports
import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/carepoint/council-controller/internal/eval"
	"github.com/carepoint/council-controller/internal/experiment"
	"github.com/carepoint/council-controller/internal/expert"
	"github.com/carepoint/council-controller/internal/guardrail"
	"github.com/carepoint/council-controller/internal/logging"
	"github.com/carepoint/council-controller/internal/monitor"
	"github.com/carepoint/council-controller/internal/retrieval"
	"github.com/carepoint/council-controller/internal/router"
	"github.com/carepoint/council-controller/internal/synthesis"
)

// #endregion imports

// #region types

// Backend providers.
const (
	ProviderGenAI = "genai"
	ProviderCodec = "codec"
	ProviderNone  = "none"
)

// Backend declares one model the experts and composers can reference by name.
type Backend struct {
	Name        string  `yaml:"name"`
	Provider    string  `yaml:"provider"` // genai | codec
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	Structured  bool    `yaml:"structured"` // ask for a JSON opinion object
}

// Knowledge configures the medical knowledge base.
type Knowledge struct {
	SeedFile       string `yaml:"seed_file"`
	Embedder       string `yaml:"embedder"` // genai | codec | none
	EmbeddingModel string `yaml:"embedding_model"`
	TaskType       string `yaml:"task_type"`
	ScanLimit      int    `yaml:"scan_limit"`
}

// Persistence configures consultation storage.
type Persistence struct {
	Enabled bool          `yaml:"enabled"`
	Timeout time.Duration `yaml:"timeout"`
}

// Config is the full controller configuration. It is read once at startup
// and shared read-only.
type Config struct {
	Database    string                  `yaml:"database"`
	CodecAddr   string                  `yaml:"codec_addr"`
	GenAIAPIKey string                  `yaml:"-"`
	Logging     logging.Config          `yaml:"logging"`
	Backends    []Backend               `yaml:"backends"`
	Experts     expert.Config           `yaml:"experts"`
	Routing     router.Config           `yaml:"routing"`
	Retrieval   retrieval.Config        `yaml:"retrieval"`
	Knowledge   Knowledge               `yaml:"knowledge"`
	Synthesis   synthesis.Config        `yaml:"synthesis"`
	Guardrails  guardrail.Config        `yaml:"guardrails"`
	Evaluation  eval.Config             `yaml:"evaluation"`
	Scorer      string                  `yaml:"hallucination_scorer"` // codec | none
	Thresholds  []monitor.Threshold     `yaml:"thresholds"`
	Experiments []experiment.Experiment `yaml:"experiments"`
	Persistence Persistence             `yaml:"persistence"`
}

// #endregion types

// #region defaults

// Default returns the configuration the controller runs with when no file
// is given.
func Default() Config {
	return Config{
		Database:  "carepoint.db",
		CodecAddr: "localhost:50051",
		Logging:   logging.DefaultConfig(),
		Backends: []Backend{
			{Name: "gemini-flash", Provider: ProviderGenAI, Model: "gemini-2.0-flash", Temperature: 0.3, Structured: true},
			{Name: "gemini-pro", Provider: ProviderGenAI, Model: "gemini-2.5-pro", Temperature: 0.2, Structured: true},
			{Name: "medgemma", Provider: ProviderCodec, Model: "medgemma-4b-it"},
		},
		Experts:   expert.DefaultConfig(),
		Routing:   router.DefaultConfig(),
		Retrieval: retrieval.DefaultConfig(),
		Knowledge: Knowledge{
			Embedder:       ProviderGenAI,
			EmbeddingModel: "gemini-embedding-001",
			TaskType:       "RETRIEVAL_QUERY",
			ScanLimit:      100,
		},
		Synthesis:   synthesis.DefaultConfig(),
		Guardrails:  guardrail.DefaultConfig(),
		Evaluation:  eval.DefaultConfig(),
		Scorer:      ProviderCodec,
		Thresholds:  monitor.DefaultThresholds(),
		Experiments: experiment.DefaultExperiments(),
		Persistence: Persistence{Enabled: true, Timeout: 5 * time.Second},
	}
}

// #endregion defaults

// #region load

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	err := dec.Decode(cfg)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// applyEnv overrides file values with the deployment environment.
func (c *Config) applyEnv() {
	c.Database = envOr("CAREPOINT_DB", c.Database)
	c.CodecAddr = envOr("CODEC_ADDR", c.CodecAddr)
	c.GenAIAPIKey = envOr("GOOGLE_API_KEY", c.GenAIAPIKey)
	c.Guardrails.Mode = guardrail.Mode(envOr("GUARDRAIL_MODE", string(c.Guardrails.Mode)))
	c.Logging.Level = envOr("CAREPOINT_LOG_LEVEL", c.Logging.Level)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion load

// #region validate

// Validate rejects unknown modes, providers, backend references and
// experiment variants so they fail at startup instead of mid-request.
func (c Config) Validate() error {
	var errs []error

	if _, err := guardrail.ParseMode(string(c.Guardrails.Mode)); err != nil {
		errs = append(errs, err)
	}

	declared := make(map[string]Backend, len(c.Backends))
	for _, b := range c.Backends {
		if b.Name == "" {
			errs = append(errs, errors.New("backend without name"))
			continue
		}
		if _, dup := declared[b.Name]; dup {
			errs = append(errs, fmt.Errorf("backend %q declared twice", b.Name))
		}
		switch b.Provider {
		case ProviderGenAI, ProviderCodec:
		default:
			errs = append(errs, fmt.Errorf("backend %q: unknown provider %q", b.Name, b.Provider))
		}
		if b.Model == "" {
			errs = append(errs, fmt.Errorf("backend %q: model is required", b.Name))
		}
		declared[b.Name] = b
	}

	refs := []string{c.Experts.Fast, c.Experts.Visual}
	refs = append(refs, c.Experts.Council...)
	for _, name := range refs {
		if _, ok := declared[name]; !ok {
			errs = append(errs, fmt.Errorf("experts: undeclared backend %q", name))
		}
	}
	if len(c.Experts.Council) == 0 || len(c.Experts.Council) > 3 {
		errs = append(errs, fmt.Errorf("experts: council needs 1 to 3 members, got %d", len(c.Experts.Council)))
	}
	members := make(map[string]bool, len(c.Experts.Council))
	for _, name := range c.Experts.Council {
		if members[name] {
			errs = append(errs, fmt.Errorf("experts: council lists %q twice", name))
		}
		members[name] = true
	}
	for name, v := range c.Experts.Votes {
		if !v.Urgency.Valid() {
			errs = append(errs, fmt.Errorf("experts: vote for %q has unknown urgency %q", name, v.Urgency))
		}
	}
	for _, name := range c.Synthesis.Order {
		if _, ok := declared[name]; !ok {
			errs = append(errs, fmt.Errorf("synthesis: undeclared backend %q", name))
		}
	}

	if c.Routing.SensitivePercent < 0 || c.Routing.SensitivePercent > 100 {
		errs = append(errs, fmt.Errorf("routing: sensitive_percent %d outside [0,100]", c.Routing.SensitivePercent))
	}
	switch c.Knowledge.Embedder {
	case ProviderGenAI, ProviderCodec, ProviderNone:
	default:
		errs = append(errs, fmt.Errorf("knowledge: unknown embedder %q", c.Knowledge.Embedder))
	}
	switch c.Scorer {
	case ProviderCodec, ProviderNone:
	default:
		errs = append(errs, fmt.Errorf("unknown hallucination_scorer %q", c.Scorer))
	}

	if _, err := monitor.NewMonitor(c.Thresholds); err != nil {
		errs = append(errs, err)
	}
	if _, err := experiment.NewAssigner(c.Experiments); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// #endregion validate

// #region helpers

// Backend returns the declared backend with the given name.
func (c Config) Backend(name string) (Backend, bool) {
	for _, b := range c.Backends {
		if b.Name == name {
			return b, true
		}
	}
	return Backend{}, false
}

// UsesProvider reports whether any backend is served by provider.
func (c Config) UsesProvider(provider string) bool {
	for _, b := range c.Backends {
		if b.Provider == provider {
			return true
		}
	}
	return strings.EqualFold(c.Knowledge.Embedder, provider) || strings.EqualFold(c.Scorer, provider)
}

// #endregion helpers
