package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/carepoint/council-controller/internal/codec"
	"github.com/carepoint/council-controller/internal/config"
	"github.com/carepoint/council-controller/internal/council"
	"github.com/carepoint/council-controller/internal/embedding"
	"github.com/carepoint/council-controller/internal/eval"
	"github.com/carepoint/council-controller/internal/experiment"
	"github.com/carepoint/council-controller/internal/expert"
	"github.com/carepoint/council-controller/internal/guardrail"
	"github.com/carepoint/council-controller/internal/knowledge"
	"github.com/carepoint/council-controller/internal/logging"
	"github.com/carepoint/council-controller/internal/monitor"
	"github.com/carepoint/council-controller/internal/retrieval"
	"github.com/carepoint/council-controller/internal/router"
	"github.com/carepoint/council-controller/internal/store"
	"github.com/carepoint/council-controller/internal/synthesis"
)

// #region app

// app owns the process-wide resources one command runs with.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	store  *store.Store

	codec *codec.Client
	genai *genai.Client
}

// loadConfig reads the config file and applies the root flag overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(rootFlags.config)
	if err != nil {
		return config.Config{}, err
	}
	if rootFlags.db != "" {
		cfg.Database = rootFlags.db
	}
	if rootFlags.logLevel != "" {
		cfg.Logging.Level = rootFlags.logLevel
	}
	return cfg, nil
}

// openApp loads config, builds the logger and opens the database.
func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	st, err := store.NewStore(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &app{cfg: cfg, logger: logger, store: st}, nil
}

// Close releases every resource the app opened.
func (a *app) Close() error {
	var errs []error
	if a.codec != nil {
		errs = append(errs, a.codec.Close())
	}
	errs = append(errs, a.store.Close())
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

// #endregion app

// #region clients

func (a *app) codecClient() (*codec.Client, error) {
	if a.codec != nil {
		return a.codec, nil
	}
	c, err := codec.NewClient(a.cfg.CodecAddr)
	if err != nil {
		return nil, fmt.Errorf("connect to codec service at %s: %w", a.cfg.CodecAddr, err)
	}
	a.codec = c
	return c, nil
}

func (a *app) genaiClient(ctx context.Context) (*genai.Client, error) {
	if a.genai != nil {
		return a.genai, nil
	}
	c, err := expert.NewGenAIClient(ctx, a.cfg.GenAIAPIKey)
	if err != nil {
		return nil, err
	}
	a.genai = c
	return c, nil
}

// backends builds every declared model backend.
func (a *app) backends(ctx context.Context) ([]expert.Backend, error) {
	out := make([]expert.Backend, 0, len(a.cfg.Backends))
	for _, b := range a.cfg.Backends {
		switch b.Provider {
		case config.ProviderGenAI:
			client, err := a.genaiClient(ctx)
			if err != nil {
				return nil, fmt.Errorf("backend %s: %w", b.Name, err)
			}
			opts := []expert.GenAIOption{expert.WithTemperature(b.Temperature)}
			if b.Structured {
				opts = append(opts, expert.WithStructuredOutput())
			}
			out = append(out, expert.NewGenAIBackend(client, b.Name, b.Model, opts...))
		case config.ProviderCodec:
			client, err := a.codecClient()
			if err != nil {
				return nil, fmt.Errorf("backend %s: %w", b.Name, err)
			}
			out = append(out, expert.NewCodecBackend(client, b.Name, b.Model))
		default:
			return nil, fmt.Errorf("backend %s: unknown provider %q", b.Name, b.Provider)
		}
	}
	return out, nil
}

// embedder returns the configured query embedder, or nil for keyword search.
func (a *app) embedder(ctx context.Context) (retrieval.Embedder, error) {
	switch a.cfg.Knowledge.Embedder {
	case config.ProviderGenAI:
		e, err := embedding.NewGenAIEngine(ctx, a.cfg.GenAIAPIKey, a.cfg.Knowledge.EmbeddingModel, a.cfg.Knowledge.TaskType)
		if err != nil {
			return nil, fmt.Errorf("knowledge embedder: %w", err)
		}
		return e, nil
	case config.ProviderCodec:
		return a.codecClient()
	default:
		return nil, nil
	}
}

// knowledgeStore opens the knowledge base on the shared database.
func (a *app) knowledgeStore() (*knowledge.Store, error) {
	kb, err := knowledge.NewStore(a.store.DB(), a.logger.Named("knowledge"))
	if err != nil {
		return nil, err
	}
	if a.cfg.Knowledge.ScanLimit > 0 {
		kb.SetScanLimit(a.cfg.Knowledge.ScanLimit)
	}
	return kb, nil
}

// #endregion clients

// #region orchestrator

// orchestrator wires every pipeline stage from config.
func (a *app) orchestrator(ctx context.Context) (*council.Orchestrator, error) {
	cfg := a.cfg
	log := a.logger

	assigner, err := experiment.NewAssigner(cfg.Experiments)
	if err != nil {
		return nil, err
	}
	backends, err := a.backends(ctx)
	if err != nil {
		return nil, err
	}
	pool, err := expert.NewPool(backends, cfg.Experts, log.Named("experts"))
	if err != nil {
		return nil, err
	}
	synth, err := synthesis.NewSynthesizer(backends, cfg.Synthesis, log.Named("synthesis"))
	if err != nil {
		return nil, err
	}

	gc := cfg.Guardrails
	gc.HighStakesKeywords = cfg.Routing.HighStakesKeywords
	guards, err := guardrail.NewEvaluator(gc)
	if err != nil {
		return nil, err
	}
	mon, err := monitor.NewMonitor(cfg.Thresholds)
	if err != nil {
		return nil, err
	}

	var retriever *retrieval.Retriever
	if cfg.Retrieval.Enabled {
		kb, err := a.knowledgeStore()
		if err != nil {
			return nil, err
		}
		emb, err := a.embedder(ctx)
		if err != nil {
			return nil, err
		}
		retriever = retrieval.NewRetriever(emb, kb, cfg.Retrieval, log.Named("retrieval"))
	}

	var scorer eval.HallucinationScorer
	if cfg.Scorer == config.ProviderCodec {
		c, err := a.codecClient()
		if err != nil {
			return nil, err
		}
		scorer = c
	}
	ec := cfg.Evaluation
	ec.HighStakesKeywords = cfg.Routing.HighStakesKeywords

	var recorder council.Recorder
	if cfg.Persistence.Enabled {
		recorder = a.store
	}

	return council.New(council.Deps{
		Assigner:       assigner,
		Router:         router.NewRouter(cfg.Routing),
		Retriever:      retriever,
		Pool:           pool,
		Synthesizer:    synth,
		Guardrails:     guards,
		Monitor:        mon,
		Quality:        eval.NewHarness(ec, scorer, log.Named("eval")),
		Recorder:       recorder,
		Decisions:      logging.NewDecisionLog(a.store.DB()),
		Logger:         log.Named("council"),
		PersistTimeout: cfg.Persistence.Timeout,
	})
}

// #endregion orchestrator
