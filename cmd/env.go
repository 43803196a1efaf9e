package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/triage-cli/internal/classifier"
	"github.com/sells-group/triage-cli/internal/pipeline"
	"github.com/sells-group/triage-cli/internal/resilience"
	"github.com/sells-group/triage-cli/internal/store"
	anthropicpkg "github.com/sells-group/triage-cli/pkg/anthropic"
	"github.com/sells-group/triage-cli/pkg/deepseek"
)

// pipelineEnv holds the initialized store and pipeline needed by the
// process and serve commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "leads.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initPipeline sets up the store, both classifier gateways, and the
// pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	primary, auditor := initGateways()

	p := pipeline.New(cfg, st, primary, auditor)

	return &pipelineEnv{
		Store:    st,
		Pipeline: p,
	}, nil
}

// initGateways builds both classifier gateways wrapped with rate limiting,
// per-call timeouts and retry.
func initGateways() (primary, auditor classifier.Gateway) {
	retryCfg := resilience.DefaultRetryConfig()
	if cfg.Pipeline.MaxAttempts > 0 {
		retryCfg.MaxAttempts = cfg.Pipeline.MaxAttempts
	}
	timeout := time.Duration(cfg.Pipeline.CallTimeoutSecs) * time.Second

	// Both providers share one limiter so combined request rate stays
	// within the configured budget.
	var limiter *rate.Limiter
	if cfg.Pipeline.RequestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Pipeline.RequestsPerSec), cfg.Pipeline.RequestBurst)
	}

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	deepseekClient := deepseek.NewClient(cfg.DeepSeek.Key,
		deepseek.WithBaseURL(cfg.DeepSeek.BaseURL),
		deepseek.WithModel(cfg.DeepSeek.Model),
	)

	primary = classifier.WithResilience(
		classifier.NewPrimary(anthropicClient, cfg.Anthropic.Model),
		retryCfg, limiter, timeout,
	)
	auditor = classifier.WithResilience(
		classifier.NewAuditor(deepseekClient, cfg.DeepSeek.Model),
		retryCfg, limiter, timeout,
	)
	return primary, auditor
}
