package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/henrikfb/mailsift/internal/kb"
	"github.com/henrikfb/mailsift/internal/mailfetch"
	"github.com/henrikfb/mailsift/internal/pipeline"
	"github.com/henrikfb/mailsift/internal/recorder"
	"github.com/henrikfb/mailsift/internal/retrieval"
	"github.com/henrikfb/mailsift/internal/store"
	anthropicpkg "github.com/henrikfb/mailsift/pkg/anthropic"
	"github.com/henrikfb/mailsift/pkg/jina"
	"github.com/henrikfb/mailsift/pkg/perplexity"
)

// env bundles the wired pipeline and its resources.
type env struct {
	Pipeline *pipeline.Pipeline
	Store    store.Store
	Recorder recorder.Recorder
}

func (e *env) Close() {
	if e.Recorder != nil {
		e.Recorder.Flush()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgresStore(ctx, cfg.Store.DatabaseURL)
	case "sqlite", "":
		return store.NewSQLiteStore(cfg.Store.SQLitePath)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func initPipeline(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	if cfg.Anthropic.Key == "" {
		_ = st.Close()
		return nil, eris.New("anthropic key not configured")
	}

	oracle := anthropicpkg.NewClient(cfg.Anthropic.Key,
		anthropicpkg.WithRateLimit(cfg.Anthropic.RatePerSecond, cfg.Anthropic.RateBurst))

	var jinaClient jina.Client
	if cfg.Jina.Key != "" {
		jinaClient = jina.NewClient(cfg.Jina.Key, jina.WithBaseURL(cfg.Jina.BaseURL))
	}
	var perplexityClient perplexity.Client
	if cfg.Perplexity.Key != "" {
		perplexityClient = perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model))
	}

	var kbProvider kb.Provider = kb.Noop{}
	if cfg.KB.BaseURL != "" {
		kbProvider = kb.NewHTTPProvider(cfg.KB.BaseURL, cfg.KB.Key)
	}

	rec := recorder.NewStoreRecorder(st)
	mail := mailfetch.NewGmailSource(mailfetch.WithGmailBaseURL(cfg.Gmail.BaseURL))

	p := pipeline.New(oracle, mail,
		pipeline.WithModel(cfg.Anthropic.Model),
		pipeline.WithRetrievalClients(retrieval.Clients{
			Jina:       jinaClient,
			Perplexity: perplexityClient,
		}),
		pipeline.WithKnowledgeBase(kbProvider),
		pipeline.WithRecorder(rec),
		pipeline.WithRunStore(st),
		pipeline.WithAnalysisConcurrency(cfg.Pipeline.AnalysisConcurrency),
		pipeline.WithRetrievalTimeout(time.Duration(cfg.Pipeline.RetrievalTimeoutSecs)*time.Second),
	)

	return &env{Pipeline: p, Store: st, Recorder: rec}, nil
}
