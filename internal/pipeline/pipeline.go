// Package pipeline orchestrates the extraction run: fetch the email,
// discover and prioritize its links, retrieve their content, analyze each
// unit, and aggregate the verdicts into one result.
//
// Failure policy: invalid input and an unfetchable email fail the run;
// everything downstream degrades gracefully and is noted on the result.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/henrikfb/mailsift/internal/kb"
	"github.com/henrikfb/mailsift/internal/links"
	"github.com/henrikfb/mailsift/internal/mailfetch"
	"github.com/henrikfb/mailsift/internal/model"
	"github.com/henrikfb/mailsift/internal/recorder"
	"github.com/henrikfb/mailsift/internal/retrieval"
	"github.com/henrikfb/mailsift/internal/store"
	"github.com/henrikfb/mailsift/pkg/anthropic"
)

const (
	defaultAnalysisConcurrency  = 4
	defaultRetrievalConcurrency = 5
	defaultRetrievalTimeout     = 45 * time.Second
)

// RetrieverFactory builds the retriever for a strategy. Injected so tests
// can substitute the whole retrieval layer.
type RetrieverFactory func(model.RetrievalStrategy) retrieval.Retriever

// Pipeline runs extractions. Safe for concurrent use.
type Pipeline struct {
	oracle anthropic.Client
	mail   mailfetch.Source
	model  string

	retrieverFor RetrieverFactory
	kb           kb.Provider
	rec          recorder.Recorder
	runs         store.Store

	analysisConcurrency  int
	retrievalConcurrency int
	retrievalTimeout     time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithModel overrides the oracle model.
func WithModel(name string) Option {
	return func(p *Pipeline) {
		p.model = name
	}
}

// WithRetrievalClients wires the standard retrieval backends.
func WithRetrievalClients(clients retrieval.Clients) Option {
	return func(p *Pipeline) {
		p.retrieverFor = func(s model.RetrievalStrategy) retrieval.Retriever {
			return retrieval.ForStrategy(s, clients)
		}
	}
}

// WithRetrieverFactory substitutes the retriever construction (for tests).
func WithRetrieverFactory(f RetrieverFactory) Option {
	return func(p *Pipeline) {
		p.retrieverFor = f
	}
}

// WithKnowledgeBase wires the reference-context provider.
func WithKnowledgeBase(provider kb.Provider) Option {
	return func(p *Pipeline) {
		p.kb = provider
	}
}

// WithRecorder wires the stage recorder.
func WithRecorder(rec recorder.Recorder) Option {
	return func(p *Pipeline) {
		p.rec = rec
	}
}

// WithRunStore persists run records and results.
func WithRunStore(s store.Store) Option {
	return func(p *Pipeline) {
		p.runs = s
	}
}

// WithAnalysisConcurrency bounds concurrent oracle analysis calls.
func WithAnalysisConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.analysisConcurrency = n
		}
	}
}

// WithRetrievalTimeout bounds each link retrieval call.
func WithRetrievalTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.retrievalTimeout = d
		}
	}
}

func New(oracle anthropic.Client, mail mailfetch.Source, opts ...Option) *Pipeline {
	p := &Pipeline{
		oracle:               oracle,
		mail:                 mail,
		model:                defaultOracleModel,
		kb:                   kb.Noop{},
		rec:                  recorder.Nop{},
		analysisConcurrency:  defaultAnalysisConcurrency,
		retrievalConcurrency: defaultRetrievalConcurrency,
		retrievalTimeout:     defaultRetrievalTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.retrieverFor == nil {
		p.retrieverFor = func(s model.RetrievalStrategy) retrieval.Retriever {
			return retrieval.ForStrategy(s, retrieval.Clients{})
		}
	}
	return p
}

// Run executes one extraction. The returned Run always carries a terminal
// result when err is nil, even when nothing matched.
func (p *Pipeline) Run(ctx context.Context, cfg model.AgentConfig, accessToken, emailID string) (*model.Run, error) {
	if err := cfg.Validate(); err != nil {
		return nil, eris.Wrap(err, "pipeline: invalid config")
	}

	now := time.Now().UTC()
	run := &model.Run{
		ID:        uuid.NewString(),
		EmailID:   emailID,
		Status:    model.RunStatusFetching,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if p.runs != nil {
		if err := p.runs.CreateRun(ctx, run); err != nil {
			zap.L().Warn("pipeline: run record not persisted", zap.Error(err))
		}
	}

	result, err := p.execute(ctx, &cfg, run, accessToken, emailID)
	if err != nil {
		p.setStatus(ctx, run, model.RunStatusFailed)
		return nil, err
	}

	run.Result = result
	run.Status = model.RunStatusDone
	run.UpdatedAt = time.Now().UTC()
	if p.runs != nil {
		if perr := p.runs.UpdateRunResult(ctx, run.ID, run.Status, result); perr != nil {
			zap.L().Warn("pipeline: result not persisted", zap.Error(perr))
		}
	}
	p.rec.Record(run.ID, "result", result)
	return run, nil
}

func (p *Pipeline) execute(ctx context.Context, cfg *model.AgentConfig, run *model.Run, accessToken, emailID string) (*model.AggregatedResult, error) {
	email, err := p.mail.GetEmail(ctx, accessToken, emailID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: fetch email")
	}
	p.rec.Record(run.ID, "email_fetched", map[string]any{
		"subject":    email.Subject,
		"from":       email.From,
		"body_chars": len(email.Body()),
	})

	// The email body is always the first unit, regardless of strategy.
	units := []model.RetrievedUnit{{
		SourceID:           model.EmailSourceID,
		Content:            email.Body(),
		Title:              email.Subject,
		RetrievalSucceeded: true,
		RetrievalSource:    "email",
	}}

	intent := &model.EmailIntent{RefinedGoal: cfg.MatchCriteria}
	var degraded []string

	if cfg.FollowLinks && email.HTMLBody != "" {
		linkUnits, linkIntent, notes := p.followLinks(ctx, cfg, run, email)
		units = append(units, linkUnits...)
		if linkIntent != nil {
			intent = linkIntent
		}
		degraded = append(degraded, notes...)
	}

	refContext := p.referenceContext(ctx, cfg, intent)

	p.setStatus(ctx, run, model.RunStatusSizeRouting)
	chunked := 0
	for _, unit := range units {
		if unit.RetrievalSucceeded && needsChunking(unit.Content) {
			chunked++
		}
	}
	p.rec.Record(run.ID, "size_routing", map[string]any{
		"units":         len(units),
		"chunked_units": chunked,
	})

	p.setStatus(ctx, run, model.RunStatusUnitAnalysis)
	results := p.analyzeAll(ctx, cfg, refContext, units)
	p.rec.Record(run.ID, "unit_analysis", results)

	p.setStatus(ctx, run, model.RunStatusAggregation)
	agg := aggregate(results)
	if len(degraded) > 0 {
		agg.Error = strings.Join(degraded, "; ")
	}
	return agg, nil
}

// followLinks runs discovery, intent refinement, prioritization and
// retrieval. All failures here degrade; none fail the run.
func (p *Pipeline) followLinks(ctx context.Context, cfg *model.AgentConfig, run *model.Run, email *model.EmailDocument) ([]model.RetrievedUnit, *model.EmailIntent, []string) {
	p.setStatus(ctx, run, model.RunStatusLinkDiscovery)
	extractor := links.NewExtractor(cfg.ButtonTextPattern)
	candidates := links.Dedup(extractor.Extract(email.HTMLBody))
	p.rec.Record(run.ID, "link_discovery", candidates)
	if len(candidates) == 0 {
		return nil, nil, nil
	}

	p.setStatus(ctx, run, model.RunStatusIntentRefinement)
	intent := p.refineIntent(ctx, cfg, email)
	p.rec.Record(run.ID, "intent_refinement", intent)

	p.setStatus(ctx, run, model.RunStatusPrioritization)
	selected := p.prioritizeLinks(ctx, cfg, intent, candidates)
	p.rec.Record(run.ID, "prioritization", selected)
	if len(selected) == 0 {
		return nil, intent, nil
	}

	p.setStatus(ctx, run, model.RunStatusRetrieval)
	reqs := make([]retrieval.Request, 0, len(selected))
	for _, link := range selected {
		reqs = append(reqs, retrieval.Request{
			URL:         link.URL,
			DisplayText: link.DisplayText,
			Intent:      intent,
		})
	}

	conc := p.retrievalConcurrency
	if len(reqs) < conc {
		conc = len(reqs)
	}
	retriever := p.retrieverFor(cfg.Strategy)
	units := retrieval.RetrieveAll(ctx, retriever, reqs, conc, p.retrievalTimeout)
	p.rec.Record(run.ID, "retrieval", units)

	failed := 0
	for _, unit := range units {
		if !unit.RetrievalSucceeded {
			failed++
		}
	}
	var notes []string
	if failed > 0 {
		notes = append(notes, fmt.Sprintf("%d of %d links failed retrieval", failed, len(units)))
	}
	return units, intent, notes
}

// referenceContext queries the knowledge bases. Failures log and return an
// empty context.
func (p *Pipeline) referenceContext(ctx context.Context, cfg *model.AgentConfig, intent *model.EmailIntent) string {
	if len(cfg.KnowledgeBaseIDs) == 0 {
		return ""
	}
	refContext, err := p.kb.GetContext(ctx, intent.RefinedGoal, cfg.UserID, cfg.KnowledgeBaseIDs, 0)
	if err != nil {
		zap.L().Warn("pipeline: reference context unavailable", zap.Error(err))
		return ""
	}
	return refContext
}

func (p *Pipeline) setStatus(ctx context.Context, run *model.Run, status model.RunStatus) {
	run.Status = status
	run.UpdatedAt = time.Now().UTC()
	if p.runs == nil {
		return
	}
	if err := p.runs.UpdateRunStatus(ctx, run.ID, status); err != nil {
		zap.L().Warn("pipeline: status not persisted",
			zap.String("run_id", run.ID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}
