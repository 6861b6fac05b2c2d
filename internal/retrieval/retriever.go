// Package retrieval turns selected links into analyzable content units.
// Three strategies share one interface: fetch-only, search-only, and
// fetch-and-search.
package retrieval

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/henrikfb/mailsift/internal/model"
	"github.com/henrikfb/mailsift/pkg/jina"
	"github.com/henrikfb/mailsift/pkg/perplexity"
)

// Request describes one link to retrieve, with the context a search backend
// needs to form a useful query.
type Request struct {
	URL         string
	DisplayText string
	Intent      *model.EmailIntent
}

// Retriever fetches a single URL's content. Implementations return an error
// for a failed retrieval; the fan-out records it on the unit and moves on.
type Retriever interface {
	Retrieve(ctx context.Context, req Request) (*model.RetrievedUnit, error)
	Name() string
}

// Clients bundles the backends the strategies draw from.
type Clients struct {
	Jina       jina.Client
	Perplexity perplexity.Client
}

// ForStrategy builds the Retriever for the configured strategy.
func ForStrategy(strategy model.RetrievalStrategy, clients Clients) Retriever {
	fetch := NewFetchChain(clients.Jina)
	switch strategy {
	case model.StrategySearchOnly:
		return NewSearchRetriever(clients.Perplexity)
	case model.StrategyFetchAndSearch:
		return NewFetchAndSearch(fetch, NewSearchRetriever(clients.Perplexity))
	default:
		return fetch
	}
}

// RetrieveAll fans out over the requests with bounded concurrency and a
// per-call timeout. Every request yields exactly one unit; failures are
// recorded on the unit, never returned. Output order matches input order.
func RetrieveAll(ctx context.Context, r Retriever, reqs []Request, maxConcurrent int, perCallTimeout time.Duration) []model.RetrievedUnit {
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}

	units := make([]model.RetrievedUnit, len(reqs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	for i, req := range reqs {
		g.Go(func() error {
			callCtx := gCtx
			if perCallTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(gCtx, perCallTimeout)
				defer cancel()
			}

			unit, err := r.Retrieve(callCtx, req)
			if err != nil {
				zap.L().Warn("retrieval: link failed",
					zap.String("url", req.URL),
					zap.String("retriever", r.Name()),
					zap.Error(err),
				)
				units[i] = model.RetrievedUnit{
					SourceID:           req.URL,
					RetrievalSucceeded: false,
					Error:              err.Error(),
				}
				return nil
			}
			units[i] = *unit
			return nil
		})
	}

	_ = g.Wait()
	return units
}
