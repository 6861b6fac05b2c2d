package retrieval

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/henrikfb/mailsift/internal/model"
	"github.com/henrikfb/mailsift/pkg/jina"
)

// chain tries each backend in order and returns the first success.
type chain struct {
	backends []Retriever
}

// NewFetchChain builds the fetch-only retriever: Jina Reader first, local
// HTTP fetch as fallback. A nil jina client skips straight to local.
func NewFetchChain(jinaClient jina.Client) Retriever {
	backends := make([]Retriever, 0, 2)
	if jinaClient != nil {
		backends = append(backends, newJinaRetriever(jinaClient))
	}
	backends = append(backends, newLocalRetriever())
	return &chain{backends: backends}
}

func (c *chain) Name() string { return "fetch" }

func (c *chain) Retrieve(ctx context.Context, req Request) (*model.RetrievedUnit, error) {
	var lastErr error
	for _, backend := range c.backends {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "retrieval: chain")
		}

		unit, err := backend.Retrieve(ctx, req)
		if err == nil {
			return unit, nil
		}
		lastErr = err
		zap.L().Debug("retrieval: backend failed, trying next",
			zap.String("backend", backend.Name()),
			zap.String("url", req.URL),
			zap.Error(err),
		)
	}
	return nil, eris.Wrap(lastErr, "retrieval: all backends failed")
}
