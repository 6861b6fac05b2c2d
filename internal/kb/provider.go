// Package kb retrieves reference context from the user's knowledge bases.
// Reference context is advisory: lookup failures never fail an extraction
// run, they just leave the context empty.
package kb

import (
	"context"
)

// Provider looks up reference passages relevant to a query across the given
// knowledge bases. An empty string means no usable context was found.
type Provider interface {
	GetContext(ctx context.Context, query, userID string, kbIDs []string, topK int) (string, error)
}

// Noop is used when no knowledge base service is configured.
type Noop struct{}

func (Noop) GetContext(context.Context, string, string, []string, int) (string, error) {
	return "", nil
}
