package retrieval

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/henrikfb/mailsift/internal/model"
	"github.com/henrikfb/mailsift/pkg/perplexity"
)

const searchSystemPrompt = "You are a research assistant. Summarize the factual content found at or about the given URL, focusing on the topics listed. Report only information you find; do not speculate."

// SearchRetriever asks a web-search-backed model about the URL instead of
// fetching it. Useful when pages are paywalled or block scrapers.
type SearchRetriever struct {
	client perplexity.Client
}

func NewSearchRetriever(client perplexity.Client) *SearchRetriever {
	return &SearchRetriever{client: client}
}

func (s *SearchRetriever) Name() string { return "search" }

func (s *SearchRetriever) Retrieve(ctx context.Context, req Request) (*model.RetrievedUnit, error) {
	if s.client == nil {
		return nil, eris.New("retrieval: search backend not configured")
	}

	resp, err := s.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Messages: []perplexity.Message{
			{Role: "system", Content: searchSystemPrompt},
			{Role: "user", Content: buildSearchQuery(req)},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "retrieval: search")
	}
	if len(resp.Choices) == 0 {
		return nil, eris.New("retrieval: search returned no choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return nil, eris.New("retrieval: search returned empty content")
	}

	return &model.RetrievedUnit{
		SourceID:           req.URL,
		Content:            content,
		Title:              req.DisplayText,
		RetrievalSucceeded: true,
		RetrievalSource:    s.Name(),
	}, nil
}

// buildSearchQuery combines the link with the refined intent so the search
// model knows which aspects of the page matter.
func buildSearchQuery(req Request) string {
	var b strings.Builder
	b.WriteString("URL: ")
	b.WriteString(req.URL)
	if req.DisplayText != "" {
		b.WriteString("\nLink text: ")
		b.WriteString(req.DisplayText)
	}
	if req.Intent != nil {
		if req.Intent.RefinedGoal != "" {
			b.WriteString("\nLooking for: ")
			b.WriteString(req.Intent.RefinedGoal)
		}
		if len(req.Intent.KeyTerms) > 0 {
			b.WriteString("\nKey topics: ")
			b.WriteString(strings.Join(req.Intent.KeyTerms, ", "))
		}
	}
	return b.String()
}
