package retrieval

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/henrikfb/mailsift/internal/model"
	"github.com/henrikfb/mailsift/pkg/jina"
	"github.com/henrikfb/mailsift/pkg/perplexity"
)

type mockRetriever struct {
	mock.Mock
	name string
}

func (m *mockRetriever) Name() string { return m.name }

func (m *mockRetriever) Retrieve(ctx context.Context, req Request) (*model.RetrievedUnit, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RetrievedUnit), args.Error(1)
}

type mockJinaClient struct {
	mock.Mock
}

func (m *mockJinaClient) Read(ctx context.Context, url string) (*jina.ReadResponse, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jina.ReadResponse), args.Error(1)
}

type mockPerplexityClient struct {
	mock.Mock
}

func (m *mockPerplexityClient) ChatCompletion(ctx context.Context, req perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*perplexity.ChatCompletionResponse), args.Error(1)
}
