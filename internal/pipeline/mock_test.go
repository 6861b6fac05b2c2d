package pipeline

import (
	"context"
	"strings"

	"github.com/stretchr/testify/mock"

	"github.com/henrikfb/mailsift/internal/model"
	"github.com/henrikfb/mailsift/internal/retrieval"
	"github.com/henrikfb/mailsift/pkg/anthropic"
)

type mockOracle struct {
	mock.Mock
}

func (m *mockOracle) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

type mockMailSource struct {
	mock.Mock
}

func (m *mockMailSource) GetEmail(ctx context.Context, accessToken, emailID string) (*model.EmailDocument, error) {
	args := m.Called(ctx, accessToken, emailID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.EmailDocument), args.Error(1)
}

type mockKB struct {
	mock.Mock
}

func (m *mockKB) GetContext(ctx context.Context, query, userID string, kbIDs []string, topK int) (string, error) {
	args := m.Called(ctx, query, userID, kbIDs, topK)
	return args.String(0), args.Error(1)
}

type mockRetriever struct {
	mock.Mock
}

func (m *mockRetriever) Name() string { return "mock" }

func (m *mockRetriever) Retrieve(ctx context.Context, req retrieval.Request) (*model.RetrievedUnit, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RetrievedUnit), args.Error(1)
}

// textResponse wraps text the way the oracle returns it.
func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
	}
}

// systemContains matches oracle requests by their system prompt, which is
// how the test tells pipeline stages apart.
func systemContains(substr string) func(anthropic.MessageRequest) bool {
	return func(req anthropic.MessageRequest) bool {
		for _, block := range req.System {
			if strings.Contains(block.Text, substr) {
				return true
			}
		}
		return false
	}
}
