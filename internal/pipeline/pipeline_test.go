package pipeline

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/henrikfb/mailsift/internal/model"
	"github.com/henrikfb/mailsift/internal/retrieval"
)

const orderEmailHTML = `<html><body>
<p>Your order is on its way.</p>
<a href="https://shop.example/track/42" class="btn">Track package</a>
<a href="https://shop.example/invoice/42">View invoice</a>
<a href="mailto:support@shop.example">Contact us</a>
</body></html>`

func followConfig() model.AgentConfig {
	return model.AgentConfig{
		MatchCriteria:    "order and shipping updates",
		ExtractionFields: "orderId, status",
		FollowLinks:      true,
	}
}

func stubMail(t *testing.T, html, plain string) *mockMailSource {
	t.Helper()
	mail := &mockMailSource{}
	mail.On("GetEmail", mock.Anything, "tok", "msg-1").Return(&model.EmailDocument{
		ID:            "msg-1",
		Subject:       "Your order shipped",
		From:          "store@shop.example",
		HTMLBody:      html,
		PlainTextBody: plain,
	}, nil)
	return mail
}

func TestRunHappyPathWithLinks(t *testing.T) {
	oracle := &mockOracle{}
	oracle.On("CreateMessage", mock.Anything, mock.MatchedBy(systemContains("refine extraction goals"))).
		Return(textResponse(`{"refinedGoal": "find order 42 status", "keyTerms": ["order", "42"], "expectedContent": "tracking page"}`), nil).Once()
	oracle.On("CreateMessage", mock.Anything, mock.MatchedBy(systemContains("select which links"))).
		Return(textResponse("0, 1"), nil).Once()
	oracle.On("CreateMessage", mock.Anything, mock.MatchedBy(systemContains("analyze one piece of content"))).
		Return(textResponse(`{"matched": true, "extractedData": {"orderId": "42"}, "reasoning": "order id present", "confidence": 0.9}`), nil)

	retriever := &mockRetriever{}
	retriever.On("Retrieve", mock.Anything, mock.MatchedBy(func(req retrieval.Request) bool {
		return req.Intent != nil && req.Intent.RefinedGoal == "find order 42 status"
	})).Return(&model.RetrievedUnit{
		SourceID: "https://shop.example/track/42", Content: "Order 42 is in transit.",
		RetrievalSucceeded: true, RetrievalSource: "jina",
	}, nil).Once()
	retriever.On("Retrieve", mock.Anything, mock.Anything).Return(&model.RetrievedUnit{
		SourceID: "https://shop.example/invoice/42", Content: "Invoice for order 42.",
		RetrievalSucceeded: true, RetrievalSource: "local",
	}, nil).Once()

	p := New(oracle, stubMail(t, orderEmailHTML, "Your order is on its way."),
		WithRetrieverFactory(func(model.RetrievalStrategy) retrieval.Retriever { return retriever }),
	)

	run, err := p.Run(context.Background(), followConfig(), "tok", "msg-1")

	require.NoError(t, err)
	assert.Equal(t, model.RunStatusDone, run.Status)
	require.NotNil(t, run.Result)
	assert.True(t, run.Result.Matched)
	assert.Equal(t, 3, run.Result.TotalMatchedUnits)
	assert.Equal(t, "42", run.Result.MergedData["orderId"])
	assert.Equal(t, model.EmailSourceID, run.Result.DataBySource[0].Source)
	assert.Empty(t, run.Result.Error)
	oracle.AssertExpectations(t)
	retriever.AssertExpectations(t)
}

func TestRunAbsorbsLinkRetrievalFailures(t *testing.T) {
	oracle := &mockOracle{}
	oracle.On("CreateMessage", mock.Anything, mock.MatchedBy(systemContains("refine extraction goals"))).
		Return(textResponse(`{"refinedGoal": "g", "expectedContent": "x"}`), nil)
	oracle.On("CreateMessage", mock.Anything, mock.MatchedBy(systemContains("select which links"))).
		Return(textResponse("0, 1"), nil)
	oracle.On("CreateMessage", mock.Anything, mock.MatchedBy(systemContains("analyze one piece of content"))).
		Return(textResponse(`{"matched": true, "extractedData": {"status": "shipped"}, "reasoning": "email says so", "confidence": 0.7}`), nil)

	retriever := &mockRetriever{}
	retriever.On("Retrieve", mock.Anything, mock.Anything).Return(nil, eris.New("blocked"))

	p := New(oracle, stubMail(t, orderEmailHTML, "Your order is on its way."),
		WithRetrieverFactory(func(model.RetrievalStrategy) retrieval.Retriever { return retriever }),
	)

	run, err := p.Run(context.Background(), followConfig(), "tok", "msg-1")

	require.NoError(t, err)
	require.NotNil(t, run.Result)
	assert.True(t, run.Result.Matched)
	// Only the email unit was analyzable.
	assert.Equal(t, 1, run.Result.TotalMatchedUnits)
	assert.Equal(t, "2 of 2 links failed retrieval", run.Result.Error)
}

func TestRunWithoutFollowLinksSkipsRetrieval(t *testing.T) {
	oracle := &mockOracle{}
	oracle.On("CreateMessage", mock.Anything, mock.MatchedBy(systemContains("analyze one piece of content"))).
		Return(textResponse(`{"matched": true, "extractedData": {"orderId": "42"}, "reasoning": "r", "confidence": 0.8}`), nil).Once()

	cfg := followConfig()
	cfg.FollowLinks = false

	p := New(oracle, stubMail(t, orderEmailHTML, "Your order is on its way."))
	run, err := p.Run(context.Background(), cfg, "tok", "msg-1")

	require.NoError(t, err)
	assert.True(t, run.Result.Matched)
	require.Len(t, run.Result.DataBySource, 1)
	assert.Equal(t, model.EmailSourceID, run.Result.DataBySource[0].Source)
	oracle.AssertExpectations(t)
}

func TestRunZeroMatchesIsSuccess(t *testing.T) {
	oracle := &mockOracle{}
	oracle.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"matched": false, "extractedData": {}, "reasoning": "unrelated", "confidence": 0.2}`), nil)

	cfg := followConfig()
	cfg.FollowLinks = false

	p := New(oracle, stubMail(t, "", "Weekly newsletter."))
	run, err := p.Run(context.Background(), cfg, "tok", "msg-1")

	require.NoError(t, err)
	assert.Equal(t, model.RunStatusDone, run.Status)
	assert.False(t, run.Result.Matched)
	assert.Empty(t, run.Result.DataBySource)
	assert.Zero(t, run.Result.OverallConfidence)
}

func TestRunInvalidConfigFailsBeforeFetching(t *testing.T) {
	mail := &mockMailSource{}
	p := New(&mockOracle{}, mail)

	_, err := p.Run(context.Background(), model.AgentConfig{}, "tok", "msg-1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "match_criteria")
	mail.AssertNotCalled(t, "GetEmail", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunEmailFetchFailureFailsRun(t *testing.T) {
	mail := &mockMailSource{}
	mail.On("GetEmail", mock.Anything, "tok", "msg-1").Return(nil, eris.New("401 unauthorized"))

	cfg := followConfig()
	p := New(&mockOracle{}, mail)

	_, err := p.Run(context.Background(), cfg, "tok", "msg-1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch email")
}

func TestRunUsesKnowledgeBaseContext(t *testing.T) {
	oracle := &mockOracle{}
	oracle.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"matched": false, "extractedData": {}, "reasoning": "r", "confidence": 0.1}`), nil)

	kbMock := &mockKB{}
	kbMock.On("GetContext", mock.Anything, "order and shipping updates", "user-7", []string{"kb-1"}, 0).
		Return("Orders ship within 2 days.", nil).Once()

	cfg := followConfig()
	cfg.FollowLinks = false
	cfg.KnowledgeBaseIDs = []string{"kb-1"}
	cfg.UserID = "user-7"

	p := New(oracle, stubMail(t, "", "body"), WithKnowledgeBase(kbMock))
	_, err := p.Run(context.Background(), cfg, "tok", "msg-1")

	require.NoError(t, err)
	kbMock.AssertExpectations(t)
}
