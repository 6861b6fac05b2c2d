package retrieval

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/henrikfb/mailsift/internal/model"
	"github.com/henrikfb/mailsift/internal/resilience"
)

const (
	localUserAgent   = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	localMaxBodySize = 2 << 20 // 2 MiB is plenty for a content page
)

// localRetriever fetches pages directly and converts the HTML to markdown.
// It is the fallback when the reader API is down or blocked.
type localRetriever struct {
	httpClient *http.Client
	converter  *md.Converter
	retry      resilience.RetryConfig
}

func newLocalRetriever() *localRetriever {
	conv := md.NewConverter("", true, nil)
	return &localRetriever{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		converter:  conv,
		retry: resilience.RetryConfig{
			MaxAttempts:    2,
			InitialBackoff: time.Second,
		},
	}
}

func (l *localRetriever) Name() string { return "local" }

func (l *localRetriever) Retrieve(ctx context.Context, req Request) (*model.RetrievedUnit, error) {
	return resilience.DoVal(ctx, l.retry, func(ctx context.Context) (*model.RetrievedUnit, error) {
		return l.fetch(ctx, req)
	})
}

func (l *localRetriever) fetch(ctx context.Context, req Request) (*model.RetrievedUnit, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "retrieval: build request")
	}
	httpReq.Header.Set("User-Agent", localUserAgent)
	httpReq.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := l.httpClient.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "retrieval: local fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		err := eris.New(fmt.Sprintf("retrieval: local fetch status %d", resp.StatusCode))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, localMaxBodySize))
	if err != nil {
		return nil, eris.Wrap(err, "retrieval: read body")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, eris.Wrap(err, "retrieval: parse html")
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	// Scripts and styles only add noise to the markdown.
	doc.Find("script, style, noscript").Remove()

	html, err := doc.Html()
	if err != nil {
		return nil, eris.Wrap(err, "retrieval: serialize html")
	}

	content, err := l.converter.ConvertString(html)
	if err != nil {
		return nil, eris.Wrap(err, "retrieval: convert markdown")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, eris.New("retrieval: page produced no content")
	}

	return &model.RetrievedUnit{
		SourceID:           req.URL,
		Content:            content,
		Title:              title,
		RetrievalSucceeded: true,
		RetrievalSource:    l.Name(),
	}, nil
}
