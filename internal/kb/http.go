package kb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultTopK = 5

// HTTPProvider queries a retrieval service over REST.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// HTTPOption configures an HTTPProvider.
type HTTPOption func(*HTTPProvider)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(p *HTTPProvider) {
		p.http = hc
	}
}

func NewHTTPProvider(baseURL, apiKey string, opts ...HTTPOption) *HTTPProvider {
	p := &HTTPProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type queryRequest struct {
	Query            string   `json:"query"`
	UserID           string   `json:"userId,omitempty"`
	KnowledgeBaseIDs []string `json:"knowledgeBaseIds"`
	TopK             int      `json:"topK"`
}

type queryResponse struct {
	Passages []passage `json:"passages"`
}

type passage struct {
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Score  float64 `json:"score"`
}

// GetContext queries the service and joins the returned passages into one
// reference block, most relevant first.
func (p *HTTPProvider) GetContext(ctx context.Context, query, userID string, kbIDs []string, topK int) (string, error) {
	if len(kbIDs) == 0 {
		return "", nil
	}
	if topK <= 0 {
		topK = defaultTopK
	}

	payload, err := json.Marshal(queryRequest{
		Query:            query,
		UserID:           userID,
		KnowledgeBaseIDs: kbIDs,
		TopK:             topK,
	})
	if err != nil {
		return "", eris.Wrap(err, "kb: marshal query")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/query", bytes.NewReader(payload))
	if err != nil {
		return "", eris.Wrap(err, "kb: build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "kb: query request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "kb: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", eris.New(fmt.Sprintf("kb: service returned status %d", resp.StatusCode))
	}

	var qr queryResponse
	if err := json.Unmarshal(body, &qr); err != nil {
		return "", eris.Wrap(err, "kb: decode response")
	}

	parts := make([]string, 0, len(qr.Passages))
	for _, ps := range qr.Passages {
		text := strings.TrimSpace(ps.Text)
		if text == "" {
			continue
		}
		if ps.Source != "" {
			parts = append(parts, fmt.Sprintf("[%s] %s", ps.Source, text))
		} else {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}
