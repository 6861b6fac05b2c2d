package mailfetch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/henrikfb/mailsift/internal/model"
	"github.com/henrikfb/mailsift/internal/resilience"
)

const defaultGmailBaseURL = "https://gmail.googleapis.com/gmail/v1"

// GmailSource fetches messages through the Gmail REST API using the caller's
// OAuth access token.
type GmailSource struct {
	baseURL string
	http    *http.Client
	retry   resilience.RetryConfig
}

// GmailOption configures a GmailSource.
type GmailOption func(*GmailSource)

// WithGmailBaseURL overrides the API base URL (for testing).
func WithGmailBaseURL(url string) GmailOption {
	return func(s *GmailSource) {
		s.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithGmailHTTPClient overrides the default HTTP client.
func WithGmailHTTPClient(hc *http.Client) GmailOption {
	return func(s *GmailSource) {
		s.http = hc
	}
}

// WithGmailRetry overrides the retry policy for API calls.
func WithGmailRetry(cfg resilience.RetryConfig) GmailOption {
	return func(s *GmailSource) {
		s.retry = cfg
	}
}

func NewGmailSource(opts ...GmailOption) *GmailSource {
	s := &GmailSource{
		baseURL: defaultGmailBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		retry:   resilience.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type gmailMessage struct {
	ID      string    `json:"id"`
	Payload gmailPart `json:"payload"`
}

type gmailPart struct {
	MimeType string        `json:"mimeType"`
	Headers  []gmailHeader `json:"headers"`
	Body     gmailBody     `json:"body"`
	Parts    []gmailPart   `json:"parts"`
}

type gmailHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type gmailBody struct {
	Data string `json:"data"`
	Size int    `json:"size"`
}

// GetEmail fetches the full message and assembles an EmailDocument from its
// text/plain and text/html parts.
func (s *GmailSource) GetEmail(ctx context.Context, accessToken, emailID string) (*model.EmailDocument, error) {
	if accessToken == "" {
		return nil, eris.New("mailfetch: access token is required")
	}
	if emailID == "" {
		return nil, eris.New("mailfetch: email ID is required")
	}

	url := fmt.Sprintf("%s/users/me/messages/%s?format=full", s.baseURL, emailID)
	body, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) ([]byte, error) {
		return s.fetchMessage(ctx, url, accessToken)
	})
	if err != nil {
		return nil, err
	}

	var msg gmailMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, eris.Wrap(err, "mailfetch: decode message")
	}

	doc := &model.EmailDocument{
		ID:      msg.ID,
		Subject: headerValue(msg.Payload.Headers, "Subject"),
		From:    headerValue(msg.Payload.Headers, "From"),
	}
	collectBodies(&msg.Payload, doc)

	if doc.HTMLBody == "" && doc.PlainTextBody == "" {
		return nil, eris.New("mailfetch: message has no text or html body")
	}
	return doc, nil
}

// fetchMessage performs one API call. Rate-limit and server errors come back
// as transient so the retry policy knows to try again.
func (s *GmailSource) fetchMessage(ctx context.Context, url, accessToken string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "mailfetch: build request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "mailfetch: gmail request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "mailfetch: read response")
	}
	if resp.StatusCode != http.StatusOK {
		statusErr := eris.New(fmt.Sprintf("mailfetch: gmail returned status %d: %s", resp.StatusCode, truncate(string(body), 200)))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}
	return body, nil
}

// collectBodies walks the MIME tree depth-first, keeping the first text/plain
// and text/html parts it finds.
func collectBodies(part *gmailPart, doc *model.EmailDocument) {
	mediaType, params, err := mime.ParseMediaType(part.MimeType)
	if err != nil {
		mediaType = part.MimeType
	}
	// Charset can also ride on the part's Content-Type header.
	if ct := headerValue(part.Headers, "Content-Type"); ct != "" {
		if _, p, err := mime.ParseMediaType(ct); err == nil {
			for k, v := range p {
				if params == nil {
					params = map[string]string{}
				}
				params[k] = v
			}
		}
	}

	switch strings.ToLower(mediaType) {
	case "text/plain":
		if doc.PlainTextBody == "" && part.Body.Data != "" {
			doc.PlainTextBody = decodePartBody(part.Body.Data, params["charset"])
		}
	case "text/html":
		if doc.HTMLBody == "" && part.Body.Data != "" {
			doc.HTMLBody = decodePartBody(part.Body.Data, params["charset"])
		}
	}

	for i := range part.Parts {
		collectBodies(&part.Parts[i], doc)
	}
}

// decodePartBody decodes Gmail's URL-safe base64 payload and transcodes it
// to UTF-8 when the part declares a different charset.
func decodePartBody(data, charset string) string {
	raw, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		if raw, err = base64.URLEncoding.DecodeString(data); err != nil {
			return ""
		}
	}

	if charset == "" || strings.EqualFold(charset, "utf-8") || strings.EqualFold(charset, "us-ascii") {
		return string(raw)
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return string(raw)
	}
	decoded, _, err := transform.Bytes(enc.NewDecoder(), raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

func headerValue(headers []gmailHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
