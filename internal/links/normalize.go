package links

import (
	"net/url"
	"strings"

	"github.com/henrikfb/mailsift/internal/model"
)

// trackingParams are query parameters stripped during normalization. Two
// URLs differing only by these collapse to one entry.
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"utm_id":       true,
	"fbclid":       true,
	"gclid":        true,
	"dclid":        true,
	"msclkid":      true,
	"mc_cid":       true,
	"mc_eid":       true,
	"mkt_tok":      true,
	"igshid":       true,
	"ref":          true,
	"ref_src":      true,
}

// wrapperHosts maps known link-wrapper hosts to the query parameter holding
// the inner target URL.
var wrapperHosts = map[string]string{
	"www.google.com":                       "q", // /url?q=
	"google.com":                           "q",
	"l.facebook.com":                       "u",
	"lm.facebook.com":                      "u",
	"out.reddit.com":                       "url",
	"www.linkedin.com":                     "url", // /redir/redirect?url=
	"linkedin.com":                         "url",
	"r20.rs6.net":                          "url",
	"safelinks.protection.outlook.com":     "url",
	"nam.safelinks.protection.outlook.com": "url",
}

// Normalize canonicalizes a single URL: unwrap known redirect wrappers,
// strip tracking parameters, drop the trailing slash. Unparseable URLs are
// returned unchanged so callers can still dedup on the raw value.
func Normalize(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.TrimSpace(raw)
	}

	if inner := unwrap(u); inner != nil {
		u = inner
	}

	q := u.Query()
	for param := range q {
		if trackingParams[strings.ToLower(param)] {
			q.Del(param)
		}
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""

	normalized := u.String()
	return strings.TrimSuffix(normalized, "/")
}

// unwrap resolves one level of link-wrapper redirection. Wrappers sometimes
// nest, so it recurses until the host is not a known wrapper.
func unwrap(u *url.URL) *url.URL {
	host := strings.ToLower(u.Host)
	param, ok := wrapperHosts[host]
	if !ok {
		// Safelinks deployments use regional subdomains.
		if strings.HasSuffix(host, ".safelinks.protection.outlook.com") {
			param = "url"
		} else {
			return nil
		}
	}

	target := u.Query().Get(param)
	if target == "" {
		return nil
	}
	inner, err := url.Parse(target)
	if err != nil || inner.Host == "" {
		return nil
	}
	if deeper := unwrap(inner); deeper != nil {
		return deeper
	}
	return inner
}

// Dedup collapses links by normalized URL, preserving document order and the
// first-seen original URL. Wrapper URLs may be required by the retrieval
// backend, so the original is what gets fetched; the normalized form is only
// the dedup key.
func Dedup(in []model.ExtractedLink) []model.ExtractedLink {
	seen := make(map[string]bool, len(in))
	out := make([]model.ExtractedLink, 0, len(in))
	for _, l := range in {
		key := Normalize(l.URL)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, l)
	}
	return out
}
