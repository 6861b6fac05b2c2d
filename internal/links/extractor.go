// Package links discovers and normalizes candidate links in email markup.
package links

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/henrikfb/mailsift/internal/model"
)

// buttonClassSignals are class/role substrings that mark an element (or one
// of its ancestors) as an action button in common email templates.
var buttonClassSignals = []string{
	"btn", "button", "cta", "action", "mcnButton", "es-button",
}

// buttonContainerTags are ancestor tags that email builders wrap buttons in.
var buttonContainerTags = map[string]bool{
	"button": true,
	"td":     true,
	"table":  true,
}

// Extractor parses raw markup into candidate links. It never fails:
// malformed markup yields an empty list.
type Extractor struct {
	buttonTextRe *regexp.Regexp
}

// NewExtractor creates an Extractor. buttonTextPattern may be empty; an
// invalid pattern is logged and ignored rather than rejected.
func NewExtractor(buttonTextPattern string) *Extractor {
	e := &Extractor{}
	if buttonTextPattern != "" {
		re, err := regexp.Compile("(?i)" + buttonTextPattern)
		if err != nil {
			zap.L().Warn("links: invalid button text pattern, ignoring",
				zap.String("pattern", buttonTextPattern),
				zap.Error(err),
			)
		} else {
			e.buttonTextRe = re
		}
	}
	return e
}

// Extract returns every candidate link in document order. mailto:, tel:,
// javascript:, data: and fragment-only hrefs are skipped.
func (e *Extractor) Extract(markup string) []model.ExtractedLink {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		zap.L().Debug("links: markup parse failed", zap.Error(err))
		return nil
	}

	var out []model.ExtractedLink
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if shouldSkipHref(href) {
			return
		}
		text := strings.Join(strings.Fields(s.Text()), " ")
		out = append(out, model.ExtractedLink{
			URL:          href,
			DisplayText:  text,
			IsButtonLike: e.isButtonLike(s, text),
		})
	})
	return out
}

func shouldSkipHref(href string) bool {
	if href == "" || strings.HasPrefix(href, "#") {
		return true
	}
	lower := strings.ToLower(href)
	for _, scheme := range []string{"mailto:", "tel:", "sms:", "javascript:", "data:", "ftp:"} {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return false
}

// isButtonLike walks the anchor and its ancestors looking for action-button
// signals in class/role attributes, stopping at the nearest interactive
// container. The user's button text pattern also qualifies a link.
func (e *Extractor) isButtonLike(s *goquery.Selection, text string) bool {
	if e.buttonTextRe != nil && e.buttonTextRe.MatchString(text) {
		return true
	}

	node := s
	for depth := 0; depth < 4 && node.Length() > 0; depth++ {
		if hasButtonSignal(node) {
			return true
		}
		tag := goquery.NodeName(node)
		if depth > 0 && !buttonContainerTags[tag] {
			break
		}
		node = node.Parent()
	}
	return false
}

func hasButtonSignal(s *goquery.Selection) bool {
	if role, ok := s.Attr("role"); ok && strings.EqualFold(role, "button") {
		return true
	}
	class, ok := s.Attr("class")
	if !ok {
		return false
	}
	lower := strings.ToLower(class)
	for _, sig := range buttonClassSignals {
		if strings.Contains(lower, strings.ToLower(sig)) {
			return true
		}
	}
	return false
}
