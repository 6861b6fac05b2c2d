package links

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const sampleEmail = `
<html><body>
<p>Hi there, check out <a href="https://example.com/jobs">our openings</a>.</p>
<a href="mailto:hr@example.com">Email us</a>
<a href="#section">Jump</a>
<a href="tel:+15551234">Call</a>
<table><tr><td class="mcnButtonContent">
  <a href="https://example.com/apply?utm_source=mail">Apply Now</a>
</td></tr></table>
<div role="button"><a href="https://example.com/start">Get Started</a></div>
<a href="https://example.com/jobs">our openings again</a>
</body></html>`

func TestExtract_SkipsNonHTTPAndFragments(t *testing.T) {
	e := NewExtractor("")
	found := e.Extract(sampleEmail)

	assert.Len(t, found, 4)
	for _, l := range found {
		assert.NotContains(t, l.URL, "mailto:")
		assert.NotContains(t, l.URL, "tel:")
		assert.False(t, l.URL[0] == '#')
	}
}

func TestExtract_PreservesDocumentOrder(t *testing.T) {
	e := NewExtractor("")
	found := e.Extract(sampleEmail)

	assert.Equal(t, "https://example.com/jobs", found[0].URL)
	assert.Equal(t, "https://example.com/apply?utm_source=mail", found[1].URL)
	assert.Equal(t, "https://example.com/start", found[2].URL)
}

func TestExtract_ButtonLikeFromContainerClass(t *testing.T) {
	e := NewExtractor("")
	found := e.Extract(sampleEmail)

	byURL := map[string]bool{}
	for _, l := range found {
		byURL[l.URL] = l.IsButtonLike
	}
	assert.True(t, byURL["https://example.com/apply?utm_source=mail"], "mcnButton container should flag button")
	assert.False(t, byURL["https://example.com/jobs"], "plain inline link is not a button")
}

func TestExtract_ButtonLikeFromRole(t *testing.T) {
	e := NewExtractor("")
	found := e.Extract(`<div role="button"><a href="https://x.test/go">Go</a></div>`)

	assert.Len(t, found, 1)
	assert.True(t, found[0].IsButtonLike)
}

func TestExtract_ButtonLikeFromUserPattern(t *testing.T) {
	e := NewExtractor("View Offer")
	found := e.Extract(`<a href="https://x.test/offer">View Offer</a>`)

	assert.Len(t, found, 1)
	assert.True(t, found[0].IsButtonLike)
}

func TestExtract_InvalidPatternIgnored(t *testing.T) {
	e := NewExtractor("[unclosed")
	found := e.Extract(`<a href="https://x.test/a">A</a>`)

	assert.Len(t, found, 1)
	assert.False(t, found[0].IsButtonLike)
}

func TestExtract_MalformedMarkupYieldsEmptyList(t *testing.T) {
	e := NewExtractor("")
	assert.Empty(t, e.Extract("<<<>>>not html at all"))
	assert.Empty(t, e.Extract(""))
}

func TestExtract_DisplayTextCollapsed(t *testing.T) {
	e := NewExtractor("")
	found := e.Extract("<a href=\"https://x.test/a\">\n  Two\n  Words \t</a>")

	assert.Len(t, found, 1)
	assert.Equal(t, "Two Words", found[0].DisplayText)
}
