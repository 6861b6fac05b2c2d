package pipeline

import (
	"strings"
	"unicode/utf8"

	"github.com/henrikfb/mailsift/internal/model"
)

const (
	// fullContextThreshold is the unit size above which content is analyzed
	// chunk by chunk instead of in one call.
	fullContextThreshold = 120_000
	// chunkSize bounds each chunk's character count.
	chunkSize = 3_000
)

// needsChunking reports whether a unit is too large for single-call analysis.
func needsChunking(content string) bool {
	return len(content) > fullContextThreshold
}

// splitIntoChunks packs paragraphs greedily into chunks of at most chunkSize
// bytes. A paragraph larger than chunkSize is hard-split on rune boundaries.
// Concatenating the chunk texts reproduces the input exactly.
func splitIntoChunks(sourceID, content string) []model.ContentChunk {
	if content == "" {
		return nil
	}

	var pieces []string
	for _, para := range strings.SplitAfter(content, "\n\n") {
		if para == "" {
			continue
		}
		if len(para) <= chunkSize {
			pieces = append(pieces, para)
			continue
		}
		pieces = append(pieces, hardSplit(para, chunkSize)...)
	}

	var chunks []model.ContentChunk
	var current strings.Builder
	flush := func() {
		if current.Len() == 0 {
			return
		}
		text := current.String()
		chunks = append(chunks, model.ContentChunk{
			UnitSourceID: sourceID,
			Index:        len(chunks),
			Text:         text,
			CharCount:    len(text),
		})
		current.Reset()
	}

	for _, piece := range pieces {
		if current.Len() > 0 && current.Len()+len(piece) > chunkSize {
			flush()
		}
		current.WriteString(piece)
	}
	flush()
	return chunks
}

// hardSplit cuts s into slices of at most max bytes, never inside a rune.
func hardSplit(s string, max int) []string {
	var out []string
	for len(s) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		if cut == 0 {
			cut = max
		}
		out = append(out, s[:cut])
		s = s[cut:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}
