package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/henrikfb/mailsift/pkg/anthropic"
)

const defaultOracleModel = "claude-sonnet-4-5"

// askOracle sends one system+user exchange and returns the text of the
// response.
func (p *Pipeline) askOracle(ctx context.Context, stage, system, user string, maxTokens int64) (string, error) {
	resp, err := p.oracle.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     p.model,
		MaxTokens: maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(system),
		Messages:  []anthropic.Message{{Role: "user", Content: user}},
	})
	if err != nil {
		return "", eris.Wrap(err, "pipeline: oracle call")
	}
	resp.Usage.LogUsage(p.model, stage)

	text := extractText(resp)
	if text == "" {
		return "", eris.New("pipeline: oracle returned no text")
	}
	return text, nil
}

// extractText concatenates the text blocks of a response.
func extractText(resp *anthropic.MessageResponse) string {
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(b.String())
}

// cleanJSON strips markdown code fences and surrounding prose so the
// response can be unmarshaled. Models occasionally wrap JSON despite
// instructions.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	// Fall back to the outermost braces when prose surrounds the object.
	if !strings.HasPrefix(s, "{") {
		start := strings.Index(s, "{")
		end := strings.LastIndex(s, "}")
		if start >= 0 && end > start {
			s = s[start : end+1]
		}
	}
	return s
}

// truncateRunes bounds s to at most n runes without splitting a character.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
