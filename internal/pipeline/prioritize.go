package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/henrikfb/mailsift/internal/model"
)

// maxLinksPerPrioritizeCall caps how many candidates one oracle call sees.
// Marketing emails can carry hundreds of links; past this point the tail is
// boilerplate (footers, social icons) anyway.
const maxLinksPerPrioritizeCall = 50

// prioritizeLinks asks the oracle to rank the candidate links against the
// refined intent and returns at most cfg.MaxLinksToScrape of them in oracle
// order. Oracle failure falls back to button-like links.
func (p *Pipeline) prioritizeLinks(ctx context.Context, cfg *model.AgentConfig, intent *model.EmailIntent, links []model.ExtractedLink) []model.ExtractedLink {
	if len(links) == 0 {
		return nil
	}
	candidates := links
	if len(candidates) > maxLinksPerPrioritizeCall {
		candidates = candidates[:maxLinksPerPrioritizeCall]
	}

	text, err := p.askOracle(ctx, "prioritization", prioritizeSystemPrompt, buildPrioritizePrompt(cfg, intent, candidates), 256)
	if err != nil {
		zap.L().Warn("pipeline: prioritization failed, falling back to button links", zap.Error(err))
		return truncateLinks(buttonFallback(cfg.ButtonTextPattern, candidates), cfg.MaxLinksToScrape)
	}

	selected := parseSelection(text, candidates)
	return truncateLinks(selected, cfg.MaxLinksToScrape)
}

func buildPrioritizePrompt(cfg *model.AgentConfig, intent *model.EmailIntent, candidates []model.ExtractedLink) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Extraction goal: %s\n", intent.RefinedGoal)
	if len(intent.KeyTerms) > 0 {
		fmt.Fprintf(&b, "Key terms: %s\n", strings.Join(intent.KeyTerms, ", "))
	}
	if intent.ExpectedContent != "" {
		fmt.Fprintf(&b, "Expected content: %s\n", intent.ExpectedContent)
	}
	if cfg.LinkSelectionGuidance != "" {
		fmt.Fprintf(&b, "Additional guidance: %s\n", cfg.LinkSelectionGuidance)
	}

	b.WriteString("\nLinks:\n")
	for i, link := range candidates {
		marker := ""
		if link.IsButtonLike {
			marker = " [button]"
		}
		display := link.DisplayText
		if display == "" {
			display = "(no text)"
		}
		fmt.Fprintf(&b, "%d. %s%s -> %s\n", i, display, marker, link.URL)
	}
	return b.String()
}

// parseSelection turns the oracle's comma-separated index list into links,
// dropping tokens that are not valid in-range indices. Duplicate indices
// keep their first position. "none" means no link is worth retrieving.
func parseSelection(text string, candidates []model.ExtractedLink) []model.ExtractedLink {
	text = strings.TrimSpace(text)
	if strings.EqualFold(text, "none") {
		return nil
	}

	seen := make(map[int]bool)
	var selected []model.ExtractedLink
	for _, token := range strings.Split(text, ",") {
		token = strings.TrimSpace(strings.Trim(strings.TrimSpace(token), "."))
		if token == "" {
			continue
		}
		idx, err := strconv.Atoi(token)
		if err != nil || idx < 0 || idx >= len(candidates) || seen[idx] {
			continue
		}
		seen[idx] = true
		selected = append(selected, candidates[idx])
	}
	return selected
}

// buttonFallback keeps only the links whose text matches the configured
// button pattern, in document order. Without a pattern there is nothing to
// match against, so nothing is selected rather than guessing from styling.
func buttonFallback(pattern string, candidates []model.ExtractedLink) []model.ExtractedLink {
	if pattern == "" {
		return nil
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		zap.L().Warn("pipeline: invalid button text pattern, skipping fallback", zap.String("pattern", pattern), zap.Error(err))
		return nil
	}
	var out []model.ExtractedLink
	for _, link := range candidates {
		if re.MatchString(link.DisplayText) {
			out = append(out, link)
		}
	}
	return out
}

func truncateLinks(links []model.ExtractedLink, max int) []model.ExtractedLink {
	if max > 0 && len(links) > max {
		return links[:max]
	}
	return links
}
