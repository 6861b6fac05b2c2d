package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/henrikfb/mailsift/internal/model"
)

const (
	// intentEmailBudget bounds how much email text the refinement call sees.
	intentEmailBudget = 2000
	maxKeyTerms       = 5
)

type intentResponse struct {
	RefinedGoal     string   `json:"refinedGoal"`
	KeyTerms        []string `json:"keyTerms"`
	ExpectedContent string   `json:"expectedContent"`
}

// refineIntent derives a focused retrieval goal from the email and the
// user's criteria. It never fails: any oracle or parse error falls back to
// the raw criteria.
func (p *Pipeline) refineIntent(ctx context.Context, cfg *model.AgentConfig, email *model.EmailDocument) *model.EmailIntent {
	fallback := &model.EmailIntent{
		RefinedGoal:     cfg.MatchCriteria,
		ExpectedContent: "pages related to the email's subject matter",
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Matching criteria: %s\n", cfg.MatchCriteria)
	if cfg.UserIntent != "" {
		fmt.Fprintf(&b, "User intent: %s\n", cfg.UserIntent)
	}
	fmt.Fprintf(&b, "Email subject: %s\n", email.Subject)
	fmt.Fprintf(&b, "Email excerpt:\n%s", truncateRunes(email.Body(), intentEmailBudget))

	text, err := p.askOracle(ctx, "intent_refinement", intentSystemPrompt, b.String(), 512)
	if err != nil {
		zap.L().Warn("pipeline: intent refinement failed, using criteria as goal", zap.Error(err))
		return fallback
	}

	var parsed intentResponse
	if err := json.Unmarshal([]byte(cleanJSON(text)), &parsed); err != nil {
		zap.L().Warn("pipeline: intent response unparseable, using criteria as goal", zap.Error(err))
		return fallback
	}
	if parsed.RefinedGoal == "" {
		return fallback
	}

	if len(parsed.KeyTerms) > maxKeyTerms {
		parsed.KeyTerms = parsed.KeyTerms[:maxKeyTerms]
	}
	return &model.EmailIntent{
		RefinedGoal:     parsed.RefinedGoal,
		KeyTerms:        parsed.KeyTerms,
		ExpectedContent: parsed.ExpectedContent,
	}
}
