package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/henrikfb/mailsift/internal/model"
)

const (
	// degradedReasoning is reported when the oracle's verdict could not be
	// parsed. The unit is treated as unmatched rather than failing the run.
	degradedReasoning  = "analysis completed"
	degradedConfidence = 0.5

	analysisMaxTokens = 2048
)

type analysisResponse struct {
	Matched       bool           `json:"matched"`
	ExtractedData map[string]any `json:"extractedData"`
	Reasoning     string         `json:"reasoning"`
	Confidence    float64        `json:"confidence"`
}

// analyzeAll runs unit analysis with bounded concurrency. Units that failed
// retrieval are skipped. Output order matches input order, minus skips.
func (p *Pipeline) analyzeAll(ctx context.Context, cfg *model.AgentConfig, refContext string, units []model.RetrievedUnit) []model.UnitAnalysisResult {
	results := make([]*model.UnitAnalysisResult, len(units))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.analysisConcurrency)

	for i, unit := range units {
		if !unit.RetrievalSucceeded || unit.Content == "" {
			continue
		}
		g.Go(func() error {
			res := p.analyzeUnit(gCtx, cfg, refContext, unit)
			results[i] = &res
			return nil
		})
	}
	_ = g.Wait()

	out := make([]model.UnitAnalysisResult, 0, len(units))
	for _, res := range results {
		if res != nil {
			out = append(out, *res)
		}
	}
	return out
}

// analyzeUnit produces the verdict for one unit. Oversized units are split
// into chunks, analyzed chunk by chunk, and merged.
func (p *Pipeline) analyzeUnit(ctx context.Context, cfg *model.AgentConfig, refContext string, unit model.RetrievedUnit) model.UnitAnalysisResult {
	if !needsChunking(unit.Content) {
		return p.analyzeText(ctx, cfg, refContext, unit, unit.Content, "")
	}

	chunks := splitIntoChunks(unit.SourceID, unit.Content)
	zap.L().Info("pipeline: unit exceeds full-context threshold, chunking",
		zap.String("source", unit.SourceID),
		zap.Int("chars", len(unit.Content)),
		zap.Int("chunks", len(chunks)),
	)

	chunkResults := make([]model.UnitAnalysisResult, 0, len(chunks))
	for _, chunk := range chunks {
		note := fmt.Sprintf("This is part %d of %d of a larger document.", chunk.Index+1, len(chunks))
		chunkResults = append(chunkResults, p.analyzeText(ctx, cfg, refContext, unit, chunk.Text, note))
	}
	return mergeChunkResults(unit.SourceID, chunkResults)
}

func (p *Pipeline) analyzeText(ctx context.Context, cfg *model.AgentConfig, refContext string, unit model.RetrievedUnit, content, chunkNote string) model.UnitAnalysisResult {
	degraded := model.UnitAnalysisResult{
		SourceID:      unit.SourceID,
		Matched:       false,
		ExtractedData: map[string]any{},
		Reasoning:     degradedReasoning,
		Confidence:    degradedConfidence,
	}

	prompt := buildAnalysisPrompt(cfg, refContext, unit, content, chunkNote)
	text, err := p.askOracle(ctx, "unit_analysis", analysisSystemPrompt, prompt, analysisMaxTokens)
	if err != nil {
		zap.L().Warn("pipeline: unit analysis call failed",
			zap.String("source", unit.SourceID),
			zap.Error(err),
		)
		return degraded
	}

	var parsed analysisResponse
	if err := json.Unmarshal([]byte(cleanJSON(text)), &parsed); err != nil {
		zap.L().Warn("pipeline: unit analysis response unparseable",
			zap.String("source", unit.SourceID),
			zap.Error(err),
		)
		return degraded
	}

	if parsed.ExtractedData == nil {
		parsed.ExtractedData = map[string]any{}
	}
	if parsed.Confidence < 0 {
		parsed.Confidence = 0
	}
	if parsed.Confidence > 1 {
		parsed.Confidence = 1
	}
	return model.UnitAnalysisResult{
		SourceID:      unit.SourceID,
		Matched:       parsed.Matched,
		ExtractedData: parsed.ExtractedData,
		Reasoning:     parsed.Reasoning,
		Confidence:    parsed.Confidence,
	}
}

func buildAnalysisPrompt(cfg *model.AgentConfig, refContext string, unit model.RetrievedUnit, content, chunkNote string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Matching criteria: %s\n", cfg.MatchCriteria)
	fmt.Fprintf(&b, "Fields to extract: %s\n", cfg.ExtractionFields)
	if cfg.ExtractionExamples != "" {
		fmt.Fprintf(&b, "\nExamples of correct extractions:\n%s\n", cfg.ExtractionExamples)
	}
	if cfg.AnalysisFeedback != "" {
		fmt.Fprintf(&b, "\nFeedback from previous runs:\n%s\n", cfg.AnalysisFeedback)
	}
	if refContext != "" {
		fmt.Fprintf(&b, "\nReference context (background only, do not extract from it):\n%s\n", refContext)
	}

	fmt.Fprintf(&b, "\nSource: %s\n", unit.SourceID)
	if unit.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", unit.Title)
	}
	if chunkNote != "" {
		fmt.Fprintf(&b, "%s\n", chunkNote)
	}
	fmt.Fprintf(&b, "\nContent:\n%s", content)
	return b.String()
}

// mergeChunkResults combines per-chunk verdicts into one unit verdict. A
// unit matches if any chunk matched; data merges across matched chunks and
// confidence is their mean.
func mergeChunkResults(sourceID string, chunks []model.UnitAnalysisResult) model.UnitAnalysisResult {
	merged := model.UnitAnalysisResult{
		SourceID:      sourceID,
		ExtractedData: map[string]any{},
		UsedChunking:  true,
	}

	var confidenceSum float64
	var matchedCount int
	var reasonings []string
	for _, chunk := range chunks {
		if !chunk.Matched {
			continue
		}
		matchedCount++
		confidenceSum += chunk.Confidence
		mergeData(merged.ExtractedData, chunk.ExtractedData)
		if chunk.Reasoning != "" && chunk.Reasoning != degradedReasoning {
			reasonings = append(reasonings, chunk.Reasoning)
		}
	}

	if matchedCount == 0 {
		merged.Reasoning = "no part of the document matched the criteria"
		return merged
	}

	merged.Matched = true
	merged.Confidence = confidenceSum / float64(matchedCount)
	if len(reasonings) > 0 {
		merged.Reasoning = strings.Join(reasonings, " ")
	} else {
		merged.Reasoning = degradedReasoning
	}
	return merged
}
