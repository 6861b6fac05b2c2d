package model

import "github.com/rotisserie/eris"

// RetrievalStrategy selects how linked content is retrieved.
type RetrievalStrategy string

const (
	// StrategyFetchOnly downloads pages directly.
	StrategyFetchOnly RetrievalStrategy = "fetch-only"
	// StrategyFetchAndSearch runs both fetch and search, preferring the
	// richer result. Useful when pages sit behind partial auth walls.
	StrategyFetchAndSearch RetrievalStrategy = "fetch-and-search"
	// StrategySearchOnly queries a web-search backend instead of fetching.
	StrategySearchOnly RetrievalStrategy = "search-only"
)

// DefaultMaxLinksToScrape bounds how many links are retrieved per run.
const DefaultMaxLinksToScrape = 10

// AgentConfig is the per-run extraction configuration. It is loaded once at
// run start and read-only thereafter.
type AgentConfig struct {
	MatchCriteria    string `json:"match_criteria" yaml:"match_criteria"`
	ExtractionFields string `json:"extraction_fields" yaml:"extraction_fields"`

	UserIntent            string `json:"user_intent,omitempty" yaml:"user_intent"`
	LinkSelectionGuidance string `json:"link_selection_guidance,omitempty" yaml:"link_selection_guidance"`
	ExtractionExamples    string `json:"extraction_examples,omitempty" yaml:"extraction_examples"`
	AnalysisFeedback      string `json:"analysis_feedback,omitempty" yaml:"analysis_feedback"`

	// ButtonTextPattern is a regex applied to link text. Matching links get
	// a ranking boost during prioritization; it never filters links out.
	ButtonTextPattern string `json:"button_text_pattern,omitempty" yaml:"button_text_pattern"`

	FollowLinks      bool              `json:"follow_links" yaml:"follow_links"`
	MaxLinksToScrape int               `json:"max_links_to_scrape" yaml:"max_links_to_scrape"`
	Strategy         RetrievalStrategy `json:"content_retrieval_strategy" yaml:"content_retrieval_strategy"`

	// KnowledgeBaseIDs scope the optional reference-context lookup.
	KnowledgeBaseIDs []string `json:"knowledge_base_ids,omitempty" yaml:"knowledge_base_ids"`
	UserID           string   `json:"user_id,omitempty" yaml:"user_id"`
}

// Validate checks the required fields and fills defaults. A validation
// failure is an input error: the run must not start.
func (c *AgentConfig) Validate() error {
	if c.MatchCriteria == "" {
		return eris.New("agent config: match_criteria is required")
	}
	if c.ExtractionFields == "" {
		return eris.New("agent config: extraction_fields is required")
	}
	if c.MaxLinksToScrape <= 0 {
		c.MaxLinksToScrape = DefaultMaxLinksToScrape
	}
	switch c.Strategy {
	case StrategyFetchOnly, StrategyFetchAndSearch, StrategySearchOnly:
	case "":
		c.Strategy = StrategyFetchOnly
	default:
		return eris.Errorf("agent config: unknown content_retrieval_strategy %q", c.Strategy)
	}
	return nil
}
