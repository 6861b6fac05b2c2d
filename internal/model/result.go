package model

import "time"

// SourceData attributes merged data to one originating source.
type SourceData struct {
	Source     string         `json:"source"`
	Data       map[string]any `json:"data"`
	Confidence float64        `json:"confidence"`
}

// AggregatedResult is the terminal output of a run. It is always produced,
// even when no unit matched; absence of matches is success, not error.
type AggregatedResult struct {
	Matched           bool           `json:"matched"`
	MergedData        map[string]any `json:"merged_data"`
	OverallConfidence float64        `json:"overall_confidence"`
	DataBySource      []SourceData   `json:"data_by_source"`
	TotalMatchedUnits int            `json:"total_matched_units"`
	// Error carries degraded-stage detail. Its presence does not mean the
	// run failed; a failed run surfaces as an error from Run itself.
	Error string `json:"error,omitempty"`
}

// RunStatus tracks the pipeline state machine.
type RunStatus string

const (
	RunStatusFetching         RunStatus = "fetching"
	RunStatusLinkDiscovery    RunStatus = "link_discovery"
	RunStatusIntentRefinement RunStatus = "intent_refinement"
	RunStatusPrioritization   RunStatus = "prioritization"
	RunStatusRetrieval        RunStatus = "retrieval"
	RunStatusSizeRouting      RunStatus = "size_routing"
	RunStatusUnitAnalysis     RunStatus = "unit_analysis"
	RunStatusAggregation      RunStatus = "aggregation"
	RunStatusDone             RunStatus = "done"
	RunStatusFailed           RunStatus = "failed"
)

// Run is the persisted record of one pipeline execution.
type Run struct {
	ID        string            `json:"id"`
	EmailID   string            `json:"email_id"`
	Status    RunStatus         `json:"status"`
	Result    *AggregatedResult `json:"result,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// StageSnapshot is one recorded inspection point: a stage's inputs or
// outputs, captured best-effort by the run recorder.
type StageSnapshot struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	Stage      string    `json:"stage"`
	Payload    any       `json:"payload"`
	RecordedAt time.Time `json:"recorded_at"`
}
