package model

// EmailSourceID is the attribution key for the email body unit. Every other
// unit is keyed by its URL.
const EmailSourceID = "Email"

// RetrievedUnit is one analyzable piece of content: the email body or one
// retrieved page.
type RetrievedUnit struct {
	SourceID           string `json:"source_id"`
	Content            string `json:"content"`
	Title              string `json:"title,omitempty"`
	RetrievalSucceeded bool   `json:"retrieval_succeeded"`
	// RetrievalSource names the backend that produced the content
	// (e.g. "jina", "local_http", "perplexity", "email").
	RetrievalSource string `json:"retrieval_source,omitempty"`
	Error           string `json:"error,omitempty"`
}

// ContentChunk is one bounded slice of an oversized unit. Chunks exist only
// for the duration of the run.
type ContentChunk struct {
	UnitSourceID string `json:"unit_source_id"`
	Index        int    `json:"index"`
	Text         string `json:"text"`
	CharCount    int    `json:"char_count"`
}

// UnitAnalysisResult is the oracle's verdict for one unit, or the merged
// verdict of its chunks.
type UnitAnalysisResult struct {
	SourceID      string         `json:"source_id"`
	Matched       bool           `json:"matched"`
	ExtractedData map[string]any `json:"extracted_data"`
	Reasoning     string         `json:"reasoning"`
	Confidence    float64        `json:"confidence"`
	UsedChunking  bool           `json:"used_chunking"`
}
