package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/henrikfb/mailsift/internal/model"
)

func TestAggregateZeroMatchesIsSuccess(t *testing.T) {
	agg := aggregate([]model.UnitAnalysisResult{
		{SourceID: "Email", Matched: false, Confidence: 0.2},
		{SourceID: "https://a.example", Matched: false, Confidence: 0.1},
	})

	assert.False(t, agg.Matched)
	assert.Empty(t, agg.MergedData)
	assert.Zero(t, agg.OverallConfidence)
	assert.Empty(t, agg.DataBySource)
	assert.Zero(t, agg.TotalMatchedUnits)
	assert.Empty(t, agg.Error)
}

func TestAggregateEmailFirstThenConfidence(t *testing.T) {
	agg := aggregate([]model.UnitAnalysisResult{
		{SourceID: "https://low.example", Matched: true, Confidence: 0.6, ExtractedData: map[string]any{}},
		{SourceID: "https://high.example", Matched: true, Confidence: 0.9, ExtractedData: map[string]any{}},
		{SourceID: model.EmailSourceID, Matched: true, Confidence: 0.7, ExtractedData: map[string]any{}},
	})

	require.Len(t, agg.DataBySource, 3)
	assert.Equal(t, model.EmailSourceID, agg.DataBySource[0].Source)
	assert.Equal(t, "https://high.example", agg.DataBySource[1].Source)
	assert.Equal(t, "https://low.example", agg.DataBySource[2].Source)
	assert.InDelta(t, (0.6+0.9+0.7)/3, agg.OverallConfidence, 1e-9)
	assert.Equal(t, 3, agg.TotalMatchedUnits)
}

func TestAggregateIgnoresUnmatchedConfidence(t *testing.T) {
	agg := aggregate([]model.UnitAnalysisResult{
		{SourceID: "Email", Matched: true, Confidence: 0.8, ExtractedData: map[string]any{"a": "1"}},
		{SourceID: "https://a.example", Matched: false, Confidence: 0.1},
	})

	assert.True(t, agg.Matched)
	assert.Equal(t, 1, agg.TotalMatchedUnits)
	assert.InDelta(t, 0.8, agg.OverallConfidence, 1e-9)
}

func TestMergeDataArrayUnion(t *testing.T) {
	dst := map[string]any{"tags": []any{"a", "b"}}
	mergeData(dst, map[string]any{"tags": []any{"b", "c"}})

	assert.Equal(t, []any{"a", "b", "c"}, dst["tags"])
}

func TestMergeDataScalarIntoArray(t *testing.T) {
	dst := map[string]any{"sku": []any{"a"}}
	mergeData(dst, map[string]any{"sku": "b"})
	assert.Equal(t, []any{"a", "b"}, dst["sku"])

	dst = map[string]any{"sku": "a"}
	mergeData(dst, map[string]any{"sku": []any{"b"}})
	assert.Equal(t, []any{"a", "b"}, dst["sku"])
}

func TestMergeDataMapShallowMergeFirstWins(t *testing.T) {
	dst := map[string]any{"address": map[string]any{"city": "Oslo"}}
	mergeData(dst, map[string]any{"address": map[string]any{"city": "Bergen", "zip": "5003"}})

	addr := dst["address"].(map[string]any)
	assert.Equal(t, "Oslo", addr["city"])
	assert.Equal(t, "5003", addr["zip"])
}

func TestMergeDataScalarConflictPromotesToArray(t *testing.T) {
	dst := map[string]any{"price": "10"}
	mergeData(dst, map[string]any{"price": "12"})
	assert.Equal(t, []any{"10", "12"}, dst["price"])

	// Equal values stay scalar.
	dst = map[string]any{"price": "10"}
	mergeData(dst, map[string]any{"price": "10"})
	assert.Equal(t, "10", dst["price"])
}

func TestMergeDataNilHandling(t *testing.T) {
	dst := map[string]any{"a": nil}
	mergeData(dst, map[string]any{"a": "x", "b": nil})

	assert.Equal(t, "x", dst["a"])
	assert.Contains(t, dst, "b")
	assert.Nil(t, dst["b"])
}

func TestAggregateMergePriorityFollowsSourceOrder(t *testing.T) {
	// Higher-confidence sources merge first, so the email value leads the
	// promoted array.
	agg := aggregate([]model.UnitAnalysisResult{
		{SourceID: "https://a.example", Matched: true, Confidence: 0.9, ExtractedData: map[string]any{"status": "shipped"}},
		{SourceID: model.EmailSourceID, Matched: true, Confidence: 0.5, ExtractedData: map[string]any{"status": "pending"}},
	})

	assert.Equal(t, []any{"pending", "shipped"}, agg.MergedData["status"])
}
