package pipeline

import (
	"reflect"
	"sort"

	"github.com/henrikfb/mailsift/internal/model"
)

// aggregate folds per-unit verdicts into the terminal result. Zero matches
// is a successful outcome with an empty result, not an error.
func aggregate(results []model.UnitAnalysisResult) *model.AggregatedResult {
	agg := &model.AggregatedResult{
		MergedData:   map[string]any{},
		DataBySource: []model.SourceData{},
	}

	var confidenceSum float64
	for _, res := range results {
		if !res.Matched {
			continue
		}
		agg.TotalMatchedUnits++
		confidenceSum += res.Confidence
		agg.DataBySource = append(agg.DataBySource, model.SourceData{
			Source:     res.SourceID,
			Data:       res.ExtractedData,
			Confidence: res.Confidence,
		})
	}

	if agg.TotalMatchedUnits == 0 {
		return agg
	}

	agg.Matched = true
	agg.OverallConfidence = confidenceSum / float64(agg.TotalMatchedUnits)

	// Email first, then links by confidence. Stable so equal-confidence
	// sources keep analysis order.
	sort.SliceStable(agg.DataBySource, func(i, j int) bool {
		a, b := agg.DataBySource[i], agg.DataBySource[j]
		if (a.Source == model.EmailSourceID) != (b.Source == model.EmailSourceID) {
			return a.Source == model.EmailSourceID
		}
		return a.Confidence > b.Confidence
	})

	for _, sd := range agg.DataBySource {
		mergeData(agg.MergedData, sd.Data)
	}
	return agg
}

// mergeData folds src into dst field by field:
//   - both arrays: union, preserving dst order, deduplicated
//   - both maps: shallow merge, dst keys win
//   - equal scalars: keep
//   - conflicting scalars: promote to a deduplicated array
func mergeData(dst map[string]any, src map[string]any) {
	for key, sv := range src {
		dv, exists := dst[key]
		if !exists || dv == nil {
			dst[key] = sv
			continue
		}
		if sv == nil {
			continue
		}

		dArr, dIsArr := dv.([]any)
		sArr, sIsArr := sv.([]any)
		switch {
		case dIsArr && sIsArr:
			dst[key] = unionValues(dArr, sArr)
		case dIsArr:
			dst[key] = unionValues(dArr, []any{sv})
		case sIsArr:
			dst[key] = unionValues([]any{dv}, sArr)
		default:
			dMap, dIsMap := dv.(map[string]any)
			sMap, sIsMap := sv.(map[string]any)
			if dIsMap && sIsMap {
				for k, v := range sMap {
					if _, ok := dMap[k]; !ok {
						dMap[k] = v
					}
				}
				continue
			}
			if valuesEqual(dv, sv) {
				continue
			}
			dst[key] = unionValues([]any{dv}, []any{sv})
		}
	}
}

func unionValues(a, b []any) []any {
	out := make([]any, 0, len(a)+len(b))
	for _, v := range a {
		if !containsValue(out, v) {
			out = append(out, v)
		}
	}
	for _, v := range b {
		if !containsValue(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func containsValue(list []any, v any) bool {
	for _, existing := range list {
		if valuesEqual(existing, v) {
			return true
		}
	}
	return false
}

func valuesEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
