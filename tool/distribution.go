//
// Copyright (C) 2025 DataQuest AI. All rights reserved.
//
// analysis-engine is licensed under the Apache License Version 2.0.
//

package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/dataquest-ai/analysis-engine/dataset"
)

const defaultHistogramBins = 10

// DistributionTool computes a histogram and summary statistics for a
// numeric column.
type DistributionTool struct{}

type distributionInput struct {
	Column string `json:"column"`
	Bins   *int   `json:"bins,omitempty"`
}

// HistogramBin is a single half-open histogram bucket [Low, High); the
// last bin is closed on both ends.
type HistogramBin struct {
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
	Count int     `json:"count"`
}

// DistributionStats summarizes the column's numeric values.
type DistributionStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Q1     float64 `json:"q1"`
	Q3     float64 `json:"q3"`
}

// DistributionOutput is the structured result of the distribution tool.
type DistributionOutput struct {
	Column    string             `json:"column"`
	Histogram []HistogramBin     `json:"histogram"`
	Stats     *DistributionStats `json:"stats"`
}

// Declaration implements the Tool interface.
func (t *DistributionTool) Declaration() *Declaration {
	return &Declaration{
		Name: "analyze_distribution",
		Description: "Analyze the distribution of a numeric column: histogram plus " +
			"summary statistics (mean, median, std, min, max, quartiles).",
		InputSchema: &Schema{
			Type:     "object",
			Required: []string{"column"},
			Properties: map[string]*Schema{
				"column": {
					Type:        "string",
					Description: "Numeric column to analyze.",
				},
				"bins": {
					Type:        "integer",
					Description: "Number of histogram bins. Defaults to 10.",
				},
			},
		},
	}
}

// Call implements the Tool interface.
func (t *DistributionTool) Call(ctx context.Context, table *dataset.Table, args json.RawMessage) (any, error) {
	var in distributionInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, &ValidationError{Tool: "analyze_distribution", Reason: err.Error()}
	}
	if !table.HasColumn(in.Column) {
		return nil, fmt.Errorf("column %q not found", in.Column)
	}
	if kind, _ := table.Kind(in.Column); kind != dataset.KindNumeric {
		return nil, fmt.Errorf("column %q is not numeric", in.Column)
	}
	bins := defaultHistogramBins
	if in.Bins != nil && *in.Bins > 0 {
		bins = *in.Bins
	}

	raw, valid, err := table.Numeric(in.Column)
	if err != nil {
		return nil, err
	}
	var vals []float64
	for i, v := range raw {
		if valid[i] {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("column %q has no numeric values", in.Column)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	minV, maxV := vals[0], vals[0]
	for _, v := range vals[1:] {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}

	out := &DistributionOutput{
		Column:    in.Column,
		Histogram: buildHistogram(vals, minV, maxV, bins),
		Stats: &DistributionStats{
			Count:  len(vals),
			Mean:   round3(mean(vals)),
			Median: round3(median(vals)),
			Std:    round3(sanitize(stddev(vals))),
			Min:    round3(minV),
			Max:    round3(maxV),
			Q1:     round3(quantile(vals, 0.25)),
			Q3:     round3(quantile(vals, 0.75)),
		},
	}
	return out, nil
}

func buildHistogram(vals []float64, minV, maxV float64, bins int) []HistogramBin {
	if minV == maxV {
		// Degenerate range: everything lands in one bucket.
		return []HistogramBin{{Low: minV, High: maxV, Count: len(vals)}}
	}
	width := (maxV - minV) / float64(bins)
	out := make([]HistogramBin, bins)
	for i := range out {
		out[i].Low = minV + float64(i)*width
		out[i].High = minV + float64(i+1)*width
	}
	out[bins-1].High = maxV
	for _, v := range vals {
		idx := int((v - minV) / width)
		if idx >= bins {
			idx = bins - 1
		}
		out[idx].Count++
	}
	return out
}

func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

var _ Tool = (*DistributionTool)(nil)

func init() {
	RegisterPreview("analyze_distribution", func(args map[string]any) string {
		column, _ := args["column"].(string)
		return fmt.Sprintf("analyze the distribution of %q", column)
	})
}
