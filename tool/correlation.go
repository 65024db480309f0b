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
	"sort"

	"github.com/dataquest-ai/analysis-engine/dataset"
)

// CorrelationTool computes pairwise correlations between numeric
// columns. It is the primary way to answer questions about relationships
// and statistical dependencies between variables.
type CorrelationTool struct{}

type correlationInput struct {
	Columns   []string `json:"columns,omitempty"`
	Method    string   `json:"method,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
}

// CorrelationPair is one reported correlation between two columns.
type CorrelationPair struct {
	Column1     string  `json:"column1"`
	Column2     string  `json:"column2"`
	Correlation float64 `json:"correlation"`
	Strength    string  `json:"strength"`
}

// CorrelationOutput is the structured result of the correlation tool.
type CorrelationOutput struct {
	Correlations []CorrelationPair `json:"correlations"`
	Method       string            `json:"method"`
	TotalPairs   int               `json:"total_pairs"`
}

// Declaration implements the Tool interface.
func (t *CorrelationTool) Declaration() *Declaration {
	return &Declaration{
		Name: "calculate_correlation",
		Description: "Calculate correlation between numeric columns. " +
			"PRIMARY way to answer questions about relationships, correlations, " +
			"associations or statistical dependencies between variables.",
		InputSchema: &Schema{
			Type: "object",
			Properties: map[string]*Schema{
				"columns": {
					Type:        "array",
					Description: "Specific columns to analyze. Omit to analyze all numeric columns.",
					Items:       &Schema{Type: "string"},
				},
				"method": {
					Type:        "string",
					Description: "Correlation method.",
					Enum:        []any{"pearson", "spearman", "kendall"},
				},
				"threshold": {
					Type:        "number",
					Description: "Minimum absolute correlation value to report (0-1). Default 0.7.",
				},
			},
		},
	}
}

// Call implements the Tool interface.
func (t *CorrelationTool) Call(ctx context.Context, table *dataset.Table, args json.RawMessage) (any, error) {
	in := correlationInput{Method: "pearson"}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, &ValidationError{Tool: "calculate_correlation", Reason: err.Error()}
		}
	}
	if in.Method == "" {
		in.Method = "pearson"
	}
	threshold := 0.7
	if in.Threshold != nil {
		threshold = *in.Threshold
	}

	cols := in.Columns
	if len(cols) == 0 {
		cols = table.Profile().NumericColumns()
	} else {
		// Keep only requested columns that are actually numeric.
		var numeric []string
		for _, c := range cols {
			if k, ok := table.Kind(c); ok && k == dataset.KindNumeric {
				numeric = append(numeric, c)
			}
		}
		cols = numeric
	}
	out := &CorrelationOutput{Correlations: []CorrelationPair{}, Method: in.Method}
	if len(cols) < 2 {
		return out, nil
	}

	values := make(map[string][]float64, len(cols))
	masks := make(map[string][]bool, len(cols))
	for _, c := range cols {
		vals, valid, err := table.Numeric(c)
		if err != nil {
			return nil, err
		}
		values[c], masks[c] = vals, valid
	}

	for i := 0; i < len(cols); i++ {
		for j := i + 1; j < len(cols); j++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			x, y := alignPairs(values[cols[i]], masks[cols[i]], values[cols[j]], masks[cols[j]])
			var r float64
			switch in.Method {
			case "spearman":
				r = spearman(x, y)
			case "kendall":
				r = kendall(x, y)
			default:
				r = pearson(x, y)
			}
			if math.IsNaN(r) || math.Abs(r) < threshold {
				continue
			}
			strength := "moderate"
			if math.Abs(r) >= 0.8 {
				strength = "strong"
			}
			out.Correlations = append(out.Correlations, CorrelationPair{
				Column1:     cols[i],
				Column2:     cols[j],
				Correlation: round3(r),
				Strength:    strength,
			})
		}
	}

	sort.Slice(out.Correlations, func(a, b int) bool {
		return math.Abs(out.Correlations[a].Correlation) > math.Abs(out.Correlations[b].Correlation)
	})
	out.TotalPairs = len(out.Correlations)
	return out, nil
}

// alignPairs keeps only rows valid in both columns.
func alignPairs(xs []float64, xm []bool, ys []float64, ym []bool) ([]float64, []float64) {
	var x, y []float64
	for i := range xs {
		if xm[i] && ym[i] {
			x = append(x, xs[i])
			y = append(y, ys[i])
		}
	}
	return x, y
}

var _ Tool = (*CorrelationTool)(nil)

func init() {
	RegisterPreview("calculate_correlation", func(args map[string]any) string {
		method, _ := args["method"].(string)
		if method == "" {
			method = "pearson"
		}
		threshold, ok := args["threshold"].(float64)
		if !ok {
			threshold = 0.7
		}
		return fmt.Sprintf("compute %s correlations between numeric columns (|r| >= %g)", method, threshold)
	})
}
