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
	"sort"
	"strings"

	"github.com/dataquest-ai/analysis-engine/dataset"
)

const defaultTopN = 10

// ValueCountsTool counts occurrences of each distinct value in a column,
// typically a categorical one.
type ValueCountsTool struct{}

type valueCountsInput struct {
	Column    string `json:"column"`
	TopN      *int   `json:"top_n,omitempty"`
	Normalize bool   `json:"normalize,omitempty"`
}

// ValueCount is a single distinct value with its frequency. Proportion
// is only set when normalization was requested.
type ValueCount struct {
	Value      string   `json:"value"`
	Count      int      `json:"count"`
	Proportion *float64 `json:"proportion,omitempty"`
}

// ValueCountsOutput is the structured result of the value counts tool.
type ValueCountsOutput struct {
	Column      string       `json:"column"`
	Counts      []ValueCount `json:"counts"`
	UniqueCount int          `json:"unique_count"`
	TotalRows   int          `json:"total_rows"`
}

// Declaration implements the Tool interface.
func (t *ValueCountsTool) Declaration() *Declaration {
	return &Declaration{
		Name: "count_values",
		Description: "Count occurrences of each distinct value in a column. " +
			"Use for categorical columns to find the most common values.",
		InputSchema: &Schema{
			Type:     "object",
			Required: []string{"column"},
			Properties: map[string]*Schema{
				"column": {
					Type:        "string",
					Description: "Column to count distinct values of.",
				},
				"top_n": {
					Type:        "integer",
					Description: "Number of most frequent values to return. Defaults to 10.",
				},
				"normalize": {
					Type:        "boolean",
					Description: "Also report each value's proportion of non-empty rows.",
				},
			},
		},
	}
}

// Call implements the Tool interface.
func (t *ValueCountsTool) Call(ctx context.Context, table *dataset.Table, args json.RawMessage) (any, error) {
	var in valueCountsInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, &ValidationError{Tool: "count_values", Reason: err.Error()}
	}
	if !table.HasColumn(in.Column) {
		return nil, fmt.Errorf("column %q not found", in.Column)
	}
	topN := defaultTopN
	if in.TopN != nil && *in.TopN > 0 {
		topN = *in.TopN
	}

	cells, err := table.Strings(in.Column)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	total := 0
	for _, c := range cells {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		counts[c]++
		total++
	}

	out := &ValueCountsOutput{
		Column:      in.Column,
		UniqueCount: len(counts),
		TotalRows:   total,
	}
	for v, c := range counts {
		out.Counts = append(out.Counts, ValueCount{Value: v, Count: c})
	}
	// Descending by count, value as tiebreaker for a stable order.
	sort.Slice(out.Counts, func(i, j int) bool {
		if out.Counts[i].Count != out.Counts[j].Count {
			return out.Counts[i].Count > out.Counts[j].Count
		}
		return out.Counts[i].Value < out.Counts[j].Value
	})
	if len(out.Counts) > topN {
		out.Counts = out.Counts[:topN]
	}
	if in.Normalize && total > 0 {
		for i := range out.Counts {
			p := round3(float64(out.Counts[i].Count) / float64(total))
			out.Counts[i].Proportion = &p
		}
	}
	return out, nil
}

var _ Tool = (*ValueCountsTool)(nil)

func init() {
	RegisterPreview("count_values", func(args map[string]any) string {
		column, _ := args["column"].(string)
		return fmt.Sprintf("count distinct values of %q", column)
	})
}
