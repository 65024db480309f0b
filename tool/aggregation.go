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
	"strings"

	"github.com/dataquest-ai/analysis-engine/dataset"
)

// AggregationTool aggregates one column, optionally grouped by another.
// It is the primary way to answer "average of X", "sum of Y by category"
// style questions.
type AggregationTool struct{}

type aggregationInput struct {
	Column    string  `json:"column"`
	Operation string  `json:"operation"`
	GroupBy   *string `json:"group_by,omitempty"`
}

// AggregationOutput is the structured result of the aggregation tool.
// Result is a scalar for ungrouped aggregations, or a group-keyed map
// for grouped ones; a nil group value means the aggregate was undefined
// for that group (e.g. std of a single row).
type AggregationOutput struct {
	Result    any     `json:"result"`
	Operation string  `json:"operation"`
	Column    string  `json:"column"`
	GroupBy   *string `json:"group_by,omitempty"`
}

// Declaration implements the Tool interface.
func (t *AggregationTool) Declaration() *Declaration {
	return &Declaration{
		Name: "aggregate_data",
		Description: "Perform aggregation on a column, optionally grouped by another. " +
			"PRIMARY way to answer questions like averages, sums, minimums, maximums " +
			"or counts per group.",
		InputSchema: &Schema{
			Type:     "object",
			Required: []string{"column", "operation"},
			Properties: map[string]*Schema{
				"column": {
					Type:        "string",
					Description: "Column to aggregate.",
				},
				"operation": {
					Type:        "string",
					Description: "Aggregation operation.",
					Enum:        []any{"mean", "median", "sum", "min", "max", "count", "std"},
				},
				"group_by": {
					Type:        "string",
					Description: "Column to group by before aggregating.",
				},
			},
		},
	}
}

// Call implements the Tool interface.
func (t *AggregationTool) Call(ctx context.Context, table *dataset.Table, args json.RawMessage) (any, error) {
	var in aggregationInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, &ValidationError{Tool: "aggregate_data", Reason: err.Error()}
	}
	if !table.HasColumn(in.Column) {
		return nil, fmt.Errorf("column %q not found", in.Column)
	}

	out := &AggregationOutput{Operation: in.Operation, Column: in.Column, GroupBy: in.GroupBy}

	if in.GroupBy == nil || *in.GroupBy == "" {
		vals, err := columnValues(table, in.Column, in.Operation)
		if err != nil {
			return nil, err
		}
		if in.Operation == "count" {
			out.Result = len(vals)
			return out, nil
		}
		v := applyAggregate(in.Operation, vals)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out.Result = nil
		} else {
			out.Result = v
		}
		return out, nil
	}

	if !table.HasColumn(*in.GroupBy) {
		return nil, fmt.Errorf("group by column %q not found", *in.GroupBy)
	}
	groups, err := table.Strings(*in.GroupBy)
	if err != nil {
		return nil, err
	}

	result := make(map[string]*float64)
	if in.Operation == "count" {
		cells, err := table.Strings(in.Column)
		if err != nil {
			return nil, err
		}
		counts := make(map[string]float64)
		for i, g := range groups {
			if strings.TrimSpace(cells[i]) != "" {
				counts[g]++
			}
		}
		for g, c := range counts {
			v := c
			result[g] = &v
		}
		out.Result = result
		return out, nil
	}

	vals, valid, err := table.Numeric(in.Column)
	if err != nil {
		return nil, err
	}
	byGroup := make(map[string][]float64)
	for i, g := range groups {
		if valid[i] {
			byGroup[g] = append(byGroup[g], vals[i])
		}
	}
	for g, gv := range byGroup {
		v := applyAggregate(in.Operation, gv)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			result[g] = nil
			continue
		}
		vv := v
		result[g] = &vv
	}
	out.Result = result
	return out, nil
}

// columnValues returns the numeric values of a column, or for count the
// non-empty cells coerced so len() is meaningful.
func columnValues(table *dataset.Table, column, operation string) ([]float64, error) {
	if operation == "count" {
		cells, err := table.Strings(column)
		if err != nil {
			return nil, err
		}
		var nonEmpty []float64
		for _, c := range cells {
			if strings.TrimSpace(c) != "" {
				nonEmpty = append(nonEmpty, 0)
			}
		}
		return nonEmpty, nil
	}
	vals, valid, err := table.Numeric(column)
	if err != nil {
		return nil, err
	}
	var out []float64
	for i, v := range vals {
		if valid[i] {
			out = append(out, v)
		}
	}
	return out, nil
}

func applyAggregate(operation string, vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	switch operation {
	case "mean":
		return mean(vals)
	case "median":
		return median(vals)
	case "sum":
		var s float64
		for _, v := range vals {
			s += v
		}
		return s
	case "min":
		m := vals[0]
		for _, v := range vals[1:] {
			if v < m {
				m = v
			}
		}
		return m
	case "max":
		m := vals[0]
		for _, v := range vals[1:] {
			if v > m {
				m = v
			}
		}
		return m
	case "std":
		return stddev(vals)
	default:
		return math.NaN()
	}
}

var _ Tool = (*AggregationTool)(nil)

func init() {
	RegisterPreview("aggregate_data", func(args map[string]any) string {
		column, _ := args["column"].(string)
		operation, _ := args["operation"].(string)
		if groupBy, ok := args["group_by"].(string); ok && groupBy != "" {
			return fmt.Sprintf("compute %s of %q grouped by %q", operation, column, groupBy)
		}
		return fmt.Sprintf("compute %s of %q", operation, column)
	})
}
