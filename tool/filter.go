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
	"strconv"
	"strings"

	"github.com/dataquest-ai/analysis-engine/dataset"
)

const defaultFilterLimit = 10

// FilterTool selects rows matching a predicate on a single column and
// returns up to a limit of them.
type FilterTool struct{}

type filterInput struct {
	Column   string `json:"column"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
	Limit    *int   `json:"limit,omitempty"`
}

// FilterOutput reports the matched rows plus match bookkeeping so the
// caller can tell whether the returned slice was truncated.
type FilterOutput struct {
	Rows       []map[string]any `json:"rows"`
	MatchCount int              `json:"match_count"`
	Returned   int              `json:"returned"`
	Column     string           `json:"column"`
	Operator   string           `json:"operator"`
	Value      any              `json:"value"`
}

// Declaration implements the Tool interface.
func (t *FilterTool) Declaration() *Declaration {
	return &Declaration{
		Name: "filter_data",
		Description: "Filter rows by a condition on one column and return matching rows. " +
			"Use to inspect specific records, e.g. rows where a value exceeds a threshold.",
		InputSchema: &Schema{
			Type:     "object",
			Required: []string{"column", "operator", "value"},
			Properties: map[string]*Schema{
				"column": {
					Type:        "string",
					Description: "Column the condition applies to.",
				},
				"operator": {
					Type:        "string",
					Description: "Comparison operator.",
					Enum:        []any{">", "<", ">=", "<=", "==", "!=", "contains", "in"},
				},
				"value": {
					Description: "Value to compare against. For 'in', a list of values.",
				},
				"limit": {
					Type:        "integer",
					Description: "Maximum number of rows to return. Defaults to 10.",
				},
			},
		},
	}
}

// Call implements the Tool interface.
func (t *FilterTool) Call(ctx context.Context, table *dataset.Table, args json.RawMessage) (any, error) {
	var in filterInput
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, &ValidationError{Tool: "filter_data", Reason: err.Error()}
	}
	if !table.HasColumn(in.Column) {
		return nil, fmt.Errorf("column %q not found", in.Column)
	}
	limit := defaultFilterLimit
	if in.Limit != nil && *in.Limit > 0 {
		limit = *in.Limit
	}

	pred, err := buildPredicate(in.Operator, in.Value)
	if err != nil {
		return nil, &ValidationError{Tool: "filter_data", Reason: err.Error()}
	}

	cells, err := table.Strings(in.Column)
	if err != nil {
		return nil, err
	}

	out := &FilterOutput{
		Rows:     []map[string]any{},
		Column:   in.Column,
		Operator: in.Operator,
		Value:    in.Value,
	}
	for i, cell := range cells {
		if i%1024 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !pred(cell) {
			continue
		}
		out.MatchCount++
		if len(out.Rows) < limit {
			out.Rows = append(out.Rows, table.Row(i))
		}
	}
	out.Returned = len(out.Rows)
	return out, nil
}

// buildPredicate compiles the operator/value pair into a cell predicate.
// Numeric operators compare numerically when both sides parse as numbers,
// otherwise lexically.
func buildPredicate(operator string, value any) (func(cell string) bool, error) {
	switch operator {
	case ">", "<", ">=", "<=":
		want, ok := toFloat(value)
		if !ok {
			return nil, fmt.Errorf("operator %q requires a numeric value, got %v", operator, value)
		}
		return func(cell string) bool {
			got, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return false
			}
			switch operator {
			case ">":
				return got > want
			case "<":
				return got < want
			case ">=":
				return got >= want
			default:
				return got <= want
			}
		}, nil
	case "==", "!=":
		if want, ok := toFloat(value); ok {
			return func(cell string) bool {
				got, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
				if err != nil {
					// Fall back to string comparison for non-numeric cells.
					eq := strings.TrimSpace(cell) == fmt.Sprintf("%v", value)
					if operator == "==" {
						return eq
					}
					return !eq
				}
				if operator == "==" {
					return got == want
				}
				return got != want
			}, nil
		}
		want := fmt.Sprintf("%v", value)
		return func(cell string) bool {
			eq := strings.TrimSpace(cell) == want
			if operator == "==" {
				return eq
			}
			return !eq
		}, nil
	case "contains":
		want := strings.ToLower(fmt.Sprintf("%v", value))
		return func(cell string) bool {
			return strings.Contains(strings.ToLower(cell), want)
		}, nil
	case "in":
		list, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("operator \"in\" requires a list value, got %v", value)
		}
		set := make(map[string]struct{}, len(list))
		for _, v := range list {
			set[fmt.Sprintf("%v", v)] = struct{}{}
		}
		return func(cell string) bool {
			_, ok := set[strings.TrimSpace(cell)]
			return ok
		}, nil
	default:
		return nil, fmt.Errorf("unsupported operator %q", operator)
	}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

var _ Tool = (*FilterTool)(nil)

func init() {
	RegisterPreview("filter_data", func(args map[string]any) string {
		column, _ := args["column"].(string)
		operator, _ := args["operator"].(string)
		return fmt.Sprintf("select rows where %q %s %v", column, operator, args["value"])
	})
}
