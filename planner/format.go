//
// Copyright (C) 2025 DataQuest AI. All rights reserved.
//
// analysis-engine is licensed under the Apache License Version 2.0.
//

package planner

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/dataquest-ai/analysis-engine/tool"
	"github.com/dataquest-ai/analysis-engine/workflow"
)

// FormatResult renders a tool invocation's structured output as a
// natural-language answer. Formatting is deterministic per tool; tools
// without a dedicated formatter fall back to a JSON rendering. Sampled
// results are always labeled as such.
func FormatResult(result *workflow.ToolInvocation) string {
	var answer string
	switch result.Tool {
	case "calculate_correlation":
		answer = formatCorrelation(result.Output)
	case "aggregate_data":
		answer = formatAggregation(result.Output)
	case "analyze_distribution":
		answer = formatDistribution(result.Output)
	case "count_values":
		answer = formatValueCounts(result.Output)
	case "filter_data":
		answer = formatFilter(result.Output)
	default:
		answer = formatGeneric(result.Output)
	}
	if result.Sampled {
		answer += fmt.Sprintf(
			"\n\nNote: computed on a reproducible random sample of %d of %d rows.",
			result.SampleRows, result.OriginalRowCount)
	}
	return answer
}

// decodeOutput normalizes a tool output into the given typed struct.
// Outputs arrive either as live structs (in-process run) or as generic
// maps (state restored from a checkpoint); a JSON round trip handles
// both.
func decodeOutput(output any, into any) error {
	raw, err := json.Marshal(output)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, into)
}

func formatCorrelation(output any) string {
	var out tool.CorrelationOutput
	if err := decodeOutput(output, &out); err != nil {
		return formatGeneric(output)
	}
	if len(out.Correlations) == 0 {
		return "No strong correlations were found in your dataset."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "I found %d significant correlation(s) using %s correlation:\n\n",
		len(out.Correlations), out.Method)
	shown := out.Correlations
	if len(shown) > 5 {
		shown = shown[:5]
	}
	for i, corr := range shown {
		direction := "positively"
		if corr.Correlation < 0 {
			direction = "negatively"
		}
		fmt.Fprintf(&b, "%d. %s and %s are %sly %s correlated (%.3f)\n",
			i+1, corr.Column1, corr.Column2, corr.Strength, direction, corr.Correlation)
	}
	if len(out.Correlations) > 5 {
		fmt.Fprintf(&b, "\n...and %d more correlations.", len(out.Correlations)-5)
	}
	return b.String()
}

func formatAggregation(output any) string {
	var out tool.AggregationOutput
	if err := decodeOutput(output, &out); err != nil {
		return formatGeneric(output)
	}
	if out.GroupBy == nil || *out.GroupBy == "" {
		return fmt.Sprintf("The %s of %s is: %s", out.Operation, out.Column, formatScalar(out.Result))
	}

	groups, ok := out.Result.(map[string]any)
	if !ok {
		return fmt.Sprintf("The %s of %s by %s: %s",
			out.Operation, out.Column, *out.GroupBy, formatScalar(out.Result))
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "The %s of %s by %s:\n\n", out.Operation, out.Column, *out.GroupBy)
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", k, formatScalar(groups[k]))
	}
	return b.String()
}

func formatDistribution(output any) string {
	var out tool.DistributionOutput
	if err := decodeOutput(output, &out); err != nil || out.Stats == nil {
		return formatGeneric(output)
	}
	stats := out.Stats
	var b strings.Builder
	fmt.Fprintf(&b, "Distribution analysis for %s (%d values):\n\n", out.Column, stats.Count)
	fmt.Fprintf(&b, "- Mean: %.2f\n", stats.Mean)
	fmt.Fprintf(&b, "- Median: %.2f\n", stats.Median)
	fmt.Fprintf(&b, "- Std Dev: %.2f\n", stats.Std)
	fmt.Fprintf(&b, "- Range: [%.2f, %.2f]\n", stats.Min, stats.Max)
	fmt.Fprintf(&b, "- Q1-Q3: [%.2f, %.2f]\n", stats.Q1, stats.Q3)
	return b.String()
}

func formatValueCounts(output any) string {
	var out tool.ValueCountsOutput
	if err := decodeOutput(output, &out); err != nil {
		return formatGeneric(output)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Value counts for %s (%d unique values across %d rows):\n\n",
		out.Column, out.UniqueCount, out.TotalRows)
	for _, vc := range out.Counts {
		if vc.Proportion != nil {
			fmt.Fprintf(&b, "- %s: %d (%.1f%%)\n", vc.Value, vc.Count, *vc.Proportion*100)
			continue
		}
		fmt.Fprintf(&b, "- %s: %d\n", vc.Value, vc.Count)
	}
	return b.String()
}

func formatFilter(output any) string {
	var out tool.FilterOutput
	if err := decodeOutput(output, &out); err != nil {
		return formatGeneric(output)
	}
	if out.MatchCount == 0 {
		return fmt.Sprintf("No rows matched %s %s %v.", out.Column, out.Operator, out.Value)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d row(s) matched %s %s %v", out.MatchCount, out.Column, out.Operator, out.Value)
	if out.Returned < out.MatchCount {
		fmt.Fprintf(&b, " (showing the first %d)", out.Returned)
	}
	b.WriteString(":\n\n")
	rows, err := json.MarshalIndent(out.Rows, "", "  ")
	if err != nil {
		return b.String()
	}
	b.Write(rows)
	return b.String()
}

func formatGeneric(output any) string {
	raw, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return fmt.Sprintf("Analysis complete. Results: %v", output)
	}
	return "Analysis complete. Results:\n\n" + string(raw)
}

func formatScalar(v any) string {
	switch x := v.(type) {
	case nil:
		return "undefined"
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%.3f", x)
	case *float64:
		if x == nil {
			return "undefined"
		}
		return formatScalar(*x)
	case int:
		return fmt.Sprintf("%d", x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
