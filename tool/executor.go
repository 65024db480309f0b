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
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/dataquest-ai/analysis-engine/dataset"
	"github.com/dataquest-ai/analysis-engine/log"
)

// Defaults for the executor.
const (
	// DefaultSampleThreshold is the row count above which a dataset is
	// sampled before any tool runs against it.
	DefaultSampleThreshold = 10000

	// DefaultToolTimeout bounds the wall-clock time of one tool run.
	DefaultToolTimeout = 30 * time.Second
)

// Request names a tool and carries its raw, not-yet-validated arguments.
type Request struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Result is the outcome of one tool execution. Failures are captured in
// Err rather than raised: the planner sees them and re-plans.
type Result struct {
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments,omitempty"`

	// Output is the structured result; nil when Err is set.
	Output any `json:"output,omitempty"`

	// Err is a *ValidationError or *ExecutionError, nil on success.
	Err error `json:"-"`

	// Sampled reports that the tool ran on a sample; SampleRows and
	// OriginalRowCount describe the reduction. Downstream consumers
	// must label sampled results as such.
	Sampled          bool `json:"sampled,omitempty"`
	SampleRows       int  `json:"sample_rows,omitempty"`
	OriginalRowCount int  `json:"original_row_count,omitempty"`

	// Duration is the wall-clock time of the execution.
	Duration time.Duration `json:"duration"`
}

// Executor validates and runs tool requests against a dataset reference.
type Executor struct {
	registry  *Registry
	accessor  dataset.Accessor
	threshold int
	timeout   time.Duration
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithSampleThreshold sets the row count above which datasets are
// sampled before execution.
func WithSampleThreshold(rows int) ExecutorOption {
	return func(e *Executor) {
		e.threshold = rows
	}
}

// WithTimeout sets the per-execution wall-clock bound.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.timeout = d
	}
}

// NewExecutor creates an executor over the given registry and accessor.
func NewExecutor(registry *Registry, accessor dataset.Accessor, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry:  registry,
		accessor:  accessor,
		threshold: DefaultSampleThreshold,
		timeout:   DefaultToolTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SampleThreshold returns the configured sampling threshold.
func (e *Executor) SampleThreshold() int { return e.threshold }

// Execute runs one tool request against the referenced dataset.
// Validation and execution failures are captured in the result, not
// returned; only the result's Err field distinguishes them. Duration
// measures the tool call itself, not validation or dataset loading, so
// it stays zero for requests rejected before execution.
func (e *Executor) Execute(ctx context.Context, ref string, req Request) *Result {
	res := &Result{Tool: req.Name, Arguments: req.Arguments}

	t, ok := e.registry.Get(req.Name)
	if !ok {
		res.Err = &ValidationError{
			Tool:   req.Name,
			Reason: fmt.Sprintf("unknown tool, available: %s", strings.Join(e.registry.Names(), ", ")),
		}
		return res
	}

	if err := ValidateArguments(t.Declaration(), req.Arguments); err != nil {
		res.Err = err
		return res
	}

	table, err := e.accessor.LoadSample(ctx, ref, e.threshold)
	if err != nil {
		res.Err = &ExecutionError{Tool: req.Name, Err: err}
		return res
	}
	if table.Sampled() {
		res.Sampled = true
		res.SampleRows = table.RowCount()
		res.OriginalRowCount = table.OriginalRowCount()
		log.Debugf("tool %s: sampled %d of %d rows", req.Name, res.SampleRows, res.OriginalRowCount)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	start := time.Now()
	output, err := t.Call(callCtx, table, req.Arguments)
	res.Duration = time.Since(start)
	if err != nil {
		if IsValidationError(err) || IsExecutionError(err) {
			res.Err = err
		} else {
			res.Err = &ExecutionError{Tool: req.Name, Err: err}
		}
		return res
	}
	res.Output = output
	return res
}

// ValidateArguments checks raw arguments against a tool's declared input
// schema. Missing arguments are treated as an empty object so that
// schemas with no required fields accept them.
func ValidateArguments(decl *Declaration, args json.RawMessage) error {
	if decl == nil || decl.InputSchema == nil {
		return nil
	}
	schemaBytes, err := json.Marshal(decl.InputSchema)
	if err != nil {
		return &ValidationError{Tool: decl.Name, Reason: fmt.Sprintf("marshal schema: %v", err)}
	}
	doc := []byte(`{}`)
	if len(args) > 0 {
		doc = args
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaBytes),
		gojsonschema.NewBytesLoader(doc),
	)
	if err != nil {
		return &ValidationError{Tool: decl.Name, Reason: err.Error()}
	}
	if !result.Valid() {
		reasons := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			reasons = append(reasons, desc.String())
		}
		return &ValidationError{Tool: decl.Name, Reason: strings.Join(reasons, "; ")}
	}
	return nil
}
