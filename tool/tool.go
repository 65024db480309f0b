//
// Copyright (C) 2025 DataQuest AI. All rights reserved.
//
// analysis-engine is licensed under the Apache License Version 2.0.
//

// Package tool provides the registry and executor for deterministic,
// schema-validated data operations. Tools are read-only: they operate on
// a sampled table and never mutate source data or call out to the
// network.
package tool

import (
	"context"
	"encoding/json"

	"github.com/dataquest-ai/analysis-engine/dataset"
)

// Tool is a deterministic data operation over a tabular dataset.
type Tool interface {
	// Declaration returns the metadata describing the tool.
	Declaration() *Declaration

	// Call executes the operation against the given table. Arguments
	// have already been validated against the declared input schema.
	Call(ctx context.Context, table *dataset.Table, args json.RawMessage) (any, error)
}

// Declaration describes the metadata of a tool: its name, description,
// and expected arguments.
type Declaration struct {
	// Name is the unique identifier of the tool.
	Name string `json:"name"`

	// Description explains the tool's purpose; it is surfaced to the
	// planner model verbatim for function selection.
	Description string `json:"description"`

	// InputSchema defines the expected input in JSON schema format.
	InputSchema *Schema `json:"inputSchema"`
}

// Schema represents the structure of JSON Schema used for declaring and
// validating tool arguments. It follows the JSON Schema standard,
// supporting types, properties, enums and required fields.
type Schema struct {
	// Type specifies the data type (e.g. "object", "array", "string", "number").
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Required    []string `json:"required,omitempty"`
	// Properties of the arguments, each with its own schema.
	Properties map[string]*Schema `json:"properties,omitempty"`
	// For array types, the schema of items in the array.
	Items *Schema `json:"items,omitempty"`
	// Enum restricts the value to a closed set.
	Enum []any `json:"enum,omitempty"`
	// AdditionalProperties controls whether undeclared properties are allowed.
	AdditionalProperties any `json:"additionalProperties,omitempty"`
}
