//
// Copyright (C) 2025 DataQuest AI. All rights reserved.
//
// analysis-engine is licensed under the Apache License Version 2.0.
//

// Package dataset provides the tabular data accessor: loading a dataset
// by reference and reducing oversized inputs with a deterministic,
// reproducible sample before any tool runs against it.
package dataset

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind classifies a column by how tools may operate on it.
type Kind int

// Column kinds.
const (
	KindCategorical Kind = iota
	KindNumeric
)

// String returns the kind name.
func (k Kind) String() string {
	if k == KindNumeric {
		return "numeric"
	}
	return "categorical"
}

// Table is an immutable, in-memory view of a (possibly sampled) dataset.
// Cells are kept as text; numeric access parses on demand.
type Table struct {
	cols  []string
	kinds []Kind
	rows  [][]string

	sampled      bool
	originalRows int
}

// NewTable builds a table from a header and rows, inferring column kinds.
// Rows shorter than the header are padded with empty cells.
func NewTable(header []string, rows [][]string) *Table {
	cols := make([]string, len(header))
	copy(cols, header)
	normalized := make([][]string, len(rows))
	for i, row := range rows {
		r := make([]string, len(cols))
		copy(r, row)
		normalized[i] = r
	}
	t := &Table{
		cols:         cols,
		rows:         normalized,
		originalRows: len(normalized),
	}
	t.kinds = inferKinds(cols, normalized)
	return t
}

// Columns returns the column names in dataset order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.cols))
	copy(out, t.cols)
	return out
}

// RowCount returns the number of rows in this view of the dataset.
func (t *Table) RowCount() int { return len(t.rows) }

// Sampled reports whether this table is a sample of a larger dataset.
func (t *Table) Sampled() bool { return t.sampled }

// OriginalRowCount returns the row count of the dataset before sampling.
func (t *Table) OriginalRowCount() int { return t.originalRows }

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool { return t.colIndex(name) >= 0 }

// Kind returns the inferred kind of the named column.
func (t *Table) Kind(name string) (Kind, bool) {
	i := t.colIndex(name)
	if i < 0 {
		return KindCategorical, false
	}
	return t.kinds[i], true
}

// Numeric returns the named column parsed as float64, with a validity
// mask aligned to row order. Cells that are empty or unparseable are
// marked invalid rather than failing the whole column.
func (t *Table) Numeric(name string) ([]float64, []bool, error) {
	i := t.colIndex(name)
	if i < 0 {
		return nil, nil, fmt.Errorf("column %q not found", name)
	}
	vals := make([]float64, len(t.rows))
	valid := make([]bool, len(t.rows))
	for r, row := range t.rows {
		cell := strings.TrimSpace(row[i])
		if cell == "" {
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			continue
		}
		vals[r] = v
		valid[r] = true
	}
	return vals, valid, nil
}

// Strings returns the named column as text, aligned to row order.
func (t *Table) Strings(name string) ([]string, error) {
	i := t.colIndex(name)
	if i < 0 {
		return nil, fmt.Errorf("column %q not found", name)
	}
	out := make([]string, len(t.rows))
	for r, row := range t.rows {
		out[r] = row[i]
	}
	return out, nil
}

// Row returns one row as a column-name keyed map. Used by the filter
// tool to render matched records.
func (t *Table) Row(r int) map[string]any {
	out := make(map[string]any, len(t.cols))
	for i, col := range t.cols {
		cell := t.rows[r][i]
		if t.kinds[i] == KindNumeric {
			if v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64); err == nil {
				out[col] = v
				continue
			}
		}
		out[col] = cell
	}
	return out
}

func (t *Table) colIndex(name string) int {
	for i, c := range t.cols {
		if c == name {
			return i
		}
	}
	return -1
}

// inferKinds classifies columns: numeric if every non-empty cell parses
// as a float and at least one cell is non-empty.
func inferKinds(cols []string, rows [][]string) []Kind {
	kinds := make([]Kind, len(cols))
	for i := range cols {
		numeric := false
		kinds[i] = KindNumeric
		for _, row := range rows {
			cell := strings.TrimSpace(row[i])
			if cell == "" {
				continue
			}
			if _, err := strconv.ParseFloat(cell, 64); err != nil {
				kinds[i] = KindCategorical
				numeric = false
				break
			}
			numeric = true
		}
		if !numeric && kinds[i] == KindNumeric {
			kinds[i] = KindCategorical
		}
	}
	return kinds
}
