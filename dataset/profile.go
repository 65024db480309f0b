//
// Copyright (C) 2025 DataQuest AI. All rights reserved.
//
// analysis-engine is licensed under the Apache License Version 2.0.
//

package dataset

// ColumnProfile describes one column of a dataset.
type ColumnProfile struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// Profile is the schema metadata handed to agents. It never carries the
// data itself, only shape and column information.
type Profile struct {
	Rows    int             `json:"rows"`
	Columns []ColumnProfile `json:"columns"`

	// Sampled indicates the profiled table is a sample; SampledFrom is
	// the original row count in that case.
	Sampled     bool `json:"sampled,omitempty"`
	SampledFrom int  `json:"sampled_from,omitempty"`
}

// Profile returns the schema metadata of the table.
func (t *Table) Profile() Profile {
	p := Profile{
		Rows:    len(t.rows),
		Columns: make([]ColumnProfile, len(t.cols)),
		Sampled: t.sampled,
	}
	if t.sampled {
		p.SampledFrom = t.originalRows
	}
	for i, c := range t.cols {
		p.Columns[i] = ColumnProfile{Name: c, Kind: t.kinds[i].String()}
	}
	return p
}

// NumericColumns returns the names of numeric columns.
func (p Profile) NumericColumns() []string {
	var out []string
	for _, c := range p.Columns {
		if c.Kind == KindNumeric.String() {
			out = append(out, c.Name)
		}
	}
	return out
}

// CategoricalColumns returns the names of categorical columns.
func (p Profile) CategoricalColumns() []string {
	var out []string
	for _, c := range p.Columns {
		if c.Kind == KindCategorical.String() {
			out = append(out, c.Name)
		}
	}
	return out
}
