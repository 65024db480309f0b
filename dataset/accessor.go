//
// Copyright (C) 2025 DataQuest AI. All rights reserved.
//
// analysis-engine is licensed under the Apache License Version 2.0.
//

package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
)

// DefaultSampleSeed is the fixed seed used for reproducible sampling.
// Sampling the same dataset reference twice yields the same rows.
const DefaultSampleSeed = 42

// ErrEmptyDataset is returned when the referenced dataset has a header
// but no data rows, or no header at all.
var ErrEmptyDataset = errors.New("dataset is empty or has no data rows")

// Accessor loads tabular data by opaque reference. maxRows bounds the
// returned table: larger datasets come back as a deterministic sample of
// exactly maxRows rows with Sampled() reporting true.
type Accessor interface {
	LoadSample(ctx context.Context, ref string, maxRows int) (*Table, error)
}

// CSVAccessor resolves dataset references as CSV file paths.
type CSVAccessor struct {
	baseDir string
	seed    int64
}

// CSVOption configures a CSVAccessor.
type CSVOption func(*CSVAccessor)

// WithBaseDir resolves relative references under dir.
func WithBaseDir(dir string) CSVOption {
	return func(a *CSVAccessor) {
		a.baseDir = dir
	}
}

// WithSeed overrides the sampling seed. Changing the seed changes which
// rows are drawn but sampling stays deterministic for a given seed.
func WithSeed(seed int64) CSVOption {
	return func(a *CSVAccessor) {
		a.seed = seed
	}
}

// NewCSVAccessor creates a CSV-backed accessor.
func NewCSVAccessor(opts ...CSVOption) *CSVAccessor {
	a := &CSVAccessor{seed: DefaultSampleSeed}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// LoadSample implements the Accessor interface.
func (a *CSVAccessor) LoadSample(ctx context.Context, ref string, maxRows int) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := ref
	if a.baseDir != "" && !filepath.IsAbs(path) {
		path = filepath.Join(a.baseDir, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset %s: %w", ref, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", ref, err)
	}
	if len(records) < 2 {
		return nil, ErrEmptyDataset
	}

	header, rows := records[0], records[1:]
	table := NewTable(header, rows)
	if maxRows > 0 && len(rows) > maxRows {
		table = table.sample(maxRows, a.seed)
	}
	return table, nil
}

// sample draws exactly n rows with the given seed, preserving original
// row order. The selection is a partial Fisher-Yates shuffle so repeated
// calls on the same table are identical.
func (t *Table) sample(n int, seed int64) *Table {
	total := len(t.rows)
	if n >= total {
		return t
	}
	rng := rand.New(rand.NewSource(seed))
	indices := make([]int, total)
	for i := range indices {
		indices[i] = i
	}
	for i := 0; i < n; i++ {
		j := i + rng.Intn(total-i)
		indices[i], indices[j] = indices[j], indices[i]
	}
	selected := indices[:n]
	sort.Ints(selected)

	rows := make([][]string, n)
	for i, idx := range selected {
		rows[i] = t.rows[idx]
	}
	return &Table{
		cols:         t.cols,
		kinds:        t.kinds,
		rows:         rows,
		sampled:      true,
		originalRows: total,
	}
}
