//
// Copyright (C) 2025 DataQuest AI. All rights reserved.
//
// analysis-engine is licensed under the Apache License Version 2.0.
//

package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTableInfersKinds(t *testing.T) {
	table := NewTable(
		[]string{"name", "age", "score"},
		[][]string{
			{"alice", "30", "91.5"},
			{"bob", "25", "88"},
			{"carol", "41", ""},
		},
	)

	kind, ok := table.Kind("name")
	require.True(t, ok)
	assert.Equal(t, KindCategorical, kind)
	kind, ok = table.Kind("age")
	require.True(t, ok)
	assert.Equal(t, KindNumeric, kind)
	kind, ok = table.Kind("score")
	require.True(t, ok)
	assert.Equal(t, KindNumeric, kind)

	assert.Equal(t, 3, table.RowCount())
	assert.False(t, table.Sampled())
}

func TestKindUnknownColumn(t *testing.T) {
	table := NewTable([]string{"v"}, [][]string{{"1"}})
	_, ok := table.Kind("missing")
	assert.False(t, ok)
}

func TestNumericReturnsValidityMask(t *testing.T) {
	table := NewTable(
		[]string{"v"},
		[][]string{{"1.5"}, {""}, {"3"}},
	)

	vals, valid, err := table.Numeric("v")
	require.NoError(t, err)
	require.Len(t, vals, 3)
	assert.True(t, valid[0])
	assert.False(t, valid[1])
	assert.True(t, valid[2])
	assert.InDelta(t, 1.5, vals[0], 1e-9)
	assert.InDelta(t, 3.0, vals[2], 1e-9)
}

func TestNumericUnknownColumn(t *testing.T) {
	table := NewTable([]string{"v"}, [][]string{{"1"}})
	_, _, err := table.Numeric("missing")
	assert.Error(t, err)
}

func TestRowCoercesNumericCells(t *testing.T) {
	table := NewTable(
		[]string{"city", "pop"},
		[][]string{{"oslo", "700000"}},
	)

	row := table.Row(0)
	assert.Equal(t, "oslo", row["city"])
	assert.Equal(t, 700000.0, row["pop"])
}

func TestProfileSplitsColumnKinds(t *testing.T) {
	table := NewTable(
		[]string{"city", "pop"},
		[][]string{{"oslo", "700000"}, {"bergen", "280000"}},
	)

	profile := table.Profile()
	assert.Equal(t, 2, profile.Rows)
	assert.Equal(t, []string{"pop"}, profile.NumericColumns())
	assert.Equal(t, []string{"city"}, profile.CategoricalColumns())
	assert.False(t, profile.Sampled)
}
