//
// Copyright (C) 2025 DataQuest AI. All rights reserved.
//
// analysis-engine is licensed under the Apache License Version 2.0.
//

package tool

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeanAndStddev(t *testing.T) {
	vals := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	assert.InDelta(t, 5.0, mean(vals), 1e-9)
	// Sample standard deviation (ddof=1).
	assert.InDelta(t, 2.13809, stddev(vals), 1e-4)
}

func TestStddevTooFewValues(t *testing.T) {
	assert.True(t, math.IsNaN(stddev([]float64{1})))
}

func TestQuantileLinearInterpolation(t *testing.T) {
	vals := []float64{1, 2, 3, 4}
	assert.InDelta(t, 1.75, quantile(vals, 0.25), 1e-9)
	assert.InDelta(t, 2.5, median(vals), 1e-9)
	assert.InDelta(t, 3.25, quantile(vals, 0.75), 1e-9)
	assert.InDelta(t, 1.0, quantile(vals, 0), 1e-9)
	assert.InDelta(t, 4.0, quantile(vals, 1), 1e-9)
}

func TestPearsonPerfectCorrelation(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	y := []float64{2, 4, 6, 8, 10}
	assert.InDelta(t, 1.0, pearson(x, y), 1e-9)

	inverted := []float64{10, 8, 6, 4, 2}
	assert.InDelta(t, -1.0, pearson(x, inverted), 1e-9)
}

func TestSpearmanMonotonicNonLinear(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	y := []float64{1, 4, 9, 16, 25}
	// Monotonic relationship is a perfect rank correlation even though
	// it is not linear.
	assert.InDelta(t, 1.0, spearman(x, y), 1e-9)
}

func TestKendallTau(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	y := []float64{2, 4, 6, 8, 10}
	assert.InDelta(t, 1.0, kendall(x, y), 1e-9)

	shuffled := []float64{3, 1, 4, 2, 5}
	tau := kendall(x, shuffled)
	assert.Greater(t, tau, -1.0)
	assert.Less(t, tau, 1.0)
}

func TestRanksAverageTies(t *testing.T) {
	r := ranks([]float64{10, 20, 20, 30})
	assert.Equal(t, []float64{1, 2.5, 2.5, 4}, r)
}

func TestRound3(t *testing.T) {
	assert.Equal(t, 0.123, round3(0.12345))
	assert.Equal(t, -0.123, round3(-0.12345))
}
