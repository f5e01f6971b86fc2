// amplicon: a pipeline for processing and analyzing 16S rRNA
// amplicon sequencing data.
// Copyright (c) 2024 Villapol laboratory.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License along with this program. If not, see
// <https://github.com/villapollab/fmt-ad-w-abx/blob/master/LICENSE.txt>.

package diversity

import (
	"fmt"
	"sync/atomic"

	"github.com/exascience/pargo/parallel"
	"github.com/villapollab/fmt-ad-w-abx/internal"
)

// A PermanovaResult holds the outcome of a permutational multivariate
// analysis of variance on a distance matrix for a single grouping
// factor.
type PermanovaResult struct {
	Factor       string
	F            float64
	R2           float64
	P            float64
	Permutations int
}

// pseudoF computes the PERMANOVA pseudo-F statistic and R2 for the
// given group assignment over the distance matrix.
func pseudoF(d *DistanceMatrix, groups []int, nofGroups int) (f, r2 float64) {
	n := len(groups)
	sizes := make([]int, nofGroups)
	for _, g := range groups {
		sizes[g]++
	}
	ssTotal := 0.0
	ssWithinByGroup := make([]float64, nofGroups)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d2 := d.D[i][j] * d.D[i][j]
			ssTotal += d2
			if groups[i] == groups[j] {
				ssWithinByGroup[groups[i]] += d2
			}
		}
	}
	ssTotal /= float64(n)
	ssWithin := 0.0
	for g, ss := range ssWithinByGroup {
		if sizes[g] > 0 {
			ssWithin += ss / float64(sizes[g])
		}
	}
	ssAmong := ssTotal - ssWithin
	dfAmong := float64(nofGroups - 1)
	dfWithin := float64(n - nofGroups)
	if dfAmong <= 0 || dfWithin <= 0 || ssWithin <= 0 {
		return 0, 0
	}
	return (ssAmong / dfAmong) / (ssWithin / dfWithin), ssAmong / ssTotal
}

// Permanova tests whether the grouping factor explains the distance
// matrix, with a permutation p-value. The grouping vector is parallel
// to the samples of the matrix. The permutation count defaults to 999
// when non-positive.
func Permanova(factor string, d *DistanceMatrix, grouping []string, permutations int, seed int64) (PermanovaResult, error) {
	n := d.NofSamples()
	if len(grouping) != n {
		return PermanovaResult{}, fmt.Errorf("grouping has %v values for %v samples", len(grouping), n)
	}
	levels := make(map[string]int)
	groups := make([]int, n)
	for i, value := range grouping {
		g, ok := levels[value]
		if !ok {
			g = len(levels)
			levels[value] = g
		}
		groups[i] = g
	}
	if len(levels) < 2 {
		return PermanovaResult{}, fmt.Errorf("grouping factor %v has fewer than 2 levels", factor)
	}
	if len(levels) >= n {
		return PermanovaResult{}, fmt.Errorf("grouping factor %v has no replication", factor)
	}
	if permutations <= 0 {
		permutations = 999
	}

	f, r2 := pseudoF(d, groups, len(levels))

	var hits int64
	parallel.Range(0, permutations, 0, func(low, high int) {
		permuted := make([]int, n)
		for p := low; p < high; p++ {
			rnd := internal.NewRand(seed + int64(p))
			copy(permuted, groups)
			rnd.Shuffle(n, func(i, j int) {
				permuted[i], permuted[j] = permuted[j], permuted[i]
			})
			if fPerm, _ := pseudoF(d, permuted, len(levels)); fPerm >= f {
				atomic.AddInt64(&hits, 1)
			}
		}
	})

	return PermanovaResult{
		Factor:       factor,
		F:            f,
		R2:           r2,
		P:            float64(hits+1) / float64(permutations+1),
		Permutations: permutations,
	}, nil
}
