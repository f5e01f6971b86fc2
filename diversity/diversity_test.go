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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/villapollab/fmt-ad-w-abx/asv"
	"github.com/villapollab/fmt-ad-w-abx/tree"
)

const (
	seqX = "AAAACCCCGGGG"
	seqY = "TTTTGGGGCCCC"
	seqZ = "ACGTACGTACGT"
)

func TestAlphaMetrics(t *testing.T) {
	assert.Equal(t, 2, Observed([]int{10, 0, 5}))
	assert.Equal(t, 0, Observed([]int{0, 0}))

	assert.InDelta(t, math.Log(2), Shannon([]int{10, 10}), 1e-12)
	assert.InDelta(t, 0, Shannon([]int{10}), 1e-12)
	assert.InDelta(t, 0, Shannon(nil), 1e-12)

	assert.InDelta(t, 2, InvSimpson([]int{10, 10}), 1e-12)
	assert.InDelta(t, 1, InvSimpson([]int{10}), 1e-12)
	assert.InDelta(t, 0, InvSimpson(nil), 1e-12)
}

func TestFaithPD(t *testing.T) {
	phylo, err := tree.Parse("((A:1,B:2):1,(C:3,D:4):1);")
	assert.NoError(t, err)
	assert.InDelta(t, 2, FaithPD(phylo, map[string]bool{"A": true}), 1e-12)
	assert.InDelta(t, 4, FaithPD(phylo, map[string]bool{"A": true, "B": true}), 1e-12)
	assert.InDelta(t, 12, FaithPD(phylo, map[string]bool{"A": true, "B": true, "C": true, "D": true}), 1e-12)
	assert.InDelta(t, 0, FaithPD(phylo, nil), 1e-12)
}

func TestAlpha(t *testing.T) {
	table := asv.Build([]string{"s1"}, map[string][]asv.Unique{
		"s1": {{Seq: seqX, Size: 10}, {Seq: seqY, Size: 10}},
	})
	results := Alpha(table, nil)
	assert.Len(t, results, 1)
	assert.Equal(t, "s1", results[0].Sample)
	assert.Equal(t, 2, results[0].Observed)
	assert.InDelta(t, math.Log(2), results[0].Shannon, 1e-12)
	assert.True(t, math.IsNaN(results[0].FaithPD))
}

func TestBrayCurtis(t *testing.T) {
	table := asv.Build([]string{"s1", "s2", "s3"}, map[string][]asv.Unique{
		"s1": {{Seq: seqX, Size: 10}},
		"s2": {{Seq: seqX, Size: 20}},
		"s3": {{Seq: seqY, Size: 10}},
	})
	d := BrayCurtis(table)
	assert.Equal(t, 3, d.NofSamples())
	// same composition at different depth
	assert.InDelta(t, 0, d.D[0][1], 1e-12)
	// disjoint composition
	assert.InDelta(t, 1, d.D[0][2], 1e-12)
	assert.InDelta(t, d.D[2][0], d.D[0][2], 1e-12)
	assert.InDelta(t, 0, d.D[1][1], 1e-12)
}

func TestJaccard(t *testing.T) {
	table := asv.Build([]string{"s1", "s2"}, map[string][]asv.Unique{
		"s1": {{Seq: seqX, Size: 10}, {Seq: seqY, Size: 5}},
		"s2": {{Seq: seqY, Size: 3}, {Seq: seqZ, Size: 7}},
	})
	d := Jaccard(table)
	// one shared variant out of three
	assert.InDelta(t, 2.0/3, d.D[0][1], 1e-12)
}

func unifracTable() (*asv.Table, *tree.Tree) {
	table := asv.Build([]string{"s1", "s2"}, map[string][]asv.Unique{
		"s1": {{Seq: seqX, Size: 10}},
		"s2": {{Seq: seqY, Size: 10}},
	})
	newick := fmt.Sprintf("(%v:1,%v:1);", asv.HashID(seqX), asv.HashID(seqY))
	phylo, err := tree.Parse(newick)
	if err != nil {
		panic(err)
	}
	return table, phylo
}

func TestUniFrac(t *testing.T) {
	table, phylo := unifracTable()
	// disjoint samples share no branch
	d := UnweightedUniFrac(table, phylo)
	assert.InDelta(t, 1, d.D[0][1], 1e-12)
	d = WeightedUniFrac(table, phylo)
	assert.InDelta(t, 1, d.D[0][1], 1e-12)

	// identical samples
	table = asv.Build([]string{"s1", "s2"}, map[string][]asv.Unique{
		"s1": {{Seq: seqX, Size: 10}},
		"s2": {{Seq: seqX, Size: 20}},
	})
	phylo, err := tree.Parse(fmt.Sprintf("(%v:1);", asv.HashID(seqX)))
	assert.NoError(t, err)
	d = UnweightedUniFrac(table, phylo)
	assert.InDelta(t, 0, d.D[0][1], 1e-12)
	d = WeightedUniFrac(table, phylo)
	assert.InDelta(t, 0, d.D[0][1], 1e-12)
}

func TestMetric(t *testing.T) {
	table, phylo := unifracTable()
	for _, name := range []string{"braycurtis", "jaccard", "unifrac", "wunifrac"} {
		d, err := Metric(name, table, phylo)
		assert.NoError(t, err)
		assert.Equal(t, 2, d.NofSamples())
	}
	_, err := Metric("unifrac", table, nil)
	assert.Error(t, err)
	_, err = Metric("euclidean", table, phylo)
	assert.Error(t, err)
}

func TestPCoA(t *testing.T) {
	// three collinear points: 0, 1, 2
	d := &DistanceMatrix{
		Samples: []string{"s1", "s2", "s3"},
		D: [][]float64{
			{0, 1, 2},
			{1, 0, 1},
			{2, 1, 0},
		},
	}
	ordination, err := PCoA(d, 0)
	assert.NoError(t, err)
	assert.Len(t, ordination.Samples, 3)
	// a line needs one axis
	assert.Greater(t, ordination.Explained[0], 0.99)
	// the first axis preserves the distances
	c := ordination.Coordinates
	assert.InDelta(t, 1, math.Abs(c[0][0]-c[1][0]), 1e-9)
	assert.InDelta(t, 2, math.Abs(c[0][0]-c[2][0]), 1e-9)

	_, err = PCoA(&DistanceMatrix{Samples: []string{"s1"}, D: [][]float64{{0}}}, 0)
	assert.Error(t, err)
}

func groupedDistanceMatrix() *DistanceMatrix {
	samples := []string{"a1", "a2", "a3", "b1", "b2", "b3"}
	n := len(samples)
	d := &DistanceMatrix{Samples: samples, D: make([][]float64, n)}
	for i := range d.D {
		d.D[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			value := 0.1
			if (i < 3) != (j < 3) {
				value = 1
			}
			d.D[i][j] = value
			d.D[j][i] = value
		}
	}
	return d
}

func TestPermanova(t *testing.T) {
	d := groupedDistanceMatrix()
	grouping := []string{"a", "a", "a", "b", "b", "b"}
	result, err := Permanova("group", d, grouping, 999, 1)
	assert.NoError(t, err)
	assert.Equal(t, "group", result.Factor)
	assert.Equal(t, 999, result.Permutations)
	assert.Greater(t, result.F, 1.0)
	assert.Greater(t, result.R2, 0.5)
	// 6 samples only permit 20 distinct splits
	assert.Less(t, result.P, 0.2)

	result2, err := Permanova("group", d, grouping, 999, 1)
	assert.NoError(t, err)
	assert.Equal(t, result.P, result2.P)
}

func TestPermanovaErrors(t *testing.T) {
	d := groupedDistanceMatrix()
	_, err := Permanova("group", d, []string{"a", "b"}, 99, 1)
	assert.Error(t, err)
	_, err = Permanova("group", d, []string{"a", "a", "a", "a", "a", "a"}, 99, 1)
	assert.Error(t, err)
	_, err = Permanova("group", d, []string{"a", "b", "c", "d", "e", "f"}, 99, 1)
	assert.Error(t, err)
}
