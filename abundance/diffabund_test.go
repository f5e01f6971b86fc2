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

package abundance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/villapollab/fmt-ad-w-abx/asv"
	"github.com/villapollab/fmt-ad-w-abx/taxonomy"
)

const (
	seqX = "AAAACCCCGGGG"
	seqY = "TTTTGGGGCCCC"
	seqZ = "ACGTACGTACGT"
)

func TestCLR(t *testing.T) {
	values := clr([]int{1, 1})
	assert.InDelta(t, 0, values[0], 1e-12)
	assert.InDelta(t, 0, values[1], 1e-12)

	values = clr([]int{0, 10, 100})
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	assert.InDelta(t, 0, sum, 1e-12)
	assert.Less(t, values[0], values[1])
	assert.Less(t, values[1], values[2])
}

func TestWelch(t *testing.T) {
	tStat, df := welch([]float64{1, 2, 3}, []float64{4, 5, 6})
	assert.InDelta(t, 3/math.Sqrt(2.0/3), tStat, 1e-9)
	assert.InDelta(t, 4, df, 1e-9)

	tStat, df = welch([]float64{2, 2}, []float64{2, 2})
	assert.InDelta(t, 0, tStat, 1e-12)
	assert.InDelta(t, 2, df, 1e-12)
}

func TestAdjust(t *testing.T) {
	results := []Result{
		{Feature: "f1", P: 0.005},
		{Feature: "f2", P: 0.01},
		{Feature: "f3", P: 0.03},
		{Feature: "f4", P: 0.05},
	}
	adjust(results)
	assert.InDelta(t, 0.02, results[0].Q, 1e-12)
	assert.InDelta(t, 0.02, results[1].Q, 1e-12)
	assert.InDelta(t, 0.04, results[2].Q, 1e-12)
	assert.InDelta(t, 0.05, results[3].Q, 1e-12)
}

func TestFromTable(t *testing.T) {
	table := asv.Build([]string{"s1", "s2"}, map[string][]asv.Unique{
		"s1": {{Seq: seqX, Size: 10}},
		"s2": {{Seq: seqX, Size: 5}, {Seq: seqY, Size: 3}},
	})
	m := FromTable(table)
	assert.Equal(t, table.IDs, m.Features)
	assert.Equal(t, table.Samples, m.Samples)
	assert.Equal(t, table.Counts[0], m.Counts[0])
}

func testAssignment(seq string, lineage ...string) taxonomy.Assignment {
	taxa := make([]string, len(taxonomy.Ranks))
	copy(taxa, lineage)
	return taxonomy.Assignment{
		ID:        asv.HashID(seq),
		Taxa:      taxa,
		Bootstrap: make([]int, len(taxonomy.Ranks)),
	}
}

func TestAgglomerate(t *testing.T) {
	table := asv.Build([]string{"s1", "s2"}, map[string][]asv.Unique{
		"s1": {{Seq: seqX, Size: 10}, {Seq: seqY, Size: 5}},
		"s2": {{Seq: seqY, Size: 3}, {Seq: seqZ, Size: 7}},
	})
	assignments := []taxonomy.Assignment{
		testAssignment(seqX, "Bacteria", "Firmicutes"),
		testAssignment(seqY, "Bacteria", "Firmicutes"),
		testAssignment(seqZ, "Bacteria", "Bacteroidota"),
	}
	m, err := Agglomerate(table, assignments, "Phylum")
	assert.NoError(t, err)
	assert.Equal(t, []string{"Bacteria;Bacteroidota", "Bacteria;Firmicutes"}, m.Features)
	assert.Equal(t, []int{0, 15}, m.Counts[0])
	assert.Equal(t, []int{7, 3}, m.Counts[1])

	_, err = Agglomerate(table, assignments, "Strain")
	assert.Error(t, err)
	_, err = Agglomerate(table, assignments[:2], "Phylum")
	assert.Error(t, err)
}

func TestAgglomerateUnclassified(t *testing.T) {
	table := asv.Build([]string{"s1"}, map[string][]asv.Unique{
		"s1": {{Seq: seqX, Size: 10}, {Seq: seqY, Size: 5}},
	})
	// seqY is only classified at the kingdom rank
	assignments := []taxonomy.Assignment{
		testAssignment(seqX, "Bacteria", "Firmicutes", "Bacilli"),
		testAssignment(seqY, "Bacteria"),
	}
	m, err := Agglomerate(table, assignments, "Class")
	assert.NoError(t, err)
	assert.Equal(t, []string{"Bacteria;Firmicutes;Bacilli", "Bacteria;unclassified"}, m.Features)
	assert.Equal(t, []int{10, 5}, m.Counts[0])
}

func TestSubsetSamples(t *testing.T) {
	m := &Matrix{
		Features: []string{"f1", "f2"},
		Samples:  []string{"s1", "s2", "s3"},
		Counts:   [][]int{{1, 2}, {3, 4}, {5, 6}},
	}
	sub := m.SubsetSamples([]int{2, 0})
	assert.Equal(t, []string{"s3", "s1"}, sub.Samples)
	assert.Equal(t, [][]int{{5, 6}, {1, 2}}, sub.Counts)
	// the receiver is unchanged
	assert.Len(t, m.Samples, 3)
}

func TestFilterPrevalence(t *testing.T) {
	m := &Matrix{
		Features: []string{"rare", "common"},
		Samples:  []string{"s1", "s2", "s3", "s4"},
		Counts:   [][]int{{1, 5}, {0, 5}, {0, 5}, {0, 5}},
	}
	sub := m.FilterPrevalence(0.5)
	assert.Equal(t, []string{"common"}, sub.Features)
	assert.Equal(t, []int{5}, sub.Counts[0])
}

func testMatrix() (*Matrix, []string) {
	// f2 is differentially abundant between the groups
	m := &Matrix{
		Features: []string{"f1", "f2", "f3"},
		Samples:  []string{"a1", "a2", "a3", "a4", "b1", "b2", "b3", "b4"},
		Counts: [][]int{
			{10, 5, 20},
			{11, 6, 21},
			{10, 5, 19},
			{12, 6, 20},
			{10, 100, 20},
			{11, 110, 21},
			{10, 105, 19},
			{12, 108, 20},
		},
	}
	grouping := []string{"a", "a", "a", "a", "b", "b", "b", "b"}
	return m, grouping
}

func TestTest(t *testing.T) {
	m, grouping := testMatrix()
	results, err := Test(m, grouping, "a", "b", DefaultOptions)
	assert.NoError(t, err)
	assert.Len(t, results, 3)
	// results are sorted by significance
	assert.Equal(t, "f2", results[0].Feature)
	assert.Greater(t, results[0].Diff, 0.0)
	assert.Less(t, results[0].P, 0.1)
	assert.Less(t, results[0].P, results[1].P)
}

func TestTestParametric(t *testing.T) {
	m, grouping := testMatrix()
	options := DefaultOptions
	options.Permutations = 0
	results, err := Test(m, grouping, "a", "b", options)
	assert.NoError(t, err)
	assert.Equal(t, "f2", results[0].Feature)
	assert.Less(t, results[0].P, 0.01)
}

func TestTestErrors(t *testing.T) {
	m, grouping := testMatrix()
	_, err := Test(m, grouping[:4], "a", "b", DefaultOptions)
	assert.Error(t, err)
	_, err = Test(m, grouping, "a", "c", DefaultOptions)
	assert.Error(t, err)
}
