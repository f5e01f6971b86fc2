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

// Package abundance implements differential abundance testing between
// two sample groups on centered log-ratio transformed counts.
package abundance

import (
	"fmt"
	"sort"
	"strings"

	"github.com/villapollab/fmt-ad-w-abx/asv"
	"github.com/villapollab/fmt-ad-w-abx/taxonomy"
)

// A Matrix is a feature count matrix for differential abundance
// testing. Features are variants, or taxa after agglomeration.
type Matrix struct {
	Features []string
	Samples  []string
	// Counts is indexed by sample, then by feature.
	Counts [][]int
}

// FromTable turns an abundance table into a test matrix with one
// feature per variant.
func FromTable(table *asv.Table) *Matrix {
	m := &Matrix{
		Features: append([]string(nil), table.IDs...),
		Samples:  append([]string(nil), table.Samples...),
		Counts:   make([][]int, table.NofSamples()),
	}
	for i := range table.Samples {
		m.Counts[i] = append([]int(nil), table.Counts[i]...)
	}
	return m
}

// Agglomerate collapses the variants of the table to taxa at the
// given rank, summing counts. The feature name of a taxon is its
// lineage down to the rank, joined by semicolons; variants without an
// assignment at the rank group under their deepest classified lineage
// with an "unclassified" marker appended.
func Agglomerate(table *asv.Table, assignments []taxonomy.Assignment, rank string) (*Matrix, error) {
	depth := -1
	for r, name := range taxonomy.Ranks {
		if name == rank {
			depth = r + 1
			break
		}
	}
	if depth < 0 {
		return nil, fmt.Errorf("unknown taxonomic rank %v", rank)
	}
	byID := make(map[string]taxonomy.Assignment, len(assignments))
	for _, a := range assignments {
		byID[a.ID] = a
	}
	taxonOf := make([]string, table.NofVariants())
	for j, id := range table.IDs {
		a, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("variant %v has no taxonomy assignment", id)
		}
		full := a.Taxa
		if len(full) > depth {
			full = full[:depth]
		}
		// assignments are truncated at the deepest supported rank, so
		// the first empty entry ends the classified lineage
		lineage := make([]string, 0, depth)
		for _, name := range full {
			if name == "" {
				break
			}
			lineage = append(lineage, name)
		}
		if len(lineage) < depth {
			lineage = append(lineage, "unclassified")
		}
		taxonOf[j] = strings.Join(lineage, ";")
	}
	features := make([]string, 0)
	index := make(map[string]int)
	for _, taxon := range taxonOf {
		if _, ok := index[taxon]; !ok {
			index[taxon] = len(features)
			features = append(features, taxon)
		}
	}
	sort.Strings(features)
	for f, taxon := range features {
		index[taxon] = f
	}
	m := &Matrix{
		Features: features,
		Samples:  append([]string(nil), table.Samples...),
		Counts:   make([][]int, table.NofSamples()),
	}
	for i := range table.Samples {
		row := make([]int, len(features))
		for j, c := range table.Counts[i] {
			row[index[taxonOf[j]]] += c
		}
		m.Counts[i] = row
	}
	return m, nil
}

// SubsetSamples returns a copy of the matrix restricted to the given
// sample indices.
func (m *Matrix) SubsetSamples(keep []int) *Matrix {
	sub := &Matrix{
		Features: append([]string(nil), m.Features...),
		Samples:  make([]string, len(keep)),
		Counts:   make([][]int, len(keep)),
	}
	for i, s := range keep {
		sub.Samples[i] = m.Samples[s]
		sub.Counts[i] = append([]int(nil), m.Counts[s]...)
	}
	return sub
}

// FilterPrevalence returns a copy of the matrix restricted to
// features present in at least the given fraction of samples.
func (m *Matrix) FilterPrevalence(minPrevalence float64) *Matrix {
	var keep []int
	for f := range m.Features {
		present := 0
		for i := range m.Samples {
			if m.Counts[i][f] > 0 {
				present++
			}
		}
		if float64(present) >= minPrevalence*float64(len(m.Samples)) {
			keep = append(keep, f)
		}
	}
	sub := &Matrix{
		Features: make([]string, len(keep)),
		Samples:  append([]string(nil), m.Samples...),
		Counts:   make([][]int, len(m.Samples)),
	}
	for j, f := range keep {
		sub.Features[j] = m.Features[f]
	}
	for i := range m.Samples {
		row := make([]int, len(keep))
		for j, f := range keep {
			row[j] = m.Counts[i][f]
		}
		sub.Counts[i] = row
	}
	return sub
}
