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

package asv

import (
	"github.com/exascience/pargo/parallel"
)

// ChimeraOptions control consensus bimera removal.
type ChimeraOptions struct {
	// MinFoldParentOverAbundance requires both parents of a candidate
	// bimera to be at least this many times more abundant than the
	// candidate in the sample under consideration.
	MinFoldParentOverAbundance float64
	// MinSampleFraction is the fraction of occupied samples in which a
	// variant must be flagged before it is removed from the table.
	MinSampleFraction float64
}

// DefaultChimeraOptions match the chimera removal parameters of the
// study.
var DefaultChimeraOptions = ChimeraOptions{
	MinFoldParentOverAbundance: 2,
	MinSampleFraction:          0.9,
}

func commonPrefix(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

func commonSuffix(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[len(a)-1-i] != b[len(b)-1-i] {
			return i
		}
	}
	return n
}

// isBimera reports whether the query sequence can be reconstructed
// exactly as a prefix of one parent joined to a suffix of another.
// The parents must be two different sequences.
func isBimera(query string, parents []string) bool {
	if len(parents) < 2 {
		return false
	}
	// The query is a bimera when the longest shared prefix of one
	// parent plus the longest shared suffix of another cover it. Track
	// the two best prefixes and suffixes so that the covering pair can
	// always be chosen from different parents.
	bestP, secondP, bestPIndex := 0, 0, -1
	bestS, secondS, bestSIndex := 0, 0, -1
	for i, parent := range parents {
		if p := commonPrefix(query, parent); p > bestP {
			secondP = bestP
			bestP, bestPIndex = p, i
		} else if p > secondP {
			secondP = p
		}
		if s := commonSuffix(query, parent); s > bestS {
			secondS = bestS
			bestS, bestSIndex = s, i
		} else if s > secondS {
			secondS = s
		}
	}
	// Both parents must contribute: a query covered by a prefix alone
	// is a contained sequence, not a bimera.
	n := len(query)
	if bestPIndex != bestSIndex {
		return bestP > 0 && bestS > 0 && bestP+bestS >= n
	}
	return (bestP > 0 && secondS > 0 && bestP+secondS >= n) ||
		(secondP > 0 && bestS > 0 && secondP+bestS >= n)
}

// FlagBimeras flags chimeric variants per sample and removes the ones
// flagged in at least MinSampleFraction of the samples they occur in.
// It returns the cleaned table and the identifiers of the removed
// variants.
func FlagBimeras(t *Table, options ChimeraOptions) (*Table, []string) {
	nofSamples := t.NofSamples()
	nofVariants := t.NofVariants()
	flagged := make([][]bool, nofSamples)

	parallel.Range(0, nofSamples, 0, func(low, high int) {
		for i := low; i < high; i++ {
			row := t.Counts[i]
			flags := make([]bool, nofVariants)
			for j := 0; j < nofVariants; j++ {
				count := row[j]
				if count == 0 {
					continue
				}
				minParent := int(options.MinFoldParentOverAbundance * float64(count))
				var parents []string
				for k := 0; k < nofVariants; k++ {
					if k != j && row[k] >= minParent && row[k] > count {
						parents = append(parents, t.Seqs[k])
					}
				}
				flags[j] = isBimera(t.Seqs[j], parents)
			}
			flagged[i] = flags
		}
	})

	var keep []int
	var removed []string
	for j := 0; j < nofVariants; j++ {
		occupied, hits := 0, 0
		for i := 0; i < nofSamples; i++ {
			if t.Counts[i][j] > 0 {
				occupied++
				if flagged[i][j] {
					hits++
				}
			}
		}
		// removal requires strictly more than the consensus fraction
		if occupied > 0 && float64(hits) > options.MinSampleFraction*float64(occupied) {
			removed = append(removed, t.IDs[j])
		} else {
			keep = append(keep, j)
		}
	}
	return t.Subset(keep), removed
}
