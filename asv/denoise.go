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
	"math"
)

// DenoiseOptions control the abundance-skew denoising of dereplicated
// reads into amplicon sequence variants.
type DenoiseOptions struct {
	// Alpha shapes the abundance skew threshold: a unique sequence at
	// edit distance d from a more abundant variant is absorbed into it
	// when its abundance is at most size(variant) / 2^(Alpha*d + 1).
	Alpha float64
	// MinSize discards unique sequences below this abundance before
	// denoising. Singletons and near-singletons carry mostly errors.
	MinSize int
	// MaxDiffs bounds the edit distance considered for absorption.
	MaxDiffs int
}

// DefaultDenoiseOptions match the denoising parameters of the study.
var DefaultDenoiseOptions = DenoiseOptions{Alpha: 2, MinSize: 8, MaxDiffs: 8}

// boundedEditDistance computes the Levenshtein distance between two
// sequences, giving up early when the distance exceeds maxDiffs. It
// returns maxDiffs+1 in that case.
func boundedEditDistance(a, b string, maxDiffs int) int {
	la, lb := len(a), len(b)
	if la > lb {
		a, b = b, a
		la, lb = lb, la
	}
	if lb-la > maxDiffs {
		return maxDiffs + 1
	}
	// banded dynamic programming, band radius maxDiffs
	prev := make([]int, la+1)
	curr := make([]int, la+1)
	for i := 0; i <= la; i++ {
		prev[i] = i
	}
	for j := 1; j <= lb; j++ {
		curr[0] = j
		rowMin := curr[0]
		lo := j - maxDiffs
		if lo < 1 {
			lo = 1
		}
		hi := j + maxDiffs
		if hi > la {
			hi = la
		}
		for i := 1; i < lo; i++ {
			curr[i] = maxDiffs + 1
		}
		for i := lo; i <= hi; i++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			m := prev[i-1] + cost
			if up := prev[i] + 1; up < m && i >= lo {
				m = up
			}
			if left := curr[i-1] + 1; left < m {
				m = left
			}
			curr[i] = m
			if m < rowMin {
				rowMin = m
			}
		}
		for i := hi + 1; i <= la; i++ {
			curr[i] = maxDiffs + 1
		}
		if rowMin > maxDiffs {
			return maxDiffs + 1
		}
		prev, curr = curr, prev
	}
	if prev[la] > maxDiffs {
		return maxDiffs + 1
	}
	return prev[la]
}

// Denoise infers amplicon sequence variants from dereplicated reads
// by greedy abundance-skew clustering: unique sequences are visited
// in order of decreasing abundance, and each one either joins the
// closest existing variant whose abundance dominates it, or founds a
// new variant. The abundances of absorbed uniques accumulate into
// their variant.
func Denoise(uniques []Unique, options DenoiseOptions) []Unique {
	var variants []Unique
	for _, unique := range uniques {
		if unique.Size < options.MinSize {
			// uniques are sorted by size, so the remainder is below
			// the threshold as well
			break
		}
		bestDiffs := options.MaxDiffs + 1
		bestVariant := -1
		for i := range variants {
			d := boundedEditDistance(unique.Seq, variants[i].Seq, bestDiffs-1)
			if d < bestDiffs {
				skew := float64(unique.Size) / float64(variants[i].Size)
				if skew <= math.Pow(2, -(options.Alpha*float64(d)+1)) {
					bestDiffs = d
					bestVariant = i
				}
			}
		}
		if bestVariant >= 0 {
			variants[bestVariant].Size += unique.Size
		} else {
			variants = append(variants, unique)
		}
	}
	sortUniques(variants)
	return variants
}
