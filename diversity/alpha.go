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

// Package diversity implements the ecological statistics of the
// study: alpha diversity metrics, beta diversity distance matrices,
// principal coordinates ordination, and permutational analysis of
// variance.
package diversity

import (
	"bufio"
	"math"
	"strconv"

	"github.com/villapollab/fmt-ad-w-abx/asv"
	"github.com/villapollab/fmt-ad-w-abx/internal"
	"github.com/villapollab/fmt-ad-w-abx/tree"
)

// An AlphaResult holds the alpha diversity metrics of one sample.
type AlphaResult struct {
	Sample     string
	Observed   int
	Shannon    float64
	InvSimpson float64
	FaithPD    float64
}

// Observed returns the number of variants present in the count
// vector.
func Observed(counts []int) int {
	observed := 0
	for _, c := range counts {
		if c > 0 {
			observed++
		}
	}
	return observed
}

// Shannon returns the Shannon entropy of the count vector, in nats.
func Shannon(counts []int) float64 {
	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return 0
	}
	h := 0.0
	for _, c := range counts {
		if c > 0 {
			p := float64(c) / float64(total)
			h -= p * math.Log(p)
		}
	}
	return h
}

// InvSimpson returns the inverse Simpson index of the count vector.
func InvSimpson(counts []int) float64 {
	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range counts {
		p := float64(c) / float64(total)
		sum += p * p
	}
	if sum == 0 {
		return 0
	}
	return 1 / sum
}

// FaithPD returns Faith's phylogenetic diversity: the total branch
// length of the subtree spanned by the present variants.
func FaithPD(phylo *tree.Tree, present map[string]bool) float64 {
	pd := 0.0
	var walk func(n *tree.Node) bool
	walk = func(n *tree.Node) bool {
		if n.IsTip() {
			if present[n.Name] {
				pd += n.Length
				return true
			}
			return false
		}
		covered := false
		for _, child := range n.Children {
			if walk(child) {
				covered = true
			}
		}
		if covered && n != phylo.Root {
			pd += n.Length
		}
		return covered
	}
	walk(phylo.Root)
	return pd
}

// Alpha computes the alpha diversity metrics for every sample of the
// table. The tree may be nil, in which case Faith's PD is reported as
// NaN.
func Alpha(table *asv.Table, phylo *tree.Tree) []AlphaResult {
	results := make([]AlphaResult, table.NofSamples())
	for i, sample := range table.Samples {
		counts := table.Counts[i]
		result := AlphaResult{
			Sample:     sample,
			Observed:   Observed(counts),
			Shannon:    Shannon(counts),
			InvSimpson: InvSimpson(counts),
			FaithPD:    math.NaN(),
		}
		if phylo != nil {
			present := make(map[string]bool)
			for j, c := range counts {
				if c > 0 {
					present[table.IDs[j]] = true
				}
			}
			result.FaithPD = FaithPD(phylo, present)
		}
		results[i] = result
	}
	return results
}

// WriteAlphaTSV exports alpha diversity results as a TSV file.
func WriteAlphaTSV(filename string, results []AlphaResult) {
	f := internal.FileCreate(filename)
	defer internal.Close(f)
	w := bufio.NewWriter(f)
	defer internal.Flush(w)
	internal.WriteString(w, "sample\tobserved\tshannon\tinvsimpson\tfaith_pd\n")
	for _, r := range results {
		internal.WriteString(w, r.Sample)
		internal.WriteString(w, "\t")
		internal.WriteString(w, strconv.Itoa(r.Observed))
		internal.WriteString(w, "\t")
		internal.WriteString(w, strconv.FormatFloat(r.Shannon, 'g', 6, 64))
		internal.WriteString(w, "\t")
		internal.WriteString(w, strconv.FormatFloat(r.InvSimpson, 'g', 6, 64))
		internal.WriteString(w, "\t")
		internal.WriteString(w, strconv.FormatFloat(r.FaithPD, 'g', 6, 64))
		internal.WriteString(w, "\n")
	}
}
