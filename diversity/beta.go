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
	"bufio"
	"fmt"
	"log"
	"math"
	"strconv"

	"github.com/exascience/pargo/parallel"
	"github.com/villapollab/fmt-ad-w-abx/asv"
	"github.com/villapollab/fmt-ad-w-abx/internal"
	"github.com/villapollab/fmt-ad-w-abx/tree"
)

// A DistanceMatrix is a symmetric pairwise sample distance matrix.
type DistanceMatrix struct {
	Samples []string
	D       [][]float64
}

func newDistanceMatrix(samples []string) *DistanceMatrix {
	d := &DistanceMatrix{
		Samples: append([]string(nil), samples...),
		D:       make([][]float64, len(samples)),
	}
	for i := range d.D {
		d.D[i] = make([]float64, len(samples))
	}
	return d
}

// NofSamples returns the number of samples in the matrix.
func (d *DistanceMatrix) NofSamples() int {
	return len(d.Samples)
}

// BrayCurtis computes the Bray-Curtis dissimilarity matrix from
// relative abundances.
func BrayCurtis(table *asv.Table) *DistanceMatrix {
	props := proportions(table)
	d := newDistanceMatrix(table.Samples)
	n := table.NofSamples()
	parallel.Range(0, n, 0, func(low, high int) {
		for i := low; i < high; i++ {
			for j := i + 1; j < n; j++ {
				num, den := 0.0, 0.0
				for k := range table.IDs {
					num += math.Abs(props[i][k] - props[j][k])
					den += props[i][k] + props[j][k]
				}
				if den > 0 {
					d.D[i][j] = num / den
					d.D[j][i] = num / den
				}
			}
		}
	})
	return d
}

// Jaccard computes the binary Jaccard distance matrix from
// presence/absence.
func Jaccard(table *asv.Table) *DistanceMatrix {
	d := newDistanceMatrix(table.Samples)
	n := table.NofSamples()
	parallel.Range(0, n, 0, func(low, high int) {
		for i := low; i < high; i++ {
			for j := i + 1; j < n; j++ {
				shared, union := 0, 0
				for k := range table.IDs {
					a := table.Counts[i][k] > 0
					b := table.Counts[j][k] > 0
					if a || b {
						union++
						if a && b {
							shared++
						}
					}
				}
				if union > 0 {
					value := 1 - float64(shared)/float64(union)
					d.D[i][j] = value
					d.D[j][i] = value
				}
			}
		}
	})
	return d
}

// proportions returns the relative abundance rows of the table.
func proportions(table *asv.Table) [][]float64 {
	props := make([][]float64, table.NofSamples())
	for i := range table.Samples {
		total := table.SampleSum(i)
		row := make([]float64, table.NofVariants())
		if total > 0 {
			for k, c := range table.Counts[i] {
				row[k] = float64(c) / float64(total)
			}
		}
		props[i] = row
	}
	return props
}

// branch pairs the length of a tree branch with the per-sample
// abundance mass of the tips below it.
type branch struct {
	length float64
	mass   []float64
}

// treeBranches computes for every branch of the tree the proportion of
// each sample's total abundance carried by the tips below that branch.
// The root branch is excluded. Tips absent from the table are an
// error.
func treeBranches(table *asv.Table, phylo *tree.Tree) []branch {
	index := make(map[string]int, table.NofVariants())
	for k, id := range table.IDs {
		index[id] = k
	}
	props := proportions(table)
	n := table.NofSamples()
	var branches []branch
	var walk func(node *tree.Node) []float64
	walk = func(node *tree.Node) []float64 {
		mass := make([]float64, n)
		if node.IsTip() {
			k, ok := index[node.Name]
			if !ok {
				log.Panicf("tree tip %v is missing from the abundance table", node.Name)
			}
			for i := 0; i < n; i++ {
				mass[i] = props[i][k]
			}
		} else {
			for _, child := range node.Children {
				childMass := walk(child)
				for i := 0; i < n; i++ {
					mass[i] += childMass[i]
				}
			}
		}
		if node != phylo.Root {
			branches = append(branches, branch{length: node.Length, mass: mass})
		}
		return mass
	}
	walk(phylo.Root)
	return branches
}

// UnweightedUniFrac computes the unweighted UniFrac distance matrix:
// the fraction of branch length unique to either sample of a pair,
// over the branch length covered by at least one of them.
func UnweightedUniFrac(table *asv.Table, phylo *tree.Tree) *DistanceMatrix {
	branches := treeBranches(table, phylo)
	d := newDistanceMatrix(table.Samples)
	n := table.NofSamples()
	parallel.Range(0, n, 0, func(low, high int) {
		for i := low; i < high; i++ {
			for j := i + 1; j < n; j++ {
				unique, covered := 0.0, 0.0
				for _, b := range branches {
					a := b.mass[i] > 0
					c := b.mass[j] > 0
					if a || c {
						covered += b.length
						if a != c {
							unique += b.length
						}
					}
				}
				if covered > 0 {
					d.D[i][j] = unique / covered
					d.D[j][i] = unique / covered
				}
			}
		}
	})
	return d
}

// WeightedUniFrac computes the normalized weighted UniFrac distance
// matrix: branch lengths weighted by the absolute difference of the
// relative abundance mass below them, normalized by the total weighted
// mass of the pair.
func WeightedUniFrac(table *asv.Table, phylo *tree.Tree) *DistanceMatrix {
	branches := treeBranches(table, phylo)
	d := newDistanceMatrix(table.Samples)
	n := table.NofSamples()
	parallel.Range(0, n, 0, func(low, high int) {
		for i := low; i < high; i++ {
			for j := i + 1; j < n; j++ {
				num, den := 0.0, 0.0
				for _, b := range branches {
					num += b.length * math.Abs(b.mass[i]-b.mass[j])
					den += b.length * (b.mass[i] + b.mass[j])
				}
				if den > 0 {
					d.D[i][j] = num / den
					d.D[j][i] = num / den
				}
			}
		}
	})
	return d
}

// Metric computes the named beta diversity distance matrix. The
// UniFrac metrics require a tree.
func Metric(name string, table *asv.Table, phylo *tree.Tree) (*DistanceMatrix, error) {
	switch name {
	case "braycurtis":
		return BrayCurtis(table), nil
	case "jaccard":
		return Jaccard(table), nil
	case "unifrac":
		if phylo == nil {
			return nil, fmt.Errorf("the %v metric requires a phylogenetic tree", name)
		}
		return UnweightedUniFrac(table, phylo), nil
	case "wunifrac":
		if phylo == nil {
			return nil, fmt.Errorf("the %v metric requires a phylogenetic tree", name)
		}
		return WeightedUniFrac(table, phylo), nil
	default:
		return nil, fmt.Errorf("unknown beta diversity metric %v", name)
	}
}

// WriteTSV exports the distance matrix as a square TSV file with
// sample names on both axes.
func (d *DistanceMatrix) WriteTSV(filename string) {
	f := internal.FileCreate(filename)
	defer internal.Close(f)
	w := bufio.NewWriter(f)
	defer internal.Flush(w)
	internal.WriteString(w, "sample")
	for _, sample := range d.Samples {
		internal.WriteString(w, "\t")
		internal.WriteString(w, sample)
	}
	internal.WriteString(w, "\n")
	for i, sample := range d.Samples {
		internal.WriteString(w, sample)
		for j := range d.Samples {
			internal.WriteString(w, "\t")
			internal.WriteString(w, strconv.FormatFloat(d.D[i][j], 'g', 6, 64))
		}
		internal.WriteString(w, "\n")
	}
}
