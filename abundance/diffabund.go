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
	"bufio"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync/atomic"

	"github.com/exascience/pargo/parallel"
	"github.com/villapollab/fmt-ad-w-abx/internal"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Options control a differential abundance test.
type Options struct {
	// MinPrevalence is the minimum fraction of samples a feature
	// must be present in to be tested.
	MinPrevalence float64
	// Permutations is the number of label permutations for the
	// permutation p-value; 0 uses the parametric Welch p-value
	// instead.
	Permutations int
	Seed         int64
}

// DefaultOptions are the test parameters used by the study.
var DefaultOptions = Options{
	MinPrevalence: 0.1,
	Permutations:  999,
}

// A Result holds the test outcome for one feature. Means and the
// difference are on the centered log-ratio scale; a positive
// difference means the feature is more abundant in the second group.
type Result struct {
	Feature    string
	Group1Mean float64
	Group2Mean float64
	Diff       float64
	T          float64
	P          float64
	Q          float64
}

// clr computes the centered log-ratio transform of one sample row
// with a pseudocount of 0.5.
func clr(counts []int) []float64 {
	values := make([]float64, len(counts))
	logSum := 0.0
	for f, c := range counts {
		v := math.Log(float64(c) + 0.5)
		values[f] = v
		logSum += v
	}
	logMean := logSum / float64(len(counts))
	for f := range values {
		values[f] -= logMean
	}
	return values
}

// welch computes Welch's t statistic and its degrees of freedom for
// two value sets.
func welch(a, b []float64) (t, df float64) {
	meanA, varA := stat.MeanVariance(a, nil)
	meanB, varB := stat.MeanVariance(b, nil)
	na, nb := float64(len(a)), float64(len(b))
	sa, sb := varA/na, varB/nb
	se := math.Sqrt(sa + sb)
	if se == 0 {
		return 0, na + nb - 2
	}
	t = (meanB - meanA) / se
	df = (sa + sb) * (sa + sb) / (sa*sa/(na-1) + sb*sb/(nb-1))
	return t, df
}

// Test compares the two named groups feature by feature on
// CLR-transformed counts with Welch's t test, and reports
// Benjamini-Hochberg adjusted q-values. Results are sorted by
// ascending q, then p.
func Test(m *Matrix, grouping []string, group1, group2 string, options Options) ([]Result, error) {
	if len(grouping) != len(m.Samples) {
		return nil, fmt.Errorf("grouping has %v values for %v samples", len(grouping), len(m.Samples))
	}
	var keep []int
	groupOf := make([]int, 0)
	for i, value := range grouping {
		switch value {
		case group1:
			keep = append(keep, i)
			groupOf = append(groupOf, 0)
		case group2:
			keep = append(keep, i)
			groupOf = append(groupOf, 1)
		}
	}
	sizes := [2]int{}
	for _, g := range groupOf {
		sizes[g]++
	}
	if sizes[0] < 2 || sizes[1] < 2 {
		return nil, fmt.Errorf("groups %v and %v have %v and %v samples; at least 2 each are required", group1, group2, sizes[0], sizes[1])
	}
	sub := m.SubsetSamples(keep).FilterPrevalence(options.MinPrevalence)
	if len(sub.Features) == 0 {
		return nil, fmt.Errorf("no feature passes the prevalence filter %v", options.MinPrevalence)
	}

	transformed := make([][]float64, len(sub.Samples))
	for i := range sub.Samples {
		transformed[i] = clr(sub.Counts[i])
	}
	// column-major feature values split by group
	values := func(groups []int, f, g int) []float64 {
		var column []float64
		for i, gi := range groups {
			if gi == g {
				column = append(column, transformed[i][f])
			}
		}
		return column
	}

	results := make([]Result, len(sub.Features))
	parallel.Range(0, len(sub.Features), 0, func(low, high int) {
		for f := low; f < high; f++ {
			a := values(groupOf, f, 0)
			b := values(groupOf, f, 1)
			t, df := welch(a, b)
			results[f] = Result{
				Feature:    sub.Features[f],
				Group1Mean: stat.Mean(a, nil),
				Group2Mean: stat.Mean(b, nil),
				Diff:       stat.Mean(b, nil) - stat.Mean(a, nil),
				T:          t,
			}
			if options.Permutations <= 0 {
				dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
				results[f].P = 2 * dist.CDF(-math.Abs(t))
			}
		}
	})

	if options.Permutations > 0 {
		hits := make([]int64, len(sub.Features))
		parallel.Range(0, options.Permutations, 0, func(low, high int) {
			permuted := make([]int, len(groupOf))
			for p := low; p < high; p++ {
				rnd := internal.NewRand(options.Seed + int64(p))
				copy(permuted, groupOf)
				rnd.Shuffle(len(permuted), func(i, j int) {
					permuted[i], permuted[j] = permuted[j], permuted[i]
				})
				for f := range sub.Features {
					t, _ := welch(values(permuted, f, 0), values(permuted, f, 1))
					if math.Abs(t) >= math.Abs(results[f].T) {
						atomic.AddInt64(&hits[f], 1)
					}
				}
			}
		})
		for f := range results {
			results[f].P = float64(hits[f]+1) / float64(options.Permutations+1)
		}
	}

	adjust(results)
	sort.Slice(results, func(i, j int) bool {
		if results[i].Q != results[j].Q {
			return results[i].Q < results[j].Q
		}
		if results[i].P != results[j].P {
			return results[i].P < results[j].P
		}
		return results[i].Feature < results[j].Feature
	})
	return results, nil
}

// adjust computes Benjamini-Hochberg q-values in place.
func adjust(results []Result) {
	n := len(results)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		return results[order[i]].P < results[order[j]].P
	})
	minQ := 1.0
	for rank := n; rank >= 1; rank-- {
		f := order[rank-1]
		q := results[f].P * float64(n) / float64(rank)
		if q < minQ {
			minQ = q
		}
		results[f].Q = minQ
	}
}

// WriteResultsTSV exports differential abundance results as a TSV
// file.
func WriteResultsTSV(filename string, results []Result) {
	f := internal.FileCreate(filename)
	defer internal.Close(f)
	w := bufio.NewWriter(f)
	defer internal.Flush(w)
	internal.WriteString(w, "feature\tgroup1_mean\tgroup2_mean\tdiff\tt\tp\tq\n")
	for _, r := range results {
		internal.WriteString(w, r.Feature)
		for _, v := range []float64{r.Group1Mean, r.Group2Mean, r.Diff, r.T, r.P, r.Q} {
			internal.WriteString(w, "\t")
			internal.WriteString(w, strconv.FormatFloat(v, 'g', 6, 64))
		}
		internal.WriteString(w, "\n")
	}
}
