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
	"math"
	"sort"
	"strconv"

	"github.com/villapollab/fmt-ad-w-abx/internal"

	"gonum.org/v1/gonum/mat"
)

// An Ordination holds principal coordinates for every sample, with
// the proportion of variance explained per axis.
type Ordination struct {
	Samples     []string
	Coordinates [][]float64
	Explained   []float64
}

// PCoA computes a principal coordinates analysis of the distance
// matrix: Gower double-centering of the squared distances followed by
// a symmetric eigendecomposition. At most axes coordinates are
// returned per sample; axes with non-positive eigenvalues are
// discarded.
func PCoA(d *DistanceMatrix, axes int) (*Ordination, error) {
	n := d.NofSamples()
	if n < 2 {
		return nil, fmt.Errorf("principal coordinates analysis needs at least 2 samples, got %v", n)
	}

	// B = -0.5 * J * D2 * J, with J the centering matrix.
	rowMeans := make([]float64, n)
	grandMean := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			d2 := d.D[i][j] * d.D[i][j]
			rowMeans[i] += d2
			grandMean += d2
		}
		rowMeans[i] /= float64(n)
	}
	grandMean /= float64(n * n)
	b := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			d2 := d.D[i][j] * d.D[i][j]
			b.SetSym(i, j, -0.5*(d2-rowMeans[i]-rowMeans[j]+grandMean))
		}
	}

	var eigen mat.EigenSym
	if !eigen.Factorize(b, true) {
		return nil, fmt.Errorf("eigendecomposition of the centered distance matrix failed")
	}
	values := eigen.Values(nil)
	var vectors mat.Dense
	eigen.VectorsTo(&vectors)

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		return values[order[i]] > values[order[j]]
	})

	positiveSum := 0.0
	nofPositive := 0
	for _, v := range values {
		if v > 0 {
			positiveSum += v
			nofPositive++
		}
	}
	if nofPositive == 0 {
		return nil, fmt.Errorf("the centered distance matrix has no positive eigenvalues")
	}
	if axes <= 0 || axes > nofPositive {
		axes = nofPositive
	}

	ordination := &Ordination{
		Samples:     append([]string(nil), d.Samples...),
		Coordinates: make([][]float64, n),
		Explained:   make([]float64, axes),
	}
	for a := 0; a < axes; a++ {
		ordination.Explained[a] = values[order[a]] / positiveSum
	}
	for i := 0; i < n; i++ {
		coords := make([]float64, axes)
		for a := 0; a < axes; a++ {
			col := order[a]
			coords[a] = vectors.At(i, col) * math.Sqrt(values[col])
		}
		ordination.Coordinates[i] = coords
	}
	return ordination, nil
}

// WriteTSV exports the ordination with one row per sample and one
// column per axis; the header carries the proportion explained.
func (o *Ordination) WriteTSV(filename string) {
	f := internal.FileCreate(filename)
	defer internal.Close(f)
	w := bufio.NewWriter(f)
	defer internal.Flush(w)
	internal.WriteString(w, "sample")
	for a, explained := range o.Explained {
		internal.WriteString(w, fmt.Sprintf("\tPC%v (%.1f%%)", a+1, 100*explained))
	}
	internal.WriteString(w, "\n")
	for i, sample := range o.Samples {
		internal.WriteString(w, sample)
		for _, c := range o.Coordinates[i] {
			internal.WriteString(w, "\t")
			internal.WriteString(w, strconv.FormatFloat(c, 'g', 6, 64))
		}
		internal.WriteString(w, "\n")
	}
}
