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
	"sort"

	"github.com/villapollab/fmt-ad-w-abx/fastq"
)

// A Unique is a dereplicated sequence with its abundance.
type Unique struct {
	Seq  string
	Size int
}

// sortUniques orders uniques by decreasing abundance, breaking ties
// by sequence so that the order is deterministic.
func sortUniques(uniques []Unique) {
	sort.Slice(uniques, func(i, j int) bool {
		if uniques[i].Size != uniques[j].Size {
			return uniques[i].Size > uniques[j].Size
		}
		return uniques[i].Seq < uniques[j].Seq
	})
}

// Dereplicate collapses the reads of a merged FASTQ file into unique
// sequences with abundances, ordered by decreasing abundance.
func Dereplicate(filename string) (uniques []Unique, nofReads int) {
	f := fastq.Open(filename)
	defer f.Close()
	counts := make(map[string]int)
	for {
		read := f.Parse()
		if read == nil {
			break
		}
		counts[string(read.Seq)]++
		nofReads++
	}
	uniques = make([]Unique, 0, len(counts))
	for seq, size := range counts {
		uniques = append(uniques, Unique{Seq: seq, Size: size})
	}
	sortUniques(uniques)
	return uniques, nofReads
}
