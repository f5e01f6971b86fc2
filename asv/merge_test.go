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
	"strings"
	"testing"

	"github.com/villapollab/fmt-ad-w-abx/fastq"
)

func revComp(seq string) string {
	b := make([]byte, len(seq))
	for i := 0; i < len(seq); i++ {
		b[len(seq)-1-i] = complement(seq[i])
	}
	return string(b)
}

func makePair(amplicon string, readLen int) *fastq.Pair {
	r1 := amplicon[:readLen]
	r2 := revComp(amplicon[len(amplicon)-readLen:])
	return &fastq.Pair{
		R1: &fastq.Read{Name: []byte("read1"), Seq: []byte(r1), Qual: []byte(strings.Repeat("I", readLen))},
		R2: &fastq.Read{Name: []byte("read1"), Seq: []byte(r2), Qual: []byte(strings.Repeat("I", readLen))},
	}
}

func TestMergePair(t *testing.T) {
	amplicon := "AAACCCGGGTTTACGTACGT"
	pair := makePair(amplicon, 16)
	merged, ok := MergePair(pair, MergeOptions{MinOverlap: 12, MaxMismatch: 0})
	if !ok {
		t.Fatal("MergePair rejected a perfect overlap")
	}
	if string(merged.Seq) != amplicon {
		t.Errorf("MergePair sequence failed: got %v", string(merged.Seq))
	}
	if len(merged.Qual) != len(amplicon) {
		t.Error("MergePair quality length failed")
	}
	// 'I' is phred 40; agreement caps at the maximum of 41
	for i := 4; i < 16; i++ {
		if merged.Qual[i] != 41+33 {
			t.Error("MergePair overlap quality failed")
		}
	}
	if merged.Qual[0] != 'I' || merged.Qual[len(amplicon)-1] != 'I' {
		t.Error("MergePair overhang quality failed")
	}
}

func TestMergePairMismatch(t *testing.T) {
	amplicon := "AAACCCGGGTTTACGTACGT"
	pair := makePair(amplicon, 16)
	// introduce a low-quality disagreement in the overlap of mate 2
	pos := len(pair.R2.Seq) - 3 // overlaps amplicon position 6
	pair.R2.Seq[pos] = complement(pair.R2.Seq[pos])
	pair.R2.Qual[pos] = '#'

	if _, ok := MergePair(pair, MergeOptions{MinOverlap: 12, MaxMismatch: 0}); ok {
		t.Error("MergePair accepted a mismatch with max-mismatch 0")
	}
	merged, ok := MergePair(pair, MergeOptions{MinOverlap: 12, MaxMismatch: 1})
	if !ok {
		t.Fatal("MergePair rejected a single allowed mismatch")
	}
	// the higher-quality base from mate 1 wins
	if string(merged.Seq) != amplicon {
		t.Errorf("MergePair mismatch resolution failed: got %v", string(merged.Seq))
	}
	if merged.Qual[6] != 40-2+33 {
		t.Error("MergePair mismatch quality failed")
	}
}

func TestMergePairNoOverlap(t *testing.T) {
	pair := &fastq.Pair{
		R1: &fastq.Read{Name: []byte("read1"), Seq: []byte("AAAAAAAAAAAAAAAA"), Qual: []byte(strings.Repeat("I", 16))},
		R2: &fastq.Read{Name: []byte("read1"), Seq: []byte("CCCCCCCCCCCCCCCC"), Qual: []byte(strings.Repeat("I", 16))},
	}
	if _, ok := MergePair(pair, DefaultMergeOptions); ok {
		t.Error("MergePair accepted non-overlapping mates")
	}
}
