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

package filters

import (
	"github.com/villapollab/fmt-ad-w-abx/fasta"
	"github.com/villapollab/fmt-ad-w-abx/fastq"

	"github.com/willf/bitset"
)

// phixK is the k-mer size of the contaminant screen. 4^12 bits keep
// the index at 2 MB while making random hits rare.
const phixK = 12

// phixMinFraction is the fraction of indexed k-mers in a read above
// which the read pair is considered phiX contamination.
const phixMinFraction = 0.2

// A PhixIndex is a k-mer membership index over the phiX genome and
// its reverse complement.
type PhixIndex struct {
	kmers *bitset.BitSet
}

var baseCode = func() (codes [256]int8) {
	for i := range codes {
		codes[i] = -1
	}
	codes['A'], codes['a'] = 0, 0
	codes['C'], codes['c'] = 1, 1
	codes['G'], codes['g'] = 2, 2
	codes['T'], codes['t'] = 3, 3
	return codes
}()

func reverseComplement(seq []byte) []byte {
	rc := make([]byte, len(seq))
	for i, c := range seq {
		switch c {
		case 'A', 'a':
			rc[len(seq)-1-i] = 'T'
		case 'C', 'c':
			rc[len(seq)-1-i] = 'G'
		case 'G', 'g':
			rc[len(seq)-1-i] = 'C'
		case 'T', 't':
			rc[len(seq)-1-i] = 'A'
		default:
			rc[len(seq)-1-i] = 'N'
		}
	}
	return rc
}

// eachKmer calls f with the 2-bit encoding of every unambiguous k-mer
// in seq.
func eachKmer(seq []byte, f func(uint)) {
	var kmer, valid uint
	mask := uint(1)<<(2*phixK) - 1
	for _, c := range seq {
		code := baseCode[c]
		if code < 0 {
			valid = 0
			kmer = 0
			continue
		}
		kmer = (kmer<<2 | uint(code)) & mask
		if valid++; valid >= phixK {
			f(kmer)
		}
	}
}

// NewPhixIndex builds a k-mer index from a phiX reference FASTA file.
func NewPhixIndex(filename string) *PhixIndex {
	index := &PhixIndex{kmers: bitset.New(1 << (2 * phixK))}
	for _, seq := range fasta.ParseFasta(filename) {
		eachKmer(seq, func(kmer uint) { index.kmers.Set(kmer) })
		eachKmer(reverseComplement(seq), func(kmer uint) { index.kmers.Set(kmer) })
	}
	return index
}

// hitFraction returns the fraction of the read's k-mers found in the
// index.
func (index *PhixIndex) hitFraction(seq []byte) float64 {
	var total, hits int
	eachKmer(seq, func(kmer uint) {
		total++
		if index.kmers.Test(kmer) {
			hits++
		}
	})
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// RemovePhix returns a filter that removes read pairs in which either
// mate looks like phiX spike-in sequence.
func RemovePhix(index *PhixIndex) fastq.Filter {
	return func(stats *fastq.Stats) fastq.PairFilter {
		dropped := stats.NewCounter("phiX")
		return func(pair *fastq.Pair) bool {
			if index.hitFraction(pair.R1.Seq) >= phixMinFraction ||
				index.hitFraction(pair.R2.Seq) >= phixMinFraction {
				dropped.Inc()
				return false
			}
			return true
		}
	}
}
