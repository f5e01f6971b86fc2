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
	"bytes"

	"github.com/villapollab/fmt-ad-w-abx/fastq"
)

// iupacBits maps a nucleotide code to a bit mask over the four bases,
// so that two codes are compatible when their masks intersect.
var iupacBits [256]uint8

func init() {
	for code, bases := range map[byte]string{
		'A': "A", 'C': "C", 'G': "G", 'T': "T",
		'R': "AG", 'Y': "CT", 'S': "CG", 'W': "AT",
		'K': "GT", 'M': "AC", 'B': "CGT", 'D': "AGT",
		'H': "ACT", 'V': "ACG", 'N': "ACGT",
	} {
		var mask uint8
		for i := 0; i < len(bases); i++ {
			switch bases[i] {
			case 'A':
				mask |= 1
			case 'C':
				mask |= 2
			case 'G':
				mask |= 4
			case 'T':
				mask |= 8
			}
		}
		iupacBits[code] = mask
		iupacBits[code+'a'-'A'] = mask
	}
}

// matchesPrimer reports whether the primer matches the start of the
// sequence, honoring IUPAC ambiguity codes in the primer.
func matchesPrimer(seq, primer []byte) bool {
	if len(seq) < len(primer) {
		return false
	}
	for i, p := range primer {
		if iupacBits[seq[i]]&iupacBits[p] == 0 {
			return false
		}
	}
	return true
}

// TrimPrimers returns a filter that removes the forward primer from
// the start of read 1 and the reverse primer from the start of read 2.
// Pairs in which either primer is not found are removed.
func TrimPrimers(forward, reverse string) fastq.Filter {
	fwd := bytes.ToUpper([]byte(forward))
	rev := bytes.ToUpper([]byte(reverse))
	return func(stats *fastq.Stats) fastq.PairFilter {
		dropped := stats.NewCounter("primer missing")
		return func(pair *fastq.Pair) bool {
			if !matchesPrimer(pair.R1.Seq, fwd) || !matchesPrimer(pair.R2.Seq, rev) {
				dropped.Inc()
				return false
			}
			pair.R1.Seq = pair.R1.Seq[len(fwd):]
			pair.R1.Qual = pair.R1.Qual[len(fwd):]
			pair.R2.Seq = pair.R2.Seq[len(rev):]
			pair.R2.Qual = pair.R2.Qual[len(rev):]
			return true
		}
	}
}

func truncateAtQuality(r *fastq.Read, minQual byte) {
	limit := minQual + 33
	for i, q := range r.Qual {
		if q < limit {
			r.Seq = r.Seq[:i]
			r.Qual = r.Qual[:i]
			return
		}
	}
}

// TruncateQuality returns a filter that truncates both mates at the
// first base with a quality score below minQual.
func TruncateQuality(minQual int) fastq.Filter {
	return func(_ *fastq.Stats) fastq.PairFilter {
		return func(pair *fastq.Pair) bool {
			truncateAtQuality(pair.R1, byte(minQual))
			truncateAtQuality(pair.R2, byte(minQual))
			return true
		}
	}
}

// TruncateLength returns a filter that truncates read 1 to forwardLen
// bases and read 2 to reverseLen bases. Pairs in which either mate is
// shorter than its truncation length are removed. A length of 0
// disables truncation for that mate.
func TruncateLength(forwardLen, reverseLen int) fastq.Filter {
	return func(stats *fastq.Stats) fastq.PairFilter {
		dropped := stats.NewCounter("too short")
		return func(pair *fastq.Pair) bool {
			if forwardLen > 0 {
				if pair.R1.Len() < forwardLen {
					dropped.Inc()
					return false
				}
				pair.R1.Seq = pair.R1.Seq[:forwardLen]
				pair.R1.Qual = pair.R1.Qual[:forwardLen]
			}
			if reverseLen > 0 {
				if pair.R2.Len() < reverseLen {
					dropped.Inc()
					return false
				}
				pair.R2.Seq = pair.R2.Seq[:reverseLen]
				pair.R2.Qual = pair.R2.Qual[:reverseLen]
			}
			return true
		}
	}
}

// MaxN returns a filter that removes pairs in which either mate
// contains more than maxN ambiguous bases.
func MaxN(maxN int) fastq.Filter {
	countN := func(seq []byte) int {
		n := 0
		for _, c := range seq {
			if c == 'N' || c == 'n' {
				n++
			}
		}
		return n
	}
	return func(stats *fastq.Stats) fastq.PairFilter {
		dropped := stats.NewCounter("ambiguous bases")
		return func(pair *fastq.Pair) bool {
			if countN(pair.R1.Seq) > maxN || countN(pair.R2.Seq) > maxN {
				dropped.Inc()
				return false
			}
			return true
		}
	}
}

// MaxExpectedErrors returns a filter that removes pairs in which the
// sum of per-base error probabilities of a mate exceeds its maximum.
// A maximum of 0 disables the check for that mate.
func MaxExpectedErrors(forwardMax, reverseMax float64) fastq.Filter {
	return func(stats *fastq.Stats) fastq.PairFilter {
		dropped := stats.NewCounter("expected errors")
		return func(pair *fastq.Pair) bool {
			if forwardMax > 0 && pair.R1.ExpectedErrors() > forwardMax {
				dropped.Inc()
				return false
			}
			if reverseMax > 0 && pair.R2.ExpectedErrors() > reverseMax {
				dropped.Inc()
				return false
			}
			return true
		}
	}
}
