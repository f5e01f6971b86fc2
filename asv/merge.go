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
	"sync/atomic"

	"github.com/villapollab/fmt-ad-w-abx/fastq"

	"github.com/exascience/pargo/pipeline"
)

// MergeOptions control the overlap merging of read pairs.
type MergeOptions struct {
	// MinOverlap is the smallest accepted overlap between the 3' ends
	// of the two mates.
	MinOverlap int
	// MaxMismatch is the largest accepted number of mismatching bases
	// in the overlap region.
	MaxMismatch int
}

// DefaultMergeOptions match the merging parameters of the study.
var DefaultMergeOptions = MergeOptions{MinOverlap: 12, MaxMismatch: 0}

const maxPhred = 41

func complement(c byte) byte {
	switch c {
	case 'A':
		return 'T'
	case 'C':
		return 'G'
	case 'G':
		return 'C'
	case 'T':
		return 'A'
	default:
		return 'N'
	}
}

// MergePair merges the two mates of a read pair by their best 3'
// overlap. The second mate is reverse complemented; in the overlap
// region, base disagreements resolve to the higher-quality base with
// a reduced quality, and agreements add their qualities up to the
// phred cap. It returns false when no acceptable overlap exists.
func MergePair(pair *fastq.Pair, options MergeOptions) (*fastq.Read, bool) {
	r1 := pair.R1
	l1 := r1.Len()
	l2 := pair.R2.Len()
	if l1 == 0 || l2 == 0 {
		return nil, false
	}

	// reverse complement of mate 2, with reversed qualities
	seq2 := make([]byte, l2)
	qual2 := make([]byte, l2)
	for i := 0; i < l2; i++ {
		seq2[l2-1-i] = complement(pair.R2.Seq[i])
		qual2[l2-1-i] = pair.R2.Qual[i]
	}

	maxOverlap := l1
	if l2 < maxOverlap {
		maxOverlap = l2
	}
	bestOverlap := -1
	for overlap := maxOverlap; overlap >= options.MinOverlap; overlap-- {
		mismatches := 0
		for i := 0; i < overlap; i++ {
			if r1.Seq[l1-overlap+i] != seq2[i] {
				if mismatches++; mismatches > options.MaxMismatch {
					break
				}
			}
		}
		if mismatches <= options.MaxMismatch {
			bestOverlap = overlap
			break
		}
	}
	if bestOverlap < 0 {
		return nil, false
	}

	merged := &fastq.Read{
		Name: r1.Name,
		Seq:  make([]byte, 0, l1+l2-bestOverlap),
		Qual: make([]byte, 0, l1+l2-bestOverlap),
	}
	merged.Seq = append(merged.Seq, r1.Seq[:l1-bestOverlap]...)
	merged.Qual = append(merged.Qual, r1.Qual[:l1-bestOverlap]...)
	for i := 0; i < bestOverlap; i++ {
		c1, q1 := r1.Seq[l1-bestOverlap+i], int(r1.Qual[l1-bestOverlap+i])-33
		c2, q2 := seq2[i], int(qual2[i])-33
		if c1 == c2 {
			q := q1 + q2
			if q > maxPhred {
				q = maxPhred
			}
			merged.Seq = append(merged.Seq, c1)
			merged.Qual = append(merged.Qual, byte(q+33))
		} else if q1 >= q2 {
			merged.Seq = append(merged.Seq, c1)
			merged.Qual = append(merged.Qual, byte(q1-q2+33))
		} else {
			merged.Seq = append(merged.Seq, c2)
			merged.Qual = append(merged.Qual, byte(q2-q1+33))
		}
	}
	merged.Seq = append(merged.Seq, seq2[bestOverlap:]...)
	merged.Qual = append(merged.Qual, qual2[bestOverlap:]...)
	return merged, true
}

// MergeStats reports the outcome of merging one sample.
type MergeStats struct {
	Input, Merged int64
}

// mergeOutput writes merged reads in input order.
type mergeOutput struct {
	out *fastq.OutputFile
}

func (m *mergeOutput) AddNodes(p *pipeline.Pipeline) {
	p.Add(pipeline.StrictOrd(pipeline.Receive(func(_ int, data interface{}) interface{} {
		for _, read := range data.([]*fastq.Read) {
			if read != nil {
				m.out.Append(read)
			}
		}
		return data
	})))
}

// MergeFile overlap-merges all read pairs from the two mate files
// into a single-end FASTQ output file. Unmergeable pairs are dropped.
func MergeFile(r1Name, r2Name, outName string, options MergeOptions) (stats MergeStats, err error) {
	r1 := fastq.Open(r1Name)
	defer r1.Close()
	r2 := fastq.Open(r2Name)
	defer r2.Close()
	out := fastq.Create(outName)
	defer out.Close()

	var p pipeline.Pipeline
	p.Source(fastq.NewPairSource(r1, r2))
	p.SetVariableBatchSize(2048, 65536)
	p.Add(pipeline.LimitedPar(0, pipeline.Receive(func(_ int, data interface{}) interface{} {
		pairs := data.([]*fastq.Pair)
		atomic.AddInt64(&stats.Input, int64(len(pairs)))
		merged := make([]*fastq.Read, len(pairs))
		for i, pair := range pairs {
			if read, ok := MergePair(pair, options); ok {
				merged[i] = read
				atomic.AddInt64(&stats.Merged, 1)
			}
		}
		return merged
	})))
	output := &mergeOutput{out: out}
	output.AddNodes(&p)
	p.Run()
	return stats, p.Err()
}
