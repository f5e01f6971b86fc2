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

package fastq

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/exascience/pargo/pipeline"
)

type (
	// A PairFilter receives a Pair which it can modify in place (for
	// example by trimming or truncating the mates). It returns true if
	// the pair should be kept, and false if the pair should be removed.
	PairFilter func(*Pair) bool

	// A Filter receives the pipeline Stats and returns a PairFilter or
	// nil. Filters register their rejection counters with the Stats
	// before the pipeline runs.
	Filter func(*Stats) PairFilter

	// A PipelineOutput can add nodes to the given pargo pipeline that
	// consume the surviving read pairs. Any error should be reported to
	// the pipeline by calling p.SetErr(err) with a non-nil error value.
	PipelineOutput interface {
		AddNodes(p *pipeline.Pipeline)
	}

	// A PipelineInput arranges for a pargo pipeline to be properly
	// initialized, arranges for the pipeline to run the given filters,
	// calls output.AddNodes(...), and eventually runs the pipeline.
	PipelineInput interface {
		RunPipeline(output PipelineOutput, stats *Stats, filters []Filter) error
	}
)

// A Counter counts read pairs that were dropped for one particular
// reason. It is safe for concurrent use.
type Counter struct {
	Name string
	n    int64
}

// Inc increments the counter.
func (c *Counter) Inc() {
	atomic.AddInt64(&c.n, 1)
}

// Value returns the current count.
func (c *Counter) Value() int64 {
	return atomic.LoadInt64(&c.n)
}

// Stats accumulates read-retention numbers for one pipeline run.
type Stats struct {
	input, kept int64

	mutex    sync.Mutex
	counters []*Counter
}

// NewCounter registers a named drop counter with the Stats.
func (s *Stats) NewCounter(name string) *Counter {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, c := range s.counters {
		if c.Name == name {
			return c
		}
	}
	c := &Counter{Name: name}
	s.counters = append(s.counters, c)
	return c
}

// Counters returns the registered drop counters in registration order.
func (s *Stats) Counters() []*Counter {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]*Counter(nil), s.counters...)
}

// Input returns the number of read pairs that entered the pipeline.
func (s *Stats) Input() int64 {
	return atomic.LoadInt64(&s.input)
}

// Kept returns the number of read pairs that survived all filters.
func (s *Stats) Kept() int64 {
	return atomic.LoadInt64(&s.kept)
}

const (
	minBatchSize = 2048
	maxBatchSize = 65536
)

// A PairSource reads synchronized batches of read pairs from two
// FASTQ input files, and implements the pipeline.Source interface.
type PairSource struct {
	r1, r2 *InputFile
	data   []*Pair
}

// NewPairSource returns a PairSource over the two mate files.
func NewPairSource(r1, r2 *InputFile) *PairSource {
	return &PairSource{r1: r1, r2: r2}
}

// Err implements the method of the pipeline.Source interface.
// Parse errors panic instead, so there is never a deferred error.
func (s *PairSource) Err() error {
	return nil
}

// Prepare implements the method of the pipeline.Source interface.
func (s *PairSource) Prepare(_ context.Context) int {
	return -1
}

// Fetch implements the method of the pipeline.Source interface. It
// panics when the two mate files run out of sync.
func (s *PairSource) Fetch(size int) int {
	if cap(s.data) < size {
		s.data = make([]*Pair, 0, size)
	}
	s.data = s.data[:0]
	for i := 0; i < size; i++ {
		r1 := s.r1.Parse()
		r2 := s.r2.Parse()
		if (r1 == nil) != (r2 == nil) {
			log.Panicf("unequal number of reads in mate files after %v pairs", s.r1.NofRecords())
		}
		if r1 == nil {
			break
		}
		s.data = append(s.data, &Pair{R1: r1, R2: r2})
	}
	return len(s.data)
}

// Data implements the method of the pipeline.Source interface.
func (s *PairSource) Data() interface{} {
	return s.data
}

// ComposeFilters takes the pipeline Stats and a slice of Filter
// functions, and successively calls these functions to generate the
// corresponding PairFilter predicates. It then returns a pargo
// pipeline.Receiver that applies these PairFilter predicates on the
// slices of Pair pointers it receives. ComposeFilters may return nil
// if all PairFilters are nil.
func ComposeFilters(stats *Stats, filters []Filter) (receiver pipeline.Receiver) {
	var pairFilters []PairFilter
	for _, f := range filters {
		if f != nil {
			if pairFilter := f(stats); pairFilter != nil {
				pairFilters = append(pairFilters, pairFilter)
			}
		}
	}
	if len(pairFilters) > 0 {
		receiver = func(_ int, data interface{}) interface{} {
			pairs := data.([]*Pair)
			atomic.AddInt64(&stats.input, int64(len(pairs)))
			for i, pair := range pairs {
				for _, pairFilter := range pairFilters {
					if !pairFilter(pair) {
						n := len(pairs)
					jLoop:
						for j := i + 1; j < n; j++ {
							pair := pairs[j]
							for _, pairFilter := range pairFilters {
								if !pairFilter(pair) {
									continue jLoop
								}
							}
							pairs[i] = pair
							i++
						}
						atomic.AddInt64(&stats.kept, int64(i))
						return pairs[0:i]
					}
				}
			}
			atomic.AddInt64(&stats.kept, int64(len(pairs)))
			return pairs
		}
	} else {
		receiver = func(_ int, data interface{}) interface{} {
			pairs := data.([]*Pair)
			atomic.AddInt64(&stats.input, int64(len(pairs)))
			atomic.AddInt64(&stats.kept, int64(len(pairs)))
			return data
		}
	}
	return
}

// A PairOutput writes surviving read pairs to two FASTQ output files.
type PairOutput struct {
	W1, W2 *OutputFile
}

// AddNodes implements the PipelineOutput interface for paired FASTQ
// output files. Writing is strictly ordered so that the output mate
// files stay synchronized with each other and with the input order.
func (out *PairOutput) AddNodes(p *pipeline.Pipeline) {
	p.Add(pipeline.StrictOrd(pipeline.Receive(func(_ int, data interface{}) interface{} {
		for _, pair := range data.([]*Pair) {
			out.W1.Append(pair.R1)
			out.W2.Append(pair.R2)
		}
		return data
	})))
}

// A PairSlice collects surviving read pairs in memory.
type PairSlice struct {
	Pairs []*Pair
}

// AddNodes implements the PipelineOutput interface for in-memory
// collection of read pairs.
func (out *PairSlice) AddNodes(p *pipeline.Pipeline) {
	p.Add(pipeline.StrictOrd(pipeline.Slice(&out.Pairs)))
}

// RunPipeline implements the PipelineInput interface for PairSource
// values.
func (s *PairSource) RunPipeline(output PipelineOutput, stats *Stats, filters []Filter) error {
	pairFilter := ComposeFilters(stats, filters)
	var p pipeline.Pipeline
	p.Source(s)
	p.SetVariableBatchSize(minBatchSize, maxBatchSize)
	p.Add(pipeline.LimitedPar(0, pipeline.Receive(pairFilter)))
	output.AddNodes(&p)
	p.Run()
	return p.Err()
}
