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

// Package taxonomy implements a naive Bayes classifier for 16S rRNA
// sequences in the style of the RDP classifier: genus-level word
// models over 8-mers, with bootstrap confidence estimation.
package taxonomy

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/villapollab/fmt-ad-w-abx/fasta"
	"github.com/villapollab/fmt-ad-w-abx/internal"

	"github.com/exascience/pargo/parallel"
)

// Ranks are the taxonomic ranks a reference database must provide.
var Ranks = []string{"Kingdom", "Phylum", "Class", "Order", "Family", "Genus"}

// wordSize is the classifier word length. 4^8 = 65536 possible words.
const wordSize = 8

const nofWords = 1 << (2 * wordSize)

// bootstrapRounds is the number of bootstrap resamplings used for
// confidence estimation.
const bootstrapRounds = 100

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

// sequenceWords returns the sorted distinct 8-mer codes of a sequence.
func sequenceWords(seq []byte) []int32 {
	seen := make(map[int32]bool)
	var word int32
	var valid int
	const mask = nofWords - 1
	for _, c := range seq {
		code := baseCode[c]
		if code < 0 {
			valid, word = 0, 0
			continue
		}
		word = (word<<2 | int32(code)) & mask
		if valid++; valid >= wordSize {
			seen[word] = true
		}
	}
	words := make([]int32, 0, len(seen))
	for w := range seen {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool { return words[i] < words[j] })
	return words
}

// A wordEntry records the score contribution of a word for one taxon
// that contains it, relative to the taxon-independent background.
type wordEntry struct {
	taxon int32
	delta float32
}

// A Classifier is a genus-level naive Bayes model built from a
// reference database.
type Classifier struct {
	// Lineages holds the rank names per genus-level taxon.
	Lineages [][]string

	logM1 []float64 // log(M(g)+1) per taxon
	words [][]wordEntry
}

// parseLineage splits a reference header into rank names. The header
// is the semicolon-separated lineage, optionally preceded by an
// accession and whitespace.
func parseLineage(header string) []string {
	if i := strings.IndexAny(header, " \t"); i >= 0 && strings.Contains(header[i+1:], ";") {
		header = header[i+1:]
	}
	parts := strings.Split(header, ";")
	var lineage []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			lineage = append(lineage, part)
		}
	}
	return lineage
}

// NewClassifier builds a classifier from a reference FASTA file whose
// headers carry semicolon-separated lineages. It returns an error
// when the reference does not provide all required ranks.
func NewClassifier(filename string) (*Classifier, error) {
	records := fasta.ParseRecords(filename)

	taxonIndex := make(map[string]int32)
	var lineages [][]string
	var taxonSeqs []int       // M(g)
	wordCounts := make(map[int32]map[int32]int32) // word -> taxon -> m(w,g)
	wordSeqs := make([]int, nofWords)             // n(w)

	for _, record := range records {
		lineage := parseLineage(record.Name)
		if len(lineage) < len(Ranks) {
			return nil, fmt.Errorf("reference entry %q provides %v ranks, need at least the %v ranks %v",
				record.Name, len(lineage), len(Ranks), strings.Join(Ranks, ";"))
		}
		lineage = lineage[:len(Ranks)]
		key := strings.Join(lineage, ";")
		taxon, ok := taxonIndex[key]
		if !ok {
			taxon = int32(len(lineages))
			taxonIndex[key] = taxon
			lineages = append(lineages, lineage)
			taxonSeqs = append(taxonSeqs, 0)
		}
		taxonSeqs[taxon]++
		for _, w := range sequenceWords(record.Seq) {
			wordSeqs[w]++
			counts := wordCounts[w]
			if counts == nil {
				counts = make(map[int32]int32)
				wordCounts[w] = counts
			}
			counts[taxon]++
		}
	}
	if len(lineages) == 0 {
		return nil, fmt.Errorf("reference database %v contains no usable entries", filename)
	}

	nofSeqs := len(records)
	classifier := &Classifier{
		Lineages: lineages,
		logM1:    make([]float64, len(lineages)),
		words:    make([][]wordEntry, nofWords),
	}
	for g, m := range taxonSeqs {
		classifier.logM1[g] = math.Log(float64(m) + 1)
	}
	for w, counts := range wordCounts {
		pi := (float64(wordSeqs[w]) + 0.5) / (float64(nofSeqs) + 1)
		logPi := math.Log(pi)
		entries := make([]wordEntry, 0, len(counts))
		for taxon, m := range counts {
			delta := math.Log(float64(m)+pi) - logPi
			entries = append(entries, wordEntry{taxon: taxon, delta: float32(delta)})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].taxon < entries[j].taxon })
		classifier.words[w] = entries
	}
	return classifier, nil
}

// bestTaxon returns the taxon maximizing the naive Bayes score for
// the given words with multiplicities.
func (c *Classifier) bestTaxon(words []int32, multiplicity []int32) int32 {
	scores := make([]float64, len(c.logM1))
	var totalWords int32
	for _, m := range multiplicity {
		totalWords += m
	}
	for g := range scores {
		scores[g] = -float64(totalWords) * c.logM1[g]
	}
	for i, w := range words {
		m := float64(multiplicity[i])
		for _, entry := range c.words[w] {
			scores[entry.taxon] += m * float64(entry.delta)
		}
	}
	best := int32(0)
	for g := 1; g < len(scores); g++ {
		if scores[g] > scores[best] {
			best = int32(g)
		}
	}
	return best
}

// An Assignment is the classification result for one query sequence.
type Assignment struct {
	ID string
	// Taxa holds the assigned name per rank; unassigned ranks are "".
	Taxa []string
	// Bootstrap holds the percent of bootstrap rounds supporting the
	// assignment at each rank.
	Bootstrap []int
}

// Classify classifies a single sequence and truncates the assignment
// at the deepest rank whose bootstrap support reaches minBoot. The
// random source decides the bootstrap subsamples.
func (c *Classifier) Classify(id string, seq []byte, minBoot int, rnd *internal.Rand) Assignment {
	words := sequenceWords(seq)
	assignment := Assignment{
		ID:        id,
		Taxa:      make([]string, len(Ranks)),
		Bootstrap: make([]int, len(Ranks)),
	}
	if len(words) < wordSize {
		return assignment
	}

	full := make([]int32, len(words))
	for i := range full {
		full[i] = 1
	}
	winner := c.bestTaxon(words, full)

	// bootstrap: resample 1/8 of the words with replacement
	votes := make(map[int32]int)
	n := len(words) / wordSize
	if n < 1 {
		n = 1
	}
	sampleWords := make([]int32, 0, n)
	sampleMult := make([]int32, 0, n)
	counts := make(map[int32]int32, n)
	for round := 0; round < bootstrapRounds; round++ {
		for w := range counts {
			delete(counts, w)
		}
		for i := 0; i < n; i++ {
			counts[words[rnd.Intn(len(words))]]++
		}
		sampleWords = sampleWords[:0]
		sampleMult = sampleMult[:0]
		for w, m := range counts {
			sampleWords = append(sampleWords, w)
			sampleMult = append(sampleMult, m)
		}
		votes[c.bestTaxon(sampleWords, sampleMult)]++
	}

	lineage := c.Lineages[winner]
	for rank := range Ranks {
		support := 0
		for taxon, v := range votes {
			if equalPrefix(c.Lineages[taxon], lineage, rank+1) {
				support += v
			}
		}
		percent := support * 100 / bootstrapRounds
		if percent < minBoot {
			break
		}
		assignment.Taxa[rank] = lineage[rank]
		assignment.Bootstrap[rank] = percent
	}
	return assignment
}

func equalPrefix(a, b []string, n int) bool {
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ClassifyAll classifies all records in parallel. The seed makes the
// bootstrap reproducible: each record derives its own random source
// from the seed and its index.
func (c *Classifier) ClassifyAll(records []fasta.Record, minBoot int, seed int64) []Assignment {
	assignments := make([]Assignment, len(records))
	parallel.Range(0, len(records), 0, func(low, high int) {
		for i := low; i < high; i++ {
			rnd := internal.NewRand(seed + int64(i))
			assignments[i] = c.Classify(records[i].Name, records[i].Seq, minBoot, rnd)
		}
	})
	return assignments
}
