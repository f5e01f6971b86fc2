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
	"bufio"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"

	"github.com/villapollab/fmt-ad-w-abx/fasta"
	"github.com/villapollab/fmt-ad-w-abx/internal"

	"github.com/klauspost/pgzip"
)

// HashID returns the stable identifier of a variant sequence: the
// hex-encoded SHA-1 of the sequence itself. Content hashing keeps
// identifiers consistent across the abundance table, the taxonomy
// table, and the tree tip labels.
func HashID(seq string) string {
	sum := sha1.Sum([]byte(seq))
	return hex.EncodeToString(sum[:])
}

// A Table is the sample-by-variant abundance table. Variants are
// ordered by decreasing total abundance; samples keep the order in
// which they were added.
type Table struct {
	Samples []string `json:"samples"`
	IDs     []string `json:"ids"`
	Seqs    []string `json:"sequences"`
	// Counts is indexed by sample, then by variant.
	Counts [][]int `json:"counts"`
}

// Build constructs a Table from per-sample variant abundances. The
// variant order is deterministic: total abundance descending, ties
// broken by sequence.
func Build(samples []string, counts map[string][]Unique) *Table {
	totals := make(map[string]int)
	for _, uniques := range counts {
		for _, u := range uniques {
			totals[u.Seq] += u.Size
		}
	}
	seqs := make([]string, 0, len(totals))
	for seq := range totals {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool {
		if totals[seqs[i]] != totals[seqs[j]] {
			return totals[seqs[i]] > totals[seqs[j]]
		}
		return seqs[i] < seqs[j]
	})
	index := make(map[string]int, len(seqs))
	ids := make([]string, len(seqs))
	for i, seq := range seqs {
		index[seq] = i
		ids[i] = HashID(seq)
	}
	table := &Table{
		Samples: append([]string(nil), samples...),
		IDs:     ids,
		Seqs:    seqs,
		Counts:  make([][]int, len(samples)),
	}
	for i, sample := range samples {
		row := make([]int, len(seqs))
		for _, u := range counts[sample] {
			row[index[u.Seq]] = u.Size
		}
		table.Counts[i] = row
	}
	return table
}

// NofSamples returns the number of samples in the table.
func (t *Table) NofSamples() int {
	return len(t.Samples)
}

// NofVariants returns the number of variants in the table.
func (t *Table) NofVariants() int {
	return len(t.IDs)
}

// SampleSum returns the total count of the given sample row.
func (t *Table) SampleSum(i int) int {
	sum := 0
	for _, c := range t.Counts[i] {
		sum += c
	}
	return sum
}

// RepSeqs returns the representative sequences keyed by content hash,
// in table order.
func (t *Table) RepSeqs() []fasta.Record {
	records := make([]fasta.Record, len(t.IDs))
	for i, id := range t.IDs {
		records[i] = fasta.Record{Name: id, Seq: []byte(t.Seqs[i])}
	}
	return records
}

// Subset returns a new table restricted to the given variant indices,
// in the given order. The receiver is not modified.
func (t *Table) Subset(keep []int) *Table {
	sub := &Table{
		Samples: append([]string(nil), t.Samples...),
		IDs:     make([]string, len(keep)),
		Seqs:    make([]string, len(keep)),
		Counts:  make([][]int, len(t.Samples)),
	}
	for j, v := range keep {
		sub.IDs[j] = t.IDs[v]
		sub.Seqs[j] = t.Seqs[v]
	}
	for i := range t.Samples {
		row := make([]int, len(keep))
		for j, v := range keep {
			row[j] = t.Counts[i][v]
		}
		sub.Counts[i] = row
	}
	return sub
}

// SubsetSamples returns a new table restricted to the given sample
// indices, in the given order. The receiver is not modified.
func (t *Table) SubsetSamples(keep []int) *Table {
	sub := &Table{
		Samples: make([]string, len(keep)),
		IDs:     append([]string(nil), t.IDs...),
		Seqs:    append([]string(nil), t.Seqs...),
		Counts:  make([][]int, len(keep)),
	}
	for i, s := range keep {
		sub.Samples[i] = t.Samples[s]
		sub.Counts[i] = append([]int(nil), t.Counts[s]...)
	}
	return sub
}

// Validate checks the table invariants: equal lengths of identifier,
// sequence, and count dimensions, and identifier uniqueness.
func (t *Table) Validate() error {
	if len(t.IDs) != len(t.Seqs) {
		return fmt.Errorf("abundance table has %v identifiers for %v sequences", len(t.IDs), len(t.Seqs))
	}
	if len(t.Counts) != len(t.Samples) {
		return fmt.Errorf("abundance table has %v count rows for %v samples", len(t.Counts), len(t.Samples))
	}
	for i, row := range t.Counts {
		if len(row) != len(t.IDs) {
			return fmt.Errorf("abundance table row %v has %v counts for %v variants", t.Samples[i], len(row), len(t.IDs))
		}
	}
	seen := make(map[string]bool, len(t.IDs))
	for i, id := range t.IDs {
		if seen[id] {
			return fmt.Errorf("duplicate variant identifier %v", id)
		}
		seen[id] = true
		if HashID(t.Seqs[i]) != id {
			return fmt.Errorf("variant identifier %v does not match the hash of its sequence", id)
		}
	}
	return nil
}

// WriteTable persists the table as a gzipped JSON artifact.
func WriteTable(filename string, t *Table) {
	f := internal.FileCreate(filename)
	defer internal.Close(f)
	gz := pgzip.NewWriter(f)
	defer internal.Close(gz)
	w := bufio.NewWriter(gz)
	defer internal.Flush(w)
	encoder := json.NewEncoder(w)
	if err := encoder.Encode(t); err != nil {
		log.Panic(err)
	}
}

// ReadTable loads a table persisted by WriteTable and validates it.
func ReadTable(filename string) *Table {
	f := internal.FileOpen(filename)
	defer internal.Close(f)
	gz, err := pgzip.NewReader(bufio.NewReader(f))
	if err != nil {
		log.Panicf("%v, while opening abundance table %v", err, filename)
	}
	defer internal.Close(gz)
	table := new(Table)
	if err := json.NewDecoder(gz).Decode(table); err != nil {
		log.Panicf("%v, while parsing abundance table %v", err, filename)
	}
	if err := table.Validate(); err != nil {
		log.Panicf("%v, in abundance table %v", err, filename)
	}
	return table
}

// WriteTSV exports the table in a spreadsheet-friendly layout with
// variants as rows and samples as columns.
func (t *Table) WriteTSV(filename string) {
	f := internal.FileCreate(filename)
	defer internal.Close(f)
	w := bufio.NewWriter(f)
	defer internal.Flush(w)
	internal.WriteString(w, "variant")
	for _, sample := range t.Samples {
		internal.WriteString(w, "\t")
		internal.WriteString(w, sample)
	}
	internal.WriteString(w, "\n")
	for j, id := range t.IDs {
		internal.WriteString(w, id)
		for i := range t.Samples {
			internal.WriteString(w, "\t")
			internal.WriteString(w, strconv.Itoa(t.Counts[i][j]))
		}
		internal.WriteString(w, "\n")
	}
}

// WriteUniques persists per-sample variant abundances as a two-column
// TSV of sequence and count.
func WriteUniques(filename string, uniques []Unique) {
	f := internal.FileCreate(filename)
	defer internal.Close(f)
	w := bufio.NewWriter(f)
	defer internal.Flush(w)
	for _, u := range uniques {
		internal.WriteString(w, u.Seq)
		internal.WriteString(w, "\t")
		internal.WriteString(w, strconv.Itoa(u.Size))
		internal.WriteString(w, "\n")
	}
}

// ReadUniques loads a per-sample abundance file written by
// WriteUniques.
func ReadUniques(filename string) (uniques []Unique) {
	f := internal.FileOpen(filename)
	defer internal.Close(f)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		seq, size, ok := strings.Cut(line, "\t")
		if !ok {
			log.Panicf("badly formatted abundance file %v - missing count in line %q", filename, line)
		}
		uniques = append(uniques, Unique{Seq: seq, Size: int(internal.ParseInt(size, 10, 64))})
	}
	if err := scanner.Err(); err != nil {
		log.Panic(err)
	}
	return uniques
}
