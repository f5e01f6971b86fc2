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
	"strings"
	"testing"

	"github.com/villapollab/fmt-ad-w-abx/fastq"
)

func makeRead(seq, qual string) *fastq.Read {
	return &fastq.Read{Name: []byte("read"), Seq: []byte(seq), Qual: []byte(qual)}
}

func makeTestPair(seq1, seq2 string) *fastq.Pair {
	return &fastq.Pair{
		R1: makeRead(seq1, strings.Repeat("I", len(seq1))),
		R2: makeRead(seq2, strings.Repeat("I", len(seq2))),
	}
}

func TestMatchesPrimer(t *testing.T) {
	if !matchesPrimer([]byte("ACGTACGT"), []byte("ACGT")) {
		t.Error("exact primer match failed")
	}
	if !matchesPrimer([]byte("ACGTACGT"), []byte("RYGT")) {
		t.Error("ambiguous primer match failed")
	}
	if matchesPrimer([]byte("ACGTACGT"), []byte("TGCA")) {
		t.Error("primer mismatch failed")
	}
	if matchesPrimer([]byte("AC"), []byte("ACGT")) {
		t.Error("short sequence failed")
	}
	if !matchesPrimer([]byte("acgtacgt"), []byte("ACGT")) {
		t.Error("lowercase sequence failed")
	}
}

func TestTrimPrimers(t *testing.T) {
	var stats fastq.Stats
	filter := TrimPrimers("ACGT", "GGTT")(&stats)

	pair := makeTestPair("ACGTAAAACCCC", "GGTTCCCCAAAA")
	if !filter(pair) {
		t.Fatal("TrimPrimers dropped a matching pair")
	}
	if string(pair.R1.Seq) != "AAAACCCC" || string(pair.R2.Seq) != "CCCCAAAA" {
		t.Error("TrimPrimers trimming failed")
	}
	if len(pair.R1.Qual) != 8 || len(pair.R2.Qual) != 8 {
		t.Error("TrimPrimers quality trimming failed")
	}

	pair = makeTestPair("TTTTAAAACCCC", "GGTTCCCCAAAA")
	if filter(pair) {
		t.Error("TrimPrimers kept a pair without the forward primer")
	}
	if stats.Counters()[0].Value() != 1 {
		t.Error("TrimPrimers counter failed")
	}
}

func TestTruncateQuality(t *testing.T) {
	var stats fastq.Stats
	filter := TruncateQuality(20)(&stats)
	pair := &fastq.Pair{
		R1: makeRead("AAAACCCC", "IIII#III"),
		R2: makeRead("GGGGTTTT", "IIIIIIII"),
	}
	if !filter(pair) {
		t.Fatal("TruncateQuality dropped a pair")
	}
	if string(pair.R1.Seq) != "AAAA" {
		t.Error("TruncateQuality truncation failed")
	}
	if string(pair.R2.Seq) != "GGGGTTTT" {
		t.Error("TruncateQuality touched a clean read")
	}
}

func TestTruncateLength(t *testing.T) {
	var stats fastq.Stats
	filter := TruncateLength(6, 4)(&stats)

	pair := makeTestPair("AAAACCCC", "GGGGTTTT")
	if !filter(pair) {
		t.Fatal("TruncateLength dropped a long enough pair")
	}
	if pair.R1.Len() != 6 || pair.R2.Len() != 4 {
		t.Error("TruncateLength truncation failed")
	}

	pair = makeTestPair("AAAA", "GGGGTTTT")
	if filter(pair) {
		t.Error("TruncateLength kept a short read")
	}
}

func TestMaxN(t *testing.T) {
	var stats fastq.Stats
	filter := MaxN(0)(&stats)
	if !filter(makeTestPair("AAAACCCC", "GGGGTTTT")) {
		t.Error("MaxN dropped a clean pair")
	}
	if filter(makeTestPair("AAAANCCC", "GGGGTTTT")) {
		t.Error("MaxN kept an ambiguous read")
	}
}

func TestFilterOrder(t *testing.T) {
	// quality truncation runs before the expected error filter, so a
	// read with a low quality tail survives after truncation
	var stats fastq.Stats
	receiver := fastq.ComposeFilters(&stats, []fastq.Filter{
		TruncateQuality(20),
		MaxExpectedErrors(2, 2),
	})
	pair := &fastq.Pair{
		R1: makeRead(strings.Repeat("A", 20)+strings.Repeat("C", 10),
			strings.Repeat("I", 20)+strings.Repeat("#", 10)),
		R2: makeRead(strings.Repeat("G", 30), strings.Repeat("I", 30)),
	}
	kept := receiver(0, []*fastq.Pair{pair}).([]*fastq.Pair)
	if len(kept) != 1 {
		t.Fatal("filter order failed: truncated read was dropped")
	}
	if pair.R1.Len() != 20 {
		t.Error("filter order truncation failed")
	}
}

func TestMaxExpectedErrors(t *testing.T) {
	var stats fastq.Stats
	filter := MaxExpectedErrors(2, 2)(&stats)
	// 'I' is phred 40: essentially error free
	if !filter(makeTestPair(strings.Repeat("A", 100), strings.Repeat("C", 100))) {
		t.Error("MaxExpectedErrors dropped a high quality pair")
	}
	// '#' is phred 2: about 0.63 expected errors per base
	pair := &fastq.Pair{
		R1: makeRead(strings.Repeat("A", 10), strings.Repeat("#", 10)),
		R2: makeRead(strings.Repeat("C", 10), strings.Repeat("I", 10)),
	}
	if filter(pair) {
		t.Error("MaxExpectedErrors kept a low quality read")
	}
}
