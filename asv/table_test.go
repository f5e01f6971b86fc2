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
	"path/filepath"
	"strings"
	"testing"

	"github.com/villapollab/fmt-ad-w-abx/fastq"
)

func writeTestFastq(t *testing.T, filename string, seqs []string) {
	t.Helper()
	out := fastq.Create(filename)
	defer out.Close()
	for i, seq := range seqs {
		out.Append(&fastq.Read{
			Name: []byte("read" + string(rune('0'+i))),
			Seq:  []byte(seq),
			Qual: []byte(strings.Repeat("I", len(seq))),
		})
	}
}

func testTable() *Table {
	return Build([]string{"s1", "s2"}, map[string][]Unique{
		"s1": {
			{Seq: "AAAACCCCGGGG", Size: 50},
			{Seq: "TTTTGGGGCCCC", Size: 10},
		},
		"s2": {
			{Seq: "AAAACCCCGGGG", Size: 30},
			{Seq: "ACGTACGTACGT", Size: 40},
		},
	})
}

func TestBuild(t *testing.T) {
	table := testTable()
	if table.NofSamples() != 2 || table.NofVariants() != 3 {
		t.Fatal("Build dimensions failed")
	}
	// variants ordered by total abundance descending
	if table.Seqs[0] != "AAAACCCCGGGG" || table.Seqs[1] != "ACGTACGTACGT" || table.Seqs[2] != "TTTTGGGGCCCC" {
		t.Error("Build variant order failed")
	}
	if table.IDs[0] != HashID("AAAACCCCGGGG") {
		t.Error("Build identifier failed")
	}
	if table.Counts[0][0] != 50 || table.Counts[0][1] != 0 || table.Counts[0][2] != 10 {
		t.Error("Build sample 1 counts failed")
	}
	if table.Counts[1][0] != 30 || table.Counts[1][1] != 40 || table.Counts[1][2] != 0 {
		t.Error("Build sample 2 counts failed")
	}
	if table.SampleSum(0) != 60 || table.SampleSum(1) != 70 {
		t.Error("SampleSum failed")
	}
	if err := table.Validate(); err != nil {
		t.Error("Validate failed: ", err)
	}
}

func TestValidate(t *testing.T) {
	table := testTable()
	table.IDs[0] = "bogus"
	if table.Validate() == nil {
		t.Error("Validate accepted a corrupted identifier")
	}
	table = testTable()
	table.Counts[0] = table.Counts[0][:2]
	if table.Validate() == nil {
		t.Error("Validate accepted a short count row")
	}
}

func TestSubset(t *testing.T) {
	table := testTable()
	sub := table.Subset([]int{0, 2})
	if sub.NofVariants() != 2 || sub.Seqs[1] != "TTTTGGGGCCCC" {
		t.Error("Subset variants failed")
	}
	if sub.Counts[0][0] != 50 || sub.Counts[0][1] != 10 {
		t.Error("Subset counts failed")
	}
	sub = table.SubsetSamples([]int{1})
	if sub.NofSamples() != 1 || sub.Samples[0] != "s2" || sub.Counts[0][1] != 40 {
		t.Error("SubsetSamples failed")
	}
	// the receiver is unchanged
	if table.NofVariants() != 3 || table.NofSamples() != 2 {
		t.Error("Subset modified the receiver")
	}
}

func TestTableRoundTrip(t *testing.T) {
	dir := t.TempDir()
	table := testTable()
	filename := filepath.Join(dir, "table.json.gz")
	WriteTable(filename, table)
	loaded := ReadTable(filename)
	if loaded.NofSamples() != table.NofSamples() || loaded.NofVariants() != table.NofVariants() {
		t.Fatal("table round trip dimensions failed")
	}
	for i := range table.Samples {
		for j := range table.IDs {
			if loaded.Counts[i][j] != table.Counts[i][j] {
				t.Fatal("table round trip counts failed")
			}
		}
	}
}

func TestUniquesRoundTrip(t *testing.T) {
	dir := t.TempDir()
	uniques := []Unique{
		{Seq: "AAAACCCCGGGG", Size: 50},
		{Seq: "TTTTGGGGCCCC", Size: 10},
	}
	filename := filepath.Join(dir, "uniques.tsv")
	WriteUniques(filename, uniques)
	loaded := ReadUniques(filename)
	if len(loaded) != 2 || loaded[0] != uniques[0] || loaded[1] != uniques[1] {
		t.Error("uniques round trip failed")
	}
}

func TestDereplicate(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "merged.fastq")
	writeTestFastq(t, filename, []string{
		"AAAACCCCGGGG", "AAAACCCCGGGG", "AAAACCCCGGGG",
		"TTTTGGGGCCCC",
	})
	uniques, nofReads := Dereplicate(filename)
	if nofReads != 4 {
		t.Error("Dereplicate read count failed")
	}
	if len(uniques) != 2 || uniques[0].Seq != "AAAACCCCGGGG" || uniques[0].Size != 3 || uniques[1].Size != 1 {
		t.Error("Dereplicate uniques failed")
	}
}
