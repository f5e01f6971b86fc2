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

package taxonomy

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/villapollab/fmt-ad-w-abx/fasta"
	"github.com/villapollab/fmt-ad-w-abx/internal"
)

const (
	lineageA = "Bacteria;Firmicutes;Bacilli;Lactobacillales;Lactobacillaceae;Lactobacillus"
	lineageB = "Bacteria;Bacteroidota;Bacteroidia;Bacteroidales;Bacteroidaceae;Bacteroides"

	seqA = "AAAACCCCGGGGTTTTACGTACGTAAGGTTCCAACCGGTTAGAGAGAGCTCTCTCTACACACAC"
	seqB = "TTTTGGGGCCCCAAAATGCATGCATTCCGGAATTGGCCAATCTCTCTCGAGAGAGATGTGTGTG"
)

func writeTestReference(t *testing.T) string {
	t.Helper()
	filename := filepath.Join(t.TempDir(), "reference.fasta")
	fasta.WriteFasta(filename, []fasta.Record{
		{Name: "accA1 " + lineageA, Seq: []byte(seqA)},
		{Name: "accA2 " + lineageA, Seq: []byte(seqA)},
		{Name: "accB1 " + lineageB, Seq: []byte(seqB)},
		{Name: "accB2 " + lineageB, Seq: []byte(seqB)},
	})
	return filename
}

func TestParseLineage(t *testing.T) {
	lineage := parseLineage("AB123456.1 " + lineageA)
	if len(lineage) != 6 || lineage[0] != "Bacteria" || lineage[5] != "Lactobacillus" {
		t.Errorf("parseLineage with accession failed: %v", lineage)
	}
	lineage = parseLineage("Bacteria; Firmicutes; Bacilli;Lactobacillales;Lactobacillaceae;Lactobacillus")
	if len(lineage) != 6 || lineage[1] != "Firmicutes" {
		t.Errorf("parseLineage whitespace failed: %v", lineage)
	}
}

func TestNewClassifier(t *testing.T) {
	classifier, err := NewClassifier(writeTestReference(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(classifier.Lineages) != 2 {
		t.Error("NewClassifier taxon count failed")
	}

	filename := filepath.Join(t.TempDir(), "bad.fasta")
	fasta.WriteFasta(filename, []fasta.Record{
		{Name: "acc Bacteria;Firmicutes", Seq: []byte(seqA)},
	})
	if _, err := NewClassifier(filename); err == nil {
		t.Error("NewClassifier accepted a reference with missing ranks")
	}
}

func TestClassify(t *testing.T) {
	classifier, err := NewClassifier(writeTestReference(t))
	if err != nil {
		t.Fatal(err)
	}
	assignment := classifier.Classify("query", []byte(seqA), 80, internal.NewRand(1))
	want := strings.Split(lineageA, ";")
	for rank := range Ranks {
		if assignment.Taxa[rank] != want[rank] {
			t.Errorf("Classify rank %v failed: got %v, want %v", Ranks[rank], assignment.Taxa[rank], want[rank])
		}
		if assignment.Bootstrap[rank] < 80 {
			t.Errorf("Classify bootstrap at rank %v failed: %v", Ranks[rank], assignment.Bootstrap[rank])
		}
	}

	assignment = classifier.Classify("query", []byte(seqB), 80, internal.NewRand(1))
	if assignment.Taxa[5] != "Bacteroides" {
		t.Error("Classify second genus failed")
	}
}

func TestClassifyShortSequence(t *testing.T) {
	classifier, err := NewClassifier(writeTestReference(t))
	if err != nil {
		t.Fatal(err)
	}
	assignment := classifier.Classify("query", []byte("ACGT"), 80, internal.NewRand(1))
	for rank := range Ranks {
		if assignment.Taxa[rank] != "" {
			t.Error("Classify assigned a rank to a sequence without words")
		}
	}
}

func TestClassifyAllReproducible(t *testing.T) {
	classifier, err := NewClassifier(writeTestReference(t))
	if err != nil {
		t.Fatal(err)
	}
	records := []fasta.Record{
		{Name: "v1", Seq: []byte(seqA)},
		{Name: "v2", Seq: []byte(seqB)},
	}
	first := classifier.ClassifyAll(records, 80, 42)
	second := classifier.ClassifyAll(records, 80, 42)
	if len(first) != 2 || len(second) != 2 {
		t.Fatal("ClassifyAll result count failed")
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Error("ClassifyAll identifier failed")
		}
		for rank := range Ranks {
			if first[i].Taxa[rank] != second[i].Taxa[rank] ||
				first[i].Bootstrap[rank] != second[i].Bootstrap[rank] {
				t.Error("ClassifyAll reproducibility failed")
			}
		}
	}
}

func TestAssignmentsRoundTrip(t *testing.T) {
	assignments := []Assignment{
		{
			ID:        "variant1",
			Taxa:      strings.Split(lineageA, ";"),
			Bootstrap: []int{100, 100, 98, 95, 90, 85},
		},
		{
			ID:        "variant2",
			Taxa:      []string{"Bacteria", "Bacteroidota", "", "", "", ""},
			Bootstrap: []int{100, 82, 0, 0, 0, 0},
		},
	}
	filename := filepath.Join(t.TempDir(), "taxonomy.tsv")
	WriteAssignments(filename, assignments)
	loaded := ReadAssignments(filename)
	if len(loaded) != 2 {
		t.Fatal("assignments round trip count failed")
	}
	for i, want := range assignments {
		if loaded[i].ID != want.ID {
			t.Error("assignments round trip identifier failed")
		}
		for rank := range Ranks {
			if loaded[i].Taxa[rank] != want.Taxa[rank] ||
				loaded[i].Bootstrap[rank] != want.Bootstrap[rank] {
				t.Errorf("assignments round trip rank %v failed", Ranks[rank])
			}
		}
	}
}
