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

package experiment

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/villapollab/fmt-ad-w-abx/asv"
	"github.com/villapollab/fmt-ad-w-abx/taxonomy"
	"github.com/villapollab/fmt-ad-w-abx/tree"
)

const (
	seqX = "AAAACCCCGGGG"
	seqY = "TTTTGGGGCCCC"
)

func testAssignment(seq string) taxonomy.Assignment {
	taxa := make([]string, len(taxonomy.Ranks))
	taxa[0] = "Bacteria"
	return taxonomy.Assignment{
		ID:        asv.HashID(seq),
		Taxa:      taxa,
		Bootstrap: make([]int, len(taxonomy.Ranks)),
	}
}

func testMetadata() *Metadata {
	return &Metadata{
		Columns: []string{"treatment"},
		Values: map[string]map[string]string{
			"s1": {"treatment": "abx"},
			"s2": {"treatment": "abx"},
			"s3": {"treatment": "control"},
			"s4": {"treatment": "control"},
		},
	}
}

// testExperiment builds a 4 sample experiment in which the second
// variant only occurs in the control samples.
func testExperiment(t *testing.T) *Experiment {
	t.Helper()
	table := asv.Build([]string{"s1", "s2", "s3", "s4"}, map[string][]asv.Unique{
		"s1": {{Seq: seqX, Size: 10}},
		"s2": {{Seq: seqX, Size: 20}},
		"s3": {{Seq: seqX, Size: 15}, {Seq: seqY, Size: 5}},
		"s4": {{Seq: seqX, Size: 12}, {Seq: seqY, Size: 8}},
	})
	phylo, err := tree.Parse(fmt.Sprintf("(%v:0.1,%v:0.2);", asv.HashID(seqX), asv.HashID(seqY)))
	if err != nil {
		t.Fatal(err)
	}
	assignments := []taxonomy.Assignment{testAssignment(seqX), testAssignment(seqY)}
	e, err := Assemble(table, assignments, phylo, testMetadata())
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestAssemble(t *testing.T) {
	e := testExperiment(t)
	if e.Table.NofSamples() != 4 || e.Table.NofVariants() != 2 {
		t.Error("Assemble table failed")
	}
	if len(e.Taxonomy) != 2 || e.Tree == nil {
		t.Error("Assemble artifacts failed")
	}
	if _, ok := e.AssignmentFor(asv.HashID(seqX)); !ok {
		t.Error("AssignmentFor failed")
	}
	if _, ok := e.AssignmentFor("bogus"); ok {
		t.Error("AssignmentFor accepted an unknown variant")
	}
}

func TestAssembleErrors(t *testing.T) {
	e := testExperiment(t)

	if _, err := Assemble(e.Table, e.Taxonomy[:1], e.Tree, e.Metadata); err == nil {
		t.Error("Assemble accepted a missing taxonomy assignment")
	}
	extra := append(append([]taxonomy.Assignment(nil), e.Taxonomy...), testAssignment("ACGTACGTACGT"))
	if _, err := Assemble(e.Table, extra, e.Tree, e.Metadata); err == nil {
		t.Error("Assemble accepted a spurious taxonomy assignment")
	}

	phylo, err := tree.Parse(fmt.Sprintf("(%v:0.1,unknown:0.2);", asv.HashID(seqX)))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Assemble(e.Table, e.Taxonomy, phylo, e.Metadata); err == nil {
		t.Error("Assemble accepted a tree with mismatched tips")
	}

	metadata := testMetadata()
	delete(metadata.Values, "s4")
	if _, err := Assemble(e.Table, e.Taxonomy, e.Tree, metadata); err == nil {
		t.Error("Assemble accepted missing sample metadata")
	}
}

func TestSubset(t *testing.T) {
	e := testExperiment(t)
	sub, err := e.Subset("treatment", "abx")
	if err != nil {
		t.Fatal(err)
	}
	if sub.Table.NofSamples() != 2 || sub.Table.Samples[0] != "s1" {
		t.Error("Subset samples failed")
	}
	// the second variant is absent from the kept samples
	if sub.Table.NofVariants() != 1 || sub.Table.IDs[0] != asv.HashID(seqX) {
		t.Error("Subset variant pruning failed")
	}
	if len(sub.Taxonomy) != 1 || sub.Taxonomy[0].ID != asv.HashID(seqX) {
		t.Error("Subset taxonomy pruning failed")
	}
	if len(sub.Tree.Tips()) != 1 {
		t.Error("Subset tree pruning failed")
	}
	// the receiver is unchanged
	if e.Table.NofSamples() != 4 || e.Table.NofVariants() != 2 {
		t.Error("Subset modified the receiver")
	}

	if _, err := e.Subset("treatment", "placebo"); err == nil {
		t.Error("Subset accepted a value matching no sample")
	}
	if _, err := e.Subset("unknown", "abx"); err == nil {
		t.Error("Subset accepted an unknown column")
	}
}

func TestExperimentRoundTrip(t *testing.T) {
	e := testExperiment(t)
	filename := filepath.Join(t.TempDir(), "experiment.json.gz")
	Write(filename, e)
	loaded := Read(filename)
	if loaded.Table.NofSamples() != 4 || loaded.Table.NofVariants() != 2 {
		t.Error("experiment round trip table failed")
	}
	if len(loaded.Taxonomy) != 2 || loaded.Taxonomy[0].Taxa[0] != "Bacteria" {
		t.Error("experiment round trip taxonomy failed")
	}
	if loaded.Tree == nil || len(loaded.Tree.Tips()) != 2 {
		t.Error("experiment round trip tree failed")
	}
	if value, err := loaded.Metadata.Value("s3", "treatment"); err != nil || value != "control" {
		t.Error("experiment round trip metadata failed")
	}
}

func TestReadMetadata(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "metadata.tsv")
	contents := "sample\ttreatment\tsex\n" +
		"s1\tabx\tF\n" +
		"s2\tcontrol\tM\n"
	if err := os.WriteFile(filename, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	metadata := ReadMetadata(filename)
	if len(metadata.Columns) != 2 || metadata.Columns[0] != "treatment" {
		t.Error("ReadMetadata columns failed")
	}
	if !metadata.HasSample("s1") || metadata.HasSample("s3") {
		t.Error("HasSample failed")
	}
	if value, err := metadata.Value("s2", "sex"); err != nil || value != "M" {
		t.Error("Value failed")
	}
	if _, err := metadata.Value("s1", "weight"); err == nil {
		t.Error("Value accepted an unknown column")
	}
	groups, err := metadata.Grouping([]string{"s2", "s1"}, "treatment")
	if err != nil || len(groups) != 2 || groups[0] != "control" || groups[1] != "abx" {
		t.Error("Grouping failed")
	}
	sub := metadata.SubsetSamples([]string{"s1"})
	if !sub.HasSample("s1") || sub.HasSample("s2") {
		t.Error("SubsetSamples failed")
	}
}
