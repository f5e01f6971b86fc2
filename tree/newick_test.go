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

package tree

import (
	"math"
	"path/filepath"
	"sort"
	"testing"
)

const testNewick = "((A:0.1,B:0.2):0.05,(C:0.3,D:0.4):0.15);"

func TestParse(t *testing.T) {
	phylo, err := Parse(testNewick)
	if err != nil {
		t.Fatal(err)
	}
	tips := phylo.Tips()
	sort.Strings(tips)
	if len(tips) != 4 || tips[0] != "A" || tips[3] != "D" {
		t.Errorf("Parse tips failed: %v", tips)
	}
	if len(phylo.Root.Children) != 2 {
		t.Error("Parse root structure failed")
	}
	left := phylo.Root.Children[0]
	if math.Abs(left.Length-0.05) > 1e-12 || left.Children[0].Name != "A" {
		t.Error("Parse branch length failed")
	}
}

func TestParseErrors(t *testing.T) {
	for _, newick := range []string{
		"",
		"(A:0.1,B:0.2)",   // missing semicolon
		"((A:0.1,B:0.2);", // unbalanced
	} {
		if _, err := Parse(newick); err == nil {
			t.Errorf("Parse accepted %q", newick)
		}
	}
}

func TestNewickRoundTrip(t *testing.T) {
	phylo, err := Parse(testNewick)
	if err != nil {
		t.Fatal(err)
	}
	again, err := Parse(phylo.Newick())
	if err != nil {
		t.Fatal(err)
	}
	tips := again.Tips()
	sort.Strings(tips)
	if len(tips) != 4 || tips[0] != "A" {
		t.Error("Newick round trip failed")
	}
}

func TestReadWriteNewick(t *testing.T) {
	phylo, err := Parse(testNewick)
	if err != nil {
		t.Fatal(err)
	}
	filename := filepath.Join(t.TempDir(), "tree.nwk")
	if err := WriteNewick(filename, phylo); err != nil {
		t.Fatal(err)
	}
	loaded, err := ReadNewick(filename)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Tips()) != 4 {
		t.Error("newick file round trip failed")
	}
}

func TestPrune(t *testing.T) {
	phylo, err := Parse(testNewick)
	if err != nil {
		t.Fatal(err)
	}
	pruned := phylo.Prune(map[string]bool{"A": true, "C": true})
	tips := pruned.Tips()
	sort.Strings(tips)
	if len(tips) != 2 || tips[0] != "A" || tips[1] != "C" {
		t.Fatalf("Prune tips failed: %v", tips)
	}
	// single-child inner nodes collapse, adding branch lengths
	var aLength float64
	pruned.Root.Walk(func(n *Node) {
		if n.Name == "A" {
			aLength = n.Length
		}
	})
	if math.Abs(aLength-0.15) > 1e-12 {
		t.Errorf("Prune length merge failed: got %v", aLength)
	}
	// the receiver keeps all tips
	if len(phylo.Tips()) != 4 {
		t.Error("Prune modified the receiver")
	}
}

func TestValidate(t *testing.T) {
	phylo, err := Parse(testNewick)
	if err != nil {
		t.Fatal(err)
	}
	if err := phylo.Validate([]string{"A", "B", "C", "D"}); err != nil {
		t.Error("Validate rejected matching tips: ", err)
	}
	if phylo.Validate([]string{"A", "B", "C"}) == nil {
		t.Error("Validate accepted an extra tip")
	}
	if phylo.Validate([]string{"A", "B", "C", "D", "E"}) == nil {
		t.Error("Validate accepted a missing tip")
	}
}
