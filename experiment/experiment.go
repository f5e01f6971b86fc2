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

// Package experiment assembles the frozen combined object of the
// study: the abundance table, the taxonomy assignments, the
// phylogenetic tree, and the per-sample metadata. Downstream analyses
// only load and subset this object; they never mutate it in place.
package experiment

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"

	"github.com/villapollab/fmt-ad-w-abx/asv"
	"github.com/villapollab/fmt-ad-w-abx/internal"
	"github.com/villapollab/fmt-ad-w-abx/taxonomy"
	"github.com/villapollab/fmt-ad-w-abx/tree"

	"github.com/klauspost/pgzip"
)

// An Experiment is the frozen combined object.
type Experiment struct {
	Table    *asv.Table            `json:"table"`
	Taxonomy []taxonomy.Assignment `json:"taxonomy"`
	Tree     *tree.Tree            `json:"tree,omitempty"`
	Metadata *Metadata             `json:"metadata"`
}

// Assemble validates the cross-artifact invariants and freezes the
// combined object: the identifier sets of the abundance table, the
// taxonomy table, and the tree tips must coincide, and the metadata
// must cover every sample.
func Assemble(table *asv.Table, assignments []taxonomy.Assignment, phylo *tree.Tree, metadata *Metadata) (*Experiment, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	assigned := make(map[string]bool, len(assignments))
	for _, a := range assignments {
		assigned[a.ID] = true
	}
	for _, id := range table.IDs {
		if !assigned[id] {
			return nil, fmt.Errorf("variant %v has no taxonomy assignment", id)
		}
	}
	if len(assignments) != len(table.IDs) {
		return nil, fmt.Errorf("taxonomy table has %v assignments for %v variants", len(assignments), len(table.IDs))
	}
	if phylo != nil {
		if err := phylo.Validate(table.IDs); err != nil {
			return nil, err
		}
	}
	for _, sample := range table.Samples {
		if !metadata.HasSample(sample) {
			return nil, fmt.Errorf("sample %v is missing from the metadata", sample)
		}
	}
	return &Experiment{
		Table:    table,
		Taxonomy: assignments,
		Tree:     phylo,
		Metadata: metadata,
	}, nil
}

// Subset returns a fresh experiment restricted to the samples whose
// metadata column matches one of the given values. Variants absent
// from every remaining sample are pruned from the table, the taxonomy
// and the tree alike. The receiver is not modified.
func (e *Experiment) Subset(column string, values ...string) (*Experiment, error) {
	wanted := make(map[string]bool, len(values))
	for _, v := range values {
		wanted[v] = true
	}
	var keepSamples []int
	for i, sample := range e.Table.Samples {
		value, err := e.Metadata.Value(sample, column)
		if err != nil {
			return nil, err
		}
		if wanted[value] {
			keepSamples = append(keepSamples, i)
		}
	}
	if len(keepSamples) == 0 {
		return nil, fmt.Errorf("no samples match %v in (%v)", column, values)
	}
	table := e.Table.SubsetSamples(keepSamples)

	var keepVariants []int
	for j := range table.IDs {
		for i := range table.Samples {
			if table.Counts[i][j] > 0 {
				keepVariants = append(keepVariants, j)
				break
			}
		}
	}
	table = table.Subset(keepVariants)

	keptIDs := make(map[string]bool, len(table.IDs))
	for _, id := range table.IDs {
		keptIDs[id] = true
	}
	var assignments []taxonomy.Assignment
	for _, a := range e.Taxonomy {
		if keptIDs[a.ID] {
			assignments = append(assignments, a)
		}
	}
	var phylo *tree.Tree
	if e.Tree != nil {
		phylo = e.Tree.Prune(keptIDs)
	}
	return Assemble(table, assignments, phylo, e.Metadata.SubsetSamples(table.Samples))
}

// AssignmentFor returns the taxonomy assignment of a variant.
func (e *Experiment) AssignmentFor(id string) (taxonomy.Assignment, bool) {
	for _, a := range e.Taxonomy {
		if a.ID == id {
			return a, true
		}
	}
	return taxonomy.Assignment{}, false
}

// Write persists the experiment as a gzipped JSON artifact.
func Write(filename string, e *Experiment) {
	f := internal.FileCreate(filename)
	defer internal.Close(f)
	gz := pgzip.NewWriter(f)
	defer internal.Close(gz)
	w := bufio.NewWriter(gz)
	defer internal.Flush(w)
	if err := json.NewEncoder(w).Encode(e); err != nil {
		log.Panic(err)
	}
}

// Read loads an experiment persisted by Write and revalidates its
// invariants.
func Read(filename string) *Experiment {
	f := internal.FileOpen(filename)
	defer internal.Close(f)
	gz, err := pgzip.NewReader(bufio.NewReader(f))
	if err != nil {
		log.Panicf("%v, while opening experiment %v", err, filename)
	}
	defer internal.Close(gz)
	e := new(Experiment)
	if err := json.NewDecoder(gz).Decode(e); err != nil {
		log.Panicf("%v, while parsing experiment %v", err, filename)
	}
	if _, err := Assemble(e.Table, e.Taxonomy, e.Tree, e.Metadata); err != nil {
		log.Panicf("%v, in experiment %v", err, filename)
	}
	return e
}
