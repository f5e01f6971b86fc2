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
	"bufio"
	"log"
	"strconv"
	"strings"

	"github.com/villapollab/fmt-ad-w-abx/internal"
)

// WriteAssignments exports classification results as a TSV with one
// row per variant: identifier, one column per rank, and one bootstrap
// column per rank.
func WriteAssignments(filename string, assignments []Assignment) {
	f := internal.FileCreate(filename)
	defer internal.Close(f)
	w := bufio.NewWriter(f)
	defer internal.Flush(w)
	internal.WriteString(w, "variant")
	for _, rank := range Ranks {
		internal.WriteString(w, "\t")
		internal.WriteString(w, rank)
	}
	for _, rank := range Ranks {
		internal.WriteString(w, "\tboot")
		internal.WriteString(w, rank)
	}
	internal.WriteString(w, "\n")
	for _, a := range assignments {
		internal.WriteString(w, a.ID)
		for _, name := range a.Taxa {
			internal.WriteString(w, "\t")
			internal.WriteString(w, name)
		}
		for _, boot := range a.Bootstrap {
			internal.WriteString(w, "\t")
			internal.WriteString(w, strconv.Itoa(boot))
		}
		internal.WriteString(w, "\n")
	}
}

// ReadAssignments loads a TSV written by WriteAssignments. It aborts
// with a descriptive error when a required rank column is missing.
func ReadAssignments(filename string) []Assignment {
	f := internal.FileOpen(filename)
	defer internal.Close(f)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !scanner.Scan() {
		log.Panicf("empty taxonomy table %v", filename)
	}
	header := strings.Split(scanner.Text(), "\t")
	column := make(map[string]int, len(header))
	for i, name := range header {
		column[name] = i
	}
	if _, ok := column["variant"]; !ok {
		log.Panicf("taxonomy table %v is missing the variant column", filename)
	}
	for _, rank := range Ranks {
		if _, ok := column[rank]; !ok {
			log.Panicf("taxonomy table %v is missing the required rank column %v", filename, rank)
		}
	}
	var assignments []Assignment
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < len(header) {
			log.Panicf("badly formatted taxonomy table %v - %v fields in line %q", filename, len(fields), line)
		}
		a := Assignment{
			ID:        fields[column["variant"]],
			Taxa:      make([]string, len(Ranks)),
			Bootstrap: make([]int, len(Ranks)),
		}
		for r, rank := range Ranks {
			a.Taxa[r] = fields[column[rank]]
			if i, ok := column["boot"+rank]; ok {
				a.Bootstrap[r] = int(internal.ParseInt(fields[i], 10, 64))
			}
		}
		assignments = append(assignments, a)
	}
	if err := scanner.Err(); err != nil {
		log.Panic(err)
	}
	return assignments
}
