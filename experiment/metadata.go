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
	"bufio"
	"fmt"
	"log"
	"strings"

	"github.com/villapollab/fmt-ad-w-abx/internal"
)

// Metadata holds the per-sample study variables (genotype, treatment,
// timepoint, sex, injury, ...). The first column of the metadata file
// is the sample identifier.
type Metadata struct {
	Columns []string                     `json:"columns"`
	Values  map[string]map[string]string `json:"values"`
}

// ReadMetadata parses a tabular sample metadata file. The first
// header column names the sample identifier; the remaining columns
// are study variables.
func ReadMetadata(filename string) *Metadata {
	f := internal.FileOpen(filename)
	defer internal.Close(f)
	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		log.Panicf("empty metadata file %v", filename)
	}
	header := strings.Split(strings.TrimSuffix(scanner.Text(), "\r"), "\t")
	if len(header) < 2 {
		log.Panicf("metadata file %v has no variable columns", filename)
	}
	metadata := &Metadata{
		Columns: header[1:],
		Values:  make(map[string]map[string]string),
	}
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != len(header) {
			log.Panicf("badly formatted metadata file %v - %v fields for %v columns in line %q", filename, len(fields), len(header), line)
		}
		sample := fields[0]
		if _, ok := metadata.Values[sample]; ok {
			log.Panicf("duplicate sample %v in metadata file %v", sample, filename)
		}
		values := make(map[string]string, len(header)-1)
		for i, column := range metadata.Columns {
			values[column] = fields[i+1]
		}
		metadata.Values[sample] = values
	}
	if err := scanner.Err(); err != nil {
		log.Panic(err)
	}
	return metadata
}

// HasSample reports whether the metadata covers the given sample.
func (m *Metadata) HasSample(sample string) bool {
	_, ok := m.Values[sample]
	return ok
}

// Value returns the value of a metadata column for a sample.
func (m *Metadata) Value(sample, column string) (string, error) {
	values, ok := m.Values[sample]
	if !ok {
		return "", fmt.Errorf("sample %v is missing from the metadata", sample)
	}
	value, ok := values[column]
	if !ok {
		return "", fmt.Errorf("metadata has no column %v", column)
	}
	return value, nil
}

// Grouping returns the value of a metadata column for every given
// sample, in sample order.
func (m *Metadata) Grouping(samples []string, column string) ([]string, error) {
	groups := make([]string, len(samples))
	for i, sample := range samples {
		value, err := m.Value(sample, column)
		if err != nil {
			return nil, err
		}
		groups[i] = value
	}
	return groups, nil
}

// SubsetSamples returns a copy of the metadata restricted to the
// given samples.
func (m *Metadata) SubsetSamples(samples []string) *Metadata {
	sub := &Metadata{
		Columns: append([]string(nil), m.Columns...),
		Values:  make(map[string]map[string]string, len(samples)),
	}
	for _, sample := range samples {
		if values, ok := m.Values[sample]; ok {
			copied := make(map[string]string, len(values))
			for k, v := range values {
				copied[k] = v
			}
			sub.Values[sample] = copied
		}
	}
	return sub
}
