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

package fastq

import (
	"bufio"
	"bytes"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/villapollab/fmt-ad-w-abx/internal"

	"github.com/klauspost/pgzip"
)

// A Read is a single FASTQ record. Seq and Qual always have the
// same length; Qual holds phred+33 encoded base qualities.
type Read struct {
	Name []byte
	Seq  []byte
	Qual []byte
}

// A Pair holds the two mates of a paired-end read.
type Pair struct {
	R1, R2 *Read
}

// Len returns the read length.
func (r *Read) Len() int {
	return len(r.Seq)
}

// ExpectedErrors returns the sum of the per-base error
// probabilities implied by the phred+33 quality string.
func (r *Read) ExpectedErrors() float64 {
	var ee float64
	for _, q := range r.Qual {
		ee += phredError(q)
	}
	return ee
}

var phredTable [256]float64

func init() {
	for q := range phredTable {
		phredTable[q] = 1.0
	}
	for q := 33; q < 256; q++ {
		phredTable[q] = math.Pow(10, -float64(q-33)/10)
	}
}

func phredError(qual byte) float64 {
	return phredTable[qual]
}

// FASTQ file extensions.
const (
	FqExt   = ".fastq"
	FqGzExt = ".fastq.gz"
)

// An InputFile represents a FASTQ file for input, with transparent
// parallel gzip decompression for .gz files.
type InputFile struct {
	name    string
	rc      io.Closer
	gz      *pgzip.Reader
	scanner *bufio.Scanner
	nRecord int
}

// Open opens a FASTQ file for input.
//
// If the filename ends in .gz, the contents are decompressed on the fly.
// If the name is "/dev/stdin", then the input is read from os.Stdin.
func Open(name string) *InputFile {
	var file *os.File
	if name == "/dev/stdin" {
		file = os.Stdin
	} else {
		file = internal.FileOpen(name)
	}
	f := &InputFile{name: name, rc: file}
	if filepath.Ext(name) == ".gz" {
		gz, err := pgzip.NewReader(bufio.NewReader(file))
		if err != nil {
			_ = file.Close()
			log.Panicf("%v, while opening fastq file %v", err, name)
		}
		f.gz = gz
		f.scanner = bufio.NewScanner(gz)
	} else {
		f.scanner = bufio.NewScanner(file)
	}
	f.scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return f
}

// Close closes the FASTQ input file.
func (f *InputFile) Close() {
	if f.gz != nil {
		internal.Close(f.gz)
	}
	internal.Close(f.rc)
}

// NofRecords returns the number of records parsed so far.
func (f *InputFile) NofRecords() int {
	return f.nRecord
}

func (f *InputFile) scanLine() ([]byte, bool) {
	if !f.scanner.Scan() {
		if err := f.scanner.Err(); err != nil {
			log.Panic(err)
		}
		return nil, false
	}
	line := f.scanner.Bytes()
	line = bytes.TrimSuffix(line, []byte("\r"))
	return line, true
}

// checkEOF panics when the end of the file is reached before any
// record was parsed.
func (f *InputFile) checkEOF() *Read {
	if f.nRecord == 0 {
		log.Panicf("empty fastq file %v", f.name)
	}
	return nil
}

// Parse parses the next FASTQ record. It returns nil at the
// end of the file, and panics on malformed records. A file without
// any records is an error.
func (f *InputFile) Parse() *Read {
	name, ok := f.scanLine()
	if !ok {
		return f.checkEOF()
	}
	for len(name) == 0 {
		if name, ok = f.scanLine(); !ok {
			return f.checkEOF()
		}
	}
	if name[0] != '@' {
		log.Panicf("invalid fastq record %v - missing @ in name line %q", f.nRecord+1, name)
	}
	seq, ok := f.scanLine()
	if !ok {
		log.Panicf("invalid fastq record %v - truncated record %q", f.nRecord+1, name)
	}
	plus, ok := f.scanLine()
	if !ok || len(plus) == 0 || plus[0] != '+' {
		log.Panicf("invalid fastq record %v - missing + line in record %q", f.nRecord+1, name)
	}
	qual, ok := f.scanLine()
	if !ok {
		log.Panicf("invalid fastq record %v - missing quality line in record %q", f.nRecord+1, name)
	}
	if len(seq) != len(qual) {
		log.Panicf("invalid fastq record %q - sequence length %v does not match quality length %v", name, len(seq), len(qual))
	}
	f.nRecord++
	return &Read{
		Name: append([]byte(nil), name[1:]...),
		Seq:  append([]byte(nil), seq...),
		Qual: append([]byte(nil), qual...),
	}
}

// An OutputFile represents a FASTQ file for output, with parallel
// gzip compression for .gz files.
type OutputFile struct {
	wc  io.Closer
	gz  *pgzip.Writer
	buf *bufio.Writer
}

// Create creates a FASTQ file for output.
//
// If the filename ends in .gz, the contents are compressed on the fly.
// If the name is "/dev/stdout", then the output is written to os.Stdout.
func Create(name string) *OutputFile {
	var file *os.File
	if name == "/dev/stdout" {
		file = os.Stdout
	} else {
		file = internal.FileCreate(name)
	}
	f := &OutputFile{wc: file}
	if filepath.Ext(name) == ".gz" {
		f.gz = pgzip.NewWriter(file)
		f.buf = bufio.NewWriter(f.gz)
	} else {
		f.buf = bufio.NewWriter(file)
	}
	return f
}

// Append formats a FASTQ record to the output file.
func (f *OutputFile) Append(r *Read) {
	buf := f.buf
	if err := buf.WriteByte('@'); err != nil {
		log.Panic(err)
	}
	internal.Write(buf, r.Name)
	internal.WriteString(buf, "\n")
	internal.Write(buf, r.Seq)
	internal.WriteString(buf, "\n+\n")
	internal.Write(buf, r.Qual)
	internal.WriteString(buf, "\n")
}

// Close flushes and closes the FASTQ output file.
func (f *OutputFile) Close() {
	internal.Flush(f.buf)
	if f.gz != nil {
		internal.Close(f.gz)
	}
	internal.Close(f.wc)
}

// BaseName strips the FASTQ file extensions and common mate suffixes
// from a filename to derive a sample name.
func BaseName(name string) string {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, ".gz")
	base = strings.TrimSuffix(base, ".fastq")
	base = strings.TrimSuffix(base, ".fq")
	for _, suffix := range []string{"_R1", "_R2", "_1", "_2", "_R1_001", "_R2_001"} {
		if trimmed := strings.TrimSuffix(base, suffix); trimmed != base {
			return trimmed
		}
	}
	return base
}
