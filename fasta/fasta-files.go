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

package fasta

import (
	"bufio"
	"io"
	"log"
	"path/filepath"
	"unicode"

	"github.com/villapollab/fmt-ad-w-abx/internal"

	"github.com/klauspost/pgzip"
)

// A Record is a single FASTA entry. Name is the full header line
// without the leading '>'.
type Record struct {
	Name string
	Seq  []byte
}

var iupacUpperTable = map[byte]byte{
	'A': 'A', 'a': 'A',
	'C': 'C', 'c': 'C',
	'G': 'G', 'g': 'G',
	'T': 'T', 't': 'T',
	'U': 'T', 'u': 'T',
	'N': 'N', 'n': 'N',
	'R': 'N', 'r': 'N',
	'Y': 'N', 'y': 'N',
	'M': 'N', 'm': 'N',
	'K': 'N', 'k': 'N',
	'W': 'N', 'w': 'N',
	'S': 'N', 's': 'N',
	'B': 'N', 'b': 'N',
	'D': 'N', 'd': 'N',
	'H': 'N', 'h': 'N',
	'V': 'N', 'v': 'N',
}

// ToUpperAndN normalizes ambiguity codes in FASTA sequences, converts
// all codes to upper case, and maps RNA uracil to thymine.
func ToUpperAndN(base byte) byte {
	if n, ok := iupacUpperTable[base]; ok {
		return n
	}
	return base
}

func contigFromHeader(b []byte) string {
	i := 1
	for ; i < len(b); i++ {
		if c := b[i]; c >= '!' && c <= '~' {
			break
		}
	}
	j := i + 1
	for ; j < len(b); j++ {
		if c := b[j]; c < '!' || c > '~' {
			break
		}
	}
	return string(b[i:j])
}

func openReader(filename string) (io.Closer, *bufio.Scanner, *pgzip.Reader) {
	f := internal.FileOpen(filename)
	var scanner *bufio.Scanner
	var gz *pgzip.Reader
	if filepath.Ext(filename) == ".gz" {
		var err error
		gz, err = pgzip.NewReader(bufio.NewReader(f))
		if err != nil {
			_ = f.Close()
			log.Panicf("%v, while opening fasta file %v", err, filename)
		}
		scanner = bufio.NewScanner(gz)
	} else {
		scanner = bufio.NewScanner(f)
	}
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return f, scanner, gz
}

func parse(filename string, fullHeader, toUpper bool) (records []Record) {
	f, scanner, gz := openReader(filename)
	defer internal.Close(f)
	if gz != nil {
		defer internal.Close(gz)
	}

	if !scanner.Scan() {
		log.Panicf("empty fasta file %v", filename)
	}
	b := scanner.Bytes()
	for len(b) == 0 {
		if !scanner.Scan() {
			log.Panicf("empty fasta file %v", filename)
		}
		b = scanner.Bytes()
	}
	if b[0] != '>' {
		log.Panicf("invalid fasta file %v - missing first header", filename)
	}

	header := func(b []byte) string {
		if fullHeader {
			return string(b[1:])
		}
		return contigFromHeader(b)
	}

	name := header(b)
	var seq []byte

	for scanner.Scan() {
		b := scanner.Bytes()
		if len(b) == 0 {
			continue
		}
		if b[0] == '>' {
			records = append(records, Record{Name: name, Seq: seq})
			name = header(b)
			seq = nil
		} else {
			if toUpper {
				for i, c := range b {
					if n, ok := iupacUpperTable[c]; ok {
						b[i] = n
					} else {
						b[i] = byte(unicode.ToUpper(rune(c)))
					}
				}
			}
			seq = append(seq, b...)
		}
	}
	records = append(records, Record{Name: name, Seq: seq})

	if err := scanner.Err(); err != nil {
		log.Panic(err)
	}

	return records
}

// ParseFasta sequentially parses a FASTA file into a map from the
// first word of each header to the sequence. Sequences are converted
// to upper case and ambiguity codes are normalized to N.
func ParseFasta(filename string) map[string][]byte {
	records := parse(filename, false, true)
	fasta := make(map[string][]byte, len(records))
	for _, record := range records {
		fasta[record.Name] = record.Seq
	}
	return fasta
}

// ParseRecords sequentially parses a FASTA file, keeping record order
// and full header lines. Sequences are converted to upper case and
// ambiguity codes are normalized to N.
func ParseRecords(filename string) []Record {
	return parse(filename, true, true)
}

// WriteFasta writes records to a FASTA file, one sequence line per
// record. If the filename ends in .gz, the contents are compressed.
func WriteFasta(filename string, records []Record) {
	f := internal.FileCreate(filename)
	defer internal.Close(f)
	var w *bufio.Writer
	if filepath.Ext(filename) == ".gz" {
		gz := pgzip.NewWriter(f)
		defer internal.Close(gz)
		w = bufio.NewWriter(gz)
	} else {
		w = bufio.NewWriter(f)
	}
	defer internal.Flush(w)
	for _, record := range records {
		internal.WriteString(w, ">")
		internal.WriteString(w, record.Name)
		internal.WriteString(w, "\n")
		internal.Write(w, record.Seq)
		internal.WriteString(w, "\n")
	}
}
