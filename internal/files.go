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

package internal

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
)

// FileOpen is os.Open with panics in place of errors
func FileOpen(name string) *os.File {
	file, err := os.Open(name)
	if err != nil {
		log.Panic(err)
	}
	return file
}

// FileCreate is os.Create with panics in place of errors
func FileCreate(name string) *os.File {
	file, err := os.Create(name)
	if err != nil {
		log.Panic(err)
	}
	return file
}

// Close is closer.Close with panics in place of errors
func Close(closer io.Closer) {
	if err := closer.Close(); err != nil {
		log.Panic(err)
	}
}

// MkdirAll is os.MkdirAll with panics in place of errors
func MkdirAll(path string, perm os.FileMode) {
	if err := os.MkdirAll(path, perm); err != nil {
		log.Panic(err)
	}
}

// RemoveAll is os.RemoveAll with panics in place of errors
func RemoveAll(path string) {
	if err := os.RemoveAll(path); err != nil {
		log.Panic(err)
	}
}

// Write is writer.Write with panics in place of errors,
// returning the number of bytes written
func Write(writer io.Writer, p []byte) int {
	n, err := writer.Write(p)
	if err != nil {
		log.Panic(err)
	}
	return n
}

// WriteString is io.WriteString with panics in place of errors,
// returning the number of bytes written
func WriteString(writer io.Writer, s string) int {
	n, err := io.WriteString(writer, s)
	if err != nil {
		log.Panic(err)
	}
	return n
}

// Flush flushes a writer with a Flush method, with panics in place of errors
func Flush(flusher interface{ Flush() error }) {
	if err := flusher.Flush(); err != nil {
		log.Panic(err)
	}
}

// Directory returns the files in a directory in sorted order, or the
// base name of the given file if it is not a directory.
func Directory(file string) (files []string, err error) {
	info, err := os.Stat(file)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{filepath.Base(file)}, nil
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer func() {
		nerr := f.Close()
		if err == nil {
			err = nerr
		}
	}()
	files, err = f.Readdirnames(0)
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, err
}
