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

package cmd

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"
	"runtime"

	"github.com/villapollab/fmt-ad-w-abx/asv"
)

// MergeHelp is the help string for this command.
const MergeHelp = "\nmerge parameters:\n" +
	"amplicon merge fastq-r1 fastq-r2 fastq-output\n" +
	"[--min-overlap n]\n" +
	"[--max-mismatch n]\n" +
	"[--nr-of-threads n]\n" +
	"[--timed]\n" +
	"[--profile file]\n" +
	"[--log-path path]\n"

// Merge implements the amplicon merge command.
func Merge() error {
	var (
		minOverlap, maxMismatch int
		nrOfThreads             int
		timed                   bool
		profile, logPath        string
	)

	var flags flag.FlagSet

	flags.IntVar(&minOverlap, "min-overlap", asv.DefaultMergeOptions.MinOverlap, "minimum overlap between the mates")
	flags.IntVar(&maxMismatch, "max-mismatch", asv.DefaultMergeOptions.MaxMismatch, "maximum number of mismatches in the overlap")
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of worker threads")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&profile, "profile", "", "write a runtime profile to the specified file(s)")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	parseFlags(flags, 5, MergeHelp)

	input1 := getFilename(os.Args[2], MergeHelp)
	input2 := getFilename(os.Args[3], MergeHelp)
	output := getFilename(os.Args[4], MergeHelp)

	setLogOutput(logPath)

	// sanity checks

	var sanityChecksFailed bool

	if !checkExist("", input1) {
		sanityChecksFailed = true
	}
	if !checkExist("", input2) {
		sanityChecksFailed = true
	}
	if !checkCreate("", output) {
		sanityChecksFailed = true
	}
	if profile != "" && !checkCreate("--profile", profile) {
		sanityChecksFailed = true
	}
	if minOverlap < 1 {
		sanityChecksFailed = true
		log.Println("Error: Invalid min-overlap: ", minOverlap)
	}
	if maxMismatch < 0 {
		sanityChecksFailed = true
		log.Println("Error: Invalid max-mismatch: ", maxMismatch)
	}
	if nrOfThreads < 0 {
		sanityChecksFailed = true
		log.Println("Error: Invalid nr-of-threads: ", nrOfThreads)
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, MergeHelp)
		os.Exit(1)
	}

	// building output command line

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " merge ", input1, " ", input2, " ", output)
	fmt.Fprint(&command, " --min-overlap ", minOverlap)
	fmt.Fprint(&command, " --max-mismatch ", maxMismatch)
	if nrOfThreads > 0 {
		runtime.GOMAXPROCS(nrOfThreads)
		fmt.Fprint(&command, " --nr-of-threads ", nrOfThreads)
	}
	if timed {
		fmt.Fprint(&command, " --timed")
	}
	if logPath != "" {
		fmt.Fprint(&command, " --log-path ", logPath)
	}

	// executing command

	log.Println("Executing command:\n", command.String())

	options := asv.MergeOptions{MinOverlap: minOverlap, MaxMismatch: maxMismatch}

	var stats asv.MergeStats
	timedRun(timed, profile, "Merging read pairs.", 1, func() {
		var err error
		stats, err = asv.MergeFile(input1, input2, output, options)
		if err != nil {
			log.Panic(err)
		}
	})

	log.Printf("Merged %v of %v read pairs.", stats.Merged, stats.Input)
	return nil
}
