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

// DenoiseHelp is the help string for this command.
const DenoiseHelp = "\ndenoise parameters:\n" +
	"amplicon denoise merged-fastq uniques-output\n" +
	"[--alpha a]\n" +
	"[--min-size n]\n" +
	"[--max-diffs n]\n" +
	"[--nr-of-threads n]\n" +
	"[--timed]\n" +
	"[--profile file]\n" +
	"[--log-path path]\n"

// Denoise implements the amplicon denoise command.
func Denoise() error {
	var (
		alpha             float64
		minSize, maxDiffs int
		nrOfThreads       int
		timed             bool
		profile, logPath  string
	)

	var flags flag.FlagSet

	flags.Float64Var(&alpha, "alpha", asv.DefaultDenoiseOptions.Alpha, "abundance skew steepness")
	flags.IntVar(&minSize, "min-size", asv.DefaultDenoiseOptions.MinSize, "minimum abundance for a sequence to seed a variant")
	flags.IntVar(&maxDiffs, "max-diffs", asv.DefaultDenoiseOptions.MaxDiffs, "maximum edit distance for joining a variant")
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of worker threads")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&profile, "profile", "", "write a runtime profile to the specified file(s)")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	parseFlags(flags, 4, DenoiseHelp)

	input := getFilename(os.Args[2], DenoiseHelp)
	output := getFilename(os.Args[3], DenoiseHelp)

	setLogOutput(logPath)

	// sanity checks

	var sanityChecksFailed bool

	if !checkExist("", input) {
		sanityChecksFailed = true
	}
	if !checkCreate("", output) {
		sanityChecksFailed = true
	}
	if profile != "" && !checkCreate("--profile", profile) {
		sanityChecksFailed = true
	}
	if alpha <= 0 {
		sanityChecksFailed = true
		log.Println("Error: Invalid alpha: ", alpha)
	}
	if minSize < 1 {
		sanityChecksFailed = true
		log.Println("Error: Invalid min-size: ", minSize)
	}
	if maxDiffs < 1 {
		sanityChecksFailed = true
		log.Println("Error: Invalid max-diffs: ", maxDiffs)
	}
	if nrOfThreads < 0 {
		sanityChecksFailed = true
		log.Println("Error: Invalid nr-of-threads: ", nrOfThreads)
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, DenoiseHelp)
		os.Exit(1)
	}

	// building output command line

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " denoise ", input, " ", output)
	fmt.Fprint(&command, " --alpha ", alpha)
	fmt.Fprint(&command, " --min-size ", minSize)
	fmt.Fprint(&command, " --max-diffs ", maxDiffs)
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

	options := asv.DenoiseOptions{Alpha: alpha, MinSize: minSize, MaxDiffs: maxDiffs}

	timedRun(timed, profile, "Denoising merged reads.", 1, func() {
		uniques, nofReads := asv.Dereplicate(input)
		log.Printf("Dereplicated %v reads into %v unique sequences.", nofReads, len(uniques))
		variants := asv.Denoise(uniques, options)
		log.Printf("Denoised %v unique sequences into %v variants.", len(uniques), len(variants))
		asv.WriteUniques(output, variants)
	})
	return nil
}
