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

	"github.com/villapollab/fmt-ad-w-abx/fastq"
	"github.com/villapollab/fmt-ad-w-abx/filters"
)

// FilterHelp is the help string for this command.
const FilterHelp = "\nfilter parameters:\n" +
	"amplicon filter fastq-r1 fastq-r2 fastq-r1-output fastq-r2-output\n" +
	"[--forward-primer seq]\n" +
	"[--reverse-primer seq]\n" +
	"[--truncate-quality q]\n" +
	"[--truncate-forward n]\n" +
	"[--truncate-reverse n]\n" +
	"[--max-n n]\n" +
	"[--max-ee-forward e]\n" +
	"[--max-ee-reverse e]\n" +
	"[--phix fasta-file]\n" +
	"[--nr-of-threads n]\n" +
	"[--timed]\n" +
	"[--profile file]\n" +
	"[--log-path path]\n"

// Filter implements the amplicon filter command.
func Filter() error {
	var (
		forwardPrimer, reversePrimer string
		truncateQuality              int
		truncateForward              int
		truncateReverse              int
		maxN                         int
		maxEEForward, maxEEReverse   float64
		phixFile                     string
		nrOfThreads                  int
		timed                        bool
		profile, logPath             string
	)

	var flags flag.FlagSet

	flags.StringVar(&forwardPrimer, "forward-primer", "", "forward primer to trim from read 1")
	flags.StringVar(&reversePrimer, "reverse-primer", "", "reverse primer to trim from read 2")
	flags.IntVar(&truncateQuality, "truncate-quality", 2, "truncate reads at the first base with a quality score below this value")
	flags.IntVar(&truncateForward, "truncate-forward", 0, "truncate read 1 to this length, dropping shorter pairs")
	flags.IntVar(&truncateReverse, "truncate-reverse", 0, "truncate read 2 to this length, dropping shorter pairs")
	flags.IntVar(&maxN, "max-n", 0, "maximum number of ambiguous bases per read")
	flags.Float64Var(&maxEEForward, "max-ee-forward", 2, "maximum expected errors in read 1")
	flags.Float64Var(&maxEEReverse, "max-ee-reverse", 2, "maximum expected errors in read 2")
	flags.StringVar(&phixFile, "phix", "", "screen reads against the phiX genome in the given fasta file")
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of worker threads")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&profile, "profile", "", "write a runtime profile to the specified file(s)")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	parseFlags(flags, 6, FilterHelp)

	input1 := getFilename(os.Args[2], FilterHelp)
	input2 := getFilename(os.Args[3], FilterHelp)
	output1 := getFilename(os.Args[4], FilterHelp)
	output2 := getFilename(os.Args[5], FilterHelp)

	setLogOutput(logPath)

	// sanity checks

	var sanityChecksFailed bool

	if !checkExist("", input1) {
		sanityChecksFailed = true
	}
	if !checkExist("", input2) {
		sanityChecksFailed = true
	}
	if !checkCreate("", output1) {
		sanityChecksFailed = true
	}
	if !checkCreate("", output2) {
		sanityChecksFailed = true
	}
	if phixFile != "" && !checkExist("--phix", phixFile) {
		sanityChecksFailed = true
	}
	if profile != "" && !checkCreate("--profile", profile) {
		sanityChecksFailed = true
	}
	if (forwardPrimer == "") != (reversePrimer == "") {
		sanityChecksFailed = true
		log.Println("Error: --forward-primer and --reverse-primer must be given together.")
	}
	if nrOfThreads < 0 {
		sanityChecksFailed = true
		log.Println("Error: Invalid nr-of-threads: ", nrOfThreads)
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, FilterHelp)
		os.Exit(1)
	}

	// building output command line

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " filter ", input1, " ", input2, " ", output1, " ", output2)
	if forwardPrimer != "" {
		fmt.Fprint(&command, " --forward-primer ", forwardPrimer)
		fmt.Fprint(&command, " --reverse-primer ", reversePrimer)
	}
	fmt.Fprint(&command, " --truncate-quality ", truncateQuality)
	if truncateForward > 0 {
		fmt.Fprint(&command, " --truncate-forward ", truncateForward)
	}
	if truncateReverse > 0 {
		fmt.Fprint(&command, " --truncate-reverse ", truncateReverse)
	}
	fmt.Fprint(&command, " --max-n ", maxN)
	fmt.Fprint(&command, " --max-ee-forward ", maxEEForward)
	fmt.Fprint(&command, " --max-ee-reverse ", maxEEReverse)
	if phixFile != "" {
		fmt.Fprint(&command, " --phix ", phixFile)
	}
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

	// fixed filter order: primers, quality truncation, length
	// truncation, ambiguous bases, expected errors, contaminants
	var pairFilters []fastq.Filter
	if forwardPrimer != "" {
		pairFilters = append(pairFilters, filters.TrimPrimers(forwardPrimer, reversePrimer))
	}
	if truncateQuality > 0 {
		pairFilters = append(pairFilters, filters.TruncateQuality(truncateQuality))
	}
	pairFilters = append(pairFilters,
		filters.TruncateLength(truncateForward, truncateReverse),
		filters.MaxN(maxN),
		filters.MaxExpectedErrors(maxEEForward, maxEEReverse),
	)
	if phixFile != "" {
		pairFilters = append(pairFilters, filters.RemovePhix(filters.NewPhixIndex(phixFile)))
	}

	var stats fastq.Stats
	timedRun(timed, profile, "Filtering read pairs.", 1, func() {
		r1 := fastq.Open(input1)
		defer r1.Close()
		r2 := fastq.Open(input2)
		defer r2.Close()
		w1 := fastq.Create(output1)
		defer w1.Close()
		w2 := fastq.Create(output2)
		defer w2.Close()
		source := fastq.NewPairSource(r1, r2)
		output := &fastq.PairOutput{W1: w1, W2: w2}
		if err := source.RunPipeline(output, &stats, pairFilters); err != nil {
			log.Panic(err)
		}
	})

	log.Printf("Kept %v of %v read pairs.", stats.Kept(), stats.Input())
	for _, counter := range stats.Counters() {
		log.Printf("Dropped %v read pairs: %v.", counter.Value(), counter.Name)
	}
	return nil
}
