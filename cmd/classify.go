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
	"github.com/villapollab/fmt-ad-w-abx/taxonomy"
)

// ClassifyHelp is the help string for this command.
const ClassifyHelp = "\nclassify parameters:\n" +
	"amplicon classify table-file reference-fasta taxonomy-output\n" +
	"[--min-boot n]\n" +
	"[--seed n]\n" +
	"[--nr-of-threads n]\n" +
	"[--timed]\n" +
	"[--profile file]\n" +
	"[--log-path path]\n"

// Classify implements the amplicon classify command.
func Classify() error {
	var (
		minBoot          int
		seed             int64
		nrOfThreads      int
		timed            bool
		profile, logPath string
	)

	var flags flag.FlagSet

	flags.IntVar(&minBoot, "min-boot", 80, "minimum bootstrap support to report a rank")
	flags.Int64Var(&seed, "seed", 1, "random seed for the bootstrap")
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of worker threads")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&profile, "profile", "", "write a runtime profile to the specified file(s)")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	parseFlags(flags, 5, ClassifyHelp)

	input := getFilename(os.Args[2], ClassifyHelp)
	reference := getFilename(os.Args[3], ClassifyHelp)
	output := getFilename(os.Args[4], ClassifyHelp)

	setLogOutput(logPath)

	// sanity checks

	var sanityChecksFailed bool

	if !checkExist("", input) {
		sanityChecksFailed = true
	}
	if !checkExist("", reference) {
		sanityChecksFailed = true
	}
	if !checkCreate("", output) {
		sanityChecksFailed = true
	}
	if profile != "" && !checkCreate("--profile", profile) {
		sanityChecksFailed = true
	}
	if minBoot < 0 || minBoot > 100 {
		sanityChecksFailed = true
		log.Println("Error: Invalid min-boot: ", minBoot)
	}
	if nrOfThreads < 0 {
		sanityChecksFailed = true
		log.Println("Error: Invalid nr-of-threads: ", nrOfThreads)
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, ClassifyHelp)
		os.Exit(1)
	}

	// building output command line

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " classify ", input, " ", reference, " ", output)
	fmt.Fprint(&command, " --min-boot ", minBoot)
	fmt.Fprint(&command, " --seed ", seed)
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

	table := asv.ReadTable(input)

	var classifier *taxonomy.Classifier
	timedRun(timed, profile, "Training the classifier on the reference.", 1, func() {
		var err error
		classifier, err = taxonomy.NewClassifier(reference)
		if err != nil {
			log.Panic(err)
		}
	})

	timedRun(timed, profile, "Classifying representative sequences.", 2, func() {
		assignments := classifier.ClassifyAll(table.RepSeqs(), minBoot, seed)
		taxonomy.WriteAssignments(output, assignments)
	})
	return nil
}
