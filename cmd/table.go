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
	"path/filepath"
	"strings"

	"github.com/villapollab/fmt-ad-w-abx/asv"
	"github.com/villapollab/fmt-ad-w-abx/fasta"
	"github.com/villapollab/fmt-ad-w-abx/internal"
)

// TableHelp is the help string for this command.
const TableHelp = "\ntable parameters:\n" +
	"amplicon table /path/to/uniques table-output\n" +
	"[--no-chimera-check]\n" +
	"[--min-fold n]\n" +
	"[--min-sample-fraction f]\n" +
	"[--tsv file]\n" +
	"[--rep-seqs fasta-file]\n" +
	"[--timed]\n" +
	"[--profile file]\n" +
	"[--log-path path]\n"

// Table implements the amplicon table command. It combines per-sample
// uniques files, as written by the denoise command, into a single
// abundance table, removing consensus chimeras by default.
func Table() error {
	var (
		noChimeraCheck    bool
		minFold           float64
		minSampleFraction float64
		tsvFile           string
		repSeqsFile       string
		timed             bool
		profile, logPath  string
	)

	var flags flag.FlagSet

	flags.BoolVar(&noChimeraCheck, "no-chimera-check", false, "skip consensus chimera removal")
	flags.Float64Var(&minFold, "min-fold", asv.DefaultChimeraOptions.MinFoldParentOverAbundance, "minimum fold abundance of parents over a chimera candidate")
	flags.Float64Var(&minSampleFraction, "min-sample-fraction", asv.DefaultChimeraOptions.MinSampleFraction, "fraction of samples that must flag a variant as chimeric")
	flags.StringVar(&tsvFile, "tsv", "", "also export the table to the given TSV file")
	flags.StringVar(&repSeqsFile, "rep-seqs", "", "also export the representative sequences to the given fasta file")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&profile, "profile", "", "write a runtime profile to the specified file(s)")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	parseFlags(flags, 4, TableHelp)

	input := getFilename(os.Args[2], TableHelp)
	output := getFilename(os.Args[3], TableHelp)

	setLogOutput(logPath)

	// sanity checks

	var sanityChecksFailed bool

	if !checkExist("", input) {
		sanityChecksFailed = true
	}
	if !checkCreate("", output) {
		sanityChecksFailed = true
	}
	if tsvFile != "" && !checkCreate("--tsv", tsvFile) {
		sanityChecksFailed = true
	}
	if repSeqsFile != "" && !checkCreate("--rep-seqs", repSeqsFile) {
		sanityChecksFailed = true
	}
	if profile != "" && !checkCreate("--profile", profile) {
		sanityChecksFailed = true
	}

	fullInputPath, err := filepath.Abs(input)
	if err != nil {
		return err
	}
	uniquesFiles, err := internal.Directory(fullInputPath)
	if err != nil {
		log.Printf("Given directory %v causes error %v.\n", input, err)
		sanityChecksFailed = true
	} else if len(uniquesFiles) == 0 {
		log.Printf("Given directory %v contains no uniques files. These should have been created by amplicon denoise invocations.\n", input)
		sanityChecksFailed = true
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, TableHelp)
		os.Exit(1)
	}

	// building output command line

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " table ", input, " ", output)
	if noChimeraCheck {
		fmt.Fprint(&command, " --no-chimera-check")
	} else {
		fmt.Fprint(&command, " --min-fold ", minFold)
		fmt.Fprint(&command, " --min-sample-fraction ", minSampleFraction)
	}
	if tsvFile != "" {
		fmt.Fprint(&command, " --tsv ", tsvFile)
	}
	if repSeqsFile != "" {
		fmt.Fprint(&command, " --rep-seqs ", repSeqsFile)
	}
	if timed {
		fmt.Fprint(&command, " --timed")
	}
	if logPath != "" {
		fmt.Fprint(&command, " --log-path ", logPath)
	}

	// executing command

	log.Println("Executing command:\n", command.String())

	timedRun(timed, profile, "Building the abundance table.", 1, func() {
		var samples []string
		counts := make(map[string][]asv.Unique)
		for _, file := range uniquesFiles {
			sample := strings.TrimSuffix(file, filepath.Ext(file))
			samples = append(samples, sample)
			counts[sample] = asv.ReadUniques(filepath.Join(fullInputPath, file))
		}
		table := asv.Build(samples, counts)
		log.Printf("Built a table of %v variants over %v samples.", table.NofVariants(), table.NofSamples())

		if !noChimeraCheck {
			options := asv.ChimeraOptions{
				MinFoldParentOverAbundance: minFold,
				MinSampleFraction:          minSampleFraction,
			}
			var removed []string
			table, removed = asv.FlagBimeras(table, options)
			log.Printf("Removed %v chimeric variants; %v variants remain.", len(removed), table.NofVariants())
		}

		asv.WriteTable(output, table)
		if tsvFile != "" {
			table.WriteTSV(tsvFile)
		}
		if repSeqsFile != "" {
			fasta.WriteFasta(repSeqsFile, table.RepSeqs())
		}
	})
	return nil
}
