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

	"github.com/villapollab/fmt-ad-w-abx/abundance"
	"github.com/villapollab/fmt-ad-w-abx/experiment"
)

// DiffabundHelp is the help string for this command.
const DiffabundHelp = "\ndiffabund parameters:\n" +
	"amplicon diffabund experiment-file results-output\n" +
	"--group metadata-column\n" +
	"--group1 value\n" +
	"--group2 value\n" +
	"[--rank taxonomic-rank]\n" +
	"[--min-prevalence f]\n" +
	"[--permutations n]\n" +
	"[--seed n]\n" +
	"[--nr-of-threads n]\n" +
	"[--timed]\n" +
	"[--profile file]\n" +
	"[--log-path path]\n"

// Diffabund implements the amplicon diffabund command.
func Diffabund() error {
	var (
		group            string
		group1, group2   string
		rank             string
		minPrevalence    float64
		permutations     int
		seed             int64
		nrOfThreads      int
		timed            bool
		profile, logPath string
	)

	var flags flag.FlagSet

	flags.StringVar(&group, "group", "", "metadata column that defines the groups")
	flags.StringVar(&group1, "group1", "", "reference group value")
	flags.StringVar(&group2, "group2", "", "comparison group value")
	flags.StringVar(&rank, "rank", "", "agglomerate variants to this taxonomic rank before testing")
	flags.Float64Var(&minPrevalence, "min-prevalence", abundance.DefaultOptions.MinPrevalence, "minimum fraction of samples a feature must be present in")
	flags.IntVar(&permutations, "permutations", abundance.DefaultOptions.Permutations, "number of label permutations; 0 uses the parametric p-value")
	flags.Int64Var(&seed, "seed", 1, "random seed for the permutations")
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of worker threads")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&profile, "profile", "", "write a runtime profile to the specified file(s)")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	parseFlags(flags, 4, DiffabundHelp)

	input := getFilename(os.Args[2], DiffabundHelp)
	output := getFilename(os.Args[3], DiffabundHelp)

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
	if group == "" || group1 == "" || group2 == "" {
		sanityChecksFailed = true
		log.Println("Error: --group, --group1, and --group2 are required.")
	}
	if minPrevalence < 0 || minPrevalence > 1 {
		sanityChecksFailed = true
		log.Println("Error: Invalid min-prevalence: ", minPrevalence)
	}
	if permutations < 0 {
		sanityChecksFailed = true
		log.Println("Error: Invalid permutations: ", permutations)
	}
	if nrOfThreads < 0 {
		sanityChecksFailed = true
		log.Println("Error: Invalid nr-of-threads: ", nrOfThreads)
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, DiffabundHelp)
		os.Exit(1)
	}

	// building output command line

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " diffabund ", input, " ", output)
	fmt.Fprint(&command, " --group ", group)
	fmt.Fprint(&command, " --group1 ", group1)
	fmt.Fprint(&command, " --group2 ", group2)
	if rank != "" {
		fmt.Fprint(&command, " --rank ", rank)
	}
	fmt.Fprint(&command, " --min-prevalence ", minPrevalence)
	fmt.Fprint(&command, " --permutations ", permutations)
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

	e := experiment.Read(input)

	grouping, err := e.Metadata.Grouping(e.Table.Samples, group)
	if err != nil {
		return err
	}

	var matrix *abundance.Matrix
	if rank != "" {
		matrix, err = abundance.Agglomerate(e.Table, e.Taxonomy, rank)
		if err != nil {
			return err
		}
		log.Printf("Agglomerated %v variants into %v taxa at rank %v.", e.Table.NofVariants(), len(matrix.Features), rank)
	} else {
		matrix = abundance.FromTable(e.Table)
	}

	options := abundance.Options{
		MinPrevalence: minPrevalence,
		Permutations:  permutations,
		Seed:          seed,
	}

	timedRun(timed, profile, "Testing differential abundance.", 1, func() {
		results, err := abundance.Test(matrix, grouping, group1, group2, options)
		if err != nil {
			log.Panic(err)
		}
		abundance.WriteResultsTSV(output, results)
		significant := 0
		for _, r := range results {
			if r.Q < 0.05 {
				significant++
			}
		}
		log.Printf("Tested %v features; %v significant at q < 0.05.", len(results), significant)
	})
	return nil
}
