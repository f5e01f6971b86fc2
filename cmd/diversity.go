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
	"runtime"
	"strings"

	"github.com/villapollab/fmt-ad-w-abx/diversity"
	"github.com/villapollab/fmt-ad-w-abx/experiment"
)

// DiversityHelp is the help string for this command.
const DiversityHelp = "\ndiversity parameters:\n" +
	"amplicon diversity experiment-file output-dir\n" +
	"[--metrics list]\n" +
	"[--axes n]\n" +
	"[--group metadata-column]\n" +
	"[--permutations n]\n" +
	"[--seed n]\n" +
	"[--nr-of-threads n]\n" +
	"[--timed]\n" +
	"[--profile file]\n" +
	"[--log-path path]\n"

// Diversity implements the amplicon diversity command. It computes
// alpha diversity for every sample, the requested beta diversity
// distance matrices with their ordinations, and, when a grouping
// column is given, a PERMANOVA per distance matrix.
func Diversity() error {
	var (
		metrics          string
		axes             int
		group            string
		permutations     int
		seed             int64
		nrOfThreads      int
		timed            bool
		profile, logPath string
	)

	var flags flag.FlagSet

	flags.StringVar(&metrics, "metrics", "braycurtis,jaccard,unifrac,wunifrac", "comma-separated beta diversity metrics")
	flags.IntVar(&axes, "axes", 0, "number of principal coordinate axes to report; 0 reports all")
	flags.StringVar(&group, "group", "", "metadata column for the PERMANOVA")
	flags.IntVar(&permutations, "permutations", 999, "number of PERMANOVA permutations")
	flags.Int64Var(&seed, "seed", 1, "random seed for the permutations")
	flags.IntVar(&nrOfThreads, "nr-of-threads", 0, "number of worker threads")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&profile, "profile", "", "write a runtime profile to the specified file(s)")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	parseFlags(flags, 4, DiversityHelp)

	input := getFilename(os.Args[2], DiversityHelp)
	outputDir := getFilename(os.Args[3], DiversityHelp)

	setLogOutput(logPath)

	// sanity checks

	var sanityChecksFailed bool

	if !checkExist("", input) {
		sanityChecksFailed = true
	}
	if profile != "" && !checkCreate("--profile", profile) {
		sanityChecksFailed = true
	}
	if permutations < 1 {
		sanityChecksFailed = true
		log.Println("Error: Invalid permutations: ", permutations)
	}
	if nrOfThreads < 0 {
		sanityChecksFailed = true
		log.Println("Error: Invalid nr-of-threads: ", nrOfThreads)
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, DiversityHelp)
		os.Exit(1)
	}

	// building output command line

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " diversity ", input, " ", outputDir)
	fmt.Fprint(&command, " --metrics ", metrics)
	if axes > 0 {
		fmt.Fprint(&command, " --axes ", axes)
	}
	if group != "" {
		fmt.Fprint(&command, " --group ", group)
		fmt.Fprint(&command, " --permutations ", permutations)
		fmt.Fprint(&command, " --seed ", seed)
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

	outputDir, err := filepath.Abs(outputDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0700); err != nil {
		return err
	}

	e := experiment.Read(input)

	var grouping []string
	if group != "" {
		grouping, err = e.Metadata.Grouping(e.Table.Samples, group)
		if err != nil {
			return err
		}
	}

	timedRun(timed, profile, "Computing alpha diversity.", 1, func() {
		results := diversity.Alpha(e.Table, e.Tree)
		diversity.WriteAlphaTSV(filepath.Join(outputDir, "alpha.tsv"), results)
	})

	for _, metric := range strings.Split(metrics, ",") {
		metric = strings.TrimSpace(metric)
		if metric == "" {
			continue
		}
		d, err := diversity.Metric(metric, e.Table, e.Tree)
		if err != nil {
			return err
		}
		timedRun(timed, profile, fmt.Sprint("Computing ", metric, " beta diversity."), 2, func() {
			d.WriteTSV(filepath.Join(outputDir, "beta-"+metric+".tsv"))
			ordination, err := diversity.PCoA(d, axes)
			if err != nil {
				log.Panic(err)
			}
			ordination.WriteTSV(filepath.Join(outputDir, "pcoa-"+metric+".tsv"))
			if group != "" {
				result, err := diversity.Permanova(group, d, grouping, permutations, seed)
				if err != nil {
					log.Panic(err)
				}
				log.Printf("PERMANOVA %v on %v: F = %.4f, R2 = %.4f, p = %.4f (%v permutations).",
					result.Factor, metric, result.F, result.R2, result.P, result.Permutations)
			}
		})
	}
	return nil
}
