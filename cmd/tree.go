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

	"github.com/villapollab/fmt-ad-w-abx/asv"
	"github.com/villapollab/fmt-ad-w-abx/fasta"
	"github.com/villapollab/fmt-ad-w-abx/tree"
)

// TreeHelp is the help string for this command.
const TreeHelp = "\ntree parameters:\n" +
	"amplicon tree table-file tree-output\n" +
	"[--aligner binary]\n" +
	"[--builder binary]\n" +
	"[--threads n]\n" +
	"[--sbatch]\n" +
	"[--partition name]\n" +
	"[--memory size]\n" +
	"[--time limit]\n" +
	"[--cpus n]\n" +
	"[--timed]\n" +
	"[--profile file]\n" +
	"[--log-path path]\n"

// Tree implements the amplicon tree command. It exports the
// representative sequences of the table and runs the external
// alignment and tree inference tools on them, either directly or
// through the batch scheduler.
func Tree() error {
	var (
		options          tree.JobOptions
		timed            bool
		profile, logPath string
	)

	var flags flag.FlagSet

	flags.StringVar(&options.Aligner, "aligner", tree.DefaultJobOptions.Aligner, "multiple sequence alignment binary")
	flags.StringVar(&options.Builder, "builder", tree.DefaultJobOptions.Builder, "tree inference binary")
	flags.IntVar(&options.Threads, "threads", 0, "number of threads for the external tools")
	flags.BoolVar(&options.Sbatch, "sbatch", false, "submit the run as a batch scheduler job")
	flags.StringVar(&options.Partition, "partition", tree.DefaultJobOptions.Partition, "batch scheduler partition")
	flags.StringVar(&options.Memory, "memory", tree.DefaultJobOptions.Memory, "batch scheduler memory limit")
	flags.StringVar(&options.Time, "time", tree.DefaultJobOptions.Time, "batch scheduler time limit")
	flags.IntVar(&options.Cpus, "cpus", tree.DefaultJobOptions.Cpus, "batch scheduler cpus per task")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&profile, "profile", "", "write a runtime profile to the specified file(s)")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	parseFlags(flags, 4, TreeHelp)

	input := getFilename(os.Args[2], TreeHelp)
	output := getFilename(os.Args[3], TreeHelp)

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
	if options.Threads < 0 {
		sanityChecksFailed = true
		log.Println("Error: Invalid threads: ", options.Threads)
	}
	if options.Cpus < 1 {
		sanityChecksFailed = true
		log.Println("Error: Invalid cpus: ", options.Cpus)
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, TreeHelp)
		os.Exit(1)
	}

	// building output command line

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " tree ", input, " ", output)
	fmt.Fprint(&command, " --aligner ", options.Aligner)
	fmt.Fprint(&command, " --builder ", options.Builder)
	if options.Threads > 0 {
		fmt.Fprint(&command, " --threads ", options.Threads)
	}
	if options.Sbatch {
		fmt.Fprint(&command, " --sbatch")
		fmt.Fprint(&command, " --partition ", options.Partition)
		fmt.Fprint(&command, " --memory ", options.Memory)
		fmt.Fprint(&command, " --time ", options.Time)
		fmt.Fprint(&command, " --cpus ", options.Cpus)
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

	output, err := filepath.Abs(output)
	if err != nil {
		return err
	}
	repSeqsFile := output + ".rep-seqs.fasta"
	fasta.WriteFasta(repSeqsFile, table.RepSeqs())

	if options.Sbatch {
		return tree.SubmitTreeJob(repSeqsFile, output, options)
	}

	timedRun(timed, profile, "Aligning representative sequences and inferring the tree.", 1, func() {
		if err := tree.BuildTree(repSeqsFile, output, options); err != nil {
			log.Panic(err)
		}
		phylo, err := tree.ReadNewick(output)
		if err != nil {
			log.Panic(err)
		}
		if err := phylo.Validate(table.IDs); err != nil {
			log.Panic(err)
		}
	})
	return nil
}
