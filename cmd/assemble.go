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

	"github.com/villapollab/fmt-ad-w-abx/asv"
	"github.com/villapollab/fmt-ad-w-abx/experiment"
	"github.com/villapollab/fmt-ad-w-abx/taxonomy"
	"github.com/villapollab/fmt-ad-w-abx/tree"
)

// AssembleHelp is the help string for this command.
const AssembleHelp = "\nassemble parameters:\n" +
	"amplicon assemble table-file taxonomy-file metadata-file experiment-output\n" +
	"[--tree newick-file]\n" +
	"[--timed]\n" +
	"[--profile file]\n" +
	"[--log-path path]\n"

// Assemble implements the amplicon assemble command. It combines the
// abundance table, the taxonomy table, the optional tree, and the
// sample metadata into the frozen experiment object, validating that
// their identifier sets coincide.
func Assemble() error {
	var (
		treeFile         string
		timed            bool
		profile, logPath string
	)

	var flags flag.FlagSet

	flags.StringVar(&treeFile, "tree", "", "phylogenetic tree in newick format")
	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&profile, "profile", "", "write a runtime profile to the specified file(s)")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	parseFlags(flags, 6, AssembleHelp)

	tableFile := getFilename(os.Args[2], AssembleHelp)
	taxonomyFile := getFilename(os.Args[3], AssembleHelp)
	metadataFile := getFilename(os.Args[4], AssembleHelp)
	output := getFilename(os.Args[5], AssembleHelp)

	setLogOutput(logPath)

	// sanity checks

	var sanityChecksFailed bool

	if !checkExist("", tableFile) {
		sanityChecksFailed = true
	}
	if !checkExist("", taxonomyFile) {
		sanityChecksFailed = true
	}
	if !checkExist("", metadataFile) {
		sanityChecksFailed = true
	}
	if !checkCreate("", output) {
		sanityChecksFailed = true
	}
	if treeFile != "" && !checkExist("--tree", treeFile) {
		sanityChecksFailed = true
	}
	if profile != "" && !checkCreate("--profile", profile) {
		sanityChecksFailed = true
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, AssembleHelp)
		os.Exit(1)
	}

	// building output command line

	var command bytes.Buffer
	fmt.Fprint(&command, os.Args[0], " assemble ", tableFile, " ", taxonomyFile, " ", metadataFile, " ", output)
	if treeFile != "" {
		fmt.Fprint(&command, " --tree ", treeFile)
	}
	if timed {
		fmt.Fprint(&command, " --timed")
	}
	if logPath != "" {
		fmt.Fprint(&command, " --log-path ", logPath)
	}

	// executing command

	log.Println("Executing command:\n", command.String())

	timedRun(timed, profile, "Assembling the experiment object.", 1, func() {
		table := asv.ReadTable(tableFile)
		assignments := taxonomy.ReadAssignments(taxonomyFile)
		metadata := experiment.ReadMetadata(metadataFile)
		var phylo *tree.Tree
		if treeFile != "" {
			var err error
			phylo, err = tree.ReadNewick(treeFile)
			if err != nil {
				log.Panic(err)
			}
		}
		e, err := experiment.Assemble(table, assignments, phylo, metadata)
		if err != nil {
			log.Panic(err)
		}
		experiment.Write(output, e)
		log.Printf("Assembled an experiment of %v variants over %v samples.", table.NofVariants(), table.NofSamples())
	})
	return nil
}
