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

// amplicon processes paired-end 16S rRNA amplicon sequencing reads
// into an annotated variant abundance table, and computes the
// diversity and differential abundance statistics of a study.
//
// Please see https://github.com/villapollab/fmt-ad-w-abx for a
// documentation of the tool.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/villapollab/fmt-ad-w-abx/cmd"
)

func printHelp() {
	fmt.Fprintln(os.Stderr, "Available commands: run, filter, merge, denoise, table, classify, tree, assemble, diversity, diffabund")
	fmt.Fprint(os.Stderr, "\n", cmd.RunHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.FilterHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.MergeHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.DenoiseHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.TableHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.ClassifyHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.TreeHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.AssembleHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.DiversityHelp)
	fmt.Fprint(os.Stderr, "\n", cmd.DiffabundHelp)
}

func main() {
	fmt.Fprintln(os.Stderr, cmd.ProgramMessage)
	if len(os.Args) < 2 {
		log.Println("Incorrect number of parameters.")
		fmt.Fprint(os.Stderr, cmd.HelpMessage)
		printHelp()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = cmd.Run()
	case "filter":
		err = cmd.Filter()
	case "merge":
		err = cmd.Merge()
	case "denoise":
		err = cmd.Denoise()
	case "table":
		err = cmd.Table()
	case "classify":
		err = cmd.Classify()
	case "tree":
		err = cmd.Tree()
	case "assemble":
		err = cmd.Assemble()
	case "diversity":
		err = cmd.Diversity()
	case "diffabund":
		err = cmd.Diffabund()
	case "help", "-help", "--help", "-h", "--h":
		printHelp()
	default:
		log.Println("Unknown command: ", os.Args[1])
		printHelp()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal(err)
	}
}
