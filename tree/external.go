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

package tree

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/villapollab/fmt-ad-w-abx/internal"

	"github.com/google/uuid"
)

// JobOptions describe how the external alignment and tree inference
// tools are invoked. Resource limits are scheduler parameters, not
// enforced here.
type JobOptions struct {
	Aligner string // alignment binary, default mafft
	Builder string // tree inference binary, default FastTree
	Threads int

	// batch scheduler submission
	Sbatch    bool
	Partition string
	Memory    string
	Time      string
	Cpus      int
}

// DefaultJobOptions are the tools and resources used by the study.
var DefaultJobOptions = JobOptions{
	Aligner:   "mafft",
	Builder:   "FastTree",
	Partition: "defq",
	Memory:    "64G",
	Time:      "24:00:00",
	Cpus:      16,
}

// workDir creates a uniquely named scratch directory for one tree
// inference run.
func workDir() string {
	dir := fmt.Sprintf("amplicon-tree-%v", uuid.New().String())
	dir, err := filepath.Abs(dir)
	if err != nil {
		log.Panic(err)
	}
	internal.MkdirAll(dir, 0700)
	return dir
}

// alignerArgs builds the aligner invocation. mafft rejects a thread
// count of zero, so the flag is only passed when set.
func alignerArgs(threads int, input string) []string {
	args := []string{"--auto", input}
	if threads > 0 {
		args = append([]string{"--thread", strconv.Itoa(threads)}, args...)
	}
	return args
}

// BuildTree aligns the representative sequences and infers a
// phylogenetic tree by invoking the external tools, writing the
// resulting Newick file to treeFile.
func BuildTree(repSeqsFile, treeFile string, options JobOptions) error {
	dir := workDir()
	defer internal.RemoveAll(dir)

	aligned := filepath.Join(dir, "aligned.fasta")
	alignedOut := internal.FileCreate(aligned)
	alignCmd := exec.Command(options.Aligner, alignerArgs(options.Threads, repSeqsFile)...)
	alignCmd.Stdout = alignedOut
	alignCmd.Stderr = os.Stderr
	log.Println("Executing command:\n", alignCmd.String())
	if err := alignCmd.Run(); err != nil {
		_ = alignedOut.Close()
		return fmt.Errorf("%v, while aligning %v", err, repSeqsFile)
	}
	internal.Close(alignedOut)

	treeOut := internal.FileCreate(treeFile)
	buildCmd := exec.Command(options.Builder, "-nt", "-gtr", aligned)
	buildCmd.Stdout = treeOut
	buildCmd.Stderr = os.Stderr
	log.Println("Executing command:\n", buildCmd.String())
	if err := buildCmd.Run(); err != nil {
		_ = treeOut.Close()
		return fmt.Errorf("%v, while inferring tree from %v", err, aligned)
	}
	internal.Close(treeOut)
	return nil
}

// SubmitTreeJob writes a batch job script that aligns the
// representative sequences and infers the tree on the cluster, and
// submits it with sbatch. The command returns after submission; the
// tree file appears when the job completes.
func SubmitTreeJob(repSeqsFile, treeFile string, options JobOptions) error {
	dir := workDir()
	script := filepath.Join(dir, "tree-job.sh")

	f := internal.FileCreate(script)
	fmt.Fprintln(f, "#!/bin/bash")
	fmt.Fprintf(f, "#SBATCH --job-name=amplicon-tree\n")
	fmt.Fprintf(f, "#SBATCH --partition=%v\n", options.Partition)
	fmt.Fprintf(f, "#SBATCH --cpus-per-task=%v\n", options.Cpus)
	fmt.Fprintf(f, "#SBATCH --mem=%v\n", options.Memory)
	fmt.Fprintf(f, "#SBATCH --time=%v\n", options.Time)
	fmt.Fprintf(f, "#SBATCH --output=%v\n", filepath.Join(dir, "tree-job.log"))
	fmt.Fprintln(f)
	fmt.Fprintf(f, "%v --thread %v --auto %v > %v\n",
		options.Aligner, options.Cpus, repSeqsFile, filepath.Join(dir, "aligned.fasta"))
	fmt.Fprintf(f, "%v -nt -gtr %v > %v\n",
		options.Builder, filepath.Join(dir, "aligned.fasta"), treeFile)
	internal.Close(f)

	submitCmd := exec.Command("sbatch", script)
	submitCmd.Stdout = os.Stdout
	submitCmd.Stderr = os.Stderr
	log.Println("Executing command:\n", submitCmd.String())
	if err := submitCmd.Run(); err != nil {
		return fmt.Errorf("%v, while submitting tree job %v", err, script)
	}
	log.Println("Tree job submitted; work directory:", dir)
	return nil
}
