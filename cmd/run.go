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
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/villapollab/fmt-ad-w-abx/fastq"

	"github.com/fatih/color"
	"github.com/spf13/viper"
)

// RunHelp is the help string for this command.
const RunHelp = "\nrun parameters:\n" +
	"amplicon run config-file\n" +
	"[--timed]\n" +
	"[--log-path path]\n" +
	"\nThe config file is a yaml file with the following keys:\n" +
	"input: directory with paired fastq files (required)\n" +
	"output: directory for all artifacts (required)\n" +
	"reference: taxonomy reference fasta (required)\n" +
	"metadata: sample metadata tsv (required)\n" +
	"forward-primer, reverse-primer: primers to trim\n" +
	"truncate-quality, truncate-forward, truncate-reverse: read truncation\n" +
	"max-n, max-ee-forward, max-ee-reverse: read filtering\n" +
	"phix: phiX genome fasta for contaminant screening\n" +
	"min-overlap, max-mismatch: pair merging\n" +
	"alpha, min-size, max-diffs: denoising\n" +
	"min-fold, min-sample-fraction: chimera removal\n" +
	"min-boot, seed: taxonomy classification\n" +
	"tree: whether to infer a phylogenetic tree (default true)\n" +
	"aligner, builder, threads: external tree tools\n" +
	"nr-of-threads: worker threads per stage\n"

// pairedFiles scans the input directory for paired FASTQ files and
// returns sample names mapped to their mate file paths.
func pairedFiles(dir string) (samples []string, r1, r2 map[string]string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, nil, err
	}
	r1 = make(map[string]string)
	r2 = make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		lower := strings.ToLower(name)
		if !strings.Contains(lower, ".fastq") && !strings.Contains(lower, ".fq") {
			continue
		}
		sample := fastq.BaseName(name)
		full := filepath.Join(dir, name)
		if strings.Contains(name, "_R2") || strings.Contains(name, "_2.") {
			r2[sample] = full
		} else {
			r1[sample] = full
		}
	}
	for sample := range r1 {
		if _, ok := r2[sample]; !ok {
			return nil, nil, nil, fmt.Errorf("sample %v has no reverse reads file in %v", sample, dir)
		}
		samples = append(samples, sample)
	}
	for sample := range r2 {
		if _, ok := r1[sample]; !ok {
			return nil, nil, nil, fmt.Errorf("sample %v has no forward reads file in %v", sample, dir)
		}
	}
	sort.Strings(samples)
	return samples, r1, r2, nil
}

// runStage invokes the amplicon binary itself for one pipeline stage.
// The stage's log output is returned for scraping read counts.
func runStage(args ...string) (string, error) {
	var buf bytes.Buffer
	cmd := exec.Command(os.Args[0], args...)
	cmd.Stderr = io.MultiWriter(os.Stderr, &buf)
	cmd.Stdout = os.Stdout
	err := cmd.Run()
	return buf.String(), err
}

// A retention records how many reads of one sample survive each
// pipeline stage.
type retention struct {
	sample   string
	input    int // read pairs entering the filter stage
	filtered int // pairs passing the quality filters
	merged   int // pairs merged into amplicons
	variants int // sequence variants after denoising
}

var (
	filterCounts  = regexp.MustCompile(`Kept (\d+) of (\d+) read pairs`)
	mergeCounts   = regexp.MustCompile(`Merged (\d+) of (\d+) read pairs`)
	variantCounts = regexp.MustCompile(`into (\d+) variants`)
)

// lastCounts extracts the numbers of the last log line in output that
// matches the pattern, or nil when no line matches.
func lastCounts(pattern *regexp.Regexp, output string) []int {
	matches := pattern.FindAllStringSubmatch(output, -1)
	if len(matches) == 0 {
		return nil
	}
	fields := matches[len(matches)-1][1:]
	counts := make([]int, len(fields))
	for i, field := range fields {
		n, err := strconv.Atoi(field)
		if err != nil {
			log.Panic(err)
		}
		counts[i] = n
	}
	return counts
}

// formatRetention renders the per-sample read retention table.
func formatRetention(retentions []retention) string {
	width := len("sample")
	for _, r := range retentions {
		if len(r.sample) > width {
			width = len(r.sample)
		}
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%-*s %10s %10s %10s %10s\n", width, "sample", "input", "filtered", "merged", "variants")
	for _, r := range retentions {
		fmt.Fprintf(&buf, "%-*s %10d %10d %10d %10d\n", width, r.sample, r.input, r.filtered, r.merged, r.variants)
	}
	return buf.String()
}

// Run implements the amplicon run command. It orchestrates the full
// pipeline over all samples of a sequencing run by re-invoking the
// amplicon binary for the individual stages, in the way described by
// a yaml config file.
func Run() error {
	var (
		timed   bool
		logPath string
	)

	var flags flag.FlagSet

	flags.BoolVar(&timed, "timed", false, "measure the runtime")
	flags.StringVar(&logPath, "log-path", "", "write log files to the specified directory")

	parseFlags(flags, 3, RunHelp)

	configFile := getFilename(os.Args[2], RunHelp)

	setLogOutput(logPath)

	// sanity checks

	if !checkExist("", configFile) {
		fmt.Fprint(os.Stderr, RunHelp)
		os.Exit(1)
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetDefault("truncate-quality", 2)
	v.SetDefault("max-ee-forward", 2.0)
	v.SetDefault("max-ee-reverse", 2.0)
	v.SetDefault("min-overlap", 12)
	v.SetDefault("max-mismatch", 0)
	v.SetDefault("alpha", 2.0)
	v.SetDefault("min-size", 8)
	v.SetDefault("max-diffs", 8)
	v.SetDefault("min-fold", 2.0)
	v.SetDefault("min-sample-fraction", 0.9)
	v.SetDefault("min-boot", 80)
	v.SetDefault("seed", 1)
	v.SetDefault("tree", true)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("%v, while reading config file %v", err, configFile)
	}

	input := v.GetString("input")
	output := v.GetString("output")
	reference := v.GetString("reference")
	metadata := v.GetString("metadata")

	var sanityChecksFailed bool

	if input == "" || !checkExist("input", input) {
		sanityChecksFailed = true
	}
	if output == "" {
		sanityChecksFailed = true
		logCheckFile("output", "Error: Missing directory name")
	}
	if reference == "" || !checkExist("reference", reference) {
		sanityChecksFailed = true
	}
	if metadata == "" || !checkExist("metadata", metadata) {
		sanityChecksFailed = true
	}
	if phix := v.GetString("phix"); phix != "" && !checkExist("phix", phix) {
		sanityChecksFailed = true
	}

	samples, r1, r2, err := pairedFiles(input)
	if err != nil {
		log.Println("Error:", err)
		sanityChecksFailed = true
	} else if len(samples) == 0 {
		log.Printf("Error: No paired fastq files found in %v.\n", input)
		sanityChecksFailed = true
	}

	if sanityChecksFailed {
		fmt.Fprint(os.Stderr, RunHelp)
		os.Exit(1)
	}

	output, err = filepath.Abs(output)
	if err != nil {
		return err
	}
	filteredDir := filepath.Join(output, "filtered")
	mergedDir := filepath.Join(output, "merged")
	uniquesDir := filepath.Join(output, "uniques")
	for _, dir := range []string{filteredDir, mergedDir, uniquesDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}

	var commonArgs []string
	if nrOfThreads := v.GetInt("nr-of-threads"); nrOfThreads > 0 {
		commonArgs = append(commonArgs, "--nr-of-threads", strconv.Itoa(nrOfThreads))
	}
	if timed {
		commonArgs = append(commonArgs, "--timed")
	}
	if logPath != "" {
		commonArgs = append(commonArgs, "--log-path", logPath)
	}

	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)

	// per-sample stages

	retentions := make([]retention, 0, len(samples))

	for _, sample := range samples {
		bold.Fprintln(os.Stderr, "Processing sample", sample)
		r := retention{sample: sample}

		filtered1 := filepath.Join(filteredDir, sample+"_R1.fastq.gz")
		filtered2 := filepath.Join(filteredDir, sample+"_R2.fastq.gz")
		filterArgs := []string{"filter", r1[sample], r2[sample], filtered1, filtered2,
			"--truncate-quality", v.GetString("truncate-quality"),
			"--max-n", v.GetString("max-n"),
			"--max-ee-forward", v.GetString("max-ee-forward"),
			"--max-ee-reverse", v.GetString("max-ee-reverse"),
		}
		if primer := v.GetString("forward-primer"); primer != "" {
			filterArgs = append(filterArgs, "--forward-primer", primer, "--reverse-primer", v.GetString("reverse-primer"))
		}
		if n := v.GetInt("truncate-forward"); n > 0 {
			filterArgs = append(filterArgs, "--truncate-forward", strconv.Itoa(n))
		}
		if n := v.GetInt("truncate-reverse"); n > 0 {
			filterArgs = append(filterArgs, "--truncate-reverse", strconv.Itoa(n))
		}
		if phix := v.GetString("phix"); phix != "" {
			filterArgs = append(filterArgs, "--phix", phix)
		}
		stageLog, err := runStage(append(filterArgs, commonArgs...)...)
		if err != nil {
			return fmt.Errorf("%v, while filtering sample %v", err, sample)
		}
		if counts := lastCounts(filterCounts, stageLog); counts != nil {
			r.filtered, r.input = counts[0], counts[1]
		}

		merged := filepath.Join(mergedDir, sample+".fastq.gz")
		mergeArgs := []string{"merge", filtered1, filtered2, merged,
			"--min-overlap", v.GetString("min-overlap"),
			"--max-mismatch", v.GetString("max-mismatch"),
		}
		if stageLog, err = runStage(append(mergeArgs, commonArgs...)...); err != nil {
			return fmt.Errorf("%v, while merging sample %v", err, sample)
		}
		if counts := lastCounts(mergeCounts, stageLog); counts != nil {
			r.merged = counts[0]
		}

		uniques := filepath.Join(uniquesDir, sample+".tsv")
		denoiseArgs := []string{"denoise", merged, uniques,
			"--alpha", v.GetString("alpha"),
			"--min-size", v.GetString("min-size"),
			"--max-diffs", v.GetString("max-diffs"),
		}
		if stageLog, err = runStage(append(denoiseArgs, commonArgs...)...); err != nil {
			return fmt.Errorf("%v, while denoising sample %v", err, sample)
		}
		if counts := lastCounts(variantCounts, stageLog); counts != nil {
			r.variants = counts[0]
		}

		retentions = append(retentions, r)
	}

	// run-level stages

	bold.Fprintln(os.Stderr, "Building the abundance table")
	tableFile := filepath.Join(output, "table.json.gz")
	tableArgs := []string{"table", uniquesDir, tableFile,
		"--min-fold", v.GetString("min-fold"),
		"--min-sample-fraction", v.GetString("min-sample-fraction"),
		"--tsv", filepath.Join(output, "table.tsv"),
		"--rep-seqs", filepath.Join(output, "rep-seqs.fasta"),
	}
	if _, err := runStage(append(tableArgs, commonArgs...)...); err != nil {
		return fmt.Errorf("%v, while building the abundance table", err)
	}

	bold.Fprintln(os.Stderr, "Classifying representative sequences")
	taxonomyFile := filepath.Join(output, "taxonomy.tsv")
	classifyArgs := []string{"classify", tableFile, reference, taxonomyFile,
		"--min-boot", v.GetString("min-boot"),
		"--seed", v.GetString("seed"),
	}
	if _, err := runStage(append(classifyArgs, commonArgs...)...); err != nil {
		return fmt.Errorf("%v, while classifying", err)
	}

	treeFile := ""
	if v.GetBool("tree") {
		bold.Fprintln(os.Stderr, "Inferring the phylogenetic tree")
		treeFile = filepath.Join(output, "tree.nwk")
		treeArgs := []string{"tree", tableFile, treeFile}
		if aligner := v.GetString("aligner"); aligner != "" {
			treeArgs = append(treeArgs, "--aligner", aligner)
		}
		if builder := v.GetString("builder"); builder != "" {
			treeArgs = append(treeArgs, "--builder", builder)
		}
		if threads := v.GetInt("threads"); threads > 0 {
			treeArgs = append(treeArgs, "--threads", strconv.Itoa(threads))
		}
		if timed {
			treeArgs = append(treeArgs, "--timed")
		}
		if logPath != "" {
			treeArgs = append(treeArgs, "--log-path", logPath)
		}
		if _, err := runStage(treeArgs...); err != nil {
			return fmt.Errorf("%v, while inferring the tree", err)
		}
	}

	bold.Fprintln(os.Stderr, "Assembling the experiment object")
	experimentFile := filepath.Join(output, "experiment.json.gz")
	assembleArgs := []string{"assemble", tableFile, taxonomyFile, metadata, experimentFile}
	if treeFile != "" {
		assembleArgs = append(assembleArgs, "--tree", treeFile)
	}
	if timed {
		assembleArgs = append(assembleArgs, "--timed")
	}
	if logPath != "" {
		assembleArgs = append(assembleArgs, "--log-path", logPath)
	}
	if _, err := runStage(assembleArgs...); err != nil {
		return fmt.Errorf("%v, while assembling the experiment", err)
	}

	bold.Fprintln(os.Stderr, "Read retention per sample:")
	fmt.Fprint(os.Stderr, formatRetention(retentions))

	green.Fprintln(os.Stderr, "Pipeline finished; experiment object at", experimentFile)
	return nil
}
