// cbbq: a high-performance tool for reference-free base quality score
// recalibration of sequencing reads.
// Copyright (c) 2021-2023 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/exascience/cbbq/blob/master/LICENSE.txt>.

package cmd

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/exascience/cbbq/bloom"
	"github.com/exascience/cbbq/kmer"
	"github.com/exascience/cbbq/recal"
	"github.com/exascience/cbbq/seqio"
	"github.com/exascience/cbbq/utils"
)

// Lighter-compatible false positive rate targets. They control the
// filter sizing and hence which k-mers collide, so they are fixed.
const (
	samplerDesiredFPR = 0.01
	trustedDesiredFPR = 0.0005

	// maxSamplerFPR aborts the run when the realized sampler FPR
	// indicates the genome length was badly underestimated.
	maxSamplerFPR = 0.15
)

// RecalHelp is the help string for the recal command.
const RecalHelp = "\nrecal parameters:\n" +
	"cbbq recal input.[bam|sam|fq]\n" +
	"[-k number]\n" +
	"[--use-oq]\n" +
	"[--set-oq]\n" +
	"[--genomelen number]\n" +
	"[--coverage number]\n" +
	"[--alpha number]\n" +
	"[--fixed file]\n" +
	"[--seed number]\n" +
	"[--threads number]\n" +
	"[--output file]\n" +
	"[--log-path path]\n"

type recalOptions struct {
	k         int
	useOQ     bool
	setOQ     bool
	genomeLen uint64
	coverage  uint64
	alpha     float64
	fixed     string
	seed      uint64
	threads   int
	output    string
	logPath   string
}

// Recal implements the cbbq recal command: reference-free base
// quality score recalibration of a BAM, SAM, or FASTQ file.
func Recal() error {
	var opts recalOptions
	var flags flag.FlagSet
	flags.IntVar(&opts.k, "k", 32, "k-mer size")
	flags.IntVar(&opts.k, "ksize", 32, "k-mer size")
	flags.BoolVar(&opts.useOQ, "u", false, "use original qualities from the OQ tag")
	flags.BoolVar(&opts.useOQ, "use-oq", false, "use original qualities from the OQ tag")
	flags.BoolVar(&opts.setOQ, "s", false, "store reported qualities into the OQ tag")
	flags.BoolVar(&opts.setOQ, "set-oq", false, "store reported qualities into the OQ tag")
	flags.Uint64Var(&opts.genomeLen, "g", 0, "genome length")
	flags.Uint64Var(&opts.genomeLen, "genomelen", 0, "genome length")
	flags.Uint64Var(&opts.coverage, "c", 0, "sequencing coverage")
	flags.Uint64Var(&opts.coverage, "coverage", 0, "sequencing coverage")
	flags.Float64Var(&opts.alpha, "a", 0, "k-mer sampling rate")
	flags.Float64Var(&opts.alpha, "alpha", 0, "k-mer sampling rate")
	flags.StringVar(&opts.fixed, "f", "", "corrected file; skip the k-mer phase")
	flags.StringVar(&opts.fixed, "fixed", "", "corrected file; skip the k-mer phase")
	flags.Uint64Var(&opts.seed, "seed", 0, "subsampling seed (0 picks one at random)")
	flags.IntVar(&opts.threads, "t", 0, "reader thread-pool size")
	flags.IntVar(&opts.threads, "threads", 0, "reader thread-pool size")
	flags.StringVar(&opts.output, "output", "-", "output file")
	flags.StringVar(&opts.logPath, "log-path", "", "log file path")

	parseFlags(flags, 3, RecalHelp)
	filename := getFilename(os.Args[2], RecalHelp)

	runID := uuid.New()
	setLogOutput(opts.logPath, runID)

	if opts.k < 1 || opts.k > kmer.MaxK {
		return fmt.Errorf("k must be > 0 and <= %v", kmer.MaxK)
	}
	if opts.threads < 0 {
		return fmt.Errorf("threads must be >= 0")
	}
	if opts.alpha < 0 || opts.alpha > 1 {
		return fmt.Errorf("alpha must be in (0, 1]")
	}
	if !checkExist("", filename) {
		return fmt.Errorf("input file %v not found", filename)
	}
	format := seqio.DetectFormat(filename)
	if format == seqio.UnknownFormat {
		return fmt.Errorf("file format of %v must be bam, sam, or fastq", filename)
	}
	if opts.fixed != "" {
		return recalFixed(filename, &opts)
	}

	readGroups := utils.NewReadGroups()
	ioOptions := seqio.Options{
		UseOQ:      opts.useOQ,
		SetOQ:      opts.setOQ,
		Threads:    opts.threads,
		ReadGroups: readGroups,
	}
	open := func() (seqio.HTSFile, error) {
		return seqio.Open(filename, ioOptions)
	}

	if opts.genomeLen == 0 {
		if format == seqio.FASTQ {
			return fmt.Errorf("--genomelen must be specified if input is fastq")
		}
		if err := timedRun("Estimating genome length.", func() error {
			file, err := open()
			if err != nil {
				return err
			}
			defer file.Close()
			opts.genomeLen = file.(*seqio.AlnFile).GenomeLength()
			if opts.genomeLen == 0 {
				return fmt.Errorf("header of %v does not contain genome information; "+
					"please provide the genome length using the --genomelen option", filename)
			}
			log.Printf("Genome length is %v bp.\n", opts.genomeLen)
			return nil
		}); err != nil {
			return err
		}
	}

	if opts.alpha == 0 {
		if opts.coverage == 0 {
			if err := timedRun("Estimating coverage.", func() error {
				file, err := open()
				if err != nil {
					return err
				}
				defer file.Close()
				var seqLen uint64
				for {
					seq, ok := file.NextSeq()
					if !ok {
						break
					}
					seqLen += uint64(len(seq))
				}
				if err := file.Err(); err != nil {
					return err
				}
				if seqLen == 0 {
					return fmt.Errorf("total sequence length in file %v is 0; "+
						"check that the file isn't empty", filename)
				}
				log.Println("Total sequence length:", seqLen)
				log.Println("Genome length:", opts.genomeLen)
				opts.coverage = seqLen / opts.genomeLen
				log.Println("Estimated coverage:", opts.coverage)
				if opts.coverage == 0 {
					return fmt.Errorf("estimated coverage is 0")
				}
				return nil
			}); err != nil {
				return err
			}
		}
		// Sampling rate recommended by the Lighter authors.
		opts.alpha = 7.0 / float64(opts.coverage)
		if opts.alpha > 1 {
			opts.alpha = 1
		}
	}
	if opts.coverage == 0 {
		opts.coverage = uint64(7.0 / opts.alpha)
	}

	// In the worst case every k-mer is unique, so there are about
	// genomelen * coverage of them, of which we sample a fraction
	// alpha.
	approxKmers := uint64(float64(opts.genomeLen) * float64(opts.coverage) * opts.alpha)
	if approxKmers == 0 {
		approxKmers = 1
	}
	sampled, err := bloom.NewArray(approxKmers, samplerDesiredFPR)
	if err != nil {
		return err
	}
	trusted, err := bloom.NewArray(approxKmers, trustedDesiredFPR)
	if err != nil {
		return err
	}

	if opts.seed == 0 {
		id := uuid.New()
		opts.seed = binary.BigEndian.Uint64(id[:8])
	}
	log.Println("Seed:", opts.seed)

	if err := timedRun(fmt.Sprintf("Sampling kmers at rate %v.", opts.alpha), func() error {
		file, err := open()
		if err != nil {
			return err
		}
		defer file.Close()
		subsampler, err := recal.NewSubsampler(sampled, opts.k, opts.alpha, opts.seed)
		if err != nil {
			return err
		}
		return subsampler.SubsampleKmers(file)
	}); err != nil {
		return err
	}
	log.Printf("Sampled %v valid kmers.\n", sampled.NInserts())

	fpr := sampled.FPRate()
	log.Println("Approximate false positive rate:", fpr)
	if fpr > maxSamplerFPR {
		return fmt.Errorf("false positive rate %v is too high; "+
			"increase the genomelen parameter and try again", fpr)
	}
	p := sampled.Phit(opts.alpha)
	thresholds := recal.Thresholds(opts.k, p)
	log.Println("Thresholds:", thresholds)

	if err := timedRun("Finding trusted kmers.", func() error {
		file, err := open()
		if err != nil {
			return err
		}
		defer file.Close()
		return recal.FindTrustedKmers(file, trusted, sampled, thresholds, opts.k)
	}); err != nil {
		return err
	}

	var data *recal.CovariateData
	var corrupted map[string]bool
	if err := timedRun("Finding errors.", func() error {
		file, err := open()
		if err != nil {
			return err
		}
		defer file.Close()
		data, corrupted, err = recal.GetCovariateData(file, trusted, opts.k)
		return err
	}); err != nil {
		return err
	}
	if len(corrupted) > 0 {
		log.Printf("%v reads could not be labelled and keep their reported qualities.\n", len(corrupted))
	}

	log.Println("Training model.")
	dqs := data.DeltaQualities()

	return timedRun("Recalibrating file.", func() error {
		file, err := open()
		if err != nil {
			return err
		}
		defer file.Close()
		return recal.RecalibrateAndWrite(file, dqs, corrupted, opts.output)
	})
}

// recalFixed derives the error labels from a corrected version of the
// input instead of the k-mer phase.
func recalFixed(filename string, opts *recalOptions) error {
	if !checkExist("--fixed", opts.fixed) {
		return fmt.Errorf("corrected file %v not found", opts.fixed)
	}
	readGroups := utils.NewReadGroups()
	ioOptions := seqio.Options{
		UseOQ:      opts.useOQ,
		SetOQ:      opts.setOQ,
		Threads:    opts.threads,
		ReadGroups: readGroups,
	}
	var data *recal.CovariateData
	if err := timedRun("Using fixed file to find errors.", func() error {
		file, err := seqio.Open(filename, ioOptions)
		if err != nil {
			return err
		}
		defer file.Close()
		fixed, err := seqio.Open(opts.fixed, ioOptions)
		if err != nil {
			return err
		}
		defer fixed.Close()
		data, err = recal.GetFixedCovariateData(file, fixed)
		return err
	}); err != nil {
		return err
	}

	log.Println("Training model.")
	dqs := data.DeltaQualities()

	return timedRun("Recalibrating file.", func() error {
		file, err := seqio.Open(filename, ioOptions)
		if err != nil {
			return err
		}
		defer file.Close()
		return recal.RecalibrateAndWrite(file, dqs, nil, opts.output)
	})
}
