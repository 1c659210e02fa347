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

// Package seqio iterates over sequencing reads in BAM, SAM, and FASTQ
// files, and writes them back with recalibrated quality strings. The
// recalibration core never parses sequencing files itself; it only
// sees the Read records produced here.
package seqio

import (
	"fmt"
	"strings"

	"github.com/exascience/cbbq/utils"
)

// Options configure how an input file is opened.
type Options struct {
	// UseOQ reads the reported qualities from the OQ tag instead of
	// the QUAL field (BAM/SAM only).
	UseOQ bool

	// SetOQ stores the pre-recalibration qualities into the OQ tag
	// before the QUAL field is overwritten (BAM/SAM only).
	SetOQ bool

	// Threads is the size of the (de)compression worker pool.
	Threads int

	// ReadGroups is the shared interning table for read-group names.
	ReadGroups *utils.ReadGroups
}

// An HTSFile iterates over the reads of one sequencing file and can
// write them, with replaced qualities, to an output of the same
// format. The iteration protocol is scanner-like: Next advances and
// reports whether a record is available; Err explains a false Next.
type HTSFile interface {
	// Next advances to the next read. It returns false at end of
	// file or on error.
	Next() bool

	// Err returns the error that caused Next to return false, or
	// nil at a clean end of file.
	Err() error

	// Read returns the current record. The record is only valid
	// until the next call to Next.
	Read() *Read

	// NextSeq advances and returns the sequence only.
	NextSeq() ([]byte, bool)

	// OpenOut opens an output of the same format as the input.
	// The path "-" means standard output.
	OpenOut(path string) error

	// Recalibrate replaces the current record's qualities.
	Recalibrate(quals []byte)

	// Write writes the current record to the output.
	Write() error

	// Close releases the input and flushes any output.
	Close() error
}

// Format is the detected kind of a sequencing file.
type Format int

const (
	// UnknownFormat marks files this package cannot iterate.
	UnknownFormat Format = iota
	// BAM is a binary, bgzf-compressed alignment file.
	BAM
	// SAM is a text alignment file.
	SAM
	// FASTQ is a text read file, possibly gzip-compressed.
	FASTQ
)

// DetectFormat determines the file format from the filename.
func DetectFormat(path string) Format {
	name := strings.ToLower(path)
	name = strings.TrimSuffix(name, ".gz")
	switch {
	case strings.HasSuffix(name, ".bam"):
		return BAM
	case strings.HasSuffix(name, ".sam"):
		return SAM
	case strings.HasSuffix(name, ".fastq"), strings.HasSuffix(name, ".fq"):
		return FASTQ
	default:
		return UnknownFormat
	}
}

// Open opens a sequencing file for iteration. Every pass over the
// input opens it anew, so the path must name a regular file.
func Open(path string, options Options) (HTSFile, error) {
	if options.ReadGroups == nil {
		options.ReadGroups = utils.NewReadGroups()
	}
	switch DetectFormat(path) {
	case BAM:
		return OpenBam(path, options)
	case SAM:
		return OpenSam(path, options)
	case FASTQ:
		return OpenFastq(path, options)
	default:
		return nil, fmt.Errorf("seqio: %v: file format must be bam, sam, or fastq", path)
	}
}
