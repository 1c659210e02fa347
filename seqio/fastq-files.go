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

package seqio

import (
	"fmt"
	"io"

	"github.com/shenwei356/bio/seq"
	"github.com/shenwei356/bio/seqio/fastx"
	"github.com/shenwei356/xopen"
)

// A FastqFile iterates over a FASTQ file, transparently decompressing
// gzip input. All reads of one FASTQ file share a single read group
// named after the file.
type FastqFile struct {
	path    string
	options Options
	reader  *fastx.Reader
	rg      int
	read    Read
	err     error
	out     *xopen.Writer
}

// OpenFastq opens a FASTQ file for iteration.
func OpenFastq(path string, options Options) (*FastqFile, error) {
	seq.ValidateSeq = false
	reader, err := fastx.NewReader(seq.DNAredundant, path, fastx.DefaultIDRegexp)
	if err != nil {
		return nil, fmt.Errorf("%v, while opening FASTQ file %v", err, path)
	}
	return &FastqFile{
		path:    path,
		options: options,
		reader:  reader,
		rg:      options.ReadGroups.Intern(path),
	}, nil
}

// Next advances to the next FASTQ record.
func (ff *FastqFile) Next() bool {
	record, err := ff.reader.Read()
	if err == io.EOF {
		return false
	}
	if err != nil {
		ff.err = fmt.Errorf("%v, while reading %v", err, ff.path)
		return false
	}
	if len(record.Seq.Qual) != len(record.Seq.Seq) {
		ff.err = fmt.Errorf("seqio: %v: record %s has no quality string", ff.path, record.Name)
		return false
	}
	ff.read.Name = string(record.Name)
	ff.read.Seq = append(ff.read.Seq[:0], record.Seq.Seq...)
	ff.read.Qual = ff.read.Qual[:0]
	for _, q := range record.Seq.Qual {
		ff.read.Qual = append(ff.read.Qual, q-33)
	}
	ff.read.RG = ff.rg
	ff.read.Second = false
	ff.read.Errors = nil
	return true
}

// Err returns the error that terminated iteration, if any.
func (ff *FastqFile) Err() error { return ff.err }

// Read returns the current record.
func (ff *FastqFile) Read() *Read { return &ff.read }

// NextSeq advances and returns the sequence only.
func (ff *FastqFile) NextSeq() ([]byte, bool) {
	if !ff.Next() {
		return nil, false
	}
	return ff.read.Seq, true
}

// OpenOut opens a FASTQ output. The path "-" means standard output;
// a .gz suffix compresses.
func (ff *FastqFile) OpenOut(path string) error {
	out, err := xopen.Wopen(path)
	if err != nil {
		return fmt.Errorf("%v, while opening FASTQ output %v", err, path)
	}
	ff.out = out
	return nil
}

// Recalibrate replaces the current record's qualities.
func (ff *FastqFile) Recalibrate(quals []byte) {
	ff.read.Qual = append(ff.read.Qual[:0], quals...)
}

// Write writes the current record to the output.
func (ff *FastqFile) Write() error {
	qual := make([]byte, len(ff.read.Qual))
	for i, q := range ff.read.Qual {
		qual[i] = q + 33
	}
	_, err := fmt.Fprintf(ff.out, "@%s\n%s\n+\n%s\n", ff.read.Name, ff.read.Seq, qual)
	return err
}

// Close releases the input and flushes any output.
func (ff *FastqFile) Close() error {
	ff.reader.Close()
	var err error
	if ff.out != nil {
		err = ff.out.Close()
	}
	return err
}
