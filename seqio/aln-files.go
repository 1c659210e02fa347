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
	"os"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
)

var (
	rgTag = sam.Tag{'R', 'G'}
	oqTag = sam.Tag{'O', 'Q'}
)

type alnReader interface {
	Read() (*sam.Record, error)
}

type alnWriter interface {
	Write(*sam.Record) error
}

// An AlnFile iterates over a BAM or SAM alignment file.
type AlnFile struct {
	path    string
	format  Format
	options Options
	file    *os.File
	reader  alnReader
	header  *sam.Header
	rec     *sam.Record
	read    Read
	origQ   []byte
	out     alnWriter
	outFile io.Closer
	err     error
}

// OpenBam opens a BAM file for iteration.
func OpenBam(path string, options Options) (*AlnFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	reader, err := bam.NewReader(file, options.Threads)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%v, while opening BAM file %v", err, path)
	}
	return &AlnFile{
		path:    path,
		format:  BAM,
		options: options,
		file:    file,
		reader:  reader,
		header:  reader.Header(),
	}, nil
}

// OpenSam opens a SAM text file for iteration.
func OpenSam(path string, options Options) (*AlnFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	reader, err := sam.NewReader(file)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%v, while opening SAM file %v", err, path)
	}
	return &AlnFile{
		path:    path,
		format:  SAM,
		options: options,
		file:    file,
		reader:  reader,
		header:  reader.Header(),
	}, nil
}

// GenomeLength returns the sum of the reference sequence lengths in
// the header, or 0 if the header carries no reference information.
func (af *AlnFile) GenomeLength() uint64 {
	var length uint64
	for _, ref := range af.header.Refs() {
		length += uint64(ref.Len())
	}
	return length
}

// Next advances to the next alignment record.
func (af *AlnFile) Next() bool {
	rec, err := af.reader.Read()
	if err == io.EOF {
		return false
	}
	if err != nil {
		af.err = fmt.Errorf("%v, while reading %v", err, af.path)
		return false
	}
	af.rec = rec
	af.fillRead()
	return true
}

// Err returns the error that terminated iteration, if any.
func (af *AlnFile) Err() error { return af.err }

// Read returns the current record.
func (af *AlnFile) Read() *Read { return &af.read }

// NextSeq advances and returns the sequence only.
func (af *AlnFile) NextSeq() ([]byte, bool) {
	if !af.Next() {
		return nil, false
	}
	return af.read.Seq, true
}

func (af *AlnFile) fillRead() {
	rec := af.rec
	af.read.Name = rec.Name
	af.read.Seq = rec.Seq.Expand()
	qual := rec.Qual
	if af.options.UseOQ {
		if aux := rec.AuxFields.Get(oqTag); aux != nil {
			if oq, ok := aux.Value().(string); ok && len(oq) == len(rec.Qual) {
				qual = make([]byte, len(oq))
				for i := 0; i < len(oq); i++ {
					qual[i] = oq[i] - 33
				}
			}
		}
	}
	af.origQ = qual
	af.read.Qual = append(af.read.Qual[:0], qual...)
	rg := ""
	if aux := rec.AuxFields.Get(rgTag); aux != nil {
		if name, ok := aux.Value().(string); ok {
			rg = name
		}
	}
	af.read.RG = af.options.ReadGroups.Intern(rg)
	af.read.Second = rec.Flags&sam.Read2 != 0
	af.read.Errors = nil
}

// OpenOut opens an output file of the same format as the input.
func (af *AlnFile) OpenOut(path string) error {
	var w io.Writer
	if path == "-" {
		w = os.Stdout
	} else {
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		af.outFile = file
		w = file
	}
	switch af.format {
	case BAM:
		writer, err := bam.NewWriter(w, af.header, af.options.Threads)
		if err != nil {
			return fmt.Errorf("%v, while opening BAM output %v", err, path)
		}
		af.out = writer
		return nil
	default:
		writer, err := sam.NewWriter(w, af.header, sam.FlagDecimal)
		if err != nil {
			return fmt.Errorf("%v, while opening SAM output %v", err, path)
		}
		af.out = writer
		return nil
	}
}

// Recalibrate replaces the current record's qualities. When the
// set-OQ option is active, the reported qualities are preserved in
// the OQ tag first.
func (af *AlnFile) Recalibrate(quals []byte) {
	rec := af.rec
	if af.options.SetOQ {
		oq := make([]byte, len(af.origQ))
		for i, q := range af.origQ {
			oq[i] = q + 33
		}
		fields := rec.AuxFields[:0]
		for _, aux := range rec.AuxFields {
			if aux.Tag() != oqTag {
				fields = append(fields, aux)
			}
		}
		aux, err := sam.NewAux(oqTag, string(oq))
		if err == nil {
			fields = append(fields, aux)
		}
		rec.AuxFields = fields
	}
	rec.Qual = append(rec.Qual[:0], quals...)
}

// Write writes the current record to the output.
func (af *AlnFile) Write() error {
	return af.out.Write(af.rec)
}

// Close releases the input and flushes any output.
func (af *AlnFile) Close() error {
	var err error
	if closer, ok := af.reader.(io.Closer); ok {
		err = closer.Close()
	}
	if nerr := af.file.Close(); err == nil {
		err = nerr
	}
	if closer, ok := af.out.(io.Closer); ok {
		if nerr := closer.Close(); err == nil {
			err = nerr
		}
	}
	if af.outFile != nil {
		if nerr := af.outFile.Close(); err == nil {
			err = nerr
		}
	}
	return err
}
