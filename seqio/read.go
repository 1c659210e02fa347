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

// A Read is one sequencing record as seen by the recalibration core.
// Seq holds ASCII bases over {A,C,G,T,N}; Qual holds raw Phred scores
// (not ASCII-offset). Errors is filled by the labeller; TrustedKmer
// marks the k-mers whose bases are all non-error.
type Read struct {
	Name        string
	Seq         []byte
	Qual        []byte
	RG          int
	Second      bool
	Errors      []bool
	TrustedKmer []bool
}

// Len returns the read length in bases.
func (read *Read) Len() int { return len(read.Seq) }

// ResetErrors (re)allocates the Errors slice to the read length with
// all entries false.
func (read *Read) ResetErrors() {
	if cap(read.Errors) < len(read.Seq) {
		read.Errors = make([]bool, len(read.Seq))
		return
	}
	read.Errors = read.Errors[:len(read.Seq)]
	for i := range read.Errors {
		read.Errors[i] = false
	}
}

// Clone returns a deep copy of the read. Iterators own their current
// record; callers that keep a read across Next calls must clone it.
func (read *Read) Clone() *Read {
	clone := &Read{
		Name:   read.Name,
		Seq:    append([]byte(nil), read.Seq...),
		Qual:   append([]byte(nil), read.Qual...),
		RG:     read.RG,
		Second: read.Second,
	}
	if read.Errors != nil {
		clone.Errors = append([]bool(nil), read.Errors...)
	}
	if read.TrustedKmer != nil {
		clone.TrustedKmer = append([]bool(nil), read.TrustedKmer...)
	}
	return clone
}
