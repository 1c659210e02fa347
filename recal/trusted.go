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

package recal

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/exascience/cbbq/bloom"
	"github.com/exascience/cbbq/kmer"
	"github.com/exascience/cbbq/seqio"
)

// OverlappingKmers slides a k-mer window over seq and, for every base
// position, tallies how many of the windows containing that base hit
// the filter (in) and how many were possible at all (possible). At
// the sequence ends and next to N runs a base is covered by fewer
// than k windows, so possible[i] < k there.
func OverlappingKmers(seq []byte, filter *bloom.FilterArray, k int) (in, possible []int) {
	window, err := kmer.NewWindow(k)
	if err != nil {
		panic(err)
	}
	// The window ending at position i exists iff kmerPossible(i);
	// it hits the filter iff kmerPresent(i).
	kmerPossible := bitset.New(uint(len(seq)))
	kmerPresent := bitset.New(uint(len(seq)))
	in = make([]int, len(seq))
	possible = make([]int, len(seq))
	nIn, nOut := 0, 0
	i := 0
	for ; i < len(seq); i++ {
		window.Push(seq[i])
		if window.Valid() {
			kmerPossible.Set(uint(i))
			if filter.Query(window.Hash()) {
				kmerPresent.Set(uint(i))
				nIn++
			} else {
				nOut++
			}
		}

		// Windows ending more than k positions back no longer cover
		// the base we are about to tally.
		if i-k >= 0 && kmerPossible.Test(uint(i-k)) {
			if kmerPresent.Test(uint(i - k)) {
				nIn--
			} else {
				nOut--
			}
		}

		if i-k+1 >= 0 {
			in[i-k+1] = nIn
			possible[i-k+1] = nIn + nOut
		}
	}
	if window.Valid() {
		// The read ended mid-window; drain the tail positions.
		for ; i < len(seq)+k-1; i++ {
			if i-k >= 0 && kmerPossible.Test(uint(i-k)) {
				if kmerPresent.Test(uint(i - k)) {
					nIn--
				} else {
					nOut--
				}
			}
			if i-k+1 >= 0 && i-k+1 < len(seq) {
				in[i-k+1] = nIn
				possible[i-k+1] = nIn + nOut
			}
		}
	}
	return in, possible
}

// InferReadErrors labels each base of the read as a probable error
// by comparing the number of sample-filter hits among its covering
// windows against the threshold for that many windows.
func InferReadErrors(read *seqio.Read, sampled *bloom.FilterArray, thresholds []int, k int) {
	in, possible := OverlappingKmers(read.Seq, sampled, k)
	read.ResetErrors()
	for i := range read.Errors {
		read.Errors[i] = in[i] < thresholds[possible[i]]
	}
}

// FindTrustedKmers infers errors for every read against the sample
// filter and promotes each k-mer whose bases are all non-error into
// the trusted filter.
func FindTrustedKmers(file seqio.HTSFile, trusted, sampled *bloom.FilterArray, thresholds []int, k int) error {
	window, err := kmer.NewWindow(k)
	if err != nil {
		return err
	}
	for file.Next() {
		read := file.Read()
		InferReadErrors(read, sampled, thresholds, k)
		read.TrustedKmer = read.TrustedKmer[:0]
		nTrusted := 0
		window.Reset()
		for i := 0; i < len(read.Seq); i++ {
			window.Push(read.Seq[i])
			if !read.Errors[i] {
				nTrusted++
			}
			if i >= k && !read.Errors[i-k] {
				nTrusted--
			}
			if i >= k-1 {
				promote := window.Valid() && nTrusted == k
				read.TrustedKmer = append(read.TrustedKmer, promote)
				if promote {
					trusted.Insert(window.Hash())
				}
			}
		}
	}
	return file.Err()
}
