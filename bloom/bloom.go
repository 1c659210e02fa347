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

// Package bloom implements a blocked bloom filter for hashed k-mers.
// All bits for one key fall into a single 64-byte block, so a query
// touches one cache line regardless of the total filter size.
package bloom

import (
	"fmt"
	"math"
)

const (
	// BlkShift is the log2 of the block size in bits. Blocks are
	// 1<<BlkShift bits, i.e. 64 bytes.
	BlkShift = 9

	// BlkMask masks a bit index within a block.
	BlkMask = (1 << BlkShift) - 1

	// MinShift and MaxShift bound the per-filter size parameter so
	// that block selection, the initial bit index, and the step all
	// fit in the 64-bit hash.
	MinShift = BlkShift
	MaxShift = 55
)

// A Filter is a fixed-size blocked bloom filter. Bits are addressed
// by decomposing a key hash: the low bits select a block, the next
// bits the initial position within the block, and the bits above
// nshift the step between positions.
type Filter struct {
	nshift   int
	nhashes  int
	ninserts uint64
	bits     []byte
}

// New returns an empty filter with 1<<nshift bits probed at nhashes
// positions per key.
func New(nshift, nhashes int) (*Filter, error) {
	if nshift < MinShift || nshift > MaxShift {
		return nil, fmt.Errorf("bloom: nshift %v out of range [%v, %v]", nshift, MinShift, MaxShift)
	}
	if nhashes < 1 {
		return nil, fmt.Errorf("bloom: nhashes %v must be at least 1", nhashes)
	}
	return &Filter{
		nshift:  nshift,
		nhashes: nhashes,
		bits:    make([]byte, 1<<(nshift-3)),
	}, nil
}

// NShift returns the log2 of the filter size in bits.
func (f *Filter) NShift() int { return f.nshift }

// NHashes returns the number of probed positions per key.
func (f *Filter) NHashes() int { return f.nhashes }

// NInserts returns the number of Insert calls, not distinct keys.
func (f *Filter) NInserts() uint64 { return f.ninserts }

// decompose splits a hash into the block's byte offset, the initial
// bit index, and the step. A step whose low 5 bits are zero would
// cycle through too few distinct positions, so it is nudged.
func (f *Filter) decompose(hash uint64) (block uint64, h1, h2 int) {
	x := uint(f.nshift - BlkShift)
	y := hash & ((1 << x) - 1)
	h1 = int(hash >> x & BlkMask)
	h2 = int(hash >> uint(f.nshift) & BlkMask)
	if h2&31 == 0 {
		h2 = (h2 + 1) & BlkMask
	}
	return y << (BlkShift - 3), h1, h2
}

// Insert sets the key's bits and returns how many were already set,
// a value in [0, nhashes].
func (f *Filter) Insert(hash uint64) int {
	block, z, h2 := f.decompose(hash)
	p := f.bits[block : block+(1<<(BlkShift-3))]
	count := 0
	for i := 0; i < f.nhashes; i++ {
		u := byte(1) << (z & 7)
		if p[z>>3]&u != 0 {
			count++
		}
		p[z>>3] |= u
		z = (z + h2) & BlkMask
	}
	f.ninserts++
	return count
}

// QueryN returns how many of the key's bits are set, without
// mutating the filter.
func (f *Filter) QueryN(hash uint64) int {
	block, z, h2 := f.decompose(hash)
	p := f.bits[block : block+(1<<(BlkShift-3))]
	count := 0
	for i := 0; i < f.nhashes; i++ {
		if p[z>>3]&(1<<(z&7)) != 0 {
			count++
		}
		z = (z + h2) & BlkMask
	}
	return count
}

// Query reports whether the key may have been inserted. False means
// definitely not inserted.
func (f *Filter) Query(hash uint64) bool {
	return f.QueryN(hash) == f.nhashes
}

// FPRate returns the analytic false positive rate after n insertions.
func (f *Filter) FPRate(n uint64) float64 {
	m := math.Pow(2, float64(f.nshift))
	k := float64(f.nhashes)
	return math.Pow(1-math.Exp(-k*float64(n)/m), k)
}

// OptimalNHashes returns the number of hash functions minimizing the
// false positive rate for a filter of 1<<shift bits holding n keys.
func OptimalNHashes(shift int, n uint64) int {
	return int(math.Floor(math.Pow(2, float64(shift)) / float64(n) * math.Ln2))
}

// NumBits returns the total number of filter bits needed to hold
// n keys at the desired false positive rate.
func NumBits(n uint64, fpr float64) uint64 {
	return uint64(math.Ceil(-float64(n) * math.Log2(fpr) / math.Ln2))
}

// NumHashes returns the number of probed positions per key for the
// desired false positive rate.
func NumHashes(fpr float64) int {
	k := int(math.Ceil(-math.Log2(fpr)))
	if k < 1 {
		k = 1
	}
	return k
}
