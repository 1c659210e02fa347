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

package bloom

import (
	"math"
)

const (
	// PrefixBits is the number of low hash bits routing a key to its
	// shard. A shard reads hash bits up to PrefixBits + nshift +
	// BlkShift, which stays within 64 for shards of up to 2^45 bits.
	PrefixBits = 10

	// NumShards is the fixed number of filters in a FilterArray.
	NumShards = 1 << PrefixBits

	prefixMask = NumShards - 1
)

// A FilterArray shards keys over a fixed array of blocked filters by
// the low PrefixBits of the hash. All shards share the same size and
// hash count parameters.
type FilterArray struct {
	shards [NumShards]*Filter
}

// NewArray sizes a FilterArray for approximately n keys at the
// desired false positive rate. The total bit budget is split evenly
// over the shards, with the per-shard size clamped to the filter's
// representable range.
func NewArray(n uint64, fpr float64) (*FilterArray, error) {
	totalBits := NumBits(n, fpr)
	nshift := int(math.Ceil(math.Log2(float64(totalBits) / NumShards)))
	if nshift < MinShift {
		nshift = MinShift
	}
	if nshift > MaxShift {
		nshift = MaxShift
	}
	nhashes := NumHashes(fpr)
	fa := new(FilterArray)
	for i := range fa.shards {
		f, err := New(nshift, nhashes)
		if err != nil {
			return nil, err
		}
		fa.shards[i] = f
	}
	return fa, nil
}

// Insert adds a key hash and returns how many of its bits were
// already set.
func (fa *FilterArray) Insert(hash uint64) int {
	return fa.shards[hash&prefixMask].Insert(hash >> PrefixBits)
}

// Query reports whether the key hash may have been inserted.
func (fa *FilterArray) Query(hash uint64) bool {
	return fa.shards[hash&prefixMask].Query(hash >> PrefixBits)
}

// QueryN returns how many of the key hash's bits are set.
func (fa *FilterArray) QueryN(hash uint64) int {
	return fa.shards[hash&prefixMask].QueryN(hash >> PrefixBits)
}

// NInserts returns the total number of Insert calls across shards.
func (fa *FilterArray) NInserts() uint64 {
	var n uint64
	for _, f := range fa.shards {
		n += f.NInserts()
	}
	return n
}

// FPRate returns the aggregate analytic false positive rate: the
// shard bit counts and insert counts are summed, the hash counts
// averaged, and the single-filter formula applied to the totals.
func (fa *FilterArray) FPRate() float64 {
	var m, n float64
	var k int
	for _, f := range fa.shards {
		m += math.Pow(2, float64(f.NShift()))
		k += f.NHashes()
		n += float64(f.NInserts())
	}
	kf := float64(k / NumShards)
	return math.Pow(1-math.Exp(-kf*n/m), kf)
}

// Phit returns the probability that a true genomic k-mer hits the
// sample filter when k-mers were sampled at rate alpha. Genomic
// k-mers recur about coverage times, so the chance at least one
// occurrence was sampled is 1-(1-alpha)^x for an effective exponent
// x; false positives are folded in by inclusion-exclusion.
func (fa *FilterArray) Phit(alpha float64) float64 {
	fpr := fa.FPRate()
	exponent := 2.0
	if alpha < 0.1 {
		exponent = 0.2 / alpha
	}
	pa := 1 - math.Pow(1-alpha, exponent)
	return pa + fpr - fpr*pa
}
