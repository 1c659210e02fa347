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
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsertAndQuery(t *testing.T) {
	f, err := New(20, 3)
	require.NoError(t, err)

	const present = uint64(0xDEADBEEFCAFEBABE)
	const absent = uint64(0x0123456789ABCDEF)

	require.False(t, f.Query(present))
	require.Equal(t, 0, f.QueryN(present))

	already := f.Insert(present)
	require.Equal(t, 0, already)
	require.True(t, f.Query(present))
	require.Equal(t, 3, f.QueryN(present))
	require.Equal(t, uint64(1), f.NInserts())

	// A second insert finds all bits set.
	require.Equal(t, 3, f.Insert(present))
	require.Equal(t, uint64(2), f.NInserts())

	require.False(t, f.Query(absent))
}

func TestNoFalseNegatives(t *testing.T) {
	f, err := New(16, 4)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(42))
	hashes := make([]uint64, 1000)
	for i := range hashes {
		hashes[i] = rng.Uint64()
		before := f.QueryN(hashes[i])
		already := f.Insert(hashes[i])
		require.Equal(t, before, already)
		require.Equal(t, f.NHashes(), f.QueryN(hashes[i]))
	}
	for _, h := range hashes {
		require.True(t, f.Query(h))
	}
}

func TestInsertReturnRange(t *testing.T) {
	f, err := New(BlkShift, 5)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		n := f.Insert(rng.Uint64())
		require.GreaterOrEqual(t, n, 0)
		require.LessOrEqual(t, n, 5)
	}
}

func TestNewRejectsBadShift(t *testing.T) {
	_, err := New(8, 3)
	require.Error(t, err)
	_, err = New(56, 3)
	require.Error(t, err)
	_, err = New(20, 0)
	require.Error(t, err)
}

func TestFPRate(t *testing.T) {
	f, err := New(20, 3)
	require.NoError(t, err)
	require.Equal(t, 0.0, f.FPRate(0))
	// fpr = (1 - exp(-k n / m))^k
	n := uint64(100000)
	want := math.Pow(1-math.Exp(-3*float64(n)/math.Pow(2, 20)), 3)
	require.InDelta(t, want, f.FPRate(n), 1e-12)
}

func TestSizing(t *testing.T) {
	// Classic bloom sizing: p=0.01 needs ~9.6 bits per element and
	// 7 hash functions.
	require.Equal(t, uint64(math.Ceil(-1000*math.Log2(0.01)/math.Ln2)), NumBits(1000, 0.01))
	require.Equal(t, 7, NumHashes(0.01))
	require.Equal(t, 11, NumHashes(0.0005))
	require.Equal(t, 1, NumHashes(0.9))
}

func TestOptimalNHashes(t *testing.T) {
	// m/n * ln2 with m = 2^20, n = 100000 is ~7.27.
	require.Equal(t, 7, OptimalNHashes(20, 100000))
}

func TestFilterArrayRoutes(t *testing.T) {
	fa, err := NewArray(1000000, 0.01)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(99))
	hashes := make([]uint64, 2000)
	for i := range hashes {
		hashes[i] = rng.Uint64()
		fa.Insert(hashes[i])
	}
	for _, h := range hashes {
		require.True(t, fa.Query(h))
	}
	require.Equal(t, uint64(2000), fa.NInserts())
}

func TestFilterArrayFPRateLow(t *testing.T) {
	fa, err := NewArray(100000, 0.01)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 100000; i++ {
		fa.Insert(rng.Uint64())
	}
	fpr := fa.FPRate()
	require.Greater(t, fpr, 0.0)
	require.Less(t, fpr, 0.05)

	// Empirical false positive rate should be in the same ballpark.
	fp := 0
	const probes = 20000
	for i := 0; i < probes; i++ {
		if fa.Query(rng.Uint64()) {
			fp++
		}
	}
	require.Less(t, float64(fp)/probes, 0.05)
}

func TestPhit(t *testing.T) {
	fa, err := NewArray(1000, 0.01)
	require.NoError(t, err)
	// Empty filter: fpr = 0, so phit is the pure sampling term.
	require.InDelta(t, 1-math.Pow(1-0.5, 2), fa.Phit(0.5), 1e-12)
	// Small alpha switches to the 0.2/alpha exponent.
	alpha := 0.05
	require.InDelta(t, 1-math.Pow(1-alpha, 0.2/alpha), fa.Phit(alpha), 1e-12)
}
