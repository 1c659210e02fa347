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
	"math/rand"
	"testing"

	"github.com/exascience/cbbq/bloom"
	"github.com/exascience/cbbq/kmer"
)

func TestSubsampleAlphaOne(t *testing.T) {
	const k = 8
	rng := rand.New(rand.NewSource(30))
	seq := randomSeq(rng, 200)
	sample, err := bloom.NewArray(10000, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewSubsampler(sample, k, 1, 17)
	if err != nil {
		t.Fatal(err)
	}
	s.ConsumeSeq(seq)
	hashes, err := kmer.HashSeq(seq, k)
	if err != nil {
		t.Fatal(err)
	}
	if sample.NInserts() != uint64(len(hashes)) {
		t.Errorf("inserted %v kmers, want %v", sample.NInserts(), len(hashes))
	}
	for i, h := range hashes {
		if !sample.Query(h) {
			t.Errorf("k-mer %v not sampled at alpha = 1", i)
		}
	}
}

func TestSubsampleDeterministic(t *testing.T) {
	const k = 8
	rng := rand.New(rand.NewSource(31))
	seqs := make([][]byte, 20)
	for i := range seqs {
		seqs[i] = randomSeq(rng, 150)
	}
	build := func() *bloom.FilterArray {
		sample, err := bloom.NewArray(10000, 0.01)
		if err != nil {
			t.Fatal(err)
		}
		s, err := NewSubsampler(sample, k, 0.3, 12345)
		if err != nil {
			t.Fatal(err)
		}
		for _, seq := range seqs {
			s.ConsumeSeq(seq)
		}
		return sample
	}
	first := build()
	second := build()
	if first.NInserts() != second.NInserts() {
		t.Fatalf("insert counts differ: %v vs %v", first.NInserts(), second.NInserts())
	}
	for _, seq := range seqs {
		hashes, err := kmer.HashSeq(seq, k)
		if err != nil {
			t.Fatal(err)
		}
		for i, h := range hashes {
			if first.Query(h) != second.Query(h) {
				t.Errorf("k-mer %v sampled differently across runs", i)
			}
		}
	}
}

func TestSubsampleAllN(t *testing.T) {
	sample, err := bloom.NewArray(1000, 0.01)
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewSubsampler(sample, 8, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	s.ConsumeSeq([]byte("NNNNNNNNNNNNNNNN"))
	if sample.NInserts() != 0 {
		t.Errorf("all-N sequence inserted %v kmers", sample.NInserts())
	}
}
