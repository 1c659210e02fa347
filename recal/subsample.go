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

	"github.com/exascience/cbbq/bloom"
	"github.com/exascience/cbbq/kmer"
	"github.com/exascience/cbbq/seqio"
)

// A Subsampler admits each k-mer of the reads it consumes into the
// sample filter independently with probability alpha. Sampling is
// reproducible: the same seed on the same input yields bit-identical
// filters.
type Subsampler struct {
	sample *bloom.FilterArray
	window *kmer.Window
	alpha  float64
	rng    *rand.Rand
}

// NewSubsampler returns a subsampler inserting into sample at rate
// alpha, drawing from a generator seeded with seed.
func NewSubsampler(sample *bloom.FilterArray, k int, alpha float64, seed uint64) (*Subsampler, error) {
	window, err := kmer.NewWindow(k)
	if err != nil {
		return nil, err
	}
	return &Subsampler{
		sample: sample,
		window: window,
		alpha:  alpha,
		rng:    rand.New(rand.NewSource(int64(seed))),
	}, nil
}

// ConsumeSeq draws one Bernoulli(alpha) per valid k-mer window of seq
// and inserts the admitted hashes into the sample filter.
func (s *Subsampler) ConsumeSeq(seq []byte) {
	s.window.Reset()
	for _, base := range seq {
		s.window.Push(base)
		if s.window.Valid() && s.rng.Float64() < s.alpha {
			s.sample.Insert(s.window.Hash())
		}
	}
}

// SubsampleKmers consumes every read of the input in reader order.
func (s *Subsampler) SubsampleKmers(file seqio.HTSFile) error {
	for {
		seq, ok := file.NextSeq()
		if !ok {
			return file.Err()
		}
		s.ConsumeSeq(seq)
	}
}
