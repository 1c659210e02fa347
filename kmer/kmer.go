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

// Package kmer implements a canonical k-mer hasher. A rolling window
// maintains the 2-bit encodings of both strands of the last k bases;
// the lexicographically smaller encoding is mixed through a fixed
// 64-bit avalanche function to produce one hash per k-mer occurrence.
package kmer

import (
	"fmt"

	"github.com/shenwei356/kmers"
)

// MaxK is the largest supported k-mer size, so that 2k bits fit in a
// 64-bit word.
const MaxK = 32

// NT4Table maps ASCII bases to the codes 0 (A), 1 (C), 2 (G), 3 (T).
// Everything else, including 'N', maps to 4 and interrupts the
// current k-mer run.
var NT4Table = [256]uint8{
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 0, 4, 1, 4, 4, 4, 2, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 3, 3, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 0, 4, 1, 4, 4, 4, 2, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 3, 3, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
	4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4, 4,
}

// Hash64 is the invertible 64-bit mixer applied to canonical k-mer
// encodings, masked to 2k bits. The constants determine which k-mers
// collide in the bloom filters and must not change.
func Hash64(key, mask uint64) uint64 {
	key = (^key + (key << 21)) & mask
	key = key ^ key>>24
	key = ((key + (key << 3)) + (key << 8)) & mask
	key = key ^ key>>14
	key = ((key + (key << 2)) + (key << 4)) & mask
	key = key ^ key>>28
	key = (key + (key << 31)) & mask
	return key
}

// A Window is a rolling two-strand 2-bit encoder over the last k
// bases. It is valid once k consecutive non-N bases have been fed.
type Window struct {
	fwd, rev uint64
	l        int
	k        int
	mask     uint64
	shift    uint
}

// NewWindow returns a rolling window for k-mers of the given size.
func NewWindow(k int) (*Window, error) {
	if k < 1 || k > MaxK {
		return nil, fmt.Errorf("kmer: invalid k-mer size %v (1 <= k <= %v)", k, MaxK)
	}
	return &Window{
		k:     k,
		mask:  (1 << (2 * uint(k))) - 1,
		shift: 2 * uint(k-1),
	}, nil
}

// K returns the window's k-mer size.
func (w *Window) K() int { return w.k }

// Mask returns the 2k-bit mask for this window.
func (w *Window) Mask() uint64 { return w.mask }

// Reset invalidates the window, as if no bases had been fed yet.
func (w *Window) Reset() {
	w.fwd, w.rev, w.l = 0, 0, 0
}

// Push feeds one ASCII base into the window. An N (or any other
// non-ACGT byte) resets the window; it becomes valid again only after
// k consecutive non-N bases.
func (w *Window) Push(base byte) {
	c := NT4Table[base]
	if c >= 4 {
		w.Reset()
		return
	}
	w.PushCode(c)
}

// PushCode feeds one 2-bit base code (0..3) into the window.
func (w *Window) PushCode(c uint8) {
	w.fwd = (w.fwd<<2 | uint64(c)) & w.mask
	w.rev = w.rev>>2 | uint64(3-c)<<w.shift
	w.l++
}

// Valid reports whether the window currently spans k non-N bases.
func (w *Window) Valid() bool { return w.l >= w.k }

// Canonical returns the lexicographically smaller of the forward and
// reverse-complement encodings. Only meaningful when Valid.
func (w *Window) Canonical() uint64 {
	if w.fwd < w.rev {
		return w.fwd
	}
	return w.rev
}

// Hash returns the mixed hash of the canonical encoding. Only
// meaningful when Valid.
func (w *Window) Hash() uint64 {
	return Hash64(w.Canonical(), w.mask)
}

// String decodes the forward strand of the current window. Intended
// for debug logging.
func (w *Window) String() string {
	return string(kmers.MustDecode(w.fwd, w.k))
}

// HashSeq returns the hash of every valid k-mer window in seq, in
// order. Windows interrupted by N bases produce no entry, so the
// result has max(0, len(seq)-k+1) entries only for N-free sequences.
func HashSeq(seq []byte, k int) ([]uint64, error) {
	w, err := NewWindow(k)
	if err != nil {
		return nil, err
	}
	var hashes []uint64
	if len(seq) >= k {
		hashes = make([]uint64, 0, len(seq)-k+1)
	}
	for _, base := range seq {
		w.Push(base)
		if w.Valid() {
			hashes = append(hashes, w.Hash())
		}
	}
	return hashes, nil
}

// RevComp returns the reverse complement of seq. Non-ACGT bases are
// preserved as 'N'.
func RevComp(seq []byte) []byte {
	rc := make([]byte, len(seq))
	for i, base := range seq {
		c := NT4Table[base]
		if c >= 4 {
			rc[len(seq)-1-i] = 'N'
		} else {
			rc[len(seq)-1-i] = "TGCA"[c]
		}
	}
	return rc
}
