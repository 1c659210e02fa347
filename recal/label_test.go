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
	"github.com/exascience/cbbq/seqio"
)

func substitute(seq []byte, pos int) []byte {
	mutated := append([]byte(nil), seq...)
	for _, d := range []byte("ACGT") {
		if d != seq[pos] {
			mutated[pos] = d
			break
		}
	}
	return mutated
}

func TestFindLongestTrustedSeq(t *testing.T) {
	const k = 32
	rng := rand.New(rand.NewSource(4))
	seq := randomSeq(rng, 100)
	trusted := filterWithKmers(t, [][]byte{seq}, k)

	start, end, found := FindLongestTrustedSeq(seq, trusted, k)
	if !found {
		t.Fatal("no anchor found in a fully trusted read")
	}
	if start != 0 || end != len(seq)-1 {
		t.Errorf("anchor [%v, %v], want [0, %v]", start, end, len(seq)-1)
	}

	_, _, found = FindLongestTrustedSeq(randomSeq(rng, 100), trusted, k)
	if found {
		t.Error("anchor found in an unrelated read")
	}
}

func TestGetErrorsSingleSubstitution(t *testing.T) {
	const k = 32
	rng := rand.New(rand.NewSource(5))
	seq := randomSeq(rng, 100)
	trusted := filterWithKmers(t, [][]byte{seq}, k)

	read := &seqio.Read{Name: "read1", Seq: substitute(seq, 50)}
	ok := GetErrors(read, trusted, k)
	if !ok {
		t.Fatal("read not labelled")
	}
	for j, e := range read.Errors {
		if e != (j == 50) {
			t.Errorf("position %v: error = %v, want %v", j, e, j == 50)
		}
	}
}

func TestGetErrorsCleanRead(t *testing.T) {
	const k = 32
	rng := rand.New(rand.NewSource(6))
	seq := randomSeq(rng, 100)
	trusted := filterWithKmers(t, [][]byte{seq}, k)

	read := &seqio.Read{Name: "read1", Seq: append([]byte(nil), seq...)}
	ok := GetErrors(read, trusted, k)
	if !ok {
		t.Fatal("read not labelled")
	}
	for j, e := range read.Errors {
		if e {
			t.Errorf("position %v flagged in an error-free read", j)
		}
	}
}

func TestGetErrorsSubstitutionNearStart(t *testing.T) {
	// An error left of the anchor is found by the mirrored
	// extension over the reverse complement.
	const k = 32
	rng := rand.New(rand.NewSource(7))
	seq := randomSeq(rng, 100)
	trusted := filterWithKmers(t, [][]byte{seq}, k)

	read := &seqio.Read{Name: "read1", Seq: substitute(seq, 10)}
	ok := GetErrors(read, trusted, k)
	if !ok {
		t.Fatal("read not labelled")
	}
	for j, e := range read.Errors {
		if e != (j == 10) {
			t.Errorf("position %v: error = %v, want %v", j, e, j == 10)
		}
	}
}

func TestGetErrorsShortRead(t *testing.T) {
	const k = 32
	rng := rand.New(rand.NewSource(8))
	trusted := filterWithKmers(t, nil, k)
	read := &seqio.Read{Name: "short", Seq: randomSeq(rng, 10)}
	if !GetErrors(read, trusted, k) {
		t.Fatal("short read not accepted")
	}
	if len(read.Errors) != 10 {
		t.Fatalf("got %v error flags, want 10", len(read.Errors))
	}
	for j, e := range read.Errors {
		if e {
			t.Errorf("short read position %v flagged", j)
		}
	}
}

func TestGetErrorsAnchorless(t *testing.T) {
	const k = 32
	rng := rand.New(rand.NewSource(9))
	trusted := filterWithKmers(t, [][]byte{randomSeq(rng, 100)}, k)
	read := &seqio.Read{Name: "stranger", Seq: randomSeq(rng, 100)}
	if !GetErrors(read, trusted, k) {
		t.Fatal("anchorless read not accepted")
	}
	for j, e := range read.Errors {
		if e {
			t.Errorf("anchorless read position %v flagged", j)
		}
	}
}

func TestGetErrorsTooManyErrors(t *testing.T) {
	const k = 32
	rng := rand.New(rand.NewSource(10))
	seq := randomSeq(rng, 300)
	trusted := filterWithKmers(t, [][]byte{seq}, k)

	// Substitutions spaced more than k apart are independently
	// fixable, and there are more of them than the budget allows.
	mutated := append([]byte(nil), seq...)
	positions := []int{40, 75, 110, 145, 180, 215, 250, 285}
	for _, pos := range positions {
		mutated = substitute(mutated, pos)
	}
	read := &seqio.Read{Name: "noisy", Seq: mutated}
	if GetErrors(read, trusted, k) {
		t.Fatal("read with too many errors was labelled")
	}
	for j, e := range read.Errors {
		if e {
			t.Errorf("position %v flagged after labelling was aborted", j)
		}
	}
}

func TestFindLongestFixRecoversBase(t *testing.T) {
	const k = 32
	rng := rand.New(rand.NewSource(11))
	seq := randomSeq(rng, 80)
	trusted := filterWithKmers(t, [][]byte{seq}, k)

	// Corrupt the base ending the window at position 40.
	mutated := substitute(seq, 40)
	subseq := mutated[40-k+1:]
	fixes, bestLen := FindLongestFix(subseq, trusted, k)
	if bestLen < k {
		t.Fatalf("no fix found: bestLen = %v", bestLen)
	}
	if len(fixes) != 1 {
		t.Fatalf("got %v winning fixes, want 1", len(fixes))
	}
	if fixes[0] != seq[40] {
		t.Errorf("fix = %c, want %c", fixes[0], seq[40])
	}
}

// tieFixture builds a 200 bp read with an ambiguous error at position
// 50: the trusted filter holds two genomic variants that agree on
// [0, 119] except for position 50 and diverge after 120, while the
// read carries a third base at 50. Both variant bases keep every
// window within the scan cap trusted, and real read sequence extends
// far beyond the cap.
func tieFixture(t *testing.T, k int) (read []byte, alt1, alt2 byte, trusted *bloom.FilterArray) {
	t.Helper()
	rng := rand.New(rand.NewSource(13))
	seqA := randomSeq(rng, 200)
	others := make([]byte, 0, 3)
	for _, d := range []byte("ACGT") {
		if d != seqA[50] {
			others = append(others, d)
		}
	}
	seqB := append([]byte(nil), seqA...)
	seqB[50] = others[0]
	copy(seqB[120:], randomSeq(rng, 80))
	fa := filterWithKmers(t, [][]byte{seqA, seqB}, k)
	read = append([]byte(nil), seqA...)
	read[50] = others[1]
	return read, seqA[50], others[0], fa
}

func TestFindLongestFixTieAtScanCapUnresolved(t *testing.T) {
	// Two alternatives survive the whole 2k-1 scan window while the
	// read itself continues past it: the tie is not at the end of the
	// read, so no speculative bases may be fabricated and both
	// winners must be returned.
	const k = 32
	read, alt1, alt2, trusted := tieFixture(t, k)
	subseq := read[50-k+1:]
	fixes, bestLen := FindLongestFix(subseq, trusted, k)
	if bestLen != 2*k-1 {
		t.Fatalf("bestLen = %v, want %v", bestLen, 2*k-1)
	}
	if bestLen >= len(subseq) {
		t.Fatalf("fixture broken: scan cap %v must fall inside the subsequence (%v)", bestLen, len(subseq))
	}
	if len(fixes) != 2 {
		t.Fatalf("got %v winning fixes (%q), want the unresolved pair", len(fixes), fixes)
	}
	got := map[byte]bool{fixes[0]: true, fixes[1]: true}
	if !got[alt1] || !got[alt2] {
		t.Errorf("fixes = %q, want {%c, %c}", fixes, alt1, alt2)
	}
}

func TestGetErrorsAmbiguousFixStillLabelled(t *testing.T) {
	// The original base is not among the tied winners, so the
	// position is an error even though the fix stays ambiguous.
	const k = 32
	readSeq, _, _, trusted := tieFixture(t, k)
	read := &seqio.Read{Name: "ambiguous", Seq: readSeq}
	if !GetErrors(read, trusted, k) {
		t.Fatal("read not labelled")
	}
	for j, e := range read.Errors {
		if e != (j == 50) {
			t.Errorf("position %v: error = %v, want %v", j, e, j == 50)
		}
	}
}

func TestCountTrusted(t *testing.T) {
	const k = 32
	rng := rand.New(rand.NewSource(12))
	seq := randomSeq(rng, 63)
	trusted := filterWithKmers(t, [][]byte{seq}, k)
	if got := countTrusted(seq, trusted, k); got != len(seq) {
		t.Errorf("countTrusted = %v, want %v", got, len(seq))
	}
	if got := countTrusted(randomSeq(rng, 63), trusted, k); got >= k {
		t.Errorf("countTrusted = %v for an untrusted sequence", got)
	}
}
