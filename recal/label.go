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
	"github.com/exascience/cbbq/bloom"
	"github.com/exascience/cbbq/kmer"
	"github.com/exascience/cbbq/seqio"
)

// MaxErrors is the largest number of errors tolerated in one read
// during labelling. Reads that would need more are left unlabelled
// and excluded from the covariate counts. Lighter-compatible default.
const MaxErrors = 6

var baseAlternatives = []byte{'A', 'C', 'G', 'T'}

// FindLongestTrustedSeq returns the base coordinates [start, end] of
// the longest run of consecutive trusted windows in seq: start is the
// first base of the first window of the run, end the last base of the
// last. found is false when no window is trusted.
func FindLongestTrustedSeq(seq []byte, trusted *bloom.FilterArray, k int) (start, end int, found bool) {
	window, err := kmer.NewWindow(k)
	if err != nil {
		panic(err)
	}
	bestLen, curLen := 0, 0
	for i := 0; i < len(seq); i++ {
		window.Push(seq[i])
		if window.Valid() && trusted.Query(window.Hash()) {
			curLen++
			if curLen > bestLen {
				bestLen = curLen
				end = i
				start = i - k + 1 - (curLen - 1)
			}
		} else {
			curLen = 0
		}
	}
	return start, end, bestLen > 0
}

// countTrusted feeds seq into a fresh window and returns the number
// of bases consumed while every complete window stays trusted. The
// base that forms the first untrusted window, and anything after an
// N, is not counted. A return of len(seq) means every window hit.
func countTrusted(seq []byte, trusted *bloom.FilterArray, k int) int {
	window, err := kmer.NewWindow(k)
	if err != nil {
		panic(err)
	}
	for i := 0; i < len(seq); i++ {
		c := kmer.NT4Table[seq[i]]
		if c >= 4 {
			return i
		}
		window.PushCode(c)
		if window.Valid() && !trusted.Query(window.Hash()) {
			return i
		}
	}
	return len(seq)
}

// FindLongestFix considers the window subseq[0:k] whose final base is
// a suspected error and tries the three alternative bases at position
// k-1. Each alternative is scored by how many bases of subseq (capped
// at 2k-1) it keeps trusted. Only when the tie falls at the end of the
// read itself, with no real sequence left to consult, is it broken by
// speculatively extending up to k bases with whichever hypothetical
// base keeps the next window trusted; a tie at the scan cap is left
// unresolved. It returns every alternative achieving the maximum score
// and the score itself; the fix is usable iff bestLen >= k.
func FindLongestFix(subseq []byte, trusted *bloom.FilterArray, k int) (fixes []byte, bestLen int) {
	end := len(subseq)
	if end > 2*k-1 {
		end = 2*k - 1
	}
	original := subseq[k-1]
	work := append([]byte(nil), subseq[:end]...)
	for _, d := range baseAlternatives {
		if d == original {
			continue
		}
		work[k-1] = d
		l := countTrusted(work, trusted, k)
		if l > bestLen {
			bestLen = l
			fixes = fixes[:0]
			fixes = append(fixes, d)
		} else if l == bestLen {
			fixes = append(fixes, d)
		}
	}
	if bestLen == len(subseq) && len(fixes) > 1 {
		// All surviving alternatives ran out of read; extend
		// speculatively to separate them.
		best := 0
		var winners []byte
		for _, d := range fixes {
			work[k-1] = d
			ext := speculativeExtension(work, trusted, k)
			if ext > best {
				best = ext
				winners = winners[:0]
				winners = append(winners, d)
			} else if ext == best {
				winners = append(winners, d)
			}
		}
		fixes = winners
	}
	return fixes, bestLen
}

// speculativeExtension appends up to k hypothetical bases to work,
// counting how many keep producing trusted windows.
func speculativeExtension(work []byte, trusted *bloom.FilterArray, k int) int {
	window, err := kmer.NewWindow(k)
	if err != nil {
		panic(err)
	}
	for _, base := range work {
		window.Push(base)
	}
	ext := 0
	for step := 0; step < k; step++ {
		extended := false
		for _, extra := range baseAlternatives {
			trial := *window
			trial.Push(extra)
			if trial.Valid() && trusted.Query(trial.Hash()) {
				*window = trial
				extended = true
				break
			}
		}
		if !extended {
			break
		}
		ext++
	}
	return ext
}

// extendRight walks rightwards from the trusted anchor ending at base
// aend, marking errors and applying single-base fixes to seq in
// place. It stops at the read end, at an unfixable position, or when
// the error budget is exhausted; it returns false in the last case.
func extendRight(seq []byte, aend int, trusted *bloom.FilterArray, k int, errors []bool, nerrors *int) bool {
	window, err := kmer.NewWindow(k)
	if err != nil {
		panic(err)
	}
	for i := aend - k + 1; i <= aend; i++ {
		window.Push(seq[i])
	}
	for i := aend + 1; i < len(seq); i++ {
		window.Push(seq[i])
		if window.Valid() && trusted.Query(window.Hash()) {
			continue
		}
		fixes, bestLen := FindLongestFix(seq[i-k+1:], trusted, k)
		if bestLen < k || len(fixes) == 0 {
			// No substitution recovers a trusted window; give up on
			// this side and leave the remaining bases unlabelled.
			return true
		}
		errors[i] = true
		*nerrors++
		if *nerrors > MaxErrors {
			return false
		}
		seq[i] = fixes[0]
		window.Reset()
		for j := i - k + 1; j <= i; j++ {
			window.Push(seq[j])
		}
	}
	return true
}

// GetErrors labels each base of the read as error or non-error
// against the trusted filter. It finds the longest trusted anchor,
// then extends it in both directions, correcting one substitution at
// a time. ok is false when the read would need more than MaxErrors
// corrections; the read is then left unlabelled.
func GetErrors(read *seqio.Read, trusted *bloom.FilterArray, k int) (ok bool) {
	read.ResetErrors()
	if len(read.Seq) < k {
		return true
	}
	astart, aend, found := FindLongestTrustedSeq(read.Seq, trusted, k)
	if !found {
		return true
	}
	work := append([]byte(nil), read.Seq...)
	nerrors := 0
	if !extendRight(work, aend, trusted, k, read.Errors, &nerrors) {
		read.ResetErrors()
		return false
	}
	// The left side is the right side of the reverse complement:
	// canonical hashing makes the trusted filter strand-agnostic.
	rc := kmer.RevComp(work)
	rcErrors := make([]bool, len(rc))
	rcEnd := len(rc) - 1 - astart
	if !extendRight(rc, rcEnd, trusted, k, rcErrors, &nerrors) {
		read.ResetErrors()
		return false
	}
	for i, e := range rcErrors {
		if e {
			read.Errors[len(rc)-1-i] = true
		}
	}
	return true
}
