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
	"gonum.org/v1/gonum/stat/distuv"
)

// ThresholdEpsilon is the tail mass used to derive the per-window
// promotion thresholds.
const ThresholdEpsilon = 1e-4

// Thresholds returns the promotion threshold vector T[0..k]. A base
// covered by w sample-filter windows of which fewer than T[w] hit is
// considered an error. T[w] is the smallest integer t such that a
// Binomial(w, p) variable falls below t with probability at least
// 1-epsilon, capped at w so that a base whose every covering window
// hits is always trusted.
func Thresholds(k int, p float64) []int {
	thresholds := make([]int, k+1)
	for w := 1; w <= k; w++ {
		dist := distuv.Binomial{N: float64(w), P: p}
		t := w
		for x := 1; x <= w; x++ {
			if dist.CDF(float64(x-1)) >= 1-ThresholdEpsilon {
				t = x
				break
			}
		}
		thresholds[w] = t
	}
	return thresholds
}
