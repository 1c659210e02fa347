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
	"github.com/exascience/cbbq/seqio"
)

// Recalibrate maps each base's covariates through the delta tables
// and returns the new quality string. The first base of a read and
// bases without a dinucleotide context use the coarser levels only.
// Covariate bins never observed during training contribute zero.
func Recalibrate(read *seqio.Read, dqs *DeltaQualities, quals []byte) []byte {
	length := len(read.Seq)
	quals = append(quals[:0], read.Qual...)
	if read.RG >= len(dqs.MeanQ) {
		return quals
	}
	rg := read.RG
	for j := 0; j < length; j++ {
		q := int(read.Qual[j])
		newq := dqs.MeanQ[rg] + dqs.RGDQ[rg]
		if q < len(dqs.QScoreDQ[rg]) {
			newq += dqs.QScoreDQ[rg][q]
			strand := Strand(j, length)
			if cycle := Cycle(j, length); cycle < len(dqs.CycleDQ[rg][q][strand]) {
				newq += dqs.CycleDQ[rg][q][strand][cycle]
			}
			if j > 0 {
				if dinuc := Dinuc(read.Seq, j); dinuc >= 0 {
					newq += dqs.DinucDQ[rg][q][dinuc]
				}
			}
		}
		if newq < 0 {
			newq = 0
		}
		if newq > MaxQual {
			newq = MaxQual
		}
		quals[j] = byte(newq)
	}
	return quals
}
