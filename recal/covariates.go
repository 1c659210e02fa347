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
	"math"

	"github.com/exascience/cbbq/kmer"
	"github.com/exascience/cbbq/seqio"
)

// MaxQual is the largest representable Phred quality.
const MaxQual = 93

// NumDinucs is the number of dinucleotide contexts (4 x 4).
const NumDinucs = 16

// A Count is one covariate bin: observed bases and how many of them
// were labelled errors.
type Count struct {
	Observations uint64
	Errors       uint64
}

func (count *Count) update(isError bool) {
	count.Observations++
	if isError {
		count.Errors++
	}
}

func (count *Count) merge(other Count) {
	count.Observations += other.Observations
	count.Errors += other.Errors
}

// CovariateData accumulates error counts along the read-group,
// reported-quality, cycle, and dinucleotide covariates. The nested
// slices grow on demand; missing bins stay zero and yield a zero
// delta downstream.
type CovariateData struct {
	RGCov []Count
	QCov  [][]Count
	CyCov [][][2][]Count
	DiCov [][][NumDinucs]Count
}

// NewCovariateData returns an empty accumulator.
func NewCovariateData() *CovariateData {
	return new(CovariateData)
}

func (data *CovariateData) ensureRG(rg int) {
	for len(data.RGCov) <= rg {
		data.RGCov = append(data.RGCov, Count{})
		data.QCov = append(data.QCov, nil)
		data.CyCov = append(data.CyCov, nil)
		data.DiCov = append(data.DiCov, nil)
	}
}

func (data *CovariateData) ensureQ(rg, q int) {
	for len(data.QCov[rg]) <= q {
		data.QCov[rg] = append(data.QCov[rg], Count{})
		data.CyCov[rg] = append(data.CyCov[rg], [2][]Count{})
		data.DiCov[rg] = append(data.DiCov[rg], [NumDinucs]Count{})
	}
}

func (data *CovariateData) ensureCycle(rg, q, strand, cycle int) {
	for len(data.CyCov[rg][q][strand]) <= cycle {
		data.CyCov[rg][q][strand] = append(data.CyCov[rg][q][strand], Count{})
	}
}

// Strand returns 1 for positions in the second half of the read,
// 0 otherwise.
func Strand(j, length int) int {
	if j >= length/2 {
		return 1
	}
	return 0
}

// Cycle returns the cycle index of position j: the offset from the
// nearer read end.
func Cycle(j, length int) int {
	if Strand(j, length) == 1 {
		return length - 1 - j
	}
	return j
}

// Dinuc returns the dinucleotide context code of position j, or -1
// when either base is an N. Position 0 has no context.
func Dinuc(seq []byte, j int) int {
	prev := kmer.NT4Table[seq[j-1]]
	cur := kmer.NT4Table[seq[j]]
	if prev >= 4 || cur >= 4 {
		return -1
	}
	return int(prev)<<2 | int(cur)
}

// ConsumeRead adds one labelled read to the accumulator. The first
// base is skipped entirely: it has no dinucleotide context.
func (data *CovariateData) ConsumeRead(read *seqio.Read) {
	length := len(read.Seq)
	data.ensureRG(read.RG)
	for j := 1; j < length; j++ {
		isError := read.Errors[j]
		q := int(read.Qual[j])
		data.RGCov[read.RG].update(isError)
		data.ensureQ(read.RG, q)
		data.QCov[read.RG][q].update(isError)
		strand := Strand(j, length)
		cycle := Cycle(j, length)
		data.ensureCycle(read.RG, q, strand, cycle)
		data.CyCov[read.RG][q][strand][cycle].update(isError)
		if dinuc := Dinuc(read.Seq, j); dinuc >= 0 {
			data.DiCov[read.RG][q][dinuc].update(isError)
		}
	}
}

// Merge folds other into data. Aggregation is associative and
// commutative, so per-worker shards can be merged in any order.
func (data *CovariateData) Merge(other *CovariateData) *CovariateData {
	for rg := range other.RGCov {
		data.ensureRG(rg)
		data.RGCov[rg].merge(other.RGCov[rg])
		for q := range other.QCov[rg] {
			data.ensureQ(rg, q)
			data.QCov[rg][q].merge(other.QCov[rg][q])
			for strand := 0; strand < 2; strand++ {
				for cycle := range other.CyCov[rg][q][strand] {
					data.ensureCycle(rg, q, strand, cycle)
					data.CyCov[rg][q][strand][cycle].merge(other.CyCov[rg][q][strand][cycle])
				}
			}
			for dinuc := 0; dinuc < NumDinucs; dinuc++ {
				data.DiCov[rg][q][dinuc].merge(other.DiCov[rg][q][dinuc])
			}
		}
	}
	return data
}

// Phred converts an error probability to a quality score.
func Phred(p float64) float64 {
	return -10 * math.Log10(p)
}

// EPhred converts an error probability to a rounded quality score
// clamped to [0, MaxQual].
func EPhred(p float64) int {
	q := int(math.Round(Phred(p)))
	if q < 0 {
		q = 0
	}
	if q > MaxQual {
		q = MaxQual
	}
	return q
}

// empiricalDelta returns the rounded empirical quality of a bin
// under the +1 Yates prior, minus the expected quality from the
// coarser levels. Empty bins contribute nothing.
func empiricalDelta(count Count, expected int) int {
	if count.Observations == 0 {
		return 0
	}
	p := (float64(count.Errors) + 1) / (float64(count.Observations) + 1)
	return EPhred(p) - expected
}

// DeltaQualities mirrors the covariate shapes with per-level quality
// adjustments. It is immutable once derived.
type DeltaQualities struct {
	MeanQ    []int
	RGDQ     []int
	QScoreDQ [][]int
	CycleDQ  [][][2][]int
	DinucDQ  [][][NumDinucs]int
}

// DeltaQualities derives the hierarchical adjustment tables from the
// accumulated counts, consuming the accumulator.
func (data *CovariateData) DeltaQualities() *DeltaQualities {
	nrgs := len(data.RGCov)
	dqs := &DeltaQualities{
		MeanQ:    make([]int, nrgs),
		RGDQ:     make([]int, nrgs),
		QScoreDQ: make([][]int, nrgs),
		CycleDQ:  make([][][2][]int, nrgs),
		DinucDQ:  make([][][NumDinucs]int, nrgs),
	}
	for rg := 0; rg < nrgs; rg++ {
		var sumQ, sumObs uint64
		for q, count := range data.QCov[rg] {
			sumQ += uint64(q) * count.Observations
			sumObs += count.Observations
		}
		if sumObs > 0 {
			dqs.MeanQ[rg] = int(math.Round(float64(sumQ) / float64(sumObs)))
		}
		dqs.RGDQ[rg] = empiricalDelta(data.RGCov[rg], dqs.MeanQ[rg])
		prior := dqs.MeanQ[rg] + dqs.RGDQ[rg]
		dqs.QScoreDQ[rg] = make([]int, len(data.QCov[rg]))
		dqs.CycleDQ[rg] = make([][2][]int, len(data.QCov[rg]))
		dqs.DinucDQ[rg] = make([][NumDinucs]int, len(data.QCov[rg]))
		for q := range data.QCov[rg] {
			dqs.QScoreDQ[rg][q] = empiricalDelta(data.QCov[rg][q], prior)
			qprior := prior + dqs.QScoreDQ[rg][q]
			for strand := 0; strand < 2; strand++ {
				cycles := data.CyCov[rg][q][strand]
				dqs.CycleDQ[rg][q][strand] = make([]int, len(cycles))
				for cycle, count := range cycles {
					dqs.CycleDQ[rg][q][strand][cycle] = empiricalDelta(count, qprior)
				}
			}
			for dinuc := 0; dinuc < NumDinucs; dinuc++ {
				dqs.DinucDQ[rg][q][dinuc] = empiricalDelta(data.DiCov[rg][q][dinuc], qprior)
			}
		}
	}
	*data = CovariateData{}
	return dqs
}
