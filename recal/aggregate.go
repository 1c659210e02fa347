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
	"fmt"

	"github.com/exascience/pargo/parallel"

	"github.com/exascience/cbbq/bloom"
	"github.com/exascience/cbbq/seqio"
)

const labelBatchSize = 4096

type labelShard struct {
	data      *CovariateData
	corrupted []string
}

// GetCovariateData labels every read against the trusted filter and
// accumulates the covariate counts. Reads are labelled in parallel
// batches; the trusted filter is read-only here, and the shard
// accumulators are merged after each batch. It returns the counts and
// the names of reads that could not be labelled within the error
// budget; those reads are not counted.
func GetCovariateData(file seqio.HTSFile, trusted *bloom.FilterArray, k int) (*CovariateData, map[string]bool, error) {
	data := NewCovariateData()
	corrupted := make(map[string]bool)
	batch := make([]*seqio.Read, 0, labelBatchSize)
	consumeBatch := func() {
		if len(batch) == 0 {
			return
		}
		result := parallel.RangeReduce(0, len(batch), 0, func(low, high int) interface{} {
			shard := labelShard{data: NewCovariateData()}
			for _, read := range batch[low:high] {
				if !GetErrors(read, trusted, k) {
					shard.corrupted = append(shard.corrupted, read.Name)
					continue
				}
				shard.data.ConsumeRead(read)
			}
			return shard
		}, func(left, right interface{}) interface{} {
			l := left.(labelShard)
			r := right.(labelShard)
			l.data.Merge(r.data)
			l.corrupted = append(l.corrupted, r.corrupted...)
			return l
		}).(labelShard)
		data.Merge(result.data)
		for _, name := range result.corrupted {
			corrupted[name] = true
		}
		batch = batch[:0]
	}
	for file.Next() {
		batch = append(batch, file.Read().Clone())
		if len(batch) == labelBatchSize {
			consumeBatch()
		}
	}
	consumeBatch()
	return data, corrupted, file.Err()
}

// GetFixedCovariateData derives the error labels by comparing each
// read against the corresponding record of a corrected file, skipping
// the k-mer machinery entirely.
func GetFixedCovariateData(file, fixed seqio.HTSFile) (*CovariateData, error) {
	data := NewCovariateData()
	for file.Next() {
		if !fixed.Next() {
			if err := fixed.Err(); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("recal: corrected file is shorter than the input")
		}
		read := file.Read()
		fixedRead := fixed.Read()
		if len(fixedRead.Seq) != len(read.Seq) {
			return nil, fmt.Errorf("recal: read %v and its corrected version differ in length", read.Name)
		}
		read.ResetErrors()
		for i := range read.Seq {
			read.Errors[i] = read.Seq[i] != fixedRead.Seq[i]
		}
		data.ConsumeRead(read)
	}
	return data, file.Err()
}

// RecalibrateAndWrite runs the final pass: every read's qualities are
// replaced through the delta tables and the record is written to out.
// Reads that failed labelling keep their reported qualities.
func RecalibrateAndWrite(file seqio.HTSFile, dqs *DeltaQualities, corrupted map[string]bool, out string) error {
	if err := file.OpenOut(out); err != nil {
		return err
	}
	var quals []byte
	for file.Next() {
		read := file.Read()
		if !corrupted[read.Name] {
			quals = Recalibrate(read, dqs, quals)
			file.Recalibrate(quals)
		}
		if err := file.Write(); err != nil {
			return err
		}
	}
	return file.Err()
}
