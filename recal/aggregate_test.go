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

	"github.com/exascience/cbbq/seqio"
)

func TestGetCovariateData(t *testing.T) {
	const k = 32
	rng := rand.New(rand.NewSource(40))
	genome := randomSeq(rng, 400)
	trusted := filterWithKmers(t, [][]byte{genome}, k)

	// 100 copies of the same fragment, one with a substitution.
	reads := make([]*seqio.Read, 100)
	for i := range reads {
		read := &seqio.Read{
			Name: "read",
			Seq:  append([]byte(nil), genome[100:200]...),
			Qual: make([]byte, 100),
		}
		for j := range read.Qual {
			read.Qual[j] = 30
		}
		reads[i] = read
	}
	reads[42].Seq = substitute(reads[42].Seq, 50)

	data, corrupted, err := GetCovariateData(&sliceFile{reads: reads}, trusted, k)
	if err != nil {
		t.Fatal(err)
	}
	if len(corrupted) != 0 {
		t.Fatalf("%v reads unexpectedly corrupted", len(corrupted))
	}
	// 99 bases per read are counted (the first is skipped), and
	// exactly one of the 9900 is the substitution at position 50.
	if got := data.RGCov[0].Observations; got != 9900 {
		t.Errorf("observations = %v, want 9900", got)
	}
	if got := data.RGCov[0].Errors; got != 1 {
		t.Errorf("errors = %v, want 1", got)
	}
}

func TestGetFixedCovariateData(t *testing.T) {
	rng := rand.New(rand.NewSource(41))
	seq := randomSeq(rng, 60)
	raw := &seqio.Read{Name: "r", Seq: substitute(seq, 20), Qual: make([]byte, 60)}
	fixed := &seqio.Read{Name: "r", Seq: seq, Qual: make([]byte, 60)}

	data, err := GetFixedCovariateData(
		&sliceFile{reads: []*seqio.Read{raw}},
		&sliceFile{reads: []*seqio.Read{fixed}},
	)
	if err != nil {
		t.Fatal(err)
	}
	if got := data.RGCov[0].Errors; got != 1 {
		t.Errorf("errors = %v, want 1", got)
	}
	if got := data.RGCov[0].Observations; got != 59 {
		t.Errorf("observations = %v, want 59", got)
	}
}

func TestGetFixedCovariateDataLengthMismatch(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	raw := &seqio.Read{Name: "r", Seq: randomSeq(rng, 60), Qual: make([]byte, 60)}
	fixed := &seqio.Read{Name: "r", Seq: randomSeq(rng, 50), Qual: make([]byte, 50)}
	_, err := GetFixedCovariateData(
		&sliceFile{reads: []*seqio.Read{raw}},
		&sliceFile{reads: []*seqio.Read{fixed}},
	)
	if err == nil {
		t.Fatal("length mismatch not reported")
	}
}

func TestRecalibrateAndWrite(t *testing.T) {
	// A read group that reports Q30 with a 10% error rate must not
	// come out above the reported Q30 anywhere.
	rng := rand.New(rand.NewSource(43))
	data := NewCovariateData()
	for i := 0; i < 100; i++ {
		data.ConsumeRead(makeLabelledRead(rng, 0, 30))
	}
	dqs := data.DeltaQualities()

	reads := []*seqio.Read{makeLabelledRead(rng, 0, 30)}
	file := &sliceFile{reads: reads}
	if err := RecalibrateAndWrite(file, dqs, nil, "-"); err != nil {
		t.Fatal(err)
	}
	if len(reads[0].Qual) != 101 {
		t.Fatalf("got %v qualities, want 101", len(reads[0].Qual))
	}
	for j, q := range reads[0].Qual {
		if int(q) > 30 {
			t.Errorf("position %v: quality %v above the reported 30", j, q)
		}
	}
}

func TestRecalibrateAndWriteCorrupted(t *testing.T) {
	rng := rand.New(rand.NewSource(44))
	data := NewCovariateData()
	for i := 0; i < 10; i++ {
		data.ConsumeRead(makeLabelledRead(rng, 0, 30))
	}
	dqs := data.DeltaQualities()

	read := makeLabelledRead(rng, 0, 30)
	read.Name = "broken"
	orig := append([]byte(nil), read.Qual...)
	file := &sliceFile{reads: []*seqio.Read{read}}
	corrupted := map[string]bool{"broken": true}
	if err := RecalibrateAndWrite(file, dqs, corrupted, "-"); err != nil {
		t.Fatal(err)
	}
	for j := range orig {
		if read.Qual[j] != orig[j] {
			t.Errorf("position %v: corrupted read's quality changed", j)
		}
	}
}
