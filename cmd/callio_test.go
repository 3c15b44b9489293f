// Copyright © 2023-2024 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package cmd

import (
	"bytes"
	"testing"

	"github.com/knovel/knovel/call"
	lh "github.com/knovel/knovel/likelihood"
	"github.com/knovel/knovel/vcfio"
)

func TestWriteReadCallsRoundTrips(t *testing.T) {
	calls := []*call.Call{
		{
			SeqID: "chr1", Pos: 100, Ref: []byte("A"), Alt: []byte("T"),
			Class: call.SNV, ContigID: "c1",
			RW: [][]byte{[]byte("AAA")}, VW: [][]byte{[]byte("TTT")},
			SupportingKmers: [][]byte{[]byte("TTT")},
			NearContigEnd:   true, Homopolymer: false,
		},
		{
			SeqID: "chr1", Pos: 200, Ref: []byte("G"), Alt: []byte("GGG"),
			Class: call.Insertion, ContigID: "c2",
			NearContigEnd: false, Homopolymer: true,
		},
	}
	partitionOf := map[string]string{"c1": "p0", "c2": "p1"}

	var buf bytes.Buffer
	if err := writeCalls(&buf, calls, partitionOf); err != nil {
		t.Fatalf("writeCalls: %v", err)
	}

	got, gotPartitionOf, err := readCalls(&buf)
	if err != nil {
		t.Fatalf("readCalls: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(got))
	}
	if !got[0].NearContigEnd || got[0].Homopolymer {
		t.Errorf("calls[0] NearContigEnd/Homopolymer = %v/%v, want true/false", got[0].NearContigEnd, got[0].Homopolymer)
	}
	if got[1].NearContigEnd || !got[1].Homopolymer {
		t.Errorf("calls[1] NearContigEnd/Homopolymer = %v/%v, want false/true", got[1].NearContigEnd, got[1].Homopolymer)
	}
	if gotPartitionOf["c1"] != "p0" || gotPartitionOf["c2"] != "p1" {
		t.Errorf("partitionOf = %+v, want c1:p0 c2:p1", gotPartitionOf)
	}
}

func TestBuildFiltersPassWhenClean(t *testing.T) {
	c := &call.Call{}
	obs := lh.TrioObservation{Proband: lh.SampleObservation{RefMean: 1}}

	filters := buildFilters(c, obs, 1.0)
	if len(filters) != 0 {
		t.Errorf("expected no filters for a clean call, got %v", filters)
	}
}

func TestBuildFiltersLikelihoodFail(t *testing.T) {
	c := &call.Call{}
	obs := lh.TrioObservation{}

	filters := buildFilters(c, obs, -1.0)
	if !hasFilter(filters, vcfio.LikelihoodFail) {
		t.Errorf("expected LikelihoodFail for a negative score, got %v", filters)
	}
}

func TestBuildFiltersControlAbundance(t *testing.T) {
	c := &call.Call{}
	obs := lh.TrioObservation{Parent1: lh.SampleObservation{AltMean: 2.0}}

	filters := buildFilters(c, obs, 1.0)
	if !hasFilter(filters, vcfio.ControlAbundance) {
		t.Errorf("expected ControlAbundance when a parent shows alt-window abundance, got %v", filters)
	}
}

func TestBuildFiltersAbundMismatch(t *testing.T) {
	c := &call.Call{}
	obs := lh.TrioObservation{Proband: lh.SampleObservation{RefMean: 0}}

	filters := buildFilters(c, obs, 1.0)
	if !hasFilter(filters, vcfio.AbundMismatch) {
		t.Errorf("expected AbundMismatch when the proband shows no reference-window abundance, got %v", filters)
	}
}

func TestBuildFiltersCallFlags(t *testing.T) {
	c := &call.Call{NearContigEnd: true, Homopolymer: true}
	obs := lh.TrioObservation{Proband: lh.SampleObservation{RefMean: 1}}

	filters := buildFilters(c, obs, 1.0)
	if !hasFilter(filters, vcfio.ContigEndTooClose) || !hasFilter(filters, vcfio.Homopolymer) {
		t.Errorf("expected ContigEndTooClose and Homopolymer, got %v", filters)
	}
}

func hasFilter(filters []vcfio.Filter, want vcfio.Filter) bool {
	for _, f := range filters {
		if f == want {
			return true
		}
	}
	return false
}
