// Package novel implements the Novel streaming filter (spec.md §4.C): the
// core single-pass test that isolates reads carrying k-mers abundant in a
// proband but rare or absent in a set of controls.
package novel

import (
	"io"

	"github.com/knovel/knovel/kmer"
	"github.com/knovel/knovel/readstream"
	"github.com/knovel/knovel/sketch"
)

// Options configures one pass of the Novel filter.
type Options struct {
	K int

	CaseMin uint16 // case_min, inclusive lower bound
	CtrlMax uint16 // ctrl_max, inclusive upper bound

	// AbundScreen, when > 0, causes any read containing a k-mer whose
	// case abundance falls below this threshold to be discarded outright
	// before the novelty test runs (sequencing-error suppression).
	AbundScreen uint16
}

// Stats accumulates run counters for the run summary (spec.md §7).
type Stats struct {
	ReadsIn          uint64
	ReadsScreened    uint64 // dropped by abund_screen
	ReadsAllAmbig    uint64 // dropped: only ambiguous k-mers
	ReadsNoNovelKmer uint64 // no k-mer satisfied case_min/ctrl_max
	ReadsOut         uint64
	NovelKmersOut    uint64
}

// Filter is the Novel stage: one case sketch, one or more control
// sketches, configured thresholds.
type Filter struct {
	opts  Options
	cse   *sketch.Sketch
	ctrls []*sketch.Sketch
	Stats Stats
}

// New builds a Novel filter. case_ is the proband's sketch; ctrls are one
// or more control (parent) sketches.
func New(opts Options, case_ *sketch.Sketch, ctrls []*sketch.Sketch) *Filter {
	return &Filter{opts: opts, cse: case_, ctrls: ctrls}
}

// Apply runs the filter over src, invoking emit for every read that
// survives with at least one novel k-mer annotated. It returns once src is
// exhausted (io.EOF) or a non-EOF error occurs.
func (f *Filter) Apply(src *readstream.Source, emit func(*readstream.AugmentedRead) error) error {
	for {
		r, err := src.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		f.Stats.ReadsIn++

		ar, ok, err := f.filterOne(r)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		f.Stats.ReadsOut++
		f.Stats.NovelKmersOut += uint64(len(ar.NovelKmers))
		if err := emit(ar); err != nil {
			return err
		}
	}
}

// filterOne applies the per-read decision procedure of spec.md §4.C steps
// 1-3 to a single read.
func (f *Filter) filterOne(r *readstream.Read) (*readstream.AugmentedRead, bool, error) {
	it, err := kmer.NewIterator(r.Seq, uint8(f.opts.K))
	if err != nil {
		return nil, false, err
	}

	var offsets []int
	var codes []kmer.Code
	for {
		code, offset, ok := it.Next()
		if !ok {
			break
		}
		canon := kmer.Canonical(code, uint8(f.opts.K))

		if f.opts.AbundScreen > 0 && f.cse.Count(canon) < f.opts.AbundScreen {
			f.Stats.ReadsScreened++
			return nil, false, nil
		}
		offsets = append(offsets, offset)
		codes = append(codes, canon)
	}
	if len(codes) == 0 {
		f.Stats.ReadsAllAmbig++
		return nil, false, nil
	}

	var annos []readstream.KmerAnnotation
	for i, canon := range codes {
		caseCount := f.cse.Count(canon)
		if caseCount < f.opts.CaseMin {
			continue
		}

		ctrlCounts := make([]uint16, len(f.ctrls))
		novel := true
		for c, ctrl := range f.ctrls {
			cc := ctrl.Count(canon)
			ctrlCounts[c] = cc
			if cc > f.opts.CtrlMax {
				novel = false
			}
		}
		if !novel {
			continue
		}

		annos = append(annos, readstream.KmerAnnotation{
			Offset:     offsets[i],
			Kmer:       canon,
			CaseAbund:  caseCount,
			CtrlAbunds: ctrlCounts,
		})
	}

	if len(annos) == 0 {
		f.Stats.ReadsNoNovelKmer++
		return nil, false, nil
	}

	ar := &readstream.AugmentedRead{
		Read:       *r,
		NovelKmers: annos,
	}
	return ar, true, nil
}
