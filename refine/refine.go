// Package refine implements the Filter (refinement) stage (spec.md §4.D):
// a second pass over the novel augmented stream that re-validates each
// annotated k-mer against a reference sketch, a freshly recounted case
// sketch over the novel-read corpus, and an optional contamination sketch.
package refine

import (
	"github.com/knovel/knovel/kmer"
	"github.com/knovel/knovel/readstream"
	"github.com/knovel/knovel/sketch"
)

// Options configures one refinement pass.
type Options struct {
	K       int
	CaseMin uint16
}

// Stats accumulates run counters for the run summary (spec.md §7).
type Stats struct {
	KmersMasked       uint64 // dropped: present in reference sketch
	KmersBelowCaseMin uint64 // dropped: below recounted case_min
	KmersContaminant  uint64 // dropped: present in contamination sketch
	ReadsDrained      uint64 // reads whose annotations fully emptied
	ReadsOut          uint64
}

// Refiner holds the sketches consulted during refinement.
type Refiner struct {
	opts        Options
	reference   *sketch.Sketch // presence sketch over the reference genome
	recount     *sketch.Sketch // freshly built case sketch over the novel-read corpus
	contaminant *sketch.Sketch // optional; nil if not configured
	Stats       Stats
}

// New builds a Refiner. recount must be a fresh counting sketch built by
// BuildRecountSketch over the exact novel-read corpus being refined.
func New(opts Options, reference, recount, contaminant *sketch.Sketch) *Refiner {
	return &Refiner{opts: opts, reference: reference, recount: recount, contaminant: contaminant}
}

// BuildRecountSketch builds the "freshly built case sketch over the much
// smaller novel-read corpus" referenced by spec.md §4.D(ii), inserting
// every canonical k-mer of every read emitted by Novel (not just the
// annotated novel k-mers, since recounting must reflect true abundance).
func BuildRecountSketch(k uint8, bytesBudget uint64, reads []*readstream.AugmentedRead) (*sketch.Sketch, error) {
	s, err := sketch.New(sketch.Options{K: k, H: 3, BytesBudget: bytesBudget, Kind: sketch.KindCount})
	if err != nil {
		return nil, err
	}
	for _, ar := range reads {
		it, err := kmer.NewIterator(ar.Seq, k)
		if err != nil {
			return nil, err
		}
		for {
			code, _, ok := it.Next()
			if !ok {
				break
			}
			s.Add(kmer.Canonical(code, k))
		}
	}
	return s, nil
}

// Apply re-validates ar's annotations in place and reports whether the read
// survives (has at least one annotation remaining).
func (rf *Refiner) Apply(ar *readstream.AugmentedRead) (survives bool) {
	kept := ar.NovelKmers[:0]
	for _, a := range ar.NovelKmers {
		if rf.reference != nil && rf.reference.Contains(a.Kmer) {
			rf.Stats.KmersMasked++
			continue
		}
		if rf.contaminant != nil && rf.contaminant.Contains(a.Kmer) {
			rf.Stats.KmersContaminant++
			continue
		}
		newCount := rf.recount.Count(a.Kmer)
		if newCount < rf.opts.CaseMin {
			rf.Stats.KmersBelowCaseMin++
			continue
		}
		a.CaseAbund = newCount
		kept = append(kept, a)
	}
	ar.NovelKmers = kept

	if len(ar.NovelKmers) == 0 {
		rf.Stats.ReadsDrained++
		return false
	}
	rf.Stats.ReadsOut++
	return true
}
