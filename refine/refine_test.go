package refine

import (
	"testing"

	"github.com/knovel/knovel/kmer"
	"github.com/knovel/knovel/readstream"
	"github.com/knovel/knovel/sketch"
)

func mustCanon(t *testing.T, s string) kmer.Code {
	c, err := kmer.Encode([]byte(s))
	if err != nil {
		t.Fatal(err)
	}
	return kmer.Canonical(c, uint8(len(s)))
}

func presenceSketch(t *testing.T, codes ...kmer.Code) *sketch.Sketch {
	s, err := sketch.New(sketch.Options{K: 11, H: 3, BytesBudget: 1 << 14, Kind: sketch.KindPresence})
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range codes {
		s.Add(c)
	}
	return s
}

func countSketch(t *testing.T, times int, codes ...kmer.Code) *sketch.Sketch {
	s, err := sketch.New(sketch.Options{K: 11, H: 3, BytesBudget: 1 << 14, Kind: sketch.KindCount})
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range codes {
		for i := 0; i < times; i++ {
			s.Add(c)
		}
	}
	return s
}

func TestRefineDropsReferenceMaskedKmer(t *testing.T) {
	c := mustCanon(t, "ACGTACGTACG")
	ref := presenceSketch(t, c)
	recount := countSketch(t, 10, c)

	rf := New(Options{K: 11, CaseMin: 1}, ref, recount, nil)
	ar := &readstream.AugmentedRead{
		Read:       readstream.Read{ID: []byte("r1")},
		NovelKmers: []readstream.KmerAnnotation{{Offset: 0, Kmer: c, CaseAbund: 10}},
	}
	if rf.Apply(ar) {
		t.Errorf("expected read to be fully drained by reference masking")
	}
	if rf.Stats.KmersMasked != 1 {
		t.Errorf("KmersMasked = %d, want 1", rf.Stats.KmersMasked)
	}
}

func TestRefineDropsBelowRecountedCaseMin(t *testing.T) {
	c := mustCanon(t, "ACGTACGTACG")
	recount := countSketch(t, 2, c) // below CaseMin

	rf := New(Options{K: 11, CaseMin: 5}, nil, recount, nil)
	ar := &readstream.AugmentedRead{
		Read:       readstream.Read{ID: []byte("r1")},
		NovelKmers: []readstream.KmerAnnotation{{Offset: 0, Kmer: c, CaseAbund: 10}},
	}
	if rf.Apply(ar) {
		t.Errorf("expected read to be drained by recounted case_min")
	}
}

func TestRefineKeepsSurvivingAnnotations(t *testing.T) {
	keep := mustCanon(t, "ACGTACGTACG")
	drop := mustCanon(t, "TTTTTTTTTTT")
	ref := presenceSketch(t, drop)
	recount := countSketch(t, 10, keep, drop)

	rf := New(Options{K: 11, CaseMin: 1}, ref, recount, nil)
	ar := &readstream.AugmentedRead{
		Read: readstream.Read{ID: []byte("r1")},
		NovelKmers: []readstream.KmerAnnotation{
			{Offset: 0, Kmer: keep, CaseAbund: 10},
			{Offset: 5, Kmer: drop, CaseAbund: 10},
		},
	}
	if !rf.Apply(ar) {
		t.Fatalf("expected read to survive with the remaining annotation")
	}
	if len(ar.NovelKmers) != 1 || ar.NovelKmers[0].Kmer != keep {
		t.Errorf("unexpected surviving annotations: %+v", ar.NovelKmers)
	}
}

func TestRefineIsIdempotentOnAlreadyCleanRead(t *testing.T) {
	c := mustCanon(t, "ACGTACGTACG")
	recount := countSketch(t, 10, c)
	rf := New(Options{K: 11, CaseMin: 1}, nil, recount, nil)

	ar := &readstream.AugmentedRead{
		Read:       readstream.Read{ID: []byte("r1")},
		NovelKmers: []readstream.KmerAnnotation{{Offset: 0, Kmer: c, CaseAbund: 10}},
	}
	rf.Apply(ar)
	again := ar.Clone()
	if !rf.Apply(again) {
		t.Errorf("expected a second refinement pass over already-clean annotations to still survive")
	}
}
