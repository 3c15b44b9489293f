package novel

import (
	"testing"

	"github.com/knovel/knovel/kmer"
	"github.com/knovel/knovel/readstream"
	"github.com/knovel/knovel/sketch"
)

func buildSketch(t *testing.T, k uint8, seqs []string, times int) *sketch.Sketch {
	s, err := sketch.New(sketch.Options{K: k, H: 3, BytesBudget: 1 << 16, Kind: sketch.KindCount})
	if err != nil {
		t.Fatal(err)
	}
	for _, seq := range seqs {
		it, err := kmer.NewIterator([]byte(seq), k)
		if err != nil {
			t.Fatal(err)
		}
		for {
			code, _, ok := it.Next()
			if !ok {
				break
			}
			canon := kmer.Canonical(code, k)
			for i := 0; i < times; i++ {
				s.Add(canon)
			}
		}
	}
	return s
}

func TestNovelEmitsOnlyAbundantCaseRareControlKmers(t *testing.T) {
	k := uint8(11)
	read := "ACGTACGTACGTACGTACGTA"
	caseS := buildSketch(t, k, []string{read}, 20)
	ctrlS := buildSketch(t, k, []string{}, 0)

	f := New(Options{K: int(k), CaseMin: 10, CtrlMax: 0}, caseS, []*sketch.Sketch{ctrlS})
	ar, ok, err := f.filterOne(&readstream.Read{ID: []byte("r1"), Seq: []byte(read)})
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatalf("expected read to survive the novelty test")
	}
	if len(ar.NovelKmers) == 0 {
		t.Errorf("expected at least one novel k-mer annotation")
	}
}

func TestNovelDropsReadPresentInControl(t *testing.T) {
	k := uint8(11)
	read := "ACGTACGTACGTACGTACGTA"
	caseS := buildSketch(t, k, []string{read}, 20)
	ctrlS := buildSketch(t, k, []string{read}, 20)

	f := New(Options{K: int(k), CaseMin: 10, CtrlMax: 0}, caseS, []*sketch.Sketch{ctrlS})
	_, ok, err := f.filterOne(&readstream.Read{ID: []byte("r1"), Seq: []byte(read)})
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Errorf("expected read carrying only control-abundant k-mers to be dropped")
	}
}

func TestAbundScreenDropsEntireRead(t *testing.T) {
	k := uint8(11)
	read := "ACGGTCAATGCCTAGTTACGA"
	caseS := buildSketch(t, k, []string{read}, 2) // abundance 2, below screen
	ctrlS := buildSketch(t, k, []string{}, 0)

	f := New(Options{K: int(k), CaseMin: 1, CtrlMax: 0, AbundScreen: 5}, caseS, []*sketch.Sketch{ctrlS})
	_, ok, err := f.filterOne(&readstream.Read{ID: []byte("r1"), Seq: []byte(read)})
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Errorf("expected read to be screened out entirely")
	}
	if f.Stats.ReadsScreened != 1 {
		t.Errorf("ReadsScreened = %d, want 1", f.Stats.ReadsScreened)
	}
}

func TestAllAmbiguousReadYieldsNoAnnotations(t *testing.T) {
	k := uint8(11)
	caseS := buildSketch(t, k, []string{}, 0)
	ctrlS := buildSketch(t, k, []string{}, 0)

	f := New(Options{K: int(k), CaseMin: 1, CtrlMax: 0}, caseS, []*sketch.Sketch{ctrlS})
	_, ok, err := f.filterOne(&readstream.Read{ID: []byte("r1"), Seq: []byte("NNNNNNNNNNN")})
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Errorf("expected all-ambiguous read to be dropped silently")
	}
	if f.Stats.ReadsAllAmbig != 1 {
		t.Errorf("ReadsAllAmbig = %d, want 1", f.Stats.ReadsAllAmbig)
	}
}
