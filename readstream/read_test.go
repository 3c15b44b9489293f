package readstream

import (
	"io"
	"testing"
)

func TestCloneDoesNotAliasSlices(t *testing.T) {
	ar := &AugmentedRead{
		Read: Read{
			ID:  []byte("r1"),
			Seq: []byte("ACGT"),
		},
		NovelKmers: []KmerAnnotation{{Offset: 0, Kmer: 42, CaseAbund: 5}},
	}
	clone := ar.Clone()
	clone.Seq[0] = 'T'
	clone.NovelKmers[0].CaseAbund = 99

	if ar.Seq[0] != 'A' {
		t.Errorf("mutating clone.Seq leaked into original")
	}
	if ar.NovelKmers[0].CaseAbund != 5 {
		t.Errorf("mutating clone.NovelKmers leaked into original")
	}
}

func TestSourceNextReturnsEOFOnEmptyFileList(t *testing.T) {
	s := NewSource(nil)
	if _, err := s.Next(); err != io.EOF {
		t.Errorf("expected io.EOF from an empty source, got %v", err)
	}
}
