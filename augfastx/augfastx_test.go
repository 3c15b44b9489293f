package augfastx

import (
	"bytes"
	"io"
	"testing"

	"github.com/knovel/knovel/kmer"
	"github.com/knovel/knovel/readstream"
)

func TestWriteReadRoundTrip(t *testing.T) {
	code, err := kmer.Encode([]byte("ACGTACGTACGTACGTACGTA"[:21]))
	if err != nil {
		t.Fatal(err)
	}
	canon := kmer.Canonical(code, 21)

	ar := &readstream.AugmentedRead{
		Read: readstream.Read{
			ID:        []byte("read1"),
			Seq:       []byte("ACGTACGTACGTACGTACGTAGGGGG"),
			Qualities: []byte("IIIIIIIIIIIIIIIIIIIIIIIIII"),
		},
		NovelKmers: []readstream.KmerAnnotation{
			{Offset: 0, Kmer: canon, CaseAbund: 12, CtrlAbunds: []uint16{0, 1}},
		},
	}

	var buf bytes.Buffer
	w := NewWriter(&buf, 21)
	if err := w.Write(ar); err != nil {
		t.Fatal(err)
	}

	r := NewReader(&buf, 21)
	got, label, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if label != "" {
		t.Errorf("expected no partition label, got %q", label)
	}
	if string(got.ID) != "read1" {
		t.Errorf("ID = %q", got.ID)
	}
	if string(got.Seq) != string(ar.Seq) {
		t.Errorf("Seq = %q, want %q", got.Seq, ar.Seq)
	}
	if len(got.NovelKmers) != 1 {
		t.Fatalf("expected 1 annotation, got %d", len(got.NovelKmers))
	}
	if got.NovelKmers[0].Kmer != canon {
		t.Errorf("kmer code mismatch after round trip")
	}
	if got.NovelKmers[0].CaseAbund != 12 {
		t.Errorf("CaseAbund = %d, want 12", got.NovelKmers[0].CaseAbund)
	}
	if len(got.NovelKmers[0].CtrlAbunds) != 2 || got.NovelKmers[0].CtrlAbunds[1] != 1 {
		t.Errorf("CtrlAbunds mismatch: %v", got.NovelKmers[0].CtrlAbunds)
	}

	if _, _, err := r.Next(); err != io.EOF {
		t.Errorf("expected io.EOF at end of stream, got %v", err)
	}
}

func TestPartitionHeaderIsSticky(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, 4)
	w.WritePartitionHeader("cc1")
	w.Write(&readstream.AugmentedRead{Read: readstream.Read{ID: []byte("a"), Seq: []byte("ACGT")}})
	w.Write(&readstream.AugmentedRead{Read: readstream.Read{ID: []byte("b"), Seq: []byte("TGCA")}})
	w.WritePartitionHeader("cc2")
	w.Write(&readstream.AugmentedRead{Read: readstream.Read{ID: []byte("c"), Seq: []byte("GGGG")}})

	r := NewReader(&buf, 4)
	_, label1, err := r.Next()
	if err != nil || label1 != "cc1" {
		t.Fatalf("read a: label=%q err=%v", label1, err)
	}
	_, label2, err := r.Next()
	if err != nil || label2 != "cc1" {
		t.Fatalf("read b: label=%q err=%v", label2, err)
	}
	_, label3, err := r.Next()
	if err != nil || label3 != "cc2" {
		t.Fatalf("read c: label=%q err=%v", label3, err)
	}
}

func TestMalformedRecordIsSkippedAndCounted(t *testing.T) {
	input := "not a valid record\n@good\nACGT\n+\nIIII\n#\n"
	r := NewReader(bytes.NewBufferString(input), 4)
	got, _, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if string(got.ID) != "good" {
		t.Errorf("ID = %q, want good", got.ID)
	}
	if r.MalformedCount() != 1 {
		t.Errorf("MalformedCount() = %d, want 1", r.MalformedCount())
	}
}

func TestPartitionFileName(t *testing.T) {
	got := PartitionFileName("sample", 3)
	want := "sample.cc3.augfastq.gz"
	if got != want {
		t.Errorf("PartitionFileName = %q, want %q", got, want)
	}
}

func TestFastaRecordWithoutQuality(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, 4)
	w.Write(&readstream.AugmentedRead{Read: readstream.Read{ID: []byte("x"), Seq: []byte("ACGT")}})

	r := NewReader(&buf, 4)
	got, _, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Qualities) != 0 {
		t.Errorf("expected no qualities for FASTA input")
	}
}
