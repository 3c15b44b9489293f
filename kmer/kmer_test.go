package kmer

import (
	"bytes"
	"testing"
)

func TestCanonicalMatchesStringRevComp(t *testing.T) {
	cases := []string{
		"ACGTACGTA",
		"TTTTTTTTT",
		"GATTACAGA345", // trailing junk trimmed below
	}
	for _, s := range cases {
		s = s[:9]
		code, err := Encode([]byte(s))
		if err != nil {
			t.Fatalf("encode %s: %v", s, err)
		}
		k := uint8(len(s))

		canon := Canonical(code, k)
		decoded := Decode(canon, int(k))

		rc := reverseComplementString(s)
		want := s
		if rc < want {
			want = rc
		}
		if !bytes.Equal(decoded, []byte(want)) {
			t.Errorf("Canonical(%s) = %s, want %s", s, decoded, want)
		}
	}
}

func TestCanonicalInvolution(t *testing.T) {
	code, _ := Encode([]byte("ACGTACGTACGTACGTACGTACGTACGTACGT"[:25]))
	k := uint8(25)
	c1 := Canonical(code, k)
	c2 := Canonical(c1, k)
	if c1 != c2 {
		t.Errorf("canonical form is not a fixed point: %d != %d", c1, c2)
	}
	rc := RevComp(c1, k)
	if Canonical(rc, k) != c1 {
		t.Errorf("canonical(revcomp(k)) != canonical(k)")
	}
}

func TestIteratorSkipsAmbiguousBases(t *testing.T) {
	seq := []byte("ACGTNACGTACGT")
	it, err := NewIterator(seq, 4)
	if err != nil {
		t.Fatal(err)
	}
	var n int
	for {
		_, _, ok := it.Next()
		if !ok {
			break
		}
		n++
	}
	// windows spanning the N are skipped: offsets 0 ("ACGT") survives,
	// 1..4 contain the N, 5 onward ("ACGT...") are clean.
	if n == 0 {
		t.Errorf("expected at least one clean k-mer window")
	}
}

func TestIteratorShorterThanKYieldsNothing(t *testing.T) {
	it, err := NewIterator([]byte("ACG"), 25)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, ok := it.Next(); ok {
		t.Errorf("expected no k-mers for a read shorter than K")
	}
}

func TestIsLowComplexityHomopolymer(t *testing.T) {
	code, _ := Encode([]byte("AAAAAAAAAAAAAAAAAAAAAAAAA"[:25]))
	if !IsLowComplexity(code, 25) {
		t.Errorf("expected a homopolymer run to be flagged low-complexity")
	}
}

func TestIsLowComplexityDiverse(t *testing.T) {
	code, _ := Encode([]byte("ACGTACGGTTCAGTAGCTAGCTAGC"[:25]))
	if IsLowComplexity(code, 25) {
		t.Errorf("expected a diverse 25-mer to not be flagged low-complexity")
	}
}

func reverseComplementString(s string) string {
	comp := map[byte]byte{'A': 'T', 'C': 'G', 'G': 'C', 'T': 'A'}
	b := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		b[len(s)-1-i] = comp[s[i]]
	}
	return string(b)
}
