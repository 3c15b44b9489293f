// Package kmer implements canonical k-mer encoding and iteration over DNA
// sequences. A k-mer's canonical form is the lexicographic minimum of itself
// and its reverse complement (spec.md §3), matching the string-level
// definition used by the reference implementation this pipeline is modeled
// on (kevlar.revcommin: sorted((seq, rc))[0]).
package kmer

import (
	"fmt"

	"github.com/shenwei356/kmers"
)

// MaxK is the largest k-mer size a single uint64 code can hold (2 bits/base).
const MaxK = 32

// ErrKTooLarge is returned when K exceeds MaxK.
var ErrKTooLarge = fmt.Errorf("kmer: K must be in [1, %d]", MaxK)

// Code is a 2-bit-packed encoding of a k-mer, right-aligned in a uint64.
type Code = uint64

// Base order follows github.com/shenwei356/kmers: A=0, C=1, G=2, T=3.
// Complement: A<->T (0<->3), C<->G (1<->2).
var complement = [4]uint8{3, 2, 1, 0}

// Encode packs a DNA byte sequence into a 2-bit code. It delegates to
// github.com/shenwei356/kmers, the teacher's own k-mer codec dependency.
func Encode(seq []byte) (Code, error) {
	return kmers.Encode(seq)
}

// Decode unpacks a k-mer code of length k back into a byte slice.
func Decode(code Code, k int) []byte {
	return kmers.MustDecode(code, k)
}

// RevComp returns the reverse complement of a k-mer code of length k.
func RevComp(code Code, k uint8) Code {
	var rc Code
	var i uint8
	c := code
	for i = 0; i < k; i++ {
		rc = (rc << 2) | Code(complement[c&3])
		c >>= 2
	}
	return rc
}

// Canonical returns the lexicographic minimum of code and its reverse
// complement. This is the only form Sketch, Novel, Filter, and Partition
// ever store or compare (spec.md invariant: canonical(k) == canonical(revcomp(k))).
func Canonical(code Code, k uint8) Code {
	rc := RevComp(code, k)
	if rc < code {
		return rc
	}
	return code
}

// Iterator yields canonical k-mers and their start offsets from a DNA
// sequence, skipping any k-mer window that contains an ambiguous base (N or
// any non-ACGT byte), per spec.md §4.B/§8 ("reads with any N split at that
// position").
type Iterator struct {
	seq []byte
	k   uint8
	pos int
}

// NewIterator creates an Iterator over seq for k-mers of length k.
func NewIterator(seq []byte, k uint8) (*Iterator, error) {
	if k == 0 || k > MaxK {
		return nil, ErrKTooLarge
	}
	return &Iterator{seq: seq, k: k, pos: 0}, nil
}

var base2bit = [256]int8{}

func init() {
	for i := range base2bit {
		base2bit[i] = -1
	}
	base2bit['A'], base2bit['a'] = 0, 0
	base2bit['C'], base2bit['c'] = 1, 1
	base2bit['G'], base2bit['g'] = 2, 2
	base2bit['T'], base2bit['t'] = 3, 3
}

// Next returns the next canonical k-mer and its 0-based offset in the
// original sequence. ok is false once the sequence is exhausted.
func (it *Iterator) Next() (code Code, offset int, ok bool) {
	k := int(it.k)
	n := len(it.seq)

	for it.pos+k <= n {
		start := it.pos
		var c Code
		valid := true
		for i := 0; i < k; i++ {
			b := base2bit[it.seq[start+i]]
			if b < 0 {
				valid = false
				// Resume scanning right after the ambiguous base.
				it.pos = start + i + 1
				break
			}
			c = (c << 2) | Code(b)
		}
		if !valid {
			continue
		}
		it.pos = start + 1
		return Canonical(c, it.k), start, true
	}
	return 0, 0, false
}

// HasAmbiguous reports whether seq contains any non-ACGT byte.
func HasAmbiguous(seq []byte) bool {
	for _, b := range seq {
		if base2bit[b] < 0 {
			return true
		}
	}
	return false
}

// CountKmers returns the number of k-mer windows (ignoring ambiguous bases)
// obtainable from a sequence of the given length.
func CountKmers(seqLen int, k uint8) int {
	n := seqLen - int(k) + 1
	if n < 0 {
		return 0
	}
	return n
}
