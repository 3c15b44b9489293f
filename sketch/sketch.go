// Package sketch implements the probabilistic k-mer abundance sketches
// described in spec.md §4.A: a Count-Min-style counting sketch and a
// presence-only (Bloom) variant, both sized to a byte budget and built with
// two independent 64-bit hash functions combined as h1 + i*h2.
//
// The binary layout (magic, version, K/H/W header, raw cells) follows the
// teacher's genome-file framing in lexicmap/cmd/genome/genome.go: a magic
// number (here the 4 bytes "KVSK"), a small fixed header written
// little-endian with bufio, then raw payload bytes.
package sketch

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/dgryski/go-farm"
	"github.com/minio/highwayhash"
	"github.com/pkg/errors"
	"github.com/willf/bitset"

	"github.com/knovel/knovel/kmer"
)

// Kind distinguishes a saturating counting sketch from a presence-only one.
type Kind uint8

const (
	// KindCount is a Count-Min sketch: Add saturates, Count returns the min
	// across H rows.
	KindCount Kind = iota
	// KindPresence is a 1-bit-per-cell Bloom filter: Add sets bits, Count
	// returns 0 or 1, Contains is "all H bits set".
	KindPresence
)

var magic = [4]byte{'K', 'V', 'S', 'K'}

const version uint8 = 1

// ErrMagic is returned when a file does not start with the sketch magic
// number. Per spec.md §7, an unreadable magic/version is fatal.
var ErrMagic = errors.New("sketch: bad magic number, not a sketch file")

// ErrVersion is returned for a sketch file written by an incompatible
// version of this program.
var ErrVersion = errors.New("sketch: incompatible version")

// ErrKMismatch is returned when two sketches (or a sketch and a query) were
// built with different K. Per spec.md §3/§7, this is fatal: "reusing a
// sketch with a different K is an error."
var ErrKMismatch = errors.New("sketch: K mismatch")

// highwayKey is a fixed key for the secondary hash function. It need not be
// secret: it only has to be independent of the primary (farm) hash family.
var highwayKey = [32]byte{
	0x4b, 0x4e, 0x4f, 0x56, 0x45, 0x4c, 0x2d, 0x53,
	0x4b, 0x45, 0x54, 0x43, 0x48, 0x2d, 0x48, 0x32,
	0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
	0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10,
}

// CountCeiling bounds how high a Count-Min cell may saturate. The spec
// allows 255 or 65535; 65535 (uint16 cells) gives useful headroom for high
// -coverage samples without doubling sketch size versus uint8.
const CountCeiling = 65535

// Sketch is a Count-Min/Bloom abundance sketch over canonical k-mers.
type Sketch struct {
	k    uint8
	h    uint8
	w    uint64 // width of each of the H tables, in cells
	kind Kind

	cells []uint16     // used when kind == KindCount, length h*w
	bits  *bitset.BitSet // used when kind == KindPresence, length h*w

	n uint64 // number of Add calls, for FPR estimation
}

// Options configures a new Sketch.
type Options struct {
	K         uint8
	H         uint8 // number of hash tables; spec default is small, e.g. 2-4
	BytesBudget uint64 // total memory budget in bytes
	Kind      Kind
}

// primeAtLeast returns the smallest prime >= n, used to pick table width so
// that the two hash families don't alias against a power-of-two modulus.
func primeAtLeast(n uint64) uint64 {
	if n < 2 {
		return 2
	}
	if n%2 == 0 {
		n++
	}
	for !isPrime(n) {
		n += 2
	}
	return n
}

func isPrime(n uint64) bool {
	if n < 2 {
		return false
	}
	if n%2 == 0 {
		return n == 2
	}
	for d := uint64(3); d*d <= n; d += 2 {
		if n%d == 0 {
			return false
		}
	}
	return true
}

// New creates a Sketch sized to approximately opts.BytesBudget bytes.
func New(opts Options) (*Sketch, error) {
	if opts.K == 0 || opts.K > kmer.MaxK {
		return nil, kmer.ErrKTooLarge
	}
	if opts.H == 0 {
		opts.H = 2
	}

	var bytesPerCell uint64 = 2 // uint16 counting cell
	if opts.Kind == KindPresence {
		bytesPerCell = 0 // computed in bits below
	}

	var w uint64
	if opts.Kind == KindPresence {
		totalBits := opts.BytesBudget * 8
		w = primeAtLeast(totalBits / uint64(opts.H))
	} else {
		w = primeAtLeast(opts.BytesBudget / (uint64(opts.H) * bytesPerCell))
	}
	if w == 0 {
		w = 2
	}

	s := &Sketch{k: opts.K, h: opts.H, w: w, kind: opts.Kind}
	switch opts.Kind {
	case KindCount:
		s.cells = make([]uint16, uint64(opts.H)*w)
	case KindPresence:
		s.bits = bitset.New(uint(uint64(opts.H) * w))
	default:
		return nil, fmt.Errorf("sketch: unknown kind %d", opts.Kind)
	}
	return s, nil
}

// K returns the k-mer length this sketch was built for.
func (s *Sketch) K() uint8 { return s.k }

// Kind returns whether this is a counting or presence-only sketch.
func (s *Sketch) Kind() Kind { return s.kind }

func (s *Sketch) hashes(code kmer.Code) (h1, h2 uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], code)
	h1 = farm.Hash64(buf[:])
	h2 = mustHighwayHash64(buf[:])
	return
}

// mustHighwayHash64 hashes data with the fixed 32-byte key above. The key is
// a compile-time constant of the right length, so New64 can never fail here.
func mustHighwayHash64(data []byte) uint64 {
	h, err := highwayhash.New64(highwayKey[:])
	if err != nil {
		panic(err)
	}
	h.Write(data)
	return h.Sum64()
}

func (s *Sketch) cellIndex(table uint8, h1, h2 uint64) uint64 {
	combined := h1 + uint64(table)*h2
	return combined % s.w
}

// Add inserts a canonical k-mer into the sketch, saturating at CountCeiling
// for counting sketches or setting all H bits for presence sketches.
func (s *Sketch) Add(code kmer.Code) {
	h1, h2 := s.hashes(code)
	s.n++
	var t uint8
	for t = 0; t < s.h; t++ {
		idx := uint64(t)*s.w + s.cellIndex(t, h1, h2)
		switch s.kind {
		case KindCount:
			if s.cells[idx] < CountCeiling {
				s.cells[idx]++
			}
		case KindPresence:
			s.bits.Set(uint(idx))
		}
	}
}

// Count returns the estimated abundance of a canonical k-mer: the minimum
// across the H rows for a counting sketch, or 0/1 for a presence sketch
// (1 iff Contains would return true).
func (s *Sketch) Count(code kmer.Code) uint16 {
	h1, h2 := s.hashes(code)
	switch s.kind {
	case KindCount:
		var min uint16 = CountCeiling
		var t uint8
		for t = 0; t < s.h; t++ {
			idx := uint64(t)*s.w + s.cellIndex(t, h1, h2)
			if s.cells[idx] < min {
				min = s.cells[idx]
			}
		}
		return min
	case KindPresence:
		if s.contains(h1, h2) {
			return 1
		}
		return 0
	}
	return 0
}

// Contains reports whether every one of the H cells for this k-mer has ever
// been set (false positives are possible, false negatives are not).
func (s *Sketch) Contains(code kmer.Code) bool {
	h1, h2 := s.hashes(code)
	return s.contains(h1, h2)
}

func (s *Sketch) contains(h1, h2 uint64) bool {
	var t uint8
	for t = 0; t < s.h; t++ {
		idx := uint64(t)*s.w + s.cellIndex(t, h1, h2)
		switch s.kind {
		case KindCount:
			if s.cells[idx] == 0 {
				return false
			}
		case KindPresence:
			if !s.bits.Test(uint(idx)) {
				return false
			}
		}
	}
	return true
}

// AddCascaded inserts code only if it is already present in parent, the
// sketch of sample 0 (spec.md §4.A "Cascaded sizing"). This preserves "any
// k-mer missing from sample 0 is missing from all" while letting downstream
// sketches be drastically smaller: fraction f is advisory sizing guidance for
// callers picking BytesBudget, not enforced here.
func (s *Sketch) AddCascaded(code kmer.Code, parent *Sketch) error {
	if parent.k != s.k {
		return ErrKMismatch
	}
	if !parent.Contains(code) {
		return nil
	}
	s.Add(code)
	return nil
}

// EstimatedFPR estimates the sketch's false-positive rate from its observed
// fill ratio, per spec.md §4.A: (1 - e^(-n/W))^H per table, reported as the
// max across tables (the more pessimistic figure for a consumer deciding
// whether to trust a count).
func (s *Sketch) EstimatedFPR() float64 {
	if s.n == 0 {
		return 0
	}
	var worst float64
	var t uint8
	for t = 0; t < s.h; t++ {
		fill := s.fillRatio(t)
		fpr := math.Pow(fill, float64(s.h))
		if fpr > worst {
			worst = fpr
		}
	}
	return worst
}

func (s *Sketch) fillRatio(table uint8) float64 {
	var occupied uint64
	start := uint64(table) * s.w
	switch s.kind {
	case KindCount:
		for i := uint64(0); i < s.w; i++ {
			if s.cells[start+i] > 0 {
				occupied++
			}
		}
	case KindPresence:
		for i := uint64(0); i < s.w; i++ {
			if s.bits.Test(uint(start + i)) {
				occupied++
			}
		}
	}
	return float64(occupied) / float64(s.w)
}

// Row returns a copy of one hash table's raw counting cells, 0 <= table <
// H. It has no meaning for a presence-only sketch (returns nil). Row 0 is a
// usable proxy for the sample's abundance histogram (spec.md §4.I): every
// insertion touches every row, so row 0 carries the same multiset of
// per-k-mer counts as any other row up to independent hash collisions.
func (s *Sketch) Row(table uint8) []uint16 {
	if s.kind != KindCount || table >= s.h {
		return nil
	}
	start := uint64(table) * s.w
	out := make([]uint16, s.w)
	copy(out, s.cells[start:start+s.w])
	return out
}

// header is the fixed-size binary header written to every sketch file,
// mirroring genome.go's "magic + small metadata block" convention with a
// 4-byte magic.
type header struct {
	Magic       [4]byte
	Version     uint8
	Kind        uint8
	K           uint8
	H           uint8
	W           uint64
	CountCeil   uint32
}

// Save serializes the sketch to file, little-endian: a 20-byte header
// (4-byte magic, u8 version, u8 kind, u8 K, u8 H, u64 W, u32 count
// ceiling), then for a counting sketch its H*W uint16 cells, or for a
// presence sketch a u64 word count followed by the bitset's u64 words.
func (s *Sketch) Save(path string) error {
	fh, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "sketch: create")
	}
	defer fh.Close()

	w := bufio.NewWriterSize(fh, 1<<16)

	if _, err := w.Write(magic[:]); err != nil {
		return err
	}
	hdr := header{Version: version, Kind: uint8(s.kind), K: s.k, H: s.h, W: s.w, CountCeil: CountCeiling}
	if err := binary.Write(w, binary.LittleEndian, hdr.Version); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, hdr.Kind); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, hdr.K); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, hdr.H); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, hdr.W); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, hdr.CountCeil); err != nil {
		return err
	}

	switch s.kind {
	case KindCount:
		if err := binary.Write(w, binary.LittleEndian, s.cells); err != nil {
			return err
		}
	case KindPresence:
		raw := s.bits.Bytes()
		if err := binary.Write(w, binary.LittleEndian, uint64(len(raw))); err != nil {
			return err
		}
		for _, word := range raw {
			if err := binary.Write(w, binary.LittleEndian, word); err != nil {
				return err
			}
		}
	}

	return w.Flush()
}

// Load reads a sketch previously written by Save. A bad magic number or
// unsupported version is a fatal error per spec.md §7.
func Load(path string) (*Sketch, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "sketch: open")
	}
	defer fh.Close()

	r := bufio.NewReaderSize(fh, 1<<16)

	var gotMagic [4]byte
	if _, err := r.Read(gotMagic[:]); err != nil {
		return nil, errors.Wrap(err, "sketch: reading magic")
	}
	if gotMagic != magic {
		return nil, ErrMagic
	}

	var hdr header
	if err := binary.Read(r, binary.LittleEndian, &hdr.Version); err != nil {
		return nil, err
	}
	if hdr.Version != version {
		return nil, ErrVersion
	}
	if err := binary.Read(r, binary.LittleEndian, &hdr.Kind); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &hdr.K); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &hdr.H); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &hdr.W); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &hdr.CountCeil); err != nil {
		return nil, err
	}

	s := &Sketch{k: hdr.K, h: hdr.H, w: hdr.W, kind: Kind(hdr.Kind)}
	switch s.kind {
	case KindCount:
		s.cells = make([]uint16, uint64(hdr.H)*hdr.W)
		if err := binary.Read(r, binary.LittleEndian, s.cells); err != nil {
			return nil, errors.Wrap(err, "sketch: reading cells")
		}
	case KindPresence:
		var nWords uint64
		if err := binary.Read(r, binary.LittleEndian, &nWords); err != nil {
			return nil, err
		}
		words := make([]uint64, nWords)
		for i := range words {
			if err := binary.Read(r, binary.LittleEndian, &words[i]); err != nil {
				return nil, errors.Wrap(err, "sketch: reading bits")
			}
		}
		bs := bitset.From(words)
		s.bits = bs
	default:
		return nil, fmt.Errorf("sketch: unknown kind %d in file", s.kind)
	}

	return s, nil
}

// Stats groups the counters the Count stage reports (spec.md §4.B: "reports
// reads processed, k-mers stored, and estimated FPR"). cmd/count.go keeps
// these counts in local variables and does not fill in a Stats value.
type Stats struct {
	ReadsProcessed uint64
	KmersStored    uint64
	EstimatedFPR   float64
}
