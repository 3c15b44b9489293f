// Package assemble implements the Assemble stage (spec.md §4.F): turning a
// partition of reads into one or more contigs, preferring a delegated
// external assembler and falling back to a homegrown greedy overlap walk.
package assemble

import (
	"sort"

	"github.com/knovel/knovel/partition"
	"github.com/knovel/knovel/readstream"
)

// Options configures an assembly pass.
type Options struct {
	K               int
	MinOverlap      int // must be >= K
	MinContigLength int
}

// Contig is an assembled sequence with its contributing read set and novel
// k-mer annotations projected onto contig coordinates.
type Contig struct {
	Seq          []byte
	SupportReads []string
	NovelKmers   []readstream.KmerAnnotation
}

// Assembler turns a partition into a set of contigs. The primary
// implementation delegates to an external de-Bruijn-graph assembler; the
// Fallback implementation is the homegrown greedy walk of spec.md §4.F.
type Assembler interface {
	Assemble(p *partition.Partition, opts Options) ([]*Contig, error)
}

// Delegate wraps an external de-Bruijn-graph assembler capability,
// configured to the same K as the rest of the pipeline (spec.md §4.F
// "primary path"). A production build wires a real library behind this
// narrow seam (spec.md §9); Fn is nil-safe so tests can exercise the
// fallback path without one.
type Delegate struct {
	Fn func(p *partition.Partition, opts Options) ([]*Contig, error)
}

// Assemble calls the delegate function if set, otherwise reports zero
// contigs so the caller falls back.
func (d *Delegate) Assemble(p *partition.Partition, opts Options) ([]*Contig, error) {
	if d.Fn == nil {
		return nil, nil
	}
	return d.Fn(p, opts)
}

// Run tries the primary delegate first and falls back to the greedy
// assembler when it returns zero contigs or an error (spec.md §4.F).
func Run(primary Assembler, p *partition.Partition, opts Options) ([]*Contig, error) {
	if primary != nil {
		if contigs, err := primary.Assemble(p, opts); err == nil && len(contigs) > 0 {
			return contigs, nil
		}
	}
	return (Fallback{}).Assemble(p, opts)
}

// Fallback is the homegrown greedy assembler used when the primary path
// returns zero contigs or fails.
type Fallback struct{}

// Assemble implements the greedy procedure of spec.md §4.F:
//  1. seed with the read carrying the most novel k-mers
//  2. repeatedly extend with the read offering the largest exact overlap
//     (>= K and >= MinOverlap) to either end, tie-broken by novel-k-mer
//     count then read id
//  3. stop when no candidate clears the overlap bar
//  4. emit contigs >= MinContigLength; unused reads may seed further contigs
func (Fallback) Assemble(p *partition.Partition, opts Options) ([]*Contig, error) {
	remaining := make([]*readstream.AugmentedRead, len(p.Reads))
	copy(remaining, p.Reads)

	var contigs []*Contig
	for len(remaining) > 0 {
		seedIdx := pickSeed(remaining)
		seed := remaining[seedIdx]
		remaining = removeAt(remaining, seedIdx)

		c := &contigState{
			seq:        append([]byte(nil), seed.Seq...),
			support:    []string{string(seed.ID)},
			novelKmers: projectAnnotations(seed.NovelKmers, 0),
		}

		for {
			idx, overlapLen, prepend := bestOverlap(c.seq, remaining, opts)
			if idx < 0 {
				break
			}
			r := remaining[idx]
			remaining = removeAt(remaining, idx)
			c.extend(r, overlapLen, prepend)
		}

		if len(c.seq) >= opts.MinContigLength {
			contigs = append(contigs, &Contig{
				Seq:          c.seq,
				SupportReads: c.support,
				NovelKmers:   c.novelKmers,
			})
		}
	}
	return contigs, nil
}

type contigState struct {
	seq        []byte
	support    []string
	novelKmers []readstream.KmerAnnotation
}

// extend appends or prepends r to the contig, sliding r's own novel-k-mer
// annotations onto the new contig coordinate space.
func (c *contigState) extend(r *readstream.AugmentedRead, overlapLen int, prepend bool) {
	c.support = append(c.support, string(r.ID))
	if prepend {
		newPrefixLen := len(r.Seq) - overlapLen
		c.novelKmers = shiftAnnotations(c.novelKmers, newPrefixLen)
		c.novelKmers = append(c.novelKmers, projectAnnotations(r.NovelKmers, 0)...)
		c.seq = append(append([]byte(nil), r.Seq[:newPrefixLen]...), c.seq...)
	} else {
		base := len(c.seq) - overlapLen
		c.novelKmers = append(c.novelKmers, projectAnnotations(r.NovelKmers, base)...)
		c.seq = append(c.seq, r.Seq[overlapLen:]...)
	}
	sortAnnotations(c.novelKmers)
}

func shiftAnnotations(annos []readstream.KmerAnnotation, delta int) []readstream.KmerAnnotation {
	out := make([]readstream.KmerAnnotation, len(annos))
	for i, a := range annos {
		a.Offset += delta
		out[i] = a
	}
	return out
}

func projectAnnotations(annos []readstream.KmerAnnotation, base int) []readstream.KmerAnnotation {
	return shiftAnnotations(annos, base)
}

func sortAnnotations(annos []readstream.KmerAnnotation) {
	sort.Slice(annos, func(i, j int) bool { return annos[i].Offset < annos[j].Offset })
}

// pickSeed returns the index of the read with the most novel k-mers,
// tie-broken by read id.
func pickSeed(reads []*readstream.AugmentedRead) int {
	best := 0
	for i := 1; i < len(reads); i++ {
		if len(reads[i].NovelKmers) > len(reads[best].NovelKmers) {
			best = i
			continue
		}
		if len(reads[i].NovelKmers) == len(reads[best].NovelKmers) &&
			string(reads[i].ID) < string(reads[best].ID) {
			best = i
		}
	}
	return best
}

// bestOverlap finds the candidate in remaining with the largest exact
// overlap to either end of contig, returning its index, the overlap
// length, and whether it extends the front (prepend) or the back.
// Returns idx < 0 if no candidate clears K/MinOverlap.
func bestOverlap(contig []byte, remaining []*readstream.AugmentedRead, opts Options) (idx, overlapLen int, prepend bool) {
	idx = -1
	bestNovel := -1
	var bestID string

	consider := func(i int, ov int, pre bool) {
		r := remaining[i]
		if ov < opts.K || ov < opts.MinOverlap {
			return
		}
		if ov > overlapLen ||
			(ov == overlapLen && len(r.NovelKmers) > bestNovel) ||
			(ov == overlapLen && len(r.NovelKmers) == bestNovel && (idx < 0 || string(r.ID) < bestID)) {
			idx, overlapLen, prepend = i, ov, pre
			bestNovel = len(r.NovelKmers)
			bestID = string(r.ID)
		}
	}

	for i, r := range remaining {
		consider(i, suffixPrefixOverlap(contig, r.Seq), false)
		consider(i, suffixPrefixOverlap(r.Seq, contig), true)
	}
	return idx, overlapLen, prepend
}

// suffixPrefixOverlap returns the length of the longest exact suffix of a
// that equals a prefix of b.
func suffixPrefixOverlap(a, b []byte) int {
	max := len(a)
	if len(b) < max {
		max = len(b)
	}
	for l := max; l > 0; l-- {
		if string(a[len(a)-l:]) == string(b[:l]) {
			return l
		}
	}
	return 0
}

func removeAt(reads []*readstream.AugmentedRead, i int) []*readstream.AugmentedRead {
	out := make([]*readstream.AugmentedRead, 0, len(reads)-1)
	out = append(out, reads[:i]...)
	out = append(out, reads[i+1:]...)
	return out
}
