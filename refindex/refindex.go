// Package refindex implements the reference k-mer seed index and the
// Localize stage (spec.md §4.G): extracting seeds from a contig, looking
// them up in a precomputed reference index, and clustering hits into
// candidate reference windows.
package refindex

import (
	"github.com/rdleal/intervalst/interval"

	"github.com/knovel/knovel/kmer"
)

// SeedHit is one occurrence of a seed k-mer in the reference.
type SeedHit struct {
	SeqID string
	Pos   int
}

// Index maps canonical seed k-mers to their reference occurrences.
type Index struct {
	K    uint8
	hits map[kmer.Code][]SeedHit
}

// BuildIndex decomposes every reference sequence into canonical k-mers of
// length k, recording the (seqid, position) of every occurrence.
func BuildIndex(refs map[string][]byte, k uint8) (*Index, error) {
	idx := &Index{K: k, hits: make(map[kmer.Code][]SeedHit)}
	for seqID, seq := range refs {
		it, err := kmer.NewIterator(seq, k)
		if err != nil {
			return nil, err
		}
		for {
			code, offset, ok := it.Next()
			if !ok {
				break
			}
			canon := kmer.Canonical(code, k)
			idx.hits[canon] = append(idx.hits[canon], SeedHit{SeqID: seqID, Pos: offset})
		}
	}
	return idx, nil
}

// Lookup returns every reference occurrence of a canonical seed k-mer.
func (idx *Index) Lookup(code kmer.Code) []SeedHit {
	return idx.hits[code]
}

// ContigSeed is one seed k-mer extracted from a contig for lookup.
type ContigSeed struct {
	Offset int
	Kmer   kmer.Code
}

// ExtractSeeds emits canonical seed k-mers from seq at the given spacing,
// deduplicated by k-mer value (only the first occurrence's offset is kept)
// before any reference lookup happens, the "unique-kmer dedup before seed
// lookup" contract kevlar's localize.py follows.
func ExtractSeeds(seq []byte, seedSize uint8, spacing int) ([]ContigSeed, error) {
	if spacing < 1 {
		spacing = 1
	}
	it, err := kmer.NewIterator(seq, seedSize)
	if err != nil {
		return nil, err
	}
	seen := make(map[kmer.Code]bool)
	var seeds []ContigSeed
	nextWanted := 0
	for {
		code, offset, ok := it.Next()
		if !ok {
			break
		}
		if offset < nextWanted {
			continue
		}
		nextWanted = offset + spacing
		canon := kmer.Canonical(code, seedSize)
		if seen[canon] {
			continue
		}
		seen[canon] = true
		seeds = append(seeds, ContigSeed{Offset: offset, Kmer: canon})
	}
	return seeds, nil
}

// Window is a candidate reference interval implicated by a contig.
type Window struct {
	SeqID string
	Start int // may be negative; clamp at extraction time
	End   int // may exceed sequence length; clamp at extraction time
}

// Options configures a Localize pass.
type Options struct {
	SeedSize uint8
	Spacing  int
	DeltaL   int // cluster band width
	Pad      int
}

func cmpInt(x, y int) int { return x - y }

// Localize performs spec.md §4.G steps 1-4: extract seeds at spacing s,
// look each up in idx, cluster same-seqid hits within DeltaL of one
// another, and emit one window per cluster. A contig producing no
// clusters yields (nil, false) — the "no reference match" condition.
func Localize(contig []byte, idx *Index, opts Options) ([]Window, bool, error) {
	seeds, err := ExtractSeeds(contig, opts.SeedSize, opts.Spacing)
	if err != nil {
		return nil, false, err
	}

	bySeq := make(map[string][]int)
	for _, s := range seeds {
		for _, hit := range idx.Lookup(s.Kmer) {
			bySeq[hit.SeqID] = append(bySeq[hit.SeqID], hit.Pos)
		}
	}

	var windows []Window
	for seqID, positions := range bySeq {
		for _, c := range clusterPositions(positions, opts.DeltaL) {
			windows = append(windows, Window{
				SeqID: seqID,
				Start: c.min - opts.Pad,
				End:   c.max + len(contig) + opts.Pad,
			})
		}
	}
	return windows, len(windows) > 0, nil
}

type band struct{ min, max int }

// clusterPositions groups positions within deltaL of an existing cluster's
// band, using an interval search tree to find the touching cluster in
// O(log n) rather than an O(n^2) pairwise scan.
func clusterPositions(positions []int, deltaL int) []band {
	tree := interval.NewSearchTree[int, int](cmpInt)
	var clusters []*band

	for _, p := range positions {
		if idx, ok := tree.AnyIntersection(p-deltaL, p+deltaL); ok {
			c := clusters[idx]
			if p < c.min {
				c.min = p
			}
			if p > c.max {
				c.max = p
			}
			tree.Insert(c.min-deltaL, c.max+deltaL, idx)
			continue
		}
		c := &band{min: p, max: p}
		clusters = append(clusters, c)
		tree.Insert(p-deltaL, p+deltaL, len(clusters)-1)
	}

	out := make([]band, len(clusters))
	for i, c := range clusters {
		out[i] = *c
	}
	return out
}

// ExtractRegion returns the bounded slice of ref covered by w, clamping to
// [0, len(ref)) at extraction time. Localize itself never bounds-checks a
// proposed window; only ExtractRegion does, mirroring kevlar's
// select_region/extract_region two-step contract.
func ExtractRegion(ref []byte, w Window) []byte {
	start, end := w.Start, w.End
	if start < 0 {
		start = 0
	}
	if end > len(ref) {
		end = len(ref)
	}
	if start >= end {
		return nil
	}
	return ref[start:end]
}
