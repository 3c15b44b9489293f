// Package partition implements the Partition stage (spec.md §4.E): grouping
// surviving reads into connected components by shared novel k-mers, via an
// inverted index and union-find rather than an explicit adjacency graph.
package partition

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/golang/snappy"

	"github.com/knovel/knovel/kmer"
	"github.com/knovel/knovel/readstream"
)

// Options configures a partitioning pass.
type Options struct {
	// MinSharedKmers prunes an edge between two reads whose supporting
	// shared-k-mer set is smaller than this value. 0 or 1 disables
	// pruning and takes the cheaper chained-union fast path.
	MinSharedKmers int
}

// Partition is one connected component of reads, after intra-component
// duplicate-sequence collapsing, labeled for output (spec.md §4.E:
// "labeled stream of partitions in descending size order").
type Partition struct {
	Label string
	Reads []*readstream.AugmentedRead
}

// Stats accumulates run counters for the run summary (spec.md §7).
type Stats struct {
	ReadsIn         int
	PartitionsOut   int
	DuplicatesDropped int
}

type pairKey struct{ a, b int }

func makePairKey(a, b int) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a, b}
}

type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.rank[ra] < uf.rank[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	if uf.rank[ra] == uf.rank[rb] {
		uf.rank[ra]++
	}
}

// Build groups reads into connected components sharing novel k-mers,
// deduplicates identical (or canonically-identical) sequences within each
// component, and returns partitions sorted descending by size with a
// lexicographic-on-smallest-read-id tie-break (spec.md §4.E).
func Build(reads []*readstream.AugmentedRead, opts Options) ([]*Partition, Stats) {
	stats := Stats{ReadsIn: len(reads)}

	index := make(map[kmer.Code][]int)
	for i, r := range reads {
		for _, a := range r.NovelKmers {
			index[a.Kmer] = append(index[a.Kmer], i)
		}
	}

	uf := newUnionFind(len(reads))

	if opts.MinSharedKmers <= 1 {
		for _, ids := range index {
			for j := 1; j < len(ids); j++ {
				uf.union(ids[0], ids[j])
			}
		}
	} else {
		weight := make(map[pairKey]int)
		for _, ids := range index {
			for i := 0; i < len(ids); i++ {
				for j := i + 1; j < len(ids); j++ {
					weight[makePairKey(ids[i], ids[j])]++
				}
			}
		}
		for pk, w := range weight {
			if w >= opts.MinSharedKmers {
				uf.union(pk.a, pk.b)
			}
		}
	}

	components := make(map[int][]int)
	for i := range reads {
		root := uf.find(i)
		components[root] = append(components[root], i)
	}

	var partitions []*Partition
	for _, memberIdx := range components {
		sort.Ints(memberIdx)
		kept := dedup(reads, memberIdx, &stats)
		partitions = append(partitions, &Partition{Reads: kept})
	}

	sort.Slice(partitions, func(i, j int) bool {
		pi, pj := partitions[i], partitions[j]
		if len(pi.Reads) != len(pj.Reads) {
			return len(pi.Reads) > len(pj.Reads)
		}
		return string(smallestID(pi.Reads)) < string(smallestID(pj.Reads))
	})
	for i, p := range partitions {
		p.Label = fmt.Sprintf("cc%d", i+1)
	}

	stats.PartitionsOut = len(partitions)
	return partitions, stats
}

// WriteIndexSnapshot serializes the novel-kmer inverted index (kmer code
// -> read index) built from reads as a snappy-compressed stream of
// (kmer, read index) pairs, so a very large partitioning run's index can
// be archived or inspected without rebuilding it from the augmented
// FASTX input (spec.md §4.E, large-read-set case).
func WriteIndexSnapshot(w io.Writer, reads []*readstream.AugmentedRead) error {
	sw := snappy.NewBufferedWriter(w)
	buf := make([]byte, 12)
	for i, r := range reads {
		for _, a := range r.NovelKmers {
			binary.BigEndian.PutUint64(buf[0:8], uint64(a.Kmer))
			binary.BigEndian.PutUint32(buf[8:12], uint32(i))
			if _, err := sw.Write(buf); err != nil {
				return err
			}
		}
	}
	return sw.Close()
}

// ReadIndexSnapshot reverses WriteIndexSnapshot, returning the
// (kmer, read index) pairs in their original order.
func ReadIndexSnapshot(r io.Reader) ([]struct {
	Kmer      kmer.Code
	ReadIndex int
}, error) {
	sr := snappy.NewReader(r)
	var out []struct {
		Kmer      kmer.Code
		ReadIndex int
	}
	buf := make([]byte, 12)
	for {
		if _, err := io.ReadFull(sr, buf); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		out = append(out, struct {
			Kmer      kmer.Code
			ReadIndex int
		}{
			Kmer:      kmer.Code(binary.BigEndian.Uint64(buf[0:8])),
			ReadIndex: int(binary.BigEndian.Uint32(buf[8:12])),
		})
	}
	return out, nil
}

func smallestID(reads []*readstream.AugmentedRead) []byte {
	min := reads[0].ID
	for _, r := range reads[1:] {
		if bytes.Compare(r.ID, min) < 0 {
			min = r.ID
		}
	}
	return min
}

// dedup drops reads within a component whose (canonicalized) sequence
// matches one already kept, in member-index order so the first occurrence
// wins.
func dedup(reads []*readstream.AugmentedRead, memberIdx []int, stats *Stats) []*readstream.AugmentedRead {
	seen := make(map[string]bool, len(memberIdx))
	kept := make([]*readstream.AugmentedRead, 0, len(memberIdx))
	for _, idx := range memberIdx {
		r := reads[idx]
		key := canonicalSeqKey(r.Seq)
		if seen[key] {
			stats.DuplicatesDropped++
			continue
		}
		seen[key] = true
		kept = append(kept, r)
	}
	return kept
}

func canonicalSeqKey(seq []byte) string {
	rc := reverseComplement(seq)
	if string(rc) < string(seq) {
		return string(rc)
	}
	return string(seq)
}

func reverseComplement(seq []byte) []byte {
	out := make([]byte, len(seq))
	comp := map[byte]byte{'A': 'T', 'C': 'G', 'G': 'C', 'T': 'A', 'N': 'N'}
	for i, b := range seq {
		c, ok := comp[b]
		if !ok {
			c = b
		}
		out[len(seq)-1-i] = c
	}
	return out
}
