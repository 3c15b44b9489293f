// Package call interprets an alignment CIGAR into SNV/INSERTION/DELETION/MNV
// variant events (spec.md §4.H), merges adjacent events, applies the
// terminal-SNV and reference-padding suppression rules, and derives the
// RW/VW/supporting_kmers fields each call carries forward to Likelihood.
package call

import (
	"sort"
	"strconv"

	"github.com/knovel/knovel/align"
	"github.com/knovel/knovel/kmer"
	"github.com/knovel/knovel/readstream"
)

// Class names a variant's shape.
type Class string

const (
	SNV       Class = "SNV"
	Insertion Class = "INSERTION"
	Deletion  Class = "DELETION"
	MNV       Class = "MNV" // merged complex call spanning >1 primitive event
)

// Call is one candidate variant derived from a single contig's alignment.
type Call struct {
	SeqID string
	Pos   int // 0-based reference coordinate of Ref[0]
	Ref   []byte
	Alt   []byte
	Class Class

	ContigID string

	RW              [][]byte
	VW              [][]byte
	SupportingKmers [][]byte

	// NearContigEnd is set when the call survived only because
	// AllowTerminalSNV let a terminal SNV through; it earns the
	// ContigEndTooClose FILTER instead of PASS.
	NearContigEnd bool
	// Homopolymer is set when the call's ref or alt allele is itself a
	// run of a single base at least HomopolymerMinLen bases long; it
	// earns the Homopolymer FILTER instead of PASS.
	Homopolymer bool
}

// Options configures variant extraction from a single alignment.
type Options struct {
	K                int
	MergeWindow      int  // adjacent-event merge distance
	AllowTerminalSNV bool
	TerminalDistance int // contig-coordinate distance from either end
	PadLen           int // reference padding length; no SNV reported inside it

	// HomopolymerMinLen is the minimum length of a single-base ref or alt
	// allele for a call to earn the Homopolymer FILTER. 0 disables the
	// check.
	HomopolymerMinLen int
}

// rawEvent is a single primitive CIGAR-derived event before merging.
type rawEvent struct {
	class          Class
	refStart       int // window-relative
	refLen         int
	queryStart     int // contig-relative
	queryLen       int
}

// FromAlignment walks cigar and emits the merged, filtered Call list for
// one (contig, reference window) pair.
func FromAlignment(contigID string, seqID string, contig []byte, novelKmers []readstream.KmerAnnotation, refWindow []byte, windowStart int, cigar *align.CIGAR, opts Options) []*Call {
	events := extractEvents(cigar)
	events = mergeAdjacent(events, opts.MergeWindow)

	novelSet := make(map[kmer.Code]bool, len(novelKmers))
	for _, a := range novelKmers {
		novelSet[a.Kmer] = true
	}

	var calls []*Call
	for _, e := range events {
		if padded(e, len(refWindow), opts) {
			continue
		}
		nearEnd := nearContigEnd(e, len(contig), opts)
		if nearEnd && !opts.AllowTerminalSNV {
			continue
		}
		ref := append([]byte(nil), refWindow[e.refStart:e.refStart+e.refLen]...)
		alt := append([]byte(nil), contig[e.queryStart:e.queryStart+e.queryLen]...)

		c := &Call{
			SeqID:         seqID,
			Pos:           windowStart + e.refStart,
			Ref:           ref,
			Alt:           alt,
			Class:         e.class,
			ContigID:      contigID,
			NearContigEnd: nearEnd,
			Homopolymer:   opts.HomopolymerMinLen > 0 && (kmer.Homopolymer(ref, opts.HomopolymerMinLen) || kmer.Homopolymer(alt, opts.HomopolymerMinLen)),
		}
		c.RW = windowKmers(refWindow, e.refStart, e.refLen, opts.K)
		c.VW = windowKmers(contig, e.queryStart, e.queryLen, opts.K)
		c.SupportingKmers = intersectNovel(c.VW, novelSet, opts.K)
		calls = append(calls, c)
	}
	return calls
}

// extractEvents turns a CIGAR's runs into primitive events, tracking
// contig (query) and window-relative reference coordinates as it walks.
func extractEvents(cigar *align.CIGAR) []rawEvent {
	var events []rawEvent
	queryPos, refPos := 0, 0
	for _, packed := range cigar.Ops {
		op, n := align.UnpackOp(packed)
		switch op {
		case align.OpMatch:
			queryPos += n
			refPos += n
		case align.OpMismatch:
			events = append(events, rawEvent{class: SNV, refStart: refPos, refLen: n, queryStart: queryPos, queryLen: n})
			queryPos += n
			refPos += n
		case align.OpInsert:
			events = append(events, rawEvent{class: Insertion, refStart: refPos, refLen: 0, queryStart: queryPos, queryLen: n})
			queryPos += n
		case align.OpDelete:
			events = append(events, rawEvent{class: Deletion, refStart: refPos, refLen: n, queryStart: queryPos, queryLen: 0})
			refPos += n
		}
	}
	return events
}

// mergeAdjacent folds events separated by no more than window matched
// bases into a single complex (MNV) call spanning both, per spec.md
// §4.H: "Adjacent M/I/D events within a configured window are merged".
func mergeAdjacent(events []rawEvent, window int) []rawEvent {
	if len(events) == 0 {
		return events
	}
	sort.Slice(events, func(i, j int) bool { return events[i].refStart < events[j].refStart })

	var out []rawEvent
	cur := events[0]
	for _, e := range events[1:] {
		gap := e.refStart - (cur.refStart + cur.refLen)
		if gap < 0 {
			gap = e.queryStart - (cur.queryStart + cur.queryLen)
		}
		if gap <= window {
			cur = mergeTwo(cur, e)
			continue
		}
		out = append(out, cur)
		cur = e
	}
	out = append(out, cur)
	return out
}

func mergeTwo(a, b rawEvent) rawEvent {
	refEnd := max(a.refStart+a.refLen, b.refStart+b.refLen)
	queryEnd := max(a.queryStart+a.queryLen, b.queryStart+b.queryLen)
	refStart := min(a.refStart, b.refStart)
	queryStart := min(a.queryStart, b.queryStart)
	return rawEvent{
		class:      MNV,
		refStart:   refStart,
		refLen:     refEnd - refStart,
		queryStart: queryStart,
		queryLen:   queryEnd - queryStart,
	}
}

// nearContigEnd reports whether e's contig-relative span falls within
// TerminalDistance bases of either contig end (spec.md §4.H edge case:
// "SNVs within a configured distance of contig ends are suppressed
// unless allow_terminal_snv is set" — when the flag is set the call
// survives but is tagged NearContigEnd instead of dropped).
func nearContigEnd(e rawEvent, contigLen int, opts Options) bool {
	if e.class != SNV {
		return false
	}
	return e.queryStart < opts.TerminalDistance || e.queryStart+e.queryLen > contigLen-opts.TerminalDistance
}

// padded reports whether e's reference-relative span falls inside the
// reference window's padding, where no SNV is ever reported regardless
// of allow_terminal_snv (spec.md §4.H edge case: "No SNV is reported
// inside the reference padding").
func padded(e rawEvent, windowLen int, opts Options) bool {
	if e.class != SNV {
		return false
	}
	return e.refStart < opts.PadLen || e.refStart+e.refLen > windowLen-opts.PadLen
}

// windowKmers returns the K-length substrings of seq that overlap
// [locusStart, locusStart+max(locusLen,1)), clipped to seq's bounds.
func windowKmers(seq []byte, locusStart, locusLen, k int) [][]byte {
	span := locusLen
	if span < 1 {
		span = 1
	}
	start := locusStart - k + 1
	if start < 0 {
		start = 0
	}
	end := locusStart + span // exclusive start bound for the last covering k-mer
	if end > len(seq)-k+1 {
		end = len(seq) - k + 1
	}
	var out [][]byte
	for s := start; s < end; s++ {
		if s < 0 || s+k > len(seq) {
			continue
		}
		out = append(out, seq[s:s+k])
	}
	return out
}

func intersectNovel(vw [][]byte, novel map[kmer.Code]bool, k int) [][]byte {
	var out [][]byte
	for _, substr := range vw {
		code, err := kmer.Encode(substr)
		if err != nil {
			continue
		}
		canon := kmer.Canonical(code, uint8(k))
		if novel[canon] {
			out = append(out, substr)
		}
	}
	return out
}

// Dedup merges calls across contigs in the same partition on
// (seqid,pos,ref,alt); best-scoring alignment per contig has already
// picked one call set per contig by the time calls reach here, so this
// only collapses exact duplicates surfaced by overlapping contigs.
func Dedup(calls []*Call) []*Call {
	type key struct{ seqID, pos, ref, alt string }
	seen := make(map[key]bool, len(calls))
	var out []*Call
	for _, c := range calls {
		k := key{c.SeqID, strconv.Itoa(c.Pos), string(c.Ref), string(c.Alt)}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	return out
}

// BestPerContig keeps, for each contig id, only the call set belonging to
// its highest-scoring alignment (spec.md §4.H: "best scoring alignment
// per contig wins").
func BestPerContig(candidates map[string][]struct {
	Score int
	Calls []*Call
}) []*Call {
	var out []*Call
	for _, group := range candidates {
		if len(group) == 0 {
			continue
		}
		best := group[0]
		for _, g := range group[1:] {
			if g.Score > best.Score {
				best = g
			}
		}
		out = append(out, best.Calls...)
	}
	return out
}
