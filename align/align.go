// Package align implements affine-gap pairwise alignment and CIGAR
// production (spec.md §4.H), extending the teacher's linear-gap
// Needleman-Wunsch (lexicmap/index/align/nw.go) with gap-open/gap-extend
// state, and reserving github.com/shenwei356/wfa's wavefront aligner for
// windows too large for the full matrix to size comfortably. The matrix
// path fills every cell of the query x target matrix; it applies no band.
package align

import (
	"sync"

	"github.com/shenwei356/wfa"
)

// Op is a CIGAR operation, using the same byte-valued opcode convention as
// the teacher's wfa.AlignmentResult.Ops packing (op<<32 | runLength).
type Op uint64

const (
	OpMatch    Op = 'M'
	OpMismatch Op = 'X'
	OpInsert   Op = 'I' // contig has a base the reference doesn't (insertion)
	OpDelete   Op = 'D' // reference has a base the contig doesn't (deletion)
)

// packOp mirrors the teacher's op<<32|n packing so CIGAR runs from either
// aligner can be interpreted uniformly downstream.
func packOp(op Op, n int) uint64 { return uint64(op)<<32 | uint64(uint32(n)) }

// UnpackOp splits a packed run back into its opcode and length.
func UnpackOp(packed uint64) (Op, int) {
	return Op(packed >> 32), int(uint32(packed))
}

// CIGAR is a run-length-encoded alignment trace, query (contig) against
// target (reference window).
type CIGAR struct {
	Ops   []uint64
	Score int
}

// AlignOptions holds affine-gap scoring parameters (spec.md §4.H:
// "match/mismatch scores, gap open, gap extend configurable").
type AlignOptions struct {
	MatchScore    int
	MismatchScore int
	GapOpen       int // charged once per gap, in addition to GapExtend
	GapExtend     int // charged per gap base

	// WFAThreshold is the product of query and target length above which
	// Align delegates to the wavefront aligner instead of the full
	// matrix; 0 disables delegation.
	WFAThreshold int
}

// DefaultAlignOptions matches spec.md's "defaults align to a standard
// global-in-query / local-in-reference setup".
var DefaultAlignOptions = AlignOptions{
	MatchScore:    1,
	MismatchScore: -4,
	GapOpen:       -6,
	GapExtend:     -1,
}

// plane identifies which of the three Gotoh score matrices a cell's best
// score came from.
type plane uint8

const (
	planeM  plane = iota // match/mismatch (diagonal)
	planeIx              // gap consuming a query base (insertion)
	planeIy              // gap consuming a target base (deletion)
)

// Aligner runs affine-gap global(query)/local(reference) alignment,
// reusing its score matrices across calls the way nw.go's Aligner does.
type Aligner struct {
	Opts AlignOptions

	m, ix, iy    []int   // score planes
	fromM        []plane // which plane fed this cell's M score
	fromIx       []bool  // true: Ix[i][j] opened from M; false: extended from Ix
	fromIy       []bool  // true: Iy[i][j] opened from M; false: extended from Iy
	mismatchHere []bool  // whether the M transition into this cell was a mismatch
}

var poolCIGAR = &sync.Pool{New: func() interface{} { return &CIGAR{Ops: make([]uint64, 0, 64)} }}

// RecycleCIGAR returns a CIGAR to the pool for reuse.
func RecycleCIGAR(c *CIGAR) {
	c.Ops = c.Ops[:0]
	c.Score = 0
	poolCIGAR.Put(c)
}

// NewAligner builds an Aligner with the given scoring options.
func NewAligner(opts AlignOptions) *Aligner {
	return &Aligner{Opts: opts}
}

// Align aligns query (the contig) globally against target (the reference
// window), local in the sense that leading/trailing target bases outside
// the best alignment are not penalized — the "global-in-query /
// local-in-reference" policy of spec.md §4.H. Large windows are delegated
// to the wavefront aligner.
func (a *Aligner) Align(query, target []byte) *CIGAR {
	if a.Opts.WFAThreshold > 0 && len(query)*len(target) > a.Opts.WFAThreshold {
		if c, ok := a.alignWFA(query, target); ok {
			return c
		}
	}
	return a.alignBanded(query, target)
}

// alignWFA delegates to the wavefront aligner for windows too large for a
// comfortably sized full matrix. It reports ok=false if the delegate
// declines, in which case Align falls back to the full matrix.
func (a *Aligner) alignWFA(query, target []byte) (*CIGAR, bool) {
	aligner := wfa.New(&wfa.Penalties{
		Mismatch: uint32(-a.Opts.MismatchScore),
		GapOpen:  uint32(-a.Opts.GapOpen),
		GapExt:   uint32(-a.Opts.GapExtend),
	}, wfa.DefaultOptions)
	result, err := aligner.Align(query, target)
	if err != nil || result == nil {
		return nil, false
	}
	ops := make([]uint64, 0, len(result.Ops))
	for _, rec := range result.Ops {
		ops = append(ops, packOp(Op(rec.Op), int(rec.N)))
	}
	return &CIGAR{Ops: ops, Score: int(result.Score)}, true
}

const negInf = -1 << 30

// alignBanded runs the three-state (match/insert/delete) affine-gap
// Gotoh recurrence, a direct generalization of the teacher's
// single-matrix Needleman-Wunsch that separates a gap's opening cost from
// its per-base extension cost. It computes all (len(query)+1) x
// (len(target)+1) cells; no band limits the cells it fills.
func (a *Aligner) alignBanded(query, target []byte) *CIGAR {
	h := len(query) + 1
	w := len(target) + 1
	n := h * w

	a.m = grow(a.m, n)
	a.ix = grow(a.ix, n)
	a.iy = grow(a.iy, n)
	a.fromM = growPlane(a.fromM, n)
	a.fromIx = growBool(a.fromIx, n)
	a.fromIy = growBool(a.fromIy, n)
	a.mismatchHere = growBool(a.mismatchHere, n)

	match, mismatch := a.Opts.MatchScore, a.Opts.MismatchScore
	gapOpen, gapExt := a.Opts.GapOpen, a.Opts.GapExtend

	idx := func(i, j int) int { return i*w + j }

	a.m[idx(0, 0)] = 0
	a.ix[idx(0, 0)] = negInf
	a.iy[idx(0, 0)] = negInf
	for i := 1; i < h; i++ {
		k := idx(i, 0)
		a.m[k] = negInf
		a.ix[k] = gapOpen + gapExt*i
		a.fromIx[k] = i == 1 // opens from M at i=1, extends thereafter
		a.iy[k] = negInf
	}
	for j := 1; j < w; j++ {
		k := idx(0, j)
		// Free leading reference padding: local-in-reference policy.
		a.m[k] = 0
		a.ix[k] = negInf
		a.iy[k] = negInf
	}

	for i := 1; i < h; i++ {
		for j := 1; j < w; j++ {
			k := idx(i, j)
			diag := idx(i-1, j-1)

			sub := mismatch
			isMismatch := true
			if query[i-1] == target[j-1] {
				sub = match
				isMismatch = false
			}

			best := a.m[diag]
			bestFrom := planeM
			if v := a.ix[diag]; v > best {
				best, bestFrom = v, planeIx
			}
			if v := a.iy[diag]; v > best {
				best, bestFrom = v, planeIy
			}
			a.m[k] = best + sub
			a.fromM[k] = bestFrom
			a.mismatchHere[k] = isMismatch

			up := idx(i-1, j)
			openX := a.m[up] + gapOpen + gapExt
			extX := a.ix[up] + gapExt
			if extX > openX {
				a.ix[k] = extX
				a.fromIx[k] = false
			} else {
				a.ix[k] = openX
				a.fromIx[k] = true
			}

			left := idx(i, j-1)
			openY := a.m[left] + gapOpen + gapExt
			extY := a.iy[left] + gapExt
			if extY > openY {
				a.iy[k] = extY
				a.fromIy[k] = false
			} else {
				a.iy[k] = openY
				a.fromIy[k] = true
			}
		}
	}

	// Global in query: end at row h-1. Local in reference: pick the best
	// column among the M and Ix planes (Iy holds the gap open/extend cost
	// of target bases trailing past the alignment, never the best end).
	bestJ, bestScore, bestPlane := 0, negInf, planeM
	for j := 0; j < w; j++ {
		k := idx(h-1, j)
		if a.m[k] > bestScore {
			bestScore, bestJ, bestPlane = a.m[k], j, planeM
		}
		if a.ix[k] > bestScore {
			bestScore, bestJ, bestPlane = a.ix[k], j, planeIx
		}
	}

	return a.traceback(h-1, bestJ, bestPlane, bestScore, idx)
}

// traceback walks the three score planes back to the origin, merging
// consecutive identical ops into runs.
func (a *Aligner) traceback(i, j int, pl plane, score int, idx func(i, j int) int) *CIGAR {
	c := poolCIGAR.Get().(*CIGAR)
	c.Ops = c.Ops[:0]
	c.Score = score

	var runOp Op
	runLen := 0
	flush := func() {
		if runLen > 0 {
			c.Ops = append(c.Ops, packOp(runOp, runLen))
		}
	}
	push := func(op Op) {
		if op == runOp {
			runLen++
			return
		}
		flush()
		runOp, runLen = op, 1
	}

	for i > 0 {
		k := idx(i, j)
		switch pl {
		case planeM:
			op := OpMatch
			if a.mismatchHere[k] {
				op = OpMismatch
			}
			push(op)
			pl = a.fromM[k]
			i--
			j--
		case planeIx:
			push(OpInsert)
			if a.fromIx[k] {
				pl = planeM
			}
			i--
		case planeIy:
			push(OpDelete)
			if a.fromIy[k] {
				pl = planeM
			}
			j--
		}
	}
	flush()
	reverseOps(c.Ops)
	return c
}

func reverseOps(ops []uint64) {
	for i, j := 0, len(ops)-1; i < j; i, j = i+1, j-1 {
		ops[i], ops[j] = ops[j], ops[i]
	}
}

func grow(s []int, n int) []int {
	if cap(s) >= n {
		return s[:n]
	}
	return make([]int, n)
}

func growPlane(s []plane, n int) []plane {
	if cap(s) >= n {
		return s[:n]
	}
	return make([]plane, n)
}

func growBool(s []bool, n int) []bool {
	if cap(s) >= n {
		return s[:n]
	}
	return make([]bool, n)
}
