package call

import (
	"testing"

	"github.com/knovel/knovel/align"
	"github.com/knovel/knovel/readstream"
)

func packOps(t *testing.T, spec string) []uint64 {
	var ops []uint64
	var runOp align.Op
	runLen := 0
	flush := func() {
		if runLen > 0 {
			ops = append(ops, encode(runOp, runLen))
		}
	}
	for i := 0; i < len(spec); i++ {
		op := align.Op(spec[i])
		if op == runOp {
			runLen++
			continue
		}
		flush()
		runOp, runLen = op, 1
	}
	flush()
	return ops
}

func encode(op align.Op, n int) uint64 {
	return uint64(op)<<32 | uint64(uint32(n))
}

func TestFromAlignmentExtractsSNV(t *testing.T) {
	contig := []byte("AAAAATAAAA")
	ref := []byte("AAAAACAAAA")
	cigar := &align.CIGAR{Ops: packOps(t, "MMMMMXMMMM")}

	calls := FromAlignment("c1", "chr1", contig, nil, ref, 1000, cigar, Options{K: 3, AllowTerminalSNV: true})
	if len(calls) != 1 {
		t.Fatalf("expected 1 SNV call, got %d", len(calls))
	}
	if calls[0].Class != SNV {
		t.Errorf("class = %s, want SNV", calls[0].Class)
	}
	if string(calls[0].Ref) != "C" || string(calls[0].Alt) != "T" {
		t.Errorf("ref/alt = %s/%s, want C/T", calls[0].Ref, calls[0].Alt)
	}
	if calls[0].Pos != 1005 {
		t.Errorf("pos = %d, want 1005", calls[0].Pos)
	}
}

func TestFromAlignmentExtractsInsertion(t *testing.T) {
	contig := []byte("AAAACGTTTAAAA")
	ref := []byte("AAAACGAAAA")
	cigar := &align.CIGAR{Ops: packOps(t, "MMMMMMIIIMMMM")}

	calls := FromAlignment("c1", "chr1", contig, nil, ref, 0, cigar, Options{K: 3, AllowTerminalSNV: true})
	if len(calls) != 1 || calls[0].Class != Insertion {
		t.Fatalf("expected 1 insertion call, got %+v", calls)
	}
	if string(calls[0].Alt) != "TTT" {
		t.Errorf("alt = %s, want TTT", calls[0].Alt)
	}
}

func TestTerminalSNVIsSuppressedByDefault(t *testing.T) {
	contig := []byte("TAAAACGTAAAA")
	ref := []byte("AAAAACGTAAAA")
	cigar := &align.CIGAR{Ops: packOps(t, "XMMMMMMMMMMM")}

	calls := FromAlignment("c1", "chr1", contig, nil, ref, 0, cigar, Options{K: 3, TerminalDistance: 3})
	if len(calls) != 0 {
		t.Errorf("expected terminal SNV to be suppressed, got %d calls", len(calls))
	}
}

func TestTerminalSNVIsKeptWhenAllowed(t *testing.T) {
	contig := []byte("TAAAACGTAAAA")
	ref := []byte("AAAAACGTAAAA")
	cigar := &align.CIGAR{Ops: packOps(t, "XMMMMMMMMMMM")}

	calls := FromAlignment("c1", "chr1", contig, nil, ref, 0, cigar, Options{K: 3, TerminalDistance: 3, AllowTerminalSNV: true})
	if len(calls) != 1 {
		t.Errorf("expected allow_terminal_snv to keep the call, got %d calls", len(calls))
	}
	if !calls[0].NearContigEnd {
		t.Errorf("expected the surviving terminal SNV to be tagged NearContigEnd")
	}
}

func TestHomopolymerLocusIsTagged(t *testing.T) {
	contig := []byte("AAAACGGGGAAAA")
	ref := []byte("AAAACAAAAAAAA")
	cigar := &align.CIGAR{Ops: packOps(t, "MMMMMIIIMMMMM")}

	calls := FromAlignment("c1", "chr1", contig, nil, ref, 0, cigar, Options{K: 3, AllowTerminalSNV: true, HomopolymerMinLen: 3})
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if !calls[0].Homopolymer {
		t.Errorf("expected an insertion of GGG to be tagged Homopolymer")
	}
}

func TestAdjacentEventsAreMergedIntoMNV(t *testing.T) {
	contig := []byte("AAAACGTTACGA")
	ref := []byte("AAAACATAACGA")
	// two SNVs one base apart: merge window >= 1 should fold them together
	cigar := &align.CIGAR{Ops: packOps(t, "MMMMMXMXMMMM")}

	calls := FromAlignment("c1", "chr1", contig, nil, ref, 0, cigar, Options{K: 3, MergeWindow: 1, AllowTerminalSNV: true})
	if len(calls) != 1 {
		t.Fatalf("expected the two close SNVs to merge into 1 call, got %d", len(calls))
	}
	if calls[0].Class != MNV {
		t.Errorf("class = %s, want MNV", calls[0].Class)
	}
}

func TestSupportingKmersIntersectsNovelSet(t *testing.T) {
	contig := []byte("AAAAATAAAA")
	ref := []byte("AAAAACAAAA")
	cigar := &align.CIGAR{Ops: packOps(t, "MMMMMXMMMM")}

	novel := []readstream.KmerAnnotation{}
	calls := FromAlignment("c1", "chr1", contig, novel, ref, 0, cigar, Options{K: 3, AllowTerminalSNV: true})
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if len(calls[0].VW) == 0 {
		t.Errorf("expected VW to be non-empty for a locus away from contig edges")
	}
	if len(calls[0].SupportingKmers) != 0 {
		t.Errorf("expected no supporting k-mers with an empty novel set, got %q", calls[0].SupportingKmers)
	}
}
