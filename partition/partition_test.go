package partition

import (
	"bytes"
	"testing"

	"github.com/knovel/knovel/readstream"
)

func read(id, seq string, kmers ...uint64) *readstream.AugmentedRead {
	ar := &readstream.AugmentedRead{Read: readstream.Read{ID: []byte(id), Seq: []byte(seq)}}
	for _, k := range kmers {
		ar.NovelKmers = append(ar.NovelKmers, readstream.KmerAnnotation{Kmer: k, CaseAbund: 10})
	}
	return ar
}

func TestBuildGroupsReadsSharingKmers(t *testing.T) {
	reads := []*readstream.AugmentedRead{
		read("r1", "ACGT", 1, 2),
		read("r2", "TGCA", 2, 3),
		read("r3", "GGGG", 99),
	}
	parts, stats := Build(reads, Options{})
	if stats.PartitionsOut != 2 {
		t.Fatalf("expected 2 partitions, got %d", stats.PartitionsOut)
	}
	if len(parts[0].Reads) != 2 {
		t.Errorf("largest partition should have 2 reads, got %d", len(parts[0].Reads))
	}
	if len(parts[1].Reads) != 1 {
		t.Errorf("second partition should have 1 read, got %d", len(parts[1].Reads))
	}
}

func TestBuildDedupsIdenticalSequences(t *testing.T) {
	reads := []*readstream.AugmentedRead{
		read("r1", "ACGTACGT", 1),
		read("r2", "ACGTACGT", 1), // exact duplicate, shares k-mer 1 with r1
	}
	parts, stats := Build(reads, Options{})
	if len(parts) != 1 {
		t.Fatalf("expected 1 partition, got %d", len(parts))
	}
	if len(parts[0].Reads) != 1 {
		t.Errorf("expected duplicate to be dropped, got %d reads", len(parts[0].Reads))
	}
	if stats.DuplicatesDropped != 1 {
		t.Errorf("DuplicatesDropped = %d, want 1", stats.DuplicatesDropped)
	}
}

func TestEdgePruningDropsWeakLinks(t *testing.T) {
	reads := []*readstream.AugmentedRead{
		read("r1", "AAAA", 1),
		read("r2", "CCCC", 1), // shares exactly 1 k-mer with r1
	}
	parts, _ := Build(reads, Options{MinSharedKmers: 2})
	if len(parts) != 2 {
		t.Errorf("expected edge below threshold to be pruned into 2 singleton partitions, got %d", len(parts))
	}
}

func TestLabelsAreAssignedInDescendingSizeOrder(t *testing.T) {
	reads := []*readstream.AugmentedRead{
		read("a", "AAAA", 1, 2, 3),
		read("b", "CCCC", 1, 2, 3),
		read("c", "GAGA", 1, 2, 3),
		read("d", "TTTT", 9),
	}
	parts, _ := Build(reads, Options{})
	if parts[0].Label != "cc1" || len(parts[0].Reads) != 3 {
		t.Errorf("expected cc1 to be the 3-read partition, got label=%s size=%d", parts[0].Label, len(parts[0].Reads))
	}
	if parts[1].Label != "cc2" || len(parts[1].Reads) != 1 {
		t.Errorf("expected cc2 to be the 1-read partition, got label=%s size=%d", parts[1].Label, len(parts[1].Reads))
	}
}

func TestIndexSnapshotRoundTrips(t *testing.T) {
	reads := []*readstream.AugmentedRead{
		read("r1", "ACGT", 1, 2),
		read("r2", "TGCA", 2, 3),
	}

	var buf bytes.Buffer
	if err := WriteIndexSnapshot(&buf, reads); err != nil {
		t.Fatalf("WriteIndexSnapshot: %v", err)
	}

	pairs, err := ReadIndexSnapshot(&buf)
	if err != nil {
		t.Fatalf("ReadIndexSnapshot: %v", err)
	}
	if len(pairs) != 4 {
		t.Fatalf("expected 4 (kmer, read index) pairs, got %d", len(pairs))
	}
	if pairs[0].Kmer != 1 || pairs[0].ReadIndex != 0 {
		t.Errorf("pairs[0] = %+v, want {Kmer:1 ReadIndex:0}", pairs[0])
	}
	if pairs[3].Kmer != 3 || pairs[3].ReadIndex != 1 {
		t.Errorf("pairs[3] = %+v, want {Kmer:3 ReadIndex:1}", pairs[3])
	}
}
