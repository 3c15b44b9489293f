package vcfio

import (
	"bytes"
	"strings"
	"testing"

	"github.com/knovel/knovel/call"
)

func TestHeaderDeclaresAllInfoFieldsAndFilters(t *testing.T) {
	var buf bytes.Buffer
	if err := Header(&buf, [3]string{"proband", "mother", "father"}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, field := range []string{"RW", "VW", "ALTWINDOW", "REFRWINDOW", "LIKESCORE", "CALLCLASS"} {
		if !strings.Contains(out, "ID="+field+",") {
			t.Errorf("header missing INFO field %s", field)
		}
	}
	for _, f := range []string{"LikelihoodFail", "ControlAbundance", "AbundMismatch", "NoReferenceMatch", "PartitionTooSmall", "Homopolymer", "ContigEndTooClose"} {
		if !strings.Contains(out, "ID="+f+",") {
			t.Errorf("header missing FILTER %s", f)
		}
	}
	if !strings.Contains(out, "proband\tmother\tfather") {
		t.Errorf("header missing sample columns")
	}
}

func TestWriteRecordsSortsByPosition(t *testing.T) {
	r1 := &Record{Call: &call.Call{SeqID: "chr1", Pos: 500, Ref: []byte("A"), Alt: []byte("T")}, GT: [3]string{"0/1", "0/0", "0/0"}}
	r2 := &Record{Call: &call.Call{SeqID: "chr1", Pos: 100, Ref: []byte("C"), Alt: []byte("G")}, GT: [3]string{"0/1", "0/0", "0/0"}}

	var buf bytes.Buffer
	if err := WriteRecords(&buf, []*Record{r1, r2}, true); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if !strings.HasPrefix(lines[0], "chr1\t101\t") {
		t.Errorf("expected the lower position first, got %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "chr1\t501\t") {
		t.Errorf("expected the higher position second, got %q", lines[1])
	}
}

func TestFilterFieldDefaultsToPass(t *testing.T) {
	r := &Record{Call: &call.Call{SeqID: "chr1", Pos: 0, Ref: []byte("A"), Alt: []byte("T")}}
	var buf bytes.Buffer
	writeOne(&buf, r)
	if !strings.Contains(buf.String(), "\tPASS\t") {
		t.Errorf("expected PASS filter by default, got %q", buf.String())
	}
}

func TestFilterFieldJoinsMultipleReasons(t *testing.T) {
	r := &Record{
		Call:    &call.Call{SeqID: "chr1", Pos: 0, Ref: []byte("A"), Alt: []byte("T")},
		Filters: []Filter{LikelihoodFail, Homopolymer},
	}
	if got := r.filterField(); got != "LikelihoodFail;Homopolymer" {
		t.Errorf("filterField() = %q", got)
	}
}
