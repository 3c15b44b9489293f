package runsummary

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestAddAccumulatesPerReason(t *testing.T) {
	s := New()
	s.Add(MalformedInput)
	s.Add(MalformedInput)
	s.AddN(NoReferenceMatch, 5)

	if got := s.Count(MalformedInput); got != 2 {
		t.Errorf("MalformedInput count = %d, want 2", got)
	}
	if got := s.Count(NoReferenceMatch); got != 5 {
		t.Errorf("NoReferenceMatch count = %d, want 5", got)
	}
	if got := s.Count(AssemblyFail); got != 0 {
		t.Errorf("AssemblyFail count = %d, want 0", got)
	}
}

func TestRunIDsAreUnique(t *testing.T) {
	a, b := New(), New()
	if a.RunID == b.RunID {
		t.Errorf("expected distinct run IDs, got %q twice", a.RunID)
	}
}

func TestWriteJSONRoundTrips(t *testing.T) {
	s := New()
	s.Add(AssemblyFellBack)
	s.AddN(FPRAboveCeiling, 3)

	var buf bytes.Buffer
	if err := s.WriteJSON(&buf); err != nil {
		t.Fatal(err)
	}

	var out sidecar
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("sidecar did not round-trip as JSON: %v", err)
	}
	if out.RunID != s.RunID {
		t.Errorf("sidecar run_id = %q, want %q", out.RunID, s.RunID)
	}
	if out.Counters["AssemblyFellBack"] != 1 {
		t.Errorf("sidecar AssemblyFellBack = %d, want 1", out.Counters["AssemblyFellBack"])
	}
	if out.Counters["FPRAboveCeiling"] != 3 {
		t.Errorf("sidecar FPRAboveCeiling = %d, want 3", out.Counters["FPRAboveCeiling"])
	}
}

func TestWriteHumanListsReasonsSorted(t *testing.T) {
	s := New()
	s.Add(PartitionTooSmall)
	s.Add(AlignmentFail)

	var buf bytes.Buffer
	if err := s.WriteHuman(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, s.RunID) {
		t.Errorf("human report missing run ID: %q", out)
	}
	posAlign := strings.Index(out, "AlignmentFail")
	posPart := strings.Index(out, "PartitionTooSmall")
	if posAlign == -1 || posPart == -1 || posAlign > posPart {
		t.Errorf("expected AlignmentFail before PartitionTooSmall alphabetically, got %q", out)
	}
}
