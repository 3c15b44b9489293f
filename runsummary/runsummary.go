// Package runsummary accumulates the non-fatal condition counters spec.md
// §7 requires every run to report, and writes both a human-readable report
// and a .summary.json sidecar.
package runsummary

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Reason is a non-fatal condition's reason code (spec.md §7's table:
// malformed records, FPR-above-ceiling, assembly fallback, no reference
// match, alignment failure, and any caller-defined reason).
type Reason string

const (
	MalformedInput       Reason = "MalformedInput"
	FPRAboveCeiling      Reason = "FPRAboveCeiling"
	AssemblyFellBack     Reason = "AssemblyFellBack"
	AssemblyFail         Reason = "AssemblyFail"
	NoReferenceMatch     Reason = "NoReferenceMatch"
	AlignmentFail        Reason = "AlignmentFail"
	PartitionTooSmall    Reason = "PartitionTooSmall"
)

// Summary accumulates counters for one pipeline run, identified by a
// fresh UUID per invocation.
type Summary struct {
	RunID     string
	StartedAt time.Time

	mu       sync.Mutex
	counters map[Reason]uint64
}

// New starts a run summary with a fresh run ID.
func New() *Summary {
	return &Summary{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
		counters:  make(map[Reason]uint64),
	}
}

// Add increments the counter for reason by one, safe for concurrent use
// across the worker pool's partition goroutines.
func (s *Summary) Add(reason Reason) {
	s.AddN(reason, 1)
}

// AddN increments the counter for reason by n.
func (s *Summary) AddN(reason Reason, n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[reason] += n
}

// Count returns the current count for reason.
func (s *Summary) Count(reason Reason) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[reason]
}

// sidecar is the JSON-serializable shape of a run summary.
type sidecar struct {
	RunID     string            `json:"run_id"`
	StartedAt time.Time         `json:"started_at"`
	Duration  string            `json:"duration"`
	Counters  map[string]uint64 `json:"counters"`
}

func (s *Summary) snapshot() sidecar {
	s.mu.Lock()
	defer s.mu.Unlock()
	counters := make(map[string]uint64, len(s.counters))
	for reason, n := range s.counters {
		counters[string(reason)] = n
	}
	return sidecar{
		RunID:     s.RunID,
		StartedAt: s.StartedAt,
		Duration:  time.Since(s.StartedAt).String(),
		Counters:  counters,
	}
}

// WriteJSON writes the .summary.json sidecar.
func (s *Summary) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s.snapshot())
}

// WriteHuman writes a short human-readable report, reason codes sorted
// alphabetically for a deterministic diff-friendly report.
func (s *Summary) WriteHuman(w io.Writer) error {
	snap := s.snapshot()
	fmt.Fprintf(w, "run %s (%s)\n", snap.RunID, snap.Duration)

	reasons := make([]string, 0, len(snap.Counters))
	for r := range snap.Counters {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)

	for _, r := range reasons {
		fmt.Fprintf(w, "  %-24s %d\n", r, snap.Counters[r])
	}
	return nil
}
