package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/knovel/knovel/call"
	"github.com/knovel/knovel/partition"
	"github.com/knovel/knovel/readstream"
	"github.com/knovel/knovel/runsummary"
)

func mkPartition(label string, n int) *partition.Partition {
	reads := make([]*readstream.AugmentedRead, n)
	for i := range reads {
		reads[i] = &readstream.AugmentedRead{Read: readstream.Read{ID: []byte(label)}}
	}
	return &partition.Partition{Label: label, Reads: reads}
}

func TestRunFeedsEveryPartitionToSink(t *testing.T) {
	partitions := []*partition.Partition{
		mkPartition("cc0", 3),
		mkPartition("cc1", 2),
		mkPartition("cc2", 4),
	}

	stage := func(ctx context.Context, p *partition.Partition) ([]*call.Call, error) {
		return []*call.Call{{SeqID: p.Label, Pos: len(p.Reads)}}, nil
	}

	var mu sync.Mutex
	seen := map[string]bool{}
	sink := func(p *partition.Partition, calls []*call.Call) {
		mu.Lock()
		defer mu.Unlock()
		seen[p.Label] = true
	}

	summary := runsummary.New()
	if err := Run(context.Background(), partitions, stage, sink, summary, Options{}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	for _, p := range partitions {
		if !seen[p.Label] {
			t.Errorf("partition %s was never sent to sink", p.Label)
		}
	}
}

func TestRunSkipsEmptyPartitionsAndCountsThem(t *testing.T) {
	partitions := []*partition.Partition{mkPartition("cc0", 0), mkPartition("cc1", 1)}
	var calls int
	stage := func(ctx context.Context, p *partition.Partition) ([]*call.Call, error) {
		calls++
		return nil, nil
	}
	summary := runsummary.New()
	sink := func(p *partition.Partition, c []*call.Call) {}

	if err := Run(context.Background(), partitions, stage, sink, summary, Options{}); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("stage invoked %d times, want 1 (empty partition should be skipped)", calls)
	}
	if got := summary.Count(runsummary.PartitionTooSmall); got != 1 {
		t.Errorf("PartitionTooSmall count = %d, want 1", got)
	}
}

func TestRunReturnsFirstStageError(t *testing.T) {
	partitions := []*partition.Partition{mkPartition("cc0", 1), mkPartition("cc1", 1)}
	wantErr := errors.New("boom")
	stage := func(ctx context.Context, p *partition.Partition) ([]*call.Call, error) {
		return nil, wantErr
	}
	sink := func(p *partition.Partition, c []*call.Call) {}

	err := Run(context.Background(), partitions, stage, sink, nil, Options{})
	if err != wantErr {
		t.Errorf("Run() error = %v, want %v", err, wantErr)
	}
}

func TestRunNoopOnEmptyPartitionList(t *testing.T) {
	called := false
	stage := func(ctx context.Context, p *partition.Partition) ([]*call.Call, error) {
		called = true
		return nil, nil
	}
	sink := func(p *partition.Partition, c []*call.Call) {}
	if err := Run(context.Background(), nil, stage, sink, nil, Options{}); err != nil {
		t.Fatal(err)
	}
	if called {
		t.Error("stage should never be called for an empty partition list")
	}
}
