package likelihood

import (
	"testing"

	"github.com/knovel/knovel/sketch"
)

func TestEstimateAbundanceModelIgnoresZeros(t *testing.T) {
	model := EstimateAbundanceModel([]uint16{0, 0, 30, 32, 28, 0}, 0)
	if model.Mean < 28 || model.Mean > 32 {
		t.Errorf("mean = %f, want ~30", model.Mean)
	}
}

func TestEstimateAbundanceModelTrimsTail(t *testing.T) {
	abund := make([]uint16, 0, 100)
	for i := 0; i < 99; i++ {
		abund = append(abund, 30)
	}
	abund = append(abund, 10000) // extreme outlier in the excluded tail
	model := EstimateAbundanceModel(abund, 0.05)
	if model.Mean > 100 {
		t.Errorf("expected the tail-trimmed mean to stay near 30, got %f", model.Mean)
	}
}

func TestScoreIsPositiveForCleanDenovoPattern(t *testing.T) {
	models := TrioModels{
		Proband: AbundanceModel{Mean: 30, SD: 5},
		Parent1: AbundanceModel{Mean: 30, SD: 5},
		Parent2: AbundanceModel{Mean: 30, SD: 5},
	}
	// proband het (alt ~15, ref ~15); both parents show no alt signal at all
	obs := TrioObservation{
		Proband: SampleObservation{AltMean: 15, RefMean: 15},
		Parent1: SampleObservation{AltMean: 0, RefMean: 30},
		Parent2: SampleObservation{AltMean: 0, RefMean: 30},
	}
	score := Score(models, obs)
	if Fails(score) {
		t.Errorf("expected a clean de novo pattern to score non-negative, got %f", score)
	}
}

func TestScoreIsNegativeWhenParentTransmits(t *testing.T) {
	models := TrioModels{
		Proband: AbundanceModel{Mean: 30, SD: 5},
		Parent1: AbundanceModel{Mean: 30, SD: 5},
		Parent2: AbundanceModel{Mean: 30, SD: 5},
	}
	// parent1 also shows ~30 alt abundance (the het expectation μ): looks
	// transmitted, not de novo
	obs := TrioObservation{
		Proband: SampleObservation{AltMean: 15, RefMean: 15},
		Parent1: SampleObservation{AltMean: 30, RefMean: 30},
		Parent2: SampleObservation{AltMean: 0, RefMean: 30},
	}
	score := Score(models, obs)
	if !Fails(score) {
		t.Errorf("expected a transmitted-looking call to fail LikelihoodFail, got score %f", score)
	}
}

func TestObserveSplitsRWAndVW(t *testing.T) {
	s, err := sketch.New(sketch.Options{K: 11, H: 3, BytesBudget: 1 << 14, Kind: sketch.KindCount})
	if err != nil {
		t.Fatal(err)
	}
	vw := []uint64{1, 2}
	rwOnly := []uint64{3, 4}
	for i := 0; i < 20; i++ {
		s.Add(1)
		s.Add(2)
	}
	for i := 0; i < 5; i++ {
		s.Add(3)
		s.Add(4)
	}
	rw := append(append([]uint64{}, vw...), rwOnly...)

	obs := Observe(s, vw, rw)
	if obs.AltMean < obs.RefMean {
		t.Errorf("expected AltMean (%f) >= RefMean (%f) given higher VW abundance", obs.AltMean, obs.RefMean)
	}
}
