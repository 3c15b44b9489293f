// Package likelihood implements the trio genotype-likelihood model
// (spec.md §4.I): per-sample k-mer abundance distributions modeled as
// Normal(μ·g, σ·√g) for genotype dosage g, and the de novo log-likelihood
// score derived from them.
package likelihood

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/knovel/knovel/sketch"
)

// Genotype is one of the three diploid states scored per sample.
type Genotype int

const (
	HomRef Genotype = iota // 0/0
	Het                    // 0/1
	HomAlt                 // 1/1
)

// dosage is the expected copy number of the alt allele's k-mer signal.
func (g Genotype) dosage() float64 {
	switch g {
	case HomRef:
		return 0
	case Het:
		return 1
	case HomAlt:
		return 2
	}
	return 0
}

// AbundanceModel is a sample's estimated haploid-coverage distribution,
// mean μ and standard deviation σ over non-zero k-mer abundances.
type AbundanceModel struct {
	Mean float64
	SD   float64
}

// EstimateAbundanceModel computes (μ, σ) from the non-zero abundances in
// hist, excluding the top TailFrac fraction of the distribution by value
// (spec.md §4.I: "excluding the tail") so a handful of extremely abundant
// repetitive k-mers don't skew the haploid-coverage estimate.
func EstimateAbundanceModel(abundances []uint16, tailFrac float64) AbundanceModel {
	var nonZero []float64
	for _, a := range abundances {
		if a > 0 {
			nonZero = append(nonZero, float64(a))
		}
	}
	if len(nonZero) == 0 {
		return AbundanceModel{}
	}
	sort.Float64s(nonZero)
	if tailFrac > 0 && tailFrac < 1 {
		cut := int(float64(len(nonZero)) * (1 - tailFrac))
		if cut > 0 && cut < len(nonZero) {
			nonZero = nonZero[:cut]
		}
	}
	mean, sd := stat.MeanStdDev(nonZero, nil)
	return AbundanceModel{Mean: mean, SD: sd}
}

// genotypeLogPDF returns log P(observed mean abundance | genotype) under
// Normal(mean*dosage, sd*sqrt(dosage)); dosage 0 uses Normal(0, sd) instead
// of a zero-width distribution (spec.md §4.I: "Expected k-mer abundance per genotype: 0 for
// 0/0, μ for 0/1, 2μ for 1/1").
func genotypeLogPDF(model AbundanceModel, g Genotype, observed float64) float64 {
	d := g.dosage()
	if d == 0 {
		// A true 0/0 genotype should show ~zero alt-window abundance;
		// model departures from that with a tight Normal around 0 using
		// the same sigma scale as the het state's dosage=1 case.
		sd := model.SD
		if sd <= 0 {
			sd = 1
		}
		n := distuv.Normal{Mu: 0, Sigma: sd}
		return n.LogProb(observed)
	}
	sd := model.SD * math.Sqrt(d)
	if sd <= 0 {
		sd = 1
	}
	n := distuv.Normal{Mu: model.Mean * d, Sigma: sd}
	return n.LogProb(observed)
}

// SampleObservation is the mean abundance of a call's VW (alt support) and
// RW\VW (ref support) k-mers in one sample's sketch.
type SampleObservation struct {
	AltMean float64
	RefMean float64
}

// Observe computes a SampleObservation for one sample's sketch given a
// call's VW and RW k-mer sets (spec.md §4.I: "Observed statistic per
// sample: mean abundance of VW k-mers ... mean abundance of RW \ VW").
func Observe(s *sketch.Sketch, vw, rw []uint64) SampleObservation {
	return SampleObservation{
		AltMean: meanAbundance(s, vw),
		RefMean: meanAbundance(s, setDifference(rw, vw)),
	}
}

func meanAbundance(s *sketch.Sketch, codes []uint64) float64 {
	if len(codes) == 0 {
		return 0
	}
	var sum float64
	for _, c := range codes {
		sum += float64(s.Count(c))
	}
	return sum / float64(len(codes))
}

func setDifference(a, b []uint64) []uint64 {
	inB := make(map[uint64]bool, len(b))
	for _, c := range b {
		inB[c] = true
	}
	var out []uint64
	for _, c := range a {
		if !inB[c] {
			out = append(out, c)
		}
	}
	return out
}

// TrioObservation bundles the proband and two parents' observations for
// one call.
type TrioObservation struct {
	Proband, Parent1, Parent2 SampleObservation
}

// TrioModels bundles the three samples' abundance models.
type TrioModels struct {
	Proband, Parent1, Parent2 AbundanceModel
}

// Score computes the de novo log-likelihood score of spec.md §4.I:
// log P(proband het, parents hom-ref) - log P(proband het, parents
// transmitting [at least one parent het or hom-alt]).
//
// The "parents transmitting" alternative takes the most likely of the
// three carrier configurations (parent1 only, parent2 only, both), where
// a carrier parent scores its better of het and hom-alt; this keeps the
// score a clean two-hypothesis log-odds rather than a full
// marginalization over inheritance patterns.
func Score(models TrioModels, obs TrioObservation) float64 {
	probandHet := genotypeLogPDF(models.Proband, Het, obs.Proband.AltMean) +
		genotypeLogPDF(models.Proband, HomRef, obs.Proband.RefMean)

	p1Ref := genotypeLogPDF(models.Parent1, HomRef, obs.Parent1.AltMean)
	p2Ref := genotypeLogPDF(models.Parent2, HomRef, obs.Parent2.AltMean)
	p1Alt := math.Max(genotypeLogPDF(models.Parent1, Het, obs.Parent1.AltMean),
		genotypeLogPDF(models.Parent1, HomAlt, obs.Parent1.AltMean))
	p2Alt := math.Max(genotypeLogPDF(models.Parent2, Het, obs.Parent2.AltMean),
		genotypeLogPDF(models.Parent2, HomAlt, obs.Parent2.AltMean))

	denovoHyp := probandHet + p1Ref + p2Ref
	transmittedHyp := probandHet + math.Max(p1Alt+p2Ref, math.Max(p1Ref+p2Alt, p1Alt+p2Alt))

	return denovoHyp - transmittedHyp
}

// LikelihoodFailThreshold is the boundary below which a call earns the
// LikelihoodFail filter (spec.md §4.I: "Negative scores earn the
// LikelihoodFail filter").
const LikelihoodFailThreshold = 0

// Fails reports whether score earns the LikelihoodFail filter.
func Fails(score float64) bool { return score < LikelihoodFailThreshold }

// BestGenotype returns the genotype whose dosage model best explains
// observed under model, by direct comparison of the three genotype
// log-densities. Used to populate a VCF record's per-sample GT field
// alongside the trio de novo score.
func BestGenotype(model AbundanceModel, observed float64) Genotype {
	best := HomRef
	bestLogP := genotypeLogPDF(model, HomRef, observed)
	for _, g := range []Genotype{Het, HomAlt} {
		if lp := genotypeLogPDF(model, g, observed); lp > bestLogP {
			best, bestLogP = g, lp
		}
	}
	return best
}

// GTString renders a genotype as the VCF GT field's 0/0, 0/1, 1/1 form.
func (g Genotype) GTString() string {
	switch g {
	case Het:
		return "0/1"
	case HomAlt:
		return "1/1"
	default:
		return "0/0"
	}
}
