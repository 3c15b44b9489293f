package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shenwei356/xopen"

	lh "github.com/knovel/knovel/likelihood"
	"github.com/knovel/knovel/sketch"
	"github.com/knovel/knovel/vcfio"
)

var likelihoodCmd = &cobra.Command{
	Use:   "likelihood",
	Short: "Score each call's trio genotype likelihood and write the final VCF (spec.md §4.I)",
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		timeStart := time.Now()

		k := getFlagPositiveInt(cmd, "kmer")
		tailFrac := getFlagFloat64(cmd, "tail-frac")
		probandSketchFile := getFlagString(cmd, "proband-sketch")
		parent1SketchFile := getFlagString(cmd, "parent1-sketch")
		parent2SketchFile := getFlagString(cmd, "parent2-sketch")
		sampleNames := getFlagStringSlice(cmd, "sample-names")
		callsFile := getFlagString(cmd, "calls")
		outFile := getFlagString(cmd, "out-file")
		if probandSketchFile == "" || parent1SketchFile == "" || parent2SketchFile == "" || callsFile == "" || outFile == "" {
			checkErrorExitCode(fmt.Errorf("--proband-sketch, --parent1-sketch, --parent2-sketch, --calls, and -o/--out-file are required"), 1)
		}
		if len(sampleNames) != 3 {
			sampleNames = []string{"PROBAND", "PARENT1", "PARENT2"}
		}

		proband, err := sketch.Load(probandSketchFile)
		checkError(err)
		parent1, err := sketch.Load(parent1SketchFile)
		checkError(err)
		parent2, err := sketch.Load(parent2SketchFile)
		checkError(err)

		models := lh.TrioModels{
			Proband: lh.EstimateAbundanceModel(proband.Row(0), tailFrac),
			Parent1: lh.EstimateAbundanceModel(parent1.Row(0), tailFrac),
			Parent2: lh.EstimateAbundanceModel(parent2.Row(0), tailFrac),
		}

		callsFh, err := xopen.Ropen(callsFile)
		checkError(err)
		defer callsFh.Close()
		calls, _, err := readCalls(callsFh)
		checkError(err)

		out, err := xopen.Wopen(outFile)
		checkError(err)
		defer out.Close()

		var samples [3]string
		copy(samples[:], sampleNames)
		checkError(vcfio.Header(out, samples))

		var records []*vcfio.Record
		var failed int
		for _, c := range calls {
			vw := kmerCodes(c.VW, uint8(k))
			rw := kmerCodes(c.RW, uint8(k))

			obs := lh.TrioObservation{
				Proband: lh.Observe(proband, vw, rw),
				Parent1: lh.Observe(parent1, vw, rw),
				Parent2: lh.Observe(parent2, vw, rw),
			}
			score := lh.Score(models, obs)
			filters := buildFilters(c, obs, score)
			if lh.Fails(score) {
				failed++
			}

			r := &vcfio.Record{
				Call:      c,
				LikeScore: score,
				Filters:   filters,
				GT: [3]string{
					lh.BestGenotype(models.Proband, obs.Proband.AltMean).GTString(),
					lh.BestGenotype(models.Parent1, obs.Parent1.AltMean).GTString(),
					lh.BestGenotype(models.Parent2, obs.Parent2.AltMean).GTString(),
				},
			}
			records = append(records, r)
		}
		checkError(vcfio.WriteRecords(out, records, true))

		if opt.Verbose {
			log.Infof("calls scored: %d, LikelihoodFail: %d", len(records), failed)
			log.Infof("elapsed time: %s", time.Since(timeStart))
		}
	},
}

func init() {
	RootCmd.AddCommand(likelihoodCmd)

	likelihoodCmd.Flags().IntP("kmer", "k", 31, formatFlagUsage(`K-mer size of the RW/VW k-mer sets.`))
	likelihoodCmd.Flags().Float64P("tail-frac", "", 0.01, formatFlagUsage(`Fraction of the high-abundance tail excluded when estimating each sample's abundance model.`))
	likelihoodCmd.Flags().StringP("proband-sketch", "", "", formatFlagUsage(`Proband counting sketch.`))
	likelihoodCmd.Flags().StringP("parent1-sketch", "", "", formatFlagUsage(`Parent 1 counting sketch.`))
	likelihoodCmd.Flags().StringP("parent2-sketch", "", "", formatFlagUsage(`Parent 2 counting sketch.`))
	likelihoodCmd.Flags().StringSliceP("sample-names", "", nil, formatFlagUsage(`VCF sample column names, proband,parent1,parent2 (default PROBAND,PARENT1,PARENT2).`))
	likelihoodCmd.Flags().StringP("calls", "", "", formatFlagUsage(`Input calls TSV file (from 'call').`))
	likelihoodCmd.Flags().StringP("out-file", "o", "", formatFlagUsage(`Output VCF file.`))
}
