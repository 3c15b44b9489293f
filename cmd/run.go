package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/shenwei356/xopen"

	"github.com/knovel/knovel/align"
	"github.com/knovel/knovel/assemble"
	callpkg "github.com/knovel/knovel/call"
	lh "github.com/knovel/knovel/likelihood"
	"github.com/knovel/knovel/kmer"
	"github.com/knovel/knovel/novel"
	"github.com/knovel/knovel/partition"
	"github.com/knovel/knovel/pipeline"
	"github.com/knovel/knovel/readstream"
	"github.com/knovel/knovel/refindex"
	"github.com/knovel/knovel/refine"
	"github.com/knovel/knovel/runsummary"
	"github.com/knovel/knovel/sketch"
	"github.com/knovel/knovel/vcfio"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Chain Novel through Likelihood for one trio invocation (spec.md §5)",
	Long: `Chain Novel through Likelihood for one trio invocation (spec.md §5)

Builds the case/control sketches, streams the proband reads through Novel
and Filter, partitions the survivors, then fans each partition out across
a fixed-size worker pool that runs Assemble -> Localize -> Call ->
Likelihood, and writes one VCF with every surviving call.
`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		timeStart := time.Now()
		summary := runsummary.New()

		cfg, err := loadConfig(getFlagString(cmd, "config"))
		checkError(err)

		k := effectiveInt(cmd, "kmer", cfg.K)
		caseMin := effectiveInt(cmd, "case-min", cfg.CaseMin)
		ctrlMax := effectiveInt(cmd, "ctrl-max", cfg.CtrlMax)
		abundScreen := effectiveInt(cmd, "abund-screen", cfg.AbundScreen)
		sketchBytes := effectiveInt(cmd, "sketch-bytes", int(cfg.BytesBudget))
		ctrlSketchBytes := getFlagPositiveInt(cmd, "ctrl-sketch-bytes")
		refSketchBytes := getFlagPositiveInt(cmd, "ref-sketch-bytes")

		probandFiles := getFlagStringSlice(cmd, "proband")
		parent1Files := getFlagStringSlice(cmd, "parent1")
		parent2Files := getFlagStringSlice(cmd, "parent2")
		refFile := getFlagString(cmd, "reference")
		outFile := getFlagString(cmd, "out-file")
		summaryFile := getFlagString(cmd, "summary")
		if len(probandFiles) == 0 || len(parent1Files) == 0 || len(parent2Files) == 0 || refFile == "" || outFile == "" {
			checkErrorExitCode(fmt.Errorf("--proband, --parent1, --parent2, -r/--reference, and -o/--out-file are required"), 1)
		}

		if outDir := getFlagString(cmd, "out-dir"); outDir != "" {
			makeOutDir(outDir, getFlagBool(cmd, "force"))
			outFile = filepath.Join(outDir, outFile)
			if summaryFile != "" {
				summaryFile = filepath.Join(outDir, summaryFile)
			}
		}

		minOverlap := getFlagPositiveInt(cmd, "min-overlap")
		minContigLen := getFlagPositiveInt(cmd, "min-contig-length")
		seedSize := getFlagPositiveInt(cmd, "seed-size")
		seedSpacing := effectiveInt(cmd, "seed-spacing", cfg.SeedSpacing)
		deltaL := effectiveInt(cmd, "delta-l", cfg.DeltaL)
		pad := getFlagNonNegativeInt(cmd, "pad")
		homopolymerMinLen := getFlagNonNegativeInt(cmd, "homopolymer-min-len")
		mergeWindow := effectiveInt(cmd, "merge-window", cfg.MergeWindow)
		allowTerminalSNV := getFlagBool(cmd, "allow-terminal-snv")
		terminalDist := effectiveInt(cmd, "terminal-distance", cfg.TerminalDistance)
		tailFrac := getFlagFloat64(cmd, "tail-frac")
		matchScore := effectiveInt(cmd, "match-score", cfg.MatchScore)
		mismatchScore := effectiveInt(cmd, "mismatch-score", cfg.MismatchScore)
		gapOpen := effectiveInt(cmd, "gap-open", cfg.GapOpen)
		gapExtend := effectiveInt(cmd, "gap-extend", cfg.GapExtend)

		log.Infof("building case/control sketches")
		caseSketch, err := buildSketch(probandFiles, k, sketchBytes, nil)
		checkError(err)
		parent1Sketch, err := buildSketch(parent1Files, k, ctrlSketchBytes, caseSketch)
		checkError(err)
		parent2Sketch, err := buildSketch(parent2Files, k, ctrlSketchBytes, caseSketch)
		checkError(err)

		refs, err := loadReferenceFasta(refFile)
		checkError(err)
		refSketch, err := sketch.New(sketch.Options{K: uint8(k), H: 2, BytesBudget: uint64(refSketchBytes), Kind: sketch.KindPresence})
		checkError(err)
		for _, seq := range refs {
			it, err := kmer.NewIterator(seq, uint8(k))
			checkError(err)
			for {
				code, _, ok := it.Next()
				if !ok {
					break
				}
				refSketch.Add(code)
			}
		}
		seedIdx, err := refindex.BuildIndex(refs, uint8(seedSize))
		checkError(err)

		log.Infof("streaming proband reads through Novel")
		src := readstream.NewSource(probandFiles)
		nf := novel.New(novel.Options{
			K: k, CaseMin: uint16(caseMin), CtrlMax: uint16(ctrlMax), AbundScreen: uint16(abundScreen),
		}, caseSketch, []*sketch.Sketch{parent1Sketch, parent2Sketch})

		var novelReads []*readstream.AugmentedRead
		checkError(nf.Apply(src, func(ar *readstream.AugmentedRead) error {
			novelReads = append(novelReads, ar)
			return nil
		}))
		src.Close()
		log.Infof("novel: %d/%d reads survived", nf.Stats.ReadsOut, nf.Stats.ReadsIn)

		log.Infof("refining against the reference")
		recount, err := refine.BuildRecountSketch(uint8(k), uint64(ctrlSketchBytes), novelReads)
		checkError(err)
		rf := refine.New(refine.Options{K: k, CaseMin: uint16(caseMin)}, refSketch, recount, nil)
		var refined []*readstream.AugmentedRead
		for _, ar := range novelReads {
			if rf.Apply(ar) {
				refined = append(refined, ar)
			}
		}
		log.Infof("filter: %d/%d reads survived refinement", len(refined), len(novelReads))

		partitions, pstats := partition.Build(refined, partition.Options{})
		log.Infof("partition: %d partitions from %d reads (%d duplicates dropped)",
			pstats.PartitionsOut, pstats.ReadsIn, pstats.DuplicatesDropped)

		assembleOpts := assemble.Options{K: k, MinOverlap: minOverlap, MinContigLength: minContigLen}
		localizeOpts := refindex.Options{SeedSize: uint8(seedSize), Spacing: seedSpacing, DeltaL: deltaL, Pad: pad}
		callOpts := callpkg.Options{K: k, MergeWindow: mergeWindow, AllowTerminalSNV: allowTerminalSNV, TerminalDistance: terminalDist, PadLen: pad, HomopolymerMinLen: homopolymerMinLen}
		aligner := align.NewAligner(align.AlignOptions{
			MatchScore: matchScore, MismatchScore: mismatchScore,
			GapOpen: gapOpen, GapExtend: gapExtend,
		})

		var collected recordsCollector
		stage := func(ctx context.Context, p *partition.Partition) ([]*callpkg.Call, error) {
			if len(p.Reads) < 2 {
				summary.Add(runsummary.PartitionTooSmall)
				return nil, nil
			}
			contigs, err := assemble.Run(nil, p, assembleOpts)
			if err != nil {
				return nil, err
			}
			if len(contigs) == 0 {
				summary.Add(runsummary.AssemblyFail)
				return nil, nil
			}

			candidates := make(map[string][]struct {
				Score int
				Calls []*callpkg.Call
			})
			for i, c := range contigs {
				contigID := fmt.Sprintf("%s.contig%d", p.Label, i+1)
				windows, ok, err := refindex.Localize(c.Seq, seedIdx, localizeOpts)
				if err != nil {
					return nil, err
				}
				if !ok {
					summary.Add(runsummary.NoReferenceMatch)
					continue
				}
				for _, win := range windows {
					seq, ok := refs[win.SeqID]
					if !ok {
						continue
					}
					window := refindex.ExtractRegion(seq, win)
					if len(window) == 0 {
						continue
					}
					cigar := aligner.Align(c.Seq, window)
					calls := callpkg.FromAlignment(contigID, win.SeqID, c.Seq, c.NovelKmers, window, win.Start, cigar, callOpts)
					candidates[contigID] = append(candidates[contigID], struct {
						Score int
						Calls []*callpkg.Call
					}{Score: cigar.Score, Calls: calls})
					align.RecycleCIGAR(cigar)
				}
			}
			best := callpkg.BestPerContig(candidates)
			return callpkg.Dedup(best), nil
		}

		sink := func(p *partition.Partition, calls []*callpkg.Call) {
			collected.calls = append(collected.calls, calls...)
		}

		log.Infof("assembling/localizing/calling %d partitions", len(partitions))
		checkError(pipeline.Run(context.Background(), partitions, stage, sink, summary, pipeline.Options{NumWorkers: opt.NumCPUs}))

		allCalls := callpkg.Dedup(collected.calls)
		log.Infof("call: %d distinct variant calls", len(allCalls))

		models := lh.TrioModels{
			Proband: lh.EstimateAbundanceModel(caseSketch.Row(0), tailFrac),
			Parent1: lh.EstimateAbundanceModel(parent1Sketch.Row(0), tailFrac),
			Parent2: lh.EstimateAbundanceModel(parent2Sketch.Row(0), tailFrac),
		}

		out, err := xopen.Wopen(outFile)
		checkError(err)
		defer out.Close()
		checkError(vcfio.Header(out, [3]string{"PROBAND", "PARENT1", "PARENT2"}))

		var records []*vcfio.Record
		var failed int
		for _, c := range allCalls {
			vw := kmerCodes(c.VW, uint8(k))
			rw := kmerCodes(c.RW, uint8(k))
			obs := lh.TrioObservation{
				Proband: lh.Observe(caseSketch, vw, rw),
				Parent1: lh.Observe(parent1Sketch, vw, rw),
				Parent2: lh.Observe(parent2Sketch, vw, rw),
			}
			score := lh.Score(models, obs)
			filters := buildFilters(c, obs, score)
			if lh.Fails(score) {
				failed++
			}
			records = append(records, &vcfio.Record{
				Call:      c,
				LikeScore: score,
				Filters:   filters,
				GT: [3]string{
					lh.BestGenotype(models.Proband, obs.Proband.AltMean).GTString(),
					lh.BestGenotype(models.Parent1, obs.Parent1.AltMean).GTString(),
					lh.BestGenotype(models.Parent2, obs.Parent2.AltMean).GTString(),
				},
			})
		}
		checkError(vcfio.WriteRecords(out, records, true))

		if summaryFile != "" {
			sfh, err := xopen.Wopen(summaryFile)
			checkError(err)
			checkError(summary.WriteJSON(sfh))
			sfh.Close()
		}

		if opt.Verbose {
			log.Infof("likelihood: %d calls, %d LikelihoodFail", len(records), failed)
			checkError(summary.WriteHuman(os.Stderr))
			log.Infof("elapsed time: %s", time.Since(timeStart))
		}
	},
}

// recordsCollector is a plain accumulator fed from pipeline.Run's Sink,
// which the pipeline itself already calls under a single writer mutex
// (spec.md §5: "the output writer's buffered sink, protected by a mutex"),
// so no additional locking is needed here.
type recordsCollector struct {
	calls []*callpkg.Call
}

// buildSketch builds and populates a counting sketch from files; when
// parent is non-nil, only k-mers present in parent are inserted (spec.md
// §4.A's cascaded sizing, used to keep each control sketch small relative
// to the case sketch it is cascaded from).
func buildSketch(files []string, k, bytesBudget int, parent *sketch.Sketch) (*sketch.Sketch, error) {
	s, err := sketch.New(sketch.Options{K: uint8(k), H: 2, BytesBudget: uint64(bytesBudget), Kind: sketch.KindCount})
	if err != nil {
		return nil, err
	}
	src := readstream.NewSource(files)
	defer src.Close()
	for {
		r, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		it, err := kmer.NewIterator(r.Seq, uint8(k))
		if err != nil {
			return nil, err
		}
		for {
			code, _, ok := it.Next()
			if !ok {
				break
			}
			if parent != nil {
				if err := s.AddCascaded(code, parent); err != nil {
					return nil, err
				}
			} else {
				s.Add(code)
			}
		}
	}
	return s, nil
}

func init() {
	RootCmd.AddCommand(runCmd)

	runCmd.Flags().IntP("kmer", "k", 31, formatFlagUsage(`K-mer size.`))
	runCmd.Flags().IntP("case-min", "", 5, formatFlagUsage(`Minimum case sketch abundance for a k-mer to be called novel.`))
	runCmd.Flags().IntP("ctrl-max", "", 0, formatFlagUsage(`Maximum allowed abundance in every control sketch.`))
	runCmd.Flags().IntP("abund-screen", "", 5000, formatFlagUsage(`Drop a read if any k-mer falls below this case abundance (0 disables).`))
	runCmd.Flags().IntP("sketch-bytes", "", 1<<30, formatFlagUsage(`Byte budget for the proband (case) sketch.`))
	runCmd.Flags().IntP("ctrl-sketch-bytes", "", 1<<24, formatFlagUsage(`Byte budget for each cascaded control sketch and the refinement recount sketch.`))
	runCmd.Flags().IntP("ref-sketch-bytes", "", 1<<28, formatFlagUsage(`Byte budget for the reference presence sketch used by Filter.`))
	runCmd.Flags().StringSliceP("proband", "", nil, formatFlagUsage(`Proband FASTA/Q file(s).`))
	runCmd.Flags().StringSliceP("parent1", "", nil, formatFlagUsage(`Parent 1 (control) FASTA/Q file(s).`))
	runCmd.Flags().StringSliceP("parent2", "", nil, formatFlagUsage(`Parent 2 (control) FASTA/Q file(s).`))
	runCmd.Flags().StringP("reference", "r", "", formatFlagUsage(`Reference FASTA file.`))
	runCmd.Flags().StringP("out-file", "o", "", formatFlagUsage(`Output VCF file.`))
	runCmd.Flags().StringP("summary", "", "", formatFlagUsage(`Optional run-summary JSON sidecar path.`))
	runCmd.Flags().StringP("out-dir", "", "", formatFlagUsage(`Directory to create and write --out-file/--summary into, instead of treating them as already-resolved paths.`))
	runCmd.Flags().BoolP("force", "", false, formatFlagUsage(`Overwrite --out-dir if it exists and is not empty.`))

	runCmd.Flags().IntP("min-overlap", "", 31, formatFlagUsage(`Minimum exact overlap for the greedy assembly fallback.`))
	runCmd.Flags().IntP("min-contig-length", "", 62, formatFlagUsage(`Minimum emitted contig length.`))
	runCmd.Flags().IntP("seed-size", "", 31, formatFlagUsage(`Seed k-mer size for reference localization.`))
	runCmd.Flags().IntP("seed-spacing", "s", 10, formatFlagUsage(`Spacing between extracted seeds.`))
	runCmd.Flags().IntP("delta-l", "", 500, formatFlagUsage(`Cluster band width for localization.`))
	runCmd.Flags().IntP("pad", "", 50, formatFlagUsage(`Reference window padding.`))
	runCmd.Flags().IntP("homopolymer-min-len", "", 4, formatFlagUsage(`Minimum length of a single-base ref or alt allele for a call to earn the Homopolymer FILTER (0 disables).`))
	runCmd.Flags().IntP("merge-window", "", 10, formatFlagUsage(`Adjacent-event merge window.`))
	runCmd.Flags().BoolP("allow-terminal-snv", "", false, formatFlagUsage(`Report SNVs near a contig end.`))
	runCmd.Flags().IntP("terminal-distance", "", 12, formatFlagUsage(`Contig-end distance within which an SNV is suppressed.`))
	runCmd.Flags().Float64P("tail-frac", "", 0.01, formatFlagUsage(`High-abundance tail fraction excluded from each sample's abundance model.`))
	runCmd.Flags().IntP("match-score", "", align.DefaultAlignOptions.MatchScore, formatFlagUsage(`Match score.`))
	runCmd.Flags().IntP("mismatch-score", "", align.DefaultAlignOptions.MismatchScore, formatFlagUsage(`Mismatch score (negative).`))
	runCmd.Flags().IntP("gap-open", "", align.DefaultAlignOptions.GapOpen, formatFlagUsage(`Gap open score (negative).`))
	runCmd.Flags().IntP("gap-extend", "", align.DefaultAlignOptions.GapExtend, formatFlagUsage(`Gap extend score (negative).`))
}
