package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shenwei356/xopen"

	"github.com/knovel/knovel/align"
	"github.com/knovel/knovel/augfastx"
	callpkg "github.com/knovel/knovel/call"
	"github.com/knovel/knovel/refindex"
)

var callCmd = &cobra.Command{
	Use:   "call",
	Short: "Align each contig to its candidate reference window(s) and interpret the CIGAR into variant calls (spec.md §4.H)",
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		timeStart := time.Now()

		k := getFlagPositiveInt(cmd, "kmer")
		matchScore := getFlagInt(cmd, "match-score")
		mismatchScore := getFlagInt(cmd, "mismatch-score")
		gapOpen := getFlagInt(cmd, "gap-open")
		gapExtend := getFlagInt(cmd, "gap-extend")
		mergeWindow := getFlagNonNegativeInt(cmd, "merge-window")
		allowTerminalSNV := getFlagBool(cmd, "allow-terminal-snv")
		terminalDist := getFlagNonNegativeInt(cmd, "terminal-distance")
		padLen := getFlagNonNegativeInt(cmd, "pad-len")
			homopolymerMinLen := getFlagNonNegativeInt(cmd, "homopolymer-min-len")
		refFile := getFlagString(cmd, "reference")
		contigsFile := getFlagString(cmd, "contigs")
		windowsFile := getFlagString(cmd, "windows")
		outFile := getFlagString(cmd, "out-file")
		if refFile == "" || contigsFile == "" || windowsFile == "" || outFile == "" {
			checkErrorExitCode(fmt.Errorf("-r/--reference, -c/--contigs, -w/--windows, and -o/--out-file are required"), 1)
		}

		refs, err := loadReferenceFasta(refFile)
		checkError(err)

		contigsFh, err := xopen.Ropen(contigsFile)
		checkError(err)
		defer contigsFh.Close()
		contigs, err := readAllAugmented(augfastx.NewReader(contigsFh, uint8(k)))
		checkError(err)
		contigByID := make(map[string]int)
		for i, c := range contigs {
			contigByID[string(c.ID)] = i
		}

		windowsFh, err := xopen.Ropen(windowsFile)
		checkError(err)
		defer windowsFh.Close()
		windowSets, err := readWindows(windowsFh)
		checkError(err)

		aligner := align.NewAligner(align.AlignOptions{
			MatchScore: matchScore, MismatchScore: mismatchScore,
			GapOpen: gapOpen, GapExtend: gapExtend,
		})
		callOpts := callpkg.Options{
			K: k, MergeWindow: mergeWindow, AllowTerminalSNV: allowTerminalSNV,
			TerminalDistance: terminalDist, PadLen: padLen, HomopolymerMinLen: homopolymerMinLen,
		}

		candidates := make(map[string][]struct {
			Score int
			Calls []*callpkg.Call
		})
		partitionOf := make(map[string]string)
		var noMatch, aligned int

		for _, cw := range windowSets {
			partitionOf[cw.ContigID] = cw.Partition
			if !cw.Matched {
				noMatch++
				continue
			}
			ci, ok := contigByID[cw.ContigID]
			if !ok {
				continue
			}
			contig := contigs[ci]

			for _, win := range cw.Windows {
				seq, ok := refs[win.SeqID]
				if !ok {
					continue
				}
				window := refindex.ExtractRegion(seq, win)
				if len(window) == 0 {
					continue
				}
				cigar := aligner.Align(contig.Seq, window)
				calls := callpkg.FromAlignment(string(contig.ID), win.SeqID, contig.Seq, contig.NovelKmers, window, win.Start, cigar, callOpts)
				candidates[cw.ContigID] = append(candidates[cw.ContigID], struct {
					Score int
					Calls []*callpkg.Call
				}{Score: cigar.Score, Calls: calls})
				align.RecycleCIGAR(cigar)
			}
			aligned++
		}

		best := callpkg.BestPerContig(candidates)

		// Dedup within each partition (spec.md §4.H: "duplicates across
		// contigs in the same partition are merged").
		byPartition := make(map[string][]*callpkg.Call)
		for _, c := range best {
			byPartition[partitionOf[c.ContigID]] = append(byPartition[partitionOf[c.ContigID]], c)
		}
		var deduped []*callpkg.Call
		for _, calls := range byPartition {
			deduped = append(deduped, callpkg.Dedup(calls)...)
		}

		out, err := xopen.Wopen(outFile)
		checkError(err)
		defer out.Close()
		checkError(writeCalls(out, deduped, partitionOf))

		if opt.Verbose {
			log.Infof("contigs localized: %d, no reference match: %d, calls emitted: %d", aligned, noMatch, len(deduped))
			log.Infof("elapsed time: %s", time.Since(timeStart))
		}
	},
}

func init() {
	RootCmd.AddCommand(callCmd)

	callCmd.Flags().IntP("kmer", "k", 31, formatFlagUsage(`K-mer size of the contig annotations.`))
	callCmd.Flags().IntP("match-score", "", align.DefaultAlignOptions.MatchScore, formatFlagUsage(`Match score.`))
	callCmd.Flags().IntP("mismatch-score", "", align.DefaultAlignOptions.MismatchScore, formatFlagUsage(`Mismatch score (negative).`))
	callCmd.Flags().IntP("gap-open", "", align.DefaultAlignOptions.GapOpen, formatFlagUsage(`Gap open score (negative).`))
	callCmd.Flags().IntP("gap-extend", "", align.DefaultAlignOptions.GapExtend, formatFlagUsage(`Gap extend score (negative).`))
	callCmd.Flags().IntP("merge-window", "", 10, formatFlagUsage(`Merge adjacent M/I/D events within this many matched bases into one complex call.`))
	callCmd.Flags().BoolP("allow-terminal-snv", "", false, formatFlagUsage(`Report SNVs near a contig end instead of suppressing them.`))
	callCmd.Flags().IntP("terminal-distance", "", 12, formatFlagUsage(`Contig-end distance within which an SNV is suppressed unless --allow-terminal-snv.`))
	callCmd.Flags().IntP("pad-len", "", 50, formatFlagUsage(`Reference padding length; no SNV is reported inside it.`))
	callCmd.Flags().IntP("homopolymer-min-len", "", 4, formatFlagUsage(`Minimum length of a single-base ref or alt allele for a call to earn the Homopolymer FILTER (0 disables).`))
	callCmd.Flags().StringP("reference", "r", "", formatFlagUsage(`Reference FASTA file.`))
	callCmd.Flags().StringP("contigs", "c", "", formatFlagUsage(`Contigs augmented FASTX file (from 'assemble').`))
	callCmd.Flags().StringP("windows", "w", "", formatFlagUsage(`Windows TSV file (from 'localize').`))
	callCmd.Flags().StringP("out-file", "o", "", formatFlagUsage(`Output calls TSV file.`))
}
