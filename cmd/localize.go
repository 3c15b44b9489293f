package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/shenwei356/xopen"

	"github.com/knovel/knovel/augfastx"
	"github.com/knovel/knovel/refindex"
)

var localizeCmd = &cobra.Command{
	Use:   "localize",
	Short: "Anchor each contig to the reference via seed k-mers and emit candidate reference windows (spec.md §4.G)",
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		timeStart := time.Now()

		k := getFlagPositiveInt(cmd, "kmer")
		seedSize := getFlagPositiveInt(cmd, "seed-size")
		spacing := getFlagPositiveInt(cmd, "seed-spacing")
		deltaL := getFlagPositiveInt(cmd, "delta-l")
		pad := getFlagNonNegativeInt(cmd, "pad")
		refFile := getFlagString(cmd, "reference")
		inFile := getFlagString(cmd, "in-file")
		outFile := getFlagString(cmd, "out-file")
		if refFile == "" || inFile == "" || outFile == "" {
			checkErrorExitCode(fmt.Errorf("-r/--reference, -i/--in-file, and -o/--out-file are required"), 1)
		}

		refs, err := loadReferenceFasta(refFile)
		checkError(err)

		idx, err := refindex.BuildIndex(refs, uint8(seedSize))
		checkError(err)

		in, err := xopen.Ropen(inFile)
		checkError(err)
		defer in.Close()
		rd := augfastx.NewReader(in, uint8(k))

		opts := refindex.Options{SeedSize: uint8(seedSize), Spacing: spacing, DeltaL: deltaL, Pad: pad}

		var results []contigWindows
		var matched, unmatched int
		for {
			ar, label, err := rd.Next()
			if err == io.EOF {
				break
			}
			checkError(err)

			windows, ok, err := refindex.Localize(ar.Seq, idx, opts)
			checkError(err)
			if ok {
				matched++
			} else {
				unmatched++
			}
			results = append(results, contigWindows{
				ContigID:  string(ar.ID),
				Partition: label,
				Matched:   ok,
				Windows:   windows,
			})
		}

		out, err := xopen.Wopen(outFile)
		checkError(err)
		defer out.Close()
		checkError(writeWindows(out, results))

		if opt.Verbose {
			log.Infof("contigs localized: %d, no reference match: %d", matched, unmatched)
			log.Infof("elapsed time: %s", time.Since(timeStart))
		}
	},
}

func init() {
	RootCmd.AddCommand(localizeCmd)

	localizeCmd.Flags().IntP("kmer", "k", 31, formatFlagUsage(`K-mer size of the contig annotations (does not need to match --seed-size).`))
	localizeCmd.Flags().IntP("seed-size", "", 31, formatFlagUsage(`Seed k-mer size used for reference lookup.`))
	localizeCmd.Flags().IntP("seed-spacing", "s", 10, formatFlagUsage(`Spacing between extracted seeds along the contig.`))
	localizeCmd.Flags().IntP("delta-l", "", 500, formatFlagUsage(`Band width for clustering seed hits into a window.`))
	localizeCmd.Flags().IntP("pad", "", 50, formatFlagUsage(`Reference padding added on either side of a window.`))
	localizeCmd.Flags().StringP("reference", "r", "", formatFlagUsage(`Reference FASTA file.`))
	localizeCmd.Flags().StringP("in-file", "i", "", formatFlagUsage(`Input augmented FASTX file of contigs (from 'assemble').`))
	localizeCmd.Flags().StringP("out-file", "o", "", formatFlagUsage(`Output windows TSV file.`))
}
