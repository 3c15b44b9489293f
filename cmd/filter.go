package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/shenwei356/xopen"

	"github.com/knovel/knovel/augfastx"
	"github.com/knovel/knovel/readstream"
	"github.com/knovel/knovel/refine"
	"github.com/knovel/knovel/sketch"
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Re-validate novel k-mers against reference/contaminant sketches (spec.md §4.D)",
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		timeStart := time.Now()

		k := getFlagPositiveInt(cmd, "kmer")
		caseMin := getFlagPositiveInt(cmd, "case-min")
		refFile := getFlagString(cmd, "reference-sketch")
		contamFile := getFlagString(cmd, "contaminant-sketch")
		recountBytes := getFlagPositiveInt(cmd, "recount-bytes")
		inFile := getFlagString(cmd, "in-file")
		outFile := getFlagString(cmd, "out-file")
		if inFile == "" || outFile == "" {
			checkErrorExitCode(fmt.Errorf("-i/--in-file and -o/--out-file are required"), 1)
		}

		var reference, contaminant *sketch.Sketch
		var err error
		if refFile != "" {
			reference, err = sketch.Load(refFile)
			checkError(err)
		}
		if contamFile != "" {
			contaminant, err = sketch.Load(contamFile)
			checkError(err)
		}

		in, err := xopen.Ropen(inFile)
		checkError(err)
		defer in.Close()

		rd := augfastx.NewReader(in, uint8(k))
		reads, err := readAllAugmented(rd)
		checkError(err)

		recount, err := refine.BuildRecountSketch(uint8(k), uint64(recountBytes), reads)
		checkError(err)

		rf := refine.New(refine.Options{K: k, CaseMin: uint16(caseMin)}, reference, recount, contaminant)

		_, _, w, err := outStream(outFile, true, opt.CompressionLevel)
		checkError(err)
		writer := augfastx.NewWriter(w, uint8(k))

		var keep int
		for _, ar := range reads {
			if rf.Apply(ar) {
				checkError(writer.Write(ar))
				keep++
			}
		}

		if opt.Verbose {
			log.Infof("masked: %d, below recounted case_min: %d, contaminant: %d, drained: %d, kept: %d/%d",
				rf.Stats.KmersMasked, rf.Stats.KmersBelowCaseMin, rf.Stats.KmersContaminant, rf.Stats.ReadsDrained, keep, len(reads))
			log.Infof("elapsed time: %s", time.Since(timeStart))
		}
	},
}

func readAllAugmented(rd *augfastx.Reader) ([]*readstream.AugmentedRead, error) {
	var out []*readstream.AugmentedRead
	for {
		ar, _, err := rd.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, ar)
	}
	return out, nil
}

func init() {
	RootCmd.AddCommand(filterCmd)

	filterCmd.Flags().IntP("kmer", "k", 31, formatFlagUsage(`K-mer size.`))
	filterCmd.Flags().IntP("case-min", "", 5, formatFlagUsage(`Minimum recounted case abundance to survive.`))
	filterCmd.Flags().StringP("reference-sketch", "", "", formatFlagUsage(`Presence sketch over the reference genome; hits are masked.`))
	filterCmd.Flags().StringP("contaminant-sketch", "", "", formatFlagUsage(`Optional contamination sketch.`))
	filterCmd.Flags().IntP("recount-bytes", "", 1<<24, formatFlagUsage(`Byte budget for the freshly built recount sketch.`))
	filterCmd.Flags().StringP("in-file", "i", "", formatFlagUsage(`Input augmented FASTX file (from 'novel').`))
	filterCmd.Flags().StringP("out-file", "o", "", formatFlagUsage(`Output augmented FASTX file.`))
}
