package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/knovel/knovel/augfastx"
	"github.com/knovel/knovel/novel"
	"github.com/knovel/knovel/readstream"
	"github.com/knovel/knovel/sketch"
)

var novelCmd = &cobra.Command{
	Use:   "novel",
	Short: "Stream proband reads, keeping only case-abundant/control-rare k-mers (spec.md §4.C)",
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		timeStart := time.Now()

		k := getFlagPositiveInt(cmd, "kmer")
		caseMin := getFlagPositiveInt(cmd, "case-min")
		ctrlMax := getFlagNonNegativeInt(cmd, "ctrl-max")
		abundScreen := getFlagNonNegativeInt(cmd, "abund-screen")
		caseFile := getFlagString(cmd, "case-sketch")
		ctrlFiles := getFlagStringSlice(cmd, "ctrl-sketch")
		outFile := getFlagString(cmd, "out-file")
		if caseFile == "" || len(ctrlFiles) == 0 || outFile == "" {
			checkErrorExitCode(fmt.Errorf("--case-sketch, --ctrl-sketch (>=1), and -o/--out-file are required"), 1)
		}

		caseSketch, err := sketch.Load(caseFile)
		checkError(err)

		ctrls := make([]*sketch.Sketch, len(ctrlFiles))
		for i, f := range ctrlFiles {
			ctrls[i], err = sketch.Load(f)
			checkError(err)
		}

		files := getFileListFromArgsAndFile(cmd, args, true, "infile-list", false)
		src := readstream.NewSource(files)
		defer src.Close()

		_, _, w, err := outStream(outFile, true, opt.CompressionLevel)
		checkError(err)

		writer := augfastx.NewWriter(w, uint8(k))

		f := novel.New(novel.Options{
			K:           k,
			CaseMin:     uint16(caseMin),
			CtrlMax:     uint16(ctrlMax),
			AbundScreen: uint16(abundScreen),
		}, caseSketch, ctrls)

		err = f.Apply(src, func(ar *readstream.AugmentedRead) error {
			return writer.Write(ar)
		})
		checkError(err)

		if opt.Verbose {
			log.Infof("reads in: %d, screened out: %d, all-ambiguous: %d, no novel k-mer: %d, reads out: %d, novel k-mers: %d",
				f.Stats.ReadsIn, f.Stats.ReadsScreened, f.Stats.ReadsAllAmbig, f.Stats.ReadsNoNovelKmer, f.Stats.ReadsOut, f.Stats.NovelKmersOut)
			log.Infof("elapsed time: %s", time.Since(timeStart))
		}
	},
}

func init() {
	RootCmd.AddCommand(novelCmd)

	novelCmd.Flags().IntP("kmer", "k", 31, formatFlagUsage(`K-mer size, must match the sketches.`))
	novelCmd.Flags().IntP("case-min", "", 5, formatFlagUsage(`Minimum case sketch abundance for a k-mer to be called novel.`))
	novelCmd.Flags().IntP("ctrl-max", "", 0, formatFlagUsage(`Maximum allowed abundance in every control sketch.`))
	novelCmd.Flags().IntP("abund-screen", "", 5000, formatFlagUsage(`Drop a whole read if any of its k-mers falls below this case abundance (0 disables).`))
	novelCmd.Flags().StringP("case-sketch", "", "", formatFlagUsage(`Proband (case) sketch file.`))
	novelCmd.Flags().StringSliceP("ctrl-sketch", "", nil, formatFlagUsage(`Control sketch file(s), comma-separated or repeated.`))
	novelCmd.Flags().StringP("out-file", "o", "", formatFlagUsage(`Output augmented FASTX file.`))
	novelCmd.Flags().StringP("infile-list", "X", "", formatFlagUsage(`File with one input FASTA/Q path per line.`))
}
