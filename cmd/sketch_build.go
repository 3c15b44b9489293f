package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/knovel/knovel/sketch"
)

var sketchBuildCmd = &cobra.Command{
	Use:   "sketch-build",
	Short: "Allocate an empty k-mer abundance sketch (spec.md §4.A)",
	Long: `Allocate an empty k-mer abundance sketch (spec.md §4.A)

Sizes a Count-Min or presence-only sketch to a target byte budget and
writes it to disk unpopulated. Use 'count' to fill it from a read
stream. Pre-allocating a sketch this way is mainly useful for the
reference and contamination sketches, which are built once and reused
across many 'novel'/'filter' invocations.
`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		_ = opt

		k := getFlagPositiveInt(cmd, "kmer")
		if k > 32 {
			checkErrorExitCode(fmt.Errorf("-k/--kmer must be <= 32"), 1)
		}
		h := getFlagPositiveInt(cmd, "tables")
		bytesBudget := getFlagPositiveInt(cmd, "bytes")
		presence := getFlagBool(cmd, "presence")
		outFile := getFlagString(cmd, "out-file")
		if outFile == "" {
			checkErrorExitCode(fmt.Errorf("-o/--out-file is required"), 1)
		}

		kind := sketch.KindCount
		if presence {
			kind = sketch.KindPresence
		}

		s, err := sketch.New(sketch.Options{
			K:           uint8(k),
			H:           uint8(h),
			BytesBudget: uint64(bytesBudget),
			Kind:        kind,
		})
		checkError(err)

		checkError(s.Save(outFile))
		if opt.Verbose {
			log.Infof("wrote empty sketch to %s (k=%d, H=%d)", outFile, k, h)
		}
	},
}

func init() {
	RootCmd.AddCommand(sketchBuildCmd)

	sketchBuildCmd.Flags().IntP("kmer", "k", 31,
		formatFlagUsage(`K-mer size. Must be <= 32.`))
	sketchBuildCmd.Flags().IntP("tables", "H", 2,
		formatFlagUsage(`Number of independent hash tables.`))
	sketchBuildCmd.Flags().IntP("bytes", "b", 1<<30,
		formatFlagUsage(`Target byte budget for the sketch's backing storage.`))
	sketchBuildCmd.Flags().BoolP("presence", "", false,
		formatFlagUsage(`Build a presence-only (Bloom) sketch instead of a counting one.`))
	sketchBuildCmd.Flags().StringP("out-file", "o", "",
		formatFlagUsage(`Output sketch file.`))
}
