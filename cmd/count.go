package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/knovel/knovel/kmer"
	"github.com/knovel/knovel/readstream"
	"github.com/knovel/knovel/sketch"
)

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Populate a sample sketch from a read stream (spec.md §4.B)",
	Long: `Populate a sample sketch from a read stream (spec.md §4.B)

Decomposes every read into its canonical k-mers and inserts each into
the sketch, skipping any k-mer window touching an ambiguous base. With
--cascade-from, only k-mers present in that sketch are inserted, which
keeps downstream control/contamination sketches small (spec.md §4.A's
cascaded sizing).
`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		timeStart := time.Now()

		k := getFlagPositiveInt(cmd, "kmer")
		h := getFlagPositiveInt(cmd, "tables")
		bytesBudget := getFlagPositiveInt(cmd, "bytes")
		presence := getFlagBool(cmd, "presence")
		outFile := getFlagString(cmd, "out-file")
		cascadeFrom := getFlagString(cmd, "cascade-from")
		if outFile == "" {
			checkErrorExitCode(fmt.Errorf("-o/--out-file is required"), 1)
		}

		files := getFileListFromArgsAndFile(cmd, args, true, "infile-list", false)

		kind := sketch.KindCount
		if presence {
			kind = sketch.KindPresence
		}
		s, err := sketch.New(sketch.Options{K: uint8(k), H: uint8(h), BytesBudget: uint64(bytesBudget), Kind: kind})
		checkError(err)

		var parent *sketch.Sketch
		if cascadeFrom != "" {
			parent, err = sketch.Load(cascadeFrom)
			checkError(err)
		}

		src := readstream.NewSource(files)
		defer src.Close()

		var reads, kmersStored uint64
		for {
			r, err := src.Next()
			if err == io.EOF {
				break
			}
			checkError(err)
			reads++

			it, err := kmer.NewIterator(r.Seq, uint8(k))
			checkError(err)
			for {
				code, _, ok := it.Next()
				if !ok {
					break
				}
				if parent != nil {
					if err := s.AddCascaded(code, parent); err != nil {
						checkError(err)
					}
				} else {
					s.Add(code)
				}
				kmersStored++
			}
		}

		checkError(s.Save(outFile))

		if opt.Verbose {
			log.Infof("processed %d reads, stored %d k-mers", reads, kmersStored)
			log.Infof("estimated FPR: %.6f", s.EstimatedFPR())
			log.Infof("elapsed time: %s", time.Since(timeStart))
		}
	},
}

func init() {
	RootCmd.AddCommand(countCmd)

	countCmd.Flags().IntP("kmer", "k", 31,
		formatFlagUsage(`K-mer size. Must be <= 32.`))
	countCmd.Flags().IntP("tables", "H", 2,
		formatFlagUsage(`Number of independent hash tables.`))
	countCmd.Flags().IntP("bytes", "b", 1<<30,
		formatFlagUsage(`Target byte budget for the sketch's backing storage.`))
	countCmd.Flags().BoolP("presence", "", false,
		formatFlagUsage(`Build a presence-only (Bloom) sketch instead of a counting one.`))
	countCmd.Flags().StringP("out-file", "o", "",
		formatFlagUsage(`Output sketch file.`))
	countCmd.Flags().StringP("cascade-from", "", "",
		formatFlagUsage(`Sample-0 sketch; only k-mers present in it are inserted here.`))
	countCmd.Flags().StringP("infile-list", "X", "",
		formatFlagUsage(`File with one input FASTA/Q path per line.`))
}
