package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/shenwei356/xopen"

	"github.com/knovel/knovel/assemble"
	"github.com/knovel/knovel/augfastx"
	"github.com/knovel/knovel/partition"
	"github.com/knovel/knovel/readstream"
)

var assembleCmd = &cobra.Command{
	Use:   "assemble",
	Short: "Locally assemble each partition into contigs, falling back to a greedy walk (spec.md §4.F)",
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		timeStart := time.Now()

		k := getFlagPositiveInt(cmd, "kmer")
		minOverlap := getFlagPositiveInt(cmd, "min-overlap")
		minLen := getFlagPositiveInt(cmd, "min-contig-length")
		inFile := getFlagString(cmd, "in-file")
		outFile := getFlagString(cmd, "out-file")
		if inFile == "" || outFile == "" {
			checkErrorExitCode(fmt.Errorf("-i/--in-file and -o/--out-file are required"), 1)
		}

		in, err := xopen.Ropen(inFile)
		checkError(err)
		defer in.Close()

		partitions, err := readPartitionedAugmented(in, uint8(k))
		checkError(err)

		_, _, w, err := outStream(outFile, true, opt.CompressionLevel)
		checkError(err)
		writer := augfastx.NewWriter(w, uint8(k))

		opts := assemble.Options{K: k, MinOverlap: minOverlap, MinContigLength: minLen}

		var fellBack, totalContigs, emptyPartitions int
		for _, p := range partitions {
			// No external de-Bruijn-graph assembler is wired into this
			// build (spec.md §9's narrow Assembler seam); Run always
			// falls through to the greedy fallback.
			contigs, err := assemble.Run(nil, p, opts)
			checkError(err)
			if len(contigs) == 0 {
				emptyPartitions++
				continue
			}
			fellBack++
			totalContigs += len(contigs)

			checkError(writer.WritePartitionHeader(p.Label))
			for i, c := range contigs {
				contigID := fmt.Sprintf("%s.contig%d", p.Label, i+1)
				checkError(writer.Write(&readstream.AugmentedRead{
					Read:       readstream.Read{ID: []byte(contigID), Seq: c.Seq},
					NovelKmers: c.NovelKmers,
				}))
			}
		}

		if opt.Verbose {
			log.Infof("partitions in: %d, assembled: %d, empty: %d, contigs out: %d",
				len(partitions), fellBack, emptyPartitions, totalContigs)
			log.Infof("elapsed time: %s", time.Since(timeStart))
		}
	},
}

// readPartitionedAugmented reads a "#part="-framed augmented FASTX stream
// into in-order partitions, grouping reads as their label changes rather
// than re-running Partition's union-find (the grouping is already final).
func readPartitionedAugmented(r io.Reader, k uint8) ([]*partition.Partition, error) {
	rd := augfastx.NewReader(r, k)
	var out []*partition.Partition
	index := make(map[string]int)

	for {
		ar, label, err := rd.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		i, ok := index[label]
		if !ok {
			i = len(out)
			index[label] = i
			out = append(out, &partition.Partition{Label: label})
		}
		out[i].Reads = append(out[i].Reads, ar)
	}
	return out, nil
}

func init() {
	RootCmd.AddCommand(assembleCmd)

	assembleCmd.Flags().IntP("kmer", "k", 31, formatFlagUsage(`K-mer size.`))
	assembleCmd.Flags().IntP("min-overlap", "", 31, formatFlagUsage(`Minimum exact overlap (bases) required to extend a contig in the greedy fallback; must be >= K.`))
	assembleCmd.Flags().IntP("min-contig-length", "", 62, formatFlagUsage(`Minimum length for an emitted contig.`))
	assembleCmd.Flags().StringP("in-file", "i", "", formatFlagUsage(`Input "#part="-framed augmented FASTX file (from 'partition').`))
	assembleCmd.Flags().StringP("out-file", "o", "", formatFlagUsage(`Output augmented FASTX file of contigs, still "#part="-framed.`))
}
