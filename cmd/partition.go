package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shenwei356/xopen"

	"github.com/knovel/knovel/augfastx"
	"github.com/knovel/knovel/partition"
)

var partitionCmd = &cobra.Command{
	Use:   "partition",
	Short: "Group surviving reads into connected components by shared novel k-mers (spec.md §4.E)",
	Long: `Group surviving reads into connected components by shared novel k-mers (spec.md §4.E)

Builds an inverted index of novel k-mer -> read ids and a union-find over
it rather than materializing the quadratic read-read graph, then
deduplicates identical sequences within each component. Output is written
as a single "#part=<label>" multiplexed augmented FASTX stream (default)
or one "<prefix>.cc<N>.augfastq.gz" file per partition (--multi-file),
alongside a "<prefix>.cc.log" summary line per partition, the naming
kevlar's partition.py established.
`,
	Run: func(cmd *cobra.Command, args []string) {
		opt := getOptions(cmd)
		timeStart := time.Now()

		k := getFlagPositiveInt(cmd, "kmer")
		minShared := getFlagNonNegativeInt(cmd, "min-shared-kmers")
		inFile := getFlagString(cmd, "in-file")
		outPrefix := getFlagString(cmd, "out-prefix")
		multiFile := getFlagBool(cmd, "multi-file")
		indexSnapshot := getFlagBool(cmd, "index-snapshot")
		if inFile == "" || outPrefix == "" {
			checkErrorExitCode(fmt.Errorf("-i/--in-file and -p/--out-prefix are required"), 1)
		}

		in, err := xopen.Ropen(inFile)
		checkError(err)
		defer in.Close()

		rd := augfastx.NewReader(in, uint8(k))
		reads, err := readAllAugmented(rd)
		checkError(err)

		if indexSnapshot {
			_, _, w, err := outStream(outPrefix+".index.snappy", true, opt.CompressionLevel)
			checkError(err)
			checkError(partition.WriteIndexSnapshot(w, reads))
		}

		partitions, stats := partition.Build(reads, partition.Options{MinSharedKmers: minShared})

		logFh, err := xopen.Wopen(outPrefix + ".cc.log")
		checkError(err)
		defer logFh.Close()

		if multiFile {
			for i, p := range partitions {
				_, _, w, err := outStream(augfastx.PartitionFileName(outPrefix, i+1), true, opt.CompressionLevel)
				checkError(err)
				writer := augfastx.NewWriter(w, uint8(k))
				for _, r := range p.Reads {
					checkError(writer.Write(r))
				}
				writeComponentLogLine(logFh, i+1, p)
			}
		} else {
			_, _, w, err := outStream(outPrefix+".augfastq.gz", true, opt.CompressionLevel)
			checkError(err)
			writer := augfastx.NewWriter(w, uint8(k))
			for i, p := range partitions {
				checkError(writer.WritePartitionHeader(p.Label))
				for _, r := range p.Reads {
					checkError(writer.Write(r))
				}
				writeComponentLogLine(logFh, i+1, p)
			}
		}

		if opt.Verbose {
			log.Infof("reads in: %d, partitions: %d, duplicates dropped: %d",
				stats.ReadsIn, stats.PartitionsOut, stats.DuplicatesDropped)
			log.Infof("elapsed time: %s", time.Since(timeStart))
		}
	},
}

// writeComponentLogLine writes "CC <n> <size> <readnames>", the per-partition
// audit line kevlar/partition.py emits, to the ".cc.log" file.
func writeComponentLogLine(fh io.Writer, n int, p *partition.Partition) {
	names := make([]string, len(p.Reads))
	for i, r := range p.Reads {
		names[i] = string(r.ID)
	}
	fmt.Fprintf(fh, "CC %d %d %s\n", n, len(p.Reads), strings.Join(names, ","))
}

func init() {
	RootCmd.AddCommand(partitionCmd)

	partitionCmd.Flags().IntP("kmer", "k", 31, formatFlagUsage(`K-mer size, must match the upstream novel/filter stage.`))
	partitionCmd.Flags().IntP("min-shared-kmers", "", 0, formatFlagUsage(`Prune an edge between two reads sharing fewer than this many novel k-mers (0/1 disables pruning).`))
	partitionCmd.Flags().StringP("in-file", "i", "", formatFlagUsage(`Input augmented FASTX file (from 'novel' or 'filter').`))
	partitionCmd.Flags().StringP("out-prefix", "p", "", formatFlagUsage(`Output path prefix.`))
	partitionCmd.Flags().BoolP("multi-file", "", false, formatFlagUsage(`Write one "<prefix>.cc<N>.augfastq.gz" file per partition instead of a single "#part=" multiplexed stream.`))
	partitionCmd.Flags().BoolP("index-snapshot", "", false, formatFlagUsage(`Also write the novel-kmer inverted index as a snappy-compressed "<prefix>.index.snappy" snapshot.`))
}
