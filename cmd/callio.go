package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/knovel/knovel/call"
	"github.com/knovel/knovel/kmer"
	lh "github.com/knovel/knovel/likelihood"
	"github.com/knovel/knovel/refindex"
	"github.com/knovel/knovel/vcfio"
)

// kmerCodes encodes each k-mer string in kmers to its canonical code,
// silently skipping any that fail to encode (e.g. a stray ambiguous base
// surviving in a RW/VW window string); likelihood.Observe treats a missing
// code the same as any other k-mer absent from the set.
func kmerCodes(kmers [][]byte, k uint8) []uint64 {
	out := make([]uint64, 0, len(kmers))
	for _, s := range kmers {
		code, err := kmer.Encode(s)
		if err != nil {
			continue
		}
		out = append(out, kmer.Canonical(code, k))
	}
	return out
}

// contigWindows is one contig's Localize result, carried from the
// "localize" subcommand to "call" as a plain TSV so the two stages stay
// independently invocable (spec.md §9's "pass sketches and reference
// indices as explicit context to each stage", applied here to files rather
// than in-process values).
type contigWindows struct {
	ContigID  string
	Partition string
	Matched   bool
	Windows   []refindex.Window
}

// writeWindows emits one line per window ("contigID\tpartition\tseqid\tstart\tend")
// or, for a contig with no reference match, a single
// "contigID\tpartition\tNOMATCH" line (spec.md §4.G: "the 'no reference
// match' condition is reported").
func writeWindows(w io.Writer, results []contigWindows) error {
	bw := bufio.NewWriter(w)
	for _, r := range results {
		if !r.Matched {
			if _, err := fmt.Fprintf(bw, "%s\t%s\tNOMATCH\n", r.ContigID, r.Partition); err != nil {
				return err
			}
			continue
		}
		for _, win := range r.Windows {
			if _, err := fmt.Fprintf(bw, "%s\t%s\t%s\t%d\t%d\n",
				r.ContigID, r.Partition, win.SeqID, win.Start, win.End); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// readWindows parses writeWindows' format back into one contigWindows per
// distinct contig id, preserving first-seen order.
func readWindows(r io.Reader) ([]contigWindows, error) {
	var out []contigWindows
	index := make(map[string]int)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1<<20), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 3 {
			return nil, fmt.Errorf("malformed windows line: %q", line)
		}
		contigID, partition := fields[0], fields[1]
		i, ok := index[contigID]
		if !ok {
			i = len(out)
			index[contigID] = i
			out = append(out, contigWindows{ContigID: contigID, Partition: partition})
		}
		if fields[2] == "NOMATCH" {
			continue
		}
		if len(fields) != 5 {
			return nil, fmt.Errorf("malformed window line: %q", line)
		}
		start, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, err
		}
		end, err := strconv.Atoi(fields[4])
		if err != nil {
			return nil, err
		}
		out[i].Matched = true
		out[i].Windows = append(out[i].Windows, refindex.Window{SeqID: fields[2], Start: start, End: end})
	}
	return out, sc.Err()
}

// writeCalls emits one TSV line per call: partition, seqid, pos, ref, alt,
// class, contig id, the RW/VW/supporting k-mer sets as comma-joined
// strings ("." for empty), and the NearContigEnd/Homopolymer FILTER flags,
// letting "likelihood" run independently of "call" the way
// novel/filter/partition already chain through plain files.
func writeCalls(w io.Writer, calls []*call.Call, partitionOf map[string]string) error {
	bw := bufio.NewWriter(w)
	for _, c := range calls {
		part := partitionOf[c.ContigID]
		if _, err := fmt.Fprintf(bw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%t\t%t\n",
			part, c.SeqID, c.Pos, c.Ref, c.Alt, c.Class, c.ContigID,
			joinByteSlices(c.RW), joinByteSlices(c.VW), joinByteSlices(c.SupportingKmers),
			c.NearContigEnd, c.Homopolymer); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// readCalls parses writeCalls' format back into Call records; the
// partition label each line carried is returned alongside, keyed by
// contig id, for any downstream stage that still wants it.
func readCalls(r io.Reader) ([]*call.Call, map[string]string, error) {
	var calls []*call.Call
	partitionOf := make(map[string]string)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1<<20), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 12 {
			return nil, nil, fmt.Errorf("malformed calls line: %q", line)
		}
		pos, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, nil, err
		}
		nearEnd, err := strconv.ParseBool(fields[10])
		if err != nil {
			return nil, nil, err
		}
		homopolymer, err := strconv.ParseBool(fields[11])
		if err != nil {
			return nil, nil, err
		}
		c := &call.Call{
			SeqID:           fields[1],
			Pos:             pos,
			Ref:             []byte(fields[3]),
			Alt:             []byte(fields[4]),
			Class:           call.Class(fields[5]),
			ContigID:        fields[6],
			RW:              splitByteSlices(fields[7]),
			VW:              splitByteSlices(fields[8]),
			SupportingKmers: splitByteSlices(fields[9]),
			NearContigEnd:   nearEnd,
			Homopolymer:     homopolymer,
		}
		partitionOf[c.ContigID] = fields[0]
		calls = append(calls, c)
	}
	return calls, partitionOf, sc.Err()
}

// buildFilters derives a call's FILTER column from its alignment-time
// flags and trio observation: NearContigEnd/Homopolymer come straight off
// the Call, ControlAbundance fires when a parent shows any alt-window
// support for a call meant to be private to the proband, and AbundMismatch
// fires when the proband shows no reference-window support at all, which
// a true heterozygous call should always carry alongside its alt support.
func buildFilters(c *call.Call, obs lh.TrioObservation, score float64) []vcfio.Filter {
	var filters []vcfio.Filter
	if lh.Fails(score) {
		filters = append(filters, vcfio.LikelihoodFail)
	}
	if obs.Parent1.AltMean > 0 || obs.Parent2.AltMean > 0 {
		filters = append(filters, vcfio.ControlAbundance)
	}
	if obs.Proband.RefMean == 0 {
		filters = append(filters, vcfio.AbundMismatch)
	}
	if c.NearContigEnd {
		filters = append(filters, vcfio.ContigEndTooClose)
	}
	if c.Homopolymer {
		filters = append(filters, vcfio.Homopolymer)
	}
	return filters
}

func joinByteSlices(kmers [][]byte) string {
	if len(kmers) == 0 {
		return "."
	}
	strs := make([]string, len(kmers))
	for i, k := range kmers {
		strs[i] = string(k)
	}
	return strings.Join(strs, ",")
}

func splitByteSlices(s string) [][]byte {
	if s == "." || s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([][]byte, len(parts))
	for i, p := range parts {
		out[i] = []byte(p)
	}
	return out
}
