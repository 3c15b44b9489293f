// Package vcfio writes variant calls in VCF 4.2 form (spec.md §6), with
// the pipeline's INFO field vocabulary and FILTER reason codes.
package vcfio

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/twotwotwo/sorts"

	"github.com/knovel/knovel/call"
)

// Filter names the FILTER column vocabulary of spec.md §6.
type Filter string

const (
	Pass              Filter = "PASS"
	LikelihoodFail    Filter = "LikelihoodFail"
	ControlAbundance  Filter = "ControlAbundance"
	AbundMismatch     Filter = "AbundMismatch"
	NoReferenceMatch  Filter = "NoReferenceMatch"
	PartitionTooSmall Filter = "PartitionTooSmall"
	Homopolymer       Filter = "Homopolymer"
	ContigEndTooClose Filter = "ContigEndTooClose"
)

// Record is one VCF data line's worth of content, built from a Call plus
// the likelihood score and any filters accumulated against it.
type Record struct {
	*call.Call
	LikeScore float64
	Filters   []Filter // empty/nil means PASS
	GT        [3]string // proband, parent1, parent2 genotype strings, e.g. "0/1"
}

func (r *Record) filterField() string {
	if len(r.Filters) == 0 {
		return string(Pass)
	}
	names := make([]string, len(r.Filters))
	for i, f := range r.Filters {
		names[i] = string(f)
	}
	return strings.Join(names, ";")
}

// byPosition implements sort.Interface for output ordering by
// (seqid, pos), sorted with github.com/twotwotwo/sorts the way the
// teacher sorts its own location lists.
type byPosition []*Record

func (s byPosition) Len() int { return len(s) }
func (s byPosition) Less(i, j int) bool {
	if s[i].SeqID != s[j].SeqID {
		return s[i].SeqID < s[j].SeqID
	}
	return s[i].Pos < s[j].Pos
}
func (s byPosition) Swap(i, j int) { s[i], s[j] = s[j], s[i] }

// Header writes the VCF 4.2 preamble, declaring every INFO field and
// FILTER reason the pipeline can emit.
func Header(w io.Writer, samples [3]string) error {
	lines := []string{
		"##fileformat=VCFv4.2",
		fmt.Sprintf("##fileDate=%s", time.Now().UTC().Format("20060102")),
		`##INFO=<ID=RW,Number=.,Type=String,Description="Reference-window K-mers covering the variant locus">`,
		`##INFO=<ID=VW,Number=.,Type=String,Description="Contig K-mers covering the variant locus">`,
		`##INFO=<ID=ALTWINDOW,Number=1,Type=Integer,Description="Length of the alt allele">`,
		`##INFO=<ID=REFRWINDOW,Number=1,Type=Integer,Description="Length of the ref allele">`,
		`##INFO=<ID=LIKESCORE,Number=1,Type=Float,Description="De novo log-likelihood score">`,
		`##INFO=<ID=CALLCLASS,Number=1,Type=String,Description="SNV, INSERTION, DELETION, or MNV">`,
		`##FILTER=<ID=LikelihoodFail,Description="De novo log-likelihood score is negative">`,
		`##FILTER=<ID=ControlAbundance,Description="A supporting k-mer is abundant in a control sample">`,
		`##FILTER=<ID=AbundMismatch,Description="Proband shows no abundance for the reference-window k-mers">`,
		`##FILTER=<ID=NoReferenceMatch,Description="Contig produced no reference localization cluster">`,
		`##FILTER=<ID=PartitionTooSmall,Description="Partition had too few reads to assemble reliably">`,
		`##FILTER=<ID=Homopolymer,Description="Ref or alt allele is a single-base homopolymer run">`,
		`##FILTER=<ID=ContigEndTooClose,Description="Variant locus is too close to a contig end">`,
		"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\t" + strings.Join(samples[:], "\t"),
	}
	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return err
}

// WriteRecords sorts records by (seqid,pos) when ordered is true, then
// writes one VCF data line per record.
func WriteRecords(w io.Writer, records []*Record, ordered bool) error {
	if ordered {
		sorts.Quicksort(byPosition(records))
	}
	for _, r := range records {
		if err := writeOne(w, r); err != nil {
			return err
		}
	}
	return nil
}

func writeOne(w io.Writer, r *Record) error {
	info := []string{
		"RW=" + joinKmers(r.RW),
		"VW=" + joinKmers(r.VW),
		"ALTWINDOW=" + strconv.Itoa(len(r.Alt)),
		"REFRWINDOW=" + strconv.Itoa(len(r.Ref)),
		"LIKESCORE=" + strconv.FormatFloat(r.LikeScore, 'f', 4, 64),
		"CALLCLASS=" + string(r.Class),
	}
	format := "GT"
	line := fmt.Sprintf("%s\t%d\t.\t%s\t%s\t.\t%s\t%s\t%s\t%s\t%s\t%s\n",
		r.SeqID, r.Pos+1, r.Ref, r.Alt, r.filterField(), strings.Join(info, ";"),
		format, r.GT[0], r.GT[1], r.GT[2])
	_, err := io.WriteString(w, line)
	return err
}

func joinKmers(kmers [][]byte) string {
	if len(kmers) == 0 {
		return "."
	}
	strs := make([]string, len(kmers))
	for i, k := range kmers {
		strs[i] = string(k)
	}
	return strings.Join(strs, ",")
}
