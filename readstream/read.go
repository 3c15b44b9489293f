// Package readstream defines the Read and AugmentedRead record types
// (spec.md §3) and a streaming FASTA/FASTQ source built on the teacher's
// bio/seqio/fastx reader (lexicmap/cmd/map.go's fastx.NewReader/record.Seq.Seq
// usage).
package readstream

import (
	"io"

	"github.com/shenwei356/bio/seqio/fastx"
)

// Read is a single sequencing read, possibly paired.
type Read struct {
	ID        []byte
	Seq       []byte
	Qualities []byte // nil for FASTA input
	MateRefs  []byte // raw id of a mate read, if any; empty otherwise
}

// KmerAnnotation records one novel k-mer occurrence on a read, following
// spec.md §3: "(offset, canonical_kmer, abundances: [case, control_1, ...])".
type KmerAnnotation struct {
	Offset     int
	Kmer       uint64 // canonical k-mer code
	CaseAbund  uint16
	CtrlAbunds []uint16
}

// AugmentedRead is a Read decorated with the novel k-mers found in it.
// NovelKmers is kept in ascending offset order (spec.md §4.C: "output is
// single-pass and in input order", and a k-mer may occur at multiple
// offsets, each annotated separately).
type AugmentedRead struct {
	Read
	NovelKmers []KmerAnnotation
}

// Clone returns a deep-enough copy of ar suitable for mutation by a
// downstream stage (Filter drops annotations; Partition/Assemble project
// them onto new coordinates) without aliasing the source's slices.
func (ar *AugmentedRead) Clone() *AugmentedRead {
	out := &AugmentedRead{
		Read: Read{
			ID:        append([]byte(nil), ar.ID...),
			Seq:       append([]byte(nil), ar.Seq...),
			Qualities: append([]byte(nil), ar.Qualities...),
			MateRefs:  append([]byte(nil), ar.MateRefs...),
		},
		NovelKmers: append([]KmerAnnotation(nil), ar.NovelKmers...),
	}
	return out
}

// Source streams Read records from one or more FASTA/FASTQ files
// (plain or gzipped, per spec.md §4.B input).
type Source struct {
	files []string
	idx   int
	rdr   *fastx.Reader
}

// NewSource opens a streaming source over the given files, read in order.
func NewSource(files []string) *Source {
	return &Source{files: files}
}

// Next returns the next read, or io.EOF once every file is exhausted.
func (s *Source) Next() (*Read, error) {
	for {
		if s.rdr == nil {
			if s.idx >= len(s.files) {
				return nil, io.EOF
			}
			rdr, err := fastx.NewReader(nil, s.files[s.idx], "")
			if err != nil {
				return nil, err
			}
			s.rdr = rdr
		}

		record, err := s.rdr.Read()
		if err == io.EOF {
			s.rdr.Close()
			s.rdr = nil
			s.idx++
			continue
		}
		if err != nil {
			return nil, err
		}

		r := &Read{
			ID:  append([]byte(nil), record.ID...),
			Seq: append([]byte(nil), record.Seq.Seq...),
		}
		if record.Seq.Qual != nil {
			r.Qualities = append([]byte(nil), record.Seq.Qual...)
		}
		return r, nil
	}
}

// Close releases any open file handle.
func (s *Source) Close() error {
	if s.rdr != nil {
		s.rdr.Close()
	}
	return nil
}
