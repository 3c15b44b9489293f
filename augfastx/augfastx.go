// Package augfastx implements the augmented FASTX codec described in
// spec.md §6: a standard FASTQ/FASTA record followed by zero or more
// annotation lines prefixed "# " of the form
// offset<TAB>kmer<TAB>abundance_case[,abundance_ctrl...], terminated by a
// lone "#" line. Partition framing is supported both as inline
// "#part=<label>" headers and as the separate-file convention
// "<prefix>.cc<N>.augfastq.gz" adopted from original_source/kevlar/partition.py.
package augfastx

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/knovel/knovel/kmer"
	"github.com/knovel/knovel/readstream"
)

// ErrMalformed is returned for a record that violates the augmented FASTX
// grammar (spec.md §7: "Malformed input record -> skip, count, continue").
var ErrMalformed = errors.New("augfastx: malformed record")

const mateAnnotationPrefix = "#mateseq="
const partitionHeaderPrefix = "#part="

// Reader streams AugmentedRead records, tracking the most recently seen
// "#part=<label>" header.
type Reader struct {
	br          *bufio.Reader
	k           uint8
	partition   string
	sawAnyPart  bool
	malformed   int
}

// NewReader wraps r as an augmented FASTX reader. k is the k-mer length
// used to re-encode annotation k-mer strings back to canonical codes.
func NewReader(r io.Reader, k uint8) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, 1<<16), k: k}
}

// MalformedCount reports how many records were skipped due to grammar
// violations, for the run summary (spec.md §7).
func (rd *Reader) MalformedCount() int { return rd.malformed }

// Next returns the next augmented read and the partition label in effect
// for it ("" if the stream has no #part= framing), or io.EOF.
func (rd *Reader) Next() (*readstream.AugmentedRead, string, error) {
	for {
		line, err := rd.readLine()
		if err == io.EOF {
			return nil, "", io.EOF
		}
		if err != nil {
			return nil, "", err
		}
		if len(line) == 0 {
			continue
		}

		if strings.HasPrefix(line, partitionHeaderPrefix) {
			rd.partition = strings.TrimPrefix(line, partitionHeaderPrefix)
			rd.sawAnyPart = true
			continue
		}

		switch line[0] {
		case '@':
			ar, err := rd.readFastqRecord(line)
			if err != nil {
				rd.malformed++
				continue
			}
			return ar, rd.partition, nil
		case '>':
			ar, err := rd.readFastaRecord(line)
			if err != nil {
				rd.malformed++
				continue
			}
			return ar, rd.partition, nil
		default:
			rd.malformed++
			continue
		}
	}
}

func (rd *Reader) readLine() (string, error) {
	b, err := rd.br.ReadBytes('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	s := strings.TrimRight(string(b), "\r\n")
	if s == "" && err == io.EOF && len(b) == 0 {
		return "", io.EOF
	}
	return s, nil
}

func (rd *Reader) readFastqRecord(header string) (*readstream.AugmentedRead, error) {
	id := header[1:]
	seqLine, err := rd.readLine()
	if err != nil {
		return nil, ErrMalformed
	}
	plusLine, err := rd.readLine()
	if err != nil || len(plusLine) == 0 || plusLine[0] != '+' {
		return nil, ErrMalformed
	}
	qualLine, err := rd.readLine()
	if err != nil {
		return nil, ErrMalformed
	}

	ar := &readstream.AugmentedRead{
		Read: readstream.Read{
			ID:        []byte(id),
			Seq:       []byte(seqLine),
			Qualities: []byte(qualLine),
		},
	}
	if err := rd.readAnnotations(ar); err != nil {
		return nil, err
	}
	return ar, nil
}

func (rd *Reader) readFastaRecord(header string) (*readstream.AugmentedRead, error) {
	id := header[1:]
	seqLine, err := rd.readLine()
	if err != nil {
		return nil, ErrMalformed
	}
	ar := &readstream.AugmentedRead{
		Read: readstream.Read{ID: []byte(id), Seq: []byte(seqLine)},
	}
	if err := rd.readAnnotations(ar); err != nil {
		return nil, err
	}
	return ar, nil
}

// readAnnotations consumes "# offset<TAB>kmer<TAB>counts" lines until the
// terminating lone "#" sentinel.
func (rd *Reader) readAnnotations(ar *readstream.AugmentedRead) error {
	for {
		line, err := rd.readLine()
		if err == io.EOF {
			// A well-formed stream always ends annotations with "#"; an
			// EOF mid-annotation block still yields whatever we parsed.
			return nil
		}
		if err != nil {
			return err
		}
		if line == "#" {
			return nil
		}
		if strings.HasPrefix(line, mateAnnotationPrefix) {
			ar.MateRefs = []byte(strings.TrimPrefix(line, mateAnnotationPrefix))
			continue
		}
		if !strings.HasPrefix(line, "# ") {
			return ErrMalformed
		}

		fields := strings.Split(line[2:], "\t")
		if len(fields) != 3 {
			return ErrMalformed
		}
		offset, err := strconv.Atoi(fields[0])
		if err != nil {
			return ErrMalformed
		}
		kmerStr := fields[1]
		code, err := kmer.Encode([]byte(kmerStr))
		if err != nil {
			return ErrMalformed
		}
		counts := strings.Split(fields[2], ",")
		if len(counts) < 1 {
			return ErrMalformed
		}
		caseAbund, err := strconv.ParseUint(counts[0], 10, 16)
		if err != nil {
			return ErrMalformed
		}
		ctrls := make([]uint16, 0, len(counts)-1)
		for _, c := range counts[1:] {
			v, err := strconv.ParseUint(c, 10, 16)
			if err != nil {
				return ErrMalformed
			}
			ctrls = append(ctrls, uint16(v))
		}

		ar.NovelKmers = append(ar.NovelKmers, readstream.KmerAnnotation{
			Offset:     offset,
			Kmer:       code,
			CaseAbund:  uint16(caseAbund),
			CtrlAbunds: ctrls,
		})
	}
}

// Writer emits AugmentedRead records in augmented FASTX form.
type Writer struct {
	w io.Writer
	k uint8
}

// NewWriter wraps w as an augmented FASTX writer.
func NewWriter(w io.Writer, k uint8) *Writer {
	return &Writer{w: w, k: k}
}

// WritePartitionHeader writes a "#part=<label>" framing line; callers use
// this for the inline multiplexed-stream mode (spec.md §6).
func (wr *Writer) WritePartitionHeader(label string) error {
	_, err := fmt.Fprintf(wr.w, "#part=%s\n", label)
	return err
}

// Write emits a single augmented read, FASTQ if Qualities is set, otherwise
// FASTA, followed by its annotation block and the "#" sentinel.
func (wr *Writer) Write(ar *readstream.AugmentedRead) error {
	var buf bytes.Buffer
	if len(ar.Qualities) > 0 {
		fmt.Fprintf(&buf, "@%s\n%s\n+\n%s\n", ar.ID, ar.Seq, ar.Qualities)
	} else {
		fmt.Fprintf(&buf, ">%s\n%s\n", ar.ID, ar.Seq)
	}
	if len(ar.MateRefs) > 0 {
		fmt.Fprintf(&buf, "#mateseq=%s\n", ar.MateRefs)
	}
	for _, a := range ar.NovelKmers {
		kmerStr := kmer.Decode(a.Kmer, int(wr.k))
		counts := strconv.FormatUint(uint64(a.CaseAbund), 10)
		for _, c := range a.CtrlAbunds {
			counts += "," + strconv.FormatUint(uint64(c), 10)
		}
		fmt.Fprintf(&buf, "# %d\t%s\t%s\n", a.Offset, kmerStr, counts)
	}
	buf.WriteString("#\n")

	_, err := wr.w.Write(buf.Bytes())
	return err
}

// PartitionFileName returns the "<prefix>.cc<N>.augfastq.gz" name for
// partition label n, the convention adopted from
// original_source/kevlar/partition.py's separate-file output mode.
func PartitionFileName(prefix string, n int) string {
	return fmt.Sprintf("%s.cc%d.augfastq.gz", prefix, n)
}
