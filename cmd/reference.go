package cmd

import (
	"io"

	"github.com/shenwei356/bio/seqio/fastx"
)

// loadReferenceFasta reads every record of file into memory, keyed by
// sequence id. Localize/Call operate on a single small reference per run
// (spec.md §4.G), so holding it whole is the teacher's own
// lexicmap/cmd/map.go query-loading pattern applied to the other side of
// the comparison.
func loadReferenceFasta(file string) (map[string][]byte, error) {
	rdr, err := fastx.NewReader(nil, file, "")
	if err != nil {
		return nil, err
	}
	defer rdr.Close()

	refs := make(map[string][]byte)
	for {
		record, err := rdr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		refs[string(record.ID)] = append([]byte(nil), record.Seq.Seq...)
	}
	return refs, nil
}
