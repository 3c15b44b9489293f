package kmer

import "sync"

// IsLowComplexity flags a k-mer as low-complexity according to the frequency
// of its 2-mers and 3-mers. Low-complexity k-mers (homopolymer runs, short
// tandem repeats) are cheap to over-count in both case and control sketches.
// The Call stage's Homopolymer FILTER does not use this check; it uses
// Homopolymer on the call's alleles.
func IsLowComplexity(code Code, k uint8) bool {
	counts := poolCounts.Get().(*[]byte)
	idxes := poolIdxes.Get().(*[]uint8)
	defer poolCounts.Put(counts)
	defer poolIdxes.Put(idxes)

	var mer Code
	var i, end, n uint8

	const minDistinct2Mers = 4
	const minDistinct3Mers = 8
	maxCount2Mer := k/2 - 1
	maxCount3Mer := k/3 - 1

	// 2-mers
	clear(*counts)
	end = k - 2
	for i = 0; i <= end; i++ {
		mer = code >> (i << 1) & 15
		(*counts)[mer]++
	}
	n = 0
	*idxes = (*idxes)[:0]
	for i = 0; i < 16; i++ {
		if (*counts)[i] > 0 {
			n++
			if n >= minDistinct2Mers {
				return false
			}
			*idxes = append(*idxes, i)
		}
	}
	for _, i = range *idxes {
		if (*counts)[i] >= maxCount2Mer {
			return true
		}
	}

	// 3-mers
	clear((*counts)[:64])
	for i = 0; i <= end; i++ {
		mer = code >> (i << 1) & 63
		(*counts)[mer]++
	}
	n = 0
	*idxes = (*idxes)[:0]
	for i = 0; i < 64; i++ {
		if (*counts)[i] > 0 {
			n++
			if n >= minDistinct3Mers {
				return false
			}
			*idxes = append(*idxes, i)
		}
	}
	for _, i = range *idxes {
		if (*counts)[i] >= maxCount3Mer {
			return true
		}
	}

	return false
}

var poolCounts = &sync.Pool{New: func() interface{} {
	tmp := make([]byte, 64)
	return &tmp
}}

var poolIdxes = &sync.Pool{New: func() interface{} {
	tmp := make([]uint8, 0, 64)
	return &tmp
}}

// Homopolymer reports whether a sequence is a run of a single base at least
// minLen bases long. Used when labeling calls with the Homopolymer filter.
func Homopolymer(seq []byte, minLen int) bool {
	if len(seq) < minLen {
		return false
	}
	for i := 1; i < len(seq); i++ {
		if seq[i] != seq[0] {
			return false
		}
	}
	return true
}
