package graph

import (
	"encoding/binary"
	"fmt"
	"math"
)

// BM25 parameters, the same defaults SQLite's FTS5 bm25() uses
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// bm25 scores one FTS4 hit from its matchinfo(..., 'pcnalx') blob. The blob
// is a sequence of native-endian uint32 values:
//
//	p, c, n, a[c], l[c], then x[p][c][3] (hits here, hits everywhere, docs with hits)
func bm25(info []byte) (float64, error) {
	if len(info)%4 != 0 || len(info) < 12 {
		return 0, fmt.Errorf("matchinfo blob has %d bytes", len(info))
	}
	v := make([]uint32, len(info)/4)
	for i := range v {
		v[i] = binary.NativeEndian.Uint32(info[i*4:])
	}

	phrases, columns, docs := int(v[0]), int(v[1]), float64(v[2])
	if len(v) != 3+2*columns+3*phrases*columns {
		return 0, fmt.Errorf("matchinfo blob has %d values for %d phrases and %d columns", len(v), phrases, columns)
	}
	avgLen := v[3 : 3+columns]
	docLen := v[3+columns : 3+2*columns]
	hits := v[3+2*columns:]

	var score float64
	for p := 0; p < phrases; p++ {
		for c := 0; c < columns; c++ {
			x := hits[3*(p*columns+c):]
			tf, withHits := float64(x[0]), float64(x[2])
			if tf == 0 {
				continue
			}

			idf := math.Log((docs - withHits + 0.5) / (withHits + 0.5))
			if idf <= 0 {
				idf = 1e-6
			}
			norm := 1.0
			if avgLen[c] > 0 {
				norm = 1 - bm25B + bm25B*float64(docLen[c])/float64(avgLen[c])
			}
			score += idf * tf * (bm25K1 + 1) / (tf + bm25K1*norm)
		}
	}
	return score, nil
}
