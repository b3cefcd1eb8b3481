// Package siz writes SIZ chunks: a pair of FASTQ streams split into fixed size groups of read pairs, each group
// interleaved (forward record then reverse record) and compressed as its own zstd stream.
package siz

// DefaultChunkSize is the number of read pairs per chunk.
const DefaultChunkSize = 1_000_000

// Span is the half-open range of pair indices [Start, End) held by chunk Index.
type Span struct {
	Index int
	Start int64
	End   int64
}

func (s Span) Pairs() int64 {
	return s.End - s.Start
}

// Layout returns the chunks that encoding total pairs at n pairs per chunk produces. Only the last chunk may
// be short, and a total that is a multiple of n never yields an empty trailing chunk. total == 0 yields no
// chunks. Layout panics if n is not positive.
func Layout(total int64, n int) []Span {
	if n <= 0 {
		panic("siz: chunk size must be positive")
	}
	spans := []Span{}
	for start, index := int64(0), 0; start < total; start, index = start+int64(n), index+1 {
		end := start + int64(n)
		if end > total {
			end = total
		}
		spans = append(spans, Span{Index: index, Start: start, End: end})
	}
	return spans
}
