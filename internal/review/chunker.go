package review

import (
	"fmt"

	"github.com/dshills/docreview/internal/extract"
)

// Range is a half-open interval [Start, End) over a sequence.
type Range struct {
	Start int
	End   int
}

// Len returns the number of units in the range.
func (r Range) Len() int { return r.End - r.Start }

// MakeChunksByCount splits a sequence of length units into exactly
// chunkCount contiguous ranges covering [0, length). Each range after the
// first starts overlap units before its natural boundary, limited to the
// natural size of the preceding range. chunkCount is clamped to [1, length].
// An empty sequence yields one empty range.
func MakeChunksByCount(length, chunkCount, overlap int) []Range {
	if length <= 0 {
		return []Range{{0, 0}}
	}
	if chunkCount < 1 {
		chunkCount = 1
	}
	if chunkCount > length {
		chunkCount = length
	}
	if overlap < 0 {
		overlap = 0
	}

	bound := func(i int) int { return i * length / chunkCount }

	ranges := make([]Range, chunkCount)
	for i := range ranges {
		start := bound(i)
		if i > 0 {
			start -= min(overlap, start-bound(i-1))
		}
		ranges[i] = Range{Start: start, End: bound(i + 1)}
	}
	return ranges
}

// SplitText splits text into n overlapping pieces measured in runes.
func SplitText(text string, n, overlap int) []string {
	runes := []rune(text)
	ranges := MakeChunksByCount(len(runes), n, overlap)
	out := make([]string, len(ranges))
	for i, r := range ranges {
		out[i] = string(runes[r.Start:r.End])
	}
	return out
}

// SplitSlice splits seq into n overlapping sub-slices. The sub-slices share
// backing storage with seq.
func SplitSlice[T any](seq []T, n, overlap int) [][]T {
	ranges := MakeChunksByCount(len(seq), n, overlap)
	out := make([][]T, len(ranges))
	for i, r := range ranges {
		out[i] = seq[r.Start:r.End:r.End]
	}
	return out
}

// Chunk is one piece of a document for a single chunk-retry iteration.
type Chunk struct {
	Index  int
	Total  int
	Source Document
	Text   string
	Images []string
}

// Document returns the chunk as a document. When the source was split the
// result is a _part{n} sub-document sharing the source's FileID.
func (c Chunk) Document() Document {
	d := c.Source
	d.Text = c.Text
	d.Images = c.Images
	if c.Total > 1 {
		suffix := fmt.Sprintf("_part%d", c.Index+1)
		d.ID += suffix
		d.Name += suffix
	}
	return d
}

// Split divides the document into n chunks, overlapping by textOverlap
// runes or imageOverlap pages depending on its mode.
func (d Document) Split(n, textOverlap, imageOverlap int) []Chunk {
	var chunks []Chunk
	if d.Mode == extract.ModeImage {
		for i, pages := range SplitSlice(d.Images, n, imageOverlap) {
			chunks = append(chunks, Chunk{Index: i, Source: d, Images: pages})
		}
	} else {
		for i, text := range SplitText(d.Text, n, textOverlap) {
			chunks = append(chunks, Chunk{Index: i, Source: d, Text: text})
		}
	}
	for i := range chunks {
		chunks[i].Total = len(chunks)
	}
	return chunks
}
