// Package parser provides the per-family parsers turning raw chunks into records.
package parser

import "fmt"

// Family is the structural family of a format.
type Family int

const (
	// Line formats parse every line independently.
	Line Family = iota + 1
	// Block formats group continuation lines into the preceding entry.
	Block
	// Document formats decode self-describing documents or header-mapped rows.
	Document
	// Binary formats read length-prefixed frames.
	Binary
)

func (f Family) String() string {
	switch f {
	case Line:
		return "line"
	case Block:
		return "block"
	case Document:
		return "document"
	case Binary:
		return "binary"
	default:
		return fmt.Sprintf("family(%d)", int(f))
	}
}

// RawChunk is a bounded window of the source aligned on record boundaries.
type RawChunk struct {
	// Data is owned by the chunk.
	Data []byte

	// Offset is the byte offset of Data in the (decompressed) source.
	Offset int64

	// Index is the 0-based chunk sequence number.
	Index int

	// FirstLine is the 1-based line number of the first line in Data.
	FirstLine int

	// Final marks the last chunk of the source.
	Final bool

	// Oversized is the number of entries longer than the entry limit that
	// the reader dropped just before this chunk.
	Oversized int
}

// Stats counts what a parser saw in a chunk.
type Stats struct {
	// Lines is the number of candidate units examined (non-empty lines or frames).
	Lines int

	// Records is the number of records emitted.
	Records int

	// Skipped is the number of malformed entries dropped.
	Skipped int

	// Truncated is the number of incomplete trailing frames dropped.
	Truncated int

	// TruncatedBytes is the size of the dropped trailing frames.
	TruncatedBytes int64
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Lines += o.Lines
	s.Records += o.Records
	s.Skipped += o.Skipped
	s.Truncated += o.Truncated
	s.TruncatedBytes += o.TruncatedBytes
}
