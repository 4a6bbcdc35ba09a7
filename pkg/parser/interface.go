package parser

import "github.com/ccollicutt/logsniff/pkg/record"

// Records iterates the records of one parsed chunk.
// Implementations are single-pass and not safe for concurrent use.
type Records interface {
	// Next returns the next record.
	// Returns io.EOF when the chunk is exhausted.
	// Malformed entries are skipped and counted in Stats.
	Next() (*record.Record, error)

	// Stats reports counters accumulated so far.
	Stats() Stats
}

// Parser turns raw chunks into records for one format.
type Parser interface {
	// Family reports the structural family of the format.
	Family() Family

	// Parse returns a lazy iterator over the records in chunk.
	Parse(chunk *RawChunk) Records

	// Align returns how many leading bytes of window form a complete chunk.
	// Zero means more data is needed. At EOF the whole window is returned.
	Align(window []byte, atEOF bool) int
}
