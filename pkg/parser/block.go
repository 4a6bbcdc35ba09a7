package parser

import (
	"bytes"
	"io"
	"strings"

	"github.com/ccollicutt/logsniff/pkg/record"
)

// entryState is the position of a block parser relative to entries.
type entryState int

const (
	outsideEntry entryState = iota
	insideEntry
)

// BlockSpec describes how entries of a block format are recognized.
type BlockSpec struct {
	// Start reports whether a line opens a new entry.
	Start func(line string) bool

	// Open builds the record for an entry start line.
	Open func(line string) (*record.Record, bool)

	// Continue folds a continuation line into the open entry.
	// When nil, lines that do not start an entry are malformed.
	Continue func(rec *record.Record, line string)

	// Directive consumes out-of-band lines such as headers.
	// Directive lines never become records.
	Directive func(line string) bool
}

// BlockParser groups lines into entries with an explicit state machine.
// Chunks are aligned on entry starts, so the open entry is flushed at chunk end.
// Directive state carries across chunks; use one instance per source.
type BlockParser struct {
	spec BlockSpec
}

// NewBlockParser creates a block-oriented parser.
func NewBlockParser(spec BlockSpec) *BlockParser {
	return &BlockParser{spec: spec}
}

func (p *BlockParser) Family() Family { return Block }

// Align cuts the window before the last complete line that starts an entry.
func (p *BlockParser) Align(window []byte, atEOF bool) int {
	if atEOF {
		return len(window)
	}

	cut := 0
	pos := 0
	for pos < len(window) {
		end := bytes.IndexByte(window[pos:], '\n')
		if end < 0 {
			break
		}
		line := string(bytes.TrimSuffix(window[pos:pos+end], []byte{'\r'}))
		if pos > 0 && p.startsEntry(line) {
			cut = pos
		}
		pos += end + 1
	}
	return cut
}

func (p *BlockParser) startsEntry(line string) bool {
	if strings.TrimSpace(line) == "" {
		return false
	}
	if p.spec.Directive != nil && isDirectiveCandidate(line) {
		return false
	}
	return p.spec.Start(line)
}

// isDirectiveCandidate keeps Align free of directive side effects.
func isDirectiveCandidate(line string) bool {
	return strings.HasPrefix(line, "#")
}

func (p *BlockParser) Parse(chunk *RawChunk) Records {
	return &blockRecords{cursor: newLineCursor(chunk), spec: p.spec}
}

type blockRecords struct {
	cursor *lineCursor
	spec   BlockSpec
	state  entryState
	open   *record.Record
	stats  Stats
}

func (r *blockRecords) Next() (*record.Record, error) {
	for {
		line, ok := r.cursor.next()
		if !ok {
			if r.state == insideEntry {
				return r.close(), nil
			}
			return nil, io.EOF
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if r.spec.Directive != nil && r.spec.Directive(line) {
			continue
		}
		r.stats.Lines++

		if r.spec.Start(line) {
			var done *record.Record
			if r.state == insideEntry {
				done = r.close()
			}
			if rec, ok := r.spec.Open(line); ok {
				rec.Line = r.cursor.line
				r.open = rec
				r.state = insideEntry
			} else {
				r.stats.Skipped++
			}
			if done != nil {
				return done, nil
			}
			continue
		}

		if r.state == insideEntry && r.spec.Continue != nil {
			r.spec.Continue(r.open, line)
			continue
		}
		r.stats.Skipped++
	}
}

func (r *blockRecords) close() *record.Record {
	rec := r.open
	r.open = nil
	r.state = outsideEntry
	r.stats.Records++
	return rec
}

func (r *blockRecords) Stats() Stats { return r.stats }
