package parser

import (
	"bytes"
	"io"
	"strings"

	"github.com/ccollicutt/logsniff/pkg/record"
)

// lineCursor walks the lines of a chunk, tracking line numbers.
type lineCursor struct {
	data []byte
	pos  int
	line int // number of the line returned last
}

func newLineCursor(chunk *RawChunk) *lineCursor {
	first := chunk.FirstLine
	if first < 1 {
		first = 1
	}
	return &lineCursor{data: chunk.Data, line: first - 1}
}

// next returns the next line without its terminator.
func (c *lineCursor) next() (string, bool) {
	if c.pos >= len(c.data) {
		return "", false
	}
	rest := c.data[c.pos:]
	end := bytes.IndexByte(rest, '\n')
	var raw []byte
	if end < 0 {
		raw = rest
		c.pos = len(c.data)
	} else {
		raw = rest[:end]
		c.pos += end + 1
	}
	c.line++
	raw = bytes.TrimSuffix(raw, []byte{'\r'})
	if c.line == 1 {
		raw = bytes.TrimPrefix(raw, utf8BOM)
	}
	return string(raw), true
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// AlignLines cuts the window after its last complete line.
func AlignLines(window []byte, atEOF bool) int {
	if atEOF {
		return len(window)
	}
	return bytes.LastIndexByte(window, '\n') + 1
}

// LineFunc parses a single line. It reports false for malformed lines.
type LineFunc func(line string) (*record.Record, bool)

// LineParser applies a LineFunc to every non-empty line of a chunk.
// It holds no state and can be shared across workers.
type LineParser struct {
	family Family
	parse  LineFunc
	ignore func(line string) bool
}

// NewLineParser creates a line-oriented parser.
func NewLineParser(fn LineFunc) *LineParser {
	return &LineParser{family: Line, parse: fn}
}

// NewDocumentParser creates a parser for formats with one self-describing
// document per line.
func NewDocumentParser(fn LineFunc) *LineParser {
	return &LineParser{family: Document, parse: fn}
}

func (p *LineParser) Family() Family { return p.family }

func (p *LineParser) Align(window []byte, atEOF bool) int {
	return AlignLines(window, atEOF)
}

func (p *LineParser) Parse(chunk *RawChunk) Records {
	return &lineRecords{cursor: newLineCursor(chunk), parser: p}
}

type lineRecords struct {
	cursor *lineCursor
	parser *LineParser
	stats  Stats
}

func (r *lineRecords) Next() (*record.Record, error) {
	for {
		line, ok := r.cursor.next()
		if !ok {
			return nil, io.EOF
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if r.parser.ignore != nil && r.parser.ignore(line) {
			continue
		}
		r.stats.Lines++

		rec, ok := r.parser.parse(line)
		if !ok {
			r.stats.Skipped++
			continue
		}
		rec.Line = r.cursor.line
		r.stats.Records++
		return rec, nil
	}
}

func (r *lineRecords) Stats() Stats { return r.stats }
