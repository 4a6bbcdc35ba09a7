package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/ccollicutt/logsniff/pkg/record"
)

var errNotObject = errors.New("not a JSON object")

// NewJSONLines creates the newline-delimited JSON parser.
func NewJSONLines() Parser {
	return NewDocumentParser(ParseJSONObject)
}

// ParseJSONObject decodes a line holding exactly one JSON object. Top-level
// keys keep their document order; nested values are kept opaque.
func ParseJSONObject(line string) (*record.Record, bool) {
	dec := json.NewDecoder(strings.NewReader(line))
	dec.UseNumber()

	rec, err := decodeObject(dec)
	if err != nil {
		return nil, false
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, false
	}
	return rec, true
}

func decodeObject(dec *json.Decoder) (*record.Record, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errNotObject
	}

	rec := record.New(8)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, errNotObject
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		rec.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return rec, nil
}

// JSONArrayParser streams the elements of a top-level JSON array. Chunks are
// cut after complete elements, so every chunk decodes on its own.
type JSONArrayParser struct{}

// NewJSONArray creates the bracket-delimited JSON document parser.
func NewJSONArray() Parser {
	return &JSONArrayParser{}
}

func (p *JSONArrayParser) Family() Family { return Document }

func (p *JSONArrayParser) Align(window []byte, atEOF bool) int {
	if atEOF {
		return len(window)
	}
	return walkArray(window, opensArray(window), nil)
}

// SkipEntry scans past an array element too large to buffer. The element
// ends at its closing bracket or before the next top-level separator.
func (p *JSONArrayParser) SkipEntry() func(data []byte) (int, bool) {
	s := &elementSkipper{depth: -1}
	return s.scan
}

type elementSkipper struct {
	depth    int // -1 until the first window shows whether the array opens in it
	started  bool
	inString bool
	escaped  bool
}

func (s *elementSkipper) scan(data []byte) (int, bool) {
	if s.depth < 0 {
		s.depth = 1
		if opensArray(data) {
			s.depth = 0
		}
	}
	for i := 0; i < len(data); i++ {
		c := data[i]
		if s.inString {
			switch {
			case s.escaped:
				s.escaped = false
			case c == '\\':
				s.escaped = true
			case c == '"':
				s.inString = false
			}
			continue
		}
		if s.depth == 0 {
			if c == '[' {
				s.depth = 1
			}
			continue
		}

		switch c {
		case ' ', '\t', '\r', '\n':
		case ',':
			if s.depth == 1 && s.started {
				return i, true
			}
		case ']', '}':
			if s.depth == 1 {
				return i, true
			}
			s.depth--
			if s.depth == 1 {
				return i + 1, true
			}
		case '"':
			s.started = true
			s.inString = true
		case '[', '{':
			s.started = true
			s.depth++
		default:
			s.started = true
		}
	}
	return len(data), false
}

func (p *JSONArrayParser) Parse(chunk *RawChunk) Records {
	r := &jsonArrayRecords{}
	walkArray(chunk.Data, opensArray(chunk.Data), func(elem []byte) {
		r.elems = append(r.elems, elem)
	})
	return r
}

type jsonArrayRecords struct {
	elems [][]byte
	pos   int
	stats Stats
}

func (r *jsonArrayRecords) Next() (*record.Record, error) {
	for r.pos < len(r.elems) {
		elem := r.elems[r.pos]
		r.pos++
		r.stats.Lines++

		dec := json.NewDecoder(bytes.NewReader(elem))
		dec.UseNumber()
		rec, err := decodeObject(dec)
		if err != nil {
			r.stats.Skipped++
			continue
		}
		r.stats.Records++
		return rec, nil
	}
	return nil, io.EOF
}

func (r *jsonArrayRecords) Stats() Stats { return r.stats }

// opensArray reports whether data starts with the opening bracket of the array
// rather than in the middle of it.
func opensArray(data []byte) bool {
	trimmed := bytes.TrimPrefix(data, utf8BOM)
	trimmed = bytes.TrimLeft(trimmed, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '['
}

// walkArray scans data positioned before (fromStart) or inside a top-level
// JSON array and calls fn with every complete element. It returns the offset
// just past the last complete element.
func walkArray(data []byte, fromStart bool, fn func(elem []byte)) int {
	depth := 1
	if fromStart {
		depth = 0
	}
	var (
		inString bool
		escaped  bool
		start    = -1
		last     int
	)
	emit := func(from, to int) {
		elem := bytes.TrimSpace(data[from:to])
		if len(elem) > 0 && fn != nil {
			fn(elem)
		}
	}

	for i := 0; i < len(data); i++ {
		c := data[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
			if depth == 1 && start < 0 {
				start = i
			}
		case '[', '{':
			if depth == 1 && start < 0 {
				start = i
			}
			depth++
		case ']', '}':
			depth--
			switch {
			case depth == 1 && start >= 0:
				emit(start, i+1)
				start = -1
				last = i + 1
			case depth == 0:
				if start >= 0 {
					emit(start, i)
					start = -1
				}
				last = i + 1
			}
		case ',':
			if depth == 1 && start >= 0 {
				emit(start, i)
				start = -1
				last = i
			}
		case ' ', '\t', '\r', '\n':
		default:
			if depth == 1 && start < 0 {
				start = i
			}
		}
	}
	return last
}
