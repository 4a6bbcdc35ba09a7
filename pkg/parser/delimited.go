package parser

import (
	"encoding/csv"
	"io"
	"regexp"
	"strings"

	"github.com/ccollicutt/logsniff/pkg/record"
)

// DelimitedParser maps delimiter-separated rows through the header row, which
// is the first row of the source. One instance per source.
type DelimitedParser struct {
	comma  rune
	header []string
}

// NewCSV creates the comma-separated parser.
func NewCSV() Parser {
	return &DelimitedParser{comma: ','}
}

// NewTSV creates the tab-separated parser.
func NewTSV() Parser {
	return &DelimitedParser{comma: '\t'}
}

func (p *DelimitedParser) Family() Family { return Document }

func (p *DelimitedParser) Align(window []byte, atEOF bool) int {
	return AlignLines(window, atEOF)
}

func (p *DelimitedParser) Parse(chunk *RawChunk) Records {
	return &delimitedRecords{parser: p, cursor: newLineCursor(chunk)}
}

type delimitedRecords struct {
	parser *DelimitedParser
	cursor *lineCursor
	stats  Stats
}

func (r *delimitedRecords) Next() (*record.Record, error) {
	p := r.parser
	for {
		line, ok := r.cursor.next()
		if !ok {
			return nil, io.EOF
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		row, err := splitRow(line, p.comma)
		if p.header == nil {
			if err != nil || len(row) == 0 {
				r.stats.Lines++
				r.stats.Skipped++
				continue
			}
			p.header = make([]string, len(row))
			for i, name := range row {
				p.header[i] = strings.TrimSpace(name)
			}
			continue
		}

		r.stats.Lines++
		if err != nil {
			r.stats.Skipped++
			continue
		}
		// A short row leaves trailing fields absent; cells past the header
		// have no name and are dropped.
		if len(row) > len(p.header) {
			row = row[:len(p.header)]
		}
		rec := record.New(len(row))
		for i, v := range row {
			rec.Set(p.header[i], v)
		}
		rec.Line = r.cursor.line
		r.stats.Records++
		return rec, nil
	}
}

func (r *delimitedRecords) Stats() Stats { return r.stats }

func splitRow(line string, comma rune) ([]string, error) {
	cr := csv.NewReader(strings.NewReader(line))
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return cr.Read()
}

var headerToken = regexp.MustCompile(`^[A-Za-z_@][\w .@/()-]{0,63}$`)

// IsDelimitedHeader reports whether a line looks like a header row of at least
// two named columns separated by comma.
func IsDelimitedHeader(line string, comma rune) bool {
	if !strings.ContainsRune(line, comma) {
		return false
	}
	row, err := splitRow(line, comma)
	if err != nil || len(row) < 2 {
		return false
	}
	for _, name := range row {
		if !headerToken.MatchString(strings.TrimSpace(name)) {
			return false
		}
	}
	return true
}
