package parser

import (
	"strings"

	"github.com/ccollicutt/logsniff/pkg/record"
)

// Columns returns a LineFunc for whitespace-separated column formats. The
// last column takes the remainder of the line; lines with fewer columns are
// malformed.
func Columns(columns []string) LineFunc {
	names := append([]string(nil), columns...)
	return func(line string) (*record.Record, bool) {
		values := splitColumns(line, len(names))
		if len(values) < len(names) {
			return nil, false
		}
		rec := record.New(len(names))
		for i, name := range names {
			rec.Set(name, values[i])
		}
		return rec, true
	}
}

// NewColumns creates a line parser for a column format.
func NewColumns(columns []string) Parser {
	return NewLineParser(Columns(columns))
}

// splitColumns splits on runs of blanks into at most n values.
func splitColumns(line string, n int) []string {
	if n <= 0 {
		return nil
	}
	out := make([]string, 0, n)
	s := strings.Trim(line, " \t")
	for len(out) < n-1 && s != "" {
		i := strings.IndexAny(s, " \t")
		if i < 0 {
			break
		}
		out = append(out, s[:i])
		s = strings.TrimLeft(s[i:], " \t")
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}
