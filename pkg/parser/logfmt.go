package parser

import (
	"strings"

	"github.com/ccollicutt/logsniff/pkg/record"
)

// NewLogfmt creates the logfmt (key=value) parser.
func NewLogfmt() Parser {
	return NewDocumentParser(ParseLogfmt)
}

// IsLogfmt reports whether a line consists entirely of at least two
// key=value pairs.
func IsLogfmt(line string) bool {
	pairs, ok := logfmtPairs(strings.TrimSpace(line))
	return ok && len(pairs) >= 2
}

// ParseLogfmt parses a line of key=value pairs. Lines with trailing text that
// is not a pair are malformed.
func ParseLogfmt(line string) (*record.Record, bool) {
	pairs, ok := logfmtPairs(strings.TrimSpace(line))
	if !ok || len(pairs) == 0 {
		return nil, false
	}
	rec := record.New(len(pairs))
	for _, p := range pairs {
		rec.Set(p.Name, p.Value)
	}
	return rec, true
}

// logfmtPairs scans key=value pairs in order. Quoted values may contain
// spaces and backslash escapes. It reports false when the line is not
// consumed completely.
func logfmtPairs(line string) ([]record.Field, bool) {
	var pairs []record.Field
	i := 0
	for i < len(line) {
		for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
			i++
		}
		if i >= len(line) {
			break
		}

		start := i
		for i < len(line) && line[i] != '=' && line[i] != ' ' && line[i] != '"' {
			i++
		}
		if i >= len(line) || line[i] != '=' || i == start {
			return pairs, false
		}
		key := line[start:i]
		i++

		var value string
		if i < len(line) && line[i] == '"' {
			i++
			var b strings.Builder
			closed := false
			for i < len(line) {
				c := line[i]
				if c == '\\' && i+1 < len(line) {
					b.WriteByte(line[i+1])
					i += 2
					continue
				}
				if c == '"' {
					closed = true
					i++
					break
				}
				b.WriteByte(c)
				i++
			}
			if !closed {
				return pairs, false
			}
			value = b.String()
		} else {
			vstart := i
			for i < len(line) && line[i] != ' ' && line[i] != '\t' {
				i++
			}
			value = line[vstart:i]
		}
		pairs = append(pairs, record.Field{Name: key, Value: value})
	}
	return pairs, true
}
