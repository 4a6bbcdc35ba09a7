package parser

import (
	"strings"

	"github.com/ccollicutt/logsniff/pkg/record"
)

// IsELFDirective reports whether a line is an extended log format directive.
func IsELFDirective(line string) bool {
	for _, d := range []string{"#Version:", "#Fields:", "#Software:", "#Date:", "#Start-Date:", "#Remark:"} {
		if strings.HasPrefix(line, d) {
			return true
		}
	}
	return false
}

// elfHeader holds the field list announced by the last #Fields directive.
type elfHeader struct {
	fields []string
}

// NewELF creates the W3C extended log format parser. Each data line is an
// entry; #Fields directives replace the header for the lines that follow.
func NewELF() Parser {
	h := &elfHeader{}
	return NewBlockParser(BlockSpec{
		Start:     func(line string) bool { return !strings.HasPrefix(line, "#") },
		Open:      h.open,
		Directive: h.directive,
	})
}

func (h *elfHeader) directive(line string) bool {
	if !strings.HasPrefix(line, "#") {
		return false
	}
	if rest, ok := strings.CutPrefix(line, "#Fields:"); ok {
		h.fields = strings.Fields(rest)
	}
	return true
}

// open maps a data line through the header. Overflow joins into the last
// field; a short line is malformed.
func (h *elfHeader) open(line string) (*record.Record, bool) {
	if len(h.fields) == 0 {
		return nil, false
	}
	values := splitColumns(line, len(h.fields))
	if len(values) < len(h.fields) {
		return nil, false
	}

	rec := record.New(len(h.fields) + 2)
	for i, name := range h.fields {
		rec.Set(name, dash(values[i]))
	}

	date, okDate := rec.Text("date")
	clock, okTime := rec.Text("time")
	if okDate && okTime && !rec.Has("timestamp") {
		rec.Set("timestamp", date+" "+clock)
	}
	if stem, ok := rec.Text("cs-uri-stem"); ok && !rec.Has("url") {
		url := stem
		if q, ok := rec.Text("cs-uri-query"); ok {
			url += "?" + q
		}
		rec.Set("url", url)
	}
	return rec, true
}
