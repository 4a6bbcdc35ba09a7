package parser

import (
	"regexp"
	"strings"

	"github.com/ccollicutt/logsniff/pkg/record"
)

var (
	// Common/combined access log: host ident authuser [date] "request" status bytes ["referer" "agent"]
	clfPattern = regexp.MustCompile(`^(\S+) (\S+) (\S+) \[([^\]]+)\] "((?:[^"\\]|\\.)*)" (\d{3}) (\d+|-)(?: "((?:[^"\\]|\\.)*)" "((?:[^"\\]|\\.)*)")?\s*$`)

	// Apache error log: [Day Mon dd hh:mm:ss[.frac] yyyy] [module:level] [pid n[:tid n]] [client addr] message
	apacheErrorPattern = regexp.MustCompile(`^\[([A-Za-z]{3} [A-Za-z]{3} [ \d]\d \d{2}:\d{2}:\d{2}(?:\.\d+)? \d{4})\] \[([^\]]+)\](?: \[pid (\d+)(?::tid (\d+))?\])?(?: \[client ([^\]]+)\])? ?(.*)$`)
)

// IsCLF reports whether a line is a common or combined access log entry.
func IsCLF(line string) bool {
	return clfPattern.MatchString(line)
}

// NewCLF creates the access log line parser.
func NewCLF() Parser {
	return NewLineParser(ParseCLF)
}

// ParseCLF parses one common or combined access log line. The request is split
// into method, path and protocol; url aliases path.
func ParseCLF(line string) (*record.Record, bool) {
	m := clfPattern.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}

	rec := record.New(13)
	rec.Set("host", m[1])
	rec.Set("ident", dash(m[2]))
	rec.Set("authuser", dash(m[3]))
	rec.Set("timestamp", m[4])
	rec.Set("request", m[5])
	if parts := strings.Fields(m[5]); len(parts) == 3 {
		rec.Set("method", parts[0])
		rec.Set("path", parts[1])
		rec.Set("protocol", parts[2])
		rec.Set("url", parts[1])
	}
	rec.Set("status", m[6])
	rec.Set("bytes", dash(m[7]))
	if m[8] != "" || m[9] != "" {
		rec.Set("referer", dash(m[8]))
		rec.Set("user_agent", dash(m[9]))
	}
	return rec, true
}

// IsApacheError reports whether a line is an Apache error log entry.
func IsApacheError(line string) bool {
	return apacheErrorPattern.MatchString(line)
}

// NewApacheError creates the Apache error log line parser.
func NewApacheError() Parser {
	return NewLineParser(ParseApacheError)
}

// ParseApacheError parses one Apache error log line.
func ParseApacheError(line string) (*record.Record, bool) {
	m := apacheErrorPattern.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}

	rec := record.New(7)
	rec.Set("timestamp", m[1])
	if module, level, ok := strings.Cut(m[2], ":"); ok {
		rec.Set("module", module)
		rec.Set("level", level)
	} else {
		rec.Set("level", m[2])
	}
	if m[3] != "" {
		rec.Set("pid", m[3])
	}
	if m[4] != "" {
		rec.Set("tid", m[4])
	}
	if m[5] != "" {
		rec.Set("client", m[5])
	}
	rec.Set("message", m[6])
	return rec, true
}

// dash maps the conventional "-" placeholder to an absent value.
func dash(v string) any {
	if v == "-" || v == "" {
		return nil
	}
	return v
}
