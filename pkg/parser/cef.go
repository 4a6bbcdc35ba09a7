package parser

import (
	"regexp"
	"strings"

	"github.com/ccollicutt/logsniff/pkg/record"
)

var (
	cefMarker       = regexp.MustCompile(`CEF:\d+\|`)
	cefExtensionKey = regexp.MustCompile(`(?:^|\s)([A-Za-z0-9_.\[\]-]+)=`)
	cefSyslogPrefix = regexp.MustCompile(`^(?:<\d{1,3}>)?([A-Za-z]{3}\s+\d{1,2}\s+(?:\d{4}\s+)?\d{2}:\d{2}:\d{2})\s+(\S+)\s*$`)
)

var cefHeaderFields = []string{
	"cef_version", "device_vendor", "device_product", "device_version",
	"signature_id", "name", "severity",
}

// IsCEF reports whether a line carries a CEF header.
func IsCEF(line string) bool {
	return cefMarker.MatchString(line)
}

// NewCEF creates the CEF line parser.
func NewCEF() Parser {
	return NewLineParser(ParseCEF)
}

// ParseCEF parses a Common Event Format line, optionally behind a syslog
// prefix. Extension keys become fields after the seven header fields.
func ParseCEF(line string) (*record.Record, bool) {
	loc := cefMarker.FindStringIndex(line)
	if loc == nil {
		return nil, false
	}

	header, ext, ok := splitCEFHeader(line[loc[0]+len("CEF:"):])
	if !ok {
		return nil, false
	}

	rec := record.New(len(cefHeaderFields) + 8)
	if prefix := strings.TrimSpace(line[:loc[0]]); prefix != "" {
		if m := cefSyslogPrefix.FindStringSubmatch(prefix); m != nil {
			rec.Set("timestamp", m[1])
			rec.Set("host", m[2])
		} else {
			rec.Set("prefix", prefix)
		}
	}
	for i, name := range cefHeaderFields {
		rec.Set(name, header[i])
	}

	keys := cefExtensionKey.FindAllStringSubmatchIndex(ext, -1)
	for i, k := range keys {
		name := ext[k[2]:k[3]]
		end := len(ext)
		if i+1 < len(keys) {
			end = keys[i+1][0]
		}
		rec.Set(name, unescapeCEF(strings.TrimSpace(ext[k[1]:end])))
	}
	return rec, true
}

// splitCEFHeader splits the seven pipe-separated header fields, honoring
// backslash escapes, and returns the remaining extension.
func splitCEFHeader(s string) ([]string, string, bool) {
	fields := make([]string, 0, len(cefHeaderFields))
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			i++
			b.WriteByte(s[i])
			continue
		}
		if c != '|' {
			b.WriteByte(c)
			continue
		}
		fields = append(fields, b.String())
		b.Reset()
		if len(fields) == len(cefHeaderFields) {
			return fields, s[i+1:], true
		}
	}
	return nil, "", false
}

var cefValueReplacer = strings.NewReplacer(`\=`, `=`, `\\`, `\`, `\n`, "\n", `\r`, "\r")

func unescapeCEF(v string) string {
	return cefValueReplacer.Replace(v)
}
