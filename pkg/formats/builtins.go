// Package formats registers the built-in format descriptors.
package formats

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/ccollicutt/logsniff/pkg/parser"
	"github.com/ccollicutt/logsniff/pkg/registry"
)

var (
	defaultOnce sync.Once
	defaultErr  error
)

// Default returns the process-wide registry with the built-in formats
// registered exactly once.
func Default() (*registry.Registry, error) {
	defaultOnce.Do(func() {
		defaultErr = RegisterBuiltins(registry.Default())
	})
	return registry.Default(), defaultErr
}

// NewRegistry returns a fresh registry holding the built-in formats.
func NewRegistry() (*registry.Registry, error) {
	r := registry.New()
	if err := RegisterBuiltins(r); err != nil {
		return nil, err
	}
	return r, nil
}

// RegisterBuiltins registers every built-in format on r.
func RegisterBuiltins(r *registry.Registry) error {
	for _, d := range Builtins() {
		if err := r.Register(d); err != nil {
			return fmt.Errorf("failed to register %s: %w", d.ID, err)
		}
	}
	return nil
}

// Builtins returns the built-in descriptors.
func Builtins() []registry.Descriptor {
	out := []registry.Descriptor{
		{
			ID:          "msgpack",
			Description: "Length-prefixed MessagePack maps",
			Family:      parser.Binary,
			Sequential:  true,
			Rule: registry.Rule{
				Stage:      registry.StageSignature,
				Extensions: []string{".msgpack", ".mpk"},
				Signature:  parser.IsMsgpackFrame,
			},
			Priority: 10,
			New:      parser.NewMsgpack,
		},
		{
			ID:          "elf",
			Description: "W3C extended log format",
			Family:      parser.Block,
			Sequential:  true,
			Rule: registry.Rule{
				Stage: registry.StageStructural,
				Line:  parser.IsELFDirective,
			},
			Priority:        10,
			TimestampFields: []string{"timestamp"},
			TimestampHint:   "Datetime (space-separated)",
			New:             parser.NewELF,
		},
		{
			ID:          "clf",
			Description: "Apache/NGINX common and combined access log",
			Family:      parser.Line,
			Rule: registry.Rule{
				Stage: registry.StageStructural,
				Line:  parser.IsCLF,
			},
			Priority:        20,
			TimestampFields: []string{"timestamp"},
			TimestampHint:   "Apache/NGINX CLF",
			New:             parser.NewCLF,
		},
		{
			ID:          "syslog",
			Description: "BSD (RFC 3164) and RFC 5424 syslog",
			Family:      parser.Line,
			Rule: registry.Rule{
				Stage: registry.StageStructural,
				Line:  parser.IsSyslog,
			},
			Priority:        30,
			TimestampFields: []string{"timestamp"},
			TimestampHint:   "Syslog (BSD)",
			New:             parser.NewSyslog,
		},
		{
			ID:          "apache-error",
			Description: "Apache error log",
			Family:      parser.Line,
			Rule: registry.Rule{
				Stage: registry.StageStructural,
				Line:  parser.IsApacheError,
			},
			Priority:        40,
			TimestampFields: []string{"timestamp"},
			TimestampHint:   "Apache error log",
			New:             parser.NewApacheError,
		},
		{
			ID:          "cef",
			Description: "ArcSight Common Event Format",
			Family:      parser.Line,
			Rule: registry.Rule{
				Stage: registry.StageStructural,
				Line:  parser.IsCEF,
			},
			Priority:        25,
			TimestampFields: []string{"timestamp", "rt", "start", "end"},
			New:             parser.NewCEF,
		},
		{
			ID:          "applog",
			Description: "Multi-line application log (timestamp and level)",
			Family:      parser.Block,
			Sequential:  true,
			Rule: registry.Rule{
				Stage: registry.StageStructural,
				Line:  parser.IsAppLogStart,
			},
			Priority:        60,
			TimestampFields: []string{"timestamp"},
			New:             parser.NewAppLog,
		},
		{
			ID:          "json-lines",
			Description: "Newline-delimited JSON objects",
			Family:      parser.Document,
			Rule: registry.Rule{
				Stage:      registry.StageContent,
				Extensions: []string{".jsonl", ".ndjson", ".json"},
				Sample:     func(sample []byte) bool { return !startsWith(sample, '[') },
				Line:       isJSONObject,
			},
			Priority: 10,
			New:      parser.NewJSONLines,
		},
		{
			ID:          "json",
			Description: "Bracket-delimited JSON array of objects",
			Family:      parser.Document,
			Sequential:  true,
			Rule: registry.Rule{
				Stage:      registry.StageContent,
				Extensions: []string{".json"},
				Sample:     func(sample []byte) bool { return startsWith(sample, '[') },
				Line:       isJSONArrayStart,
			},
			Priority: 20,
			New:      parser.NewJSONArray,
		},
		{
			ID:          "xml",
			Description: "One XML element per line",
			Family:      parser.Document,
			Rule: registry.Rule{
				Stage:      registry.StageContent,
				Extensions: []string{".xml"},
				Line:       parser.IsXMLLine,
			},
			Priority: 30,
			New:      parser.NewXML,
		},
		{
			ID:          "logfmt",
			Description: "key=value pairs",
			Family:      parser.Document,
			Rule: registry.Rule{
				Stage:      registry.StageContent,
				Extensions: []string{".logfmt"},
				Line:       parser.IsLogfmt,
			},
			Priority: 40,
			New:      parser.NewLogfmt,
		},
		{
			ID:          "csv",
			Description: "Comma-separated values with a header row",
			Family:      parser.Document,
			Sequential:  true,
			Rule: registry.Rule{
				Stage:      registry.StageContent,
				Extensions: []string{".csv"},
				Line:       func(line string) bool { return parser.IsDelimitedHeader(line, ',') },
			},
			Priority: 50,
			New:      parser.NewCSV,
		},
		{
			ID:          "tsv",
			Description: "Tab-separated values with a header row",
			Family:      parser.Document,
			Sequential:  true,
			Rule: registry.Rule{
				Stage:      registry.StageContent,
				Extensions: []string{".tsv", ".tab"},
				Line:       func(line string) bool { return parser.IsDelimitedHeader(line, '\t') },
			},
			Priority: 60,
			New:      parser.NewTSV,
		},
	}
	return append(out, Keywords()...)
}

func isJSONObject(line string) bool {
	_, ok := parser.ParseJSONObject(strings.TrimSpace(line))
	return ok
}

func isJSONArrayStart(line string) bool {
	s := strings.TrimSpace(line)
	if s == "[" {
		return true
	}
	for _, p := range []string{"[{", "[ {", `["`} {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return strings.HasPrefix(s, "[") && json.Valid([]byte(s))
}

// startsWith reports whether the first non-blank byte of sample is c.
func startsWith(sample []byte, c byte) bool {
	s := bytes.TrimPrefix(sample, []byte{0xEF, 0xBB, 0xBF})
	s = bytes.TrimLeft(s, " \t\r\n")
	return len(s) > 0 && s[0] == c
}
