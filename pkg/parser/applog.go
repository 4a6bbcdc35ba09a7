package parser

import (
	"regexp"

	"github.com/ccollicutt/logsniff/pkg/record"
)

// Application log entry start: ISO-like timestamp (optionally bracketed) and a level.
var applogStart = regexp.MustCompile(`^\[?(\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:[.,]\d+)?(?:Z|[+-]\d{2}:?\d{2})?)\]?\s+\[?(?i:(TRACE|DEBUG|INFO|NOTICE|WARN|WARNING|ERROR|ERR|FATAL|CRITICAL|CRIT|SEVERE))\b\]?:?\s*(.*)$`)

// IsAppLogStart reports whether a line opens an application log entry.
func IsAppLogStart(line string) bool {
	return applogStart.MatchString(line)
}

// NewAppLog creates the multi-line application log parser. Lines that do not
// open an entry (stack traces, wrapped messages) extend the open message.
func NewAppLog() Parser {
	return NewBlockParser(BlockSpec{
		Start: IsAppLogStart,
		Open:  openAppLog,
		Continue: func(rec *record.Record, line string) {
			msg, _ := rec.Text("message")
			rec.Set("message", msg+"\n"+line)
		},
	})
}

func openAppLog(line string) (*record.Record, bool) {
	m := applogStart.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	rec := record.New(3)
	rec.Set("timestamp", m[1])
	rec.Set("level", m[2])
	rec.Set("message", m[3])
	return rec, true
}
