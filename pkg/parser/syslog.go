package parser

import (
	"regexp"
	"strconv"

	"github.com/ccollicutt/logsniff/pkg/record"
)

var (
	// BSD syslog: optional <PRI>, "Mmm dd [yyyy] hh:mm:ss", host, optional tag[pid]:
	rfc3164Pattern = regexp.MustCompile(`^(?:<(\d{1,3})>)?([A-Za-z]{3}\s+\d{1,2}\s+(?:\d{4}\s+)?\d{2}:\d{2}:\d{2}(?:\.\d+)?)\s+(\S+)\s+(?:([^\s:\[\]]+)(?:\[(\d+)\])?:\s*)?(.*)$`)

	// RFC 5424: <PRI>1 timestamp host app procid msgid structured-data msg
	rfc5424Pattern = regexp.MustCompile(`^<(\d{1,3})>1\s+(\S+)\s+(\S+)\s+(\S+)\s+(\S+)\s+(\S+)\s+(-|(?:\[[^\]]*\])+)\s?(.*)$`)
)

var syslogFacilities = []string{
	"kern", "user", "mail", "daemon", "auth", "syslog", "lpr", "news",
	"uucp", "cron", "authpriv", "ftp", "ntp", "security", "console", "solaris-cron",
	"local0", "local1", "local2", "local3", "local4", "local5", "local6", "local7",
}

var syslogSeverities = []string{
	"emerg", "alert", "crit", "err", "warning", "notice", "info", "debug",
}

// IsSyslog reports whether a line looks like BSD or RFC 5424 syslog.
func IsSyslog(line string) bool {
	return rfc5424Pattern.MatchString(line) || rfc3164Pattern.MatchString(line)
}

// NewSyslog creates the syslog line parser.
func NewSyslog() Parser {
	return NewLineParser(ParseSyslog)
}

// ParseSyslog parses one BSD (RFC 3164) or RFC 5424 syslog line.
func ParseSyslog(line string) (*record.Record, bool) {
	if m := rfc5424Pattern.FindStringSubmatch(line); m != nil {
		rec := record.New(10)
		if !setPriority(rec, m[1]) {
			return nil, false
		}
		rec.Set("timestamp", dash(m[2]))
		rec.Set("host", dash(m[3]))
		rec.Set("app", dash(m[4]))
		rec.Set("procid", dash(m[5]))
		rec.Set("msgid", dash(m[6]))
		rec.Set("structured_data", dash(m[7]))
		rec.Set("message", m[8])
		return rec, true
	}

	m := rfc3164Pattern.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	rec := record.New(8)
	if m[1] != "" && !setPriority(rec, m[1]) {
		return nil, false
	}
	rec.Set("timestamp", m[2])
	rec.Set("host", m[3])
	if m[4] != "" {
		rec.Set("process", m[4])
	}
	if m[5] != "" {
		rec.Set("pid", m[5])
	}
	rec.Set("message", m[6])
	return rec, true
}

// setPriority decodes <PRI> into facility and severity names.
func setPriority(rec *record.Record, pri string) bool {
	n, err := strconv.Atoi(pri)
	if err != nil || n > 191 {
		return false
	}
	rec.Set("priority", int64(n))
	rec.Set("facility", syslogFacilities[n/8])
	rec.Set("severity", syslogSeverities[n%8])
	return true
}
