package timestamp

import "time"

// Special layouts handled numerically instead of through time.Parse.
const (
	LayoutUnixSeconds = "UNIX_SECONDS"
	LayoutUnixMillis  = "UNIX_MILLIS"
)

// Format is a named timestamp layout.
type Format struct {
	Name      string   // Human-readable name, usable as a hint
	Layout    string   // Go time layout, or one of the UNIX_* layouts
	Examples  []string // Example values
	Ambiguous bool     // Date ordering ambiguity (MM/DD vs DD/MM)
	NoYear    bool     // Layout carries no year; the reference year is assumed
}

// Numeric reports whether the format is an epoch counter.
func (f *Format) Numeric() bool {
	return f.Layout == LayoutUnixSeconds || f.Layout == LayoutUnixMillis
}

// DefaultFormats returns the built-in layouts in the order they are attempted.
// Textual layouts come first, epoch counters last.
func DefaultFormats() []*Format {
	return []*Format{
		{
			Name:     "RFC 3339",
			Layout:   time.RFC3339Nano,
			Examples: []string{"2024-01-15T10:30:00Z", "2024-01-15T10:30:00.123+02:00"},
		},
		{
			Name:     "ISO 8601 basic offset",
			Layout:   "2006-01-02T15:04:05.999999999Z0700",
			Examples: []string{"2024-01-15T10:30:00+0000", "2024-01-15T10:30:00.5-0500"},
		},
		{
			Name:     "ISO 8601",
			Layout:   "2006-01-02T15:04:05",
			Examples: []string{"2024-01-15T10:30:00", "2024-01-15T10:30:00.123"},
		},
		{
			Name:     "Datetime with offset",
			Layout:   "2006-01-02 15:04:05Z07:00",
			Examples: []string{"2024-01-15 10:30:00+01:00"},
		},
		{
			Name:     "Python logging",
			Layout:   "2006-01-02 15:04:05,000",
			Examples: []string{"2024-01-15 10:30:00,123"},
		},
		{
			Name:     "Log4j/Java logging",
			Layout:   "2006-01-02 15:04:05.000",
			Examples: []string{"2024-01-15 10:30:00.123"},
		},
		{
			Name:     "Datetime (space-separated)",
			Layout:   "2006-01-02 15:04:05",
			Examples: []string{"2024-01-15 10:30:00", "[2024-01-15 10:30:00]"},
		},
		{
			Name:     "Syslog with year",
			Layout:   "Jan 2 2006 15:04:05",
			Examples: []string{"Jun 14 2024 15:16:01"},
		},
		{
			Name:     "Syslog (BSD)",
			Layout:   "Jan 2 15:04:05",
			Examples: []string{"Jun 14 15:16:01", "Jan  5 09:30:00"},
			NoYear:   true,
		},
		{
			Name:     "Apache/NGINX CLF",
			Layout:   "02/Jan/2006:15:04:05 -0700",
			Examples: []string{"15/Jun/2024:10:30:00 +0000", "[10/Oct/2000:13:55:36 -0700]"},
		},
		{
			Name:     "Apache error log",
			Layout:   time.ANSIC,
			Examples: []string{"Sun Dec 04 04:47:44 2005", "Mon Jan  8 10:00:00.123456 2024"},
		},
		{
			Name:     "Unix date",
			Layout:   time.UnixDate,
			Examples: []string{"Mon Jan  8 10:00:00 UTC 2024"},
		},
		{
			Name:     "RFC 1123 numeric zone",
			Layout:   time.RFC1123Z,
			Examples: []string{"Mon, 15 Jan 2024 10:30:00 +0000"},
		},
		{
			Name:     "RFC 1123",
			Layout:   time.RFC1123,
			Examples: []string{"Mon, 15 Jan 2024 10:30:00 UTC"},
		},
		{
			Name:     "Spark/Hadoop short date",
			Layout:   "06/01/02 15:04:05",
			Examples: []string{"17/06/09 20:10:40"},
		},
		{
			Name:     "HDFS compact",
			Layout:   "060102 150405",
			Examples: []string{"081109 203615"},
		},
		{
			Name:      "US date format (MM/DD/YYYY)",
			Layout:    "01/02/2006 15:04:05",
			Examples:  []string{"01/15/2024 10:30:00"},
			Ambiguous: true,
		},
		{
			Name:     "Compact datetime",
			Layout:   "20060102150405",
			Examples: []string{"20240115103000"},
		},
		{
			Name:     "Date",
			Layout:   "2006-01-02",
			Examples: []string{"2024-01-15"},
		},
		{
			Name:     "Unix timestamp (seconds)",
			Layout:   LayoutUnixSeconds,
			Examples: []string{"1705315800", "1705315800.25"},
		},
		{
			Name:     "Unix timestamp (milliseconds)",
			Layout:   LayoutUnixMillis,
			Examples: []string{"1705315800000"},
		},
	}
}
