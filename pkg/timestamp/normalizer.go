// Package timestamp converts heterogeneous timestamp text into canonical UTC instants.
package timestamp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrUnparseable is returned when no layout accepts a value.
var ErrUnparseable = errors.New("unparseable timestamp")

// Sanity range for epoch counters (1970-2100).
const maxEpochSeconds = 4102444800

// Normalizer parses timestamp text with a hint first and the known layouts after.
// It is safe for concurrent use.
type Normalizer struct {
	formats []*Format
	byName  map[string]*Format
	loc     *time.Location
	now     func() time.Time
}

// Option configures the Normalizer.
type Option func(*Normalizer)

// WithLocation sets the zone assumed for zone-less values (default UTC).
func WithLocation(loc *time.Location) Option {
	return func(n *Normalizer) {
		if loc != nil {
			n.loc = loc
		}
	}
}

// WithClock sets the reference clock used for year-less layouts.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		if now != nil {
			n.now = now
		}
	}
}

// WithFormats replaces the attempted layouts.
func WithFormats(formats []*Format) Option {
	return func(n *Normalizer) {
		if len(formats) > 0 {
			n.formats = formats
		}
	}
}

// New creates a Normalizer with the default layouts.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		formats: DefaultFormats(),
		loc:     time.UTC,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	n.byName = make(map[string]*Format, len(n.formats))
	for _, f := range n.formats {
		n.byName[strings.ToLower(f.Name)] = f
	}
	return n
}

// Formats returns the layouts in attempt order.
func (n *Normalizer) Formats() []*Format {
	return n.formats
}

// Lookup returns the format registered under a (case-insensitive) name.
func (n *Normalizer) Lookup(name string) (*Format, bool) {
	f, ok := n.byName[strings.ToLower(name)]
	return f, ok
}

// Normalize parses text into a UTC instant. The hint is tried first and may be
// a format name or a Go layout.
func (n *Normalizer) Normalize(text, hint string) (time.Time, error) {
	s := clean(text)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty value", ErrUnparseable)
	}

	if hint != "" {
		if t, ok := n.parseHint(s, hint); ok {
			return t.UTC(), nil
		}
	}

	for _, f := range n.formats {
		if t, ok := n.parse(s, f); ok {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrUnparseable, text)
}

// Recognize reports whether text matches one of the textual layouts.
// Epoch counters are not considered, since any integer would qualify.
func (n *Normalizer) Recognize(text string) bool {
	s := clean(text)
	if s == "" {
		return false
	}
	for _, f := range n.formats {
		if f.Numeric() {
			continue
		}
		if _, ok := n.parse(s, f); ok {
			return true
		}
	}
	return false
}

// Canonical renders an instant in the canonical RFC 3339 UTC form.
func Canonical(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func (n *Normalizer) parseHint(s, hint string) (time.Time, bool) {
	if f, ok := n.Lookup(hint); ok {
		return n.parse(s, f)
	}
	f := &Format{
		Name:   hint,
		Layout: hint,
		NoYear: !strings.Contains(hint, "06"),
	}
	return n.parse(s, f)
}

// parse parses s with a single format. Handles the UNIX_* layouts and
// year-less layouts.
func (n *Normalizer) parse(s string, f *Format) (time.Time, bool) {
	switch f.Layout {
	case LayoutUnixSeconds:
		return parseEpochSeconds(s)

	case LayoutUnixMillis:
		if len(s) != 13 {
			return time.Time{}, false
		}
		millis, err := strconv.ParseInt(s, 10, 64)
		if err != nil || millis < 0 || millis/1000 > maxEpochSeconds {
			return time.Time{}, false
		}
		return time.UnixMilli(millis), true

	default:
		t, err := time.ParseInLocation(f.Layout, s, n.loc)
		if err != nil {
			return time.Time{}, false
		}
		if f.NoYear && t.Year() == 0 {
			t = n.withReferenceYear(t)
		}
		return t, true
	}
}

// withReferenceYear places a year-less instant in the reference year, rolling
// back one year when that lands more than a day in the future.
func (n *Normalizer) withReferenceYear(t time.Time) time.Time {
	ref := n.now().In(n.loc)
	out := time.Date(ref.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if out.After(ref.Add(24 * time.Hour)) {
		out = out.AddDate(-1, 0, 0)
	}
	return out
}

func parseEpochSeconds(s string) (time.Time, bool) {
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" || len(whole) > 10 || !allDigits(whole) {
		return time.Time{}, false
	}
	secs, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || secs > maxEpochSeconds {
		return time.Time{}, false
	}
	var nanos int64
	if hasFrac {
		if frac == "" || len(frac) > 9 || !allDigits(frac) {
			return time.Time{}, false
		}
		nanos, _ = strconv.ParseInt(frac+strings.Repeat("0", 9-len(frac)), 10, 64)
	}
	return time.Unix(secs, nanos), true
}

// clean trims whitespace and a surrounding pair of brackets.
func clean(text string) string {
	s := strings.TrimSpace(text)
	if len(s) >= 2 && s[0] == '[' && s[len(s)-1] == ']' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
