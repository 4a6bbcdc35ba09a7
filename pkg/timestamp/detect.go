package timestamp

import (
	"sort"
	"time"
)

// Detection holds the layouts that accepted a set of sampled values.
type Detection struct {
	Matches       []Match // Sorted by confidence descending
	Sampled       int     // Number of non-empty values considered
	Parsed        int     // Values accepted by the best match
	AmbiguityNote string  // Warning about date ordering if applicable
}

// Match is a layout that accepted some of the sampled values.
type Match struct {
	Format     *Format
	Confidence float64 // 0.0 to 1.0 (share of values accepted)
	MatchCount int
	Sample     string
	Parsed     time.Time
}

// Detect reports which layouts accept the given values. Values are expected to
// be the content of a single timestamp field across records.
func (n *Normalizer) Detect(values []string) *Detection {
	result := &Detection{}

	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		if s := clean(v); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	result.Sampled = len(cleaned)
	if len(cleaned) == 0 {
		return result
	}

	for _, f := range n.formats {
		m := Match{Format: f}
		for _, s := range cleaned {
			t, ok := n.parse(s, f)
			if !ok {
				continue
			}
			if m.MatchCount == 0 {
				m.Sample = s
				m.Parsed = t.UTC()
			}
			m.MatchCount++
		}
		if m.MatchCount == 0 {
			continue
		}
		m.Confidence = float64(m.MatchCount) / float64(len(cleaned))
		result.Matches = append(result.Matches, m)
	}

	// Longer layouts are more specific on equal confidence.
	sort.SliceStable(result.Matches, func(i, j int) bool {
		a, b := result.Matches[i], result.Matches[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return len(a.Format.Layout) > len(b.Format.Layout)
	})

	if best := result.Best(); best != nil {
		result.Parsed = best.MatchCount
		if best.Format.Ambiguous {
			result.AmbiguityNote = "This layout has date ordering ambiguity (MM/DD vs DD/MM). " +
				"For European dates (DD/MM/YYYY) use the hint \"02/01/2006 15:04:05\""
		}
	}

	return result
}

// Best returns the highest confidence match, or nil if none found.
func (d *Detection) Best() *Match {
	if len(d.Matches) == 0 {
		return nil
	}
	return &d.Matches[0]
}

// HasMatch returns true if at least one layout matched.
func (d *Detection) HasMatch() bool {
	return len(d.Matches) > 0
}
