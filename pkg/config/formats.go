package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"gopkg.in/yaml.v3"

	"github.com/ccollicutt/logsniff/pkg/parser"
	"github.com/ccollicutt/logsniff/pkg/record"
	"github.com/ccollicutt/logsniff/pkg/registry"
)

// formatFile is the layout of a format plugin file.
type formatFile struct {
	Formats []FormatConfig `yaml:"formats"`
}

// LoadFormats reads declarative formats from a plugin file.
func LoadFormats(path string) ([]FormatConfig, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- plugin paths come from known directories
	if err != nil {
		return nil, fmt.Errorf("reading format file: %w", err)
	}

	var file formatFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing format file: %w", err)
	}

	for i := range file.Formats {
		if err := ValidateFormat(&file.Formats[i]); err != nil {
			return nil, fmt.Errorf("formats[%d] (%s): %w", i, file.Formats[i].ID, err)
		}
	}
	return file.Formats, nil
}

// ValidateFormat checks a declarative format, fills its defaults and
// compiles its patterns.
func ValidateFormat(f *FormatConfig) error {
	if f.ID == "" {
		return errors.New("id is required")
	}

	switch f.Family {
	case "":
		f.Family = FamilyLine
	case FamilyLine, FamilyBlock:
	default:
		return fmt.Errorf("invalid family %q (must be line or block)", f.Family)
	}

	if (f.Pattern == "") == (len(f.Columns) == 0) {
		return errors.New("exactly one of pattern or columns is required")
	}

	if f.MatchTimeout <= 0 {
		f.MatchTimeout = DefaultMatchTimeout
	}

	if f.Pattern != "" {
		re, err := compile(f.Pattern, f.MatchTimeout)
		if err != nil {
			return fmt.Errorf("invalid pattern: %w", err)
		}
		if len(namedGroups(re)) == 0 {
			return errors.New("pattern must have at least one named group")
		}
		f.compiledPattern = re
	}

	if f.EntryStart != "" {
		re, err := compile(f.EntryStart, f.MatchTimeout)
		if err != nil {
			return fmt.Errorf("invalid entry_start: %w", err)
		}
		f.compiledStart = re
	} else {
		f.compiledStart = f.compiledPattern
	}

	if f.Family == FamilyBlock && f.compiledStart == nil {
		return errors.New("entry_start is required for block formats without a pattern")
	}

	if f.Stage == "" {
		f.Stage = registry.StageKeyword.String()
	}
	switch f.Stage {
	case registry.StageStructural.String():
		if f.compiledStart == nil {
			return errors.New("structural formats need a pattern or entry_start")
		}
	case registry.StageKeyword.String():
		if len(f.Keywords) == 0 && f.compiledStart == nil {
			return errors.New("keyword formats need keywords, a pattern or entry_start")
		}
	default:
		return fmt.Errorf("invalid stage %q (must be structural or keyword)", f.Stage)
	}

	if f.Priority < 0 {
		return fmt.Errorf("priority must be >= 0, got %d", f.Priority)
	}

	for i, ext := range f.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			return fmt.Errorf("extensions[%d] is empty", i)
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		f.Extensions[i] = ext
	}

	return nil
}

// Descriptor turns a validated format into a registry descriptor.
func (f *FormatConfig) Descriptor() registry.Descriptor {
	stage, _ := registry.ParseStage(f.Stage)

	desc := registry.Descriptor{
		ID:          f.ID,
		Description: f.Description,
		Family:      parser.Line,
		Rule: registry.Rule{
			Stage:      stage,
			Extensions: f.Extensions,
		},
		Priority:      f.Priority,
		TimestampHint: f.TimestampLayout,
	}
	if f.Description == "" {
		desc.Description = "user-defined format"
	}
	if f.TimestampField != "" {
		desc.TimestampFields = []string{f.TimestampField}
	}

	// Without keywords a keyword format counts the lines its pattern matches.
	if stage == registry.StageKeyword && len(f.Keywords) > 0 {
		desc.Rule.Line = containsAny(f.Keywords)
	} else {
		desc.Rule.Line = matcher(f.compiledStart)
	}

	parse := f.lineFunc()
	if f.Family == FamilyBlock {
		start := matcher(f.compiledStart)
		desc.Family = parser.Block
		desc.Sequential = true
		desc.New = func() parser.Parser {
			return parser.NewBlockParser(parser.BlockSpec{
				Start:    start,
				Open:     parse,
				Continue: appendToLast,
			})
		}
		return desc
	}

	desc.New = func() parser.Parser {
		return parser.NewLineParser(parse)
	}
	return desc
}

func (f *FormatConfig) lineFunc() parser.LineFunc {
	if f.compiledPattern == nil {
		return parser.Columns(f.Columns)
	}
	re := f.compiledPattern
	names := namedGroups(re)
	return func(line string) (*record.Record, bool) {
		m, err := re.FindStringMatch(line)
		if err != nil || m == nil {
			return nil, false
		}
		rec := record.New(len(names))
		for _, name := range names {
			g := m.GroupByName(name)
			if g == nil || len(g.Captures) == 0 {
				continue
			}
			rec.Set(name, g.String())
		}
		return rec, true
	}
}

// appendToLast folds a continuation line into the last field of the entry.
func appendToLast(rec *record.Record, line string) {
	names := rec.Names()
	if len(names) == 0 {
		return
	}
	last := names[len(names)-1]
	text, _ := rec.Text(last)
	rec.Set(last, text+"\n"+line)
}

func compile(pattern string, timeout time.Duration) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile(pattern, 0)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = timeout
	return re, nil
}

// namedGroups returns the group names of re that are not plain numbers.
func namedGroups(re *regexp2.Regexp) []string {
	var out []string
	for _, name := range re.GetGroupNames() {
		if _, err := strconv.Atoi(name); err == nil {
			continue
		}
		out = append(out, name)
	}
	return out
}

// matcher treats a match timeout as a miss.
func matcher(re *regexp2.Regexp) func(string) bool {
	return func(line string) bool {
		ok, err := re.MatchString(line)
		return err == nil && ok
	}
}

func containsAny(keywords []string) func(string) bool {
	lower := make([]string, len(keywords))
	for i, k := range keywords {
		lower[i] = strings.ToLower(k)
	}
	return func(line string) bool {
		l := strings.ToLower(line)
		for _, k := range lower {
			if strings.Contains(l, k) {
				return true
			}
		}
		return false
	}
}
