// Package schema infers a field type map from a sample of parsed records.
package schema

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ccollicutt/logsniff/pkg/record"
	"github.com/ccollicutt/logsniff/pkg/timestamp"
)

// Type is the inferred type of a field.
type Type string

const (
	Integer   Type = "integer"
	Float     Type = "float"
	Boolean   Type = "boolean"
	Timestamp Type = "timestamp"
	String    Type = "string"
)

// DefaultSample is the number of leading records used for inference.
const DefaultSample = 1000

// Field is one column of a schema.
type Field struct {
	Name string `json:"name" yaml:"name"`
	Type Type   `json:"type" yaml:"type"`

	// Layout names the timestamp layout that accepted the most values.
	// Only set for Timestamp fields.
	Layout string `json:"layout,omitempty" yaml:"layout,omitempty"`
}

// Schema is a frozen field to type map. Fields are listed in order of first
// appearance in the sample.
type Schema struct {
	fields []Field
	index  map[string]int
}

// Fields returns a copy of the schema fields.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Type returns the type of a field.
func (s *Schema) Type(name string) (Type, bool) {
	i, ok := s.index[name]
	if !ok {
		return "", false
	}
	return s.fields[i].Type, true
}

// Types returns the schema as a plain map.
func (s *Schema) Types() map[string]Type {
	out := make(map[string]Type, len(s.fields))
	for _, f := range s.fields {
		out[f.Name] = f.Type
	}
	return out
}

// Len returns the number of fields.
func (s *Schema) Len() int {
	return len(s.fields)
}

// MarshalJSON renders the ordered field list.
func (s *Schema) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.fields)
}

// Inferencer derives schemas. The timestamp check uses the normalizer's
// textual layouts.
type Inferencer struct {
	normalizer *timestamp.Normalizer
}

// NewInferencer creates an Inferencer. A nil normalizer uses the defaults.
func NewInferencer(n *timestamp.Normalizer) *Inferencer {
	if n == nil {
		n = timestamp.New()
	}
	return &Inferencer{normalizer: n}
}

// Infer builds a schema from a sample with the default normalizer.
func Infer(sample []*record.Record) *Schema {
	return NewInferencer(nil).Infer(sample)
}

// candidates tracks which types every value seen so far still satisfies.
type candidates struct {
	seen      bool
	integer   bool
	float     bool
	boolean   bool
	timestamp bool
	texts     []string
}

// Infer builds a schema from a sample. The result does not depend on the
// order of the records, only field order does.
func (in *Inferencer) Infer(sample []*record.Record) *Schema {
	s := &Schema{index: make(map[string]int)}
	state := make(map[string]*candidates)

	for _, rec := range sample {
		if rec == nil {
			continue
		}
		for _, f := range rec.Fields() {
			c, ok := state[f.Name]
			if !ok {
				c = &candidates{integer: true, float: true, boolean: true, timestamp: true}
				state[f.Name] = c
				s.index[f.Name] = len(s.fields)
				s.fields = append(s.fields, Field{Name: f.Name})
			}
			if record.Absent(f.Value) {
				continue
			}
			in.observe(c, f.Value)
		}
	}

	for i := range s.fields {
		c := state[s.fields[i].Name]
		s.fields[i].Type = c.resolve()
		if s.fields[i].Type == Timestamp && len(c.texts) > 0 {
			if best := in.normalizer.Detect(c.texts).Best(); best != nil {
				s.fields[i].Layout = best.Format.Name
			}
		}
	}

	return s
}

func (in *Inferencer) observe(c *candidates, v any) {
	c.seen = true

	switch x := v.(type) {
	case bool:
		c.integer, c.float, c.timestamp = false, false, false
		return
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		c.boolean, c.timestamp = false, false
		return
	case float32, float64:
		c.integer, c.boolean, c.timestamp = false, false, false
		return
	case time.Time:
		c.integer, c.float, c.boolean = false, false, false
		c.texts = append(c.texts, x.UTC().Format(time.RFC3339Nano))
		return
	}

	text, ok := record.Text(v)
	if !ok {
		c.integer, c.float, c.boolean, c.timestamp = false, false, false, false
		return
	}
	text = strings.TrimSpace(text)

	if c.integer && !isInteger(text) {
		c.integer = false
	}
	if c.float && !isFloat(text) {
		c.float = false
	}
	if c.boolean && !isBoolean(text) {
		c.boolean = false
	}
	if c.timestamp {
		if in.normalizer.Recognize(text) {
			c.texts = append(c.texts, text)
		} else {
			c.timestamp = false
		}
	}
}

func (c *candidates) resolve() Type {
	switch {
	case !c.seen:
		return String
	case c.integer:
		return Integer
	case c.float:
		return Float
	case c.boolean:
		return Boolean
	case c.timestamp:
		return Timestamp
	default:
		return String
	}
}

func isInteger(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

func isFloat(s string) bool {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return false
	}
	// ParseFloat accepts "NaN" and "Inf" spellings.
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

var booleanLiterals = map[string]bool{
	"true": true, "false": true,
	"yes": true, "no": true,
	"on": true, "off": true,
	"t": true, "f": true,
	"y": true, "n": true,
}

func isBoolean(s string) bool {
	return booleanLiterals[strings.ToLower(s)]
}
