// Package record defines the ordered field maps produced by parsers.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ReservedPrefix marks fields added by normalization. A parsed field named
// "timestamp" gets its canonical instant under "@timestamp".
const ReservedPrefix = "@"

// Field is a single named value of a record.
type Field struct {
	Name  string
	Value any
}

// Record maps unique field names to raw scalar values, keeping insertion order.
type Record struct {
	fields []Field
	index  map[string]int

	// Line is the 1-based line (or frame) number the record started at.
	Line int
}

// New creates an empty record with room for n fields.
func New(n int) *Record {
	return &Record{
		fields: make([]Field, 0, n),
		index:  make(map[string]int, n),
	}
}

// Set stores value under name. An existing field keeps its position.
func (r *Record) Set(name string, value any) {
	if i, ok := r.index[name]; ok {
		r.fields[i].Value = value
		return
	}
	r.index[name] = len(r.fields)
	r.fields = append(r.fields, Field{Name: name, Value: value})
}

// Get returns the value stored under name.
func (r *Record) Get(name string) (any, bool) {
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.fields[i].Value, true
}

// Text returns the textual form of the value stored under name.
func (r *Record) Text(name string) (string, bool) {
	v, ok := r.Get(name)
	if !ok {
		return "", false
	}
	return Text(v)
}

// Has reports whether the record contains name.
func (r *Record) Has(name string) bool {
	_, ok := r.index[name]
	return ok
}

// Len returns the number of fields.
func (r *Record) Len() int {
	return len(r.fields)
}

// Names returns field names in insertion order.
func (r *Record) Names() []string {
	names := make([]string, len(r.fields))
	for i, f := range r.fields {
		names[i] = f.Name
	}
	return names
}

// Fields returns a copy of the fields in insertion order.
func (r *Record) Fields() []Field {
	out := make([]Field, len(r.fields))
	copy(out, r.fields)
	return out
}

// MarshalJSON renders the record as a JSON object in field order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Text converts a scalar value to text. Opaque values (maps, slices) and nil
// report false.
func Text(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case []byte:
		return string(x), true
	case json.Number:
		return x.String(), true
	case bool:
		return strconv.FormatBool(x), true
	case int:
		return strconv.Itoa(x), true
	case int8:
		return strconv.FormatInt(int64(x), 10), true
	case int16:
		return strconv.FormatInt(int64(x), 10), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint:
		return strconv.FormatUint(uint64(x), 10), true
	case uint8:
		return strconv.FormatUint(uint64(x), 10), true
	case uint16:
		return strconv.FormatUint(uint64(x), 10), true
	case uint32:
		return strconv.FormatUint(uint64(x), 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32), true
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), true
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano), true
	default:
		return "", false
	}
}

// Absent reports whether v counts as a missing value: nil or blank text.
func Absent(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	default:
		return false
	}
}

// NormalizedKey returns the reserved key holding the canonical instant of field.
func NormalizedKey(field string) string {
	return ReservedPrefix + field
}

// Normalized is a record whose timestamp fields carry a canonical instant
// under their reserved key.
type Normalized struct {
	*Record

	// Unnormalized lists timestamp fields whose text could not be parsed.
	// Their original value is kept.
	Unnormalized []string
}

// Instant returns the canonical instant stored for field, if any.
func (n *Normalized) Instant(field string) (time.Time, bool) {
	s, ok := n.Text(NormalizedKey(field))
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Primary returns the first canonical instant in field order.
func (n *Normalized) Primary() (time.Time, bool) {
	for _, f := range n.fields {
		if !strings.HasPrefix(f.Name, ReservedPrefix) {
			continue
		}
		s, ok := Text(f.Value)
		if !ok {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
