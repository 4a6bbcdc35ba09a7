package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ccollicutt/logsniff/pkg/record"
)

// RecordWriter streams normalized records.
type RecordWriter interface {
	Write(rec *record.Normalized) error

	// Flush writes any buffered output.
	Flush() error
}

// NewRecordWriter returns the record writer registered under name. "none"
// discards records.
func NewRecordWriter(name string, w io.Writer) (RecordWriter, error) {
	switch name {
	case "ndjson", "json":
		return NewNDJSONWriter(w), nil
	case "text":
		return NewTextRecordWriter(w), nil
	case "none":
		return discardWriter{}, nil
	default:
		return nil, fmt.Errorf("unknown record format %q (use ndjson, text or none)", name)
	}
}

// NDJSONWriter writes one JSON object per record, fields in record order.
type NDJSONWriter struct {
	buf *bufio.Writer
	enc *json.Encoder
}

// NewNDJSONWriter creates an NDJSON record writer.
func NewNDJSONWriter(w io.Writer) *NDJSONWriter {
	buf := bufio.NewWriter(w)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return &NDJSONWriter{buf: buf, enc: enc}
}

func (n *NDJSONWriter) Write(rec *record.Normalized) error {
	return n.enc.Encode(rec.Record)
}

func (n *NDJSONWriter) Flush() error {
	return n.buf.Flush()
}

// TextRecordWriter writes records as key=value lines.
type TextRecordWriter struct {
	buf *bufio.Writer
}

// NewTextRecordWriter creates a key=value record writer.
func NewTextRecordWriter(w io.Writer) *TextRecordWriter {
	return &TextRecordWriter{buf: bufio.NewWriter(w)}
}

func (t *TextRecordWriter) Write(rec *record.Normalized) error {
	for i, f := range rec.Fields() {
		if i > 0 {
			t.buf.WriteByte(' ')
		}
		t.buf.WriteString(f.Name)
		t.buf.WriteByte('=')
		t.buf.WriteString(textValue(f.Value))
	}
	return t.buf.WriteByte('\n')
}

func (t *TextRecordWriter) Flush() error {
	return t.buf.Flush()
}

func textValue(v any) string {
	s, ok := record.Text(v)
	if !ok {
		if v == nil {
			return `""`
		}
		data, err := json.Marshal(v)
		if err != nil {
			return strconv.Quote(fmt.Sprint(v))
		}
		s = string(data)
	}
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

type discardWriter struct{}

func (discardWriter) Write(*record.Normalized) error { return nil }
func (discardWriter) Flush() error                   { return nil }
