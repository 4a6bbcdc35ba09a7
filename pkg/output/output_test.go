package output

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/ccollicutt/logsniff/pkg/detector"
	"github.com/ccollicutt/logsniff/pkg/pipeline"
	"github.com/ccollicutt/logsniff/pkg/record"
	"github.com/ccollicutt/logsniff/pkg/schema"
)

func init() {
	color.NoColor = true
}

func createTestReport() *Report {
	started := time.Date(2024, 6, 14, 15, 0, 0, 0, time.UTC)

	rec := record.New(2)
	rec.Set("timestamp", "Jun 14 15:16:01")
	rec.Set("host", "combo")

	ok := NewSourceReport("messages", pipeline.Report{
		Source:        "messages",
		Format:        "syslog",
		Stage:         "structural",
		Records:       3,
		Skipped:       1,
		Truncated:     1,
		Unnormalized:  2,
		SkipThreshold: 0.5,
		SkipRatio:     0.25,
		Complete:      true,
	}, schema.Infer([]*record.Record{rec}), nil)

	exceeded := NewSourceReport("export.csv", pipeline.Report{
		Source:    "export.csv",
		Format:    "csv",
		Stage:     "extension",
		Container: "gzip",
		Records:   1,
		Skipped:   3,
	}, nil, fmt.Errorf("failed to parse export.csv: %w", &pipeline.ThresholdExceededError{
		Ratio: 0.75, Threshold: 0.5, Skipped: 3, Total: 4,
	}))

	undetected := NewSourceReport("blob.bin", pipeline.Report{}, nil, &detector.UndetectedFormatError{Hint: "blob.bin"})

	return NewReport([]SourceReport{ok, exceeded, undetected}, "logsniff.yaml", started, started.Add(1500*time.Millisecond))
}

func TestNewSourceReport_Status(t *testing.T) {
	tests := []struct {
		err  error
		want Status
	}{
		{nil, StatusOK},
		{&pipeline.ThresholdExceededError{Ratio: 1, Threshold: 0.5}, StatusThreshold},
		{fmt.Errorf("wrapped: %w", &detector.UndetectedFormatError{}), StatusUndetected},
		{errors.New("permission denied"), StatusError},
	}

	for _, tt := range tests {
		got := NewSourceReport("src", pipeline.Report{}, nil, tt.err)
		if got.Status != tt.want {
			t.Errorf("NewSourceReport(%v).Status = %q, want %q", tt.err, got.Status, tt.want)
		}
		if got.Source != "src" {
			t.Errorf("Source = %q, want src", got.Source)
		}
		if (tt.err != nil) != (got.Error != "") {
			t.Errorf("Error = %q for err %v", got.Error, tt.err)
		}
	}
}

func TestNewReport_Summary(t *testing.T) {
	report := createTestReport()

	want := Summary{SourcesChecked: 3, SourcesFailed: 2, Records: 4, Skipped: 4, Unnormalized: 2}
	if report.Summary != want {
		t.Errorf("Summary = %+v, want %+v", report.Summary, want)
	}
	if !report.HasFailures() {
		t.Error("HasFailures() = false, want true")
	}
	if report.Count(StatusThreshold) != 1 || report.Count(StatusUndetected) != 1 {
		t.Errorf("Count() threshold=%d undetected=%d", report.Count(StatusThreshold), report.Count(StatusUndetected))
	}
	if report.Metadata.Duration != 1500*time.Millisecond {
		t.Errorf("Duration = %v", report.Metadata.Duration)
	}
	if report.Sources[1].SkipRatio != 0.75 || report.Sources[1].Complete {
		t.Errorf("threshold source = %+v", report.Sources[1])
	}
}

func TestNewFormatter(t *testing.T) {
	for _, name := range []string{"text", "json"} {
		f, err := NewFormatter(name, FormatOptions{})
		if err != nil {
			t.Fatalf("NewFormatter(%q) error = %v", name, err)
		}
		if f.Name() != name {
			t.Errorf("Name() = %q, want %q", f.Name(), name)
		}
	}
	if _, err := NewFormatter("xml", FormatOptions{}); err == nil {
		t.Error("NewFormatter(xml) expected error")
	}
}

func TestJSONFormatter_Format(t *testing.T) {
	var buf bytes.Buffer
	if err := NewJSONFormatter(FormatOptions{}).Format(context.Background(), createTestReport(), &buf); err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	var parsed struct {
		Summary Summary          `json:"summary"`
		Sources []map[string]any `json:"sources"`
	}
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}
	if parsed.Summary.SourcesFailed != 2 {
		t.Errorf("SourcesFailed = %d, want 2", parsed.Summary.SourcesFailed)
	}
	if len(parsed.Sources) != 3 {
		t.Fatalf("Sources = %d, want 3", len(parsed.Sources))
	}

	first := parsed.Sources[0]
	if first["format"] != "syslog" || first["status"] != "ok" {
		t.Errorf("first source = %v", first)
	}
	if _, ok := first["schema"]; ok {
		t.Error("schema should only be rendered when verbose")
	}
	if parsed.Sources[1]["status"] != "threshold_exceeded" {
		t.Errorf("second status = %v", parsed.Sources[1]["status"])
	}
}

func TestJSONFormatter_Format_Verbose(t *testing.T) {
	report := createTestReport()

	var buf bytes.Buffer
	if err := NewJSONFormatter(FormatOptions{Verbose: true}).Format(context.Background(), report, &buf); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if !strings.Contains(buf.String(), `"schema": [`) {
		t.Errorf("verbose output missing schema:\n%s", buf.String())
	}
	if report.Sources[0].Schema == nil {
		t.Error("Format() must not modify the report")
	}
}

func TestJSONFormatter_Format_Quiet(t *testing.T) {
	var buf bytes.Buffer
	if err := NewJSONFormatter(FormatOptions{Quiet: true}).Format(context.Background(), createTestReport(), &buf); err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	var parsed Summary
	if err := json.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}
	if parsed.SourcesChecked != 3 {
		t.Errorf("SourcesChecked = %d, want 3", parsed.SourcesChecked)
	}
}

func TestTextFormatter_Format(t *testing.T) {
	var buf bytes.Buffer
	if err := NewTextFormatter(FormatOptions{}).Format(context.Background(), createTestReport(), &buf); err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"=== logsniff Run Report ===",
		"[OK] messages: syslog (structural)",
		"[THRESHOLD_EXCEEDED] export.csv: csv (extension, gzip)",
		"[UNDETECTED] blob.bin",
		"skip ratio: 0.2500 (threshold 0.5000)",
		"truncated: 1",
		"unnormalized timestamps: 2",
		"Summary: 3 sources checked, 2 failed, 4 records, 4 skipped",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "schema:") {
		t.Error("schema should only be rendered when verbose")
	}
}

func TestTextFormatter_Format_Verbose(t *testing.T) {
	var buf bytes.Buffer
	if err := NewTextFormatter(FormatOptions{Verbose: true}).Format(context.Background(), createTestReport(), &buf); err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "host: string") {
		t.Errorf("verbose output missing schema:\n%s", out)
	}
	if !strings.Contains(out, "Duration: 1.5s") {
		t.Errorf("verbose output missing duration:\n%s", out)
	}
}

func TestTextFormatter_Format_Quiet(t *testing.T) {
	var buf bytes.Buffer
	if err := NewTextFormatter(FormatOptions{Quiet: true}).Format(context.Background(), createTestReport(), &buf); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	want := "logsniff: 3 sources checked, 2 failed, 4 records, 4 skipped\n"
	if buf.String() != want {
		t.Errorf("Format() = %q, want %q", buf.String(), want)
	}
}

func TestRecordWriters(t *testing.T) {
	rec := record.New(4)
	rec.Set("timestamp", "Jun 14 15:16:01")
	rec.Set("host", "combo")
	rec.Set("pid", int64(42))
	rec.Set("@timestamp", "2024-06-14T15:16:01Z")
	n := &record.Normalized{Record: rec}

	tests := []struct {
		format string
		want   string
	}{
		{"ndjson", `{"timestamp":"Jun 14 15:16:01","host":"combo","pid":42,"@timestamp":"2024-06-14T15:16:01Z"}` + "\n"},
		{"text", `timestamp="Jun 14 15:16:01" host=combo pid=42 @timestamp=2024-06-14T15:16:01Z` + "\n"},
		{"none", ""},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewRecordWriter(tt.format, &buf)
			if err != nil {
				t.Fatalf("NewRecordWriter() error = %v", err)
			}
			if err := w.Write(n); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			if err := w.Flush(); err != nil {
				t.Fatalf("Flush() error = %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("output = %q, want %q", buf.String(), tt.want)
			}
		})
	}

	if _, err := NewRecordWriter("yaml", &bytes.Buffer{}); err == nil {
		t.Error("NewRecordWriter(yaml) expected error")
	}
}

func TestTextRecordWriter_Values(t *testing.T) {
	rec := record.New(3)
	rec.Set("empty", "")
	rec.Set("nested", map[string]any{"a": 1})
	rec.Set("missing", nil)

	var buf bytes.Buffer
	w := NewTextRecordWriter(&buf)
	if err := w.Write(&record.Normalized{Record: rec}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	want := `empty="" nested="{\"a\":1}" missing=""` + "\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}
