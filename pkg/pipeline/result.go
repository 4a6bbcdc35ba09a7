package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ccollicutt/logsniff/pkg/detector"
	"github.com/ccollicutt/logsniff/pkg/metrics"
	"github.com/ccollicutt/logsniff/pkg/record"
	"github.com/ccollicutt/logsniff/pkg/registry"
	"github.com/ccollicutt/logsniff/pkg/schema"
	"github.com/ccollicutt/logsniff/pkg/timestamp"
)

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("result is closed")

// ThresholdExceededError is returned when the share of malformed entries of a
// source is above the configured threshold.
type ThresholdExceededError struct {
	Ratio     float64
	Threshold float64
	Skipped   int
	Total     int
}

func (e *ThresholdExceededError) Error() string {
	return fmt.Sprintf("skip ratio %.4f exceeds threshold %.4f (%d of %d entries malformed)",
		e.Ratio, e.Threshold, e.Skipped, e.Total)
}

// Report is the data-quality report of a run.
type Report struct {
	RunID          string        `json:"run_id"`
	Source         string        `json:"source"`
	Format         string        `json:"format"`
	Stage          string        `json:"stage"`
	Container      string        `json:"container,omitempty"`
	Lines          int           `json:"lines"`
	Records        int           `json:"records"`
	Skipped        int           `json:"skipped"`
	Truncated      int           `json:"truncated"`
	TruncatedBytes int64         `json:"truncated_bytes"`
	Unnormalized   int           `json:"unnormalized"`
	ForcedSplits   int           `json:"forced_splits"`
	Chunks         int           `json:"chunks"`
	SkipRatio      float64       `json:"skip_ratio"`
	SkipThreshold  float64       `json:"skip_threshold"`
	Complete       bool          `json:"complete"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
}

// Result is a single-pass, pull-based iterator over the normalized records of
// one source. It is not safe for concurrent use.
type Result struct {
	desc       registry.Descriptor
	detection  *detector.Result
	schema     *schema.Schema
	stream     chunkStream
	closer     io.Closer
	normalizer *timestamp.Normalizer
	threshold  float64
	logger     *zap.Logger
	now        func() time.Time

	pending   []*record.Normalized
	exhausted bool
	finished  bool
	finalErr  error
	closed    bool

	report Report
}

// Format returns the format identifier.
func (r *Result) Format() string {
	return r.desc.ID
}

// Detection returns how the format was chosen.
func (r *Result) Detection() *detector.Result {
	d := *r.detection
	return &d
}

// Schema returns the schema inferred from the leading records.
func (r *Result) Schema() *schema.Schema {
	return r.schema
}

// Report returns a snapshot of the data-quality report.
func (r *Result) Report() Report {
	return r.report
}

// Next returns the next record. At the end of the source it returns io.EOF,
// or a *ThresholdExceededError when too many entries were malformed. After
// Close it returns ErrClosed.
func (r *Result) Next(ctx context.Context) (*record.Normalized, error) {
	for len(r.pending) == 0 {
		if r.closed {
			return nil, ErrClosed
		}
		if r.exhausted {
			if err := r.finish(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		if err := r.pull(ctx); err != nil {
			return nil, err
		}
	}
	rec := r.pending[0]
	r.pending[0] = nil
	r.pending = r.pending[1:]
	return rec, nil
}

// Collect drains the result. It returns every record, or no records and the
// first error.
func (r *Result) Collect(ctx context.Context) ([]*record.Normalized, error) {
	var out []*record.Normalized
	for {
		rec, err := r.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}

// Close stops parsing and releases the source.
func (r *Result) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.pending = nil
	r.stream.close()
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// fillSample buffers records until n are pending or the source ends.
func (r *Result) fillSample(ctx context.Context, n int) error {
	for len(r.pending) < n && !r.exhausted {
		if err := r.pull(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (r *Result) sampleRecords() []*record.Record {
	out := make([]*record.Record, len(r.pending))
	for i, n := range r.pending {
		out[i] = n.Record
	}
	return out
}

// pull parses the next chunk into pending.
func (r *Result) pull(ctx context.Context) error {
	b, err := r.stream.next(ctx)
	if errors.Is(err, io.EOF) {
		r.exhausted = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", r.report.Source, err)
	}

	format := r.desc.ID
	r.report.Chunks++
	r.report.Lines += b.stats.Lines
	r.report.Records += b.stats.Records
	r.report.Skipped += b.stats.Skipped
	r.report.Truncated += b.stats.Truncated
	r.report.TruncatedBytes += b.stats.TruncatedBytes
	if b.forced > r.report.ForcedSplits {
		metrics.ForcedSplits.WithLabelValues(format).Add(float64(b.forced - r.report.ForcedSplits))
		r.report.ForcedSplits = b.forced
	}

	metrics.ChunksParsed.WithLabelValues(format).Inc()
	metrics.RecordsParsed.WithLabelValues(format).Add(float64(b.stats.Records))
	metrics.RecordsSkipped.WithLabelValues(format).Add(float64(b.stats.Skipped))
	metrics.RecordsTruncated.WithLabelValues(format).Add(float64(b.stats.Truncated))

	if b.stats.Skipped > 0 || b.stats.Truncated > 0 {
		r.logger.Debug("chunk had malformed entries",
			zap.Int("chunk", b.index),
			zap.Int("skipped", b.stats.Skipped),
			zap.Int("truncated", b.stats.Truncated))
	}

	for _, rec := range b.records {
		r.pending = append(r.pending, r.normalize(rec))
	}
	return nil
}

// finish closes the report and applies the skip-ratio policy once.
func (r *Result) finish() error {
	if r.finished {
		return r.finalErr
	}
	r.finished = true

	total := r.report.Records + r.report.Skipped
	if total > 0 {
		r.report.SkipRatio = float64(r.report.Skipped) / float64(total)
	}
	r.report.Duration = r.now().Sub(r.report.StartedAt)
	metrics.SourceDuration.WithLabelValues(r.desc.ID).Observe(r.report.Duration.Seconds())

	if r.report.SkipRatio > r.threshold {
		r.finalErr = &ThresholdExceededError{
			Ratio:     r.report.SkipRatio,
			Threshold: r.threshold,
			Skipped:   r.report.Skipped,
			Total:     total,
		}
		r.pending = nil
		r.logger.Warn("skip threshold exceeded",
			zap.String("format", r.desc.ID),
			zap.Int("skipped", r.report.Skipped),
			zap.Int("total", total))
		return r.finalErr
	}

	r.report.Complete = true
	r.logger.Info("source parsed",
		zap.String("format", r.desc.ID),
		zap.Int("records", r.report.Records),
		zap.Int("skipped", r.report.Skipped),
		zap.Duration("duration", r.report.Duration))
	return nil
}

var timestampNames = map[string]bool{
	"timestamp":  true,
	"time":       true,
	"ts":         true,
	"date":       true,
	"datetime":   true,
	"@timestamp": true,
	"eventtime":  true,
	"event_time": true,
	"created_at": true,
	"logged_at":  true,
	"log_time":   true,
}

func (r *Result) timestampFields(rec *record.Record) []string {
	if len(r.desc.TimestampFields) > 0 {
		return r.desc.TimestampFields
	}
	var out []string
	for _, name := range rec.Names() {
		if timestampNames[strings.ToLower(name)] {
			out = append(out, name)
		}
	}
	return out
}

// normalize adds the canonical instant of every timestamp field. Values that
// cannot be parsed are kept as they are.
func (r *Result) normalize(rec *record.Record) *record.Normalized {
	n := &record.Normalized{Record: rec}
	for _, field := range r.timestampFields(rec) {
		v, ok := rec.Get(field)
		if !ok || record.Absent(v) {
			continue
		}
		text, ok := record.Text(v)
		if !ok {
			n.Unnormalized = append(n.Unnormalized, field)
			continue
		}
		t, err := r.normalizer.Normalize(text, r.desc.TimestampHint)
		if err != nil {
			n.Unnormalized = append(n.Unnormalized, field)
			continue
		}
		rec.Set(record.NormalizedKey(field), timestamp.Canonical(t))
	}
	if len(n.Unnormalized) > 0 {
		r.report.Unnormalized += len(n.Unnormalized)
		metrics.TimestampsUnnormalized.WithLabelValues(r.desc.ID).Add(float64(len(n.Unnormalized)))
	}
	return n
}
