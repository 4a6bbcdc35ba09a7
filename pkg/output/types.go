// Package output renders parsed records and run reports.
package output

import (
	"errors"
	"time"

	"github.com/ccollicutt/logsniff/pkg/detector"
	"github.com/ccollicutt/logsniff/pkg/pipeline"
	"github.com/ccollicutt/logsniff/pkg/schema"
)

// Status is the outcome of one source.
type Status string

const (
	StatusOK         Status = "ok"
	StatusThreshold  Status = "threshold_exceeded"
	StatusUndetected Status = "undetected"
	StatusError      Status = "error"
)

// Report is the complete output of a run over one or more sources.
type Report struct {
	// Summary provides aggregate statistics.
	Summary Summary `json:"summary"`

	// Sources holds the data-quality report of every source.
	Sources []SourceReport `json:"sources"`

	// Metadata provides context about the run.
	Metadata Metadata `json:"metadata"`
}

// Summary provides aggregate statistics.
type Summary struct {
	SourcesChecked int `json:"sources_checked"`
	SourcesFailed  int `json:"sources_failed"`
	Records        int `json:"records"`
	Skipped        int `json:"skipped"`
	Unnormalized   int `json:"unnormalized"`
}

// SourceReport is the outcome of a single source.
type SourceReport struct {
	pipeline.Report

	Status Status         `json:"status"`
	Error  string         `json:"error,omitempty"`
	Schema *schema.Schema `json:"schema,omitempty"`
}

// Metadata provides context about the run.
type Metadata struct {
	// ConfigFile is the path to the configuration file used, if any.
	ConfigFile string `json:"config_file,omitempty"`

	// AnalyzedAt is when the run finished.
	AnalyzedAt time.Time `json:"analyzed_at"`

	// Duration is how long the run took.
	Duration time.Duration `json:"duration"`
}

// NewSourceReport builds the report of one source from its pipeline report
// and the error that ended it, if any.
func NewSourceReport(name string, report pipeline.Report, s *schema.Schema, err error) SourceReport {
	sr := SourceReport{Report: report, Status: StatusOK, Schema: s}
	if sr.Source == "" {
		sr.Source = name
	}
	if err == nil {
		return sr
	}

	sr.Error = err.Error()
	var (
		exceeded   *pipeline.ThresholdExceededError
		undetected *detector.UndetectedFormatError
	)
	switch {
	case errors.As(err, &exceeded):
		sr.Status = StatusThreshold
		sr.SkipRatio = exceeded.Ratio
		sr.Complete = false
	case errors.As(err, &undetected):
		sr.Status = StatusUndetected
	default:
		sr.Status = StatusError
	}
	return sr
}

// NewReport aggregates source reports.
func NewReport(sources []SourceReport, configFile string, started, finished time.Time) *Report {
	report := &Report{
		Sources: sources,
		Metadata: Metadata{
			ConfigFile: configFile,
			AnalyzedAt: finished,
			Duration:   finished.Sub(started),
		},
	}

	for _, s := range sources {
		report.Summary.SourcesChecked++
		if s.Status != StatusOK {
			report.Summary.SourcesFailed++
		}
		report.Summary.Records += s.Records
		report.Summary.Skipped += s.Skipped
		report.Summary.Unnormalized += s.Unnormalized
	}

	return report
}

// HasFailures returns true if any source failed.
func (r *Report) HasFailures() bool {
	return r.Summary.SourcesFailed > 0
}

// Count returns the number of sources with the given status.
func (r *Report) Count(status Status) int {
	n := 0
	for _, s := range r.Sources {
		if s.Status == status {
			n++
		}
	}
	return n
}
