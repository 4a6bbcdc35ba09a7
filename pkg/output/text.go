package output

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var (
	okColor      = color.New(color.FgGreen, color.Bold)
	failColor    = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// TextFormatter formats reports as human-readable text.
type TextFormatter struct {
	opts FormatOptions
}

// NewTextFormatter creates a new text formatter with the given options.
func NewTextFormatter(opts FormatOptions) *TextFormatter {
	return &TextFormatter{opts: opts}
}

// Name returns the format name.
func (f *TextFormatter) Name() string {
	return "text"
}

// Format renders the report as text.
func (f *TextFormatter) Format(_ context.Context, report *Report, w io.Writer) error {
	if f.opts.Quiet {
		return f.formatQuiet(report, w)
	}
	return f.formatFull(report, w)
}

func (f *TextFormatter) formatQuiet(report *Report, w io.Writer) error {
	_, err := fmt.Fprintf(w, "logsniff: %d sources checked, %d failed, %d records, %d skipped\n",
		report.Summary.SourcesChecked,
		report.Summary.SourcesFailed,
		report.Summary.Records,
		report.Summary.Skipped)
	return err
}

func (f *TextFormatter) formatFull(report *Report, w io.Writer) error {
	headerColor.Fprintln(w, "=== logsniff Run Report ===")
	fmt.Fprintln(w)

	for i := range report.Sources {
		f.formatSource(&report.Sources[i], w)
	}

	fmt.Fprintln(w, "---")
	_, err := fmt.Fprintf(w, "Summary: %d sources checked, %d failed, %d records, %d skipped, %d unnormalized timestamps\n",
		report.Summary.SourcesChecked,
		report.Summary.SourcesFailed,
		report.Summary.Records,
		report.Summary.Skipped,
		report.Summary.Unnormalized)
	if err != nil {
		return err
	}

	if f.opts.Verbose {
		fmt.Fprintf(w, "Duration: %s\n", report.Metadata.Duration.Round(1e6))
	}

	return nil
}

func (f *TextFormatter) formatSource(s *SourceReport, w io.Writer) {
	if s.Status == StatusOK {
		okColor.Fprint(w, "[OK]")
	} else {
		failColor.Fprintf(w, "[%s]", strings.ToUpper(string(s.Status)))
	}
	fmt.Fprintf(w, " %s", s.Source)
	if s.Format != "" {
		fmt.Fprintf(w, ": %s (%s", s.Format, s.Stage)
		if s.Container != "" {
			fmt.Fprintf(w, ", %s", s.Container)
		}
		fmt.Fprint(w, ")")
	}
	fmt.Fprintln(w)

	if s.Error != "" {
		failColor.Fprintf(w, "  error: %s\n", s.Error)
	}

	if s.Format != "" {
		fmt.Fprintf(w, "  records: %d, skipped: %d, skip ratio: %.4f (threshold %.4f)\n",
			s.Records, s.Skipped, s.SkipRatio, s.SkipThreshold)
	}

	if s.Truncated > 0 {
		warningColor.Fprintf(w, "  truncated: %d (%d bytes)\n", s.Truncated, s.TruncatedBytes)
	}
	if s.ForcedSplits > 0 {
		warningColor.Fprintf(w, "  forced splits: %d\n", s.ForcedSplits)
	}
	if s.Unnormalized > 0 {
		warningColor.Fprintf(w, "  unnormalized timestamps: %d\n", s.Unnormalized)
	}

	if f.opts.Verbose && s.Schema != nil && s.Schema.Len() > 0 {
		fmt.Fprintln(w, "  schema:")
		for _, field := range s.Schema.Fields() {
			if field.Layout != "" {
				fmt.Fprintf(w, "    %s: %s (%s)\n", field.Name, field.Type, field.Layout)
				continue
			}
			fmt.Fprintf(w, "    %s: %s\n", field.Name, field.Type)
		}
	}

	fmt.Fprintln(w)
}
