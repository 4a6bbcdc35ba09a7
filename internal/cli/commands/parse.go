package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ccollicutt/logsniff/pkg/config"
	"github.com/ccollicutt/logsniff/pkg/output"
	"github.com/ccollicutt/logsniff/pkg/pipeline"
	"github.com/ccollicutt/logsniff/pkg/record"
)

// stdinSource is the source name that reads standard input.
const stdinSource = "-"

// ParseOptions holds command-line options for the parse command.
type ParseOptions struct {
	Records     string
	Report      string
	Format      string
	Workers     int
	Merge       bool
	Verbose     bool
	Quiet       bool
	MetricsFile string

	Webhook WebhookOptions
}

// NewParseCommand creates the parse command.
func NewParseCommand(g *GlobalOptions) *cobra.Command {
	opts := &ParseOptions{}

	cmd := &cobra.Command{
		Use:   "parse [file|glob|-]...",
		Short: "Parse log files into normalized records",
		Long: `Detect the format of each source, parse it and write normalized records.

Sources are taken from the arguments, or from the sources list of the
configuration file when no argument is given. "-" reads standard input.

Records are written to stdout. The run report goes to stdout when records
are discarded (--records none) and to stderr otherwise.

Exit codes:
  0 - Every source parsed within the skip threshold
  1 - A source was undetected or exceeded the skip threshold
  2 - Configuration or runtime error`,
		Example: `  logsniff parse /var/log/messages
  logsniff parse --records none --report json 'logs/*.csv.gz'
  logsniff parse --merge --records text app-1.log app-2.log
  cat export.tsv | logsniff parse --format tsv -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(cmd, args, g, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Records, "records", "r", "ndjson", "Record output format (ndjson|text|none)")
	cmd.Flags().StringVarP(&opts.Report, "report", "o", "text", "Report format (text|json)")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Skip detection and parse every source with this format")
	cmd.Flags().IntVarP(&opts.Workers, "workers", "w", 0, "Parser workers per source (default from config)")
	cmd.Flags().BoolVarP(&opts.Merge, "merge", "m", false, "Merge all sources into one chronologically ordered stream")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Include the inferred schema of every source in the report")
	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "Summary only report")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "Write Prometheus metrics in text format to this file")

	cmd.Flags().StringVar(&opts.Webhook.URL, "webhook-url", "", "Webhook endpoint URL")
	cmd.Flags().StringVar(&opts.Webhook.Token, "webhook-token", "", "Bearer token for webhook auth")
	cmd.Flags().StringVar(&opts.Webhook.Trigger, "webhook-trigger", "on_failure", "When to fire webhook (on_failure|always|never)")

	return cmd
}

func runParse(cmd *cobra.Command, args []string, g *GlobalOptions, opts *ParseOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	started := time.Now()

	switch config.WebhookTrigger(opts.Webhook.Trigger) {
	case "", config.WebhookTriggerOnFailure, config.WebhookTriggerAlways, config.WebhookTriggerNever:
	default:
		return fmt.Errorf("invalid webhook trigger %q (must be on_failure, always, or never)", opts.Webhook.Trigger)
	}

	s, err := openSession(ctx, g, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.close()

	patterns := args
	if len(patterns) == 0 {
		patterns = s.cfg.Sources
	}
	if len(patterns) == 0 {
		return errors.New("no sources: pass files or set sources in the config file")
	}
	sources, err := expandSources(patterns)
	if err != nil {
		return fmt.Errorf("expanding sources: %w", err)
	}

	records, err := output.NewRecordWriter(opts.Records, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	formatter, err := output.NewFormatter(opts.Report, output.FormatOptions{
		Verbose: opts.Verbose,
		Quiet:   opts.Quiet,
	})
	if err != nil {
		return err
	}

	p := s.pipeline(pipeline.WithFormat(opts.Format), pipeline.WithWorkers(opts.Workers))
	run := &parseRun{
		pipeline: p,
		records:  records,
		stdin:    cmd.InOrStdin(),
		logger:   s.logger,
	}

	var reports []output.SourceReport
	if opts.Merge {
		reports, err = run.merged(ctx, sources)
	} else {
		reports, err = run.each(ctx, sources)
	}
	if flushErr := records.Flush(); err == nil && flushErr != nil {
		err = fmt.Errorf("writing records: %w", flushErr)
	}
	if err != nil {
		return err
	}

	report := output.NewReport(reports, g.ConfigPath, started, time.Now())

	reportOut := cmd.ErrOrStderr()
	if opts.Records == "none" {
		reportOut = cmd.OutOrStdout()
	}
	if err := formatter.Format(ctx, report, reportOut); err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}

	if opts.MetricsFile != "" {
		if err := prometheus.WriteToTextfile(opts.MetricsFile, prometheus.DefaultGatherer); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}

	// Webhook errors are reported but don't fail the run
	sendWebhooks(ctx, s.logger, s.cfg, opts.Webhook, report, cmd.ErrOrStderr())

	ExitCode = exitCodeFor(report)
	return nil
}

// expandSources expands globs while keeping "-" for standard input.
func expandSources(patterns []string) ([]string, error) {
	var (
		globs  []string
		stdin  bool
		result []string
	)
	for _, p := range patterns {
		if p == stdinSource {
			stdin = true
			continue
		}
		globs = append(globs, p)
	}
	if stdin {
		result = append(result, stdinSource)
	}
	if len(globs) == 0 {
		return result, nil
	}
	files, err := config.ExpandGlobs(globs)
	if err != nil {
		return nil, err
	}
	return append(result, files...), nil
}

// parseRun parses a set of sources with one pipeline.
type parseRun struct {
	pipeline *pipeline.Pipeline
	records  output.RecordWriter
	stdin    io.Reader
	logger   *zap.Logger
}

// each parses the sources one after another.
func (r *parseRun) each(ctx context.Context, sources []string) ([]output.SourceReport, error) {
	reports := make([]output.SourceReport, 0, len(sources))
	for _, src := range sources {
		report, err := r.one(ctx, src)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// one parses a single source. Source failures end up in the report; only
// cancellation and record output errors abort the run.
func (r *parseRun) one(ctx context.Context, src string) (output.SourceReport, error) {
	opened, err := r.open(ctx, src)
	if err != nil {
		if ctx.Err() != nil {
			return output.SourceReport{}, ctx.Err()
		}
		return r.failed(src, err), nil
	}
	defer opened.Close()

	for {
		rec, err := opened.res.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return output.SourceReport{}, ctx.Err()
			}
			return r.report(opened, err), nil
		}
		if err := r.records.Write(rec); err != nil {
			return output.SourceReport{}, fmt.Errorf("writing records: %w", err)
		}
	}
	return r.report(opened, nil), nil
}

// merged parses every source and interleaves their records by timestamp.
func (r *parseRun) merged(ctx context.Context, sources []string) ([]output.SourceReport, error) {
	reports := make([]output.SourceReport, len(sources))
	opened := make([]*openSource, len(sources))
	streams := make([]pipeline.RecordStream, 0, len(sources))

	for i, src := range sources {
		o, err := r.open(ctx, src)
		if err != nil {
			if ctx.Err() != nil {
				closeAll(opened)
				return nil, ctx.Err()
			}
			reports[i] = r.failed(src, err)
			continue
		}
		opened[i] = o
		streams = append(streams, o)
	}

	merged := pipeline.Merge(streams...)
	defer merged.Close()

	for {
		rec, err := merged.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("merging sources: %w", err)
		}
		if err := r.records.Write(rec); err != nil {
			return nil, fmt.Errorf("writing records: %w", err)
		}
	}

	for i, o := range opened {
		if o != nil {
			reports[i] = r.report(o, o.err)
		}
	}
	return reports, nil
}

func (r *parseRun) open(ctx context.Context, src string) (*openSource, error) {
	var (
		in   io.Reader
		file *os.File
		hint = src
	)
	if src == stdinSource {
		in = r.stdin
		hint = ""
	} else {
		f, err := os.Open(src) // #nosec G304 -- user-provided log paths are expected
		if err != nil {
			return nil, fmt.Errorf("opening source: %w", err)
		}
		file = f
		in = f
	}

	res, err := r.pipeline.Run(ctx, in, pipeline.Source{Name: sourceName(src), Hint: hint})
	if err != nil {
		if file != nil {
			file.Close()
		}
		return nil, err
	}
	return &openSource{name: src, res: res, file: file}, nil
}

func (r *parseRun) failed(src string, err error) output.SourceReport {
	r.logger.Warn("source failed", zap.String("source", src), zap.Error(err))
	return output.NewSourceReport(sourceName(src), pipeline.Report{}, nil, err)
}

func (r *parseRun) report(o *openSource, err error) output.SourceReport {
	if err != nil {
		r.logger.Warn("source failed", zap.String("source", o.name), zap.Error(err))
	}
	return output.NewSourceReport(sourceName(o.name), o.res.Report(), o.res.Schema(), err)
}

func sourceName(src string) string {
	if src == stdinSource {
		return "stdin"
	}
	return src
}

// openSource is a running source. As a merge input it ends quietly when the
// source exceeds the skip threshold, keeping the error for the report so the
// other sources are still merged.
type openSource struct {
	name string
	res  *pipeline.Result
	file *os.File
	err  error
}

func (o *openSource) Next(ctx context.Context) (*record.Normalized, error) {
	rec, err := o.res.Next(ctx)
	var exceeded *pipeline.ThresholdExceededError
	if errors.As(err, &exceeded) {
		o.err = err
		return nil, io.EOF
	}
	return rec, err
}

func (o *openSource) Close() error {
	err := o.res.Close()
	if o.file != nil {
		if cerr := o.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func closeAll(sources []*openSource) {
	for _, o := range sources {
		if o != nil {
			_ = o.Close()
		}
	}
}
