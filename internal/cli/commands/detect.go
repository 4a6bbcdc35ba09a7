package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ccollicutt/logsniff/internal/cli/detectcache"
	"github.com/ccollicutt/logsniff/pkg/config"
	"github.com/ccollicutt/logsniff/pkg/detector"
	"github.com/ccollicutt/logsniff/pkg/pipeline"
)

// DetectOptions holds command-line options for the detect command.
type DetectOptions struct {
	Output      string
	Explain     bool
	WriteConfig string
}

// DetectedFile is the detection outcome of one file.
type DetectedFile struct {
	File      string           `json:"file"`
	Detection *detector.Result `json:"detection,omitempty"`
	Cached    bool             `json:"cached,omitempty"`
	Error     string           `json:"error,omitempty"`
	Trace     []TraceStep      `json:"trace,omitempty"`

	err error
}

// TraceStep is what one detection stage saw.
type TraceStep struct {
	Stage    string         `json:"stage"`
	Matched  bool           `json:"matched"`
	Rejected []string       `json:"rejected,omitempty"`
	Scores   map[string]int `json:"scores,omitempty"`
}

// NewDetectCommand creates the detect command.
func NewDetectCommand(g *GlobalOptions) *cobra.Command {
	opts := &DetectOptions{}

	cmd := &cobra.Command{
		Use:   "detect <log-file>...",
		Short: "Detect the format of log files",
		Long: `Detect the format of log files without parsing them.

Detection samples the start of each file and runs the stages in order:
extension, binary signature, structural pattern, self-describing content and
semantic keywords. Compressed files (gzip, bzip2, zstd, zip) are unwrapped
once and detected again.

Results are cached per file version, so symlinks to the same file are only
detected once. Optionally generates a starter config with --write-config.

Example:
  logsniff detect /var/log/messages
  logsniff detect --explain 'exports/*.csv.gz'
  logsniff detect -w logsniff.yaml /var/log/app/*.log`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetect(cmd, args, g, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "text", "Output format (text|json)")
	cmd.Flags().BoolVar(&opts.Explain, "explain", false, "Show what every detection stage saw")
	cmd.Flags().StringVarP(&opts.WriteConfig, "write-config", "w", "", "Write starter config to file (will not overwrite)")

	return cmd
}

func runDetect(cmd *cobra.Command, args []string, g *GlobalOptions, opts *DetectOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.Output != "text" && opts.Output != "json" {
		return fmt.Errorf("unknown output format %q (use text or json)", opts.Output)
	}

	s, err := openSession(ctx, g, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer s.close()

	files, err := config.ExpandGlobs(args)
	if err != nil {
		return fmt.Errorf("expanding files: %w", err)
	}

	cache, err := detectcache.New(detectcache.DefaultSize)
	if err != nil {
		return err
	}
	p := s.pipeline()

	results := make([]DetectedFile, 0, len(files))
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		results = append(results, detectOne(p, cache, file, opts.Explain))
	}

	if opts.WriteConfig != "" {
		if err := writeStarterConfig(results, opts.WriteConfig, cmd.OutOrStdout()); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if opts.Output == "json" {
		err = outputDetectJSON(results, out)
	} else {
		err = outputDetectText(results, out)
	}
	if err != nil {
		return err
	}

	for _, r := range results {
		if r.err != nil {
			ExitCode = max(ExitCode, exitCodeForError(r.err))
		}
	}
	return nil
}

func detectOne(p *pipeline.Pipeline, cache *detectcache.Cache, file string, explain bool) DetectedFile {
	df := DetectedFile{File: file}

	res, cached, err := cache.Detect(file, func(path string) (*detector.Result, error) {
		return detectFile(p, path)
	})
	df.Detection = res
	df.Cached = cached
	if err != nil {
		df.err = err
		df.Error = err.Error()
	}

	if explain {
		if tr, err := explainFile(p, file); err == nil {
			df.Trace = traceSteps(tr)
		}
	}
	return df
}

// detectFile detects the format of a file, unwrapping one container level.
func detectFile(p *pipeline.Pipeline, path string) (*detector.Result, error) {
	f, err := os.Open(path) // #nosec G304 -- user-provided log paths are expected
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	return p.Detect(f, pipeline.Source{Name: path, Hint: path})
}

// explainFile traces detection on the raw start of a file.
func explainFile(p *pipeline.Pipeline, path string) (*detector.Trace, error) {
	det, err := p.Detector()
	if err != nil {
		return nil, err
	}
	sample, err := readSample(path, p.Config().SampleBytes)
	if err != nil {
		return nil, err
	}
	return det.Explain(sample, path, true), nil
}

func readSample(path string, n int) ([]byte, error) {
	f, err := os.Open(path) // #nosec G304 -- user-provided log paths are expected
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	return buf[:read], nil
}

func traceSteps(tr *detector.Trace) []TraceStep {
	steps := make([]TraceStep, 0, len(tr.Steps))
	for _, st := range tr.Steps {
		steps = append(steps, TraceStep{
			Stage:    st.Stage.String(),
			Matched:  st.Matched,
			Rejected: st.Rejected,
			Scores:   st.Scores,
		})
	}
	return steps
}

func outputDetectText(results []DetectedFile, w io.Writer) error {
	fmt.Fprintln(w, "=== Format Detection ===")
	fmt.Fprintln(w)

	for _, r := range results {
		fmt.Fprintf(w, "File: %s\n", r.File)

		if r.Detection == nil {
			fmt.Fprintf(w, "No format detected: %s\n", r.Error)
			fmt.Fprintln(w)
			fmt.Fprintln(w, "Tip: The file may use a format no built-in format recognizes.")
			fmt.Fprintln(w, "Declare it under formats: in the config file or as a format plugin.")
		} else {
			d := r.Detection
			fmt.Fprintf(w, "Detected Format: %s\n", d.Format)
			fmt.Fprintf(w, "Stage: %s (score %d)\n", d.Stage, d.Score)
			if d.Container != "" {
				fmt.Fprintf(w, "Container: %s\n", d.Container)
			}
			if d.Line != "" {
				fmt.Fprintf(w, "Sample match:\n  %s\n", truncate(d.Line, 120))
			}
			if r.Cached {
				fmt.Fprintln(w, "(cached)")
			}
		}

		if len(r.Trace) > 0 {
			fmt.Fprintln(w)
			fmt.Fprintln(w, "--- Detection stages ---")
			for _, st := range r.Trace {
				fmt.Fprintf(w, "  %-10s %s\n", st.Stage, describeStep(st))
			}
		}
		fmt.Fprintln(w)
	}

	return nil
}

func describeStep(st TraceStep) string {
	if st.Matched {
		return "matched"
	}
	switch {
	case len(st.Scores) > 0:
		ids := make([]string, 0, len(st.Scores))
		for id := range st.Scores {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = id + "=" + strconv.Itoa(st.Scores[id])
		}
		return "no match (scores: " + strings.Join(parts, ", ") + ")"
	case len(st.Rejected) > 0:
		return "no match (rejected: " + strings.Join(st.Rejected, ", ") + ")"
	default:
		return "no match"
	}
}

func outputDetectJSON(results []DetectedFile, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(results)
}

// writeStarterConfig generates a starter config file listing the detected files.
func writeStarterConfig(results []DetectedFile, configPath string, w io.Writer) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config file already exists: %s (will not overwrite)", configPath)
	}

	var detected []DetectedFile
	for _, r := range results {
		if r.Detection != nil {
			detected = append(detected, r)
		}
	}
	if len(detected) == 0 {
		return errors.New("cannot generate config: no format detected")
	}

	// #nosec G306 - config file doesn't need restrictive permissions
	if err := os.WriteFile(configPath, []byte(generateStarterConfig(detected)), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(w, "Wrote starter config to: %s\n\n", configPath)
	return nil
}

// generateStarterConfig creates a YAML config template.
func generateStarterConfig(detected []DetectedFile) string {
	var formats, sources strings.Builder
	for _, r := range detected {
		file := r.File
		if abs, err := filepath.Abs(file); err == nil {
			file = abs
		}
		fmt.Fprintf(&formats, "#   %s: %s (%s)\n", file, r.Detection.Format, r.Detection.Stage)
		fmt.Fprintf(&sources, "  - %s\n", strconv.Quote(file))
	}

	defaults := pipeline.DefaultConfig()
	return fmt.Sprintf(`# logsniff configuration
# Generated by: logsniff detect
#
# Detected formats:
%s
sources:
%s  # Add more log files or use globs:
  # - /var/log/myapp/*.log

pipeline:
  skip_threshold: %g
  schema_sample: %d
  location: UTC
  # workers: 4
  # chunk_bytes: %d

detection:
  keyword_min_score: 1
  # keyword_priority: [auth, firewall]

# Declare formats no built-in format recognizes:
# formats:
#   - id: haproxy
#     pattern: '^(?<client>\S+) \[(?<timestamp>[^\]]+)\] (?<frontend>\S+)'
#     timestamp_field: timestamp

# Send the run report to a webhook:
# webhooks:
#   - name: ops
#     url: https://hooks.example.com/logsniff
#     token: ${LOGSNIFF_WEBHOOK_TOKEN}
#     trigger: on_failure

log_level: warn
`, formats.String(), sources.String(), defaults.SkipThreshold, defaults.SchemaSample, defaults.ChunkBytes)
}
