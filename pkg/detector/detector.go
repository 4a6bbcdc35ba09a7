// Package detector selects the format of a source from a sampled prefix
// through an ordered cascade of detection stages.
package detector

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ccollicutt/logsniff/pkg/reader"
	"github.com/ccollicutt/logsniff/pkg/registry"
)

// DefaultSampleLines is the number of non-empty lines examined.
const DefaultSampleLines = 100

// Result is the outcome of a successful detection.
type Result struct {
	// Format is the detected format identifier. It is empty when only a
	// container was recognized.
	Format string `json:"format"`

	// Stage is the stage that matched.
	Stage registry.Stage `json:"stage"`

	// Score is the number of keyword hits, or 1 for deterministic stages.
	Score int `json:"score"`

	// Line is the sampled line that matched.
	Line string `json:"line,omitempty"`

	// Container is set when the source must be decompressed and detected again.
	Container reader.Container `json:"container,omitempty"`
}

// UndetectedFormatError is returned when no stage matches.
type UndetectedFormatError struct {
	Hint         string
	SampledLines int
}

func (e *UndetectedFormatError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("unable to detect format of %s (%d lines sampled)", e.Hint, e.SampledLines)
	}
	return fmt.Sprintf("unable to detect format (%d lines sampled)", e.SampledLines)
}

// KeywordPolicy governs the keyword stage.
type KeywordPolicy struct {
	// MinScore is the lowest winning score.
	MinScore int

	// Priority breaks ties by identifier. Identifiers not listed rank after
	// the listed ones, in detection order.
	Priority []string
}

// DefaultKeywordPolicy requires one hit and breaks ties in detection order.
func DefaultKeywordPolicy() KeywordPolicy {
	return KeywordPolicy{MinScore: 1}
}

// Detector runs the detection cascade against a registry. It holds no
// mutable state and is safe for concurrent use.
type Detector struct {
	registry    *registry.Registry
	policy      KeywordPolicy
	sampleLines int
	logger      *zap.Logger
	stages      []stage
}

// Option configures the Detector.
type Option func(*Detector)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithKeywordPolicy sets the keyword stage policy.
func WithKeywordPolicy(p KeywordPolicy) Option {
	return func(d *Detector) {
		if p.MinScore < 1 {
			p.MinScore = 1
		}
		d.policy = p
	}
}

// WithSampleLines sets the number of non-empty lines examined (default 100).
func WithSampleLines(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.sampleLines = n
		}
	}
}

// New creates a Detector over the formats of reg.
func New(reg *registry.Registry, opts ...Option) *Detector {
	d := &Detector{
		registry:    reg,
		policy:      DefaultKeywordPolicy(),
		sampleLines: DefaultSampleLines,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.stages = []stage{
		{registry.StageExtension, d.byExtension},
		{registry.StageSignature, d.bySignature},
		{registry.StageStructural, d.byFirstLine(registry.StageStructural)},
		{registry.StageContent, d.byFirstLine(registry.StageContent)},
		{registry.StageKeyword, d.byKeyword},
	}
	return d
}

// Detect selects the format of a sample. The hint is usually the source name.
// A container match asks the caller to decompress and call DetectDecompressed.
func (d *Detector) Detect(sample []byte, hint string) (*Result, error) {
	return d.run(&input{sample: sample, hint: hint, containers: true}, nil)
}

// DetectDecompressed detects the format of a decompressed prefix. Containers
// are not considered again.
func (d *Detector) DetectDecompressed(sample []byte, hint string) (*Result, error) {
	return d.run(&input{sample: sample, hint: reader.TrimContainerExt(hint)}, nil)
}

// Explain runs the cascade and records what every stage saw.
func (d *Detector) Explain(sample []byte, hint string, containers bool) *Trace {
	tr := &Trace{}
	in := &input{sample: sample, hint: hint, containers: containers}
	if !containers {
		in.hint = reader.TrimContainerExt(hint)
	}
	tr.Result, tr.Err = d.run(in, tr)
	tr.Lines = in.sampled()
	return tr
}

type input struct {
	sample     []byte
	hint       string
	containers bool
	lines      []string
	linesDone  bool
	max        int
}

func (in *input) sampled() []string {
	if !in.linesDone {
		in.lines = SampleLines(in.sample, in.max)
		in.linesDone = true
	}
	return in.lines
}

func (in *input) firstLine() (string, bool) {
	lines := in.sampled()
	if len(lines) == 0 {
		return "", false
	}
	return lines[0], true
}

type stage struct {
	id    registry.Stage
	match func(in *input, step *Step) *Result
}

func (d *Detector) run(in *input, tr *Trace) (*Result, error) {
	in.max = d.sampleLines
	if len(bytes.TrimSpace(in.sample)) == 0 {
		return nil, &UndetectedFormatError{Hint: in.hint}
	}

	for _, s := range d.stages {
		var step *Step
		if tr != nil {
			tr.Steps = append(tr.Steps, Step{Stage: s.id})
			step = &tr.Steps[len(tr.Steps)-1]
		}
		res := s.match(in, step)
		if res == nil {
			continue
		}
		res.Stage = s.id
		if step != nil {
			step.Matched = true
		}
		d.logger.Debug("format detected",
			zap.String("source", in.hint),
			zap.String("format", res.Format),
			zap.String("container", string(res.Container)),
			zap.Stringer("stage", s.id),
			zap.Int("score", res.Score))
		return res, nil
	}

	return nil, &UndetectedFormatError{Hint: in.hint, SampledLines: len(in.sampled())}
}

func (d *Detector) byExtension(in *input, _ *Step) *Result {
	if in.hint == "" {
		return nil
	}
	if in.containers {
		if c := reader.ContainerByExtension(in.hint); c != reader.None {
			return &Result{Container: c, Score: 1}
		}
	}

	ext := strings.ToLower(filepath.Ext(in.hint))
	if ext == "" {
		return nil
	}
	for _, desc := range d.registry.Descriptors() {
		for _, e := range desc.Rule.Extensions {
			if !strings.EqualFold(e, ext) {
				continue
			}
			if desc.Rule.Sample != nil && !desc.Rule.Sample(in.sample) {
				continue
			}
			return &Result{Format: desc.ID, Score: 1}
		}
	}
	return nil
}

func (d *Detector) bySignature(in *input, _ *Step) *Result {
	if in.containers {
		if c := reader.ContainerBySignature(in.sample); c != reader.None {
			return &Result{Container: c, Score: 1}
		}
	}
	for _, desc := range d.registry.Stage(registry.StageSignature) {
		if desc.Rule.Signature != nil && desc.Rule.Signature(in.sample) {
			return &Result{Format: desc.ID, Score: 1}
		}
	}
	return nil
}

// byFirstLine matches the first non-empty sampled line against the rules of
// a stage in priority order.
func (d *Detector) byFirstLine(s registry.Stage) func(*input, *Step) *Result {
	return func(in *input, step *Step) *Result {
		line, ok := in.firstLine()
		if !ok {
			return nil
		}
		for _, desc := range d.registry.Stage(s) {
			if desc.Rule.Line == nil {
				continue
			}
			if desc.Rule.Line(line) {
				return &Result{Format: desc.ID, Score: 1, Line: line}
			}
			if step != nil {
				step.Rejected = append(step.Rejected, desc.ID)
			}
		}
		return nil
	}
}

// byKeyword scores every keyword format by the number of sampled lines it
// matches. The best score wins; ties follow the policy priority.
func (d *Detector) byKeyword(in *input, step *Step) *Result {
	lines := in.sampled()
	if len(lines) == 0 {
		return nil
	}

	descs := d.registry.Stage(registry.StageKeyword)
	rank := d.rank(descs)

	var best *Result
	bestRank := 0
	for _, desc := range descs {
		if desc.Rule.Line == nil {
			continue
		}
		score := 0
		first := ""
		for _, line := range lines {
			if desc.Rule.Line(line) {
				if score == 0 {
					first = line
				}
				score++
			}
		}
		if step != nil {
			if step.Scores == nil {
				step.Scores = make(map[string]int)
			}
			step.Scores[desc.ID] = score
		}
		if score == 0 {
			continue
		}
		r := rank[desc.ID]
		if best == nil || score > best.Score || (score == best.Score && r < bestRank) {
			best = &Result{Format: desc.ID, Score: score, Line: first}
			bestRank = r
		}
	}

	if best == nil || best.Score < d.policy.MinScore {
		return nil
	}
	return best
}

func (d *Detector) rank(descs []registry.Descriptor) map[string]int {
	rank := make(map[string]int, len(descs))
	for i, id := range d.policy.Priority {
		if _, seen := rank[id]; !seen {
			rank[id] = i
		}
	}
	next := len(d.policy.Priority)
	for _, desc := range descs {
		if _, ok := rank[desc.ID]; !ok {
			rank[desc.ID] = next
			next++
		}
	}
	return rank
}

// SampleLines returns up to max non-empty lines of a sample. A trailing
// partial line is dropped when at least one complete line precedes it.
func SampleLines(sample []byte, max int) []string {
	if max <= 0 {
		max = DefaultSampleLines
	}
	data := bytes.TrimPrefix(sample, []byte{0xEF, 0xBB, 0xBF})
	if i := bytes.LastIndexByte(data, '\n'); i >= 0 && i < len(data)-1 {
		data = data[:i+1]
	}

	var lines []string
	for len(data) > 0 && len(lines) < max {
		var line []byte
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			line, data = data[:i], data[i+1:]
		} else {
			line, data = data, nil
		}
		line = bytes.TrimSuffix(line, []byte{'\r'})
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		lines = append(lines, string(line))
	}
	return lines
}
