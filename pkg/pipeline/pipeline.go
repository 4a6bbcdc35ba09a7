// Package pipeline runs detection once per source, parses its chunks with the
// detected format, normalizes timestamps and infers a schema.
package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ccollicutt/logsniff/pkg/detector"
	"github.com/ccollicutt/logsniff/pkg/formats"
	"github.com/ccollicutt/logsniff/pkg/metrics"
	"github.com/ccollicutt/logsniff/pkg/parser"
	"github.com/ccollicutt/logsniff/pkg/reader"
	"github.com/ccollicutt/logsniff/pkg/registry"
	"github.com/ccollicutt/logsniff/pkg/schema"
	"github.com/ccollicutt/logsniff/pkg/timestamp"
)

// Source identifies the input of a run.
type Source struct {
	// Name labels the source in reports and logs.
	Name string

	// Hint is used by the extension stage, usually the file name.
	Hint string
}

// Pipeline turns byte streams into normalized records. A Pipeline can run
// any number of sources, concurrently or not.
type Pipeline struct {
	cfg      Config
	registry *registry.Registry
	policy   detector.KeywordPolicy
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:    DefaultConfig(),
		policy: detector.DefaultKeywordPolicy(),
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the run configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Registry returns the format registry used by runs, registering the
// built-in formats on first use of the default one.
func (p *Pipeline) Registry() (*registry.Registry, error) {
	if p.registry != nil {
		return p.registry, nil
	}
	return formats.Default()
}

// Detector returns a detector configured like the ones used by runs.
func (p *Pipeline) Detector() (*detector.Detector, error) {
	reg, err := p.Registry()
	if err != nil {
		return nil, err
	}
	reg.Freeze()
	return detector.New(reg,
		detector.WithLogger(p.logger),
		detector.WithKeywordPolicy(p.policy)), nil
}

// Run detects the format of r and returns a result ready for iteration. The
// schema sample is parsed before Run returns. The caller must Close the
// result.
func (p *Pipeline) Run(ctx context.Context, r io.Reader, src Source) (*Result, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	if src.Name == "" {
		src.Name = src.Hint
	}
	started := p.now()
	log := p.logger.With(zap.String("source", src.Name))

	reg, err := p.Registry()
	if err != nil {
		return nil, err
	}
	det, err := p.Detector()
	if err != nil {
		return nil, err
	}

	stream, sample, err := peek(r, p.cfg.SampleBytes)
	if err != nil {
		return nil, err
	}

	detection, inner, closer, err := p.detect(det, stream, sample, src)
	if err != nil {
		if errors.As(err, new(*detector.UndetectedFormatError)) {
			metrics.DetectionFailures.Inc()
		}
		return nil, err
	}

	desc, err := reg.Resolve(detection.Format)
	if err != nil {
		closeQuietly(closer)
		return nil, err
	}
	metrics.Detections.WithLabelValues(desc.ID, detection.Stage.String()).Inc()
	log.Info("format detected",
		zap.String("format", desc.ID),
		zap.Stringer("stage", detection.Stage),
		zap.String("container", string(detection.Container)))

	prs := desc.New()
	chunks := reader.NewChunkReader(inner, prs, p.cfg.ChunkBytes, p.cfg.MaxEntryBytes)

	var cs chunkStream
	if p.parallel(desc) {
		cs = newParallelStream(ctx, chunks, prs, p.cfg.Workers)
	} else {
		cs = &sequentialStream{chunks: chunks, parser: prs}
	}

	norm := timestamp.New(timestamp.WithLocation(p.cfg.Location), timestamp.WithClock(p.now))
	res := &Result{
		desc:       desc,
		detection:  detection,
		stream:     cs,
		closer:     closer,
		normalizer: norm,
		threshold:  p.cfg.SkipThreshold,
		logger:     log,
		now:        p.now,
		report: Report{
			RunID:         uuid.NewString(),
			Source:        src.Name,
			Format:        desc.ID,
			Stage:         detection.Stage.String(),
			Container:     string(detection.Container),
			SkipThreshold: p.cfg.SkipThreshold,
			StartedAt:     started,
		},
	}

	if err := res.fillSample(ctx, p.cfg.SchemaSample); err != nil {
		res.Close()
		return nil, err
	}
	res.schema = schema.NewInferencer(norm).Infer(res.sampleRecords())

	if res.exhausted {
		if err := res.finish(); err != nil {
			res.Close()
			return nil, err
		}
	}
	return res, nil
}

// Detect selects the format of r without parsing it. A compressed source is
// unwrapped once, as in Run.
func (p *Pipeline) Detect(r io.Reader, src Source) (*detector.Result, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	if src.Name == "" {
		src.Name = src.Hint
	}
	det, err := p.Detector()
	if err != nil {
		return nil, err
	}
	stream, sample, err := peek(r, p.cfg.SampleBytes)
	if err != nil {
		return nil, err
	}
	res, _, closer, err := p.detect(det, stream, sample, src)
	closeQuietly(closer)
	return res, err
}

// detect runs the cascade, unwrapping one container level when needed.
func (p *Pipeline) detect(det *detector.Detector, stream io.Reader, sample []byte, src Source) (*detector.Result, io.Reader, io.Closer, error) {
	var (
		res *detector.Result
		err error
	)
	if p.cfg.Format != "" {
		res = &detector.Result{
			Format:    p.cfg.Format,
			Stage:     registry.StageForced,
			Score:     1,
			Container: reader.ContainerBySignature(sample),
		}
	} else {
		res, err = det.Detect(sample, src.Hint)
		if err != nil {
			return nil, nil, nil, err
		}
	}
	if res.Container == reader.None {
		return res, stream, nil, nil
	}

	rc, member, err := reader.Decompress(stream, res.Container, p.cfg.MaxArchiveBytes)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to decompress %s: %w", src.Name, err)
	}
	inner, sample, err := peek(rc, p.cfg.SampleBytes)
	if err != nil {
		rc.Close()
		return nil, nil, nil, err
	}

	if p.cfg.Format != "" {
		res.Format = p.cfg.Format
		return res, inner, rc, nil
	}

	hint := reader.TrimContainerExt(src.Hint)
	if member != "" {
		hint = member
	}
	innerRes, err := det.DetectDecompressed(sample, hint)
	if err != nil {
		rc.Close()
		return nil, nil, nil, err
	}
	innerRes.Container = res.Container
	return innerRes, inner, rc, nil
}

func (p *Pipeline) parallel(desc registry.Descriptor) bool {
	if desc.Sequential || p.cfg.Workers < 2 {
		return false
	}
	return desc.Family == parser.Line || desc.Family == parser.Document
}

// peek buffers the detection sample without consuming it.
func peek(r io.Reader, n int) (*bufio.Reader, []byte, error) {
	br := bufio.NewReaderSize(r, n)
	sample, err := br.Peek(n)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, nil, fmt.Errorf("failed to read sample: %w", err)
	}
	return br, sample, nil
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
