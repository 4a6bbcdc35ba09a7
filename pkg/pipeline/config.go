package pipeline

import (
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/ccollicutt/logsniff/pkg/detector"
	"github.com/ccollicutt/logsniff/pkg/reader"
	"github.com/ccollicutt/logsniff/pkg/registry"
	"github.com/ccollicutt/logsniff/pkg/schema"
)

// DefaultSampleBytes is the prefix peeked for detection.
const DefaultSampleBytes = 64 << 10

// DefaultSkipThreshold is the highest tolerated fraction of malformed entries.
const DefaultSkipThreshold = 0.5

// Config holds the resource bounds and policies of a run.
type Config struct {
	SampleBytes     int
	ChunkBytes      int
	MaxEntryBytes   int
	MaxArchiveBytes int64
	SchemaSample    int
	Workers         int

	// SkipThreshold fails a source whose skipped/(records+skipped) ratio is
	// strictly above it.
	SkipThreshold float64

	// Location is assumed for zone-less timestamps (default UTC).
	Location *time.Location

	// Format, when set, skips detection.
	Format string
}

// DefaultConfig returns the default run configuration.
func DefaultConfig() Config {
	return Config{
		SampleBytes:     DefaultSampleBytes,
		ChunkBytes:      reader.DefaultChunkBytes,
		MaxEntryBytes:   reader.DefaultMaxEntryBytes,
		MaxArchiveBytes: reader.DefaultMaxArchiveBytes,
		SchemaSample:    schema.DefaultSample,
		Workers:         runtime.NumCPU(),
		SkipThreshold:   DefaultSkipThreshold,
		Location:        time.UTC,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.SampleBytes <= 0 {
		return fmt.Errorf("sample bytes must be positive, got %d", c.SampleBytes)
	}
	if c.ChunkBytes <= 0 {
		return fmt.Errorf("chunk bytes must be positive, got %d", c.ChunkBytes)
	}
	if c.MaxEntryBytes < c.ChunkBytes {
		return fmt.Errorf("max entry bytes (%d) must be at least chunk bytes (%d)", c.MaxEntryBytes, c.ChunkBytes)
	}
	if c.MaxArchiveBytes <= 0 {
		return fmt.Errorf("max archive bytes must be positive, got %d", c.MaxArchiveBytes)
	}
	if c.SchemaSample <= 0 {
		return fmt.Errorf("schema sample must be positive, got %d", c.SchemaSample)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.SkipThreshold < 0 || c.SkipThreshold > 1 {
		return fmt.Errorf("skip threshold must be between 0 and 1, got %g", c.SkipThreshold)
	}
	return nil
}

// Option configures the Pipeline.
type Option func(*Pipeline)

// WithConfig replaces the run configuration.
func WithConfig(cfg Config) Option {
	return func(p *Pipeline) {
		p.cfg = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRegistry sets the format registry (default: built-in formats).
func WithRegistry(reg *registry.Registry) Option {
	return func(p *Pipeline) {
		p.registry = reg
	}
}

// WithKeywordPolicy sets the keyword detection policy.
func WithKeywordPolicy(policy detector.KeywordPolicy) Option {
	return func(p *Pipeline) {
		p.policy = policy
	}
}

// WithFormat forces a format instead of detecting one.
func WithFormat(id string) Option {
	return func(p *Pipeline) {
		p.cfg.Format = id
	}
}

// WithWorkers sets the worker pool size.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.cfg.Workers = n
		}
	}
}

// WithClock sets the clock used for run timing and year-less timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}
