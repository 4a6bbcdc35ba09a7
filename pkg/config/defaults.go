package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ccollicutt/logsniff/pkg/detector"
	"github.com/ccollicutt/logsniff/pkg/pipeline"
)

// Default values for configuration.
const (
	DefaultWebhookTimeout = 10 * time.Second
	DefaultMatchTimeout   = 100 * time.Millisecond
	DefaultLogLevel       = "warn"
)

// Environment variable names.
const (
	EnvWorkers       = "LOGSNIFF_WORKERS"
	EnvSkipThreshold = "LOGSNIFF_SKIP_THRESHOLD"
	EnvLogLevel      = "LOGSNIFF_LOG_LEVEL"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	run := pipeline.DefaultConfig()
	return &Config{
		Sources: []string{},
		Pipeline: PipelineConfig{
			Workers:         run.Workers,
			ChunkBytes:      run.ChunkBytes,
			SampleBytes:     run.SampleBytes,
			SchemaSample:    run.SchemaSample,
			SkipThreshold:   run.SkipThreshold,
			MaxEntryBytes:   run.MaxEntryBytes,
			MaxArchiveBytes: run.MaxArchiveBytes,
			Location:        "UTC",
		},
		Detection: DetectionConfig{
			KeywordMinScore: detector.DefaultKeywordPolicy().MinScore,
		},
		LogLevel: DefaultLogLevel,
	}
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
func (c *Config) applyEnvironmentOverrides() error {
	if v := os.Getenv(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvWorkers, err)
		}
		c.Pipeline.Workers = n
	}

	if v := os.Getenv(EnvSkipThreshold); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSkipThreshold, err)
		}
		c.Pipeline.SkipThreshold = f
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}

	return nil
}

// RunConfig converts the pipeline section. Call Validate first so the
// location is resolved.
func (c *Config) RunConfig() pipeline.Config {
	loc := c.Pipeline.location
	if loc == nil {
		loc = time.UTC
	}
	return pipeline.Config{
		SampleBytes:     c.Pipeline.SampleBytes,
		ChunkBytes:      c.Pipeline.ChunkBytes,
		MaxEntryBytes:   c.Pipeline.MaxEntryBytes,
		MaxArchiveBytes: c.Pipeline.MaxArchiveBytes,
		SchemaSample:    c.Pipeline.SchemaSample,
		Workers:         c.Pipeline.Workers,
		SkipThreshold:   c.Pipeline.SkipThreshold,
		Location:        loc,
	}
}

// KeywordPolicy converts the detection section.
func (c *Config) KeywordPolicy() detector.KeywordPolicy {
	return detector.KeywordPolicy{
		MinScore: c.Detection.KeywordMinScore,
		Priority: append([]string(nil), c.Detection.KeywordPriority...),
	}
}
