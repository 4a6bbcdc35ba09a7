package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ccollicutt/logsniff/internal/cli/plugins"
	"github.com/ccollicutt/logsniff/pkg/config"
	"github.com/ccollicutt/logsniff/pkg/detector"
	"github.com/ccollicutt/logsniff/pkg/formats"
	"github.com/ccollicutt/logsniff/pkg/output"
	"github.com/ccollicutt/logsniff/pkg/pipeline"
	"github.com/ccollicutt/logsniff/pkg/registry"
)

// ExitCode is set by commands to indicate the result
var ExitCode = ExitOK

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1 // a source failed detection or exceeded the skip threshold
	ExitError   = 2 // configuration or runtime error
)

// GlobalOptions holds the persistent flags of the root command.
type GlobalOptions struct {
	ConfigPath string
	LogLevel   string
	NoColor    bool
	NoPlugins  bool
}

// session is what a command needs to run the pipeline: the loaded
// configuration, a logger and a registry holding built-in, configured and
// plugin formats.
type session struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *registry.Registry
	plugins  []plugins.Loaded
}

func openSession(ctx context.Context, g *GlobalOptions, stderr io.Writer) (*session, error) {
	if g == nil {
		g = &GlobalOptions{}
	}

	var (
		cfg *config.Config
		err error
	)
	if g.ConfigPath != "" {
		cfg, err = config.Load(ctx, g.ConfigPath)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	level := cfg.LogLevel
	if g.LogLevel != "" {
		level = g.LogLevel
	}
	logger, err := NewLogger(level, stderr)
	if err != nil {
		return nil, err
	}

	reg, err := formats.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("registering built-in formats: %w", err)
	}
	for i := range cfg.Formats {
		if err := reg.Register(cfg.Formats[i].Descriptor()); err != nil {
			return nil, fmt.Errorf("registering format %s: %w", cfg.Formats[i].ID, err)
		}
	}

	s := &session{cfg: cfg, logger: logger, registry: reg}
	if !g.NoPlugins {
		files, err := plugins.Discover(plugins.Dirs())
		if err != nil {
			return nil, err
		}
		if s.plugins, err = plugins.Register(reg, files, logger); err != nil {
			return nil, err
		}
	}

	logger.Debug("session ready",
		zap.String("config", g.ConfigPath),
		zap.Int("formats", reg.Len()),
		zap.Int("plugins", len(s.plugins)))
	return s, nil
}

// pipeline returns a pipeline configured from the session. Options passed
// here apply on top of the configuration.
func (s *session) pipeline(opts ...pipeline.Option) *pipeline.Pipeline {
	base := []pipeline.Option{
		pipeline.WithConfig(s.cfg.RunConfig()),
		pipeline.WithLogger(s.logger),
		pipeline.WithRegistry(s.registry),
		pipeline.WithKeywordPolicy(s.cfg.KeywordPolicy()),
	}
	return pipeline.New(append(base, opts...)...)
}

func (s *session) close() {
	_ = s.logger.Sync()
}

// NewLogger builds a console logger writing to w at the given level.
func NewLogger(level string, w io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if color.NoColor {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(w),
		lvl,
	)
	return zap.New(core), nil
}

// exitCodeFor maps a run report to an exit code.
func exitCodeFor(report *output.Report) int {
	switch {
	case report.Count(output.StatusError) > 0:
		return ExitError
	case report.HasFailures():
		return ExitFailure
	default:
		return ExitOK
	}
}

// exitCodeForError maps a detection error to an exit code.
func exitCodeForError(err error) int {
	var undetected *detector.UndetectedFormatError
	if errors.As(err, &undetected) {
		return ExitFailure
	}
	return ExitError
}
