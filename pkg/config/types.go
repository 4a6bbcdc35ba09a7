// Package config provides configuration loading and validation for logsniff.
package config

import (
	"time"

	"github.com/dlclark/regexp2"
)

// Config is the root configuration structure loaded from YAML.
type Config struct {
	// Sources lists files or glob patterns parsed when no arguments are given.
	Sources   []string        `yaml:"sources"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Detection DetectionConfig `yaml:"detection"`
	Formats   []FormatConfig  `yaml:"formats,omitempty"`
	Webhooks  []WebhookConfig `yaml:"webhooks,omitempty"`
	LogLevel  string          `yaml:"log_level"`
}

// PipelineConfig bounds the resources of a run.
type PipelineConfig struct {
	Workers         int     `yaml:"workers"`
	ChunkBytes      int     `yaml:"chunk_bytes"`
	SampleBytes     int     `yaml:"sample_bytes"`
	SchemaSample    int     `yaml:"schema_sample"`
	SkipThreshold   float64 `yaml:"skip_threshold"`
	MaxEntryBytes   int     `yaml:"max_entry_bytes"`
	MaxArchiveBytes int64   `yaml:"max_archive_bytes"`

	// Location is the IANA zone assumed for zone-less timestamps.
	Location string `yaml:"location"`

	location *time.Location
}

// DetectionConfig tunes the keyword stage.
type DetectionConfig struct {
	KeywordMinScore int      `yaml:"keyword_min_score"`
	KeywordPriority []string `yaml:"keyword_priority,omitempty"`
}

// FormatFamily is the entry shape of a declarative format.
type FormatFamily string

const (
	FamilyLine  FormatFamily = "line"
	FamilyBlock FormatFamily = "block"
)

// FormatConfig declares a format without code. Records come from the named
// groups of Pattern, or from whitespace-separated Columns.
type FormatConfig struct {
	ID          string       `yaml:"id"`
	Description string       `yaml:"description,omitempty"`
	Family      FormatFamily `yaml:"family,omitempty"`

	// Stage is keyword (the default: lines are scored by Keywords, or by
	// Pattern without keywords) or structural (Pattern must match the first
	// line).
	Stage    string `yaml:"stage,omitempty"`
	Priority int    `yaml:"priority,omitempty"`

	Pattern  string   `yaml:"pattern,omitempty"`
	Columns  []string `yaml:"columns,omitempty"`
	Keywords []string `yaml:"keywords,omitempty"`

	Extensions []string `yaml:"extensions,omitempty"`

	TimestampField  string `yaml:"timestamp_field,omitempty"`
	TimestampLayout string `yaml:"timestamp_layout,omitempty"`

	// EntryStart matches the first line of a block entry. Defaults to Pattern.
	EntryStart string `yaml:"entry_start,omitempty"`

	// MatchTimeout bounds a single regular expression evaluation.
	MatchTimeout time.Duration `yaml:"match_timeout,omitempty"`

	compiledPattern *regexp2.Regexp
	compiledStart   *regexp2.Regexp
}

// WebhookTrigger determines when a webhook fires.
type WebhookTrigger string

const (
	// WebhookTriggerOnFailure fires only when a source failed (default).
	WebhookTriggerOnFailure WebhookTrigger = "on_failure"
	// WebhookTriggerAlways fires after every run.
	WebhookTriggerAlways WebhookTrigger = "always"
	// WebhookTriggerNever disables the webhook.
	WebhookTriggerNever WebhookTrigger = "never"
)

// WebhookConfig defines a webhook endpoint for sending run reports.
type WebhookConfig struct {
	// Name is an optional identifier for the webhook.
	Name string `yaml:"name,omitempty"`

	// URL is the webhook endpoint (required).
	URL string `yaml:"url"`

	// Token is an optional bearer token for authentication.
	Token string `yaml:"token,omitempty"`

	// Trigger determines when the webhook fires.
	// Defaults to "on_failure" if not specified.
	Trigger WebhookTrigger `yaml:"trigger,omitempty"`

	// Timeout is the HTTP request timeout.
	// Defaults to 10s if not specified.
	Timeout time.Duration `yaml:"timeout,omitempty"`
}
