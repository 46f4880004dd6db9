// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and watches the runtime configuration.
//
// Configuration is YAML. Embedded defaults are loaded first; a file named by
// the caller or by REDUCE_CONFIG is merged over them, then the result is
// validated.
package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianReduce/services/reduce/telemetry"
)

// EnvConfigPath names the environment variable holding a config file path.
const EnvConfigPath = "REDUCE_CONFIG"

// MaxFileSize bounds the config file size in bytes.
const MaxFileSize = 1 << 20

// =============================================================================
// Embedded defaults
// =============================================================================

//go:embed defaults.yaml
var defaultsYAML []byte

// =============================================================================
// Metrics
// =============================================================================

var (
	loadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reduce_config_loads_total",
		Help: "Total configuration loads by source and result",
	}, []string{"source", "result"})

	loadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reduce_config_load_duration_seconds",
		Help:    "Duration of configuration loading",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	})

	reloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reduce_config_reloads_total",
		Help: "Total configuration reloads triggered by file changes",
	}, []string{"result"})
)

var tracer = otel.Tracer("reduce.config")

var (
	// ErrFileTooLarge is returned for a config file over MaxFileSize.
	ErrFileTooLarge = errors.New("config file too large")

	// ErrInvalidConfig wraps struct validation failures.
	ErrInvalidConfig = errors.New("invalid configuration")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// =============================================================================
// Types
// =============================================================================

// Config is the complete runtime configuration.
type Config struct {
	DataService DataServiceConfig `yaml:"dataservice"`
	Algorithms  AlgorithmsConfig  `yaml:"algorithms"`
	Logging     LoggingConfig     `yaml:"logging"`
	Telemetry   telemetry.Config  `yaml:"telemetry"`
	Archive     ArchiveConfig     `yaml:"archive"`
	Server      ServerConfig      `yaml:"server"`
}

// DataServiceConfig holds the analysis data service name rules.
type DataServiceConfig struct {
	// IllegalCharacters may not appear in entry names.
	IllegalCharacters string `yaml:"illegal_characters"`

	// CaseSensitive is applied at construction only; reloads ignore it.
	CaseSensitive bool `yaml:"case_sensitive"`

	// HiddenPrefix marks entries excluded from default listings.
	HiddenPrefix string `yaml:"hidden_prefix"`
}

// AlgorithmsConfig holds execution settings.
type AlgorithmsConfig struct {
	// CancelTimeout bounds the runner's wait after a cancel request.
	CancelTimeout time.Duration `yaml:"cancel_timeout" validate:"gt=0"`

	// MaxManaged is the number of managed algorithm instances kept.
	MaxManaged int `yaml:"max_managed" validate:"gte=1"`

	// ProgressInterval throttles progress notifications.
	ProgressInterval time.Duration `yaml:"progress_interval" validate:"gte=0"`

	// History enables workspace history stamping.
	History bool `yaml:"history"`
}

// LoggingConfig selects the log handler.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=auto text json"`
}

// ArchiveConfig selects the provenance archive.
type ArchiveConfig struct {
	Backend string `yaml:"backend" validate:"oneof=none badger sqlite"`
	Path    string `yaml:"path" validate:"required_unless=Backend none"`
}

// ServerConfig configures the HTTP wrapper.
type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

// SlogLevel converts Level to a slog.Level. Unknown values map to Info.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// =============================================================================
// Loading
// =============================================================================

// Default returns the embedded defaults.
func Default() *Config {
	cfg := &Config{Telemetry: telemetry.DefaultConfig()}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		panic(fmt.Sprintf("embedded config defaults: %v", err))
	}
	return cfg
}

// Load returns defaults merged with the file at path.
//
// Description:
//
//	An empty path falls back to $REDUCE_CONFIG; if that is empty too the
//	defaults are returned. The merged result is validated.
//
// Outputs:
//   - *Config: The validated configuration.
//   - error: Read, size, parse or ErrInvalidConfig errors.
func Load(ctx context.Context, path string) (cfg *Config, err error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	source := "embedded"
	if path != "" {
		source = "file"
	}

	_, span := tracer.Start(ctx, "config.Load",
		trace.WithAttributes(attribute.String("source", source), attribute.String("path", path)),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		loadDuration.Observe(time.Since(start).Seconds())
		result := "success"
		if err != nil {
			result = "error"
			telemetry.RecordError(span, err)
		}
		loadsTotal.WithLabelValues(source, result).Inc()
	}()

	cfg = Default()
	if path != "" {
		data, err := readFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse merges data over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct constraints.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			parts := make([]string, len(verrs))
			for i, fe := range verrs {
				parts[i] = fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag())
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(parts, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func readFile(path string) ([]byte, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", abs, err)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, info.Size(), MaxFileSize)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", abs, err)
	}
	return data, nil
}
