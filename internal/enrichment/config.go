// Package enrichment derives additional fields from an event's contents and
// worker context. The enricher models an external dependency: it may perform
// slow I/O and is therefore always called under the worker's retry policy.
package enrichment

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eventflow-io/eventflow/internal/config"
)

const (
	// defaultHighValueThreshold is the purchase amount above which the
	// enriched category becomes "high_value". An amount of exactly the
	// threshold stays "standard".
	defaultHighValueThreshold = 1000

	// defaultLatencyMS imitates the round-trip of the external enrichment
	// dependency this component stands in for.
	defaultLatencyMS = 100
)

// DefaultConfigPath is the default location for the eventflow configuration file.
// Uses hidden file format following common tool conventions (.eslintrc, .prettierrc, etc.).
const DefaultConfigPath = ".eventflow.yaml"

// ConfigPathEnvVar is the environment variable name for a custom config path.
const ConfigPathEnvVar = "EVENTFLOW_ENRICHMENT_CONFIG_PATH"

// Config holds enrichment rule settings loaded from .eventflow.yaml.
type Config struct {
	// HighValueThreshold is the purchase amount boundary for the
	// "high_value" category.
	//nolint:tagliatelle // snake_case is intentional for YAML config files
	HighValueThreshold float64 `yaml:"high_value_threshold"`

	// SimulatedLatencyMS is the artificial delay applied per enrichment
	// call, in milliseconds. YAML-friendly integer; use Latency() for the
	// time.Duration form.
	//nolint:tagliatelle // snake_case is intentional for YAML config files
	SimulatedLatencyMS int `yaml:"simulated_latency_ms"`
}

// Latency returns the simulated enrichment latency as a duration.
func (c *Config) Latency() time.Duration {
	return time.Duration(c.SimulatedLatencyMS) * time.Millisecond
}

// DefaultConfig returns the built-in enrichment rules.
func DefaultConfig() *Config {
	return &Config{
		HighValueThreshold: defaultHighValueThreshold,
		SimulatedLatencyMS: defaultLatencyMS,
	}
}

// LoadConfig loads enrichment configuration from a YAML file at the given path.
//
// Behavior:
//   - Returns defaults (not error) if the file doesn't exist - the rules file is optional
//   - Returns defaults + logs warning if the YAML is invalid (graceful degradation)
//   - Returns the populated config on success, with zero fields backfilled from defaults
//
// This graceful degradation ensures the worker can start even without a rules
// file configured.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Missing file is OK - the rules file is optional
			slog.Debug("Enrichment config file not found, using defaults",
				slog.String("path", path))

			return cfg, nil
		}

		// Other read errors (permissions, etc.) - log warning and continue
		slog.Warn("Failed to read enrichment config file, using defaults",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return cfg, nil
	}

	var fileCfg Config

	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		slog.Warn("Invalid enrichment config file, using defaults",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return cfg, nil
	}

	if fileCfg.HighValueThreshold > 0 {
		cfg.HighValueThreshold = fileCfg.HighValueThreshold
	}

	if fileCfg.SimulatedLatencyMS > 0 {
		cfg.SimulatedLatencyMS = fileCfg.SimulatedLatencyMS
	}

	return cfg, nil
}

// ConfigPath resolves the enrichment config path from the environment,
// falling back to DefaultConfigPath.
func ConfigPath() string {
	return config.GetEnvStr(ConfigPathEnvVar, DefaultConfigPath)
}
