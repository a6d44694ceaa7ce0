package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// validJudgeProviders lists the provider names the judge engine can be
// backed by.
var validJudgeProviders = []string{
	"openai", "anthropic", "gemini", "ollama", "deepseek",
	"mistral", "groq", "llamacpp", "llamafile",
}

// validEngineKinds lists the engine kinds allowed in engines.preference.
var validEngineKinds = []string{
	"forced-alignment", "cloud-speech-a", "cloud-speech-b",
	"multimodal-judge", "fallback-heuristic",
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Judge.Provider != "" && !slices.Contains(validJudgeProviders, cfg.Judge.Provider) {
		errs = append(errs, fmt.Errorf("judge.provider %q is unknown; valid values: %v", cfg.Judge.Provider, validJudgeProviders))
	}
	if cfg.Judge.Provider != "" && cfg.Judge.Model == "" {
		errs = append(errs, errors.New("judge.model must be set when judge.provider is configured"))
	}

	for _, kind := range cfg.Engines.Preference {
		if !slices.Contains(validEngineKinds, kind) {
			errs = append(errs, fmt.Errorf("engines.preference entry %q is unknown; valid values: %v", kind, validEngineKinds))
		}
	}
	if err := validateCloud("engines.cloud_a", cfg.Engines.CloudA); err != nil {
		errs = append(errs, err)
	}
	if err := validateCloud("engines.cloud_b", cfg.Engines.CloudB); err != nil {
		errs = append(errs, err)
	}

	if cfg.Scoring.GOPSlope < 0 {
		errs = append(errs, fmt.Errorf("scoring.gop_slope must not be negative, got %v", cfg.Scoring.GOPSlope))
	}
	if cfg.Scoring.CalibrationTrigger < 0 || cfg.Scoring.CalibrationTrigger > 100 {
		errs = append(errs, fmt.Errorf("scoring.calibration_trigger must be within [0, 100], got %v", cfg.Scoring.CalibrationTrigger))
	}
	if cfg.Scoring.CalibrationTarget < 0 || cfg.Scoring.CalibrationTarget > 100 {
		errs = append(errs, fmt.Errorf("scoring.calibration_target must be within [0, 100], got %v", cfg.Scoring.CalibrationTarget))
	}
	if cfg.Scoring.RerouteMissingRatio < 0 || cfg.Scoring.RerouteMissingRatio > 1 {
		errs = append(errs, fmt.Errorf("scoring.reroute_missing_ratio must be within [0, 1], got %v", cfg.Scoring.RerouteMissingRatio))
	}

	if cfg.Workers.Count < 0 {
		errs = append(errs, fmt.Errorf("workers.count must not be negative, got %d", cfg.Workers.Count))
	}
	if cfg.Workers.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("workers.poll_interval_ms must not be negative, got %d", cfg.Workers.PollInterval))
	}

	return errors.Join(errs...)
}

// validateCloud checks one cloud engine block. A configured endpoint needs
// at least one key.
func validateCloud(name string, cfg CloudConfig) error {
	if cfg.Endpoint == "" {
		return nil
	}
	if len(cfg.Keys) == 0 {
		return fmt.Errorf("%s.keys must carry at least one key when %s.endpoint is set", name, name)
	}
	return nil
}
