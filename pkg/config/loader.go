package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Initialize loads roofpipeline.yaml from configDir (if present), merges it
// over the built-in defaults, validates the result, and returns a ready-to-use
// Config.
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)

	cfg := Defaults()

	path := filepath.Join(configDir, "roofpipeline.yaml")
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		data = ExpandEnv(data)
		var override Config
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
		}
		if err := mergo.Merge(cfg, &override, mergo.WithOverride); err != nil {
			return nil, NewLoadError(path, err)
		}
		log.Info("loaded configuration overrides", "file", path)
	case os.IsNotExist(err):
		log.Info("no configuration override file found, using built-in defaults", "file", path)
	default:
		return nil, NewLoadError(path, err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	return cfg, nil
}

// validate checks cross-field invariants the YAML/mergo merge cannot enforce
// structurally (bounds, required positivity).
func validate(cfg *Config) error {
	if cfg.MaxFileSizeBytes <= 0 {
		return NewValidationError("max_file_size_bytes", fmt.Errorf("must be positive"))
	}
	if cfg.MaxFileSizeBytes > AdminMaxFileSizeBytesCeiling {
		return NewValidationError("max_file_size_bytes", fmt.Errorf("exceeds admin ceiling of %d", AdminMaxFileSizeBytesCeiling))
	}
	if cfg.Queue.WorkerCount < 1 {
		return NewValidationError("queue.worker_count", fmt.Errorf("must be at least 1"))
	}
	if cfg.Queue.RetryMaxAttempts < 1 {
		return NewValidationError("queue.retry_max_attempts", fmt.Errorf("must be at least 1"))
	}
	if cfg.Pricing.MaterialCostPerSqft < 0 || cfg.Pricing.LaborCostPerSqft < 0 {
		return NewValidationError("pricing", fmt.Errorf("costs must be non-negative"))
	}
	if cfg.LLMVision.ConfidenceFallbackThreshold < 0 || cfg.LLMVision.ConfidenceFallbackThreshold > 1 {
		return NewValidationError("llm_vision.confidence_fallback_threshold", fmt.Errorf("must be in [0,1]"))
	}
	return nil
}

// AdminMaxFileSizeBytesCeiling is the absolute admin ceiling on the
// configurable size cap.
const AdminMaxFileSizeBytesCeiling = 200 * 1024 * 1024
