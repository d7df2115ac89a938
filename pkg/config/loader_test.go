package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize_DefaultsWhenNoFile(t *testing.T) {
	cfg, err := Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, int64(104857600), cfg.MaxFileSizeBytes)
	assert.Equal(t, 4, cfg.Queue.WorkerCount)
	assert.Equal(t, 3, cfg.Queue.RetryMaxAttempts)
	assert.Equal(t, 8.00, cfg.Pricing.MaterialCostPerSqft)
	assert.Equal(t, 4.00, cfg.Pricing.LaborCostPerSqft)
	assert.Equal(t, 0.7, cfg.LLMVision.ConfidenceFallbackThreshold)
	assert.Equal(t, "brant.pipeline.jobs", cfg.Broker.Subject)
	assert.Equal(t, 180, cfg.StageTimeouts.ExtractSeconds)
}

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "roofpipeline.yaml"), []byte(content), 0o644))
}

func TestInitialize_YAMLOverridesMergeOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
queue:
  worker_count: 8
pricing:
  material_per_sqft: 9.5
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Queue.WorkerCount, "overridden")
	assert.Equal(t, 9.5, cfg.Pricing.MaterialCostPerSqft, "overridden")
	assert.Equal(t, 3, cfg.Queue.RetryMaxAttempts, "default survives the merge")
	assert.Equal(t, 4.00, cfg.Pricing.LaborCostPerSqft, "default survives the merge")
}

func TestInitialize_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_BROKER_URL", "nats://broker.internal:4222")
	dir := t.TempDir()
	writeConfig(t, dir, `
broker:
  url: ${TEST_BROKER_URL}
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, "nats://broker.internal:4222", cfg.Broker.URL)
}

func TestInitialize_RejectsCapAboveAdminCeiling(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "max_file_size_bytes: 300000000\n")

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestInitialize_RejectsInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "queue: [not: a: mapping\n")

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestInitialize_RejectsOutOfRangeThreshold(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
llm_vision:
  confidence_fallback_threshold: 1.5
`)

	_, err := Initialize(context.Background(), dir)
	assert.ErrorIs(t, err, ErrValidationFailed)
}
