// Package config loads and validates the roof-pipeline configuration:
// YAML files merged with built-in defaults via dario.cat/mergo, with
// environment-variable expansion applied before parsing.
package config

import "time"

// ServerConfig holds the ingest API's HTTP server settings.
type ServerConfig struct {
	HTTPPort           string        `yaml:"http_port"`
	MaxBodyBytes       int64         `yaml:"max_body_bytes"`
	ShutdownGrace      time.Duration `yaml:"shutdown_grace"`
}

// DefaultServerConfig returns the default HTTP server settings.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		HTTPPort:      "8080",
		MaxBodyBytes:  2 * 1024 * 1024,
		ShutdownGrace: 10 * time.Second,
	}
}

// BlobStoreConfig configures the S3-compatible blob store adapter.
type BlobStoreConfig struct {
	Bucket         string        `yaml:"bucket"`
	Region         string        `yaml:"region"`
	Endpoint       string        `yaml:"endpoint,omitempty"` // non-empty targets an S3-compatible endpoint (e.g. MinIO)
	PresignTTL     time.Duration `yaml:"presign_ttl"`
	UploadsPrefix  string        `yaml:"uploads_prefix"`
}

// DefaultBlobStoreConfig returns the blob store defaults.
func DefaultBlobStoreConfig() *BlobStoreConfig {
	return &BlobStoreConfig{
		Region:        "us-east-1",
		PresignTTL:    15 * time.Minute,
		UploadsPrefix: "uploads",
	}
}

// LLMConfig configures the LLM interpretation/vision adapter.
type LLMConfig struct {
	Model           string        `yaml:"model"`
	APIKeyEnv       string        `yaml:"api_key_env"`
	MaxTokens       int           `yaml:"max_tokens"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	MaxRetries      int           `yaml:"max_retries"`
	TextTokenBudget int           `yaml:"text_token_budget"`
	MaxImageCount   int           `yaml:"max_image_count"`

	// MaxConcurrentRequests bounds in-flight upstream calls per worker
	// process.
	MaxConcurrentRequests int `yaml:"max_concurrent_requests"`
}

// DefaultLLMConfig returns the LLM adapter defaults.
func DefaultLLMConfig() *LLMConfig {
	return &LLMConfig{
		Model:           "claude-sonnet-4-5",
		APIKeyEnv:       "ANTHROPIC_API_KEY",
		MaxTokens:       2048,
		RequestTimeout:  45 * time.Second,
		MaxRetries:      3,
		TextTokenBudget: 6000,
		MaxImageCount:   4,

		MaxConcurrentRequests: 4,
	}
}

// OCRConfig configures the OCR adapter.
type OCRConfig struct {
	Endpoint       string        `yaml:"endpoint"`
	Language       string        `yaml:"language"`
	PSMMode        int           `yaml:"psm_mode"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DefaultOCRConfig returns the OCR adapter defaults.
func DefaultOCRConfig() *OCRConfig {
	return &OCRConfig{
		Language:       "eng",
		PSMMode:        3,
		RequestTimeout: 30 * time.Second,
	}
}

// BrokerConfig configures the NATS JetStream job queue adapter (C3).
type BrokerConfig struct {
	URL         string `yaml:"url"`
	Subject     string `yaml:"subject"`
	DLQSubject  string `yaml:"dlq_subject"`
	StreamName  string `yaml:"stream_name"`
	DurableName string `yaml:"durable_name"`

	// AckWait is the visibility timeout: how long the broker waits for an
	// ack before redelivering.
	AckWait time.Duration `yaml:"ack_wait"`
}

// DefaultBrokerConfig returns the broker defaults.
func DefaultBrokerConfig() *BrokerConfig {
	return &BrokerConfig{
		URL:         "nats://localhost:4222",
		Subject:     "brant.pipeline.jobs",
		DLQSubject:  "brant.pipeline.jobs.dlq",
		StreamName:  "PIPELINE_JOBS",
		DurableName: "pipeline-worker",
		AckWait:     30 * time.Minute,
	}
}

// Config is the root, fully-resolved configuration object produced by
// Initialize.
type Config struct {
	Server      *ServerConfig        `yaml:"server"`
	Queue       *QueueConfig         `yaml:"queue"`
	Pricing     *PricingConfig       `yaml:"pricing"`
	CV          *CVConfig            `yaml:"cv"`
	LLMVision   *LLMVisionConfig     `yaml:"llm_vision"`
	StageTimeouts *StageTimeoutsConfig `yaml:"stage_timeouts_seconds"`
	BlobStore   *BlobStoreConfig     `yaml:"blob_store"`
	LLM         *LLMConfig           `yaml:"llm"`
	OCR         *OCRConfig           `yaml:"ocr"`
	Broker      *BrokerConfig        `yaml:"broker"`
	MaxFileSizeBytes int64           `yaml:"max_file_size_bytes"`
}

// Defaults returns a Config populated entirely with built-in defaults. YAML
// overrides are merged onto this base with mergo.WithOverride in Initialize.
func Defaults() *Config {
	return &Config{
		Server:        DefaultServerConfig(),
		Queue:         DefaultQueueConfig(),
		Pricing:       DefaultPricingConfig(),
		CV:            DefaultCVConfig(),
		LLMVision:     DefaultLLMVisionConfig(),
		StageTimeouts: DefaultStageTimeouts(),
		BlobStore:     DefaultBlobStoreConfig(),
		LLM:           DefaultLLMConfig(),
		OCR:           DefaultOCRConfig(),
		Broker:        DefaultBrokerConfig(),
		MaxFileSizeBytes: 104857600,
	}
}

// Stats summarizes the resolved queue and upload-size configuration.
type Stats struct {
	WorkerCount       int
	MaxConcurrent     int
	RetryMaxAttempts  int
	MaxFileSizeBytes  int64
}

// Stats computes a Stats snapshot of the resolved configuration.
func (c *Config) Stats() Stats {
	return Stats{
		WorkerCount:      c.Queue.WorkerCount,
		MaxConcurrent:    c.Queue.MaxConcurrentDocuments,
		RetryMaxAttempts: c.Queue.RetryMaxAttempts,
		MaxFileSizeBytes: c.MaxFileSizeBytes,
	}
}
