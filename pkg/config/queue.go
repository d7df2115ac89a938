package config

import "time"

// QueueConfig controls how the pipeline worker pool polls, claims, and
// processes documents.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines per process.
	WorkerCount int `yaml:"worker_count"`

	// MaxConcurrentDocuments is reported by Config.Stats only. The worker
	// pool's concurrency is WorkerCount per process, and no limit across
	// worker processes is enforced.
	MaxConcurrentDocuments int `yaml:"max_concurrent_documents"`

	// PollInterval is the base time each worker's broker fetch waits for a
	// job before the worker fetches again.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter is the random jitter applied to PollInterval.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// LeaseDuration is how long a Phase A claim's lease is valid before the
	// janitor considers it stale.
	LeaseDuration time.Duration `yaml:"lease_duration"`

	// LeaseRefreshInterval is how often Phase B refreshes the lease while
	// executing.
	LeaseRefreshInterval time.Duration `yaml:"lease_refresh_interval"`

	// GracefulShutdownTimeout bounds how long Stop waits for in-flight jobs.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`

	// JanitorInterval is how often the lease-recovery janitor scans for
	// stale PROCESSING documents.
	JanitorInterval time.Duration `yaml:"janitor_interval"`

	// OverallJobTimeout is the hard wall-clock cap on one document's whole
	// Phase A+B+C unit.
	OverallJobTimeout time.Duration `yaml:"overall_job_timeout"`

	// RetryMaxAttempts is the broker-level retry cap around one Phase
	// A/B/C unit.
	RetryMaxAttempts int `yaml:"retry_max_attempts"`

	// RetryBase and RetryCap parameterize the exponential redelivery
	// backoff.
	RetryBase time.Duration `yaml:"retry_base"`
	RetryCap  time.Duration `yaml:"retry_cap"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             4,
		MaxConcurrentDocuments:  4,
		PollInterval:            1 * time.Second,
		PollIntervalJitter:      250 * time.Millisecond,
		LeaseDuration:           10 * time.Minute,
		LeaseRefreshInterval:    60 * time.Second,
		GracefulShutdownTimeout: 10 * time.Minute,
		JanitorInterval:         5 * time.Minute,
		OverallJobTimeout:       30 * time.Minute,
		RetryMaxAttempts:        3,
		RetryBase:               2 * time.Second,
		RetryCap:                60 * time.Second,
	}
}
