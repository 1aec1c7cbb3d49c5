// Package config is the root configuration for corewatch, loaded the
// way the teacher repo's internal/config does: a DefaultConfig(),
// overridden by file, then env via viper; the CLI applies its flags to
// the loaded Config afterwards.
package config

import "time"

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration tree.
type Config struct {
	Capture      CaptureConfig      `mapstructure:"capture"      yaml:"capture"`
	Governor     GovernorConfig     `mapstructure:"governor"     yaml:"governor"`
	Freshness    FreshnessConfig    `mapstructure:"freshness"    yaml:"freshness"`
	Completeness CompletenessConfig `mapstructure:"completeness" yaml:"completeness"`
	Collection   CollectionConfig   `mapstructure:"collection"   yaml:"collection"`
	Analysis     AnalysisConfig     `mapstructure:"analysis"     yaml:"analysis"`
	LLM          LLMConfig          `mapstructure:"llm"          yaml:"llm"`
	Report       ReportConfig       `mapstructure:"report"       yaml:"report"`
	Coordinator  CoordinatorConfig  `mapstructure:"coordinator"  yaml:"coordinator"`
	Queue        QueueConfig        `mapstructure:"queue"        yaml:"queue"`
	Cache        CacheConfig        `mapstructure:"cache"        yaml:"cache"`
	Storage      StorageConfig      `mapstructure:"storage"      yaml:"storage"`
	Logging      LoggingConfig      `mapstructure:"logging"      yaml:"logging"`
	Metrics      MetricsConfig      `mapstructure:"metrics"      yaml:"metrics"`
	Features     FeatureConfig      `mapstructure:"features"     yaml:"features"`
}

// CaptureConfig controls the Scraper Worker (C2).
type CaptureConfig struct {
	Timeout              time.Duration `mapstructure:"timeout"                yaml:"timeout"`
	MaxRetries           int           `mapstructure:"max_retries"            yaml:"max_retries"`
	RetryBackoffBase     time.Duration `mapstructure:"retry_backoff_base"     yaml:"retry_backoff_base"`
	RetryBackoffCap      time.Duration `mapstructure:"retry_backoff_cap"      yaml:"retry_backoff_cap"`
	BlockedResourceTypes []string      `mapstructure:"blocked_resource_types" yaml:"blocked_resource_types"`
}

// GovernorConfig controls the Rate & Concurrency Governor (C3).
type GovernorConfig struct {
	MaxConcurrentPerProject int           `mapstructure:"max_concurrent_per_project"      yaml:"max_concurrent_per_project"`
	MaxConcurrentGlobal     int           `mapstructure:"max_concurrent_global"           yaml:"max_concurrent_global"`
	DomainThrottleInterval  time.Duration `mapstructure:"domain_throttle_interval"        yaml:"domain_throttle_interval"`
	DailySnapshotLimit      int           `mapstructure:"daily_snapshot_limit"            yaml:"daily_snapshot_limit"`
	HourlySnapshotLimit     int           `mapstructure:"hourly_snapshot_limit"           yaml:"hourly_snapshot_limit"`
	CircuitBreakerThreshold float64       `mapstructure:"circuit_breaker_error_threshold" yaml:"circuit_breaker_error_threshold"`
	CircuitBreakerWindow    time.Duration `mapstructure:"circuit_breaker_time_window"     yaml:"circuit_breaker_time_window"`
	QueueWaitTimeout        time.Duration `mapstructure:"queue_wait_timeout"              yaml:"queue_wait_timeout"`
}

// FreshnessConfig controls what counts as "fresh" (I4) and "stale" (§4.4).
type FreshnessConfig struct {
	FreshWindow time.Duration `mapstructure:"fresh_window" yaml:"fresh_window"` // F in I4, default 24h
	StaleAfter  time.Duration `mapstructure:"stale_after"  yaml:"stale_after"`  // default 7 days
}

// CompletenessConfig controls the Data Completeness Checker (C6).
type CompletenessConfig struct {
	MinimumScore float64 `mapstructure:"minimum_score" yaml:"minimum_score"`
}

// CollectionConfig controls the Smart Data Collector (C7).
type CollectionConfig struct {
	SnapshotCaptureTimeout   time.Duration `mapstructure:"snapshot_capture_timeout"    yaml:"snapshot_capture_timeout"`
	TotalGenerationTimeout   time.Duration `mapstructure:"total_generation_timeout"    yaml:"total_generation_timeout"`
	AcceptOlderValidSnapshot bool          `mapstructure:"accept_older_valid_snapshot" yaml:"accept_older_valid_snapshot"`
}

// AnalysisConfig controls the Analysis Stage (C8).
type AnalysisConfig struct {
	Timeout                time.Duration `mapstructure:"timeout"                 yaml:"timeout"`
	MaxRetries             int           `mapstructure:"max_retries"             yaml:"max_retries"`
	RetryBackoffBase       time.Duration `mapstructure:"retry_backoff_base"      yaml:"retry_backoff_base"`
	FocusAreas             []string      `mapstructure:"focus_areas"             yaml:"focus_areas"`
	Depth                  string        `mapstructure:"depth"                   yaml:"depth"`
	IncludeRecommendations bool          `mapstructure:"include_recommendations" yaml:"include_recommendations"`
}

// LLMConfig configures the Analysis Stage's (C8) LLM collaborator.
type LLMConfig struct {
	Provider string        `mapstructure:"provider" yaml:"provider"` // "ollama", "openai", or "custom"
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint"`
	Model    string        `mapstructure:"model"    yaml:"model"`
	APIKey   string        `mapstructure:"api_key"  yaml:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"  yaml:"timeout"`
}

// ReportConfig controls the Report Composer (C9).
type ReportConfig struct {
	MinimumForFull    float64 `mapstructure:"minimum_for_full"    yaml:"minimum_for_full"`
	DefaultTemplateID string  `mapstructure:"default_template_id" yaml:"default_template_id"`
	DefaultFormat     string  `mapstructure:"default_format"      yaml:"default_format"`
}

// CoordinatorConfig controls the Async Report Coordinator (C10).
type CoordinatorConfig struct {
	MaxConcurrentProcessing int           `mapstructure:"max_concurrent_processing" yaml:"max_concurrent_processing"`
	ImmediateTimeout        time.Duration `mapstructure:"immediate_timeout"         yaml:"immediate_timeout"`
	ImmediateReserve        time.Duration `mapstructure:"immediate_reserve"         yaml:"immediate_reserve"`
	FallbackToQueue         bool          `mapstructure:"fallback_to_queue"         yaml:"fallback_to_queue"`
	GracefulDegradation     bool          `mapstructure:"graceful_degradation"      yaml:"graceful_degradation"`
	QueueRetryAttempts      int           `mapstructure:"queue_retry_attempts"      yaml:"queue_retry_attempts"`
	QueueRetryBackoff       time.Duration `mapstructure:"queue_retry_backoff"       yaml:"queue_retry_backoff"`
	QueueEstimatedSlot      time.Duration `mapstructure:"queue_estimated_slot"      yaml:"queue_estimated_slot"` // T_queue, default 120s
	FallbackEnqueueDelay    time.Duration `mapstructure:"fallback_enqueue_delay"    yaml:"fallback_enqueue_delay"`
}

// QueueConfig controls the durable job queue.
type QueueConfig struct {
	Workers     int           `mapstructure:"workers"      yaml:"workers"`
	DedupWindow time.Duration `mapstructure:"dedup_window" yaml:"dedup_window"`
}

// CacheConfig controls the ResolutionCache (§3, §6).
type CacheConfig struct {
	TTL             time.Duration `mapstructure:"ttl"              yaml:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
}

// StorageConfig controls the Snapshot Store / Repository backend (C1).
type StorageConfig struct {
	Type     string `mapstructure:"type"      yaml:"type"` // "memory" or "mongo"
	MongoURI string `mapstructure:"mongo_uri" yaml:"mongo_uri"`
	Database string `mapstructure:"database"  yaml:"database"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig controls the Prometheus metrics endpoint (C12).
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// FeatureConfig holds the feature gates named in spec §6.
type FeatureConfig struct {
	EnableFreshSnapshotRequirement bool `mapstructure:"enable_fresh_snapshot_requirement" yaml:"enable_fresh_snapshot_requirement"`
	EnableRealTimeUpdates          bool `mapstructure:"enable_real_time_updates"          yaml:"enable_real_time_updates"`
	EnableIntelligentCaching       bool `mapstructure:"enable_intelligent_caching"        yaml:"enable_intelligent_caching"`
	ComparativeReportsRollout      int  `mapstructure:"comparative_reports_rollout"       yaml:"comparative_reports_rollout"` // 0-100
}

// DefaultConfig returns a Config populated with the defaults named
// throughout spec §6.
func DefaultConfig() *Config {
	return &Config{
		Capture: CaptureConfig{
			Timeout:              30 * time.Second,
			MaxRetries:           3,
			RetryBackoffBase:     1 * time.Second,
			RetryBackoffCap:      10 * time.Second,
			BlockedResourceTypes: []string{"image", "font", "media"},
		},
		Governor: GovernorConfig{
			MaxConcurrentPerProject: 5,
			MaxConcurrentGlobal:     20,
			DomainThrottleInterval:  10 * time.Second,
			DailySnapshotLimit:      1000,
			HourlySnapshotLimit:     100,
			CircuitBreakerThreshold: 0.5,
			CircuitBreakerWindow:    5 * time.Minute,
			QueueWaitTimeout:        60 * time.Second,
		},
		Freshness: FreshnessConfig{
			FreshWindow: 24 * time.Hour,
			StaleAfter:  7 * 24 * time.Hour,
		},
		Completeness: CompletenessConfig{
			MinimumScore: 70,
		},
		Collection: CollectionConfig{
			SnapshotCaptureTimeout:   30 * time.Second,
			TotalGenerationTimeout:   60 * time.Second,
			AcceptOlderValidSnapshot: true,
		},
		Analysis: AnalysisConfig{
			Timeout:                45 * time.Second,
			MaxRetries:             3,
			RetryBackoffBase:       1 * time.Second,
			FocusAreas:             []string{"pricing", "features", "positioning"},
			Depth:                  "standard",
			IncludeRecommendations: true,
		},
		LLM: LLMConfig{
			Provider: "ollama",
			Endpoint: "http://localhost:11434",
			Model:    "llama3",
			Timeout:  45 * time.Second,
		},
		Report: ReportConfig{
			MinimumForFull:    70,
			DefaultTemplateID: "standard_comparative_v1",
			DefaultFormat:     "markdown",
		},
		Coordinator: CoordinatorConfig{
			MaxConcurrentProcessing: 5,
			ImmediateTimeout:        45 * time.Second,
			ImmediateReserve:        5 * time.Second,
			FallbackToQueue:         true,
			GracefulDegradation:     true,
			QueueRetryAttempts:      3,
			QueueRetryBackoff:       2 * time.Second,
			QueueEstimatedSlot:      120 * time.Second,
			FallbackEnqueueDelay:    1 * time.Second,
		},
		Queue: QueueConfig{
			Workers:     2,
			DedupWindow: 30 * time.Second,
		},
		Cache: CacheConfig{
			TTL:             1 * time.Hour,
			CleanupInterval: 10 * time.Minute,
		},
		Storage: StorageConfig{
			Type:     "memory",
			Database: "corewatch",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Features: FeatureConfig{
			EnableFreshSnapshotRequirement: false,
			EnableRealTimeUpdates:          true,
			EnableIntelligentCaching:       true,
			ComparativeReportsRollout:      100,
		},
	}
}
