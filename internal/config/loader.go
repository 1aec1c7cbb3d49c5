package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file and environment.
// Priority (highest to lowest): env vars > config file > defaults.
// CLI flags are not bound here; callers apply them to the returned Config.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	// Set defaults from struct
	setDefaults(v, cfg)

	// Environment variable support
	v.SetEnvPrefix("COREWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Search default locations
		v.SetConfigName("corewatch")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".corewatch"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay if not explicitly specified
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	return Load(path)
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("capture.timeout", cfg.Capture.Timeout)
	v.SetDefault("capture.max_retries", cfg.Capture.MaxRetries)
	v.SetDefault("capture.retry_backoff_base", cfg.Capture.RetryBackoffBase)
	v.SetDefault("capture.retry_backoff_cap", cfg.Capture.RetryBackoffCap)
	v.SetDefault("capture.blocked_resource_types", cfg.Capture.BlockedResourceTypes)

	v.SetDefault("governor.max_concurrent_per_project", cfg.Governor.MaxConcurrentPerProject)
	v.SetDefault("governor.max_concurrent_global", cfg.Governor.MaxConcurrentGlobal)
	v.SetDefault("governor.domain_throttle_interval", cfg.Governor.DomainThrottleInterval)
	v.SetDefault("governor.daily_snapshot_limit", cfg.Governor.DailySnapshotLimit)
	v.SetDefault("governor.hourly_snapshot_limit", cfg.Governor.HourlySnapshotLimit)
	v.SetDefault("governor.circuit_breaker_error_threshold", cfg.Governor.CircuitBreakerThreshold)
	v.SetDefault("governor.circuit_breaker_time_window", cfg.Governor.CircuitBreakerWindow)
	v.SetDefault("governor.queue_wait_timeout", cfg.Governor.QueueWaitTimeout)

	v.SetDefault("freshness.fresh_window", cfg.Freshness.FreshWindow)
	v.SetDefault("freshness.stale_after", cfg.Freshness.StaleAfter)

	v.SetDefault("completeness.minimum_score", cfg.Completeness.MinimumScore)

	v.SetDefault("collection.snapshot_capture_timeout", cfg.Collection.SnapshotCaptureTimeout)
	v.SetDefault("collection.total_generation_timeout", cfg.Collection.TotalGenerationTimeout)
	v.SetDefault("collection.accept_older_valid_snapshot", cfg.Collection.AcceptOlderValidSnapshot)

	v.SetDefault("analysis.timeout", cfg.Analysis.Timeout)
	v.SetDefault("analysis.max_retries", cfg.Analysis.MaxRetries)
	v.SetDefault("analysis.retry_backoff_base", cfg.Analysis.RetryBackoffBase)
	v.SetDefault("analysis.focus_areas", cfg.Analysis.FocusAreas)
	v.SetDefault("analysis.depth", cfg.Analysis.Depth)
	v.SetDefault("analysis.include_recommendations", cfg.Analysis.IncludeRecommendations)

	v.SetDefault("llm.provider", cfg.LLM.Provider)
	v.SetDefault("llm.endpoint", cfg.LLM.Endpoint)
	v.SetDefault("llm.model", cfg.LLM.Model)
	v.SetDefault("llm.timeout", cfg.LLM.Timeout)

	v.SetDefault("report.minimum_for_full", cfg.Report.MinimumForFull)
	v.SetDefault("report.default_template_id", cfg.Report.DefaultTemplateID)
	v.SetDefault("report.default_format", cfg.Report.DefaultFormat)

	v.SetDefault("coordinator.max_concurrent_processing", cfg.Coordinator.MaxConcurrentProcessing)
	v.SetDefault("coordinator.immediate_timeout", cfg.Coordinator.ImmediateTimeout)
	v.SetDefault("coordinator.immediate_reserve", cfg.Coordinator.ImmediateReserve)
	v.SetDefault("coordinator.fallback_to_queue", cfg.Coordinator.FallbackToQueue)
	v.SetDefault("coordinator.graceful_degradation", cfg.Coordinator.GracefulDegradation)
	v.SetDefault("coordinator.queue_retry_attempts", cfg.Coordinator.QueueRetryAttempts)
	v.SetDefault("coordinator.queue_retry_backoff", cfg.Coordinator.QueueRetryBackoff)
	v.SetDefault("coordinator.queue_estimated_slot", cfg.Coordinator.QueueEstimatedSlot)
	v.SetDefault("coordinator.fallback_enqueue_delay", cfg.Coordinator.FallbackEnqueueDelay)

	v.SetDefault("queue.workers", cfg.Queue.Workers)
	v.SetDefault("queue.dedup_window", cfg.Queue.DedupWindow)

	v.SetDefault("cache.ttl", cfg.Cache.TTL)
	v.SetDefault("cache.cleanup_interval", cfg.Cache.CleanupInterval)

	v.SetDefault("storage.type", cfg.Storage.Type)
	v.SetDefault("storage.mongo_uri", cfg.Storage.MongoURI)
	v.SetDefault("storage.database", cfg.Storage.Database)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)

	v.SetDefault("features.enable_fresh_snapshot_requirement", cfg.Features.EnableFreshSnapshotRequirement)
	v.SetDefault("features.enable_real_time_updates", cfg.Features.EnableRealTimeUpdates)
	v.SetDefault("features.enable_intelligent_caching", cfg.Features.EnableIntelligentCaching)
	v.SetDefault("features.comparative_reports_rollout", cfg.Features.ComparativeReportsRollout)
}
