package config

import (
	"fmt"
	"net/url"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Governor.MaxConcurrentPerProject < 1 {
		return fmt.Errorf("governor.max_concurrent_per_project must be >= 1, got %d", cfg.Governor.MaxConcurrentPerProject)
	}
	if cfg.Governor.MaxConcurrentGlobal < cfg.Governor.MaxConcurrentPerProject {
		return fmt.Errorf("governor.max_concurrent_global must be >= max_concurrent_per_project")
	}
	if cfg.Governor.DomainThrottleInterval < 0 {
		return fmt.Errorf("governor.domain_throttle_interval must be >= 0")
	}
	if cfg.Governor.CircuitBreakerThreshold <= 0 || cfg.Governor.CircuitBreakerThreshold > 1 {
		return fmt.Errorf("governor.circuit_breaker_error_threshold must be in (0,1], got %f", cfg.Governor.CircuitBreakerThreshold)
	}

	if cfg.Capture.Timeout <= 0 {
		return fmt.Errorf("capture.timeout must be > 0")
	}
	if cfg.Capture.MaxRetries < 0 {
		return fmt.Errorf("capture.max_retries must be >= 0, got %d", cfg.Capture.MaxRetries)
	}

	if cfg.Freshness.FreshWindow <= 0 {
		return fmt.Errorf("freshness.fresh_window must be > 0")
	}
	if cfg.Freshness.StaleAfter < cfg.Freshness.FreshWindow {
		return fmt.Errorf("freshness.stale_after must be >= fresh_window")
	}

	if cfg.Completeness.MinimumScore < 0 || cfg.Completeness.MinimumScore > 100 {
		return fmt.Errorf("completeness.minimum_score must be 0-100, got %f", cfg.Completeness.MinimumScore)
	}

	if cfg.Collection.TotalGenerationTimeout <= 0 {
		return fmt.Errorf("collection.total_generation_timeout must be > 0")
	}

	if cfg.Coordinator.MaxConcurrentProcessing < 1 {
		return fmt.Errorf("coordinator.max_concurrent_processing must be >= 1, got %d", cfg.Coordinator.MaxConcurrentProcessing)
	}
	if cfg.Coordinator.ImmediateTimeout <= cfg.Coordinator.ImmediateReserve {
		return fmt.Errorf("coordinator.immediate_timeout must be greater than immediate_reserve")
	}

	validStorageTypes := map[string]bool{"memory": true, "mongo": true}
	if !validStorageTypes[cfg.Storage.Type] {
		return fmt.Errorf("storage.type %q is not supported (valid: memory, mongo)", cfg.Storage.Type)
	}
	if cfg.Storage.Type == "mongo" && cfg.Storage.MongoURI == "" {
		return fmt.Errorf("storage.mongo_uri is required when storage.type is 'mongo'")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	if cfg.Features.ComparativeReportsRollout < 0 || cfg.Features.ComparativeReportsRollout > 100 {
		return fmt.Errorf("features.comparative_reports_rollout must be 0-100, got %d", cfg.Features.ComparativeReportsRollout)
	}

	return nil
}

// ValidateURL checks if a URL string is valid for capture (§4.2: "URL
// must be absolute").
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
