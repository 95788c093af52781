// SPDX-License-Identifier: MIT

// Package config assembles the corsgate runtime configuration from the
// environment and owns the origin access list file: YAML parsing,
// validation, atomic persistence and fsnotify-driven hot reload.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/Seongyun-Jeong/chromium-etc-sub005/internal/cors"
)

// Cache backend selectors for the preflight result cache.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheBadger = "badger"
	CacheNone   = "none"
)

// Config is the full corsgate runtime configuration. Everything comes
// from CORSGATE_* environment variables except the origin access list,
// which lives in its own YAML file so it can be hot reloaded.
type Config struct {
	ListenAddr string
	LogLevel   string
	DataDir    string

	// AccessListPath points at the origin access list YAML file. Empty
	// disables the list (every request goes through the full CORS check).
	AccessListPath string

	// Trusted marks the gateway surface as a trusted caller: requests may
	// omit the initiator in no-cors and navigation modes and may carry a
	// client security state.
	Trusted bool

	PreflightCache           string
	PreflightCleanupInterval time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	BadgerPath string

	AuditEnabled    bool
	AuditDBPath     string
	AuditBufferSize int

	// FetchRateLimit caps fetch requests per client IP per minute. Zero
	// disables rate limiting.
	FetchRateLimit int

	// Private network access defaults applied at the factory level.
	PrivateNetworkPolicy cors.PrivateNetworkRequestPolicy
	ClientAddressSpace   cors.IPAddressSpace
	SecureContext        bool

	TelemetryEnabled  bool
	TelemetryExporter string
	TelemetryEndpoint string
	TelemetrySampling float64
	Environment       string

	ShutdownTimeout time.Duration
}

// FromEnv builds a Config from CORSGATE_* environment variables with
// sensible defaults for local runs.
func FromEnv() Config {
	dataDir := ParseString("CORSGATE_DATA_DIR", "./data")
	return Config{
		ListenAddr:     ParseString("CORSGATE_LISTEN", ":8080"),
		LogLevel:       ParseString("CORSGATE_LOG_LEVEL", "info"),
		DataDir:        dataDir,
		AccessListPath: ParseString("CORSGATE_ACCESS_LIST", ""),
		Trusted:        ParseBool("CORSGATE_TRUSTED", false),

		PreflightCache:           ParseString("CORSGATE_PREFLIGHT_CACHE", CacheMemory),
		PreflightCleanupInterval: ParseDuration("CORSGATE_PREFLIGHT_CLEANUP_INTERVAL", time.Minute),

		RedisAddr:     ParseString("CORSGATE_REDIS_ADDR", "localhost:6379"),
		RedisPassword: ParseString("CORSGATE_REDIS_PASSWORD", ""),
		RedisDB:       ParseInt("CORSGATE_REDIS_DB", 0),

		BadgerPath: ParseString("CORSGATE_BADGER_PATH", filepath.Join(dataDir, "preflight")),

		AuditEnabled:    ParseBool("CORSGATE_AUDIT_ENABLED", true),
		AuditDBPath:     ParseString("CORSGATE_AUDIT_DB", filepath.Join(dataDir, "audit.db")),
		AuditBufferSize: ParseInt("CORSGATE_AUDIT_BUFFER", 256),

		FetchRateLimit: ParseInt("CORSGATE_FETCH_RATE_LIMIT", 300),

		PrivateNetworkPolicy: cors.PrivateNetworkRequestPolicy(
			ParseString("CORSGATE_PRIVATE_NETWORK_POLICY", string(cors.PrivateNetworkAllow))),
		ClientAddressSpace: cors.IPAddressSpace(
			ParseString("CORSGATE_CLIENT_ADDRESS_SPACE", string(cors.AddressSpacePublic))),
		SecureContext: ParseBool("CORSGATE_SECURE_CONTEXT", true),

		TelemetryEnabled:  ParseBool("CORSGATE_OTEL_ENABLED", false),
		TelemetryExporter: ParseString("CORSGATE_OTEL_EXPORTER", "grpc"),
		TelemetryEndpoint: ParseString("CORSGATE_OTEL_ENDPOINT", "localhost:4317"),
		TelemetrySampling: ParseFloat("CORSGATE_OTEL_SAMPLING", 1.0),
		Environment:       ParseString("CORSGATE_ENVIRONMENT", "development"),

		ShutdownTimeout: ParseDuration("CORSGATE_SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

// Validate rejects configurations that would misbehave at runtime. It is
// called once at startup; a failing config aborts the daemon.
func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	switch c.PreflightCache {
	case CacheMemory, CacheRedis, CacheBadger, CacheNone:
	default:
		return fmt.Errorf("unknown preflight cache backend %q (supported: memory, redis, badger, none)", c.PreflightCache)
	}
	if c.PreflightCache == CacheRedis && c.RedisAddr == "" {
		return fmt.Errorf("redis preflight cache requires CORSGATE_REDIS_ADDR")
	}
	if c.PreflightCache == CacheBadger && c.BadgerPath == "" {
		return fmt.Errorf("badger preflight cache requires CORSGATE_BADGER_PATH")
	}
	switch c.PrivateNetworkPolicy {
	case cors.PrivateNetworkAllow, cors.PrivateNetworkWarn, cors.PrivateNetworkBlock,
		cors.PrivateNetworkPreflightWarn, cors.PrivateNetworkPreflightBlock:
	default:
		return fmt.Errorf("unknown private network policy %q", c.PrivateNetworkPolicy)
	}
	switch c.ClientAddressSpace {
	case cors.AddressSpaceUnknown, cors.AddressSpacePublic, cors.AddressSpacePrivate, cors.AddressSpaceLocal:
	default:
		return fmt.Errorf("unknown client address space %q", c.ClientAddressSpace)
	}
	if c.FetchRateLimit < 0 {
		return fmt.Errorf("fetch rate limit must not be negative")
	}
	if c.TelemetrySampling < 0 || c.TelemetrySampling > 1 {
		return fmt.Errorf("telemetry sampling rate must be within [0, 1]")
	}
	return nil
}

// ClientSecurityState builds the factory-level security state, or nil when
// the configured policy leaves private network access unrestricted.
func (c Config) ClientSecurityState() *cors.ClientSecurityState {
	if c.PrivateNetworkPolicy == "" || c.PrivateNetworkPolicy == cors.PrivateNetworkAllow {
		return nil
	}
	return &cors.ClientSecurityState{
		PrivateNetworkRequestPolicy: c.PrivateNetworkPolicy,
		ClientAddressSpace:          c.ClientAddressSpace,
		IsSecureContext:             c.SecureContext,
	}
}
