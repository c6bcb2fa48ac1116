// Package config provides application configuration through environment variables.
//
// Configuration never carries secret material: passphrases and provider credentials are
// read interactively or through the local API, and Validate rejects KMS URIs that embed
// key material.
package config

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/allisson/go-env"
	validation "github.com/jellydator/validation"
	"github.com/joho/godotenv"

	apperrors "github.com/allisson/capvault/internal/errors"
)

// Vault storage backends.
const (
	StoreFile = "file"
	StoreSQL  = "sql"
)

// Private key wrap modes.
const (
	WrapModePassphrase = "passphrase"
	WrapModeKMS        = "kms"
)

// Config holds all application configuration.
type Config struct {
	// DataDir is the root directory for vault data and default manifests.
	DataDir string

	// ServerHost is the host address the local API will bind to.
	ServerHost string
	// ServerPort is the port number the local API will listen on.
	ServerPort int

	// DBDriver is the database driver to use ("postgres", "mysql" or "sqlite3").
	DBDriver string
	// DBConnectionString is the connection string for the database.
	DBConnectionString string
	// DBMaxOpenConnections is the maximum number of open connections to the database.
	DBMaxOpenConnections int
	// DBMaxIdleConnections is the maximum number of idle connections in the database pool.
	DBMaxIdleConnections int
	// DBConnMaxLifetime is the maximum amount of time a connection may be reused.
	DBConnMaxLifetime time.Duration

	// LogLevel is the logging level (e.g., "debug", "info", "warn", "error").
	LogLevel string

	// VaultStore selects the credential store backend ("file" or "sql").
	VaultStore string
	// VaultDEKAlgorithm is the AEAD used for credential payloads.
	VaultDEKAlgorithm string
	// VaultWrapMode selects how the private key is wrapped at rest ("passphrase" or "kms").
	VaultWrapMode string
	// VaultIdleTimeout locks the vault after this long without private key use. Zero disables it.
	VaultIdleTimeout time.Duration
	// VaultScryptWorkFactor is the age scrypt work factor used to wrap the private key.
	VaultScryptWorkFactor int

	// UnlockRateLimitPerMinute is the number of unlock attempts allowed per minute.
	UnlockRateLimitPerMinute float64
	// UnlockBurst is the burst size for unlock attempts.
	UnlockBurst int

	// KMSKeyURI is the gocloud.dev secrets URI used when VaultWrapMode is "kms".
	KMSKeyURI string

	// ManifestPath is a YAML file or a directory of YAML files describing capabilities.
	ManifestPath string
	// RoutingTablePath is the YAML routing table.
	RoutingTablePath string
	// DefaultCapability is used when the routing table does not name a default.
	DefaultCapability string
	// WatchManifests enables hot reload of the manifest and routing table.
	WatchManifests bool

	// DispatchTimeout is the wall-clock budget of one dispatch including retries.
	DispatchTimeout time.Duration
	// DispatchAttemptTimeout bounds a single invocation attempt.
	DispatchAttemptTimeout time.Duration
	// DispatchMaxAttempts is the number of attempts made for transient failures.
	DispatchMaxAttempts int
	// DispatchBaseBackoff is the first retry delay; it doubles on every retry.
	DispatchBaseBackoff time.Duration
	// HealthProbeTimeout bounds one capability health probe.
	HealthProbeTimeout time.Duration

	// RateLimitEnabled indicates whether rate limiting for the local API is enabled.
	RateLimitEnabled bool
	// RateLimitRequestsPerSec is the number of requests allowed per second.
	RateLimitRequestsPerSec float64
	// RateLimitBurst is the burst size for API rate limiting.
	RateLimitBurst int

	// CORSEnabled indicates whether CORS is enabled.
	CORSEnabled bool
	// CORSAllowOrigins is a comma-separated list of allowed origins for CORS.
	CORSAllowOrigins string

	// MetricsEnabled indicates whether metrics collection is enabled.
	MetricsEnabled bool
	// MetricsNamespace is the namespace for the application metrics.
	MetricsNamespace string
	// MetricsPort is the port number for the metrics server.
	MetricsPort int
}

// Load loads configuration from environment variables and .env file.
func Load() *Config {
	// Try to load .env file recursively
	loadDotEnv()

	dataDir := env.GetString("DATA_DIR", defaultDataDir())

	return &Config{
		DataDir: dataDir,

		// Server configuration
		ServerHost: env.GetString("SERVER_HOST", "127.0.0.1"),
		ServerPort: env.GetInt("SERVER_PORT", 8080),

		// Database configuration
		DBDriver: env.GetString("DB_DRIVER", "sqlite3"),
		DBConnectionString: env.GetString(
			"DB_CONNECTION_STRING",
			"file:"+filepath.Join(dataDir, "capvault.db")+"?_foreign_keys=on",
		),
		DBMaxOpenConnections: env.GetInt("DB_MAX_OPEN_CONNECTIONS", 25),
		DBMaxIdleConnections: env.GetInt("DB_MAX_IDLE_CONNECTIONS", 5),
		DBConnMaxLifetime:    env.GetDuration("DB_CONN_MAX_LIFETIME", 5, time.Minute),

		// Logging
		LogLevel: env.GetString("LOG_LEVEL", "info"),

		// Vault
		VaultStore:            env.GetString("VAULT_STORE", StoreFile),
		VaultDEKAlgorithm:     env.GetString("VAULT_DEK_ALGORITHM", "aes-gcm"),
		VaultWrapMode:         env.GetString("VAULT_WRAP_MODE", WrapModePassphrase),
		VaultIdleTimeout:      env.GetDuration("VAULT_IDLE_TIMEOUT_MINUTES", 15, time.Minute),
		VaultScryptWorkFactor: env.GetInt("VAULT_SCRYPT_WORK_FACTOR", 18),

		UnlockRateLimitPerMinute: env.GetFloat64("UNLOCK_RATE_LIMIT_PER_MINUTE", 5.0),
		UnlockBurst:              env.GetInt("UNLOCK_BURST", 3),

		KMSKeyURI: env.GetString("KMS_KEY_URI", ""),

		// Capabilities and routing
		ManifestPath:      env.GetString("MANIFEST_PATH", filepath.Join(dataDir, "capabilities.yaml")),
		RoutingTablePath:  env.GetString("ROUTING_TABLE_PATH", filepath.Join(dataDir, "routing.yaml")),
		DefaultCapability: env.GetString("DEFAULT_CAPABILITY", "chat-default"),
		WatchManifests:    env.GetBool("WATCH_MANIFESTS", true),

		// Dispatch
		DispatchTimeout:        env.GetDuration("DISPATCH_TIMEOUT_SECONDS", 120, time.Second),
		DispatchAttemptTimeout: env.GetDuration("DISPATCH_ATTEMPT_TIMEOUT_SECONDS", 60, time.Second),
		DispatchMaxAttempts:    env.GetInt("DISPATCH_MAX_ATTEMPTS", 3),
		DispatchBaseBackoff:    env.GetDuration("DISPATCH_BASE_BACKOFF_MS", 250, time.Millisecond),
		HealthProbeTimeout:     env.GetDuration("HEALTH_PROBE_TIMEOUT_SECONDS", 5, time.Second),

		// Rate Limiting
		RateLimitEnabled:        env.GetBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequestsPerSec: env.GetFloat64("RATE_LIMIT_REQUESTS_PER_SEC", 10.0),
		RateLimitBurst:          env.GetInt("RATE_LIMIT_BURST", 20),

		// CORS
		CORSEnabled:      env.GetBool("CORS_ENABLED", false),
		CORSAllowOrigins: env.GetString("CORS_ALLOW_ORIGINS", ""),

		// Metrics
		MetricsEnabled:   env.GetBool("METRICS_ENABLED", true),
		MetricsNamespace: env.GetString("METRICS_NAMESPACE", "capvault"),
		MetricsPort:      env.GetInt("METRICS_PORT", 8081),
	}
}

// Validate checks the configuration for values the application cannot start with.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.DataDir, validation.Required),
		validation.Field(&c.ServerHost, validation.Required, validation.By(requireLoopbackHost)),
		validation.Field(&c.VaultStore, validation.Required, validation.In(StoreFile, StoreSQL)),
		validation.Field(&c.VaultDEKAlgorithm, validation.In("aes-gcm", "chacha20-poly1305")),
		validation.Field(&c.VaultWrapMode, validation.In(WrapModePassphrase, WrapModeKMS)),
		validation.Field(&c.KMSKeyURI,
			validation.When(c.VaultWrapMode == WrapModeKMS, validation.Required),
			validation.By(rejectInlineKeyMaterial),
		),
		validation.Field(&c.DBDriver,
			validation.When(c.VaultStore == StoreSQL, validation.Required,
				validation.In("postgres", "mysql", "sqlite3")),
		),
		validation.Field(&c.VaultScryptWorkFactor, validation.Min(10), validation.Max(30)),
		validation.Field(&c.DispatchMaxAttempts, validation.Required, validation.Min(1)),
		validation.Field(&c.DispatchTimeout, validation.Min(time.Second)),
		validation.Field(&c.DispatchAttemptTimeout, validation.Min(time.Second)),
		validation.Field(&c.UnlockBurst, validation.Required, validation.Min(1)),
	)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
	}
	return nil
}

// VaultDir is where the file store keeps keyring generations and credential blobs.
func (c *Config) VaultDir() string {
	return filepath.Join(c.DataDir, "vault")
}

// GetGinMode returns the appropriate Gin mode based on log level.
func (c *Config) GetGinMode() string {
	switch c.LogLevel {
	case "debug":
		return "debug"
	default:
		return "release"
	}
}

// requireLoopbackHost keeps the unauthenticated API off the network: SERVER_HOST must
// be localhost or a loopback IP.
func requireLoopbackHost(value any) error {
	host, _ := value.(string)
	ip := net.ParseIP(strings.Trim(host, "[]"))
	if strings.EqualFold(host, "localhost") || (ip != nil && ip.IsLoopback()) {
		return nil
	}
	return validation.NewError("validation_loopback_host", "must be localhost or a loopback address")
}

// rejectInlineKeyMaterial refuses KMS URIs that carry the key itself.
func rejectInlineKeyMaterial(value any) error {
	uri, _ := value.(string)
	if strings.HasPrefix(uri, "base64key://") {
		return validation.NewError(
			"validation_kms_inline_key",
			"must reference a key service, not embed key material",
		)
	}
	return nil
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "capvault")
	}
	return ".capvault"
}

// loadDotEnv searches for a .env file recursively from the current directory
// up to the root directory and loads it if found.
func loadDotEnv() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	dir := cwd
	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
}
