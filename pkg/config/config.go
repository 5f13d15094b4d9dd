package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// Record store backends
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// Blob store backends
const (
	BlobFilesystem = "filesystem"
	BlobS3         = "s3"
)

// Config holds all configuration for the LinkVault server
type Config struct {
	// =============================================================================
	// GROUP 1: HTTP SERVER SETTINGS
	// =============================================================================
	Port         string        // HTTP server port
	Host         string        // HTTP server host/bind address
	BaseURL      string        // Public prefix used when building share links
	ReadTimeout  time.Duration // HTTP read timeout
	WriteTimeout time.Duration // HTTP write timeout
	IdleTimeout  time.Duration // HTTP keep-alive idle timeout

	// =============================================================================
	// GROUP 1.1: TLS/HTTPS SETTINGS
	// =============================================================================
	EnableTLS       bool     // Enable HTTPS with automatic Let's Encrypt certificates
	TLSPort         string   // HTTPS server port (default: 443)
	TLSCacheDir     string   // Directory to cache TLS certificates
	TLSHosts        []string // Allowed hostnames for TLS certificates (required for production)
	EnableHTTPSOnly bool     // Redirect all HTTP traffic to HTTPS

	// =============================================================================
	// GROUP 2: CONTENT SETTINGS
	// =============================================================================
	DefaultExpiry     time.Duration // Lifetime of links created without an expiry
	MaxFileSize       int64         // Maximum upload size in bytes
	MaxTextSize       int           // Maximum text payload in bytes
	AllowedExtensions []string      // Accepted file extensions, lower case with dot

	// =============================================================================
	// GROUP 3: RECORD STORAGE SETTINGS
	// =============================================================================
	RecordBackend    string        // badger or sqlite
	DataDir          string        // Directory for BadgerDB data files
	SQLitePath       string        // SQLite database file
	BackupDir        string        // Directory for backup files
	BackupInterval   time.Duration // How often to create backups
	MaxBackups       int           // Maximum number of backups to retain
	EnableAdaptiveGC bool          // Enable adaptive garbage collection
	GCInterval       time.Duration // Value-log garbage collection interval
	GCThreshold      float64       // Minimum ratio of reclaimable space to trigger GC (0.0-1.0)
	PerformanceMode  bool          // Enable BadgerDB performance optimizations
	CacheSize        int64         // In-memory cache size in bytes for BadgerDB

	// =============================================================================
	// GROUP 4: BLOB STORAGE SETTINGS
	// =============================================================================
	BlobBackend      string // filesystem or s3
	UploadDir        string // Directory for uploaded files (filesystem backend)
	S3Bucket         string
	S3Region         string
	S3Endpoint       string // Custom endpoint for S3-compatible stores
	S3Prefix         string // Key prefix inside the bucket
	S3ForcePathStyle bool

	// =============================================================================
	// GROUP 5: EXPIRY SWEEP SETTINGS
	// =============================================================================
	SweepInterval  time.Duration // How often expired content is purged
	SweepBatchSize int           // Records loaded per sweep page

	// =============================================================================
	// GROUP 6: AUTHENTICATION & AUTHORIZATION SETTINGS
	// =============================================================================
	APIKey         string        // API key for the admin API; the admin API is off when empty
	AllowedOrigins []string      // CORS allowed origins
	AllowedIPs     []string      // IP allowlist for network-level security
	TokenSecret    string        // HMAC key for password proof tokens; random when empty
	TokenTTL       time.Duration // Lifetime of a password proof
	BcryptCost     int           // Work factor for password hashes

	// =============================================================================
	// GROUP 7: REQUEST PROCESSING SETTINGS
	// =============================================================================
	RequestTimeout     time.Duration // Timeout for individual requests
	ShutdownTimeout    time.Duration // Graceful shutdown timeout
	MaxPaginationLimit int           // Maximum page size for admin listing

	// =============================================================================
	// GROUP 8: RATE LIMITING SETTINGS
	// =============================================================================
	ThrottleLimit          int           // Maximum concurrent requests
	ThrottleBacklogLimit   int           // Maximum queued requests
	ThrottleBacklogTimeout time.Duration // Timeout for queued requests

	EchoRateLimit          float64       // Requests per second per client IP
	EchoBurstLimit         int           // Burst per client IP
	EchoRateLimitExpiresIn time.Duration // Idle time before a client's limiter is dropped

	// =============================================================================
	// GROUP 9: COMPRESSION, SECURITY & DEBUGGING SETTINGS
	// =============================================================================
	EnableCompression bool              // Enable response compression
	CompressionLevel  int               // Compression level (1-9)
	EnableProfiler    bool              // Enable pprof endpoints
	EnableMetrics     bool              // Expose /metrics
	SecurityHeaders   map[string]string // Custom security headers

	// =============================================================================
	// GROUP 10: LOGGING SETTINGS
	// =============================================================================
	LogMode   string // high-performance, balanced or debug
	LogLevel  string // Overrides the level of the mode when set
	LogToFile bool   // Write to LogDir instead of stdout/stderr
	LogDir    string

	EnableRequestLogging    bool // Log every request
	EnableManagementLogging bool // Log admin operations
	EnableSecurityLogging   bool // Log denied and unauthorized requests
	EnableErrorLogging      bool // Control error-level logging in handlers
	EnableWarnLogging       bool // Control warning-level logging in handlers
	EnableValidationLogging bool // Control validation error logging
}

// Load loads configuration from environment variables
func Load() *Config {
	// Attempt to load .env file but proceed if not found
	godotenv.Load()

	config := &Config{
		// Server settings
		Port:         env("PORT", "8081"),
		Host:         env("HOST", "0.0.0.0"),
		BaseURL:      strings.TrimRight(env("BASE_URL", ""), "/"),
		ReadTimeout:  envDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout: envDuration("WRITE_TIMEOUT", 2*time.Minute), // downloads stream up to MAX_FILE_SIZE
		IdleTimeout:  envDuration("IDLE_TIMEOUT", 2*time.Minute),

		// TLS/HTTPS settings
		EnableTLS:       envBool("ENABLE_TLS", false),
		TLSPort:         env("TLS_PORT", "443"),
		TLSCacheDir:     env("TLS_CACHE_DIR", "./certs"),
		TLSHosts:        envStringSlice("TLS_HOSTS", []string{}), // Empty means allow any host (development only)
		EnableHTTPSOnly: envBool("ENABLE_HTTPS_ONLY", false),

		// Content settings
		DefaultExpiry:     envDuration("DEFAULT_EXPIRY", 10*time.Minute),
		MaxFileSize:       envInt64("MAX_FILE_SIZE", 15*1024*1024),
		MaxTextSize:       envInt("MAX_TEXT_SIZE", 1024*1024),
		AllowedExtensions: normalizeExtensions(envStringSlice("ALLOWED_EXTENSIONS", []string{".pdf", ".jpg", ".jpeg", ".png", ".docx"})),

		// Record storage settings
		RecordBackend:    strings.ToLower(env("RECORD_BACKEND", BackendBadger)),
		DataDir:          env("DATA_DIR", "./data"),
		SQLitePath:       env("SQLITE_PATH", "./data/linkvault.db"),
		BackupDir:        env("BACKUP_DIR", "./backups"),
		BackupInterval:   envDuration("BACKUP_INTERVAL", 6*time.Hour),
		MaxBackups:       envInt("MAX_BACKUPS", 7),
		EnableAdaptiveGC: envBool("ENABLE_ADAPTIVE_GC", false),
		GCInterval:       envDuration("GC_INTERVAL", 5*time.Minute),
		GCThreshold:      envFloat64("GC_THRESHOLD", 0.3),
		PerformanceMode:  envBool("PERFORMANCE_MODE", true),
		CacheSize:        envInt64("CACHE_SIZE", 64<<20), // Default 64MB cache

		// Blob storage settings
		BlobBackend:      strings.ToLower(env("BLOB_BACKEND", BlobFilesystem)),
		UploadDir:        env("UPLOAD_DIR", "./uploads"),
		S3Bucket:         env("S3_BUCKET", ""),
		S3Region:         env("S3_REGION", "us-east-1"),
		S3Endpoint:       env("S3_ENDPOINT", ""),
		S3Prefix:         env("S3_PREFIX", "uploads"),
		S3ForcePathStyle: envBool("S3_FORCE_PATH_STYLE", false),

		// Sweep settings
		SweepInterval:  envDuration("SWEEP_INTERVAL", time.Minute),
		SweepBatchSize: envInt("SWEEP_BATCH_SIZE", 256),

		// Security settings
		APIKey:         env("API_KEY", ""),
		AllowedOrigins: envStringSlice("ALLOWED_ORIGINS", []string{"*"}),
		AllowedIPs:     envStringSlice("ALLOWED_IPS", []string{}), // Empty means no IP restrictions
		TokenSecret:    env("TOKEN_SECRET", ""),
		TokenTTL:       envDuration("TOKEN_TTL", 15*time.Minute),
		BcryptCost:     envInt("BCRYPT_COST", bcrypt.DefaultCost),

		// Request processing settings
		RequestTimeout:     envDuration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout:    envDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxPaginationLimit: envInt("MAX_PAGINATION_LIMIT", 1000),

		// Rate limiting settings
		ThrottleLimit:          envInt("THROTTLE_LIMIT", 1000),
		ThrottleBacklogLimit:   envInt("THROTTLE_BACKLOG_LIMIT", 50),
		ThrottleBacklogTimeout: envDuration("THROTTLE_BACKLOG_TIMEOUT", 30*time.Second),
		EchoRateLimit:          envFloat64("ECHO_RATE_LIMIT", 20),
		EchoBurstLimit:         envInt("ECHO_BURST_LIMIT", 40),
		EchoRateLimitExpiresIn: envDuration("ECHO_RATE_LIMIT_EXPIRES_IN", 3*time.Minute),

		// Compression & security settings
		EnableCompression: envBool("ENABLE_COMPRESSION", true),
		CompressionLevel:  envInt("COMPRESSION_LEVEL", 5),
		EnableProfiler:    envBool("ENABLE_PROFILER", false),
		EnableMetrics:     envBool("ENABLE_METRICS", true),
		SecurityHeaders: envStringMap("SECURITY_HEADERS", map[string]string{
			"X-Content-Type-Options": "nosniff",
			"X-Frame-Options":        "DENY",
			"Referrer-Policy":        "no-referrer",
		}),

		// Logging settings
		LogMode:   strings.ToLower(env("LOG_MODE", "balanced")),
		LogLevel:  strings.ToLower(env("LOG_LEVEL", "")),
		LogToFile: envBool("LOG_TO_FILE", false),
		LogDir:    env("LOG_DIR", "./logs"),

		EnableRequestLogging:    envBool("ENABLE_REQUEST_LOGGING", false),
		EnableManagementLogging: envBool("ENABLE_MANAGEMENT_LOGGING", true),
		EnableSecurityLogging:   envBool("ENABLE_SECURITY_LOGGING", true),
		EnableErrorLogging:      envBool("ENABLE_ERROR_LOGGING", true),
		EnableWarnLogging:       envBool("ENABLE_WARN_LOGGING", true),
		EnableValidationLogging: envBool("ENABLE_VALIDATION_LOGGING", false), // disabled for performance
	}

	return config
}

// Validate rejects configurations the server cannot run with
func (cfg *Config) Validate() error {
	var errs []error

	switch cfg.RecordBackend {
	case BackendBadger:
		if cfg.DataDir == "" {
			errs = append(errs, errors.New("DATA_DIR is required for the badger backend"))
		}
	case BackendSQLite:
		if cfg.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown RECORD_BACKEND %q (want %s or %s)", cfg.RecordBackend, BackendBadger, BackendSQLite))
	}

	switch cfg.BlobBackend {
	case BlobFilesystem:
		if cfg.UploadDir == "" {
			errs = append(errs, errors.New("UPLOAD_DIR is required for the filesystem blob backend"))
		}
	case BlobS3:
		if cfg.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET is required for the s3 blob backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown BLOB_BACKEND %q (want %s or %s)", cfg.BlobBackend, BlobFilesystem, BlobS3))
	}

	if cfg.MaxFileSize <= 0 {
		errs = append(errs, fmt.Errorf("MAX_FILE_SIZE must be positive, got %d", cfg.MaxFileSize))
	}
	if cfg.MaxTextSize <= 0 {
		errs = append(errs, fmt.Errorf("MAX_TEXT_SIZE must be positive, got %d", cfg.MaxTextSize))
	}
	if cfg.DefaultExpiry <= 0 {
		errs = append(errs, fmt.Errorf("DEFAULT_EXPIRY must be positive, got %v", cfg.DefaultExpiry))
	}
	if cfg.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("SWEEP_INTERVAL must be positive, got %v", cfg.SweepInterval))
	}
	if cfg.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("TOKEN_TTL must be positive, got %v", cfg.TokenTTL))
	}
	if cfg.TokenSecret != "" && len(cfg.TokenSecret) < 32 {
		errs = append(errs, errors.New("TOKEN_SECRET must be at least 32 bytes"))
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be within [%d, %d], got %d", bcrypt.MinCost, bcrypt.MaxCost, cfg.BcryptCost))
	}
	if cfg.GCThreshold <= 0 || cfg.GCThreshold >= 1 {
		errs = append(errs, fmt.Errorf("GC_THRESHOLD must be within (0, 1), got %v", cfg.GCThreshold))
	}
	if cfg.ThrottleLimit <= 0 {
		errs = append(errs, fmt.Errorf("THROTTLE_LIMIT must be positive, got %d", cfg.ThrottleLimit))
	}

	return errors.Join(errs...)
}

// AdminEnabled reports whether the /api/v1 admin routes are mounted
func (cfg *Config) AdminEnabled() bool {
	return cfg.APIKey != ""
}

// ShareLink builds the public URL of a record
func (cfg *Config) ShareLink(id string) string {
	return cfg.BaseURL + "/content/" + id
}

// DisplayConfiguration shows the current configuration
func (cfg *Config) DisplayConfiguration() {
	fmt.Println("⚙️  Configuration:")
	fmt.Printf("   Port: %s\n", cfg.Port)
	fmt.Printf("   Host: %s\n", cfg.Host)
	if cfg.BaseURL != "" {
		fmt.Printf("   Base URL: %s\n", cfg.BaseURL)
	}
	if cfg.EnableTLS {
		fmt.Printf("   TLS Port: %s\n", cfg.TLSPort)
		fmt.Printf("   TLS Cache Dir: %s\n", cfg.TLSCacheDir)
		if len(cfg.TLSHosts) > 0 {
			fmt.Printf("   TLS Hosts: %v\n", cfg.TLSHosts)
		} else {
			fmt.Printf("   TLS Hosts: Any (development mode)\n")
		}
		fmt.Printf("   HTTPS Only: %t\n", cfg.EnableHTTPSOnly)
	}

	fmt.Printf("\n📦 Content:\n")
	fmt.Printf("   Default Expiry: %v\n", cfg.DefaultExpiry)
	fmt.Printf("   Max File Size: %s\n", humanize.IBytes(uint64(cfg.MaxFileSize)))
	fmt.Printf("   Max Text Size: %s\n", humanize.IBytes(uint64(cfg.MaxTextSize)))
	fmt.Printf("   Allowed Extensions: %v\n", cfg.AllowedExtensions)

	fmt.Printf("\n💾 Storage:\n")
	fmt.Printf("   Record Backend: %s\n", cfg.RecordBackend)
	if cfg.RecordBackend == BackendSQLite {
		fmt.Printf("   SQLite Path: %s\n", cfg.SQLitePath)
	} else {
		fmt.Printf("   Data Directory: %s\n", cfg.DataDir)
		fmt.Printf("   GC Interval: %v (threshold %.2f, adaptive %t)\n", cfg.GCInterval, cfg.GCThreshold, cfg.EnableAdaptiveGC)
		fmt.Printf("   Performance Mode: %v\n", cfg.PerformanceMode)
		fmt.Printf("   Cache Size: %s\n", humanize.IBytes(uint64(cfg.CacheSize)))
	}
	fmt.Printf("   Backup Directory: %s\n", cfg.BackupDir)
	fmt.Printf("   Backup Interval: %v (keep %d)\n", cfg.BackupInterval, cfg.MaxBackups)
	fmt.Printf("   Blob Backend: %s\n", cfg.BlobBackend)
	if cfg.BlobBackend == BlobS3 {
		fmt.Printf("   S3 Bucket: %s/%s (%s)\n", cfg.S3Bucket, cfg.S3Prefix, cfg.S3Region)
	} else {
		fmt.Printf("   Upload Directory: %s\n", cfg.UploadDir)
	}
	fmt.Printf("   Sweep Interval: %v (batch %d)\n", cfg.SweepInterval, cfg.SweepBatchSize)

	fmt.Printf("\n🔐 Security & Authentication:\n")
	if cfg.AdminEnabled() {
		fmt.Printf("   Admin API: Enabled (X-API-Key)\n")
	} else {
		fmt.Printf("   Admin API: Disabled (no API_KEY)\n")
	}
	fmt.Printf("   Allowed Origins: %v\n", cfg.AllowedOrigins)
	if len(cfg.AllowedIPs) > 0 {
		fmt.Printf("   IP Allowlist: %v\n", cfg.AllowedIPs)
	} else {
		fmt.Printf("   IP Allowlist: All IPs allowed\n")
	}
	if cfg.TokenSecret == "" {
		fmt.Printf("   Token Secret: random per process (proofs do not survive restarts)\n")
	}
	fmt.Printf("   Token TTL: %v\n", cfg.TokenTTL)
	fmt.Printf("   Bcrypt Cost: %d\n", cfg.BcryptCost)

	fmt.Printf("\n⚡ Performance & Rate Limiting:\n")
	fmt.Printf("   Request Timeout: %v\n", cfg.RequestTimeout)
	fmt.Printf("   Shutdown Timeout: %v\n", cfg.ShutdownTimeout)
	fmt.Printf("   Throttle Limit: %d concurrent requests\n", cfg.ThrottleLimit)
	fmt.Printf("   Throttle Backlog: %d queued requests\n", cfg.ThrottleBacklogLimit)
	fmt.Printf("   Per-IP Rate: %.1f/s (burst %d)\n", cfg.EchoRateLimit, cfg.EchoBurstLimit)
	if cfg.EnableCompression {
		fmt.Printf("   Compression: Enabled (Level %d)\n", cfg.CompressionLevel)
	} else {
		fmt.Printf("   Compression: Disabled\n")
	}
	fmt.Printf("   Metrics: %t\n", cfg.EnableMetrics)
	fmt.Printf("   Profiler: %t\n", cfg.EnableProfiler)

	fmt.Printf("\n📝 Logging Configuration:\n")
	fmt.Printf("   Mode: %s\n", cfg.LogMode)
	if cfg.LogLevel != "" {
		fmt.Printf("   Level: %s\n", cfg.LogLevel)
	}
	fmt.Printf("   To File: %v\n", cfg.LogToFile)
	fmt.Printf("   Request Logging: %v\n", cfg.EnableRequestLogging)
	fmt.Printf("   Management Logging: %v\n", cfg.EnableManagementLogging)
	fmt.Printf("   Security Logging: %v\n", cfg.EnableSecurityLogging)
	fmt.Println()
}

// normalizeExtensions lower-cases entries and makes sure each starts with a dot
func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}

// Helper functions to get environment variables with defaults

func env(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func envInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func envInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
		// Accept human sizes such as "15MB"
		if size, err := humanize.ParseBytes(value); err == nil {
			return int64(size)
		}
	}
	return defaultValue
}

func envBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func envDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func envStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists {
		if value == "" {
			return defaultValue
		}
		// Parse comma-separated values
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

func envStringMap(key string, defaultValue map[string]string) map[string]string {
	if value, exists := os.LookupEnv(key); exists {
		if value == "" {
			return defaultValue
		}
		// Parse key=value,key2=value2 format
		result := make(map[string]string)
		pairs := strings.Split(value, ",")
		for _, pair := range pairs {
			if kv := strings.SplitN(strings.TrimSpace(pair), "=", 2); len(kv) == 2 {
				key := strings.TrimSpace(kv[0])
				val := strings.TrimSpace(kv[1])
				if key != "" {
					result[key] = val
				}
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

func envFloat64(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
