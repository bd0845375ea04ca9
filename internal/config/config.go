// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, credentials, the relay
// broker, streaming limits, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "support-relay")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// JWTConfig defines credential signing settings.
type JWTConfig struct {
	Secret string        // JWT_SECRET (>= 32 bytes)
	TTL    time.Duration // JWT_TTL
}

// RelayConfig selects the pub/sub broker shared by all instances.
type RelayConfig struct {
	Broker   string // RELAY_BROKER: memory|redis
	RedisURL string // REDIS_URL (required for redis)
}

// StreamConfig bounds the STOMP-over-WebSocket edge.
type StreamConfig struct {
	SendQueue        int           // WS_SEND_QUEUE: outbound frames buffered per session
	MaxDrops         int           // WS_MAX_DROPS: consecutive drops before a session is closed
	HandshakeTimeout time.Duration // WS_HANDSHAKE_TIMEOUT: deadline for the CONNECT frame
	PingInterval     time.Duration // WS_PING_INTERVAL
	PongWait         time.Duration // WS_PONG_WAIT
	WriteWait        time.Duration // WS_WRITE_WAIT
	MaxFrameBytes    int64         // WS_MAX_FRAME_BYTES
	SendRPS          float64       // WS_SEND_RPS: SEND frames per second per session
	SendBurst        int           // WS_SEND_BURST
}

// Relay broker kinds.
const (
	BrokerMemory = "memory"
	BrokerRedis  = "redis"
)

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	LogRedact      bool   // scrub PII from access logs
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DBPath          string // SQLite path
	MaxContentRunes int    // cap on a single chat message

	// Credentials, relay, stream
	JWT    JWTConfig
	Relay  RelayConfig
	Stream StreamConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		LogRedact:      getbool("LOG_REDACT", true),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath:          getenv("DB_PATH", "app.db"),
		MaxContentRunes: getint("MAX_CONTENT_RUNES", 4000),

		JWT: JWTConfig{
			Secret: os.Getenv("JWT_SECRET"),
			TTL:    getdur("JWT_TTL", 24*time.Hour),
		},
		Relay: RelayConfig{
			Broker:   strings.ToLower(getenv("RELAY_BROKER", BrokerMemory)),
			RedisURL: getenv("REDIS_URL", ""),
		},
		Stream: StreamConfig{
			SendQueue:        getint("WS_SEND_QUEUE", 256),
			MaxDrops:         getint("WS_MAX_DROPS", 32),
			HandshakeTimeout: getdur("WS_HANDSHAKE_TIMEOUT", 10*time.Second),
			PingInterval:     getdur("WS_PING_INTERVAL", 54*time.Second),
			PongWait:         getdur("WS_PONG_WAIT", 60*time.Second),
			WriteWait:        getdur("WS_WRITE_WAIT", 10*time.Second),
			MaxFrameBytes:    int64(getint("WS_MAX_FRAME_BYTES", 64<<10)),
			SendRPS:          getfloat("WS_SEND_RPS", 10),
			SendBurst:        getint("WS_SEND_BURST", 20),
		},

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "support-relay"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.MaxContentRunes <= 0 {
		return cfg, errors.New("MAX_CONTENT_RUNES must be > 0")
	}
	if len(cfg.JWT.Secret) < 32 {
		return cfg, errors.New("JWT_SECRET must be at least 32 bytes")
	}
	if cfg.JWT.TTL <= 0 {
		return cfg, errors.New("JWT_TTL must be > 0")
	}
	switch cfg.Relay.Broker {
	case BrokerMemory:
	case BrokerRedis:
		if strings.TrimSpace(cfg.Relay.RedisURL) == "" {
			return cfg, errors.New("REDIS_URL is required when RELAY_BROKER=redis")
		}
	default:
		return cfg, errors.New("RELAY_BROKER must be one of: memory, redis")
	}
	if cfg.Stream.SendQueue < 1 || cfg.Stream.MaxDrops < 1 {
		return cfg, errors.New("WS_SEND_QUEUE and WS_MAX_DROPS must be >= 1")
	}
	if cfg.Stream.HandshakeTimeout <= 0 || cfg.Stream.PongWait <= 0 || cfg.Stream.WriteWait <= 0 {
		return cfg, errors.New("stream timeouts must be positive durations")
	}
	if cfg.Stream.PingInterval <= 0 || cfg.Stream.PingInterval >= cfg.Stream.PongWait {
		return cfg, errors.New("WS_PING_INTERVAL must be > 0 and shorter than WS_PONG_WAIT")
	}
	if cfg.Stream.MaxFrameBytes <= 0 {
		return cfg, errors.New("WS_MAX_FRAME_BYTES must be > 0")
	}
	if cfg.Stream.SendRPS <= 0 || cfg.Stream.SendBurst < 1 {
		return cfg, errors.New("WS_SEND_RPS must be > 0 and WS_SEND_BURST >= 1")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}
	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
