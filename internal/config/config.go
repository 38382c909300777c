// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, LLM backends, duplicate
// matching, rate limiting, and observability.
package config

import (
	"errors"
	"fmt"
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-insurance-intake")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// BackendConfig describes one OpenAI-compatible LLM backend.
type BackendConfig struct {
	Name    string
	BaseURL string
	APIKey  string
	Model   string
}

// LLMConfig defines the backend chain and retry behavior of the router.
type LLMConfig struct {
	Backends    []BackendConfig // primary first
	Timeout     time.Duration   // per-attempt request timeout
	MaxRetries  int             // retry rounds across the chain
	BackoffBase time.Duration   // doubled per round
	Temperature float64
	MaxTokens   int
}

// DedupConfig defines duplicate-detection tuning.
type DedupConfig struct {
	Threshold       float64 // minimum similarity [0,1]
	NameWeight      float64
	BirthDateWeight float64
	PlateWeight     float64
	UseModel        bool // model-assisted comparison for near matches
}

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
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DBPath          string // SQLite path
	MaxMessageRunes int    // input guard on a single chat message

	// Conversation keyword lists (CSV overrides; empty uses built-ins)
	InformationalKeywords    []string
	DuplicateContextKeywords []string
	CompletionKeywords       []string
	ReviewKeywords           []string

	// TemplateOverrides maps template names to replacement text, collected
	// from TEMPLATE_<NAME> environment variables.
	TemplateOverrides map[string]string

	// LLM routing
	LLM LLMConfig

	// Duplicate matching
	Dedup DedupConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

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
		WriteTimeout:      getdur("WRITE_TIMEOUT", 120*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath:          getenv("DB_PATH", "registrations.db"),
		MaxMessageRunes: getint("MAX_MESSAGE_RUNES", 4000),

		// Conversation keywords
		InformationalKeywords:    splitCSV(getenv("INFORMATIONAL_KEYWORDS", "")),
		DuplicateContextKeywords: splitCSV(getenv("DUPLICATE_CONTEXT_KEYWORDS", "")),
		CompletionKeywords:       splitCSV(getenv("COMPLETION_KEYWORDS", "")),
		ReviewKeywords:           splitCSV(getenv("REVIEW_KEYWORDS", "")),

		TemplateOverrides: templateOverrides(),

		// LLM routing
		LLM: LLMConfig{
			Backends:    backendChain(),
			Timeout:     getdur("LLM_TIMEOUT", 60*time.Second),
			MaxRetries:  getint("LLM_MAX_RETRIES", 3),
			BackoffBase: getdur("LLM_BACKOFF_BASE", time.Second),
			Temperature: getfloat("LLM_TEMPERATURE", 0.1),
			MaxTokens:   getint("LLM_MAX_TOKENS", 500),
		},

		// Duplicate matching
		Dedup: DedupConfig{
			Threshold:       getfloat("DEDUP_THRESHOLD", 0.85),
			NameWeight:      getfloat("DEDUP_NAME_WEIGHT", 0.30),
			BirthDateWeight: getfloat("DEDUP_BIRTH_DATE_WEIGHT", 0.30),
			PlateWeight:     getfloat("DEDUP_PLATE_WEIGHT", 0.40),
			UseModel:        getbool("DEDUP_USE_MODEL", false),
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

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-insurance-intake"),
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
	if cfg.MaxMessageRunes <= 0 {
		return cfg, errors.New("MAX_MESSAGE_RUNES must be > 0")
	}
	if len(cfg.LLM.Backends) == 0 {
		return cfg, errors.New("at least one LLM backend is required (set LLM_BASE_URL)")
	}
	for _, b := range cfg.LLM.Backends {
		if strings.TrimSpace(b.BaseURL) == "" {
			return cfg, fmt.Errorf("LLM backend %q has no base URL", b.Name)
		}
	}
	if cfg.LLM.Timeout <= 0 || cfg.LLM.BackoffBase <= 0 {
		return cfg, errors.New("LLM_TIMEOUT and LLM_BACKOFF_BASE must be positive durations")
	}
	if cfg.LLM.MaxRetries < 1 {
		return cfg, errors.New("LLM_MAX_RETRIES must be >= 1")
	}
	if cfg.Dedup.Threshold < 0 || cfg.Dedup.Threshold > 1 {
		return cfg, errors.New("DEDUP_THRESHOLD must be between 0 and 1")
	}
	if cfg.Dedup.NameWeight < 0 || cfg.Dedup.BirthDateWeight < 0 || cfg.Dedup.PlateWeight < 0 {
		return cfg, errors.New("dedup weights must be >= 0")
	}
	if cfg.Dedup.NameWeight+cfg.Dedup.BirthDateWeight+cfg.Dedup.PlateWeight == 0 {
		return cfg, errors.New("at least one dedup weight must be > 0")
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
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// backendChain builds the ordered backend list: the primary from LLM_* plus
// fallbacks from LLM_FALLBACK_* CSV variables (parallel lists, aligned by
// index; missing entries inherit the primary's value).
func backendChain() []BackendConfig {
	primary := BackendConfig{
		Name:    getenv("LLM_NAME", "primary"),
		BaseURL: getenv("LLM_BASE_URL", ""),
		APIKey:  getenv("LLM_API_KEY", ""),
		Model:   getenv("LLM_MODEL", ""),
	}
	if primary.BaseURL == "" {
		return nil
	}
	out := []BackendConfig{primary}

	names := splitCSV(getenv("LLM_FALLBACK_NAMES", ""))
	urls := splitCSV(getenv("LLM_FALLBACK_BASE_URLS", ""))
	keys := splitCSV(getenv("LLM_FALLBACK_API_KEYS", ""))
	models := splitCSV(getenv("LLM_FALLBACK_MODELS", ""))

	for i, u := range urls {
		b := BackendConfig{
			Name:    fmt.Sprintf("fallback-%d", i+1),
			BaseURL: u,
			APIKey:  primary.APIKey,
			Model:   primary.Model,
		}
		if i < len(names) {
			b.Name = names[i]
		}
		if i < len(keys) {
			b.APIKey = keys[i]
		}
		if i < len(models) {
			b.Model = models[i]
		}
		out = append(out, b)
	}
	return out
}

// templateOverrides collects TEMPLATE_<NAME>=text pairs from the
// environment, lower-casing <NAME> into the template key
// (TEMPLATE_ERROR_FALLBACK → "error_fallback").
func templateOverrides() map[string]string {
	var out map[string]string
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || v == "" || !strings.HasPrefix(k, "TEMPLATE_") {
			continue
		}
		if out == nil {
			out = make(map[string]string)
		}
		out[strings.ToLower(strings.TrimPrefix(k, "TEMPLATE_"))] = v
	}
	return out
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
