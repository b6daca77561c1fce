// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"hue-gateway/internal/domain"
)

// GatewayConfig holds the polling and timeout knobs of the query gateway.
type GatewayConfig struct {
	QueryTimeout       time.Duration // ExecuteAndWait deadline (default 30s)
	PollInterval       time.Duration // ExecuteAndWait poll period (default 500ms)
	FetchSize          int64         // default rows per fetch (default 100)
	MaxFetchSize       int64         // upper bound on requested rows (default 10000)
	HistoryStaleAfter  time.Duration // running history rows older than this are refreshed (default 1h)
	HistorySweep       string        // cron schedule of the history sweep (default "@every 5m")
	HistorySweepBatch  int           // rows refreshed per sweep (default 200)
	DatabaseOnConnect  string        // database selected with USE after opening a session
	ConnectionIdleTime time.Duration // pooled connections idle longer than this are closed (0 disables)
}

// LivyConfig holds the Spark session server settings.
type LivyConfig struct {
	URL                 string        // base URL of the Livy server (default http://localhost:8998)
	RequestTimeout      time.Duration // per-request HTTP timeout (default 30s)
	SessionPollAttempts int           // create_session polls while starting (default 120)
	SessionPollInterval time.Duration // delay between create_session polls (default 1s)
	SessionIdleTTL      time.Duration // sessions idle longer are closed (default 1h)
	ReapInterval        time.Duration // reaper tick (default 1m)
	Username            string        // optional basic auth user
	Password            string        // optional basic auth password
}

// Config holds the configuration for the HTTP gateway and its backends.
type Config struct {
	MetaDBPath        string // path to SQLite metadata file (query history, notebooks)
	ListenAddr        string // HTTP listen address (default ":8080")
	TLSCertFile       string // TLS certificate file path (optional)
	TLSKeyFile        string // TLS private key file path (optional)
	AllowInsecureHTTP bool   // allow non-TLS listener in production
	LogLevel          string // log level: debug, info, warn, error (default "info")
	Env               string // environment: "development" (default) or "production"

	// Rate limiting
	RateLimitRPS   float64 // sustained requests per second (default 100)
	RateLimitBurst int     // burst capacity (default 200)

	// CORS
	CORSAllowedOrigins []string // allowed origins for CORS (default: ["*"])

	// PrincipalHeader names the header a trusted front proxy sets to the
	// authenticated user (default "X-Remote-User").
	PrincipalHeader string
	// DefaultPrincipal is used when the header is absent outside production.
	DefaultPrincipal string

	// QueryServers are the HS2-compatible backends keyed by name.
	QueryServers map[string]domain.QueryServer
	// QueryServersFile is an optional YAML file with extra server definitions.
	QueryServersFile string

	Gateway GatewayConfig
	Livy    LivyConfig

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// QueryServer returns the named server definition.
func (c *Config) QueryServer(name string) (domain.QueryServer, error) {
	s, ok := c.QueryServers[name]
	if !ok {
		return domain.QueryServer{}, domain.ErrNotFound("query server %q is not configured", name)
	}
	return s, nil
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		MetaDBPath:        os.Getenv("META_DB_PATH"),
		ListenAddr:        os.Getenv("LISTEN_ADDR"),
		TLSCertFile:       os.Getenv("TLS_CERT_FILE"),
		TLSKeyFile:        os.Getenv("TLS_KEY_FILE"),
		AllowInsecureHTTP: parseBoolEnvDefault("ALLOW_INSECURE_HTTP", false),
		LogLevel:          os.Getenv("LOG_LEVEL"),
		Env:               os.Getenv("ENV"),
		PrincipalHeader:   os.Getenv("PRINCIPAL_HEADER"),
		DefaultPrincipal:  os.Getenv("DEFAULT_PRINCIPAL"),
		QueryServersFile:  os.Getenv("QUERY_SERVERS_FILE"),
	}

	// Rate limiting
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		}
	}

	// CORS
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitList(v)
	}

	cfg.Gateway = GatewayConfig{
		QueryTimeout:       parseDurationEnv(cfg, "QUERY_TIMEOUT"),
		PollInterval:       parseDurationEnv(cfg, "QUERY_POLL_INTERVAL"),
		FetchSize:          parseInt64Env(cfg, "FETCH_SIZE"),
		MaxFetchSize:       parseInt64Env(cfg, "MAX_FETCH_SIZE"),
		HistoryStaleAfter:  parseDurationEnv(cfg, "HISTORY_STALE_AFTER"),
		HistorySweep:       os.Getenv("HISTORY_SWEEP_SCHEDULE"),
		HistorySweepBatch:  int(parseInt64Env(cfg, "HISTORY_SWEEP_BATCH")),
		DatabaseOnConnect:  os.Getenv("DEFAULT_DATABASE"),
		ConnectionIdleTime: parseDurationEnv(cfg, "CONNECTION_IDLE_TIME"),
	}

	cfg.Livy = LivyConfig{
		URL:                 os.Getenv("LIVY_SERVER_URL"),
		RequestTimeout:      parseDurationEnv(cfg, "LIVY_REQUEST_TIMEOUT"),
		SessionPollAttempts: int(parseInt64Env(cfg, "LIVY_SESSION_POLL_ATTEMPTS")),
		SessionPollInterval: parseDurationEnv(cfg, "LIVY_SESSION_POLL_INTERVAL"),
		SessionIdleTTL:      parseDurationEnv(cfg, "SESSION_IDLE_TTL"),
		ReapInterval:        parseDurationEnv(cfg, "SESSION_REAP_INTERVAL"),
		Username:            os.Getenv("LIVY_USERNAME"),
		Password:            os.Getenv("LIVY_PASSWORD"),
	}

	cfg.QueryServers = serversFromEnv()
	if cfg.QueryServersFile != "" {
		fileServers, err := LoadQueryServersFile(cfg.QueryServersFile)
		if err != nil {
			return nil, err
		}
		for _, s := range fileServers {
			cfg.QueryServers[s.Name] = s
		}
	}
	for name, s := range cfg.QueryServers {
		if err := ValidateQueryServer(s); err != nil {
			return nil, fmt.Errorf("query server %q: %w", name, err)
		}
	}

	// Defaults
	if cfg.MetaDBPath == "" {
		cfg.MetaDBPath = "hue_gateway.sqlite"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		return nil, fmt.Errorf("both TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 100
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 200
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}
	if cfg.PrincipalHeader == "" {
		cfg.PrincipalHeader = "X-Remote-User"
	}
	if cfg.DefaultPrincipal == "" && !cfg.IsProduction() {
		cfg.DefaultPrincipal = "hue"
		cfg.Warnings = append(cfg.Warnings, "DEFAULT_PRINCIPAL not set: requests without "+cfg.PrincipalHeader+" run as \"hue\"")
	}
	applyGatewayDefaults(&cfg.Gateway)
	applyLivyDefaults(&cfg.Livy)

	// Production mode: insecure defaults are fatal errors.
	if cfg.IsProduction() {
		if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
			return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
		}
		if cfg.TLSCertFile == "" && !cfg.AllowInsecureHTTP {
			return nil, fmt.Errorf("TLS_CERT_FILE/TLS_KEY_FILE must be set in production unless ALLOW_INSECURE_HTTP=true")
		}
	}

	return cfg, nil
}

func applyGatewayDefaults(g *GatewayConfig) {
	if g.QueryTimeout <= 0 {
		g.QueryTimeout = 30 * time.Second
	}
	if g.PollInterval <= 0 {
		g.PollInterval = 500 * time.Millisecond
	}
	if g.FetchSize <= 0 {
		g.FetchSize = 100
	}
	if g.MaxFetchSize <= 0 {
		g.MaxFetchSize = 10000
	}
	if g.HistoryStaleAfter <= 0 {
		g.HistoryStaleAfter = time.Hour
	}
	if g.HistorySweep == "" {
		g.HistorySweep = "@every 5m"
	}
	if g.HistorySweepBatch <= 0 {
		g.HistorySweepBatch = 200
	}
}

func applyLivyDefaults(l *LivyConfig) {
	if l.URL == "" {
		l.URL = "http://localhost:8998"
	}
	l.URL = strings.TrimRight(l.URL, "/")
	if l.RequestTimeout <= 0 {
		l.RequestTimeout = 30 * time.Second
	}
	if l.SessionPollAttempts <= 0 {
		l.SessionPollAttempts = 120
	}
	if l.SessionPollInterval <= 0 {
		l.SessionPollInterval = time.Second
	}
	if l.SessionIdleTTL <= 0 {
		l.SessionIdleTTL = time.Hour
	}
	if l.ReapInterval <= 0 {
		l.ReapInterval = time.Minute
	}
}

func parseDurationEnv(cfg *Config, key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("ignoring invalid %s=%q: %v", key, v, err))
		return 0
	}
	return d
}

func parseInt64Env(cfg *Config, key string) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("ignoring invalid %s=%q: %v", key, v, err))
		return 0
	}
	return n
}

func parseBoolEnvDefault(key string, defaultVal bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return defaultVal
	}
	if v == "0" || v == "false" || v == "no" || v == "off" {
		return false
	}
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		return true
	}
	return defaultVal
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		value = stripQuotes(strings.TrimSpace(value))
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
