package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hue-gateway/internal/domain"
)

func clearServerEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"HIVE_SERVER_HOST", "HIVE_SERVER_PORT", "HIVE_SERVER_TYPE", "HIVE_TRANSPORT_MODE", "HIVE_AUTH", "HIVE_CLOSE_QUERIES",
		"IMPALA_SERVER_HOST", "IMPALA_SERVER_PORT", "IMPALA_CLOSE_QUERIES",
		"SPARK_SQL_SERVER_HOST", "QUERY_SERVERS_FILE", "ENV", "CORS_ALLOWED_ORIGINS",
		"QUERY_TIMEOUT", "QUERY_POLL_INTERVAL", "LIVY_SERVER_URL", "DEFAULT_PRINCIPAL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearServerEnv(t)
	t.Setenv("META_DB_PATH", "")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "hue_gateway.sqlite", cfg.MetaDBPath)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 30*time.Second, cfg.Gateway.QueryTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Gateway.PollInterval)
	assert.Equal(t, "@every 5m", cfg.Gateway.HistorySweep)
	assert.Equal(t, 120, cfg.Livy.SessionPollAttempts)
	assert.Equal(t, time.Second, cfg.Livy.SessionPollInterval)
	assert.Equal(t, "http://localhost:8998", cfg.Livy.URL)
	assert.Equal(t, "X-Remote-User", cfg.PrincipalHeader)
	assert.Equal(t, "hue", cfg.DefaultPrincipal)
	assert.NotEmpty(t, cfg.Warnings)

	hive, err := cfg.QueryServer(domain.ServerNameBeeswax)
	require.NoError(t, err)
	assert.Equal(t, domain.ServerTypeBeeswax, hive.Type)
	assert.Equal(t, "localhost", hive.Host)
	assert.Equal(t, 10000, hive.Port)
	assert.Equal(t, TransportBinary, hive.TransportMode)
	assert.Equal(t, AuthNone, hive.Auth)
	assert.False(t, hive.CloseQueries)

	_, err = cfg.QueryServer(domain.ServerNameImpala)
	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestLoadFromEnv_ImpalaAndTimings(t *testing.T) {
	clearServerEnv(t)
	t.Setenv("IMPALA_SERVER_HOST", "impalad.example.com")
	t.Setenv("IMPALA_CLOSE_QUERIES", "true")
	t.Setenv("QUERY_TIMEOUT", "5s")
	t.Setenv("QUERY_POLL_INTERVAL", "100ms")
	t.Setenv("LIVY_SERVER_URL", "http://livy:8998/")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	impala, err := cfg.QueryServer(domain.ServerNameImpala)
	require.NoError(t, err)
	assert.Equal(t, domain.ServerTypeImpala, impala.Type)
	assert.Equal(t, 21050, impala.Port)
	assert.True(t, impala.CloseQueries)
	assert.Equal(t, 5*time.Second, cfg.Gateway.QueryTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.Gateway.PollInterval)
	assert.Equal(t, "http://livy:8998", cfg.Livy.URL)
}

func TestLoadFromEnv_InvalidDurationWarns(t *testing.T) {
	clearServerEnv(t)
	t.Setenv("QUERY_TIMEOUT", "soon")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Gateway.QueryTimeout)
	found := false
	for _, w := range cfg.Warnings {
		if strings.Contains(w, "QUERY_TIMEOUT") {
			found = true
		}
	}
	assert.True(t, found, "expected a warning mentioning QUERY_TIMEOUT")
}

func TestLoadFromEnv_LocalHiveBackend(t *testing.T) {
	clearServerEnv(t)
	t.Setenv("HIVE_SERVER_TYPE", "local")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	hive, err := cfg.QueryServer(domain.ServerNameBeeswax)
	require.NoError(t, err)
	assert.Equal(t, domain.ServerTypeLocal, hive.Type)
}

func TestLoadFromEnv_RejectsUnknownAuth(t *testing.T) {
	clearServerEnv(t)
	t.Setenv("HIVE_AUTH", "KERBEROS")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported auth mechanism")
}

func TestLoadFromEnv_ProductionRejectsWildcardCORS(t *testing.T) {
	clearServerEnv(t)
	t.Setenv("ENV", "production")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CORS wildcard")
}

func TestLoadQueryServersFile(t *testing.T) {
	clearServerEnv(t)
	path := filepath.Join(t.TempDir(), "servers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
servers:
  - name: sparksql
    type: spark-sql
    host: sts.example.com
    port: 10001
    transport_mode: HTTP
    http_path: cliservice
  - name: beeswax
    type: beeswax
    host: hs2.example.com
    port: 10000
    auth: nosasl
    close_queries: true
`), 0o600))
	t.Setenv("QUERY_SERVERS_FILE", path)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	sts, err := cfg.QueryServer(domain.ServerNameSparkSQL)
	require.NoError(t, err)
	assert.Equal(t, TransportHTTP, sts.TransportMode)
	assert.Equal(t, AuthNone, sts.Auth)

	hive, err := cfg.QueryServer(domain.ServerNameBeeswax)
	require.NoError(t, err)
	assert.Equal(t, "hs2.example.com", hive.Host)
	assert.Equal(t, AuthNoSASL, hive.Auth)
	assert.True(t, hive.CloseQueries)
}

func TestLoadQueryServersFile_MissingName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("servers:\n  - type: beeswax\n    host: h\n    port: 1\n"), 0o600))

	_, err := LoadQueryServersFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has no name")
}

func TestValidateQueryServer(t *testing.T) {
	valid := domain.QueryServer{Type: domain.ServerTypeBeeswax, Host: "h", Port: 10000, TransportMode: TransportBinary, Auth: AuthNone}

	tests := []struct {
		name    string
		mutate  func(s *domain.QueryServer)
		wantErr string
	}{
		{"valid", func(*domain.QueryServer) {}, ""},
		{"local_needs_nothing", func(s *domain.QueryServer) { *s = domain.QueryServer{Type: domain.ServerTypeLocal} }, ""},
		{"unknown_type", func(s *domain.QueryServer) { s.Type = "oracle" }, "unknown server type"},
		{"missing_host", func(s *domain.QueryServer) { s.Host = "" }, "host is required"},
		{"bad_port", func(s *domain.QueryServer) { s.Port = 70000 }, "invalid port"},
		{"bad_transport", func(s *domain.QueryServer) { s.TransportMode = "grpc" }, "unsupported transport"},
		{"nosasl_over_http", func(s *domain.QueryServer) { s.TransportMode = TransportHTTP; s.Auth = AuthNoSASL }, "NOSASL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)
			err := ValidateQueryServer(s)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSlogLevel(t *testing.T) {
	cfg := &Config{LogLevel: "DEBUG"}
	assert.Equal(t, "DEBUG", cfg.SlogLevel().String())
	cfg.LogLevel = "warning"
	assert.Equal(t, "WARN", cfg.SlogLevel().String())
	cfg.LogLevel = ""
	assert.Equal(t, "INFO", cfg.SlogLevel().String())
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nexport DOTENV_A=\"quoted\"\nDOTENV_B='single'\nDOTENV_C=kept\n"), 0o600))
	t.Setenv("DOTENV_A", "")
	t.Setenv("DOTENV_B", "")
	t.Setenv("DOTENV_C", "from-env")

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "quoted", os.Getenv("DOTENV_A"))
	assert.Equal(t, "single", os.Getenv("DOTENV_B"))
	assert.Equal(t, "from-env", os.Getenv("DOTENV_C"))

	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}
