package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"hue-gateway/internal/domain"
)

// Transport modes and SASL mechanisms accepted for HiveServer2 connections.
const (
	TransportBinary = "binary"
	TransportHTTP   = "http"

	AuthNone   = "NONE"
	AuthNoSASL = "NOSASL"
	AuthLDAP   = "LDAP"
	AuthCustom = "CUSTOM"
)

type queryServersFile struct {
	Servers []domain.QueryServer `yaml:"servers"`
}

// serversFromEnv builds the built-in server definitions. The beeswax (Hive)
// server always exists; impala and sparksql are registered only when their
// host is set.
func serversFromEnv() map[string]domain.QueryServer {
	servers := make(map[string]domain.QueryServer)

	hiveType := domain.ServerType(strings.ToLower(os.Getenv("HIVE_SERVER_TYPE")))
	if hiveType == "" {
		hiveType = domain.ServerTypeBeeswax
	}
	servers[domain.ServerNameBeeswax] = serverFromEnv("HIVE", domain.ServerNameBeeswax, hiveType, "localhost", 10000)

	if os.Getenv("IMPALA_SERVER_HOST") != "" {
		servers[domain.ServerNameImpala] = serverFromEnv("IMPALA", domain.ServerNameImpala, domain.ServerTypeImpala, "", 21050)
	}
	if os.Getenv("SPARK_SQL_SERVER_HOST") != "" {
		servers[domain.ServerNameSparkSQL] = serverFromEnv("SPARK_SQL", domain.ServerNameSparkSQL, domain.ServerTypeSparkSQL, "", 10000)
	}
	return servers
}

func serverFromEnv(prefix, name string, typ domain.ServerType, defaultHost string, defaultPort int) domain.QueryServer {
	s := domain.QueryServer{
		Name:          name,
		Type:          typ,
		Host:          os.Getenv(prefix + "_SERVER_HOST"),
		TransportMode: strings.ToLower(os.Getenv(prefix + "_TRANSPORT_MODE")),
		Auth:          strings.ToUpper(os.Getenv(prefix + "_AUTH")),
		HTTPPath:      os.Getenv(prefix + "_HTTP_PATH"),
		Username:      os.Getenv(prefix + "_USERNAME"),
		Password:      os.Getenv(prefix + "_PASSWORD"),
		CloseQueries:  parseBoolEnvDefault(prefix+"_CLOSE_QUERIES", false),
	}
	if v := os.Getenv(prefix + "_SERVER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.Port = n
		}
	}
	if s.Host == "" {
		s.Host = defaultHost
	}
	if s.Port == 0 {
		s.Port = defaultPort
	}
	applyServerDefaults(&s)
	return s
}

func applyServerDefaults(s *domain.QueryServer) {
	if s.TransportMode == "" {
		s.TransportMode = TransportBinary
	}
	if s.Auth == "" {
		s.Auth = AuthNone
	}
	if s.HTTPPath == "" {
		s.HTTPPath = "cliservice"
	}
}

// LoadQueryServersFile reads server definitions from a YAML document of the
// form `servers: [{name, type, host, port, ...}]`.
func LoadQueryServersFile(path string) ([]domain.QueryServer, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-controlled
	if err != nil {
		return nil, fmt.Errorf("read query servers file: %w", err)
	}
	var doc queryServersFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse query servers file %s: %w", path, err)
	}
	for i := range doc.Servers {
		doc.Servers[i].TransportMode = strings.ToLower(doc.Servers[i].TransportMode)
		doc.Servers[i].Auth = strings.ToUpper(doc.Servers[i].Auth)
		applyServerDefaults(&doc.Servers[i])
		if doc.Servers[i].Name == "" {
			return nil, fmt.Errorf("query servers file %s: entry %d has no name", path, i)
		}
	}
	return doc.Servers, nil
}

// ValidateQueryServer checks that a server definition can be dialed.
func ValidateQueryServer(s domain.QueryServer) error {
	switch s.Type {
	case domain.ServerTypeLocal:
		return nil
	case domain.ServerTypeBeeswax, domain.ServerTypeImpala, domain.ServerTypeSparkSQL:
	default:
		return fmt.Errorf("unknown server type %q", s.Type)
	}
	if s.Host == "" {
		return fmt.Errorf("host is required")
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("invalid port %d", s.Port)
	}
	switch s.TransportMode {
	case TransportBinary, TransportHTTP:
	default:
		return fmt.Errorf("unsupported transport mode %q", s.TransportMode)
	}
	switch s.Auth {
	case AuthNone, AuthNoSASL, AuthLDAP, AuthCustom:
	default:
		return fmt.Errorf("unsupported auth mechanism %q", s.Auth)
	}
	if s.TransportMode == TransportHTTP && s.Auth == AuthNoSASL {
		return fmt.Errorf("NOSASL is only valid with binary transport")
	}
	return nil
}
