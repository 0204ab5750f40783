package core

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Config holds the application configuration. It is read once at startup
// and passed explicitly to the components that need it.
type Config struct {
	Profile *ProfileDefaults

	HTTPListen string
	MCPListen  string
	Transport  string

	ServiceAccountKey []byte

	SpreadsheetAllowlist string
	ToolAllowlist        string
	CORSAllowedOrigin    string

	AuditDatabaseDriver string
	AuditDatabaseURL    string

	LogLevel slog.Level
}

const (
	TransportHTTP  = "http"
	TransportStdio = "stdio"
)

// LoadConfig reads configuration through getenv, normally os.Getenv.
func LoadConfig(getenv func(string) string) (*Config, error) {
	env := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	profile, err := LoadProfile(getenv("SHEETHUB_PROFILE"))
	if err != nil {
		return nil, fmt.Errorf("invalid SHEETHUB_PROFILE: %w", err)
	}

	cfg := &Config{
		Profile:              profile,
		HTTPListen:           env("SHEETHUB_HTTP_LISTEN", "0.0.0.0:8080"),
		MCPListen:            env("SHEETHUB_MCP_LISTEN", ""),
		Transport:            strings.ToLower(env("SHEETHUB_TRANSPORT", TransportHTTP)),
		SpreadsheetAllowlist: env("SPREADSHEET_ALLOWLIST", ""),
		ToolAllowlist:        env("TOOL_ALLOWLIST", ""),
		CORSAllowedOrigin:    env("CORS_ALLOWED_ORIGIN", profile.CORSAllowedOrigin),
		AuditDatabaseDriver:  strings.ToLower(env("AUDIT_DATABASE_DRIVER", "postgres")),
		AuditDatabaseURL:     env("AUDIT_DATABASE_URL", ""),
	}

	if cfg.Transport != TransportHTTP && cfg.Transport != TransportStdio {
		return nil, fmt.Errorf("invalid SHEETHUB_TRANSPORT %q (valid: http, stdio)", cfg.Transport)
	}
	if cfg.AuditDatabaseDriver != "postgres" && cfg.AuditDatabaseDriver != "sqlite3" {
		return nil, fmt.Errorf("invalid AUDIT_DATABASE_DRIVER %q (valid: postgres, sqlite3)", cfg.AuditDatabaseDriver)
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(env("LOG_LEVEL", profile.LogLevel))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	switch {
	case getenv("GOOGLE_SERVICE_ACCOUNT_KEY") != "":
		cfg.ServiceAccountKey = []byte(getenv("GOOGLE_SERVICE_ACCOUNT_KEY"))
	case getenv("GOOGLE_SERVICE_ACCOUNT_KEY_PATH") != "":
		path := getenv("GOOGLE_SERVICE_ACCOUNT_KEY_PATH")
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read service account key: %w", err)
		}
		cfg.ServiceAccountKey = raw
	default:
		return nil, fmt.Errorf("GOOGLE_SERVICE_ACCOUNT_KEY or GOOGLE_SERVICE_ACCOUNT_KEY_PATH is required")
	}

	return cfg, nil
}

// AuditEnabled reports whether tool calls are persisted.
func (c *Config) AuditEnabled() bool {
	return c.AuditDatabaseURL != ""
}
