package core

import (
	"fmt"
	"strings"
)

// ProfileDefaults holds environment-specific default configuration values.
// Profiles provide defaults only; explicit env vars always override.
type ProfileDefaults struct {
	Name              string
	LogLevel          string
	CORSAllowedOrigin string

	// ReadOnly restricts tool calls to tools that never mutate a spreadsheet
	// and requests read-only OAuth scopes.
	ReadOnly bool
}

var profiles = map[string]*ProfileDefaults{
	"dev": {
		Name:              "dev",
		LogLevel:          "debug",
		CORSAllowedOrigin: "*",
	},
	"prod": {
		Name:              "prod",
		LogLevel:          "info",
		CORSAllowedOrigin: "",
	},
	"readonly": {
		Name:              "readonly",
		LogLevel:          "info",
		CORSAllowedOrigin: "*",
		ReadOnly:          true,
	},
}

// LoadProfile returns profile defaults for the given name.
// Empty name defaults to "dev". Unknown names return an error.
func LoadProfile(name string) (*ProfileDefaults, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		name = "dev"
	}
	p, ok := profiles[name]
	if !ok {
		return nil, fmt.Errorf("unknown profile %q (valid: dev, prod, readonly)", name)
	}
	copy := *p
	return &copy, nil
}
