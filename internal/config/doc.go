// Package config loads and validates the bot configuration from YAML.
//
// Configuration files may reference environment variables with ${VAR}
// syntax; they are expanded before parsing.
package config
