// Package config loads and validates settler configuration from YAML files,
// with environment variable expansion and sensible defaults.
package config
