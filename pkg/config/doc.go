// Package config loads and validates the service configuration: a YAML
// file layered over built-in defaults, with environment variable overrides
// for the secrets (vault master key, API tokens) that should not live on
// disk.
package config
