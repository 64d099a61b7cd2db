// Package config loads, normalizes, and validates ripcast configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. Every policy constant the daemon enforces
// (domain and format whitelists, token TTL, retention window, rate limits)
// lives here so core logic receives them as injected values.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical whitelists, and clear validation errors.
package config
