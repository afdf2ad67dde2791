// Package config loads, normalizes, and validates treadmark configuration.
//
// Configuration is a TOML file with sections per subsystem. Load applies
// defaults first, then file values, then environment fallbacks for secrets,
// so a bare install works without a config file. All path fields are expanded
// (~ and relative forms) before validation.
package config
