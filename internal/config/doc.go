// Package config loads, validates, and normalizes loom configuration.
//
// Configuration lives in a TOML file (default ~/.config/loom/config.toml,
// with a project-local loom.toml fallback). Load applies defaults, expands
// home-relative paths, and validates cross-field constraints such as lease
// duration exceeding the worker poll interval. CreateSample writes a fully
// commented starter file.
package config
