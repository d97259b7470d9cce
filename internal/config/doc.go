// Package config loads, normalizes, and validates animstore configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the ANIMSTORE_LOG_LEVEL
// environment fallback. Track limits, frame cache sizing, codec precision,
// and the archive split policy are all discovered in one pass.
package config
