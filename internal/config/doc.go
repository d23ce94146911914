// Package config loads, normalizes, and validates crowdwatch configuration.
//
// It supplies defaults, expands user paths (including tilde shortcuts), reads
// TOML files, and honours environment fallbacks such as
// CROWDWATCH_DETECTOR_ENDPOINT. Every knob the CLI and the HTTP server need
// lives on Config so callers receive sanitized paths, canonical log formats,
// and clear validation errors from one place.
package config
