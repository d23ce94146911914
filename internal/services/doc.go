// Package services defines shared utilities consumed by the analysis pipeline
// and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs and stage names for logging and
//     tracing.
//   - Structured error markers plus the Wrap helper that classify failures
//     into the four terminal run outcomes (unsupported input, media decode,
//     model unavailable, frame unavailable).
//   - UserMessage, which maps every marker to a distinct human-readable line
//     for the CLI and HTTP surfaces.
//
// Use these helpers when wiring new pipeline code so error handling and
// observability stay uniform.
package services
