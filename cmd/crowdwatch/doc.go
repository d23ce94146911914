// Package main hosts the crowdwatch CLI entrypoint and command graph.
//
// The Cobra command tree resolves configuration once, builds the detector
// adapter and analyzer from it, and renders results for terminals or as JSON.
// `serve` runs the same analyzer behind the HTTP API.
//
// Keep this package lean: pipeline behavior belongs in internal/analysis and
// its collaborators; commands here only wire and present.
package main
