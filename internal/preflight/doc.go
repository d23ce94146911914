// Package preflight provides readiness checks for the binaries, directories,
// and services crowdwatch depends on.
//
// `crowdwatch check` prints every result; `serve` refuses to start when a
// required check fails. Storage and notification checks only run when those
// features are configured.
package preflight
