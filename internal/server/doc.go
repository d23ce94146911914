// Package server exposes the analyzer over HTTP for `crowdwatch serve`.
//
// POST /v1/analyze accepts a clip either as the "video" field of a multipart
// form or as a raw body with a video/* Content-Type, stores it in a
// temporary directory, and returns the JSON report. Only one analysis runs
// at a time; overlapping requests get 409. GET /healthz and GET /metrics are
// always unauthenticated.
package server
