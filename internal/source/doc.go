// Package source turns an analyze argument into a local file the media layer
// can open. Plain paths pass through untouched; s3://bucket/key references
// are fetched from S3-compatible storage into a temporary directory that is
// removed when the Input is closed.
package source
