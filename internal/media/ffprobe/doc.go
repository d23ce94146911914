// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Key types:
//   - Result: parsed ffprobe output containing streams and format metadata
//   - Stream: individual stream properties (codec, dimensions, frame rate)
//   - Format: container-level metadata (duration, size, bitrate)
//
// Inspect executes ffprobe and returns a parsed Result. Helper methods pick
// the first video stream and resolve a usable duration, preferring the
// container value and falling back to the video stream.
package ffprobe
