// Package player exposes a local video file as a seekable frame source backed
// by the ffmpeg and ffprobe binaries.
//
// Open probes the file once for duration and native dimensions. Each Seek
// decodes exactly one RGBA frame at the requested time in a background
// goroutine and reports completion on a channel; DrawFrame copies the most
// recently decoded frame. Only one seek may be in flight at a time.
package player
