package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnsupportedInput = errors.New("unsupported input")
	ErrMediaDecode      = errors.New("media decode error")
	ErrModelUnavailable = errors.New("model unavailable")
	ErrFrameUnavailable = errors.New("frame unavailable")
	ErrConfiguration    = errors.New("configuration error")
	ErrExternalTool     = errors.New("external tool error")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FrameError reports a seek, decode, or detect failure at one sample point.
// It always matches ErrFrameUnavailable under errors.Is.
type FrameError struct {
	Index     int
	Timestamp float64
	Err       error
}

func (e *FrameError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: sample %d at %.3fs", ErrFrameUnavailable, e.Index+1, e.Timestamp)
	}
	return fmt.Sprintf("%s: sample %d at %.3fs: %v", ErrFrameUnavailable, e.Index+1, e.Timestamp, e.Err)
}

func (e *FrameError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFrameUnavailable}
	}
	return []error{ErrFrameUnavailable, e.Err}
}

// NewFrameError wraps err as a FrameUnavailable failure for the given sample.
func NewFrameError(index int, timestamp float64, err error) *FrameError {
	return &FrameError{Index: index, Timestamp: timestamp, Err: err}
}

// UserMessage maps a pipeline error to the message shown to operators. Each
// terminal marker has its own wording; unknown errors fall back to err.Error().
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var frameErr *FrameError
	switch {
	case errors.Is(err, ErrUnsupportedInput):
		return "Please select a video file (MP4, WebM, etc.)."
	case errors.Is(err, ErrMediaDecode):
		return "Failed to load video. Try another format (MP4 recommended)."
	case errors.Is(err, ErrModelUnavailable):
		return "Failed to load AI model. Check your internet connection."
	case errors.As(err, &frameErr):
		return fmt.Sprintf("Could not read frame %d at %.2fs. Try another clip.", frameErr.Index+1, frameErr.Timestamp)
	case errors.Is(err, ErrFrameUnavailable):
		return "Could not read a sampled frame. Try another clip."
	case errors.Is(err, ErrConfiguration):
		return "Configuration error: " + strings.TrimSpace(err.Error())
	default:
		return strings.TrimSpace(err.Error())
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
