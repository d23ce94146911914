package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"crowdwatch/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrMediaDecode, "media", "probe", "ffprobe failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrMediaDecode) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"media", "probe", "ffprobe failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestFrameErrorMatchesMarkerAndCause(t *testing.T) {
	cause := errors.New("decode failed")
	err := fmt.Errorf("run: %w", services.NewFrameError(2, 7.5, cause))

	if !errors.Is(err, services.ErrFrameUnavailable) {
		t.Fatalf("expected frame unavailable marker, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable, got %v", err)
	}
	var frameErr *services.FrameError
	if !errors.As(err, &frameErr) {
		t.Fatalf("expected FrameError, got %T", err)
	}
	if frameErr.Index != 2 || frameErr.Timestamp != 7.5 {
		t.Fatalf("unexpected frame error fields: %+v", frameErr)
	}
}

func TestUserMessageIsDistinctPerMarker(t *testing.T) {
	errs := []error{
		services.Wrap(services.ErrUnsupportedInput, "input", "sniff", "text/plain", nil),
		services.Wrap(services.ErrMediaDecode, "media", "open", "", nil),
		services.Wrap(services.ErrModelUnavailable, "detector", "load", "", nil),
		services.NewFrameError(0, 1.5, nil),
	}
	seen := make(map[string]struct{}, len(errs))
	for _, err := range errs {
		msg := services.UserMessage(err)
		if msg == "" {
			t.Fatalf("expected message for %v", err)
		}
		if _, dup := seen[msg]; dup {
			t.Fatalf("duplicate user message %q", msg)
		}
		seen[msg] = struct{}{}
	}
	if services.UserMessage(nil) != "" {
		t.Fatal("expected empty message for nil error")
	}
}
