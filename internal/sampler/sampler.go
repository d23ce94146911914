package sampler

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	"crowdwatch/internal/services"
)

const (
	DefaultSampleCount = 5
	DefaultSettleDelay = 120 * time.Millisecond
	DefaultSeekTimeout = 30 * time.Second
)

var (
	ErrInvalidSampleCount = errors.New("sampler: sample count must be positive")
	ErrInvalidDuration    = errors.New("sampler: duration must be positive and finite")
	ErrSeekTimeout        = errors.New("sampler: seek did not complete in time")
)

// MediaHandle is the playback surface the pipeline borrows for one run.
// Implementations own a single playback position, so callers must never
// issue overlapping seeks.
type MediaHandle interface {
	// Duration is the clip length in seconds, valid once metadata is loaded.
	Duration() float64
	// Position is the current playback position in seconds.
	Position() float64
	// Seek starts an asynchronous seek. The returned channel yields exactly
	// one value: nil once the seek completed, or the decode error.
	Seek(t float64) <-chan error
	// Dimensions reports the native pixel size of the current frame.
	Dimensions() (width, height int)
	// DrawFrame copies the current frame into dst, which must match Dimensions.
	DrawFrame(dst *image.RGBA) error
}

// Timestamps returns the midpoint of each of n equal slices of duration.
func Timestamps(duration float64, n int) ([]float64, error) {
	if n <= 0 {
		return nil, ErrInvalidSampleCount
	}
	if duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDuration, duration)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = duration * (float64(i) + 0.5) / float64(n)
	}
	return out, nil
}

// VisitFunc is invoked once per settled frame, in timestamp order.
type VisitFunc func(ctx context.Context, index int, timestamp float64) error

// Sampler drives seek-then-settle for each sample point.
type Sampler struct {
	SettleDelay time.Duration
	SeekTimeout time.Duration
}

// New returns a Sampler with the given settle delay and seek timeout. Zero
// values fall back to the defaults.
func New(settle, seekTimeout time.Duration) *Sampler {
	if settle <= 0 {
		settle = DefaultSettleDelay
	}
	if seekTimeout <= 0 {
		seekTimeout = DefaultSeekTimeout
	}
	return &Sampler{SettleDelay: settle, SeekTimeout: seekTimeout}
}

// Visit seeks the handle to each timestamp, waits for completion plus the
// settle delay, and calls fn. Any seek failure aborts with a
// *services.FrameError; visitor errors are returned unchanged.
func (s *Sampler) Visit(ctx context.Context, handle MediaHandle, timestamps []float64, fn VisitFunc) error {
	if handle == nil {
		return errors.New("sampler: nil media handle")
	}
	for i, ts := range timestamps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.seek(ctx, handle, ts); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return err
			}
			return services.NewFrameError(i, ts, err)
		}
		if err := fn(ctx, i, ts); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sampler) seek(ctx context.Context, handle MediaHandle, ts float64) error {
	done := handle.Seek(ts)
	if done == nil {
		return errors.New("sampler: media handle returned no seek signal")
	}

	timeout := s.SeekTimeout
	if timeout <= 0 {
		timeout = DefaultSeekTimeout
	}
	seekTimer := time.NewTimer(timeout)
	defer seekTimer.Stop()

	select {
	case err, ok := <-done:
		if !ok {
			return errors.New("sampler: seek signal closed without result")
		}
		if err != nil {
			return err
		}
	case <-seekTimer.C:
		// Drain the pending seek so the handle is never left mid-seek.
		go func() { <-done }()
		return fmt.Errorf("%w after %s", ErrSeekTimeout, timeout)
	case <-ctx.Done():
		go func() { <-done }()
		return ctx.Err()
	}

	return settle(ctx, s.SettleDelay)
}

func settle(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
