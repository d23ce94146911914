package sampler

import (
	"context"
	"errors"
	"image"
	"math"
	"sync"
	"testing"
	"time"

	"crowdwatch/internal/services"
)

type fakeHandle struct {
	mu       sync.Mutex
	duration float64
	position float64
	seeks    []float64
	inFlight bool
	overlap  bool
	failAt   map[float64]error
	hang     bool
}

func (f *fakeHandle) Duration() float64 { return f.duration }

func (f *fakeHandle) Position() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position
}

func (f *fakeHandle) Dimensions() (int, int) { return 4, 4 }

func (f *fakeHandle) DrawFrame(dst *image.RGBA) error { return nil }

func (f *fakeHandle) Seek(t float64) <-chan error {
	f.mu.Lock()
	if f.inFlight {
		f.overlap = true
	}
	f.inFlight = true
	f.seeks = append(f.seeks, t)
	f.mu.Unlock()

	done := make(chan error, 1)
	if f.hang {
		return done
	}
	go func() {
		time.Sleep(time.Millisecond)
		f.mu.Lock()
		f.inFlight = false
		f.position = t
		err := f.failAt[t]
		f.mu.Unlock()
		done <- err
	}()
	return done
}

func TestTimestampsMidpoints(t *testing.T) {
	got, err := Timestamps(10, 5)
	if err != nil {
		t.Fatalf("Timestamps: %v", err)
	}
	want := []float64{1, 3, 5, 7, 9}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("ts[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestTimestampsStrictlyIncreasingInsideClip(t *testing.T) {
	got, err := Timestamps(3.7, 7)
	if err != nil {
		t.Fatalf("Timestamps: %v", err)
	}
	prev := 0.0
	for i, ts := range got {
		if ts <= prev || ts >= 3.7 {
			t.Fatalf("ts[%d] = %v out of order or range", i, ts)
		}
		prev = ts
	}
}

func TestTimestampsSingleSample(t *testing.T) {
	got, err := Timestamps(0.5, 1)
	if err != nil {
		t.Fatalf("Timestamps: %v", err)
	}
	if len(got) != 1 || got[0] != 0.25 {
		t.Fatalf("got %v, want [0.25]", got)
	}
}

func TestTimestampsRejectsInvalidInput(t *testing.T) {
	if _, err := Timestamps(10, 0); !errors.Is(err, ErrInvalidSampleCount) {
		t.Fatalf("n=0 err = %v", err)
	}
	for _, d := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := Timestamps(d, 5); !errors.Is(err, ErrInvalidDuration) {
			t.Fatalf("duration %v err = %v", d, err)
		}
	}
}

func TestVisitSequentialInOrder(t *testing.T) {
	handle := &fakeHandle{duration: 10}
	ts, _ := Timestamps(10, 5)
	s := New(time.Millisecond, time.Second)

	var visited []int
	err := s.Visit(context.Background(), handle, ts, func(_ context.Context, i int, at float64) error {
		if pos := handle.Position(); pos != at {
			t.Fatalf("visit %d position = %v, want %v", i, pos, at)
		}
		visited = append(visited, i)
		return nil
	})
	if err != nil {
		t.Fatalf("Visit: %v", err)
	}
	if len(visited) != 5 {
		t.Fatalf("visited %d frames, want 5", len(visited))
	}
	for i, v := range visited {
		if v != i {
			t.Fatalf("visit order = %v", visited)
		}
	}
	if handle.overlap {
		t.Fatal("seeks overlapped")
	}
}

func TestVisitWaitsSettleDelay(t *testing.T) {
	handle := &fakeHandle{duration: 10}
	delay := 20 * time.Millisecond
	s := New(delay, time.Second)

	start := time.Now()
	if err := s.Visit(context.Background(), handle, []float64{1, 2}, func(context.Context, int, float64) error { return nil }); err != nil {
		t.Fatalf("Visit: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 2*delay {
		t.Fatalf("elapsed %s, want at least %s", elapsed, 2*delay)
	}
}

func TestVisitSeekFailureReturnsFrameError(t *testing.T) {
	decodeErr := errors.New("corrupt packet")
	handle := &fakeHandle{duration: 10, failAt: map[float64]error{5: decodeErr}}
	ts, _ := Timestamps(10, 5)
	s := New(time.Millisecond, time.Second)

	visits := 0
	err := s.Visit(context.Background(), handle, ts, func(context.Context, int, float64) error {
		visits++
		return nil
	})
	if !errors.Is(err, services.ErrFrameUnavailable) {
		t.Fatalf("err = %v, want frame unavailable", err)
	}
	if !errors.Is(err, decodeErr) {
		t.Fatalf("err = %v, want wrapped cause", err)
	}
	var frameErr *services.FrameError
	if !errors.As(err, &frameErr) || frameErr.Index != 2 || frameErr.Timestamp != 5 {
		t.Fatalf("frame error = %#v", frameErr)
	}
	if visits != 2 {
		t.Fatalf("visits = %d, want 2", visits)
	}
	if len(handle.seeks) != 3 {
		t.Fatalf("seeks = %v, want no seek after failure", handle.seeks)
	}
}

func TestVisitSeekTimeout(t *testing.T) {
	handle := &fakeHandle{duration: 10, hang: true}
	s := New(time.Millisecond, 10*time.Millisecond)

	err := s.Visit(context.Background(), handle, []float64{1}, func(context.Context, int, float64) error {
		t.Fatal("visitor must not run after timeout")
		return nil
	})
	if !errors.Is(err, ErrSeekTimeout) || !errors.Is(err, services.ErrFrameUnavailable) {
		t.Fatalf("err = %v", err)
	}
}

func TestVisitContextCancel(t *testing.T) {
	handle := &fakeHandle{duration: 10, hang: true}
	s := New(time.Millisecond, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	err := s.Visit(ctx, handle, []float64{1}, func(context.Context, int, float64) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if errors.Is(err, services.ErrFrameUnavailable) {
		t.Fatalf("cancellation should not be reported as frame failure: %v", err)
	}
}

func TestVisitPropagatesVisitorError(t *testing.T) {
	handle := &fakeHandle{duration: 10}
	boom := errors.New("detector exploded")
	s := New(time.Millisecond, time.Second)
	err := s.Visit(context.Background(), handle, []float64{1, 2, 3}, func(_ context.Context, i int, _ float64) error {
		if i == 1 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want visitor error", err)
	}
	if len(handle.seeks) != 2 {
		t.Fatalf("seeks = %v, want stop after visitor error", handle.seeks)
	}
}
