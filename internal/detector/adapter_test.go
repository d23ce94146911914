package detector

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"

	"crowdwatch/internal/services"
)

type stubModel struct {
	detections []Detection
}

func (m *stubModel) Detect(context.Context, image.Image) ([]Detection, error) {
	return m.detections, nil
}

type countingLoader struct {
	calls atomic.Int32
	fail  atomic.Bool
	model Model
	seen  Config
}

func (l *countingLoader) Load(_ context.Context, cfg Config) (Model, error) {
	l.calls.Add(1)
	l.seen = cfg
	if l.fail.Load() {
		return nil, errors.New("connection refused")
	}
	return l.model, nil
}

func TestAdapterLoadIsMemoized(t *testing.T) {
	loader := &countingLoader{model: &stubModel{}}
	adapter := NewAdapter(loader, Config{}, nil)

	if adapter.State() != StateUnloaded {
		t.Fatalf("initial state = %s", adapter.State())
	}
	first, err := adapter.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	second, err := adapter.Load(context.Background())
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if first != second {
		t.Fatal("expected the same model instance")
	}
	if got := loader.calls.Load(); got != 1 {
		t.Fatalf("loader calls = %d, want 1", got)
	}
	if adapter.State() != StateLoaded {
		t.Fatalf("state = %s, want loaded", adapter.State())
	}
	if loader.seen.Variant != DefaultVariant {
		t.Fatalf("variant = %q, want default", loader.seen.Variant)
	}
}

func TestAdapterConcurrentLoadHitsBackendOnce(t *testing.T) {
	loader := &countingLoader{model: &stubModel{}}
	adapter := NewAdapter(loader, Config{Variant: VariantMobileNetV1}, nil)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := adapter.Load(context.Background()); err != nil {
				t.Errorf("Load: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := loader.calls.Load(); got != 1 {
		t.Fatalf("loader calls = %d, want 1", got)
	}
}

func TestAdapterFailedLoadIsRetryable(t *testing.T) {
	loader := &countingLoader{model: &stubModel{}}
	loader.fail.Store(true)
	adapter := NewAdapter(loader, Config{}, nil)

	_, err := adapter.Load(context.Background())
	if !errors.Is(err, services.ErrModelUnavailable) {
		t.Fatalf("err = %v, want ErrModelUnavailable", err)
	}
	if adapter.State() != StateFailed {
		t.Fatalf("state = %s, want failed", adapter.State())
	}
	if adapter.LastError() == nil {
		t.Fatal("expected last error recorded")
	}

	loader.fail.Store(false)
	if _, err := adapter.Load(context.Background()); err != nil {
		t.Fatalf("retry Load: %v", err)
	}
	if got := loader.calls.Load(); got != 2 {
		t.Fatalf("loader calls = %d, want 2 (retry must reach backend)", got)
	}
	if adapter.State() != StateLoaded || adapter.LastError() != nil {
		t.Fatalf("state = %s err = %v after retry", adapter.State(), adapter.LastError())
	}
}

func TestAdapterNilModelIsFailure(t *testing.T) {
	adapter := NewAdapter(LoaderFunc(func(context.Context, Config) (Model, error) {
		return nil, nil
	}), Config{}, nil)
	if _, err := adapter.Load(context.Background()); !errors.Is(err, services.ErrModelUnavailable) {
		t.Fatalf("err = %v", err)
	}
}

func TestAdapterMissingLoader(t *testing.T) {
	adapter := NewAdapter(nil, Config{}, nil)
	if _, err := adapter.Load(context.Background()); !errors.Is(err, services.ErrModelUnavailable) {
		t.Fatalf("err = %v", err)
	}
}

func TestAdapterDetectBeforeLoad(t *testing.T) {
	adapter := NewAdapter(&countingLoader{model: &stubModel{}}, Config{}, nil)
	_, err := adapter.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 1, 1)))
	if !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("err = %v, want ErrNotLoaded", err)
	}
}

func TestAdapterDetectDelegates(t *testing.T) {
	model := &stubModel{detections: []Detection{{Class: PersonClass}, {Class: "dog"}}}
	adapter := NewAdapter(&countingLoader{model: model}, Config{}, nil)
	if _, err := adapter.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got, err := adapter.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 1, 1)))
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(got) != 2 || CountPeople(got) != 1 {
		t.Fatalf("detections = %+v", got)
	}
}

func TestNormalizeVariant(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", DefaultVariant, false},
		{" Lite_MobileNet_V2 ", VariantLiteMobileNetV2, false},
		{"mobilenet_v1", VariantMobileNetV1, false},
		{"yolo", "", true},
	}
	for _, tc := range tests {
		got, err := NormalizeVariant(tc.in)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Fatalf("NormalizeVariant(%q) = %q, %v", tc.in, got, err)
		}
	}
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		StateUnloaded: "unloaded",
		StateLoading:  "loading",
		StateLoaded:   "loaded",
		StateFailed:   "failed",
	} {
		if state.String() != want {
			t.Fatalf("%d.String() = %q", state, state.String())
		}
	}
}
