package detector

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"crowdwatch/internal/logging"
	"crowdwatch/internal/services"
)

// State describes where the adapter is in its load lifecycle.
type State int

const (
	StateUnloaded State = iota
	StateLoading
	StateLoaded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Adapter memoizes a single Model for the process lifetime.
type Adapter struct {
	loader Loader
	cfg    Config
	logger *slog.Logger

	// loadMu serializes Load; mu guards the fields below.
	loadMu  sync.Mutex
	mu      sync.RWMutex
	state   State
	model   Model
	lastErr error
}

// NewAdapter wraps loader. A nil logger discards output.
func NewAdapter(loader Loader, cfg Config, logger *slog.Logger) *Adapter {
	return &Adapter{
		loader: loader,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "detector"),
	}
}

// Variant reports the configured model variant.
func (a *Adapter) Variant() string {
	if a.cfg.Variant == "" {
		return DefaultVariant
	}
	return a.cfg.Variant
}

// State reports the current lifecycle state.
func (a *Adapter) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// LastError returns the error from the most recent failed load, if any.
func (a *Adapter) LastError() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastErr
}

// Load returns the memoized model, loading it on first use. A failure is
// wrapped with services.ErrModelUnavailable and the next call retries.
func (a *Adapter) Load(ctx context.Context) (Model, error) {
	if m := a.loaded(); m != nil {
		return m, nil
	}

	a.loadMu.Lock()
	defer a.loadMu.Unlock()
	if m := a.loaded(); m != nil {
		return m, nil
	}
	if a.loader == nil {
		return nil, a.fail(fmt.Errorf("no detector backend configured"))
	}

	a.setState(StateLoading, nil, nil)
	started := time.Now()
	a.logger.Info("loading detector model", logging.String("variant", a.Variant()))

	model, err := a.loader.Load(ctx, Config{Variant: a.Variant()})
	if err == nil && model == nil {
		err = fmt.Errorf("backend returned no model")
	}
	if err != nil {
		return nil, a.fail(err)
	}

	a.setState(StateLoaded, model, nil)
	a.logger.Info("detector model ready",
		logging.String("variant", a.Variant()),
		logging.Duration("load_time", time.Since(started)),
	)
	return model, nil
}

// Detect runs the loaded model on img. It returns ErrNotLoaded if Load has
// not succeeded yet.
func (a *Adapter) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	m := a.loaded()
	if m == nil {
		return nil, ErrNotLoaded
	}
	return m.Detect(ctx, img)
}

func (a *Adapter) loaded() Model {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.state == StateLoaded {
		return a.model
	}
	return nil
}

func (a *Adapter) fail(cause error) error {
	err := services.Wrap(services.ErrModelUnavailable, "detector", "load", a.Variant(), cause)
	a.setState(StateFailed, nil, err)
	a.logger.Warn("detector model load failed",
		logging.String("variant", a.Variant()),
		logging.Error(cause),
		logging.String(logging.FieldEventType, "model_load_failed"),
	)
	return err
}

func (a *Adapter) setState(state State, model Model, err error) {
	a.mu.Lock()
	a.state = state
	a.model = model
	a.lastErr = err
	a.mu.Unlock()
}
