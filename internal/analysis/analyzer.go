package analysis

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"crowdwatch/internal/aggregate"
	"crowdwatch/internal/counter"
	"crowdwatch/internal/detector"
	"crowdwatch/internal/logging"
	"crowdwatch/internal/metrics"
	"crowdwatch/internal/sampler"
	"crowdwatch/internal/services"
	"crowdwatch/internal/tracing"
)

// Status lines emitted through Request.Progress.
const (
	StatusLoadingModel = "Loading AI model..."
	StatusAnalyzing    = "Analyzing video frames..."
	StatusComplete     = "Analysis complete."
)

// ErrBusy is returned when Run is called while another run is in flight.
var ErrBusy = errors.New("analysis already in progress")

// FrameStatus formats the per-sample progress line.
func FrameStatus(index, total, count int) string {
	return fmt.Sprintf("Analyzed frame %d of %d (%d people)...", index+1, total, count)
}

// Media is a MediaHandle the analyzer owns for the length of a run.
type Media interface {
	sampler.MediaHandle
	Close() error
}

// OpenFunc opens path and returns once metadata is loaded.
type OpenFunc func(ctx context.Context, path string) (Media, error)

// ModelProvider is the detector.Adapter surface used by a run.
type ModelProvider interface {
	Load(ctx context.Context) (detector.Model, error)
	Detect(ctx context.Context, img image.Image) ([]detector.Detection, error)
	Variant() string
	State() detector.State
}

// Annotator persists an annotated copy of a sampled frame.
type Annotator interface {
	Write(runID string, index int, timestamp float64, raster image.Image, detections []detector.Detection) (string, error)
}

// Options configure an Analyzer.
type Options struct {
	Open          OpenFunc
	Detector      ModelProvider
	SampleCount   int
	SettleDelay   time.Duration
	SeekTimeout   time.Duration
	LoadTimeout   time.Duration
	DetectTimeout time.Duration
	Logger        *slog.Logger
}

// Request describes one run.
type Request struct {
	// Path is the local file to analyze.
	Path string
	// Label names the input in the report; defaults to Path.
	Label string
	// SampleCount overrides Options.SampleCount when positive.
	SampleCount int
	// Progress receives status lines in order. It is called synchronously.
	Progress func(string)
	// Annotator, when set, receives every sampled frame.
	Annotator Annotator
}

// Analyzer runs the sampling pipeline. It is safe for concurrent use but
// refuses overlapping runs with ErrBusy.
type Analyzer struct {
	opts    Options
	sampler *sampler.Sampler
	logger  *slog.Logger
	running atomic.Bool
}

// New returns an Analyzer. Zero settle and seek durations fall back to the
// sampler defaults; zero load and detect timeouts mean unbounded. A
// non-positive SampleCount makes every run fail with services.ErrMediaDecode.
func New(opts Options) *Analyzer {
	return &Analyzer{
		opts:    opts,
		sampler: sampler.New(opts.SettleDelay, opts.SeekTimeout),
		logger:  logging.NewComponentLogger(opts.Logger, "analysis"),
	}
}

// Busy reports whether a run is in flight.
func (a *Analyzer) Busy() bool { return a.running.Load() }

// Detector returns the model provider shared across runs.
func (a *Analyzer) Detector() ModelProvider { return a.opts.Detector }

// Run executes a full analysis of req.Path.
func (a *Analyzer) Run(ctx context.Context, req Request) (report *Report, err error) {
	if !a.running.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer a.running.Store(false)

	if a.opts.Open == nil || a.opts.Detector == nil {
		return nil, services.Wrap(services.ErrConfiguration, "analysis", "run", "analyzer missing media opener or detector", nil)
	}

	runID := uuid.NewString()
	ctx = services.WithRunID(ctx, runID)
	ctx, span := tracing.Tracer().Start(ctx, "analysis.Run")
	defer span.End()

	started := time.Now()
	metrics.ActiveRuns.Inc()
	defer func() {
		metrics.ActiveRuns.Dec()
		metrics.RunsTotal.WithLabelValues(metrics.Outcome(err)).Inc()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, metrics.Outcome(err))
		}
	}()

	label := req.Label
	if label == "" {
		label = req.Path
	}
	n := req.SampleCount
	if n <= 0 {
		n = a.opts.SampleCount
	}
	span.SetAttributes(
		attribute.String("run.id", runID),
		attribute.String("run.source", label),
		attribute.Int("run.samples", n),
	)
	progress := req.Progress
	if progress == nil {
		progress = func(string) {}
	}

	log := logging.WithContext(ctx, a.logger)
	log.Info("analysis started", logging.String("source", label), logging.Int("samples", n))

	report, err = a.run(ctx, runID, label, n, req, progress)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, a.logger), "analysis failed", "analysis_failed",
			logging.String("source", label),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.UserMessage(err)),
			logging.String(logging.FieldImpact, "no estimate produced"),
		)
		return nil, err
	}

	report.StartedAt = started
	report.Elapsed = time.Since(started)
	metrics.RunDuration.Observe(report.Elapsed.Seconds())
	metrics.DensityTotal.WithLabelValues(report.Result.Density.String()).Inc()
	metrics.LastEstimate.Set(float64(report.Result.PeopleEstimate))
	span.SetAttributes(
		attribute.Int("result.people_estimate", report.Result.PeopleEstimate),
		attribute.String("result.density", report.Result.Density.String()),
	)
	log.Info("analysis complete",
		logging.String("source", label),
		logging.Int("people_estimate", report.Result.PeopleEstimate),
		logging.String("density", report.Result.Density.String()),
		logging.Int("peak", report.Result.Peak),
		logging.Duration("elapsed", report.Elapsed),
	)
	return report, nil
}

func (a *Analyzer) run(ctx context.Context, runID, label string, n int, req Request, progress func(string)) (*Report, error) {
	tracer := tracing.Tracer()

	vctx, vspan := tracer.Start(services.WithStage(ctx, "validate"), "validate_input")
	mime, err := SniffFile(req.Path)
	vspan.End()
	if err != nil {
		return nil, err
	}

	octx, ospan := tracer.Start(services.WithStage(vctx, "open"), "open_media")
	media, err := a.opts.Open(octx, req.Path)
	ospan.End()
	if err != nil {
		if errors.Is(err, services.ErrMediaDecode) || errors.Is(err, services.ErrUnsupportedInput) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, services.Wrap(services.ErrMediaDecode, "open", "open media", label, err)
	}
	defer media.Close()

	duration := media.Duration()
	width, height := media.Dimensions()
	timestamps, err := sampler.Timestamps(duration, n)
	if err != nil {
		return nil, services.Wrap(services.ErrMediaDecode, "open", "plan samples", label, err)
	}

	progress(StatusLoadingModel)
	if err := a.loadModel(services.WithStage(ctx, "load"), tracer); err != nil {
		return nil, err
	}

	progress(StatusAnalyzing)
	counts, annotations, err := a.sample(services.WithStage(ctx, "sample"), tracer, runID, media, timestamps, req.Annotator, progress)
	if err != nil {
		return nil, err
	}

	result, err := aggregate.Estimate(counts)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	progress(StatusComplete)

	return &Report{
		RunID:       runID,
		Source:      label,
		MIME:        mime,
		Variant:     a.opts.Detector.Variant(),
		Duration:    duration,
		Width:       width,
		Height:      height,
		Timestamps:  timestamps,
		Counts:      counts,
		Result:      result,
		Annotations: annotations,
	}, nil
}

func (a *Analyzer) loadModel(ctx context.Context, tracer trace.Tracer) error {
	ctx, span := tracer.Start(ctx, "load_model")
	defer span.End()

	fresh := a.opts.Detector.State() != detector.StateLoaded
	loadCtx, cancel := withOptionalTimeout(ctx, a.opts.LoadTimeout)
	defer cancel()

	started := time.Now()
	_, err := a.opts.Detector.Load(loadCtx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	if fresh {
		metrics.ModelLoadDuration.Observe(time.Since(started).Seconds())
	}
	return nil
}

func (a *Analyzer) sample(
	ctx context.Context,
	tracer trace.Tracer,
	runID string,
	media Media,
	timestamps []float64,
	annotator Annotator,
	progress func(string),
) ([]int, []string, error) {
	log := logging.WithContext(ctx, a.logger)
	counts := make([]int, 0, len(timestamps))
	var annotations []string

	visit := func(ctx context.Context, index int, ts float64) error {
		fctx, span := tracer.Start(ctx, "count_frame", trace.WithAttributes(
			attribute.Int("sample.index", index),
			attribute.Float64("sample.timestamp", ts),
		))
		defer span.End()

		c := &counter.Counter{Detector: a.opts.Detector}
		if annotator != nil {
			c.Observer = func(raster *image.RGBA, detections []detector.Detection) {
				path, err := annotator.Write(runID, index, ts, raster, detections)
				if err != nil {
					logging.WarnWithContext(log, "frame annotation failed", "annotation_failed",
						logging.Int("sample", index+1),
						logging.Error(err),
						logging.String(logging.FieldImpact, "annotated frame not written"),
					)
					return
				}
				annotations = append(annotations, path)
			}
		}

		detectCtx, cancel := withOptionalTimeout(fctx, a.opts.DetectTimeout)
		frame, err := c.Count(detectCtx, media)
		cancel()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			span.RecordError(err)
			return services.NewFrameError(index, ts, err)
		}

		counts = append(counts, frame.Count)
		metrics.FramesAnalyzedTotal.Inc()
		span.SetAttributes(attribute.Int("sample.count", frame.Count))
		log.Debug("frame counted",
			logging.Int("sample", index+1),
			logging.Float64("timestamp", ts),
			logging.Int("people", frame.Count),
			logging.Int("detections", len(frame.Detections)),
		)
		progress(FrameStatus(index, len(timestamps), frame.Count))
		return nil
	}

	if err := a.sampler.Visit(ctx, media, timestamps, visit); err != nil {
		return nil, nil, err
	}
	if len(counts) != len(timestamps) {
		return nil, nil, fmt.Errorf("collected %d counts for %d samples", len(counts), len(timestamps))
	}
	return counts, annotations, nil
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
