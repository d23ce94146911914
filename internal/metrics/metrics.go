// Package metrics registers the Prometheus collectors exported by crowdwatch.
package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"crowdwatch/internal/services"
)

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crowdwatch_runs_total",
		Help: "Analysis runs by outcome",
	}, []string{"outcome"})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crowdwatch_run_duration_seconds",
		Help:    "Wall time of completed analysis runs",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	ModelLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "crowdwatch_model_load_duration_seconds",
		Help:    "Time spent loading the detector model",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
	})

	FramesAnalyzedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crowdwatch_frames_analyzed_total",
		Help: "Sampled frames that completed detection",
	})

	DensityTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crowdwatch_density_total",
		Help: "Completed runs by density level",
	}, []string{"density"})

	LastEstimate = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crowdwatch_last_people_estimate",
		Help: "People estimate from the most recent completed run",
	})

	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crowdwatch_active_runs",
		Help: "Analysis runs currently in flight",
	})
)

// Outcome labels err for RunsTotal.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, services.ErrUnsupportedInput):
		return "unsupported_input"
	case errors.Is(err, services.ErrMediaDecode):
		return "media_decode"
	case errors.Is(err, services.ErrModelUnavailable):
		return "model_unavailable"
	case errors.Is(err, services.ErrFrameUnavailable):
		return "frame_unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
