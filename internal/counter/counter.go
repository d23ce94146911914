// Package counter turns the handle's current frame into a person count.
package counter

import (
	"context"
	"fmt"
	"image"

	"crowdwatch/internal/detector"
	"crowdwatch/internal/sampler"
)

// Detector is the subset of detector.Adapter the counter needs.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]detector.Detection, error)
}

// Frame is the outcome of counting one sampled frame.
type Frame struct {
	Count      int
	Detections []detector.Detection
}

// Observer sees each captured raster with its detections. The raster is only
// valid for the duration of the call.
type Observer func(raster *image.RGBA, detections []detector.Detection)

// Counter captures frames at native size and counts people in them.
type Counter struct {
	Detector Detector
	Observer Observer
}

// Count draws the handle's current frame and runs detection on it.
// Dimensions are read at capture time, after the seek has settled.
func (c *Counter) Count(ctx context.Context, handle sampler.MediaHandle) (Frame, error) {
	if c.Detector == nil {
		return Frame{}, fmt.Errorf("counter: no detector")
	}
	w, h := handle.Dimensions()
	if w <= 0 || h <= 0 {
		return Frame{}, fmt.Errorf("counter: frame has no pixels (%dx%d)", w, h)
	}
	raster := image.NewRGBA(image.Rect(0, 0, w, h))
	if err := handle.DrawFrame(raster); err != nil {
		return Frame{}, fmt.Errorf("capture frame: %w", err)
	}

	detections, err := c.Detector.Detect(ctx, raster)
	if err != nil {
		return Frame{}, fmt.Errorf("detect: %w", err)
	}
	if c.Observer != nil {
		c.Observer(raster, detections)
	}
	return Frame{Count: detector.CountPeople(detections), Detections: detections}, nil
}
