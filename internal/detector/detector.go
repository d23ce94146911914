package detector

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
)

// PersonClass is the label detectors use for people.
const PersonClass = "person"

// Model variants understood by the detector backends. Smaller variants load
// faster and detect less reliably.
const (
	VariantMobileNetV2     = "mobilenet_v2"
	VariantLiteMobileNetV2 = "lite_mobilenet_v2"
	VariantMobileNetV1     = "mobilenet_v1"

	DefaultVariant = VariantMobileNetV2
)

// ErrNotLoaded is returned by Detect before a successful Load.
var ErrNotLoaded = errors.New("detector: model not loaded")

// Detection is one labeled box found in a frame, in native frame pixels.
type Detection struct {
	Class string          `json:"class"`
	Score float64         `json:"score"`
	Box   image.Rectangle `json:"-"`
}

// Config selects the model a Loader should produce.
type Config struct {
	Variant string
}

// Model runs inference on a single raster.
type Model interface {
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
}

// Loader produces a ready Model for a Config.
type Loader interface {
	Load(ctx context.Context, cfg Config) (Model, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, cfg Config) (Model, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, cfg Config) (Model, error) {
	return f(ctx, cfg)
}

// Variants returns the supported model variants, default first.
func Variants() []string {
	return []string{VariantMobileNetV2, VariantLiteMobileNetV2, VariantMobileNetV1}
}

// NormalizeVariant lowercases and validates a variant name. Empty input yields
// DefaultVariant.
func NormalizeVariant(value string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return DefaultVariant, nil
	}
	for _, known := range Variants() {
		if v == known {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown detector variant %q (want one of %s)", value, strings.Join(Variants(), ", "))
}

// CountPeople returns how many detections carry the person label.
func CountPeople(detections []Detection) int {
	n := 0
	for _, d := range detections {
		if d.Class == PersonClass {
			n++
		}
	}
	return n
}
