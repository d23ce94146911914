// Package aggregate reduces per-frame person counts into a single crowd
// estimate and a coarse density label.
//
// The estimate blends the peak and the rounded mean count, weighting the peak
// higher because occlusion and framing undercount most frames relative to the
// best-exposed one, then applies a fixed uplift for residual occlusion. The
// constants are heuristic, not statistically derived, and are kept stable so
// results stay comparable across releases.
//
// DensityLevel is the single source of the density thresholds. Any component
// that needs a density label must call it rather than restating the numbers.
package aggregate
