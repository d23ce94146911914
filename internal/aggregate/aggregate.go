package aggregate

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	PeakWeight = 0.7
	MeanWeight = 0.3
	// OcclusionUplift compensates for people hidden behind others.
	OcclusionUplift = 1.15

	ModerateThreshold = 10
	HighThreshold     = 35
)

// ErrNoCounts is returned when Estimate is called without any frame counts.
var ErrNoCounts = errors.New("aggregate: no frame counts")

// Density is the coarse crowd density category.
type Density string

const (
	DensityLow      Density = "Low"
	DensityModerate Density = "Moderate"
	DensityHigh     Density = "High"
)

func (d Density) String() string { return string(d) }

// Rank orders densities from Low (0) to High (2). Unknown values rank -1.
func (d Density) Rank() int {
	switch d {
	case DensityLow:
		return 0
	case DensityModerate:
		return 1
	case DensityHigh:
		return 2
	default:
		return -1
	}
}

// ParseDensity accepts a density label in any letter case.
func ParseDensity(value string) (Density, error) {
	for _, d := range []Density{DensityLow, DensityModerate, DensityHigh} {
		if strings.EqualFold(strings.TrimSpace(value), string(d)) {
			return d, nil
		}
	}
	return "", fmt.Errorf("aggregate: unknown density %q", value)
}

// Result is the terminal artifact of one analysis run.
type Result struct {
	PeopleEstimate int     `json:"people_estimate"`
	Density        Density `json:"density"`
	Peak           int     `json:"peak"`
	Mean           int     `json:"mean"`
}

// DensityLevel maps a people estimate onto a density category. The ranges
// are disjoint and cover every non-negative integer.
func DensityLevel(estimate int) Density {
	switch {
	case estimate < ModerateThreshold:
		return DensityLow
	case estimate < HighThreshold:
		return DensityModerate
	default:
		return DensityHigh
	}
}

// Estimate combines a complete sequence of per-frame person counts.
func Estimate(counts []int) (Result, error) {
	if len(counts) == 0 {
		return Result{}, ErrNoCounts
	}
	peak := 0
	sum := 0
	for i, c := range counts {
		if c < 0 {
			return Result{}, fmt.Errorf("aggregate: negative count %d at frame %d", c, i)
		}
		if c > peak {
			peak = c
		}
		sum += c
	}
	mean := int(math.Round(float64(sum) / float64(len(counts))))
	blended := (float64(peak)*PeakWeight + float64(mean)*MeanWeight) * OcclusionUplift
	estimate := int(math.Round(blended))
	return Result{
		PeopleEstimate: estimate,
		Density:        DensityLevel(estimate),
		Peak:           peak,
		Mean:           mean,
	}, nil
}
