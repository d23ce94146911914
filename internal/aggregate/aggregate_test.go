package aggregate

import (
	"errors"
	"testing"
)

func TestEstimateReferenceCounts(t *testing.T) {
	result, err := Estimate([]int{2, 4, 10, 3, 5})
	if err != nil {
		t.Fatalf("Estimate returned error: %v", err)
	}
	if result.Peak != 10 {
		t.Fatalf("expected peak 10, got %d", result.Peak)
	}
	if result.Mean != 5 {
		t.Fatalf("expected mean 5, got %d", result.Mean)
	}
	if result.PeopleEstimate != 10 {
		t.Fatalf("expected estimate 10, got %d", result.PeopleEstimate)
	}
	if result.Density != DensityModerate {
		t.Fatalf("expected Moderate, got %s", result.Density)
	}
}

func TestEstimateTable(t *testing.T) {
	tests := []struct {
		name     string
		counts   []int
		estimate int
		density  Density
	}{
		{name: "empty scene", counts: []int{0, 0, 0, 0, 0}, estimate: 0, density: DensityLow},
		{name: "single person", counts: []int{0, 1, 0, 0, 0}, estimate: 1, density: DensityLow},
		{name: "steady crowd", counts: []int{20, 20, 20, 20, 20}, estimate: 23, density: DensityModerate},
		{name: "dense peak", counts: []int{30, 28, 40, 31, 35}, estimate: 44, density: DensityHigh},
		{name: "single sample", counts: []int{8}, estimate: 9, density: DensityLow},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := Estimate(tc.counts)
			if err != nil {
				t.Fatalf("Estimate returned error: %v", err)
			}
			if result.PeopleEstimate != tc.estimate {
				t.Fatalf("estimate: got %d want %d", result.PeopleEstimate, tc.estimate)
			}
			if result.Density != tc.density {
				t.Fatalf("density: got %s want %s", result.Density, tc.density)
			}
		})
	}
}

func TestEstimateIsDeterministic(t *testing.T) {
	counts := []int{7, 12, 9, 15, 11}
	first, err := Estimate(counts)
	if err != nil {
		t.Fatalf("Estimate returned error: %v", err)
	}
	for i := 0; i < 50; i++ {
		again, err := Estimate(counts)
		if err != nil {
			t.Fatalf("Estimate returned error: %v", err)
		}
		if again != first {
			t.Fatalf("run %d: got %+v want %+v", i, again, first)
		}
	}
	if counts[0] != 7 || counts[4] != 11 {
		t.Fatalf("Estimate mutated its input: %v", counts)
	}
}

func TestEstimateRejectsInvalidInput(t *testing.T) {
	if _, err := Estimate(nil); !errors.Is(err, ErrNoCounts) {
		t.Fatalf("expected ErrNoCounts, got %v", err)
	}
	if _, err := Estimate([]int{1, -1}); err == nil {
		t.Fatal("expected error for negative count")
	}
}

func TestDensityLevelBoundaries(t *testing.T) {
	cases := map[int]Density{
		0:   DensityLow,
		9:   DensityLow,
		10:  DensityModerate,
		34:  DensityModerate,
		35:  DensityHigh,
		500: DensityHigh,
	}
	for estimate, want := range cases {
		if got := DensityLevel(estimate); got != want {
			t.Fatalf("DensityLevel(%d) = %s, want %s", estimate, got, want)
		}
	}
}

func TestParseDensity(t *testing.T) {
	got, err := ParseDensity(" high ")
	if err != nil {
		t.Fatalf("ParseDensity returned error: %v", err)
	}
	if got != DensityHigh {
		t.Fatalf("expected High, got %s", got)
	}
	if _, err := ParseDensity("extreme"); err == nil {
		t.Fatal("expected error for unknown density")
	}
	if DensityLow.Rank() >= DensityModerate.Rank() || DensityModerate.Rank() >= DensityHigh.Rank() {
		t.Fatal("expected Low < Moderate < High")
	}
}
