package analysis

import (
	"time"

	"crowdwatch/internal/aggregate"
)

// Report is everything a completed run produced.
type Report struct {
	RunID       string           `json:"run_id"`
	Source      string           `json:"source"`
	MIME        string           `json:"mime"`
	Variant     string           `json:"variant"`
	Duration    float64          `json:"duration_seconds"`
	Width       int              `json:"width"`
	Height      int              `json:"height"`
	Timestamps  []float64        `json:"timestamps"`
	Counts      []int            `json:"counts"`
	Result      aggregate.Result `json:"result"`
	Annotations []string         `json:"annotations,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	Elapsed     time.Duration    `json:"elapsed_ns"`
}

// Sample pairs one timestamp with its count.
type Sample struct {
	Index     int
	Timestamp float64
	Count     int
}

// Samples zips Timestamps and Counts.
func (r Report) Samples() []Sample {
	out := make([]Sample, 0, len(r.Counts))
	for i, c := range r.Counts {
		s := Sample{Index: i, Count: c}
		if i < len(r.Timestamps) {
			s.Timestamp = r.Timestamps[i]
		}
		out = append(out, s)
	}
	return out
}
