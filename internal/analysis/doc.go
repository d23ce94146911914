// Package analysis drives one crowd estimation run end to end.
//
// An Analyzer checks that the input is a video, opens it through the media
// layer, loads the detector once, visits each sample timestamp in order, and
// hands the per-frame counts to the aggregator. Status lines are forwarded to
// an optional Progress callback so the CLI and server can surface them
// without the pipeline knowing who is listening.
//
// A run either produces a full Report or fails with one of the services
// markers; partial counts never reach the aggregator.
package analysis
