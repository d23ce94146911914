package preflight

import (
	"context"

	"crowdwatch/internal/config"
	"crowdwatch/internal/deps"
	"crowdwatch/internal/detector/remote"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// ManifestFetcher is the part of the detector client used to probe the
// inference service.
type ManifestFetcher interface {
	Endpoint() string
	Manifest(ctx context.Context, variant string) (remote.Manifest, error)
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config, detector ManifestFetcher) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	for _, status := range deps.CheckBinaries(ctx, deps.MediaRequirements(cfg.FFmpegBinary(), cfg.FFprobeBinary())) {
		results = append(results, fromStatus(status))
	}

	results = append(results, CheckDirectoryAccess("Cache directory", cfg.Paths.CacheDir))
	if cfg.Paths.AnnotateDir != "" {
		results = append(results, CheckDirectoryAccess("Annotation directory", cfg.Paths.AnnotateDir))
	}

	if detector != nil {
		results = append(results, CheckDetector(ctx, detector, cfg.Detector.Variant))
	}

	if cfg.StorageEnabled() {
		res := CheckTCP(ctx, "Object storage", cfg.Storage.Endpoint)
		res.Optional = true
		results = append(results, res)
	}

	return results
}

// Failed returns the non-optional results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, r)
		}
	}
	return failed
}

func fromStatus(status deps.Status) Result {
	res := Result{Name: status.Name, Passed: status.Available, Optional: status.Optional}
	switch {
	case !status.Available:
		res.Detail = status.Detail
	case status.Version != "":
		res.Detail = status.Version
	default:
		res.Detail = status.Command
	}
	return res
}
