// Package detector owns the object-detection model used to count people in
// sampled frames.
//
// The Adapter loads a model lazily through a pluggable Loader and memoizes it
// for the rest of the process. Load failures are reported as
// services.ErrModelUnavailable and leave the adapter retryable; a later Load
// goes back to the backend instead of replaying the cached failure.
// Backends live in subpackages (see detector/remote).
package detector
