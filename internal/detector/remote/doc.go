// Package remote implements detector.Loader against an HTTP inference service.
//
// Load fetches the model manifest for a variant and checks that it can label
// people; the manifest is cached on disk so operators can see what was last
// pulled without reaching the service. Detect uploads one JPEG frame per call
// and maps the returned boxes back into native frame coordinates.
package remote
