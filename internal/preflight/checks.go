package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

const (
	detectorCheckTimeout = 10 * time.Second
	dialTimeout          = 5 * time.Second
)

// CheckDetector verifies that the inference service answers with a usable
// manifest for variant.
func CheckDetector(ctx context.Context, client ManifestFetcher, variant string) Result {
	const name = "Detector service"

	checkCtx, cancel := context.WithTimeout(ctx, detectorCheckTimeout)
	defer cancel()

	m, err := client.Manifest(checkCtx, variant)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (%s)", client.Endpoint(), summarizeError(err))}
	}
	return Result{
		Name:   name,
		Passed: true,
		Detail: fmt.Sprintf("%s %s/%s %dx%d", client.Endpoint(), m.Architecture, m.Variant, m.Width, m.Height),
	}
}

// CheckTCP verifies that hostport accepts connections.
func CheckTCP(ctx context.Context, name, hostport string) Result {
	hostport = strings.TrimSpace(hostport)
	if hostport == "" {
		return Result{Name: name, Detail: "missing endpoint"}
	}
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", hostport)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (%s)", hostport, summarizeError(err))}
	}
	_ = conn.Close()
	return Result{Name: name, Passed: true, Detail: hostport + " (reachable)"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out"
	}
	return err.Error()
}
