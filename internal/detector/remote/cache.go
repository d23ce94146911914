package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const lockRetryDelay = 50 * time.Millisecond

func manifestPath(dir, variant string) string {
	return filepath.Join(dir, variant+".json")
}

// writeManifest stores m under dir atomically. Concurrent writers for the same
// variant are serialized through a sibling lock file.
func writeManifest(ctx context.Context, dir string, m Manifest) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create model cache: %w", err)
	}
	target := manifestPath(dir, m.Variant)

	lock := flock.New(target + ".lock")
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return "", fmt.Errorf("lock model cache: %w", err)
	}
	if !locked {
		return "", fmt.Errorf("lock model cache: %s is busy", target)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("install manifest: %w", err)
	}
	return target, nil
}
