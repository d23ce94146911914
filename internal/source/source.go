package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"crowdwatch/internal/services"
)

// Scheme is the URI scheme for object storage references.
const Scheme = "s3"

// ErrStorageDisabled is returned for s3:// references when no storage backend
// has been configured.
var ErrStorageDisabled = errors.New("object storage not configured")

// Object identifies a clip in a bucket.
type Object struct {
	Bucket string
	Key    string
}

func (o Object) String() string {
	return Scheme + "://" + o.Bucket + "/" + o.Key
}

// ParseObject parses ref as an s3://bucket/key reference. ok is false when ref
// is not an s3 URI at all, in which case it should be treated as a path.
func ParseObject(ref string) (Object, bool, error) {
	if !strings.HasPrefix(strings.ToLower(ref), Scheme+"://") {
		return Object{}, false, nil
	}
	u, err := url.Parse(ref)
	if err != nil {
		return Object{}, true, fmt.Errorf("parse %q: %w", ref, err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" || strings.HasSuffix(key, "/") {
		return Object{}, true, fmt.Errorf("%q: expected s3://bucket/key", ref)
	}
	return Object{Bucket: u.Host, Key: key}, true, nil
}

// Downloader fetches a single object to a local path.
type Downloader interface {
	Download(ctx context.Context, obj Object, dest string) error
}

// Input is a resolved clip on local disk.
type Input struct {
	// Path is the local file to analyze.
	Path string
	// Label is what reports and logs show for the input.
	Label string
	// Remote is true when Path is a temporary download.
	Remote bool

	cleanup string
}

// Close removes any temporary download. It is safe to call more than once.
func (in *Input) Close() error {
	if in == nil || in.cleanup == "" {
		return nil
	}
	dir := in.cleanup
	in.cleanup = ""
	return os.RemoveAll(dir)
}

// Resolver resolves analyze arguments.
type Resolver struct {
	// Store is used for s3:// references. Nil means storage is disabled.
	Store Downloader
	// TempDir is the parent for downloads; empty uses os.TempDir.
	TempDir string
}

// Resolve returns a local Input for ref. Local paths must name a regular file.
func (r *Resolver) Resolve(ctx context.Context, ref string) (*Input, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, services.Wrap(services.ErrUnsupportedInput, "source", "resolve", "no input given", nil)
	}

	obj, isObject, err := ParseObject(ref)
	if err != nil {
		return nil, services.Wrap(services.ErrUnsupportedInput, "source", "parse", "invalid object reference", err)
	}
	if !isObject {
		return resolveLocal(ref)
	}
	if r == nil || r.Store == nil {
		return nil, services.Wrap(services.ErrConfiguration, "source", "resolve", obj.String(), ErrStorageDisabled)
	}

	dir, err := os.MkdirTemp(r.TempDir, "crowdwatch-src-")
	if err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	dest := filepath.Join(dir, safeBase(obj.Key))
	if err := r.Store.Download(ctx, obj, dest); err != nil {
		_ = os.RemoveAll(dir)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, services.Wrap(services.ErrExternalTool, "source", "download", obj.String(), err)
	}
	return &Input{Path: dest, Label: obj.String(), Remote: true, cleanup: dir}, nil
}

func resolveLocal(ref string) (*Input, error) {
	abs, err := filepath.Abs(ref)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, services.Wrap(services.ErrUnsupportedInput, "source", "stat", ref, err)
	}
	if !info.Mode().IsRegular() {
		return nil, services.Wrap(services.ErrUnsupportedInput, "source", "stat", ref+" is not a regular file", nil)
	}
	return &Input{Path: abs, Label: filepath.Base(abs)}, nil
}

func safeBase(key string) string {
	base := path.Base(key)
	if base == "." || base == "/" || base == ".." || base == "" {
		return "object"
	}
	return base
}
