package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"crowdwatch/internal/config"
	"crowdwatch/internal/services"
)

func TestParseObject(t *testing.T) {
	tests := []struct {
		ref     string
		want    Object
		ok      bool
		wantErr bool
	}{
		{ref: "clips/a.mp4"},
		{ref: "/abs/a.mp4"},
		{ref: "s3://crowds/2026/plaza.mp4", want: Object{Bucket: "crowds", Key: "2026/plaza.mp4"}, ok: true},
		{ref: "S3://crowds/plaza.mp4", want: Object{Bucket: "crowds", Key: "plaza.mp4"}, ok: true},
		{ref: "s3://crowds", ok: true, wantErr: true},
		{ref: "s3://crowds/dir/", ok: true, wantErr: true},
		{ref: "s3:///key.mp4", ok: true, wantErr: true},
	}
	for _, tt := range tests {
		got, ok, err := ParseObject(tt.ref)
		if ok != tt.ok {
			t.Fatalf("%s: ok=%v, want %v", tt.ref, ok, tt.ok)
		}
		if (err != nil) != tt.wantErr {
			t.Fatalf("%s: err=%v, wantErr=%v", tt.ref, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("%s: got %+v, want %+v", tt.ref, got, tt.want)
		}
	}
}

func TestResolveLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	in, err := (&Resolver{}).Resolve(context.Background(), path)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if in.Path != path || in.Label != "clip.mp4" || in.Remote {
		t.Fatalf("unexpected input %+v", in)
	}
	if err := in.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal("closing a local input must not remove the file")
	}
}

func TestResolveRejectsMissingAndDirectories(t *testing.T) {
	dir := t.TempDir()
	for _, ref := range []string{filepath.Join(dir, "missing.mp4"), dir, "  "} {
		_, err := (&Resolver{}).Resolve(context.Background(), ref)
		if !errors.Is(err, services.ErrUnsupportedInput) {
			t.Fatalf("%q: expected ErrUnsupportedInput, got %v", ref, err)
		}
	}
}

type fakeStore struct {
	body []byte
	err  error
	got  Object
}

func (f *fakeStore) Download(_ context.Context, obj Object, dest string) error {
	f.got = obj
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(dest, f.body, 0o644)
}

func TestResolveObjectDownloadsAndCleansUp(t *testing.T) {
	store := &fakeStore{body: []byte("video")}
	r := &Resolver{Store: store, TempDir: t.TempDir()}

	in, err := r.Resolve(context.Background(), "s3://crowds/events/plaza.mp4")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if store.got != (Object{Bucket: "crowds", Key: "events/plaza.mp4"}) {
		t.Fatalf("downloaded %+v", store.got)
	}
	if !in.Remote || in.Label != "s3://crowds/events/plaza.mp4" || filepath.Base(in.Path) != "plaza.mp4" {
		t.Fatalf("unexpected input %+v", in)
	}
	data, err := os.ReadFile(in.Path)
	if err != nil || string(data) != "video" {
		t.Fatalf("read download: %q %v", data, err)
	}
	if err := in.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(filepath.Dir(in.Path)); !os.IsNotExist(err) {
		t.Fatalf("expected temp dir removed, stat err=%v", err)
	}
	if err := in.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestResolveObjectErrors(t *testing.T) {
	_, err := (&Resolver{}).Resolve(context.Background(), "s3://crowds/a.mp4")
	if !errors.Is(err, services.ErrConfiguration) || !errors.Is(err, ErrStorageDisabled) {
		t.Fatalf("expected storage disabled config error, got %v", err)
	}

	tmp := t.TempDir()
	r := &Resolver{Store: &fakeStore{err: errors.New("access denied")}, TempDir: tmp}
	_, err = r.Resolve(context.Background(), "s3://crowds/a.mp4")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	entries, _ := os.ReadDir(tmp)
	if len(entries) != 0 {
		t.Fatalf("failed download left %d entries behind", len(entries))
	}
}

func TestNewMinioStoreDisabledWithoutEndpoint(t *testing.T) {
	store, err := NewMinioStore(config.Storage{})
	if err != nil || store != nil {
		t.Fatalf("expected nil store, got %v %v", store, err)
	}
	store, err = NewMinioStore(config.Storage{Endpoint: "localhost:9000", AccessKey: "k", SecretKey: "s"})
	if err != nil || store == nil {
		t.Fatalf("expected store, got %v %v", store, err)
	}
}
