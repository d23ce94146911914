package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"crowdwatch/internal/aggregate"
	"crowdwatch/internal/analysis"
	"crowdwatch/internal/notifications"
	"crowdwatch/internal/services"
)

type fakeRunner struct {
	mu      sync.Mutex
	busy    bool
	err     error
	got     analysis.Request
	content []byte
	calls   int
}

func (f *fakeRunner) Busy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busy
}

func (f *fakeRunner) Run(ctx context.Context, req analysis.Request) (*analysis.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.got = req
	f.content, _ = os.ReadFile(req.Path)
	if f.err != nil {
		return nil, f.err
	}
	return &analysis.Report{
		RunID:  "run-1",
		Source: req.Label,
		Counts: []int{40, 38},
		Result: aggregate.Result{PeopleEstimate: 46, Density: aggregate.DensityHigh, Peak: 40, Mean: 39},
	}, nil
}

type fakeNotifier struct {
	crowds []notifications.Crowd
	errs   []error
}

func (f *fakeNotifier) NotifyCrowd(_ context.Context, c notifications.Crowd) (bool, error) {
	f.crowds = append(f.crowds, c)
	return true, nil
}

func (f *fakeNotifier) NotifyError(_ context.Context, err error, _ string) error {
	f.errs = append(f.errs, err)
	return nil
}

func (f *fakeNotifier) TestNotification(context.Context) error { return nil }

func multipartBody(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("note", "ignored"); err != nil {
		t.Fatal(err)
	}
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestAnalyzeMultipartUpload(t *testing.T) {
	runner := &fakeRunner{}
	notifier := &fakeNotifier{}
	srv := New(runner, Options{Notifier: notifier, TempDir: t.TempDir()})

	body, ct := multipartBody(t, "video", "plaza.mp4", []byte("clip-bytes"))
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze?samples=8", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var report analysis.Report
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Result.PeopleEstimate != 46 || report.Source != "plaza.mp4" {
		t.Fatalf("unexpected report %+v", report)
	}
	if runner.got.SampleCount != 8 || runner.got.Label != "plaza.mp4" {
		t.Fatalf("unexpected request %+v", runner.got)
	}
	if string(runner.content) != "clip-bytes" {
		t.Fatalf("runner saw %q", runner.content)
	}
	if _, err := os.Stat(runner.got.Path); !os.IsNotExist(err) {
		t.Fatalf("upload should be removed after the run, stat err=%v", err)
	}
	if len(notifier.crowds) != 1 || notifier.crowds[0].Density != aggregate.DensityHigh {
		t.Fatalf("expected one crowd notification, got %+v", notifier.crowds)
	}
}

func TestAnalyzeRawVideoBody(t *testing.T) {
	runner := &fakeRunner{}
	srv := New(runner, Options{TempDir: t.TempDir()})

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze?name=gate.webm", strings.NewReader("webm-bytes"))
	req.Header.Set("Content-Type", "video/webm")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if runner.got.Label != "gate.webm" || string(runner.content) != "webm-bytes" {
		t.Fatalf("unexpected request %+v content %q", runner.got, runner.content)
	}
}

func TestAnalyzeRejectsBadRequests(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		target      string
		contentType string
		body        string
		want        int
	}{
		{name: "method", method: http.MethodGet, target: "/v1/analyze", want: http.StatusMethodNotAllowed},
		{name: "content type", method: http.MethodPost, target: "/v1/analyze", contentType: "text/plain", body: "hi", want: http.StatusUnsupportedMediaType},
		{name: "samples", method: http.MethodPost, target: "/v1/analyze?samples=zero", contentType: "video/mp4", want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			srv := New(runner, Options{TempDir: t.TempDir()})
			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
			if runner.calls != 0 {
				t.Fatal("runner must not be called")
			}
		})
	}
}

func TestAnalyzeMissingMultipartField(t *testing.T) {
	srv := New(&fakeRunner{}, Options{TempDir: t.TempDir()})
	body, ct := multipartBody(t, "file", "plaza.mp4", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", w.Code)
	}
}

func TestAnalyzeUploadTooLarge(t *testing.T) {
	srv := New(&fakeRunner{}, Options{TempDir: t.TempDir(), MaxUploadBytes: 4})
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader("0123456789"))
	req.Header.Set("Content-Type", "video/mp4")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAnalyzeBusy(t *testing.T) {
	runner := &fakeRunner{busy: true}
	srv := New(runner, Options{TempDir: t.TempDir()})
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader("x"))
	req.Header.Set("Content-Type", "video/mp4")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Kind != "busy" {
		t.Fatalf("unexpected kind %q", resp.Kind)
	}
}

func TestAnalyzeErrorMapping(t *testing.T) {
	tests := []struct {
		err      error
		want     int
		wantKind string
	}{
		{services.Wrap(services.ErrUnsupportedInput, "validate", "sniff", "text/plain", nil), http.StatusUnsupportedMediaType, "unsupported_input"},
		{services.Wrap(services.ErrMediaDecode, "open", "probe", "clip", nil), http.StatusUnprocessableEntity, "media_decode"},
		{services.Wrap(services.ErrModelUnavailable, "detector", "load", "mobilenet_v2", nil), http.StatusServiceUnavailable, "model_unavailable"},
		{services.NewFrameError(2, 5, errors.New("decode")), http.StatusUnprocessableEntity, "frame_unavailable"},
		{analysis.ErrBusy, http.StatusConflict, "busy"},
		{errors.New("boom"), http.StatusInternalServerError, "error"},
	}
	for _, tt := range tests {
		notifier := &fakeNotifier{}
		srv := New(&fakeRunner{err: tt.err}, Options{TempDir: t.TempDir(), Notifier: notifier})
		req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader("x"))
		req.Header.Set("Content-Type", "video/mp4")
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		if w.Code != tt.want {
			t.Fatalf("%v: expected %d, got %d", tt.err, tt.want, w.Code)
		}
		var resp ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Kind != tt.wantKind || resp.Error == "" {
			t.Fatalf("%v: unexpected body %+v", tt.err, resp)
		}
		if len(notifier.crowds) != 0 {
			t.Fatal("failed runs must not send crowd alerts")
		}
		if errors.Is(tt.err, services.ErrModelUnavailable) != (len(notifier.errs) == 1) {
			t.Fatalf("%v: unexpected error notifications %v", tt.err, notifier.errs)
		}
	}
}

func TestAnalyzeRequiresToken(t *testing.T) {
	srv := New(&fakeRunner{}, Options{TempDir: t.TempDir(), Token: "s3cret"})

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader("x"))
	req.Header.Set("Content-Type", "video/mp4")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader("x"))
	req.Header.Set("Content-Type", "video/mp4")
	req.Header.Set("Authorization", "Bearer s3cret")
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}

	health := httptest.NewRecorder()
	srv.Handler().ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if health.Code != http.StatusOK {
		t.Fatalf("healthz must not require auth, got %d", health.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := New(&fakeRunner{busy: true}, Options{})

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var health HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "ok" || !health.Busy {
		t.Fatalf("unexpected health %+v", health)
	}

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "crowdwatch_active_runs") {
		t.Fatalf("metrics missing crowdwatch collectors: %d", w.Code)
	}
}

func TestListenAndServeShutsDownOnCancel(t *testing.T) {
	srv := New(&fakeRunner{}, Options{Bind: "127.0.0.1:0"})
	ctx, cancel := context.WithCancel(context.Background())
	addrCh := make(chan net.Addr, 1)
	done := make(chan error, 1)
	go func() {
		done <- srv.ListenAndServe(ctx, func(a net.Addr) { addrCh <- a })
	}()

	var addr net.Addr
	select {
	case addr = <-addrCh:
	case err := <-done:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server never became ready")
	}

	resp, err := http.Get("http://" + addr.String() + "/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ListenAndServe: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
