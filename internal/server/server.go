package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crowdwatch/internal/analysis"
	"crowdwatch/internal/config"
	"crowdwatch/internal/logging"
	"crowdwatch/internal/metrics"
	"crowdwatch/internal/notifications"
	"crowdwatch/internal/services"
)

const uploadField = "video"

// Runner is the analyzer surface the server drives.
type Runner interface {
	Run(ctx context.Context, req analysis.Request) (*analysis.Report, error)
	Busy() bool
}

// Options configure a Server.
type Options struct {
	Bind string
	// MaxUploadBytes caps request bodies; zero means unlimited.
	MaxUploadBytes int64
	// TempDir is where uploads are staged; empty uses os.TempDir.
	TempDir   string
	Token     string
	Notifier  notifications.Service
	Annotator analysis.Annotator
	Logger    *slog.Logger
}

// Server serves the analysis API.
type Server struct {
	runner Runner
	opts   Options
	logger *slog.Logger
	mux    *http.ServeMux
}

// ErrorResponse is the body returned for failed requests.
type ErrorResponse struct {
	Error  string `json:"error"`
	Kind   string `json:"kind,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status     string `json:"status"`
	Busy       bool   `json:"busy"`
	ModelState string `json:"model_state,omitempty"`
}

// New builds a Server around runner.
func New(runner Runner, opts Options) *Server {
	if opts.Notifier == nil {
		opts.Notifier = notifications.NewService(config.Notifications{})
	}
	s := &Server{
		runner: runner,
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "api-server"),
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("/v1/analyze", authMiddleware(opts.Token, s.handleAnalyze))
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/metrics", promhttp.Handler())
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
// ready, when non-nil, receives the bound address once listening.
func (s *Server) ListenAndServe(ctx context.Context, ready func(net.Addr)) error {
	bind := strings.TrimSpace(s.opts.Bind)
	if bind == "" {
		return errors.New("server: no bind address")
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}

	// No read or write timeout: an analyze request lasts as long as the run.
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	if ready != nil {
		ready(listener.Addr())
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	s.logger.Info("api server stopped")
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
		return
	}
	resp := HealthResponse{Status: "ok", Busy: s.runner.Busy()}
	if withDetector, ok := s.runner.(interface{ Detector() analysis.ModelProvider }); ok {
		if d := withDetector.Detector(); d != nil {
			resp.ModelState = d.State().String()
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
		return
	}
	if s.runner.Busy() {
		s.writeFailure(w, analysis.ErrBusy)
		return
	}

	samples := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("samples")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, ErrorResponse{Error: "samples must be a positive integer"})
			return
		}
		samples = n
	}

	if s.opts.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	}

	dir, err := os.MkdirTemp(s.opts.TempDir, "crowdwatch-upload-")
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, ErrorResponse{Error: "could not stage upload", Detail: err.Error()})
		return
	}
	defer os.RemoveAll(dir)

	path, label, err := s.receive(r, dir)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			s.writeError(w, http.StatusRequestEntityTooLarge, ErrorResponse{
				Error: fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit),
			})
		case errors.Is(err, services.ErrUnsupportedInput):
			s.writeFailure(w, err)
		default:
			s.writeError(w, http.StatusBadRequest, ErrorResponse{Error: "could not read upload", Detail: err.Error()})
		}
		return
	}

	report, err := s.runner.Run(r.Context(), analysis.Request{
		Path:        path,
		Label:       label,
		SampleCount: samples,
		Annotator:   s.opts.Annotator,
	})
	if err != nil {
		if errors.Is(err, services.ErrModelUnavailable) {
			if notifyErr := s.opts.Notifier.NotifyError(r.Context(), err, label); notifyErr != nil {
				s.logger.Debug("error notification failed", logging.Error(notifyErr))
			}
		}
		s.writeFailure(w, err)
		return
	}

	s.notifyCrowd(r.Context(), report)
	s.writeJSON(w, http.StatusOK, report)
}

// receive stores the uploaded clip under dir and returns its path and label.
func (s *Server) receive(r *http.Request, dir string) (string, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case mediaType == "multipart/form-data":
		reader, err := r.MultipartReader()
		if err != nil {
			return "", "", err
		}
		for {
			part, err := reader.NextPart()
			if errors.Is(err, io.EOF) {
				return "", "", services.Wrap(services.ErrUnsupportedInput, "upload", "multipart", "missing \""+uploadField+"\" field", nil)
			}
			if err != nil {
				return "", "", err
			}
			if part.FormName() != uploadField {
				_ = part.Close()
				continue
			}
			label := filepath.Base(part.FileName())
			if label == "." || label == "/" || label == "" {
				label = "upload"
			}
			path, err := writeUpload(dir, label, part)
			_ = part.Close()
			return path, label, err
		}
	case strings.HasPrefix(mediaType, "video/"):
		label := strings.TrimSpace(r.URL.Query().Get("name"))
		if label == "" {
			label = "upload"
		}
		label = filepath.Base(label)
		path, err := writeUpload(dir, label, r.Body)
		return path, label, err
	default:
		return "", "", services.Wrap(services.ErrUnsupportedInput, "upload", "content type", "got "+strconv.Quote(mediaType), nil)
	}
}

func writeUpload(dir, name string, src io.Reader) (string, error) {
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, src); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Server) notifyCrowd(ctx context.Context, report *analysis.Report) {
	sent, err := s.opts.Notifier.NotifyCrowd(ctx, notifications.Crowd{
		RunID:          report.RunID,
		Source:         report.Source,
		PeopleEstimate: report.Result.PeopleEstimate,
		Peak:           report.Result.Peak,
		Density:        report.Result.Density,
	})
	if err != nil {
		logging.WarnWithContext(s.logger, "crowd notification failed", "notification_failed",
			logging.String(logging.FieldRunID, report.RunID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "operators were not alerted"),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		)
		return
	}
	if sent {
		s.logger.Info("crowd notification sent",
			logging.String(logging.FieldRunID, report.RunID),
			logging.String("density", report.Result.Density.String()),
		)
	}
}

// StatusFor maps an analysis error onto an HTTP status code.
func StatusFor(err error) int {
	var frameErr *services.FrameError
	switch {
	case errors.Is(err, analysis.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, services.ErrUnsupportedInput):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, services.ErrMediaDecode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &frameErr), errors.Is(err, services.ErrFrameUnavailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	msg, kind := services.UserMessage(err), metrics.Outcome(err)
	if errors.Is(err, analysis.ErrBusy) {
		msg, kind = "An analysis is already running. Try again when it finishes.", "busy"
	}
	s.writeError(w, StatusFor(err), ErrorResponse{
		Error:  msg,
		Kind:   kind,
		Detail: err.Error(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, body ErrorResponse) {
	s.writeJSON(w, status, body)
}
