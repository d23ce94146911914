package player

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"crowdwatch/internal/logging"
	"crowdwatch/internal/media/ffprobe"
	"crowdwatch/internal/services"
)

var (
	// ErrSeekInProgress is delivered when Seek is called while another seek is pending.
	ErrSeekInProgress = errors.New("player: seek already in progress")
	// ErrNoFrame is returned by DrawFrame before any seek has completed.
	ErrNoFrame = errors.New("player: no frame decoded yet")
	// ErrClosed is delivered for seeks on a closed player.
	ErrClosed = errors.New("player: closed")
)

// Options selects the binaries used to probe and decode.
type Options struct {
	FFmpegBinary  string
	FFprobeBinary string
	Logger        *slog.Logger
}

// Metadata summarizes the probed clip.
type Metadata struct {
	Duration  float64 `json:"duration_seconds"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Codec     string  `json:"codec"`
	FrameRate float64 `json:"frame_rate"`
	SizeBytes int64   `json:"size_bytes"`
	Format    string  `json:"format"`
}

// Player is a single-position frame source for one file.
type Player struct {
	path   string
	ffmpeg string
	meta   Metadata
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	seeking  bool
	closed   bool
	position float64
	frame    []byte
}

// Probe inspects path and returns its metadata. It fails with
// services.ErrMediaDecode when the file has no usable video stream.
func Probe(ctx context.Context, ffprobeBinary, path string) (Metadata, error) {
	result, err := ffprobe.Inspect(ctx, ffprobeBinary, path)
	if err != nil {
		return Metadata{}, services.Wrap(services.ErrMediaDecode, "media", "probe", path, err)
	}
	video, ok := result.VideoStream()
	if !ok {
		return Metadata{}, services.Wrap(services.ErrMediaDecode, "media", "probe", "no video stream in "+path, nil)
	}
	meta := Metadata{
		Duration:  result.DurationSeconds(),
		Width:     video.Width,
		Height:    video.Height,
		Codec:     video.CodecName,
		FrameRate: video.FrameRate(),
		SizeBytes: result.SizeBytes(),
		Format:    result.Format.FormatName,
	}
	if meta.Duration <= 0 || math.IsNaN(meta.Duration) || math.IsInf(meta.Duration, 0) {
		return Metadata{}, services.Wrap(services.ErrMediaDecode, "media", "probe", fmt.Sprintf("unusable duration %v", meta.Duration), nil)
	}
	if meta.Width <= 0 || meta.Height <= 0 {
		return Metadata{}, services.Wrap(services.ErrMediaDecode, "media", "probe", fmt.Sprintf("unusable dimensions %dx%d", meta.Width, meta.Height), nil)
	}
	return meta, nil
}

// Open probes path and returns a Player positioned at 0 with no frame decoded.
func Open(ctx context.Context, path string, opts Options) (*Player, error) {
	meta, err := Probe(ctx, opts.FFprobeBinary, path)
	if err != nil {
		return nil, err
	}
	ffmpeg := strings.TrimSpace(opts.FFmpegBinary)
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	// Decodes outlive the Open call, so they hang off their own context.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p := &Player{
		path:   path,
		ffmpeg: ffmpeg,
		meta:   meta,
		logger: logging.NewComponentLogger(opts.Logger, "player"),
		ctx:    runCtx,
		cancel: cancel,
	}
	p.logger.Debug("media opened",
		logging.String("source", path),
		logging.Float64("duration", meta.Duration),
		logging.String("resolution", fmt.Sprintf("%dx%d", meta.Width, meta.Height)),
	)
	return p, nil
}

// Metadata returns the probed clip metadata.
func (p *Player) Metadata() Metadata { return p.meta }

// Duration is the clip length in seconds.
func (p *Player) Duration() float64 { return p.meta.Duration }

// Dimensions reports the native frame size.
func (p *Player) Dimensions() (int, int) { return p.meta.Width, p.meta.Height }

// Position is the timestamp of the last completed seek.
func (p *Player) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

// Seek decodes the frame at t. The returned channel receives exactly one
// value and is never closed without one.
func (p *Player) Seek(t float64) <-chan error {
	done := make(chan error, 1)

	p.mu.Lock()
	switch {
	case p.closed:
		p.mu.Unlock()
		done <- ErrClosed
		return done
	case p.seeking:
		p.mu.Unlock()
		done <- ErrSeekInProgress
		return done
	}
	p.seeking = true
	p.mu.Unlock()

	go func() {
		frame, err := p.decode(t)
		p.mu.Lock()
		p.seeking = false
		if err == nil {
			p.frame = frame
			p.position = t
		}
		p.mu.Unlock()
		done <- err
	}()
	return done
}

// DrawFrame copies the current frame into dst, which must match Dimensions.
func (p *Player) DrawFrame(dst *image.RGBA) error {
	if dst == nil {
		return errors.New("player: nil destination")
	}
	w, h := p.Dimensions()
	if b := dst.Bounds(); b.Dx() != w || b.Dy() != h {
		return fmt.Errorf("player: destination is %dx%d, frame is %dx%d", b.Dx(), b.Dy(), w, h)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frame == nil {
		return ErrNoFrame
	}
	rowBytes := w * 4
	for y := range h {
		start := dst.PixOffset(dst.Rect.Min.X, dst.Rect.Min.Y+y)
		copy(dst.Pix[start:start+rowBytes], p.frame[y*rowBytes:(y+1)*rowBytes])
	}
	return nil
}

// Close aborts any in-flight decode. Later seeks fail with ErrClosed.
func (p *Player) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cancel()
	return nil
}

func (p *Player) decode(t float64) ([]byte, error) {
	args := p.frameArgs(t)
	cmd := exec.CommandContext(p.ctx, p.ffmpeg, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "media", "seek", "start ffmpeg", err)
	}

	frame := make([]byte, p.meta.Width*p.meta.Height*4)
	_, readErr := io.ReadFull(stdout, frame)
	// Drain so ffmpeg can exit even if it wrote more than one frame.
	_, _ = io.Copy(io.Discard, stdout)
	waitErr := cmd.Wait()

	if readErr != nil {
		detail := strings.TrimSpace(stderr.String())
		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			readErr = fmt.Errorf("no complete frame at %.3fs", t)
		}
		if detail != "" {
			return nil, fmt.Errorf("%w: %s", readErr, detail)
		}
		if waitErr != nil {
			return nil, fmt.Errorf("%w: %w", readErr, waitErr)
		}
		return nil, readErr
	}
	if waitErr != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", waitErr, strings.TrimSpace(stderr.String()))
	}
	p.logger.Debug("frame decoded", logging.Float64("timestamp", t), logging.Int("frame_bytes", len(frame)))
	return frame, nil
}

// frameArgs builds an ffmpeg invocation that writes one native-size RGBA frame
// to stdout. Autorotation is disabled so the output matches probed dimensions.
func (p *Player) frameArgs(t float64) []string {
	return []string{
		"-hide_banner",
		"-v", "error",
		"-nostdin",
		"-noautorotate",
		"-ss", strconv.FormatFloat(t, 'f', 3, 64),
		"-i", p.path,
		"-frames:v", "1",
		"-an", "-sn",
		"-vf", fmt.Sprintf("scale=%d:%d", p.meta.Width, p.meta.Height),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	}
}
