package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/image/draw"

	"crowdwatch/internal/detector"
	"crowdwatch/internal/logging"
)

const (
	jpegQuality      = 85
	maxResponseBytes = 4 << 20
)

// Options configures a Client.
type Options struct {
	// Endpoint is the service base URL, e.g. http://127.0.0.1:8501.
	Endpoint string
	// CacheDir receives manifest copies; empty disables caching.
	CacheDir string
	// MaxInputSide downscales frames whose longer side exceeds it; 0 disables.
	MaxInputSide int
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// Client talks to the inference service. It satisfies detector.Loader.
type Client struct {
	endpoint     string
	cacheDir     string
	maxInputSide int
	http         *http.Client
	logger       *slog.Logger
}

// New builds a Client. A nil HTTPClient gets a 60s timeout client.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		endpoint:     strings.TrimRight(strings.TrimSpace(opts.Endpoint), "/"),
		cacheDir:     strings.TrimSpace(opts.CacheDir),
		maxInputSide: opts.MaxInputSide,
		http:         httpClient,
		logger:       logging.NewComponentLogger(opts.Logger, "detector-remote"),
	}
}

// Endpoint returns the configured base URL.
func (c *Client) Endpoint() string { return c.endpoint }

// Manifest fetches the manifest for variant without caching it.
func (c *Client) Manifest(ctx context.Context, variant string) (Manifest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.modelURL(variant, ""), nil)
	if err != nil {
		return Manifest{}, fmt.Errorf("build manifest request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Manifest{}, fmt.Errorf("fetch manifest: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return Manifest{}, fmt.Errorf("fetch manifest: %w", err)
	}

	var m Manifest
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Variant == "" {
		m.Variant = variant
	}
	return m, nil
}

// Load fetches and validates the manifest, caches it, and returns a Model
// bound to the variant.
func (c *Client) Load(ctx context.Context, cfg detector.Config) (detector.Model, error) {
	variant, err := detector.NormalizeVariant(cfg.Variant)
	if err != nil {
		return nil, err
	}
	if c.endpoint == "" {
		return nil, fmt.Errorf("detector endpoint is not configured")
	}

	m, err := c.Manifest(ctx, variant)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(variant); err != nil {
		return nil, err
	}

	if c.cacheDir != "" {
		path, err := writeManifest(ctx, c.cacheDir, m)
		if err != nil {
			// The cache only feeds `models list`; detection works without it.
			logging.WarnWithContext(c.logger, "model manifest not cached", "model_cache_failed",
				logging.String("variant", variant),
				logging.Error(err),
				logging.String(logging.FieldImpact, "models list will not show this variant"),
			)
		} else {
			c.logger.Debug("model manifest cached", logging.String("cache_path", path))
		}
	}

	return &model{client: c, manifest: m}, nil
}

type model struct {
	client   *Client
	manifest Manifest
}

type detectResponse struct {
	Detections []struct {
		Class string    `json:"class"`
		Score float64   `json:"score"`
		BBox  []float64 `json:"bbox"`
	} `json:"detections"`
}

// Detect uploads img as JPEG and returns detections in img's coordinates.
func (m *model) Detect(ctx context.Context, img image.Image) ([]detector.Detection, error) {
	if img == nil {
		return nil, fmt.Errorf("detect: nil image")
	}
	native := img.Bounds()
	upload, scaleX, scaleY := fitWithin(img, m.client.maxInputSide)

	var body bytes.Buffer
	if err := jpeg.Encode(&body, upload, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.client.modelURL(m.manifest.Variant, "detect"), &body)
	if err != nil {
		return nil, fmt.Errorf("build detect request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}

	var payload detectResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode detections: %w", err)
	}

	out := make([]detector.Detection, 0, len(payload.Detections))
	for _, d := range payload.Detections {
		det := detector.Detection{Class: d.Class, Score: d.Score}
		if len(d.BBox) == 4 {
			x0 := native.Min.X + int(d.BBox[0]*scaleX)
			y0 := native.Min.Y + int(d.BBox[1]*scaleY)
			x1 := native.Min.X + int((d.BBox[0]+d.BBox[2])*scaleX)
			y1 := native.Min.Y + int((d.BBox[1]+d.BBox[3])*scaleY)
			det.Box = image.Rect(x0, y0, x1, y1).Intersect(native)
		}
		out = append(out, det)
	}
	return out, nil
}

// fitWithin downscales img so its longer side is at most maxSide. It returns
// the image to upload and the factors mapping upload pixels to native pixels.
func fitWithin(img image.Image, maxSide int) (image.Image, float64, float64) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := max(w, h)
	if maxSide <= 0 || longest <= maxSide {
		return img, 1, 1
	}
	ratio := float64(maxSide) / float64(longest)
	sw := max(1, int(float64(w)*ratio+0.5))
	sh := max(1, int(float64(h)*ratio+0.5))
	dst := image.NewRGBA(image.Rect(0, 0, sw, sh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst, float64(w) / float64(sw), float64(h) / float64(sh)
}

func (c *Client) modelURL(variant, action string) string {
	u := c.endpoint + "/v1/models/" + url.PathEscape(variant)
	if action != "" {
		u += "/" + action
	}
	return u
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(snippet))
	if msg == "" {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return fmt.Errorf("unexpected status %s: %s", resp.Status, msg)
}
