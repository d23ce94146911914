// Package annotate writes sampled frames as PNGs with detection boxes drawn
// on them, for operators who want to see what the detector counted.
package annotate

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/fogleman/gg"

	"crowdwatch/internal/detector"
)

// Writer renders annotated frames into Dir.
type Writer struct {
	Dir string
	// ShowOthers also outlines non-person detections, in grey.
	ShowOthers bool
}

// New returns a Writer for dir.
func New(dir string) *Writer {
	return &Writer{Dir: dir}
}

// FileName is the PNG name used for sample index of a run.
func FileName(runID string, index int, timestamp float64) string {
	prefix := runID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	if prefix == "" {
		prefix = "frame"
	}
	return fmt.Sprintf("%s-%02d-%07.3fs.png", prefix, index+1, timestamp)
}

// Write draws detections over a copy of raster and saves it. It returns the
// written path.
func (w *Writer) Write(runID string, index int, timestamp float64, raster image.Image, detections []detector.Detection) (string, error) {
	if strings.TrimSpace(w.Dir) == "" {
		return "", fmt.Errorf("annotate: no output directory")
	}
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("annotate: create %s: %w", w.Dir, err)
	}

	dc := gg.NewContextForImage(raster)
	lineWidth := max(2, float64(dc.Width())/320)
	dc.SetLineWidth(lineWidth)

	people := 0
	for _, d := range detections {
		isPerson := d.Class == detector.PersonClass
		if !isPerson && !w.ShowOthers {
			continue
		}
		if d.Box.Empty() {
			continue
		}
		if isPerson {
			people++
			dc.SetRGB(0.1, 0.9, 0.2)
		} else {
			dc.SetRGB(0.6, 0.6, 0.6)
		}
		r := d.Box
		dc.DrawRectangle(float64(r.Min.X), float64(r.Min.Y), float64(r.Dx()), float64(r.Dy()))
		dc.Stroke()
		if isPerson {
			dc.DrawString(fmt.Sprintf("%.0f%%", d.Score*100), float64(r.Min.X)+lineWidth, float64(r.Min.Y)+13+lineWidth)
		}
	}

	caption := fmt.Sprintf("sample %d  t=%.2fs  people=%d", index+1, timestamp, people)
	dc.SetRGBA(0, 0, 0, 0.6)
	dc.DrawRectangle(0, 0, float64(len(caption)*7+12), 20)
	dc.Fill()
	dc.SetRGB(1, 1, 1)
	dc.DrawString(caption, 6, 14)

	path := filepath.Join(w.Dir, FileName(runID, index, timestamp))
	if err := dc.SavePNG(path); err != nil {
		return "", fmt.Errorf("annotate: save %s: %w", path, err)
	}
	return path, nil
}
