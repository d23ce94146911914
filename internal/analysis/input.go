package analysis

import (
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"crowdwatch/internal/services"
)

// SniffFile returns the detected MIME type of path and fails with
// services.ErrUnsupportedInput unless it is a video.
func SniffFile(path string) (string, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "", services.Wrap(services.ErrUnsupportedInput, "validate", "sniff", path, err)
	}
	return checkVideo(mt)
}

// SniffReader is SniffFile for a stream. It consumes up to the mimetype read
// limit from r.
func SniffReader(r io.Reader) (string, error) {
	mt, err := mimetype.DetectReader(r)
	if err != nil {
		return "", services.Wrap(services.ErrUnsupportedInput, "validate", "sniff", "stream", err)
	}
	return checkVideo(mt)
}

func checkVideo(mt *mimetype.MIME) (string, error) {
	for m := mt; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "video/") {
			return mt.String(), nil
		}
	}
	return mt.String(), services.Wrap(services.ErrUnsupportedInput, "validate", "sniff", "detected "+mt.String(), nil)
}
