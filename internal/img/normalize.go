// internal/img/normalize.go
package img

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// JPEGQuality is used for every normalized asset.
const JPEGQuality = 95

type Output struct {
	Path         string
	Width        int
	Height       int
	SourceWidth  int
	SourceHeight int
}

// Normalize decodes downloaded image bytes and writes them to dstPath as a
// JPEG. WebP sources are accepted alongside the formats imaging decodes.
// EXIF orientation is applied and transparency is flattened onto white.
// When maxSide is positive, larger images are fit inside a maxSide square;
// smaller images are never upscaled.
func Normalize(data []byte, dstPath string, maxSide int) (Output, error) {
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return Output{}, fmt.Errorf("decode: %w", err)
	}

	b := src.Bounds()
	out := Output{Path: dstPath, SourceWidth: b.Dx(), SourceHeight: b.Dy()}

	var dst image.Image = src
	if maxSide > 0 && (b.Dx() > maxSide || b.Dy() > maxSide) {
		dst = imaging.Fit(src, maxSide, maxSide, imaging.Lanczos)
	}
	db := dst.Bounds()
	flat := imaging.New(db.Dx(), db.Dy(), color.White)
	flat = imaging.Overlay(flat, dst, image.Pt(0, 0), 1.0)

	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return Output{}, fmt.Errorf("mkdir: %w", err)
	}
	if err := imaging.Save(flat, dstPath, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return Output{}, fmt.Errorf("save: %w", err)
	}

	out.Width, out.Height = db.Dx(), db.Dy()
	return out, nil
}
