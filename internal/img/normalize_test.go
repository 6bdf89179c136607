package img

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNormalizeWritesJPEG(t *testing.T) {
	tmp := t.TempDir()
	data := encodeTestImage(t, 400, 200, color.RGBA{R: 200, G: 100, B: 50, A: 255})

	dstPath := filepath.Join(tmp, "nested", "ER1001_gold.jpg")
	out, err := Normalize(data, dstPath, 0)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if out.Width != 400 || out.Height != 200 {
		t.Fatalf("unexpected size: got %dx%d, want 400x200", out.Width, out.Height)
	}

	f, err := os.Open(dstPath)
	if err != nil {
		t.Fatalf("normalized file not created: %v", err)
	}
	defer f.Close()
	if _, err := jpeg.Decode(f); err != nil {
		t.Fatalf("output is not a jpeg: %v", err)
	}
}

func TestNormalizeFitsLargeImages(t *testing.T) {
	tmp := t.TempDir()
	data := encodeTestImage(t, 400, 200, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	out, err := Normalize(data, filepath.Join(tmp, "fit.jpg"), 100)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if out.Width != 100 || out.Height != 50 {
		t.Fatalf("unexpected size: got %dx%d, want 100x50", out.Width, out.Height)
	}
	if out.SourceWidth != 400 || out.SourceHeight != 200 {
		t.Fatalf("unexpected source size: got %dx%d", out.SourceWidth, out.SourceHeight)
	}
}

func TestNormalizeFlattensTransparency(t *testing.T) {
	tmp := t.TempDir()
	data := encodeTestImage(t, 20, 20, color.RGBA{})
	dstPath := filepath.Join(tmp, "clear.jpg")

	if _, err := Normalize(data, dstPath, 0); err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	f, err := os.Open(dstPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	decoded, err := jpeg.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	r, g, b, _ := decoded.At(10, 10).RGBA()
	if r>>8 < 240 || g>>8 < 240 || b>>8 < 240 {
		t.Fatalf("expected white background, got %d %d %d", r>>8, g>>8, b>>8)
	}
}

func TestNormalizeRejectsGarbage(t *testing.T) {
	tmp := t.TempDir()
	_, err := Normalize([]byte("<html>not an image</html>"), filepath.Join(tmp, "x.jpg"), 0)
	if err == nil {
		t.Fatalf("expected error for non-image bytes")
	}
	if !strings.Contains(err.Error(), "decode") {
		t.Fatalf("unexpected error message: %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(tmp, "x.jpg")); !os.IsNotExist(statErr) {
		t.Fatalf("no file should be written on decode failure")
	}
}

func encodeTestImage(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
