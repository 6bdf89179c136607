package img

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/tendant/order-asset-packer/internal/textutil"
)

// ErrEmptyText is returned when nothing is left to render after normalization.
var ErrEmptyText = errors.New("no renderable text")

// EngravingRenderer turns back-engraving text into a proof image.
type EngravingRenderer interface {
	Render(text, dstPath string) error
}

// TextRenderer draws engraving text in the Go Regular face. It lays the text
// out on a canvas several times taller than the output and crops a centered
// window, so any number of wrapped lines stays vertically centered.
type TextRenderer struct {
	Width        int
	WindowHeight int
	Oversize     int
	FontSize     float64
	Margin       int
}

// NewTextRenderer returns a renderer with proof-sized defaults.
func NewTextRenderer() *TextRenderer {
	return &TextRenderer{
		Width:        1200,
		WindowHeight: 400,
		Oversize:     3,
		FontSize:     64,
		Margin:       60,
	}
}

var (
	fontOnce sync.Once
	goFont   *opentype.Font
	fontErr  error
)

func loadFont() (*opentype.Font, error) {
	fontOnce.Do(func() {
		goFont, fontErr = opentype.Parse(goregular.TTF)
	})
	return goFont, fontErr
}

// Render normalizes text and writes the cropped proof to dstPath as PNG.
func (r *TextRenderer) Render(text, dstPath string) error {
	text = textutil.NormalizeEngraving(text)
	if text == "" {
		return ErrEmptyText
	}

	canvas, err := r.renderOversized(text)
	if err != nil {
		return err
	}
	proof := imaging.CropCenter(canvas, r.Width, r.WindowHeight)

	if err := os.MkdirAll(filepath.Dir(dstPath), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if err := imaging.Save(proof, dstPath); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

func (r *TextRenderer) renderOversized(text string) (*image.NRGBA, error) {
	f, err := loadFont()
	if err != nil {
		return nil, fmt.Errorf("parse font: %w", err)
	}
	// faces carry glyph caches and are not safe for concurrent use
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    r.FontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("new face: %w", err)
	}
	defer face.Close()

	oversize := r.Oversize
	if oversize < 1 {
		oversize = 1
	}
	height := r.WindowHeight * oversize
	canvas := imaging.New(r.Width, height, color.White)

	lines := wrap(face, text, r.Width-2*r.Margin)
	m := face.Metrics()
	lineHeight := m.Height.Ceil()
	top := (height-lineHeight*len(lines))/2 + m.Ascent.Ceil()

	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.Black),
		Face: face,
	}
	for i, line := range lines {
		w := d.MeasureString(line).Ceil()
		d.Dot = fixed.P((r.Width-w)/2, top+i*lineHeight)
		d.DrawString(line)
	}
	return canvas, nil
}

// wrap breaks text into lines no wider than maxWidth. Words wider than a line
// are split by character.
func wrap(face font.Face, text string, maxWidth int) []string {
	if maxWidth < 1 {
		maxWidth = 1
	}
	fits := func(s string) bool {
		return font.MeasureString(face, s).Ceil() <= maxWidth
	}

	var lines []string
	var cur string
	for _, word := range strings.Fields(text) {
		for word != "" && !fits(word) {
			head, tail := splitToFit(word, fits)
			if cur != "" {
				lines = append(lines, cur)
				cur = ""
			}
			lines = append(lines, head)
			word = tail
		}
		if word == "" {
			continue
		}
		switch {
		case cur == "":
			cur = word
		case fits(cur + " " + word):
			cur += " " + word
		default:
			lines = append(lines, cur)
			cur = word
		}
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}

func splitToFit(word string, fits func(string) bool) (string, string) {
	runes := []rune(word)
	n := 1
	for n < len(runes) && fits(string(runes[:n+1])) {
		n++
	}
	return string(runes[:n]), string(runes[n:])
}
