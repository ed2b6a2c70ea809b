package renderer

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

var (
	subtitleFontOnce sync.Once
	subtitleFont     *opentype.Font
	subtitleFontErr  error
)

// NewSubtitleFace returns a Go Regular face of the given pixel size.
// Faces cache glyphs and must not be shared between goroutines.
func NewSubtitleFace(size float64) (font.Face, error) {
	subtitleFontOnce.Do(func() {
		subtitleFont, subtitleFontErr = opentype.Parse(goregular.TTF)
	})
	if subtitleFontErr != nil {
		return nil, fmt.Errorf("parse subtitle font: %w", subtitleFontErr)
	}
	return opentype.NewFace(subtitleFont, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

// WrapText breaks text into lines no wider than maxWidth pixels.
// A single word wider than maxWidth gets a line of its own.
func WrapText(face font.Face, text string, maxWidth int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		candidate := line + " " + w
		if font.MeasureString(face, candidate).Ceil() <= maxWidth {
			line = candidate
			continue
		}
		lines = append(lines, line)
		line = w
	}
	return append(lines, line)
}
