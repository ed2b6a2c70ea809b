package source

import (
	"fmt"
	"image"
	"os"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// Deck is an ordered set of ready-made scene visuals. Ref(i) is the reference
// a scene stores for visual i; Loader resolves it back to pixels.
type Deck interface {
	Len() int
	Ref(i int) string
	Close() error
}

// OpenDeck opens a PDF (one visual per page) or a directory of images.
func OpenDeck(path string) (Deck, error) {
	if strings.HasSuffix(strings.ToLower(path), ".pdf") {
		return OpenPDFDeck(path)
	}
	return OpenImageDeck(path)
}

// PDFDeck references the pages of a PDF as "deck.pdf#N", N counted from 1.
type PDFDeck struct {
	path  string
	pages int
}

func OpenPDFDeck(path string) (*PDFDeck, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer doc.Close()
	return &PDFDeck{path: path, pages: doc.NumPage()}, nil
}

func (d *PDFDeck) Len() int { return d.pages }

func (d *PDFDeck) Ref(i int) string { return fmt.Sprintf("%s#%d", d.path, i+1) }

func (d *PDFDeck) Close() error { return nil }

// renderPDFPage rasterizes one page (1-based). Each call opens its own
// document, so pages of one file can be rendered from several goroutines.
func renderPDFPage(path string, page, dpi int) (image.Image, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	if page < 1 || page > doc.NumPage() {
		return nil, fmt.Errorf("%s: page %d out of range (%d pages)", path, page, doc.NumPage())
	}
	return doc.ImageDPI(page-1, float64(dpi))
}
