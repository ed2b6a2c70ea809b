package source

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ivlev/slidecast/internal/timeline"
)

// Loader resolves scene visual references into decoded images.
//
// Supported references: local file paths (png, jpeg, webp), "deck.pdf#N" for
// page N (1-based) of a PDF, http(s) URLs and base64 data URLs.
type Loader struct {
	DPI    int
	Client *http.Client

	group singleflight.Group
}

func NewLoader(dpi int) *Loader {
	if dpi <= 0 {
		dpi = 150
	}
	return &Loader{DPI: dpi, Client: &http.Client{Timeout: time.Minute}}
}

// Load decodes a single reference, sharing work between concurrent callers
// asking for the same reference. The shared load outlives the cancellation
// of whichever caller started it; each caller still returns when its own ctx
// is done.
func (l *Loader) Load(ctx context.Context, ref string) (image.Image, error) {
	shared := context.WithoutCancel(ctx)
	ch := l.group.DoChan(ref, func() (interface{}, error) {
		return l.load(shared, ref)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(image.Image), nil
	}
}

// Preload decodes the visual of every Ready scene, keyed by scene ID.
// A visual that fails to load is logged and left out; the frames of that
// scene render without it.
func (l *Loader) Preload(ctx context.Context, scenes []timeline.Scene) map[int]image.Image {
	out := make(map[int]image.Image, len(scenes))
	byRef := make(map[string]image.Image)

	for _, s := range scenes {
		ref, ok := s.ImageURL()
		if !ok || ref == "" {
			continue
		}
		if img, done := byRef[ref]; done {
			if img != nil {
				out[s.ID] = img
			}
			continue
		}
		img, err := l.Load(ctx, ref)
		if err != nil {
			log.Printf("[!] Visual for scene %d unavailable (%s): %v", s.ID, ref, err)
			byRef[ref] = nil
			continue
		}
		byRef[ref] = img
		out[s.ID] = img
	}
	return out
}

func (l *Loader) load(ctx context.Context, ref string) (image.Image, error) {
	switch {
	case strings.HasPrefix(ref, "data:"):
		data, err := DecodeDataURL(ref)
		if err != nil {
			return nil, err
		}
		return Decode(bytes.NewReader(data))
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return l.fetch(ctx, ref)
	}

	if path, page, ok := splitPDFRef(ref); ok {
		return renderPDFPage(path, page, l.DPI)
	}

	f, err := os.Open(ref)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

func (l *Loader) fetch(ctx context.Context, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return Decode(resp.Body)
}

// splitPDFRef parses "deck.pdf#3".
func splitPDFRef(ref string) (string, int, bool) {
	i := strings.LastIndex(ref, "#")
	if i < 0 || !strings.HasSuffix(strings.ToLower(ref[:i]), ".pdf") {
		if strings.HasSuffix(strings.ToLower(ref), ".pdf") {
			return ref, 1, true
		}
		return "", 0, false
	}
	page, err := strconv.Atoi(ref[i+1:])
	if err != nil {
		return "", 0, false
	}
	return ref[:i], page, true
}

// DecodeDataURL returns the payload of a base64 data URL.
func DecodeDataURL(dataURL string) ([]byte, error) {
	const marker = ";base64,"
	if !strings.HasPrefix(dataURL, "data:") {
		return nil, errors.New("invalid data URL prefix")
	}
	idx := strings.Index(dataURL, marker)
	if idx < 0 {
		return nil, errors.New("data URL missing base64 marker")
	}
	raw, err := base64.StdEncoding.DecodeString(dataURL[idx+len(marker):])
	if err != nil {
		return nil, fmt.Errorf("decode image base64: %w", err)
	}
	return raw, nil
}
