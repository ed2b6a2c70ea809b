package source

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ivlev/slidecast/internal/timeline"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{255, 0, 0, 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, pngBytes(t, w, h), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestImageDeckDirectory(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, dir, "b.png", 4, 2)
	writePNG(t, dir, "a.png", 8, 6)
	os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("x"), 0644)

	deck, err := OpenDeck(dir)
	if err != nil {
		t.Fatalf("OpenDeck failed: %v", err)
	}
	defer deck.Close()
	if deck.Len() != 2 {
		t.Fatalf("Expected 2 images, got %d", deck.Len())
	}
	if got := deck.Ref(0); got != filepath.Join(dir, "a.png") {
		t.Errorf("Expected a.png first, got %s", got)
	}

	img, err := NewLoader(0).Load(context.Background(), deck.Ref(0))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 6 {
		t.Errorf("Expected 8x6, got %v", b)
	}
}

func TestImageDeckSingleFile(t *testing.T) {
	dir := t.TempDir()
	p := writePNG(t, dir, "only.png", 2, 2)

	deck, err := OpenImageDeck(p)
	if err != nil || deck.Len() != 1 || deck.Ref(0) != p {
		t.Fatalf("OpenImageDeck = %+v, %v", deck, err)
	}

	txt := filepath.Join(dir, "notes.txt")
	os.WriteFile(txt, []byte("x"), 0644)
	if _, err := OpenImageDeck(txt); err == nil {
		t.Error("Expected error for a non-image file")
	}
}

func TestPDFDeckRefs(t *testing.T) {
	deck := &PDFDeck{path: "slides/deck.pdf", pages: 3}
	if deck.Len() != 3 || deck.Ref(0) != "slides/deck.pdf#1" || deck.Ref(2) != "slides/deck.pdf#3" {
		t.Errorf("Unexpected refs: %s %s", deck.Ref(0), deck.Ref(2))
	}
	path, page, ok := splitPDFRef(deck.Ref(1))
	if !ok || path != "slides/deck.pdf" || page != 2 {
		t.Errorf("Ref does not round-trip: %s %d %v", path, page, ok)
	}
}

func TestLoadMissingPDF(t *testing.T) {
	ref := filepath.Join(t.TempDir(), "missing.pdf") + "#1"
	if _, err := NewLoader(72).Load(context.Background(), ref); err == nil {
		t.Error("Expected error for a missing pdf")
	}
}

func TestSplitPDFRef(t *testing.T) {
	tests := []struct {
		ref  string
		path string
		page int
		ok   bool
	}{
		{"deck.pdf#3", "deck.pdf", 3, true},
		{"slides/Deck.PDF#12", "slides/Deck.PDF", 12, true},
		{"deck.pdf", "deck.pdf", 1, true},
		{"deck.pdf#x", "", 0, false},
		{"image.png", "", 0, false},
		{"photo#1.png", "", 0, false},
	}
	for _, tt := range tests {
		path, page, ok := splitPDFRef(tt.ref)
		if ok != tt.ok || path != tt.path || page != tt.page {
			t.Errorf("splitPDFRef(%q) = %q, %d, %v", tt.ref, path, page, ok)
		}
	}
}

func TestPreloadToleratesMissingVisuals(t *testing.T) {
	dir := t.TempDir()
	good := writePNG(t, dir, "good.png", 10, 10)
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes(t, 3, 3))

	scenes := []timeline.Scene{
		{ID: 1, Status: timeline.Ready{ImageURL: good}},
		{ID: 2, Status: timeline.Ready{ImageURL: filepath.Join(dir, "missing.png")}},
		{ID: 3, Status: timeline.Failed{Reason: "quota"}},
		{ID: 4, Status: timeline.Ready{ImageURL: good}},
		{ID: 5, Status: timeline.Ready{ImageURL: dataURL}},
		{ID: 6, Status: timeline.Pending{}},
	}

	visuals := NewLoader(72).Preload(context.Background(), scenes)

	for _, id := range []int{1, 4, 5} {
		if visuals[id] == nil {
			t.Errorf("Expected visual for scene %d", id)
		}
	}
	for _, id := range []int{2, 3, 6} {
		if _, ok := visuals[id]; ok {
			t.Errorf("Scene %d should have no visual", id)
		}
	}
	if visuals[1] != visuals[4] {
		t.Error("Identical references should share one decoded image")
	}
}

func TestLoaderFetch(t *testing.T) {
	payload := pngBytes(t, 5, 7)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(payload)
	}))
	defer srv.Close()

	l := NewLoader(0)
	img, err := l.Load(context.Background(), srv.URL+"/ok.png")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if img.Bounds().Dx() != 5 || img.Bounds().Dy() != 7 {
		t.Errorf("Unexpected size %v", img.Bounds())
	}

	if _, err := l.Load(context.Background(), srv.URL+"/missing.png"); err == nil {
		t.Error("Expected error for 404")
	}
}

func TestLoaderSharedLoadSurvivesCancel(t *testing.T) {
	payload := pngBytes(t, 4, 4)
	arrived := make(chan struct{}, 1)
	release := make(chan struct{})
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case arrived <- struct{}{}:
		default:
		}
		<-release
		w.Write(payload)
	}))
	defer srv.Close()
	defer close(release)

	l := NewLoader(0)
	ref := srv.URL + "/slow.png"

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := l.Load(ctx, ref)
		firstErr <- err
	}()
	<-arrived

	second := make(chan image.Image, 1)
	go func() {
		img, err := l.Load(context.Background(), ref)
		if err != nil {
			t.Errorf("second caller failed: %v", err)
		}
		second <- img
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	if err := <-firstErr; err != context.Canceled {
		t.Fatalf("first caller err = %v, want context.Canceled", err)
	}
	release <- struct{}{}

	select {
	case img := <-second:
		if img == nil || img.Bounds().Dx() != 4 {
			t.Errorf("second caller got %v", img)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("second caller never returned")
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("server hit %d times, want 1", n)
	}
}

func TestDecodeDataURL(t *testing.T) {
	if _, err := DecodeDataURL("image.png"); err == nil {
		t.Error("Expected prefix error")
	}
	if _, err := DecodeDataURL("data:image/png,abc"); err == nil {
		t.Error("Expected marker error")
	}
	raw, err := DecodeDataURL("data:text/plain;base64,aGk=")
	if err != nil || string(raw) != "hi" {
		t.Errorf("Expected hi, got %q (%v)", raw, err)
	}
}
