package engine

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ivlev/slidecast/internal/audio"
	"github.com/ivlev/slidecast/internal/config"
	"github.com/ivlev/slidecast/internal/effects"
	"github.com/ivlev/slidecast/internal/renderer"
	"github.com/ivlev/slidecast/internal/timeline"
	"github.com/ivlev/slidecast/internal/video"
)

type fakeSink struct {
	path    string
	frames  int
	failAt  int
	aborted bool
	closed  bool
}

func (s *fakeSink) WriteFrame(img *image.RGBA) error {
	s.frames++
	if s.failAt > 0 && s.frames >= s.failAt {
		return errors.New("pipe broken")
	}
	return nil
}

func (s *fakeSink) Close() error {
	s.closed = true
	return os.WriteFile(s.path, []byte("mp4"), 0644)
}

func (s *fakeSink) Abort() { s.aborted = true }

type fakeEncoder struct {
	openErr error
	failAt  int
	sink    *fakeSink
	params  config.ExportParams
}

func (e *fakeEncoder) Open(ctx context.Context, outputPath string, params config.ExportParams) (video.FrameSink, error) {
	if e.openErr != nil {
		return nil, e.openErr
	}
	e.params = params
	// the partial file exists while encoding
	if err := os.WriteFile(outputPath, nil, 0644); err != nil {
		return nil, err
	}
	e.sink = &fakeSink{path: outputPath, failAt: e.failAt}
	return e.sink, nil
}

type fakeLoader struct {
	visuals map[int]image.Image
}

func (l *fakeLoader) Preload(ctx context.Context, scenes []timeline.Scene) map[int]image.Image {
	return l.visuals
}

func newTestExporter(t *testing.T, duration float64, enc video.VideoEncoder) (*Exporter, string) {
	t.Helper()
	tl, err := timeline.New(
		[]string{"a", "b", "c"},
		[]string{"one", "two", "three"},
		audio.Track{Path: "voice.mp3", Duration: duration},
	)
	if err != nil {
		t.Fatalf("timeline.New: %v", err)
	}

	cfg := config.Default()
	cfg.Width, cfg.Height = 64, 36
	cfg.FPS = 10
	cfg.OutputVideo = filepath.Join(t.TempDir(), "out", "video.mp4")

	red := image.NewUniform(color.RGBA{R: 255, A: 255})
	loader := &fakeLoader{visuals: map[int]image.Image{1: red}}

	return NewExporter(cfg, tl, enc, effects.DefaultKenBurns(), loader), cfg.OutputVideo
}

func TestFrameCount(t *testing.T) {
	tests := []struct {
		duration float64
		fps      int
		want     int
	}{
		{30, 30, 900},
		{2.5, 10, 25},
		{2.51, 10, 26},
		{0.01, 30, 1},
		{0, 30, 0},
		{10, 0, 0},
	}
	for _, tt := range tests {
		if got := FrameCount(tt.duration, tt.fps); got != tt.want {
			t.Errorf("FrameCount(%v, %d) = %d, want %d", tt.duration, tt.fps, got, tt.want)
		}
	}
}

func TestExporterRun(t *testing.T) {
	enc := &fakeEncoder{}
	ex, output := newTestExporter(t, 3, enc)

	var mu sync.Mutex
	var progress []float64
	err := ex.Run(context.Background(), func(p float64) {
		mu.Lock()
		progress = append(progress, p)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if enc.sink.frames != 30 {
		t.Errorf("frames written = %d, want 30", enc.sink.frames)
	}
	if !enc.sink.closed || enc.sink.aborted {
		t.Errorf("sink closed=%v aborted=%v", enc.sink.closed, enc.sink.aborted)
	}
	if enc.params.AudioPath != "voice.mp3" || enc.params.Duration != 3 {
		t.Errorf("unexpected params %+v", enc.params)
	}
	if _, err := os.Stat(output); err != nil {
		t.Errorf("output missing: %v", err)
	}
	if _, err := os.Stat(output + ".part"); !os.IsNotExist(err) {
		t.Errorf("partial file left behind: %v", err)
	}

	if len(progress) == 0 || progress[len(progress)-1] != 100 {
		t.Fatalf("progress should end at 100, got %v", progress)
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Fatalf("progress not monotonic: %v", progress)
		}
	}
}

func TestExporterUsesSyntheticClock(t *testing.T) {
	ex, _ := newTestExporter(t, 3, &fakeEncoder{})

	var states []renderer.FrameState
	ex.Trace = func(frame int, st renderer.FrameState) {
		states = append(states, st)
	}
	if err := ex.Run(context.Background(), nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	scenes := ex.Timeline.Scenes()
	for i, st := range states {
		want := renderer.StateAt(scenes, 3, float64(i)/10, ex.Effect)
		if st != want {
			t.Fatalf("frame %d: got %+v, want %+v", i, st, want)
		}
	}
	// scenes start at 0, 1, 2
	if states[0].Index != 0 || states[10].Index != 1 || states[29].Index != 2 {
		t.Errorf("unexpected scene indices: %d %d %d", states[0].Index, states[10].Index, states[29].Index)
	}
}

func TestExporterEncoderSetupFailure(t *testing.T) {
	ex, output := newTestExporter(t, 1, &fakeEncoder{openErr: errors.New("no ffmpeg")})

	err := ex.Run(context.Background(), nil)
	var exportErr *ExportError
	if !errors.As(err, &exportErr) {
		t.Fatalf("expected *ExportError, got %v", err)
	}
	if exportErr.Stage != "encoder setup" {
		t.Errorf("stage = %q", exportErr.Stage)
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Errorf("output should not exist: %v", err)
	}
}

func TestExporterEncodingFailureRemovesPartial(t *testing.T) {
	enc := &fakeEncoder{failAt: 5}
	ex, output := newTestExporter(t, 2, enc)

	err := ex.Run(context.Background(), nil)
	var exportErr *ExportError
	if !errors.As(err, &exportErr) || exportErr.Stage != "encoding" {
		t.Fatalf("expected encoding ExportError, got %v", err)
	}
	if !enc.sink.aborted {
		t.Error("sink should be aborted")
	}
	for _, p := range []string{output, output + ".part"} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s should not exist: %v", p, err)
		}
	}
}

func TestExporterCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ex, output := newTestExporter(t, 2, &fakeEncoder{})
	err := ex.Run(ctx, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := os.Stat(output); !os.IsNotExist(err) {
		t.Errorf("output should not exist: %v", err)
	}
}

func TestExporterEmptyDuration(t *testing.T) {
	ex, _ := newTestExporter(t, 0, &fakeEncoder{})
	var exportErr *ExportError
	if err := ex.Run(context.Background(), nil); !errors.As(err, &exportErr) || exportErr.Stage != "setup" {
		t.Fatalf("expected setup ExportError, got %v", err)
	}
}
