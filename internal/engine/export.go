package engine

import (
	"context"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/slidecast/internal/config"
	"github.com/ivlev/slidecast/internal/effects"
	"github.com/ivlev/slidecast/internal/renderer"
	"github.com/ivlev/slidecast/internal/system"
	"github.com/ivlev/slidecast/internal/timeline"
	"github.com/ivlev/slidecast/internal/video"
)

// ProgressFunc receives export progress in percent, 0..100.
type ProgressFunc func(percent float64)

// VisualLoader preloads the decoded visual of each scene, keyed by scene ID.
type VisualLoader interface {
	Preload(ctx context.Context, scenes []timeline.Scene) map[int]image.Image
}

// Exporter renders a timeline offline into a video file. Frame times come
// from a synthetic clock, frame/fps, never from the wall clock.
type Exporter struct {
	Config   *config.Config
	Timeline *timeline.Timeline
	Encoder  video.VideoEncoder
	Effect   effects.Effect
	Loader   VisualLoader

	// Trace, when set, sees the state of every frame before it is drawn.
	Trace func(frame int, st renderer.FrameState)
}

func NewExporter(cfg *config.Config, tl *timeline.Timeline, ve video.VideoEncoder, eff effects.Effect, loader VisualLoader) *Exporter {
	return &Exporter{
		Config:   cfg,
		Timeline: tl,
		Encoder:  ve,
		Effect:   eff,
		Loader:   loader,
	}
}

// FrameCount is the number of frames needed to cover [0, duration) at fps.
func FrameCount(duration float64, fps int) int {
	if duration <= 0 || fps <= 0 {
		return 0
	}
	return int(math.Ceil(duration*float64(fps) - 1e-9))
}

// Run renders every frame and writes the output file. Any failure removes the
// partial file and is returned as a single *ExportError.
func (e *Exporter) Run(ctx context.Context, onProgress ProgressFunc) error {
	startTime := time.Now()
	if onProgress == nil {
		onProgress = func(float64) {}
	}

	cfg := e.Config
	scenes := e.Timeline.Scenes()
	duration := e.Timeline.Duration()
	frames := FrameCount(duration, cfg.FPS)
	if frames == 0 {
		return &ExportError{Stage: "setup", Err: fmt.Errorf("nothing to render: duration %.2fs at %d fps", duration, cfg.FPS)}
	}

	fmt.Println("--- [EXPORT] ---")
	fmt.Printf("[*] Scenes: %d | Duration: %.2fs | Frames: %d\n", len(scenes), duration, frames)
	fmt.Printf("[*] Resolution: %dx%d @ %d FPS | Encoder: %s\n", cfg.Width, cfg.Height, cfg.FPS, cfg.VideoEncoder)
	fmt.Println("----------------")

	preloadStart := time.Now()
	visuals := map[int]image.Image{}
	if e.Loader != nil {
		visuals = e.Loader.Preload(ctx, scenes)
	}
	preloadTime := time.Since(preloadStart)
	fmt.Printf("[*] Visuals ready: %d/%d\n", len(visuals), len(scenes))

	composer, err := renderer.NewComposer(cfg.Width, cfg.Height)
	if err != nil {
		return &ExportError{Stage: "setup", Err: err}
	}
	if cfg.SubtitleSize > 0 {
		face, err := renderer.NewSubtitleFace(cfg.SubtitleSize)
		if err != nil {
			return &ExportError{Stage: "setup", Err: err}
		}
		composer.Face = face
	}

	output := cfg.OutputVideo
	if dir := filepath.Dir(output); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &ExportError{Stage: "setup", Err: err}
		}
	}
	partial := output + ".part"

	params := config.ExportParams{
		Width:        cfg.Width,
		Height:       cfg.Height,
		FPS:          cfg.FPS,
		Duration:     duration,
		AudioPath:    e.Timeline.Audio().Path,
		AudioBitrate: cfg.AudioBitrate,
		Encoder:      cfg.VideoEncoder,
		Quality:      cfg.Quality,
	}
	sink, err := e.Encoder.Open(ctx, partial, params)
	if err != nil {
		os.Remove(partial)
		return &ExportError{Stage: "encoder setup", Err: err}
	}

	encodeStart := time.Now()
	if err := e.encode(ctx, sink, composer, scenes, duration, frames, visuals, onProgress); err != nil {
		sink.Abort()
		os.Remove(partial)
		return &ExportError{Stage: "encoding", Err: err}
	}
	if err := sink.Close(); err != nil {
		os.Remove(partial)
		return &ExportError{Stage: "encoding", Err: err}
	}
	encodeTime := time.Since(encodeStart)

	if err := os.Rename(partial, output); err != nil {
		os.Remove(partial)
		return &ExportError{Stage: "finalize", Err: err}
	}

	if cfg.ShowStats {
		e.report(ctx, frames, time.Since(startTime), preloadTime, encodeTime)
	}
	return nil
}

// encode rasterizes frames on one goroutine and streams them to the sink on
// another, so ffmpeg never waits on drawing and drawing never waits on the pipe.
func (e *Exporter) encode(
	ctx context.Context,
	sink video.FrameSink,
	composer *renderer.Composer,
	scenes []timeline.Scene,
	duration float64,
	frames int,
	visuals map[int]image.Image,
	onProgress ProgressFunc,
) error {
	fps := float64(e.Config.FPS)
	rect := composer.Bounds()
	queue := make(chan *image.RGBA, 2)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(queue)
		for i := 0; i < frames; i++ {
			if err := gctx.Err(); err != nil {
				return err
			}
			t := float64(i) / fps
			st := renderer.StateAt(scenes, duration, t, e.Effect)
			if e.Trace != nil {
				e.Trace(i, st)
			}

			buf := system.GetImage(rect)
			composer.Render(buf, st, visuals[st.SceneID])

			select {
			case queue <- buf:
			case <-gctx.Done():
				system.PutImage(buf)
				return gctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		written := 0
		for buf := range queue {
			err := sink.WriteFrame(buf)
			system.PutImage(buf)
			if err != nil {
				return err
			}
			written++
			onProgress(100 * float64(written) / float64(frames))
		}
		return nil
	})

	return g.Wait()
}

func (e *Exporter) report(ctx context.Context, frames int, total, preload, encode time.Duration) {
	fps := float64(frames) / total.Seconds()
	host := system.CollectHostStats(ctx)

	fmt.Printf(
		"--- [PERFORMANCE REPORT] ---\n"+
			"Build: %s\n"+
			"Total Time: %.2fs\n"+
			"Preload: %.2fs\n"+
			"Render+Encode: %.2fs\n"+
			"Effective FPS: %.2f\n"+
			"%s\n"+
			"----------------------------\n",
		e.Config.BuildVersion, total.Seconds(), preload.Seconds(), encode.Seconds(), fps, host,
	)

	logEntry := fmt.Sprintf("[%s] Build: %s | Output: %s | Frames: %d | Total: %.2fs | Encode: %.2fs | FPS: %.2f | %s\n",
		time.Now().Format("2006-01-02 15:04:05"),
		e.Config.BuildVersion,
		filepath.Base(e.Config.OutputVideo),
		frames,
		total.Seconds(),
		encode.Seconds(),
		fps,
		host,
	)

	f, err := os.OpenFile("benchmark.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		f.WriteString(logEntry)
		f.Close()
	} else {
		fmt.Printf("[!] Could not write benchmark.log: %v\n", err)
	}
}
