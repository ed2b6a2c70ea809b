package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ivlev/slidecast/internal/effects"
	"github.com/ivlev/slidecast/internal/engine"
	"github.com/ivlev/slidecast/internal/source"
	"github.com/ivlev/slidecast/internal/system"
	"github.com/ivlev/slidecast/internal/video"
)

var exportOpts struct {
	output  string
	width   int
	height  int
	fps     int
	preset  string
	encoder string
	quality int
	zoom    string
	easing  string
	stats   bool
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Render the project to an MP4 file",
	Long: `Render every frame offline at a fixed frame rate and mux it with the audio.
The file covers exactly the length of the audio track. A failed export leaves no
partial file behind.`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	f := exportCmd.Flags()
	f.StringVarP(&exportOpts.output, "output", "o", "", "Output video (default: generated in output/)")
	f.IntVar(&exportOpts.width, "width", 0, "Frame width")
	f.IntVar(&exportOpts.height, "height", 0, "Frame height")
	f.IntVar(&exportOpts.fps, "fps", 0, "Frames per second")
	f.StringVar(&exportOpts.preset, "preset", "", "Format preset: 16:9, 9:16 (Shorts/TikTok), 4:5 (Instagram), 1:1")
	f.StringVar(&exportOpts.encoder, "encoder", "", "H.264 encoder (default: best available)")
	f.IntVar(&exportOpts.quality, "quality", 0, "Quality (0 = auto; x264: CRF 1-51, VideoToolbox: bitrate = Q*100kbit/s)")
	f.StringVar(&exportOpts.zoom, "zoom-mode", "", "Zoom: kenburns, none")
	f.StringVar(&exportOpts.easing, "zoom-easing", "", "Zoom easing: linear, ease-in-out")
	f.BoolVar(&exportOpts.stats, "stats", false, "Print a performance report and append it to benchmark.log")
}

// applyExportFlags overrides config values with the flags that were set.
func applyExportFlags(cmd *cobra.Command) error {
	f := cmd.Flags()
	if f.Changed("output") {
		cfg.OutputVideo = exportOpts.output
	}
	if f.Changed("width") {
		cfg.Width = exportOpts.width
	}
	if f.Changed("height") {
		cfg.Height = exportOpts.height
	}
	if f.Changed("fps") {
		cfg.FPS = exportOpts.fps
	}
	if f.Changed("preset") {
		cfg.Preset = exportOpts.preset
	}
	if f.Changed("encoder") {
		cfg.VideoEncoder = exportOpts.encoder
	}
	if f.Changed("quality") {
		cfg.Quality = exportOpts.quality
	}
	if f.Changed("zoom-mode") {
		cfg.ZoomMode = exportOpts.zoom
	}
	if f.Changed("zoom-easing") {
		cfg.ZoomEasing = exportOpts.easing
	}
	if f.Changed("stats") {
		cfg.ShowStats = exportOpts.stats
	}
	return cfg.Validate()
}

func runExport(cmd *cobra.Command, args []string) error {
	if err := applyExportFlags(cmd); err != nil {
		return err
	}
	tl, path, err := loadProject()
	if err != nil {
		return err
	}

	if cfg.VideoEncoder == "" {
		cfg.VideoEncoder = system.GetBestH264Encoder(cmd.Context())
	}
	if cfg.Quality == 0 {
		cfg.Quality = system.DefaultQuality(cfg.VideoEncoder)
	}
	if cfg.OutputVideo == "" {
		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		timestamp := time.Now().Format("2006-01-02_15-04-05")
		cfg.OutputVideo = filepath.Join("output", fmt.Sprintf("%s_%s.mp4", base, timestamp))
	}

	eff, err := effects.New(cfg.ZoomMode, cfg.ZoomEasing)
	if err != nil {
		return err
	}

	exporter := engine.NewExporter(cfg, tl, &video.FFmpegEncoder{}, eff, source.NewLoader(cfg.DPI))
	lastPercent := -1
	err = exporter.Run(cmd.Context(), func(p float64) {
		if int(p) == lastPercent {
			return
		}
		lastPercent = int(p)
		fmt.Printf("\r[>] Export: %3d%%", lastPercent)
	})
	fmt.Println()
	if err != nil {
		return err
	}

	fmt.Printf("[+++] Video ready: %s\n", cfg.OutputVideo)
	return nil
}
