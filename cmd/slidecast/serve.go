package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ivlev/slidecast/internal/effects"
	"github.com/ivlev/slidecast/internal/generate"
	"github.com/ivlev/slidecast/internal/playback"
	"github.com/ivlev/slidecast/internal/server"
	"github.com/ivlev/slidecast/internal/source"
	"github.com/ivlev/slidecast/internal/system"
	"github.com/ivlev/slidecast/internal/video"
)

var (
	serveAddr  string
	serveMuted bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the interactive preview and tap-sync server",
	Long: `Serve the project for interactive preview. The narration plays on this machine
while any browser on the LAN can follow the frames and tap to snap the next scene
to the current position. Scan the printed QR code to use a phone as the tap button.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config, :8080)")
	serveCmd.Flags().BoolVar(&serveMuted, "mute", false, "Do not play the audio on this machine")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveAddr != "" {
		cfg.Addr = serveAddr
	}
	tl, path, err := loadProject()
	if err != nil {
		return err
	}

	eff, err := effects.New(cfg.ZoomMode, cfg.ZoomEasing)
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
		cfg.OutputVideo = "output/preview_export.mp4"
	}

	var out playback.Output = playback.NewFFplayOutput(cfg.AudioOut, tl.Audio().Path)
	if serveMuted {
		out = playback.NopOutput{}
	}

	var gen generate.Service
	if cfg.APIKey != "" {
		gen = generate.NewOpenRouterClient(cfg)
	} else {
		fmt.Println("[!] OPEN_ROUTER_API_KEY not set: generation is disabled")
	}

	srv, err := server.New(server.Options{
		Config:      cfg,
		Timeline:    tl,
		ProjectPath: path,
		Effect:      eff,
		Output:      out,
		Clock:       playback.NewSystemClock(),
		Loader:      source.NewLoader(cfg.DPI),
		Encoder:     &video.FFmpegEncoder{},
		Generator:   gen,
	})
	if err != nil {
		return err
	}

	url := server.LANURL(cfg.Addr)
	if qr, err := server.QRText(url); err == nil {
		fmt.Println(qr)
	}
	fmt.Printf("[*] Open %s on any device in the network\n", url)

	return srv.Run(cmd.Context())
}
