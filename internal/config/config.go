package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// export
	OutputVideo  string  `yaml:"output"`
	Width        int     `yaml:"width"`
	Height       int     `yaml:"height"`
	FPS          int     `yaml:"fps"`
	Preset       string  `yaml:"preset"`
	VideoEncoder string  `yaml:"video_encoder"`
	Quality      int     `yaml:"quality"`
	AudioBitrate string  `yaml:"audio_bitrate"`
	ZoomMode     string  `yaml:"zoom_mode"`
	ZoomEasing   string  `yaml:"zoom_easing"`
	DPI          int     `yaml:"dpi"`
	ShowStats    bool    `yaml:"show_stats"`
	BuildVersion string  `yaml:"-"`
	SubtitleSize float64 `yaml:"subtitle_size"`

	// content generation
	APIKey           string        `yaml:"-"`
	APIBaseURL       string        `yaml:"api_base_url"`
	ImageModel       string        `yaml:"image_model"`
	TextModel        string        `yaml:"text_model"`
	AssetDir         string        `yaml:"asset_dir"`
	GenerateInterval time.Duration `yaml:"generate_interval"`
	AspectRatio      string        `yaml:"aspect_ratio"`

	// interactive preview
	Addr       string `yaml:"addr"`
	PreviewFPS int    `yaml:"preview_fps"`
	AudioOut   string `yaml:"audio_out"`
}

// ExportParams is what the encoder needs for one export.
type ExportParams struct {
	Width, Height int
	FPS           int
	Duration      float64
	AudioPath     string
	AudioBitrate  string
	Encoder       string
	Quality       int
}

func Default() *Config {
	return &Config{
		Width:        1280,
		Height:       720,
		FPS:          30,
		AudioBitrate: "192k",
		ZoomMode:     "kenburns",
		ZoomEasing:   "linear",
		DPI:          150,
		APIBaseURL:   "https://openrouter.ai/api/v1",
		ImageModel:   "google/gemini-2.5-flash-image",
		TextModel:    "google/gemini-2.5-flash",
		AssetDir:     "assets",
		Addr:         ":8080",
		PreviewFPS:   30,
		AudioOut:     "ffplay",
	}
}

// Load reads an optional YAML file on top of the defaults, then the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.LoadEnv()
	return cfg, cfg.Validate()
}

// LoadEnv reads .env if present and applies environment overrides.
func (c *Config) LoadEnv() {
	if err := godotenv.Load(); err == nil {
		log.Println("[*] Loaded environment variables from .env")
	}
	c.APIKey = strings.TrimSpace(getEnv("OPEN_ROUTER_API_KEY", c.APIKey))
	c.APIBaseURL = getEnv("SLIDECAST_API_BASE_URL", c.APIBaseURL)
	c.AssetDir = getEnv("SLIDECAST_ASSET_DIR", c.AssetDir)
	c.Addr = getEnv("SLIDECAST_ADDR", c.Addr)
	if v, err := strconv.Atoi(getEnv("SLIDECAST_FPS", "")); err == nil {
		c.FPS = v
	}
}

// ApplyPreset switches the frame size to a named aspect preset.
func (c *Config) ApplyPreset() error {
	switch c.Preset {
	case "":
	case "16:9":
		c.Width, c.Height = 1280, 720
	case "9:16":
		c.Width, c.Height = 720, 1280
	case "4:5":
		c.Width, c.Height = 1080, 1350
	case "1:1":
		c.Width, c.Height = 1080, 1080
	default:
		return fmt.Errorf("unknown preset %q (use 16:9, 9:16, 4:5 or 1:1)", c.Preset)
	}
	return nil
}

func (c *Config) Validate() error {
	if err := c.ApplyPreset(); err != nil {
		return err
	}
	if c.Width <= 0 || c.Height <= 0 || c.Width%2 != 0 || c.Height%2 != 0 {
		return fmt.Errorf("frame size %dx%d must be positive and even", c.Width, c.Height)
	}
	if c.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %d", c.FPS)
	}
	if c.PreviewFPS <= 0 {
		c.PreviewFPS = c.FPS
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
