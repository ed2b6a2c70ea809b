package audio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrNoDuration is returned when the probed track reports no usable length.
var ErrNoDuration = errors.New("audio track has no duration")

// Track is the decoded-audio handle shared by playback and export.
// Only Duration is interpreted by the timeline; the rest is passed through
// to the playback and encoding tools.
type Track struct {
	Path       string  `yaml:"path" json:"path"`
	Duration   float64 `yaml:"duration" json:"duration"`
	SampleRate int     `yaml:"sample_rate,omitempty" json:"sampleRate,omitempty"`
	Channels   int     `yaml:"channels,omitempty" json:"channels,omitempty"`
}

// Decoder turns an audio file into a Track.
type Decoder interface {
	Decode(ctx context.Context, path string) (Track, error)
}

// FFprobeDecoder reads track metadata with the system ffprobe binary.
type FFprobeDecoder struct {
	Binary string
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
	} `json:"streams"`
}

func (d *FFprobeDecoder) Decode(ctx context.Context, path string) (Track, error) {
	bin := d.Binary
	if bin == "" {
		bin = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "format=duration:stream=codec_type,sample_rate,channels",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return Track{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return parseProbe(path, out)
}

func parseProbe(path string, data []byte) (Track, error) {
	var p probeOutput
	if err := json.Unmarshal(data, &p); err != nil {
		return Track{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	dur, err := strconv.ParseFloat(strings.TrimSpace(p.Format.Duration), 64)
	if err != nil || dur <= 0 {
		return Track{}, fmt.Errorf("%s: %w", path, ErrNoDuration)
	}

	t := Track{Path: path, Duration: dur}
	for _, s := range p.Streams {
		if s.CodecType != "" && s.CodecType != "audio" {
			continue
		}
		t.SampleRate, _ = strconv.Atoi(s.SampleRate)
		t.Channels = s.Channels
		break
	}
	return t, nil
}

var extensions = []string{".mp3", ".wav", ".m4a", ".ogg", ".aac", ".flac"}

// IsAudioFile reports whether the name has a known audio extension.
func IsAudioFile(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// FindLatest returns the most recently modified audio file in dir.
func FindLatest(dir string) (string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var latestFile string
	var latestTime time.Time

	for _, f := range files {
		if f.IsDir() || !IsAudioFile(f.Name()) {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestTime) {
			latestTime = info.ModTime()
			latestFile = filepath.Join(dir, f.Name())
		}
	}

	if latestFile == "" {
		return "", fmt.Errorf("no audio files found in %s", dir)
	}
	return latestFile, nil
}
