package video

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os/exec"
	"strings"

	"github.com/ivlev/slidecast/internal/config"
)

// FrameSink consumes frames of a single export in order.
type FrameSink interface {
	WriteFrame(img *image.RGBA) error
	// Close flushes the encode and waits for the output file to be complete.
	Close() error
	// Abort stops the encode without finishing the file.
	Abort()
}

type VideoEncoder interface {
	Open(ctx context.Context, outputPath string, params config.ExportParams) (FrameSink, error)
}

// FFmpegEncoder pipes raw RGBA frames into ffmpeg and muxes them with the audio track.
type FFmpegEncoder struct {
	Binary string
}

func (e *FFmpegEncoder) Open(ctx context.Context, outputPath string, params config.ExportParams) (FrameSink, error) {
	bin := e.Binary
	if bin == "" {
		bin = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, bin, BuildArgs(outputPath, params)...)

	s := &ffmpegSink{cmd: cmd, width: params.Width, height: params.Height}
	cmd.Stdout = &s.out
	cmd.Stderr = &s.out

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe error: %w", err)
	}
	s.stdin = stdin

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start error: %w", err)
	}
	return s, nil
}

// BuildArgs assembles the ffmpeg command line for an export.
func BuildArgs(outputPath string, p config.ExportParams) []string {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", p.Width, p.Height),
		"-framerate", fmt.Sprintf("%d", p.FPS),
		"-i", "-",
	}
	if p.AudioPath != "" {
		args = append(args, "-i", p.AudioPath, "-map", "0:v:0", "-map", "1:a:0")
	}

	args = append(args,
		"-t", fmt.Sprintf("%f", p.Duration),
		"-r", fmt.Sprintf("%d", p.FPS),
		"-pix_fmt", "yuv420p",
		"-c:v", p.Encoder,
	)

	switch p.Encoder {
	case "h264_videotoolbox":
		// VideoToolbox does not accept -q:v everywhere; use a bitrate instead
		args = append(args, "-b:v", fmt.Sprintf("%dk", p.Quality*100))
	case "h264_nvenc":
		args = append(args, "-cq", fmt.Sprintf("%d", p.Quality))
	default: // libx264
		args = append(args, "-crf", fmt.Sprintf("%d", p.Quality), "-preset", "medium")
	}

	if p.AudioPath != "" {
		bitrate := p.AudioBitrate
		if bitrate == "" {
			bitrate = "192k"
		}
		args = append(args, "-c:a", "aac", "-b:a", bitrate)
	}

	return append(args, "-movflags", "+faststart", "-f", "mp4", outputPath)
}

type ffmpegSink struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	out    bytes.Buffer
	width  int
	height int
}

func (s *ffmpegSink) WriteFrame(img *image.RGBA) error {
	if b := img.Bounds(); b.Dx() != s.width || b.Dy() != s.height {
		return fmt.Errorf("frame is %dx%d, encoder expects %dx%d", b.Dx(), b.Dy(), s.width, s.height)
	}
	if err := writeRawRGBA(s.stdin, img); err != nil {
		return fmt.Errorf("write raw error: %w (%s)", err, tail(s.out.String()))
	}
	return nil
}

func (s *ffmpegSink) Close() error {
	s.stdin.Close()
	if err := s.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg wait error: %w, output: %s", err, tail(s.out.String()))
	}
	return nil
}

func (s *ffmpegSink) Abort() {
	s.stdin.Close()
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.cmd.Wait()
}

func writeRawRGBA(w io.Writer, img image.Image) error {
	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != bounds.Dx()*4 || rgba.Rect.Min.X != 0 || rgba.Rect.Min.Y != 0 {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}
	_, err := w.Write(rgba.Pix)
	return err
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 800 {
		return "..." + s[len(s)-800:]
	}
	return s
}
