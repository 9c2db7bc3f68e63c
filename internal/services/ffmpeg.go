package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/desertthunder/ytclip/internal/shared"
)

// FfmpegBinary is the transcoder executable.
const FfmpegBinary = "ffmpeg"

// Intermediate clips use matroska, which accepts whatever codec was downloaded.
const (
	clipPrefix = "clip-"
	clipExt    = ".mkv"
)

// ClipPattern matches the intermediate clips [Ffmpeg] leaves in its temp dir when killed.
const ClipPattern = clipPrefix + "*" + clipExt

// Ffmpeg implements [Transcoder]: it cuts a clip with stream copy, measures its loudness and
// encodes the normalized result with libopus.
type Ffmpeg struct {
	client
	tempDir string
}

// NewFfmpeg resolves ffmpeg on PATH unless [WithBinary] is given. Intermediate clips are written
// to tempDir (the system temp dir when empty).
func NewFfmpeg(tempDir string, opts ...Option) (*Ffmpeg, error) {
	c := newClient(opts)
	if c.binary == "" {
		binary, err := LookupFirst(FfmpegBinary)
		if err != nil {
			return nil, err
		}
		c.binary = binary
	}
	return &Ffmpeg{client: c, tempDir: tempDir}, nil
}

// RenderSegment writes the normalized clip described by req to req.Dest.
func (f *Ffmpeg) RenderSegment(ctx context.Context, req RenderRequest) error {
	clip, err := os.CreateTemp(f.tempDir, clipPrefix+shared.ShortID()+"-*"+clipExt)
	if err != nil {
		return NewFailure(Transient, "create clip file", err)
	}
	clipPath := clip.Name()
	clip.Close()
	defer os.Remove(clipPath)

	if err := f.run(ctx, clipArgs(req, clipPath)); err != nil {
		return fmt.Errorf("failed to cut clip: %w", err)
	}

	res, err := f.exec.Run(ctx, f.binary, []string{
		"-hide_banner", "-y",
		"-i", clipPath,
		"-pass", "1",
		"-filter:a", "loudnorm=print_format=json",
		"-f", "null", "-",
	})
	if err := classifyRender(res, err); err != nil {
		return fmt.Errorf("failed to measure loudness: %w", err)
	}
	loudness, err := parseLoudness(res.Stderr)
	if err != nil {
		return NewFailure(Transient, "loudness measurement", err)
	}

	if err := f.run(ctx, []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", clipPath,
		"-pass", "2",
		"-filter:a", loudness.Filter(),
		"-c:a", "libopus", "-b:a", shared.FormatBitrate(req.Bitrate),
		req.Dest,
	}); err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(req.Dest), err)
	}
	return nil
}

func (f *Ffmpeg) run(ctx context.Context, args []string) error {
	res, err := f.exec.Run(ctx, f.binary, args)
	return classifyRender(res, err)
}

func clipArgs(req RenderRequest, out string) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", req.Source,
		"-map_metadata", "-1",
		"-metadata", "album=" + req.Album,
	}
	if req.Title != "" {
		args = append(args, "-metadata", "title="+req.Title)
	}
	args = append(args, "-ss", seconds(req.Start))
	if req.End != nil {
		args = append(args, "-to", seconds(*req.End))
	}
	return append(args, "-c:a", "copy", "--", out)
}

// seconds formats d the way ffmpeg accepts for -ss and -to.
func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
