package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/ytclip/internal/models"
)

// Fetcher executables, in order of preference.
var FetcherBinaries = []string{"yt-dlp", "youtube-dl"}

// YtDlp implements [Fetcher] on top of yt-dlp, or youtube-dl when yt-dlp is absent.
type YtDlp struct {
	client
}

// NewYtDlp resolves the fetcher executable unless one is supplied with [WithBinary].
func NewYtDlp(opts ...Option) (*YtDlp, error) {
	c := newClient(opts)
	if c.binary == "" {
		binary, err := LookupFirst(FetcherBinaries...)
		if err != nil {
			return nil, err
		}
		c.binary = binary
	}
	return &YtDlp{client: c}, nil
}

// Binary returns the resolved executable.
func (y *YtDlp) Binary() string {
	return y.binary
}

// ListPlaylist returns the item ids of a playlist; an item id resolves to itself.
func (y *YtDlp) ListPlaylist(ctx context.Context, id string) ([]string, error) {
	res, err := y.exec.Run(ctx, y.binary, []string{"-q", "--flat-playlist", "--get-id", "--", id})
	if err := classifyFetch(res, err); err != nil {
		return nil, fmt.Errorf("failed to list playlist %s: %w", id, err)
	}
	return strings.Fields(string(res.Stdout)), nil
}

type ytMetadata struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Uploader    string  `json:"uploader"`
	Duration    float64 `json:"duration"`
	Description string  `json:"description"`
}

// Metadata fetches the item's JSON description without downloading media.
func (y *YtDlp) Metadata(ctx context.Context, id string) (models.Metadata, error) {
	res, err := y.exec.Run(ctx, y.binary, []string{"-q", "--skip-download", "-j", "--", id})
	if err := classifyFetch(res, err); err != nil {
		return models.Metadata{}, fmt.Errorf("failed to get metadata for %s: %w", id, err)
	}

	var raw ytMetadata
	if err := json.Unmarshal(res.Stdout, &raw); err != nil {
		return models.Metadata{}, fmt.Errorf("failed to parse metadata for %s: %w", id, NewFailure(Transient, "malformed metadata", err))
	}

	meta := models.Metadata{
		ID:          raw.ID,
		Title:       raw.Title,
		Uploader:    raw.Uploader,
		Duration:    time.Duration(raw.Duration * float64(time.Second)),
		Description: raw.Description,
	}
	if meta.ID == "" {
		meta.ID = id
	}
	return meta, nil
}

// FetchAudio downloads the best audio stream to dest, tagging title and artist.
func (y *YtDlp) FetchAudio(ctx context.Context, id, dest string) error {
	args := []string{
		"-q",
		"-o", dest,
		"--no-continue",
		"-f", "bestaudio",
		"--add-metadata",
		"--parse-metadata", "%(title)s:%(meta_title)s",
		"--parse-metadata", "%(uploader)s:%(meta_artist)s",
		"--", id,
	}
	res, err := y.exec.Run(ctx, y.binary, args)
	if err := classifyFetch(res, err); err != nil {
		return fmt.Errorf("failed to fetch %s: %w", id, err)
	}
	return nil
}
