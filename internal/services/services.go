// package services wraps the external programs that fetch and transcode media.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/ytclip/internal/models"
	"github.com/desertthunder/ytclip/internal/shared"
)

// Outcome is the classified result of one external operation.
type Outcome int

const (
	Success     Outcome = iota
	Unavailable         // the remote item is gone, private or blocked; never retried
	Transient           // network, rate limit or process failure; retried with backoff
	Fatal               // the capability itself is unusable; aborts the run
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Unavailable:
		return "unavailable"
	case Transient:
		return "transient"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Failure is a classified error returned by a [Fetcher] or [Transcoder].
type Failure struct {
	Outcome Outcome
	Reason  string
	Err     error
}

// NewFailure builds a classified failure.
func NewFailure(o Outcome, reason string, err error) *Failure {
	return &Failure{Outcome: o, Reason: reason, Err: err}
}

func (f *Failure) Error() string {
	switch {
	case f.Err != nil && f.Reason != "":
		return fmt.Sprintf("%s: %s: %v", f.Outcome, f.Reason, f.Err)
	case f.Err != nil:
		return fmt.Sprintf("%s: %v", f.Outcome, f.Err)
	default:
		return fmt.Sprintf("%s: %s", f.Outcome, f.Reason)
	}
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// OutcomeOf maps any error to its [Outcome].
//
// Unclassified errors count as [Transient], except cancellation and missing executables which
// are [Fatal].
func OutcomeOf(err error) Outcome {
	if err == nil {
		return Success
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Outcome
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, shared.ErrMissingBinary) {
		return Fatal
	}
	return Transient
}

// ReasonOf returns the short human reason carried by a [Failure], or the error text.
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}
	var f *Failure
	if errors.As(err, &f) && f.Reason != "" {
		return f.Reason
	}
	return err.Error()
}

// Fetcher resolves playlists and downloads item audio.
type Fetcher interface {
	// ListPlaylist expands a playlist (or a single item) id into item ids.
	ListPlaylist(ctx context.Context, id string) ([]string, error)

	// Metadata returns title, uploader, duration and description of an item.
	Metadata(ctx context.Context, id string) (models.Metadata, error)

	// FetchAudio downloads the best audio stream of id to dest.
	FetchAudio(ctx context.Context, id, dest string) error
}

// RenderRequest describes one clip to cut, normalize and encode.
type RenderRequest struct {
	Source  string
	Dest    string
	Start   time.Duration
	End     *time.Duration // nil renders to the end of the stream
	Album   string
	Title   string
	Bitrate int // kbit/s
}

// Transcoder clips and loudness-normalizes audio.
type Transcoder interface {
	RenderSegment(ctx context.Context, req RenderRequest) error
}
