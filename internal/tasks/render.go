package tasks

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/ytclip/internal/services"
	"github.com/desertthunder/ytclip/internal/shared"
)

// renderWorker renders jobs until the channel closes. Each job's artifact reference is released
// once the job reaches a terminal state.
func (e *Engine) renderWorker(ctx context.Context, worker int, in <-chan RenderJob) error {
	logger := shared.WithLogger(e.logger, "worker", worker)
	for {
		var job RenderJob
		select {
		case <-ctx.Done():
			return ctx.Err()
		case v, ok := <-in:
			if !ok {
				return nil
			}
			job = v
		}

		err := e.renderJob(ctx, logger, job)
		job.Artifact.release()
		if err != nil {
			return err
		}
	}
}

// renderJob returns an error only when the run must stop. A segment that keeps failing gets a
// placeholder and stays not done.
func (e *Engine) renderJob(ctx context.Context, logger *log.Logger, job RenderJob) error {
	seg := job.Segment

	var lastErr error
	for attempt := 0; attempt <= e.opts.RenderRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, backoffDelay(e.opts.RenderBackoff, attempt-1)); err != nil {
				return err
			}
		}

		err := e.renderOnce(ctx, logger, job)
		if err == nil {
			if err := e.opts.Store.MarkSegmentDone(ctx, seg.ItemID, seg.Ordinal); err != nil {
				return storeErr(ctx, err)
			}
			if err := os.Remove(placeholderPath(seg.OutputPath)); err == nil {
				logger.Debug("removed stale placeholder", "path", placeholderPath(seg.OutputPath))
			}
			e.stats.rendered.Add(1)
			logger.Info("rendered", "item", seg.ItemID, "segment", seg.Ordinal, "path", seg.OutputPath)
			e.sendProgress(renderedUpdate(job))
			return nil
		}
		if fatal(err) {
			return err
		}
		lastErr = err
		logger.Warn("render failed", "item", seg.ItemID, "segment", seg.Ordinal, "attempt", attempt+1, "err", err)
	}

	e.stats.segFailed.Add(1)
	logger.Error("giving up on segment", "item", seg.ItemID, "segment", seg.Ordinal, "err", lastErr)
	if err := writePlaceholder(seg.OutputPath); err != nil {
		return outputErr(fmt.Errorf("failed to write placeholder: %w", err))
	}
	e.sendProgress(renderFailedUpdate(job, lastErr))
	return nil
}

// chmod is replaced in tests.
var chmod = os.Chmod

// renderOnce renders into a partial file next to the final path and renames it into place, so
// the final path only ever holds a complete output. The partial file is synced before the rename
// and the directory after it, so a segment marked done survives a system crash.
//
// Failing to create, sync or move files in the output directory is fatal.
func (e *Engine) renderOnce(ctx context.Context, logger *log.Logger, job RenderJob) error {
	seg := job.Segment

	partial, err := os.CreateTemp(e.opts.OutputDir, partialPrefix+"*"+e.opts.Ext)
	if err != nil {
		return outputErr(fmt.Errorf("failed to create partial output: %w", err))
	}
	partialPath := partial.Name()
	partial.Close()

	err = e.opts.Transcoder.RenderSegment(ctx, services.RenderRequest{
		Source:  job.Artifact.Path,
		Dest:    partialPath,
		Start:   seg.Start,
		End:     seg.End,
		Album:   job.Album,
		Title:   seg.Title,
		Bitrate: e.opts.Bitrate,
	})
	if err != nil {
		os.Remove(partialPath)
		return err
	}

	if err := syncPath(partialPath); err != nil {
		os.Remove(partialPath)
		return outputErr(fmt.Errorf("failed to sync output: %w", err))
	}
	if err := os.Rename(partialPath, seg.OutputPath); err != nil {
		os.Remove(partialPath)
		return outputErr(fmt.Errorf("failed to move output into place: %w", err))
	}
	if err := syncPath(e.opts.OutputDir); err != nil {
		logger.Warn("failed to sync output directory", "dir", e.opts.OutputDir, "err", err)
	}
	if err := chmod(seg.OutputPath, 0o644); err != nil {
		logger.Warn("failed to set output permissions", "path", seg.OutputPath, "err", err)
	}
	return nil
}

// syncPath flushes a file or directory to stable storage.
func syncPath(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

func writePlaceholder(final string) error {
	path := placeholderPath(final)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}
