package tasks

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/desertthunder/ytclip/internal/models"
	"github.com/desertthunder/ytclip/internal/services"
	"github.com/desertthunder/ytclip/internal/shared"
)

// fetchStage downloads one item at a time and hands each raw artifact to the Segment stage.
//
// The hand-off is unbuffered, so at most one finished download waits here while the Segment stage
// is busy. Unavailable items are marked permanently failed. Items that keep failing transiently
// stay pending for a later run.
func (e *Engine) fetchStage(ctx context.Context, in <-chan string, out chan<- *RawArtifact) error {
	step := 0
	for {
		var id string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case v, ok := <-in:
			if !ok {
				return nil
			}
			id = v
		}
		step++

		art, err := e.fetchWithRetry(ctx, step, id)
		if err != nil {
			if fatal(err) {
				return err
			}
			continue
		}

		if err := emit(ctx, out, art); err != nil {
			art.release()
			return err
		}
	}
}

// fetchWithRetry returns a nil error only with an artifact. Non-fatal errors have already been
// recorded and counted.
func (e *Engine) fetchWithRetry(ctx context.Context, step int, id string) (*RawArtifact, error) {
	logger := shared.WithLogger(e.logger, "item", id)

	var lastErr error
	for attempt := 0; attempt <= e.opts.FetchRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(e.opts.FetchBackoff, attempt-1)
			logger.Debug("retrying fetch", "attempt", attempt+1, "delay", delay)
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
		e.sendProgress(fetchingUpdate(step, id, attempt+1))

		art, err := e.fetchOnce(ctx, id)
		if err == nil {
			if err := e.opts.Store.MarkFetched(ctx, id, art.Meta.Title); err != nil {
				art.release()
				return nil, storeErr(ctx, err)
			}
			e.stats.fetched.Add(1)
			logger.Info("fetched", "title", art.Meta.Title, "duration", art.Duration)
			return art, nil
		}
		lastErr = err

		switch services.OutcomeOf(err) {
		case services.Fatal:
			return nil, err
		case services.Unavailable:
			reason := services.ReasonOf(err)
			if err := e.opts.Store.MarkPermanentlyFailed(ctx, id, reason); err != nil {
				return nil, storeErr(ctx, err)
			}
			e.stats.unavailable.Add(1)
			logger.Warn("item unavailable", "reason", reason)
			e.sendProgress(fetchFailedUpdate(step, id, err))
			return nil, err
		default:
			if err := e.opts.Store.RecordAttempt(ctx, id, services.ReasonOf(err)); err != nil {
				return nil, storeErr(ctx, err)
			}
			logger.Warn("fetch failed", "attempt", attempt+1, "err", err)
		}
	}

	e.stats.exhausted.Add(1)
	logger.Error("giving up on item for this run", "attempts", e.opts.FetchRetries+1, "err", lastErr)
	e.sendProgress(fetchFailedUpdate(step, id, lastErr))
	return nil, lastErr
}

// fetchOnce resolves metadata and downloads audio into a fresh raw file. On error nothing is left
// on disk.
func (e *Engine) fetchOnce(ctx context.Context, id string) (*RawArtifact, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	meta, err := e.opts.Fetcher.Metadata(ctx, id)
	if err != nil {
		return nil, err
	}
	if meta.ID == "" {
		meta.ID = id
	}

	art := e.newArtifact(id, meta)
	if err := e.opts.Fetcher.FetchAudio(ctx, id, art.Path); err != nil {
		art.release()
		return nil, err
	}
	return art, nil
}

// newArtifact registers a raw file path for id with one reference held by the caller.
func (e *Engine) newArtifact(id string, meta models.Metadata) *RawArtifact {
	name := fmt.Sprintf("%s%s-%s%s", rawPrefix, safeID(id), shared.ShortID(), rawExt)
	art := &RawArtifact{
		ItemID:   id,
		Path:     filepath.Join(e.opts.TempDir, name),
		Duration: meta.Duration,
		Meta:     meta,
		registry: e.artifacts,
	}
	art.retain()
	e.artifacts.add(art.Path)
	return art
}

// safeID keeps item ids usable inside a file name.
func safeID(id string) string {
	b := []byte(id)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			b[i] = '_'
		}
	}
	return string(b)
}
