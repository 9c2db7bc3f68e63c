package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/ytclip/internal/models"
	"github.com/desertthunder/ytclip/internal/segments"
	"github.com/desertthunder/ytclip/internal/shared"
)

// tailTolerance drops description timestamps that start this close to (or past) the end of the
// item. Such marks usually belong to a different upload.
const tailTolerance = 10 * time.Second

// segmentStage plans each raw artifact into segments and emits one render job per segment that
// is not yet done. It keeps a reference to the artifact while emitting, so the file outlives the
// last job handed to the render pool.
func (e *Engine) segmentStage(ctx context.Context, in <-chan *RawArtifact, out chan<- RenderJob) error {
	for {
		var art *RawArtifact
		select {
		case <-ctx.Done():
			return ctx.Err()
		case v, ok := <-in:
			if !ok {
				return nil
			}
			art = v
		}

		err := e.segmentItem(ctx, art, out)
		art.release()
		if err != nil {
			return err
		}
	}
}

func (e *Engine) segmentItem(ctx context.Context, art *RawArtifact, out chan<- RenderJob) error {
	logger := shared.WithLogger(e.logger, "item", art.ItemID)

	planned, ok, err := e.opts.Store.Plan(ctx, art.ItemID)
	if err != nil {
		return storeErr(ctx, err)
	}
	if ok {
		logger.Debug("reusing recorded plan", "segments", len(planned))
	} else {
		segs := e.planItem(art, logger)
		if err := e.assignOutputPaths(ctx, segs); err != nil {
			return err
		}
		if planned, err = e.opts.Store.PlanSegments(ctx, art.ItemID, segs); err != nil {
			return storeErr(ctx, err)
		}
	}

	var jobs []RenderJob
	for _, seg := range planned {
		done, err := e.opts.Store.IsSegmentDone(ctx, art.ItemID, seg.Ordinal)
		if err != nil {
			return storeErr(ctx, err)
		}
		if done {
			e.stats.segSkipped.Add(1)
			continue
		}
		jobs = append(jobs, RenderJob{
			Artifact: art,
			Segment:  seg,
			Album:    albumTag(art.Meta.Title, art.ItemID),
			Segments: len(planned),
		})
	}

	logger.Info("segmented", "segments", len(planned), "pending", len(jobs))
	e.sendProgress(segmentedUpdate(art, planned, len(jobs)))

	for _, job := range jobs {
		art.retain()
		if err := emit(ctx, out, job); err != nil {
			art.release()
			return err
		}
	}
	return nil
}

// planItem derives the segments of an item that has no recorded plan. Output paths are assigned
// separately.
func (e *Engine) planItem(art *RawArtifact, logger *log.Logger) []models.Segment {
	if !e.opts.Split {
		return segments.Whole(art.ItemID, art.Meta.Title)
	}

	segs := e.parser.Segments(art.ItemID, art.Meta.Description)
	if kept := withinDuration(segs, art.Duration); len(kept) < len(segs) {
		logger.Warn("dropping timestamps beyond the end of the item",
			"dropped", len(segs)-len(kept), "duration", art.Duration)
		segs = kept
	}
	if len(segs) > 0 {
		return segs
	}

	if e.opts.FallbackWhole {
		logger.Warn("no segments found in description, rendering whole item")
		return segments.Whole(art.ItemID, art.Meta.Title)
	}
	e.stats.zeroSegments.Add(1)
	logger.Warn("no segments found in description, nothing to render")
	return []models.Segment{}
}

// withinDuration drops segments starting within tailTolerance of the end. The last kept segment
// becomes open ended. An unknown duration keeps everything.
func withinDuration(segs []models.Segment, duration time.Duration) []models.Segment {
	if duration <= 0 {
		return segs
	}
	limit := duration - tailTolerance
	if last, ok := segments.LastStart(segs); !ok || last < limit {
		return segs
	}
	n := 0
	for n < len(segs) && segs[n].Start < limit {
		n++
	}
	kept := segs[:n:n]
	if n > 0 {
		kept[n-1].End = nil
	}
	return kept
}

func albumTag(title, id string) string {
	return fmt.Sprintf("%s (%s)", title, id)
}
