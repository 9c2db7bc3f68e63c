package tasks

import (
	"fmt"

	"github.com/desertthunder/ytclip/internal/models"
)

// ProgressUpdate represents a progress event during a run.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Pipeline stage
	Step    int    // Current step number within phase, when known
	Total   int    // Total steps in this phase, 0 when unknown
	Message string // Human-readable message for display
	ItemID  string // Item the update refers to, if any
	Data    any    // Optional phase-specific data
}

// Pipeline phase enumeration
type Phase int

const (
	ListItems Phase = iota
	FetchItem
	SegmentItem
	RenderSegment
	Finished
)

func (p Phase) String() string {
	switch p {
	case ListItems:
		return "list"
	case FetchItem:
		return "fetch"
	case SegmentItem:
		return "segment"
	case RenderSegment:
		return "render"
	case Finished:
		return "finished"
	default:
		return ""
	}
}

func listedUpdate(playlist string, found, queued int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ListItems,
		Step:    queued,
		Total:   found,
		Message: fmt.Sprintf("Resolved %s: %d items, %d to process", playlist, found, queued),
	}
}

func fetchingUpdate(step int, id string, attempt int) ProgressUpdate {
	msg := fmt.Sprintf("[%d] Fetching %s...", step, id)
	if attempt > 1 {
		msg = fmt.Sprintf("[%d] Fetching %s (attempt %d)...", step, id, attempt)
	}
	return ProgressUpdate{Phase: FetchItem, Step: step, Message: msg, ItemID: id}
}

func fetchFailedUpdate(step int, id string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchItem,
		Step:    step,
		Message: fmt.Sprintf("[%d] ✗ %s: %v", step, id, err),
		ItemID:  id,
	}
}

func segmentedUpdate(art *RawArtifact, segs []models.Segment, pending int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SegmentItem,
		Step:    pending,
		Total:   len(segs),
		Message: fmt.Sprintf("%s: %d segments, %d to render", art.Meta.Title, len(segs), pending),
		ItemID:  art.ItemID,
		Data:    segs,
	}
}

func renderedUpdate(job RenderJob) ProgressUpdate {
	return ProgressUpdate{
		Phase:   RenderSegment,
		Step:    job.Segment.Ordinal + 1,
		Total:   job.Segments,
		Message: fmt.Sprintf("✓ %s", job.Segment.OutputPath),
		ItemID:  job.Segment.ItemID,
	}
}

func renderFailedUpdate(job RenderJob, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   RenderSegment,
		Step:    job.Segment.Ordinal + 1,
		Total:   job.Segments,
		Message: fmt.Sprintf("✗ %s: %v", job.Segment.Title, err),
		ItemID:  job.Segment.ItemID,
	}
}

func finishedUpdate(r *RunResult) ProgressUpdate {
	return ProgressUpdate{
		Phase: Finished,
		Message: fmt.Sprintf("Done: %d fetched, %d segments rendered, %d failed, %d unavailable",
			r.Fetched, r.SegmentsRendered, r.SegmentsFailed, r.Unavailable),
		Data: r,
	}
}
