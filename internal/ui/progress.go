package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/desertthunder/ytclip/internal/tasks"
)

// ProgressLine formats one pipeline update for line-oriented output.
func ProgressLine(p *Palette, update tasks.ProgressUpdate) string {
	switch update.Phase {
	case tasks.ListItems:
		return p.Help(update.Message)
	case tasks.FetchItem:
		if strings.Contains(update.Message, "✗") {
			return p.Warn(update.Message)
		}
		return update.Message
	case tasks.SegmentItem:
		return p.Title(update.Message)
	case tasks.RenderSegment:
		prefix := fmt.Sprintf("  (%d/%d) ", update.Step, update.Total)
		if strings.HasPrefix(update.Message, "✗") {
			return prefix + p.Err(update.Message)
		}
		return prefix + p.OK(update.Message)
	case tasks.Finished:
		return p.Title(update.Message)
	default:
		return update.Message
	}
}

// FollowProgress writes every update from ch until it is closed.
func FollowProgress(w io.Writer, p *Palette, ch <-chan tasks.ProgressUpdate) {
	for update := range ch {
		fmt.Fprintln(w, ProgressLine(p, update))
	}
}

// RunSummary renders the counters of a finished run.
func RunSummary(p *Palette, r *tasks.RunResult) string {
	if r == nil {
		return p.Err("No result available")
	}

	rows := [][]string{
		{"Items listed", fmt.Sprint(r.Listed)},
		{"Already finished", fmt.Sprint(r.Skipped)},
		{"Fetched", fmt.Sprint(r.Fetched)},
		{"Unavailable", fmt.Sprint(r.Unavailable)},
		{"Left pending", fmt.Sprint(r.TransientExhausted)},
		{"Without segments", fmt.Sprint(r.ZeroSegmentItems)},
		{"Segments rendered", fmt.Sprint(r.SegmentsRendered)},
		{"Segments skipped", fmt.Sprint(r.SegmentsSkipped)},
		{"Segments failed", fmt.Sprint(r.SegmentsFailed)},
		{"Peak raw files", fmt.Sprint(r.PeakArtifacts)},
		{"Elapsed", r.Duration.Round(time.Millisecond).String()},
	}

	title := p.OK("✓ Run complete")
	if r.SegmentsFailed > 0 || r.TransientExhausted > 0 {
		title = p.Warn("Run complete with failures")
	}
	return title + "\n" + RenderTable([]string{"", "Count"}, rows, []Alignment{AlignLeft, AlignRight})
}
