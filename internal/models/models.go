// package models defines the data model for the clip pipeline
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// State is the persisted completion state of an [Item].
type State string

const (
	StatePending State = "pending"
	StateFetched State = "fetched"
	StateDone    State = "done"
	StateFailed  State = "failed" // permanently failed
)

// ParseState maps a stored or user-supplied string to a [State].
func ParseState(s string) (State, error) {
	switch st := State(strings.ToLower(strings.TrimSpace(s))); st {
	case StatePending, StateFetched, StateDone, StateFailed:
		return st, nil
	default:
		return "", fmt.Errorf("unknown item state %q", s)
	}
}

// Terminal reports whether no further work will be attempted automatically.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Item is one playlist entry tracked by the completion store.
type Item struct {
	ID           string
	State        State
	Title        string
	Reason       string // why the item permanently failed, or the last transient error
	SegmentCount *int   // nil until a segment plan is recorded
	SegmentsDone int
	Attempts     int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Metadata describes a remote item as reported by the fetcher.
type Metadata struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Uploader    string        `json:"uploader"`
	Duration    time.Duration `json:"duration"`
	Description string        `json:"description"`
}

// Segment is one titled time range within an item.
type Segment struct {
	ItemID     string
	Ordinal    int
	Title      string
	Start      time.Duration
	End        *time.Duration // nil means to the end of the stream
	OutputPath string
	Done       bool
}

// Open reports whether the segment runs to the end of the stream.
func (s Segment) Open() bool {
	return s.End == nil
}

// Validate checks ordering and title constraints.
func (s Segment) Validate() error {
	if s.Ordinal < 0 {
		return errors.New("segment ordinal must not be negative")
	}
	if s.Start < 0 {
		return fmt.Errorf("segment %d: start must not be negative", s.Ordinal)
	}
	if s.End != nil && *s.End <= s.Start {
		return fmt.Errorf("segment %d: end %v must be after start %v", s.Ordinal, *s.End, s.Start)
	}
	if strings.TrimSpace(s.Title) == "" {
		return fmt.Errorf("segment %d: title must not be empty", s.Ordinal)
	}
	return nil
}

// String formats the segment range as "start-end title".
func (s Segment) String() string {
	end := "end"
	if s.End != nil {
		end = FormatTimestamp(*s.End)
	}
	return fmt.Sprintf("%s-%s %s", FormatTimestamp(s.Start), end, s.Title)
}

// Summary counts items by state and segment progress across the store.
type Summary struct {
	Pending      int
	Fetched      int
	Done         int
	Failed       int
	Segments     int
	SegmentsDone int
}

// Total is the number of tracked items.
func (s Summary) Total() int {
	return s.Pending + s.Fetched + s.Done + s.Failed
}

// FormatTimestamp renders d as H:MM:SS, or M:SS below one hour.
func FormatTimestamp(d time.Duration) string {
	total := int(d / time.Second)
	h, m, sec := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%d:%02d", m, sec)
}

// Ptr returns a pointer to d, for building open or closed segment ends.
func Ptr(d time.Duration) *time.Duration {
	return &d
}
