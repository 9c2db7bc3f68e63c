package models

import (
	"testing"
	"time"
)

func TestParseState(t *testing.T) {
	for _, s := range []string{"pending", "Fetched", " done ", "FAILED"} {
		if _, err := ParseState(s); err != nil {
			t.Errorf("ParseState(%q) unexpected error: %v", s, err)
		}
	}
	if _, err := ParseState("archived"); err == nil {
		t.Error("expected error for unknown state")
	}
	if !StateDone.Terminal() || !StateFailed.Terminal() || StateFetched.Terminal() || StatePending.Terminal() {
		t.Error("only done and failed are terminal")
	}
}

func TestSegment(t *testing.T) {
	t.Run("Validate", func(t *testing.T) {
		tc := []struct {
			name    string
			seg     Segment
			wantErr bool
		}{
			{name: "open ended", seg: Segment{Ordinal: 1, Title: "Verse", Start: 225 * time.Second}},
			{name: "closed", seg: Segment{Title: "Intro", End: Ptr(225 * time.Second)}},
			{name: "negative ordinal", seg: Segment{Ordinal: -1, Title: "x"}, wantErr: true},
			{name: "end before start", seg: Segment{Title: "x", Start: time.Minute, End: Ptr(time.Second)}, wantErr: true},
			{name: "empty title", seg: Segment{Title: "  "}, wantErr: true},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				err := tt.seg.Validate()
				if (err != nil) != tt.wantErr {
					t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				}
			})
		}
	})

	t.Run("String", func(t *testing.T) {
		s := Segment{Title: "Intro", End: Ptr(225 * time.Second)}
		if got := s.String(); got != "0:00-3:45 Intro" {
			t.Errorf("got %q", got)
		}
		s = Segment{Title: "Outro", Start: 3725 * time.Second}
		if got := s.String(); got != "1:02:05-end Outro" {
			t.Errorf("got %q", got)
		}
	})
}
