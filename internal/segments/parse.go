package segments

import (
	"bufio"
	"strings"
	"time"

	"github.com/desertthunder/ytclip/internal/models"
)

// Mark is one matched description line: where a segment starts and what it is called.
type Mark struct {
	Start time.Duration
	Title string
	Line  int // 1-based line number in the description
}

// ParserOpts configures a [Parser].
type ParserOpts struct {
	Rules     []Rule // tried in order, first match wins; nil uses DefaultRules
	TitleCase bool
}

// Parser turns free-form description text into ordered segments.
type Parser struct {
	rules     []Rule
	titleCase bool
}

// NewParser creates a Parser, filling in the default rules when none are given.
func NewParser(opts ParserOpts) *Parser {
	rules := opts.Rules
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Parser{rules: rules, titleCase: opts.TitleCase}
}

// Marks scans description line by line and returns one Mark per line matched by a rule.
//
// Marks whose start does not strictly increase are dropped, so the result always describes
// non-overlapping ranges. Text that matches nothing yields an empty slice.
func (p *Parser) Marks(description string) []Mark {
	var marks []Mark
	scanner := bufio.NewScanner(strings.NewReader(description))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		for _, rule := range p.rules {
			start, title, ok := rule.Match(line)
			if !ok {
				continue
			}
			if n := len(marks); n > 0 && start <= marks[n-1].Start {
				break
			}
			marks = append(marks, Mark{Start: start, Title: CleanTitle(title, p.titleCase), Line: lineNo})
			break
		}
	}
	return marks
}

// Segments parses description and turns consecutive marks into segments of itemID.
// Segment i ends where segment i+1 starts; the last one is open ended.
func (p *Parser) Segments(itemID, description string) []models.Segment {
	return FromMarks(itemID, p.Marks(description))
}

// FromMarks converts marks into dense, ordinal-ordered segments.
func FromMarks(itemID string, marks []Mark) []models.Segment {
	segs := make([]models.Segment, len(marks))
	for i, m := range marks {
		segs[i] = models.Segment{ItemID: itemID, Ordinal: i, Title: m.Title, Start: m.Start}
		if i+1 < len(marks) {
			segs[i].End = models.Ptr(marks[i+1].Start)
		}
	}
	return segs
}

// Whole synthesizes the single unbounded segment used when an item is not split.
func Whole(itemID, title string) []models.Segment {
	return []models.Segment{{ItemID: itemID, Ordinal: 0, Title: CleanTitle(title, false)}}
}

// LastStart returns the start of the final segment, or false when there are none.
func LastStart(segs []models.Segment) (time.Duration, bool) {
	if len(segs) == 0 {
		return 0, false
	}
	return segs[len(segs)-1].Start, true
}
