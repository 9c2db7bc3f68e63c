package segments

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/desertthunder/ytclip/internal/shared"
)

// Building blocks of the built-in rules.
const (
	optIndex   = `(?:\d+[.)]\s*)?`
	startTime  = `(?P<time>\d+(?::\d{1,2})+)`
	optEndTime = `(?:\s*[-–—~]\s*\d+(?::\d{1,2})+)?`
	titleSep   = `\s*(?:[-–—:|~•]\s*)?`
	title      = `(?P<title>\S.*?)`
)

var defaultExprs = []string{
	// "1. 00:00 Intro", "00:00 - 03:45 Intro"
	`^\s*` + optIndex + startTime + optEndTime + `\s` + titleSep + title + `\s*$`,
	// "5. My Very Cool Title - 05:49"
	`^\s*` + optIndex + title + titleSep + `\s*` + startTime + optEndTime + `\s*$`,
}

// Rule extracts a start timestamp and a title from one description line.
type Rule struct {
	re       *regexp.Regexp
	timeIdx  int
	titleIdx int
}

// NewRule compiles expr, which must define the named groups "time" and "title".
func NewRule(expr string) (Rule, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: rule %q: %v", shared.ErrInvalidConfig, expr, err)
	}
	r := Rule{re: re, timeIdx: re.SubexpIndex("time"), titleIdx: re.SubexpIndex("title")}
	if r.timeIdx < 0 || r.titleIdx < 0 {
		return Rule{}, fmt.Errorf("%w: rule %q must define named groups 'time' and 'title'", shared.ErrInvalidConfig, expr)
	}
	return r, nil
}

// CompileRules compiles exprs in order. An empty list yields [DefaultRules].
func CompileRules(exprs []string) ([]Rule, error) {
	if len(exprs) == 0 {
		return DefaultRules(), nil
	}
	rules := make([]Rule, 0, len(exprs))
	for _, expr := range exprs {
		r, err := NewRule(expr)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// DefaultRules recognizes "[n.] time [- end] title" and "[n.] title [-] time [- end]" lines.
func DefaultRules() []Rule {
	rules := make([]Rule, len(defaultExprs))
	for i, expr := range defaultExprs {
		r, err := NewRule(expr)
		if err != nil {
			panic(err)
		}
		rules[i] = r
	}
	return rules
}

// String returns the rule's expression.
func (r Rule) String() string {
	return r.re.String()
}

// Match applies the rule to line. ok is false unless both captures are present and the
// timestamp parses.
func (r Rule) Match(line string) (start time.Duration, title string, ok bool) {
	m := r.re.FindStringSubmatch(line)
	if m == nil {
		return 0, "", false
	}
	title = strings.TrimSpace(m[r.titleIdx])
	if title == "" {
		return 0, "", false
	}
	start, err := ParseTimestamp(m[r.timeIdx])
	if err != nil {
		return 0, "", false
	}
	return start, title, true
}

// ParseTimestamp converts "SS", "M:SS" or "H:MM:SS" into a duration.
func ParseTimestamp(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty timestamp", shared.ErrInvalidInput)
	}
	var secs int64
	for _, part := range strings.Split(s, ":") {
		if part == "" {
			return 0, fmt.Errorf("%w: timestamp %q", shared.ErrInvalidInput, s)
		}
		var n int64
		for _, c := range part {
			if c < '0' || c > '9' {
				return 0, fmt.Errorf("%w: timestamp %q", shared.ErrInvalidInput, s)
			}
			n = n*10 + int64(c-'0')
			if n > 1<<31 {
				return 0, fmt.Errorf("%w: timestamp %q out of range", shared.ErrInvalidInput, s)
			}
		}
		secs = secs*60 + n
		if secs > 1<<31 {
			return 0, fmt.Errorf("%w: timestamp %q out of range", shared.ErrInvalidInput, s)
		}
	}
	return time.Duration(secs) * time.Second, nil
}
