package segments

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// UntitledName replaces titles that sanitize to nothing.
const UntitledName = "Untitled"

// maxTitleBytes keeps "<title> (nnn).<ext>" under common 255 byte filename limits.
const maxTitleBytes = 200

var unsafeChars = strings.NewReplacer(
	`"`, "", `'`, "", "/", "", `\`, "", "|", "", "~", "",
	"$", "", "#", "", ":", "", "*", "", "<", "", ">", "", "?", "", ",", "",
)

// CleanTitle normalizes a matched title into a safe file name stem.
//
// It strips characters that break shells and filesystems, collapses whitespace, trims leading
// dots, NFC-normalizes and optionally title-cases the result.
func CleanTitle(title string, titleCase bool) string {
	s := norm.NFC.String(title)
	s = unsafeChars.Replace(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimLeft(s, ". ")

	if titleCase {
		s = cases.Title(language.Und).String(s)
	}

	if len(s) > maxTitleBytes {
		s = truncate(s, maxTitleBytes)
	}
	if s == "" {
		return UntitledName
	}
	return s
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	cut := 0
	for i := range s {
		if i > n {
			break
		}
		cut = i
	}
	return strings.TrimSpace(s[:cut])
}
