// Package ui renders CLI output: styled progress lines, run summaries and tables.
//
// Styling uses lipgloss through a [Palette]. When stdout is not a terminal (or NO_COLOR is set)
// a plain palette is used so piped output stays free of escape codes. Tables are drawn with
// go-pretty.
package ui
