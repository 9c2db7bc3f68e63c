package ui

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// PaletteFor returns a styled palette for terminals and a plain one otherwise.
func PaletteFor(w io.Writer) *Palette {
	return DefaultPalette(!IsTerminal(w) || os.Getenv("NO_COLOR") != "")
}
