package tui

import (
	"io"
	"os"

	"golang.org/x/term"
)

// IsInteractive reports whether w is a real terminal, used to decide
// between rendered markdown output and plain text.
func IsInteractive(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
