package tui

import (
	"github.com/charmbracelet/glamour"
)

// NewRenderer returns a function that renders step markdown using glamour.
// The style auto-detects light or dark terminal backgrounds.
func NewRenderer() func(string) (string, error) {
	r, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
	)

	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}
