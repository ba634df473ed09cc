package tui

import (
	"fmt"
	"strings"

	"github.com/muesli/termenv"
)

// PrintBanner outputs the ASCII banner with the library version.
func PrintBanner(version string) {
	p := termenv.ColorProfile()
	// Indigo-to-rose gradient, one color per line.
	colors := []string{"#818cf8", "#a78bfa", "#c084fc", "#e879f9", "#f472b6", "#fb7185"}
	lines := []string{
		"      _                           ",
		"  ___| |__   ___ _ __ _ __   __ _ ",
		" / __| '_ \\ / _ \\ '__| '_ \\ / _` |",
		" \\__ \\ | | |  __/ |  | |_) | (_| |",
		" |___/_| |_|\\___|_|  | .__/ \\__,_|",
		"                     |_|          ",
	}

	fmt.Println()
	for i, l := range lines {
		fmt.Println(termenv.String(l).Foreground(p.Color(colors[i])))
	}
	fmt.Printf("  v%s\n\n", strings.TrimSpace(version))
}
