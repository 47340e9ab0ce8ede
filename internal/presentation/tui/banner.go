package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the stride banner to w.
func PrintBanner(w io.Writer) {
	p := termenv.ColorProfile()
	// Stage colors, prepare through advance
	lines := []struct{ text, color string }{
		{"      _        _     _      ", "#18E3FF"},
		{"  ___| |_ _ __(_) __| | ___ ", "#FF6B35"},
		{" / __| __| '__| |/ _` |/ _ \\", "#22C55E"},
		{" \\__ \\ |_| |  | | (_| |  __/", "#A855F7"},
		{" |___/\\__|_|  |_|\\__,_|\\___|", "#F59E0B"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}
