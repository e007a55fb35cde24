package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{"                              _ ", "#34d399"},
	{"  ___ _ __ _ __ __ _ _ __   __| |", "#2dd4bf"},
	{" / _ \\ '__| '__/ _` | '_ \\ / _` |", "#22d3ee"},
	{"|  __/ |  | | | (_| | | | | (_| |", "#38bdf8"},
	{" \\___|_|  |_|  \\__,_|_| |_|\\__,_|", "#60a5fa"},
}

// PrintBanner writes the errand banner to w in the terminal's color profile.
func PrintBanner(w io.Writer) {
	p := termenv.ColorProfile()
	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}

// Faint dims s, used for progress lines under the answer.
func Faint(s string) string {
	return termenv.String(s).Faint().String()
}
