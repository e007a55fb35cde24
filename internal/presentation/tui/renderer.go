// Package tui renders chat output for terminals.
package tui

import (
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// Renderer turns a markdown answer into printable text.
type Renderer func(markdown string) (string, error)

// NewRenderer returns a glamour renderer that picks a light or dark style
// from the terminal background.
func NewRenderer() (Renderer, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return nil, err
	}
	return r.Render, nil
}

// Plain passes text through with a trailing newline.
func Plain(markdown string) (string, error) {
	return strings.TrimRight(markdown, "\n") + "\n", nil
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// ForOutput picks glamour for terminals and Plain for pipes and files.
func ForOutput(f *os.File) Renderer {
	if !IsTerminal(f) {
		return Plain
	}
	r, err := NewRenderer()
	if err != nil {
		return Plain
	}
	return r
}
