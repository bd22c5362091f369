// Package output formats command results for the terminal.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/Aman-CERP/vaultrag/internal/ui"
)

// DefaultSnippetLength is the rune budget of a result preview.
const DefaultSnippetLength = 160

// Writer provides formatted output for CLI.
type Writer struct {
	out    io.Writer
	styles ui.Styles
}

// New creates an uncolored Writer.
func New(out io.Writer) *Writer {
	return NewStyled(out, true)
}

// NewStyled creates a Writer that colors output unless noColor is set.
func NewStyled(out io.Writer, noColor bool) *Writer {
	return &Writer{out: out, styles: ui.GetStyles(noColor)}
}

// Status prints a message with an icon. Write errors are ignored.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Status(w.styles.Success.Render("✓"), fmt.Sprintf(format, args...))
}

// Warningf prints a formatted warning.
func (w *Writer) Warningf(format string, args ...any) {
	w.Status(w.styles.Warning.Render("!"), fmt.Sprintf(format, args...))
}

// Errorf prints a formatted error.
func (w *Writer) Errorf(format string, args ...any) {
	w.Status(w.styles.Error.Render("✗"), fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Hit is one search result as shown to the user. Location is a vault path
// or a URL.
type Hit struct {
	Location string
	Heading  string // Header path of a note chunk
	Title    string // Page title of a web result
	Source   string // Web provider
	Score    *float64
	Text     string
}

// Hits prints numbered results with a one-line preview each.
func (w *Writer) Hits(hits []Hit) {
	for i, h := range hits {
		line := fmt.Sprintf("%d. %s", i+1, w.styles.Header.Render(h.Location))
		if h.Heading != "" {
			line += w.styles.Label.Render(" › " + h.Heading)
		}
		if h.Score != nil {
			line += w.styles.Dim.Render(fmt.Sprintf(" (%.3f)", *h.Score))
		}
		_, _ = fmt.Fprintln(w.out, line)

		if h.Title != "" || h.Source != "" {
			meta := h.Title
			if h.Source != "" {
				meta = strings.TrimSpace(meta + " [" + h.Source + "]")
			}
			_, _ = fmt.Fprintf(w.out, "   %s\n", meta)
		}
		if preview := Snippet(h.Text, DefaultSnippetLength); preview != "" {
			_, _ = fmt.Fprintf(w.out, "   %s\n", w.styles.Label.Render(preview))
		}
	}
}

// Snippet collapses whitespace in text and truncates it to max runes.
func Snippet(text string, max int) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	runes := []rune(collapsed)
	if max <= 0 || len(runes) <= max {
		return collapsed
	}
	if max == 1 {
		return "…"
	}
	return strings.TrimRight(string(runes[:max-1]), " ") + "…"
}
