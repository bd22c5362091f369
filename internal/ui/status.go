package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// ModelStatus is the stored footprint of one embedding model.
type ModelStatus struct {
	Model     string `json:"model"`
	Dimension int    `json:"dimension"`
	Rows      int    `json:"rows"`
	DataBytes int64  `json:"data_bytes"`
	Indexed   int    `json:"indexed_in_memory"` // Vectors held by the HNSW bucket
	Active    bool   `json:"active"`            // Matches the configured embedder
}

// StatusInfo contains index health information for a vault.
type StatusInfo struct {
	VaultPath  string    `json:"vault_path"`
	VaultFiles int       `json:"vault_files"`
	StorePath  string    `json:"store_path"`
	StoreSize  int64     `json:"store_size"`
	LastSaved  time.Time `json:"last_saved"`

	Models []ModelStatus `json:"models"`

	EmbedderType   string `json:"embedder_type"`
	EmbedderModel  string `json:"embedder_model,omitempty"`
	EmbedderDims   int    `json:"embedder_dimensions,omitempty"`
	EmbedderStatus string `json:"embedder_status"` // "ready", "offline", "error"
}

// TotalRows sums rows across models.
func (s StatusInfo) TotalRows() int {
	total := 0
	for _, m := range s.Models {
		total += m.Rows
	}
	return total
}

// StatusRenderer displays index status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render writes a human-readable status report.
func (r *StatusRenderer) Render(info StatusInfo) error {
	p := func(format string, args ...any) { _, _ = fmt.Fprintf(r.out, format, args...) }

	p("%s\n\n", r.styles.Header.Render("Vault: "+info.VaultPath))

	p("  Notes:       %d\n", info.VaultFiles)
	p("  Embeddings:  %d\n", info.TotalRows())
	p("  Store:       %s (%s)\n", info.StorePath, FormatBytes(info.StoreSize))
	if !info.LastSaved.IsZero() {
		p("  Last saved:  %s\n", formatTime(info.LastSaved))
	}
	p("\n")

	if len(info.Models) > 0 {
		p("  Models:\n")
		for _, m := range info.Models {
			marker := " "
			if m.Active {
				marker = r.styles.Success.Render("*")
			}
			p("  %s %s (%d dims): %d rows, %s\n", marker, m.Model, m.Dimension, m.Rows, FormatBytes(m.DataBytes))
		}
		p("\n")
	}

	p("  Embedder:\n")
	p("    Type:   %s\n", info.EmbedderType)
	if info.EmbedderModel != "" {
		p("    Model:  %s (%d dims)\n", info.EmbedderModel, info.EmbedderDims)
	}
	p("    Status: %s\n", r.renderStatus(info.EmbedderStatus))

	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "ready":
		return r.styles.Success.Render(status)
	case "offline":
		return r.styles.Warning.Render(status)
	case "error":
		return r.styles.Error.Render(status)
	default:
		return status
	}
}

// formatTime formats a time relative to now.
func formatTime(t time.Time) string {
	diff := time.Since(t)

	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit + " ago"
		}
		return fmt.Sprintf("%d %ss ago", n, unit)
	}

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
