package chunk

import (
	"context"
)

// Chunking defaults
const (
	DefaultChunkSize      = 1000 // characters per leaf chunk
	DefaultMaxHeaderLevel = 3    // deepest heading that opens a section
	MaxChunkOverlap       = 200  // characters shared by neighbouring leaves
)

// Metadata locates a chunk inside its source file. Line numbers are 1-indexed
// and inclusive.
type Metadata struct {
	StartLine       int    `json:"startLine"`
	EndLine         int    `json:"endLine"`
	ParentStartLine int    `json:"parentStartLine"`
	ParentEndLine   int    `json:"parentEndLine"`
	HeaderPath      string `json:"headerPath"`
}

// Chunk is a retrievable unit of content
type Chunk struct {
	Path     string // Relative to vault root, slash separated
	MTime    int64  // Source file modification time, unix milliseconds
	Content  string // Never empty
	Metadata Metadata
}

// Section is a heading-delimited span of a document.
type Section struct {
	HeaderPath string // "A > B", empty for preamble or heading-less documents
	StartLine  int
	EndLine    int
	Content    string
}

// FileInput is input for the Chunker interface
type FileInput struct {
	Path    string
	MTime   int64
	Content []byte
}

// Chunker is the interface for splitting files into chunks
type Chunker interface {
	// Chunk splits a file into leaf chunks
	Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error)

	// SupportedExtensions returns file extensions this chunker handles
	SupportedExtensions() []string
}

// EmbeddingText is the text sent to the embedding model for c.
func EmbeddingText(c *Chunk) string {
	if c.Metadata.HeaderPath == "" {
		return c.Content
	}
	return "Header: " + c.Metadata.HeaderPath + "\n\n" + c.Content
}
