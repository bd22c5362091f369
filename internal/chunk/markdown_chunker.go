package chunk

import (
	"context"
	"strings"
	"unicode/utf8"
)

// MarkdownChunkerOptions configures the markdown chunker behavior
type MarkdownChunkerOptions struct {
	ChunkSize      int // Maximum characters per leaf chunk (default: DefaultChunkSize)
	MaxHeaderLevel int // Deepest heading that opens a section (default: DefaultMaxHeaderLevel)
}

// MarkdownChunker splits a document into header sections, then splits each
// oversized section into leaf chunks that remember their parent.
type MarkdownChunker struct {
	options  MarkdownChunkerOptions
	splitter *RecursiveSplitter
}

// NewMarkdownChunker creates a new markdown chunker with default options
func NewMarkdownChunker() *MarkdownChunker {
	return NewMarkdownChunkerWithOptions(MarkdownChunkerOptions{})
}

// NewMarkdownChunkerWithOptions creates a new markdown chunker with custom options
func NewMarkdownChunkerWithOptions(opts MarkdownChunkerOptions) *MarkdownChunker {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	opts.MaxHeaderLevel = ClampHeaderLevel(opts.MaxHeaderLevel)
	return &MarkdownChunker{
		options:  opts,
		splitter: NewMarkdownSplitter(opts.ChunkSize),
	}
}

// SupportedExtensions returns file extensions this chunker handles
func (c *MarkdownChunker) SupportedExtensions() []string {
	return []string{".md"}
}

// Chunk splits a markdown file into leaf chunks. NUL bytes are removed
// before splitting.
func (c *MarkdownChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	content := strings.ReplaceAll(string(file.Content), "\x00", "")

	var chunks []*Chunk
	for _, section := range SplitSections(content, c.options.MaxHeaderLevel) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunks = append(chunks, c.ChunkSection(file.Path, file.MTime, section)...)
	}
	return chunks, nil
}

// ChunkSection turns one section into leaf chunks. Blank sections yield none.
func (c *MarkdownChunker) ChunkSection(path string, mtime int64, section Section) []*Chunk {
	if strings.TrimSpace(section.Content) == "" {
		return nil
	}

	parent := Metadata{
		ParentStartLine: section.StartLine,
		ParentEndLine:   section.EndLine,
		HeaderPath:      section.HeaderPath,
	}

	if utf8.RuneCountInString(section.Content) <= c.options.ChunkSize {
		meta := parent
		meta.StartLine = section.StartLine
		meta.EndLine = section.EndLine
		return []*Chunk{{Path: path, MTime: mtime, Content: section.Content, Metadata: meta}}
	}

	pieces := c.splitter.Split(section.Content)
	chunks := make([]*Chunk, 0, len(pieces))
	for _, p := range pieces {
		meta := parent
		meta.StartLine = section.StartLine + p.StartLine - 1
		meta.EndLine = section.StartLine + p.EndLine - 1
		chunks = append(chunks, &Chunk{Path: path, MTime: mtime, Content: p.Content, Metadata: meta})
	}
	return chunks
}
