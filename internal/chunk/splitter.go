package chunk

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// markdownSeparators are tried in order, coarsest first. The empty separator
// splits into single characters.
var markdownSeparators = []string{
	"\n## ",
	"\n### ",
	"\n#### ",
	"\n##### ",
	"\n###### ",
	"```\n\n",
	"\n\n***\n\n",
	"\n\n---\n\n",
	"\n\n___\n\n",
	"\n\n",
	"\n",
	" ",
	"",
}

// Piece is one output of the splitter. Lines are local to the split text.
type Piece struct {
	Content   string
	StartLine int
	EndLine   int
}

// span is a half-open byte range into the text being split.
type span struct {
	start, end int
}

// RecursiveSplitter splits text on progressively finer separators until
// every piece fits in ChunkSize characters, then merges neighbours back up
// to ChunkSize with ChunkOverlap characters of overlap.
type RecursiveSplitter struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

// NewMarkdownSplitter creates a splitter using Markdown-aware separators.
func NewMarkdownSplitter(chunkSize int) *RecursiveSplitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &RecursiveSplitter{
		ChunkSize:    chunkSize,
		ChunkOverlap: min(MaxChunkOverlap, chunkSize/5),
		Separators:   markdownSeparators,
	}
}

// Split returns trimmed, non-empty pieces in document order.
func (s *RecursiveSplitter) Split(text string) []Piece {
	spans := s.split(text, span{0, len(text)}, s.Separators)

	newlines := newlineOffsets(text)
	pieces := make([]Piece, 0, len(spans))
	for _, sp := range spans {
		pieces = append(pieces, Piece{
			Content:   text[sp.start:sp.end],
			StartLine: lineAt(newlines, sp.start),
			EndLine:   lineAt(newlines, sp.end-1),
		})
	}
	return pieces
}

func (s *RecursiveSplitter) split(text string, within span, separators []string) []span {
	segment := text[within.start:within.end]

	idx := len(separators) - 1
	for i, sep := range separators {
		if sep == "" || strings.Contains(segment, sep) {
			idx = i
			break
		}
	}
	sep := separators[idx]
	finer := separators[idx+1:]

	var out, fitting []span
	for _, p := range cut(text, within, sep) {
		if s.length(text, p) <= s.ChunkSize {
			fitting = append(fitting, p)
			continue
		}
		if len(fitting) > 0 {
			out = append(out, s.merge(text, fitting)...)
			fitting = nil
		}
		if len(finer) == 0 {
			out = appendTrimmed(out, text, p)
		} else {
			out = append(out, s.split(text, p, finer)...)
		}
	}
	if len(fitting) > 0 {
		out = append(out, s.merge(text, fitting)...)
	}
	return out
}

// merge joins contiguous spans into chunks of at most ChunkSize characters,
// carrying up to ChunkOverlap characters into the next chunk.
func (s *RecursiveSplitter) merge(text string, spans []span) []span {
	var out, current []span
	total := 0

	for _, p := range spans {
		l := s.length(text, p)
		if total+l > s.ChunkSize && len(current) > 0 {
			out = appendTrimmed(out, text, span{current[0].start, current[len(current)-1].end})
			for total > s.ChunkOverlap || (total+l > s.ChunkSize && total > 0) {
				total -= s.length(text, current[0])
				current = current[1:]
			}
		}
		current = append(current, p)
		total += l
	}
	if len(current) > 0 {
		out = appendTrimmed(out, text, span{current[0].start, current[len(current)-1].end})
	}
	return out
}

func (s *RecursiveSplitter) length(text string, p span) int {
	return utf8.RuneCountInString(text[p.start:p.end])
}

// cut splits within on sep, keeping each separator at the start of the
// piece that follows it. An empty separator cuts between characters.
func cut(text string, within span, sep string) []span {
	var out []span
	if sep == "" {
		for i := within.start; i < within.end; {
			_, size := utf8.DecodeRuneInString(text[i:within.end])
			out = append(out, span{i, i + size})
			i += size
		}
		return out
	}

	start := within.start
	search := within.start
	for {
		rel := strings.Index(text[search:within.end], sep)
		if rel < 0 {
			break
		}
		at := search + rel
		if at > start {
			out = append(out, span{start, at})
		}
		start = at
		search = at + len(sep)
	}
	if within.end > start {
		out = append(out, span{start, within.end})
	}
	return out
}

// appendTrimmed appends p with surrounding whitespace removed, dropping it
// when nothing remains.
func appendTrimmed(out []span, text string, p span) []span {
	for p.start < p.end {
		r, size := utf8.DecodeRuneInString(text[p.start:p.end])
		if !unicode.IsSpace(r) {
			break
		}
		p.start += size
	}
	for p.end > p.start {
		r, size := utf8.DecodeLastRuneInString(text[p.start:p.end])
		if !unicode.IsSpace(r) {
			break
		}
		p.end -= size
	}
	if p.start == p.end {
		return out
	}
	return append(out, p)
}

func newlineOffsets(text string) []int {
	var offsets []int
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			offsets = append(offsets, i)
		}
	}
	return offsets
}

// lineAt returns the 1-indexed line containing byte offset pos.
func lineAt(newlines []int, pos int) int {
	return sort.SearchInts(newlines, pos) + 1
}
