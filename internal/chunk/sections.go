package chunk

import (
	"regexp"
	"strings"
)

var (
	// Matches ATX headers: # Title, ## Title, etc.
	sectionHeaderPattern = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)

	// Matches an opening or closing code fence
	fencePattern = regexp.MustCompile("^\\s{0,3}(```|~~~)")
)

// ClampHeaderLevel maps level into 1..6, treating zero as the default.
func ClampHeaderLevel(level int) int {
	if level == 0 {
		return DefaultMaxHeaderLevel
	}
	if level < 1 {
		return 1
	}
	if level > 6 {
		return 6
	}
	return level
}

type heading struct {
	level int
	line  int // 1-indexed
	path  string
}

// SplitSections splits a Markdown document into non-overlapping sections
// that together cover every line. Headings deeper than maxHeaderLevel, and
// heading-like lines inside fenced code, stay in the enclosing section.
func SplitSections(content string, maxHeaderLevel int) []Section {
	lines := strings.Split(content, "\n")
	maxLevel := ClampHeaderLevel(maxHeaderLevel)

	type open struct {
		level int
		title string
	}
	var stack []open
	var headings []heading
	inFence := false
	fenceMarker := ""

	for i, line := range lines {
		if m := fencePattern.FindStringSubmatch(line); m != nil {
			if !inFence {
				inFence, fenceMarker = true, m[1]
			} else if m[1] == fenceMarker {
				inFence = false
			}
			continue
		}
		if inFence {
			continue
		}

		m := sectionHeaderPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		level := len(m[1])
		if level > maxLevel {
			continue
		}

		for len(stack) > 0 && stack[len(stack)-1].level >= level {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, open{level: level, title: strings.TrimSpace(m[2])})

		titles := make([]string, len(stack))
		for j, h := range stack {
			titles[j] = h.title
		}
		headings = append(headings, heading{
			level: level,
			line:  i + 1,
			path:  strings.Join(titles, " > "),
		})
	}

	if len(headings) == 0 {
		return []Section{{
			HeaderPath: "",
			StartLine:  1,
			EndLine:    max(1, len(lines)),
			Content:    content,
		}}
	}

	sections := make([]Section, 0, len(headings)+1)

	// Preamble before the first heading
	if first := headings[0].line; first > 1 {
		sections = append(sections, Section{
			StartLine: 1,
			EndLine:   first - 1,
			Content:   strings.Join(lines[:first-1], "\n"),
		})
	}

	for i, h := range headings {
		end := len(lines)
		if i+1 < len(headings) {
			end = headings[i+1].line - 1
		}
		end = max(h.line, end)
		sections = append(sections, Section{
			HeaderPath: h.path,
			StartLine:  h.line,
			EndLine:    end,
			Content:    strings.Join(lines[h.line-1:end], "\n"),
		})
	}

	return sections
}
