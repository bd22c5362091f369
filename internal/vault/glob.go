package vault

import (
	"fmt"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// globCacheSize bounds the number of compiled patterns kept in memory.
const globCacheSize = 512

var globCache = newGlobCache()

func newGlobCache() *lru.Cache[string, *regexp.Regexp] {
	cache, err := lru.New[string, *regexp.Regexp](globCacheSize)
	if err != nil {
		panic(fmt.Sprintf("create glob cache: %v", err))
	}
	return cache
}

// Filter selects vault files by exclude and include globs. Globs are matched
// against the whole relative path:
//   - * and ? never cross a /
//   - ** as a path segment matches any number of directories
//   - [abc], [!abc] and {a,b} work as in a shell
type Filter struct {
	exclude []*regexp.Regexp
	include []*regexp.Regexp
}

// NewFilter compiles exclude and include patterns.
func NewFilter(exclude, include []string) (*Filter, error) {
	f := &Filter{}
	for _, p := range exclude {
		re, err := compileGlob(p)
		if err != nil {
			return nil, err
		}
		f.exclude = append(f.exclude, re)
	}
	for _, p := range include {
		re, err := compileGlob(p)
		if err != nil {
			return nil, err
		}
		f.include = append(f.include, re)
	}
	return f, nil
}

// Allow reports whether path passes the filter. Excludes win; when include
// patterns exist, path must match at least one of them.
func (f *Filter) Allow(path string) bool {
	for _, re := range f.exclude {
		if re.MatchString(path) {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, re := range f.include {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// Apply returns the files that pass the filter, preserving order.
func (f *Filter) Apply(files []File) []File {
	out := make([]File, 0, len(files))
	for _, file := range files {
		if f.Allow(file.Path) {
			out = append(out, file)
		}
	}
	return out
}

// Match reports whether path matches the glob pattern.
func Match(pattern, path string) (bool, error) {
	re, err := compileGlob(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(path), nil
}

func compileGlob(pattern string) (*regexp.Regexp, error) {
	if re, ok := globCache.Get(pattern); ok {
		return re, nil
	}
	re, err := regexp.Compile("^" + globToRegex(pattern) + "$")
	if err != nil {
		return nil, fmt.Errorf("invalid glob %q: %w", pattern, err)
	}
	globCache.Add(pattern, re)
	return re, nil
}

// globToRegex converts a glob to a regex string.
func globToRegex(pattern string) string {
	var result strings.Builder
	braces := 0

	i := 0
	for i < len(pattern) {
		c := pattern[i]

		switch c {
		case '*':
			if strings.HasPrefix(pattern[i:], "**") && (i == 0 || pattern[i-1] == '/') {
				rest := pattern[i+2:]
				if strings.HasPrefix(rest, "/") {
					// **/ - zero or more directories
					result.WriteString("(?:[^/]*/)*")
					i += 3
					continue
				}
				if rest == "" {
					// trailing ** - anything below
					result.WriteString(".*")
					i += 2
					continue
				}
			}
			// Single * (or a run of them) - anything except /
			result.WriteString("[^/]*")
			for i < len(pattern) && pattern[i] == '*' {
				i++
			}

		case '?':
			result.WriteString("[^/]")
			i++

		case '[':
			j := i + 1
			if j < len(pattern) && (pattern[j] == '!' || pattern[j] == '^') {
				j++
			}
			if j < len(pattern) && pattern[j] == ']' {
				j++
			}
			for j < len(pattern) && pattern[j] != ']' {
				j++
			}
			if j >= len(pattern) {
				result.WriteString(`\[`)
				i++
				continue
			}
			class := pattern[i+1 : j]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			result.WriteString("[" + strings.ReplaceAll(class, `\`, `\\`) + "]")
			i = j + 1

		case '{':
			if strings.IndexByte(pattern[i:], '}') < 0 {
				result.WriteString(`\{`)
				i++
				continue
			}
			braces++
			result.WriteString("(?:")
			i++

		case '}':
			if braces == 0 {
				result.WriteString(`\}`)
			} else {
				braces--
				result.WriteString(")")
			}
			i++

		case ',':
			if braces > 0 {
				result.WriteString("|")
			} else {
				result.WriteByte(',')
			}
			i++

		case '\\':
			if i+1 < len(pattern) {
				writeLiteral(&result, pattern[i+1])
				i += 2
			} else {
				result.WriteString(`\\`)
				i++
			}

		default:
			writeLiteral(&result, c)
			i++
		}
	}

	for ; braces > 0; braces-- {
		result.WriteString(")")
	}
	return result.String()
}

func writeLiteral(b *strings.Builder, c byte) {
	if strings.IndexByte(`\.+*?()|[]{}^$`, c) >= 0 {
		b.WriteByte('\\')
	}
	b.WriteByte(c)
}
