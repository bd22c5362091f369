//go:build ignore

// Package main generates a synthetic markdown vault for timing index runs.
// Usage: go run scripts/generate-test-corpus.go -notes 1000 -output testdata/vault
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numNotes  = flag.Int("notes", 1000, "Number of notes to generate")
	outputDir = flag.String("output", "testdata/vault", "Output directory")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
	maxDepth  = flag.Int("depth", 3, "Deepest heading level per note")
)

var folders = []string{"", "daily", "projects", "projects/archive", "reading", "work/meetings", "work/notes"}

var topics = []string{
	"gardening", "kubernetes", "sourdough", "budget", "marathon", "postgres",
	"travel", "reading", "onboarding", "roadmap", "incident", "refactoring",
	"photography", "chess", "compost", "migration", "retrospective", "design",
}

var words = []string{
	"the", "plan", "needs", "a", "review", "before", "friday", "notes", "from",
	"call", "with", "team", "ideas", "for", "next", "quarter", "check", "soil",
	"water", "twice", "weekly", "upgrade", "cluster", "nodes", "latency", "dropped",
	"after", "index", "change", "book", "chapter", "summary", "recipe", "starter",
	"hydration", "percent", "follow", "up", "on", "open", "questions", "draft",
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	for i := 0; i < *numNotes; i++ {
		folder := folders[rng.Intn(len(folders))]
		topic := topics[rng.Intn(len(topics))]
		name := fmt.Sprintf("%s-%04d.md", topic, i)
		path := filepath.Join(*outputDir, filepath.FromSlash(folder), name)

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(path, []byte(note(rng, topic)), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("Generated %d notes in %s\n", *numNotes, *outputDir)
}

// note writes a preamble followed by a random heading tree.
func note(rng *rand.Rand, topic string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "tags: %s\n\n%s\n\n", topic, paragraph(rng, 1+rng.Intn(2)))

	depth := 1
	for s := 0; s < 2+rng.Intn(6); s++ {
		// Headings move at most one level deeper at a time
		depth = 1 + rng.Intn(min(depth+1, *maxDepth))
		fmt.Fprintf(&b, "%s %s %s\n\n", strings.Repeat("#", depth), strings.ToUpper(topic[:1])+topic[1:], words[rng.Intn(len(words))])
		for p := 0; p < 1+rng.Intn(4); p++ {
			b.WriteString(paragraph(rng, 2+rng.Intn(6)))
			b.WriteString("\n\n")
		}
		if rng.Intn(4) == 0 {
			b.WriteString("```\n" + paragraph(rng, 1) + "\n```\n\n")
		}
	}
	return b.String()
}

func paragraph(rng *rand.Rand, sentences int) string {
	out := make([]string, sentences)
	for i := range out {
		n := 6 + rng.Intn(14)
		ws := make([]string, n)
		for j := range ws {
			ws[j] = words[rng.Intn(len(words))]
		}
		out[i] = strings.ToUpper(ws[0][:1]) + strings.Join(ws, " ")[1:] + "."
	}
	return strings.Join(out, " ")
}
