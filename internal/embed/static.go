package embed

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
	"unicode"
)

// StaticModelID identifies vectors produced by StaticClient.
const StaticModelID = "static-hash-256"

// StaticClient generates embeddings by hashing words and character
// trigrams into a fixed-size vector. It needs no network and no model, and
// the same text always yields the same vector. Quality is far below a real
// model; it serves offline use and tests.
type StaticClient struct{}

var _ Client = (*StaticClient)(nil)

// proseStopWords are dropped before hashing.
var proseStopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true,
	"at": true, "be": true, "by": true, "for": true, "from": true,
	"in": true, "is": true, "it": true, "of": true, "on": true,
	"or": true, "that": true, "the": true, "this": true, "to": true,
	"was": true, "with": true,
}

// Weights for vector generation
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// tokenRegex matches runs of letters and digits in any script
var tokenRegex = regexp.MustCompile(`[\p{L}\p{N}]+`)

// NewStaticClient creates a new static client.
func NewStaticClient() *StaticClient {
	return &StaticClient{}
}

// ID returns the model identifier.
func (c *StaticClient) ID() string {
	return StaticModelID
}

// Dimension returns the embedding dimension.
func (c *StaticClient) Dimension() int {
	return StaticDimensions
}

// GetEmbedding embeds a single text.
func (c *StaticClient) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkText(text); err != nil {
		return nil, err
	}
	return normalizeVector(generateVector(text)), nil
}

// generateVector creates a hash-based vector from text.
func generateVector(text string) []float32 {
	vector := make([]float32, StaticDimensions)

	for _, token := range tokenize(text) {
		vector[hashToIndex(token, StaticDimensions)] += tokenWeight
	}

	for _, ngram := range extractNgrams(normalizeForNgrams(text), ngramSize) {
		vector[hashToIndex(ngram, StaticDimensions)] += ngramWeight
	}

	return vector
}

// tokenize lowercases words and drops stop words.
func tokenize(text string) []string {
	var tokens []string
	for _, word := range tokenRegex.FindAllString(text, -1) {
		lower := strings.ToLower(word)
		if !proseStopWords[lower] {
			tokens = append(tokens, lower)
		}
	}
	return tokens
}

// normalizeForNgrams keeps only lowercased letters and digits.
func normalizeForNgrams(text string) []rune {
	var result []rune
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result = append(result, r)
		}
	}
	return result
}

// extractNgrams extracts n-character sliding windows.
func extractNgrams(runes []rune, n int) []string {
	if len(runes) < n {
		return []string{}
	}

	ngrams := make([]string, 0, len(runes)-n+1)
	for i := 0; i <= len(runes)-n; i++ {
		ngrams = append(ngrams, string(runes[i:i+n]))
	}
	return ngrams
}

// hashToIndex uses FNV-64 to map a string to an index.
func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}
