// Package embed turns text into embedding vectors. Every provider implements
// Client; errors are classified with the kinds of the errors package so the
// indexing pipeline can tell rate limits from configuration problems.
package embed

import (
	"context"
	"math"
	"strings"
	"time"

	vrerrors "github.com/Aman-CERP/vaultrag/internal/errors"
)

// Client generates vector embeddings for text
type Client interface {
	// ID identifies the model. Stored vectors are scoped by it.
	ID() string

	// Dimension returns the embedding dimension
	Dimension() int

	// GetEmbedding embeds a single text
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Common embedding constants
const (
	// DefaultTimeout bounds a single embedding request
	DefaultTimeout = 60 * time.Second

	// StaticDimensions is the embedding dimension for the static client
	StaticDimensions = 256
)

// checkText rejects input no provider can embed.
func checkText(text string) error {
	if strings.TrimSpace(text) == "" {
		return vrerrors.New(vrerrors.ErrCodeQueryEmpty, "cannot embed empty text", nil)
	}
	return nil
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v // Return as-is if zero vector
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}

// classifyStatus maps a provider HTTP failure to an error kind.
func classifyStatus(provider string, status int, message string) error {
	cause := vrerrors.ProviderError(provider, status, message)
	switch status {
	case 429:
		return vrerrors.RateLimited(provider, cause)
	case 401, 403:
		return vrerrors.InvalidCredentials(provider, cause)
	default:
		return cause
	}
}
