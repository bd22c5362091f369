package embed

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	vrerrors "github.com/Aman-CERP/vaultrag/internal/errors"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderOllama uses a local Ollama server (default)
	ProviderOllama ProviderType = "ollama"

	// ProviderOpenAI uses the OpenAI embeddings API
	ProviderOpenAI ProviderType = "openai"

	// ProviderStatic uses hash-based embeddings, offline
	ProviderStatic ProviderType = "static"
)

// EmbedderEnv overrides the configured provider.
const EmbedderEnv = "VAULTRAG_EMBEDDER"

// Config selects and configures a provider.
type Config struct {
	Provider   ProviderType
	Model      string
	Host       string // Ollama endpoint or OpenAI-compatible base URL
	APIKey     string
	Dimensions int
	CacheSize  int // 0 = default, negative disables caching
	Timeout    time.Duration
}

// NewClient creates a client for cfg.Provider. The VAULTRAG_EMBEDDER
// environment variable overrides the provider:
//   - "ollama": OllamaClient, dimension detected on creation when unset
//   - "openai": OpenAIClient, key from config or OPENAI_API_KEY
//   - "static": StaticClient
//
// The result is wrapped in a CachedClient unless CacheSize is negative.
func NewClient(ctx context.Context, cfg Config) (Client, error) {
	provider := cfg.Provider
	if env := os.Getenv(EmbedderEnv); env != "" {
		if !IsValidProvider(env) {
			return nil, vrerrors.ConfigError(fmt.Sprintf("unknown embedding provider %q in %s", env, EmbedderEnv), nil).
				WithSuggestion("Use one of: " + strings.Join(ValidProviders(), ", "))
		}
		provider = ParseProvider(env)
	}
	if provider == "" {
		provider = ProviderOllama
	}

	var client Client
	switch provider {
	case ProviderOllama:
		host := cfg.Host
		if host == "" {
			host = os.Getenv("OLLAMA_HOST")
		}
		oc, err := NewOllamaClient(OllamaConfig{
			Host:       host,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		if err := oc.DetectDimension(ctx); err != nil {
			return nil, fmt.Errorf("failed to detect embedding dimensions: %w", err)
		}
		client = oc

	case ProviderOpenAI:
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv(OpenAIKeyEnv)
		}
		oc, err := NewOpenAIClient(OpenAIConfig{
			APIKey:     key,
			Model:      cfg.Model,
			BaseURL:    cfg.Host,
			Dimensions: cfg.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		client = oc

	case ProviderStatic:
		client = NewStaticClient()

	default:
		return nil, vrerrors.ConfigError(fmt.Sprintf("unknown embedding provider %q", provider), nil).
			WithSuggestion("Use one of: " + strings.Join(ValidProviders(), ", "))
	}

	if cfg.CacheSize < 0 {
		return client, nil
	}
	return NewCachedClient(client, cfg.CacheSize), nil
}

// ParseProvider converts a string to ProviderType. Unknown names are
// returned as-is and rejected by NewClient.
func ParseProvider(s string) ProviderType {
	return ProviderType(strings.ToLower(strings.TrimSpace(s)))
}

// String returns the string representation of ProviderType
func (p ProviderType) String() string {
	return string(p)
}

// ValidProviders returns all valid provider names
func ValidProviders() []string {
	return []string{
		string(ProviderOllama),
		string(ProviderOpenAI),
		string(ProviderStatic),
	}
}

// IsValidProvider checks if a provider name is valid
func IsValidProvider(s string) bool {
	lower := strings.ToLower(strings.TrimSpace(s))
	for _, p := range ValidProviders() {
		if lower == p {
			return true
		}
	}
	return false
}
