package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	vrerrors "github.com/Aman-CERP/vaultrag/internal/errors"
)

// Ollama API constants
const (
	// DefaultOllamaHost is the default Ollama API endpoint
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is the default embedding model
	DefaultOllamaModel = "nomic-embed-text"

	// OllamaPoolSize for connection pool
	OllamaPoolSize = 8
)

const providerOllama = "ollama"

// OllamaConfig configures the Ollama client
type OllamaConfig struct {
	// Host is the Ollama API endpoint. Required.
	Host string

	// Model is the embedding model to use (default: nomic-embed-text)
	Model string

	// Dimensions can be set to override auto-detection (0 = auto-detect)
	Dimensions int

	// Timeout for a single request (default: 60s)
	Timeout time.Duration

	// PoolSize for HTTP connection pool (default: 8)
	PoolSize int
}

// ollamaEmbedRequest is the Ollama /api/embed request
type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// ollamaEmbedResponse is the Ollama /api/embed response
type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// OllamaClient generates embeddings using Ollama's HTTP API
type OllamaClient struct {
	client *http.Client
	config OllamaConfig

	// detectRetry covers Ollama still loading the model on first use.
	detectRetry vrerrors.RetryPolicy

	mu   sync.RWMutex
	dims int
}

// Verify interface implementation at compile time
var _ Client = (*OllamaClient)(nil)

// NewOllamaClient creates a new Ollama client. No request is made until
// DetectDimension or GetEmbedding is called.
func NewOllamaClient(cfg OllamaConfig) (*OllamaClient, error) {
	cfg.Host = strings.TrimRight(strings.TrimSpace(cfg.Host), "/")
	if cfg.Host == "" {
		return nil, vrerrors.MissingBaseURL(providerOllama)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = OllamaPoolSize
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		IdleConnTimeout:     10 * time.Second,
	}

	detect := vrerrors.DefaultRetryPolicy()
	detect.MaxAttempts = 3
	detect.BaseDelay = 250 * time.Millisecond

	return &OllamaClient{
		client:      &http.Client{Transport: transport},
		config:      cfg,
		detectRetry: detect,
		dims:        cfg.Dimensions,
	}, nil
}

// ID returns the model name
func (c *OllamaClient) ID() string {
	return c.config.Model
}

// Dimension returns the configured or detected dimension, 0 before detection.
func (c *OllamaClient) Dimension() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dims
}

// DetectDimension embeds a short sample text when the dimension is unknown.
// Transient failures are retried a few times.
func (c *OllamaClient) DetectDimension(ctx context.Context) error {
	if c.Dimension() > 0 {
		return nil
	}
	return vrerrors.Retry(ctx, c.detectRetry, func() error {
		_, err := c.GetEmbedding(ctx, "dimension detection")
		return err
	})
}

// GetEmbedding embeds a single text. The result is normalized to unit length.
func (c *OllamaClient) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	if err := checkText(text); err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	body, err := json.Marshal(ollamaEmbedRequest{Model: c.config.Model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, vrerrors.New(vrerrors.ErrCodeMissingBaseURL, "invalid Ollama host", err).
			WithDetail("host", c.config.Host)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if reqCtx.Err() != nil {
			return nil, vrerrors.New(vrerrors.ErrCodeNetworkTimeout, "ollama request timed out", err)
		}
		return nil, vrerrors.New(vrerrors.ErrCodeNetworkUnavailable, "failed to reach Ollama", err).
			WithDetail("host", c.config.Host).
			WithSuggestion("Start Ollama with 'ollama serve'")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := classifyStatus(providerOllama, resp.StatusCode,
			fmt.Sprintf("embedding failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
		if resp.StatusCode == http.StatusNotFound {
			if ve, ok := vrerrors.As(err); ok {
				ve.WithSuggestion(fmt.Sprintf("Run 'ollama pull %s'", c.config.Model))
			}
		}
		return nil, err
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, vrerrors.New(vrerrors.ErrCodeEmbeddingFailed, "failed to decode response", err)
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0]) == 0 {
		return nil, vrerrors.New(vrerrors.ErrCodeEmbeddingFailed, "empty embedding returned", nil)
	}

	embedding := make([]float32, len(result.Embeddings[0]))
	for i, v := range result.Embeddings[0] {
		embedding[i] = float32(v)
	}

	c.mu.Lock()
	if c.dims == 0 {
		c.dims = len(embedding)
	}
	dims := c.dims
	c.mu.Unlock()

	if len(embedding) != dims {
		return nil, vrerrors.New(vrerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("model returned %d dimensions, expected %d", len(embedding), dims), nil)
	}

	return normalizeVector(embedding), nil
}
