package embed

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	vrerrors "github.com/Aman-CERP/vaultrag/internal/errors"
)

// OpenAI constants
const (
	// DefaultOpenAIModel is the default remote embedding model
	DefaultOpenAIModel = "text-embedding-3-small"

	// OpenAIKeyEnv holds the API key
	OpenAIKeyEnv = "OPENAI_API_KEY"
)

const providerOpenAI = "openai"

// knownOpenAIDimensions are the native sizes of the OpenAI embedding models.
var knownOpenAIDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIConfig configures the OpenAI client
type OpenAIConfig struct {
	APIKey string

	// Model defaults to text-embedding-3-small
	Model string

	// BaseURL overrides the API endpoint, for compatible servers
	BaseURL string

	// Dimensions requests shortened embeddings (0 = model default)
	Dimensions int
}

// OpenAIClient embeds text with the OpenAI embeddings API
type OpenAIClient struct {
	client *openai.Client
	model  string
	dims   int
	// shorten is set when Dimensions differs from the native size
	shorten bool
}

var _ Client = (*OpenAIClient)(nil)

// NewOpenAIClient creates an OpenAI client.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, vrerrors.MissingCredentials(providerOpenAI, OpenAIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}

	native, known := knownOpenAIDimensions[cfg.Model]
	dims := cfg.Dimensions
	if dims == 0 {
		if !known {
			return nil, vrerrors.ConfigError(
				fmt.Sprintf("unknown dimension for model %q", cfg.Model), nil).
				WithSuggestion("Set embeddings.dimensions in .vaultrag.yaml")
		}
		dims = native
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &OpenAIClient{
		client:  openai.NewClientWithConfig(config),
		model:   cfg.Model,
		dims:    dims,
		shorten: known && dims != native,
	}, nil
}

// ID returns the model name
func (c *OpenAIClient) ID() string {
	return c.model
}

// Dimension returns the embedding dimension
func (c *OpenAIClient) Dimension() int {
	return c.dims
}

// GetEmbedding embeds a single text
func (c *OpenAIClient) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	if err := checkText(text); err != nil {
		return nil, err
	}

	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.model),
		Input: []string{text},
	}
	if c.shorten {
		req.Dimensions = c.dims
	}

	resp, err := c.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, classifyOpenAIError(ctx, err)
	}
	if len(resp.Data) == 0 {
		return nil, vrerrors.New(vrerrors.ErrCodeEmbeddingFailed, "no embedding data returned from API", nil)
	}

	raw := resp.Data[0].Embedding
	v := make([]float32, len(raw))
	for i := range raw {
		v[i] = float32(raw[i])
	}
	if len(v) != c.dims {
		return nil, vrerrors.New(vrerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("model returned %d dimensions, expected %d", len(v), c.dims), nil)
	}

	return normalizeVector(v), nil
}

func classifyOpenAIError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var apiErr *openai.APIError
	if stderrors.As(err, &apiErr) {
		return classifyStatus(providerOpenAI, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if stderrors.As(err, &reqErr) {
		return classifyStatus(providerOpenAI, reqErr.HTTPStatusCode, reqErr.Error())
	}
	return vrerrors.New(vrerrors.ErrCodeNetworkUnavailable, "failed to reach OpenAI", err)
}
