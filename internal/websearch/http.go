package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Aman-CERP/vaultrag/internal/config"
	vrerrors "github.com/Aman-CERP/vaultrag/internal/errors"
	"github.com/Aman-CERP/vaultrag/pkg/version"
)

// HTTPProviderConfig configures an HTTPProvider.
type HTTPProviderConfig struct {
	Name     string
	Endpoint string

	// APIKey is sent in KeyHeader. When empty it is read from APIKeyEnv.
	APIKey    string
	APIKeyEnv string

	// KeyHeader defaults to "Authorization" with a Bearer prefix. Any other
	// header receives the bare key.
	KeyHeader string

	// Method is GET (default) or POST.
	Method string

	// MaxResults is sent when positive: as count on GET, as max_results in
	// a POST body.
	MaxResults int

	// Params are extra query parameters on GET or body fields on POST.
	Params map[string]any

	Client *http.Client
}

// Tavily defaults, used for providers of type "tavily".
const (
	TavilyEndpoint  = "https://api.tavily.com/search"
	TavilyAPIKeyEnv = "TAVILY_API_KEY"
)

// HTTPProvider queries a JSON search endpoint, either with GET ?q=... or
// with a POST of {"query": ...}.
//
// Two response shapes are understood: a top-level "results" array and a
// "web.results" array. Each entry may carry its snippet in "content",
// "description" or "snippet" and an optional numeric "score".
type HTTPProvider struct {
	cfg HTTPProviderConfig
}

var _ Provider = (*HTTPProvider)(nil)

// NewHTTPProvider validates cfg and resolves the API key.
func NewHTTPProvider(cfg HTTPProviderConfig) (*HTTPProvider, error) {
	if cfg.Name == "" {
		return nil, vrerrors.ConfigError("web search provider needs a name", nil)
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, vrerrors.MissingBaseURL(cfg.Name)
	}
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, vrerrors.ConfigError("invalid web search endpoint", err).WithDetail("endpoint", cfg.Endpoint)
	}
	if cfg.APIKey == "" && cfg.APIKeyEnv != "" {
		cfg.APIKey = os.Getenv(cfg.APIKeyEnv)
		if cfg.APIKey == "" {
			return nil, vrerrors.MissingCredentials(cfg.Name, cfg.APIKeyEnv)
		}
	}
	if cfg.KeyHeader == "" {
		cfg.KeyHeader = "Authorization"
	}
	cfg.Method = strings.ToUpper(cfg.Method)
	switch cfg.Method {
	case "":
		cfg.Method = http.MethodGet
	case http.MethodGet, http.MethodPost:
	default:
		return nil, vrerrors.ConfigError("web search method must be GET or POST", nil).WithDetail("method", cfg.Method)
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	return &HTTPProvider{cfg: cfg}, nil
}

// Name implements Provider.
func (p *HTTPProvider) Name() string {
	return p.cfg.Name
}

type httpEntry struct {
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Content     string   `json:"content"`
	Description string   `json:"description"`
	Snippet     string   `json:"snippet"`
	Score       *float64 `json:"score"`
}

type httpResponse struct {
	Results []httpEntry `json:"results"`
	Web     *struct {
		Results []httpEntry `json:"results"`
	} `json:"web"`
}

// Search implements Provider.
func (p *HTTPProvider) Search(ctx context.Context, query string) ([]Result, error) {
	req, err := p.newRequest(ctx, query)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if p.cfg.APIKey != "" {
		if strings.EqualFold(p.cfg.KeyHeader, "Authorization") {
			req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
		} else {
			req.Header.Set(p.cfg.KeyHeader, p.cfg.APIKey)
		}
	}

	resp, err := p.cfg.Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, vrerrors.New(vrerrors.ErrCodeNetworkTimeout, "web search timed out", err)
		}
		return nil, vrerrors.New(vrerrors.ErrCodeNetworkUnavailable, "failed to reach web search provider", err).
			WithDetail("provider", p.cfg.Name)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := fmt.Sprintf("search failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		cause := vrerrors.ProviderError(p.cfg.Name, resp.StatusCode, msg)
		switch resp.StatusCode {
		case http.StatusTooManyRequests:
			return nil, vrerrors.RateLimited(p.cfg.Name, cause)
		case http.StatusUnauthorized, http.StatusForbidden:
			return nil, vrerrors.InvalidCredentials(p.cfg.Name, cause)
		default:
			return nil, cause
		}
	}

	var decoded httpResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, vrerrors.New(vrerrors.ErrCodeProviderFailed, "failed to decode web search response", err).
			WithDetail("provider", p.cfg.Name)
	}

	entries := decoded.Results
	if len(entries) == 0 && decoded.Web != nil {
		entries = decoded.Web.Results
	}

	results := make([]Result, 0, len(entries))
	for _, e := range entries {
		if e.URL == "" {
			continue
		}
		content := e.Content
		if content == "" {
			content = e.Description
		}
		if content == "" {
			content = e.Snippet
		}
		results = append(results, Result{
			Title:   e.Title,
			URL:     e.URL,
			Content: content,
			Source:  p.cfg.Name,
			Score:   e.Score,
		})
	}
	return results, nil
}

func (p *HTTPProvider) newRequest(ctx context.Context, query string) (*http.Request, error) {
	u, err := url.Parse(p.cfg.Endpoint)
	if err != nil {
		return nil, vrerrors.ConfigError("invalid web search endpoint", err)
	}

	if p.cfg.Method == http.MethodPost {
		fields := make(map[string]any, len(p.cfg.Params)+2)
		for k, v := range p.cfg.Params {
			fields[k] = v
		}
		fields["query"] = query
		if p.cfg.MaxResults > 0 {
			fields["max_results"] = p.cfg.MaxResults
		}
		body, err := json.Marshal(fields)
		if err != nil {
			return nil, vrerrors.ConfigError("invalid web search params", err).WithDetail("provider", p.cfg.Name)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	q := u.Query()
	for k, v := range p.cfg.Params {
		q.Set(k, fmt.Sprint(v))
	}
	q.Set("q", query)
	if p.cfg.MaxResults > 0 {
		q.Set("count", strconv.Itoa(p.cfg.MaxResults))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	return req, nil
}

// providerConfig applies the presets of pc.Type.
func providerConfig(pc config.WebProviderConfig) HTTPProviderConfig {
	cfg := HTTPProviderConfig{
		Name:       pc.Name,
		Endpoint:   pc.Endpoint,
		APIKeyEnv:  pc.APIKeyEnv,
		KeyHeader:  pc.KeyHeader,
		Method:     pc.Method,
		MaxResults: pc.MaxResults,
		Params:     pc.Params,
	}
	if strings.EqualFold(pc.Type, "tavily") {
		if cfg.Endpoint == "" {
			cfg.Endpoint = TavilyEndpoint
		}
		if cfg.APIKeyEnv == "" {
			cfg.APIKeyEnv = TavilyAPIKeyEnv
		}
		if cfg.Method == "" {
			cfg.Method = http.MethodPost
		}
	}
	return cfg
}

// NewManagerFromConfig builds a Manager with one HTTPProvider per
// configured entry.
func NewManagerFromConfig(cfg config.WebSearchConfig, timeout time.Duration) (*Manager, error) {
	providers := make([]Provider, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		p, err := NewHTTPProvider(providerConfig(pc))
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return NewManager(timeout, providers...), nil
}
