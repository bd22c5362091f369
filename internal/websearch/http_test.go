package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/vaultrag/internal/config"
	vrerrors "github.com/Aman-CERP/vaultrag/internal/errors"
	"github.com/Aman-CERP/vaultrag/pkg/version"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc, mutate func(*HTTPProviderConfig)) *HTTPProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := HTTPProviderConfig{Name: "test", Endpoint: srv.URL + "/search"}
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := NewHTTPProvider(cfg)
	require.NoError(t, err)
	return p
}

func TestHTTPProvider_Search_ResultsShape(t *testing.T) {
	// Given: an endpoint answering with a top-level results array
	var gotQuery, gotCount, gotAuth, gotAgent string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.UserAgent()
		gotQuery = r.URL.Query().Get("q")
		gotCount = r.URL.Query().Get("count")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"results":[
			{"title":"Go","url":"https://go.dev","content":"The Go language","score":0.8},
			{"title":"No URL","content":"dropped"},
			{"title":"Pkg","url":"https://pkg.go.dev","snippet":"Packages"}
		]}`)
	}, func(c *HTTPProviderConfig) {
		c.APIKey = "secret"
		c.MaxResults = 5
	})

	// When: searching
	got, err := p.Search(context.Background(), "go modules")

	// Then: the query and key are sent and entries without URL are dropped
	require.NoError(t, err)
	assert.Equal(t, "go modules", gotQuery)
	assert.Equal(t, "5", gotCount)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, version.UserAgent(), gotAgent)

	require.Len(t, got, 2)
	assert.Equal(t, "The Go language", got[0].Content)
	assert.Equal(t, "test", got[0].Source)
	require.NotNil(t, got[0].Score)
	assert.Equal(t, 0.8, *got[0].Score)
	assert.Equal(t, "Packages", got[1].Content)
	assert.Nil(t, got[1].Score)
}

func TestHTTPProvider_Search_WebResultsShape(t *testing.T) {
	var gotKey string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Subscription-Token")
		fmt.Fprint(w, `{"web":{"results":[{"title":"Obsidian","url":"https://obsidian.md","description":"A note app"}]}}`)
	}, func(c *HTTPProviderConfig) {
		c.APIKey = "tok"
		c.KeyHeader = "X-Subscription-Token"
	})

	got, err := p.Search(context.Background(), "obsidian")

	require.NoError(t, err)
	assert.Equal(t, "tok", gotKey)
	require.Len(t, got, 1)
	assert.Equal(t, "A note app", got[0].Content)
}

func TestHTTPProvider_Search_StatusMapping(t *testing.T) {
	tests := []struct {
		status   int
		wantKind vrerrors.Kind
		wantCode string
	}{
		{http.StatusTooManyRequests, vrerrors.KindRateLimited, vrerrors.ErrCodeRateLimited},
		{http.StatusUnauthorized, vrerrors.KindInvalidCredentials, vrerrors.ErrCodeInvalidCredentials},
		{http.StatusForbidden, vrerrors.KindInvalidCredentials, vrerrors.ErrCodeInvalidCredentials},
		{http.StatusInternalServerError, vrerrors.KindGeneric, vrerrors.ErrCodeProviderFailed},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tt.status)
			}, nil)

			_, err := p.Search(context.Background(), "q")

			require.Error(t, err)
			assert.Equal(t, tt.wantKind, vrerrors.KindOf(err))
			assert.Equal(t, tt.wantCode, vrerrors.GetCode(err))
			assert.Equal(t, tt.status, vrerrors.HTTPStatusOf(err))
		})
	}
}

func TestHTTPProvider_Search_BadJSON(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `not json`)
	}, nil)

	_, err := p.Search(context.Background(), "q")

	assert.Equal(t, vrerrors.ErrCodeProviderFailed, vrerrors.GetCode(err))
}

func TestHTTPProvider_Search_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	p, err := NewHTTPProvider(HTTPProviderConfig{Name: "gone", Endpoint: endpoint})
	require.NoError(t, err)

	_, err = p.Search(context.Background(), "q")

	assert.Equal(t, vrerrors.ErrCodeNetworkUnavailable, vrerrors.GetCode(err))
	assert.True(t, vrerrors.IsRetryable(err))
}

func TestHTTPProvider_Search_PostBody(t *testing.T) {
	// Given: a Tavily-style endpoint taking a JSON body
	var gotMethod, gotType, gotAuth string
	var body map[string]any
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"query":"go","results":[{"title":"Go","url":"https://go.dev","content":"Go","score":0.9}]}`)
	}, func(c *HTTPProviderConfig) {
		c.APIKey = "tvly-key"
		c.Method = "post"
		c.MaxResults = 4
		c.Params = map[string]any{"search_depth": "advanced", "chunks_per_source": 2}
	})

	// When: searching
	got, err := p.Search(context.Background(), "go")

	// Then: the query travels in the body next to the extra fields
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, "Bearer tvly-key", gotAuth)
	assert.Equal(t, map[string]any{
		"query":             "go",
		"max_results":       float64(4),
		"search_depth":      "advanced",
		"chunks_per_source": float64(2),
	}, body)
	require.Len(t, got, 1)
	assert.Equal(t, "https://go.dev", got[0].URL)
}

func TestHTTPProvider_Search_GetParams(t *testing.T) {
	var gotLang string
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		gotLang = r.URL.Query().Get("lang")
		fmt.Fprint(w, `{"results":[]}`)
	}, func(c *HTTPProviderConfig) {
		c.Params = map[string]any{"lang": "en"}
	})

	_, err := p.Search(context.Background(), "go")

	require.NoError(t, err)
	assert.Equal(t, "en", gotLang)
}

func TestNewManagerFromConfig_TavilyPreset(t *testing.T) {
	t.Setenv(TavilyAPIKeyEnv, "tvly-key")

	m, err := NewManagerFromConfig(config.WebSearchConfig{
		Providers: []config.WebProviderConfig{{Name: "tavily", Type: "tavily", MaxResults: 5}},
	}, 0)

	require.NoError(t, err)
	require.Len(t, m.providers, 1)
	p := m.providers[0].(*HTTPProvider)
	assert.Equal(t, TavilyEndpoint, p.cfg.Endpoint)
	assert.Equal(t, http.MethodPost, p.cfg.Method)
	assert.Equal(t, "tvly-key", p.cfg.APIKey)

	t.Setenv(TavilyAPIKeyEnv, "")
	_, err = NewManagerFromConfig(config.WebSearchConfig{
		Providers: []config.WebProviderConfig{{Name: "tavily", Type: "tavily"}},
	}, 0)
	assert.Equal(t, vrerrors.KindMissingCredentials, vrerrors.KindOf(err))
}

func TestNewHTTPProvider_Validation(t *testing.T) {
	_, err := NewHTTPProvider(HTTPProviderConfig{Endpoint: "https://x"})
	assert.Equal(t, vrerrors.ErrCodeConfigInvalid, vrerrors.GetCode(err))

	_, err = NewHTTPProvider(HTTPProviderConfig{Name: "x"})
	assert.Equal(t, vrerrors.KindMissingBaseURL, vrerrors.KindOf(err))

	t.Setenv("VAULTRAG_TEST_SEARCH_KEY", "")
	_, err = NewHTTPProvider(HTTPProviderConfig{Name: "x", Endpoint: "https://x", APIKeyEnv: "VAULTRAG_TEST_SEARCH_KEY"})
	assert.Equal(t, vrerrors.KindMissingCredentials, vrerrors.KindOf(err))

	t.Setenv("VAULTRAG_TEST_SEARCH_KEY", "k")
	p, err := NewHTTPProvider(HTTPProviderConfig{Name: "x", Endpoint: "https://x", APIKeyEnv: "VAULTRAG_TEST_SEARCH_KEY"})
	require.NoError(t, err)
	assert.Equal(t, "k", p.cfg.APIKey)
	assert.Equal(t, "Authorization", p.cfg.KeyHeader)
	assert.Equal(t, http.MethodGet, p.cfg.Method)

	_, err = NewHTTPProvider(HTTPProviderConfig{Name: "x", Endpoint: "https://x", Method: "DELETE"})
	assert.Equal(t, vrerrors.ErrCodeConfigInvalid, vrerrors.GetCode(err))
}

func TestNewManagerFromConfig(t *testing.T) {
	m, err := NewManagerFromConfig(config.WebSearchConfig{
		Providers: []config.WebProviderConfig{
			{Name: "a", Endpoint: "https://a.example/search"},
			{Name: "b", Endpoint: "https://b.example/search", MaxResults: 3},
		},
	}, 0)
	require.NoError(t, err)
	assert.True(t, m.HasProviders())
	assert.Len(t, m.providers, 2)
	assert.Equal(t, DefaultTimeout, m.timeout)

	_, err = NewManagerFromConfig(config.WebSearchConfig{
		Providers: []config.WebProviderConfig{{Name: "a"}},
	}, 0)
	assert.Error(t, err)
}
