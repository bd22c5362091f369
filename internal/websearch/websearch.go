// Package websearch fans a query out to web search providers and merges
// their results.
package websearch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	vrerrors "github.com/Aman-CERP/vaultrag/internal/errors"
)

// DefaultTimeout bounds a whole fan-out.
const DefaultTimeout = 30 * time.Second

// Result is one web page returned by a provider.
type Result struct {
	Title   string   `json:"title"`
	URL     string   `json:"url"`
	Content string   `json:"content"` // Snippet
	Source  string   `json:"source"`  // Provider name
	Score   *float64 `json:"score,omitempty"`
}

// Provider is a web search backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string) ([]Result, error)
}

// Manager queries every provider concurrently. Each provider sits behind
// a breaker so one that keeps failing is skipped for a while.
type Manager struct {
	providers []Provider
	breakers  []*vrerrors.Breaker
	timeout   time.Duration
}

// NewManager creates a manager. A non-positive timeout means DefaultTimeout.
func NewManager(timeout time.Duration, providers ...Provider) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	breakers := make([]*vrerrors.Breaker, len(providers))
	for i, p := range providers {
		breakers[i] = vrerrors.NewBreaker(p.Name())
	}
	return &Manager{providers: providers, breakers: breakers, timeout: timeout}
}

// HasProviders reports whether any provider is configured.
func (m *Manager) HasProviders() bool {
	return len(m.providers) > 0
}

// Search queries all providers and returns their results deduplicated by
// URL, best score first, unscored results last. A failing provider does
// not fail the search unless no provider returned anything.
func (m *Manager) Search(ctx context.Context, query string) ([]Result, error) {
	if !m.HasProviders() {
		return nil, vrerrors.ConfigError("no web search providers configured", nil).
			WithSuggestion("Add an entry under websearch.providers in .vaultrag.yaml")
	}
	if strings.TrimSpace(query) == "" {
		return nil, vrerrors.New(vrerrors.ErrCodeQueryEmpty, "search query is empty", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var (
		mu       sync.Mutex
		results  []Result
		failures []error
	)

	// Providers report errors through failures so one cannot cancel the others
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range m.providers {
		g.Go(func() error {
			start := time.Now()
			var found []Result
			err := m.breakers[i].Do(func() error {
				var err error
				found, err = p.Search(gctx, query)
				return err
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				slog.Warn("websearch_provider_failed",
					slog.String("provider", p.Name()),
					vrerrors.LogAttr(err))
				failures = append(failures, fmt.Errorf("%s: %w", p.Name(), err))
				return nil
			}
			slog.Debug("websearch_provider_done",
				slog.String("provider", p.Name()),
				slog.Int("results", len(found)),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()))
			for _, r := range found {
				if r.Source == "" {
					r.Source = p.Name()
				}
				results = append(results, r)
			}
			return nil
		})
	}
	_ = g.Wait()

	unique := Dedupe(results)
	if len(unique) == 0 && len(failures) > 0 {
		return nil, vrerrors.New(vrerrors.ErrCodeProviderFailed, "web search failed", errors.Join(failures...))
	}
	return unique, nil
}

// Dedupe keeps one result per URL, preferring the higher score (any score
// beats none), and sorts by score descending with unscored results last.
// Ties keep their first-seen order.
func Dedupe(results []Result) []Result {
	index := make(map[string]int, len(results))
	var unique []Result
	for _, r := range results {
		i, seen := index[r.URL]
		if !seen {
			index[r.URL] = len(unique)
			unique = append(unique, r)
			continue
		}
		if r.Score != nil && (unique[i].Score == nil || *r.Score > *unique[i].Score) {
			unique[i] = r
		}
	}

	sort.SliceStable(unique, func(a, b int) bool {
		sa, sb := unique[a].Score, unique[b].Score
		switch {
		case sa == nil:
			return false
		case sb == nil:
			return true
		default:
			return *sa > *sb
		}
	})
	return unique
}
