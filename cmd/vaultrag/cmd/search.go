package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	vrerrors "github.com/Aman-CERP/vaultrag/internal/errors"
	"github.com/Aman-CERP/vaultrag/internal/output"
	"github.com/Aman-CERP/vaultrag/internal/store"
	"github.com/Aman-CERP/vaultrag/internal/ui"
	"github.com/Aman-CERP/vaultrag/internal/websearch"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit         int
	minSimilarity float64
	files         []string
	folders       []string
	web           bool
	jsonOutput    bool
	noColor       bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find the note sections closest to a query",
		Long: `Embed the query with the active model and return the most similar
note chunks, best first.

--file and --folder restrict the search; a chunk matches when it is in
any of the given files or folders.

--web also queries the web search providers configured under
websearch.providers in .vaultrag.yaml.

Examples:
  vaultrag search "weekly review template"
  vaultrag search "kubernetes upgrade" --folder work --limit 5
  vaultrag search "reading list" --file books.md --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().Float64Var(&opts.minSimilarity, "min-similarity", -1, "Minimum cosine similarity (default from config)")
	cmd.Flags().StringSliceVar(&opts.files, "file", nil, "Only search this note (repeatable)")
	cmd.Flags().StringSliceVar(&opts.folders, "folder", nil, "Only search this folder (repeatable)")
	cmd.Flags().BoolVar(&opts.web, "web", false, "Also search the configured web providers")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	return cmd
}

// noteResult is the JSON form of a note hit.
type noteResult struct {
	Path       string  `json:"path"`
	HeaderPath string  `json:"headerPath,omitempty"`
	StartLine  int     `json:"startLine"`
	EndLine    int     `json:"endLine"`
	Score      float64 `json:"score"`
	Content    string  `json:"content"`
}

type searchOutput struct {
	Query string             `json:"query"`
	Notes []noteResult       `json:"notes"`
	Web   []websearch.Result `json:"web,omitempty"`
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	if strings.TrimSpace(query) == "" {
		return vrerrors.New(vrerrors.ErrCodeQueryEmpty, "search query is empty", nil)
	}

	env, err := loadVault()
	if err != nil {
		return err
	}
	defer env.Close()

	if !env.storeExists() {
		return vrerrors.New(vrerrors.ErrCodeFileNotFound, "no index found for "+env.root, nil).
			WithSuggestion("Run 'vaultrag index' first")
	}

	searchOpts := store.SearchOptions{
		Limit:         env.cfg.Search.Limit,
		MinSimilarity: env.cfg.Search.MinSimilarity,
		Scope:         store.Scope{Files: opts.files, Folders: opts.folders},
	}
	if opts.limit > 0 {
		searchOpts.Limit = opts.limit
	}
	if opts.minSimilarity >= 0 {
		searchOpts.MinSimilarity = opts.minSimilarity
	}

	start := time.Now()
	slog.Info("search_started", slog.String("query", query), slog.Int("limit", searchOpts.Limit))

	st, err := env.openStore(ctx)
	if err != nil {
		return err
	}
	client, err := env.embedClient(ctx)
	if err != nil {
		return err
	}

	vec, err := client.GetEmbedding(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to embed query: %w", err)
	}
	hits, err := st.PerformSimilaritySearch(ctx, vec, client, searchOpts)
	if err != nil {
		return err
	}

	var web []websearch.Result
	if opts.web {
		manager, err := websearch.NewManagerFromConfig(env.cfg.WebSearch, env.cfg.WebSearchTimeout())
		if err != nil {
			return err
		}
		if web, err = manager.Search(ctx, query); err != nil {
			return err
		}
	}

	slog.Info("search_completed",
		slog.Int("results", len(hits)),
		slog.Int("web_results", len(web)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))

	if opts.jsonOutput {
		return writeSearchJSON(cmd, query, hits, web)
	}

	out := output.NewStyled(cmd.OutOrStdout(), opts.noColor || ui.DetectNoColor() || !ui.IsTTY(cmd.OutOrStdout()))
	if len(hits) == 0 {
		out.Warningf("No notes matched %q", query)
	} else {
		out.Hits(noteHits(hits))
	}
	if opts.web {
		out.Newline()
		if len(web) == 0 {
			out.Warningf("No web results")
		} else {
			out.Hits(webHits(web))
		}
	}
	return nil
}

func noteHits(results []*store.SearchResult) []output.Hit {
	hits := make([]output.Hit, len(results))
	for i, r := range results {
		score := r.Score
		hits[i] = output.Hit{
			Location: r.Chunk.Path,
			Heading:  r.Chunk.Metadata.HeaderPath,
			Score:    &score,
			Text:     r.Chunk.Content,
		}
	}
	return hits
}

func webHits(results []websearch.Result) []output.Hit {
	hits := make([]output.Hit, len(results))
	for i, r := range results {
		hits[i] = output.Hit{
			Location: r.URL,
			Title:    r.Title,
			Source:   r.Source,
			Score:    r.Score,
			Text:     r.Content,
		}
	}
	return hits
}

func writeSearchJSON(cmd *cobra.Command, query string, hits []*store.SearchResult, web []websearch.Result) error {
	res := searchOutput{Query: query, Notes: make([]noteResult, len(hits)), Web: web}
	for i, h := range hits {
		res.Notes[i] = noteResult{
			Path:       h.Chunk.Path,
			HeaderPath: h.Chunk.Metadata.HeaderPath,
			StartLine:  h.Chunk.Metadata.StartLine,
			EndLine:    h.Chunk.Metadata.EndLine,
			Score:      h.Score,
			Content:    h.Chunk.Content,
		}
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
