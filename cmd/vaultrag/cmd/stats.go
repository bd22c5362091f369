package cmd

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	vrerrors "github.com/Aman-CERP/vaultrag/internal/errors"
	"github.com/Aman-CERP/vaultrag/internal/store"
	"github.com/Aman-CERP/vaultrag/internal/ui"
)

// embedderCheckTimeout bounds the embedder check of stats.
const embedderCheckTimeout = 5 * time.Second

func newStatsCmd() *cobra.Command {
	var (
		jsonOutput bool
		noColor    bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show what the vector store holds",
		Long: `Show the vault's note count, the store location and size, and the rows
and bytes stored per embedding model and dimension.

The model the configured embedder would use is marked with *.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd.Context(), cmd, jsonOutput, noColor || ui.DetectNoColor())
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	return cmd
}

func runStats(ctx context.Context, cmd *cobra.Command, jsonOutput, noColor bool) error {
	env, err := loadVault()
	if err != nil {
		return err
	}
	defer env.Close()

	if !env.storeExists() {
		return vrerrors.New(vrerrors.ErrCodeFileNotFound, "no index found for "+env.root, nil).
			WithSuggestion("Run 'vaultrag index' first")
	}

	info, err := collectStatus(ctx, env)
	if err != nil {
		return err
	}

	r := ui.NewStatusRenderer(cmd.OutOrStdout(), noColor)
	if jsonOutput {
		return r.RenderJSON(info)
	}
	return r.Render(info)
}

// collectStatus gathers vault, store and embedder facts. An unreachable
// embedder is reported, not returned.
func collectStatus(ctx context.Context, env *vaultEnv) (ui.StatusInfo, error) {
	info := ui.StatusInfo{
		VaultPath:    env.root,
		StorePath:    env.storePath(),
		EmbedderType: env.backend(),
	}

	if fi, err := os.Stat(env.storePath()); err == nil {
		info.StoreSize = fi.Size()
		info.LastSaved = fi.ModTime()
	}

	if v, err := env.openVault(); err == nil {
		if files, err := v.ListMarkdownFiles(ctx); err == nil {
			info.VaultFiles = len(files)
		}
	}

	st, err := env.openStore(ctx)
	if err != nil {
		return info, err
	}
	stats, err := st.GetEmbeddingStats(ctx)
	if err != nil {
		return info, err
	}

	live := make(map[int]int)
	for _, b := range st.BucketStats() {
		live[b.Width] = b.Live
	}

	checkCtx, cancel := context.WithTimeout(ctx, embedderCheckTimeout)
	defer cancel()
	client, clientErr := env.embedClient(checkCtx)
	switch {
	case clientErr == nil:
		info.EmbedderStatus = "ready"
		info.EmbedderModel = client.ID()
		info.EmbedderDims = client.Dimension()
	case vrerrors.IsConfigurationError(clientErr):
		info.EmbedderStatus = "error"
	default:
		info.EmbedderStatus = "offline"
	}
	if clientErr != nil {
		slog.Debug("stats_embedder_unavailable", slog.String("error", clientErr.Error()))
	}

	for _, s := range stats {
		m := ui.ModelStatus{
			Model:     s.Model,
			Dimension: s.Dimension,
			Rows:      s.RowCount,
			DataBytes: s.TotalDataBytes,
			Active:    clientErr == nil && s.Model == info.EmbedderModel && s.Dimension == info.EmbedderDims,
		}
		if width, ok := store.BucketFor(s.Dimension); ok {
			m.Indexed = live[width]
		}
		info.Models = append(info.Models, m)
	}
	return info, nil
}
