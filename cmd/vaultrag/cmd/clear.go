package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/vaultrag/internal/embed"
	vrerrors "github.com/Aman-CERP/vaultrag/internal/errors"
	"github.com/Aman-CERP/vaultrag/internal/index"
	"github.com/Aman-CERP/vaultrag/internal/output"
	"github.com/Aman-CERP/vaultrag/internal/store"
)

type clearOptions struct {
	model     string
	dimension int
}

func newClearCmd() *cobra.Command {
	var opts clearOptions

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the active model's vectors",
		Long: `Delete every vector stored for the configured embedding model, then
vacuum and save the store. Vectors of other models are kept.

Use --model and --dimension to clear a model that is no longer
configured; 'vaultrag stats' lists the stored ones.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runClear(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.model, "model", "", "Model ID to clear instead of the active one")
	cmd.Flags().IntVar(&opts.dimension, "dimension", 0, "Dimension of --model")
	cmd.MarkFlagsRequiredTogether("model", "dimension")

	return cmd
}

func runClear(ctx context.Context, cmd *cobra.Command, opts clearOptions) error {
	env, err := loadVault()
	if err != nil {
		return err
	}
	defer env.Close()

	if !env.storeExists() {
		output.New(cmd.OutOrStdout()).Status("", "Nothing to clear: the vault has no index")
		return nil
	}
	if err := env.lock(); err != nil {
		return err
	}

	st, err := env.openStore(ctx)
	if err != nil {
		return err
	}

	var model store.Model
	if opts.model != "" {
		if opts.dimension <= 0 {
			return vrerrors.ValidationError("--dimension must be positive", nil)
		}
		model = store.NewModel(opts.model, opts.dimension)
	} else {
		client, err := env.embedClient(ctx)
		if err != nil {
			return err
		}
		model = client
	}

	before, err := st.GetEmbeddingStats(ctx)
	if err != nil {
		return err
	}

	v, err := env.openVault()
	if err != nil {
		return err
	}
	o := index.NewOrchestrator(v, st, index.OrchestratorOptions{})
	if err := o.ClearAllVectors(ctx, modelClient{model}); err != nil {
		return fmt.Errorf("failed to clear vectors: %w", err)
	}

	rows := 0
	for _, s := range before {
		if s.Model == model.ID() && s.Dimension == model.Dimension() {
			rows = s.RowCount
		}
	}
	output.New(cmd.OutOrStdout()).Successf("Cleared %d vectors of %s (%d dims)", rows, model.ID(), model.Dimension())
	return nil
}

// modelClient lets a bare store.Model stand in for an embedding client in
// operations that never embed.
type modelClient struct {
	store.Model
}

func (m modelClient) GetEmbedding(context.Context, string) ([]float32, error) {
	return nil, vrerrors.InternalError("clear does not embed", nil)
}

var _ embed.Client = modelClient{}
